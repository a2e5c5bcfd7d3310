package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/repository"
	"github.com/google/uuid"
)

const defaultActor = "system"

// Service handles Q&A record business logic. Every successful mutation is
// followed by a register sync request for the record's project.
type Service struct {
	records    RecordRepository
	projects   ProjectRepository
	activities ActivityRepository
	search     SearchRepository
	sync       SyncTrigger
	numbers    NumberFormat
	logger     *slog.Logger
}

// NewService creates a new record service.
func NewService(
	records RecordRepository,
	projects ProjectRepository,
	activities ActivityRepository,
	search SearchRepository,
	sync SyncTrigger,
	numbers NumberFormat,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		records:    records,
		projects:   projects,
		activities: activities,
		search:     search,
		sync:       sync,
		numbers:    numbers,
		logger:     logger,
	}
}

// CreateRequest describes a question creation request.
type CreateRequest struct {
	ProjectID          string
	Title              string
	Category           string
	Discipline         string
	ResponsibleParties []string
	Question           string
	Status             Status
	DueDate            *time.Time
	Actor              string
}

// UpdateRequest describes a question update. Nil fields are left unchanged.
type UpdateRequest struct {
	ID                 string
	Title              *string
	Category           *string
	Discipline         *string
	ResponsibleParties []string
	Question           *string
	DueDate            *time.Time
	ClearDueDate       bool
	Actor              string
}

// AnswerRequest appends an answer. A nil Status marks the question done.
type AnswerRequest struct {
	ID             string
	Text           string
	AnsweredByName string
	Status         *Status
	Actor          string
}

// Create creates a new question with the next sequence number of its project.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (*Record, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	status := StatusUnanswered
	if req.Status != "" {
		status = NormalizeStatus(string(req.Status))
	}

	seq, err := s.projects.NextQASequence(ctx, tenantID, req.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("allocating sequence number: %w", err)
	}

	now := time.Now()
	actor := actorOrDefault(req.Actor)
	rec := &Record{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		ProjectID:          req.ProjectID,
		SequenceNumber:     seq,
		FormattedNumber:    s.numbers.Format(seq),
		Title:              strings.TrimSpace(req.Title),
		Category:           strings.TrimSpace(req.Category),
		Discipline:         strings.TrimSpace(req.Discipline),
		ResponsibleParties: cleanParties(req.ResponsibleParties),
		Question:           req.Question,
		Status:             status,
		CreatedAt:          now,
		CreatedBy:          actor,
		UpdatedAt:          now,
		UpdatedBy:          actor,
		DueDate:            req.DueDate,
	}

	if err := s.records.Create(ctx, tenantID, rec); err != nil {
		return nil, fmt.Errorf("creating question: %w", err)
	}

	s.logActivity(ctx, tenantID, rec, activity.TypeQuestionCreated, actor, fmt.Sprintf("created %s", rec.FormattedNumber))
	s.requestSync(tenantID, rec.ProjectID, "create")
	return rec, nil
}

// Update modifies the editable fields of a question.
func (s *Service) Update(ctx context.Context, tenantID string, req UpdateRequest) (*Record, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, ErrInvalidInput
	}

	current, err := s.Get(ctx, tenantID, req.ID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, ErrInvalidInput
		}
		updated.Title = strings.TrimSpace(*req.Title)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Discipline != nil {
		updated.Discipline = strings.TrimSpace(*req.Discipline)
	}
	if req.ResponsibleParties != nil {
		updated.ResponsibleParties = cleanParties(req.ResponsibleParties)
	}
	if req.Question != nil {
		if strings.TrimSpace(*req.Question) == "" {
			return nil, ErrInvalidInput
		}
		updated.Question = *req.Question
	}
	if req.ClearDueDate {
		updated.DueDate = nil
	} else if req.DueDate != nil {
		updated.DueDate = req.DueDate
	}

	return s.save(ctx, tenantID, &updated, req.Actor, activity.TypeQuestionUpdated, "update")
}

// Answer appends an answer to the question's history.
func (s *Service) Answer(ctx context.Context, tenantID string, req AnswerRequest) (*Record, error) {
	if err := ValidateAnswerInput(req); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, tenantID, req.ID)
	if err != nil {
		return nil, err
	}

	actor := actorOrDefault(req.Actor)
	answeredBy := strings.TrimSpace(req.AnsweredByName)
	if answeredBy == "" {
		answeredBy = actor
	}

	updated := *current
	updated.AnswerHistory = append(append([]Answer(nil), current.AnswerHistory...), Answer{
		Text:           req.Text,
		AnsweredAt:     time.Now(),
		AnsweredByName: answeredBy,
	})
	updated.Status = StatusDone
	if req.Status != nil {
		updated.Status = NormalizeStatus(string(*req.Status))
	}

	return s.save(ctx, tenantID, &updated, actor, activity.TypeQuestionAnswered, "answer")
}

// SetStatus changes the status of a question.
func (s *Service) SetStatus(ctx context.Context, tenantID, id string, status Status, actor string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	parsed, ok := ParseStatus(string(status))
	if !ok {
		return nil, ErrInvalidStatus
	}

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == parsed {
		return current, nil
	}

	updated := *current
	updated.Status = parsed
	return s.save(ctx, tenantID, &updated, actor, activity.TypeQuestionStatusChanged, "status")
}

// Delete soft-deletes a question. Its sequence number is never handed out again.
func (s *Service) Delete(ctx context.Context, tenantID, id, actor string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidInput
	}

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	actor = actorOrDefault(actor)
	if err := s.records.SoftDelete(ctx, tenantID, id, actor, time.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("deleting question: %w", err)
	}

	s.logActivity(ctx, tenantID, current, activity.TypeQuestionDeleted, actor, fmt.Sprintf("deleted %s", current.FormattedNumber))
	s.requestSync(tenantID, current.ProjectID, "delete")
	return nil
}

// Get returns a live question by ID.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Record, error) {
	rec, err := s.records.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting question: %w", err)
	}
	if rec.Deleted {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// List returns record references based on options.
func (s *Service) List(ctx context.Context, tenantID string, opts ListOptions) ([]RecordRef, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return nil, ErrInvalidInput
	}
	return s.records.List(ctx, tenantID, opts)
}

// Search runs full-text search.
func (s *Service) Search(ctx context.Context, tenantID, projectID, query string, opts SearchOptions) ([]SearchResult, error) {
	if s.search == nil {
		return nil, fmt.Errorf("search repository not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	return s.search.Search(ctx, tenantID, projectID, query, opts)
}

func (s *Service) save(ctx context.Context, tenantID string, rec *Record, actor string, kind activity.ActivityType, reason string) (*Record, error) {
	actor = actorOrDefault(actor)
	rec.UpdatedAt = time.Now()
	rec.UpdatedBy = actor

	if err := s.records.Update(ctx, tenantID, rec); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("updating question: %w", err)
	}

	s.logActivity(ctx, tenantID, rec, kind, actor, fmt.Sprintf("%s %s", reason, rec.FormattedNumber))
	s.requestSync(tenantID, rec.ProjectID, reason)
	return rec, nil
}

func (s *Service) logActivity(ctx context.Context, tenantID string, rec *Record, kind activity.ActivityType, actor, summary string) {
	if s.activities == nil {
		return
	}
	recordID := rec.ID
	if err := s.activities.Log(ctx, tenantID, &activity.ActivityEntry{
		ProjectID:    rec.ProjectID,
		RecordID:     &recordID,
		ActivityType: kind,
		Summary:      summary,
		Actor:        actor,
	}); err != nil {
		s.logger.Warn("activity log failed", "record", rec.ID, "type", kind, "error", err)
	}
}

func (s *Service) requestSync(tenantID, projectID, reason string) {
	if s.sync == nil {
		return
	}
	s.sync.Enqueue(project.Key{TenantID: tenantID, ProjectID: projectID}, reason)
}

func actorOrDefault(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return defaultActor
	}
	return actor
}
