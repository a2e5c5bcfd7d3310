package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
)

// Handler dispatches MCP commands.
type Handler struct {
	projects  ProjectService
	questions QuestionService
	activity  ActivityService
	queue     SyncQueue
	syncState SyncStateReader
	now       func() time.Time
}

// NewHandler creates a new MCP handler.
func NewHandler(svcs Services) *Handler {
	return &Handler{
		projects:  svcs.Projects,
		questions: svcs.Questions,
		activity:  svcs.Activity,
		queue:     svcs.Queue,
		syncState: svcs.SyncState,
		now:       time.Now,
	}
}

// Handle dispatches MCP requests to domain services.
func (h *Handler) Handle(ctx context.Context, tenantID, actor, method string, params json.RawMessage) (any, error) {
	switch method {
	case "create_project":
		var req CreateProjectParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.projects.Create(ctx, tenantID, project.CreateRequest{
			ID:                 req.ID,
			Name:               req.Name,
			Description:        req.Description,
			RootPath:           req.RootPath,
			LegacyWorkbookPath: req.LegacyWorkbookPath,
		})
		if err != nil {
			return nil, mapError(err)
		}
		h.enqueue(proj.Key(), "project_created")
		return proj, nil
	case "list_projects":
		projects, err := h.projects.List(ctx, tenantID)
		if err != nil {
			return nil, mapError(err)
		}
		if projects == nil {
			projects = []project.ProjectSummary{}
		}
		return projects, nil
	case "get_project":
		var req GetProjectParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return proj, nil
	case "set_project_root":
		var req SetProjectRootParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		proj, err = h.projects.SetRootPath(ctx, tenantID, proj.ID, req.RootPath)
		if err != nil {
			return nil, mapError(err)
		}
		// A moved root relocates the workbook on the next sync.
		h.enqueue(proj.Key(), "root_changed")
		return proj, nil

	case "create_question":
		var req CreateQuestionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			return nil, err
		}
		var status qa.Status
		if req.Status != "" {
			parsed, ok := qa.ParseStatus(req.Status)
			if !ok {
				return nil, mapError(qa.ErrInvalidStatus)
			}
			status = parsed
		}
		rec, err := h.questions.Create(ctx, tenantID, qa.CreateRequest{
			ProjectID:          proj.ID,
			Title:              req.Title,
			Category:           req.Category,
			Discipline:         req.Discipline,
			ResponsibleParties: req.ResponsibleParties,
			Question:           req.Question,
			Status:             status,
			DueDate:            due,
			Actor:              actor,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "update_question":
		var req UpdateQuestionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		update := qa.UpdateRequest{
			ID:                 req.ID,
			Title:              req.Title,
			Category:           req.Category,
			Discipline:         req.Discipline,
			ResponsibleParties: req.ResponsibleParties,
			Question:           req.Question,
			Actor:              actor,
		}
		if req.DueDate != nil {
			if strings.TrimSpace(*req.DueDate) == "" {
				update.ClearDueDate = true
			} else {
				due, err := parseDueDate(*req.DueDate)
				if err != nil {
					return nil, err
				}
				update.DueDate = due
			}
		}
		rec, err := h.questions.Update(ctx, tenantID, update)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "answer_question":
		var req AnswerQuestionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		answer := qa.AnswerRequest{
			ID:             req.ID,
			Text:           req.Answer,
			AnsweredByName: req.AnsweredBy,
			Actor:          actor,
		}
		if req.Status != "" {
			parsed, ok := qa.ParseStatus(req.Status)
			if !ok {
				return nil, mapError(qa.ErrInvalidStatus)
			}
			answer.Status = &parsed
		}
		rec, err := h.questions.Answer(ctx, tenantID, answer)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "set_question_status":
		var req SetQuestionStatusParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		rec, err := h.questions.SetStatus(ctx, tenantID, req.ID, qa.Status(req.Status), actor)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "delete_question":
		var req QuestionIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.questions.Delete(ctx, tenantID, req.ID, actor); err != nil {
			return nil, mapError(err)
		}
		return DeleteQuestionResponse{ID: req.ID, Deleted: true}, nil
	case "get_question":
		var req QuestionIDParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		rec, err := h.questions.Get(ctx, tenantID, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "list_questions":
		var req ListQuestionsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		statuses, err := parseStatuses(req.Statuses)
		if err != nil {
			return nil, err
		}
		refs, err := h.questions.List(ctx, tenantID, qa.ListOptions{
			ProjectID:      proj.ID,
			Statuses:       statuses,
			Category:       req.Category,
			IncludeDeleted: req.IncludeDeleted,
			Limit:          req.Limit,
			Offset:         req.Offset,
		})
		if err != nil {
			return nil, mapError(err)
		}
		if refs == nil {
			refs = []qa.RecordRef{}
		}
		return QuestionListResponse{ProjectID: proj.ID, Questions: refs}, nil
	case "search_questions":
		var req SearchQuestionsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		statuses, err := parseStatuses(req.Statuses)
		if err != nil {
			return nil, err
		}
		results, err := h.questions.Search(ctx, tenantID, proj.ID, req.Query, qa.SearchOptions{
			Statuses: statuses,
			Limit:    req.Limit,
			Offset:   req.Offset,
		})
		if err != nil {
			return nil, mapError(err)
		}
		if results == nil {
			results = []qa.SearchResult{}
		}
		return SearchResponse{ProjectID: proj.ID, Query: req.Query, Results: results}, nil

	case "get_register_status":
		var req RegisterParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		return h.registerStatus(ctx, proj.Key())
	case "sync_register":
		var req RegisterParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		if h.queue == nil {
			return nil, &APIError{Code: "SYNC_UNAVAILABLE", Message: "register sync is not configured"}
		}
		key := proj.Key()
		h.queue.Enqueue(key, "manual")
		snap, _ := h.queue.GetState(key)
		return SyncRegisterResponse{ProjectID: proj.ID, Queued: true, Queue: snap}, nil

	case "get_recent_activity":
		var req GetRecentActivityParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		proj, err := h.getProjectOrDefault(ctx, tenantID, req.ProjectID)
		if err != nil {
			return nil, mapError(err)
		}
		opts := activity.ListActivityOptions{
			ProjectID: proj.ID,
			Limit:     req.Limit,
			Offset:    req.Offset,
		}
		if req.RecordID != "" {
			opts.RecordID = &req.RecordID
		}
		if req.ActivityType != "" {
			kind := activity.ActivityType(req.ActivityType)
			opts.ActivityType = &kind
		}
		entries, err := h.activity.GetRecentActivity(ctx, tenantID, opts)
		if err != nil {
			return nil, mapError(err)
		}
		if entries == nil {
			entries = []activity.ActivityEntry{}
		}
		return ActivityResponse{ProjectID: proj.ID, Entries: entries, FetchedAt: h.now()}, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func (h *Handler) registerStatus(ctx context.Context, key project.Key) (RegisterStatusResponse, error) {
	resp := RegisterStatusResponse{
		ProjectID: key.ProjectID,
		Queue:     syncqueue.Snapshot{Key: key, ProjectID: key.ProjectID, State: syncqueue.StateIdle},
	}
	if h.queue != nil {
		if snap, ok := h.queue.GetState(key); ok {
			resp.Queue = snap
		}
	}
	if h.syncState != nil {
		state, err := h.syncState.GetSyncState(ctx, key)
		if err != nil {
			return RegisterStatusResponse{}, fmt.Errorf("reading workbook state: %w", err)
		}
		resp.Workbook = state
	}
	return resp, nil
}

func (h *Handler) enqueue(key project.Key, reason string) {
	if h.queue != nil {
		h.queue.Enqueue(key, reason)
	}
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return invalidParams("malformed arguments: %v", err)
	}
	return nil
}

func (h *Handler) getProjectOrDefault(ctx context.Context, tenantID, projectID string) (*project.Project, error) {
	if projectID == "" {
		return h.projects.GetDefault(ctx, tenantID)
	}
	return h.projects.Get(ctx, tenantID, projectID)
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func parseStatuses(raw []string) ([]qa.Status, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]qa.Status, 0, len(raw))
	for _, value := range raw {
		status, ok := qa.ParseStatus(value)
		if !ok {
			return nil, mapError(qa.ErrInvalidStatus)
		}
		out = append(out, status)
	}
	return out, nil
}

func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, invalidParams("due_date %q: expected YYYY-MM-DD", raw)
}

