package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/repository"
)

// QARecordRepository implements qa.RecordRepository and register.RecordSource for SQLite
type QARecordRepository struct {
	db *DB
}

// NewQARecordRepository creates a new QARecordRepository
func NewQARecordRepository(db *DB) *QARecordRepository {
	return &QARecordRepository{db: db}
}

const qaRecordColumns = `
	id, tenant_id, project_id, sequence_number, formatted_number, title,
	category, discipline, responsible_parties, question, status, answer_history,
	due_date, created_at, created_by, updated_at, updated_by, deleted`

// Create creates a new record
func (r *QARecordRepository) Create(ctx context.Context, tenantID string, rec *qa.Record) error {
	parties, history, err := encodeLists(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO qa_records (` + qaRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		tenantID,
		rec.ProjectID,
		rec.SequenceNumber,
		rec.FormattedNumber,
		rec.Title,
		rec.Category,
		rec.Discipline,
		parties,
		rec.Question,
		string(rec.Status),
		history,
		nullTime(rec.DueDate),
		rec.CreatedAt,
		rec.CreatedBy,
		rec.UpdatedAt,
		rec.UpdatedBy,
		rec.Deleted,
	)
	if err != nil {
		return mapWriteError("create record", err)
	}

	rec.TenantID = tenantID
	return nil
}

// Get retrieves a record by ID, including soft-deleted ones
func (r *QARecordRepository) Get(ctx context.Context, tenantID, id string) (*qa.Record, error) {
	query := `SELECT ` + qaRecordColumns + ` FROM qa_records WHERE id = ? AND tenant_id = ?`

	rec, err := scanQARecord(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// Update overwrites the mutable fields of a live record
func (r *QARecordRepository) Update(ctx context.Context, tenantID string, rec *qa.Record) error {
	parties, history, err := encodeLists(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE qa_records
		SET title = ?, category = ?, discipline = ?, responsible_parties = ?,
		    question = ?, status = ?, answer_history = ?, due_date = ?,
		    updated_at = ?, updated_by = ?
		WHERE id = ? AND tenant_id = ? AND deleted = 0
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.Title,
		rec.Category,
		rec.Discipline,
		parties,
		rec.Question,
		string(rec.Status),
		history,
		nullTime(rec.DueDate),
		rec.UpdatedAt,
		rec.UpdatedBy,
		rec.ID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return requireRow(result)
}

// SoftDelete flags a record as deleted. The row and its sequence number stay.
func (r *QARecordRepository) SoftDelete(ctx context.Context, tenantID, id, deletedBy string, deletedAt time.Time) error {
	query := `
		UPDATE qa_records
		SET deleted = 1, deleted_at = ?, deleted_by = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND tenant_id = ? AND deleted = 0
	`

	result, err := r.db.ExecContext(ctx, query, deletedAt, deletedBy, deletedAt, deletedBy, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireRow(result)
}

// List returns records matching the given options as lightweight references
func (r *QARecordRepository) List(ctx context.Context, tenantID string, opts qa.ListOptions) ([]qa.RecordRef, error) {
	query := `
		SELECT id, sequence_number, formatted_number, title, category, status
		FROM qa_records
		WHERE tenant_id = ?
	`

	args := []interface{}{tenantID}
	conditions := []string{}

	if opts.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted = 0")
	}
	if opts.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, opts.Category)
	}
	if len(opts.Statuses) > 0 {
		conditions = append(conditions, statusCondition("status", opts.Statuses, &args))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY sequence_number ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var refs []qa.RecordRef
	for rows.Next() {
		var ref qa.RecordRef
		var status string
		if err := rows.Scan(
			&ref.ID,
			&ref.SequenceNumber,
			&ref.FormattedNumber,
			&ref.Title,
			&ref.Category,
			&status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record ref: %w", err)
		}
		ref.Status = qa.NormalizeStatus(status)
		refs = append(refs, ref)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}

	return refs, nil
}

// ListActiveRecords returns the live records of a project in sequence order
func (r *QARecordRepository) ListActiveRecords(ctx context.Context, key project.Key) ([]qa.Record, error) {
	query := `
		SELECT ` + qaRecordColumns + `
		FROM qa_records
		WHERE tenant_id = ? AND project_id = ? AND deleted = 0
		ORDER BY sequence_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, key.TenantID, key.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}
	defer rows.Close()

	var records []qa.Record
	for rows.Next() {
		rec, err := scanQARecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQARecord(row rowScanner) (*qa.Record, error) {
	var rec qa.Record
	var status, parties, history string
	var dueDate sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.ProjectID,
		&rec.SequenceNumber,
		&rec.FormattedNumber,
		&rec.Title,
		&rec.Category,
		&rec.Discipline,
		&parties,
		&rec.Question,
		&status,
		&history,
		&dueDate,
		&rec.CreatedAt,
		&rec.CreatedBy,
		&rec.UpdatedAt,
		&rec.UpdatedBy,
		&rec.Deleted,
	); err != nil {
		return nil, err
	}

	rec.Status = qa.NormalizeStatus(status)
	if dueDate.Valid {
		due := dueDate.Time
		rec.DueDate = &due
	}
	if parties != "" {
		if err := json.Unmarshal([]byte(parties), &rec.ResponsibleParties); err != nil {
			return nil, fmt.Errorf("decode responsible parties of %s: %w", rec.ID, err)
		}
	}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &rec.AnswerHistory); err != nil {
			return nil, fmt.Errorf("decode answer history of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func encodeLists(rec *qa.Record) (string, string, error) {
	parties := rec.ResponsibleParties
	if parties == nil {
		parties = []string{}
	}
	history := rec.AnswerHistory
	if history == nil {
		history = []qa.Answer{}
	}
	partiesJSON, err := json.Marshal(parties)
	if err != nil {
		return "", "", fmt.Errorf("encode responsible parties: %w", err)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return "", "", fmt.Errorf("encode answer history: %w", err)
	}
	return string(partiesJSON), string(historyJSON), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// statusCondition matches statuses the way rows read back: a stored value
// outside the known set counts as Unanswered.
func statusCondition(column string, statuses []qa.Status, args *[]interface{}) string {
	placeholders := make([]string, len(statuses))
	matchUnknown := false
	for i, status := range statuses {
		status = qa.NormalizeStatus(string(status))
		if status == qa.StatusUnanswered {
			matchUnknown = true
		}
		placeholders[i] = "?"
		*args = append(*args, string(status))
	}
	cond := fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
	if !matchUnknown {
		return cond
	}

	known := []qa.Status{qa.StatusUnanswered, qa.StatusInProgress, qa.StatusDone, qa.StatusNotApplicable}
	for _, status := range known {
		*args = append(*args, string(status))
	}
	return fmt.Sprintf("(%s OR %s NOT IN (?,?,?,?))", cond, column)
}
