package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/register"
)

// WorkbookStateRepository implements register.StateStore for SQLite
type WorkbookStateRepository struct {
	db *DB
}

// NewWorkbookStateRepository creates a new WorkbookStateRepository
func NewWorkbookStateRepository(db *DB) *WorkbookStateRepository {
	return &WorkbookStateRepository{db: db}
}

// GetSyncState returns the stored state, or an absent state if none exists
func (r *WorkbookStateRepository) GetSyncState(ctx context.Context, key project.Key) (*register.WorkbookState, error) {
	st, err := getSyncState(ctx, r.db, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return st, nil
}

const relocated = `workbook_sync_state.canonical_path <> '' AND workbook_sync_state.canonical_path <> excluded.canonical_path`

// SaveCanonicalPath caches the resolved workbook path. A changed path resets
// the file state so the next claim runs the move from the old location.
func (r *WorkbookStateRepository) SaveCanonicalPath(ctx context.Context, key project.Key, path string) error {
	query := `
		INSERT INTO workbook_sync_state (tenant_id, project_id, canonical_path, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, project_id) DO UPDATE
		SET file_state = CASE WHEN ` + relocated + ` THEN 'absent' ELSE workbook_sync_state.file_state END,
		    lease_token = CASE WHEN ` + relocated + ` THEN NULL ELSE workbook_sync_state.lease_token END,
		    canonical_path = excluded.canonical_path, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, path, time.Now()); err != nil {
		return fmt.Errorf("failed to save canonical path: %w", err)
	}
	return nil
}

// ClaimCreation takes the creation lease unless the file is ready or another
// live lease exists. The update is conditional on the state that was read.
func (r *WorkbookStateRepository) ClaimCreation(ctx context.Context, key project.Key, lease register.Lease, ttl time.Duration) (register.ClaimOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO workbook_sync_state (tenant_id, project_id, updated_at) VALUES (?, ?, ?)`,
		key.TenantID, key.ProjectID, lease.StartedAt,
	); err != nil {
		return "", fmt.Errorf("failed to initialise sync state: %w", err)
	}

	current, err := getSyncState(ctx, tx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read sync state: %w", err)
	}

	switch current.FileState {
	case register.FileReady:
		return register.ClaimReady, nil
	case register.FileCreating:
		if !current.LeaseExpired(lease.StartedAt, ttl) {
			return register.ClaimInProgress, nil
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE workbook_sync_state
		SET file_state = 'creating', lease_token = ?, lease_started_at = ?, lease_started_by = ?,
		    last_error = '', updated_at = ?
		WHERE tenant_id = ? AND project_id = ? AND file_state = ? AND lease_token IS ?
	`,
		lease.Token, lease.StartedAt, lease.Owner, lease.StartedAt,
		key.TenantID, key.ProjectID, string(current.FileState), nullString(current.LeaseToken),
	)
	if err != nil {
		return "", fmt.Errorf("failed to claim creation lease: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return register.ClaimInProgress, nil
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return register.ClaimAcquired, nil
}

// MarkReady records that the workbook exists. A non-empty token only matches
// the lease it was issued for.
func (r *WorkbookStateRepository) MarkReady(ctx context.Context, key project.Key, token string) error {
	if token == "" {
		query := `
			INSERT INTO workbook_sync_state (tenant_id, project_id, file_state, updated_at)
			VALUES (?, ?, 'ready', ?)
			ON CONFLICT (tenant_id, project_id) DO UPDATE
			SET file_state = 'ready', lease_token = NULL, last_error = '', updated_at = excluded.updated_at
		`
		if _, err := r.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, time.Now()); err != nil {
			return fmt.Errorf("failed to mark workbook ready: %w", err)
		}
		return nil
	}

	query := `
		UPDATE workbook_sync_state
		SET file_state = 'ready', lease_token = NULL, last_error = '', updated_at = ?
		WHERE tenant_id = ? AND project_id = ? AND lease_token = ?
	`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), key.TenantID, key.ProjectID, token); err != nil {
		return fmt.Errorf("failed to mark workbook ready: %w", err)
	}
	return nil
}

// MarkFailed releases a lease after a failed creation
func (r *WorkbookStateRepository) MarkFailed(ctx context.Context, key project.Key, token, message string) error {
	query := `
		UPDATE workbook_sync_state
		SET file_state = 'error', lease_token = NULL, last_error = ?, updated_at = ?
		WHERE tenant_id = ? AND project_id = ? AND lease_token = ?
	`
	if _, err := r.db.ExecContext(ctx, query, message, time.Now(), key.TenantID, key.ProjectID, token); err != nil {
		return fmt.Errorf("failed to mark workbook failed: %w", err)
	}
	return nil
}

// SaveFileMetadata caches the remote id and link of the workbook
func (r *WorkbookStateRepository) SaveFileMetadata(ctx context.Context, key project.Key, remoteID, remoteLink string) error {
	query := `
		INSERT INTO workbook_sync_state (tenant_id, project_id, remote_id, remote_link, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, project_id) DO UPDATE
		SET remote_id = excluded.remote_id, remote_link = excluded.remote_link, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, remoteID, remoteLink, time.Now()); err != nil {
		return fmt.Errorf("failed to save file metadata: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSyncState(ctx context.Context, q queryRower, key project.Key) (*register.WorkbookState, error) {
	query := `
		SELECT canonical_path, file_state, lease_token, lease_started_at, lease_started_by,
		       remote_id, remote_link, last_error, updated_at
		FROM workbook_sync_state
		WHERE tenant_id = ? AND project_id = ?
	`

	st := register.WorkbookState{Key: key}
	var fileState string
	var token sql.NullString
	var startedAt, updatedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, key.TenantID, key.ProjectID).Scan(
		&st.CanonicalPath,
		&fileState,
		&token,
		&startedAt,
		&st.LeaseStartedBy,
		&st.RemoteID,
		&st.RemoteLink,
		&st.LastError,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		st.FileState = register.FileAbsent
		return &st, nil
	}
	if err != nil {
		return nil, err
	}

	st.FileState = register.FileState(fileState)
	st.LeaseToken = token.String
	if startedAt.Valid {
		st.LeaseStartedAt = startedAt.Time
	}
	if updatedAt.Valid {
		st.UpdatedAt = updatedAt.Time
	}
	return &st, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
