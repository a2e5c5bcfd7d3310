// Package postgres provides a Workbook Sync State store shared by several
// application instances.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/register"
	_ "github.com/lib/pq"
)

const (
	defaultTableName = "qaregister_workbook_state"
	operationTimeout = 5 * time.Second
)

// ErrInvalidDSN is returned for an empty connection string.
var ErrInvalidDSN = errors.New("postgres dsn is required")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// StateStore implements register.StateStore on PostgreSQL. The table is
// created on first use.
type StateStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewStateStore creates a StateStore for dsn. No connection is made until
// the first operation.
func NewStateStore(dsn string) (*StateStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return &StateStore{
		dsn:       dsn,
		tableName: defaultTableName,
		openDB:    sql.Open,
	}, nil
}

// Close releases the connection pool.
func (s *StateStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetSyncState returns the stored state, or an absent state if none exists.
func (s *StateStore) GetSyncState(ctx context.Context, key project.Key) (*register.WorkbookState, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	st, err := s.getSyncState(ctx, s.db, key, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return st, nil
}

// SaveCanonicalPath caches the resolved workbook path. A changed path resets
// the file state so the next claim runs the move from the old location.
func (s *StateStore) SaveCanonicalPath(ctx context.Context, key project.Key, path string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, project_id, canonical_path, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, project_id)
		DO UPDATE SET
			file_state = CASE WHEN %[1]s.canonical_path <> '' AND %[1]s.canonical_path <> EXCLUDED.canonical_path
				THEN 'absent' ELSE %[1]s.file_state END,
			lease_token = CASE WHEN %[1]s.canonical_path <> '' AND %[1]s.canonical_path <> EXCLUDED.canonical_path
				THEN NULL ELSE %[1]s.lease_token END,
			canonical_path = EXCLUDED.canonical_path, updated_at = NOW()`, s.table())
	if _, err := s.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, path); err != nil {
		return fmt.Errorf("failed to save canonical path: %w", err)
	}
	return nil
}

// ClaimCreation takes the creation lease unless the file is ready or another
// live lease exists. The row is locked for the duration of the decision.
func (s *StateStore) ClaimCreation(ctx context.Context, key project.Key, lease register.Lease, ttl time.Duration) (register.ClaimOutcome, error) {
	if err := s.ensureReady(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, project_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id, project_id) DO NOTHING`, s.table())
	if _, err := tx.ExecContext(ctx, insert, key.TenantID, key.ProjectID); err != nil {
		return "", fmt.Errorf("failed to initialise sync state: %w", err)
	}

	current, err := s.getSyncState(ctx, tx, key, true)
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

	update := fmt.Sprintf(`
		UPDATE %s
		SET file_state = 'creating', lease_token = $1, lease_started_at = $2, lease_started_by = $3,
		    last_error = '', updated_at = NOW()
		WHERE tenant_id = $4 AND project_id = $5`, s.table())
	if _, err := tx.ExecContext(ctx, update, lease.Token, lease.StartedAt, lease.Owner, key.TenantID, key.ProjectID); err != nil {
		return "", fmt.Errorf("failed to claim creation lease: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return register.ClaimAcquired, nil
}

// MarkReady records that the workbook exists. A non-empty token only matches
// the lease it was issued for.
func (s *StateStore) MarkReady(ctx context.Context, key project.Key, token string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var err error
	if token == "" {
		query := fmt.Sprintf(`
			INSERT INTO %s (tenant_id, project_id, file_state, updated_at)
			VALUES ($1, $2, 'ready', NOW())
			ON CONFLICT (tenant_id, project_id)
			DO UPDATE SET file_state = 'ready', lease_token = NULL, last_error = '', updated_at = NOW()`, s.table())
		_, err = s.db.ExecContext(ctx, query, key.TenantID, key.ProjectID)
	} else {
		query := fmt.Sprintf(`
			UPDATE %s
			SET file_state = 'ready', lease_token = NULL, last_error = '', updated_at = NOW()
			WHERE tenant_id = $1 AND project_id = $2 AND lease_token = $3`, s.table())
		_, err = s.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, token)
	}
	if err != nil {
		return fmt.Errorf("failed to mark workbook ready: %w", err)
	}
	return nil
}

// MarkFailed releases a lease after a failed creation.
func (s *StateStore) MarkFailed(ctx context.Context, key project.Key, token, message string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s
		SET file_state = 'error', lease_token = NULL, last_error = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND project_id = $3 AND lease_token = $4`, s.table())
	if _, err := s.db.ExecContext(ctx, query, message, key.TenantID, key.ProjectID, token); err != nil {
		return fmt.Errorf("failed to mark workbook failed: %w", err)
	}
	return nil
}

// SaveFileMetadata caches the remote id and link of the workbook.
func (s *StateStore) SaveFileMetadata(ctx context.Context, key project.Key, remoteID, remoteLink string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, project_id, remote_id, remote_link, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, project_id)
		DO UPDATE SET remote_id = EXCLUDED.remote_id, remote_link = EXCLUDED.remote_link, updated_at = NOW()`, s.table())
	if _, err := s.db.ExecContext(ctx, query, key.TenantID, key.ProjectID, remoteID, remoteLink); err != nil {
		return fmt.Errorf("failed to save file metadata: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *StateStore) getSyncState(ctx context.Context, q queryRower, key project.Key, forUpdate bool) (*register.WorkbookState, error) {
	query := fmt.Sprintf(`
		SELECT canonical_path, file_state, lease_token, lease_started_at, lease_started_by,
		       remote_id, remote_link, last_error, updated_at
		FROM %s
		WHERE tenant_id = $1 AND project_id = $2`, s.table())
	if forUpdate {
		query += " FOR UPDATE"
	}

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
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *StateStore) ensureReady() error {
	if s == nil {
		return ErrInvalidDSN
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				tenant_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				canonical_path TEXT NOT NULL DEFAULT '',
				file_state TEXT NOT NULL DEFAULT 'absent' CHECK (file_state IN ('absent', 'creating', 'ready', 'error')),
				lease_token TEXT,
				lease_started_at TIMESTAMPTZ,
				lease_started_by TEXT NOT NULL DEFAULT '',
				remote_id TEXT NOT NULL DEFAULT '',
				remote_link TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (tenant_id, project_id)
			)`, s.table())
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *StateStore) table() string {
	return quoteIdentifier(s.tableName)
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
