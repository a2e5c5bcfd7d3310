package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/repository"
)

// ProjectRepository implements project.Repository, qa.ProjectRepository and
// register.ProjectSource for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, tenant_id, name, description, root_path, legacy_workbook_path, qa_seq, created_at`

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, tenantID string, proj *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.ID,
		tenantID,
		proj.Name,
		proj.Description,
		proj.RootPath,
		proj.LegacyWorkbookPath,
		proj.QASeq,
		proj.CreatedAt,
	)

	if err != nil {
		return mapWriteError("create project", err)
	}

	return nil
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = ? AND tenant_id = ?
	`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return proj, nil
}

// GetDefault retrieves the default project for a tenant (the first created project)
func (r *ProjectRepository) GetDefault(ctx context.Context, tenantID string) (*project.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE tenant_id = ?
		ORDER BY created_at ASC
		LIMIT 1
	`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default project: %w", err)
	}

	return proj, nil
}

// List returns all projects for a tenant with summary information
func (r *ProjectRepository) List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error) {
	query := `
		SELECT
			p.id,
			p.name,
			p.description,
			p.root_path,
			p.qa_seq,
			p.created_at,
			COUNT(q.id) as question_count,
			COUNT(CASE WHEN q.status IN ('unanswered', 'in_progress') THEN q.id END) as open_questions
		FROM projects p
		LEFT JOIN qa_records q ON q.project_id = p.id AND q.tenant_id = p.tenant_id AND q.deleted = 0
		WHERE p.tenant_id = ?
		GROUP BY p.id, p.name, p.description, p.root_path, p.qa_seq, p.created_at
		ORDER BY p.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var summaries []project.ProjectSummary
	for rows.Next() {
		var summary project.ProjectSummary
		err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Description,
			&summary.RootPath,
			&summary.QASeq,
			&summary.CreatedAt,
			&summary.QuestionCount,
			&summary.OpenQuestions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return summaries, nil
}

// UpdatePaths sets the root folder and legacy workbook path of a project
func (r *ProjectRepository) UpdatePaths(ctx context.Context, tenantID, id, rootPath, legacyWorkbookPath string) error {
	query := `
		UPDATE projects
		SET root_path = ?, legacy_workbook_path = ?
		WHERE id = ? AND tenant_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, rootPath, legacyWorkbookPath, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update project paths: %w", err)
	}
	return requireRow(result)
}

// NextQASequence atomically increments the project's question counter and
// returns the new value. Deleting questions never decrements it.
func (r *ProjectRepository) NextQASequence(ctx context.Context, tenantID, projectID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE projects
		SET qa_seq = qa_seq + 1
		WHERE id = ? AND tenant_id = ?
	`

	result, err := tx.ExecContext(ctx, updateQuery, projectID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return 0, repository.ErrNotFound
	}

	selectQuery := `
		SELECT qa_seq
		FROM projects
		WHERE id = ? AND tenant_id = ?
	`

	var seq int64
	err = tx.QueryRowContext(ctx, selectQuery, projectID, tenantID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to get new sequence: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return seq, nil
}

// GetProjectMetadata returns the paths the register engine places the workbook by
func (r *ProjectRepository) GetProjectMetadata(ctx context.Context, key project.Key) (project.Metadata, error) {
	proj, err := r.Get(ctx, key.TenantID, key.ProjectID)
	if err != nil {
		return project.Metadata{}, err
	}
	return project.Metadata{
		Name:               proj.Name,
		RootPath:           proj.RootPath,
		LegacyWorkbookPath: proj.LegacyWorkbookPath,
	}, nil
}

// SetLegacyWorkbookPath records a workbook path awaiting a move to the canonical location
func (r *ProjectRepository) SetLegacyWorkbookPath(ctx context.Context, key project.Key, path string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET legacy_workbook_path = ? WHERE id = ? AND tenant_id = ?`,
		path, key.ProjectID, key.TenantID)
	if err != nil {
		return fmt.Errorf("failed to set legacy workbook path: %w", err)
	}
	return requireRow(result)
}

// ClearLegacyWorkbookPath forgets the legacy workbook path after a migration
func (r *ProjectRepository) ClearLegacyWorkbookPath(ctx context.Context, key project.Key) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET legacy_workbook_path = '' WHERE id = ? AND tenant_id = ?`,
		key.ProjectID, key.TenantID)
	if err != nil {
		return fmt.Errorf("failed to clear legacy workbook path: %w", err)
	}
	return requireRow(result)
}

func scanProject(row *sql.Row) (*project.Project, error) {
	var proj project.Project
	err := row.Scan(
		&proj.ID,
		&proj.TenantID,
		&proj.Name,
		&proj.Description,
		&proj.RootPath,
		&proj.LegacyWorkbookPath,
		&proj.QASeq,
		&proj.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &proj, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
