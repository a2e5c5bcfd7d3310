package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalkontroll/qaregister/internal/domain/qa"
)

// SearchRepository implements qa.SearchRepository for SQLite
type SearchRepository struct {
	db *DB
}

// NewSearchRepository creates a new SearchRepository
func NewSearchRepository(db *DB) *SearchRepository {
	return &SearchRepository{db: db}
}

// Search performs a full-text search over the live questions of a project
func (r *SearchRepository) Search(ctx context.Context, tenantID, projectID, query string, opts qa.SearchOptions) ([]qa.SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	baseQuery := `
		SELECT
			q.id, q.sequence_number, q.formatted_number, q.title, q.category, q.status,
			bm25(qa_records_fts) as rank,
			snippet(qa_records_fts, 3, '[', ']', '...', 12) as snippet
		FROM qa_records_fts
		JOIN qa_records q ON q.rowid = qa_records_fts.rowid
		WHERE q.tenant_id = ? AND q.project_id = ? AND q.deleted = 0 AND qa_records_fts MATCH ?
	`

	args := []interface{}{tenantID, projectID, match}

	if len(opts.Statuses) > 0 {
		baseQuery += " AND " + statusCondition("q.status", opts.Statuses, &args)
	}

	baseQuery += " ORDER BY rank, q.sequence_number"

	if opts.Limit > 0 {
		baseQuery += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			baseQuery += " LIMIT -1"
		}
		baseQuery += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search records: %w", err)
	}
	defer rows.Close()

	var results []qa.SearchResult
	for rows.Next() {
		var result qa.SearchResult
		var status string
		err := rows.Scan(
			&result.Record.ID,
			&result.Record.SequenceNumber,
			&result.Record.FormattedNumber,
			&result.Record.Title,
			&result.Record.Category,
			&status,
			&result.Rank,
			&result.Snippet,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		result.Record.Status = qa.NormalizeStatus(status)
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// ftsQuery quotes every term so punctuation in user input is matched
// literally. Terms are combined with AND.
func ftsQuery(raw string) string {
	terms := strings.Fields(raw)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
