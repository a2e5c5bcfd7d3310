package qa

import (
	"context"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
)

// RecordRepository provides persistence for Q&A records.
type RecordRepository interface {
	Create(ctx context.Context, tenantID string, rec *Record) error
	Get(ctx context.Context, tenantID, id string) (*Record, error)
	Update(ctx context.Context, tenantID string, rec *Record) error
	SoftDelete(ctx context.Context, tenantID, id, deletedBy string, deletedAt time.Time) error
	List(ctx context.Context, tenantID string, opts ListOptions) ([]RecordRef, error)
}

// ProjectRepository hands out sequence numbers.
type ProjectRepository interface {
	NextQASequence(ctx context.Context, tenantID, projectID string) (int64, error)
}

// ActivityRepository logs record activities.
type ActivityRepository interface {
	Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error
}

// SearchRepository performs full-text search.
type SearchRepository interface {
	Search(ctx context.Context, tenantID, projectID, query string, opts SearchOptions) ([]SearchResult, error)
}

// SyncTrigger is notified after every mutation so the project's register
// workbook gets rebuilt. Implementations must not block.
type SyncTrigger interface {
	Enqueue(key project.Key, reason string)
}
