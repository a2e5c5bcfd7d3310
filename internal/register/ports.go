package register

import (
	"context"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
)

// Metadata describes an item in the external file repository.
type Metadata struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	WebURL     string    `json:"web_url,omitempty"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// UploadOptions controls Upload. Without Overwrite an existing file makes
// the upload fail with ErrAlreadyExists.
type UploadOptions struct {
	Overwrite bool
}

// RenameOptions controls RenameByID. A non-empty ParentPath moves the item.
type RenameOptions struct {
	ParentPath string
}

// FileRepository is the external store hosting register workbooks. Errors must
// wrap ErrResourceLocked, ErrNotFound or ErrAlreadyExists where they apply.
type FileRepository interface {
	// GetByPath returns nil metadata and a nil error when nothing exists at path.
	GetByPath(ctx context.Context, path string) (*Metadata, error)
	Upload(ctx context.Context, path string, content []byte, opts UploadOptions) (*Metadata, error)
	RenameByID(ctx context.Context, id, newName string, opts RenameOptions) (*Metadata, error)
	EnsureFolderPath(ctx context.Context, path string) error
}

// ProjectSource exposes the project metadata the resolver needs.
type ProjectSource interface {
	GetProjectMetadata(ctx context.Context, key project.Key) (project.Metadata, error)
	SetLegacyWorkbookPath(ctx context.Context, key project.Key, path string) error
	ClearLegacyWorkbookPath(ctx context.Context, key project.Key) error
}

// RecordSource returns the live records of a project ordered by sequence number.
type RecordSource interface {
	ListActiveRecords(ctx context.Context, key project.Key) ([]qa.Record, error)
}

// FileState is the lifecycle of a project's workbook file.
type FileState string

const (
	FileAbsent   FileState = "absent"
	FileCreating FileState = "creating"
	FileReady    FileState = "ready"
	FileError    FileState = "error"
)

// WorkbookState is the persisted sync state of one project's workbook.
type WorkbookState struct {
	Key            project.Key `json:"-"`
	CanonicalPath  string      `json:"canonical_path,omitempty"`
	FileState      FileState   `json:"file_state"`
	LeaseToken     string      `json:"-"`
	LeaseStartedAt time.Time   `json:"lease_started_at,omitempty"`
	LeaseStartedBy string      `json:"lease_started_by,omitempty"`
	RemoteID       string      `json:"remote_id,omitempty"`
	RemoteLink     string      `json:"remote_link,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// LeaseExpired reports whether a creating lease started before now-ttl.
func (s *WorkbookState) LeaseExpired(now time.Time, ttl time.Duration) bool {
	return s.LeaseStartedAt.IsZero() || !now.Before(s.LeaseStartedAt.Add(ttl))
}

// Lease is a creation claim written by ClaimCreation.
type Lease struct {
	Token     string
	Owner     string
	StartedAt time.Time
}

// ClaimOutcome is the result of a creation claim.
type ClaimOutcome string

const (
	// ClaimAcquired means the caller owns the lease and must create the file.
	ClaimAcquired ClaimOutcome = "acquired"
	// ClaimInProgress means another caller holds a live lease.
	ClaimInProgress ClaimOutcome = "in_progress"
	// ClaimReady means the file was already marked ready.
	ClaimReady ClaimOutcome = "ready"
)

// StateStore persists WorkbookState. Implementations must make ClaimCreation
// a compare-and-set so that only one concurrent caller acquires a lease.
type StateStore interface {
	// GetSyncState returns an absent state when nothing is stored for key.
	GetSyncState(ctx context.Context, key project.Key) (*WorkbookState, error)
	// SaveCanonicalPath caches path. Replacing a different cached path resets
	// the file state to absent and drops any lease.
	SaveCanonicalPath(ctx context.Context, key project.Key, path string) error
	ClaimCreation(ctx context.Context, key project.Key, lease Lease, ttl time.Duration) (ClaimOutcome, error)
	// MarkReady with an empty token marks the file ready regardless of the lease.
	MarkReady(ctx context.Context, key project.Key, token string) error
	MarkFailed(ctx context.Context, key project.Key, token, message string) error
	SaveFileMetadata(ctx context.Context, key project.Key, remoteID, remoteLink string) error
}

// ActivityRecorder receives register sync outcomes for the activity log.
type ActivityRecorder interface {
	RecordSync(ctx context.Context, key project.Key, event SyncEvent)
}
