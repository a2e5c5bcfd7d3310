package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeQuestionCreated       ActivityType = "question_created"
	TypeQuestionUpdated       ActivityType = "question_updated"
	TypeQuestionAnswered      ActivityType = "question_answered"
	TypeQuestionStatusChanged ActivityType = "question_status_changed"
	TypeQuestionDeleted       ActivityType = "question_deleted"
	TypeRegisterRebuilt       ActivityType = "register_rebuilt"
	TypeRegisterMigrated      ActivityType = "register_migrated"
	TypeRegisterSyncFailed    ActivityType = "register_sync_failed"
)

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	TenantID     string       `json:"tenant_id"`
	ProjectID    string       `json:"project_id"`
	RecordID     *string      `json:"record_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	Actor        string       `json:"actor,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
