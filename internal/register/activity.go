package register

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
)

const syncActor = "register-sync"

// ActivityLog writes sync outcomes to the activity log. Locked attempts are
// skipped since the queue retries them.
type ActivityLog struct {
	repo   activity.Repository
	logger *slog.Logger
}

// NewActivityLog creates an ActivityRecorder backed by repo.
func NewActivityLog(repo activity.Repository, logger *slog.Logger) *ActivityLog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ActivityLog{repo: repo, logger: logger}
}

// RecordSync implements ActivityRecorder.
func (a *ActivityLog) RecordSync(ctx context.Context, key project.Key, event SyncEvent) {
	var entries []activity.ActivityEntry
	switch {
	case event.Err != nil && event.Class == ClassResourceLocked:
		return
	case event.Err != nil:
		entries = append(entries, a.entry(key, activity.TypeRegisterSyncFailed,
			fmt.Sprintf("register sync failed (%s)", event.Class),
			map[string]any{"error": event.Err.Error(), "class": event.Class, "path": event.Path}))
	default:
		if event.Outcome == EnsureMigrated {
			entries = append(entries, a.entry(key, activity.TypeRegisterMigrated,
				fmt.Sprintf("moved register from %s", event.FromPath),
				map[string]any{"from": event.FromPath, "to": event.Path}))
		}
		entries = append(entries, a.entry(key, activity.TypeRegisterRebuilt,
			fmt.Sprintf("rebuilt register with %d questions", event.Rows),
			map[string]any{"path": event.Path, "rows": event.Rows, "duration_ms": event.Duration.Milliseconds()}))
	}

	for i := range entries {
		if err := a.repo.Log(ctx, key.TenantID, &entries[i]); err != nil {
			a.logger.Warn("activity log failed", "project", key.String(), "type", entries[i].ActivityType, "error", err)
		}
	}
}

func (a *ActivityLog) entry(key project.Key, kind activity.ActivityType, summary string, details map[string]any) activity.ActivityEntry {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = nil
	}
	return activity.ActivityEntry{
		ProjectID:    key.ProjectID,
		ActivityType: kind,
		Summary:      summary,
		Details:      string(raw),
		Actor:        syncActor,
	}
}
