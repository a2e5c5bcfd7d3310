package register

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
)

// SyncEvent describes the outcome of one sync run.
type SyncEvent struct {
	Path     string
	Rows     int
	Outcome  EnsureOutcome
	FromPath string
	Duration time.Duration
	Err      error
	Class    Class
}

// Syncer runs the full register pipeline for a project: resolve the path,
// ensure the file, read a fresh snapshot and rebuild.
type Syncer struct {
	coordinator *Coordinator
	records     RecordSource
	engine      *Engine
	recorder    ActivityRecorder
	logger      *slog.Logger
}

// NewSyncer creates a Syncer. recorder may be nil.
func NewSyncer(coordinator *Coordinator, records RecordSource, engine *Engine, recorder ActivityRecorder, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		coordinator: coordinator,
		records:     records,
		engine:      engine,
		recorder:    recorder,
		logger:      logger,
	}
}

// Run executes one sync of the project's workbook.
func (s *Syncer) Run(ctx context.Context, key project.Key) error {
	start := time.Now()
	event, err := s.run(ctx, key)
	event.Duration = time.Since(start)
	event.Err = err
	event.Class = Classify(err)

	if err != nil {
		s.logger.Debug("register sync failed", "project", key.String(), "class", event.Class, "error", err)
	} else {
		s.logger.Info("register rebuilt", "project", key.String(), "path", event.Path, "rows", event.Rows, "duration", event.Duration)
	}
	if s.recorder != nil {
		s.recorder.RecordSync(ctx, key, event)
	}
	return err
}

func (s *Syncer) run(ctx context.Context, key project.Key) (SyncEvent, error) {
	ensured, err := s.coordinator.EnsureFile(ctx, key)
	if err != nil {
		return SyncEvent{}, err
	}
	event := SyncEvent{Path: ensured.Path, Outcome: ensured.Outcome, FromPath: ensured.FromPath}

	records, err := s.records.ListActiveRecords(ctx, key)
	if err != nil {
		return event, wrapRepo("load records", "", fmt.Errorf("project %s: %w", key, err))
	}

	if _, err := s.engine.Rebuild(ctx, key, ensured.Path, records); err != nil {
		return event, err
	}
	event.Rows = len(records)
	return event, nil
}
