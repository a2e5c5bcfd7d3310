package register

import (
	"context"
	"log/slog"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
)

// Engine regenerates whole register workbooks from record snapshots.
type Engine struct {
	files  FileRepository
	state  StateStore
	layout LayoutOptions
	logger *slog.Logger
}

// NewEngine creates a rebuild engine. state may be nil, in which case file
// metadata is not cached.
func NewEngine(files FileRepository, state StateStore, layout LayoutOptions, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{files: files, state: state, layout: layout, logger: logger}
}

// Blank renders the header-only workbook.
func (e *Engine) Blank() ([]byte, error) {
	return Render(BuildLayout(nil, e.layout))
}

// Rebuild renders records into a fresh workbook and overwrites path with it.
// It never patches the existing file.
func (e *Engine) Rebuild(ctx context.Context, key project.Key, path string, records []qa.Record) (*Metadata, error) {
	layout := BuildLayout(records, e.layout)
	content, err := Render(layout)
	if err != nil {
		return nil, &ProgrammingError{Op: "render workbook", Err: err}
	}

	meta, err := e.files.Upload(ctx, path, content, UploadOptions{Overwrite: true})
	if err != nil {
		return nil, wrapRepo("upload workbook", path, err)
	}
	e.logger.Debug("uploaded workbook", "project", key.String(), "path", path, "rows", len(layout.Rows), "bytes", len(content))

	if e.state != nil && meta != nil {
		if err := e.state.SaveFileMetadata(ctx, key, meta.ID, meta.WebURL); err != nil {
			e.logger.Warn("refresh workbook metadata failed", "project", key.String(), "error", err)
		}
	}
	return meta, nil
}
