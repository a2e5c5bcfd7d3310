package register

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/repository"
)

const (
	DefaultFolder   = "Q&A"
	DefaultFileName = "QA-register.xlsx"
)

// Location is where a project's workbook must live.
type Location struct {
	// Folder is the canonical parent folder, FileName the workbook name inside it.
	Folder   string
	FileName string
	// LegacyPath is set when a different workbook path is on record for the
	// project. The coordinator moves it to the canonical path.
	LegacyPath string
}

// Path is the canonical workbook path.
func (l Location) Path() string {
	return path.Join(l.Folder, l.FileName)
}

// Resolver derives canonical workbook paths from project metadata.
type Resolver struct {
	projects ProjectSource
	folder   string
	fileName string
}

// NewResolver creates a resolver placing workbooks at <root>/<folder>/<fileName>.
func NewResolver(projects ProjectSource, folder, fileName string) *Resolver {
	folder = CleanPath(folder)
	if folder == "" {
		folder = DefaultFolder
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &Resolver{projects: projects, folder: folder, fileName: fileName}
}

// Resolve returns the workbook location of a project. It fails with
// ErrConfiguration when the project or its root folder is unknown.
func (r *Resolver) Resolve(ctx context.Context, key project.Key) (Location, error) {
	meta, err := r.projects.GetProjectMetadata(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Location{}, fmt.Errorf("%w: project %s not found", ErrConfiguration, key)
		}
		return Location{}, wrapRepo("load project metadata", "", err)
	}

	root := CleanPath(meta.RootPath)
	if root == "" {
		return Location{}, fmt.Errorf("%w: project %s has no root folder", ErrConfiguration, key)
	}

	loc := Location{
		Folder:   path.Join(root, r.folder),
		FileName: r.fileName,
	}
	if legacy := CleanPath(meta.LegacyWorkbookPath); legacy != "" && !strings.EqualFold(legacy, loc.Path()) {
		loc.LegacyPath = legacy
	}
	return loc, nil
}

// CleanPath normalises a repository path: forward slashes, no leading or
// trailing separator, no dot segments.
func CleanPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}
