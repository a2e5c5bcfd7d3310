package register

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/google/uuid"
)

// DefaultLeaseTTL bounds how long a creation claim blocks other callers.
const DefaultLeaseTTL = 2 * time.Minute

// EnsureOutcome says how EnsureFile obtained the workbook.
type EnsureOutcome string

const (
	EnsureExisting   EnsureOutcome = "existing"
	EnsureCreated    EnsureOutcome = "created"
	EnsureMigrated   EnsureOutcome = "migrated"
	EnsureInProgress EnsureOutcome = "in_progress"
)

// Ensured is the result of EnsureFile.
type Ensured struct {
	Path     string
	Outcome  EnsureOutcome
	FromPath string
}

// Coordinator makes sure each project's workbook exists exactly once. Concurrent
// first creations are arbitrated through a lease in the StateStore.
type Coordinator struct {
	resolver *Resolver
	projects ProjectSource
	files    FileRepository
	state    StateStore
	blank    func() ([]byte, error)
	leaseTTL time.Duration
	owner    string
	now      func() time.Time
	logger   *slog.Logger
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	LeaseTTL time.Duration
	// Owner is recorded as the lease holder, typically the instance id.
	Owner string
	// Blank renders the header-only workbook used for first creation.
	Blank func() ([]byte, error)
	Now   func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(resolver *Resolver, projects ProjectSource, files FileRepository, state StateStore, opts CoordinatorOptions, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Blank == nil {
		opts.Blank = func() ([]byte, error) {
			return Render(BuildLayout(nil, LayoutOptions{}))
		}
	}
	return &Coordinator{
		resolver: resolver,
		projects: projects,
		files:    files,
		state:    state,
		blank:    opts.Blank,
		leaseTTL: opts.LeaseTTL,
		owner:    opts.Owner,
		now:      opts.Now,
		logger:   logger,
	}
}

// EnsureFile resolves the canonical workbook path of a project and makes sure a
// file exists there, migrating a legacy workbook when one is on record.
func (c *Coordinator) EnsureFile(ctx context.Context, key project.Key) (Ensured, error) {
	loc, err := c.resolver.Resolve(ctx, key)
	if err != nil {
		return Ensured{}, err
	}
	canonical := loc.Path()

	st, err := c.state.GetSyncState(ctx, key)
	if err != nil {
		return Ensured{}, wrapRepo("load sync state", "", err)
	}
	if st.CanonicalPath != canonical {
		// A moved root leaves the workbook at the previously cached path. It is
		// recorded as the legacy path before the cache changes so a failed move
		// is retried from the project metadata.
		if previous := CleanPath(st.CanonicalPath); previous != "" && loc.LegacyPath == "" && !strings.EqualFold(previous, canonical) {
			if err := c.projects.SetLegacyWorkbookPath(ctx, key, previous); err != nil {
				return Ensured{}, wrapRepo("record previous workbook path", previous, err)
			}
			loc.LegacyPath = previous
			c.logger.Info("workbook location changed", "project", key.String(), "from", previous, "to", canonical)
		}
		if err := c.state.SaveCanonicalPath(ctx, key, canonical); err != nil {
			return Ensured{}, wrapRepo("save canonical path", canonical, err)
		}
	}

	meta, err := c.files.GetByPath(ctx, canonical)
	if err != nil {
		return Ensured{}, wrapRepo("lookup workbook", canonical, err)
	}
	if meta != nil {
		if st.FileState != FileReady {
			if err := c.state.MarkReady(ctx, key, ""); err != nil {
				c.logger.Warn("mark workbook ready failed", "project", key.String(), "error", err)
			}
		}
		return Ensured{Path: canonical, Outcome: EnsureExisting}, nil
	}

	lease := Lease{Token: uuid.NewString(), Owner: c.owner, StartedAt: c.now()}
	claim, err := c.state.ClaimCreation(ctx, key, lease, c.leaseTTL)
	if err != nil {
		return Ensured{}, wrapRepo("claim workbook creation", canonical, err)
	}
	switch claim {
	case ClaimReady:
		// The full rebuild that follows uploads the file if it went missing.
		return Ensured{Path: canonical, Outcome: EnsureExisting}, nil
	case ClaimInProgress:
		c.logger.Debug("workbook creation in progress elsewhere", "project", key.String(), "path", canonical)
		return Ensured{Path: canonical, Outcome: EnsureInProgress}, nil
	}

	ensured, err := c.createOrMigrate(ctx, key, loc, lease.Token)
	if err != nil {
		if markErr := c.state.MarkFailed(ctx, key, lease.Token, err.Error()); markErr != nil {
			c.logger.Warn("release creation lease failed", "project", key.String(), "error", markErr)
		}
		return Ensured{}, err
	}
	if err := c.state.MarkReady(ctx, key, lease.Token); err != nil {
		return Ensured{}, wrapRepo("mark workbook ready", canonical, err)
	}
	return ensured, nil
}

func (c *Coordinator) createOrMigrate(ctx context.Context, key project.Key, loc Location, token string) (Ensured, error) {
	canonical := loc.Path()

	if err := c.files.EnsureFolderPath(ctx, loc.Folder); err != nil {
		return Ensured{}, wrapRepo("ensure folder", loc.Folder, err)
	}

	if loc.LegacyPath != "" {
		legacy, err := c.files.GetByPath(ctx, loc.LegacyPath)
		if err != nil {
			return Ensured{}, wrapRepo("lookup legacy workbook", loc.LegacyPath, err)
		}
		if legacy != nil {
			opts := RenameOptions{}
			if !sameFolder(loc.LegacyPath, loc.Folder) {
				opts.ParentPath = loc.Folder
			}
			moved, err := c.files.RenameByID(ctx, legacy.ID, loc.FileName, opts)
			if err != nil {
				return Ensured{}, wrapRepo("move legacy workbook", loc.LegacyPath, err)
			}
			c.logger.Info("migrated legacy workbook", "project", key.String(), "from", loc.LegacyPath, "to", canonical)
			if err := c.projects.ClearLegacyWorkbookPath(ctx, key); err != nil {
				c.logger.Warn("clear legacy workbook path failed", "project", key.String(), "error", err)
			}
			c.saveMetadata(ctx, key, moved)
			return Ensured{Path: canonical, Outcome: EnsureMigrated, FromPath: loc.LegacyPath}, nil
		}
	}

	content, err := c.blank()
	if err != nil {
		return Ensured{}, &ProgrammingError{Op: "render blank workbook", Err: err}
	}
	meta, err := c.files.Upload(ctx, canonical, content, UploadOptions{Overwrite: false})
	if errors.Is(err, ErrAlreadyExists) {
		c.logger.Debug("workbook appeared during creation", "project", key.String(), "path", canonical)
		return Ensured{Path: canonical, Outcome: EnsureExisting}, nil
	}
	if err != nil {
		return Ensured{}, wrapRepo("create workbook", canonical, err)
	}
	c.logger.Info("created workbook", "project", key.String(), "path", canonical, "lease", token)
	c.saveMetadata(ctx, key, meta)
	return Ensured{Path: canonical, Outcome: EnsureCreated}, nil
}

func (c *Coordinator) saveMetadata(ctx context.Context, key project.Key, meta *Metadata) {
	if meta == nil {
		return
	}
	if err := c.state.SaveFileMetadata(ctx, key, meta.ID, meta.WebURL); err != nil {
		c.logger.Warn("save workbook metadata failed", "project", key.String(), "error", err)
	}
}

func sameFolder(filePath, folder string) bool {
	return CleanPath(path.Dir(CleanPath(filePath))) == CleanPath(folder)
}
