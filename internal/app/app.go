// Package app wires the register engine, the domain services and the host
// surfaces from a config.Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digitalkontroll/qaregister/internal/config"
	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/filerepo"
	"github.com/digitalkontroll/qaregister/internal/graphrepo"
	"github.com/digitalkontroll/qaregister/internal/mcp"
	"github.com/digitalkontroll/qaregister/internal/postgres"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/sqlite"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
	"github.com/digitalkontroll/qaregister/internal/transport"
	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// App holds every long-lived component of a running instance.
type App struct {
	Config config.Config

	DB        *sqlite.DB
	APIKeys   *sqlite.APIKeyRepository
	Records   *sqlite.QARecordRepository
	Projects  *project.Service
	Questions *qa.Service
	Activity  *activity.Service

	Files     register.FileRepository
	SyncState register.StateStore
	Syncer    *register.Syncer
	Queue     *syncqueue.Registry

	// InstanceID identifies this process as a lease owner.
	InstanceID string

	logger  *slog.Logger
	closers []func() error
}

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	// Files replaces the repository built from cfg.Repository.
	Files register.FileRepository
	// Queue adjusts the sync queue options derived from cfg.Sync.
	Queue func(*syncqueue.Options)
}

// New builds an App. The caller must Close it.
func New(cfg config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, InstanceID: uuid.NewString(), logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := db.RunMigrations(); err != nil {
		return nil, err
	}

	projectRepo := sqlite.NewProjectRepository(db)
	recordRepo := sqlite.NewQARecordRepository(db)
	activityRepo := sqlite.NewActivityRepository(db)
	searchRepo := sqlite.NewSearchRepository(db)
	a.APIKeys = sqlite.NewAPIKeyRepository(db)
	a.Records = recordRepo

	a.Files = opts.Files
	if a.Files == nil {
		if a.Files, err = newFileRepository(cfg.Repository, logger); err != nil {
			return nil, err
		}
	}
	if a.SyncState, err = a.newStateStore(cfg.Lease, db); err != nil {
		return nil, err
	}

	layout := register.LayoutOptions{SheetName: cfg.Register.SheetName}
	engine := register.NewEngine(a.Files, a.SyncState, layout, logger.With("component", "engine"))
	resolver := register.NewResolver(projectRepo, cfg.Register.Folder, cfg.Register.FileName)
	coordinator := register.NewCoordinator(resolver, projectRepo, a.Files, a.SyncState, register.CoordinatorOptions{
		LeaseTTL: cfg.Register.LeaseTTL.Std(),
		Owner:    a.InstanceID,
		Blank:    engine.Blank,
	}, logger.With("component", "coordinator"))
	recorder := register.NewActivityLog(activityRepo, logger)
	a.Syncer = register.NewSyncer(coordinator, recordRepo, engine, recorder, logger.With("component", "syncer"))

	queueOpts := syncqueue.DefaultOptions()
	if backoff := config.Durations(cfg.Sync.Backoff); len(backoff) > 0 {
		queueOpts.Backoff = backoff
	}
	queueOpts.MaxRetries = cfg.Sync.MaxRetries
	queueOpts.ResetOnEnqueue = cfg.Sync.ResetOnEnqueue
	if opts.Queue != nil {
		opts.Queue(&queueOpts)
	}
	a.Queue = syncqueue.NewRegistry(a.Syncer, queueOpts, logger.With("component", "syncqueue"))
	a.closers = append(a.closers, func() error { a.Queue.Close(); return nil })

	numbers := qa.NumberFormat{Prefix: cfg.Register.NumberPrefix, Width: cfg.Register.NumberWidth}
	a.Projects = project.NewService(projectRepo, logger)
	a.Activity = activity.NewService(activityRepo, logger)
	a.Questions = qa.NewService(recordRepo, projectRepo, activityRepo, searchRepo, a.Queue, numbers, logger)

	return a, nil
}

// Rebuild runs the sync pipeline for one project synchronously, bypassing the queue.
func (a *App) Rebuild(ctx context.Context, key project.Key) error {
	return a.Syncer.Run(ctx, key)
}

// MCPServer builds the MCP server over the app's services.
func (a *App) MCPServer(version string) *sdkmcp.Server {
	return mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Projects:  a.Projects,
			Questions: a.Questions,
			Activity:  a.Activity,
			Queue:     a.Queue,
			SyncState: a.SyncState,
		},
		Resolver:      a.APIKeys,
		AuthEnabled:   a.Config.Auth.Enabled,
		TransportMode: a.Config.Transport.Mode,
		Version:       version,
		Logger:        a.logger.With("component", "mcp"),
	})
}

// HTTPHandler serves the status API and, when mcpServer is non-nil, MCP over
// streamable HTTP at /mcp.
func (a *App) HTTPHandler(mcpServer *sdkmcp.Server) http.Handler {
	auth := transport.StaticTenantMiddleware(mcp.DefaultTenant)
	if a.Config.Auth.Enabled {
		auth = transport.AuthMiddleware(a.APIKeys)
	}

	var mcpHandler http.Handler
	if mcpServer != nil {
		mcpHandler = sdkmcp.NewStreamableHTTPHandler(
			func(*http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{SessionTimeout: 30 * time.Minute},
		)
	}

	return transport.NewServer(transport.Options{
		Projects:  a.Projects,
		Queue:     a.Queue,
		SyncState: a.SyncState,
		Auth:      auth,
		MCP:       mcpHandler,
		Logger:    a.logger.With("component", "http"),
	})
}

// Close stops the queue and releases stores in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newStateStore(cfg config.LeaseConfig, db *sqlite.DB) (register.StateStore, error) {
	switch cfg.Backend {
	case config.LeasePostgres:
		store, err := postgres.NewStateStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.LeaseSQLite, "":
		return sqlite.NewWorkbookStateRepository(db), nil
	default:
		return nil, fmt.Errorf("%w: unknown lease backend %q", register.ErrConfiguration, cfg.Backend)
	}
}

func newFileRepository(cfg config.RepositoryConfig, logger *slog.Logger) (register.FileRepository, error) {
	switch cfg.Kind {
	case config.RepositoryGraph:
		return graphrepo.New(graphrepo.Options{
			BaseURL: cfg.BaseURL,
			DriveID: cfg.DriveID,
			Token:   cfg.Token,
			Timeout: cfg.Timeout.Std(),
		}, logger.With("component", "graphrepo"))
	case config.RepositoryFilesystem, "":
		return filerepo.New(cfg.Root, logger.With("component", "filerepo"))
	default:
		return nil, fmt.Errorf("%w: unknown repository kind %q", register.ErrConfiguration, cfg.Kind)
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
