package mcp

import (
	"context"
	"log/slog"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	Create(ctx context.Context, tenantID string, req project.CreateRequest) (*project.Project, error)
	List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error)
	Get(ctx context.Context, tenantID, id string) (*project.Project, error)
	GetDefault(ctx context.Context, tenantID string) (*project.Project, error)
	SetRootPath(ctx context.Context, tenantID, id, rootPath string) (*project.Project, error)
}

// QuestionService defines Q&A record operations needed by MCP.
type QuestionService interface {
	Create(ctx context.Context, tenantID string, req qa.CreateRequest) (*qa.Record, error)
	Update(ctx context.Context, tenantID string, req qa.UpdateRequest) (*qa.Record, error)
	Answer(ctx context.Context, tenantID string, req qa.AnswerRequest) (*qa.Record, error)
	SetStatus(ctx context.Context, tenantID, id string, status qa.Status, actor string) (*qa.Record, error)
	Delete(ctx context.Context, tenantID, id, actor string) error
	Get(ctx context.Context, tenantID, id string) (*qa.Record, error)
	List(ctx context.Context, tenantID string, opts qa.ListOptions) ([]qa.RecordRef, error)
	Search(ctx context.Context, tenantID, projectID, query string, opts qa.SearchOptions) ([]qa.SearchResult, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// SyncQueue is the register sync queue as seen by the host surface.
type SyncQueue interface {
	Enqueue(key project.Key, reason string)
	GetState(key project.Key) (syncqueue.Snapshot, bool)
}

// SyncStateReader reads the persisted workbook state of a project.
type SyncStateReader interface {
	GetSyncState(ctx context.Context, key project.Key) (*register.WorkbookState, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Projects  ProjectService
	Questions QuestionService
	Activity  ActivityService
	Queue     SyncQueue
	SyncState SyncStateReader
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      TenantResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "qaregister",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local only and always runs without auth.
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		server.AddReceivingMiddleware(noAuthMiddleware(DefaultTenant))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(actorMiddleware())
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, NewHandler(cfg.Services), cfg.Logger)

	return server
}
