package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
	"github.com/go-chi/chi/v5"
)

const defaultKeepAlive = 15 * time.Second

// ProjectLookup checks that a project exists for a tenant.
type ProjectLookup interface {
	Get(ctx context.Context, tenantID, id string) (*project.Project, error)
}

// SyncQueue is the register sync queue as seen by the status API.
type SyncQueue interface {
	Enqueue(key project.Key, reason string)
	GetState(key project.Key) (syncqueue.Snapshot, bool)
	Subscribe(key project.Key, fn func(syncqueue.Snapshot)) func()
}

// SyncStateReader reads the persisted workbook state of a project.
type SyncStateReader interface {
	GetSyncState(ctx context.Context, key project.Key) (*register.WorkbookState, error)
}

// Options configures the HTTP server.
type Options struct {
	Projects  ProjectLookup
	Queue     SyncQueue
	SyncState SyncStateReader
	// Auth resolves the tenant of /v1 requests, see AuthMiddleware and
	// StaticTenantMiddleware.
	Auth func(http.Handler) http.Handler
	// MCP, when set, is mounted at /mcp. It authenticates on its own.
	MCP       http.Handler
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// StatusResponse is the body of the register status endpoint.
type StatusResponse struct {
	ProjectID string                  `json:"project_id"`
	Queue     syncqueue.Snapshot      `json:"queue"`
	Workbook  *register.WorkbookState `json:"workbook,omitempty"`
}

// Server wires HTTP handlers.
type Server struct {
	projects  ProjectLookup
	queue     SyncQueue
	syncState SyncStateReader
	keepAlive time.Duration
	logger    *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(opts Options) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	srv := &Server{
		projects:  opts.Projects,
		queue:     opts.Queue,
		syncState: opts.SyncState,
		keepAlive: opts.KeepAlive,
		logger:    opts.Logger,
	}

	r := chi.NewRouter()
	r.Get("/health", srv.handleHealth)
	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
	}

	r.Route("/v1/projects/{projectID}/register", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Use(ActorMiddleware)
		r.Get("/status", srv.handleStatus)
		r.Get("/events", srv.handleEvents)
		r.Post("/sync", srv.handleSync)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := s.projectKey(w, r)
	if !ok {
		return
	}

	resp := StatusResponse{ProjectID: key.ProjectID, Queue: s.snapshot(key)}
	if s.syncState != nil {
		state, err := s.syncState.GetSyncState(r.Context(), key)
		if err != nil {
			s.logger.Error("reading workbook state failed", "project", key.String(), "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "could not read workbook state")
			return
		}
		resp.Workbook = state
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	key, ok := s.projectKey(w, r)
	if !ok {
		return
	}
	reason := "manual"
	if actor, ok := ActorFromContext(r.Context()); ok {
		reason = "manual:" + actor
	}
	s.queue.Enqueue(key, reason)
	writeJSON(w, http.StatusAccepted, StatusResponse{ProjectID: key.ProjectID, Queue: s.snapshot(key)})
}

// handleEvents streams queue snapshots as Server-Sent Events until the client
// goes away. Slow clients skip intermediate snapshots but always receive the
// latest one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	key, ok := s.projectKey(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
		return
	}

	updates := newLatestSnapshot()
	unsubscribe := s.queue.Subscribe(key, updates.push)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, s.snapshot(key)); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-updates.ready:
			snap, ok := updates.take()
			if !ok {
				continue
			}
			if err := writeEvent(w, snap); err != nil {
				s.logger.Debug("event stream closed", "project", key.String(), "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// latestSnapshot holds the newest undelivered snapshot. push never blocks and
// overwrites anything the reader has not taken yet.
type latestSnapshot struct {
	mu    sync.Mutex
	snap  syncqueue.Snapshot
	set   bool
	ready chan struct{}
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{ready: make(chan struct{}, 1)}
}

func (l *latestSnapshot) push(snap syncqueue.Snapshot) {
	l.mu.Lock()
	l.snap = snap
	l.set = true
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) take() (syncqueue.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return syncqueue.Snapshot{}, false
	}
	snap := l.snap
	l.snap = syncqueue.Snapshot{}
	l.set = false
	return snap, true
}

func writeEvent(w http.ResponseWriter, snap syncqueue.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
	return err
}

func (s *Server) snapshot(key project.Key) syncqueue.Snapshot {
	if snap, ok := s.queue.GetState(key); ok {
		return snap
	}
	return syncqueue.Snapshot{Key: key, ProjectID: key.ProjectID, State: syncqueue.StateIdle}
}

func (s *Server) projectKey(w http.ResponseWriter, r *http.Request) (project.Key, bool) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok || tenantID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing tenant")
		return project.Key{}, false
	}
	projectID := chi.URLParam(r, "projectID")

	if s.projects != nil {
		if _, err := s.projects.Get(r.Context(), tenantID, projectID); err != nil {
			if errors.Is(err, project.ErrProjectNotFound) {
				writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "project not found")
				return project.Key{}, false
			}
			s.logger.Error("project lookup failed", "project", projectID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "project lookup failed")
			return project.Key{}, false
		}
	}
	return project.Key{TenantID: tenantID, ProjectID: projectID}, true
}
