// Package testserver starts a complete qaregister instance for end-to-end tests.
package testserver

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/digitalkontroll/qaregister/internal/app"
	"github.com/digitalkontroll/qaregister/internal/config"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type TestServer struct {
	Server   *httptest.Server
	App      *app.App
	Root     string
	Token    string
	TenantID string
}

// Option adjusts the configuration before the instance starts.
type Option func(*config.Config, *app.Options)

// WithFiles replaces the filesystem repository.
func WithFiles(files register.FileRepository) Option {
	return func(_ *config.Config, opts *app.Options) { opts.Files = files }
}

// WithAuthDisabled runs every request as the default tenant.
func WithAuthDisabled() Option {
	return func(cfg *config.Config, _ *app.Options) { cfg.Auth.Enabled = false }
}

// WithSync sets the retry schedule of the sync queue.
func WithSync(backoff []time.Duration, maxRetries int) Option {
	return func(cfg *config.Config, _ *app.Options) {
		cfg.Sync.Backoff = nil
		for _, d := range backoff {
			cfg.Sync.Backoff = append(cfg.Sync.Backoff, config.Duration(d))
		}
		cfg.Sync.MaxRetries = maxRetries
	}
}

func New(t *testing.T, token, tenantID string, options ...Option) *TestServer {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(dir, "qaregister.db")
	cfg.Repository.Root = filepath.Join(dir, "repo")
	cfg.Auth.Enabled = true
	cfg.Sync.Backoff = []config.Duration{
		config.Duration(10 * time.Millisecond),
		config.Duration(20 * time.Millisecond),
	}
	cfg.Sync.MaxRetries = 3

	var appOpts app.Options
	for _, opt := range options {
		opt(&cfg, &appOpts)
	}

	a, err := app.New(cfg, nil, appOpts)
	require.NoError(t, err)
	server := httptest.NewServer(a.HTTPHandler(a.MCPServer("test")))

	ts := &TestServer{
		Server:   server,
		App:      a,
		Root:     cfg.Repository.Root,
		Token:    token,
		TenantID: tenantID,
	}
	if token != "" {
		require.NoError(t, ts.AddAPIKey(t, token, tenantID))
	}

	t.Cleanup(func() {
		server.Close()
		_ = a.Close()
	})
	return ts
}

func (ts *TestServer) AddAPIKey(t *testing.T, token, tenantID string) error {
	t.Helper()
	return ts.App.APIKeys.Create(t.Context(), tenantID, token, "test")
}

// WorkbookPath returns the absolute path of a repository-relative path.
func (ts *TestServer) WorkbookPath(rel string) string {
	return filepath.Join(ts.Root, filepath.FromSlash(rel))
}

// ReadSheet returns all rows of a sheet in the workbook at rel.
func (ts *TestServer) ReadSheet(t *testing.T, rel, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(ts.WorkbookPath(rel))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

// SheetNames returns the sheet names of the workbook at rel.
func (ts *TestServer) SheetNames(t *testing.T, rel string) []string {
	t.Helper()
	f, err := excelize.OpenFile(ts.WorkbookPath(rel))
	require.NoError(t, err)
	defer f.Close()
	return f.GetSheetList()
}
