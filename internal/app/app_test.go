package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/digitalkontroll/qaregister/internal/app"
	"github.com/digitalkontroll/qaregister/internal/config"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/graphrepo"
	"github.com/digitalkontroll/qaregister/internal/postgres"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/sqlite"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(dir, "data", "qa.db")
	cfg.Repository.Root = filepath.Join(dir, "repo")
	return cfg
}

func TestNewWiresSQLiteAndFilesystem(t *testing.T) {
	a, err := app.New(testConfig(t), nil, app.Options{})
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &sqlite.WorkbookStateRepository{}, a.SyncState)
	require.NotEmpty(t, a.InstanceID)

	proj, err := a.Projects.Create(context.Background(), "default", project.CreateRequest{Name: "Harbour", RootPath: "Harbour"})
	require.NoError(t, err)
	require.NoError(t, a.Rebuild(context.Background(), proj.Key()))

	state, err := a.SyncState.GetSyncState(context.Background(), proj.Key())
	require.NoError(t, err)
	require.Equal(t, register.FileReady, state.FileState)
	require.Equal(t, "Harbour/Q&A/QA-register.xlsx", state.CanonicalPath)
}

func TestNewWiresGraphRepository(t *testing.T) {
	cfg := testConfig(t)
	cfg.Repository.Kind = config.RepositoryGraph
	cfg.Repository.DriveID = "drive-1"

	a, err := app.New(cfg, nil, app.Options{})
	require.NoError(t, err)
	defer a.Close()
	require.IsType(t, &graphrepo.Client{}, a.Files)
}

func TestNewRejectsBadBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Repository.Kind = "ftp"
	_, err := app.New(cfg, nil, app.Options{})
	require.ErrorIs(t, err, register.ErrConfiguration)

	cfg = testConfig(t)
	cfg.Lease.Backend = config.LeasePostgres
	_, err = app.New(cfg, nil, app.Options{})
	require.ErrorIs(t, err, postgres.ErrInvalidDSN)

	cfg = testConfig(t)
	cfg.Lease.Backend = "etcd"
	_, err = app.New(cfg, nil, app.Options{})
	require.ErrorIs(t, err, register.ErrConfiguration)
}

func TestHTTPHandlerWithoutAuthUsesDefaultTenant(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enabled = false
	a, err := app.New(cfg, nil, app.Options{})
	require.NoError(t, err)
	defer a.Close()

	proj, err := a.Projects.Create(context.Background(), "default", project.CreateRequest{Name: "Harbour", RootPath: "Harbour"})
	require.NoError(t, err)

	server := httptest.NewServer(a.HTTPHandler(nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/projects/" + proj.ID + "/register/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/mcp")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := app.New(testConfig(t), nil, app.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
