package project_test

import (
	"context"
	"testing"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/repository"
	"github.com/digitalkontroll/qaregister/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProjectService_GetDefaultCreates(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	repo := &mocks.ProjectRepository{}
	repo.On("GetDefault", ctx, tenantID).Return((*project.Project)(nil), repository.ErrNotFound)
	repo.On("Create", ctx, tenantID, mock.Anything).Return(nil)

	svc := project.NewService(repo, nil)
	proj, err := svc.GetDefault(ctx, tenantID)
	require.NoError(t, err)
	require.NotEmpty(t, proj.ID)
	require.Equal(t, "Default Project", proj.Name)
}

func TestProjectService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	repo := &mocks.ProjectRepository{}
	svc := project.NewService(repo, nil)
	_, err := svc.Create(ctx, tenantID, project.CreateRequest{Name: ""})
	require.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestProjectService_CreateTrimsPaths(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	repo := &mocks.ProjectRepository{}
	repo.On("Create", ctx, tenantID, mock.MatchedBy(func(p *project.Project) bool {
		return p.RootPath == "Projects/P1" && p.LegacyWorkbookPath == "Old/register.xlsx"
	})).Return(nil)

	svc := project.NewService(repo, nil)
	proj, err := svc.Create(ctx, tenantID, project.CreateRequest{
		Name:               "Site A",
		RootPath:           "  Projects/P1 ",
		LegacyWorkbookPath: " Old/register.xlsx",
	})
	require.NoError(t, err)
	require.Equal(t, project.Key{TenantID: tenantID, ProjectID: proj.ID}, proj.Key())
	repo.AssertExpectations(t)
}

func TestProjectService_SetRootPath(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	repo := &mocks.ProjectRepository{}
	repo.On("Get", ctx, tenantID, "p1").Return(&project.Project{
		ID:                 "p1",
		TenantID:           tenantID,
		RootPath:           "Old",
		LegacyWorkbookPath: "legacy.xlsx",
	}, nil)
	repo.On("UpdatePaths", ctx, tenantID, "p1", "New/Root", "legacy.xlsx").Return(nil)

	svc := project.NewService(repo, nil)
	proj, err := svc.SetRootPath(ctx, tenantID, "p1", " New/Root ")
	require.NoError(t, err)
	require.Equal(t, "New/Root", proj.RootPath)
	repo.AssertExpectations(t)
}

func TestProjectService_SetRootPathNotFound(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant1"

	repo := &mocks.ProjectRepository{}
	repo.On("Get", ctx, tenantID, "missing").Return((*project.Project)(nil), repository.ErrNotFound)

	svc := project.NewService(repo, nil)
	_, err := svc.SetRootPath(ctx, tenantID, "missing", "Root")
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}
