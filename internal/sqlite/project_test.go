package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/repository"
	"github.com/stretchr/testify/require"
)

func newProject(id, name string) *project.Project {
	return &project.Project{
		ID:          id,
		TenantID:    "tenant1",
		Name:        name,
		Description: "A test project",
		RootPath:    "Projects/" + name,
		CreatedAt:   time.Now(),
	}
}

func TestProjectRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	proj := newProject("p1", "Site A")
	proj.LegacyWorkbookPath = "Old/register.xlsx"
	require.NoError(t, repo.Create(ctx, "tenant1", proj))

	retrieved, err := repo.Get(ctx, "tenant1", "p1")
	require.NoError(t, err)
	require.Equal(t, proj.Name, retrieved.Name)
	require.Equal(t, "Projects/Site A", retrieved.RootPath)
	require.Equal(t, "Old/register.xlsx", retrieved.LegacyWorkbookPath)
	require.Equal(t, int64(0), retrieved.QASeq)

	_, err = repo.Get(ctx, "tenant1", "nonexistent")
	require.Equal(t, repository.ErrNotFound, err)

	err = repo.Create(ctx, "tenant1", proj)
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestProjectRepository_TenantIsolation(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "Tenant 1 Project")))

	// Tenant 2 should not be able to see tenant 1's project
	_, err := repo.Get(ctx, "tenant2", "p1")
	require.Equal(t, repository.ErrNotFound, err)

	_, err = repo.NextQASequence(ctx, "tenant2", "p1")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestProjectRepository_GetDefault(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	_, err := repo.GetDefault(ctx, "tenant1")
	require.Equal(t, repository.ErrNotFound, err)

	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "First")))
	time.Sleep(10 * time.Millisecond) // Ensure different timestamps
	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p2", "Second")))

	defaultProj, err := repo.GetDefault(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, "p1", defaultProj.ID)
}

func TestProjectRepository_ListCountsLiveQuestions(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	records := NewQARecordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "Project 1")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p2", "Project 2")))

	open := newQARecord("r1", "p2", 1, "Open", "q")
	done := newQARecord("r2", "p2", 2, "Done", "q")
	done.Status = qa.StatusDone
	gone := newQARecord("r3", "p2", 3, "Gone", "q")
	for _, rec := range []*qa.Record{open, done, gone} {
		require.NoError(t, records.Create(ctx, "tenant1", rec))
	}
	require.NoError(t, records.SoftDelete(ctx, "tenant1", "r3", "alice", time.Now()))

	summaries, err := repo.List(ctx, "tenant1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Should be ordered by created_at DESC (newest first)
	require.Equal(t, "p2", summaries[0].ID)
	require.Equal(t, "p1", summaries[1].ID)
	require.Equal(t, 2, summaries[0].QuestionCount)
	require.Equal(t, 1, summaries[0].OpenQuestions)
	require.Equal(t, 0, summaries[1].QuestionCount)
}

func TestProjectRepository_NextQASequence(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "Test Project")))

	for i := 1; i <= 3; i++ {
		seq, err := repo.NextQASequence(ctx, "tenant1", "p1")
		require.NoError(t, err)
		require.Equal(t, int64(i), seq)
	}

	retrieved, err := repo.Get(ctx, "tenant1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(3), retrieved.QASeq)

	_, err = repo.NextQASequence(ctx, "tenant1", "nonexistent")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestProjectRepository_NextQASequenceConcurrent(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "Test Project")))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := repo.NextQASequence(ctx, "tenant1", "p1")
			require.NoError(t, err)
			mu.Lock()
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers, "every caller gets a distinct number")
	for i := int64(1); i <= workers; i++ {
		require.True(t, seen[i])
	}
}

func TestProjectRepository_PathsAndMetadata(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, "tenant1", newProject("p1", "Site")))

	require.NoError(t, repo.UpdatePaths(ctx, "tenant1", "p1", "Sites/Site", "Archive/qa.xlsx"))
	key := project.Key{TenantID: "tenant1", ProjectID: "p1"}

	meta, err := repo.GetProjectMetadata(ctx, key)
	require.NoError(t, err)
	require.Equal(t, project.Metadata{Name: "Site", RootPath: "Sites/Site", LegacyWorkbookPath: "Archive/qa.xlsx"}, meta)

	require.NoError(t, repo.SetLegacyWorkbookPath(ctx, key, "Sites/Old/Q&A/QA-register.xlsx"))
	meta, err = repo.GetProjectMetadata(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "Sites/Old/Q&A/QA-register.xlsx", meta.LegacyWorkbookPath)

	require.NoError(t, repo.ClearLegacyWorkbookPath(ctx, key))
	meta, err = repo.GetProjectMetadata(ctx, key)
	require.NoError(t, err)
	require.Empty(t, meta.LegacyWorkbookPath)

	err = repo.UpdatePaths(ctx, "tenant1", "missing", "x", "")
	require.Equal(t, repository.ErrNotFound, err)
	err = repo.SetLegacyWorkbookPath(ctx, project.Key{TenantID: "tenant1", ProjectID: "missing"}, "x.xlsx")
	require.Equal(t, repository.ErrNotFound, err)
	_, err = repo.GetProjectMetadata(ctx, project.Key{TenantID: "tenant1", ProjectID: "missing"})
	require.Equal(t, repository.ErrNotFound, err)
}
