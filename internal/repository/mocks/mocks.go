package mocks

import (
	"context"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for project.Repository and qa.ProjectRepository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, tenantID string, proj *project.Project) error {
	args := m.Called(ctx, tenantID, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	args := m.Called(ctx, tenantID, id)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) GetDefault(ctx context.Context, tenantID string) (*project.Project, error) {
	args := m.Called(ctx, tenantID)
	if proj, ok := args.Get(0).(*project.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error) {
	args := m.Called(ctx, tenantID)
	if list, ok := args.Get(0).([]project.ProjectSummary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) UpdatePaths(ctx context.Context, tenantID, id, rootPath, legacyWorkbookPath string) error {
	args := m.Called(ctx, tenantID, id, rootPath, legacyWorkbookPath)
	return args.Error(0)
}

func (m *ProjectRepository) NextQASequence(ctx context.Context, tenantID, projectID string) (int64, error) {
	args := m.Called(ctx, tenantID, projectID)
	return args.Get(0).(int64), args.Error(1)
}

// QARecordRepository is a mock for qa.RecordRepository.
type QARecordRepository struct {
	mock.Mock
}

func (m *QARecordRepository) Create(ctx context.Context, tenantID string, rec *qa.Record) error {
	args := m.Called(ctx, tenantID, rec)
	return args.Error(0)
}

func (m *QARecordRepository) Get(ctx context.Context, tenantID, id string) (*qa.Record, error) {
	args := m.Called(ctx, tenantID, id)
	if rec, ok := args.Get(0).(*qa.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QARecordRepository) Update(ctx context.Context, tenantID string, rec *qa.Record) error {
	args := m.Called(ctx, tenantID, rec)
	return args.Error(0)
}

func (m *QARecordRepository) SoftDelete(ctx context.Context, tenantID, id, deletedBy string, deletedAt time.Time) error {
	args := m.Called(ctx, tenantID, id, deletedBy, deletedAt)
	return args.Error(0)
}

func (m *QARecordRepository) List(ctx context.Context, tenantID string, opts qa.ListOptions) ([]qa.RecordRef, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]qa.RecordRef); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *QARecordRepository) ListActiveRecords(ctx context.Context, key project.Key) ([]qa.Record, error) {
	args := m.Called(ctx, key)
	if list, ok := args.Get(0).([]qa.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, tenantID string, entry *activity.ActivityEntry) error {
	args := m.Called(ctx, tenantID, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	args := m.Called(ctx, tenantID, opts)
	if list, ok := args.Get(0).([]activity.ActivityEntry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// SearchRepository is a mock for qa.SearchRepository.
type SearchRepository struct {
	mock.Mock
}

func (m *SearchRepository) Search(ctx context.Context, tenantID, projectID, query string, opts qa.SearchOptions) ([]qa.SearchResult, error) {
	args := m.Called(ctx, tenantID, projectID, query, opts)
	if list, ok := args.Get(0).([]qa.SearchResult); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// SyncTrigger is a mock for qa.SyncTrigger.
type SyncTrigger struct {
	mock.Mock
}

func (m *SyncTrigger) Enqueue(key project.Key, reason string) {
	m.Called(key, reason)
}
