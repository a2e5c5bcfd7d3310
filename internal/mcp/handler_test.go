package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
	"github.com/stretchr/testify/require"
)

type projectStub struct {
	createFn  func(context.Context, string, project.CreateRequest) (*project.Project, error)
	listFn    func(context.Context, string) ([]project.ProjectSummary, error)
	getFn     func(context.Context, string, string) (*project.Project, error)
	defaultFn func(context.Context, string) (*project.Project, error)
	setRootFn func(context.Context, string, string, string) (*project.Project, error)
}

func (p projectStub) Create(ctx context.Context, tenantID string, req project.CreateRequest) (*project.Project, error) {
	return p.createFn(ctx, tenantID, req)
}
func (p projectStub) List(ctx context.Context, tenantID string) ([]project.ProjectSummary, error) {
	return p.listFn(ctx, tenantID)
}
func (p projectStub) Get(ctx context.Context, tenantID, id string) (*project.Project, error) {
	return p.getFn(ctx, tenantID, id)
}
func (p projectStub) GetDefault(ctx context.Context, tenantID string) (*project.Project, error) {
	return p.defaultFn(ctx, tenantID)
}
func (p projectStub) SetRootPath(ctx context.Context, tenantID, id, rootPath string) (*project.Project, error) {
	return p.setRootFn(ctx, tenantID, id, rootPath)
}

type questionStub struct {
	createFn    func(context.Context, string, qa.CreateRequest) (*qa.Record, error)
	updateFn    func(context.Context, string, qa.UpdateRequest) (*qa.Record, error)
	answerFn    func(context.Context, string, qa.AnswerRequest) (*qa.Record, error)
	setStatusFn func(context.Context, string, string, qa.Status, string) (*qa.Record, error)
	deleteFn    func(context.Context, string, string, string) error
	getFn       func(context.Context, string, string) (*qa.Record, error)
	listFn      func(context.Context, string, qa.ListOptions) ([]qa.RecordRef, error)
	searchFn    func(context.Context, string, string, string, qa.SearchOptions) ([]qa.SearchResult, error)
}

func (q questionStub) Create(ctx context.Context, tenantID string, req qa.CreateRequest) (*qa.Record, error) {
	return q.createFn(ctx, tenantID, req)
}
func (q questionStub) Update(ctx context.Context, tenantID string, req qa.UpdateRequest) (*qa.Record, error) {
	return q.updateFn(ctx, tenantID, req)
}
func (q questionStub) Answer(ctx context.Context, tenantID string, req qa.AnswerRequest) (*qa.Record, error) {
	return q.answerFn(ctx, tenantID, req)
}
func (q questionStub) SetStatus(ctx context.Context, tenantID, id string, status qa.Status, actor string) (*qa.Record, error) {
	return q.setStatusFn(ctx, tenantID, id, status, actor)
}
func (q questionStub) Delete(ctx context.Context, tenantID, id, actor string) error {
	return q.deleteFn(ctx, tenantID, id, actor)
}
func (q questionStub) Get(ctx context.Context, tenantID, id string) (*qa.Record, error) {
	return q.getFn(ctx, tenantID, id)
}
func (q questionStub) List(ctx context.Context, tenantID string, opts qa.ListOptions) ([]qa.RecordRef, error) {
	return q.listFn(ctx, tenantID, opts)
}
func (q questionStub) Search(ctx context.Context, tenantID, projectID, query string, opts qa.SearchOptions) ([]qa.SearchResult, error) {
	return q.searchFn(ctx, tenantID, projectID, query, opts)
}

type activityStub struct {
	recentFn func(context.Context, string, activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

func (a activityStub) GetRecentActivity(ctx context.Context, tenantID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	return a.recentFn(ctx, tenantID, opts)
}

type queueStub struct {
	enqueued []string
	snapshot syncqueue.Snapshot
	known    bool
}

func (q *queueStub) Enqueue(key project.Key, reason string) {
	q.enqueued = append(q.enqueued, key.String()+":"+reason)
}

func (q *queueStub) GetState(project.Key) (syncqueue.Snapshot, bool) {
	return q.snapshot, q.known
}

type syncStateStub struct {
	state *register.WorkbookState
	err   error
}

func (s syncStateStub) GetSyncState(context.Context, project.Key) (*register.WorkbookState, error) {
	return s.state, s.err
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func defaultProjects() projectStub {
	proj := &project.Project{ID: "proj-1", TenantID: "tenant", Name: "Harbour"}
	return projectStub{
		defaultFn: func(context.Context, string) (*project.Project, error) { return proj, nil },
		getFn: func(_ context.Context, _ string, id string) (*project.Project, error) {
			if id != proj.ID {
				return nil, project.ErrProjectNotFound
			}
			return proj, nil
		},
	}
}

func TestHandleCreateQuestionUsesDefaultProjectAndActor(t *testing.T) {
	var got qa.CreateRequest
	h := NewHandler(Services{
		Projects: defaultProjects(),
		Questions: questionStub{createFn: func(_ context.Context, tenantID string, req qa.CreateRequest) (*qa.Record, error) {
			require.Equal(t, "tenant", tenantID)
			got = req
			return &qa.Record{ID: "q1", ProjectID: req.ProjectID, FormattedNumber: "FS01"}, nil
		}},
	})

	result, err := h.Handle(context.Background(), "tenant", "Anna", "create_question", mustJSON(t, CreateQuestionParams{
		Title:    "Door width",
		Question: "Which width applies?",
		Status:   "Pågår",
		DueDate:  "2026-03-01",
	}))
	require.NoError(t, err)
	require.Equal(t, "FS01", result.(*qa.Record).FormattedNumber)
	require.Equal(t, "proj-1", got.ProjectID)
	require.Equal(t, "Anna", got.Actor)
	require.Equal(t, qa.StatusInProgress, got.Status)
	require.NotNil(t, got.DueDate)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *got.DueDate)
}

func TestHandleCreateQuestionRejectsBadInput(t *testing.T) {
	h := NewHandler(Services{Projects: defaultProjects(), Questions: questionStub{}})

	_, err := h.Handle(context.Background(), "tenant", "", "create_question", mustJSON(t, CreateQuestionParams{
		Title: "x", Question: "y", Status: "maybe",
	}))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_STATUS", apiErr.Code)

	_, err = h.Handle(context.Background(), "tenant", "", "create_question", mustJSON(t, CreateQuestionParams{
		Title: "x", Question: "y", DueDate: "next week",
	}))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_INPUT", apiErr.Code)

	_, err = h.Handle(context.Background(), "tenant", "", "create_question", json.RawMessage(`{"title":`))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_INPUT", apiErr.Code)
}

func TestHandleUpdateQuestionDueDate(t *testing.T) {
	var got qa.UpdateRequest
	h := NewHandler(Services{Questions: questionStub{updateFn: func(_ context.Context, _ string, req qa.UpdateRequest) (*qa.Record, error) {
		got = req
		return &qa.Record{ID: req.ID}, nil
	}}})

	_, err := h.Handle(context.Background(), "tenant", "", "update_question", json.RawMessage(`{"id":"q1","due_date":""}`))
	require.NoError(t, err)
	require.True(t, got.ClearDueDate)
	require.Nil(t, got.Title)

	_, err = h.Handle(context.Background(), "tenant", "", "update_question", json.RawMessage(`{"id":"q1","title":"New","due_date":"2026-05-02"}`))
	require.NoError(t, err)
	require.False(t, got.ClearDueDate)
	require.NotNil(t, got.DueDate)
	require.Equal(t, "New", *got.Title)
}

func TestHandleAnswerQuestion(t *testing.T) {
	var got qa.AnswerRequest
	h := NewHandler(Services{Questions: questionStub{answerFn: func(_ context.Context, _ string, req qa.AnswerRequest) (*qa.Record, error) {
		got = req
		return &qa.Record{ID: req.ID, Status: qa.StatusDone}, nil
	}}})

	_, err := h.Handle(context.Background(), "tenant", "Bo", "answer_question", mustJSON(t, AnswerQuestionParams{ID: "q1", Answer: "900 mm"}))
	require.NoError(t, err)
	require.Nil(t, got.Status)
	require.Equal(t, "900 mm", got.Text)
	require.Equal(t, "Bo", got.Actor)

	_, err = h.Handle(context.Background(), "tenant", "Bo", "answer_question", mustJSON(t, AnswerQuestionParams{ID: "q1", Answer: "partial", Status: "in progress"}))
	require.NoError(t, err)
	require.NotNil(t, got.Status)
	require.Equal(t, qa.StatusInProgress, *got.Status)
}

func TestHandleDeleteAndGetMapErrors(t *testing.T) {
	h := NewHandler(Services{Questions: questionStub{
		deleteFn: func(context.Context, string, string, string) error { return nil },
		getFn: func(context.Context, string, string) (*qa.Record, error) {
			return nil, qa.ErrRecordNotFound
		},
		setStatusFn: func(context.Context, string, string, qa.Status, string) (*qa.Record, error) {
			return nil, qa.ErrInvalidStatus
		},
	}})

	result, err := h.Handle(context.Background(), "tenant", "", "delete_question", mustJSON(t, QuestionIDParams{ID: "q1"}))
	require.NoError(t, err)
	require.Equal(t, DeleteQuestionResponse{ID: "q1", Deleted: true}, result)

	_, err = h.Handle(context.Background(), "tenant", "", "get_question", mustJSON(t, QuestionIDParams{ID: "q1"}))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "QUESTION_NOT_FOUND", apiErr.Code)

	_, err = h.Handle(context.Background(), "tenant", "", "set_question_status", mustJSON(t, SetQuestionStatusParams{ID: "q1", Status: "bogus"}))
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_STATUS", apiErr.Code)
}

func TestHandleListAndSearchQuestions(t *testing.T) {
	var listOpts qa.ListOptions
	h := NewHandler(Services{
		Projects: defaultProjects(),
		Questions: questionStub{
			listFn: func(_ context.Context, _ string, opts qa.ListOptions) ([]qa.RecordRef, error) {
				listOpts = opts
				return nil, nil
			},
			searchFn: func(_ context.Context, _ string, projectID, query string, _ qa.SearchOptions) ([]qa.SearchResult, error) {
				require.Equal(t, "proj-1", projectID)
				return []qa.SearchResult{{Record: qa.RecordRef{ID: "q1"}, Rank: 1}}, nil
			},
		},
	})

	result, err := h.Handle(context.Background(), "tenant", "", "list_questions", mustJSON(t, ListQuestionsParams{Statuses: []string{"open", "klar"}, Limit: 5}))
	require.NoError(t, err)
	list := result.(QuestionListResponse)
	require.Equal(t, "proj-1", list.ProjectID)
	require.NotNil(t, list.Questions)
	require.Empty(t, list.Questions)
	require.Equal(t, []qa.Status{qa.StatusUnanswered, qa.StatusDone}, listOpts.Statuses)
	require.Equal(t, 5, listOpts.Limit)

	result, err = h.Handle(context.Background(), "tenant", "", "search_questions", mustJSON(t, SearchQuestionsParams{Query: "door"}))
	require.NoError(t, err)
	require.Len(t, result.(SearchResponse).Results, 1)

	_, err = h.Handle(context.Background(), "tenant", "", "list_questions", mustJSON(t, ListQuestionsParams{ProjectID: "missing"}))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "PROJECT_NOT_FOUND", apiErr.Code)
}

func TestHandleProjectToolsEnqueueSync(t *testing.T) {
	queue := &queueStub{}
	projects := defaultProjects()
	projects.createFn = func(_ context.Context, tenantID string, req project.CreateRequest) (*project.Project, error) {
		return &project.Project{ID: "p2", TenantID: tenantID, Name: req.Name, RootPath: req.RootPath}, nil
	}
	projects.setRootFn = func(_ context.Context, tenantID, id, root string) (*project.Project, error) {
		return &project.Project{ID: id, TenantID: tenantID, RootPath: root}, nil
	}
	h := NewHandler(Services{Projects: projects, Queue: queue})

	_, err := h.Handle(context.Background(), "tenant", "", "create_project", mustJSON(t, CreateProjectParams{Name: "Depot", RootPath: "Projects/Depot"}))
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), "tenant", "", "set_project_root", mustJSON(t, SetProjectRootParams{RootPath: "Archive/Harbour"}))
	require.NoError(t, err)

	require.Equal(t, []string{"tenant/p2:project_created", "tenant/proj-1:root_changed"}, queue.enqueued)
}

func TestHandleRegisterStatus(t *testing.T) {
	next := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	queue := &queueStub{known: true, snapshot: syncqueue.Snapshot{ProjectID: "proj-1", State: syncqueue.StateLocked, Attempts: 1, NextRetryAt: &next}}
	h := NewHandler(Services{
		Projects:  defaultProjects(),
		Queue:     queue,
		SyncState: syncStateStub{state: &register.WorkbookState{CanonicalPath: "Harbour/Q&A/QA-register.xlsx", FileState: register.FileReady}},
	})

	result, err := h.Handle(context.Background(), "tenant", "", "get_register_status", nil)
	require.NoError(t, err)
	status := result.(RegisterStatusResponse)
	require.Equal(t, syncqueue.StateLocked, status.Queue.State)
	require.Equal(t, register.FileReady, status.Workbook.FileState)

	result, err = h.Handle(context.Background(), "tenant", "", "sync_register", nil)
	require.NoError(t, err)
	require.True(t, result.(SyncRegisterResponse).Queued)
	require.Equal(t, []string{"tenant/proj-1:manual"}, queue.enqueued)
}

func TestHandleRegisterStatusUnknownQueue(t *testing.T) {
	h := NewHandler(Services{
		Projects:  defaultProjects(),
		Queue:     &queueStub{},
		SyncState: syncStateStub{err: errors.New("db closed")},
	})

	_, err := h.Handle(context.Background(), "tenant", "", "get_register_status", nil)
	require.ErrorContains(t, err, "db closed")

	h.syncState = nil
	result, err := h.Handle(context.Background(), "tenant", "", "get_register_status", nil)
	require.NoError(t, err)
	require.Equal(t, syncqueue.StateIdle, result.(RegisterStatusResponse).Queue.State)
}

func TestHandleSyncRegisterWithoutQueue(t *testing.T) {
	h := NewHandler(Services{Projects: defaultProjects()})
	_, err := h.Handle(context.Background(), "tenant", "", "sync_register", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "SYNC_UNAVAILABLE", apiErr.Code)
}

func TestHandleRecentActivity(t *testing.T) {
	var got activity.ListActivityOptions
	h := NewHandler(Services{
		Projects: defaultProjects(),
		Activity: activityStub{recentFn: func(_ context.Context, _ string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
			got = opts
			return nil, nil
		}},
	})

	result, err := h.Handle(context.Background(), "tenant", "", "get_recent_activity", mustJSON(t, GetRecentActivityParams{RecordID: "q1", ActivityType: "register_rebuilt", Limit: 3}))
	require.NoError(t, err)
	require.NotNil(t, result.(ActivityResponse).Entries)
	require.Equal(t, "proj-1", got.ProjectID)
	require.Equal(t, "q1", *got.RecordID)
	require.Equal(t, activity.TypeRegisterRebuilt, *got.ActivityType)
}

func TestHandleUnknownMethod(t *testing.T) {
	h := NewHandler(Services{})
	_, err := h.Handle(context.Background(), "tenant", "", "activate", nil)
	require.ErrorContains(t, err, "unknown method")
}

func TestToolCatalogMatchesHandler(t *testing.T) {
	h := NewHandler(Services{})
	seen := map[string]bool{}
	for _, tool := range buildToolCatalog() {
		require.False(t, seen[tool.Name], "duplicate tool %s", tool.Name)
		seen[tool.Name] = true
		require.Equal(t, "object", tool.InputSchema["type"])

		func() {
			defer func() { recover() }()
			_, err := h.Handle(context.Background(), "tenant", "", tool.Name, json.RawMessage(`{`))
			if err != nil {
				require.NotContains(t, err.Error(), "unknown method", tool.Name)
			}
		}()
	}
	require.Len(t, seen, 15)
}

func TestErrorResult(t *testing.T) {
	res := errorResult(qa.ErrRecordNotFound)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)

	res = errorResult(errors.New("boom"))
	require.True(t, res.IsError)
}
