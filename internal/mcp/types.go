package mcp

import (
	"time"

	"github.com/digitalkontroll/qaregister/internal/domain/activity"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/register"
	"github.com/digitalkontroll/qaregister/internal/syncqueue"
)

// ToolDefinition describes one MCP tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type CreateProjectParams struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	RootPath           string `json:"root_path,omitempty"`
	LegacyWorkbookPath string `json:"legacy_workbook_path,omitempty"`
}

type GetProjectParams struct {
	ID string `json:"id,omitempty"`
}

type SetProjectRootParams struct {
	ProjectID string `json:"project_id,omitempty"`
	RootPath  string `json:"root_path"`
}

type CreateQuestionParams struct {
	ProjectID          string   `json:"project_id,omitempty"`
	Title              string   `json:"title"`
	Question           string   `json:"question"`
	Category           string   `json:"category,omitempty"`
	Discipline         string   `json:"discipline,omitempty"`
	ResponsibleParties []string `json:"responsible_parties,omitempty"`
	Status             string   `json:"status,omitempty"`
	DueDate            string   `json:"due_date,omitempty"`
}

type UpdateQuestionParams struct {
	ID                 string   `json:"id"`
	Title              *string  `json:"title,omitempty"`
	Question           *string  `json:"question,omitempty"`
	Category           *string  `json:"category,omitempty"`
	Discipline         *string  `json:"discipline,omitempty"`
	ResponsibleParties []string `json:"responsible_parties,omitempty"`
	// DueDate "" clears the due date, nil leaves it unchanged.
	DueDate *string `json:"due_date,omitempty"`
}

type AnswerQuestionParams struct {
	ID         string `json:"id"`
	Answer     string `json:"answer"`
	AnsweredBy string `json:"answered_by,omitempty"`
	Status     string `json:"status,omitempty"`
}

type SetQuestionStatusParams struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type QuestionIDParams struct {
	ID string `json:"id"`
}

type ListQuestionsParams struct {
	ProjectID      string   `json:"project_id,omitempty"`
	Statuses       []string `json:"statuses,omitempty"`
	Category       string   `json:"category,omitempty"`
	IncludeDeleted bool     `json:"include_deleted,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Offset         int      `json:"offset,omitempty"`
}

type SearchQuestionsParams struct {
	ProjectID string   `json:"project_id,omitempty"`
	Query     string   `json:"query"`
	Statuses  []string `json:"statuses,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

type RegisterParams struct {
	ProjectID string `json:"project_id,omitempty"`
}

type GetRecentActivityParams struct {
	ProjectID    string `json:"project_id,omitempty"`
	RecordID     string `json:"record_id,omitempty"`
	ActivityType string `json:"activity_type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Response types

type QuestionListResponse struct {
	ProjectID string         `json:"project_id"`
	Questions []qa.RecordRef `json:"questions"`
}

type SearchResponse struct {
	ProjectID string            `json:"project_id"`
	Query     string            `json:"query"`
	Results   []qa.SearchResult `json:"results"`
}

type DeleteQuestionResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// RegisterStatusResponse combines the in-memory queue snapshot with the
// persisted workbook state.
type RegisterStatusResponse struct {
	ProjectID string                  `json:"project_id"`
	Queue     syncqueue.Snapshot      `json:"queue"`
	Workbook  *register.WorkbookState `json:"workbook,omitempty"`
}

type SyncRegisterResponse struct {
	ProjectID string             `json:"project_id"`
	Queued    bool               `json:"queued"`
	Queue     syncqueue.Snapshot `json:"queue"`
}

type ActivityResponse struct {
	ProjectID string                   `json:"project_id"`
	Entries   []activity.ActivityEntry `json:"entries"`
	FetchedAt time.Time                `json:"fetched_at"`
}
