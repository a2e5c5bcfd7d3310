package project

import (
	"fmt"
	"time"
)

// Key identifies a project across tenants. Every per-project structure in the
// register engine (sync state, queue entries) is keyed by it.
type Key struct {
	TenantID  string
	ProjectID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.TenantID, k.ProjectID)
}

// Project represents a construction project owning a Q&A register.
type Project struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	RootPath           string    `json:"root_path,omitempty"`
	LegacyWorkbookPath string    `json:"legacy_workbook_path,omitempty"`
	QASeq              int64     `json:"qa_seq"`
	CreatedAt          time.Time `json:"created_at"`
}

// Key returns the project's key.
func (p *Project) Key() Key {
	return Key{TenantID: p.TenantID, ProjectID: p.ID}
}

// Metadata is the slice of project data the register engine needs to place
// the workbook.
type Metadata struct {
	Name               string
	RootPath           string
	LegacyWorkbookPath string
}

// ProjectSummary is a lightweight representation for listing
type ProjectSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RootPath      string    `json:"root_path,omitempty"`
	QASeq         int64     `json:"qa_seq"`
	QuestionCount int       `json:"question_count"`
	OpenQuestions int       `json:"open_questions"`
	CreatedAt     time.Time `json:"created_at"`
}
