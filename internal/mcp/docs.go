package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `qaregister keeps a project's Q&A register: questions raised during a construction
project, their answers and their status. The database is the source of truth and an
Excel register workbook in the project folder is rebuilt from it after every change.

Core concepts:
- Project: owns a register and a root folder. The workbook lives at <root>/Q&A/QA-register.xlsx.
- Question: numbered FS01, FS02, ... in creation order. Numbers are never reused, not even after delete.
- Status: unanswered, in_progress, done or not_applicable.
- Answer: appended to the question's history; answering marks the question done unless told otherwise.

Workflow:
1) Orient: list_projects, then list_questions or search_questions (default project unless project_id is given).
2) Write: create_question / update_question / answer_question / set_question_status / delete_question.
   Every write schedules a register rebuild; you do not need to call sync_register afterwards.
3) Check the workbook: get_register_status. A "locked" state means someone has the workbook open in
   Excel; the rebuild retries on its own and succeeds once the file is closed.

Docs:
- qaregister://docs/index
- qaregister://docs/register-workbook
- qaregister://docs/sync-states
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "qaregister://docs/index",
		Name:        "docs_index",
		Title:       "qaregister docs index",
		Description: "Entry point: tools by task and where to read more.",
		Content: `# qaregister docs

## Tools by task
- Projects: create_project, list_projects, get_project, set_project_root
- Questions: create_question, update_question, answer_question, set_question_status,
  delete_question, get_question, list_questions, search_questions
- Register workbook: get_register_status, sync_register
- History: get_recent_activity

## Identity
Writes record the caller as created_by/updated_by. Over HTTP send the X-Actor header;
over stdio pass _meta.actor. Without either the actor is "system".

## Read next
- qaregister://docs/register-workbook for what the workbook contains
- qaregister://docs/sync-states for the meaning of get_register_status
`,
	},
	{
		URI:         "qaregister://docs/register-workbook",
		Name:        "docs_register_workbook",
		Title:       "Register workbook layout",
		Description: "Sheets, columns and colours of the generated register.",
		Content: `# Register workbook

The workbook is regenerated from scratch on every sync. Manual edits in Excel are overwritten.

## Register sheet
One row per live question in number order, header row frozen. Columns:
No., Category, Title, Discipline, Responsible, Status, Created, Due date, Last updated, Updated by.
The number links to the question's detail sheet. Rows are coloured by status:
unanswered red, in progress yellow, done green, not applicable grey.

## Detail sheets
One sheet per question, named after its number. It shows the full question, the latest
answer ("No answer yet" when there is none), how many earlier answers exist, and a link
back to the register.

## Location
<project root>/Q&A/QA-register.xlsx. When a project has an older workbook elsewhere it
is moved into place on the first sync. Changing the root with set_project_root moves it
on the next sync.
`,
	},
	{
		URI:         "qaregister://docs/sync-states",
		Name:        "docs_sync_states",
		Title:       "Register sync states",
		Description: "Queue states reported by get_register_status and what to do about each.",
		Content: `# Sync states

get_register_status returns the queue snapshot and the stored workbook state.

## queue.state
- idle: nothing running. last_synced_at is the last successful rebuild.
- running: a rebuild is in progress. pending=true means another rebuild follows it.
- locked: the workbook is open somewhere. The rebuild retries after 2s, 5s, 10s, 20s
  and 30s (next_retry_at). Ask the user to close the file.
- error: the rebuild gave up. error_class says why:
  - resource_locked: the file stayed open through every retry. Close it and call sync_register.
  - configuration: the project has no root folder. Fix it with set_project_root.
  - repository: the file store failed. Retry with sync_register.
  - programming: a bug. Report last_error.

## workbook.file_state
absent, creating, ready or error. "creating" with an old lease_started_at is reclaimed
automatically by the next sync.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
