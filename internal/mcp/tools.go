package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func prop(kind, description string) map[string]any {
	return map[string]any{"type": kind, "description": description}
}

func stringList(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

const (
	projectIDHint = "Project ID (omit to use default project)"
	statusHint    = "One of unanswered, in_progress, done, not_applicable"
)

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		// Projects
		{
			Name:        "create_project",
			Description: "Create a new project with its own Q&A register",
			InputSchema: objectSchema(map[string]any{
				"id":                   prop("string", "Unique project identifier (optional, will be generated if not provided)"),
				"name":                 prop("string", "Project display name, also used to name the register workbook"),
				"description":          prop("string", "Project description"),
				"root_path":            prop("string", "Project folder in the file repository; the register is placed under it"),
				"legacy_workbook_path": prop("string", "Existing register workbook to move into the canonical location"),
			}, "name"),
		},
		{
			Name:        "list_projects",
			Description: "List all projects for the current tenant with question counts",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "get_project",
			Description: "Get details for a specific project or the default project",
			InputSchema: objectSchema(map[string]any{
				"id": prop("string", "Project ID (omit to get default project)"),
			}),
		},
		{
			Name:        "set_project_root",
			Description: "Change the project folder; the register workbook follows on the next sync",
			InputSchema: objectSchema(map[string]any{
				"project_id": prop("string", projectIDHint),
				"root_path":  prop("string", "New project folder in the file repository"),
			}, "root_path"),
		},

		// Questions
		{
			Name:        "create_question",
			Description: "Register a new question; it gets the next register number of the project",
			InputSchema: objectSchema(map[string]any{
				"project_id":          prop("string", projectIDHint),
				"title":               prop("string", "Short title shown in the register"),
				"question":            prop("string", "Full question text"),
				"category":            prop("string", "Category, e.g. Design or Procurement"),
				"discipline":          prop("string", "Discipline, e.g. Structural or HVAC"),
				"responsible_parties": stringList("Parties responsible for answering"),
				"status":              prop("string", statusHint+" (default unanswered)"),
				"due_date":            prop("string", "Due date as YYYY-MM-DD"),
			}, "title", "question"),
		},
		{
			Name:        "update_question",
			Description: "Edit the fields of a question; omitted fields are left unchanged",
			InputSchema: objectSchema(map[string]any{
				"id":                  prop("string", "Question ID"),
				"title":               prop("string", "New title"),
				"question":            prop("string", "New question text"),
				"category":            prop("string", "New category"),
				"discipline":          prop("string", "New discipline"),
				"responsible_parties": stringList("Replacement list of responsible parties"),
				"due_date":            prop("string", "New due date as YYYY-MM-DD, or empty to clear"),
			}, "id"),
		},
		{
			Name:        "answer_question",
			Description: "Append an answer to a question's history and mark it done unless another status is given",
			InputSchema: objectSchema(map[string]any{
				"id":          prop("string", "Question ID"),
				"answer":      prop("string", "Answer text"),
				"answered_by": prop("string", "Name of the person answering (defaults to the caller)"),
				"status":      prop("string", statusHint+" (default done)"),
			}, "id", "answer"),
		},
		{
			Name:        "set_question_status",
			Description: "Change the status of a question",
			InputSchema: objectSchema(map[string]any{
				"id":     prop("string", "Question ID"),
				"status": prop("string", statusHint),
			}, "id", "status"),
		},
		{
			Name:        "delete_question",
			Description: "Delete a question; its register number is never reused",
			InputSchema: objectSchema(map[string]any{
				"id": prop("string", "Question ID"),
			}, "id"),
		},
		{
			Name:        "get_question",
			Description: "Get a question with its full answer history",
			InputSchema: objectSchema(map[string]any{
				"id": prop("string", "Question ID"),
			}, "id"),
		},
		{
			Name:        "list_questions",
			Description: "List questions of a project in register order",
			InputSchema: objectSchema(map[string]any{
				"project_id":      prop("string", projectIDHint),
				"statuses":        stringList("Only include these statuses"),
				"category":        prop("string", "Only include this category"),
				"include_deleted": prop("boolean", "Include deleted questions"),
				"limit":           prop("integer", "Maximum results"),
				"offset":          prop("integer", "Results to skip"),
			}),
		},
		{
			Name:        "search_questions",
			Description: "Full-text search over titles, questions and answers",
			InputSchema: objectSchema(map[string]any{
				"project_id": prop("string", projectIDHint),
				"query":      prop("string", "Search query"),
				"statuses":   stringList("Only include these statuses"),
				"limit":      prop("integer", "Maximum results (default 20)"),
				"offset":     prop("integer", "Results to skip"),
			}, "query"),
		},

		// Register
		{
			Name:        "get_register_status",
			Description: "Show the sync state of the project's register workbook",
			InputSchema: objectSchema(map[string]any{
				"project_id": prop("string", projectIDHint),
			}),
		},
		{
			Name:        "sync_register",
			Description: "Request a full rebuild of the project's register workbook",
			InputSchema: objectSchema(map[string]any{
				"project_id": prop("string", projectIDHint),
			}),
		},

		// Activity
		{
			Name:        "get_recent_activity",
			Description: "Get recent question and register events for a project",
			InputSchema: objectSchema(map[string]any{
				"project_id":    prop("string", projectIDHint),
				"record_id":     prop("string", "Only events for this question"),
				"activity_type": prop("string", "Only events of this type"),
				"limit":         prop("integer", "Maximum entries (default 50)"),
				"offset":        prop("integer", "Entries to skip"),
			}),
		},
	}
}

// registerTools adds every catalog tool to server, dispatching calls through handler.
func registerTools(server *sdkmcp.Server, handler *Handler, logger *slog.Logger) {
	for _, def := range buildToolCatalog() {
		name := def.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}
			result, err := handler.Handle(ctx, getTenantID(ctx), getActor(ctx), name, args)
			if err != nil {
				logger.Debug("tool call failed", "tool", name, "error", err)
				return errorResult(err), nil
			}
			return jsonResult(result)
		})
	}
}

func jsonResult(v any) (*sdkmcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(payload)}},
	}, nil
}

// errorResult reports tool failures in-band so the model can see and act on them.
func errorResult(err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	if apiErr == nil {
		apiErr = &APIError{Code: "INTERNAL", Message: err.Error()}
	}
	payload, mErr := json.Marshal(apiErr)
	if mErr != nil {
		payload = []byte(apiErr.Error())
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(payload)}},
	}
}
