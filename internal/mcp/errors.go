package mcp

import (
	"errors"
	"fmt"

	"github.com/digitalkontroll/qaregister/internal/domain/project"
	"github.com/digitalkontroll/qaregister/internal/domain/qa"
	"github.com/digitalkontroll/qaregister/internal/repository"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, qa.ErrRecordNotFound):
		return &APIError{Code: "QUESTION_NOT_FOUND", Message: "question not found", RecoveryHint: "Use list_questions or search_questions to find the ID"}
	case errors.Is(err, qa.ErrProjectNotFound), errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Use list_projects to find the ID"}
	case errors.Is(err, qa.ErrInvalidStatus):
		return &APIError{Code: "INVALID_STATUS", Message: "invalid question status", RecoveryHint: "Use unanswered, in_progress, done or not_applicable"}
	case errors.Is(err, qa.ErrInvalidInput), errors.Is(err, project.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Check required fields"}
	case errors.Is(err, repository.ErrConflict):
		return &APIError{Code: "ALREADY_EXISTS", Message: "an item with that ID already exists"}
	default:
		return nil
	}
}

func invalidParams(format string, args ...any) *APIError {
	return &APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf(format, args...)}
}
