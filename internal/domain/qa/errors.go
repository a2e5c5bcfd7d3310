package qa

import "errors"

var (
	// ErrRecordNotFound indicates the record doesn't exist or was deleted.
	ErrRecordNotFound = errors.New("question not found")
	// ErrInvalidInput indicates invalid input for record operations.
	ErrInvalidInput = errors.New("invalid question input")
	// ErrInvalidStatus indicates a status value outside the known set.
	ErrInvalidStatus = errors.New("invalid question status")
	// ErrProjectNotFound indicates the owning project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
)
