package register

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates the workbook location cannot be derived for a project.
	ErrConfiguration = errors.New("register configuration error")
	// ErrResourceLocked indicates the external file is held by another editor.
	ErrResourceLocked = errors.New("resource locked")
	// ErrNotFound indicates the external path or item does not exist.
	ErrNotFound = errors.New("not found in file repository")
	// ErrAlreadyExists indicates a non-overwriting upload hit an existing file.
	ErrAlreadyExists = errors.New("already exists in file repository")
)

// RepositoryError wraps failures of the external file repository or of the
// sync state store.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// ProgrammingError marks serialization failures and broken internal invariants.
// It is never retried.
type ProgrammingError struct {
	Op  string
	Err error
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("%s: internal error: %v", e.Op, e.Err)
}

func (e *ProgrammingError) Unwrap() error { return e.Err }

// Class is the retry classification of a sync failure.
type Class string

const (
	ClassNone           Class = ""
	ClassResourceLocked Class = "resource_locked"
	ClassConfiguration  Class = "configuration"
	ClassRepository     Class = "repository"
	ClassProgramming    Class = "programming"
)

// Retryable reports whether failures of this class are retried with backoff.
func (c Class) Retryable() bool {
	return c == ClassResourceLocked
}

// Classify maps any error returned from a sync run onto its class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var progErr *ProgrammingError
	if errors.As(err, &progErr) {
		return ClassProgramming
	}
	if errors.Is(err, ErrConfiguration) {
		return ClassConfiguration
	}
	if errors.Is(err, ErrResourceLocked) {
		return ClassResourceLocked
	}
	return ClassRepository
}

func wrapRepo(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return &RepositoryError{Op: op, Path: path, Err: err}
}
