package sqlite

import (
	"fmt"
	"strings"

	"github.com/digitalkontroll/qaregister/internal/repository"
)

// mapWriteError converts constraint failures into repository sentinels.
func mapWriteError(op string, err error) error {
	switch {
	case isForeignKeyViolation(err):
		return repository.ErrForeignKeyViolation
	case isUniqueViolation(err):
		return repository.ErrConflict
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
