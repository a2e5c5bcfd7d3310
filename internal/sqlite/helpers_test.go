package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func insertProject(t *testing.T, db *DB, id, tenantID string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO projects (id, tenant_id, name, root_path) VALUES (?, ?, ?, ?)`,
		id, tenantID, "Project", "Projects/"+id,
	)
	require.NoError(t, err)
}
