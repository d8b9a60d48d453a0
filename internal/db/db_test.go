package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n  CREATE INDEX i ON a (x) ;\n")
	require.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
	require.Empty(t, splitStatements(" ; \n"))
}

func TestMigrationFilesSorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	require.Equal(t, "0001_init.sql", files[0])
}
