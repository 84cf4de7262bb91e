package reviews

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schemaColumns parses the initial migration and returns the column names the
// table is created with, so column lists in this package cannot drift from
// the DDL unnoticed.
func schemaColumns(t *testing.T, table string) map[string]bool {
	t.Helper()

	raw, err := os.ReadFile(filepath.Join("..", "..", "..", "pkg", "db", "migrations", "00001_init.sql"))
	require.NoError(t, err)

	re := regexp.MustCompile(`(?s)CREATE TABLE ` + table + ` \(\n(.*?)\n\);`)
	match := re.FindStringSubmatch(string(raw))
	require.NotNilf(t, match, "table %s not found in migration", table)

	columns := make(map[string]bool)
	for _, line := range strings.Split(match[1], "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "--") {
			continue
		}
		columns[fields[0]] = true
	}
	return columns
}

func TestReviewColumnsMatchMigration(t *testing.T) {
	columns := schemaColumns(t, "duplicate_reviews")
	for _, column := range strings.Split(reviewColumns, ",") {
		name := strings.TrimSpace(column)
		assert.Truef(t, columns[name], "column %q is selected but not defined in the migration", name)
	}
}
