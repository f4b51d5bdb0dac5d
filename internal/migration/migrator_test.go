package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Columns the entities tag nullzero must accept NULL: bun serializes the zero
// value (empty string, zero time) as SQL NULL on those fields, so a NOT NULL
// constraint would reject rows like a creation ledger entry with no comment.
func TestNullzeroColumnsAreNullable(t *testing.T) {
	nullableColumns := map[string][]string{
		"20250301000002_create_orders.sql":               {"notes"},
		"20250301000003_create_order_items.sql":          {"description", "updated_at"},
		"20250301000004_create_order_status_history.sql": {"comment"},
	}

	for file, columns := range nullableColumns {
		raw, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "sql", file))
		require.NoError(t, err)

		for _, line := range strings.Split(string(raw), "\n") {
			trimmed := strings.TrimSpace(line)
			for _, column := range columns {
				if strings.HasPrefix(trimmed, column+" ") {
					require.NotContains(t, trimmed, "NOT NULL", "%s: column %s must accept NULL", file, column)
				}
			}
		}
	}
}
