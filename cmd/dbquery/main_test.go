package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runQuery runs dbquery against the sqlite file named by DB and returns stdout.
func runQuery(t *testing.T, args ...string) (string, int) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), append([]string{"dbquery", "-driver", "sqlite"}, args...), &out, io.Discard, quietLogger())
	return out.String(), code
}

func fields(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestRun_SQLiteQueries(t *testing.T) {
	t.Setenv("DB", filepath.Join(t.TempDir(), "media.db"))

	out, code := runQuery(t, "CREATE TABLE mock_data (id INTEGER, email TEXT, ip_address TEXT)")
	require.Equal(t, 0, code)
	assert.Equal(t, "0 rows affected\n", out)

	out, code = runQuery(t, `INSERT INTO mock_data VALUES
		(1, 'a@example.com', '10.0.0.1'),
		(2, 'b@example.com', '10.0.0.2'),
		(3, 'c@example.com', '10.0.0.3')`)
	require.Equal(t, 0, code)
	assert.Equal(t, "3 rows affected\n", out)

	// Pages of two force a FetchMore.
	out, code = runQuery(t, "-fetch", "2", "SELECT id, email, ip_address FROM mock_data ORDER BY id")
	require.Equal(t, 0, code)
	assert.Equal(t, [][]string{
		{"id", "email", "ip_address"},
		{"1", "a@example.com", "10.0.0.1"},
		{"2", "b@example.com", "10.0.0.2"},
		{"3", "c@example.com", "10.0.0.3"},
	}, fields(out))

	out, code = runQuery(t, "-fetch", "1", "-limit", "2", "SELECT id FROM mock_data ORDER BY id")
	require.Equal(t, 0, code)
	assert.Equal(t, [][]string{{"id"}, {"1"}, {"2"}}, fields(out))

	out, code = runQuery(t, "-json", "SELECT id, email FROM mock_data WHERE id = 2")
	require.Equal(t, 0, code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []map[string]any{{"id": float64(2), "email": "b@example.com"}}, rows)
	assert.Less(t, strings.Index(out, `"id"`), strings.Index(out, `"email"`))

	out, code = runQuery(t, "-json", "SELECT id FROM mock_data WHERE id > 99")
	require.Equal(t, 0, code)
	assert.Equal(t, "[]\n", out)

	out, code = runQuery(t, "-count", "mock_data")
	require.Equal(t, 0, code)
	assert.Equal(t, "3\n", out)
}

func TestRun_Failures(t *testing.T) {
	t.Setenv("DB", filepath.Join(t.TempDir(), "media.db"))

	var stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"dbquery"}, io.Discard, &stderr, quietLogger()))
	assert.Contains(t, stderr.String(), "Usage: dbquery")

	assert.Equal(t, 1, run(context.Background(), []string{"dbquery", "-driver", "oracle", "SELECT 1"}, io.Discard, io.Discard, quietLogger()))

	_, code := runQuery(t, "SELECT * FROM absent")
	assert.Equal(t, 1, code)

	_, code = runQuery(t, "-count", "absent")
	assert.Equal(t, 1, code)
}
