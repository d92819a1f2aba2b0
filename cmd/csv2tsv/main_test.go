package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"csv2tsv"}, &stderr, logger))
	assert.Contains(t, stderr.String(), "Usage:")

	dir := t.TempDir()
	src := filepath.Join(dir, "mock_data.csv")
	require.NoError(t, os.WriteFile(src, []byte("id,first_name\n1001,Mickey\n"), 0o644))

	dst := filepath.Join(dir, "mock_data.tsv")
	require.Equal(t, 0, run([]string{"csv2tsv", src, dst}, &stderr, logger))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "id\tfirst_name\n1001\tMickey\n", string(got))

	back := filepath.Join(dir, "roundtrip.csv")
	require.Equal(t, 0, run([]string{"csv2tsv", dst, back}, &stderr, logger))
	got, err = os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "id,first_name\n1001,Mickey\n", string(got))

	assert.Equal(t, 1, run([]string{"csv2tsv", filepath.Join(dir, "absent.csv"), dst}, &stderr, logger))
}
