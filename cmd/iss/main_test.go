package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AppendsOneRowPerRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timestamp": 1700000000, "message": "success", "iss_position": {"longitude": "-71.0", "latitude": "42.3"}}`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	csvFile := filepath.Join(t.TempDir(), "iss.csv")

	require.Equal(t, 0, run([]string{"iss", csvFile}, io.Discard, logger, srv.URL))
	require.Equal(t, 0, run([]string{"iss", csvFile}, io.Discard, logger, srv.URL))

	got, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	assert.Equal(t,
		"message,timestamp,iss_position.latitude,iss_position.longitude\n"+
			"success,2023-11-14 22:13:20,42.3,-71.0\n"+
			"success,2023-11-14 22:13:20,42.3,-71.0\n",
		string(got))
}

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"iss"}, &stderr, slog.New(slog.NewTextHandler(io.Discard, nil)), "http://unused"))
	assert.Contains(t, stderr.String(), "Usage: iss <csv_file>")
}
