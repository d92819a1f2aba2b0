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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Usage(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{"etl", "only-one.json"}, &stderr, discardLogger(), "http://unused")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Usage: etl <json_file> <csv_file>")
}

func TestRun_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"attributes":{"name":"Beagle","hypoallergenic":false,"life":{"max":15}}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "dogs.json")
	csvFile := filepath.Join(dir, "dogs.csv")

	code := run([]string{"etl", jsonFile, csvFile}, io.Discard, discardLogger(), srv.URL)
	require.Equal(t, 0, code)

	got, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	assert.Equal(t, "name,hypoallergenic,life.max\nBeagle,false,15\n", string(got))
	assert.FileExists(t, jsonFile)
}

func TestRun_StageFailureExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	code := run([]string{"etl", filepath.Join(dir, "a.json"), filepath.Join(dir, "a.csv")}, io.Discard, discardLogger(), srv.URL)
	assert.Equal(t, 1, code)
	assert.NoFileExists(t, filepath.Join(dir, "a.csv"))
}
