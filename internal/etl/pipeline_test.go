package etl_test

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataeng/internal/etl"
)

const breedsJSON = `{"data":[{"id":"1","type":"breed","attributes":{"name":"Beagle","hypoallergenic":false,"life":{"max":15,"min":12}}},{"id":"2","type":"breed","attributes":{"name":"Poodle, Standard","hypoallergenic":true,"life":{"max":18,"min":12}}}],"links":{"next":null}}`

func readCSV(t *testing.T, path string, delim rune) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = delim
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func nameTable(names ...string) *etl.Table {
	t := &etl.Table{Schema: &etl.Schema{Fields: []etl.Field{{Name: "name", Type: "text"}}}}
	for i, n := range names {
		t.Records = append(t.Records, etl.Record{Index: i, Data: map[string]any{"name": n}})
	}
	return t
}

// ─────────────────────────────────────────────────────────────
// Extract
// ─────────────────────────────────────────────────────────────

func TestExtract_WritesIndentedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"b":1,"a":[1,2]}`))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "raw.json")
	x := &etl.Extractor{}
	require.NoError(t, x.Extract(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": [\n    1,\n    2\n  ]\n}\n", string(got))
}

func TestExtract_IdempotentAtStorage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breedsJSON))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "raw.json")
	x := &etl.Extractor{}
	require.NoError(t, x.Extract(context.Background(), srv.URL, dest))
	first, err := os.ReadFile(dest)
	require.NoError(t, err)

	require.NoError(t, x.Extract(context.Background(), srv.URL, dest))
	second, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_HTTP500KeepsPriorStore(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(breedsJSON))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "raw.json")
	x := &etl.Extractor{}
	require.NoError(t, x.Extract(context.Background(), srv.URL, dest))
	before, err := os.ReadFile(dest)
	require.NoError(t, err)

	fail.Store(true)
	err = x.Extract(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.HTTPStatusError))
	var stageErr *etl.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, http.StatusInternalServerError, stageErr.StatusCode)

	after, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Transform still works against the old intermediate store.
	table, err := etl.Transform(dest, beagleOpts())
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestExtract_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "raw.json")
	err := (&etl.Extractor{}).Extract(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.PayloadParseError))
	assert.NoFileExists(t, dest)
}

func TestExtract_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := (&etl.Extractor{Timeout: time.Second}).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.NetworkError))
	assert.Equal(t, etl.StageExtract, etl.StageOf(err))
}

// ─────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────

func TestLoad_CreateThenAppend(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "fruit.csv")

	n, err := etl.Load(nameTable("apple"), dest, etl.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = etl.Load(nameTable("banana"), dest, etl.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, [][]string{{"name"}, {"apple"}, {"banana"}}, readCSV(t, dest, ','))
}

func TestLoad_EmptyTable(t *testing.T) {
	dir := t.TempDir()

	dest := filepath.Join(dir, "empty.csv")
	n, err := etl.Load(nameTable(), dest, etl.LoadOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, [][]string{{"name"}}, readCSV(t, dest, ','))

	rejected := filepath.Join(dir, "rejected.csv")
	_, err = etl.Load(nameTable(), rejected, etl.LoadOptions{RejectEmpty: true})
	require.Error(t, err)
	assert.NoFileExists(t, rejected)
}

func TestLoad_SchemaMismatchLeavesFileUntouched(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(dest, []byte("other\nx\n"), 0o644))

	_, err := etl.Load(nameTable("apple"), dest, etl.LoadOptions{})
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.SchemaMismatchError))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "other\nx\n", string(got))
}

func TestLoad_UnparseableExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(dest, []byte("name\n\"unterminated\n"), 0o644))

	_, err := etl.Load(nameTable("apple"), dest, etl.LoadOptions{})
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.StorageReadError))
}

func TestLoad_UnwritableDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing-dir", "t.csv")
	_, err := etl.Load(nameTable("apple"), dest, etl.LoadOptions{})
	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.StorageWriteError))
}

func TestLoad_TabDelimitedAndValueText(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "t.tsv")
	table := &etl.Table{
		Schema: &etl.Schema{Fields: []etl.Field{{Name: "s"}, {Name: "b"}, {Name: "n"}, {Name: "f"}, {Name: "ts"}, {Name: "none"}}},
		Records: []etl.Record{{Data: map[string]any{
			"s": "a,b", "b": true, "n": int64(15), "f": 2.5,
			"ts": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "none": nil,
		}}},
	}

	_, err := etl.Load(table, dest, etl.LoadOptions{Delimiter: etl.DelimiterFor(dest)})
	require.NoError(t, err)

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "s\tb\tn\tf\tts\tnone\na,b\ttrue\t15\t2.5\t2024-01-02 03:04:05\t\n", string(raw))
}

func TestDelimiterFor(t *testing.T) {
	assert.Equal(t, '\t', etl.DelimiterFor("out/x.TSV"))
	assert.Equal(t, ',', etl.DelimiterFor("out/x.csv"))
	assert.Equal(t, ',', etl.DelimiterFor("noext"))
}

// ─────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────

func TestPipeline_RunTwiceAppends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breedsJSON))
	}))
	defer srv.Close()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "dogs.csv")
	p := &etl.Pipeline{
		Name:      "dogs",
		URL:       srv.URL,
		RawPath:   filepath.Join(dir, "dogs.json"),
		Transform: beagleOpts(),
		Dest:      etl.NewDelimitedFile(csvPath),
	}

	for i := 0; i < 2; i++ {
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "success", res.Status)
		assert.Equal(t, 2, res.RowsRead)
		assert.Equal(t, 2, res.RowsWritten)
	}

	_, err := etl.Load(&etl.Table{
		Schema:  &etl.Schema{Fields: []etl.Field{{Name: "name"}, {Name: "hypoallergenic"}, {Name: "life.max"}}},
		Records: []etl.Record{{Data: map[string]any{"name": "Pug", "hypoallergenic": false, "life.max": int64(13)}}},
	}, csvPath, etl.LoadOptions{})
	require.NoError(t, err)

	rows := readCSV(t, csvPath, ',')
	require.Len(t, rows, 1+2+2+1)
	assert.Equal(t, []string{"name", "hypoallergenic", "life.max"}, rows[0])
	assert.Equal(t, []string{"Poodle, Standard", "true", "18"}, rows[2])
	assert.Equal(t, []string{"Pug", "false", "13"}, rows[5])
}

func TestPipeline_ExtractFailureSkipsLaterStages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "dogs.csv")
	p := &etl.Pipeline{
		URL:       srv.URL,
		RawPath:   filepath.Join(dir, "dogs.json"),
		Transform: beagleOpts(),
		Dest:      etl.NewDelimitedFile(csvPath),
	}

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, etl.StageExtract, res.Stage)
	assert.NoFileExists(t, csvPath)
}

// countingDest records how often Write is reached.
type countingDest struct {
	next  etl.Destination
	calls int
}

func (d *countingDest) Write(ctx context.Context, table *etl.Table) (int, error) {
	d.calls++
	return d.next.Write(ctx, table)
}

func TestPipeline_TransformFailureSkipsLoad(t *testing.T) {
	tests := []struct {
		name string
		body string
		opts etl.TransformOptions
	}{
		{"unresolved selector", breedsJSON, etl.TransformOptions{
			Selector:    etl.FieldSelector{"attributes.name", "attributes.weight"},
			RecordsKey:  "data",
			StripPrefix: etl.DefaultStripPrefix,
		}},
		{"scalar envelope", `{"data":"none"}`, beagleOpts()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			dir := t.TempDir()
			csvPath := filepath.Join(dir, "dogs.csv")
			dest := &countingDest{next: etl.NewDelimitedFile(csvPath)}
			p := &etl.Pipeline{
				URL:       srv.URL,
				RawPath:   filepath.Join(dir, "dogs.json"),
				Transform: tt.opts,
				Dest:      dest,
			}

			res, err := p.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, "error", res.Status)
			assert.Equal(t, etl.StageTransform, res.Stage)
			assert.True(t, etl.IsKind(err, etl.FieldResolutionError))
			assert.Zero(t, dest.calls)
			assert.NoFileExists(t, csvPath)
			assert.FileExists(t, filepath.Join(dir, "dogs.json"))
		})
	}
}

func TestPipeline_LoadFailureReportsLoadStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(breedsJSON))
	}))
	defer srv.Close()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "dogs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("breed,size\nBeagle,small\n"), 0o644))

	p := &etl.Pipeline{
		URL:       srv.URL,
		RawPath:   filepath.Join(dir, "dogs.json"),
		Transform: beagleOpts(),
		Dest:      etl.NewDelimitedFile(csvPath),
	}

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, etl.StageLoad, res.Stage)
	assert.True(t, etl.IsKind(err, etl.SchemaMismatchError))
	assert.Equal(t, 2, res.RowsRead)
	assert.Zero(t, res.RowsWritten)

	got, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "breed,size\nBeagle,small\n", string(got))
}

func TestPipeline_InMemoryPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"success","timestamp":1700000000,"iss_position":{"latitude":"1.0","longitude":"2.0"}}`))
	}))
	defer srv.Close()

	csvPath := filepath.Join(t.TempDir(), "iss.csv")
	p := &etl.Pipeline{
		URL: srv.URL,
		Transform: etl.TransformOptions{
			Steps: []etl.Transformer{&etl.EpochTimestamp{Field: "timestamp"}},
		},
		Dest: etl.NewDelimitedFile(csvPath),
	}
	for i := 0; i < 3; i++ {
		_, err := p.Run(context.Background())
		require.NoError(t, err)
	}

	rows := readCSV(t, csvPath, ',')
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"success", "2023-11-14 22:13:20", "1.0", "2.0"}, rows[3])
}
