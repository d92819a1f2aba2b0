package etl

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// LoadOptions configures the Load stage.
type LoadOptions struct {
	Delimiter   rune // ',' when zero
	RejectEmpty bool // fail instead of writing a header-only table
}

// DelimiterFor picks the delimiter conventionally used for path's extension.
func DelimiterFor(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return '\t'
	default:
		return ','
	}
}

// Load persists table to dest as delimited text and returns the number of
// new rows written.
//
// If dest does not exist it is created with a header row. If it exists, its
// rows are read back, the new rows are appended after them, and the whole
// table is rewritten through a temporary file, so a failed Load never
// truncates a previously valid table. The existing header must match the
// table's columns exactly.
func Load(table *Table, dest string, opts LoadOptions) (int, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	if table == nil || table.Schema == nil {
		return 0, stageErr(StageLoad, FieldResolutionError, "check table", dest, errors.New("no table to load"))
	}
	if table.Len() == 0 && opts.RejectEmpty {
		return 0, stageErr(StageLoad, FieldResolutionError, "check table", dest, errors.New("table has no rows"))
	}

	columns := table.Schema.FieldNames()

	existing, err := readTable(dest, delim)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 && !slices.Equal(existing[0], columns) {
		return 0, stageErr(StageLoad, SchemaMismatchError, "append", dest,
			fmt.Errorf("existing header [%s] does not match [%s]",
				strings.Join(existing[0], ", "), strings.Join(columns, ", ")))
	}

	if err := writeTable(dest, delim, columns, existing, table); err != nil {
		return 0, err
	}
	return table.Len(), nil
}

// readTable returns every row of dest, header first. A missing or empty
// file yields no rows.
func readTable(path string, delim rune) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, stageErr(StageLoad, StorageReadError, "open table", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	rows, err := r.ReadAll()
	if err != nil {
		return nil, stageErr(StageLoad, StorageReadError, "parse table", path, err)
	}
	return rows, nil
}

func writeTable(path string, delim rune, columns []string, existing [][]string, table *Table) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return stageErr(StageLoad, StorageWriteError, "create temp", path, err)
	}
	defer pf.Cleanup()

	w := csv.NewWriter(pf)
	w.Comma = delim

	rows := existing
	if len(rows) == 0 {
		rows = [][]string{columns}
	}
	if err := w.WriteAll(rows); err != nil {
		return stageErr(StageLoad, StorageWriteError, "write rows", path, err)
	}

	row := make([]string, len(columns))
	for _, rec := range table.Records {
		for i, v := range rec.Values(table.Schema) {
			row[i] = FormatValue(v)
		}
		if err := w.Write(row); err != nil {
			return stageErr(StageLoad, StorageWriteError, "write rows", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return stageErr(StageLoad, StorageWriteError, "write rows", path, err)
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return stageErr(StageLoad, StorageWriteError, "replace table", path, err)
	}
	return nil
}

// FormatValue renders a scalar the way it appears in a delimited table.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(TimestampLayout)
	default:
		return fmt.Sprint(x)
	}
}
