package etl

import "context"

// ── Destination ────────────────────────────────────────────
// A Destination writes a transformed Table into a target store.
// Every destination appends: rows already there are kept, nothing is
// deduplicated.

// Destination writes records to a target system.
type Destination interface {
	Write(ctx context.Context, table *Table) (int, error)
}

// DelimitedFile is the comma- or tab-separated file destination.
type DelimitedFile struct {
	Path    string
	Options LoadOptions
}

// NewDelimitedFile returns a DelimitedFile whose delimiter follows the
// path's extension.
func NewDelimitedFile(path string) *DelimitedFile {
	return &DelimitedFile{Path: path, Options: LoadOptions{Delimiter: DelimiterFor(path)}}
}

func (d *DelimitedFile) Write(ctx context.Context, table *Table) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, stageErr(StageLoad, StorageWriteError, "write", d.Path, err)
	}
	return Load(table, d.Path, d.Options)
}
