// Package convert rewrites delimited text from one delimiter to another.
//
// Fields are parsed, not string-replaced, so a quoted "a,b" stays one field
// when a CSV becomes a TSV.
package convert

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// Options controls how input is parsed.
type Options struct {
	From rune // input delimiter
	To   rune // output delimiter
	// Strict rejects rows whose field count differs from the first row.
	Strict bool
}

// Convert copies every row of r to w, switching delimiters.
// It returns the number of rows written, header included.
func Convert(r io.Reader, w io.Writer, opts Options) (int, error) {
	if opts.From == 0 || opts.To == 0 {
		return 0, errors.New("both delimiters are required")
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.From
	reader.LazyQuotes = true
	if !opts.Strict {
		reader.FieldsPerRecord = -1
	}

	writer := csv.NewWriter(w)
	writer.Comma = opts.To

	rows := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("parse row %d: %w", rows+1, err)
		}
		if err := writer.Write(rec); err != nil {
			return rows, fmt.Errorf("write row %d: %w", rows+1, err)
		}
		rows++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush: %w", err)
	}
	return rows, nil
}

// ConvertFile converts src into dst. dst is replaced atomically, so a failed
// conversion leaves any earlier dst in place.
func ConvertFile(src, dst string, opts Options) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer out.Cleanup()

	rows, err := Convert(in, out, opts)
	if err != nil {
		return rows, err
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return rows, fmt.Errorf("replace output: %w", err)
	}
	return rows, nil
}
