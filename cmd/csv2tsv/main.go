// Command csv2tsv rewrites a delimited file with a different delimiter.
// The delimiters follow the file extensions, so the same binary turns
// a .csv into a .tsv and back.
//
//	csv2tsv <input.csv> <output.tsv>
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"dataeng/internal/convert"
	"dataeng/internal/etl"
	"dataeng/internal/logging"
)

func main() {
	logger, cleanup := logging.Setup("csv2tsv")
	code := run(os.Args, os.Stderr, logger)
	cleanup()
	os.Exit(code)
}

func run(args []string, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 3 {
		name := "csv2tsv"
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintf(stderr, "Usage: %s <input.csv> <output.tsv>\n", name)
		return 1
	}
	src, dst := args[1], args[2]

	from, to := etl.DelimiterFor(src), etl.DelimiterFor(dst)
	if from == to {
		// csv2tsv foo.txt bar.txt still means comma to tab.
		from, to = ',', '\t'
	}

	rows, err := convert.ConvertFile(src, dst, convert.Options{From: from, To: to})
	if err != nil {
		logger.Error("conversion failed", "input", src, "output", dst, "error", err)
		return 1
	}
	logger.Info("conversion complete", "input", src, "output", dst, "rows", rows)
	return 0
}
