// Command iss records the current position of the International Space
// Station, appending one row per run to a CSV file.
//
//	iss <csv_file>
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dataeng/internal/etl"
	"dataeng/internal/logging"
)

const issURL = "http://api.open-notify.org/iss-now.json"

// issFields fixes the table schema so every run appends the same columns.
var issFields = etl.FieldSelector{
	"message",
	"timestamp",
	"iss_position.latitude",
	"iss_position.longitude",
}

func main() {
	logger, cleanup := logging.Setup("iss")
	code := run(os.Args, os.Stderr, logger, issURL)
	cleanup()
	os.Exit(code)
}

func run(args []string, stderr io.Writer, logger *slog.Logger, url string) int {
	if len(args) < 2 {
		name := "iss"
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintf(stderr, "Usage: %s <csv_file>\n", name)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &etl.Pipeline{
		Name: "iss-position",
		URL:  url,
		Transform: etl.TransformOptions{
			Selector: issFields,
			Steps:    []etl.Transformer{&etl.EpochTimestamp{Field: "timestamp"}},
		},
		Dest:      etl.NewDelimitedFile(args[1]),
		Extractor: &etl.Extractor{Logger: logger},
		Logger:    logger,
	}
	if _, err := p.Run(ctx); err != nil {
		return 1
	}
	return 0
}
