// Command etl extracts dog-breed data from a public REST API, keeps the raw
// JSON, and appends a cleaned table to a CSV or TSV file.
//
//	etl <json_file> <csv_file>
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

const breedsURL = "https://dogapi.dog/api/v2/breeds/"

var breedFields = etl.FieldSelector{
	"attributes.name",
	"attributes.hypoallergenic",
	"attributes.life.max",
}

func main() {
	logger, cleanup := logging.Setup("etl")
	code := run(os.Args, os.Stderr, logger, breedsURL)
	cleanup()
	os.Exit(code)
}

// run executes the pipeline and returns the process exit code.
func run(args []string, stderr io.Writer, logger *slog.Logger, url string) int {
	if len(args) < 3 {
		fmt.Fprintf(stderr, "Usage: %s <json_file> <csv_file>\n", progName(args))
		return 1
	}
	jsonFile, csvFile := args[1], args[2]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("ETL pipeline starting", "json", jsonFile, "csv", csvFile)

	p := &etl.Pipeline{
		Name:    "dog-breeds",
		URL:     url,
		RawPath: jsonFile,
		Transform: etl.TransformOptions{
			Selector:    breedFields,
			RecordsKey:  "data",
			StripPrefix: etl.DefaultStripPrefix,
		},
		Dest:      etl.NewDelimitedFile(csvFile),
		Extractor: &etl.Extractor{Logger: logger},
		Logger:    logger,
	}

	result, err := p.Run(ctx)
	if err != nil {
		logger.Error("ETL pipeline aborted", "stage", result.Stage, "error", err)
		return 1
	}
	logger.Info("processed records", "count", result.RowsWritten, "duration", result.Duration)
	return 0
}

func progName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "etl"
}
