package etl

import (
	"context"
	"log/slog"
	"time"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: Extract → Transform → Load, strictly in that order.
// The first failing stage aborts the run; later stages are not invoked.

// Pipeline holds the configuration for a single ETL run.
type Pipeline struct {
	Name string
	URL  string
	// RawPath is the intermediate RawPayload file. When empty the fetched
	// payload is transformed in memory and never persisted.
	RawPath   string
	Transform TransformOptions
	Dest      Destination
	Extractor *Extractor
	Logger    *slog.Logger
}

// Result is the outcome of running a pipeline.
type Result struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"` // "success" | "error"
	Stage       Stage         `json:"stage,omitempty"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Run executes the pipeline end-to-end.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{Name: p.Name}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	x := p.Extractor
	if x == nil {
		x = &Extractor{Logger: log}
	}

	fail := func(stage Stage, err error) (*Result, error) {
		result.Status = "error"
		result.Stage = stage
		result.Error = err.Error()
		result.Duration = time.Since(start)
		log.Error("stage failed", "stage", stage, "kind", KindOf(err).String(), "error", err)
		return result, err
	}

	// 1. Extract.
	var (
		table *Table
		err   error
	)
	if p.RawPath != "" {
		if err := x.Extract(ctx, p.URL, p.RawPath); err != nil {
			return fail(StageExtract, err)
		}
		// 2. Transform from the intermediate store.
		log.Info("cleaning and organizing data", "path", p.RawPath)
		table, err = Transform(p.RawPath, p.Transform)
	} else {
		payload, ferr := x.Fetch(ctx, p.URL)
		if ferr != nil {
			return fail(StageExtract, ferr)
		}
		log.Info("transforming payload in memory")
		table, err = TransformPayload(payload, p.Transform)
	}
	if err != nil {
		return fail(StageTransform, err)
	}
	result.RowsRead = table.Len()
	log.Info("transformed", "rows", table.Len(), "columns", len(table.Schema.Fields))

	// 3. Load.
	written, err := p.Dest.Write(ctx, table)
	if err != nil {
		return fail(StageLoad, err)
	}
	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	log.Info("loaded transformed data", "rows", written, "duration", result.Duration)
	return result, nil
}
