// Command ghevents prints the five most recent public GitHub events of
// the user named by GITHUB_USER.
//
//	GITHUB_USER=octocat ghevents
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"dataeng/internal/etl"
	"dataeng/internal/logging"
)

const (
	githubAPI  = "https://api.github.com"
	eventCount = 5
)

var eventFields = etl.FieldSelector{"type", "repo.name"}

func main() {
	logger, cleanup := logging.Setup("ghevents")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Getenv("GITHUB_USER"), githubAPI, os.Stdout, os.Stderr, logger)
	stop()
	cleanup()
	os.Exit(code)
}

func run(ctx context.Context, user, api string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if user == "" {
		fmt.Fprintln(stderr, "Usage: GITHUB_USER=<login> ghevents")
		return 1
	}

	x := &etl.Extractor{Logger: logger}
	payload, err := x.Fetch(ctx, api+"/users/"+url.PathEscape(user)+"/events")
	if err != nil {
		logger.Error("fetch events", "user", user, "kind", etl.KindOf(err).String(), "error", err)
		return 1
	}

	table, err := etl.TransformPayload(payload, etl.TransformOptions{
		Selector: eventFields,
		Steps:    []etl.Transformer{etl.NewLimitTransform(eventCount)},
	})
	if err != nil {
		logger.Error("read events", "user", user, "error", err)
		return 1
	}

	for _, r := range table.Records {
		fmt.Fprintf(stdout, "%s :: %s\n", etl.FormatValue(r.Data["type"]), etl.FormatValue(r.Data["repo.name"]))
	}
	return 0
}
