// Command etlsched runs the jobs of a YAML jobs file on their cron
// schedules and file watches until interrupted.
//
//	etlsched <jobs.yaml>                  run until SIGINT/SIGTERM
//	etlsched <jobs.yaml> <job>            run one job now and exit
//	etlsched <jobs.yaml> --all            run every job once and exit
//	etlsched <jobs.yaml> --status [job]   print recent runs and exit
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"dataeng/internal/config"
	"dataeng/internal/logging"
	"dataeng/internal/service"
	"dataeng/internal/storage"
)

const (
	shutdownGrace = 30 * time.Second
	statusRuns    = 10
)

func main() {
	logger, cleanup := logging.Setup("etlsched")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr, logger)
	stop()
	cleanup()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 2 {
		name := "etlsched"
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintf(stderr, "Usage: %s <jobs.yaml> [job|--all|--status [job]]\n", name)
		return 1
	}

	jobs, err := config.LoadJobs(args[1])
	if err != nil {
		logger.Error("load jobs", "error", err)
		return 1
	}

	db, err := storage.New(jobs.RunLog)
	if err != nil {
		logger.Error("open run log", "path", jobs.RunLog, "error", err)
		return 1
	}
	defer db.Close()

	svc := service.NewETLService(jobs, storage.NewRunLogStore(db), service.LogEmitter{Logger: logger}, logger)
	defer svc.Close()

	if len(args) > 2 && args[2] == "--status" {
		names := args[3:]
		if len(names) == 0 {
			for _, j := range jobs.Jobs {
				names = append(names, j.Name)
			}
		}
		if err := printStatus(ctx, stdout, svc, names); err != nil {
			logger.Error("status", "error", err)
			return 1
		}
		return 0
	}

	if len(args) > 2 {
		var err error
		if args[2] == "--all" {
			_, err = svc.RunAll(ctx)
		} else {
			_, err = svc.RunJob(ctx, args[2])
		}
		if err != nil {
			return 1
		}
		return 0
	}

	if err := svc.Start(ctx); err != nil {
		logger.Error("start scheduler", "error", err)
		return 1
	}
	logger.Info("scheduler running", "jobs", len(jobs.Jobs))

	<-ctx.Done()
	logger.Info("shutting down")
	svc.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	svc.WaitRunning(waitCtx)
	return 0
}

func printStatus(ctx context.Context, w io.Writer, svc *service.ETLService, names []string) error {
	for i, name := range names {
		rep, err := svc.Status(ctx, name, statusRuns)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		if rep.Last == nil {
			fmt.Fprintf(w, "%s: never run\n", name)
			continue
		}
		fmt.Fprintf(w, "%s: %s at %s\n", name, rep.Last.LastStatus, rep.Last.LastRunAt.UTC().Format(time.DateTime))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tSTAGE\tREAD\tWRITTEN\tERROR")
		for _, r := range rep.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				r.StartedAt.UTC().Format(time.DateTime), r.Trigger, r.Status, r.Stage, r.RowsRead, r.RowsWritten, r.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
