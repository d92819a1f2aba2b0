// Package service runs configured ETL jobs on demand, on a cron
// schedule, or when a watched file changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"dataeng/internal/config"
	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	"dataeng/internal/etl/destinations"
	"dataeng/internal/storage"
)

const (
	// DefaultJobTimeout bounds a run whose job sets no timeout.
	DefaultJobTimeout = 5 * time.Minute
	watchDebounce     = 500 * time.Millisecond
	maxParallelRuns   = 4
)

// Trigger names what started a run.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "watch"
)

// ErrAlreadyRunning is returned by RunJob when the job has a run in flight.
var ErrAlreadyRunning = errors.New("job is already running")

// ─────────────────────────────────────────────────────────────
// ETL Service: runs the jobs of a jobs file
// ─────────────────────────────────────────────────────────────

// ETLService runs jobs, schedules them, and watches their trigger files.
type ETLService struct {
	jobs        *config.Jobs
	store       *storage.RunLogStore // nil disables run logs
	emitter     EventEmitter
	logger      *slog.Logger
	extractor   *etl.Extractor
	runningJobs runningJobsGuard

	connMu sync.Mutex
	conns  map[string]dbclient.Connector

	// watcher / cron lifecycle
	lifeMu      sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewETLService creates an ETLService ready for use. store and emitter
// may be nil.
func NewETLService(jobs *config.Jobs, store *storage.RunLogStore, emitter EventEmitter, logger *slog.Logger) *ETLService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	if jobs == nil {
		jobs = &config.Jobs{}
	}
	logger = logger.With("component", "etl-service")
	return &ETLService{
		jobs:      jobs,
		store:     store,
		emitter:   emitter,
		logger:    logger,
		extractor: &etl.Extractor{Logger: logger},
		conns:     make(map[string]dbclient.Connector),
	}
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes the named job synchronously.
func (s *ETLService) RunJob(ctx context.Context, name string) (*etl.Result, error) {
	return s.runJob(ctx, name, TriggerManual)
}

func (s *ETLService) runJob(ctx context.Context, name, trigger string) (*etl.Result, error) {
	job, ok := s.jobs.Job(name)
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	if !s.runningJobs.TryLock(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	defer s.runningJobs.Unlock(name)

	log := s.logger.With("job", name, "trigger", trigger)
	s.emitter.Emit(ctx, EventJobStarted, name)

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		result *etl.Result
		runErr error
	)
	p, stage, err := s.buildPipeline(job, log)
	if err != nil {
		result = &etl.Result{Name: name, Status: "error", Stage: stage, Error: err.Error()}
		runErr = err
	} else {
		result, runErr = p.Run(runCtx)
	}

	s.recordRun(ctx, name, trigger, start, result, runErr, log)
	s.emitter.Emit(ctx, EventJobCompleted, result)
	return result, runErr
}

// RunAll runs every job once, a few at a time. Results are in jobs-file
// order; a failed job does not stop the others and its error is joined
// into the returned error.
func (s *ETLService) RunAll(ctx context.Context) ([]*etl.Result, error) {
	results := make([]*etl.Result, len(s.jobs.Jobs))
	errs := make([]error, len(s.jobs.Jobs))

	var g errgroup.Group
	g.SetLimit(maxParallelRuns)
	for i, j := range s.jobs.Jobs {
		g.Go(func() error {
			results[i], errs[i] = s.runJob(ctx, j.Name, TriggerManual)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func (s *ETLService) recordRun(ctx context.Context, name, trigger string, start time.Time, result *etl.Result, runErr error, log *slog.Logger) {
	if s.store == nil {
		return
	}
	// Record even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	runLog := &storage.RunLog{
		Job:         name,
		Trigger:     trigger,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		Stage:       string(result.Stage),
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	runLog.Error = errMsg
	if err := s.store.CreateRunLog(ctx, runLog); err != nil {
		log.Warn("failed to record run", "error", err)
	}
	if err := s.store.UpdateJobStatus(ctx, name, result.Status, errMsg); err != nil {
		log.Warn("failed to update job status", "error", err)
	}
}

// ListRunLogs returns the job's most recent runs, newest first. A limit
// of zero means 50.
func (s *ETLService) ListRunLogs(ctx context.Context, name string, limit int) ([]storage.RunLog, error) {
	if s.store == nil {
		return nil, errors.New("run logs are disabled")
	}
	return s.store.ListRunLogs(ctx, name, limit)
}

// JobReport is what Status knows about one job.
type JobReport struct {
	Job     string
	Running bool               // a run is in flight in this process
	Last    *storage.JobStatus // nil when the job has never run
	Runs    []storage.RunLog   // newest first
}

// Status reports the job's latest outcome and up to limit recent runs.
func (s *ETLService) Status(ctx context.Context, name string, limit int) (*JobReport, error) {
	if _, ok := s.jobs.Job(name); !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	rep := &JobReport{Job: name, Running: s.runningJobs.IsRunning(name)}
	if s.store == nil {
		return rep, nil
	}

	last, err := s.store.GetJobStatus(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		rep.Last = last
	}
	if rep.Runs, err = s.ListRunLogs(ctx, name, limit); err != nil {
		return nil, err
	}
	return rep, nil
}

// buildPipeline turns a configured job into a pipeline. On failure it
// also reports the stage whose configuration was rejected.
func (s *ETLService) buildPipeline(job config.Job, log *slog.Logger) (*etl.Pipeline, etl.Stage, error) {
	steps, err := etl.BuildTransformers(job.Transforms)
	if err != nil {
		return nil, etl.StageTransform, err
	}
	dest, err := s.destination(job.Destination)
	if err != nil {
		return nil, etl.StageLoad, err
	}
	return &etl.Pipeline{
		Name:    job.Name,
		URL:     job.URL,
		RawPath: job.Raw,
		Transform: etl.TransformOptions{
			Selector:    etl.FieldSelector(job.Fields),
			RecordsKey:  job.RecordsKey,
			StripPrefix: job.StripPrefix,
			Steps:       steps,
		},
		Dest:      dest,
		Extractor: s.extractor,
		Logger:    log,
	}, "", nil
}

func (s *ETLService) destination(d config.DestinationConfig) (etl.Destination, error) {
	switch strings.ToLower(d.Type) {
	case config.DestSQL:
		conn, err := s.connector(d.Connection)
		if err != nil {
			return nil, err
		}
		return &destinations.SQLTable{Conn: conn, Table: d.Table}, nil
	case config.DestMongo:
		conn, err := s.connector(d.Connection)
		if err != nil {
			return nil, err
		}
		return &destinations.MongoCollection{Conn: conn, Collection: d.Collection}, nil
	case config.DestTSV:
		return &etl.DelimitedFile{Path: d.Path, Options: etl.LoadOptions{Delimiter: '\t', RejectEmpty: d.RejectEmpty}}, nil
	default:
		f := etl.NewDelimitedFile(d.Path)
		f.Options.RejectEmpty = d.RejectEmpty
		return f, nil
	}
}

// connector opens the named connection once and reuses it.
func (s *ETLService) connector(name string) (dbclient.Connector, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if c, ok := s.conns[name]; ok {
		return c, nil
	}
	cc, ok := s.jobs.Connections[name]
	if !ok {
		return nil, fmt.Errorf("unknown connection %q", name)
	}
	c, err := dbclient.NewConnector(&cc.Connection, cc.Password(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}
	s.conns[name] = c
	return c, nil
}

// ── Watchers (cron + file watch) ──────────────────────────

// Start registers cron schedules and file watchers for every job that
// has one. Runs they trigger use ctx.
func (s *ETLService) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopWatchersLocked()

	if err := s.startCronLocked(ctx); err != nil {
		return err
	}
	if err := s.startWatcherLocked(ctx); err != nil {
		s.stopWatchersLocked()
		return err
	}
	return nil
}

func (s *ETLService) startCronLocked(ctx context.Context) error {
	c := cron.New()
	n := 0
	for _, j := range s.jobs.Jobs {
		if j.Schedule == "" {
			continue
		}
		name := j.Name
		_, err := c.AddFunc(j.Schedule, func() {
			if s.runningJobs.IsRunning(name) {
				s.logger.Info("cron: previous run still in flight, skipping", "job", name)
				return
			}
			s.logger.Info("cron: running job", "job", name)
			if _, err := s.runJob(ctx, name, TriggerSchedule); err != nil {
				s.logger.Error("cron: job failed", "job", name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("job %s: invalid schedule %q: %w", name, j.Schedule, err)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	c.Start()
	s.cronSched = c
	s.logger.Info("cron: scheduled jobs", "count", n)
	return nil
}

func (s *ETLService) startWatcherLocked(ctx context.Context) error {
	pathToJob := make(map[string]string)
	for _, j := range s.jobs.Jobs {
		if j.Watch == "" {
			continue
		}
		absPath, err := filepath.Abs(j.Watch)
		if err != nil {
			return fmt.Errorf("job %s: bad watch path %q: %w", j.Name, j.Watch, err)
		}
		pathToJob[absPath] = j.Name
	}
	if len(pathToJob) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	// Watch directories so files that are replaced or created later still fire.
	watchedDirs := make(map[string]bool)
	for p := range pathToJob {
		dir := filepath.Dir(p)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch dir %q: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToJob)

	s.logger.Info("watcher: watching files", "count", len(pathToJob))
	return nil
}

func (s *ETLService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToJob map[string]string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			name, ok := pathToJob[absPath]
			if !ok {
				continue
			}
			if t, exists := timers[name]; exists {
				t.Stop()
			}
			timers[name] = time.AfterFunc(watchDebounce, func() {
				s.logger.Info("watcher: file changed, running job", "path", absPath, "job", name)
				if _, err := s.runJob(ctx, name, TriggerWatch); err != nil {
					s.logger.Error("watcher: run failed", "job", name, "error", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher: error", "error", err)
		}
	}
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ETLService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers. Runs already in flight
// keep going; use WaitRunning to wait for them.
func (s *ETLService) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopWatchersLocked()
}

// Close stops the service and closes every opened database connection.
func (s *ETLService) Close() error {
	s.Stop()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	var errs []error
	for name, c := range s.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.conns, name)
	}
	return errors.Join(errs...)
}

func (s *ETLService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
