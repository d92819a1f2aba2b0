package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunLog records one execution of a job.
type RunLog struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	Trigger     string    `json:"trigger"` // manual | schedule | watch
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"` // success | error
	Stage       string    `json:"stage,omitempty"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// JobStatus is the outcome of a job's latest run.
type JobStatus struct {
	Job        string    `json:"job"`
	LastRunAt  time.Time `json:"lastRunAt"`
	LastStatus string    `json:"lastStatus"`
	LastError  string    `json:"lastError,omitempty"`
}

// ErrNotFound is returned when a job has never run.
var ErrNotFound = errors.New("not found")

// RunLogStore implements persistence for job run history.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// CreateRunLog stores l, assigning it a fresh ID.
func (s *RunLogStore) CreateRunLog(ctx context.Context, l *RunLog) error {
	l.ID = uuid.New().String()
	if l.Trigger == "" {
		l.Trigger = "manual"
	}
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO etl_run_logs (id, job, trigger_type, started_at, finished_at, status, stage, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Job, l.Trigger, l.StartedAt.UTC(), l.FinishedAt.UTC(), l.Status, l.Stage, l.RowsRead, l.RowsWritten, l.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the job's most recent runs, newest first.
func (s *RunLogStore) ListRunLogs(ctx context.Context, job string, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, job, trigger_type, started_at, finished_at, status, stage, rows_read, rows_written, error
		 FROM etl_run_logs WHERE job = ? ORDER BY started_at DESC LIMIT ?`,
		job, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		if err := rows.Scan(&l.ID, &l.Job, &l.Trigger, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Stage,
			&l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpdateJobStatus records the outcome of the job's latest run.
func (s *RunLogStore) UpdateJobStatus(ctx context.Context, job, status, errMsg string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO etl_job_status (job, last_run_at, last_status, last_error) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job) DO UPDATE SET last_run_at = excluded.last_run_at,
		 last_status = excluded.last_status, last_error = excluded.last_error`,
		job, time.Now().UTC(), status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// GetJobStatus returns the job's latest outcome, or ErrNotFound.
func (s *RunLogStore) GetJobStatus(ctx context.Context, job string) (*JobStatus, error) {
	st := &JobStatus{}
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT job, last_run_at, last_status, last_error FROM etl_job_status WHERE job = ?`, job,
	).Scan(&st.Job, &st.LastRunAt, &st.LastStatus, &st.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job status %s: %w", job, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return st, nil
}
