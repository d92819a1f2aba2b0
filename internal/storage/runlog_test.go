package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *RunLogStore {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "state", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunLogStore(db)
}

func TestRunLogStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		l := &RunLog{
			Job:         "breeds",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + time.Second),
			Status:      "success",
			RowsRead:    i,
			RowsWritten: i,
		}
		require.NoError(t, s.CreateRunLog(ctx, l))
		assert.NotEmpty(t, l.ID)
	}
	require.NoError(t, s.CreateRunLog(ctx, &RunLog{
		Job: "iss", StartedAt: base, FinishedAt: base, Status: "error", Stage: "extract", Error: "boom",
	}))

	logs, err := s.ListRunLogs(ctx, "breeds", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].RowsRead, "newest first")
	assert.Equal(t, "manual", logs[0].Trigger)
	assert.True(t, logs[0].StartedAt.Equal(base.Add(2*time.Minute)))

	logs, err = s.ListRunLogs(ctx, "iss", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "extract", logs[0].Stage)
	assert.Equal(t, "boom", logs[0].Error)
}

func TestRunLogStore_JobStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetJobStatus(ctx, "breeds")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateJobStatus(ctx, "breeds", "error", "status 500"))
	require.NoError(t, s.UpdateJobStatus(ctx, "breeds", "success", ""))

	st, err := s.GetJobStatus(ctx, "breeds")
	require.NoError(t, err)
	assert.Equal(t, "success", st.LastStatus)
	assert.Empty(t, st.LastError)
	assert.False(t, st.LastRunAt.IsZero())
}
