package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		NewConsoleHandler(&a, slog.LevelInfo),
		NewConsoleHandler(&b, slog.LevelDebug),
	}}
	logger := slog.New(h).With("component", "etl")

	logger.Debug("only debug")
	logger.Info("both")

	assert.NotContains(t, a.String(), "only debug")
	assert.Contains(t, a.String(), "both")
	assert.Contains(t, b.String(), "only debug")
	assert.Contains(t, b.String(), "component=etl")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestLevel(t *testing.T) {
	t.Setenv(EnvDebug, "")
	assert.Equal(t, slog.LevelInfo, Level())
	t.Setenv(EnvDebug, "1")
	assert.Equal(t, slog.LevelDebug, Level())
}

func TestSetup_ConsoleOnly(t *testing.T) {
	t.Setenv(EnvSeqURL, "")
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, cleanup := Setup("test")
	defer cleanup()
	assert.NotNil(t, logger)
	assert.Same(t, logger, slog.Default())
}
