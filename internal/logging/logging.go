package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Environment variables read by Setup. They configure where logs go, never
// what a pipeline does.
const (
	EnvDebug  = "DATAENG_DEBUG"
	EnvSeqURL = "DATAENG_SEQ_URL"
)

// multiHandler forwards log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Level returns DEBUG when EnvDebug is set, INFO otherwise.
func Level() slog.Level {
	if os.Getenv(EnvDebug) != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// NewConsoleHandler returns the text handler every binary logs through.
func NewConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup initializes the default logger for a binary named app and returns a
// cleanup function that flushes any remote sink.
func Setup(app string) (*slog.Logger, func()) {
	level := Level()
	console := NewConsoleHandler(os.Stderr, level)

	seqURL := os.Getenv(EnvSeqURL)
	if seqURL == "" {
		logger := slog.New(console).With("app", app)
		slog.SetDefault(logger)
		return logger, func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(10),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{Level: level}),
	)
	if seqHandler == nil {
		logger := slog.New(console).With("app", app)
		slog.SetDefault(logger)
		return logger, func() {}
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, seqHandler}}).With("app", app)
	slog.SetDefault(logger)
	return logger, func() { seqHandler.Close() }
}
