package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// multiHandler fans a record out to every handler that accepts it at
// its own level, so one logger can write human-facing output to stdout
// and a filtered error stream to a file at the same time.
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
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// NewLogger builds the process logger: a JSON handler on stdout at the
// default level, plus a second JSON handler writing only Error-level
// records (with their stack-bearing attrs) to errorLogPath. Grounded on
// the teacher's single stdout JSON handler in cmd/wmap/main.go,
// generalized here to a second file-backed destination for exceptions.
// The returned close func flushes and closes the error log file.
func NewLogger(errorLogPath string) (*slog.Logger, func() error, error) {
	stdout := slog.NewJSONHandler(os.Stdout, nil)

	f, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open device error log %q: %w", errorLogPath, err)
	}
	errHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level:     slog.LevelError,
		AddSource: true,
	})

	logger := slog.New(&multiHandler{handlers: []slog.Handler{stdout, errHandler}})
	return logger, f.Close, nil
}
