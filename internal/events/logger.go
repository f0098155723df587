package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// slogAdapter routes watermill's logging into slog.
type slogAdapter struct {
	l *slog.Logger
}

func newLogger(l *slog.Logger) watermill.LoggerAdapter {
	return slogAdapter{l: l.With("component", "watermill")}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func (a slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, append(attrs(fields), "err", err)...)
}

func (a slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, attrs(fields)...)
}

func (a slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, attrs(fields)...)
}

// Trace maps to debug; slog has no finer level.
func (a slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, attrs(fields)...)
}

func (a slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return slogAdapter{l: a.l.With(attrs(fields)...)}
}
