// Package logger configures log/slog for the runner and carries loggers through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

type Level string
type Provider string
type contextKeyT string

var contextKey = contextKeyT("github.com/pure-golang/bulkmail/logger")

const (
	INFO  Level = "info"
	ERROR Level = "error"
	WARN  Level = "warn"
	DEBUG Level = "debug"

	ProviderDevSlog Provider = "dev"      // for dev
	ProviderStdJson Provider = "std_json" // for production
	ProviderNoop    Provider = "noop"     // for unit tests
)

type Config struct {
	Provider Provider `envconfig:"LOG_PROVIDER" default:"std_json"`
	Level    Level    `envconfig:"LOG_LEVEL" default:"info"`
	// Stderr keeps stdout free for command output such as a printed plan.
	Stderr bool `envconfig:"LOG_STDERR" default:"true"`
	// File also receives every record as JSON, appended across runs.
	File string `envconfig:"LOG_FILE"`
}

// NewDefault creates a logger for the configured provider on stdout or stderr.
func NewDefault(c Config) *slog.Logger {
	return New(c, console(c))
}

// New creates a logger for the configured provider writing to w.
func New(c Config, w io.Writer) *slog.Logger {
	return slog.New(newHandler(c, w))
}

func newHandler(c Config, w io.Writer) slog.Handler {
	level := convertLevel(c.Level)
	switch c.Provider {
	case ProviderDevSlog:
		return newDev(w, level)
	case ProviderNoop:
		return NewNoop().Handler()
	case ProviderStdJson:
		fallthrough
	default:
		return newJSON(w, level)
	}
}

func console(c Config) io.Writer {
	if c.Stderr {
		return os.Stderr
	}
	return os.Stdout
}

// InitDefault installs the configured logger as the slog default and routes otel
// errors into it. The closer releases the log file, if any.
func InitDefault(c Config) (io.Closer, error) {
	h := newHandler(c, console(c))
	var closer io.Closer = nopCloser{}
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open log file %s", c.File)
		}
		h = fanout{h, newJSON(f, convertLevel(c.Level))}
		closer = f
	}

	slog.SetDefault(slog.New(h))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Default().Error(err.Error())
	}))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromContext extract logger from context if exists or return default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}

// NewContext pack logger into context.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey, l)
}

// WithRun returns a context whose logger stamps every record with the campaign run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return NewContext(ctx, FromContext(ctx).With("run_id", runID))
}

// FromContextWithErr extract logger from context and attach error field.
func FromContextWithErr(ctx context.Context, err error) *slog.Logger {
	l := FromContext(ctx)
	return appendErr(l, err)
}

func appendErr(l *slog.Logger, err error) *slog.Logger {
	var stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if errors.As(err, &stackTracer) {
		l = l.With("stack", stackTracer.StackTrace())
	}

	return l.With("error", err.Error())
}

// convertLevel accepts slog level names in any case. Unknown names mean info.
func convertLevel(level Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
