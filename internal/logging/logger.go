package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"ixperf/internal/config"
)

type Logger struct {
	*slog.Logger
	config *config.LoggingConfig
}

type ContextKey string

const (
	RunIDKey     ContextKey = "run_id"
	RequestIDKey ContextKey = "request_id"
	PhaseKey     ContextKey = "phase"
)

// NewLogger creates a new structured logger using slog
func NewLogger(cfg *config.LoggingConfig) *Logger {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			writer = file
		} else {
			writer = os.Stderr
			slog.Warn("Failed to open log file, using stderr", "error", err, "file", cfg.Output)
		}
	}

	logger := NewLoggerWithWriter(cfg, writer)
	slog.SetDefault(logger.Logger)
	return logger
}

// NewLoggerWithWriter creates a logger that writes to w regardless of
// cfg.Output. Reports go to stdout, so logs default to stderr.
func NewLoggerWithWriter(cfg *config.LoggingConfig, w io.Writer) *Logger {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

// ParseLevel maps a configured level name to a slog level
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext creates a new logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if runID := ctx.Value(RunIDKey); runID != nil {
		logger = logger.With("run_id", runID)
	}
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		logger = logger.With("request_id", requestID)
	}
	if phase := ctx.Value(PhaseKey); phase != nil {
		logger = logger.With("phase", phase)
	}

	return &Logger{
		Logger: logger,
		config: l.config,
	}
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	var args []interface{}
	for key, value := range fields {
		args = append(args, key, value)
	}

	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithField creates a new logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(key, value),
		config: l.config,
	}
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
		config: l.config,
	}
}

// PhaseStart logs the start of a benchmark phase
func (l *Logger) PhaseStart(ctx context.Context, phase string, tasks int, ops uint64) {
	l.WithContext(ctx).Info("Phase started",
		"phase", phase,
		"tasks", tasks,
		"operations", ops,
	)
}

// PhaseEnd logs the end of a benchmark phase
func (l *Logger) PhaseEnd(ctx context.Context, phase string, ops uint64, elapsed time.Duration, err error) {
	logger := l.WithContext(ctx).With(
		"phase", phase,
		"operations", ops,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	if err != nil {
		logger.Error("Phase failed", "error", err.Error())
		return
	}

	if secs := elapsed.Seconds(); secs > 0 {
		logger = logger.With("ops_per_sec", float64(ops)/secs)
	}
	logger.Info("Phase completed")
}

// TaskStats logs the periodic counters of one executor
func (l *Logger) TaskStats(ctx context.Context, task string, id int, stats string) {
	l.WithContext(ctx).Info("Periodic stats",
		"task", task,
		"task_id", id,
		"stats", stats,
	)
}

// IndexEvent logs lifecycle events of the index under test
func (l *Logger) IndexEvent(ctx context.Context, event, index string, details map[string]interface{}) {
	args := []interface{}{
		"event", event,
		"index", index,
	}

	for key, value := range details {
		args = append(args, key, value)
	}

	l.WithContext(ctx).Info("Index event", args...)
}

// RequestEnd logs the end of a monitoring request
func (l *Logger) RequestEnd(ctx context.Context, method, path string, statusCode int, duration time.Duration, size int64) {
	level := slog.LevelDebug
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	l.WithContext(ctx).Log(ctx, level, "Request completed",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", size,
	)
}
