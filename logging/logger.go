package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how NewLogger builds its cores.
type Options struct {
	// Development selects coloured console output and debug level.
	Development bool

	// FilePath is the rotated JSON log file. Empty disables file output.
	FilePath string

	// Level overrides the mode default (debug, info, warn, error).
	Level string

	// File tunes rotation. Zero values fall back to DefaultFileWriterConfig.
	File FileWriterConfig
}

// Logger is the logging organism shared by every component. It wraps a
// zap.Logger and redacts API keys and passwords before anything is encoded.
//
// Components take a child logger from Named so entries carry their source:
//
//	log := logger.Named("pipeline")
//	log.Info("image saved", zap.String("path", path))
type Logger struct {
	zap           *zap.Logger
	isDevelopment bool
	logFilePath   string
}

// NewLogger builds a Logger that tees to stdout and, when FilePath is set,
// a lumberjack-rotated file.
func NewLogger(opts Options) (*Logger, error) {
	level := InfoLevel
	if opts.Development {
		level = DebugLevel
	}
	level = ParseLogLevelString(opts.Level, level)

	core, err := NewMultiCore(level, opts.FilePath, opts.File, opts.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}

	return &Logger{
		zap:           zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		isDevelopment: opts.Development,
		logFilePath:   opts.FilePath,
	}, nil
}

// FromCore wraps an existing core. Tests use it with zaptest/observer.
func FromCore(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries. Call it before exit.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Fatal logs then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactFields(fields)...)
}

// Infof logs a formatted message. Arguments are not redacted, so never pass
// credentials through it.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.zap.Sugar().Infof(template, args...)
}

// With returns a child logger that adds fields to every entry, typically a
// correlation_id for one request.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:           l.zap.With(redactFields(fields)...),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name, e.g. "safety" or "webui".
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:           l.zap.Named(name),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap exposes the underlying logger for libraries that want a *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	if field.Type == zapcore.StringType {
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}
	return field
}
