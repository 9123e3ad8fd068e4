package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore tees stdout and an optional rotated file into one core.
// The file is always JSON; the console is coloured text in development
// and JSON otherwise. An empty filePath yields a console-only core.
func NewMultiCore(level zapcore.Level, filePath string, fileConfig FileWriterConfig, isDev bool) (zapcore.Core, error) {
	console := zapcore.Lock(os.Stdout)
	if filePath == "" {
		return newConsoleCore(level, console, isDev), nil
	}

	fileWriter, err := NewFileWriterWithConfig(filePath, fileConfig)
	if err != nil {
		return nil, err
	}
	return NewMultiCoreWithWriters(level, console, fileWriter, isDev), nil
}

// NewMultiCoreWithWriters tees the given writers. Tests pass buffers.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)
	return zapcore.NewTee(newConsoleCore(level, consoleWriter, isDev), fileCore)
}

func newConsoleCore(level zapcore.Level, w zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var encoder zapcore.Encoder
	if isDev {
		encoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	return zapcore.NewCore(encoder, w, level)
}
