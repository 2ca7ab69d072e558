// Package logging builds the durable per-run log files that accompany the
// operator logger.
package logging

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileLogger writes JSON lines to a file in addition to a base logger.
type FileLogger struct {
	*zap.Logger
	file *os.File
}

// NewFileLogger creates or truncates path and returns a logger teeing into
// it and into base. The file core records every level.
func NewFileLogger(base *zap.Logger, path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "logging: create folder for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "logging: create %s", path)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)

	if base == nil {
		base = zap.NewNop()
	}
	logger := zap.New(zapcore.NewTee(base.Core(), fileCore))
	return &FileLogger{Logger: logger, file: f}, nil
}

// Path returns the file the logger writes to.
func (l *FileLogger) Path() string { return l.file.Name() }

// Close flushes and closes the file.
func (l *FileLogger) Close() error {
	_ = l.Logger.Sync()
	return eris.Wrapf(l.file.Close(), "logging: close %s", l.file.Name())
}

// Failure logs err at error level with its full eris trace.
func Failure(log *zap.Logger, msg string, err error) {
	log.Error(msg, zap.Error(err), zap.String("detail", eris.ToString(err, true)))
}
