// Package logging configures the controller-runtime logger used across the sidecar.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Verbosity levels passed to logr's V().
const (
	DEBUG = 1
)

// LoggerName prefixes every line emitted by the sidecar.
const LoggerName = "k8s-handler"

// NewLogger returns a single-line, severity-tagged console logger writing to w.
// Stack traces are only attached at panic level so errors stay on one line.
func NewLogger(level zapcore.Level, w io.Writer) logr.Logger {
	return zap.New(
		zap.WriteTo(w),
		zap.Level(level),
		zap.StacktraceLevel(zapcore.PanicLevel),
		zap.ConsoleEncoder(func(ec *zapcore.EncoderConfig) {
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
			ec.EncodeTime = zapcore.ISO8601TimeEncoder
		}),
	).WithName(LoggerName)
}

// InitLogger installs a logger at the given level as controller-runtime's
// global logger and returns it.
func InitLogger(level zapcore.Level) logr.Logger {
	logger := NewLogger(level, os.Stderr)
	ctrl.SetLogger(logger)
	return logger
}

// NewTestLogger installs a debug-level logger writing to w, for test suites.
func NewTestLogger(w io.Writer) {
	ctrl.SetLogger(NewLogger(zapcore.DebugLevel, w))
}
