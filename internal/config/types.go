package config

import (
	"errors"
	"strings"

	"go.uber.org/zap/zapcore"
)

var (
	// ErrNotInCluster is returned when the service account namespace file is absent,
	// which means the process is not running inside a Kubernetes pod.
	ErrNotInCluster = errors.New("namespace file missing, likely not in a kubernetes context")
	// ErrMissingDeploymentName is returned when LAZYMC_K8S_DEPLOYMENT_NAME is unset or empty.
	ErrMissingDeploymentName = errors.New("missing required environment variable " + EnvPrefix + "_" + strings.ToUpper(keyDeploymentName))
	// ErrInvalidReplicaCount is returned when a replica count is not a non-negative integer.
	ErrInvalidReplicaCount = errors.New("replica count must be a non-negative integer")
)

// LogLevel is the severity threshold of the sidecar's logger.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelFatal   LogLevel = "fatal"
)

// ParseLogLevel matches s case-insensitively against the known levels.
// Unknown values fall back to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelFatal:
		return level
	default:
		return LogLevelInfo
	}
}

// ZapLevel maps the level onto zap's severities. logr has no severity above
// error, so LogLevelFatal keeps error lines and is equivalent to LogLevelError.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarning:
		return zapcore.WarnLevel
	case LogLevelError, LogLevelFatal:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
