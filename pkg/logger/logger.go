// Package logger defines the logging abstraction used across driftwatch.
// Components receive or resolve a Logger handle instead of talking to a
// concrete logging backend.
package logger

import (
	"github.com/perfscale/driftwatch/pkg/logger/conf"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// Logger is the logging interface implemented by the logrus wrapper.
type Logger interface {
	Log(level conf.Level, args ...interface{})
	Logf(level conf.Level, format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithFields(fields Fields) Logger
	SetLevel(level conf.Level)
}
