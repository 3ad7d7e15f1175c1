package logrus

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/perfscale/driftwatch/pkg/logger"
	"github.com/perfscale/driftwatch/pkg/logger/conf"
)

// LogrusWrapper adapts a logrus entry to the logger.Logger interface.
type LogrusWrapper struct {
	entry *logrus.Entry
}

func NewLogrusWrapper(config *conf.LogConfig) (logger.Logger, error) {
	l := logrus.New()

	level, err := toLogrusLevel(config.Level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(level)

	switch config.Format {
	case conf.JSONFormater:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	var out io.Writer = os.Stderr
	if config.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		})
	}
	l.SetOutput(out)

	return &LogrusWrapper{entry: logrus.NewEntry(l)}, nil
}

func toLogrusLevel(level conf.Level) (logrus.Level, error) {
	switch level {
	case conf.TraceLevel:
		return logrus.TraceLevel, nil
	case conf.DebugLevel:
		return logrus.DebugLevel, nil
	case conf.InfoLevel, "":
		return logrus.InfoLevel, nil
	case conf.WarnLevel:
		return logrus.WarnLevel, nil
	case conf.ErrorLevel:
		return logrus.ErrorLevel, nil
	case conf.FatalLevel:
		return logrus.FatalLevel, nil
	}
	return logrus.InfoLevel, errors.Errorf("unknown log level %q", level)
}

func (w *LogrusWrapper) Log(level conf.Level, args ...interface{}) {
	l, err := toLogrusLevel(level)
	if err != nil {
		l = logrus.InfoLevel
	}
	w.entry.Log(l, args...)
}

func (w *LogrusWrapper) Logf(level conf.Level, format string, args ...interface{}) {
	l, err := toLogrusLevel(level)
	if err != nil {
		l = logrus.InfoLevel
	}
	w.entry.Logf(l, format, args...)
}

func (w *LogrusWrapper) Trace(args ...interface{}) { w.entry.Trace(args...) }
func (w *LogrusWrapper) Tracef(format string, args ...interface{}) {
	w.entry.Tracef(format, args...)
}
func (w *LogrusWrapper) Debug(args ...interface{}) { w.entry.Debug(args...) }
func (w *LogrusWrapper) Debugf(format string, args ...interface{}) {
	w.entry.Debugf(format, args...)
}
func (w *LogrusWrapper) Info(args ...interface{}) { w.entry.Info(args...) }
func (w *LogrusWrapper) Infof(format string, args ...interface{}) {
	w.entry.Infof(format, args...)
}
func (w *LogrusWrapper) Warn(args ...interface{}) { w.entry.Warn(args...) }
func (w *LogrusWrapper) Warnf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}
func (w *LogrusWrapper) Error(args ...interface{}) { w.entry.Error(args...) }
func (w *LogrusWrapper) Errorf(format string, args ...interface{}) {
	w.entry.Errorf(format, args...)
}
func (w *LogrusWrapper) Fatal(args ...interface{}) { w.entry.Fatal(args...) }
func (w *LogrusWrapper) Fatalf(format string, args ...interface{}) {
	w.entry.Fatalf(format, args...)
}

func (w *LogrusWrapper) WithFields(fields logger.Fields) logger.Logger {
	return &LogrusWrapper{entry: w.entry.WithFields(logrus.Fields(fields))}
}

func (w *LogrusWrapper) SetLevel(level conf.Level) {
	l, err := toLogrusLevel(level)
	if err != nil {
		return
	}
	w.entry.Logger.SetLevel(l)
}
