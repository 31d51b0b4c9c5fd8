package logging

import (
	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a *logrus.Entry to the Logger interface, giving the
// orchestrator structured, leveled, field-tagged logs instead of the plain
// text emitted by DefaultLogger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds a Logger backed by logrus, tagging every line
// with the given component name.
func NewLogrusLogger(component string) *LogrusLogger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{entry: base.WithField("component", component)}
}

func (l *LogrusLogger) Info(v ...interface{})  { l.entry.Info(v...) }
func (l *LogrusLogger) Warn(v ...interface{})  { l.entry.Warn(v...) }
func (l *LogrusLogger) Error(v ...interface{}) { l.entry.Error(v...) }
func (l *LogrusLogger) Debug(v ...interface{}) { l.entry.Debug(v...) }
func (l *LogrusLogger) Fatal(v ...interface{}) { l.entry.Fatal(v...) }

func (l *LogrusLogger) Infof(format string, v ...interface{})  { l.entry.Infof(format, v...) }
func (l *LogrusLogger) Warnf(format string, v ...interface{})  { l.entry.Warnf(format, v...) }
func (l *LogrusLogger) Errorf(format string, v ...interface{}) { l.entry.Errorf(format, v...) }
func (l *LogrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *LogrusLogger) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }

func (l *LogrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithField(key, value)}
}
