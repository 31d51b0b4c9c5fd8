// Package logging provides the pluggable logger interface used across the
// cluster components, with a minimal stdlib-backed default and a richer
// logrus-backed implementation.
package logging

import (
	"fmt"
	"log"
	"os"
)

const calldepth = 2

// Logger is the interface every component logs through. Implementations
// must be safe for concurrent use, since the accept loop, heartbeat loop,
// and election watchdog can all log at once.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool

	// WithField returns a derived logger that tags every subsequent line
	// with the given key/value, for correlating a node id or transaction
	// id across a handler chain.
	WithField(key string, value interface{}) Logger
}

// NewDefaultLogger returns the minimal stdlib-backed logger. Used when no
// structured backend is configured.
func NewDefaultLogger(prefix string) *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(os.Stderr, prefix+" ", log.LstdFlags),
		debug:  false,
	}
}

func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

// DefaultLogger is the bare-bones Logger implementation, kept for
// environments where the logrus-backed logger is not desired.
type DefaultLogger struct {
	*log.Logger
	debug  bool
	fields string
}

func (l *DefaultLogger) decorate(message string) string {
	if l.fields == "" {
		return message
	}
	return message + " " + l.fields
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.Output(calldepth, level("INFO", l.decorate(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, level("INFO", l.decorate(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.Output(calldepth, level("WARN", l.decorate(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, level("WARN", l.decorate(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.Output(calldepth, level("ERROR", l.decorate(fmt.Sprint(v...))))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, level("ERROR", l.decorate(fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level("DEBUG", l.decorate(fmt.Sprint(v...))))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level("DEBUG", l.decorate(fmt.Sprintf(format, v...))))
	}
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	l.Output(calldepth, level("FATAL", l.decorate(fmt.Sprint(v...))))
	os.Exit(1)
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.Output(calldepth, level("FATAL", l.decorate(fmt.Sprintf(format, v...))))
	os.Exit(1)
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}

func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return &DefaultLogger{
		Logger: l.Logger,
		debug:  l.debug,
		fields: fmt.Sprintf("%s%s=%v ", l.fields, key, value),
	}
}
