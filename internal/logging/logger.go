// Package logging provides the leveled logger shared by every component of
// the cooperation daemon.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	LevelSilent = iota
	LevelError
	LevelInfo
	LevelDebug
)

// Logger is the narrow interface every package in this module depends on,
// so call sites never reach for the concrete logrus type directly.
type Logger interface {
	Debug(v ...interface{})
	Debugf(f string, v ...interface{})
	Info(v ...interface{})
	Infof(f string, v ...interface{})
	Error(v ...interface{})
	Errorf(f string, v ...interface{})
	WithField(key string, value interface{}) Logger
}

type entryLogger struct {
	entry *logrus.Entry
}

// New builds a Logger at the given verbosity, prefixed with prepend the way
// a peer logger is prefixed with its uuid.
func New(level int, prepend string) Logger {
	base := logrus.New()
	base.Out = os.Stdout
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case level >= LevelDebug:
		base.SetLevel(logrus.DebugLevel)
	case level >= LevelInfo:
		base.SetLevel(logrus.InfoLevel)
	case level >= LevelError:
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.PanicLevel + 1) // silent: nothing logged
	}

	entry := logrus.NewEntry(base)
	if prepend != "" {
		entry = entry.WithField("component", prepend)
	}
	return &entryLogger{entry: entry}
}

func (l *entryLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *entryLogger) Debugf(f string, v ...interface{})      { l.entry.Debugf(f, v...) }
func (l *entryLogger) Info(v ...interface{})                  { l.entry.Info(v...) }
func (l *entryLogger) Infof(f string, v ...interface{})       { l.entry.Infof(f, v...) }
func (l *entryLogger) Error(v ...interface{})                 { l.entry.Error(v...) }
func (l *entryLogger) Errorf(f string, v ...interface{})      { l.entry.Errorf(f, v...) }

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}
