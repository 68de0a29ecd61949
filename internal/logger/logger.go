package logger

import (
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Log is a thin wrapper around a logrus entry so callers can chain fields
// without importing logrus everywhere.
type Log struct {
	*logrus.Entry
}

var (
	root *Log
	mu   sync.Mutex
)

// Init configures the process-wide logger. Level is one of debug, info, warn, error.
func Init(level string) *Log {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(parseLevel(level))

	root = &Log{Entry: logrus.NewEntry(l)}
	return root
}

// Get returns the logger configured by Init, or a debug-level default.
func Get() *Log {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		return root
	}
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	l.SetLevel(logrus.DebugLevel)
	return &Log{Entry: logrus.NewEntry(l)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Log {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Log{Entry: logrus.NewEntry(l)}
}

func (l *Log) WithField(key string, value interface{}) *Log {
	return &Log{l.Entry.WithField(key, value)}
}

func (l *Log) WithFields(fields map[string]interface{}) *Log {
	return &Log{l.Entry.WithFields(fields)}
}

func (l *Log) WithEntryName(name string) *Log {
	return l.WithField("EntryName", name)
}

func (l *Log) WithErr(err error) *Log {
	if err == nil {
		return l
	}
	return l.WithField("Err", err.Error())
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
