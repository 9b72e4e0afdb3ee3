// Package log provides a global logger with configurable logging level. Sessions and supervisors
// from every device share it, so messages are expected to carry their own device prefix.

package log

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally, e.g. disconnects.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var logMutex sync.Mutex
var globalLogLevel = LevelInfo
var backend = newBackend(os.Stderr)

var levels = map[Level]logrus.Level{
	LevelDebug:   logrus.DebugLevel,
	LevelInfo:    logrus.InfoLevel,
	LevelWarning: logrus.WarnLevel,
	LevelError:   logrus.ErrorLevel,
}

func newBackend(w io.Writer) *logrus.Logger {
	colors := false
	if f, ok := w.(*os.File); ok {
		colors = term.IsTerminal(int(f.Fd()))
	}
	return &logrus.Logger{
		Out: w,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			DisableColors:   !colors,
		},
		Hooks: make(logrus.LevelHooks),
		Level: logrus.DebugLevel,
	}
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	backend = newBackend(w)
}

func current() (Level, *logrus.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLogLevel, backend
}

func log(level Level, format string, a ...interface{}) {
	threshold, logger := current()
	if level <= threshold && level != LevelNone {
		logger.Logf(levels[level], format, a...)
	}
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
