package logging

import (
	"io"
	"os"
	"strings"

	"github.com/fadedpez/stemverse/internal/types"
	"github.com/sirupsen/logrus"
)

// Fields is an alias so callers do not need to import logrus directly
type Fields = logrus.Fields

// Logger wraps a logrus logger with the application's conventions
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a logger at the given level. Production loggers emit JSON.
func NewLogger(level string, production bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(ParseLevel(level))

	if production {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	return &Logger{Logger: l}
}

// NewDiscard returns a logger that drops everything, for tests
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// ParseLevel maps a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
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

// LogError logs an AppError with its code, or any other error as unexpected
func (l *Logger) LogError(err error, fields Fields) {
	entry := l.WithFields(fields)

	var appErr *types.AppError
	if types.As(err, &appErr) {
		entry = entry.WithField("code", appErr.Code)
		if appErr.Err != nil {
			entry = entry.WithField("cause", appErr.Err.Error())
		}
		entry.Error(appErr.Message)
		return
	}

	entry.WithError(err).Error("unexpected error")
}

// Default logger instance
var Default = NewLogger("info", false)
