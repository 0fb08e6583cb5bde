package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fadedpez/balancewatch/internal/types"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// String returns the level name
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to INFO
func ParseLevel(s string) Level {
	for level, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return level
		}
	}
	return INFO
}

// Logger is a printf-style leveled logger backed by logrus
type Logger struct {
	entry *logrus.Entry
	level Level
}

// NewLogger creates a new logger instance writing text to stdout
func NewLogger(level Level) *Logger {
	return newLogger(os.Stdout, level, &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// NewJSONLogger creates a logger that emits one JSON object per line
func NewJSONLogger(w io.Writer, level Level) *Logger {
	return newLogger(w, level, &logrus.JSONFormatter{})
}

func newLogger(w io.Writer, level Level, formatter logrus.Formatter) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(formatter)
	base.SetLevel(logrusLevels[level])
	return &Logger{entry: logrus.NewEntry(base), level: level}
}

// ForEnvironment returns a JSON logger in production and a text logger otherwise
func ForEnvironment(environment string, level Level) *Logger {
	if environment == "production" {
		return NewJSONLogger(os.Stdout, level)
	}
	return NewLogger(level)
}

// WithFields returns a child logger carrying the given structured fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields)), level: l.level}
}

// WithField is WithFields for a single key
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), level: l.level}
}

// Level returns the configured threshold
func (l *Logger) Level() Level {
	return l.level
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.entry.Debugf(format, v...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.entry.Infof(format, v...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.entry.Warnf(format, v...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.entry.Errorf(format, v...)
	}
}

// LogError logs a ReconError with its code and cause as fields
func (l *Logger) LogError(err error) {
	var reconErr *types.ReconError
	if types.As(err, &reconErr) {
		fields := logrus.Fields{
			"code": string(reconErr.Code),
		}
		if reconErr.Err != nil {
			fields["cause"] = reconErr.Err.Error()
		}
		l.entry.WithFields(fields).Error(reconErr.Message)
	} else {
		l.Error("Unexpected error: %v", err)
	}
}

// Default logger instance
var Default = NewLogger(INFO)
