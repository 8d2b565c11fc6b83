package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// ConsoleOptions holds configuration for console logging.
type ConsoleOptions struct {
	Level           log.Level
	Formatter       log.Formatter
	ReportTimestamp bool
	ReportCaller    bool
	Prefix          string
}

// DefaultConsoleOptions returns default options for console logging.
func DefaultConsoleOptions() ConsoleOptions {
	return ConsoleOptions{
		Level:     log.InfoLevel,
		Formatter: log.TextFormatter,
		Prefix:    "ralphban",
	}
}

// NewConsole creates a charmbracelet/log logger writing to w (stderr when nil).
func NewConsole(w io.Writer, opts ConsoleOptions) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Level:           opts.Level,
		Formatter:       opts.Formatter,
		ReportTimestamp: opts.ReportTimestamp,
		ReportCaller:    opts.ReportCaller,
		Prefix:          opts.Prefix,
	})
}

// NewConsoleFromConfig builds a console logger from string config values.
func NewConsoleFromConfig(w io.Writer, level, format string, timestamps, caller bool) *log.Logger {
	opts := DefaultConsoleOptions()
	opts.Level = ParseLevel(level)
	opts.Formatter = ParseFormatter(format)
	opts.ReportTimestamp = timestamps
	opts.ReportCaller = caller
	return NewConsole(w, opts)
}

// ParseLevel parses a log level name; unknown names mean info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// ParseFormatter parses a formatter name; unknown names mean text.
func ParseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// Logger fans board events out to the console and the run log.
// A nil *Logger discards everything.
type Logger struct {
	console *log.Logger
	run     *RunLogger
}

// New returns a Logger. Either side may be nil.
func New(console *log.Logger, run *RunLogger) *Logger {
	return &Logger{console: console, run: run}
}

// Discard returns a Logger that drops every event.
func Discard() *Logger {
	return &Logger{}
}

// Console returns the console logger, or nil.
func (l *Logger) Console() *log.Logger {
	if l == nil {
		return nil
	}
	return l.console
}

// Debug logs at debug level. Debug events are not written to the run log.
func (l *Logger) Debug(board, msg string, keyvals ...any) {
	if l == nil || l.console == nil {
		return
	}
	l.console.Debug(msg, withBoard(board, keyvals)...)
}

// Info logs an informational board event.
func (l *Logger) Info(board, msg string, keyvals ...any) {
	l.emit(log.InfoLevel, board, msg, nil, keyvals)
}

// Warn logs a warning board event.
func (l *Logger) Warn(board, msg string, keyvals ...any) {
	l.emit(log.WarnLevel, board, msg, nil, keyvals)
}

// Error logs a failure with one detail line per underlying error.
func (l *Logger) Error(board, msg string, details []string, keyvals ...any) {
	l.emit(log.ErrorLevel, board, msg, details, keyvals)
}

func (l *Logger) emit(level log.Level, board, msg string, details []string, keyvals []any) {
	if l == nil {
		return
	}
	if l.console != nil {
		kv := withBoard(board, keyvals)
		l.console.Log(level, msg, kv...)
		for _, d := range details {
			l.console.Log(level, "  "+d)
		}
	}
	if l.run != nil {
		_ = l.run.Record(Event{
			Level:   level.String(),
			Message: msg,
			Board:   board,
			Errors:  details,
			Fields:  fieldMap(keyvals),
		})
	}
}

func withBoard(board string, keyvals []any) []any {
	if board == "" {
		return keyvals
	}
	return append([]any{"board", board}, keyvals...)
}

func fieldMap(keyvals []any) map[string]any {
	if len(keyvals) == 0 {
		return nil
	}
	fields := make(map[string]any, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields[key] = nil
			break
		}
		value := keyvals[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		fields[key] = value
	}
	return fields
}
