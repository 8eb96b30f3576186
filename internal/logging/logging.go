package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Init creates the stderr logger for format and level and sets it as the
// package-level slog default. Stdout is left alone so NDJSON output from the
// stdout transport never mixes with diagnostics.
func Init(format string, level slog.Level) *slog.Logger {
	logger := New(os.Stderr, ResolveFormat(format, isTerminal(os.Stderr)), level)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w. format is "json" or "text"; anything
// else is treated as "json".
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ResolveFormat maps "auto" to "text" on a terminal and "json" otherwise.
func ResolveFormat(format string, tty bool) string {
	switch strings.ToLower(format) {
	case "text":
		return "text"
	case "json":
		return "json"
	default:
		if tty {
			return "text"
		}
		return "json"
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ParseLevel reads slog's level syntax ("debug", "WARN+2") plus the event
// level names "warning" and "fatal", so one vocabulary works for both.
// Anything unparseable is LevelInfo.
func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warning":
		return slog.LevelWarn
	case "fatal":
		return slog.LevelError
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
