// Package logging configures the process-wide structured logger for the
// command-line tools.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger builds a text handler at the given level.
func Logger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs the default logger. level is DEBUG/INFO/WARN/ERROR
// (case-insensitive, empty means INFO). A non-empty logFile routes the
// output through a size-rotated file instead of stderr.
func Setup(level, logFile string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MiB
			MaxBackups: 5,
		}
	}
	slog.SetDefault(Logger(w, l))
}
