// Package logger is a process-wide logging facade over log/slog. Level and
// destination can be swapped at runtime; the config watcher uses that to
// apply log_level changes without a restart.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar slog.LevelVar // zero value is info
	mu       sync.RWMutex
	active   = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput redirects all subsequent log lines, typically to a MultiWriter
// over stdout and the log file named in the config.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	active = newLogger(w)
	mu.Unlock()
}

// SetLevel accepts debug, info, warn, or error; anything else falls back to
// info.
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

func Debugf(format string, v ...any) { current().Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { current().Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { current().Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { current().Error(fmt.Sprintf(format, v...)) }

// InfoBlock logs a multi-line block, such as a backtest text summary, one
// line at a time so each carries the level prefix.
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line != "" {
			Infof("%s", line)
		}
	}
}
