// Package logger provides tinysip's structured logging setup: a custom
// slog.Handler with global level filtering and optional rotating file
// output. A JSON-reformatting layer present in an earlier iteration,
// purely to tidy up a now-removed dependency's own JSON log lines, is
// dropped here (see DESIGN.md); the level-filtering custom handler shape
// is kept.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLevel  = slog.LevelInfo
	handlerMutex sync.RWMutex
)

// SetLevel sets the global log level from a string.
func SetLevel(levelStr string) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	globalLevel = ParseLevel(levelStr)
}

// GetLevel returns the current log level as a string.
func GetLevel() string {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	switch globalLevel {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel parses a string to an slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// handler writes leveled, timestamped log lines to one or more outputs.
type handler struct {
	outs []io.Writer
	mu   sync.Mutex
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return level >= globalLevel
}

func (h *handler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	handlerMutex.RLock()
	if record.Level < globalLevel {
		handlerMutex.RUnlock()
		return nil
	}
	handlerMutex.RUnlock()

	timestamp := record.Time.Format("15:04:05.000")
	var attrs []string
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a.Key+"="+a.Value.String())
		return true
	})

	line := "[" + timestamp + "] [" + strings.ToUpper(record.Level.String()) + "] " + record.Message
	if len(attrs) > 0 {
		line += " " + strings.Join(attrs, " ")
	}
	line += "\n"

	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write([]byte(line))
		}
	}
	return nil
}

func (h *handler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(_ string) slog.Handler      { return h }

// Init installs the default slog logger at the given level, writing to
// stdout and, if logFile is non-empty, to a lumberjack-rotated file
// (50MB/file, 5 backups, 14 days, gzip-compressed).
func Init(levelStr string, logFile string) {
	SetLevel(levelStr)

	outs := []io.Writer{os.Stdout}
	if logFile != "" {
		outs = append(outs, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	slog.SetDefault(slog.New(&handler{outs: outs}))
}
