// Package logging sets up the process wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
	LogFile string
	Start   time.Time
}

// New returns a JSON logger writing to stderr and, when dir is set, to a
// rotating file in dir.
func New(level string, dir string, deviceID string) *Logger {
	var w io.Writer = os.Stderr
	logFile := ""
	if dir != "" {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "control_interface.slog"),
			MaxSize:    32, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		logFile = lj.Filename
		w = io.MultiWriter(os.Stderr, lj)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	l := &Logger{
		Logger:  slog.New(h).With(slog.String("device_id", deviceID)),
		LogFile: logFile,
		Start:   time.Now(),
	}

	l.Info("Hello logging", slog.Time("start", l.Start))
	l.Info("System information",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))

	return l
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "%s: invalid log level\n", level)
		return slog.LevelInfo
	}
}

// Throttle limits how often a repeated condition is logged.
type Throttle struct {
	period time.Duration
	last   map[string]time.Time
}

func NewThrottle(period time.Duration) *Throttle {
	return &Throttle{period: period, last: make(map[string]time.Time)}
}

// Allow reports whether key may be logged at now. Not safe for concurrent use.
func (t *Throttle) Allow(key string, now time.Time) bool {
	if last, ok := t.last[key]; ok && now.Sub(last) < t.period {
		return false
	}
	t.last[key] = now
	return true
}
