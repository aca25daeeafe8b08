package partition

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Level is a logging verbosity.
type Level int

// Logging levels, from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// Logger observes the partitioner. Implementations must not affect results.
type Logger interface {
	Enabled(level Level) bool
	Logf(level Level, format string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

// Enabled implements Logger.
func (NopLogger) Enabled(Level) bool { return false }

// Logf implements Logger.
func (NopLogger) Logf(Level, string, ...any) {}

// KlogLogger forwards to klog, mapping levels to klog verbosities.
// Warnings are always emitted.
type KlogLogger struct {
	TraceV klog.Level
	DebugV klog.Level
	InfoV  klog.Level
}

// NewKlogLogger returns a KlogLogger with trace at -v=5, debug at -v=3 and
// info at -v=1.
func NewKlogLogger() KlogLogger {
	return KlogLogger{TraceV: 5, DebugV: 3, InfoV: 1}
}

func (k KlogLogger) verbosity(level Level) klog.Level {
	switch level {
	case LevelTrace:
		return k.TraceV
	case LevelDebug:
		return k.DebugV
	default:
		return k.InfoV
	}
}

// Enabled implements Logger.
func (k KlogLogger) Enabled(level Level) bool {
	if level >= LevelWarn {
		return true
	}
	return klog.V(k.verbosity(level)).Enabled()
}

// Logf implements Logger.
func (k KlogLogger) Logf(level Level, format string, args ...any) {
	if level >= LevelWarn {
		klog.WarningDepth(1, fmt.Sprintf(format, args...))
		return
	}
	klog.V(k.verbosity(level)).InfofDepth(1, format, args...)
}
