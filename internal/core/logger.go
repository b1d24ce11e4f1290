package core

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// LogConfig holds logging configuration from the app config.
type LogConfig struct {
	Level      string            `yaml:"level,omitempty"`
	Components map[string]string `yaml:"components,omitempty"`
}

// Logger provides per-component log level filtering over its own output,
// stderr by default so command results on stdout stay scriptable.
type Logger struct {
	mu          sync.RWMutex
	out         *log.Logger
	globalLevel LogLevel
	components  map[string]LogLevel // lowercase component name → level
	exit        func(int)
}

// ParseLevel converts a string level name to LogLevel.
// Returns LevelInfo for unrecognized values.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "none":
		return LevelOff
	default:
		return LevelInfo
	}
}

// NewLogger creates a Logger writing to stderr.
func NewLogger(cfg LogConfig) *Logger {
	return NewLoggerTo(os.Stderr, cfg)
}

// NewLoggerTo creates a Logger writing to w.
func NewLoggerTo(w io.Writer, cfg LogConfig) *Logger {
	l := &Logger{
		out:         log.New(w, "", log.LstdFlags),
		globalLevel: ParseLevel(cfg.Level),
		components:  make(map[string]LogLevel, len(cfg.Components)),
		exit:        os.Exit,
	}
	for name, level := range cfg.Components {
		l.components[strings.ToLower(name)] = ParseLevel(level)
	}
	return l
}

// levelFor returns the effective log level for a component tag.
func (l *Logger) levelFor(tag string) LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.components[strings.ToLower(tag)]; ok {
		return lvl
	}
	return l.globalLevel
}

func (l *Logger) logf(level LogLevel, tag, format string, args ...any) {
	if l.levelFor(tag) <= level {
		l.out.Printf("["+tag+"] "+format, args...)
	}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(tag, format string, args ...any) {
	l.logf(LevelDebug, tag, format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(tag, format string, args ...any) {
	l.logf(LevelInfo, tag, format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(tag, format string, args ...any) {
	l.logf(LevelWarn, tag, format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(tag, format string, args ...any) {
	l.logf(LevelError, tag, format, args...)
}

// Fatalf always logs and exits with the fatal-error code of the CLI contract.
func (l *Logger) Fatalf(tag, format string, args ...any) {
	l.out.Printf("["+tag+"] "+format, args...)
	l.exit(2)
}

// Log is the process-wide default logger, handed to constructors by main.
// Library code receives a *Logger explicitly instead of reading this.
var Log = NewLogger(LogConfig{})
