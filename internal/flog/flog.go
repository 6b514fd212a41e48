// Package flog is a small leveled logger with printf-style helpers.
package flog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelNone
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
	LevelNone:  "NONE",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLevel maps a config string like "debug" or "warn" to a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return l, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// Logger writes timestamped leveled lines to a single output.
// The level gate is atomic so it can be adjusted while in use.
type Logger struct {
	logger *log.Logger
	level  atomic.Int32
}

func New(out io.Writer, level Level) *Logger {
	l := &Logger{logger: log.New(out, "", log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }
func (l *Logger) GetLevel() Level      { return Level(l.level.Load()) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < Level(l.level.Load()) {
		return
	}
	l.logger.Printf("%-5s %s", level.String(), fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Fatalf logs at fatal level and exits the process.
func (l *Logger) Fatalf(format string, args ...any) {
	l.logf(LevelFatal, format, args...)
	os.Exit(1)
}

var defaultLogger = New(os.Stderr, LevelInfo)

// Default returns the shared process-wide logger.
func Default() *Logger { return defaultLogger }

func SetLevel(level Level) { defaultLogger.SetLevel(level) }

func Debugf(format string, args ...any) { defaultLogger.Debugf(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Infof(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warnf(format, args...) }
func Errorf(format string, args ...any) { defaultLogger.Errorf(format, args...) }
func Fatalf(format string, args ...any) { defaultLogger.Fatalf(format, args...) }
