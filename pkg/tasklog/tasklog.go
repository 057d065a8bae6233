// Package tasklog is the process-wide logging hook used by the task document. A host registers one
// Sink before first use; until then every call is dropped.
package tasklog

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Sink receives (severity, tag, message) triples.
type Sink interface {
	Log(level Level, tag, msg string)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(level Level, tag, msg string)

func (f SinkFunc) Log(level Level, tag, msg string) {
	f(level, tag, msg)
}

type holder struct {
	sink Sink
}

var (
	registered atomic.Pointer[holder]
	once       sync.Once
)

// Register installs the process-wide sink. Only the first call has any effect; it reports whether this
// call installed the sink.
func Register(s Sink) bool {
	installed := false
	once.Do(func() {
		if s != nil {
			registered.Store(&holder{sink: s})
		}
		installed = s != nil
	})
	return installed
}

// Registered reports whether a sink is installed.
func Registered() bool {
	return registered.Load() != nil
}

// Log forwards one line to the registered sink. A panicking sink is recovered; logging never fails the
// caller.
func Log(level Level, tag, msg string) {
	h := registered.Load()
	if h == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	h.sink.Log(level, tag, msg)
}

func Debugf(tag, format string, args ...any) {
	if registered.Load() != nil {
		Log(LevelDebug, tag, fmt.Sprintf(format, args...))
	}
}

func Infof(tag, format string, args ...any) {
	if registered.Load() != nil {
		Log(LevelInfo, tag, fmt.Sprintf(format, args...))
	}
}

func Warnf(tag, format string, args ...any) {
	if registered.Load() != nil {
		Log(LevelWarn, tag, fmt.Sprintf(format, args...))
	}
}

func Errorf(tag, format string, args ...any) {
	if registered.Load() != nil {
		Log(LevelError, tag, fmt.Sprintf(format, args...))
	}
}
