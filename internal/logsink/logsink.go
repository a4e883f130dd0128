// Package logsink provides the two-level log interface the runtime writes to
// and its implementations.
package logsink

import (
	"fmt"
	"log"
)

// Level is the severity of a log entry.
type Level string

const (
	Info  Level = "info"
	Error Level = "error"
)

// Logger is the sink runtime components write to. It imposes no buffering or
// retry contract.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Std writes entries through a standard library logger.
type Std struct {
	l *log.Logger
}

// NewStd wraps l. A nil l uses log.Default().
func NewStd(l *log.Logger) *Std {
	if l == nil {
		l = log.Default()
	}
	return &Std{l: l}
}

func (s *Std) Infof(format string, args ...any) {
	s.l.Printf(format, args...)
}

func (s *Std) Errorf(format string, args ...any) {
	s.l.Printf("error: "+format, args...)
}

// Tee fans every entry out to all loggers.
type Tee []Logger

func (t Tee) Infof(format string, args ...any) {
	for _, l := range t {
		l.Infof(format, args...)
	}
}

func (t Tee) Errorf(format string, args ...any) {
	for _, l := range t {
		l.Errorf(format, args...)
	}
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Infof(string, ...any)  {}
func (Discard) Errorf(string, ...any) {}

// Entry is a single formatted log line.
type Entry struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func newEntry(level Level, f string, args []any) Entry {
	return Entry{Level: level, Message: fmt.Sprintf(f, args...)}
}
