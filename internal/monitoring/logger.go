// Package monitoring holds the process-wide diagnostic logger used by the
// packages that have no debug.go streams of their own.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc has the shape of log.Printf.
type LogFunc func(format string, v ...any)

var current atomic.Pointer[LogFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes through the logger installed by SetLogger (log.Printf by
// default).
func Logf(format string, v ...any) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...any) {}
	}
	current.Store(&f)
}

// Logger prefixes every message and satisfies the Printf/Verbose logger
// interface used by golang-migrate.
type Logger struct {
	Prefix  string
	verbose bool
}

// NewLogger returns a Logger whose messages start with "[name] ".
func NewLogger(name string) *Logger {
	return &Logger{Prefix: "[" + name + "] "}
}

// WithVerbose returns a copy that reports Verbose() as v.
func (l *Logger) WithVerbose(v bool) *Logger {
	c := *l
	c.verbose = v
	return &c
}

func (l *Logger) Printf(format string, v ...any) {
	Logf(l.Prefix+format, v...)
}

func (l *Logger) Verbose() bool {
	return l.verbose
}
