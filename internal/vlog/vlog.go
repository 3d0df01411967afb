// Package vlog is the module's single logging surface: a mutable
// minimum-severity level matching --debug=0..4, a diagnostic stream
// defaulting to stderr, and a separate dump stream for --dis/--deps output
// so disassembly never interleaves with diagnostic lines. No package below
// cmd/vdextract writes to stdout/stderr directly; every layer returns
// errors or records up to the driver, which is the single printer.
package vlog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level is a log severity, ordered least to most verbose to match the
// --debug=0..4 flag.
type Level int

const (
	FATAL Level = iota
	ERROR
	WARN
	INFO
	DEBUG
)

func (l Level) String() string {
	switch l {
	case FATAL:
		return "FATAL"
	case ERROR:
		return "ERROR"
	case WARN:
		return "WARN"
	case INFO:
		return "INFO"
	case DEBUG:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger is the package-level log state: a minimum severity, a diagnostic
// writer and a dump writer. The zero value is not usable; use New.
type Logger struct {
	mu       sync.Mutex
	min      Level
	diag     io.Writer
	dump     io.Writer
}

// New returns a Logger at WARN severity writing diagnostics to stderr and
// dumps to stdout, the defaults cmd/vdextract starts from before applying
// --debug/--log-file.
func New() *Logger {
	return &Logger{min: WARN, diag: os.Stderr, dump: os.Stdout}
}

// SetLevel changes the minimum severity that reaches the diagnostic stream.
func (l *Logger) SetLevel(lv Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.min = lv
}

// SetDiagOutput redirects the diagnostic stream, used for --log-file.
func (l *Logger) SetDiagOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.diag = w
}

// SetDumpOutput redirects the --dis/--deps dump stream independently of
// diagnostics.
func (l *Logger) SetDumpOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dump = w
}

// Log writes a formatted diagnostic line if lv is at or below the current
// minimum severity (i.e. lv is "important enough").
func (l *Logger) Log(lv Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lv > l.min {
		return
	}
	fmt.Fprintf(l.diag, "[%s] %s\n", lv, fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) { l.Log(FATAL, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Log(ERROR, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Log(WARN, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Log(INFO, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.Log(DEBUG, format, args...) }

// Dump writes directly to the dump stream, unfiltered by severity — used
// for disassembly and verifier-deps text that must reach its own output
// regardless of --debug.
func (l *Logger) Dump(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.dump, format, args...)
}

// LevelFromDebugFlag maps the --debug=0..4 flag value to a Level.
func LevelFromDebugFlag(n int) Level {
	switch {
	case n <= 0:
		return FATAL
	case n == 1:
		return ERROR
	case n == 2:
		return WARN
	case n == 3:
		return INFO
	default:
		return DEBUG
	}
}
