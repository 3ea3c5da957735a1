package framework

import (
	"fmt"
	"io"
	"os"
)

// Noop discards everything, it is the default logger of every component.
type Noop struct{}

func (nl Noop) Debug(...interface{})          {}
func (nl Noop) Debugf(string, ...interface{}) {}
func (nl Noop) Info(...interface{})           {}
func (nl Noop) Infof(string, ...interface{})  {}
func (nl Noop) Warn(...interface{})           {}
func (nl Noop) Warnf(string, ...interface{})  {}
func (nl Noop) Error(...interface{})          {}
func (nl Noop) Errorf(string, ...interface{}) {}

// Stdout writes one line per entry prefixed with the level. W may be set
// to redirect output, it defaults to os.Stdout.
type Stdout struct {
	W io.Writer
}

func (s Stdout) out() io.Writer {
	if s.W == nil {
		return os.Stdout
	}
	return s.W
}

func (s Stdout) line(level string, args ...interface{}) {
	fmt.Fprintln(s.out(), append([]interface{}{level}, args...)...)
}

func (s Stdout) linef(level, pattern string, args ...interface{}) {
	fmt.Fprintf(s.out(), level+" "+pattern+"\n", args...)
}

func (s Stdout) Debug(args ...interface{})                  { s.line("DEBUG", args...) }
func (s Stdout) Debugf(pattern string, args ...interface{}) { s.linef("DEBUG", pattern, args...) }
func (s Stdout) Info(args ...interface{})                   { s.line("INFO", args...) }
func (s Stdout) Infof(pattern string, args ...interface{})  { s.linef("INFO", pattern, args...) }
func (s Stdout) Warn(args ...interface{})                   { s.line("WARN", args...) }
func (s Stdout) Warnf(pattern string, args ...interface{})  { s.linef("WARN", pattern, args...) }
func (s Stdout) Error(args ...interface{})                  { s.line("ERROR", args...) }
func (s Stdout) Errorf(pattern string, args ...interface{}) { s.linef("ERROR", pattern, args...) }
