// File: logging/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package logging provides the leveled logger used by all camcore
// components. The console implementation writes level-tagged lines through
// the standard library logger with the tag colorized per level, which is
// what the camera's serial console tooling expects.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
)

// Level orders log severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. The empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the interface camcore components log through. Components accept
// a Logger at construction; nil selects the package default.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Console is the standard Logger implementation.
type Console struct {
	min atomic.Int32
	out *log.Logger
}

// New returns a Console logging to stderr at the given minimum level.
func New(min Level) *Console {
	return NewWriter(min, os.Stderr)
}

// NewWriter returns a Console logging to w at the given minimum level.
func NewWriter(min Level, w io.Writer) *Console {
	c := &Console{out: log.New(w, "", log.LstdFlags)}
	c.min.Store(int32(min))
	return c
}

// SetLevel changes the minimum level at runtime.
func (c *Console) SetLevel(min Level) {
	c.min.Store(int32(min))
}

func (c *Console) enabled(lv Level) bool {
	return lv >= Level(c.min.Load())
}

func (c *Console) Debugf(format string, args ...any) {
	if c.enabled(LevelDebug) {
		c.out.Print(color.CyanString("[DEBUG] ") + fmt.Sprintf(format, args...))
	}
}

func (c *Console) Infof(format string, args ...any) {
	if c.enabled(LevelInfo) {
		c.out.Print(color.GreenString("[INFO] ") + fmt.Sprintf(format, args...))
	}
}

func (c *Console) Warnf(format string, args ...any) {
	if c.enabled(LevelWarn) {
		c.out.Print(color.YellowString("[WARN] ") + fmt.Sprintf(format, args...))
	}
}

func (c *Console) Errorf(format string, args ...any) {
	if c.enabled(LevelError) {
		c.out.Print(color.RedString("[ERROR] ") + fmt.Sprintf(format, args...))
	}
}

type nop struct{}

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}

// Nop discards everything. Useful in tests.
var Nop Logger = nop{}

var std = New(LevelInfo)

// Default returns the process-wide logger used when a component is
// constructed without one.
func Default() Logger { return std }
