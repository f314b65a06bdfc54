// Package errors builds error values that carry the file and line of their
// origin, so failures surfacing at the CLI can be traced back without stack
// dumps. Wrapf preserves the wrapped error for errors.Is/errors.As checks.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error annotated with the caller's file and line.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context and the caller's file and line to an existing error.
// Returns nil when err is nil. The original error remains reachable
// through the standard unwrap chain.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
