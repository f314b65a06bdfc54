package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, false, false)
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled without verbose")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be enabled")
	}

	verbose := NewWriter(&buf, true, false)
	if !verbose.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled with verbose")
	}
}

func TestNewWriterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, false, false)
	logger.Info("provider configured", "provider", "dryrun")
	got := buf.String()
	if !strings.Contains(got, "msg=\"provider configured\"") {
		t.Errorf("output = %q, want text handler format", got)
	}
	if !strings.Contains(got, "provider=dryrun") {
		t.Errorf("output = %q, missing attribute", got)
	}
}

func TestNewWriterColorized(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, false, true)
	logger.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q, want message present", buf.String())
	}
}
