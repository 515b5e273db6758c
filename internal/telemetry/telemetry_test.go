package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger_JSONFormatEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LogLevelDebug, Format: LogFormatJSON, Output: &buf})

	logger.Info("session started", "protocol", "sweep-a", "steps", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if line["message"] != "session started" {
		t.Errorf("message = %v, want %q", line["message"], "session started")
	}
	if line["protocol"] != "sweep-a" {
		t.Errorf("protocol field = %v, want sweep-a", line["protocol"])
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LogLevelError, Format: LogFormatJSON, Output: &buf})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("Info line leaked through an Error-level logger: %q", buf.String())
	}

	logger.Error("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("Error line missing: %q", buf.String())
	}
}

func TestNewNop_NeverPanics(t *testing.T) {
	logger := NewNop()
	logger.Debug("x")
	logger.Info("y", "k", "v")
	logger.Warn("z")
	logger.Error("w", "odd-arg-count-should-be-ignored")
}

func TestWithField_CarriesAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LoggerConfig{Level: LogLevelInfo, Format: LogFormatJSON, Output: &buf})
	scoped := base.WithField("session_id", "abc-123")

	scoped.Info("tick")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if line["session_id"] != "abc-123" {
		t.Errorf("session_id = %v, want abc-123", line["session_id"])
	}
}
