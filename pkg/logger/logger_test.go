package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info().Msg("dropped")
	log.Warn().Str("component", "test").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["service"] != ServiceName {
		t.Errorf("Expected service field, got %v", entry["service"])
	}
	if entry["message"] != "kept" {
		t.Errorf("Expected message 'kept', got %v", entry["message"])
	}
}
