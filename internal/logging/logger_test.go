package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "production", "info")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info().Str("chunk", "3").Msg("applied")
	logger.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}

	var event map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if event["service"] != "pagetran" {
		t.Errorf("expected service field, got %v", event["service"])
	}
	if event["chunk"] != "3" {
		t.Errorf("expected chunk field, got %v", event["chunk"])
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "LOCAL", "debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("local", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}
