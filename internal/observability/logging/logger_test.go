package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "docctl", "info", "")
	logger.Info("task_terminal", "task_id", "t-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "docctl" || entry["msg"] != "task_terminal" || entry["task_id"] != "t-1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "docctl", "warn", "TEXT")
	logger.Info("hidden")
	logger.Warn("poll_timeout")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=poll_timeout") || !strings.Contains(out, "service=docctl") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
