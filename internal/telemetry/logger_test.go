package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ragbox/core-rag/internal/model"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	return New(slog.New(handler)), &buf
}

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return record
}

func TestNodeComplete_EmitsNodeAndLatencyFields(t *testing.T) {
	logger, buf := newTestLogger()
	logger.NodeComplete(context.Background(), model.Node("retrieve"), "thread-1", 42, 150*time.Millisecond, NodeFields{"documents_retrieved": 5})

	record := decodeLastLine(t, buf)
	if record["node"] != "retrieve" {
		t.Errorf("node = %v, want retrieve", record["node"])
	}
	if record["thread_id"] != "thread-1" {
		t.Errorf("thread_id = %v, want thread-1", record["thread_id"])
	}
	if record["latency_ms"].(float64) != 150 {
		t.Errorf("latency_ms = %v, want 150", record["latency_ms"])
	}
	if record["documents_retrieved"].(float64) != 5 {
		t.Errorf("documents_retrieved = %v, want 5", record["documents_retrieved"])
	}
}

func TestRequestComplete_EmitsTerminalCategoryAndRetries(t *testing.T) {
	logger, buf := newTestLogger()
	logger.RequestComplete(context.Background(), "thread-1", 2*time.Second, "success", 1)

	record := decodeLastLine(t, buf)
	if record["terminal_category"] != "success" {
		t.Errorf("terminal_category = %v, want success", record["terminal_category"])
	}
	if record["retries"].(float64) != 1 {
		t.Errorf("retries = %v, want 1", record["retries"])
	}
}

func TestWarning_LogsAtWarnLevel(t *testing.T) {
	logger, buf := newTestLogger()
	logger.Warning(context.Background(), "thread-1", "low relevance fallback")

	record := decodeLastLine(t, buf)
	if record["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", record["level"])
	}
	if record["message"] != "low relevance fallback" {
		t.Errorf("message = %v, want the warning text", record["message"])
	}
}

func TestDegraded_IncludesStepAndReason(t *testing.T) {
	logger, buf := newTestLogger()
	logger.Degraded(context.Background(), "thread-1", "language_detection", "ambiguous script")

	record := decodeLastLine(t, buf)
	if record["step"] != "language_detection" {
		t.Errorf("step = %v, want language_detection", record["step"])
	}
	if record["reason"] != "ambiguous script" {
		t.Errorf("reason = %v, want ambiguous script", record["reason"])
	}
}

func TestNew_DefaultsToSlogDefaultWhenNil(t *testing.T) {
	logger := New(nil)
	if logger.log == nil {
		t.Error("expected New(nil) to fall back to a non-nil default logger")
	}
}
