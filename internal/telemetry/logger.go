// Package telemetry implements C12: structured newline-delimited JSON logs
// with per-node latency, token, and confidence fields. Adapted from the
// donor's "[Chat Latency]" slog.Info call in internal/handler/chat.go,
// generalized from one ad hoc log line per request to one record per node
// plus a request-level summary, per spec.md §4.12.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragbox/core-rag/internal/model"
)

type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

// NodeFields carries the node-specific fields appended to every
// end-of-node record, on top of the common {event, node, thread_id,
// query_length, latency_ms} shape.
type NodeFields map[string]any

// NodeComplete logs one node's completion. No PII appears in log fields —
// callers pass the already-masked query.
func (l *Logger) NodeComplete(ctx context.Context, node model.Node, threadID string, maskedQueryLen int, latency time.Duration, extra NodeFields) {
	args := []any{
		"event", "node_end",
		"node", string(node),
		"thread_id", threadID,
		"query_length", maskedQueryLen,
		"latency_ms", latency.Milliseconds(),
	}
	for k, v := range extra {
		args = append(args, k, v)
	}
	l.log.InfoContext(ctx, "node completed", args...)
}

// RequestComplete logs the terminal request-level record.
func (l *Logger) RequestComplete(ctx context.Context, threadID string, totalDuration time.Duration, category string, retries int) {
	l.log.InfoContext(ctx, "request completed",
		"event", "request_end",
		"thread_id", threadID,
		"total_duration_ms", totalDuration.Milliseconds(),
		"terminal_category", category,
		"retries", retries,
	)
}

// Warning logs a non-terminal warning raised during pipeline execution.
func (l *Logger) Warning(ctx context.Context, threadID, message string) {
	l.log.WarnContext(ctx, "pipeline warning",
		"event", "warning",
		"thread_id", threadID,
		"message", message,
	)
}

// Degraded logs a strictly auxiliary step falling back to defaults (e.g.
// language detection failure), per spec.md §4.1's graceful-degradation
// policy.
func (l *Logger) Degraded(ctx context.Context, threadID, step, reason string) {
	l.log.WarnContext(ctx, "auxiliary step degraded",
		"event", "degraded",
		"thread_id", threadID,
		"step", step,
		"reason", reason,
	)
}
