package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
)

// Function is a connector action or trigger.
type Function func(ctx context.Context, msg Message, cfg models.StepConfig, snapshot json.RawMessage, out Sink) error

// Invocation is one call of a connector function as a host receives it.
type Invocation struct {
	Function string            `json:"function"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Cfg      models.StepConfig `json:"cfg"`
	Snapshot json.RawMessage   `json:"snapshot,omitempty"`
}

// Process runs fn for inv and records its output in rec. A returned error is
// reported through rec.Fail; the stream is always ended. Whatever snapshot rec
// holds afterwards is the run's final snapshot, including after a failure.
func Process(ctx context.Context, fn Function, inv Invocation, rec *Recorder) error {
	start := time.Now()
	log.Infow("process", "function", inv.Function, "body", truncateForLogging(string(inv.Body)),
		"cfg", inv.Cfg.Redacted(), "snapshot", string(inv.Snapshot))

	msg := Message{Body: inv.Body}
	err := fn(ctx, msg, inv.Cfg, inv.Snapshot, rec)
	if err != nil {
		rec.Fail(err)
	}
	rec.End()

	snapshot, hasSnapshot := rec.Snapshot()
	if err != nil {
		log.Errorw("process failed", "function", inv.Function, "error", err,
			"emitted", len(rec.Data()), "snapshot", snapshot, "hasSnapshot", hasSnapshot, "elapsed", time.Since(start))
		return fmt.Errorf("%s: %w", inv.Function, err)
	}
	log.Infow("process finished", "function", inv.Function,
		"emitted", len(rec.Data()), "snapshot", snapshot, "hasSnapshot", hasSnapshot, "elapsed", time.Since(start))
	return nil
}

// ParseCsvInput splits a comma separated list, trimming blanks around items.
// Anything but a non-blank string yields an empty list.
func ParseCsvInput(input interface{}) []string {
	s, ok := input.(string)
	if !ok {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// truncateForLogging truncates a string to a reasonable length for logging
func truncateForLogging(s string) string {
	const maxLength = 500
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + "... [truncated]"
}
