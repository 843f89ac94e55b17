// Package audit records state changes made by organizers and admins as
// structured log lines, separate from request logs so they can be shipped
// and retained on their own.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Action names an audited operation.
type Action string

const (
	ActionEventUpdate    Action = "event.update"
	ActionEventModerate  Action = "event.moderate"
	ActionRequestsDecide Action = "requests.decide"
)

// Outcome is "success" or "failure".
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one audited change to an event or its participation requests.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	Actor     string            `json:"actor"`
	EventID   string            `json:"event_id"`
	Outcome   Outcome           `json:"outcome"`
	TraceID   string            `json:"trace_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Logger writes entries under the "audit" key. A nil *Logger discards.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Record logs the result of action on eventID. A non-nil err marks the
// entry as a failure and is copied into Details["error"].
func (l *Logger) Record(ctx context.Context, action Action, actor, eventID string, err error, details map[string]string) {
	if l == nil {
		return
	}
	entry := Entry{
		Timestamp: l.now().UTC(),
		Action:    action,
		Actor:     actor,
		EventID:   eventID,
		Outcome:   OutcomeSuccess,
		Details:   details,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		entry.TraceID = sc.TraceID().String()
	}

	ev := l.logger.Info()
	if err != nil {
		entry.Outcome = OutcomeFailure
		if entry.Details == nil {
			entry.Details = map[string]string{}
		}
		entry.Details["error"] = err.Error()
		ev = l.logger.Warn()
	}
	ev.Interface("audit", entry).Msg("audit")
}
