package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) (map[string]json.RawMessage, Entry) {
	t.Helper()
	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &wrapper))
	raw, ok := wrapper["audit"]
	require.True(t, ok, "no audit field in %s", buf.String())
	var entry Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	return wrapper, entry
}

func TestRecordSuccess(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	logger.now = func() time.Time { return fixed }

	logger.Record(context.Background(), ActionEventModerate, "admin", "01HX12ABC123", nil, map[string]string{"state_action": "PUBLISH_EVENT"})

	wrapper, entry := decode(t, &buf)
	require.Equal(t, `"info"`, string(wrapper["level"]))
	require.Equal(t, `"audit"`, string(wrapper["component"]))
	require.Equal(t, ActionEventModerate, entry.Action)
	require.Equal(t, "admin", entry.Actor)
	require.Equal(t, "01HX12ABC123", entry.EventID)
	require.Equal(t, OutcomeSuccess, entry.Outcome)
	require.Equal(t, "PUBLISH_EVENT", entry.Details["state_action"])
	require.True(t, fixed.Equal(entry.Timestamp))
	require.Equal(t, time.UTC, entry.Timestamp.Location())
	require.Empty(t, entry.TraceID)
}

func TestRecordFailureAddsError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Record(context.Background(), ActionRequestsDecide, "01HXOWNER", "01HXEVENT", errors.New("participant limit reached"), nil)

	wrapper, entry := decode(t, &buf)
	require.Equal(t, `"warn"`, string(wrapper["level"]))
	require.Equal(t, OutcomeFailure, entry.Outcome)
	require.Equal(t, "participant limit reached", entry.Details["error"])
}

func TestRecordCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))
	traceID := trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Record(ctx, ActionEventUpdate, "01HXOWNER", "01HXEVENT", nil, nil)

	_, entry := decode(t, &buf)
	require.Equal(t, traceID.String(), entry.TraceID)
}

func TestNilLoggerDiscards(t *testing.T) {
	var logger *Logger
	require.NotPanics(t, func() {
		logger.Record(context.Background(), ActionEventModerate, "admin", "x", nil, nil)
	})
}
