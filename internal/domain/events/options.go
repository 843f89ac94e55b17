package events

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

const tracerName = "github.com/Togather-Foundation/gatherings/internal/domain/events"

// Observer receives business outcomes, typically to feed Prometheus counters.
type Observer interface {
	AdmissionDecision(outcome string, n int)
	LifecycleTransition(action, result string)
}

type nopObserver struct{}

func (nopObserver) AdmissionDecision(string, int)      {}
func (nopObserver) LifecycleTransition(string, string) {}

type options struct {
	now      func() time.Time
	logger   zerolog.Logger
	audit    *audit.Logger
	observer Observer
	views    ViewStatsReader
	hits     HitRecorder
	tracer   trace.Tracer
}

// Option configures LifecycleService and AdmissionService.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithAuditLogger(logger *audit.Logger) Option {
	return func(o *options) {
		o.audit = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithViewStats sets the source of view counts for read projections.
func WithViewStats(reader ViewStatsReader) Option {
	return func(o *options) {
		o.views = reader
	}
}

// WithHitRecorder sets where public reads are reported.
func WithHitRecorder(recorder HitRecorder) Option {
	return func(o *options) {
		o.hits = recorder
	}
}

func newOptions(component string, opts []Option) options {
	o := options{
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With().Str("component", component).Logger()
	return o
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != apperr.KindUnknown {
		return kind.String()
	}
	return "error"
}
