package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherings"

// Registry holds every gatherings metric; /metrics serves it.
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthCheckStatus is the last /readyz result per check: 0 fail, 1 warn, 2 pass.
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=warn, 2=pass)",
	},
	[]string{"check"},
)

// HealthCheckLatency tracks the latency of individual health checks in milliseconds
var HealthCheckLatency = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_latency_ms",
		Help:      "Health check latency in milliseconds",
	},
	[]string{"check"},
)

// AdmissionDecisions counts participation request outcomes.
// outcome: PENDING, CONFIRMED, REJECTED, CANCELED, cascade_rejected, conflict, not_found, validation, error
var AdmissionDecisions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_decisions_total",
		Help:      "Participation request decisions by outcome",
	},
	[]string{"outcome"},
)

// LifecycleTransitions counts event updates by state action and result.
var LifecycleTransitions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_transitions_total",
		Help:      "Event updates by state action and result",
	},
	[]string{"action", "result"},
)

var runtimeOnce sync.Once

// Init registers the Go and process collectors once and publishes build info.
func Init(version, commit, buildDate string) {
	runtimeOnce.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	AppInfo.Reset()
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// DomainObserver feeds business outcomes from the event services into the
// counters above.
type DomainObserver struct{}

func (DomainObserver) AdmissionDecision(outcome string, n int) {
	if n <= 0 {
		return
	}
	AdmissionDecisions.WithLabelValues(outcome).Add(float64(n))
}

func (DomainObserver) LifecycleTransition(action, result string) {
	LifecycleTransitions.WithLabelValues(action, result).Inc()
}
