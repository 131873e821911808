package metrics

import (
	"log"
	"net/http"

	"github.com/grussorusso/offloadledge/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Enabled bool
var registry = prometheus.NewRegistry()

// Offload outcomes
const (
	Published    = "published"
	Failed       = "failed"
	Rejected     = "rejected"
	Acknowledged = "acknowledged"
)

var (
	offloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offloadledge_offload_requests_total",
		Help: "Offload requests handled, by source platform and outcome",
	}, []string{"source", "outcome"})
	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offloadledge_cache_lookups_total",
		Help: "Class unit lookups, by result (hit or miss)",
	}, []string{"result"})
	executionTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offloadledge_execution_seconds",
		Help:    "Duration of successful executions",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offloadledge_procedure_registrations_total",
		Help: "Procedure registration attempts, by outcome",
	}, []string{"outcome"})
	procedureCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offloadledge_procedure_calls_total",
		Help: "Direct invocations of registered procedures",
	}, []string{"procedure"})
)

func init() {
	registry.MustRegister(offloads, cacheLookups, executionTime, registrations, procedureCalls)
}

func Init() {
	if config.GetBool(config.METRICS_ENABLED, false) {
		log.Println("Metrics enabled.")
		Enabled = true
	} else {
		log.Println("Metrics disabled.")
		Enabled = false
	}
}

// Handler serves the collected metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func AddOffload(source, outcome string) {
	if Enabled {
		offloads.WithLabelValues(source, outcome).Inc()
	}
}

func AddCacheLookup(hit bool) {
	if !Enabled {
		return
	}
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
	} else {
		cacheLookups.WithLabelValues("miss").Inc()
	}
}

func ObserveExecution(seconds float64) {
	if Enabled {
		executionTime.Observe(seconds)
	}
}

func AddRegistration(outcome string) {
	if Enabled {
		registrations.WithLabelValues(outcome).Inc()
	}
}

func AddProcedureCall(procedure string) {
	if Enabled {
		procedureCalls.WithLabelValues(procedure).Inc()
	}
}
