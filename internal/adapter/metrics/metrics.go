package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "callwatch"

// Metrics holds all Prometheus metrics for the log service.
type Metrics struct {
	EntriesTotal     *prometheus.CounterVec
	AppendErrors     *prometheus.CounterVec
	PrunedTotal      prometheus.Counter
	IngestRequests   *prometheus.CounterVec
	IngestBytesTotal prometheus.Counter
	ForwardedTotal   *prometheus.CounterVec
	ForwardDropped   *prometheus.CounterVec
	TailClients      prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entries_total",
			Help:      "Total number of entries appended, by kind.",
		}, []string{"kind"}),
		AppendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "append_errors_total",
			Help:      "Total number of failed appends, by kind.",
		}, []string{"kind"}),
		PrunedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pruned_total",
			Help:      "Total number of entries or files removed by retention pruning.",
		}),
		IngestRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of ingest requests by status.",
		}, []string{"status"}), // status: accepted, error_parse, error_size, error_store, error_media_type
		IngestBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes ingested.",
		}),
		ForwardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "entries_total",
			Help:      "Total number of entries forwarded to external sinks, by sink and status.",
		}, []string{"sink", "status"}),
		ForwardDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "dropped_total",
			Help:      "Total number of entries dropped before forwarding, by reason.",
		}, []string{"reason"}), // reason: queue_full, rate_limited
		TailClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "clients",
			Help:      "Number of connected live tail clients.",
		}),
	}
}
