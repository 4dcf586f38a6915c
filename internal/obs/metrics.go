// Package obs holds the engine's Prometheus instrumentation. Metrics are
// an internal collaborator of the facade — scraping/exposition is left to
// the embedding service, per §6's ambient-stack expansion.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the engine updates.
type Metrics struct {
	VectorsIngested prometheus.Counter
	IngestBatches   prometheus.Counter
	SearchQueries   prometheus.Counter
	SearchErrors    prometheus.Counter
	SearchLatency   prometheus.Histogram
	TrainCalls      prometheus.Counter
	AgentUpdates    prometheus.Counter
}

// NewMetrics registers and returns a fresh set of metrics against its own
// private registry, so that constructing more than one Engine in the same
// process never collides on the global prometheus.DefaultRegisterer.
// Scraping/exposing the registry is the embedder's job, per §6.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		VectorsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_vectors_ingested_total",
			Help: "Total vectors appended to the store",
		}),
		IngestBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_ingest_batches_total",
			Help: "Total add_vectors calls",
		}),
		SearchQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_search_queries_total",
			Help: "Total search queries",
		}),
		SearchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_search_errors_total",
			Help: "Total search queries that returned an error",
		}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "nanovec_search_latency_ms",
			Help: "Measured search latency in milliseconds",
		}),
		TrainCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_train_calls_total",
			Help: "Total IVF training calls",
		}),
		AgentUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "nanovec_agent_updates_total",
			Help: "Total adaptive-agent reward updates",
		}),
	}
}
