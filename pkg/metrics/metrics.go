// Package metrics holds the Prometheus collectors shared by the server and
// the worker. Collectors register on the default registry at init.
package metrics

import (
	"time"

	"github.com/chirality-ai/valley/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valley",
		Subsystem: "graph",
		Name:      "operations_total",
		Help:      "Graph operations by name and outcome.",
	}, []string{"operation", "result"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "valley",
		Subsystem: "graph",
		Name:      "operation_duration_seconds",
		Help:      "Latency of graph operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	NodesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valley",
		Subsystem: "graph",
		Name:      "nodes_created_total",
		Help:      "Nodes created by ingestion, by label.",
	}, []string{"label"})

	ComponentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valley",
		Subsystem: "graph",
		Name:      "components_deleted_total",
		Help:      "Components removed by cascading deletes.",
	})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valley",
		Subsystem: "queue",
		Name:      "messages_total",
		Help:      "Queue messages handled, by queue and outcome.",
	}, []string{"queue", "result"})
)

// Result classifies err for the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case common.IsValidation(err):
		return "invalid"
	case common.IsStore(err):
		return "store_error"
	default:
		return "error"
	}
}

// Observe records one finished operation.
func Observe(operation string, start time.Time, err error) {
	Operations.WithLabelValues(operation, Result(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
