package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for traversals.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_pages_fetched_total",
		Help: "Total listing pages fetched by endpoint",
	}, []string{"endpoint"})

	batchesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travelmap_batches_fetched_total",
		Help: "Total geometry chunks fetched",
	})
)
