package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	indexOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketsearch",
			Name:      "index_operations_total",
			Help:      "Total number of index document operations",
		},
		[]string{"op", "status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketsearch",
			Name:      "search_cache_lookups_total",
			Help:      "Search result cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(indexOperations)
	prometheus.MustRegister(cacheLookups)
}

// ObserveIndexOp counts one document-level index operation.
func ObserveIndexOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	indexOperations.WithLabelValues(op, status).Inc()
}

// ObserveCacheLookup counts a result-cache hit or miss.
func ObserveCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(outcome).Inc()
}
