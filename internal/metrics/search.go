package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

var (
	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketsearch",
			Name:      "search_duration_seconds",
			Help:      "Search operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend", "operation"},
	)

	searchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketsearch",
			Name:      "search_requests_total",
			Help:      "Total number of search operations",
		},
		[]string{"backend", "operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(searchDuration)
	prometheus.MustRegister(searchResults)
}

// Compile-time check: instrumented engine still implements engine.Engine.
var _ engine.Engine = (*instrumented)(nil)

// Instrument wraps an engine so every operation reports duration and an
// empty/nonempty outcome under the given backend label.
func Instrument(inner engine.Engine, backend string) engine.Engine {
	return &instrumented{inner: inner, backend: backend}
}

type instrumented struct {
	inner   engine.Engine
	backend string
}

func (m *instrumented) observe(op string, start time.Time, empty bool) {
	searchDuration.WithLabelValues(m.backend, op).Observe(time.Since(start).Seconds())
	outcome := "results"
	if empty {
		outcome = "empty"
	}
	searchResults.WithLabelValues(m.backend, op, outcome).Inc()
}

func (m *instrumented) Search(ctx context.Context, req request.Request) page.Page {
	start := time.Now()
	p := m.inner.Search(ctx, req)
	m.observe("search", start, len(p.Items) == 0)
	return p
}

func (m *instrumented) QuickSearch(ctx context.Context, rt record.Type, prefix string, limit int) []page.Suggestion {
	start := time.Now()
	s := m.inner.QuickSearch(ctx, rt, prefix, limit)
	m.observe("quick_search", start, len(s) == 0)
	return s
}

func (m *instrumented) FindSimilar(ctx context.Context, listingID int64, exclude []int64, limit int) []page.Hit {
	start := time.Now()
	h := m.inner.FindSimilar(ctx, listingID, exclude, limit)
	m.observe("find_similar", start, len(h) == 0)
	return h
}

func (m *instrumented) AdvancedSearch(ctx context.Context, req request.Request, criteria engine.Criteria) page.Page {
	start := time.Now()
	p := m.inner.AdvancedSearch(ctx, req, criteria)
	m.observe("advanced_search", start, len(p.Items) == 0)
	return p
}

func (m *instrumented) FacetedSearch(ctx context.Context, req request.Request, facetFields []string) page.Page {
	start := time.Now()
	p := m.inner.FacetedSearch(ctx, req, facetFields)
	m.observe("faceted_search", start, len(p.Items) == 0)
	return p
}

func (m *instrumented) GeoSearch(ctx context.Context, req request.Request) page.Page {
	start := time.Now()
	p := m.inner.GeoSearch(ctx, req)
	m.observe("geo_search", start, len(p.Items) == 0)
	return p
}

func (m *instrumented) HealthCheck(ctx context.Context) engine.Status {
	return m.inner.HealthCheck(ctx)
}
