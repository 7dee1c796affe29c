package indexsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
	"github.com/kailas-cloud/marketsearch/internal/metrics"
	"github.com/kailas-cloud/marketsearch/internal/postprocess"
)

// QueryExpander rewrites a free-text query into a richer one. Expansion
// failures must never fail a search.
type QueryExpander interface {
	Expand(ctx context.Context, query string) (string, error)
}

// Compile-time check: Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// Engine is the index-service search backend.
type Engine struct {
	store    db.IndexStore
	listings db.ListingReader
	expander QueryExpander
	cacheTTL time.Duration
	logger   *zap.Logger
}

// New creates the index-service engine. cacheTTL <= 0 disables the
// result cache.
func New(store db.IndexStore, listings db.ListingReader, cacheTTL time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		listings: listings,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// WithExpander enables intelligent query expansion.
func (e *Engine) WithExpander(x QueryExpander) *Engine {
	e.expander = x
	return e
}

// Search runs the standard query through the read-through result cache.
func (e *Engine) Search(ctx context.Context, req request.Request) page.Page {
	if req.Sort() == sortby.Distance && req.Location().IsUsable() {
		return e.GeoSearch(ctx, req)
	}

	key := cacheKey(req)
	if cached, ok := e.cacheGet(ctx, key); ok {
		return cached
	}

	result := e.execute(ctx, req, translate(req))
	e.cachePut(ctx, key, result)
	return result
}

// IntelligentSearch expands the query text before searching. Any
// expansion failure degrades to the plain query.
func (e *Engine) IntelligentSearch(ctx context.Context, req request.Request) page.Page {
	if e.expander != nil && req.Query() != "" {
		expanded, err := e.expander.Expand(ctx, req.Query())
		if err != nil {
			e.logger.Warn("query expansion failed, using original query",
				zap.String("query", req.Query()), zap.Error(err))
		} else {
			req = req.WithQuery(expanded)
		}
	}
	return e.Search(ctx, req)
}

// QuickSearch serves autocomplete via a prefix term query.
func (e *Engine) QuickSearch(ctx context.Context, rt record.Type, prefix string, limit int) []page.Suggestion {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < engine.MinQuickSearchLength {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	titleField := "title"
	if rt == record.Provider {
		titleField = "name"
	}

	res, err := e.store.Search(ctx, &db.SearchQuery{
		Index:        IndexName(rt),
		Query:        "@" + titleField + ":(" + prefixTerm(prefix) + ")",
		Limit:        limit,
		WithScores:   true,
		ReturnFields: []string{titleField},
	})
	if err != nil {
		e.logger.Error("quick search failed", zap.String("record_type", rt.String()), zap.Error(err))
		return nil
	}

	out := make([]page.Suggestion, 0, len(res.Entries))
	for _, entry := range res.Entries {
		entryRT, id, ok := postprocess.ParseKey(entry.Key, KeyPrefix)
		if !ok {
			continue
		}
		out = append(out, page.Suggestion{
			Type:  entryRT,
			ID:    id,
			Title: entry.Fields[titleField],
			Score: entry.Score,
		})
	}
	return out
}

// FindSimilar matches listings related to listingID by category, price
// band or fuzzy title terms, excluding the listing itself and the ids
// given.
func (e *Engine) FindSimilar(ctx context.Context, listingID int64, exclude []int64, limit int) []page.Hit {
	if limit <= 0 {
		limit = 10
	}

	ref, err := e.listings.GetListing(ctx, listingID)
	if err != nil {
		if !errors.Is(err, db.ErrRecordNotFound) {
			e.logger.Error("similar lookup failed", zap.Int64("listing_id", listingID), zap.Error(err))
		}
		return nil
	}

	res, err := e.store.Search(ctx, &db.SearchQuery{
		Index:      ListingIndex,
		Query:      similarQuery(ref, exclude),
		Limit:      limit,
		WithScores: true,
	})
	if err != nil {
		e.logger.Error("similar search failed", zap.Int64("listing_id", listingID), zap.Error(err))
		return nil
	}
	return postprocess.BuildHits(res.Entries, KeyPrefix)
}

// AdvancedSearch runs structured term criteria. Not cached: criteria
// combinations are long-tail.
func (e *Engine) AdvancedSearch(ctx context.Context, req request.Request, criteria engine.Criteria) page.Page {
	if criteria.IsZero() {
		return e.Search(ctx, req)
	}
	return e.execute(ctx, req, translateCriteria(req, criteria))
}

// FacetedSearch runs Search plus facet aggregations over the same query.
func (e *Engine) FacetedSearch(ctx context.Context, req request.Request, facetFields []string) page.Page {
	result := e.Search(ctx, req)
	if len(facetFields) == 0 {
		return result
	}

	query := translate(req)
	facets := make(map[string][]page.FacetCount, len(facetFields))

	for _, field := range facetFields {
		buckets, err := e.store.Facets(ctx, &db.FacetQuery{
			Index: IndexName(req.RecordType()),
			Query: query,
			Field: field,
			Size:  20,
		})
		if err != nil {
			e.logger.Warn("facet aggregation skipped", zap.String("field", field), zap.Error(err))
			continue
		}
		counts := make([]page.FacetCount, 0, len(buckets))
		for _, b := range buckets {
			counts = append(counts, page.FacetCount{Value: b.Value, Count: b.Count})
		}
		facets[field] = counts
	}

	if len(facets) > 0 {
		result.Facets = facets
	}
	return result
}

// GeoSearch restricts matches to the request radius and orders nearest
// first via a server-side distance projection. Absent or zero coordinates
// yield an empty page, never an unscoped result set.
func (e *Engine) GeoSearch(ctx context.Context, req request.Request) page.Page {
	loc := req.Location()
	if !loc.IsUsable() {
		return page.Empty(req.Page(), req.PerPage())
	}

	query := translate(req) + " " + geoClause(loc)

	// The aggregation has no offset/limit split, so fetch up to the end
	// of the requested page and slice.
	res, err := e.store.SearchGeo(ctx, &db.GeoQuery{
		Index:        IndexName(req.RecordType()),
		Query:        query,
		GeoField:     "location",
		Lat:          loc.Lat,
		Lng:          loc.Lng,
		Limit:        req.Offset() + req.PerPage(),
		ReturnFields: geoReturnFields(req.RecordType()),
	})
	if err != nil {
		return e.failPage(req, "geo search failed", err)
	}

	hits := postprocess.BuildHits(res.Entries, KeyPrefix)
	if req.Offset() < len(hits) {
		hits = hits[req.Offset():]
	} else {
		hits = nil
	}

	out := page.Page{
		Items:      hits,
		TotalCount: res.Total,
		Page:       req.Page(),
		PerPage:    req.PerPage(),
	}
	if out.Items == nil {
		out.Items = []page.Hit{}
	}
	return out
}

// HealthCheck pings the service and reports per-index document counts.
func (e *Engine) HealthCheck(ctx context.Context) engine.Status {
	st := engine.Status{Backend: engine.BackendIndexService, Details: map[string]string{}}

	if err := e.store.Ping(ctx); err != nil {
		st.Details["error"] = err.Error()
		return st
	}

	listings, err := e.store.Count(ctx, ListingIndex, "*")
	if err != nil {
		st.Details["error"] = err.Error()
		return st
	}
	providers, err := e.store.Count(ctx, ProviderIndex, "*")
	if err != nil {
		st.Details["error"] = err.Error()
		return st
	}

	st.Healthy = true
	st.Details["listings"] = strconv.Itoa(listings)
	st.Details["providers"] = strconv.Itoa(providers)
	return st
}

// --- internals ---

// execute runs one translated query and post-processes the result.
func (e *Engine) execute(ctx context.Context, req request.Request, query string) page.Page {
	field, asc := sortField(req.RecordType(), req.Sort())

	res, err := e.store.Search(ctx, &db.SearchQuery{
		Index:      IndexName(req.RecordType()),
		Query:      query,
		SortField:  field,
		SortAsc:    asc,
		Offset:     req.Offset(),
		Limit:      req.PerPage(),
		WithScores: field == "",
	})
	if err != nil {
		return e.failPage(req, "search failed", err)
	}

	result := postprocess.BuildPage(res, KeyPrefix, req)
	postprocess.BlendBoosts(&result, req.Sort())
	return result
}

func (e *Engine) cacheGet(ctx context.Context, key string) (page.Page, bool) {
	if e.cacheTTL <= 0 {
		return page.Page{}, false
	}
	data, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			e.logger.Warn("result cache read failed", zap.Error(err))
		}
		metrics.ObserveCacheLookup(false)
		return page.Page{}, false
	}
	var cached page.Page
	if err := json.Unmarshal(data, &cached); err != nil {
		e.logger.Warn("result cache entry corrupt, ignoring", zap.Error(err))
		metrics.ObserveCacheLookup(false)
		return page.Page{}, false
	}
	metrics.ObserveCacheLookup(true)
	return cached, true
}

func (e *Engine) cachePut(ctx context.Context, key string, p page.Page) {
	if e.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := e.store.SetWithTTL(ctx, key, data, e.cacheTTL); err != nil {
		e.logger.Warn("result cache write failed", zap.Error(err))
	}
}

func (e *Engine) failPage(req request.Request, msg string, err error) page.Page {
	e.logger.Error(msg,
		zap.String("record_type", req.RecordType().String()),
		zap.String("query", req.Query()),
		zap.Error(err),
	)
	return page.Empty(req.Page(), req.PerPage())
}

func geoReturnFields(rt record.Type) []string {
	if rt == record.Provider {
		return []string{"name", "specialty", "city", "rating", "boost_score"}
	}
	return []string{"title", "category", "city", "price_per_hour", "rating", "boost_score"}
}

// prefixTerm renders a prefix query term.
func prefixTerm(prefix string) string {
	return escapePrefix(prefix) + "*"
}

// escapePrefix escapes everything EscapeTerm does except the trailing
// wildcard semantics the prefix itself needs.
func escapePrefix(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '\'', '"', '@', '{', '}', '(', ')', '|', '-', '~', '*', '[', ']', '!', '%', '^', '$', '<', '>', '=', ';', '+', ',', '.', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
