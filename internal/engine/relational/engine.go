// Package relational implements the search engine against the primary
// SQLite store. It is the fallback backend: no text relevance scoring,
// LIKE-based matching, geo math done in process.
package relational

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/geo"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
	"github.com/kailas-cloud/marketsearch/internal/transform"
)

// geoCandidateLimit caps how many rows are pulled for in-process distance
// filtering and for advanced-search term matching.
const geoCandidateLimit = 500

// Compile-time check: Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// Engine is the relational search backend.
type Engine struct {
	store  db.RelationalStore
	logger *zap.Logger
	now    func() time.Time
}

// New creates the relational engine.
func New(store db.RelationalStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Search runs the standard filtered page query. Failures are logged and
// produce an empty page.
func (e *Engine) Search(ctx context.Context, req request.Request) page.Page {
	if loc := req.Location(); loc.IsUsable() {
		return e.geoFiltered(ctx, req, req.Sort())
	}

	q := &db.RelationalQuery{
		Text:    req.Query(),
		Filters: req.Filters(),
		Sort:    req.Sort(),
		Offset:  req.Offset(),
		Limit:   req.PerPage(),
	}

	switch req.RecordType() {
	case record.Provider:
		items, total, err := e.store.SearchProviders(ctx, q)
		if err != nil {
			return e.failPage(req, "provider search failed", err)
		}
		return e.providerPage(items, total, req)
	default:
		items, total, err := e.store.SearchListings(ctx, q)
		if err != nil {
			return e.failPage(req, "listing search failed", err)
		}
		return e.listingPage(items, total, req)
	}
}

// QuickSearch serves autocomplete from a title/name prefix query.
func (e *Engine) QuickSearch(ctx context.Context, rt record.Type, prefix string, limit int) []page.Suggestion {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < engine.MinQuickSearchLength {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	if rt == record.Provider {
		items, err := e.store.QuickProviders(ctx, prefix, limit)
		if err != nil {
			e.logger.Error("quick search failed", zap.String("record_type", rt.String()), zap.Error(err))
			return nil
		}
		out := make([]page.Suggestion, 0, len(items))
		for i := range items {
			out = append(out, page.Suggestion{
				Type: record.Provider, ID: items[i].ID, Title: items[i].Name,
			})
		}
		return out
	}

	items, err := e.store.QuickListings(ctx, prefix, limit)
	if err != nil {
		e.logger.Error("quick search failed", zap.String("record_type", rt.String()), zap.Error(err))
		return nil
	}
	out := make([]page.Suggestion, 0, len(items))
	for i := range items {
		out = append(out, page.Suggestion{
			Type: record.Listing, ID: items[i].ID, Title: items[i].Title,
		})
	}
	return out
}

// FindSimilar returns listings related to listingID by category, price
// band or tags.
func (e *Engine) FindSimilar(ctx context.Context, listingID int64, exclude []int64, limit int) []page.Hit {
	if limit <= 0 {
		limit = 10
	}

	ref, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		if !errors.Is(err, db.ErrRecordNotFound) {
			e.logger.Error("similar lookup failed", zap.Int64("listing_id", listingID), zap.Error(err))
		}
		return nil
	}

	items, err := e.store.SimilarListings(ctx, ref, exclude, limit)
	if err != nil {
		e.logger.Error("similar search failed", zap.Int64("listing_id", listingID), zap.Error(err))
		return nil
	}

	hits := make([]page.Hit, 0, len(items))
	for i := range items {
		hits = append(hits, e.listingHit(&items[i], 0))
	}
	return hits
}

// AdvancedSearch narrows by the broadest criteria term in SQL, then
// applies the full term groups in process over a capped candidate set.
func (e *Engine) AdvancedSearch(ctx context.Context, req request.Request, criteria engine.Criteria) page.Page {
	if criteria.IsZero() {
		return e.Search(ctx, req)
	}

	narrowing := criteria.Exact
	if narrowing == "" && len(criteria.All) > 0 {
		narrowing = criteria.All[0]
	}

	q := &db.RelationalQuery{
		Text:    narrowing,
		Filters: req.Filters(),
		Sort:    req.Sort(),
		Limit:   geoCandidateLimit,
	}

	if req.RecordType() == record.Provider {
		items, _, err := e.store.SearchProviders(ctx, q)
		if err != nil {
			return e.failPage(req, "advanced search failed", err)
		}
		var kept []record.ProviderRecord
		for i := range items {
			if matchCriteria(providerText(&items[i]), criteria) {
				kept = append(kept, items[i])
			}
		}
		pageItems, total := paginateProviders(kept, req)
		return e.providerPage(pageItems, total, req)
	}

	items, _, err := e.store.SearchListings(ctx, q)
	if err != nil {
		return e.failPage(req, "advanced search failed", err)
	}
	var kept []record.ListingRecord
	for i := range items {
		if matchCriteria(listingText(&items[i]), criteria) {
			kept = append(kept, items[i])
		}
	}
	pageItems, total := paginateListings(kept, req)
	return e.listingPage(pageItems, total, req)
}

// FacetedSearch runs Search plus per-field group-by counts over the same
// predicate. A facet field the store cannot aggregate is skipped.
func (e *Engine) FacetedSearch(ctx context.Context, req request.Request, facetFields []string) page.Page {
	result := e.Search(ctx, req)
	if len(facetFields) == 0 {
		return result
	}

	q := &db.RelationalQuery{Text: req.Query(), Filters: req.Filters(), Sort: req.Sort()}
	facets := make(map[string][]page.FacetCount, len(facetFields))

	for _, field := range facetFields {
		var (
			buckets []db.FacetBucket
			err     error
		)
		if req.RecordType() == record.Provider {
			buckets, err = e.store.ProviderFacets(ctx, q, field, 20)
		} else {
			buckets, err = e.store.ListingFacets(ctx, q, field, 20)
		}
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

// GeoSearch filters by the request radius and orders by distance. Absent
// or zero coordinates yield an empty page, never an unscoped result set.
func (e *Engine) GeoSearch(ctx context.Context, req request.Request) page.Page {
	if !req.Location().IsUsable() {
		return page.Empty(req.Page(), req.PerPage())
	}
	return e.geoFiltered(ctx, req, sortby.Distance)
}

// HealthCheck pings the database and reports table counts.
func (e *Engine) HealthCheck(ctx context.Context) engine.Status {
	st := engine.Status{Backend: engine.BackendRelational, Details: map[string]string{}}

	if err := e.store.Ping(ctx); err != nil {
		st.Details["error"] = err.Error()
		return st
	}
	listings, providers, err := e.store.Counts(ctx)
	if err != nil {
		st.Details["error"] = err.Error()
		return st
	}

	st.Healthy = true
	st.Details["listings"] = strconv.Itoa(listings)
	st.Details["providers"] = strconv.Itoa(providers)
	return st
}

// --- geo ---

// geoFiltered pulls a capped candidate set, keeps rows inside the radius
// and paginates in process. Distance sort orders nearest first; any other
// sort keeps the store ordering.
func (e *Engine) geoFiltered(ctx context.Context, req request.Request, order sortby.SortBy) page.Page {
	loc := req.Location()

	q := &db.RelationalQuery{
		Text:    req.Query(),
		Filters: req.Filters(),
		Sort:    req.Sort(),
		Limit:   geoCandidateLimit,
	}

	if req.RecordType() == record.Provider {
		items, _, err := e.store.SearchProviders(ctx, q)
		if err != nil {
			return e.failPage(req, "geo search failed", err)
		}

		type scored struct {
			rec  record.ProviderRecord
			dist float64
		}
		var kept []scored
		for i := range items {
			p := items[i].Location
			if p == nil || p.IsZero() {
				continue
			}
			d := geo.Haversine(loc.Lat, loc.Lng, p.Lat, p.Lng)
			if d <= loc.Radius() {
				kept = append(kept, scored{rec: items[i], dist: d})
			}
		}
		if order == sortby.Distance {
			sort.SliceStable(kept, func(i, j int) bool { return kept[i].dist < kept[j].dist })
		}

		total := len(kept)
		kept = slicePage(kept, req.Offset(), req.PerPage())
		out := page.Page{Items: make([]page.Hit, 0, len(kept)), TotalCount: total, Page: req.Page(), PerPage: req.PerPage()}
		for i := range kept {
			hit := e.providerHit(&kept[i].rec, 0)
			hit.DistanceKm = kept[i].dist
			out.Items = append(out.Items, hit)
		}
		return out
	}

	items, _, err := e.store.SearchListings(ctx, q)
	if err != nil {
		return e.failPage(req, "geo search failed", err)
	}

	type scored struct {
		rec  record.ListingRecord
		dist float64
	}
	var kept []scored
	for i := range items {
		p := items[i].Location
		if p == nil || p.IsZero() {
			continue
		}
		d := geo.Haversine(loc.Lat, loc.Lng, p.Lat, p.Lng)
		if d <= loc.Radius() {
			kept = append(kept, scored{rec: items[i], dist: d})
		}
	}
	if order == sortby.Distance {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].dist < kept[j].dist })
	}

	total := len(kept)
	kept = slicePage(kept, req.Offset(), req.PerPage())
	out := page.Page{Items: make([]page.Hit, 0, len(kept)), TotalCount: total, Page: req.Page(), PerPage: req.PerPage()}
	for i := range kept {
		hit := e.listingHit(&kept[i].rec, 0)
		hit.DistanceKm = kept[i].dist
		out.Items = append(out.Items, hit)
	}
	return out
}

// --- mapping ---

func (e *Engine) listingPage(items []record.ListingRecord, total int, req request.Request) page.Page {
	out := page.Page{
		Items:      make([]page.Hit, 0, len(items)),
		TotalCount: total,
		Page:       req.Page(),
		PerPage:    req.PerPage(),
	}
	for i := range items {
		out.Items = append(out.Items, e.listingHit(&items[i], 0))
	}
	return out
}

func (e *Engine) providerPage(items []record.ProviderRecord, total int, req request.Request) page.Page {
	out := page.Page{
		Items:      make([]page.Hit, 0, len(items)),
		TotalCount: total,
		Page:       req.Page(),
		PerPage:    req.PerPage(),
	}
	for i := range items {
		out.Items = append(out.Items, e.providerHit(&items[i], 0))
	}
	return out
}

// listingHit uses the indexing-time document projection for hit fields so
// both backends render identical items, and surfaces the boost as the
// score in absence of a text relevance signal.
func (e *Engine) listingHit(l *record.ListingRecord, score float64) page.Hit {
	doc := transform.ListingDocument(l, e.now())
	if score == 0 {
		score = doc.Signals.BoostScore
	}
	return page.Hit{Type: record.Listing, ID: l.ID, Fields: doc.Fields, Score: score}
}

func (e *Engine) providerHit(p *record.ProviderRecord, score float64) page.Hit {
	doc := transform.ProviderDocument(p, e.now())
	if score == 0 {
		score = doc.Signals.BoostScore
	}
	return page.Hit{Type: record.Provider, ID: p.ID, Fields: doc.Fields, Score: score}
}

func (e *Engine) failPage(req request.Request, msg string, err error) page.Page {
	e.logger.Error(msg,
		zap.String("record_type", req.RecordType().String()),
		zap.String("query", req.Query()),
		zap.Error(err),
	)
	return page.Empty(req.Page(), req.PerPage())
}

// --- criteria matching ---

func listingText(l *record.ListingRecord) string {
	parts := []string{l.Title, l.Description, strings.Join(l.Tags, " ")}
	for _, svc := range l.Services {
		parts = append(parts, svc.Name)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func providerText(p *record.ProviderRecord) string {
	return strings.ToLower(strings.Join([]string{p.Name, p.Specialty, p.Bio, p.City}, " "))
}

func matchCriteria(text string, c engine.Criteria) bool {
	for _, term := range c.All {
		if !strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	if len(c.Any) > 0 {
		found := false
		for _, term := range c.Any {
			if strings.Contains(text, strings.ToLower(term)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, term := range c.None {
		if strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	if c.Exact != "" && !strings.Contains(text, strings.ToLower(c.Exact)) {
		return false
	}
	return true
}

// --- pagination helpers ---

func slicePage[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func paginateListings(items []record.ListingRecord, req request.Request) ([]record.ListingRecord, int) {
	return slicePage(items, req.Offset(), req.PerPage()), len(items)
}

func paginateProviders(items []record.ProviderRecord, req request.Request) ([]record.ProviderRecord, int) {
	return slicePage(items, req.Offset(), req.PerPage()), len(items)
}
