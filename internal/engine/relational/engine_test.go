package relational

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/db/sqlite"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, zap.NewNop()), store
}

func listing(id int64, title, category string, price int, loc *record.Point) record.ListingRecord {
	return record.ListingRecord{
		ID: id, Title: title, Category: category, PricePerHour: price,
		Location: loc, Status: "active", IsPublished: true,
		CreatedAt: time.Now().Add(-24 * time.Hour), UpdatedAt: time.Now(),
	}
}

func mustSave(t *testing.T, store *sqlite.Store, l record.ListingRecord) {
	t.Helper()
	if err := store.SaveListing(context.Background(), &l); err != nil {
		t.Fatalf("SaveListing: %v", err)
	}
}

func mustRequest(t *testing.T, query string, fs filters.Set, sort sortby.SortBy, pageNum, perPage int, loc *request.Location) request.Request {
	t.Helper()
	req, err := request.New(query, record.Listing, fs, sort, pageNum, perPage, loc)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func TestSearchReturnsPage(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "Wedding photography", "photo", 3000, nil))
	mustSave(t, store, listing(2, "Event photography", "photo", 5000, nil))
	mustSave(t, store, listing(3, "Plumbing", "home", 2000, nil))

	got := e.Search(context.Background(), mustRequest(t, "photography", nil, sortby.Relevance, 1, 20, nil))
	if got.TotalCount != 2 || len(got.Items) != 2 {
		t.Fatalf("TotalCount = %d, items = %d, want 2", got.TotalCount, len(got.Items))
	}
	if got.Items[0].Type != record.Listing || got.Items[0].Score < 1.0 {
		t.Errorf("hit = %+v", got.Items[0])
	}
}

func TestSearchEmptyOnStoreFailure(t *testing.T) {
	e, store := newTestEngine(t)
	store.Close()

	got := e.Search(context.Background(), mustRequest(t, "anything", nil, sortby.Relevance, 2, 10, nil))
	if got.TotalCount != 0 || len(got.Items) != 0 {
		t.Errorf("page = %+v, want empty", got)
	}
	if got.Page != 2 || got.PerPage != 10 {
		t.Errorf("pagination echo = %d/%d, want 2/10", got.Page, got.PerPage)
	}
}

func TestQuickSearchShortPrefix(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "Photography", "photo", 100, nil))

	if got := e.QuickSearch(context.Background(), record.Listing, "p", 10); got != nil {
		t.Errorf("1-char prefix yielded %v", got)
	}
	if got := e.QuickSearch(context.Background(), record.Listing, "  ", 10); got != nil {
		t.Errorf("whitespace prefix yielded %v", got)
	}
	// One multibyte character is still one character.
	if got := e.QuickSearch(context.Background(), record.Listing, "я", 10); got != nil {
		t.Errorf("1-rune prefix yielded %v", got)
	}
	got := e.QuickSearch(context.Background(), record.Listing, "Ph", 10)
	if len(got) != 1 || got[0].Title != "Photography" {
		t.Errorf("suggestions = %v", got)
	}
}

func TestFindSimilarExcludesSelfAndGiven(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "Wedding photography", "photo", 3000, nil))
	mustSave(t, store, listing(2, "Event photography", "photo", 3100, nil))
	mustSave(t, store, listing(3, "Portraits", "photo", 2900, nil))

	hits := e.FindSimilar(context.Background(), 1, []int64{2}, 10)
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Errorf("hits = %+v, want only id 3", hits)
	}

	if hits := e.FindSimilar(context.Background(), 404, nil, 10); hits != nil {
		t.Errorf("missing listing yielded %v", hits)
	}
}

func TestAdvancedSearchCriteria(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "Wedding photography studio", "photo", 3000, nil))
	mustSave(t, store, listing(2, "Cheap wedding photography", "photo", 1000, nil))
	mustSave(t, store, listing(3, "Wedding catering", "food", 2000, nil))

	got := e.AdvancedSearch(context.Background(),
		mustRequest(t, "", nil, sortby.Relevance, 1, 20, nil),
		engine.Criteria{All: []string{"wedding", "photography"}, None: []string{"cheap"}},
	)
	if got.TotalCount != 1 || got.Items[0].ID != 1 {
		t.Errorf("page = %+v, want only id 1", got)
	}
}

func TestFacetedSearchAggregates(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "A", "photo", 100, nil))
	mustSave(t, store, listing(2, "B", "photo", 200, nil))
	mustSave(t, store, listing(3, "C", "home", 300, nil))

	got := e.FacetedSearch(context.Background(),
		mustRequest(t, "", nil, sortby.Relevance, 1, 20, nil),
		[]string{"category", "bogus_field"},
	)
	counts, ok := got.Facets["category"]
	if !ok || len(counts) != 2 || counts[0].Value != "photo" || counts[0].Count != 2 {
		t.Errorf("facets = %+v", got.Facets)
	}
	if _, ok := got.Facets["bogus_field"]; ok {
		t.Error("unsupported facet field should be skipped, not returned")
	}
}

func TestGeoSearchOrdersByDistance(t *testing.T) {
	e, store := newTestEngine(t)
	// Riga center, nearby, and Daugavpils (~200 km away).
	mustSave(t, store, listing(1, "Near", "photo", 100, &record.Point{Lat: 56.95, Lng: 24.11}))
	mustSave(t, store, listing(2, "Nearer", "photo", 100, &record.Point{Lat: 56.949, Lng: 24.105}))
	mustSave(t, store, listing(3, "Far", "photo", 100, &record.Point{Lat: 55.87, Lng: 26.54}))
	mustSave(t, store, listing(4, "No coords", "photo", 100, nil))

	got := e.GeoSearch(context.Background(), mustRequest(t, "", nil, sortby.Distance, 1, 20,
		&request.Location{Lat: 56.9489, Lng: 24.1064, RadiusKm: 50}))

	if got.TotalCount != 2 {
		t.Fatalf("TotalCount = %d, want 2 (radius excludes far, nil coords skipped)", got.TotalCount)
	}
	if got.Items[0].ID != 2 || got.Items[1].ID != 1 {
		t.Errorf("order = %d, %d, want nearest first", got.Items[0].ID, got.Items[1].ID)
	}
	if got.Items[0].DistanceKm <= 0 || got.Items[0].DistanceKm >= got.Items[1].DistanceKm {
		t.Errorf("distances = %v, %v", got.Items[0].DistanceKm, got.Items[1].DistanceKm)
	}
}

func TestGeoSearchWithoutCoordinatesEmpty(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "Anywhere", "photo", 100, nil))

	for name, loc := range map[string]*request.Location{
		"absent": nil,
		"zero":   {Lat: 0, Lng: 0, RadiusKm: 10},
	} {
		got := e.GeoSearch(context.Background(), mustRequest(t, "", nil, sortby.Distance, 1, 20, loc))
		if got.TotalCount != 0 || len(got.Items) != 0 {
			t.Errorf("%s coordinates: page = %+v, want empty", name, got)
		}
		if got.Items == nil || got.Page != 1 || got.PerPage != 20 {
			t.Errorf("%s coordinates: envelope = %+v, want well-formed empty page", name, got)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	e, store := newTestEngine(t)
	mustSave(t, store, listing(1, "A", "photo", 100, nil))

	st := e.HealthCheck(context.Background())
	if !st.Healthy || st.Backend != engine.BackendRelational {
		t.Fatalf("status = %+v", st)
	}
	if st.Details["listings"] != "1" {
		t.Errorf("listings = %q", st.Details["listings"])
	}

	store.Close()
	st = e.HealthCheck(context.Background())
	if st.Healthy {
		t.Error("healthy after close")
	}
}
