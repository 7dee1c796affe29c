package indexsvc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

// mockIndexStore is a scriptable in-memory db.IndexStore.
type mockIndexStore struct {
	searchFn    func(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error)
	searchGeoFn func(ctx context.Context, q *db.GeoQuery) (*db.SearchResult, error)
	facetsFn    func(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error)
	countFn     func(ctx context.Context, index, query string) (int, error)
	pingErr     error

	kv        map[string][]byte
	searches  int
	lastQuery *db.SearchQuery
}

func newMockIndexStore() *mockIndexStore {
	return &mockIndexStore{kv: map[string][]byte{}}
}

func (m *mockIndexStore) Ping(context.Context) error { return m.pingErr }
func (m *mockIndexStore) Close()                     {}
func (m *mockIndexStore) WaitForReady(context.Context, time.Duration) error {
	return m.pingErr
}

func (m *mockIndexStore) CreateIndex(context.Context, *db.IndexDefinition) error { return nil }
func (m *mockIndexStore) DropIndex(context.Context, string) error                { return nil }
func (m *mockIndexStore) IndexExists(context.Context, string) (bool, error)      { return true, nil }

func (m *mockIndexStore) UpsertDoc(context.Context, db.DocItem) error { return nil }
func (m *mockIndexStore) UpsertDocs(_ context.Context, items []db.DocItem) []error {
	return make([]error, len(items))
}
func (m *mockIndexStore) PatchDoc(context.Context, string, map[string]string) error { return nil }
func (m *mockIndexStore) DeleteDoc(context.Context, string) error                   { return nil }

func (m *mockIndexStore) Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	m.searches++
	m.lastQuery = q
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockIndexStore) SearchGeo(ctx context.Context, q *db.GeoQuery) (*db.SearchResult, error) {
	if m.searchGeoFn != nil {
		return m.searchGeoFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockIndexStore) Facets(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
	if m.facetsFn != nil {
		return m.facetsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockIndexStore) Count(ctx context.Context, index, query string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, index, query)
	}
	return 0, nil
}

func (m *mockIndexStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.kv[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockIndexStore) Set(_ context.Context, key string, value []byte) error {
	m.kv[key] = value
	return nil
}

func (m *mockIndexStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.kv[key] = value
	return nil
}

func (m *mockIndexStore) Del(_ context.Context, key string) error {
	delete(m.kv, key)
	return nil
}

// mockListings serves one fixed listing.
type mockListings struct {
	listing *record.ListingRecord
}

func (m *mockListings) GetListing(_ context.Context, id int64) (*record.ListingRecord, error) {
	if m.listing != nil && m.listing.ID == id {
		return m.listing, nil
	}
	return nil, db.ErrRecordNotFound
}

func (m *mockListings) SearchListings(context.Context, *db.RelationalQuery) ([]record.ListingRecord, int, error) {
	return nil, 0, nil
}

func (m *mockListings) QuickListings(context.Context, string, int) ([]record.ListingRecord, error) {
	return nil, nil
}

func (m *mockListings) SimilarListings(context.Context, *record.ListingRecord, []int64, int) ([]record.ListingRecord, error) {
	return nil, nil
}

func mustRequest(t *testing.T, query string, fs filters.Set, sort sortby.SortBy, pageNum, perPage int, loc *request.Location) request.Request {
	t.Helper()
	req, err := request.New(query, record.Listing, fs, sort, pageNum, perPage, loc)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func entry(id string, score float64, boost string) db.SearchEntry {
	return db.SearchEntry{
		Key:    "msearch:doc:listing:" + id,
		Score:  score,
		Fields: map[string]string{"title": "T" + id, "boost_score": boost},
	}
}

func TestSearchBlendsBoostOnRelevance(t *testing.T) {
	store := newMockIndexStore()
	store.searchFn = func(_ context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
		if !q.WithScores {
			t.Error("relevance sort must request scores")
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			entry("1", 2.0, "1"),
			entry("2", 1.5, "3"),
		}}, nil
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	got := e.Search(context.Background(), mustRequest(t, "photo", nil, sortby.Relevance, 1, 20, nil))
	if got.TotalCount != 2 || len(got.Items) != 2 {
		t.Fatalf("page = %+v", got)
	}
	if got.Items[0].ID != 2 || got.Items[0].Score != 4.5 {
		t.Errorf("first = %+v, want boosted hit 2 at 4.5", got.Items[0])
	}
}

func TestSearchExplicitSortUsesSortField(t *testing.T) {
	store := newMockIndexStore()
	e := New(store, &mockListings{}, 0, zap.NewNop())

	e.Search(context.Background(), mustRequest(t, "", nil, sortby.PriceAsc, 1, 20, nil))
	if store.lastQuery.SortField != "price_per_hour" || !store.lastQuery.SortAsc {
		t.Errorf("query = %+v", store.lastQuery)
	}
	if store.lastQuery.WithScores {
		t.Error("explicit sort must not request scores")
	}
}

func TestSearchCacheRoundTrip(t *testing.T) {
	store := newMockIndexStore()
	store.searchFn = func(context.Context, *db.SearchQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{entry("1", 2.0, "1")}}, nil
	}
	e := New(store, &mockListings{}, DefaultCacheTTL, zap.NewNop())
	req := mustRequest(t, "photo", nil, sortby.Relevance, 1, 20, nil)

	first := e.Search(context.Background(), req)
	second := e.Search(context.Background(), req)

	if store.searches != 1 {
		t.Errorf("searches = %d, want 1 (second call served from cache)", store.searches)
	}
	if first.TotalCount != second.TotalCount || len(first.Items) != len(second.Items) {
		t.Errorf("cached page differs: %+v vs %+v", first, second)
	}
}

func TestSearchCacheKeySeparatesRecordTypes(t *testing.T) {
	listReq := mustRequest(t, "anna", nil, sortby.Relevance, 1, 20, nil)
	provReq, err := request.New("anna", record.Provider, nil, sortby.Relevance, 1, 20, nil)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	if cacheKey(listReq) == cacheKey(provReq) {
		t.Error("cache keys collide across record types")
	}
}

func TestSearchFailureYieldsEmptyPage(t *testing.T) {
	store := newMockIndexStore()
	store.searchFn = func(context.Context, *db.SearchQuery) (*db.SearchResult, error) {
		return nil, errors.New("connection refused")
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	got := e.Search(context.Background(), mustRequest(t, "photo", nil, sortby.Relevance, 3, 15, nil))
	if got.TotalCount != 0 || len(got.Items) != 0 || got.Page != 3 || got.PerPage != 15 {
		t.Errorf("page = %+v, want empty 3/15", got)
	}
}

func TestQuickSearchShortPrefix(t *testing.T) {
	store := newMockIndexStore()
	e := New(store, &mockListings{}, 0, zap.NewNop())

	if got := e.QuickSearch(context.Background(), record.Listing, "x", 10); got != nil {
		t.Errorf("short prefix yielded %v", got)
	}
	// One multibyte character is still one character.
	if got := e.QuickSearch(context.Background(), record.Listing, "я", 10); got != nil {
		t.Errorf("1-rune prefix yielded %v", got)
	}
	if store.searches != 0 {
		t.Error("short prefix must not hit the index")
	}
}

func TestFindSimilarQueryShape(t *testing.T) {
	store := newMockIndexStore()
	store.searchFn = func(_ context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
		if !strings.Contains(q.Query, "@category:{photo}") {
			t.Errorf("query lacks category clause: %s", q.Query)
		}
		if !strings.Contains(q.Query, "-@id:{5|9}") {
			t.Errorf("query lacks exclusions: %s", q.Query)
		}
		if !strings.Contains(q.Query, "@price_per_hour:[2100 3900]") {
			t.Errorf("query lacks price band: %s", q.Query)
		}
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{entry("7", 1.0, "1")}}, nil
	}
	listings := &mockListings{listing: &record.ListingRecord{
		ID: 5, Title: "Wedding photography", Category: "photo", PricePerHour: 3000,
	}}
	e := New(store, listings, 0, zap.NewNop())

	hits := e.FindSimilar(context.Background(), 5, []int64{9}, 10)
	if len(hits) != 1 || hits[0].ID != 7 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestFindSimilarMissingListing(t *testing.T) {
	store := newMockIndexStore()
	e := New(store, &mockListings{}, 0, zap.NewNop())

	if hits := e.FindSimilar(context.Background(), 404, nil, 10); hits != nil {
		t.Errorf("hits = %v, want nil", hits)
	}
	if store.searches != 0 {
		t.Error("missing listing must not hit the index")
	}
}

func TestFacetedSearchSkipsFailingField(t *testing.T) {
	store := newMockIndexStore()
	store.facetsFn = func(_ context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
		if q.Field == "broken" {
			return nil, errors.New("no such field")
		}
		return []db.FacetBucket{{Value: "photo", Count: 3}}, nil
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	got := e.FacetedSearch(context.Background(),
		mustRequest(t, "", nil, sortby.Relevance, 1, 20, nil),
		[]string{"category", "broken"},
	)
	if len(got.Facets["category"]) != 1 || got.Facets["category"][0].Value != "photo" {
		t.Errorf("facets = %+v", got.Facets)
	}
	if _, ok := got.Facets["broken"]; ok {
		t.Error("failing facet field must be skipped")
	}
}

func TestGeoSearchPagesDistanceResults(t *testing.T) {
	store := newMockIndexStore()
	store.searchGeoFn = func(_ context.Context, q *db.GeoQuery) (*db.SearchResult, error) {
		if !strings.Contains(q.Query, "@location:[") {
			t.Errorf("query lacks radius clause: %s", q.Query)
		}
		entries := []db.SearchEntry{
			{Key: "msearch:doc:listing:1", DistanceKm: 0.5, Fields: map[string]string{}},
			{Key: "msearch:doc:listing:2", DistanceKm: 1.2, Fields: map[string]string{}},
			{Key: "msearch:doc:listing:3", DistanceKm: 4.0, Fields: map[string]string{}},
		}
		return &db.SearchResult{Total: 3, Entries: entries}, nil
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	got := e.GeoSearch(context.Background(), mustRequest(t, "", nil, sortby.Distance, 2, 2,
		&request.Location{Lat: 56.95, Lng: 24.11, RadiusKm: 10}))
	if got.TotalCount != 3 || len(got.Items) != 1 || got.Items[0].ID != 3 {
		t.Errorf("page = %+v, want second page holding hit 3", got)
	}
}

func TestGeoSearchWithoutCoordinatesEmpty(t *testing.T) {
	store := newMockIndexStore()
	store.searchGeoFn = func(context.Context, *db.GeoQuery) (*db.SearchResult, error) {
		t.Error("geo query issued without usable coordinates")
		return &db.SearchResult{}, nil
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	for name, loc := range map[string]*request.Location{
		"absent": nil,
		"zero":   {Lat: 0, Lng: 0, RadiusKm: 10},
	} {
		got := e.GeoSearch(context.Background(), mustRequest(t, "", nil, sortby.Distance, 2, 15, loc))
		if got.TotalCount != 0 || len(got.Items) != 0 || got.Page != 2 || got.PerPage != 15 {
			t.Errorf("%s coordinates: page = %+v, want empty 2/15", name, got)
		}
	}
	if store.searches != 0 {
		t.Error("plain search issued without usable coordinates")
	}
}

func TestIntelligentSearchDegradesOnExpanderFailure(t *testing.T) {
	store := newMockIndexStore()
	e := New(store, &mockListings{}, 0, zap.NewNop()).
		WithExpander(expanderFunc(func(context.Context, string) (string, error) {
			return "", errors.New("model unavailable")
		}))

	e.IntelligentSearch(context.Background(), mustRequest(t, "photo", nil, sortby.Relevance, 1, 20, nil))
	if store.lastQuery == nil || !strings.Contains(store.lastQuery.Query, "photo") {
		t.Errorf("query = %+v, want original term", store.lastQuery)
	}
}

func TestIntelligentSearchUsesExpansion(t *testing.T) {
	store := newMockIndexStore()
	e := New(store, &mockListings{}, 0, zap.NewNop()).
		WithExpander(expanderFunc(func(_ context.Context, q string) (string, error) {
			return q + " photographer", nil
		}))

	e.IntelligentSearch(context.Background(), mustRequest(t, "photo", nil, sortby.Relevance, 1, 20, nil))
	if !strings.Contains(store.lastQuery.Query, "photographer") {
		t.Errorf("query = %q, want expanded terms", store.lastQuery.Query)
	}
}

type expanderFunc func(ctx context.Context, query string) (string, error)

func (f expanderFunc) Expand(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

func TestHealthCheck(t *testing.T) {
	store := newMockIndexStore()
	store.countFn = func(_ context.Context, index, _ string) (int, error) {
		if index == ListingIndex {
			return 12, nil
		}
		return 3, nil
	}
	e := New(store, &mockListings{}, 0, zap.NewNop())

	st := e.HealthCheck(context.Background())
	if !st.Healthy || st.Backend != engine.BackendIndexService {
		t.Fatalf("status = %+v", st)
	}
	if st.Details["listings"] != "12" || st.Details["providers"] != "3" {
		t.Errorf("details = %+v", st.Details)
	}

	store.pingErr = errors.New("down")
	if st := e.HealthCheck(context.Background()); st.Healthy {
		t.Error("healthy while ping fails")
	}
}
