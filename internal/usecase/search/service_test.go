package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/catalog"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/engine"
	"github.com/kailas-cloud/marketsearch/internal/normalizer"
)

// stubEngine records calls and answers with canned pages.
type stubEngine struct {
	name         string
	healthy      bool
	healthChecks int
	searches     int
	lastReq      request.Request
}

func (s *stubEngine) Search(_ context.Context, req request.Request) page.Page {
	s.searches++
	s.lastReq = req
	return page.Page{Items: []page.Hit{{ID: 1}}, TotalCount: 1, Page: req.Page(), PerPage: req.PerPage()}
}

func (s *stubEngine) QuickSearch(context.Context, record.Type, string, int) []page.Suggestion {
	return []page.Suggestion{{ID: 1, Title: s.name}}
}

func (s *stubEngine) FindSimilar(context.Context, int64, []int64, int) []page.Hit {
	return []page.Hit{{ID: 2}}
}

func (s *stubEngine) AdvancedSearch(_ context.Context, req request.Request, _ engine.Criteria) page.Page {
	return s.Search(nil, req)
}

func (s *stubEngine) FacetedSearch(_ context.Context, req request.Request, _ []string) page.Page {
	return s.Search(nil, req)
}

func (s *stubEngine) GeoSearch(_ context.Context, req request.Request) page.Page {
	return s.Search(nil, req)
}

func (s *stubEngine) HealthCheck(context.Context) engine.Status {
	s.healthChecks++
	return engine.Status{Backend: s.name, Healthy: s.healthy}
}

type intelligentStub struct {
	stubEngine
	intelligent int
}

func (s *intelligentStub) IntelligentSearch(_ context.Context, req request.Request) page.Page {
	s.intelligent++
	return s.Search(nil, req)
}

type recordingPrefs struct {
	userID int64
	rt     record.Type
	saved  map[string]any
}

func (r *recordingPrefs) Save(_ context.Context, userID int64, rt record.Type, prefs map[string]any) error {
	r.userID, r.rt, r.saved = userID, rt, prefs
	return nil
}

type noOptions struct{}

func (noOptions) Options(context.Context, string) ([]string, error) { return nil, nil }

func newTestService(primary, fallback engine.Engine, intelligent Intelligent, prefs PreferenceWriter) *Service {
	cat := catalog.New(noOptions{}, time.Minute, nil)
	norm := normalizer.New(cat, nil, nil)
	return New(norm, prefs, primary, fallback, intelligent, nil)
}

func TestSearchUsesPrimaryWhileHealthy(t *testing.T) {
	primary := &stubEngine{name: "index-service", healthy: true}
	fallback := &stubEngine{name: "relational", healthy: true}
	svc := newTestService(primary, fallback, nil, nil)

	p := svc.Search(context.Background(), Params{
		Query:   "wedding",
		Filters: map[string]any{"category": "photo", "bogus": 1},
	})
	if primary.searches != 1 || fallback.searches != 0 {
		t.Fatalf("searches primary=%d fallback=%d", primary.searches, fallback.searches)
	}
	if p.TotalCount != 1 {
		t.Errorf("page = %+v", p)
	}
	if primary.lastReq.Filters()["category"].Text() != "photo" {
		t.Error("cleaned filter not forwarded")
	}
	if _, ok := primary.lastReq.Filters()["bogus"]; ok {
		t.Error("unknown filter leaked through normalization")
	}
}

func TestSearchDegradesToFallback(t *testing.T) {
	primary := &stubEngine{name: "index-service", healthy: false}
	fallback := &stubEngine{name: "relational", healthy: true}
	svc := newTestService(primary, fallback, nil, nil)

	svc.Search(context.Background(), Params{Query: "x"})
	if fallback.searches != 1 || primary.searches != 0 {
		t.Errorf("searches primary=%d fallback=%d, want fallback only",
			primary.searches, fallback.searches)
	}
}

func TestHealthProbeIsCached(t *testing.T) {
	primary := &stubEngine{name: "index-service", healthy: true}
	svc := newTestService(primary, &stubEngine{name: "relational"}, nil, nil)

	for i := 0; i < 5; i++ {
		svc.Search(context.Background(), Params{Query: "x"})
	}
	if primary.healthChecks != 1 {
		t.Errorf("health checks = %d, want 1 within the probe interval", primary.healthChecks)
	}

	// After the interval the probe runs again and observes the flip.
	primary.healthy = false
	svc.now = func() time.Time { return time.Now().Add(healthProbeInterval + time.Second) }
	svc.Search(context.Background(), Params{Query: "x"})
	if primary.healthChecks != 2 {
		t.Errorf("health checks = %d, want re-probe after interval", primary.healthChecks)
	}
	if primary.searches != 5 {
		t.Errorf("primary searches = %d, degraded call should not hit primary", primary.searches)
	}
}

func TestInvalidParamsYieldEmptyPage(t *testing.T) {
	primary := &stubEngine{name: "index-service", healthy: true}
	svc := newTestService(primary, &stubEngine{name: "relational"}, nil, nil)

	p := svc.Search(context.Background(), Params{
		Query:   strings.Repeat("x", request.MaxQueryLength+1),
		Page:    3,
		PerPage: 15,
	})
	if primary.searches != 0 {
		t.Error("invalid params reached a backend")
	}
	if p.TotalCount != 0 || p.Page != 3 || p.PerPage != 15 || p.Items == nil {
		t.Errorf("page = %+v, want empty envelope echoing pagination", p)
	}
}

func TestIntelligentSearchRouting(t *testing.T) {
	smart := &intelligentStub{stubEngine: stubEngine{name: "index-service", healthy: true}}
	fallback := &stubEngine{name: "relational", healthy: true}
	svc := newTestService(smart, fallback, smart, nil)

	svc.IntelligentSearch(context.Background(), Params{Query: "photo"})
	if smart.intelligent != 1 {
		t.Errorf("intelligent calls = %d, want 1", smart.intelligent)
	}

	// Unhealthy primary: plain search on the fallback, no expansion.
	smart.healthy = false
	svc.now = func() time.Time { return time.Now().Add(healthProbeInterval + time.Second) }
	svc.IntelligentSearch(context.Background(), Params{Query: "photo"})
	if smart.intelligent != 1 {
		t.Error("expansion attempted while degraded")
	}
	if fallback.searches != 1 {
		t.Errorf("fallback searches = %d, want 1", fallback.searches)
	}
}

func TestSavePreferences(t *testing.T) {
	prefs := &recordingPrefs{}
	svc := newTestService(&stubEngine{healthy: true}, &stubEngine{}, nil, prefs)

	err := svc.SavePreferences(context.Background(), 7, record.Listing, map[string]any{
		"category": "photo",
		"bogus":    "x",
	})
	if err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if prefs.userID != 7 || prefs.rt != record.Listing {
		t.Errorf("saved for %d/%s", prefs.userID, prefs.rt)
	}
	if len(prefs.saved) != 1 || prefs.saved["category"] != "photo" {
		t.Errorf("saved = %v, want cleaned map", prefs.saved)
	}

	// Anonymous saves are a no-op.
	prefs.saved = nil
	if err := svc.SavePreferences(context.Background(), 0, record.Listing, map[string]any{"category": "photo"}); err != nil {
		t.Fatalf("anonymous save: %v", err)
	}
	if prefs.saved != nil {
		t.Error("anonymous preferences were persisted")
	}
}
