// Package search is the caller-facing entry point: it normalizes raw
// input into a validated request and dispatches to the active backend,
// degrading from the index service to the relational engine when the
// index service is unhealthy. Nothing here ever fails the caller.
package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

// healthProbeInterval bounds how often the primary backend is probed.
const healthProbeInterval = 30 * time.Second

// Params is the raw, untrusted search input as a caller provides it.
type Params struct {
	Query   string
	Type    record.Type
	Filters map[string]any
	Sort    string
	Page    int
	PerPage int

	Location *request.Location
	UserID   int64 // 0 = anonymous, no personalization
}

// Service dispatches searches to the active backend.
type Service struct {
	norm        Normalizer
	prefs       PreferenceWriter
	primary     engine.Engine
	fallback    engine.Engine
	intelligent Intelligent // nil when expansion is unavailable
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// New creates the search service. prefs and intelligent may be nil.
func New(norm Normalizer, prefs PreferenceWriter, primary, fallback engine.Engine, intelligent Intelligent, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		norm:        norm,
		prefs:       prefs,
		primary:     primary,
		fallback:    fallback,
		intelligent: intelligent,
		logger:      logger,
		now:         time.Now,
	}
}

// Search runs the standard filtered, sorted, paginated query.
func (s *Service) Search(ctx context.Context, p Params) page.Page {
	req, ok := s.buildRequest(ctx, p)
	if !ok {
		return emptyFor(p)
	}
	return s.active(ctx).Search(ctx, req)
}

// IntelligentSearch expands the query before searching when the primary
// backend is healthy and expansion is wired; otherwise it behaves like
// Search.
func (s *Service) IntelligentSearch(ctx context.Context, p Params) page.Page {
	req, ok := s.buildRequest(ctx, p)
	if !ok {
		return emptyFor(p)
	}
	if s.intelligent != nil && s.primaryHealthy(ctx) {
		return s.intelligent.IntelligentSearch(ctx, req)
	}
	return s.active(ctx).Search(ctx, req)
}

// QuickSearch serves autocomplete suggestions.
func (s *Service) QuickSearch(ctx context.Context, rt record.Type, prefix string, limit int) []page.Suggestion {
	if !rt.IsValid() {
		rt = record.Listing
	}
	return s.active(ctx).QuickSearch(ctx, rt, prefix, limit)
}

// FindSimilar returns listings related to the given one.
func (s *Service) FindSimilar(ctx context.Context, listingID int64, exclude []int64, limit int) []page.Hit {
	return s.active(ctx).FindSimilar(ctx, listingID, exclude, limit)
}

// AdvancedSearch applies structured term criteria on top of the params.
func (s *Service) AdvancedSearch(ctx context.Context, p Params, criteria engine.Criteria) page.Page {
	req, ok := s.buildRequest(ctx, p)
	if !ok {
		return emptyFor(p)
	}
	return s.active(ctx).AdvancedSearch(ctx, req, criteria)
}

// FacetedSearch runs Search plus facet aggregation.
func (s *Service) FacetedSearch(ctx context.Context, p Params, facetFields []string) page.Page {
	req, ok := s.buildRequest(ctx, p)
	if !ok {
		return emptyFor(p)
	}
	return s.active(ctx).FacetedSearch(ctx, req, facetFields)
}

// GeoSearch returns hits within the params' radius, nearest first.
func (s *Service) GeoSearch(ctx context.Context, p Params) page.Page {
	req, ok := s.buildRequest(ctx, p)
	if !ok {
		return emptyFor(p)
	}
	return s.active(ctx).GeoSearch(ctx, req)
}

// SavePreferences cleans and persists a user's filter preferences. Only
// recognized, valid filters are stored.
func (s *Service) SavePreferences(ctx context.Context, userID int64, rt record.Type, raw map[string]any) error {
	if s.prefs == nil || userID == 0 {
		return nil
	}
	if !rt.IsValid() {
		rt = record.Listing
	}
	cleaned := s.norm.Clean(ctx, rt, raw)
	return s.prefs.Save(ctx, userID, rt, rawValues(cleaned))
}

// HealthCheck reports the status of both backends.
func (s *Service) HealthCheck(ctx context.Context) []engine.Status {
	return []engine.Status{
		s.primary.HealthCheck(ctx),
		s.fallback.HealthCheck(ctx),
	}
}

// --- internals ---

// buildRequest cleans params into a validated request. Invalid params are
// logged and reported as not-ok; callers answer with an empty page.
func (s *Service) buildRequest(ctx context.Context, p Params) (request.Request, bool) {
	rt := p.Type
	if rt == "" {
		rt = record.Listing
	}

	cleaned := s.norm.Clean(ctx, rt, p.Filters)
	merged := s.norm.WithPreferences(ctx, p.UserID, rt, cleaned)

	req, err := request.New(p.Query, rt, merged, sortby.Parse(p.Sort), p.Page, p.PerPage, p.Location)
	if err != nil {
		s.logger.Warn("rejected search params",
			zap.String("record_type", rt.String()),
			zap.Error(err),
		)
		return request.Request{}, false
	}
	return req, true
}

// active picks the backend for this call: the primary while it reports
// healthy, the relational fallback otherwise.
func (s *Service) active(ctx context.Context) engine.Engine {
	if s.primaryHealthy(ctx) {
		return s.primary
	}
	return s.fallback
}

// primaryHealthy caches the primary health probe for healthProbeInterval.
func (s *Service) primaryHealthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < healthProbeInterval {
		return s.healthy
	}

	st := s.primary.HealthCheck(ctx)
	wasHealthy := s.healthy
	s.healthy = st.Healthy
	s.checkedAt = now

	if wasHealthy && !st.Healthy {
		s.logger.Warn("primary search backend unhealthy, degrading to fallback",
			zap.String("backend", st.Backend))
	}
	return s.healthy
}

func emptyFor(p Params) page.Page {
	pageNum := p.Page
	if pageNum < 1 {
		pageNum = request.DefaultPage
	}
	perPage := p.PerPage
	if perPage <= 0 {
		perPage = request.DefaultPerPage
	}
	return page.Empty(pageNum, perPage)
}

// rawValues converts a cleaned filter set back to the plain map shape the
// preference store persists.
func rawValues(fs filters.Set) map[string]any {
	out := make(map[string]any, len(fs))
	for key, v := range fs {
		switch v.Kind() {
		case filters.KindNumber:
			out[key] = v.Num()
		case filters.KindText:
			out[key] = v.Text()
		case filters.KindTextList:
			out[key] = v.List()
		case filters.KindBool:
			out[key] = v.Flag()
		}
	}
	return out
}
