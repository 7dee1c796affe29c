// Package engine defines the search engine contract implemented by the
// relational and index-service backends.
package engine

import (
	"context"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
)

// Backend name tags reported by HealthCheck.
const (
	BackendRelational   = "relational"
	BackendIndexService = "index-service"
)

// Criteria is the structured input of AdvancedSearch. Term groups combine
// as: every All term matches, at least one Any term matches, no None term
// matches, and Exact matches as a phrase.
type Criteria struct {
	All   []string
	Any   []string
	None  []string
	Exact string
}

// IsZero reports whether no criteria were given.
func (c Criteria) IsZero() bool {
	return len(c.All) == 0 && len(c.Any) == 0 && len(c.None) == 0 && c.Exact == ""
}

// Status is the health report of one backend.
type Status struct {
	Backend string            `json:"backend"`
	Healthy bool              `json:"healthy"`
	Details map[string]string `json:"details,omitempty"`
}

// Engine is a search backend. Search-style operations never fail the
// caller: backend errors are logged inside the engine and surface as an
// empty, well-formed page.
type Engine interface {
	// Search runs the standard filtered, sorted, paginated query.
	Search(ctx context.Context, req request.Request) page.Page

	// QuickSearch returns autocomplete suggestions for a title prefix.
	// Prefixes shorter than two characters yield no suggestions.
	QuickSearch(ctx context.Context, rt record.Type, prefix string, limit int) []page.Suggestion

	// FindSimilar returns listings related to the given listing,
	// excluding the listing itself and the given ids.
	FindSimilar(ctx context.Context, listingID int64, exclude []int64, limit int) []page.Hit

	// AdvancedSearch applies structured term criteria on top of the
	// request's filters and pagination.
	AdvancedSearch(ctx context.Context, req request.Request, criteria Criteria) page.Page

	// FacetedSearch runs Search and additionally aggregates value counts
	// for the requested facet fields.
	FacetedSearch(ctx context.Context, req request.Request, facetFields []string) page.Page

	// GeoSearch returns hits within the request radius ordered by
	// distance ascending. Requests without usable coordinates fall back
	// to Search.
	GeoSearch(ctx context.Context, req request.Request) page.Page

	// HealthCheck reports backend availability and record counts.
	HealthCheck(ctx context.Context) Status
}

// MinQuickSearchLength is the shortest prefix QuickSearch will serve.
const MinQuickSearchLength = 2
