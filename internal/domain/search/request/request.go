// Package request defines the validated, immutable search request.
package request

import (
	"fmt"

	"github.com/kailas-cloud/marketsearch/internal/domain/geo"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
)

// Search parameter limits.
const (
	MaxQueryLength = 1024
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Location holds request coordinates and a search radius in kilometers.
type Location struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// IsUsable reports whether the location carries real coordinates.
// A zero/zero pair is treated as absent, matching the legacy contract.
func (l *Location) IsUsable() bool {
	if l == nil {
		return false
	}
	if l.Lat == 0 && l.Lng == 0 {
		return false
	}
	return geo.ValidCoordinates(l.Lat, l.Lng)
}

// Radius returns the effective radius, applying the default when unset.
func (l *Location) Radius() float64 {
	if l == nil || l.RadiusKm <= 0 {
		return geo.DefaultRadiusKm
	}
	return l.RadiusKm
}

// Request is a validated search request. Immutable per call.
type Request struct {
	query      string
	recordType record.Type
	filterSet  filters.Set
	sort       sortby.SortBy
	page       int
	perPage    int
	location   *Location
}

// New validates and normalizes search parameters.
// Defaults: type=listing, sort=relevance, page=1, perPage=20.
// perPage is clamped to [1,100].
func New(
	query string,
	rt record.Type,
	fs filters.Set,
	sort sortby.SortBy,
	page, perPage int,
	loc *Location,
) (Request, error) {
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if rt == "" {
		rt = record.Listing
	}
	if !rt.IsValid() {
		return Request{}, fmt.Errorf("invalid record type: %q", rt)
	}
	if sort == "" {
		sort = sortby.Relevance
	}
	if !sort.IsValid() {
		return Request{}, fmt.Errorf("invalid sort: %q", sort)
	}
	if page < 1 {
		page = DefaultPage
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if fs == nil {
		fs = filters.Set{}
	}
	if loc != nil && loc.RadiusKm < 0 {
		return Request{}, fmt.Errorf("negative search radius: %g", loc.RadiusKm)
	}

	return Request{
		query:      query,
		recordType: rt,
		filterSet:  fs,
		sort:       sort,
		page:       page,
		perPage:    perPage,
		location:   loc,
	}, nil
}

// Query returns the free-text query.
func (r Request) Query() string { return r.query }

// RecordType returns the explicit record type tag.
func (r *Request) RecordType() record.Type { return r.recordType }

// Filters returns the cleaned filter set.
func (r *Request) Filters() filters.Set { return r.filterSet }

// Sort returns the requested ordering.
func (r *Request) Sort() sortby.SortBy { return r.sort }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// PerPage returns the page size.
func (r *Request) PerPage() int { return r.perPage }

// Offset returns the row offset for the current page.
func (r *Request) Offset() int { return (r.page - 1) * r.perPage }

// Location returns the optional geo constraint (nil when absent).
func (r *Request) Location() *Location { return r.location }

// WithFilters returns a copy carrying fs instead of the original filter set.
// Used by the normalizer to layer saved preferences.
func (r Request) WithFilters(fs filters.Set) Request {
	r.filterSet = fs
	return r
}

// WithQuery returns a copy with a replacement query text. Used by the
// intelligent search path after query expansion; oversized or empty
// expansions are ignored.
func (r Request) WithQuery(q string) Request {
	if len(q) == 0 || len(q) > MaxQueryLength {
		return r
	}
	r.query = q
	return r
}
