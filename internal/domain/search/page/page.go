// Package page defines the paginated search result envelope.
package page

import "github.com/kailas-cloud/marketsearch/internal/domain/record"

// Hit is a single result item: the record type tag, its identifier, the
// flattened display fields and the blended ranking score. DistanceKm is
// set only by geo-sorted searches.
type Hit struct {
	Type       record.Type
	ID         int64
	Fields     map[string]string
	Score      float64
	DistanceKm float64
}

// FacetCount is one bucket of a facet aggregation.
type FacetCount struct {
	Value string
	Count int
}

// Page is the paginated search result envelope. TotalCount is independent
// of the requested page.
type Page struct {
	Items      []Hit
	TotalCount int
	Page       int
	PerPage    int
	Facets     map[string][]FacetCount
}

// Empty returns a well-formed zero-result page for the given pagination.
// Backends return this, never an error, when execution fails.
func Empty(pageNum, perPage int) Page {
	return Page{Items: []Hit{}, TotalCount: 0, Page: pageNum, PerPage: perPage}
}

// Suggestion is a quick-search (autocomplete) entry.
type Suggestion struct {
	Type  record.Type
	ID    int64
	Title string
	Score float64
}
