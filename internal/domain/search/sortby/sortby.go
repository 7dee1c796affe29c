// Package sortby defines the closed set of result orderings.
package sortby

// SortBy selects the result ordering for a search.
type SortBy string

const (
	Relevance SortBy = "relevance"
	Rating    SortBy = "rating"
	PriceAsc  SortBy = "price_asc"
	PriceDesc SortBy = "price_desc"
	Newest    SortBy = "newest"
	Popular   SortBy = "popular"
	Distance  SortBy = "distance"
)

// All lists every valid ordering.
func All() []SortBy {
	return []SortBy{Relevance, Rating, PriceAsc, PriceDesc, Newest, Popular, Distance}
}

// IsValid reports whether s is a known ordering.
func (s SortBy) IsValid() bool {
	switch s {
	case Relevance, Rating, PriceAsc, PriceDesc, Newest, Popular, Distance:
		return true
	}
	return false
}

// Parse maps a raw string to a SortBy, falling back to Relevance.
func Parse(raw string) SortBy {
	s := SortBy(raw)
	if s.IsValid() {
		return s
	}
	return Relevance
}

// String returns the wire value.
func (s SortBy) String() string { return string(s) }
