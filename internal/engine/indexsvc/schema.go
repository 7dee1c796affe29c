// Package indexsvc implements the search engine against the external
// index service. It is the primary backend: full-text relevance, geo
// queries and facet aggregations run server-side, results are served
// through a short-lived read-through cache.
package indexsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
)

// Index-service naming.
const (
	KeyPrefix     = "msearch:doc:"
	ListingIndex  = "msearch-listings"
	ProviderIndex = "msearch-providers"
)

// IndexName returns the index serving a record type.
func IndexName(rt record.Type) string {
	if rt == record.Provider {
		return ProviderIndex
	}
	return ListingIndex
}

// docPrefix returns the key prefix of one record type's documents.
func docPrefix(rt record.Type) string {
	return KeyPrefix + string(rt) + ":"
}

// ListingIndexDefinition declares the listing index schema. Text weights
// follow the field importance order: title over description, tags and
// service names over the rest. Tags and service names are indexed twice:
// as TAG for exact filter clauses and, under a text alias, as weighted
// TEXT so free-text terms match them.
func ListingIndexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     ListingIndex,
		Prefixes: []string{docPrefix(record.Listing)},
		Fields: []db.IndexField{
			{Name: "id", Type: db.IndexFieldTag},
			{Name: "title", Type: db.IndexFieldText, Weight: 3.0},
			{Name: "description", Type: db.IndexFieldText, Weight: 2.0},
			{Name: "owner_name", Type: db.IndexFieldText},
			{Name: "tags", Type: db.IndexFieldTag},
			{Name: "tags", Alias: "tags_text", Type: db.IndexFieldText, Weight: 2.0},
			{Name: "services", Type: db.IndexFieldTag},
			{Name: "services", Alias: "services_text", Type: db.IndexFieldText},
			{Name: "category", Type: db.IndexFieldTag},
			{Name: "city", Type: db.IndexFieldTag},
			{Name: "premium", Type: db.IndexFieldTag},
			{Name: "verified", Type: db.IndexFieldTag},
			{Name: "price_per_hour", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "rating", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "reviews", Type: db.IndexFieldNumeric},
			{Name: "views", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "created_ts", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "boost_score", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "location", Type: db.IndexFieldGeo},
		},
	}
}

// ProviderIndexDefinition declares the provider index schema.
func ProviderIndexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     ProviderIndex,
		Prefixes: []string{docPrefix(record.Provider)},
		Fields: []db.IndexField{
			{Name: "id", Type: db.IndexFieldTag},
			{Name: "name", Type: db.IndexFieldText, Weight: 3.0},
			{Name: "specialty", Type: db.IndexFieldText, Weight: 2.0},
			{Name: "bio", Type: db.IndexFieldText},
			{Name: "city", Type: db.IndexFieldTag},
			{Name: "city", Alias: "city_text", Type: db.IndexFieldText},
			{Name: "services", Type: db.IndexFieldTag},
			{Name: "premium", Type: db.IndexFieldTag},
			{Name: "verified", Type: db.IndexFieldTag},
			{Name: "rating", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "reviews", Type: db.IndexFieldNumeric},
			{Name: "experience_years", Type: db.IndexFieldNumeric},
			{Name: "orders_30d", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "created_ts", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "boost_score", Type: db.IndexFieldNumeric, Sortable: true},
			{Name: "location", Type: db.IndexFieldGeo},
		},
	}
}

// EnsureIndexes creates both indexes, tolerating ones that already exist.
func EnsureIndexes(ctx context.Context, mgr db.IndexManager) error {
	for _, def := range []*db.IndexDefinition{ListingIndexDefinition(), ProviderIndexDefinition()} {
		if err := mgr.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("creating index %s: %w", def.Name, err)
		}
	}
	return nil
}
