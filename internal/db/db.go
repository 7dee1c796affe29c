// Package db defines the storage contracts consumed by the search engines
// and the indexer. Implementations live in db/sqlite (primary relational
// store) and db/redis (external index service).
package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
)

// Pinger checks backing-store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// --- Index service ---

// IndexFieldType enumerates index-service field types.
type IndexFieldType string

const (
	IndexFieldText    IndexFieldType = "TEXT"
	IndexFieldTag     IndexFieldType = "TAG"
	IndexFieldNumeric IndexFieldType = "NUMERIC"
	IndexFieldGeo     IndexFieldType = "GEO"
)

// IndexField describes one schema field of an index. A non-empty Alias
// indexes the stored field under that attribute name, which lets one
// document field be indexed twice (e.g. exact TAG plus full-text TEXT).
type IndexField struct {
	Name     string
	Alias    string
	Type     IndexFieldType
	Weight   float64 // TEXT relevance weight, 0 = default
	Sortable bool
	NoStem   bool
}

// IndexDefinition declares an index: name, key prefix and typed fields.
// Analyzer behavior (stemming, stopwords, synonyms) is owned by the index
// service configuration, not by this module.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// DocItem is one document upsert: key plus flattened fields.
type DocItem struct {
	Key    string
	Fields map[string]string
}

// SearchQuery is a structured query against one index.
type SearchQuery struct {
	Index        string
	Query        string // index-service query expression
	SortField    string // "" = order by text score
	SortAsc      bool
	Offset       int
	Limit        int
	WithScores   bool
	ReturnFields []string
}

// GeoQuery requests hits sorted ascending by distance from a point.
type GeoQuery struct {
	Index        string
	Query        string
	GeoField     string
	Lat          float64
	Lng          float64
	Limit        int
	ReturnFields []string
}

// FacetQuery requests bucketed counts for one categorical field.
type FacetQuery struct {
	Index string
	Query string
	Field string
	Size  int
}

// SearchEntry is a single document hit.
type SearchEntry struct {
	Key        string
	Score      float64
	DistanceKm float64
	Fields     map[string]string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// FacetBucket is one value/count pair of a facet aggregation.
type FacetBucket struct {
	Value string
	Count int
}

// IndexManager owns index lifecycle on the index service.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// DocWriter upserts and deletes index documents.
type DocWriter interface {
	UpsertDoc(ctx context.Context, item DocItem) error
	UpsertDocs(ctx context.Context, items []DocItem) []error
	PatchDoc(ctx context.Context, key string, fields map[string]string) error
	DeleteDoc(ctx context.Context, key string) error
}

// Searcher executes structured queries against the index service.
type Searcher interface {
	Search(ctx context.Context, q *SearchQuery) (*SearchResult, error)
	SearchGeo(ctx context.Context, q *GeoQuery) (*SearchResult, error)
	Facets(ctx context.Context, q *FacetQuery) ([]FacetBucket, error)
	Count(ctx context.Context, index, query string) (int, error)
}

// KVStore provides TTL'd key-value storage for the result cache, saved
// filter preferences and the index sync cursor.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IndexStore is the full index-service facade.
type IndexStore interface {
	Pinger
	IndexManager
	DocWriter
	Searcher
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// --- Relational store ---

// RelationalQuery is a typed predicate query over one record table.
type RelationalQuery struct {
	Text    string
	Filters filters.Set
	Sort    sortby.SortBy
	Offset  int
	Limit   int
}

// ListingReader reads listing records from the primary store.
type ListingReader interface {
	GetListing(ctx context.Context, id int64) (*record.ListingRecord, error)
	SearchListings(ctx context.Context, q *RelationalQuery) ([]record.ListingRecord, int, error)
	QuickListings(ctx context.Context, prefix string, limit int) ([]record.ListingRecord, error)
	SimilarListings(ctx context.Context, ref *record.ListingRecord, exclude []int64, limit int) ([]record.ListingRecord, error)
}

// ProviderReader reads provider records from the primary store.
type ProviderReader interface {
	GetProvider(ctx context.Context, id int64) (*record.ProviderRecord, error)
	SearchProviders(ctx context.Context, q *RelationalQuery) ([]record.ProviderRecord, int, error)
	QuickProviders(ctx context.Context, prefix string, limit int) ([]record.ProviderRecord, error)
}

// ChangeFeed serves the indexer: eligible pages for full rebuilds and
// changed-row windows for incremental sync. ChangedSince returns rows
// regardless of eligibility so deletions can be propagated.
type ChangeFeed interface {
	EligibleListings(ctx context.Context, offset, limit int) ([]record.ListingRecord, error)
	EligibleProviders(ctx context.Context, offset, limit int) ([]record.ProviderRecord, error)
	ListingsChangedSince(ctx context.Context, since time.Time) ([]record.ListingRecord, error)
	ProvidersChangedSince(ctx context.Context, since time.Time) ([]record.ProviderRecord, error)
}

// FacetReader aggregates value counts over a filtered record set.
type FacetReader interface {
	ListingFacets(ctx context.Context, q *RelationalQuery, field string, size int) ([]FacetBucket, error)
	ProviderFacets(ctx context.Context, q *RelationalQuery, field string, size int) ([]FacetBucket, error)
}

// RelationalWriter persists records into the primary store.
type RelationalWriter interface {
	SaveListing(ctx context.Context, l *record.ListingRecord) error
	SaveProvider(ctx context.Context, p *record.ProviderRecord) error
}

// RelationalStore is the full primary-store facade.
type RelationalStore interface {
	Pinger
	ListingReader
	ProviderReader
	ChangeFeed
	FacetReader
	RelationalWriter
	Counts(ctx context.Context) (listings, providers int, err error)
	Close() error
}
