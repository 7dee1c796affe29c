// Package catalog declares the recognized filter keys per record type and
// serves their allowed options through an explicit TTL cache.
package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
)

// ValueType fixes how a filter value is validated and coerced.
type ValueType string

const (
	Number      ValueType = "number"
	Select      ValueType = "select"
	MultiSelect ValueType = "multiselect"
	Checkbox    ValueType = "checkbox"
	FreeText    ValueType = "text"
)

// Option source keys served by an OptionProvider.
const (
	OptionsCategories = "categories"
	OptionsCities     = "cities"
	OptionsServices   = "services"
)

// Definition describes one recognized filter key.
type Definition struct {
	Key        string
	Label      string
	Type       ValueType
	Min        *float64 // numeric lower bound, nil = unbounded
	Max        *float64 // numeric upper bound, nil = unbounded
	OptionsKey string   // option source for Select/MultiSelect, "" = any value
	Removable  bool
}

// OptionProvider supplies allowed option values for select-style filters.
// Implementations live outside this core (static lists, reference tables).
type OptionProvider interface {
	Options(ctx context.Context, key string) ([]string, error)
}

const (
	defaultOptionTTL = time.Hour
	optionCacheSlots = 16
)

// Catalog resolves filter definitions per record type and caches allowed
// options with an explicit TTL.
type Catalog struct {
	provider OptionProvider
	cache    *expirable.LRU[string, []string]
	logger   *zap.Logger
}

// New creates a catalog. ttl <= 0 falls back to one hour.
func New(provider OptionProvider, ttl time.Duration, logger *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = defaultOptionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		provider: provider,
		cache:    expirable.NewLRU[string, []string](optionCacheSlots, nil, ttl),
		logger:   logger,
	}
}

// Definitions returns the recognized filters for a record type.
func (c *Catalog) Definitions(rt record.Type) []Definition {
	switch rt {
	case record.Listing:
		return listingDefinitions
	case record.Provider:
		return providerDefinitions
	}
	return nil
}

// Definition looks up a single filter key for a record type.
func (c *Catalog) Definition(rt record.Type, key string) (Definition, bool) {
	for _, def := range c.Definitions(rt) {
		if def.Key == key {
			return def, true
		}
	}
	return Definition{}, false
}

// AllowedOptions returns the option values for a select-style definition,
// read through the TTL cache. Option-provider failures are logged and
// yield nil, which callers treat as "accept any value" (fail-open).
func (c *Catalog) AllowedOptions(ctx context.Context, def Definition) []string {
	if def.OptionsKey == "" || c.provider == nil {
		return nil
	}
	if opts, ok := c.cache.Get(def.OptionsKey); ok {
		return opts
	}

	opts, err := c.provider.Options(ctx, def.OptionsKey)
	if err != nil {
		c.logger.Warn("filter options unavailable",
			zap.String("options_key", def.OptionsKey),
			zap.Error(err),
		)
		return nil
	}
	c.cache.Add(def.OptionsKey, opts)
	return opts
}

func f(v float64) *float64 { return &v }

var listingDefinitions = []Definition{
	{Key: "category", Label: "Category", Type: Select, OptionsKey: OptionsCategories, Removable: true},
	{Key: "price_min", Label: "Price from", Type: Number, Min: f(0), Removable: true},
	{Key: "price_max", Label: "Price to", Type: Number, Min: f(0), Removable: true},
	{Key: "city", Label: "City", Type: Select, OptionsKey: OptionsCities, Removable: true},
	{Key: "rating_min", Label: "Rating from", Type: Number, Min: f(1), Max: f(5), Removable: true},
	{Key: "services", Label: "Services", Type: MultiSelect, OptionsKey: OptionsServices, Removable: true},
	{Key: "is_premium", Label: "Premium only", Type: Checkbox, Removable: true},
}

var providerDefinitions = []Definition{
	{Key: "rating_min", Label: "Rating from", Type: Number, Min: f(1), Max: f(5), Removable: true},
	{Key: "experience_min", Label: "Experience from (years)", Type: Number, Min: f(0), Removable: true},
	{Key: "city", Label: "City", Type: Select, OptionsKey: OptionsCities, Removable: true},
	{Key: "specialization", Label: "Specialization", Type: FreeText, Removable: true},
	{Key: "verified", Label: "Verified only", Type: Checkbox, Removable: true},
}
