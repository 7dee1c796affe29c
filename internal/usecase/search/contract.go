package search

import (
	"context"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
)

// Normalizer cleans raw filter input and layers saved preferences.
type Normalizer interface {
	Clean(ctx context.Context, rt record.Type, raw map[string]any) filters.Set
	WithPreferences(ctx context.Context, userID int64, rt record.Type, explicit filters.Set) filters.Set
}

// PreferenceWriter persists per-user filter preferences.
type PreferenceWriter interface {
	Save(ctx context.Context, userID int64, rt record.Type, prefs map[string]any) error
}

// Intelligent is implemented by backends that support query expansion.
type Intelligent interface {
	IntelligentSearch(ctx context.Context, req request.Request) page.Page
}
