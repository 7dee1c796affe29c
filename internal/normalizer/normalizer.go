// Package normalizer validates and cleans raw filter input into a typed
// filter set, and layers saved user preferences underneath it.
package normalizer

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/catalog"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
)

// PreferenceStore loads and saves per-user per-record-type filter maps.
type PreferenceStore interface {
	Load(ctx context.Context, userID int64, rt record.Type) (map[string]any, error)
	Save(ctx context.Context, userID int64, rt record.Type, prefs map[string]any) error
}

// Normalizer cleans raw filter maps against the catalog. One bad value
// never invalidates the rest of the request: the offending filter is
// dropped and logged.
type Normalizer struct {
	catalog *catalog.Catalog
	prefs   PreferenceStore
	logger  *zap.Logger
}

// New creates a normalizer. prefs may be nil when personalization is off.
func New(cat *catalog.Catalog, prefs PreferenceStore, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{catalog: cat, prefs: prefs, logger: logger}
}

// Clean validates raw against the catalog for rt, dropping unknown keys
// and values that fail their definition's coercion.
func (n *Normalizer) Clean(ctx context.Context, rt record.Type, raw map[string]any) filters.Set {
	out := filters.Set{}
	for key, value := range raw {
		def, ok := n.catalog.Definition(rt, key)
		if !ok {
			continue
		}
		cleaned, ok := n.cleanValue(ctx, def, value)
		if !ok {
			n.logger.Debug("dropped filter value",
				zap.String("record_type", rt.String()),
				zap.String("key", key),
			)
			continue
		}
		out[key] = cleaned
	}
	return out
}

// WithPreferences merges the user's saved filters underneath explicit,
// already-cleaned filters. Preference values go through the same cleaning
// path; a missing or failing preference store is a no-op.
func (n *Normalizer) WithPreferences(
	ctx context.Context, userID int64, rt record.Type, explicit filters.Set,
) filters.Set {
	if n.prefs == nil || userID == 0 {
		return explicit
	}
	raw, err := n.prefs.Load(ctx, userID, rt)
	if err != nil {
		n.logger.Warn("load filter preferences",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return explicit
	}
	saved := n.Clean(ctx, rt, raw)
	return explicit.MergeUnder(saved)
}

// cleanValue coerces one raw value per its definition. The boolean false
// return means "drop this filter", never "force a default".
func (n *Normalizer) cleanValue(ctx context.Context, def catalog.Definition, value any) (filters.Value, bool) {
	if value == nil {
		return filters.Value{}, false
	}

	switch def.Type {
	case catalog.Number:
		num, ok := toFloat(value)
		if !ok {
			return filters.Value{}, false
		}
		if def.Min != nil && num < *def.Min {
			return filters.Value{}, false
		}
		if def.Max != nil && num > *def.Max {
			return filters.Value{}, false
		}
		return filters.Number(num), true

	case catalog.Select:
		text, ok := toText(value)
		if !ok || text == "" {
			return filters.Value{}, false
		}
		if opts := n.catalog.AllowedOptions(ctx, def); opts != nil && !contains(opts, text) {
			return filters.Value{}, false
		}
		return filters.Text(text), true

	case catalog.MultiSelect:
		list, ok := toList(value)
		if !ok || len(list) == 0 {
			return filters.Value{}, false
		}
		if opts := n.catalog.AllowedOptions(ctx, def); opts != nil {
			kept := list[:0]
			for _, item := range list {
				if contains(opts, item) {
					kept = append(kept, item)
				}
			}
			list = kept
		}
		if len(list) == 0 {
			return filters.Value{}, false
		}
		return filters.TextList(list), true

	case catalog.Checkbox:
		flag, ok := toBool(value)
		if !ok {
			// unparsable booleans stay unset, never forced to false
			return filters.Value{}, false
		}
		return filters.Bool(flag), true

	case catalog.FreeText:
		text, ok := toText(value)
		if !ok {
			return filters.Value{}, false
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return filters.Value{}, false
		}
		return filters.Text(text), true
	}

	return filters.Value{}, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return num, err == nil
	}
	return 0, false
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	}
	return "", false
}

// toList accepts a comma-separated string or a string slice; anything
// else is rejected. Empty elements are filtered out.
func toList(v any) ([]string, bool) {
	var items []string
	switch x := v.(type) {
	case string:
		items = strings.Split(x, ",")
	case []string:
		items = x
	case []any:
		for _, e := range x {
			text, ok := toText(e)
			if !ok {
				return nil, false
			}
			items = append(items, text)
		}
	default:
		return nil, false
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, true
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
		return false, false
	case int:
		if x == 0 || x == 1 {
			return x == 1, true
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, true
		}
	}
	return false, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
