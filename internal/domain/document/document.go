// Package document defines the flattened index document and the pure
// ranking-signal functions computed at indexing time.
package document

import (
	"strconv"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
)

// Signals are the four computed ranking signals. They are always
// recomputed together on every (re)index, never patched individually.
type Signals struct {
	BoostScore          float64 // >= 1.0
	QualityScore        float64 // [0,1]
	ActivityScore       float64 // [0,1]
	ProfileCompleteness float64 // [0,1]
}

// Document is the flattened per-record projection pushed to the index
// service. Fields holds the textual storage form of every indexed field;
// Location is carried separately for the geo field.
type Document struct {
	ID       int64
	Type     record.Type
	Fields   map[string]string
	Location *record.Point
	Signals  Signals
}

// Key returns the index-service document key.
func (d *Document) Key(prefix string) string {
	return prefix + string(d.Type) + ":" + strconv.FormatInt(d.ID, 10)
}
