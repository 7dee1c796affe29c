// Package postprocess assembles raw index-service hits into the result
// envelope and blends ranking boosts into text relevance scores.
package postprocess

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/page"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
)

// BuildPage turns a raw search result into the paginated envelope.
// Entries whose keys cannot be attributed to a record are dropped.
func BuildPage(res *db.SearchResult, keyPrefix string, req request.Request) page.Page {
	return page.Page{
		Items:      BuildHits(res.Entries, keyPrefix),
		TotalCount: res.Total,
		Page:       req.Page(),
		PerPage:    req.PerPage(),
	}
}

// BuildHits maps index entries to result hits.
func BuildHits(entries []db.SearchEntry, keyPrefix string) []page.Hit {
	hits := make([]page.Hit, 0, len(entries))
	for _, e := range entries {
		rt, id, ok := ParseKey(e.Key, keyPrefix)
		if !ok {
			continue
		}
		hits = append(hits, page.Hit{
			Type:       rt,
			ID:         id,
			Fields:     e.Fields,
			Score:      e.Score,
			DistanceKm: e.DistanceKm,
		})
	}
	return hits
}

// ParseKey splits an index-service document key of the form
// "<prefix><type>:<id>" into its record identity.
func ParseKey(key, prefix string) (record.Type, int64, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", 0, false
	}
	typePart, idPart, ok := strings.Cut(rest, ":")
	if !ok {
		return "", 0, false
	}
	rt := record.Type(typePart)
	if !rt.IsValid() {
		return "", 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rt, id, true
}

// BlendBoosts multiplies text relevance by each hit's indexed boost and
// re-sorts the current page. It applies only to relevance ordering; an
// explicit sort is left untouched.
func BlendBoosts(p *page.Page, order sortby.SortBy) {
	if order != sortby.Relevance {
		return
	}
	for i := range p.Items {
		p.Items[i].Score *= boostOf(&p.Items[i])
	}
	sort.SliceStable(p.Items, func(i, j int) bool {
		return p.Items[i].Score > p.Items[j].Score
	})
}

// boostOf reads the indexed boost signal, defaulting to the neutral 1.0.
func boostOf(h *page.Hit) float64 {
	raw, ok := h.Fields["boost_score"]
	if !ok {
		return 1.0
	}
	boost, err := strconv.ParseFloat(raw, 64)
	if err != nil || boost < 1.0 {
		return 1.0
	}
	return boost
}
