package indexsvc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/marketsearch/internal/db/redis"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

// translate renders a validated request as an index-service query
// expression: escaped text terms plus typed filter clauses. An empty
// request translates to the match-all query.
func translate(req request.Request) string {
	var parts []string

	if text := textClause(req.Query()); text != "" {
		parts = append(parts, text)
	}
	parts = append(parts, filterClauses(req.RecordType(), req.Filters())...)

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// translateCriteria renders structured advanced-search criteria on top of
// the request's filters.
func translateCriteria(req request.Request, c engine.Criteria) string {
	var parts []string

	for _, term := range c.All {
		if t := textClause(term); t != "" {
			parts = append(parts, t)
		}
	}
	if len(c.Any) > 0 {
		var alts []string
		for _, term := range c.Any {
			if t := textClause(term); t != "" {
				alts = append(alts, t)
			}
		}
		if len(alts) > 0 {
			parts = append(parts, "("+strings.Join(alts, " | ")+")")
		}
	}
	for _, term := range c.None {
		if t := textClause(term); t != "" {
			parts = append(parts, "-"+t)
		}
	}
	if c.Exact != "" {
		parts = append(parts, `"`+redis.EscapeTerm(c.Exact)+`"`)
	}

	parts = append(parts, filterClauses(req.RecordType(), req.Filters())...)

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// similarQuery matches listings related to ref: same category, a ±30%
// price band or fuzzy title-term matches, minus ref itself and the
// explicit exclusions.
func similarQuery(ref *record.ListingRecord, exclude []int64) string {
	var alts []string

	if ref.Category != "" {
		alts = append(alts, "@category:{"+redis.EscapeTag(ref.Category)+"}")
	}
	if ref.PricePerHour > 0 {
		lo := int(float64(ref.PricePerHour) * 0.7)
		hi := int(float64(ref.PricePerHour) * 1.3)
		alts = append(alts, fmt.Sprintf("@price_per_hour:[%d %d]", lo, hi))
	}
	for _, term := range titleTerms(ref.Title, 3) {
		alts = append(alts, "%"+redis.EscapeTerm(term)+"%")
	}

	query := "*"
	if len(alts) > 0 {
		query = "(" + strings.Join(alts, " | ") + ")"
	}

	ids := make([]string, 0, len(exclude)+1)
	ids = append(ids, strconv.FormatInt(ref.ID, 10))
	for _, id := range exclude {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return query + " -@id:{" + strings.Join(ids, "|") + "}"
}

// sortField maps a sort order to an index-service sortable field.
// The empty field means "order by text relevance score".
func sortField(rt record.Type, s sortby.SortBy) (field string, asc bool) {
	switch s {
	case sortby.Rating:
		return "rating", false
	case sortby.PriceAsc:
		if rt == record.Provider {
			return "rating", false
		}
		return "price_per_hour", true
	case sortby.PriceDesc:
		if rt == record.Provider {
			return "rating", false
		}
		return "price_per_hour", false
	case sortby.Newest:
		return "created_ts", false
	case sortby.Popular:
		if rt == record.Provider {
			return "orders_30d", false
		}
		return "views", false
	default:
		return "", false
	}
}

func textClause(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	terms := strings.Fields(text)
	escaped := make([]string, 0, len(terms))
	for _, t := range terms {
		if e := redis.EscapeTerm(t); e != "" {
			escaped = append(escaped, e)
		}
	}
	if len(escaped) == 0 {
		return ""
	}
	return "(" + strings.Join(escaped, " ") + ")"
}

func filterClauses(rt record.Type, fs filters.Set) []string {
	if len(fs) == 0 {
		return nil
	}

	var parts []string
	if rt == record.Provider {
		parts = providerClauses(fs)
	} else {
		parts = listingClauses(fs)
	}
	return parts
}

func listingClauses(fs filters.Set) []string {
	var parts []string

	if v, ok := fs["category"]; ok {
		parts = append(parts, "@category:{"+redis.EscapeTag(v.Text())+"}")
	}
	if v, ok := fs["city"]; ok {
		parts = append(parts, "@city:{"+redis.EscapeTag(v.Text())+"}")
	}
	if clause := numericRange("price_per_hour", fs, "price_min", "price_max"); clause != "" {
		parts = append(parts, clause)
	}
	if v, ok := fs["rating_min"]; ok {
		parts = append(parts, fmt.Sprintf("@rating:[%g +inf]", v.Num()))
	}
	if v, ok := fs["is_premium"]; ok && v.Flag() {
		parts = append(parts, "@premium:{1}")
	}
	if v, ok := fs["services"]; ok && len(v.List()) > 0 {
		tags := make([]string, 0, len(v.List()))
		for _, name := range v.List() {
			tags = append(tags, redis.EscapeTag(name))
		}
		parts = append(parts, "@services:{"+strings.Join(tags, "|")+"}")
	}

	return parts
}

func providerClauses(fs filters.Set) []string {
	var parts []string

	if v, ok := fs["rating_min"]; ok {
		parts = append(parts, fmt.Sprintf("@rating:[%g +inf]", v.Num()))
	}
	if v, ok := fs["experience_min"]; ok {
		parts = append(parts, fmt.Sprintf("@experience_years:[%g +inf]", v.Num()))
	}
	if v, ok := fs["city"]; ok {
		parts = append(parts, "@city:{"+redis.EscapeTag(v.Text())+"}")
	}
	if v, ok := fs["specialization"]; ok && v.Text() != "" {
		if t := textClause(v.Text()); t != "" {
			parts = append(parts, "@specialty:"+t)
		}
	}
	if v, ok := fs["verified"]; ok && v.Flag() {
		parts = append(parts, "@verified:{1}")
	}

	return parts
}

// numericRange emits a single range clause when either bound is present.
func numericRange(field string, fs filters.Set, minKey, maxKey string) string {
	lo := "-inf"
	hi := "+inf"
	found := false

	if v, ok := fs[minKey]; ok {
		lo = strconv.FormatFloat(v.Num(), 'g', -1, 64)
		found = true
	}
	if v, ok := fs[maxKey]; ok {
		hi = strconv.FormatFloat(v.Num(), 'g', -1, 64)
		found = true
	}
	if !found {
		return ""
	}
	return "@" + field + ":[" + lo + " " + hi + "]"
}

// titleTerms picks up to max words of at least three characters from a
// title, for fuzzy similarity matching.
func titleTerms(title string, max int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) < 3 {
			continue
		}
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

// geoClause restricts matches to the request radius.
func geoClause(loc *request.Location) string {
	return fmt.Sprintf("@location:[%g %g %g km]", loc.Lng, loc.Lat, loc.Radius())
}
