package indexsvc

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/filters"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/request"
	"github.com/kailas-cloud/marketsearch/internal/domain/search/sortby"
	"github.com/kailas-cloud/marketsearch/internal/engine"
)

func listingRequest(t *testing.T, query string, fs filters.Set) request.Request {
	t.Helper()
	req, err := request.New(query, record.Listing, fs, sortby.Relevance, 1, 20, nil)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func TestTranslateMatchAll(t *testing.T) {
	if got := translate(listingRequest(t, "", nil)); got != "*" {
		t.Errorf("translate = %q, want *", got)
	}
}

func TestTranslateTextAndFilters(t *testing.T) {
	got := translate(listingRequest(t, "wedding photo", filters.Set{
		"category":   filters.Text("photo"),
		"city":       filters.Text("Riga"),
		"price_min":  filters.Number(1000),
		"price_max":  filters.Number(5000),
		"rating_min": filters.Number(4.5),
		"is_premium": filters.Bool(true),
		"services":   filters.TextList([]string{"portrait", "studio"}),
	}))

	for _, want := range []string{
		"(wedding photo)",
		"@category:{photo}",
		"@city:{Riga}",
		"@price_per_hour:[1000 5000]",
		"@rating:[4.5 +inf]",
		"@premium:{1}",
		"@services:{portrait|studio}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("translate = %q, missing %q", got, want)
		}
	}
}

func TestTranslatePriceBoundAlone(t *testing.T) {
	got := translate(listingRequest(t, "", filters.Set{"price_min": filters.Number(100)}))
	if !strings.Contains(got, "@price_per_hour:[100 +inf]") {
		t.Errorf("translate = %q", got)
	}
}

func TestTranslateEscapesUserText(t *testing.T) {
	got := translate(listingRequest(t, `photo @evil{}`, nil))
	if strings.Contains(got, "@evil{") {
		t.Errorf("translate = %q, query syntax leaked through", got)
	}
}

func TestTranslateProviderFilters(t *testing.T) {
	req, err := request.New("", record.Provider, filters.Set{
		"experience_min": filters.Number(5),
		"verified":       filters.Bool(true),
		"specialization": filters.Text("photographer"),
	}, sortby.Relevance, 1, 20, nil)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}

	got := translate(req)
	for _, want := range []string{
		"@experience_years:[5 +inf]",
		"@verified:{1}",
		"@specialty:(photographer)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("translate = %q, missing %q", got, want)
		}
	}
}

func TestTranslateCriteria(t *testing.T) {
	got := translateCriteria(listingRequest(t, "", nil), engine.Criteria{
		All:   []string{"wedding"},
		Any:   []string{"photo", "video"},
		None:  []string{"cheap"},
		Exact: "full day",
	})

	for _, want := range []string{
		"(wedding)",
		"((photo) | (video))",
		"-(cheap)",
		`"full day"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("criteria = %q, missing %q", got, want)
		}
	}
}

func TestSortFieldMapping(t *testing.T) {
	cases := []struct {
		rt    record.Type
		sort  sortby.SortBy
		field string
		asc   bool
	}{
		{record.Listing, sortby.Relevance, "", false},
		{record.Listing, sortby.PriceAsc, "price_per_hour", true},
		{record.Listing, sortby.PriceDesc, "price_per_hour", false},
		{record.Listing, sortby.Popular, "views", false},
		{record.Provider, sortby.Popular, "orders_30d", false},
		{record.Provider, sortby.PriceAsc, "rating", false},
		{record.Listing, sortby.Newest, "created_ts", false},
	}
	for _, tc := range cases {
		field, asc := sortField(tc.rt, tc.sort)
		if field != tc.field || asc != tc.asc {
			t.Errorf("sortField(%s, %s) = %q/%v, want %q/%v",
				tc.rt, tc.sort, field, asc, tc.field, tc.asc)
		}
	}
}

func TestSimilarQueryFuzzyTerms(t *testing.T) {
	got := similarQuery(&record.ListingRecord{
		ID: 1, Title: "Wedding photography pro", Category: "photo", PricePerHour: 1000,
	}, nil)
	if !strings.Contains(got, "%wedding%") || !strings.Contains(got, "%photography%") {
		t.Errorf("similarQuery = %q, missing fuzzy title terms", got)
	}
	if !strings.Contains(got, "-@id:{1}") {
		t.Errorf("similarQuery = %q, missing self exclusion", got)
	}
}
