package indexsvc

import (
	"testing"

	"github.com/kailas-cloud/marketsearch/internal/db"
)

// textAttributes returns the attribute names a bare text term can match.
func textAttributes(def *db.IndexDefinition) map[string]bool {
	out := map[string]bool{}
	for _, f := range def.Fields {
		if f.Type != db.IndexFieldText {
			continue
		}
		name := f.Name
		if f.Alias != "" {
			name = f.Alias
		}
		out[name] = true
	}
	return out
}

func tagAttributes(def *db.IndexDefinition) map[string]bool {
	out := map[string]bool{}
	for _, f := range def.Fields {
		if f.Type == db.IndexFieldTag && f.Alias == "" {
			out[f.Name] = true
		}
	}
	return out
}

func TestListingIndexTextCoverage(t *testing.T) {
	def := ListingIndexDefinition()

	text := textAttributes(def)
	for _, want := range []string{"title", "description", "owner_name", "tags_text", "services_text"} {
		if !text[want] {
			t.Errorf("listing index lacks text attribute %q", want)
		}
	}

	// Exact filter clauses still need the TAG form of these fields.
	tags := tagAttributes(def)
	for _, want := range []string{"tags", "services", "category", "city"} {
		if !tags[want] {
			t.Errorf("listing index lacks tag attribute %q", want)
		}
	}
}

func TestProviderIndexTextCoverage(t *testing.T) {
	def := ProviderIndexDefinition()

	text := textAttributes(def)
	for _, want := range []string{"name", "specialty", "bio", "city_text"} {
		if !text[want] {
			t.Errorf("provider index lacks text attribute %q", want)
		}
	}
	if !tagAttributes(def)["city"] {
		t.Error("provider index lacks the city tag attribute")
	}
}
