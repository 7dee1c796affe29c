package sortby

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want SortBy
	}{
		{"relevance", Relevance},
		{"price_asc", PriceAsc},
		{"distance", Distance},
		{"", Relevance},
		{"bestest", Relevance},
		{"PRICE_ASC", Relevance}, // wire values are lowercase only
	}
	for _, tt := range tests {
		if got := Parse(tt.raw); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestAllAreValid(t *testing.T) {
	for _, s := range All() {
		if !s.IsValid() {
			t.Errorf("%v listed but not valid", s)
		}
	}
	if SortBy("random").IsValid() {
		t.Error("unknown ordering reported valid")
	}
}
