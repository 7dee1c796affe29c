package filters

import (
	"testing"
)

func TestValueEncode(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"number", Number(1500), "1500"},
		{"fraction", Number(4.5), "4.5"},
		{"text", Text("Riga"), "Riga"},
		{"list", TextList([]string{"a", "b"}), "a,b"},
		{"bool", Bool(true), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Encode(); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFingerprintStable(t *testing.T) {
	s := Set{
		"city":      Text("Riga"),
		"price_min": Number(100),
		"verified":  Bool(true),
	}
	want := "city=Riga;price_min=100;verified=true"
	for i := 0; i < 10; i++ {
		if got := s.Fingerprint(); got != want {
			t.Fatalf("Fingerprint() = %q, want %q", got, want)
		}
	}
	if got := (Set{}).Fingerprint(); got != "" {
		t.Errorf("empty fingerprint = %q, want empty", got)
	}
}

func TestMergeUnderExplicitWins(t *testing.T) {
	explicit := Set{"city": Text("Riga")}
	saved := Set{"city": Text("Liepaja"), "category": Text("photo")}

	merged := explicit.MergeUnder(saved)

	if merged["city"].Text() != "Riga" {
		t.Errorf("explicit value lost: %q", merged["city"].Text())
	}
	if merged["category"].Text() != "photo" {
		t.Error("saved preference not layered in")
	}
	// Originals untouched.
	if _, ok := explicit["category"]; ok {
		t.Error("MergeUnder mutated the receiver")
	}
	if saved["city"].Text() != "Liepaja" {
		t.Error("MergeUnder mutated the base")
	}
}

func TestMergeUnderEmptyBase(t *testing.T) {
	explicit := Set{"city": Text("Riga")}
	if got := explicit.MergeUnder(nil); len(got) != 1 {
		t.Errorf("merge with empty base = %v", got)
	}
}

func TestClone(t *testing.T) {
	s := Set{"city": Text("Riga")}
	c := s.Clone()
	c["city"] = Text("Liepaja")
	if s["city"].Text() != "Riga" {
		t.Error("Clone shares storage with the original")
	}
}
