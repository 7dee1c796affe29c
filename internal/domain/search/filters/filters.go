// Package filters holds the typed filter values carried by a search request.
package filters

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the FilterValue union.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	KindTextList
	KindBool
)

// Value is a tagged union: exactly one of the payloads is meaningful,
// selected by Kind. The value type for a given key is fixed by the catalog.
type Value struct {
	kind Kind
	num  float64
	text string
	list []string
	flag bool
}

// Number creates a numeric filter value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// Text creates a single text/enum filter value.
func Text(v string) Value { return Value{kind: KindText, text: v} }

// TextList creates a multi-value filter.
func TextList(vs []string) Value { return Value{kind: KindTextList, list: vs} }

// Bool creates a boolean filter value.
func Bool(v bool) Value { return Value{kind: KindBool, flag: v} }

// Kind returns the union tag.
func (v Value) Kind() Kind { return v.kind }

// Num returns the numeric payload.
func (v Value) Num() float64 { return v.num }

// Text returns the text payload.
func (v Value) Text() string { return v.text }

// List returns the multi-value payload.
func (v Value) List() []string { return v.list }

// Flag returns the boolean payload.
func (v Value) Flag() bool { return v.flag }

// Encode renders the value in a stable textual form, used for cache keys.
func (v Value) Encode() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindTextList:
		return strings.Join(v.list, ",")
	case KindBool:
		return strconv.FormatBool(v.flag)
	}
	return ""
}

// Set is a cleaned filter map keyed by catalog filter key.
type Set map[string]Value

// Clone returns a shallow copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// MergeUnder layers base underneath s: keys already present in s win.
// Used to apply saved user preferences below explicit request filters.
func (s Set) MergeUnder(base Set) Set {
	if len(base) == 0 {
		return s
	}
	out := base.Clone()
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Fingerprint renders the set as "k=v;..." with keys sorted, for cache keys.
func (s Set) Fingerprint() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s=%s", k, s[k].Encode())
	}
	return b.String()
}
