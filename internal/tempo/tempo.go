// package tempo maps measured track tempo onto the range expected for a dance style
package tempo

import (
	"maps"
	"slices"
	"strings"

	"github.com/desertthunder/plsync/internal/shared"
)

// Range is the accepted bpm window for one dance style.
type Range struct {
	Key   string
	Dance string
	Low   float64
	High  float64
}

// Contains reports whether bpm lies within [Low, High].
func (r Range) Contains(bpm float64) bool {
	return bpm >= r.Low && bpm <= r.High
}

// NormalizeBPM corrects a half- or double-time reading against r.
//
// A bpm at or below zero gives 0. A bpm below the range is doubled and one above it is halved, and the
// result is used only when it falls inside the range. Otherwise bpm is returned unchanged.
func NormalizeBPM(bpm float64, r Range) float64 {
	if bpm <= 0 {
		return 0
	}
	if r.Low <= 0 || r.High < r.Low || r.Contains(bpm) {
		return bpm
	}

	candidate := bpm * 2
	if bpm > r.High {
		candidate = bpm / 2
	}
	if r.Contains(candidate) {
		return candidate
	}
	return bpm
}

// Table is a lookup of ranges by key.
type Table struct {
	ranges map[string]Range
}

// NewTable builds a table from the [[tempo]] config rows. Keys are case-insensitive and a later row
// replaces an earlier one with the same key.
func NewTable(rows []shared.TempoConfig) *Table {
	t := &Table{ranges: make(map[string]Range, len(rows))}
	for _, row := range rows {
		key := strings.ToUpper(strings.TrimSpace(row.Key))
		if key == "" {
			continue
		}
		t.ranges[key] = Range{Key: key, Dance: row.Dance, Low: row.Low, High: row.High}
	}
	return t
}

// Lookup returns the range for key.
func (t *Table) Lookup(key string) (Range, bool) {
	r, ok := t.ranges[strings.ToUpper(strings.TrimSpace(key))]
	return r, ok
}

// Normalize applies [NormalizeBPM] with the range for key. An empty or unknown key returns bpm unchanged,
// except that a bpm at or below zero always gives 0.
func (t *Table) Normalize(bpm float64, key string) float64 {
	if bpm <= 0 {
		return 0
	}
	r, ok := t.Lookup(key)
	if !ok {
		return bpm
	}
	return NormalizeBPM(bpm, r)
}

// Ranges returns all ranges sorted by key.
func (t *Table) Ranges() []Range {
	keys := slices.Sorted(maps.Keys(t.ranges))
	out := make([]Range, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.ranges[k])
	}
	return out
}
