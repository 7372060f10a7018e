package tempo

import (
	"testing"

	"github.com/desertthunder/plsync/internal/shared"
)

func TestNormalizeBPM(t *testing.T) {
	chaCha := Range{Key: "CC", Dance: "Cha Cha", Low: 102, High: 128}

	tests := []struct {
		name string
		bpm  float64
		r    Range
		want float64
	}{
		{"In Range Is Kept", 120, chaCha, 120},
		{"Half Time Doubles", 60, chaCha, 120},
		{"Double Time Halves", 240, chaCha, 120},
		{"Halving Still Out Of Range", 300, chaCha, 300},
		{"Doubling Still Out Of Range", 40, chaCha, 40},
		{"Zero", 0, chaCha, 0},
		{"Negative", -12, chaCha, 0},
		{"Bounds Are Inclusive", 51, chaCha, 102},
		{"Invalid Range Leaves BPM", 60, Range{Low: 130, High: 100}, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeBPM(tt.bpm, tt.r); got != tt.want {
				t.Errorf("NormalizeBPM(%v) = %v, want %v", tt.bpm, got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	table := NewTable([]shared.TempoConfig{
		{Key: "cc", Dance: "Cha Cha", Low: 102, High: 128},
		{Key: "WA", Dance: "Waltz", Low: 84, High: 90},
		{Key: " ", Dance: "Blank", Low: 1, High: 2},
		{Key: "WA", Dance: "Slow Waltz", Low: 81, High: 93},
	})

	t.Run("Lookup Is Case Insensitive", func(t *testing.T) {
		r, ok := table.Lookup("CC")
		if !ok || r.Dance != "Cha Cha" {
			t.Fatalf("expected Cha Cha, got %+v (%v)", r, ok)
		}
	})

	t.Run("Later Rows Replace Earlier", func(t *testing.T) {
		r, _ := table.Lookup("wa")
		if r.Dance != "Slow Waltz" {
			t.Errorf("expected Slow Waltz, got %s", r.Dance)
		}
	})

	t.Run("Normalize", func(t *testing.T) {
		if got := table.Normalize(60, "cc"); got != 120 {
			t.Errorf("expected 120, got %v", got)
		}
		if got := table.Normalize(60, ""); got != 60 {
			t.Errorf("empty key: expected 60, got %v", got)
		}
		if got := table.Normalize(60, "ZZ"); got != 60 {
			t.Errorf("unknown key: expected 60, got %v", got)
		}
		if got := table.Normalize(-1, "ZZ"); got != 0 {
			t.Errorf("negative bpm: expected 0, got %v", got)
		}
	})

	t.Run("Ranges Sorted", func(t *testing.T) {
		ranges := table.Ranges()
		if len(ranges) != 2 || ranges[0].Key != "CC" || ranges[1].Key != "WA" {
			t.Errorf("unexpected ranges: %+v", ranges)
		}
	})

	t.Run("Default Config Table", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		table := NewTable(cfg.Tempo)
		if len(table.Ranges()) != len(cfg.Tempo) {
			t.Errorf("expected %d ranges, got %d", len(cfg.Tempo), len(table.Ranges()))
		}
		if got := table.Normalize(60, "CC"); got != 120 {
			t.Errorf("expected 120, got %v", got)
		}
	})
}
