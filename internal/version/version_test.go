package version_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/rocketDuck/folivora/internal/version"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0", 0},
		{"1.0.0", "1.0", 0},
		{"1.0", "1.0.1", -1},
		{"1.0.1", "1.0", 1},
		{"1.9", "1.10", -1},
		{"0.9.9", "1.0", -1},
		{"1101.8.0", "1101.8.1", -1},
		{"2.0", "2.0", 0},
		{"1.0", "1.0a", -1},
		{"1.0rc1", "1.0", 1},
		{"2012.2", "2012.10", -1},
		{"20120401", "20120402", -1},
		{"1.4.1", "1.5.1", -1},
		{"0.14.6", "0.14.6", 0},
		{"1.0-beta", "1.0-alpha", 1},
		{"01", "1", 0},
	}

	for _, tt := range tests {
		if got := version.Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompare_Antisymmetric(t *testing.T) {
	versions := sampleVersions()
	for _, a := range versions {
		for _, b := range versions {
			if version.Compare(a, b) != -version.Compare(b, a) {
				t.Errorf("Compare(%q, %q) is not the negation of Compare(%q, %q)", a, b, b, a)
			}
		}
	}
}

func TestCompare_Reflexive(t *testing.T) {
	for _, v := range sampleVersions() {
		if version.Compare(v, v) != 0 {
			t.Errorf("Compare(%q, %q) != 0", v, v)
		}
	}
}

// TestLess_StrictTotalOrder verifies that Less induces exactly one
// ordering between any two distinct strings and that sorting by it is
// stable regardless of input order.
func TestLess_StrictTotalOrder(t *testing.T) {
	versions := sampleVersions()

	for _, a := range versions {
		for _, b := range versions {
			if a == b {
				if version.Less(a, b) {
					t.Errorf("Less(%q, %q) = true for equal strings", a, b)
				}
				continue
			}
			lt := version.Less(a, b)
			gt := version.Less(b, a)
			if lt == gt {
				t.Errorf("Less(%q, %q)=%v and Less(%q, %q)=%v: not a strict total order", a, b, lt, b, a, gt)
			}
		}
	}

	// Transitivity: sorting shuffled copies must always yield the same order.
	sorted := append([]string(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool { return version.Less(sorted[i], sorted[j]) })

	rng := rand.New(rand.NewSource(42))
	for range 20 {
		shuffled := append([]string(nil), versions...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		sort.Slice(shuffled, func(i, j int) bool { return version.Less(shuffled[i], shuffled[j]) })
		for i := range sorted {
			if shuffled[i] != sorted[i] {
				t.Fatalf("sort order not deterministic: position %d is %q, want %q", i, shuffled[i], sorted[i])
			}
		}
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{"empty", nil, ""},
		{"single", []string{"1.0"}, "1.0"},
		{"plain", []string{"1.0", "1.0.1", "0.9"}, "1.0.1"},
		{"numeric not lexicographic", []string{"1.9", "1.10"}, "1.10"},
		{"pmxbot", []string{"1101.8.0", "1101.8.1"}, "1101.8.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := version.Max(tt.versions); got != tt.want {
				t.Errorf("Max(%v) = %q, want %q", tt.versions, got, tt.want)
			}
		})
	}
}

func sampleVersions() []string {
	return []string{
		"1.0", "1.0.0", "1.0.1", "1.1", "1.9", "1.10", "2.0",
		"0.9", "0.14.6", "1101.8.0", "1101.8.1",
		"1.0a", "1.0rc1", "1.0-beta", "1.0-alpha",
		"2012.2", "2012.10", "20120401", "01", "1",
		"1.4.1", "1.5.1", "0.0.0", "latest",
	}
}
