package similarity

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact", "capital call notice", "capital call notice", 1.0},
		{"both empty", "", "", 0.0},
		{"left empty", "", "x", 0.0},
		{"right empty", "x", "", 0.0},
		// blocks: "bcd" -> 2*3/8
		{"shifted overlap", "abcd", "bcde", 0.75},
		// blocks: "abc" -> 2*3/8
		{"single char edit", "abcx", "abcy", 0.75},
		// blocks: "itt" + "n" -> 2*4/13
		{"kitten sitting", "kitten", "sitting", 8.0 / 13.0},
		{"disjoint", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"capital call notice q3 2025", "capital call notice q3 2024"},
		{"password reset request", "invoice overdue"},
		{"abcd", "bcde"},
	}
	for _, p := range pairs {
		if got, rev := Ratio(p[0], p[1]), Ratio(p[1], p[0]); !almostEqual(got, rev) {
			t.Errorf("Ratio not symmetric for %q/%q: %v vs %v", p[0], p[1], got, rev)
		}
	}
}

func TestRatioSmallEditNearOne(t *testing.T) {
	a := "quarterly distribution notice for fund iii investors"
	b := "quarterly distribution notice for fund iv investors"
	if got := Ratio(a, b); got < 0.9 {
		t.Errorf("small character edit should score near 1.0, got %v", got)
	}
}

func TestRatioUnrelatedNearZero(t *testing.T) {
	a := "password reset request"
	b := "quarterly fund statement"
	if got := Ratio(a, b); got > 0.5 {
		t.Errorf("unrelated strings should score low, got %v", got)
	}
}

func TestRatioUnicode(t *testing.T) {
	// Rune-based, not byte-based: multi-byte runes count once.
	if got := Ratio("déjà vu", "déjà vu"); !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %v", got)
	}
	if got := Ratio("déjà", "déjá"); got <= 0.5 {
		t.Errorf("expected majority match on rune edit, got %v", got)
	}
}
