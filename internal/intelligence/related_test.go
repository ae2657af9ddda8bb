package intelligence

import (
	"math"
	"strings"
	"testing"
)

func TestTextSeed(t *testing.T) {
	t.Parallel()

	if got := textSeed(nil); got != "" {
		t.Errorf("nil preview seed = %q, want empty", got)
	}

	empty := "   "
	if got := textSeed(&empty); got != "" {
		t.Errorf("blank preview seed = %q, want empty", got)
	}

	short := "invoice for march"
	if got := textSeed(&short); got != "invoice for march" {
		t.Errorf("short seed = %q", got)
	}

	long := strings.Repeat("word ", 40)
	got := textSeed(&long)
	if n := len(strings.Fields(got)); n != textSeedTokens {
		t.Errorf("seed token count = %d, want %d", n, textSeedTokens)
	}
}

func TestNearSizeScore(t *testing.T) {
	t.Parallel()

	// Score formula: 0.75 * (1 - diff/tolerance), linear falloff over the
	// 3% window.
	score := func(diff float64) float64 {
		return scoreNearSize * (1 - diff/nearSizeTolerance)
	}

	if got := score(0); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("identical size score = %v, want 0.75", got)
	}
	if got := score(nearSizeTolerance); math.Abs(got) > 1e-9 {
		t.Errorf("edge-of-window score = %v, want 0", got)
	}
	if mid := score(0.015); mid <= 0 || mid >= 0.75 {
		t.Errorf("mid-window score = %v, want inside (0, 0.75)", mid)
	}
}

func TestTextRankScore(t *testing.T) {
	t.Parallel()

	score := func(rank float64) float64 {
		return scoreTextWeight * rank / (rank + textRankDamping)
	}

	if got := score(0); got != 0 {
		t.Errorf("zero rank score = %v, want 0", got)
	}
	// Monotonic and bounded below the exact-match tiers.
	prev := -1.0
	for _, r := range []float64{0.01, 0.1, 0.5, 1, 10, 1000} {
		got := score(r)
		if got <= prev {
			t.Errorf("score not monotonic at rank %v", r)
		}
		if got >= scoreETag {
			t.Errorf("text score %v at rank %v must stay below etag tier", got, r)
		}
		prev = got
	}
}
