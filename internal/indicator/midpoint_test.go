package indicator

import (
	"errors"
	"testing"
)

// bruteMidpoint is the direct definition: scan every window.
func bruteMidpoint(series []int64, window int) []int64 {
	var out []int64
	for i := window; i < len(series); i++ {
		hi, lo := series[i-window], series[i-window]
		for _, v := range series[i-window : i] {
			if v > hi {
				hi = v
			}
			if v < lo {
				lo = v
			}
		}
		out = append(out, halfEven(hi+lo))
	}
	return out
}

// lcg yields a deterministic pseudo-random walk around base.
func lcg(n int, seed uint64, base int64) []int64 {
	out := make([]int64, n)
	p := base
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		p += int64(seed>>59) - 15
		out[i] = p
	}
	return out
}

func TestHalfEven(t *testing.T) {
	tests := []struct {
		sum, want int64
	}{
		{5600, 2800},
		{5, 2}, // 2.5 -> 2
		{7, 4}, // 3.5 -> 4
		{5529, 2764},
		{5479, 2740},
		{-5, -2},
		{-7, -4},
		{0, 0},
	}
	for _, tt := range tests {
		if got := halfEven(tt.sum); got != tt.want {
			t.Errorf("halfEven(%d) = %d, want %d", tt.sum, got, tt.want)
		}
	}
}

func TestRollingMidpoint_Length(t *testing.T) {
	prices := lcg(78, 1, 2800)
	for _, w := range []int{1, 9, 26, 52, 78} {
		got, err := RollingMidpoint(prices, w)
		if err != nil {
			t.Fatalf("window %d: %v", w, err)
		}
		if len(got) != 78-w {
			t.Errorf("window %d: len=%d, want %d", w, len(got), 78-w)
		}
	}
}

func TestRollingMidpoint_MatchesBruteForce(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		prices := lcg(78, seed, 2800)
		for _, w := range []int{9, 26, 52} {
			got, err := RollingMidpoint(prices, w)
			if err != nil {
				t.Fatal(err)
			}
			want := bruteMidpoint(prices, w)
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("seed %d window %d index %d: got %d, want %d", seed, w, i, got[i], want[i])
				}
			}
		}
	}
}

func TestRollingMidpoint_ExcludesCurrent(t *testing.T) {
	// The spike at the last position is never inside a window.
	prices := []int64{10, 10, 10, 1000}
	got, err := RollingMidpoint(prices, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 10 || got[1] != 10 {
		t.Fatalf("got %v, want [10 10]", got)
	}
}

func TestRollingMidpoint_InvalidWindow(t *testing.T) {
	for _, w := range []int{0, -1, 5} {
		if _, err := RollingMidpoint([]int64{1, 2, 3, 4}, w); !errors.Is(err, ErrWindow) {
			t.Errorf("window %d: expected ErrWindow, got %v", w, err)
		}
	}
}
