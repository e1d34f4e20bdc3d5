package indicator

import (
	"errors"
	"fmt"
)

// ErrWindow is returned for a window that is empty or longer than the series.
var ErrWindow = errors.New("indicator: invalid window")

// RollingMidpoint returns, for every i in [window, len(series)), the midpoint
// of the highest and lowest values in series[i-window:i], rounded half to
// even. The window excludes position i, so the result has
// len(series)-window elements.
//
// Extrema are tracked with monotonic index deques, O(len) overall.
func RollingMidpoint(series []int64, window int) ([]int64, error) {
	if window <= 0 || window > len(series) {
		return nil, fmt.Errorf("%w: %d over %d values", ErrWindow, window, len(series))
	}
	out := make([]int64, 0, len(series)-window)
	maxq := make([]int, 0, window)
	minq := make([]int, 0, window)

	// The newest element never falls inside a window.
	for i := 0; i < len(series)-1; i++ {
		v := series[i]
		for len(maxq) > 0 && series[maxq[len(maxq)-1]] <= v {
			maxq = maxq[:len(maxq)-1]
		}
		maxq = append(maxq, i)
		for len(minq) > 0 && series[minq[len(minq)-1]] >= v {
			minq = minq[:len(minq)-1]
		}
		minq = append(minq, i)

		if i+1 < window {
			continue
		}
		lo := i + 1 - window
		for maxq[0] < lo {
			maxq = maxq[1:]
		}
		for minq[0] < lo {
			minq = minq[1:]
		}
		out = append(out, halfEven(series[maxq[0]]+series[minq[0]]))
	}
	return out, nil
}

// halfEven returns sum/2 rounded to the nearest integer, ties to even.
func halfEven(sum int64) int64 {
	q := floorDiv(sum, 2)
	if sum%2 != 0 && q%2 != 0 {
		q++
	}
	return q
}
