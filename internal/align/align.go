// Package align projects coarser-resolution series onto a finer timeline
// using as-of (last-known-value) semantics.
package align

import (
	"sort"
	"time"
)

// asOfIndex returns the index of the latest timestamp <= t, or -1 when t
// precedes the first timestamp. times must be sorted ascending.
func asOfIndex(times []time.Time, t time.Time) int {
	// First index with times[i] > t.
	i := sort.Search(len(times), func(i int) bool {
		return times[i].After(t)
	})
	return i - 1
}

// AsOf returns the value at the latest timestamp <= t. The second return is
// false when t precedes the series; callers treat that as undefined rather
// than an error so conditions can fail closed.
func AsOf(times []time.Time, values []float64, t time.Time) (float64, bool) {
	i := asOfIndex(times, t)
	if i < 0 || i >= len(values) {
		return 0, false
	}
	return values[i], true
}

// Previous returns the value one position before the as-of position for t:
// the prior bar in the series' own resolution, not the prior bar of the
// finer timeline being scanned.
func Previous(times []time.Time, values []float64, t time.Time) (float64, bool) {
	i := asOfIndex(times, t) - 1
	if i < 0 || i >= len(values) {
		return 0, false
	}
	return values[i], true
}
