package condition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mtf-signal-engine/internal/market"
)

// TimeFilter restricts evaluation to a half-open time-of-day window
// [start, end) in a specific timezone. The filter check is independent of
// condition truth: outside the window, nothing else matters.
type TimeFilter struct {
	startMin int
	endMin   int
	loc      *time.Location
}

// NewTimeFilter builds a filter from "HH:MM" bounds. An empty timezone
// selects the exchange default (America/New_York).
func NewTimeFilter(start, end, timezone string) (*TimeFilter, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("time filter start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("time filter end: %w", err)
	}

	loc := market.DefaultLocation
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("time filter timezone %q: %w", timezone, err)
		}
	}

	return &TimeFilter{startMin: startMin, endMin: endMin, loc: loc}, nil
}

// Contains reports whether t falls inside [start, end) in the filter's
// timezone. A timestamp exactly at end is excluded; exactly at start is
// included.
func (f *TimeFilter) Contains(t time.Time) bool {
	local := t.In(f.loc)
	m := local.Hour()*60 + local.Minute()
	if f.startMin <= f.endMin {
		return m >= f.startMin && m < f.endMin
	}
	// Overnight window, e.g. 20:00-04:00.
	return m >= f.startMin || m < f.endMin
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
