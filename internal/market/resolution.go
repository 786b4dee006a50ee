package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolution is a canonical sampling granularity for price bars.
// Resolutions are totally ordered by Duration; Res1Min is the finest.
type Resolution string

const (
	Res1Min  Resolution = "1min"
	Res5Min  Resolution = "5min"
	Res15Min Resolution = "15min"
	Res30Min Resolution = "30min"
	Res1H    Resolution = "1h"
	Res4H    Resolution = "4h"
	Res1D    Resolution = "1d"
)

// Resolutions lists all canonical resolutions, finest first.
var Resolutions = []Resolution{Res1Min, Res5Min, Res15Min, Res30Min, Res1H, Res4H, Res1D}

// durations maps each canonical resolution to its nominal bar duration.
// Res1D uses the regular-session span; it is only compared, never added
// across session boundaries.
var durations = map[Resolution]time.Duration{
	Res1Min:  time.Minute,
	Res5Min:  5 * time.Minute,
	Res15Min: 15 * time.Minute,
	Res30Min: 30 * time.Minute,
	Res1H:    time.Hour,
	Res4H:    4 * time.Hour,
	Res1D:    24 * time.Hour,
}

// Duration returns the nominal bar duration of the resolution.
func (r Resolution) Duration() time.Duration {
	return durations[r]
}

// Coarser reports whether r is coarser than other (longer bar duration).
func (r Resolution) Coarser(other Resolution) bool {
	return r.Duration() > other.Duration()
}

// resolutionToken matches a count plus a unit, e.g. "5min", "60m", "1hr", "2hours".
var resolutionToken = regexp.MustCompile(`^(\d+)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days)$`)

// byMinutes maps a bar length in minutes to its canonical resolution.
var byMinutes = map[int]Resolution{
	1:    Res1Min,
	5:    Res5Min,
	15:   Res15Min,
	30:   Res30Min,
	60:   Res1H,
	240:  Res4H,
	1440: Res1D,
}

// NormalizeResolution canonicalizes a timeframe token. "1h", "60min", "60m"
// and "1hr" all map to Res1H; "daily", "1day" and "1440min" map to Res1D.
// Matching is case-insensitive.
func NormalizeResolution(token string) (Resolution, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "" {
		return "", fmt.Errorf("empty resolution token")
	}

	switch s {
	case "d", "day", "daily":
		return Res1D, nil
	case "h", "hr", "hour", "hourly":
		return Res1H, nil
	}

	m := resolutionToken.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("unknown resolution %q", token)
	}

	count, err := strconv.Atoi(m[1])
	if err != nil || count <= 0 {
		return "", fmt.Errorf("unknown resolution %q", token)
	}

	minutes := count
	switch m[2][0] {
	case 'h':
		minutes = count * 60
	case 'd':
		minutes = count * 1440
	}

	res, ok := byMinutes[minutes]
	if !ok {
		return "", fmt.Errorf("unsupported resolution %q (%d minutes)", token, minutes)
	}
	return res, nil
}
