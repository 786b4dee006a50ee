package market

import (
	"time"
)

// Regular trading session, local exchange time. Daily bars are built from
// session bars only; pre/after-market prints must not distort the daily view.
const (
	SessionOpenMinute  = 9*60 + 30 // 09:30
	SessionCloseMinute = 16 * 60   // 16:00
)

// DefaultLocation is the exchange timezone assumed for naive timestamps.
var DefaultLocation = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Aggregate builds a coarser-resolution view of the base series using
// open=first, high=max, low=min, close=last, volume=sum.
//
// Aggregated bars are keyed by their bucket close boundary, and a bucket is
// emitted only once the base history fully covers it. A value for timestamp t
// therefore never depends on bars closing after t, and appending newer base
// data never changes an already-emitted bucket.
//
// A target finer than or equal to the base resolution is a no-op: the input
// series is returned unchanged. An empty base series yields
// *InsufficientDataError.
func Aggregate(base *Series, target Resolution) (*Series, error) {
	if base == nil || len(base.Bars) == 0 {
		return nil, &InsufficientDataError{Symbol: seriesSymbol(base), Resolution: target}
	}
	if !target.Coarser(base.Resolution) {
		return base, nil
	}
	if target == Res1D {
		return aggregateDaily(base)
	}
	return aggregateIntraday(base, target)
}

func seriesSymbol(s *Series) string {
	if s == nil {
		return ""
	}
	return s.Symbol
}

// bucketClose returns the close boundary of the intraday bucket containing a
// bar that closes at t, computed on the wall clock of t's own location so
// buckets line up with exchange-local boundaries.
func bucketClose(t time.Time, d time.Duration) time.Time {
	dmin := int(d / time.Minute)
	year, month, day := t.Date()
	m := t.Hour()*60 + t.Minute()
	if m == 0 {
		// A midnight close is the last bar of the previous day's final bucket.
		return t
	}
	end := ((m-1)/dmin)*dmin + dmin
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location()).Add(time.Duration(end) * time.Minute)
}

func aggregateIntraday(base *Series, target Resolution) (*Series, error) {
	lastClose := base.Bars[len(base.Bars)-1].CloseTime

	var out []Bar
	var cur Bar
	var curEnd time.Time
	open := false

	flush := func() {
		// Emit only buckets the history fully covers; the forming tail
		// bucket stays invisible until its boundary is reached.
		if open && !curEnd.After(lastClose) {
			cur.CloseTime = curEnd
			out = append(out, cur)
		}
		open = false
	}

	for _, b := range base.Bars {
		end := bucketClose(b.CloseTime, target.Duration())
		if !open || !end.Equal(curEnd) {
			flush()
			curEnd = end
			cur = Bar{
				OpenTime: b.OpenTime,
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
				Close:    b.Close,
				Volume:   b.Volume,
			}
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	flush()

	if len(out) == 0 {
		return nil, &InsufficientDataError{Symbol: base.Symbol, Resolution: target}
	}
	return NewSeries(base.Symbol, target, out), nil
}

// inSession reports whether a bar lies entirely inside the regular session.
func inSession(b Bar) bool {
	openLocal := b.OpenTime
	closeLocal := b.CloseTime
	om := openLocal.Hour()*60 + openLocal.Minute()
	cm := closeLocal.Hour()*60 + closeLocal.Minute()
	if cm == 0 {
		cm = 24 * 60
	}
	return om >= SessionOpenMinute && cm <= SessionCloseMinute
}

func aggregateDaily(base *Series) (*Series, error) {
	lastClose := base.Bars[len(base.Bars)-1].CloseTime

	var out []Bar
	var cur Bar
	var curEnd time.Time
	open := false

	flush := func() {
		if open && !curEnd.After(lastClose) {
			cur.CloseTime = curEnd
			out = append(out, cur)
		}
		open = false
	}

	for _, b := range base.Bars {
		if !inSession(b) {
			continue
		}
		year, month, day := b.CloseTime.Date()
		end := time.Date(year, month, day, SessionCloseMinute/60, SessionCloseMinute%60, 0, 0, b.CloseTime.Location())
		if !open || !end.Equal(curEnd) {
			flush()
			curEnd = end
			cur = Bar{
				OpenTime: b.OpenTime,
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
				Close:    b.Close,
				Volume:   b.Volume,
			}
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	flush()

	if len(out) == 0 {
		return nil, &InsufficientDataError{Symbol: base.Symbol, Resolution: Res1D}
	}
	return NewSeries(base.Symbol, Res1D, out), nil
}
