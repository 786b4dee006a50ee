package engine

import (
	"time"

	"mtf-signal-engine/internal/align"
	"mtf-signal-engine/internal/indicator"
	"mtf-signal-engine/internal/market"
	"mtf-signal-engine/internal/token"
)

// resolver maps DSL tokens to scalars at a timestamp. Base-resolution tokens
// are read directly at the scan cursor; coarser resolutions go through the
// as-of projection so only closed bars are visible.
type resolver struct {
	ind    *indicator.Engine
	symbol string
	base   market.Resolution

	cursor int // index of the bar being scanned

	times   map[market.Resolution][]time.Time
	columns map[colKey][]float64
}

type colKey struct {
	res   market.Resolution
	field string
}

func newResolver(ind *indicator.Engine, symbol string, base market.Resolution) *resolver {
	return &resolver{
		ind:     ind,
		symbol:  symbol,
		base:    base,
		times:   make(map[market.Resolution][]time.Time),
		columns: make(map[colKey][]float64),
	}
}

func (r *resolver) seriesTimes(res market.Resolution) ([]time.Time, bool) {
	if times, ok := r.times[res]; ok {
		return times, true
	}
	s, ok := r.ind.Series(r.symbol, res)
	if !ok {
		return nil, false
	}
	times := s.CloseTimes()
	r.times[res] = times
	return times, true
}

func (r *resolver) column(res market.Resolution, field string) ([]float64, bool) {
	key := colKey{res: res, field: field}
	if vals, ok := r.columns[key]; ok {
		return vals, true
	}
	s, ok := r.ind.Series(r.symbol, res)
	if !ok {
		return nil, false
	}

	var vals []float64
	switch field {
	case token.FieldOpen:
		vals = s.Opens()
	case token.FieldHigh:
		vals = s.Highs()
	case token.FieldLow:
		vals = s.Lows()
	case token.FieldClose:
		vals = s.Closes()
	case "volume":
		vals = s.Volumes()
	default:
		return nil, false
	}
	r.columns[key] = vals
	return vals, true
}

func (r *resolver) values(tok token.Token) ([]time.Time, []float64, bool) {
	switch tok.Category {
	case token.CategoryPrice:
		vals, ok := r.column(tok.Resolution, tok.Field)
		if !ok {
			return nil, nil, false
		}
		times, ok := r.seriesTimes(tok.Resolution)
		return times, vals, ok

	case token.CategoryVolume:
		vals, ok := r.column(tok.Resolution, "volume")
		if !ok {
			return nil, nil, false
		}
		times, ok := r.seriesTimes(tok.Resolution)
		return times, vals, ok

	case token.CategoryEMA:
		s, err := r.ind.EMA(r.symbol, tok.Resolution, tok.Period)
		if err != nil {
			return nil, nil, false
		}
		return s.Times, s.Values, true

	case token.CategoryDevBand:
		b, err := r.ind.DeviationBands(r.symbol, tok.Resolution, tok.Period, tok.Multiplier)
		if err != nil {
			return nil, nil, false
		}
		if tok.Band == token.BandUpper {
			return b.Times, b.Upper, true
		}
		return b.Times, b.Lower, true
	}
	return nil, nil, false
}

// Resolve implements condition.Resolver. Undefined values (warm-up, before
// series start, missing resolution) report ok=false so conditions fail
// closed instead of erroring.
func (r *resolver) Resolve(tok token.Token, at time.Time) (float64, bool) {
	times, vals, ok := r.values(tok)
	if !ok {
		return 0, false
	}

	// Base-resolution series share the scan timeline one-to-one, so the
	// cursor is the as-of position without a search.
	if tok.Resolution == r.base && len(vals) > r.cursor {
		i := r.cursor
		if tok.Previous {
			i--
		}
		if i < 0 {
			return 0, false
		}
		return vals[i], true
	}

	if tok.Previous {
		return align.Previous(times, vals, at)
	}
	return align.AsOf(times, vals, at)
}
