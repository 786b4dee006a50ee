// Package indicator computes EMA and EMA-deviation-band series per
// (symbol, resolution, parameters), memoized for the lifetime of one
// engine instance.
package indicator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"mtf-signal-engine/internal/market"
)

// DefaultFallbackSpreadPct is the spread substituted, as a fraction of the
// band center, when the rolling deviation is NaN or exactly zero. Keeping
// bands defined whenever the center is defined means short or flat histories
// narrow the bands instead of silently disabling every band condition.
const DefaultFallbackSpreadPct = 0.001

// Series is a timestamp-keyed numeric sequence. Times and Values are
// parallel; entries may be NaN during warm-up.
type Series struct {
	Times  []time.Time
	Values []float64
}

// BandSeries is a deviation-band triple sharing one timeline.
type BandSeries struct {
	Times  []time.Time
	Center []float64
	Upper  []float64
	Lower  []float64
}

// Engine owns the price series and the indicator memo cache for one scan
// run. Lazy computation is mutex-guarded so concurrent warm-up never
// computes the same key twice; entries are immutable once stored.
type Engine struct {
	fallbackPct float64

	mu     sync.Mutex
	series map[string]*market.Series
	emas   map[string]*Series
	bands  map[string]*BandSeries
}

// NewEngine creates an indicator engine. A fallbackPct <= 0 selects
// DefaultFallbackSpreadPct.
func NewEngine(fallbackPct float64) *Engine {
	if fallbackPct <= 0 {
		fallbackPct = DefaultFallbackSpreadPct
	}
	return &Engine{
		fallbackPct: fallbackPct,
		series:      make(map[string]*market.Series),
		emas:        make(map[string]*Series),
		bands:       make(map[string]*BandSeries),
	}
}

// Register makes a resolution view available for indicator computation.
// Registering a series again invalidates every cached indicator built on it.
func (e *Engine) Register(s *market.Series) {
	key := seriesKey(s.Symbol, s.Resolution)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.series[key] = s
	for k := range e.emas {
		if keyMatchesSeries(k, key) {
			delete(e.emas, k)
		}
	}
	for k := range e.bands {
		if keyMatchesSeries(k, key) {
			delete(e.bands, k)
		}
	}
}

// Series returns a registered resolution view.
func (e *Engine) Series(symbol string, res market.Resolution) (*market.Series, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.series[seriesKey(symbol, res)]
	return s, ok
}

func seriesKey(symbol string, res market.Resolution) string {
	return symbol + "|" + string(res)
}

func keyMatchesSeries(cacheKey, seriesKey string) bool {
	return len(cacheKey) > len(seriesKey) && cacheKey[:len(seriesKey)+1] == seriesKey+"|"
}

// EMA returns the exponential moving average series for the registered
// (symbol, resolution) view, seeded by the first close with smoothing
// factor 2/(period+1).
func (e *Engine) EMA(symbol string, res market.Resolution, period int) (*Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}
	key := fmt.Sprintf("%s|%s|ema|%d", symbol, res, period)

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.emas[key]; ok {
		return cached, nil
	}
	src, ok := e.series[seriesKey(symbol, res)]
	if !ok || src.Len() == 0 {
		return nil, &market.InsufficientDataError{Symbol: symbol, Resolution: res}
	}

	out := &Series{
		Times:  src.CloseTimes(),
		Values: emaValues(src.Closes(), period),
	}
	e.emas[key] = out
	return out, nil
}

// DeviationBands returns center = EMA(period) and upper/lower = center ±
// multiplier × rolling sample deviation of closes over a window of period
// bars (minimum window max(1, period/4)). A NaN or zero deviation is
// replaced by the fallback spread so bands exist wherever the center does.
func (e *Engine) DeviationBands(symbol string, res market.Resolution, period int, multiplier float64) (*BandSeries, error) {
	if period < 1 {
		return nil, fmt.Errorf("deviation band period must be positive, got %d", period)
	}
	key := fmt.Sprintf("%s|%s|devband|%d|%g", symbol, res, period, multiplier)

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.bands[key]; ok {
		return cached, nil
	}
	src, ok := e.series[seriesKey(symbol, res)]
	if !ok || src.Len() == 0 {
		return nil, &market.InsufficientDataError{Symbol: symbol, Resolution: res}
	}

	closes := src.Closes()
	center := emaValues(closes, period)
	spread := rollingDeviation(closes, period)

	upper := make([]float64, len(center))
	lower := make([]float64, len(center))
	for i := range center {
		sp := spread[i]
		if math.IsNaN(sp) || sp == 0 {
			sp = math.Abs(center[i]) * e.fallbackPct
		}
		upper[i] = center[i] + multiplier*sp
		lower[i] = center[i] - multiplier*sp
	}

	out := &BandSeries{
		Times:  src.CloseTimes(),
		Center: center,
		Upper:  upper,
		Lower:  lower,
	}
	e.bands[key] = out
	return out, nil
}

func emaValues(closes []float64, period int) []float64 {
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	for i, c := range closes {
		if i == 0 {
			out[i] = c
			continue
		}
		out[i] = alpha*c + (1-alpha)*out[i-1]
	}
	return out
}

// rollingDeviation computes the trailing sample standard deviation over up
// to period closes. Positions with fewer than max(1, period/4) closes, and
// single-element windows, are NaN.
func rollingDeviation(closes []float64, period int) []float64 {
	minWindow := period / 4
	if minWindow < 1 {
		minWindow = 1
	}

	out := make([]float64, len(closes))
	for i := range closes {
		window := i + 1
		if window > period {
			window = period
		}
		if window < minWindow || window < 2 {
			out[i] = math.NaN()
			continue
		}

		start := i + 1 - window
		mean := 0.0
		for _, c := range closes[start : i+1] {
			mean += c
		}
		mean /= float64(window)

		variance := 0.0
		for _, c := range closes[start : i+1] {
			d := c - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(window-1))
	}
	return out
}
