// Package market defines price bars, canonical resolutions, and the
// multi-resolution aggregation used by the signal engine.
package market

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV candle. Bars are keyed by CloseTime throughout the
// engine: a bar's values become visible exactly when the bar completes.
type Bar struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series holds the ordered bars for one (symbol, resolution) pair.
// A Series is never mutated after it is built; aggregation always
// produces a new Series.
type Series struct {
	Symbol     string
	Resolution Resolution
	Bars       []Bar
}

// NewSeries builds a Series from bars already sorted by CloseTime ascending.
func NewSeries(symbol string, resolution Resolution, bars []Bar) *Series {
	return &Series{
		Symbol:     symbol,
		Resolution: resolution,
		Bars:       bars,
	}
}

// Len returns the number of bars in the series.
func (s *Series) Len() int {
	return len(s.Bars)
}

// CloseTimes returns the close timestamps of all bars.
func (s *Series) CloseTimes() []time.Time {
	times := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		times[i] = b.CloseTime
	}
	return times
}

// Opens returns the open prices of all bars.
func (s *Series) Opens() []float64 {
	vals := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		vals[i] = b.Open
	}
	return vals
}

// Highs returns the high prices of all bars.
func (s *Series) Highs() []float64 {
	vals := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		vals[i] = b.High
	}
	return vals
}

// Lows returns the low prices of all bars.
func (s *Series) Lows() []float64 {
	vals := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		vals[i] = b.Low
	}
	return vals
}

// Closes returns the close prices of all bars.
func (s *Series) Closes() []float64 {
	vals := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		vals[i] = b.Close
	}
	return vals
}

// Volumes returns the volumes of all bars.
func (s *Series) Volumes() []float64 {
	vals := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		vals[i] = b.Volume
	}
	return vals
}

// InsufficientDataError is returned when a resolution view cannot be built
// because the underlying history is empty or too short.
type InsufficientDataError struct {
	Symbol     string
	Resolution Resolution
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s at resolution %s", e.Symbol, e.Resolution)
}
