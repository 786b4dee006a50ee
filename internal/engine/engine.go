// Package engine drives the bar-by-bar scan that turns a price history and
// a strategy specification into entry/exit signals.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mtf-signal-engine/internal/align"
	"mtf-signal-engine/internal/indicator"
	"mtf-signal-engine/internal/market"
	"mtf-signal-engine/internal/strategy"
	"mtf-signal-engine/internal/token"
)

// Config carries the engine policy knobs.
type Config struct {
	// BandFallbackPct substitutes for a NaN/zero deviation-band spread, as
	// a fraction of the band center. Zero selects the package default.
	BandFallbackPct float64

	// DefaultShares is the fixed lot size stamped on every signal.
	DefaultShares int

	// Higher-timeframe trend confirmation required by every entry rule.
	ConfirmTimeframe  string
	ConfirmFastPeriod int
	ConfirmSlowPeriod int
}

func (c Config) withDefaults() Config {
	if c.DefaultShares <= 0 {
		c.DefaultShares = 100
	}
	if c.ConfirmTimeframe == "" {
		c.ConfirmTimeframe = "1h"
	}
	if c.ConfirmFastPeriod <= 0 {
		c.ConfirmFastPeriod = 9
	}
	if c.ConfirmSlowPeriod <= 0 {
		c.ConfirmSlowPeriod = 20
	}
	return c
}

// Generator runs strategy scans. It is stateless across bars and across
// runs: each Scan owns its aggregates and indicator cache.
type Generator struct {
	cfg Config
	log zerolog.Logger
}

// NewGenerator creates a signal generator.
func NewGenerator(cfg Config, log zerolog.Logger) *Generator {
	return &Generator{cfg: cfg.withDefaults(), log: log}
}

// Scan compiles the strategy specification and scans the base history.
// Specification errors fail here before any bar is touched.
func (g *Generator) Scan(bars []market.Bar, spec *strategy.Spec) ([]Signal, error) {
	compiled, err := strategy.Compile(spec)
	if err != nil {
		return nil, err
	}
	return g.ScanCompiled(bars, compiled)
}

// ScanCompiled scans a base history with an already-compiled strategy.
func (g *Generator) ScanCompiled(bars []market.Bar, compiled *strategy.Compiled) ([]Signal, error) {
	if len(bars) == 0 {
		return nil, &market.InsufficientDataError{Symbol: compiled.Symbol, Resolution: compiled.Base}
	}

	confirmRes, err := market.NormalizeResolution(g.cfg.ConfirmTimeframe)
	if err != nil {
		return nil, fmt.Errorf("confirm timeframe: %w", err)
	}
	// The confirmation timeframe cannot be derived from coarser bars, so a
	// base beyond it confirms against the base series itself, matching the
	// aggregator's finer-or-equal no-op rule.
	if compiled.Base.Coarser(confirmRes) {
		confirmRes = compiled.Base
	}

	base := market.NewSeries(compiled.Symbol, compiled.Base, bars)
	ind := indicator.NewEngine(g.cfg.BandFallbackPct)
	ind.Register(base)

	needed := map[market.Resolution]bool{}
	for _, res := range compiled.Resolutions {
		if res != compiled.Base {
			needed[res] = true
		}
	}
	if len(compiled.Entries) > 0 && confirmRes != compiled.Base {
		needed[confirmRes] = true
	}

	// Non-MTF strategies scan the base series alone; everything else
	// aggregates each referenced resolution once, up front.
	for res := range needed {
		view, err := market.Aggregate(base, res)
		if err != nil {
			return nil, err
		}
		ind.Register(view)
	}

	if err := g.warmUp(ind, compiled, confirmRes); err != nil {
		return nil, err
	}

	res := newResolver(ind, compiled.Symbol, compiled.Base)

	confirm := noConfirm
	if len(compiled.Entries) > 0 {
		confirm, err = g.trendConfirm(ind, compiled.Symbol, confirmRes)
		if err != nil {
			return nil, err
		}
	}

	signals := []Signal{}
	for i, bar := range bars {
		res.cursor = i
		t := bar.CloseTime

		for _, rule := range compiled.Entries {
			if rule.Filter != nil && !rule.Filter.Contains(t) {
				continue
			}
			if !confirm(rule.Direction, t) {
				continue
			}
			if !g.evalRule(rule, res, t) {
				continue
			}
			signals = append(signals, Signal{
				Timestamp: t,
				Type:      SignalEntry,
				Price:     bar.Close,
				Shares:    g.cfg.DefaultShares,
				Reason:    fmt.Sprintf("%s entry: %s", rule.Direction, rule.Source),
				Direction: rule.Direction,
			})
		}

		for _, rule := range compiled.Exits {
			if !g.evalRule(rule, res, t) {
				continue
			}
			signals = append(signals, Signal{
				Timestamp: t,
				Type:      SignalExit,
				Price:     bar.Close,
				Shares:    g.cfg.DefaultShares,
				Reason:    fmt.Sprintf("%s exit: %s", rule.Direction, rule.Source),
				Direction: rule.Direction,
			})
		}
	}
	return signals, nil
}

// evalRule evaluates one rule at one bar. A panic here is an isolated
// failure: it is logged and the bar simply produces no signal.
func (g *Generator) evalRule(rule strategy.Rule, res *resolver, t time.Time) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			g.log.Warn().
				Str("symbol", res.symbol).
				Time("bar", t).
				Str("condition", rule.Source).
				Interface("panic", r).
				Msg("condition evaluation failed, treating as no signal")
		}
	}()
	return rule.Cond.Eval(res, t)
}

// warmUp precomputes every indicator series the scan will touch. The
// computations are independent and read-only once memoized, so they run
// concurrently; the scan itself stays strictly sequential.
func (g *Generator) warmUp(ind *indicator.Engine, compiled *strategy.Compiled, confirmRes market.Resolution) error {
	type job func() error
	var jobs []job

	addToken := func(tok token.Token) {
		switch tok.Category {
		case token.CategoryEMA:
			jobs = append(jobs, func() error {
				_, err := ind.EMA(compiled.Symbol, tok.Resolution, tok.Period)
				return err
			})
		case token.CategoryDevBand:
			jobs = append(jobs, func() error {
				_, err := ind.DeviationBands(compiled.Symbol, tok.Resolution, tok.Period, tok.Multiplier)
				return err
			})
		}
	}
	for _, rule := range compiled.Entries {
		for _, tok := range rule.Cond.Tokens() {
			addToken(tok)
		}
	}
	for _, rule := range compiled.Exits {
		for _, tok := range rule.Cond.Tokens() {
			addToken(tok)
		}
	}
	if len(compiled.Entries) > 0 {
		for _, period := range []int{g.cfg.ConfirmFastPeriod, g.cfg.ConfirmSlowPeriod} {
			p := period
			jobs = append(jobs, func() error {
				_, err := ind.EMA(compiled.Symbol, confirmRes, p)
				return err
			})
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(jobs))
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := j(); err != nil {
				errCh <- err
			}
		}(j)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

// confirmFunc checks the mandatory higher-timeframe trend gate.
type confirmFunc func(direction string, t time.Time) bool

func noConfirm(string, time.Time) bool { return true }

// trendConfirm builds the implicit entry gate: the confirmation timeframe's
// fast EMA must sit on the right side of the slow EMA for the rule's
// direction. Undefined values fail the gate.
func (g *Generator) trendConfirm(ind *indicator.Engine, symbol string, confirmRes market.Resolution) (confirmFunc, error) {
	fast, err := ind.EMA(symbol, confirmRes, g.cfg.ConfirmFastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := ind.EMA(symbol, confirmRes, g.cfg.ConfirmSlowPeriod)
	if err != nil {
		return nil, err
	}

	return func(direction string, t time.Time) bool {
		f, ok := asOf(fast, t)
		if !ok {
			return false
		}
		s, ok := asOf(slow, t)
		if !ok {
			return false
		}
		if direction == strategy.DirectionShort {
			return f < s
		}
		return f > s
	}, nil
}

func asOf(s *indicator.Series, t time.Time) (float64, bool) {
	return align.AsOf(s.Times, s.Values, t)
}
