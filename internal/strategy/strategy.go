// Package strategy defines the JSON strategy specification and compiles it
// into the form the signal engine scans with.
package strategy

import (
	"encoding/json"
	"fmt"
	"os"

	"mtf-signal-engine/internal/condition"
	"mtf-signal-engine/internal/market"
)

// Directions a rule can trade.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// TimeFilterSpec bounds rule evaluation to a time-of-day window.
type TimeFilterSpec struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// ConditionSpec is one entry or exit rule.
type ConditionSpec struct {
	Condition  string          `json:"condition"`
	Direction  string          `json:"direction"`
	TimeFilter *TimeFilterSpec `json:"time_filter,omitempty"`
}

// Spec is the JSON-shaped strategy specification handed to the engine.
type Spec struct {
	Symbol          string          `json:"symbol"`
	Timeframe       string          `json:"timeframe"`
	EntryConditions []ConditionSpec `json:"entry_conditions"`
	ExitConditions  []ConditionSpec `json:"exit_conditions"`
}

// ParseSpec decodes a strategy specification from JSON.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse strategy spec: %w", err)
	}
	return &spec, nil
}

// LoadSpec reads a strategy specification from a file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy spec: %w", err)
	}
	return ParseSpec(data)
}

// Rule is a compiled entry or exit rule.
type Rule struct {
	Source    string
	Direction string
	Cond      *condition.Condition
	Filter    *condition.TimeFilter // nil when unfiltered; exits never carry one
}

// Compiled is a strategy ready to scan: every expression parsed, every time
// filter validated, resolutions collected. Compilation is the fail-fast
// boundary for specification errors.
type Compiled struct {
	Symbol      string
	Base        market.Resolution
	Entries     []Rule
	Exits       []Rule
	Resolutions []market.Resolution // distinct token resolutions, finest first

	// MultiTimeframe is false when no token references a resolution other
	// than the base; such strategies can scan without aggregation.
	MultiTimeframe bool
}

// Compile validates and compiles a strategy specification.
func Compile(spec *Spec) (*Compiled, error) {
	if spec.Symbol == "" {
		return nil, fmt.Errorf("strategy: symbol is required")
	}
	base, err := market.NormalizeResolution(spec.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", spec.Symbol, err)
	}
	if len(spec.EntryConditions) == 0 && len(spec.ExitConditions) == 0 {
		return nil, fmt.Errorf("strategy %s: no conditions", spec.Symbol)
	}

	out := &Compiled{Symbol: spec.Symbol, Base: base}
	seen := map[market.Resolution]bool{}

	compileRule := func(cs ConditionSpec, withFilter bool) (Rule, error) {
		if cs.Direction != DirectionLong && cs.Direction != DirectionShort {
			return Rule{}, fmt.Errorf("strategy %s: bad direction %q", spec.Symbol, cs.Direction)
		}
		cond, err := condition.Compile(cs.Condition)
		if err != nil {
			return Rule{}, fmt.Errorf("strategy %s: %w", spec.Symbol, err)
		}
		rule := Rule{Source: cs.Condition, Direction: cs.Direction, Cond: cond}
		if withFilter && cs.TimeFilter != nil {
			rule.Filter, err = condition.NewTimeFilter(cs.TimeFilter.Start, cs.TimeFilter.End, cs.TimeFilter.Timezone)
			if err != nil {
				return Rule{}, fmt.Errorf("strategy %s: %w", spec.Symbol, err)
			}
		}
		for _, tok := range cond.Tokens() {
			// A resolution finer than the base cannot be derived from the
			// base history; that is a specification error, not a warm-up gap.
			if base.Coarser(tok.Resolution) {
				return Rule{}, fmt.Errorf("strategy %s: token %s is finer than base timeframe %s", spec.Symbol, tok.Raw, base)
			}
			seen[tok.Resolution] = true
		}
		return rule, nil
	}

	for _, cs := range spec.EntryConditions {
		rule, err := compileRule(cs, true)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, rule)
	}
	for _, cs := range spec.ExitConditions {
		// Exit rules deliberately ignore any time filter in the spec:
		// an open position must be closable at any hour.
		rule, err := compileRule(cs, false)
		if err != nil {
			return nil, err
		}
		out.Exits = append(out.Exits, rule)
	}

	for _, res := range market.Resolutions {
		if seen[res] {
			out.Resolutions = append(out.Resolutions, res)
			if res != base {
				out.MultiTimeframe = true
			}
		}
	}
	return out, nil
}
