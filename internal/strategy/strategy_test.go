package strategy

import (
	"testing"

	"mtf-signal-engine/internal/market"
)

func validSpec() *Spec {
	return &Spec{
		Symbol:    "AAPL",
		Timeframe: "5min",
		EntryConditions: []ConditionSpec{
			{
				Condition: "EMA9_5min > EMA20_5min AND Close_1h > EMA20_1h",
				Direction: DirectionLong,
				TimeFilter: &TimeFilterSpec{
					Start:    "08:00",
					End:      "13:00",
					Timezone: "America/New_York",
				},
			},
		},
		ExitConditions: []ConditionSpec{
			{Condition: "EMA9_5min < EMA20_5min", Direction: DirectionLong},
		},
	}
}

func TestCompileSpec(t *testing.T) {
	compiled, err := Compile(validSpec())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if compiled.Base != market.Res5Min {
		t.Errorf("Base = %s, want 5min", compiled.Base)
	}
	if len(compiled.Entries) != 1 || len(compiled.Exits) != 1 {
		t.Fatalf("Expected 1 entry and 1 exit, got %d/%d", len(compiled.Entries), len(compiled.Exits))
	}
	if compiled.Entries[0].Filter == nil {
		t.Error("Entry time filter should be compiled")
	}
	if !compiled.MultiTimeframe {
		t.Error("Strategy referencing 1h tokens should be multi-timeframe")
	}
	if len(compiled.Resolutions) != 2 {
		t.Errorf("Resolutions = %v, want [5min 1h]", compiled.Resolutions)
	}
}

func TestCompileNonMTFClassification(t *testing.T) {
	spec := &Spec{
		Symbol:    "AAPL",
		Timeframe: "5min",
		EntryConditions: []ConditionSpec{
			{Condition: "EMA9_5min > EMA20_5min", Direction: DirectionLong},
		},
	}
	compiled, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if compiled.MultiTimeframe {
		t.Error("Base-only strategy should be classified non-MTF")
	}
}

func TestCompileExitIgnoresTimeFilter(t *testing.T) {
	spec := validSpec()
	spec.ExitConditions[0].TimeFilter = &TimeFilterSpec{Start: "09:00", End: "10:00"}

	compiled, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if compiled.Exits[0].Filter != nil {
		t.Error("Exit rules must not carry a time filter")
	}
}

func TestCompileFailsFast(t *testing.T) {
	bad := func(mutate func(*Spec)) *Spec {
		spec := validSpec()
		mutate(spec)
		return spec
	}

	cases := map[string]*Spec{
		"missing symbol":    bad(func(s *Spec) { s.Symbol = "" }),
		"bad timeframe":     bad(func(s *Spec) { s.Timeframe = "7min" }),
		"no conditions":     bad(func(s *Spec) { s.EntryConditions = nil; s.ExitConditions = nil }),
		"unknown token":     bad(func(s *Spec) { s.EntryConditions[0].Condition = "RSI14_5min > 70" }),
		"bad direction":     bad(func(s *Spec) { s.EntryConditions[0].Direction = "sideways" }),
		"bad filter bounds": bad(func(s *Spec) { s.EntryConditions[0].TimeFilter.End = "26:00" }),
		"token finer than base": bad(func(s *Spec) {
			s.Timeframe = "1h"
			s.EntryConditions[0].Condition = "Close_5min > 100"
		}),
	}

	for name, spec := range cases {
		if _, err := Compile(spec); err == nil {
			t.Errorf("Compile should fail for %s", name)
		}
	}
}

func TestParseSpecJSON(t *testing.T) {
	data := []byte(`{
		"symbol": "TSLA",
		"timeframe": "5min",
		"entry_conditions": [
			{"condition": "Close_5min > EMA9_1h", "direction": "long",
			 "time_filter": {"start": "09:30", "end": "12:00", "timezone": "America/New_York"}}
		],
		"exit_conditions": [
			{"condition": "Close_5min < EMA9_1h", "direction": "long"}
		]
	}`)

	spec, err := ParseSpec(data)
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if spec.Symbol != "TSLA" || len(spec.EntryConditions) != 1 {
		t.Errorf("Unexpected spec: %+v", spec)
	}
	if _, err := Compile(spec); err != nil {
		t.Errorf("Compile of parsed spec failed: %v", err)
	}
}
