package condition

import (
	"testing"
	"time"

	"mtf-signal-engine/internal/token"
)

// mapResolver resolves tokens from a fixed key->value map; absent keys are
// undefined.
type mapResolver map[string]float64

func (m mapResolver) Resolve(tok token.Token, at time.Time) (float64, bool) {
	v, ok := m[tok.Raw]
	return v, ok
}

var evalTime = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestCompileAndEvalComparison(t *testing.T) {
	cond, err := Compile("Close_5min > EMA9_5min")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(cond.Tokens()) != 2 {
		t.Fatalf("Expected 2 tokens, got %d", len(cond.Tokens()))
	}

	r := mapResolver{"Close_5min": 101, "EMA9_5min": 100}
	if !cond.Eval(r, evalTime) {
		t.Error("101 > 100 should be true")
	}

	r["Close_5min"] = 99
	if cond.Eval(r, evalTime) {
		t.Error("99 > 100 should be false")
	}
}

func TestEvalLogicalOperators(t *testing.T) {
	cond, err := Compile("Close_5min > 100 AND (Volume_5min >= 500 OR NOT EMA9_5min < 50)")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	r := mapResolver{"Close_5min": 101, "Volume_5min": 100, "EMA9_5min": 60}
	if !cond.Eval(r, evalTime) {
		t.Error("Expected true: NOT (60 < 50) satisfies the OR")
	}

	r["EMA9_5min"] = 40
	if cond.Eval(r, evalTime) {
		t.Error("Expected false: volume too low and EMA below 50")
	}

	r["Volume_5min"] = 500
	if !cond.Eval(r, evalTime) {
		t.Error("Expected true: volume exactly at threshold")
	}
}

func TestEvalCaseInsensitiveKeywords(t *testing.T) {
	cond, err := Compile("Close_5min > 1 and Close_5min < 3 or not Close_5min == 2")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !cond.Eval(mapResolver{"Close_5min": 2}, evalTime) {
		t.Error("Expected true via the AND branch")
	}
}

// TestEvalFailClosed: one undefined operand makes the whole condition false,
// even when another branch alone would be true.
func TestEvalFailClosed(t *testing.T) {
	cond, err := Compile("Close_5min > 0 OR EMA200_1h > 0")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// EMA200_1h undefined: the OR must NOT short-circuit to true.
	r := mapResolver{"Close_5min": 100}
	if cond.Eval(r, evalTime) {
		t.Error("Condition with an undefined token must be false (fail-closed)")
	}

	r["EMA200_1h"] = 1
	if !cond.Eval(r, evalTime) {
		t.Error("Fully resolved condition should be true")
	}
}

func TestCompileRejectsUnknownToken(t *testing.T) {
	_, err := Compile("RSI14_5min > 70")
	if err == nil {
		t.Fatal("Compile should reject unknown tokens at load time")
	}
}

func TestCompileRejectsSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		"Close_5min >",
		"Close_5min",
		"> 100",
		"(Close_5min > 100",
		"Close_5min > 100 AND",
		"Close_5min = 100",
		"Close_5min > 100 hello",
	} {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) should fail", src)
		}
	}
}

func TestCompileDeduplicatesTokens(t *testing.T) {
	cond, err := Compile("EMA9_60min > 0 AND EMA9_1h < 999999")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	// 60min normalizes to 1h, so there is only one distinct leaf.
	if len(cond.Tokens()) != 1 {
		t.Errorf("Expected 1 distinct token, got %d", len(cond.Tokens()))
	}
}

func TestTimeFilterHalfOpen(t *testing.T) {
	f, err := NewTimeFilter("08:00", "13:00", "America/New_York")
	if err != nil {
		t.Fatalf("NewTimeFilter failed: %v", err)
	}

	ny, _ := time.LoadLocation("America/New_York")
	at := func(h, m int) time.Time {
		return time.Date(2024, 3, 4, h, m, 0, 0, ny)
	}

	if !f.Contains(at(8, 0)) {
		t.Error("Timestamp exactly at start must be included")
	}
	if f.Contains(at(13, 0)) {
		t.Error("Timestamp exactly at end must be excluded")
	}
	if !f.Contains(at(12, 59)) {
		t.Error("12:59 should be inside [08:00, 13:00)")
	}
	if f.Contains(at(7, 59)) {
		t.Error("07:59 should be outside the window")
	}
}

func TestTimeFilterTimezoneConversion(t *testing.T) {
	f, err := NewTimeFilter("09:30", "16:00", "America/New_York")
	if err != nil {
		t.Fatalf("NewTimeFilter failed: %v", err)
	}

	// 15:00 UTC on 2024-03-04 is 10:00 in New York (EST).
	utc := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	if !f.Contains(utc) {
		t.Error("15:00 UTC should convert to 10:00 ET, inside the window")
	}

	// 02:00 UTC is 21:00 ET the previous evening.
	if f.Contains(time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)) {
		t.Error("02:00 UTC (21:00 ET) should be outside the window")
	}
}

func TestTimeFilterOvernightWindow(t *testing.T) {
	f, err := NewTimeFilter("20:00", "04:00", "UTC")
	if err != nil {
		t.Fatalf("NewTimeFilter failed: %v", err)
	}
	if !f.Contains(time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)) {
		t.Error("22:00 should be inside an overnight 20:00-04:00 window")
	}
	if !f.Contains(time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)) {
		t.Error("03:00 should be inside an overnight 20:00-04:00 window")
	}
	if f.Contains(time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC)) {
		t.Error("04:00 exactly at end must be excluded")
	}
	if f.Contains(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)) {
		t.Error("12:00 should be outside an overnight window")
	}
}

func TestTimeFilterRejectsBadInput(t *testing.T) {
	cases := [][3]string{
		{"8am", "13:00", ""},
		{"08:00", "25:00", ""},
		{"08:00", "13:61", ""},
		{"08:00", "13:00", "Mars/Olympus"},
	}
	for _, c := range cases {
		if _, err := NewTimeFilter(c[0], c[1], c[2]); err == nil {
			t.Errorf("NewTimeFilter(%q, %q, %q) should fail", c[0], c[1], c[2])
		}
	}
}
