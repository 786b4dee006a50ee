package market

import (
	"testing"
	"time"
)

// fiveMinBars builds a run of consecutive 5-minute bars starting at the given
// wall-clock time in the exchange timezone. Close prices count up from base.
func fiveMinBars(t *testing.T, day time.Time, startHour, startMin, count int, base float64) []Bar {
	t.Helper()
	bars := make([]Bar, 0, count)
	open := time.Date(day.Year(), day.Month(), day.Day(), startHour, startMin, 0, 0, DefaultLocation)
	for i := 0; i < count; i++ {
		price := base + float64(i)
		bars = append(bars, Bar{
			OpenTime:  open,
			CloseTime: open.Add(5 * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    100,
		})
		open = open.Add(5 * time.Minute)
	}
	return bars
}

func TestAggregateHourlyRules(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, DefaultLocation)
	// 09:30 through 11:30, so the 10:00-11:00 bucket is fully covered.
	bars := fiveMinBars(t, day, 9, 30, 24, 100)
	base := NewSeries("AAPL", Res5Min, bars)

	hourly, err := Aggregate(base, Res1H)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	// Buckets: (09:30,10:00], (10:00,11:00], (11:00,12:00] partial (dropped).
	if hourly.Len() != 2 {
		t.Fatalf("Expected 2 hourly bars, got %d", hourly.Len())
	}

	first := hourly.Bars[0]
	wantClose := time.Date(2024, 3, 4, 10, 0, 0, 0, DefaultLocation)
	if !first.CloseTime.Equal(wantClose) {
		t.Errorf("First hourly close = %v, want %v", first.CloseTime, wantClose)
	}
	if first.Open != 100 {
		t.Errorf("open=first violated: got %f, want 100", first.Open)
	}
	// 6 constituents 09:30-10:00 with closes 100.5..105.5, highs 101..106.
	if first.Close != 105.5 {
		t.Errorf("close=last violated: got %f, want 105.5", first.Close)
	}
	if first.High != 106 {
		t.Errorf("high=max violated: got %f, want 106", first.High)
	}
	if first.Low != 99 {
		t.Errorf("low=min violated: got %f, want 99", first.Low)
	}
	if first.Volume != 600 {
		t.Errorf("volume=sum violated: got %f, want 600", first.Volume)
	}

	second := hourly.Bars[1]
	wantClose = time.Date(2024, 3, 4, 11, 0, 0, 0, DefaultLocation)
	if !second.CloseTime.Equal(wantClose) {
		t.Errorf("Second hourly close = %v, want %v", second.CloseTime, wantClose)
	}
	if second.Volume != 1200 {
		t.Errorf("Second hourly volume = %f, want 1200", second.Volume)
	}
}

// TestAggregatePartialBucketInvisible checks that the forming tail bucket is
// not emitted, so appending newer data can never rewrite an earlier value.
func TestAggregatePartialBucketInvisible(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, DefaultLocation)
	short := NewSeries("AAPL", Res5Min, fiveMinBars(t, day, 10, 0, 4, 100)) // closes 10:05..10:20
	longer := NewSeries("AAPL", Res5Min, fiveMinBars(t, day, 10, 0, 12, 100))

	if _, err := Aggregate(short, Res1H); err == nil {
		t.Fatal("Aggregate should fail when no bucket is fully covered")
	}

	hourly, err := Aggregate(longer, Res1H)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if hourly.Len() != 1 {
		t.Fatalf("Expected exactly 1 complete hourly bar, got %d", hourly.Len())
	}
	want := time.Date(2024, 3, 4, 11, 0, 0, 0, DefaultLocation)
	if !hourly.Bars[0].CloseTime.Equal(want) {
		t.Errorf("Hourly close = %v, want %v", hourly.Bars[0].CloseTime, want)
	}
}

// TestAggregateDailySessionFilter checks that pre/after-market bars never
// reach the daily aggregate.
func TestAggregateDailySessionFilter(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, DefaultLocation)
	var bars []Bar
	bars = append(bars, fiveMinBars(t, day, 8, 0, 6, 500)...)   // pre-market, closes 08:05-08:30
	bars = append(bars, fiveMinBars(t, day, 9, 30, 78, 100)...) // full session, closes 09:35-16:00
	bars = append(bars, fiveMinBars(t, day, 16, 30, 4, 900)...) // after-hours

	daily, err := Aggregate(NewSeries("AAPL", Res5Min, bars), Res1D)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if daily.Len() != 1 {
		t.Fatalf("Expected 1 daily bar, got %d", daily.Len())
	}

	d := daily.Bars[0]
	if d.Open != 100 {
		t.Errorf("Daily open = %f, want session open 100 (pre-market leaked in)", d.Open)
	}
	// Session closes run 100.5..177.5; after-hours would push this to 903.5.
	if d.Close != 177.5 {
		t.Errorf("Daily close = %f, want 177.5 (after-hours leaked in)", d.Close)
	}
	if d.High != 178 {
		t.Errorf("Daily high = %f, want 178", d.High)
	}
	want := time.Date(2024, 3, 4, 16, 0, 0, 0, DefaultLocation)
	if !d.CloseTime.Equal(want) {
		t.Errorf("Daily close time = %v, want %v", d.CloseTime, want)
	}
}

func TestAggregateFinerTargetIsNoOp(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, DefaultLocation)
	base := NewSeries("AAPL", Res5Min, fiveMinBars(t, day, 9, 30, 6, 100))

	same, err := Aggregate(base, Res5Min)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if same != base {
		t.Error("Equal-resolution aggregation should return the input series")
	}

	finer, err := Aggregate(base, Res1Min)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if finer != base {
		t.Error("Finer-target aggregation should return the input series")
	}
}

func TestAggregateEmptySeries(t *testing.T) {
	_, err := Aggregate(NewSeries("AAPL", Res5Min, nil), Res1H)
	if err == nil {
		t.Fatal("Aggregate of empty series should fail")
	}
	if _, ok := err.(*InsufficientDataError); !ok {
		t.Errorf("Expected *InsufficientDataError, got %T", err)
	}
}
