package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/market"
	"mtf-signal-engine/internal/strategy"
)

func testServer() *Server {
	gen := engine.NewGenerator(engine.Config{}, zerolog.Nop())
	return NewServer(Config{Port: 0, RateLimit: 1000}, gen, nil, nil, zerolog.Nop())
}

func inlineBars(n int) []market.Bar {
	open := time.Date(2024, 3, 4, 9, 30, 0, 0, market.DefaultLocation)
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		bars = append(bars, market.Bar{
			OpenTime:  open,
			CloseTime: open.Add(5 * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		})
		open = open.Add(5 * time.Minute)
	}
	return bars
}

func TestHandleHealth(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestHandleScanInlineBars(t *testing.T) {
	s := testServer()

	body, _ := json.Marshal(ScanRequest{
		Strategy: strategy.Spec{
			Symbol:    "AAPL",
			Timeframe: "5min",
			ExitConditions: []strategy.ConditionSpec{
				{Condition: "Close_5min > EMA9_5min", Direction: strategy.DirectionLong},
			},
		},
		Bars: inlineBars(30),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp ScanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("response should carry a run ID")
	}
	if resp.Bars != 30 {
		t.Errorf("bars = %d, want 30", resp.Bars)
	}
	// Rising closes sit above the EMA from the second bar on.
	if len(resp.Signals) == 0 {
		t.Error("expected exit signals for rising closes")
	}
}

func TestHandleScanSpecError(t *testing.T) {
	s := testServer()

	body, _ := json.Marshal(ScanRequest{
		Strategy: strategy.Spec{
			Symbol:    "AAPL",
			Timeframe: "5min",
			ExitConditions: []strategy.ConditionSpec{
				{Condition: "Bogus_5min > 1", Direction: strategy.DirectionLong},
			},
		},
		Bars: inlineBars(10),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("spec error status = %d, want 400", w.Code)
	}
}

func TestHandleSaveBarsNoStore(t *testing.T) {
	s := testServer()

	body, _ := json.Marshal(SaveBarsRequest{Symbol: "AAPL", Resolution: "5min", Bars: inlineBars(3)})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bars", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a bar store", w.Code)
	}
}

func TestHandleScanNoBarsNoStore(t *testing.T) {
	s := testServer()

	body, _ := json.Marshal(ScanRequest{
		Strategy: strategy.Spec{
			Symbol:    "AAPL",
			Timeframe: "5min",
			ExitConditions: []strategy.ConditionSpec{
				{Condition: "Close_5min > 0", Direction: strategy.DirectionLong},
			},
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when no bars and no store", w.Code)
	}
}
