package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/market"
	"mtf-signal-engine/internal/strategy"
)

// ScanRequest carries a strategy plus either inline bars or a time range to
// load from the configured store.
type ScanRequest struct {
	Strategy strategy.Spec `json:"strategy"`
	Bars     []market.Bar  `json:"bars,omitempty"`
	Start    *time.Time    `json:"start,omitempty"`
	End      *time.Time    `json:"end,omitempty"`
}

// ScanResponse is the scan result envelope.
type ScanResponse struct {
	RunID   string          `json:"run_id"`
	Symbol  string          `json:"symbol"`
	Bars    int             `json:"bars"`
	Signals []engine.Signal `json:"signals"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// SaveBarsRequest uploads price history into the bar store.
type SaveBarsRequest struct {
	Symbol     string       `json:"symbol"`
	Resolution string       `json:"resolution"`
	Bars       []market.Bar `json:"bars"`
}

func (s *Server) handleSaveBars(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no bar store configured"})
		return
	}

	var req SaveBarsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Symbol == "" || len(req.Bars) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and bars are required"})
		return
	}
	res, err := market.NormalizeResolution(req.Resolution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i := range req.Bars {
		req.Bars[i].OpenTime = req.Bars[i].OpenTime.In(market.DefaultLocation)
		req.Bars[i].CloseTime = req.Bars[i].CloseTime.In(market.DefaultLocation)
	}
	if err := s.store.SaveBars(c.Request.Context(), req.Symbol, res, req.Bars); err != nil {
		s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("bar upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save bars"})
		return
	}

	s.log.Info().Str("symbol", req.Symbol).Str("resolution", string(res)).Int("bars", len(req.Bars)).Msg("bars saved")
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "resolution": string(res), "saved": len(req.Bars)})
}

func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	runID := uuid.New()
	log := s.log.With().Str("run_id", runID.String()).Str("symbol", req.Strategy.Symbol).Logger()

	bars := req.Bars
	if len(bars) == 0 {
		if s.provider == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no bars provided and no bar store configured"})
			return
		}
		if req.Start == nil || req.End == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start and end are required when bars are omitted"})
			return
		}
		res, err := market.NormalizeResolution(req.Strategy.Timeframe)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		loaded, err := s.provider.History(c.Request.Context(), req.Strategy.Symbol, res, *req.Start, *req.End)
		if err != nil {
			log.Error().Err(err).Msg("bar history load failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load price history"})
			return
		}
		bars = loaded
	} else {
		for i := range bars {
			bars[i].OpenTime = bars[i].OpenTime.In(market.DefaultLocation)
			bars[i].CloseTime = bars[i].CloseTime.In(market.DefaultLocation)
		}
	}

	signals, err := s.generator.Scan(bars, &req.Strategy)
	if err != nil {
		switch err.(type) {
		case *market.InsufficientDataError:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			// Specification errors: unknown token, malformed resolution,
			// bad filter.
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	if s.store != nil && len(signals) > 0 {
		if err := s.store.SaveSignals(c.Request.Context(), runID, req.Strategy.Symbol, signals); err != nil {
			log.Error().Err(err).Msg("failed to persist signals")
		}
	}

	log.Info().Int("bars", len(bars)).Int("signals", len(signals)).Msg("scan complete")
	c.JSON(http.StatusOK, ScanResponse{
		RunID:   runID.String(),
		Symbol:  req.Strategy.Symbol,
		Bars:    len(bars),
		Signals: signals,
	})
}
