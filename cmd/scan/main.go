// Command scan runs one strategy over a bar file and prints the signals.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mtf-signal-engine/config"
	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/market"
	"mtf-signal-engine/internal/strategy"
)

// barInput accepts either explicit open/close times or a single timestamp
// interpreted as the bar open; naive inputs are treated as exchange-local.
type barInput struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	OpenTime  *time.Time `json:"open_time,omitempty"`
	CloseTime *time.Time `json:"close_time,omitempty"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Close     float64    `json:"close"`
	Volume    float64    `json:"volume"`
}

func loadBars(path string, base market.Resolution) ([]market.Bar, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadBarsCSV(path, base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}

	var inputs []barInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}

	bars := make([]market.Bar, 0, len(inputs))
	for i, in := range inputs {
		var bar market.Bar
		switch {
		case in.OpenTime != nil && in.CloseTime != nil:
			bar.OpenTime = in.OpenTime.In(market.DefaultLocation)
			bar.CloseTime = in.CloseTime.In(market.DefaultLocation)
		case in.Timestamp != nil:
			bar.OpenTime = in.Timestamp.In(market.DefaultLocation)
			bar.CloseTime = bar.OpenTime.Add(base.Duration())
		default:
			return nil, fmt.Errorf("bar %d: missing timestamp", i)
		}
		bar.Open = in.Open
		bar.High = in.High
		bar.Low = in.Low
		bar.Close = in.Close
		bar.Volume = in.Volume
		bars = append(bars, bar)
	}
	return bars, nil
}

// loadBarsCSV reads timestamp,open,high,low,close,volume rows. The timestamp
// is the bar open in RFC 3339 or "2006-01-02 15:04:05" exchange-local form.
func loadBarsCSV(path string, base market.Resolution) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse bars csv: %w", err)
	}

	var bars []market.Bar
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "timestamp") {
			continue // header row
		}
		if len(rec) != 6 {
			return nil, fmt.Errorf("bar row %d: want 6 columns, got %d", i+1, len(rec))
		}
		open, err := parseCSVTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("bar row %d: %w", i+1, err)
		}

		fields := make([]float64, 5)
		for j, raw := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("bar row %d: bad number %q", i+1, raw)
			}
			fields[j] = v
		}
		bars = append(bars, market.Bar{
			OpenTime:  open,
			CloseTime: open.Add(base.Duration()),
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return bars, nil
}

func parseCSVTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(market.DefaultLocation), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, market.DefaultLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", raw)
	}
	return t, nil
}

func main() {
	var (
		strategyPath = flag.String("strategy", "", "strategy spec JSON file")
		barsPath     = flag.String("bars", "", "price bars JSON or CSV file")
		configPath   = flag.String("config", "", "optional config JSON file")
	)
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if *strategyPath == "" || *barsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -strategy strategy.json -bars bars.json")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	spec, err := strategy.LoadSpec(*strategyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load strategy")
	}
	base, err := market.NormalizeResolution(spec.Timeframe)
	if err != nil {
		log.Fatal().Err(err).Msg("bad strategy timeframe")
	}
	bars, err := loadBars(*barsPath, base)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bars")
	}

	generator := engine.NewGenerator(cfg.Engine, log.With().Str("component", "engine").Logger())
	signals, err := generator.Scan(bars, spec)
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}

	out, err := json.MarshalIndent(signals, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode signals")
	}
	fmt.Println(string(out))
}
