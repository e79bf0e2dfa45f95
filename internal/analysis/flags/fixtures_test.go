package flags

import (
	"testing"
	"time"

	"flag-scanner/internal/models"
)

// bar is a compact candle row used to build fixtures.
type bar struct {
	low, high, open, close float64
	volume                 int64
}

var fixtureStart = time.Date(2025, 11, 17, 10, 0, 0, 0, time.UTC)

func buildCandles(rows []bar) []models.Candle {
	candles := make([]models.Candle, len(rows))
	for i, r := range rows {
		candles[i] = models.Candle{
			Timestamp: fixtureStart.Add(time.Duration(i) * time.Hour),
			Open:      r.open,
			High:      r.high,
			Low:       r.low,
			Close:     r.close,
			Volume:    r.volume,
		}
	}
	return candles
}

func mustSeries(t *testing.T, candles []models.Candle) *models.CandleSeries {
	t.Helper()
	series, err := models.NewCandleSeries(candles)
	if err != nil {
		t.Fatalf("invalid fixture: %v", err)
	}
	return series
}

// bullishFlagRows is a bullish flag with T0=100@2, T1=120@5, T2=112@8,
// T3=118@11, T4=110@14 and a breakout close of 121 at index 16. With an
// extrema window of 2 these are the only swing points in the series.
func bullishFlagRows() []bar {
	return []bar{
		{101, 103, 102, 102.5, 1000},
		{100.5, 102.5, 102, 101, 1000},
		{100, 102, 101, 101.5, 1100}, // T0
		{104, 110, 104.5, 109.5, 1500},
		{109, 116, 109.5, 115.5, 1800},
		{115, 120, 115.5, 119, 2000}, // T1
		{114, 118.5, 118, 114.5, 1600},
		{113, 117.5, 114.5, 113.5, 1400},
		{112, 115, 113, 114, 1200}, // T2
		{113, 116, 114, 115.5, 1100},
		{114.5, 117, 115.5, 116.5, 1000},
		{115, 118, 116.5, 115.5, 900}, // T3
		{113, 117, 115.5, 113.5, 800},
		{111, 115.5, 113.5, 111.5, 700},
		{110, 113, 111.5, 112.5, 600}, // T4
		{112, 116, 112.5, 114.5, 1500},
		{115, 122, 115, 121, 2500}, // breakout
	}
}

// mirror reflects rows on the price axis around pivot, swapping highs and lows.
func mirror(rows []bar, pivot float64) []bar {
	out := make([]bar, len(rows))
	for i, r := range rows {
		out[i] = bar{
			low:    pivot - r.high,
			high:   pivot - r.low,
			open:   pivot - r.open,
			close:  pivot - r.close,
			volume: r.volume,
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ExtremaWindow = 2
	return cfg
}

func mustScanner(t *testing.T, cfg Config) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return s
}
