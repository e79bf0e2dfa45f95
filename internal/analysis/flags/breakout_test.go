package flags

import (
	"math"
	"testing"

	"flag-scanner/internal/models"
)

func TestBreakoutDetector(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))
	sk := skeletonFromFixture([5]float64{100, 120, 112, 118, 110})

	tests := []struct {
		name      string
		modify    func(*Config)
		confirmed bool
		index     int
	}{
		{"close through the line", nil, true, 16},
		{"extreme price", func(c *Config) { c.BreakoutPrice = PriceExtreme }, true, 16},
		{"lookahead too short", func(c *Config) { c.MaxBreakoutLookahead = 1 }, false, -1},
		{"volume confirms", func(c *Config) { c.MinBreakoutVolumeRatio = 1.5 }, true, 16},
		{"volume too thin", func(c *Config) { c.MinBreakoutVolumeRatio = 2 }, false, -1},
		{"buffer too wide", func(c *Config) { c.BreakoutBufferPct = 0.05 }, false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			br := NewBreakoutDetector(cfg).Detect(series, models.Bullish, sk)
			if br.Confirmed != tt.confirmed || br.Index != tt.index {
				t.Errorf("breakout = %v@%d, want %v@%d", br.Confirmed, br.Index, tt.confirmed, tt.index)
			}
		})
	}
}

func TestBreakoutDetector_Strength(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()))
	sk := skeletonFromFixture([5]float64{100, 120, 112, 118, 110})

	br := NewBreakoutDetector(testConfig()).Detect(series, models.Bullish, sk)

	level := 120 - 11.0/3 // line through (5,120) and (11,118) at index 16
	if math.Abs(br.Level-level) > 1e-9 {
		t.Errorf("level = %v, want %v", br.Level, level)
	}
	want := (121 - level) / level * 100
	if math.Abs(br.StrengthPct-want) > 1e-9 {
		t.Errorf("strength = %v, want %v", br.StrengthPct, want)
	}
	if br.Line.Slope != LineThrough(sk[T1], sk[T3]).Slope {
		t.Errorf("unexpected trendline %+v", br.Line)
	}
}

func TestBreakoutDetector_EndOfSeries(t *testing.T) {
	series := mustSeries(t, buildCandles(bullishFlagRows()[:15]))
	sk := skeletonFromFixture([5]float64{100, 120, 112, 118, 110})

	br := NewBreakoutDetector(testConfig()).Detect(series, models.Bullish, sk)
	if br.Confirmed || br.Index != -1 {
		t.Errorf("no candles after T4 must give an unconfirmed breakout, got %+v", br)
	}
}
