package flags

import (
	"flag-scanner/internal/models"
)

// Breakout is the outcome of looking for a close beyond the T1-T3 trendline.
type Breakout struct {
	Index     int
	Confirmed bool
	Price     float64
	Level     float64
	// StrengthPct is how far Price went past Level, in percent of Level.
	StrengthPct float64
	Line        Trendline
}

// BreakoutDetector confirms flags by a move through the T1-T3 trendline.
type BreakoutDetector struct {
	cfg Config
}

// NewBreakoutDetector creates a detector. cfg is expected to be valid.
func NewBreakoutDetector(cfg Config) *BreakoutDetector {
	return &BreakoutDetector{cfg: cfg}
}

// Detect scans the candles after T4, up to the configured lookahead, for the
// first one whose price clears the projected trendline by the buffer. When
// none does, the result has Confirmed false and Index -1.
func (b *BreakoutDetector) Detect(series *models.CandleSeries, orientation models.Orientation, sk Skeleton) Breakout {
	line := LineThrough(sk[T1], sk[T3])
	result := Breakout{Index: -1, Line: line}

	start := sk[T4].Index + 1
	end := sk[T4].Index + b.cfg.MaxBreakoutLookahead
	if last := series.Len() - 1; end > last {
		end = last
	}

	checkVolume := b.cfg.MinBreakoutVolumeRatio > 0 && series.HasVolume()
	var minVolume float64
	if checkVolume {
		minVolume = b.cfg.MinBreakoutVolumeRatio * series.MeanVolume()
	}

	d := direction(orientation)
	for i := start; i <= end; i++ {
		c := series.At(i)
		price := b.price(c, orientation)
		level := line.At(i)
		threshold := level * (1 + d*b.cfg.BreakoutBufferPct)

		if d*(price-threshold) <= 0 {
			continue
		}
		if checkVolume && float64(c.Volume) < minVolume {
			continue
		}

		result.Index = i
		result.Confirmed = true
		result.Price = price
		result.Level = level
		if level != 0 {
			result.StrengthPct = d * (price - level) / level * 100
		}
		return result
	}
	return result
}

func (b *BreakoutDetector) price(c models.Candle, orientation models.Orientation) float64 {
	if b.cfg.BreakoutPrice == PriceExtreme {
		if orientation == models.Bearish {
			return c.Low
		}
		return c.High
	}
	return c.Close
}
