package flags

import (
	"math"

	"flag-scanner/internal/errors"
)

// PriceSource selects which candle price is compared against the trendline
// when looking for a breakout.
type PriceSource string

const (
	// PriceClose compares the candle close.
	PriceClose PriceSource = "close"
	// PriceExtreme compares the high (bullish) or low (bearish).
	PriceExtreme PriceSource = "extreme"
)

// ScoreWeights weights the soft quality components. Only the ratios matter;
// the score is normalized by the sum of the weights in use.
type ScoreWeights struct {
	Symmetry    float64 `mapstructure:"symmetry" json:"symmetry"`
	Tightness   float64 `mapstructure:"tightness" json:"tightness"`
	VolumeDecay float64 `mapstructure:"volume_decay" json:"volume_decay"`
}

// Config holds scanner tuning. Fields named *Pct are fractions (0.05 = 5%).
type Config struct {
	ExtremaWindow            int          `mapstructure:"extrema_window" json:"extrema_window"`
	MinMovePct               float64      `mapstructure:"min_move_pct" json:"min_move_pct"`
	MinPoleRangeMultiple     float64      `mapstructure:"min_pole_range_multiple" json:"min_pole_range_multiple"`
	RetracementFloorPct      float64      `mapstructure:"retracement_floor_pct" json:"retracement_floor_pct"`
	FirstPullbackFloorPct    float64      `mapstructure:"first_pullback_floor_pct" json:"first_pullback_floor_pct"`
	PeakTolerancePct         float64      `mapstructure:"peak_tolerance_pct" json:"peak_tolerance_pct"`
	BreakoutBufferPct        float64      `mapstructure:"breakout_buffer_pct" json:"breakout_buffer_pct"`
	BreakoutPrice            PriceSource  `mapstructure:"breakout_price" json:"breakout_price"`
	MaxBreakoutLookahead     int          `mapstructure:"max_breakout_lookahead" json:"max_breakout_lookahead"`
	MinBreakoutVolumeRatio   float64      `mapstructure:"min_breakout_volume_ratio" json:"min_breakout_volume_ratio"`
	DedupOverlapThreshold    float64      `mapstructure:"dedup_overlap_threshold" json:"dedup_overlap_threshold"`
	MaxLegAlternatives       int          `mapstructure:"max_leg_alternatives" json:"max_leg_alternatives"`
	MinQualityScore          float64      `mapstructure:"min_quality_score" json:"min_quality_score"`
	RequireBreakout          bool         `mapstructure:"require_breakout" json:"require_breakout"`
	RequireConvergingChannel bool         `mapstructure:"require_converging_channel" json:"require_converging_channel"`
	RequireCleanChannel      bool         `mapstructure:"require_clean_channel" json:"require_clean_channel"`
	ChannelTolerancePct      float64      `mapstructure:"channel_tolerance_pct" json:"channel_tolerance_pct"`
	MaxMatches               int          `mapstructure:"max_matches" json:"max_matches"`
	MaxPatternAge            int          `mapstructure:"max_pattern_age" json:"max_pattern_age"`
	ScoreWeights             ScoreWeights `mapstructure:"score_weights" json:"score_weights"`
}

// DefaultConfig returns the scanner defaults. The thresholds were tuned on
// hourly equity candles and are meant to be overridden per instrument.
func DefaultConfig() Config {
	return Config{
		ExtremaWindow:         3,
		MinMovePct:            0.03,
		RetracementFloorPct:   0.5,
		BreakoutBufferPct:     0.003,
		BreakoutPrice:         PriceClose,
		MaxBreakoutLookahead:  20,
		DedupOverlapThreshold: 0.5,
		MaxLegAlternatives:    2,
		ChannelTolerancePct:   0.0005,
		ScoreWeights: ScoreWeights{
			Symmetry:    0.4,
			Tightness:   0.3,
			VolumeDecay: 0.3,
		},
	}
}

// Validate checks every parameter range and returns a *errors.ConfigError for
// the first one that is out of range.
func (c Config) Validate() error {
	if c.ExtremaWindow < 1 {
		return errors.NewConfigError("extrema_window", c.ExtremaWindow, "must be at least 1")
	}
	if err := checkFraction("min_move_pct", c.MinMovePct, false); err != nil {
		return err
	}
	if !isFinite(c.MinPoleRangeMultiple) || c.MinPoleRangeMultiple < 0 {
		return errors.NewConfigError("min_pole_range_multiple", c.MinPoleRangeMultiple, "must be non-negative")
	}
	if err := checkFraction("retracement_floor_pct", c.RetracementFloorPct, true); err != nil {
		return err
	}
	if err := checkFraction("first_pullback_floor_pct", c.FirstPullbackFloorPct, true); err != nil {
		return err
	}
	if err := checkFraction("peak_tolerance_pct", c.PeakTolerancePct, false); err != nil {
		return err
	}
	if err := checkFraction("breakout_buffer_pct", c.BreakoutBufferPct, false); err != nil {
		return err
	}
	if c.BreakoutPrice != PriceClose && c.BreakoutPrice != PriceExtreme {
		return errors.NewConfigError("breakout_price", c.BreakoutPrice, "must be 'close' or 'extreme'")
	}
	if c.MaxBreakoutLookahead < 1 {
		return errors.NewConfigError("max_breakout_lookahead", c.MaxBreakoutLookahead, "must be at least 1")
	}
	if !isFinite(c.MinBreakoutVolumeRatio) || c.MinBreakoutVolumeRatio < 0 {
		return errors.NewConfigError("min_breakout_volume_ratio", c.MinBreakoutVolumeRatio, "must be non-negative")
	}
	if err := checkFraction("dedup_overlap_threshold", c.DedupOverlapThreshold, true); err != nil {
		return err
	}
	if c.MaxLegAlternatives < 1 {
		return errors.NewConfigError("max_leg_alternatives", c.MaxLegAlternatives, "must be at least 1")
	}
	if err := checkFraction("min_quality_score", c.MinQualityScore, true); err != nil {
		return err
	}
	if err := checkFraction("channel_tolerance_pct", c.ChannelTolerancePct, false); err != nil {
		return err
	}
	if c.MaxMatches < 0 {
		return errors.NewConfigError("max_matches", c.MaxMatches, "must be non-negative")
	}
	if c.MaxPatternAge < 0 {
		return errors.NewConfigError("max_pattern_age", c.MaxPatternAge, "must be non-negative")
	}

	w := c.ScoreWeights
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"score_weights.symmetry", w.Symmetry},
		{"score_weights.tightness", w.Tightness},
		{"score_weights.volume_decay", w.VolumeDecay},
	} {
		if !isFinite(f.value) || f.value < 0 {
			return errors.NewConfigError(f.name, f.value, "must be non-negative")
		}
	}
	if w.Symmetry+w.Tightness+w.VolumeDecay <= 0 {
		return errors.NewConfigError("score_weights", w, "at least one weight must be positive")
	}
	return nil
}

// checkFraction accepts [0, 1) or, when inclusive, [0, 1].
func checkFraction(field string, v float64, inclusive bool) error {
	if !isFinite(v) || v < 0 || v > 1 || (!inclusive && v == 1) {
		if inclusive {
			return errors.NewConfigError(field, v, "must be within [0, 1]")
		}
		return errors.NewConfigError(field, v, "must be within [0, 1)")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
