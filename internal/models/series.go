package models

import (
	"math"

	"flag-scanner/internal/errors"
)

// CandleSeries is an immutable, validated sequence of candles ordered by
// strictly increasing timestamps.
type CandleSeries struct {
	candles   []Candle
	hasVolume bool
	meanRange float64
}

// NewCandleSeries copies and validates candles. It returns an *errors.InputError
// describing the first malformed candle.
func NewCandleSeries(candles []Candle) (*CandleSeries, error) {
	if len(candles) == 0 {
		return nil, errors.NewInputError(-1, "candles", "series is empty")
	}

	owned := make([]Candle, len(candles))
	copy(owned, candles)

	s := &CandleSeries{candles: owned}
	var totalRange float64
	for i := range owned {
		if err := validateCandle(i, owned[i]); err != nil {
			return nil, err
		}
		if i > 0 && !owned[i].Timestamp.After(owned[i-1].Timestamp) {
			return nil, errors.NewInputError(i, "timestamp", "timestamps must be strictly increasing")
		}
		if owned[i].Volume > 0 {
			s.hasVolume = true
		}
		totalRange += owned[i].High - owned[i].Low
	}
	s.meanRange = totalRange / float64(len(owned))
	return s, nil
}

func validateCandle(i int, c Candle) error {
	prices := []struct {
		field string
		value float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	}
	for _, p := range prices {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return errors.NewInputError(i, p.field, "price is not finite")
		}
		if p.value < 0 {
			return errors.NewInputError(i, p.field, "price is negative")
		}
	}
	if c.Timestamp.IsZero() {
		return errors.NewInputError(i, "timestamp", "timestamp is missing")
	}
	if c.High < math.Max(c.Open, c.Close) {
		return errors.NewInputError(i, "high", "high is below open/close")
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return errors.NewInputError(i, "low", "low is above open/close")
	}
	if c.Volume < 0 {
		return errors.NewInputError(i, "volume", "volume is negative")
	}
	return nil
}

// Len returns the number of candles.
func (s *CandleSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.candles)
}

// At returns the candle at index i.
func (s *CandleSeries) At(i int) Candle {
	return s.candles[i]
}

// Candles returns a copy of the underlying candles.
func (s *CandleSeries) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// HasVolume reports whether any candle carries a positive volume.
func (s *CandleSeries) HasVolume() bool {
	return s != nil && s.hasVolume
}

// MeanVolume returns the average volume over the whole series.
func (s *CandleSeries) MeanVolume() float64 {
	if s.Len() == 0 {
		return 0
	}
	var total float64
	for _, c := range s.candles {
		total += float64(c.Volume)
	}
	return total / float64(len(s.candles))
}

// MeanRange returns the average high-low range of the candles.
func (s *CandleSeries) MeanRange() float64 {
	if s == nil {
		return 0
	}
	return s.meanRange
}

// Extend returns a new series with candles appended. The receiver is left
// untouched, so scans holding it keep a stable snapshot.
func (s *CandleSeries) Extend(candles ...Candle) (*CandleSeries, error) {
	if s == nil {
		return NewCandleSeries(candles)
	}
	combined := make([]Candle, 0, len(s.candles)+len(candles))
	combined = append(combined, s.candles...)
	combined = append(combined, candles...)
	return NewCandleSeries(combined)
}
