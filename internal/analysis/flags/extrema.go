package flags

import (
	"iter"
	"slices"

	"flag-scanner/internal/models"
)

// FindExtrema returns the swing highs and lows of series as a lazy sequence.
//
// Index i is a HIGH when its high is the maximum of the window candles on each
// side; an equal high earlier in the window wins the tie, so a flat top is
// reported once at its first bar. LOW is the mirror rule on the low. Indices
// closer than window to either end of the series are never reported. A bar
// that qualifies as both yields its HIGH first.
//
// The sequence is recomputed on every range, so it can be consumed more than
// once.
func FindExtrema(series *models.CandleSeries, window int) iter.Seq[Extremum] {
	return func(yield func(Extremum) bool) {
		if window < 0 {
			return
		}
		n := series.Len()
		for i := window; i < n-window; i++ {
			c := series.At(i)
			if isSwingHigh(series, i, window) {
				if !yield(Extremum{Index: i, Price: c.High, Kind: High, Time: c.Timestamp}) {
					return
				}
			}
			if isSwingLow(series, i, window) {
				if !yield(Extremum{Index: i, Price: c.Low, Kind: Low, Time: c.Timestamp}) {
					return
				}
			}
		}
	}
}

// CollectExtrema materializes an extrema sequence.
func CollectExtrema(seq iter.Seq[Extremum]) []Extremum {
	return slices.Collect(seq)
}

func isSwingHigh(series *models.CandleSeries, i, window int) bool {
	high := series.At(i).High
	for j := i - window; j < i; j++ {
		if series.At(j).High >= high {
			return false
		}
	}
	for j := i + 1; j <= i+window; j++ {
		if series.At(j).High > high {
			return false
		}
	}
	return true
}

func isSwingLow(series *models.CandleSeries, i, window int) bool {
	low := series.At(i).Low
	for j := i - window; j < i; j++ {
		if series.At(j).Low <= low {
			return false
		}
	}
	for j := i + 1; j <= i+window; j++ {
		if series.At(j).Low < low {
			return false
		}
	}
	return true
}
