// Package analysis defines the contract shared by pattern detectors and the
// components that drive them.
package analysis

import (
	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/models"
)

// Detector finds patterns in a validated candle series.
type Detector interface {
	Name() string
	Scan(series *models.CandleSeries) ([]flags.PatternMatch, error)
}

// StatsDetector is a Detector that can also report scan statistics.
type StatsDetector interface {
	Detector
	ScanWithStats(series *models.CandleSeries) (flags.Result, error)
}

var _ StatsDetector = (*flags.Scanner)(nil)
