// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"strings"
	"time"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error)
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)

	// Pattern matches
	SaveMatches(ctx context.Context, symbol, timeframe string, matches []flags.PatternMatch) ([]MatchRecord, error)
	GetMatches(ctx context.Context, filter MatchFilter) ([]MatchRecord, error)
	GetMatchByID(ctx context.Context, id string) (*MatchRecord, error)
	LabelMatch(ctx context.Context, id string, label Label, note string) error

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// Label is a human annotation of a detected match.
type Label string

const (
	LabelNone    Label = ""
	LabelValid   Label = "valid"
	LabelInvalid Label = "invalid"
	LabelUnsure  Label = "unsure"
)

// ParseLabel parses a user supplied label.
func ParseLabel(s string) (Label, error) {
	switch l := Label(strings.ToLower(strings.TrimSpace(s))); l {
	case LabelValid, LabelInvalid, LabelUnsure:
		return l, nil
	case "none", "clear":
		return LabelNone, nil
	default:
		return LabelNone, errors.Wrapf(errors.ErrInvalidLabel, "%q (want valid, invalid, unsure or none)", s)
	}
}

// Valid reports whether l is a known label or LabelNone.
func (l Label) Valid() bool {
	switch l {
	case LabelNone, LabelValid, LabelInvalid, LabelUnsure:
		return true
	}
	return false
}

// MatchRecord is a persisted pattern match.
type MatchRecord struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Match      flags.PatternMatch `json:"match"`
	Label      Label              `json:"label"`
	Note       string             `json:"note,omitempty"`
	DetectedAt time.Time          `json:"detected_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// MatchFilter represents filters for querying matches.
type MatchFilter struct {
	Symbol      string
	Timeframe   string
	Orientation models.Orientation
	Label       Label
	// Unlabeled selects only matches without a label. It overrides Label.
	Unlabeled  bool
	MinQuality float64
	Since      time.Time
	Limit      int
}
