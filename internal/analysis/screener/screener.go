// Package screener runs a detector over many instruments concurrently.
package screener

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"flag-scanner/internal/analysis"
	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/models"
)

// SeriesProvider loads the candle series for a symbol.
type SeriesProvider func(ctx context.Context, symbol string) (*models.CandleSeries, error)

// Result is the outcome of scanning one symbol. Err is set when loading or
// scanning the symbol failed; other symbols are unaffected.
type Result struct {
	Symbol   string
	Candles  int
	Matches  []flags.PatternMatch
	// Stats is filled when the detector reports scan statistics.
	Stats    flags.Stats
	Err      error
	Duration time.Duration
}

// Screener provides pattern screening with concurrent processing.
type Screener struct {
	detector    analysis.Detector
	concurrency int
	logger      zerolog.Logger
}

// New creates a screener. A non-positive concurrency falls back to 4.
func New(detector analysis.Detector, concurrency int, logger zerolog.Logger) *Screener {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Screener{
		detector:    detector,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Scan scans every symbol and returns one result per symbol, sorted by
// symbol. Cancellation is checked before each symbol is started; a scan
// already running is allowed to finish. When ctx is cancelled the partial
// results are returned together with ctx.Err().
func (s *Screener) Scan(ctx context.Context, symbols []string, provider SeriesProvider) ([]Result, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[*Result]().WithMaxGoroutines(s.concurrency)
	for _, symbol := range symbols {
		p.Go(func() *Result {
			if ctx.Err() != nil {
				return nil
			}
			r := s.scanSymbol(ctx, symbol, provider)
			return &r
		})
	}

	collected := p.Wait()
	results := make([]Result, 0, len(collected))
	for _, r := range collected {
		if r != nil {
			results = append(results, *r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Symbol < results[j].Symbol
	})

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Screener) scanSymbol(ctx context.Context, symbol string, provider SeriesProvider) Result {
	started := time.Now()
	result := Result{Symbol: symbol}

	series, err := provider(ctx, symbol)
	if err != nil {
		result.Err = err
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load candles")
		return result
	}
	result.Candles = series.Len()

	var matches []flags.PatternMatch
	if sd, ok := s.detector.(analysis.StatsDetector); ok {
		var res flags.Result
		res, err = sd.ScanWithStats(series)
		matches, result.Stats = res.Matches, res.Stats
	} else {
		matches, err = s.detector.Scan(series)
	}
	result.Duration = time.Since(started)
	if err != nil {
		result.Err = err
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Scan failed")
		return result
	}
	result.Matches = matches

	s.logger.Debug().
		Str("symbol", symbol).
		Str("detector", s.detector.Name()).
		Int("candles", result.Candles).
		Int("candidates", result.Stats.Candidates).
		Int("matches", len(matches)).
		Dur("duration", result.Duration).
		Msg("Symbol scanned")
	return result
}

// Hit is a single match tagged with the symbol it was found in.
type Hit struct {
	Symbol string
	Match  flags.PatternMatch
}

// Hits flattens results into matches ordered by T4 time, most recent first,
// then by quality. Results with errors contribute nothing.
func Hits(results []Result) []Hit {
	var hits []Hit
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, m := range r.Matches {
			hits = append(hits, Hit{Symbol: r.Symbol, Match: m})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i].Match.End(), hits[j].Match.End()
		if !a.Time.Equal(b.Time) {
			return a.Time.After(b.Time)
		}
		if a.Index != b.Index {
			return a.Index > b.Index
		}
		return hits[i].Match.QualityScore > hits[j].Match.QualityScore
	})
	return hits
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
