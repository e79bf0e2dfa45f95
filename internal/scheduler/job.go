package scheduler

import (
	"context"
	"time"

	"flag-scanner/internal/analysis/screener"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/notify"
	"flag-scanner/internal/store"
)

// ScanSummary describes one scan job run.
type ScanSummary struct {
	Symbols int `json:"symbols"`
	Failed  int `json:"failed"`
	Matches int `json:"matches"`
	New     int `json:"new"`
}

// ScanJob screens every symbol of a source and persists the matches.
type ScanJob struct {
	Source    feed.Source
	Screener  *screener.Screener
	Store     store.DataStore
	Timeframe string
	// Notifier, when set, is told about every new flag. Without a store
	// every match of the run counts as new.
	Notifier notify.Notifier
	// OnSummary, when set, receives the summary of each run.
	OnSummary func(ScanSummary, []screener.Hit)
}

// Run executes one scan. Per-symbol failures are logged and counted; only
// listing symbols or writing to the store fails the run. The logger is taken
// from ctx.
func (j *ScanJob) Run(ctx context.Context) error {
	started := time.Now()
	logger := logging.FromContext(ctx)
	symbols, err := j.Source.Symbols(ctx)
	if err != nil {
		j.notifyError(ctx, err, "listing symbols")
		return err
	}

	results, err := j.Screener.Scan(ctx, symbols, j.Source.Series)
	if err != nil {
		return err
	}

	summary := ScanSummary{Symbols: len(symbols)}
	var fresh []notify.Flag
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
			continue
		}
		summary.Matches += len(r.Matches)
		if len(r.Matches) == 0 {
			continue
		}
		if j.Store == nil {
			for _, m := range r.Matches {
				fresh = append(fresh, notify.Flag{Symbol: r.Symbol, Timeframe: j.Timeframe, Match: m})
			}
			continue
		}
		records, err := j.Store.SaveMatches(ctx, r.Symbol, j.Timeframe, r.Matches)
		if err != nil {
			j.notifyError(ctx, err, "saving matches for "+r.Symbol)
			return err
		}
		for _, rec := range records {
			if !rec.DetectedAt.Before(started) {
				summary.New++
				fresh = append(fresh, notify.Flag{ID: rec.ID, Symbol: rec.Symbol, Timeframe: rec.Timeframe, Match: rec.Match})
			}
		}
	}
	if j.Store != nil {
		if err := j.Store.SetLastSync("scan:"+j.Timeframe, started); err != nil {
			logger.Warn().Err(err).Msg("Failed to record scan time")
		}
	}

	logger.Info().
		Int("symbols", summary.Symbols).
		Int("failed", summary.Failed).
		Int("matches", summary.Matches).
		Int("new", summary.New).
		Dur("duration", time.Since(started)).
		Msg("Scan completed")

	if j.Notifier != nil {
		for _, f := range fresh {
			if err := j.Notifier.SendFlag(ctx, f); err != nil {
				logger.Warn().Err(err).Str("symbol", f.Symbol).Msg("Failed to send notification")
			}
		}
	}

	if j.OnSummary != nil {
		j.OnSummary(summary, screener.Hits(results))
	}
	return nil
}

func (j *ScanJob) notifyError(ctx context.Context, err error, what string) {
	if j.Notifier == nil {
		return
	}
	if nerr := j.Notifier.SendError(ctx, err, what); nerr != nil {
		logging.FromContext(ctx).Warn().Err(nerr).Msg("Failed to send notification")
	}
}
