package cli

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/analysis/screener"
	"flag-scanner/internal/store"
)

type screenReport struct {
	Timeframe string          `json:"timeframe"`
	Symbols   int             `json:"symbols"`
	Hits      []screenHit     `json:"hits"`
	Failures  []screenFailure `json:"failures,omitempty"`
	Saved     int             `json:"saved,omitempty"`
}

type screenHit struct {
	Symbol string             `json:"symbol"`
	ID     string             `json:"id,omitempty"`
	Match  flags.PatternMatch `json:"match"`
}

type screenFailure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

func newScreenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen [dir]",
		Short: "Scan every symbol in a data directory",
		Long: `Scan every *.csv file in a directory (or every cached symbol when
data.source is "cache") and list the flags found, best quality first.

Symbols that fail to load are reported and do not stop the screen.`,
		Example: `  flagscan screen
  flagscan screen ./candles --workers 8 --require-breakout
  flagscan screen --timeframe 1d --limit 20 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			timeframe := app.timeframe(cmd)
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			src, err := app.Source(dir, timeframe)
			if err != nil {
				return err
			}
			symbols, err := src.Symbols(ctx)
			if err != nil {
				return err
			}

			scanner, err := app.Scanner(timeframe, scannerOverrides(cmd))
			if err != nil {
				return err
			}
			workers := app.Config.Schedule.Workers
			if cmd.Flags().Changed("workers") {
				workers, _ = cmd.Flags().GetInt("workers")
			}

			results, err := screener.New(scanner, workers, app.Logger).Scan(ctx, symbols, src.Series)
			if err != nil {
				return err
			}

			save := app.Config.Storage.SaveMatches
			if cmd.Flags().Changed("save") {
				save, _ = cmd.Flags().GetBool("save")
			}
			ids, saved, err := app.saveResults(cmd, results, timeframe, save)
			if err != nil {
				return err
			}

			hits := screener.Hits(results)
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(hits) > limit {
				hits = hits[:limit]
			}
			failed := screener.Failed(results)

			if output.IsJSON() {
				report := screenReport{
					Timeframe: timeframe,
					Symbols:   len(symbols),
					Hits:      make([]screenHit, 0, len(hits)),
					Saved:     saved,
				}
				for _, h := range hits {
					report.Hits = append(report.Hits, screenHit{Symbol: h.Symbol, ID: ids[hitKey(h)], Match: h.Match})
				}
				for _, r := range failed {
					report.Failures = append(report.Failures, screenFailure{Symbol: r.Symbol, Error: r.Err.Error()})
				}
				return output.JSON(report)
			}

			output.Bold("Screened %d symbol(s) on %s", len(symbols), timeframe)
			if len(hits) == 0 {
				output.Dim("No flags found")
			} else {
				renderHits(output, app, hits, ids)
			}
			for _, r := range failed {
				output.Warning("⚠ %s: %v", r.Symbol, r.Err)
			}
			if saved > 0 {
				output.Success("✓ Saved %d match(es)", saved)
			}
			return nil
		},
	}

	cmd.Flags().String("timeframe", "", "timeframe label (default: data.timeframe)")
	cmd.Flags().Int("workers", 0, "symbols scanned in parallel (default: schedule.workers)")
	cmd.Flags().Int("limit", 0, "show at most this many flags")
	cmd.Flags().Bool("save", false, "store detected matches (default: storage.save_matches)")
	addScannerFlags(cmd)

	return cmd
}

func hitKey(h screener.Hit) string {
	return h.Symbol + "/" + h.Match.Key()
}

// saveResults stores the matches of every successful result and returns the
// record ids keyed by hitKey.
func (a *App) saveResults(cmd *cobra.Command, results []screener.Result, timeframe string, save bool) (map[string]string, int, error) {
	ids := make(map[string]string)
	if !save {
		return ids, 0, nil
	}

	var st store.DataStore
	saved := 0
	for _, r := range results {
		if r.Err != nil || len(r.Matches) == 0 {
			continue
		}
		if st == nil {
			var err error
			if st, err = a.OpenStore(); err != nil {
				return nil, 0, err
			}
		}
		records, err := st.SaveMatches(cmd.Context(), r.Symbol, timeframe, r.Matches)
		if err != nil {
			return nil, 0, err
		}
		for _, rec := range records {
			ids[rec.Symbol+"/"+rec.Match.Key()] = rec.ID
		}
		saved += len(records)
	}
	return ids, saved, nil
}

func renderHits(output *Output, app *App, hits []screener.Hit, ids map[string]string) {
	table := NewTable(output, "#", "SYMBOL", "DIR", "T0", "T4", "T4 TIME", "POLE", "BREAKOUT", "QUALITY", "ID")
	for i, h := range hits {
		m := h.Match
		table.AddRow(
			strconv.Itoa(i+1),
			h.Symbol,
			output.Orientation(m.Orientation),
			FormatKeypoint(m.Start()),
			FormatKeypoint(m.End()),
			FormatDateTime(m.End().Time, app.Config.UI.DateFormat, app.Config.UI.TimeFormat),
			FormatPrice(m.PoleHeight),
			FormatBreakout(m),
			output.Quality(m.QualityScore),
			ShortID(ids[hitKey(h)]),
		)
	}
	table.Render()
}
