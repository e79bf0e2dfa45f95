package cli

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/models"
	"flag-scanner/internal/security"
	"flag-scanner/internal/store"
)

// scanReport is the JSON shape of a single-series scan.
type scanReport struct {
	Symbol    string               `json:"symbol"`
	Timeframe string               `json:"timeframe"`
	Candles   int                  `json:"candles"`
	Matches   []flags.PatternMatch `json:"matches"`
	Stats     *flags.Stats         `json:"stats,omitempty"`
	SavedIDs  []string             `json:"saved_ids,omitempty"`
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file.csv|symbol>",
		Short: "Scan one candle series for flags",
		Long: `Scan a single candle series for bullish and bearish flags.

The argument is either a CSV file or a symbol. Symbols are looked up in the
configured data directory, or in the candle cache when data.source is "cache".`,
		Example: `  flagscan scan data/INFY.csv
  flagscan scan INFY --timeframe 1d --require-breakout
  flagscan scan INFY --window 2 --min-quality 0.6 --save --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx := cmd.Context()
			timeframe := app.timeframe(cmd)

			symbol, series, err := app.loadSeries(ctx, args[0], timeframe)
			if err != nil {
				return err
			}

			scanner, err := app.Scanner(timeframe, scannerOverrides(cmd))
			if err != nil {
				return err
			}
			res, err := scanner.ScanWithStats(series)
			if err != nil {
				return err
			}

			logger := logging.WithSymbol(app.Logger, symbol)
			logging.LogScan(logger, symbol, res)
			for _, m := range res.Matches {
				logging.LogMatch(logger, symbol, m)
			}

			var records []store.MatchRecord
			if save, _ := cmd.Flags().GetBool("save"); save && len(res.Matches) > 0 {
				st, err := app.OpenStore()
				if err != nil {
					return err
				}
				records, err = st.SaveMatches(ctx, symbol, timeframe, res.Matches)
				if err != nil {
					return err
				}
			}

			showStats, _ := cmd.Flags().GetBool("stats")
			if output.IsJSON() {
				report := scanReport{
					Symbol:    symbol,
					Timeframe: timeframe,
					Candles:   series.Len(),
					Matches:   res.Matches,
				}
				if report.Matches == nil {
					report.Matches = []flags.PatternMatch{}
				}
				if showStats {
					report.Stats = &res.Stats
				}
				for _, rec := range records {
					report.SavedIDs = append(report.SavedIDs, rec.ID)
				}
				return output.JSON(report)
			}

			output.Bold("%s  %s  (%d candles)", symbol, timeframe, series.Len())
			if len(res.Matches) == 0 {
				output.Dim("No flags found")
			} else {
				renderMatches(output, app, res.Matches, records)
			}
			if showStats {
				output.Println()
				renderStats(output, res.Stats)
			}
			if len(records) > 0 {
				output.Success("✓ Saved %d match(es)", len(records))
			}
			return nil
		},
	}

	cmd.Flags().String("timeframe", "", "timeframe label (default: data.timeframe)")
	cmd.Flags().Bool("save", false, "store detected matches for labeling")
	cmd.Flags().Bool("stats", false, "show scan statistics")
	addScannerFlags(cmd)

	return cmd
}

func (a *App) timeframe(cmd *cobra.Command) string {
	if tf, _ := cmd.Flags().GetString("timeframe"); tf != "" {
		return tf
	}
	return a.Config.Data.Timeframe
}

// loadSeries resolves a CSV path or a symbol to a candle series.
func (a *App) loadSeries(ctx context.Context, arg, timeframe string) (string, *models.CandleSeries, error) {
	if strings.EqualFold(filepath.Ext(arg), ".csv") || isFile(arg) {
		var loader feed.CSVLoader
		series, err := loader.LoadFile(arg)
		if err != nil {
			return "", nil, err
		}
		return feed.SymbolFromPath(arg), series, nil
	}

	src, err := a.Source("", timeframe)
	if err != nil {
		return "", nil, err
	}
	symbol, err := security.ValidateSymbol(arg)
	if err != nil {
		return "", nil, err
	}
	series, err := src.Series(ctx, symbol)
	if err != nil {
		return "", nil, err
	}
	return symbol, series, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func addScannerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("window", 0, "extrema window, bars on each side")
	f.Float64("min-move", 0, "minimum flagpole move as a fraction of T0")
	f.Float64("min-pole-range", 0, "minimum pole height in mean candle ranges (0 = off)")
	f.Float64("retracement-floor", 0, "maximum T4 retracement as a fraction of the pole")
	f.Float64("peak-tolerance", 0, "how far T3 may exceed T1, as a fraction")
	f.Float64("breakout-buffer", 0, "fraction the breakout must clear the trendline by")
	f.String("breakout-price", "", "breakout price: close or extreme")
	f.Int("lookahead", 0, "candles after T4 searched for a breakout")
	f.Float64("min-quality", 0, "drop matches scoring below this")
	f.Int("max-matches", 0, "maximum matches per series (0 = unlimited)")
	f.Int("max-age", 0, "maximum candles between T4 and the last candle (0 = any)")
	f.Bool("require-breakout", false, "only report flags with a confirmed breakout")
	f.Bool("converging", false, "reject flags whose channel widens")
	f.Bool("clean-channel", false, "reject flags whose candles pierce the channel")
}

// scannerOverrides applies the scanner flags the user set explicitly.
func scannerOverrides(cmd *cobra.Command) func(*flags.Config) {
	return func(c *flags.Config) {
		f := cmd.Flags()
		if f.Changed("window") {
			c.ExtremaWindow, _ = f.GetInt("window")
		}
		if f.Changed("min-move") {
			c.MinMovePct, _ = f.GetFloat64("min-move")
		}
		if f.Changed("min-pole-range") {
			c.MinPoleRangeMultiple, _ = f.GetFloat64("min-pole-range")
		}
		if f.Changed("retracement-floor") {
			c.RetracementFloorPct, _ = f.GetFloat64("retracement-floor")
		}
		if f.Changed("peak-tolerance") {
			c.PeakTolerancePct, _ = f.GetFloat64("peak-tolerance")
		}
		if f.Changed("breakout-buffer") {
			c.BreakoutBufferPct, _ = f.GetFloat64("breakout-buffer")
		}
		if f.Changed("breakout-price") {
			price, _ := f.GetString("breakout-price")
			c.BreakoutPrice = flags.PriceSource(strings.ToLower(price))
		}
		if f.Changed("lookahead") {
			c.MaxBreakoutLookahead, _ = f.GetInt("lookahead")
		}
		if f.Changed("min-quality") {
			c.MinQualityScore, _ = f.GetFloat64("min-quality")
		}
		if f.Changed("max-matches") {
			c.MaxMatches, _ = f.GetInt("max-matches")
		}
		if f.Changed("max-age") {
			c.MaxPatternAge, _ = f.GetInt("max-age")
		}
		if f.Changed("require-breakout") {
			c.RequireBreakout, _ = f.GetBool("require-breakout")
		}
		if f.Changed("converging") {
			c.RequireConvergingChannel, _ = f.GetBool("converging")
		}
		if f.Changed("clean-channel") {
			c.RequireCleanChannel, _ = f.GetBool("clean-channel")
		}
	}
}

// renderMatches prints matches as a table. records, when present, are the
// stored rows for the same matches in the same order.
func renderMatches(output *Output, app *App, matches []flags.PatternMatch, records []store.MatchRecord) {
	headers := []string{"#", "DIR", "T0", "T1", "T2", "T3", "T4", "T4 TIME", "BREAKOUT", "QUALITY"}
	if len(records) > 0 {
		headers = append(headers, "ID")
	}
	table := NewTable(output, headers...)
	for i, m := range matches {
		sk := m.Skeleton
		row := []string{
			strconv.Itoa(i + 1),
			output.Orientation(m.Orientation),
			FormatKeypoint(sk[flags.T0]),
			FormatKeypoint(sk[flags.T1]),
			FormatKeypoint(sk[flags.T2]),
			FormatKeypoint(sk[flags.T3]),
			FormatKeypoint(sk[flags.T4]),
			FormatDateTime(m.End().Time, app.Config.UI.DateFormat, app.Config.UI.TimeFormat),
			FormatBreakout(m),
			output.Quality(m.QualityScore),
		}
		if i < len(records) {
			row = append(row, ShortID(records[i].ID))
		}
		table.AddRow(row...)
	}
	table.Render()
}

func renderStats(output *Output, stats flags.Stats) {
	output.Bold("Scan Statistics")
	output.Printf("  Candles:     %d\n", stats.Candles)
	output.Printf("  Extrema:     %d\n", stats.Extrema)
	output.Printf("  Candidates:  %d\n", stats.Candidates)
	output.Printf("  Accepted:    %d\n", stats.Accepted)
	output.Printf("  Confirmed:   %d\n", stats.Confirmed)
	output.Printf("  Filtered:    %d\n", stats.Filtered)
	output.Printf("  Stale:       %d\n", stats.Stale)
	output.Printf("  Duplicates:  %d\n", stats.Duplicates)
	output.Printf("  Duration:    %s\n", FormatDuration(stats.Duration))

	if len(stats.Rejections) == 0 {
		return
	}
	reasons := make([]string, 0, len(stats.Rejections))
	for r := range stats.Rejections {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	output.Println("  Rejections:")
	for _, r := range reasons {
		output.Printf("    %-14s %d\n", r, stats.Rejections[flags.Rejection(r)])
	}
}
