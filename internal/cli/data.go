package cli

import (
	"github.com/spf13/cobra"

	"flag-scanner/internal/errors"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/security"
)

type importResult struct {
	Symbol  string `json:"symbol"`
	File    string `json:"file"`
	Candles int    `json:"candles"`
	Latest  string `json:"latest"`
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>...",
		Short: "Load candle CSV files into the candle cache",
		Long: `Store candles from CSV files in the SQLite candle cache so that scans can
run with data.source = "cache". Existing candles with the same timestamp are
replaced. The symbol is the file name unless --symbol is given.`,
		Example: `  flagscan import data/*.csv --timeframe 1h
  flagscan import export.csv --symbol RELIANCE --timeframe 1d`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx := cmd.Context()
			timeframe := app.timeframe(cmd)

			symbolFlag, _ := cmd.Flags().GetString("symbol")
			if symbolFlag != "" {
				if len(args) > 1 {
					return errors.Wrap(errors.ErrInvalidInput, "--symbol can only be used with a single file")
				}
				var err error
				if symbolFlag, err = security.ValidateSymbol(symbolFlag); err != nil {
					return err
				}
			}

			st, err := app.OpenStore()
			if err != nil {
				return err
			}

			var loader feed.CSVLoader
			var results []importResult
			for _, path := range args {
				series, err := loader.LoadFile(path)
				if err != nil {
					return err
				}
				symbol := feed.SymbolFromPath(path)
				if symbolFlag != "" {
					symbol = symbolFlag
				}
				if err := st.SaveCandles(ctx, symbol, timeframe, series.Candles()); err != nil {
					return err
				}
				latest, err := st.GetCandlesFreshness(ctx, symbol, timeframe)
				if err != nil {
					return err
				}
				app.Logger.Info().Str("symbol", symbol).Str("timeframe", timeframe).Int("candles", series.Len()).Msg("Candles imported")
				results = append(results, importResult{
					Symbol:  symbol,
					File:    path,
					Candles: series.Len(),
					Latest:  FormatDateTime(latest, app.Config.UI.DateFormat, app.Config.UI.TimeFormat),
				})
			}

			if output.IsJSON() {
				return output.JSON(results)
			}
			table := NewTable(output, "SYMBOL", "CANDLES", "LATEST", "FILE")
			for _, r := range results {
				table.AddRow(r.Symbol, FormatThousands(int64(r.Candles)), r.Latest, r.File)
			}
			table.Render()
			output.Success("✓ Imported %d file(s) into %s", len(results), timeframe)
			return nil
		},
	}

	cmd.Flags().String("timeframe", "", "timeframe label (default: data.timeframe)")
	cmd.Flags().String("symbol", "", "symbol for a single file (default: file name)")

	return cmd
}
