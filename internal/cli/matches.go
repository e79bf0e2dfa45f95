package cli

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/errors"
	"flag-scanner/internal/models"
	"flag-scanner/internal/security"
	"flag-scanner/internal/store"
)

func newMatchesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "matches",
		Aliases: []string{"m"},
		Short:   "Review and label stored flags",
		Long:    "List stored flags, inspect one in detail and label it valid, invalid or unsure.",
	}

	cmd.AddCommand(newMatchesListCmd(app))
	cmd.AddCommand(newMatchesShowCmd(app))
	cmd.AddCommand(newMatchesLabelCmd(app))
	cmd.AddCommand(newMatchesExportCmd(app))

	return cmd
}

func newMatchesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored flags, newest first",
		Example: `  flagscan matches list --unlabeled
  flagscan matches list --symbol INFY --label valid
  flagscan matches list --since 72h --min-quality 0.6 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			filter, err := matchFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			records, err := st.GetMatches(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if records == nil {
					records = []store.MatchRecord{}
				}
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No stored flags match")
				return nil
			}

			ui := app.Config.UI
			table := NewTable(output, "ID", "SYMBOL", "TF", "DIR", "T0 TIME", "T4 TIME", "BREAKOUT", "QUALITY", "LABEL", "NOTE", "DETECTED")
			for _, rec := range records {
				m := rec.Match
				table.AddRow(
					ShortID(rec.ID),
					rec.Symbol,
					rec.Timeframe,
					output.Orientation(m.Orientation),
					FormatDateTime(m.Start().Time, ui.DateFormat, ui.TimeFormat),
					FormatDateTime(m.End().Time, ui.DateFormat, ui.TimeFormat),
					FormatBreakout(m),
					output.Quality(m.QualityScore),
					output.label(rec.Label),
					TruncateString(rec.Note, 24),
					FormatDateTime(rec.DetectedAt.Local(), ui.DateFormat, ui.TimeFormat),
				)
			}
			table.Render()
			output.Dim("%d flag(s)", len(records))
			return nil
		},
	}

	addMatchFilterFlags(cmd, 50)

	return cmd
}

func addMatchFilterFlags(cmd *cobra.Command, limit int) {
	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().String("timeframe", "", "filter by timeframe")
	cmd.Flags().String("orientation", "", "filter by direction: bullish or bearish")
	cmd.Flags().String("label", "", "filter by label: valid, invalid or unsure")
	cmd.Flags().Bool("unlabeled", false, "only flags without a label")
	cmd.Flags().Float64("min-quality", 0, "minimum quality score")
	cmd.Flags().Duration("since", 0, "only flags detected within this duration")
	cmd.Flags().Int("limit", limit, "maximum rows (0 = all)")
}

func matchFilterFromFlags(cmd *cobra.Command) (store.MatchFilter, error) {
	f := cmd.Flags()
	var filter store.MatchFilter

	symbol, _ := f.GetString("symbol")
	filter.Symbol = strings.ToUpper(symbol)
	filter.Timeframe, _ = f.GetString("timeframe")
	filter.Unlabeled, _ = f.GetBool("unlabeled")
	filter.MinQuality, _ = f.GetFloat64("min-quality")
	filter.Limit, _ = f.GetInt("limit")

	if o, _ := f.GetString("orientation"); o != "" {
		filter.Orientation = models.Orientation(strings.ToUpper(o))
		if !filter.Orientation.Valid() {
			return filter, errors.Wrapf(errors.ErrInvalidInput, "orientation %q (want bullish or bearish)", o)
		}
	}
	if l, _ := f.GetString("label"); l != "" {
		label, err := store.ParseLabel(l)
		if err != nil {
			return filter, err
		}
		filter.Label = label
		if label == store.LabelNone {
			filter.Unlabeled = true
		}
	}
	if since, _ := f.GetDuration("since"); since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter, nil
}

func newMatchesShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored flag in detail",
		Long:  "Show one stored flag. A unique prefix of the id is enough.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			rec, err := st.GetMatchByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rec)
			}
			showMatch(output, app, rec)
			return nil
		},
	}
}

func showMatch(output *Output, app *App, rec *store.MatchRecord) {
	ui := app.Config.UI
	m := rec.Match

	output.Bold("%s  %s  %s", rec.Symbol, rec.Timeframe, output.Orientation(m.Orientation))
	output.Printf("  ID:        %s\n", rec.ID)
	output.Printf("  Label:     %s\n", output.label(rec.Label))
	if rec.Note != "" {
		output.Printf("  Note:      %s\n", rec.Note)
	}
	output.Printf("  Detected:  %s\n", FormatDateTime(rec.DetectedAt.Local(), ui.DateFormat, ui.TimeFormat))
	output.Println()

	table := NewTable(output, "POINT", "INDEX", "PRICE", "TIME")
	for _, k := range m.Skeleton {
		table.AddRow(k.Role.String(), strconv.Itoa(k.Index), FormatPrice(k.Price), FormatDateTime(k.Time, ui.DateFormat, ui.TimeFormat))
	}
	table.Render()
	output.Println()

	output.Printf("  Pole:      %s\n", FormatPrice(m.PoleHeight))
	output.Printf("  Trendline: %s at %d, slope %.4f/bar\n", FormatPrice(m.Trendline.AnchorPrice), m.Trendline.AnchorIndex, m.Trendline.Slope)
	output.Printf("  Breakout:  %s\n", FormatBreakout(m))
	output.Printf("  Quality:   %s  (symmetry %s, tightness %s, volume decay %s)\n",
		output.Quality(m.QualityScore),
		FormatQuality(m.Components.Symmetry),
		FormatQuality(m.Components.Tightness),
		volumeComponent(m.Components))
}

func volumeComponent(c flags.ScoreComponents) string {
	if !c.HasVolume {
		return "n/a"
	}
	return FormatQuality(c.VolumeDecay)
}

func newMatchesLabelCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label <id> <valid|invalid|unsure|none>",
		Short: "Label a stored flag",
		Long: `Label a stored flag as valid, invalid or unsure. "none" clears the label.
A unique prefix of the id is enough. Labels survive rescans.`,
		Example: `  flagscan matches label 3f2a9c1e valid
  flagscan matches label 3f2a invalid --note "pole too choppy"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			label, err := store.ParseLabel(args[1])
			if err != nil {
				return err
			}
			note, _ := cmd.Flags().GetString("note")
			note = security.SanitizeText(note)

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			if err := st.LabelMatch(cmd.Context(), args[0], label, note); err != nil {
				return err
			}
			rec, err := st.GetMatchByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.Logger.Info().Str("id", rec.ID).Str("label", string(label)).Msg("Match labeled")

			if output.IsJSON() {
				return output.JSON(rec)
			}
			output.Success("✓ %s %s %s labeled %s", ShortID(rec.ID), rec.Symbol, rec.Match.Orientation, output.label(label))
			return nil
		},
	}

	cmd.Flags().String("note", "", "free-form note stored with the label")

	return cmd
}

func newMatchesExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored flags as CSV, JSON or YAML",
		Long: `Export stored flags, one flattened row per flag with keypoints, breakout,
quality and label. Takes the same filters as list.`,
		Example: `  flagscan matches export --label valid --output labeled.csv
  flagscan matches export --format yaml --since 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := matchFilterFromFlags(cmd)
			if err != nil {
				return err
			}
			formatFlag, _ := cmd.Flags().GetString("format")
			format, err := store.ParseExportFormat(formatFlag)
			if err != nil {
				return err
			}

			st, err := app.OpenStore()
			if err != nil {
				return err
			}
			records, err := st.GetMatches(cmd.Context(), filter)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("output")
			if path == "" || path == "-" {
				return store.WriteExport(cmd.OutOrStdout(), format, records)
			}
			f, err := os.Create(path)
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", path)
			}
			if err := store.WriteExport(f, format, records); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			app.Logger.Info().Str("file", path).Str("format", string(format)).Int("flags", len(records)).Msg("Flags exported")
			app.output(cmd).Success("✓ Exported %d flag(s) to %s", len(records), path)
			return nil
		},
	}

	addMatchFilterFlags(cmd, 0)
	cmd.Flags().String("format", "csv", "export format: csv, json or yaml")
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	return cmd
}

func (o *Output) label(l store.Label) string {
	switch l {
	case store.LabelValid:
		return o.Green(string(l))
	case store.LabelInvalid:
		return o.Red(string(l))
	case store.LabelUnsure:
		return o.Yellow(string(l))
	default:
		return o.DimText("-")
	}
}
