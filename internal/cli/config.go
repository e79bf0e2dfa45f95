package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"flag-scanner/internal/config"
	"flag-scanner/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				cfg := *app.Config
				if cfg.Notifications.Webhook.URL != "" {
					cfg.Notifications.Webhook.URL = security.MaskURL(cfg.Notifications.Webhook.URL)
				}
				return output.JSON(cfg)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := app.output(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"dir":  app.Config.Dir,
					"file": app.Config.ConfigFile(),
				})
			} else {
				output.Println(app.Config.ConfigFile())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	sc := cfg.Scanner
	output.Bold("Scanner")
	output.Printf("  Extrema Window:     %d\n", sc.ExtremaWindow)
	output.Printf("  Min Move:           %s\n", FormatPercent(sc.MinMovePct))
	output.Printf("  Min Pole Range:     %.2fx mean range\n", sc.MinPoleRangeMultiple)
	output.Printf("  Retracement Floor:  %s\n", FormatPercent(sc.RetracementFloorPct))
	output.Printf("  Pullback Floor:     %s\n", FormatPercent(sc.FirstPullbackFloorPct))
	output.Printf("  Peak Tolerance:     %s\n", FormatPercent(sc.PeakTolerancePct))
	output.Printf("  Breakout Buffer:    %s\n", FormatPercent(sc.BreakoutBufferPct))
	output.Printf("  Breakout Price:     %s\n", sc.BreakoutPrice)
	output.Printf("  Lookahead:          %d candles\n", sc.MaxBreakoutLookahead)
	output.Printf("  Min Volume Ratio:   %.2f\n", sc.MinBreakoutVolumeRatio)
	output.Printf("  Dedup Overlap:      %.2f\n", sc.DedupOverlapThreshold)
	output.Printf("  Leg Alternatives:   %d\n", sc.MaxLegAlternatives)
	output.Printf("  Min Quality:        %s\n", FormatQuality(sc.MinQualityScore))
	output.Printf("  Require Breakout:   %v\n", sc.RequireBreakout)
	output.Printf("  Converging Channel: %v\n", sc.RequireConvergingChannel)
	output.Printf("  Clean Channel:      %v\n", sc.RequireCleanChannel)
	output.Printf("  Max Matches:        %d\n", sc.MaxMatches)
	output.Printf("  Max Pattern Age:    %d candles\n", sc.MaxPatternAge)
	output.Printf("  Score Weights:      symmetry %.2f, tightness %.2f, volume decay %.2f\n",
		sc.ScoreWeights.Symmetry, sc.ScoreWeights.Tightness, sc.ScoreWeights.VolumeDecay)
	output.Println()

	output.Bold("Channel Tolerance")
	timeframes := make([]string, 0, len(cfg.Channel.TolerancePct))
	for tf := range cfg.Channel.TolerancePct {
		timeframes = append(timeframes, tf)
	}
	sort.Strings(timeframes)
	output.Printf("  %-6s %s\n", "*", FormatPercent(sc.ChannelTolerancePct))
	for _, tf := range timeframes {
		output.Printf("  %-6s %s\n", tf, FormatPercent(cfg.Channel.TolerancePct[tf]))
	}
	output.Println()

	output.Bold("Data")
	output.Printf("  Source:     %s\n", cfg.Data.Source)
	output.Printf("  Directory:  %s\n", cfg.Data.Dir)
	output.Printf("  Timeframe:  %s\n", cfg.Data.Timeframe)
	output.Printf("  Lookback:   %s\n", cfg.Data.Lookback)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:     %s\n", cfg.Storage.DBPath)
	output.Printf("  Save Matches: %v\n", cfg.Storage.SaveMatches)
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Cron:         %s\n", cfg.Schedule.Cron)
	output.Printf("  Workers:      %d\n", cfg.Schedule.Workers)
	output.Printf("  Run On Start: %v\n", cfg.Schedule.RunOnStart)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled: %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:   %s\n", cfg.Notifications.Level)
	output.Printf("  Bell:    %v\n", cfg.Notifications.Bell)
	if cfg.Notifications.Webhook.Enabled {
		output.Printf("  Webhook: %s (%d attempts)\n", security.MaskURL(cfg.Notifications.Webhook.URL), cfg.Notifications.Webhook.MaxAttempts)
	}
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File {
		output.Printf("  File:  %s\n", cfg.Logging.FilePath)
	}
}
