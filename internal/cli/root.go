// Package cli provides the command-line interface for the flag scanner.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/config"
	"flag-scanner/internal/feed"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies. Config and Logger are populated
// before any subcommand runs; the store is opened on first use.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "flagscan",
		Short: "Flag pattern scanner for OHLCV candles",
		Long: `flagscan finds five-point bullish and bearish flag formations
(flagpole T0-T1, pullback T2, second peak T3, pullback T4) in candle data
and confirms breakouts through the T1-T3 trendline.

Candles come from CSV files (timestamp,open,high,low,close,volume) or from
the local candle cache. Detected flags can be stored and labeled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/flag-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newScreenCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newMatchesCmd(app))

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	if a.Config == nil {
		if err := a.load(cmd); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, a.Logger))
	return nil
}

func (a *App) load(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	a.Logger.Debug().Str("config_dir", cfg.Dir).Msg("Configuration loaded")
	return nil
}

// OpenStore opens the SQLite store on first use.
func (a *App) OpenStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	st, err := store.NewSQLiteStore(a.Config.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Storage.DBPath).Msg("SQLite store initialized")
	a.Store = st
	return st, nil
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// Scanner builds a scanner for the timeframe from the loaded configuration.
func (a *App) Scanner(timeframe string, overrides func(*flags.Config)) (*flags.Scanner, error) {
	cfg := a.Config.ScannerFor(timeframe)
	if overrides != nil {
		overrides(&cfg)
	}
	return flags.NewScanner(cfg, flags.WithLogger(a.Logger))
}

// Source returns the configured candle source for batch commands. dir
// overrides the configured data directory for the csv source.
func (a *App) Source(dir, timeframe string) (feed.Source, error) {
	if a.Config.Data.Source == "cache" {
		st, err := a.OpenStore()
		if err != nil {
			return nil, err
		}
		return &feed.StoreSource{Store: st, Timeframe: timeframe, Lookback: a.Config.Data.Lookback}, nil
	}
	if dir == "" {
		dir = a.Config.Data.Dir
	}
	return feed.NewDirSource(dir), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("flagscan v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}
