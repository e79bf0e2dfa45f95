package cli

import (
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flag-scanner/internal/analysis/screener"
	"flag-scanner/internal/logging"
	"flag-scanner/internal/notify"
	"flag-scanner/internal/scheduler"
	"flag-scanner/internal/security"
)

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan the data directory on a schedule",
		Long: `Rescan all symbols on the cron schedule from schedule.cron and store
new flags as they appear. New flags are announced on the terminal and,
when notifications.webhook is set, posted to the webhook. Runs until
interrupted.

Cron specs take 5 fields, 6 with seconds, or descriptors such as @hourly
and @every 15m.`,
		Example: `  flagscan watch
  flagscan watch --cron "*/5 9-15 * * 1-5" --timeframe 5m
  flagscan watch --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			timeframe := app.timeframe(cmd)
			dir, _ := cmd.Flags().GetString("dir")
			src, err := app.Source(dir, timeframe)
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

			logger := logging.WithOperation(logging.FromContext(ctx), "watch")
			ctx = logging.WithLogger(ctx, logger)
			job := &scheduler.ScanJob{
				Source:    src,
				Screener:  screener.New(scanner, workers, logger),
				Timeframe: timeframe,
				OnSummary: func(s scheduler.ScanSummary, hits []screener.Hit) {
					printSummary(output, s, hits)
				},
			}
			if noNotify, _ := cmd.Flags().GetBool("no-notify"); !noNotify && app.Config.Notifications.Enabled {
				var out io.Writer
				if !output.IsJSON() {
					out = cmd.OutOrStdout()
				}
				notifier := notify.New(app.Config.Notifications, out)
				notifier.SetColorEnabled(output.colorEnabled)
				event := logger.Debug().Strs("channels", notifier.Channels())
				if app.Config.Notifications.Webhook.Enabled {
					event = event.Str("webhook", security.MaskURL(app.Config.Notifications.Webhook.URL))
				}
				event.Msg("Notifications enabled")
				job.Notifier = notifier
			}
			if app.Config.Storage.SaveMatches {
				st, err := app.OpenStore()
				if err != nil {
					return err
				}
				job.Store = st
			}

			if once, _ := cmd.Flags().GetBool("once"); once {
				return job.Run(ctx)
			}

			spec := app.Config.Schedule.Cron
			if cmd.Flags().Changed("cron") {
				spec, _ = cmd.Flags().GetString("cron")
			}
			sched, err := scheduler.New(spec, job.Run, logger)
			if err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			if !output.IsJSON() {
				output.Info("Watching %s on %q (Ctrl-C to stop)", timeframe, spec)
			}
			if app.Config.Schedule.RunOnStart {
				if err := sched.RunNow(ctx); err != nil {
					logger.Error().Err(err).Msg("Initial scan failed")
				}
			}
			if next := sched.Status().Next; !next.IsZero() && !output.IsJSON() {
				output.Dim("Next run: %s", next.Format(time.RFC3339))
			}

			<-ctx.Done()
			st := sched.Status()
			logger.Info().Int("runs", st.Runs).Int("skipped", st.Skipped).Msg("Watch stopped")
			return nil
		},
	}

	cmd.Flags().String("dir", "", "data directory (default: data.dir)")
	cmd.Flags().String("timeframe", "", "timeframe label (default: data.timeframe)")
	cmd.Flags().String("cron", "", "cron spec (default: schedule.cron)")
	cmd.Flags().Int("workers", 0, "symbols scanned in parallel (default: schedule.workers)")
	cmd.Flags().Bool("once", false, "run a single scan and exit")
	cmd.Flags().Bool("no-notify", false, "do not announce new flags")
	addScannerFlags(cmd)

	return cmd
}

func printSummary(output *Output, s scheduler.ScanSummary, hits []screener.Hit) {
	if output.IsJSON() {
		output.JSON(map[string]interface{}{
			"time":    time.Now().UTC(),
			"summary": s,
			"hits":    len(hits),
		})
		return
	}
	line := output.DimText(time.Now().Format("15:04:05"))
	output.Printf("%s  %d symbol(s)  %d flag(s)  %s new  %d failed\n",
		line, s.Symbols, s.Matches, output.Green(strconv.Itoa(s.New)), s.Failed)
	for _, h := range hits {
		if h.Match.BreakoutConfirmed {
			output.Printf("    %s %s  T4 %s  breakout %s  quality %s\n",
				output.Orientation(h.Match.Orientation), h.Symbol,
				FormatKeypoint(h.Match.End()), FormatBreakout(h.Match), output.Quality(h.Match.QualityScore))
		}
	}
}
