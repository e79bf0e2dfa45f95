package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Flag Scanner Configuration

[scanner]
# Bars on each side a swing high/low must dominate
extrema_window = 3
# Minimum flagpole move as a fraction of the T0 price (0.03 = 3%)
min_move_pct = 0.03
# Minimum pole height in mean candle high-low ranges (0 = disabled)
min_pole_range_multiple = 0.0
# T4 may retrace at most this fraction of the pole (0.5 = 50%)
retracement_floor_pct = 0.5
# Optional floor for the first pullback T2 (0 = disabled)
first_pullback_floor_pct = 0.0
# How far T3 may exceed T1, as a fraction of T1
peak_tolerance_pct = 0.0
# Breakout must clear the T1-T3 line by this fraction
breakout_buffer_pct = 0.003
# Price compared against the trendline: "close" or "extreme"
breakout_price = "close"
# Candles after T4 searched for a breakout
max_breakout_lookahead = 20
# Breakout volume as a multiple of mean volume (0 = disabled)
min_breakout_volume_ratio = 0.0
# Matches sharing more than this fraction of keypoints are duplicates
dedup_overlap_threshold = 0.5
# Candidates kept per run of same-kind swing points
max_leg_alternatives = 2
# Drop matches scoring below this quality (0..1)
min_quality_score = 0.0
# Only report flags with a confirmed breakout
require_breakout = false
# Reject flags whose channel widens
require_converging_channel = false
# Reject flags whose candles pierce the channel lines
require_clean_channel = false
# Channel touch tolerance when no per-timeframe value applies
channel_tolerance_pct = 0.0005
# Maximum matches per series (0 = unlimited)
max_matches = 0
# Only report flags whose T4 is at most this many candles before the last
# candle (0 = any age)
max_pattern_age = 0

[scanner.score_weights]
symmetry = 0.4
tightness = 0.3
volume_decay = 0.3

[channel.tolerance_pct]
# Channel touch tolerance by timeframe
5m = 0.001
1h = 0.003
1d = 0.005

[data]
# Directory of <SYMBOL>.csv files (timestamp,open,high,low,close,volume)
# dir = "~/.config/flag-scanner/data"
# Timeframe label used for storage and tolerances
timeframe = "1h"
# Where screen/watch read candles: "csv" or "cache"
source = "csv"
# How far back to read cached candles (0s = everything)
lookback = "0s"

[storage]
# SQLite database for the candle cache and detected matches
# db_path = "~/.config/flag-scanner/flagscan.db"
# Persist matches found by screen and watch
save_matches = true

[schedule]
# Cron spec for watch mode (5 or 6 fields, or @every 15m)
cron = "*/15 * * * *"
# Symbols scanned in parallel
workers = 4
# Run one scan immediately when watch starts
run_on_start = true

[logging]
# Level: debug, info, warn, error
level = "info"
# Write a rotating log file next to the config
file = true
max_size_mb = 50
max_backups = 5
max_age_days = 30

[notifications]
# Announce new flags found by watch
enabled = true
# Level: all, breakouts_only, errors_only
level = "all"
# Ring the terminal bell on confirmed breakouts
bell = false

[notifications.webhook]
# POST each new flag as JSON
enabled = false
url = ""
# Attempts per notification before giving up
max_attempts = 3

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
