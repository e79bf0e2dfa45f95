// Package config provides configuration management for the flag scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/errors"
	"flag-scanner/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Scanner  flags.Config   `mapstructure:"scanner"`
	Channel  ChannelConfig  `mapstructure:"channel"`
	Data     DataConfig     `mapstructure:"data"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	UI       UIConfig       `mapstructure:"ui"`

	Notifications NotificationConfig `mapstructure:"notifications"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// ChannelConfig holds per-timeframe channel touch tolerances. Coarser
// timeframes need looser tolerances for the clean-channel rule.
type ChannelConfig struct {
	TolerancePct map[string]float64 `mapstructure:"tolerance_pct"`
}

// DataConfig holds candle input configuration.
type DataConfig struct {
	Dir       string        `mapstructure:"dir"`
	Timeframe string        `mapstructure:"timeframe"`
	Source    string        `mapstructure:"source"` // "csv" or "cache"
	Lookback  time.Duration `mapstructure:"lookback"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	SaveMatches bool   `mapstructure:"save_matches"`
}

// ScheduleConfig holds periodic rescan configuration.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	Workers    int    `mapstructure:"workers"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age_days"`
}

// NotificationConfig holds notification settings for watch mode.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Level   string        `mapstructure:"level"` // all, breakouts_only, errors_only
	Bell    bool          `mapstructure:"bell"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/flag-scanner"
	}
	return filepath.Join(home, ".config", "flag-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the commented template and loading continues.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	dotenv, err := readDotEnv(filepath.Join(configDir, ".env"))
	if err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg, dotenv)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	d := flags.DefaultConfig()
	v.SetDefault("scanner.extrema_window", d.ExtremaWindow)
	v.SetDefault("scanner.min_move_pct", d.MinMovePct)
	v.SetDefault("scanner.min_pole_range_multiple", d.MinPoleRangeMultiple)
	v.SetDefault("scanner.retracement_floor_pct", d.RetracementFloorPct)
	v.SetDefault("scanner.first_pullback_floor_pct", d.FirstPullbackFloorPct)
	v.SetDefault("scanner.peak_tolerance_pct", d.PeakTolerancePct)
	v.SetDefault("scanner.breakout_buffer_pct", d.BreakoutBufferPct)
	v.SetDefault("scanner.breakout_price", string(d.BreakoutPrice))
	v.SetDefault("scanner.max_breakout_lookahead", d.MaxBreakoutLookahead)
	v.SetDefault("scanner.min_breakout_volume_ratio", d.MinBreakoutVolumeRatio)
	v.SetDefault("scanner.dedup_overlap_threshold", d.DedupOverlapThreshold)
	v.SetDefault("scanner.max_leg_alternatives", d.MaxLegAlternatives)
	v.SetDefault("scanner.min_quality_score", d.MinQualityScore)
	v.SetDefault("scanner.require_breakout", d.RequireBreakout)
	v.SetDefault("scanner.require_converging_channel", d.RequireConvergingChannel)
	v.SetDefault("scanner.require_clean_channel", d.RequireCleanChannel)
	v.SetDefault("scanner.channel_tolerance_pct", d.ChannelTolerancePct)
	v.SetDefault("scanner.max_matches", d.MaxMatches)
	v.SetDefault("scanner.max_pattern_age", d.MaxPatternAge)
	v.SetDefault("scanner.score_weights.symmetry", d.ScoreWeights.Symmetry)
	v.SetDefault("scanner.score_weights.tightness", d.ScoreWeights.Tightness)
	v.SetDefault("scanner.score_weights.volume_decay", d.ScoreWeights.VolumeDecay)

	v.SetDefault("channel.tolerance_pct", map[string]float64{
		"5m": 0.001,
		"1h": 0.003,
		"1d": 0.005,
	})

	v.SetDefault("data.dir", filepath.Join(configDir, "data"))
	v.SetDefault("data.timeframe", "1h")
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.lookback", "0s")

	v.SetDefault("storage.db_path", filepath.Join(configDir, "flagscan.db"))
	v.SetDefault("storage.save_matches", true)

	v.SetDefault("schedule.cron", "*/15 * * * *")
	v.SetDefault("schedule.workers", 4)
	v.SetDefault("schedule.run_on_start", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "flagscan.log"))
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.bell", false)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")
	v.SetDefault("notifications.webhook.max_attempts", 3)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04")
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

// readDotEnv reads KEY=value pairs from path. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return godotenv.Read(path)
}

// applyEnvOverrides applies FLAGSCAN_* variables. The process environment
// wins over the .env file.
func applyEnvOverrides(cfg *Config, dotenv map[string]string) {
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	if v := lookup("FLAGSCAN_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := lookup("FLAGSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := lookup("FLAGSCAN_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := lookup("FLAGSCAN_TIMEFRAME"); v != "" {
		cfg.Data.Timeframe = v
	}
	if v := lookup("FLAGSCAN_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
}

// resolvePaths expands a leading ~ in configured paths.
func (c *Config) resolvePaths() {
	c.Data.Dir = expandHome(c.Data.Dir)
	c.Storage.DBPath = expandHome(c.Storage.DBPath)
	c.Logging.FilePath = expandHome(c.Logging.FilePath)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Scanner.Validate(); err != nil {
		return err
	}
	for tf, tol := range c.Channel.TolerancePct {
		if tol < 0 || tol >= 1 {
			return errors.NewConfigError("channel.tolerance_pct."+tf, tol, "must be within [0, 1)")
		}
	}
	if c.Data.Source != "csv" && c.Data.Source != "cache" {
		return errors.NewConfigError("data.source", c.Data.Source, "must be 'csv' or 'cache'")
	}
	if c.Data.Timeframe == "" {
		return errors.NewConfigError("data.timeframe", c.Data.Timeframe, "must not be empty")
	}
	if c.Data.Lookback < 0 {
		return errors.NewConfigError("data.lookback", c.Data.Lookback, "must be non-negative")
	}
	if c.Schedule.Workers < 1 {
		return errors.NewConfigError("schedule.workers", c.Schedule.Workers, "must be at least 1")
	}
	if strings.TrimSpace(c.Schedule.Cron) == "" {
		return errors.NewConfigError("schedule.cron", c.Schedule.Cron, "must not be empty")
	}
	switch c.Notifications.Level {
	case "all", "breakouts_only", "errors_only":
	default:
		return errors.NewConfigError("notifications.level", c.Notifications.Level, "must be all, breakouts_only or errors_only")
	}
	if c.Notifications.Webhook.MaxAttempts < 1 {
		return errors.NewConfigError("notifications.webhook.max_attempts", c.Notifications.Webhook.MaxAttempts, "must be at least 1")
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return errors.NewConfigError("notifications.webhook.url", "", "required when the webhook is enabled")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return errors.NewConfigError("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}
	return nil
}

// ScannerFor returns the scanner configuration for a timeframe, with the
// channel tolerance taken from the per-timeframe table when present.
func (c *Config) ScannerFor(timeframe string) flags.Config {
	sc := c.Scanner
	if tol, ok := c.Channel.TolerancePct[strings.ToLower(timeframe)]; ok {
		sc.ChannelTolerancePct = tol
	}
	return sc
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.File = c.Logging.File
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	if c.Logging.MaxSize > 0 {
		lc.MaxSize = c.Logging.MaxSize
	}
	if c.Logging.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.MaxBackups
	}
	if c.Logging.MaxAge > 0 {
		lc.MaxAge = c.Logging.MaxAge
	}
	return lc
}

// ConfigFile returns the path of config.toml.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Dir, "config.toml")
}
