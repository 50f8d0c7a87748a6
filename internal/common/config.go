package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Vigil
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Trading     TradingConfig   `toml:"trading"`
	HTTP        HTTPConfig      `toml:"http"`
	Index       IndexConfig     `toml:"index"`
	Alerts      AlertConfig     `toml:"alerts"`
	Notify      NotifyConfig    `toml:"notify"`
	Clients     ClientsConfig   `toml:"clients"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// SchedulerConfig holds the scheduler master switch and default job intervals.
// An interval of 0 disables the corresponding default job.
type SchedulerConfig struct {
	Enabled             bool  `toml:"enabled"`
	AlertIntervalMS     int64 `toml:"alert_interval_ms"`
	PortfolioIntervalMS int64 `toml:"portfolio_interval_ms"`
	DigestIntervalMS    int64 `toml:"digest_interval_ms"`
	StopLossIntervalMS  int64 `toml:"stoploss_interval_ms"`
	TickMS              int64 `toml:"tick_ms"`
	DrainTimeoutMS      int64 `toml:"drain_timeout_ms"`
	Workers             int   `toml:"workers"`
}

// GetTick returns the catch-up tick period.
func (c *SchedulerConfig) GetTick() time.Duration {
	if c.TickMS <= 0 {
		return time.Minute
	}
	return time.Duration(c.TickMS) * time.Millisecond
}

// GetDrainTimeout returns how long Stop waits for in-flight jobs.
func (c *SchedulerConfig) GetDrainTimeout() time.Duration {
	if c.DrainTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.DrainTimeoutMS) * time.Millisecond
}

// GetWorkers returns the bounded pool size for per-user fan-out.
func (c *SchedulerConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// TradingConfig holds stop-loss execution configuration.
// DryRun defaults to true: execution adapters are never called unless it is
// explicitly set to false.
type TradingConfig struct {
	DryRun             *bool `toml:"dry_run"`
	StopLossCooldownMS int64 `toml:"stoploss_cooldown_ms"`
}

// IsDryRun reports whether stop-loss execution is disabled.
func (c *TradingConfig) IsDryRun() bool {
	return c.DryRun == nil || *c.DryRun
}

// GetStopLossCooldown returns the cooldown written into trigger rows.
func (c *TradingConfig) GetStopLossCooldown() time.Duration {
	if c.StopLossCooldownMS <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.StopLossCooldownMS) * time.Millisecond
}

// HTTPConfig holds HTTP fabric retry and rate-limit configuration.
type HTTPConfig struct {
	MaxAttempts  int               `toml:"max_attempts"`
	MinDelayMS   int64             `toml:"min_delay_ms"`
	MaxDelayMS   int64             `toml:"max_delay_ms"`
	BackoffMult  float64           `toml:"backoff_mult"`
	Jitter       float64           `toml:"jitter"`
	RetryMethods []string          `toml:"retry_methods"`
	RateDefault  string            `toml:"rate_default"` // "N/windowMs", e.g. "60/60000"
	RateHosts    map[string]string `toml:"rate_hosts"`   // per-host overrides
	TimeoutMS    int64             `toml:"timeout_ms"`
}

// GetTimeout returns the per-request timeout.
func (c *HTTPConfig) GetTimeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// IndexConfig holds market index sync configuration.
type IndexConfig struct {
	StaleMS          int64 `toml:"stale_ms"`
	LimitPerPlatform int   `toml:"limit_per_platform"`
	SyncIntervalMS   int64 `toml:"sync_interval_ms"`
}

// GetStaleAfter returns the prune horizon for index entries.
func (c *IndexConfig) GetStaleAfter() time.Duration {
	if c.StaleMS <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.StaleMS) * time.Millisecond
}

// AlertConfig holds alert evaluation defaults.
type AlertConfig struct {
	PriceChangeWindowSecs int64   `toml:"price_change_window_secs"`
	VolumeSpikeMult       float64 `toml:"volume_spike_mult"`
}

// GetPriceChangeWindow returns the default lookback window for priceChangePct alerts.
func (c *AlertConfig) GetPriceChangeWindow() time.Duration {
	if c.PriceChangeWindowSecs <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.PriceChangeWindowSecs) * time.Second
}

// GetVolumeSpikeMult returns the default volume spike multiplier.
func (c *AlertConfig) GetVolumeSpikeMult() float64 {
	if c.VolumeSpikeMult <= 0 {
		return 3
	}
	return c.VolumeSpikeMult
}

// NotifyConfig holds outbound notification rate limiting.
type NotifyConfig struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// ClientsConfig holds venue and embedding client configurations
type ClientsConfig struct {
	Polymarket  VenueClientConfig `toml:"polymarket"`
	Kalshi      VenueClientConfig `toml:"kalshi"`
	Manifold    VenueClientConfig `toml:"manifold"`
	Metaculus   VenueClientConfig `toml:"metaculus"`
	Hyperliquid VenueClientConfig `toml:"hyperliquid"`
	Binance     VenueClientConfig `toml:"binance"`
	Bybit       VenueClientConfig `toml:"bybit"`
	MEXC        VenueClientConfig `toml:"mexc"`
	Gemini      GeminiConfig      `toml:"gemini"`
}

// VenueClientConfig holds per-venue endpoint configuration.
type VenueClientConfig struct {
	BaseURL  string `toml:"base_url"`
	DataURL  string `toml:"data_url"` // secondary host (e.g. Polymarket gamma)
	APIKey   string `toml:"api_key"`
	Disabled bool   `toml:"disabled"`
}

// GeminiConfig holds the embedding client configuration.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Namespace: "vigil",
			Database:  "vigil",
			Username:  "root",
			Password:  "root",
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			AlertIntervalMS:     30_000,
			PortfolioIntervalMS: 3_600_000,
			DigestIntervalMS:    300_000,
			StopLossIntervalMS:  120_000,
			TickMS:              60_000,
			DrainTimeoutMS:      30_000,
			Workers:             4,
		},
		Trading: TradingConfig{
			StopLossCooldownMS: 600_000,
		},
		HTTP: HTTPConfig{
			MaxAttempts:  3,
			MinDelayMS:   500,
			MaxDelayMS:   30_000,
			BackoffMult:  2,
			Jitter:       0.1,
			RetryMethods: []string{"GET", "HEAD", "OPTIONS"},
			RateDefault:  "60/60000",
			TimeoutMS:    30_000,
		},
		Index: IndexConfig{
			StaleMS:          7 * 24 * 3_600_000,
			LimitPerPlatform: 500,
			SyncIntervalMS:   1_800_000,
		},
		Alerts: AlertConfig{
			PriceChangeWindowSecs: 600,
			VolumeSpikeMult:       3,
		},
		Notify: NotifyConfig{
			RatePerSecond: 1,
			Burst:         5,
		},
		Clients: ClientsConfig{
			Polymarket:  VenueClientConfig{BaseURL: "https://data-api.polymarket.com", DataURL: "https://gamma-api.polymarket.com"},
			Kalshi:      VenueClientConfig{BaseURL: "https://api.elections.kalshi.com/trade-api/v2"},
			Manifold:    VenueClientConfig{BaseURL: "https://api.manifold.markets"},
			Metaculus:   VenueClientConfig{BaseURL: "https://www.metaculus.com"},
			Hyperliquid: VenueClientConfig{BaseURL: "https://api.hyperliquid.xyz"},
			Binance:     VenueClientConfig{BaseURL: "https://fapi.binance.com"},
			Bybit:       VenueClientConfig{BaseURL: "https://api.bybit.com"},
			MEXC:        VenueClientConfig{BaseURL: "https://contract.mexc.com"},
			Gemini:      GeminiConfig{Model: "gemini-embedding-001"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIGIL_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("VIGIL_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("VIGIL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if addr := os.Getenv("VIGIL_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if key := os.Getenv("VIGIL_GEMINI_API_KEY"); key != "" {
		config.Clients.Gemini.APIKey = key
	}

	// Scheduler
	if v := os.Getenv("CRON_ENABLED"); v != "" {
		config.Scheduler.Enabled = parseBool(v)
	}
	envInt64(&config.Scheduler.AlertIntervalMS, "CRON_ALERT_INTERVAL_MS")
	envInt64(&config.Scheduler.PortfolioIntervalMS, "CRON_PORTFOLIO_INTERVAL_MS")
	envInt64(&config.Scheduler.DigestIntervalMS, "CRON_DIGEST_INTERVAL_MS")
	envInt64(&config.Scheduler.StopLossIntervalMS, "CRON_STOPLOSS_INTERVAL_MS")

	// Trading
	if v := os.Getenv("TRADING_DRY_RUN"); v != "" {
		b := parseBool(v)
		config.Trading.DryRun = &b
	}
	envInt64(&config.Trading.StopLossCooldownMS, "TRADING_STOPLOSS_COOLDOWN_MS")

	// HTTP fabric
	if v := os.Getenv("HTTP_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.HTTP.MaxAttempts = n
		}
	}
	envInt64(&config.HTTP.MinDelayMS, "HTTP_MIN_DELAY_MS")
	envInt64(&config.HTTP.MaxDelayMS, "HTTP_MAX_DELAY_MS")
	envFloat(&config.HTTP.Jitter, "HTTP_JITTER")
	envFloat(&config.HTTP.BackoffMult, "HTTP_BACKOFF_MULT")
	if v := os.Getenv("HTTP_RETRY_METHODS"); v != "" {
		config.HTTP.RetryMethods = splitAndTrim(v)
	}
	if v := os.Getenv("HTTP_RATE_DEFAULT"); v != "" {
		config.HTTP.RateDefault = v
	}

	// Index and alerts
	envInt64(&config.Index.StaleMS, "MARKETINDEX_STALE_MS")
	envInt64(&config.Alerts.PriceChangeWindowSecs, "ALERT_PRICE_CHANGE_WINDOW_SECS")
	envFloat(&config.Alerts.VolumeSpikeMult, "ALERT_VOLUME_SPIKE_MULT")
}

// envInt64 overrides dst with the named env var when set and parseable.
func envInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// ParseRate parses "N/windowMs" into (maxRequests, window). Falls back to
// 60 requests per minute on malformed input.
func ParseRate(spec string) (int, time.Duration) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) == 2 {
		n, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		ms, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err1 == nil && err2 == nil && n > 0 && ms > 0 {
			return n, time.Duration(ms) * time.Millisecond
		}
	}
	return 60, time.Minute
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
