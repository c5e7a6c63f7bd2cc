package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ThurX360/WIZFUT/internal/logging"
)

// Source kinds accepted by source.kind.
const (
	SourceCSV    = "csv"
	SourceFutwiz = "futwiz"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	History   HistoryConfig   `mapstructure:"history"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SourceConfig selects and parameterises the upstream feed.
type SourceConfig struct {
	Kind   string       `mapstructure:"kind"`
	CSV    CSVConfig    `mapstructure:"csv"`
	Futwiz FutwizConfig `mapstructure:"futwiz"`
}

// CSVConfig covers the Futbin-style export reader.
type CSVConfig struct {
	Path string `mapstructure:"path"`
	// Columns maps canonical field names to the file's headers; empty means
	// the default Futbin headers.
	Columns map[string]string `mapstructure:"columns"`
}

// FutwizConfig covers the price-table scraper.
type FutwizConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Platform  string        `mapstructure:"platform"`
	Pages     int           `mapstructure:"pages"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageDelay time.Duration `mapstructure:"page_delay"`
	UserAgent string        `mapstructure:"user_agent"`
}

// HistoryConfig bounds the in-memory price history.
type HistoryConfig struct {
	MaxPoints  int `mapstructure:"max_points"`
	MinSamples int `mapstructure:"min_samples"`
}

// DetectConfig carries every detection threshold.
type DetectConfig struct {
	MinDiscount       float64 `mapstructure:"min_discount"`
	ZScoreMin         float64 `mapstructure:"zscore_min"`
	FakeDropPct       float64 `mapstructure:"fake_drop_pct"`
	LowVolatilityMax  float64 `mapstructure:"low_volatility_max"`
	ShortHistoryMax   int     `mapstructure:"short_history_max"`
	SpikePct          float64 `mapstructure:"spike_pct"`
	LowConfidenceMode string  `mapstructure:"low_confidence_mode"`
}

// AlertingConfig defines cooldown and routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Cooldown   time.Duration  `mapstructure:"cooldown"`
	Channels   []string       `mapstructure:"channels"`
	MaxRetries int            `mapstructure:"max_retries"`
	Discord    DiscordConfig  `mapstructure:"discord"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig describes the webhook sink.
type DiscordConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelegramConfig describes the Telegram sink. The channel list on
// AlertingConfig decides whether it is used.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WIZFUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original tooling reads this exact variable; honour it directly.
	_ = v.BindEnv("alerting.discord.webhook_url", "WIZFUT_ALERTING_DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "wizfut")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "20s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x575a4654))

	v.SetDefault("source.kind", SourceCSV)
	v.SetDefault("source.csv.path", "./data/futbin_export.csv")
	v.SetDefault("source.futwiz.base_url", "https://www.futwiz.com/en/fc26/players")
	v.SetDefault("source.futwiz.platform", "ps")
	v.SetDefault("source.futwiz.pages", 1)
	v.SetDefault("source.futwiz.timeout", "15s")
	v.SetDefault("source.futwiz.page_delay", "1s")
	v.SetDefault("source.futwiz.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36")

	v.SetDefault("history.max_points", 200)
	v.SetDefault("history.min_samples", 5)

	v.SetDefault("detect.min_discount", 0.12)
	v.SetDefault("detect.zscore_min", 1.8)
	v.SetDefault("detect.fake_drop_pct", 0.40)
	v.SetDefault("detect.low_volatility_max", 250.0)
	v.SetDefault("detect.short_history_max", 8)
	v.SetDefault("detect.spike_pct", 0.20)
	v.SetDefault("detect.low_confidence_mode", "annotate")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "15m")
	v.SetDefault("alerting.channels", []string{"discord"})
	v.SetDefault("alerting.max_retries", 3)
	v.SetDefault("alerting.discord.timeout", "10s")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs the fatal startup checks. Anything that would fail
// mid-run must fail here instead.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.History.MaxPoints <= 0 {
		return fmt.Errorf("history.max_points must be greater than zero")
	}
	if c.History.MinSamples < 0 {
		return fmt.Errorf("history.min_samples cannot be negative")
	}

	switch c.Source.Kind {
	case SourceCSV:
		if c.Source.CSV.Path == "" {
			return fmt.Errorf("source.csv.path is required for the csv source")
		}
	case SourceFutwiz:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceCSV, SourceFutwiz, c.Source.Kind)
	}

	for _, threshold := range []struct {
		name  string
		value float64
	}{
		{"detect.min_discount", c.Detect.MinDiscount},
		{"detect.zscore_min", c.Detect.ZScoreMin},
		{"detect.fake_drop_pct", c.Detect.FakeDropPct},
		{"detect.low_volatility_max", c.Detect.LowVolatilityMax},
		{"detect.spike_pct", c.Detect.SpikePct},
	} {
		if threshold.value < 0 {
			return fmt.Errorf("%s cannot be negative", threshold.name)
		}
	}
	if c.Detect.ShortHistoryMax < 0 {
		return fmt.Errorf("detect.short_history_max cannot be negative")
	}
	if mode := c.Detect.LowConfidenceMode; mode != "annotate" && mode != "suppress" {
		return fmt.Errorf("detect.low_confidence_mode must be \"annotate\" or \"suppress\", got %q", mode)
	}

	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.MaxRetries < 0 {
		return fmt.Errorf("alerting.max_retries cannot be negative")
	}
	if c.Alerting.Enabled {
		for _, channel := range c.Alerting.Channels {
			switch channel {
			case "discord":
				if c.Alerting.Discord.WebhookURL == "" {
					return fmt.Errorf("alerting.discord.webhook_url is required for the discord channel")
				}
			case "telegram":
				if c.Alerting.Telegram.BotToken == "" {
					return fmt.Errorf("alerting.telegram.bot_token is required")
				}
				if c.Alerting.Telegram.ChatID == "" {
					return fmt.Errorf("alerting.telegram.chat_id is required")
				}
			default:
				return fmt.Errorf("unknown alerting channel %q", channel)
			}
		}
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
