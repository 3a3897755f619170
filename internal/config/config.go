package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/scorer"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrEmptyBaseURL = errors.New(
		"error getting LM_CRAWL_BASE_URL: variable not specified or contains an empty string")
	ErrInvalidCategory = errors.New("error getting LM_NOTIFY_MIN_CATEGORY: expected low, medium, high or critical")
	ErrInvalidErrorRate = errors.New("error getting LM_SCAN_MAX_FETCH_ERROR_RATE: expected a value between 0 and 1")
)

type Config struct {
	Env         string // Env is the current environment: local, development, production.
	StoragePath string
	Crawl       Crawl
	Scan        Scan
	Schedule    Schedule
	Scoring     scorer.Thresholds
	Notify      Notify
	Tg          Telegram
	HTTP        HTTP
}

type Crawl struct {
	BaseURL        string
	DefaultTarget  string
	PageBudget     int
	MaxPageBudget  int
	Workers        int
	RatePerSecond  float64
	Burst          int
	UserAgent      string
	RequestTimeout time.Duration

	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

type Scan struct {
	Timeout           time.Duration
	MaxFetchErrorRate float64
}

type Schedule struct {
	Spec               string // Spec is a cron expression or "@every <duration>"; "off" disables the scheduler.
	ConflictRetries    int
	ConflictRetryDelay time.Duration
}

// Enabled reports whether scans run on a schedule.
func (s Schedule) Enabled() bool {
	return s.Spec != "" && s.Spec != "off"
}

type Notify struct {
	WebhookURL  string
	MinCategory models.Category
}

type Telegram struct {
	Token   string        // Token is an unique telegram bot token. Empty disables the bot.
	Timeout time.Duration // Timeout is a poller timeout duration.
}

type HTTP struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ChangeCacheTTL  time.Duration
	ChangeCacheSize int
}

// MustLoad loads the configuration from environment variables and returns a Config struct.
// It panics when a required value is missing or invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file and then the LM_* environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Automatically binds environment variables to config keys
	viper.SetEnvPrefix("LM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if viper.GetString("CRAWL_BASE_URL") == "" {
		return nil, ErrEmptyBaseURL
	}

	minCategory := models.Category(viper.GetString("NOTIFY_MIN_CATEGORY"))
	if minCategory.Rank() < 0 {
		return nil, ErrInvalidCategory
	}

	errorRate := viper.GetFloat64("SCAN_MAX_FETCH_ERROR_RATE")
	if errorRate < 0 || errorRate > 1 {
		return nil, ErrInvalidErrorRate
	}

	// Nested "score.*" keys are read from LM_SCORE_* through the key replacer.
	var scoring struct {
		Score scorer.Thresholds `mapstructure:"score"`
	}
	if err := viper.Unmarshal(&scoring); err != nil {
		return nil, fmt.Errorf("failed to decode scoring thresholds: %w", err)
	}

	return &Config{
		Env:         viper.GetString("ENV"),
		StoragePath: viper.GetString("STORAGE_PATH"),
		Crawl: Crawl{
			BaseURL:           viper.GetString("CRAWL_BASE_URL"),
			DefaultTarget:     viper.GetString("CRAWL_TARGET"),
			PageBudget:        viper.GetInt("CRAWL_PAGE_BUDGET"),
			MaxPageBudget:     viper.GetInt("CRAWL_MAX_PAGE_BUDGET"),
			Workers:           viper.GetInt("CRAWL_WORKERS"),
			RatePerSecond:     viper.GetFloat64("CRAWL_RATE_PER_SECOND"),
			Burst:             viper.GetInt("CRAWL_BURST"),
			UserAgent:         viper.GetString("CRAWL_USER_AGENT"),
			RequestTimeout:    viper.GetDuration("CRAWL_REQUEST_TIMEOUT"),
			RetryAttempts:     viper.GetInt("CRAWL_RETRY_ATTEMPTS"),
			RetryInitialDelay: viper.GetDuration("CRAWL_RETRY_INITIAL_DELAY"),
			RetryMaxDelay:     viper.GetDuration("CRAWL_RETRY_MAX_DELAY"),
		},
		Scan: Scan{
			Timeout:           viper.GetDuration("SCAN_TIMEOUT"),
			MaxFetchErrorRate: errorRate,
		},
		Schedule: Schedule{
			Spec:               viper.GetString("SCHEDULE"),
			ConflictRetries:    viper.GetInt("SCHEDULE_CONFLICT_RETRIES"),
			ConflictRetryDelay: viper.GetDuration("SCHEDULE_CONFLICT_RETRY_DELAY"),
		},
		Scoring: scoring.Score,
		Notify: Notify{
			WebhookURL:  viper.GetString("NOTIFY_WEBHOOK_URL"),
			MinCategory: minCategory,
		},
		Tg: Telegram{
			Token:   viper.GetString("TELEGRAM_TOKEN"),
			Timeout: viper.GetDuration("TELEGRAM_TIMEOUT"),
		},
		HTTP: HTTP{
			Addr:            viper.GetString("HTTP_ADDR"),
			ReadTimeout:     viper.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    viper.GetDuration("HTTP_WRITE_TIMEOUT"),
			ChangeCacheTTL:  viper.GetDuration("HTTP_CHANGE_CACHE_TTL"),
			ChangeCacheSize: viper.GetInt("HTTP_CHANGE_CACHE_SIZE"),
		},
	}, nil
}

// optional args
func setDefaults() {
	viper.SetDefault("ENV", "production")
	viper.SetDefault("STORAGE_PATH", "listing-monitor.db")

	viper.SetDefault("CRAWL_TARGET", "")
	viper.SetDefault("CRAWL_PAGE_BUDGET", 5)
	viper.SetDefault("CRAWL_MAX_PAGE_BUDGET", 50)
	viper.SetDefault("CRAWL_WORKERS", 4)
	viper.SetDefault("CRAWL_RATE_PER_SECOND", 2)
	viper.SetDefault("CRAWL_BURST", 2)
	viper.SetDefault("CRAWL_USER_AGENT", "")
	viper.SetDefault("CRAWL_REQUEST_TIMEOUT", "30s")
	viper.SetDefault("CRAWL_RETRY_ATTEMPTS", 3)
	viper.SetDefault("CRAWL_RETRY_INITIAL_DELAY", "500ms")
	viper.SetDefault("CRAWL_RETRY_MAX_DELAY", "10s")

	viper.SetDefault("SCAN_TIMEOUT", "10m")
	viper.SetDefault("SCAN_MAX_FETCH_ERROR_RATE", 0.5)

	viper.SetDefault("SCHEDULE", "@every 1h")
	viper.SetDefault("SCHEDULE_CONFLICT_RETRIES", 2)
	viper.SetDefault("SCHEDULE_CONFLICT_RETRY_DELAY", "30s")

	def := scorer.DefaultThresholds()
	viper.SetDefault("score.price_high", def.PriceHigh)
	viper.SetDefault("score.price_critical", def.PriceCritical)
	viper.SetDefault("score.revenue_high", def.RevenueHigh)
	viper.SetDefault("score.revenue_critical", def.RevenueCritical)
	viper.SetDefault("score.pct_medium", def.PctMedium)
	viper.SetDefault("score.pct_high", def.PctHigh)
	viper.SetDefault("score.pct_critical", def.PctCritical)
	viper.SetDefault("score.abs_change_high", def.AbsChangeHigh)
	viper.SetDefault("score.category_medium", def.CategoryMedium)
	viper.SetDefault("score.category_high", def.CategoryHigh)
	viper.SetDefault("score.category_critical", def.CategoryCritical)

	viper.SetDefault("NOTIFY_WEBHOOK_URL", "")
	viper.SetDefault("NOTIFY_MIN_CATEGORY", string(models.CategoryMedium))

	viper.SetDefault("TELEGRAM_TOKEN", "")
	viper.SetDefault("TELEGRAM_TIMEOUT", "15s")

	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("HTTP_READ_TIMEOUT", "10s")
	viper.SetDefault("HTTP_WRITE_TIMEOUT", "30s")
	viper.SetDefault("HTTP_CHANGE_CACHE_TTL", "30s")
	viper.SetDefault("HTTP_CHANGE_CACHE_SIZE", 256)
}
