package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminID          int64  `envconfig:"ADMIN_ID"           required:"true"`
	ChannelID        int64  `envconfig:"CHANNEL_ID"         required:"true"`
	WebAppURL        string `envconfig:"WEBAPP_URL"`
	DatabasePath     string `envconfig:"DATABASE_PATH"    default:"bot_database.db"`
	HTTPAddr         string `envconfig:"HTTP_ADDR"        default:":8000"`
	DefaultLanguage  string `envconfig:"DEFAULT_LANGUAGE" default:"ru"`
	Timezone         string `envconfig:"TIMEZONE"         default:"Europe/Moscow"`

	SchedulerInterval   time.Duration `envconfig:"SCHEDULER_INTERVAL"    default:"60s"`
	DeliveryTimeout     time.Duration `envconfig:"DELIVERY_TIMEOUT"      default:"30s"`
	MaxDeliveryAttempts int           `envconfig:"MAX_DELIVERY_ATTEMPTS" default:"10"`
	SendRatePerSecond   float64       `envconfig:"SEND_RATE_PER_SECOND"  default:"1"`

	WebAppAllowUnsigned bool          `envconfig:"WEBAPP_ALLOW_UNSIGNED" default:"false"`
	InitDataMaxAge      time.Duration `envconfig:"INIT_DATA_MAX_AGE"     default:"24h"`

	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL"     default:"gemini-1.5-flash"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	SpecsCacheTTL  time.Duration `envconfig:"SPECS_CACHE_TTL"  default:"24h"`
	SpecsSearchURL string        `envconfig:"SPECS_SEARCH_URL" default:"https://html.duckduckgo.com/html/"`
	NATSURL        string        `envconfig:"NATS_URL"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinioBucket    string `envconfig:"MINIO_BUCKET"     default:"listing-photos"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL"    default:"false"`
	MinioPublicURL string `envconfig:"MINIO_PUBLIC_URL"`

	LogLevel  string `envconfig:"LOG_LEVEL"  default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Location is Timezone resolved by Load.
	Location *time.Location `ignored:"true"`
}

// Load reads an optional .env file, then the environment. The returned flag
// reports whether a .env file was found.
func Load() (Config, bool, error) {
	dotenv := true
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, false, fmt.Errorf("failed to read .env: %w", err)
		}
		dotenv = false
	}

	cfg, err := FromEnv()
	return cfg, dotenv, err
}

// FromEnv processes the environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process configuration: %w", err)
	}
	if cfg.SchedulerInterval <= 0 {
		return Config{}, fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %v", cfg.SchedulerInterval)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("unknown TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	return cfg, nil
}
