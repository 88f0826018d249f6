package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Card   CardConfig
	Onramp OnrampConfig
	Swap   SwapConfig

	IdempotencyCapacity int
	IdempotencyTTL      time.Duration
	AutoCaptureWindow   time.Duration
}

// CardConfig configures the card processor integration.
type CardConfig struct {
	WebhookSecret string
	APIKey        string
	APIBaseURL    string
	LookupTimeout time.Duration
}

// OnrampConfig configures the crypto on-ramp integration.
type OnrampConfig struct {
	Secret        string
	WidgetID      string
	WalletAddress string
	PayoutAsset   string
}

// SwapConfig configures the currency-swap broker integration.
type SwapConfig struct {
	APIKey         string
	APIBaseURL     string
	WalletAddress  string
	RequestTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "payhook"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "postgres"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Card: CardConfig{
			WebhookSecret: strings.TrimSpace(getenv("CARD_WEBHOOK_SECRET", "")),
			APIKey:        strings.TrimSpace(getenv("CARD_API_KEY", "")),
			APIBaseURL:    getenv("CARD_API_URL", "https://api.stripe.com/v1"),
			LookupTimeout: getenvDuration("CARD_LOOKUP_TIMEOUT", 5*time.Second),
		},
		Onramp: OnrampConfig{
			Secret:        strings.TrimSpace(getenv("ONRAMP_SECRET", "")),
			WidgetID:      strings.TrimSpace(getenv("ONRAMP_WIDGET_ID", "")),
			WalletAddress: strings.TrimSpace(getenv("WALLET_ADDRESS", "")),
			PayoutAsset:   getenv("ONRAMP_PAYOUT_ASSET", "USDT"),
		},
		Swap: SwapConfig{
			APIKey:         strings.TrimSpace(getenv("SWAP_API_KEY", "")),
			APIBaseURL:     getenv("SWAP_API_URL", "https://api.simpleswap.io"),
			WalletAddress:  strings.TrimSpace(getenv("WALLET_ADDRESS", "")),
			RequestTimeout: getenvDuration("SWAP_REQUEST_TIMEOUT", 15*time.Second),
		},

		IdempotencyCapacity: getenvInt("IDEMPOTENCY_CAPACITY", 1000),
		IdempotencyTTL:      getenvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		AutoCaptureWindow:   getenvDuration("AUTOCAPTURE_WINDOW", 60*time.Second),
	}
}

func (c Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
