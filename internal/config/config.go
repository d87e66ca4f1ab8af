// Package config loads the relay configuration from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Env            string
	Port           string
	LogLevel       string
	AllowedOrigins []string
	// WSSharedToken, when set, must be presented by every WebSocket client.
	WSSharedToken string
	JWTSecret     string

	DefaultLanguage string
	LocalesDir      string

	Crypto   CryptoConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Reaper   ReaperConfig
	Limits   LimitsConfig
}

// CryptoConfig points at the external identity cipher service.
type CryptoConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	FingerprintKey string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Embedded bool
}

// RedisConfig is optional; an empty Addr disables rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ReaperConfig struct {
	Interval       time.Duration
	EmptyThreshold time.Duration
	StaleThreshold time.Duration
}

type LimitsConfig struct {
	MessageRate       int
	MessageRateWindow time.Duration
	HTTPRate          int
	HTTPRateWindow    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		Port:            getEnv("SOCKET_PORT", "3001"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		WSSharedToken:   os.Getenv("WS_SHARED_TOKEN"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", DefaultLanguage),
		LocalesDir:      os.Getenv("LOCALES_DIR"),
		Crypto: CryptoConfig{
			URL:            getEnv("CRYPTO_API_URL", "http://localhost:3000/api/crypto"),
			APIKey:         os.Getenv("CRYPTO_API_KEY"),
			Timeout:        getDuration("CRYPTO_TIMEOUT", DefaultCryptoTimeout),
			FingerprintKey: os.Getenv("FINGERPRINT_KEY"),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "roomrelay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Embedded: getBool("DB_EMBEDDED", false),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Reaper: ReaperConfig{
			Interval:       getDuration("REAPER_INTERVAL", DefaultReaperInterval),
			EmptyThreshold: getDuration("REAPER_EMPTY_THRESHOLD", DefaultReaperEmptyThreshold),
			StaleThreshold: getDuration("REAPER_STALE_THRESHOLD", DefaultReaperStaleThreshold),
		},
		Limits: LimitsConfig{
			MessageRate:       getInt("MESSAGE_RATE_LIMIT", DefaultMessageRateLimit),
			MessageRateWindow: getDuration("MESSAGE_RATE_WINDOW", DefaultMessageRateWindow),
			HTTPRate:          getInt("HTTP_RATE_LIMIT", DefaultHTTPRateLimit),
			HTTPRateWindow:    getDuration("HTTP_RATE_WINDOW", DefaultHTTPRateWindow),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Crypto.APIKey == "" {
			return fmt.Errorf("CRYPTO_API_KEY is required in production")
		}
	}
	if c.Crypto.URL == "" {
		return fmt.Errorf("CRYPTO_API_URL must not be empty")
	}
	if c.Reaper.Interval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be positive")
	}
	if c.Reaper.StaleThreshold < c.Reaper.EmptyThreshold {
		return fmt.Errorf("REAPER_STALE_THRESHOLD must not be shorter than REAPER_EMPTY_THRESHOLD")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "roomrelay-development-secret"
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
