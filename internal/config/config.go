package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// Tracked underlying
	Symbol string

	// Providers
	NasdaqBaseURL string
	PolygonAPIKey string
	HTTPTimeout   time.Duration
	HTTPProxyURL  string
	UserAgent     string

	// Cadences
	FastInterval  time.Duration
	LeapInterval  time.Duration
	WriteInterval time.Duration
	LeapEnabled   bool

	// Pricing
	RiskFreeRate float64

	// Database
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Alerts
	WebhookURL         string
	BotName            string
	AlertAfterFailures int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Symbol: strings.ToUpper(envStr("SYMBOL", "AAPL")),

		NasdaqBaseURL: envStr("NASDAQ_BASE_URL", "https://api.nasdaq.com"),
		PolygonAPIKey: envStr("POLYGON_API_KEY", ""),
		HTTPTimeout:   time.Duration(envInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		HTTPProxyURL:  envStr("HTTP_PROXY_URL", ""),
		UserAgent:     envStr("HTTP_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) optiontrack/1.0"),

		FastInterval:  time.Duration(envInt("FAST_INTERVAL_SECONDS", 300)) * time.Second,
		LeapInterval:  time.Duration(envInt("LEAP_INTERVAL_MINUTES", 60)) * time.Minute,
		WriteInterval: time.Duration(envInt("WRITE_INTERVAL_MINUTES", 15)) * time.Minute,
		LeapEnabled:   envBool("LEAP_ENABLED", true),

		RiskFreeRate: envFloat("RISK_FREE_RATE", 0.045),

		DBDriver:    strings.ToLower(envStr("DB_DRIVER", "sqlite")),
		DBPath:      envStr("DB_PATH", "optiontrack.db"),
		DatabaseURL: envStr("DATABASE_URL", ""),

		WebhookURL:         envStr("WEBHOOK_URL", ""),
		BotName:            envStr("BOT_NAME", "OptionTrack"),
		AlertAfterFailures: envInt("ALERT_AFTER_FAILURES", 3),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.Symbol == "" {
		errs = append(errs, "SYMBOL is required")
	}
	if c.FastInterval <= 0 {
		errs = append(errs, "FAST_INTERVAL_SECONDS must be positive")
	}
	if c.LeapEnabled && c.LeapInterval <= 0 {
		errs = append(errs, "LEAP_INTERVAL_MINUTES must be positive")
	}
	if c.WriteInterval < 0 {
		errs = append(errs, "WRITE_INTERVAL_MINUTES must not be negative")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, "DB_PATH is required for sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER %q not supported (sqlite, postgres)", c.DBDriver))
	}
	if c.PolygonAPIKey == "" {
		log.Warn("POLYGON_API_KEY not set - no fallback source when Nasdaq fails")
	}
	if c.WebhookURL == "" {
		log.Warn("WEBHOOK_URL not set - fetch failures are only logged")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

func (c *Config) Print() {
	log.WithFields(log.Fields{
		"symbol":         c.Symbol,
		"fast_interval":  c.FastInterval.String(),
		"leap_interval":  boolLabel(c.LeapEnabled, c.LeapInterval.String(), "disabled"),
		"write_interval": c.WriteInterval.String(),
		"risk_free_rate": c.RiskFreeRate,
		"db_driver":      c.DBDriver,
		"fallback":       boolLabel(c.PolygonAPIKey != "", "polygon", "none"),
		"proxy":          boolLabel(c.HTTPProxyURL != "", "configured", "environment"),
	}).Info("configuration loaded")
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
