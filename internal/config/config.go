package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const defaultConfigFile = "config.yaml"

// Config holds all configuration for the API service. It is built once at
// startup and never mutated.
type Config struct {
	// Server
	Port        string
	Environment string

	// Gemini
	GeminiAPIKey    string
	GeminiBaseURL   string
	GeminiTimeout   time.Duration
	PreferredModels []string

	// CORS
	FrontendURL    string
	AllowedOrigins []string

	// Supporting services, all optional
	RedisURL     string
	NATSURL      string
	OTLPEndpoint string

	// Logging
	LogLevel string
	LogFile  string

	// Protection
	RateLimitPerMinute    int
	QuotaBreakerThreshold int
	QuotaBreakerCooldown  time.Duration

	// Output checks
	EnforceSubtaskRange bool
}

// fileConfig mirrors the optional YAML file.
type fileConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	Gemini      struct {
		BaseURL        string   `yaml:"base_url"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		Models         []string `yaml:"models"`
	} `yaml:"gemini"`
	CORS struct {
		FrontendURL    string   `yaml:"frontend_url"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RedisURL string `yaml:"redis_url"`
	NATSURL  string `yaml:"nats_url"`
	OTLP     string `yaml:"otlp_endpoint"`
	Log      struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	RateLimitPerMinute *int `yaml:"rate_limit_per_minute"`
	QuotaBreaker       struct {
		Threshold       *int `yaml:"threshold"`
		CooldownSeconds int  `yaml:"cooldown_seconds"`
	} `yaml:"quota_breaker"`
	EnforceSubtaskRange *bool `yaml:"enforce_subtask_range"`
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and the environment, later sources winning.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	if err := cfg.applyFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins(cfg.FrontendURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:                  "5000",
		Environment:           "development",
		GeminiBaseURL:         "https://generativelanguage.googleapis.com",
		GeminiTimeout:         60 * time.Second,
		PreferredModels:       []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"},
		FrontendURL:           "http://localhost:8000",
		LogLevel:              "info",
		RateLimitPerMinute:    30,
		QuotaBreakerThreshold: 3,
		QuotaBreakerCooldown:  60 * time.Second,
	}
}

// DefaultAllowedOrigins is used when no origins are configured.
func DefaultAllowedOrigins(frontendURL string) []string {
	return []string{
		frontendURL,
		"http://127.0.0.1:8000",
		"http://localhost:8000",
		"https://nowastelife.onrender.com",
		"https://nowastelifev2.onrender.com",
		"https://*.onrender.com",
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.Environment, fc.Environment)
	setString(&c.GeminiBaseURL, fc.Gemini.BaseURL)
	if fc.Gemini.TimeoutSeconds > 0 {
		c.GeminiTimeout = time.Duration(fc.Gemini.TimeoutSeconds) * time.Second
	}
	if len(fc.Gemini.Models) > 0 {
		c.PreferredModels = fc.Gemini.Models
	}
	setString(&c.FrontendURL, fc.CORS.FrontendURL)
	if len(fc.CORS.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.CORS.AllowedOrigins
	}
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.NATSURL, fc.NATSURL)
	setString(&c.OTLPEndpoint, fc.OTLP)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFile, fc.Log.File)
	if fc.RateLimitPerMinute != nil {
		c.RateLimitPerMinute = *fc.RateLimitPerMinute
	}
	if fc.QuotaBreaker.Threshold != nil {
		c.QuotaBreakerThreshold = *fc.QuotaBreaker.Threshold
	}
	if fc.QuotaBreaker.CooldownSeconds > 0 {
		c.QuotaBreakerCooldown = time.Duration(fc.QuotaBreaker.CooldownSeconds) * time.Second
	}
	if fc.EnforceSubtaskRange != nil {
		c.EnforceSubtaskRange = *fc.EnforceSubtaskRange
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Environment = getEnv("GO_ENV", c.Environment)
	c.GeminiAPIKey = strings.TrimSpace(getEnv("GEMINI_API_KEY", c.GeminiAPIKey))
	c.GeminiBaseURL = getEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.GeminiTimeout = getEnvSeconds("GEMINI_TIMEOUT_SECONDS", c.GeminiTimeout)
	c.PreferredModels = getEnvList("GEMINI_MODELS", c.PreferredModels)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.QuotaBreakerThreshold = getEnvInt("QUOTA_BREAKER_THRESHOLD", c.QuotaBreakerThreshold)
	c.QuotaBreakerCooldown = getEnvSeconds("QUOTA_BREAKER_COOLDOWN_SECONDS", c.QuotaBreakerCooldown)
	c.EnforceSubtaskRange = getEnvBool("ENFORCE_SUBTASK_RANGE", c.EnforceSubtaskRange)
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: PORT %q is not a valid port", ErrInvalidConfig, c.Port)
	}
	if len(c.PreferredModels) == 0 {
		return fmt.Errorf("%w: at least one preferred model is required", ErrInvalidConfig)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("%w: RATE_LIMIT_PER_MINUTE must not be negative", ErrInvalidConfig)
	}
	if c.QuotaBreakerThreshold < 0 {
		return fmt.Errorf("%w: QUOTA_BREAKER_THRESHOLD must not be negative", ErrInvalidConfig)
	}
	if c.GeminiTimeout <= 0 {
		return fmt.Errorf("%w: GEMINI_TIMEOUT_SECONDS must be positive", ErrInvalidConfig)
	}
	return nil
}

// GeminiConfigured reports whether an API key is present.
func (c *Config) GeminiConfigured() bool {
	return c.GeminiAPIKey != ""
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
