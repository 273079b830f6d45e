package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	PostgreSQL PostgreSQLConfig `mapstructure:"pg"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Server     ServerConfig     `mapstructure:"server"`
	Data       DataConfig       `mapstructure:"data"`
	Search     SearchConfig     `mapstructure:"search"`
	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
}

// PostgreSQLConfig holds registration database configuration.
// When disabled, registrations are kept in process memory.
type PostgreSQLConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	DSN                string `mapstructure:"dsn"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Database           string `mapstructure:"database"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// RedisConfig holds chat session store and rate limiter configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	Host           string `mapstructure:"host"`
	GinMode        string `mapstructure:"gin_mode"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// DataConfig points at the bundled campus datasets (JSON or YAML)
type DataConfig struct {
	LocationsPath string `mapstructure:"locations_path"`
	EventsPath    string `mapstructure:"events_path"`
}

// SearchConfig holds location search tuning
type SearchConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// SessionConfig holds chat session lifetime settings
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
	ListLimit     int           `mapstructure:"list_limit"`
}

// RateLimitConfig holds the per-client chat rate limit
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig holds text completion provider configuration
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // openai | gemini | none
	APIKey      string  `mapstructure:"api_key"`
	APIBase     string  `mapstructure:"api_base"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	ExtraBody   string  `mapstructure:"extra_body"` // JSON string for extra_body
	Timeout     int     `mapstructure:"timeout"`    // seconds
	Enabled     bool    `mapstructure:"-"`
}

var defaults = map[string]any{
	"pg.enabled":              false,
	"pg.host":                 "localhost",
	"pg.port":                 5432,
	"pg.user":                 "postgres",
	"pg.database":             "dora",
	"pg.sslmode":              "disable",
	"pg.max_connections":      25,
	"pg.max_idle_connections": 5,
	"redis.enabled":           false,
	"redis.addr":              "localhost:6379",
	"redis.db":                0,
	"server.port":             5000,
	"server.host":             "0.0.0.0",
	"server.gin_mode":         "release",
	"server.allowed_origins":  "*",
	"data.locations_path":     "data/locations.json",
	"data.events_path":        "data/events.json",
	"search.cache_size":       256,
	"session.ttl":             "24h",
	"session.prune_schedule":  "@every 10m",
	"session.list_limit":      50,
	"rate_limit.enabled":      true,
	"rate_limit.requests":     100,
	"rate_limit.window":       "15m",
	"log.level":               "info",
	"log.format":              "json",
	"llm.provider":            "gemini",
	"llm.api_base":            "https://api.openai.com/v1",
	"llm.model":               "gemini-2.0-flash",
	"llm.temperature":         0.7,
	"llm.top_p":               0.9,
	"llm.max_tokens":          1024,
	"llm.timeout":             30,
}

// Load reads configuration from .env, an optional config.yaml and environment
// variables. Environment keys are the upper-cased config keys with dots
// replaced by underscores (server.port -> SERVER_PORT).
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by hosting platforms
	_ = v.BindEnv("pg.dsn", "DATABASE_URL", "PG_DSN")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.PostgreSQL.DSN != "" {
		cfg.PostgreSQL.Enabled = true
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.LLM.Enabled = cfg.LLM.APIKey != "" && cfg.LLM.Provider != "none"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("invalid llm provider %q: must be one of openai, gemini, none", c.LLM.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requires positive requests and window")
	}
	if c.Data.LocationsPath == "" {
		return fmt.Errorf("data.locations_path must be set")
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}
