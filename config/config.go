package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig
	Log            LogConfig
	AI             AIConfig
	Extraction     ExtractionConfig
	Classification ClassificationConfig
	StoreSearch    StoreSearchConfig `mapstructure:"store_search"`
	Cache          CacheConfig
	Storage        StorageConfig
	RateLimit      RateLimitConfig
	Catalog        CatalogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AIConfig holds the AI text service configuration.
// APIKeys is the default credential list; the UI may override it at runtime.
type AIConfig struct {
	APIKeys             string        `mapstructure:"api_keys"`
	BaseURL             string        `mapstructure:"base_url"`
	ExtractionModel     string        `mapstructure:"extraction_model"`
	ClassificationModel string        `mapstructure:"classification_model"`
	StoreSearchModels   []string      `mapstructure:"store_search_models"`
	RequestsPerMinute   int           `mapstructure:"requests_per_minute"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig holds extraction retry and input-size settings
type ExtractionConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	MaxHTMLChars      int           `mapstructure:"max_html_chars"`
	MinHTMLLength     int           `mapstructure:"min_html_length"`
	RotateDelay       time.Duration `mapstructure:"rotate_delay"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// ClassificationConfig holds classifier settings shared by the AI and algorithmic modes
type ClassificationConfig struct {
	Mode           string        `mapstructure:"mode"` // "ai" or "algorithmic"
	BatchSize      int           `mapstructure:"batch_size"`
	BatchDelay     time.Duration `mapstructure:"batch_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	MatchThreshold float64       `mapstructure:"match_threshold"`
	PartialCredit  float64       `mapstructure:"partial_credit"`
	DebugMatching  bool          `mapstructure:"debug_matching"`
}

// StoreSearchConfig holds store search settings
type StoreSearchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig holds local state storage configuration
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// CatalogConfig overrides the built-in product catalog when Entries is not empty
type CatalogConfig struct {
	Entries []string `mapstructure:"entries"`
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/caodulieu/")

	// Environment variable settings
	v.SetEnvPrefix("CAODULIEU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Lists given through env vars arrive as one comma-separated string
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)
	config.AI.StoreSearchModels = splitList(config.AI.StoreSearchModels)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads ./.env into the process environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*", "http://localhost:5173"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// AI defaults
	v.SetDefault("ai.api_keys", "")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("ai.extraction_model", "gemini-2.5-flash")
	v.SetDefault("ai.classification_model", "gemini-2.5-flash")
	v.SetDefault("ai.store_search_models", []string{"gemini-2.5-flash", "gemini-2.0-flash"})
	v.SetDefault("ai.requests_per_minute", 30)
	v.SetDefault("ai.timeout", "60s")

	v.SetDefault("extraction.max_attempts", 15)
	v.SetDefault("extraction.max_html_chars", 100000)
	v.SetDefault("extraction.min_html_length", 50)
	v.SetDefault("extraction.rotate_delay", "1s")
	v.SetDefault("extraction.base_backoff", "2s")
	v.SetDefault("extraction.backoff_multiplier", 1.5)

	v.SetDefault("classification.mode", "ai")
	v.SetDefault("classification.batch_size", 20)
	v.SetDefault("classification.batch_delay", "2s")
	v.SetDefault("classification.max_attempts", 3)
	v.SetDefault("classification.match_threshold", 0.85)
	v.SetDefault("classification.partial_credit", 0.8)
	v.SetDefault("classification.debug_matching", false)

	v.SetDefault("store_search.timeout", "45s")
	v.SetDefault("store_search.max_retries", 2)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "168h") // 7 days

	v.SetDefault("storage.sqlite_path", "data/caodulieu.db")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 120)

	v.SetDefault("catalog.entries", []string{})
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Classification.Mode != "ai" && config.Classification.Mode != "algorithmic" {
		return fmt.Errorf("classification mode must be 'ai' or 'algorithmic', got: %s", config.Classification.Mode)
	}

	if config.Classification.BatchSize <= 0 {
		return fmt.Errorf("classification batch size must be positive, got: %d", config.Classification.BatchSize)
	}

	if t := config.Classification.MatchThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("match threshold must be within (0, 1], got: %v", t)
	}

	if c := config.Classification.PartialCredit; c <= 0 || c > 1 {
		return fmt.Errorf("partial credit must be within (0, 1], got: %v", c)
	}

	if config.Storage.SQLitePath == "" {
		return fmt.Errorf("SQLite path is required (set CAODULIEU_STORAGE_SQLITE_PATH)")
	}

	return nil
}

// splitList flattens entries that hold comma-separated values and drops blanks
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
