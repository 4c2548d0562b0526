package config

import (
	"os"
	"testing"
	"time"
)

var testEnvKeys = []string{
	"CAODULIEU_SERVER_PORT",
	"CAODULIEU_SERVER_ENVIRONMENT",
	"CAODULIEU_SERVER_ALLOWED_ORIGINS",
	"CAODULIEU_LOG_LEVEL",
	"CAODULIEU_AI_API_KEYS",
	"CAODULIEU_AI_BASE_URL",
	"CAODULIEU_AI_STORE_SEARCH_MODELS",
	"CAODULIEU_CLASSIFICATION_MODE",
	"CAODULIEU_CLASSIFICATION_BATCH_SIZE",
	"CAODULIEU_CLASSIFICATION_MATCH_THRESHOLD",
	"CAODULIEU_STORE_SEARCH_TIMEOUT",
	"CAODULIEU_CACHE_TYPE",
	"CAODULIEU_CACHE_REDIS_URL",
	"CAODULIEU_CACHE_TTL",
	"CAODULIEU_STORAGE_SQLITE_PATH",
	"CAODULIEU_RATELIMIT_PER_IP",
}

func TestLoad(t *testing.T) {
	// Clean up environment before tests
	cleanupEnv := func() {
		for _, key := range testEnvKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil (missing AI keys must not fail startup)", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.AI.APIKeys != "" {
			t.Errorf("AI.APIKeys = %q, want empty", cfg.AI.APIKeys)
		}
		if cfg.Extraction.MaxAttempts != 15 {
			t.Errorf("Extraction.MaxAttempts = %d, want 15", cfg.Extraction.MaxAttempts)
		}
		if cfg.Extraction.MaxHTMLChars != 100000 {
			t.Errorf("Extraction.MaxHTMLChars = %d, want 100000", cfg.Extraction.MaxHTMLChars)
		}
		if cfg.Extraction.BaseBackoff != 2*time.Second {
			t.Errorf("Extraction.BaseBackoff = %v, want 2s", cfg.Extraction.BaseBackoff)
		}
		if cfg.Classification.BatchSize != 20 {
			t.Errorf("Classification.BatchSize = %d, want 20", cfg.Classification.BatchSize)
		}
		if cfg.Classification.MatchThreshold != 0.85 {
			t.Errorf("Classification.MatchThreshold = %v, want 0.85", cfg.Classification.MatchThreshold)
		}
		if cfg.StoreSearch.Timeout != 45*time.Second {
			t.Errorf("StoreSearch.Timeout = %v, want 45s", cfg.StoreSearch.Timeout)
		}
		if cfg.StoreSearch.MaxRetries != 2 {
			t.Errorf("StoreSearch.MaxRetries = %d, want 2", cfg.StoreSearch.MaxRetries)
		}
		if len(cfg.AI.StoreSearchModels) != 2 {
			t.Errorf("AI.StoreSearchModels = %v, want two models", cfg.AI.StoreSearchModels)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 168*time.Hour {
			t.Errorf("Cache.TTL = %v, want 168h", cfg.Cache.TTL)
		}
		if cfg.RateLimit.PerIP != 120 {
			t.Errorf("RateLimit.PerIP = %d, want 120", cfg.RateLimit.PerIP)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CAODULIEU_SERVER_PORT", "9090")
		os.Setenv("CAODULIEU_AI_API_KEYS", "key-one-0000001,key-two-0000002")
		os.Setenv("CAODULIEU_AI_STORE_SEARCH_MODELS", "model-a, model-b,model-c")
		os.Setenv("CAODULIEU_CLASSIFICATION_MODE", "algorithmic")
		os.Setenv("CAODULIEU_CLASSIFICATION_BATCH_SIZE", "5")
		os.Setenv("CAODULIEU_STORE_SEARCH_TIMEOUT", "10s")
		os.Setenv("CAODULIEU_CACHE_TYPE", "redis")
		os.Setenv("CAODULIEU_CACHE_REDIS_URL", "redis://localhost:6379")
		os.Setenv("CAODULIEU_CACHE_TTL", "24h")
		os.Setenv("CAODULIEU_STORAGE_SQLITE_PATH", "/tmp/state.db")
		os.Setenv("CAODULIEU_RATELIMIT_PER_IP", "200")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.AI.APIKeys != "key-one-0000001,key-two-0000002" {
			t.Errorf("AI.APIKeys = %s, want both keys", cfg.AI.APIKeys)
		}
		if got := cfg.AI.StoreSearchModels; len(got) != 3 || got[1] != "model-b" {
			t.Errorf("AI.StoreSearchModels = %v, want [model-a model-b model-c]", got)
		}
		if cfg.Classification.Mode != "algorithmic" {
			t.Errorf("Classification.Mode = %s, want algorithmic", cfg.Classification.Mode)
		}
		if cfg.Classification.BatchSize != 5 {
			t.Errorf("Classification.BatchSize = %d, want 5", cfg.Classification.BatchSize)
		}
		if cfg.StoreSearch.Timeout != 10*time.Second {
			t.Errorf("StoreSearch.Timeout = %v, want 10s", cfg.StoreSearch.Timeout)
		}
		if cfg.Cache.Type != "redis" {
			t.Errorf("Cache.Type = %s, want redis", cfg.Cache.Type)
		}
		if cfg.Cache.RedisURL != "redis://localhost:6379" {
			t.Errorf("Cache.RedisURL = %s, want redis://localhost:6379", cfg.Cache.RedisURL)
		}
		if cfg.Cache.TTL != 24*time.Hour {
			t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
		}
		if cfg.Storage.SQLitePath != "/tmp/state.db" {
			t.Errorf("Storage.SQLitePath = %s, want /tmp/state.db", cfg.Storage.SQLitePath)
		}
		if cfg.RateLimit.PerIP != 200 {
			t.Errorf("RateLimit.PerIP = %d, want 200", cfg.RateLimit.PerIP)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CAODULIEU_CACHE_TYPE", "invalid")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})

	t.Run("fails validation when redis URL missing for redis cache", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CAODULIEU_CACHE_TYPE", "redis")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for missing Redis URL")
		}
	})

	t.Run("fails validation for unknown classification mode", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("CAODULIEU_CLASSIFICATION_MODE", "magic")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for unknown classification mode")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		err := loadEnvFile()
		if err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables and skips comments", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		envContent := `
# Comment line
CAODULIEU_TEST_VAR_1=value1

CAODULIEU_TEST_VAR_2=value2
# CAODULIEU_TEST_COMMENTED=should_not_load
`
		if err := os.WriteFile(".env", []byte(envContent), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}
		os.Unsetenv("CAODULIEU_TEST_VAR_1")
		os.Unsetenv("CAODULIEU_TEST_VAR_2")
		os.Unsetenv("CAODULIEU_TEST_COMMENTED")
		defer func() {
			os.Unsetenv("CAODULIEU_TEST_VAR_1")
			os.Unsetenv("CAODULIEU_TEST_VAR_2")
		}()

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("CAODULIEU_TEST_VAR_1") != "value1" {
			t.Errorf("CAODULIEU_TEST_VAR_1 = %s, want value1", os.Getenv("CAODULIEU_TEST_VAR_1"))
		}
		if os.Getenv("CAODULIEU_TEST_VAR_2") != "value2" {
			t.Errorf("CAODULIEU_TEST_VAR_2 = %s, want value2", os.Getenv("CAODULIEU_TEST_VAR_2"))
		}
		if os.Getenv("CAODULIEU_TEST_COMMENTED") != "" {
			t.Errorf("CAODULIEU_TEST_COMMENTED should not be loaded from comment")
		}
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		os.Setenv("CAODULIEU_TEST_OVERRIDE", "existing-value")
		defer os.Unsetenv("CAODULIEU_TEST_OVERRIDE")

		if err := os.WriteFile(".env", []byte("CAODULIEU_TEST_OVERRIDE=new-value"), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("CAODULIEU_TEST_OVERRIDE") != "existing-value" {
			t.Errorf("CAODULIEU_TEST_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("CAODULIEU_TEST_OVERRIDE"))
		}
	})
}

func validConfig() *Config {
	return &Config{
		Cache:   CacheConfig{Type: "memory"},
		Storage: StorageConfig{SQLitePath: "data/test.db"},
		Classification: ClassificationConfig{
			Mode:           "ai",
			BatchSize:      20,
			MatchThreshold: 0.85,
			PartialCredit:  0.8,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid configuration", func(*Config) {}, false},
		{"redis with URL", func(c *Config) { c.Cache = CacheConfig{Type: "redis", RedisURL: "redis://localhost:6379"} }, false},
		{"invalid cache type", func(c *Config) { c.Cache.Type = "invalid-type" }, true},
		{"redis without URL", func(c *Config) { c.Cache.Type = "redis" }, true},
		{"unknown mode", func(c *Config) { c.Classification.Mode = "hybrid" }, true},
		{"zero batch size", func(c *Config) { c.Classification.BatchSize = 0 }, true},
		{"threshold above one", func(c *Config) { c.Classification.MatchThreshold = 1.2 }, true},
		{"threshold exactly one", func(c *Config) { c.Classification.MatchThreshold = 1 }, false},
		{"zero partial credit", func(c *Config) { c.Classification.PartialCredit = 0 }, true},
		{"empty sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"a, b", "", " c "})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
