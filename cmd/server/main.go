package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/config"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/catalog"
	httpDelivery "github.com/SIRP996/cao-du-lieu-sub000/internal/delivery/http"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/cache"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/llm"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/infrastructure/storage"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("cache", cfg.Cache.Type).
		Msg("starting cao du lieu backend v1.0.0")

	ctx := context.Background()

	// Initialize infrastructure dependencies
	store, err := storage.NewSQLiteStore(ctx, cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}
	defer store.Close()

	classificationCache, closeCache := newCache(ctx, cfg.Cache, log)
	defer closeCache()

	defaultKeys := llm.ParseKeys(cfg.AI.APIKeys)
	keys := llm.NewKeyPool(defaultKeys, func(apiKey string) llm.Completer {
		return llm.NewClient(llm.ClientConfig{
			APIKey:            apiKey,
			BaseURL:           cfg.AI.BaseURL,
			Model:             cfg.AI.ExtractionModel,
			RequestsPerMinute: cfg.AI.RequestsPerMinute,
			Timeout:           cfg.AI.Timeout,
		}, log)
	}, log)
	if len(defaultKeys) == 0 {
		log.Warn().Msg("no AI credentials configured; the UI will be asked for one")
	} else {
		log.Info().Int("credentials", len(defaultKeys)).Str("base_url", cfg.AI.BaseURL).Msg("AI service configured")
	}

	// Initialize usecase layer
	cat := catalog.New(cfg.Catalog.Entries)
	matcher := usecase.NewMatchingService(cat, usecase.MatchConfig{
		MatchThreshold:     cfg.Classification.MatchThreshold,
		PartialCredit:      cfg.Classification.PartialCredit,
		EnableDebugLogging: cfg.Classification.DebugMatching,
	}, log)

	extractor := usecase.NewExtractionService(keys, usecase.ExtractionConfig{
		Model:             cfg.AI.ExtractionModel,
		MaxAttempts:       cfg.Extraction.MaxAttempts,
		MaxHTMLChars:      cfg.Extraction.MaxHTMLChars,
		MinHTMLLength:     cfg.Extraction.MinHTMLLength,
		RotateDelay:       cfg.Extraction.RotateDelay,
		BaseBackoff:       cfg.Extraction.BaseBackoff,
		BackoffMultiplier: cfg.Extraction.BackoffMultiplier,
	}, log)

	classifier := usecase.NewAIClassifier(keys, classificationCache, matcher, cat, usecase.AIClassifierConfig{
		Model:       cfg.AI.ClassificationModel,
		BatchSize:   cfg.Classification.BatchSize,
		BatchDelay:  cfg.Classification.BatchDelay,
		MaxAttempts: cfg.Classification.MaxAttempts,
		CacheTTL:    cfg.Cache.TTL,
	}, log)

	storeSearch := usecase.NewStoreSearchService(keys, usecase.StoreSearchConfig{
		Models:     cfg.AI.StoreSearchModels,
		Timeout:    cfg.StoreSearch.Timeout,
		MaxRetries: cfg.StoreSearch.MaxRetries,
		RetryDelay: time.Second,
	}, log)

	session := usecase.NewSessionService(usecase.SessionDeps{
		State:        store,
		Extractor:    extractor,
		AIClassifier: classifier,
		Matcher:      matcher,
		Credentials:  keys,
		Stores:       storeSearch,
	}, usecase.SessionConfig{
		DefaultMode: usecase.ClassificationMode(cfg.Classification.Mode),
	}, log)
	if err := session.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore session state")
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(session, log)
	router := httpDelivery.SetupRouter(cfg, handler, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	session.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	session.Wait()
}

// newLogger builds the root logger: console output when pretty, JSON otherwise
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newCache returns the classification cache selected by configuration and its close func
func newCache(ctx context.Context, cfg config.CacheConfig, log zerolog.Logger) (domain.CacheRepository, func()) {
	if cfg.Type == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			log.Info().Msg("using redis classification cache")
			redisCache := cache.NewRedisCache(client, "caodulieu:")
			return redisCache, func() { redisCache.Close() }
		}
		log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
	}

	memoryCache := cache.NewMemoryCache(10 * time.Minute)
	return memoryCache, func() { memoryCache.Close() }
}
