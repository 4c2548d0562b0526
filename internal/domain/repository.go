package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations.
// Values are stored as JSON; Get decodes into dest and returns ErrCacheMiss when absent.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// StateRepository persists the session's local state under fixed keys
type StateRepository interface {
	LoadRecords(ctx context.Context) ([]RawProductRecord, error)
	SaveRecords(ctx context.Context, records []RawProductRecord) error
	LoadSources(ctx context.Context) ([]SourceConfig, error)
	SaveSources(ctx context.Context, sources []SourceConfig) error
	LoadCredentials(ctx context.Context) (string, error)
	SaveCredentials(ctx context.Context, raw string) error
}
