// Package storage persists session state in a local SQLite file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// SchemaVersion is written into every envelope. Bump it when a stored shape changes.
const SchemaVersion = 1

// Fixed state keys
const (
	KeyRecords     = "records"
	KeySources     = "sources"
	KeyCredentials = "credentials"
)

const createTable = `CREATE TABLE IF NOT EXISTS app_state (
	key            TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	value          TEXT NOT NULL,
	updated_at     TEXT NOT NULL
)`

const upsertState = `INSERT INTO app_state (key, schema_version, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	schema_version = excluded.schema_version,
	value = excluded.value,
	updated_at = excluded.updated_at`

// envelope wraps every stored value. Values written before versioning
// existed are bare JSON and decode with Version == 0.
type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// SQLiteStore implements domain.StateRepository
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	// one writer keeps ":memory:" databases on a single connection too
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state db: %w", err)
	}

	logger.Info().Str("path", path).Int("schema_version", SchemaVersion).Msg("state store ready")
	return &SQLiteStore{db: db, log: logger}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) load(ctx context.Context, key string, dest interface{}) error {
	var (
		version int
		value   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT schema_version, value FROM app_state WHERE key = ?`, key).
		Scan(&version, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStateNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: %s has version %d, this build reads up to %d", domain.ErrUnsupportedSchema, key, version, SchemaVersion)
	}

	var env envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil || env.Version == 0 {
		// legacy bare value
		if err := json.Unmarshal([]byte(value), dest); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		s.log.Info().Str("key", key).Msg("loaded unversioned state")
		return nil
	}
	if env.Version > SchemaVersion {
		return fmt.Errorf("%w: %s envelope version %d", domain.ErrUnsupportedSchema, key, env.Version)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	body, err := json.Marshal(envelope{Version: SchemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, upsertState, key, SchemaVersion, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// LoadRecords returns domain.ErrStateNotFound when nothing was saved yet
func (s *SQLiteStore) LoadRecords(ctx context.Context) ([]domain.RawProductRecord, error) {
	var records []domain.RawProductRecord
	if err := s.load(ctx, KeyRecords, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, records []domain.RawProductRecord) error {
	if records == nil {
		records = []domain.RawProductRecord{}
	}
	return s.save(ctx, KeyRecords, records)
}

// LoadSources returns domain.ErrStateNotFound when nothing was saved yet
func (s *SQLiteStore) LoadSources(ctx context.Context) ([]domain.SourceConfig, error) {
	var sources []domain.SourceConfig
	if err := s.load(ctx, KeySources, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (s *SQLiteStore) SaveSources(ctx context.Context, sources []domain.SourceConfig) error {
	return s.save(ctx, KeySources, sources)
}

// LoadCredentials returns the raw user-supplied credential string
func (s *SQLiteStore) LoadCredentials(ctx context.Context) (string, error) {
	var raw string
	if err := s.load(ctx, KeyCredentials, &raw); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *SQLiteStore) SaveCredentials(ctx context.Context, raw string) error {
	return s.save(ctx, KeyCredentials, raw)
}
