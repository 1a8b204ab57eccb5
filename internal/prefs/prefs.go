// Package prefs persists playground preferences in a local SQLite file: the
// streaming toggle and the default model for each provider. New sessions are
// seeded from these values.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ashita-ai/kaiwa/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS default_models (
	provider TEXT PRIMARY KEY,
	config   TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

const streamingKey = "streaming"

// Store reads and writes preferences.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the preferences database at path. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers, which SQLite needs anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Streaming returns the streaming toggle. Defaults to true.
func (s *Store) Streaming(ctx context.Context) (bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, streamingKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: get streaming: %w", err)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("prefs: parse streaming %q: %w", v, err)
	}
	return b, nil
}

// SetStreaming stores the streaming toggle.
func (s *Store) SetStreaming(ctx context.Context, on bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		streamingKey, strconv.FormatBool(on),
	)
	if err != nil {
		return fmt.Errorf("prefs: set streaming: %w", err)
	}
	return nil
}

// DefaultModel returns the saved model config for a provider. ok is false
// when nothing was saved.
func (s *Store) DefaultModel(ctx context.Context, provider model.ModelProvider) (cfg model.ModelConfig, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT config FROM default_models WHERE provider = ?`, string(provider)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ModelConfig{}, false, nil
	}
	if err != nil {
		return model.ModelConfig{}, false, fmt.Errorf("prefs: get default model: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.ModelConfig{}, false, fmt.Errorf("prefs: decode default model for %s: %w", provider, err)
	}
	return cfg, true, nil
}

// SetDefaultModel saves cfg as the default for its provider. Only the model
// name, endpoint settings and invocation parameters are kept; the supported
// parameter definitions are rediscovered when the model is selected.
func (s *Store) SetDefaultModel(ctx context.Context, cfg model.ModelConfig) error {
	if !cfg.Provider.Valid() {
		return fmt.Errorf("prefs: unknown provider %q", cfg.Provider)
	}
	cfg.SupportedInvocationParameters = nil
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("prefs: encode default model: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO default_models (provider, config) VALUES (?, ?)
		 ON CONFLICT(provider) DO UPDATE SET config = excluded.config,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		string(cfg.Provider), string(raw),
	)
	if err != nil {
		return fmt.Errorf("prefs: set default model: %w", err)
	}
	return nil
}

// All returns every stored preference.
func (s *Store) All(ctx context.Context) (model.Preferences, error) {
	streaming, err := s.Streaming(ctx)
	if err != nil {
		return model.Preferences{}, err
	}
	out := model.Preferences{Streaming: streaming, DefaultModels: map[model.ModelProvider]model.ModelConfig{}}

	rows, err := s.db.QueryContext(ctx, `SELECT provider, config FROM default_models ORDER BY provider`)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("prefs: list default models: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var provider, raw string
		if err := rows.Scan(&provider, &raw); err != nil {
			return model.Preferences{}, fmt.Errorf("prefs: scan default model: %w", err)
		}
		var cfg model.ModelConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return model.Preferences{}, fmt.Errorf("prefs: decode default model for %s: %w", provider, err)
		}
		out.DefaultModels[model.ModelProvider(provider)] = cfg
	}
	return out, rows.Err()
}
