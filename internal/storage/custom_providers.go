package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaiwa/internal/model"
)

const customProviderColumns = `id, name, description, sdk, config, created_at, updated_at`

// CreateCustomProvider stores a new custom provider. Returns ErrConflict when
// the name is taken.
func (db *DB) CreateCustomProvider(ctx context.Context, in model.CustomProviderInput) (model.CustomProvider, error) {
	if err := in.Validate(); err != nil {
		return model.CustomProvider{}, fmt.Errorf("storage: create custom provider: %w: %w", ErrInvalid, err)
	}
	raw, err := db.sealConfig(in.Config)
	if err != nil {
		return model.CustomProvider{}, err
	}

	now := time.Now().UTC()
	p := model.CustomProvider{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		SDK:         in.SDK,
		Config:      in.Config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO custom_providers (id, name, description, sdk, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Description, string(p.SDK), raw, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.CustomProvider{}, fmt.Errorf("storage: custom provider %q: %w", in.Name, ErrConflict)
		}
		return model.CustomProvider{}, fmt.Errorf("storage: create custom provider: %w", err)
	}
	return p, nil
}

// GetCustomProvider returns a custom provider with its secrets opened.
func (db *DB) GetCustomProvider(ctx context.Context, id uuid.UUID) (model.CustomProvider, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+customProviderColumns+` FROM custom_providers WHERE id = $1`, id)
	p, err := db.scanCustomProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CustomProvider{}, fmt.Errorf("storage: custom provider %s: %w", id, ErrNotFound)
		}
		return model.CustomProvider{}, fmt.Errorf("storage: get custom provider: %w", err)
	}
	return p, nil
}

// ListCustomProviders returns all custom providers ordered by name.
func (db *DB) ListCustomProviders(ctx context.Context) ([]model.CustomProvider, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+customProviderColumns+` FROM custom_providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list custom providers: %w", err)
	}
	defer rows.Close()

	var out []model.CustomProvider
	for rows.Next() {
		p, err := db.scanCustomProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan custom provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateCustomProvider replaces every field of a custom provider.
func (db *DB) UpdateCustomProvider(ctx context.Context, id uuid.UUID, in model.CustomProviderInput) (model.CustomProvider, error) {
	if err := in.Validate(); err != nil {
		return model.CustomProvider{}, fmt.Errorf("storage: update custom provider: %w: %w", ErrInvalid, err)
	}
	raw, err := db.sealConfig(in.Config)
	if err != nil {
		return model.CustomProvider{}, err
	}
	row := db.pool.QueryRow(ctx,
		`UPDATE custom_providers
		 SET name = $2, description = $3, sdk = $4, config = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+customProviderColumns,
		id, in.Name, in.Description, string(in.SDK), raw,
	)
	p, err := db.scanCustomProvider(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return model.CustomProvider{}, fmt.Errorf("storage: custom provider %s: %w", id, ErrNotFound)
		case isUniqueViolation(err):
			return model.CustomProvider{}, fmt.Errorf("storage: custom provider %q: %w", in.Name, ErrConflict)
		}
		return model.CustomProvider{}, fmt.Errorf("storage: update custom provider: %w", err)
	}
	return p, nil
}

// DeleteCustomProvider removes a custom provider.
func (db *DB) DeleteCustomProvider(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM custom_providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete custom provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: custom provider %s: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) sealConfig(cfg model.ClientConfig) ([]byte, error) {
	if db.box != nil {
		var err error
		if cfg, err = cfg.MapSecrets(db.box.Seal); err != nil {
			return nil, fmt.Errorf("storage: seal provider secrets: %w", err)
		}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: encode provider config: %w", err)
	}
	return raw, nil
}

func (db *DB) scanCustomProvider(row pgx.Row) (model.CustomProvider, error) {
	var (
		p   model.CustomProvider
		sdk string
		raw []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &sdk, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.CustomProvider{}, err
	}
	p.SDK = model.SDK(sdk)
	if err := json.Unmarshal(raw, &p.Config); err != nil {
		return model.CustomProvider{}, fmt.Errorf("decode config for %s: %w", p.Name, err)
	}
	if db.box != nil {
		cfg, err := p.Config.MapSecrets(db.box.Open)
		if err != nil {
			return model.CustomProvider{}, fmt.Errorf("open secrets for %s: %w", p.Name, err)
		}
		p.Config = cfg
	}
	return p, nil
}
