package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
)

// LatestVersion is the version ref that resolves to the newest version.
const LatestVersion = "latest"

const promptVersionColumns = `v.id, v.prompt_id, v.description, v.template_format, v.messages,
	v.model_provider, v.model_name, v.invocation_parameters, v.tools, v.tool_choice,
	COALESCE(v.content_hash, ''), v.created_at,
	COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM prompt_version_tags t WHERE t.version_id = v.id), '{}')`

// GetPrompt returns a prompt by name.
func (db *DB) GetPrompt(ctx context.Context, name string) (model.Prompt, error) {
	var p model.Prompt
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM prompts WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Prompt{}, fmt.Errorf("storage: prompt %q: %w", name, ErrNotFound)
		}
		return model.Prompt{}, fmt.Errorf("storage: get prompt: %w", err)
	}
	return p, nil
}

// CreatePromptVersion appends a version to the named prompt, creating the
// prompt on first save. pv.ID, pv.PromptID and pv.CreatedAt are assigned.
func (db *DB) CreatePromptVersion(ctx context.Context, name string, promptDescription *string, pv model.PromptVersion) (model.PromptVersion, error) {
	if err := model.ValidateName("prompt name", name); err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: create prompt version: %w: %w", ErrInvalid, err)
	}
	if err := pv.Validate(); err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: create prompt version: %w: %w", ErrInvalid, err)
	}
	messages, err := json.Marshal(pv.Messages)
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: encode messages: %w", err)
	}
	params := pv.InvocationParameters
	if params == nil {
		params = []model.InvocationParameterInput{}
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: encode invocation parameters: %w", err)
	}
	toolsRaw, err := jsonOrNull(len(pv.Tools) > 0, pv.Tools)
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: encode tools: %w", err)
	}
	choiceRaw, err := jsonOrNull(pv.ToolChoice != nil, pv.ToolChoice)
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: encode tool choice: %w", err)
	}

	pv.ID = uuid.New()
	pv.CreatedAt = time.Now().UTC()
	pv.Tags = nil
	pv.ContentHash = integrity.ComputeContentHash(pv)
	err = WithRetry(ctx, defaultMaxRetries, defaultRetryDelay, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if err := tx.QueryRow(ctx,
				`INSERT INTO prompts (id, name, description) VALUES ($1, $2, $3)
				 ON CONFLICT (name) DO UPDATE SET description = COALESCE(EXCLUDED.description, prompts.description)
				 RETURNING id`,
				uuid.New(), name, promptDescription,
			).Scan(&pv.PromptID); err != nil {
				return fmt.Errorf("upsert prompt: %w", err)
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO prompt_versions (id, prompt_id, description, template_format, messages,
				   model_provider, model_name, invocation_parameters, tools, tool_choice, content_hash, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				pv.ID, pv.PromptID, pv.Description, string(pv.TemplateFormat), messages,
				string(pv.ModelProvider), pv.ModelName, paramsRaw, toolsRaw, choiceRaw, pv.ContentHash, pv.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert version: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return model.PromptVersion{}, fmt.Errorf("storage: create prompt version: %w", err)
	}
	return pv, nil
}

// GetPromptVersion resolves ref against the named prompt. ref is a version
// id, a tag name, or LatestVersion (also used when ref is empty).
func (db *DB) GetPromptVersion(ctx context.Context, name, ref string) (model.PromptVersion, error) {
	var row pgx.Row
	switch id, err := uuid.Parse(ref); {
	case ref == "" || ref == LatestVersion:
		row = db.pool.QueryRow(ctx,
			`SELECT `+promptVersionColumns+`
			 FROM prompt_versions v JOIN prompts p ON p.id = v.prompt_id
			 WHERE p.name = $1
			 ORDER BY v.created_at DESC, v.id DESC
			 LIMIT 1`, name)
	case err == nil:
		row = db.pool.QueryRow(ctx,
			`SELECT `+promptVersionColumns+`
			 FROM prompt_versions v JOIN prompts p ON p.id = v.prompt_id
			 WHERE p.name = $1 AND v.id = $2`, name, id)
	default:
		row = db.pool.QueryRow(ctx,
			`SELECT `+promptVersionColumns+`
			 FROM prompt_version_tags tg
			 JOIN prompts p ON p.id = tg.prompt_id
			 JOIN prompt_versions v ON v.id = tg.version_id
			 WHERE p.name = $1 AND tg.name = $2`, name, ref)
	}
	pv, err := scanPromptVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PromptVersion{}, fmt.Errorf("storage: prompt %q version %q: %w", name, ref, ErrNotFound)
		}
		return model.PromptVersion{}, fmt.Errorf("storage: get prompt version: %w", err)
	}
	return pv, nil
}

// ListPromptVersions returns the versions of a prompt, newest first.
func (db *DB) ListPromptVersions(ctx context.Context, name string) ([]model.PromptVersion, error) {
	prompt, err := db.GetPrompt(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+promptVersionColumns+`
		 FROM prompt_versions v
		 WHERE v.prompt_id = $1
		 ORDER BY v.created_at DESC, v.id DESC`, prompt.ID)
	if err != nil {
		return nil, fmt.Errorf("storage: list prompt versions: %w", err)
	}
	defer rows.Close()

	var out []model.PromptVersion
	for rows.Next() {
		pv, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan prompt version: %w", err)
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

// SetPromptVersionTag points tag at versionID, which must belong to the
// named prompt.
func (db *DB) SetPromptVersionTag(ctx context.Context, name, tag string, versionID uuid.UUID) (model.PromptVersionTag, error) {
	if err := model.ValidateName("tag", tag); err != nil {
		return model.PromptVersionTag{}, fmt.Errorf("storage: set tag: %w: %w", ErrInvalid, err)
	}
	if tag == LatestVersion {
		return model.PromptVersionTag{}, fmt.Errorf("storage: set tag: %w: %q is reserved", ErrInvalid, LatestVersion)
	}
	out := model.PromptVersionTag{Name: tag, VersionID: versionID}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO prompt_version_tags (prompt_id, name, version_id, updated_at)
		 SELECT v.prompt_id, $2, v.id, now()
		 FROM prompt_versions v JOIN prompts p ON p.id = v.prompt_id
		 WHERE p.name = $1 AND v.id = $3
		 ON CONFLICT (prompt_id, name) DO UPDATE
		   SET version_id = EXCLUDED.version_id, updated_at = EXCLUDED.updated_at
		 RETURNING prompt_id, updated_at`,
		name, tag, versionID,
	).Scan(&out.PromptID, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PromptVersionTag{}, fmt.Errorf("storage: prompt %q version %s: %w", name, versionID, ErrNotFound)
		}
		return model.PromptVersionTag{}, fmt.Errorf("storage: set tag: %w", err)
	}
	return out, nil
}

func scanPromptVersion(row pgx.Row) (model.PromptVersion, error) {
	var (
		pv                              model.PromptVersion
		format, provider                string
		messages, params, tools, choice []byte
	)
	if err := row.Scan(
		&pv.ID, &pv.PromptID, &pv.Description, &format, &messages,
		&provider, &pv.ModelName, &params, &tools, &choice, &pv.ContentHash, &pv.CreatedAt, &pv.Tags,
	); err != nil {
		return model.PromptVersion{}, err
	}
	pv.TemplateFormat = model.TemplateFormat(format)
	pv.ModelProvider = model.ModelProvider(provider)
	if err := json.Unmarshal(messages, &pv.Messages); err != nil {
		return model.PromptVersion{}, fmt.Errorf("decode messages: %w", err)
	}
	if err := json.Unmarshal(params, &pv.InvocationParameters); err != nil {
		return model.PromptVersion{}, fmt.Errorf("decode invocation parameters: %w", err)
	}
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &pv.Tools); err != nil {
			return model.PromptVersion{}, fmt.Errorf("decode tools: %w", err)
		}
	}
	if len(choice) > 0 {
		if err := json.Unmarshal(choice, &pv.ToolChoice); err != nil {
			return model.PromptVersion{}, fmt.Errorf("decode tool choice: %w", err)
		}
	}
	if len(pv.Tags) == 0 {
		pv.Tags = nil
	}
	return pv, nil
}

// RehashPromptVersions recomputes content_hash for every stored version and
// rewrites rows whose hash is missing or stale. It is idempotent.
func (db *DB) RehashPromptVersions(ctx context.Context) (scanned, updated int, err error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+promptVersionColumns+`
		 FROM prompt_versions v
		 ORDER BY v.created_at ASC, v.id ASC`)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: rehash: query: %w", err)
	}
	type staleRow struct {
		id   uuid.UUID
		hash string
	}
	var stale []staleRow
	for rows.Next() {
		pv, err := scanPromptVersion(rows)
		if err != nil {
			rows.Close()
			return scanned, 0, fmt.Errorf("storage: rehash: scan: %w", err)
		}
		scanned++
		if !integrity.VerifyContentHash(pv.ContentHash, pv) {
			stale = append(stale, staleRow{id: pv.ID, hash: integrity.ComputeContentHash(pv)})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return scanned, 0, fmt.Errorf("storage: rehash: rows: %w", err)
	}

	for _, r := range stale {
		tag, err := db.pool.Exec(ctx,
			`UPDATE prompt_versions SET content_hash = $1 WHERE id = $2`, r.hash, r.id)
		if err != nil {
			return scanned, updated, fmt.Errorf("storage: rehash %s: %w", r.id, err)
		}
		if tag.RowsAffected() > 0 {
			updated++
		}
	}
	return scanned, updated, nil
}

// jsonOrNull encodes v, or returns nil (SQL NULL) when present is false.
func jsonOrNull(present bool, v any) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}
