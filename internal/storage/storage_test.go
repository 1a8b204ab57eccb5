package storage_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/secret"
	"github.com/ashita-ai/kaiwa/internal/storage"
	"github.com/ashita-ai/kaiwa/internal/testutil"
)

// testDB is shared by all tests in this package. It is nil when Docker is
// unavailable or -short is set, and the tests skip.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc, err := testutil.StartPostgres()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: postgres unavailable, integration tests skipped: %v\n", err)
		os.Exit(m.Run())
	}

	key, err := secret.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}
	box, err := secret.ParseKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse key: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	testDB, err = tc.NewTestDB(ctx, box, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) *storage.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres not available")
	}
	return testDB
}

func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestCustomProviderCRUD(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	in := model.CustomProviderInput{
		Name: uniqueName("openai-team"),
		SDK:  model.SDKOpenAI,
		Config: model.ClientConfig{OpenAI: &model.OpenAIClientConfig{
			AuthenticationMethod: model.OpenAIAuthenticationMethod{APIKey: model.StrPtr("sk-test")},
			ClientKwargs:         model.OpenAIClientKwargs{BaseURL: model.StrPtr("https://proxy.internal/v1")},
		}},
	}
	created, err := db.CreateCustomProvider(ctx, in)
	require.NoError(t, err)

	var stored string
	require.NoError(t, db.Pool().QueryRow(ctx,
		`SELECT config->'openai'->'openai_authentication_method'->>'api_key' FROM custom_providers WHERE id = $1`,
		created.ID).Scan(&stored))
	assert.True(t, secret.IsSealed(stored), "api key is sealed at rest")

	got, err := db.GetCustomProvider(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", *got.Config.OpenAI.AuthenticationMethod.APIKey)
	assert.Equal(t, "https://proxy.internal/v1", *got.Config.OpenAI.ClientKwargs.BaseURL)

	_, err = db.CreateCustomProvider(ctx, in)
	assert.ErrorIs(t, err, storage.ErrConflict)

	in.Description = model.StrPtr("rotated")
	in.Config.OpenAI.AuthenticationMethod.APIKey = model.StrPtr("sk-rotated")
	updated, err := db.UpdateCustomProvider(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "rotated", *updated.Description)
	assert.Equal(t, "sk-rotated", *updated.Config.OpenAI.AuthenticationMethod.APIKey)

	all, err := db.ListCustomProviders(ctx)
	require.NoError(t, err)
	var found bool
	for _, p := range all {
		found = found || p.ID == created.ID
	}
	assert.True(t, found)

	require.NoError(t, db.DeleteCustomProvider(ctx, created.ID))
	_, err = db.GetCustomProvider(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, db.DeleteCustomProvider(ctx, created.ID), storage.ErrNotFound)
}

func testVersion(content string) model.PromptVersion {
	return model.PromptVersion{
		TemplateFormat: model.TemplateFormatMustache,
		Messages: []model.PromptMessage{
			{Role: model.RoleSystem, Content: model.StrPtr("You are a chatbot")},
			{Role: model.RoleUser, Content: model.StrPtr(content)},
		},
		ModelProvider: model.ProviderOpenAI,
		ModelName:     "gpt-4o",
		Tools: []map[string]any{
			{"type": "function", "function": map[string]any{"name": "lookup"}},
		},
		ToolChoice: &model.ToolChoice{Type: model.ToolChoiceAuto},
	}
}

func TestPromptVersionsAndTags(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	name := uniqueName("support-bot")

	_, err := db.GetPromptVersion(ctx, name, storage.LatestVersion)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v1, err := db.CreatePromptVersion(ctx, name, model.StrPtr("first"), testVersion("{{question}}"))
	require.NoError(t, err)
	v2, err := db.CreatePromptVersion(ctx, name, nil, testVersion("{{question}} politely"))
	require.NoError(t, err)
	assert.Equal(t, v1.PromptID, v2.PromptID)

	prompt, err := db.GetPrompt(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "first", *prompt.Description, "a nil description keeps the stored one")

	latest, err := db.GetPromptVersion(ctx, name, "")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, latest.ID)
	assert.Equal(t, "{{question}} politely", *latest.Messages[1].Content)
	require.Len(t, latest.Tools, 1)
	require.NotNil(t, latest.ToolChoice)

	byID, err := db.GetPromptVersion(ctx, name, v1.ID.String())
	require.NoError(t, err)
	assert.Equal(t, v1.ID, byID.ID)

	_, err = db.SetPromptVersionTag(ctx, name, "production", v1.ID)
	require.NoError(t, err)
	tagged, err := db.GetPromptVersion(ctx, name, "production")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, tagged.ID)
	assert.Equal(t, []string{"production"}, tagged.Tags)

	_, err = db.SetPromptVersionTag(ctx, name, "production", v2.ID)
	require.NoError(t, err)
	tagged, err = db.GetPromptVersion(ctx, name, "production")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, tagged.ID)

	_, err = db.SetPromptVersionTag(ctx, name, "staging", uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.SetPromptVersionTag(ctx, name, storage.LatestVersion, v1.ID)
	assert.Error(t, err)

	versions, err := db.ListPromptVersions(ctx, name)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2.ID, versions[0].ID)
}

func TestPromptVersionContentHash(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	name := uniqueName("hashed")

	v1, err := db.CreatePromptVersion(ctx, name, nil, testVersion("{{question}}"))
	require.NoError(t, err)
	v2, err := db.CreatePromptVersion(ctx, name, nil, testVersion("{{question}}"))
	require.NoError(t, err)
	v3, err := db.CreatePromptVersion(ctx, name, nil, testVersion("{{question}}!"))
	require.NoError(t, err)

	assert.NotEmpty(t, v1.ContentHash)
	assert.Equal(t, v1.ContentHash, v2.ContentHash, "identical content hashes equal")
	assert.NotEqual(t, v1.ContentHash, v3.ContentHash)

	stored, err := db.GetPromptVersion(ctx, name, v1.ID.String())
	require.NoError(t, err)
	assert.Equal(t, v1.ContentHash, stored.ContentHash)
	assert.True(t, integrity.VerifyContentHash(stored.ContentHash, stored), "hash survives the JSONB round trip")

	// Simulate a version saved before hashing existed.
	_, err = db.Pool().Exec(ctx, `UPDATE prompt_versions SET content_hash = NULL WHERE id = $1`, v3.ID)
	require.NoError(t, err)
	missing, err := db.GetPromptVersion(ctx, name, v3.ID.String())
	require.NoError(t, err)
	assert.Empty(t, missing.ContentHash)

	scanned, updated, err := db.RehashPromptVersions(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, scanned, 3)
	assert.Equal(t, 1, updated)

	backfilled, err := db.GetPromptVersion(ctx, name, v3.ID.String())
	require.NoError(t, err)
	assert.Equal(t, v3.ContentHash, backfilled.ContentHash)

	_, updated, err = db.RehashPromptVersions(ctx)
	require.NoError(t, err)
	assert.Zero(t, updated, "a second run has nothing to fix")
}

func TestCreatePromptVersionValidates(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	bad := testVersion("x")
	bad.ModelName = ""
	_, err := db.CreatePromptVersion(ctx, uniqueName("p"), nil, bad)
	assert.ErrorIs(t, err, storage.ErrInvalid)

	_, err = db.CreatePromptVersion(ctx, "has spaces", nil, testVersion("x"))
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	require.NoError(t, db.RunMigrations(ctx, os.DirFS("../../migrations")))
}
