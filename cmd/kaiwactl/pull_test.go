package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
)

func promptServer(t *testing.T, pv model.PromptVersion) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req model.AuthTokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.AccessViewer, req.Role)
		_ = json.NewEncoder(w).Encode(model.APIResponse{Data: model.AuthTokenResponse{
			Token: "t", ExpiresAt: time.Now().Add(time.Hour), Role: req.Role,
		}})
	})
	mux.HandleFunc("GET /v1/prompts/{name}/versions/{ref}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "greeter" || r.PathValue("ref") != "production" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(model.APIError{Error: model.ErrorDetail{Code: model.ErrCodeNotFound, Message: "not found"}})
			return
		}
		_ = json.NewEncoder(w).Encode(model.APIResponse{Data: pv})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPull(t *testing.T) {
	var pv model.PromptVersion
	require.NoError(t, json.Unmarshal([]byte(promptA), &pv))
	pv.ContentHash = integrity.ComputeContentHash(pv)
	srv := promptServer(t, pv)

	out := filepath.Join(t.TempDir(), "greeter.json")
	code, _, stderr := execute("pull", "-server", srv.URL, "-api-key", "k", "-o", out, "greeter", "production")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "wrote greeter")
	assert.NotContains(t, stderr, "warning")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var got model.PromptVersion
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, integrity.VerifyContentHash(got.ContentHash, got))

	// The pulled file feeds the offline commands.
	code, stdout, stderr := execute("vars", out)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "persona\nquestion\n", stdout)
}

func TestPullWarnsOnHashMismatch(t *testing.T) {
	var pv model.PromptVersion
	require.NoError(t, json.Unmarshal([]byte(promptA), &pv))
	pv.ContentHash = "v1:0000"
	t.Setenv("KAIWA_API_KEY", "")
	srv := promptServer(t, pv)

	code, stdout, stderr := execute("pull", "-server", srv.URL, "greeter", "production")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "content_hash does not match")
	assert.Contains(t, stdout, `"model_name": "gpt-4o"`)
}

func TestPullNotFound(t *testing.T) {
	srv := promptServer(t, model.PromptVersion{})

	code, _, stderr := execute("pull", "-server", srv.URL, "-api-key", "k", "greeter")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `prompt "greeter" has no version "latest"`)

	code, _, _ = execute("pull")
	assert.Equal(t, 2, code)
}
