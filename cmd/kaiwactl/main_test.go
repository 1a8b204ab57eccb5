package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
)

const promptA = `{
  "id": "7f0c1c7e-58f4-4b4c-9a55-8b9b0f0e6a01",
  "prompt_id": "1e6f2c3a-7c55-4d34-8f4e-3a2c9d1b0b11",
  "template_format": "MUSTACHE",
  "model_provider": "OPENAI",
  "model_name": "gpt-4o",
  "messages": [
    {"role": "system", "content": "You are {{persona}}."},
    {"role": "user", "content": "{{question}}"}
  ],
  "invocation_parameters": [
    {"invocation_name": "temperature", "canonical_name": "TEMPERATURE", "value_float": 0.2}
  ]
}`

const promptB = `{
  "id": "7f0c1c7e-58f4-4b4c-9a55-8b9b0f0e6a02",
  "prompt_id": "1e6f2c3a-7c55-4d34-8f4e-3a2c9d1b0b11",
  "template_format": "MUSTACHE",
  "model_provider": "OPENAI",
  "model_name": "gpt-4o",
  "messages": [
    {"role": "system", "content": "You are {{persona}}, and you answer in one line."},
    {"role": "user", "content": "{{question}}"}
  ],
  "invocation_parameters": [
    {"invocation_name": "temperature", "canonical_name": "TEMPERATURE", "value_float": 0.7}
  ]
}`

const jsonPathPrompt = `{
  "template_format": "JSON_PATH",
  "model_provider": "ANTHROPIC",
  "model_name": "claude-sonnet",
  "messages": [
    {"role": "user", "content": "Summarize the document below."}
  ],
  "invocation_parameters": []
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := execute()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: kaiwactl")

	code, _, stderr = execute("explode")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "explode"`)

	code, stdout, _ := execute("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "schema <provider>")

	code, _, stderr = execute("vars")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: kaiwactl vars")
}

func TestVars(t *testing.T) {
	path := writeFile(t, "a.json", promptA)

	code, stdout, stderr := execute("vars", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "persona\nquestion\n", stdout)
}

func TestVarsJSONPathWithInput(t *testing.T) {
	path := writeFile(t, "p.json", jsonPathPrompt)
	input := writeFile(t, "input.json", `{"doc": {"title": "Dune", "author": "Herbert"}}`)

	code, stdout, stderr := execute("vars", path, "-input", input, "-json")
	require.Equal(t, 0, code, stderr)

	var got struct {
		TemplateFormat string `json:"template_format"`
		Variables      struct {
			Keys   []string          `json:"keys"`
			Values map[string]string `json:"values"`
		} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "JSON_PATH", got.TemplateFormat)
	assert.Equal(t, []string{"doc.author", "doc.title"}, got.Variables.Keys)
	assert.Equal(t, "Dune", got.Variables.Values["doc.title"])
}

func TestVarsUnwrapsEnvelope(t *testing.T) {
	path := writeFile(t, "wrapped.json", `{"data": `+promptA+`, "meta": {"request_id": "r1"}}`)

	code, stdout, stderr := execute("vars", path)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "persona\nquestion\n", stdout)
}

func TestContentHashWarning(t *testing.T) {
	var pv model.PromptVersion
	require.NoError(t, json.Unmarshal([]byte(promptA), &pv))
	pv.ContentHash = integrity.ComputeContentHash(pv)
	raw, err := json.Marshal(pv)
	require.NoError(t, err)
	intact := writeFile(t, "intact.json", string(raw))

	code, _, stderr := execute("vars", intact)
	require.Equal(t, 0, code)
	assert.NotContains(t, stderr, "warning")

	pv.Messages[0].Content = model.StrPtr("You are {{persona}}, edited by hand.")
	raw, err = json.Marshal(pv)
	require.NoError(t, err)
	edited := writeFile(t, "edited.json", string(raw))

	code, _, stderr = execute("vars", edited)
	require.Equal(t, 0, code)
	assert.Contains(t, stderr, "content_hash does not match")
}

func TestVarsRejectsBadPrompt(t *testing.T) {
	path := writeFile(t, "bad.json", `{"template_format": "MUSTACHE", "messages": []}`)
	code, _, stderr := execute("vars", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "model_provider")

	code, _, stderr = execute("vars", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing.json")
}

func TestRenderPlain(t *testing.T) {
	path := writeFile(t, "a.json", promptA)

	code, stdout, stderr := execute("render", path, "-var", "persona=terse", "-plain")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "# OPENAI gpt-4o")
	assert.Contains(t, stdout, "## 1. system")
	assert.Contains(t, stdout, "You are terse.")
	assert.Contains(t, stdout, "{{question}}", "unset variables are left as written")
}

func TestRenderStyled(t *testing.T) {
	path := writeFile(t, "a.json", promptA)

	code, stdout, stderr := execute("render", "-style", "notty", "-var", "persona=terse", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "terse")
}

func TestRenderRejectsMalformedVar(t *testing.T) {
	path := writeFile(t, "a.json", promptA)
	code, _, stderr := execute("render", path, "-var", "persona")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "expected name=value")
}

func TestDiff(t *testing.T) {
	a := writeFile(t, "a.json", promptA)
	b := writeFile(t, "b.json", promptB)

	code, stdout, stderr := execute("diff", "-no-color", a, b)
	require.Equal(t, 1, code, stderr)
	assert.Contains(t, stdout, "message 1 (system):")
	assert.Contains(t, stdout, "{+")
	assert.NotContains(t, stdout, "message 2", "unchanged messages are omitted")
	assert.Contains(t, stdout, "- temperature: 0.2")
	assert.Contains(t, stdout, "+ temperature: 0.7")
	assert.NotContains(t, stdout, "model:")
}

func TestDiffIdentical(t *testing.T) {
	a := writeFile(t, "a.json", promptA)

	code, stdout, _ := execute("diff", "-no-color", a, a)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "no differences")
}

func TestDiffJSON(t *testing.T) {
	a := writeFile(t, "a.json", promptA)
	b := writeFile(t, "b.json", promptB)

	code, stdout, _ := execute("diff", "-json", a, b)
	require.Equal(t, 1, code)

	var got struct {
		ModelChanged bool `json:"model_changed"`
		Parameters   []struct {
			Name string `json:"name"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.False(t, got.ModelChanged)
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, "temperature", got.Parameters[0].Name)
}

func TestSchema(t *testing.T) {
	code, stdout, stderr := execute("schema", "openai")
	require.Equal(t, 0, code, stderr)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "OPENAI", got["provider"])
	assert.Equal(t, "definition", got["kind"])
	assert.Equal(t, true, got["validated"])
	assert.NotNil(t, got["default_tool_definition"])

	code, _, stderr = execute("schema", "-kind", "output", "openai")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "definition or call")

	code, _, stderr = execute("schema", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown model provider")
}
