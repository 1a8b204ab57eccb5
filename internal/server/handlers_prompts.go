package server

import (
	"net/http"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// HandleGetPrompt handles GET /v1/prompts/{name}.
func (h *Handlers) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.prompts != nil) {
		return
	}
	name := r.PathValue("name")
	p, err := h.prompts.GetPrompt(r.Context(), name)
	if err != nil {
		h.writeStorageError(w, r, "get prompt", err)
		return
	}
	versions, err := h.prompts.ListPromptVersions(r.Context(), name)
	if err != nil {
		h.writeStorageError(w, r, "list prompt versions", err)
		return
	}
	if versions == nil {
		versions = []model.PromptVersion{}
	}
	writeJSON(w, r, http.StatusOK, PromptResponse{Prompt: p, Versions: versions})
}

// HandleGetPromptVersion handles GET /v1/prompts/{name}/versions/{ref}. ref
// is a version id, a tag, or "latest".
func (h *Handlers) HandleGetPromptVersion(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.prompts != nil) {
		return
	}
	pv, err := h.prompts.GetPromptVersion(r.Context(), r.PathValue("name"), r.PathValue("ref"))
	if err != nil {
		h.writeStorageError(w, r, "get prompt version", err)
		return
	}
	writeJSON(w, r, http.StatusOK, pv)
}

// HandleSetPromptTag handles PUT /v1/prompts/{name}/tags/{tag}.
func (h *Handlers) HandleSetPromptTag(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.prompts != nil) {
		return
	}
	var req SetTagRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	tag, err := h.prompts.SetPromptVersionTag(r.Context(), r.PathValue("name"), r.PathValue("tag"), req.VersionID)
	if err != nil {
		h.writeStorageError(w, r, "set prompt tag", err)
		return
	}
	writeJSON(w, r, http.StatusOK, tag)
}

// HandleGetPreferences handles GET /v1/preferences.
func (h *Handlers) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.All(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "read preferences", err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleSetStreamingPreference handles PUT /v1/preferences/streaming.
func (h *Handlers) HandleSetStreamingPreference(w http.ResponseWriter, r *http.Request) {
	var req SetStreamingRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.prefs.SetStreaming(r.Context(), req.Streaming); err != nil {
		h.writeInternalError(w, r, "save streaming preference", err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

// HandleSetDefaultModel handles PUT /v1/preferences/models/{provider}. The
// provider in the path wins over the body.
func (h *Handlers) HandleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	p, ok := pathProvider(w, r)
	if !ok {
		return
	}
	var cfg model.ModelConfig
	if err := decodeJSON(w, r, &cfg, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	cfg.Provider = p
	if err := h.prefs.SetDefaultModel(r.Context(), cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	saved, _, err := h.prefs.DefaultModel(r.Context(), p)
	if err != nil {
		h.writeInternalError(w, r, "read default model", err)
		return
	}
	writeJSON(w, r, http.StatusOK, saved)
}
