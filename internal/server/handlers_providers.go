package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/provider"
)

// HandleListProviders handles GET /v1/providers.
func (h *Handlers) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, provider.All())
}

// HandleProviderSchemas handles GET /v1/providers/{provider}/schemas.
func (h *Handlers) HandleProviderSchemas(w http.ResponseWriter, r *http.Request) {
	p, ok := pathProvider(w, r)
	if !ok {
		return
	}
	def, _, err := provider.ToolDefinitionSchema(p)
	if err != nil {
		h.writeInternalError(w, r, "load tool definition schema", err)
		return
	}
	call, _, err := provider.ToolCallSchema(p)
	if err != nil {
		h.writeInternalError(w, r, "load tool call schema", err)
		return
	}
	starter, err := provider.DefaultToolDefinition(p, 1)
	if err != nil {
		h.writeInternalError(w, r, "build default tool definition", err)
		return
	}
	writeJSON(w, r, http.StatusOK, ProviderSchemas{
		Provider:              p,
		ToolDefinition:        def,
		ToolCall:              call,
		DefaultToolDefinition: starter,
	})
}

// HandleValidateTool handles POST /v1/providers/{provider}/validate-tool.
// Validation problems are data, so an invalid tool still answers 200.
func (h *Handlers) HandleValidateTool(w http.ResponseWriter, r *http.Request) {
	p, ok := pathProvider(w, r)
	if !ok {
		return
	}
	var req ValidateToolRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	var (
		errs []provider.FieldError
		err  error
	)
	switch req.Kind {
	case ValidateDefinition, "":
		errs, err = provider.ValidateToolDefinition(p, req.JSON)
	case ValidateCall:
		errs, err = provider.ValidateToolCall(p, req.JSON)
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "kind must be definition or call")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "validate tool", err)
		return
	}
	if errs == nil {
		errs = []provider.FieldError{}
	}
	writeJSON(w, r, http.StatusOK, ValidateToolResponse{Valid: len(errs) == 0, Errors: errs})
}

func redact(p model.CustomProvider) model.CustomProvider {
	p.Config = p.Config.Redacted()
	return p
}

// keepRedactedSecrets restores stored secrets for every secret field the
// client sent back as the redaction placeholder.
func keepRedactedSecrets(fv *provider.FormValues, stored provider.FormValues) {
	keep := func(dst *string, src string) {
		if *dst == model.RedactedSecret {
			*dst = src
		}
	}
	keep(&fv.APIKey, stored.APIKey)
	keep(&fv.AzureClientSecret, stored.AzureClientSecret)
	keep(&fv.AWSSecretAccessKey, stored.AWSSecretAccessKey)
	keep(&fv.AWSSessionToken, stored.AWSSessionToken)
}

// customProviderID resolves the {id} path value.
func customProviderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid custom provider id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeForm decodes and validates custom provider form values. Field
// problems are reported together in the error details.
func (h *Handlers) decodeForm(w http.ResponseWriter, r *http.Request) (provider.FormValues, bool) {
	var fv provider.FormValues
	if err := decodeJSON(w, r, &fv, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return fv, false
	}
	if errs := provider.ValidateFormValues(fv); len(errs) > 0 {
		writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid custom provider", errs)
		return fv, false
	}
	return fv, true
}

// HandleListCustomProviders handles GET /v1/custom-providers.
func (h *Handlers) HandleListCustomProviders(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	list, err := h.providers.ListCustomProviders(r.Context())
	if err != nil {
		h.writeStorageError(w, r, "list custom providers", err)
		return
	}
	out := make([]model.CustomProvider, 0, len(list))
	for _, p := range list {
		out = append(out, redact(p))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleCreateCustomProvider handles POST /v1/custom-providers. The body is
// the flat form representation.
func (h *Handlers) HandleCreateCustomProvider(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	fv, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	created, err := h.providers.CreateCustomProvider(r.Context(), provider.FormValuesToCreateInput(fv))
	if err != nil {
		h.writeStorageError(w, r, "create custom provider", err)
		return
	}
	h.logger.Info("custom provider created", "id", created.ID, "name", created.Name, "sdk", created.SDK)
	writeJSON(w, r, http.StatusCreated, redact(created))
}

// HandleGetCustomProvider handles GET /v1/custom-providers/{id}.
func (h *Handlers) HandleGetCustomProvider(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	id, ok := customProviderID(w, r)
	if !ok {
		return
	}
	p, err := h.providers.GetCustomProvider(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, "get custom provider", err)
		return
	}
	writeJSON(w, r, http.StatusOK, redact(p))
}

// HandleCustomProviderForm handles GET /v1/custom-providers/{id}/form: the
// provider flattened into editable form values, secrets redacted.
func (h *Handlers) HandleCustomProviderForm(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	id, ok := customProviderID(w, r)
	if !ok {
		return
	}
	p, err := h.providers.GetCustomProvider(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, "get custom provider", err)
		return
	}
	writeJSON(w, r, http.StatusOK, provider.ConfigToFormValues(redact(p)))
}

// HandleUpdateCustomProvider handles PUT /v1/custom-providers/{id}. Secret
// fields left at the redaction placeholder keep their stored value.
func (h *Handlers) HandleUpdateCustomProvider(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	id, ok := customProviderID(w, r)
	if !ok {
		return
	}
	fv, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	existing, err := h.providers.GetCustomProvider(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, "get custom provider", err)
		return
	}
	keepRedactedSecrets(&fv, provider.ConfigToFormValues(existing))

	updated, err := h.providers.UpdateCustomProvider(r.Context(), id, provider.FormValuesToCreateInput(fv))
	if err != nil {
		h.writeStorageError(w, r, "update custom provider", err)
		return
	}
	// Edits invalidate any credential test still running for this provider.
	h.tester.Touch(id.String())
	writeJSON(w, r, http.StatusOK, redact(updated))
}

// HandleDeleteCustomProvider handles DELETE /v1/custom-providers/{id}.
func (h *Handlers) HandleDeleteCustomProvider(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.providers != nil) {
		return
	}
	id, ok := customProviderID(w, r)
	if !ok {
		return
	}
	if err := h.providers.DeleteCustomProvider(r.Context(), id); err != nil {
		h.writeStorageError(w, r, "delete custom provider", err)
		return
	}
	h.tester.Forget(id.String())
	w.WriteHeader(http.StatusNoContent)
}

// HandleCredentialTest handles POST /v1/credential-tests. The test runs
// synchronously; a newer test for the same form id supersedes it, in which
// case the response is flagged stale.
func (h *Handlers) HandleCredentialTest(w http.ResponseWriter, r *http.Request) {
	var req CredentialTestRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.FormID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "form_id is required")
		return
	}
	if req.Values == nil && req.CustomProviderID == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"one of values or custom_provider_id is required")
		return
	}

	var cfg model.ClientConfig
	var stored *provider.FormValues
	if req.CustomProviderID != nil {
		if !h.requirePersistence(w, r, h.providers != nil) {
			return
		}
		p, err := h.providers.GetCustomProvider(r.Context(), *req.CustomProviderID)
		if err != nil {
			h.writeStorageError(w, r, "get custom provider", err)
			return
		}
		cfg = p.Config
		fv := provider.ConfigToFormValues(p)
		stored = &fv
	}
	if req.Values != nil {
		fv := *req.Values
		if stored != nil {
			keepRedactedSecrets(&fv, *stored)
		}
		if errs := provider.ValidateFormValues(fv); len(errs) > 0 {
			writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid custom provider", errs)
			return
		}
		cfg = provider.FormValuesToCreateInput(fv).Config
	}

	res := h.tester.Run(r.Context(), req.FormID, cfg)
	writeJSON(w, r, http.StatusOK, res)
}

// HandleLatestCredentialTest handles GET /v1/credential-tests/{form_id}.
func (h *Handlers) HandleLatestCredentialTest(w http.ResponseWriter, r *http.Request) {
	res, ok := h.tester.Latest(r.PathValue("form_id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no current credential test for this form")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleTouchCredentialTest handles POST /v1/credential-tests/{form_id}/touch:
// a form field changed, so any test in flight is now stale.
func (h *Handlers) HandleTouchCredentialTest(w http.ResponseWriter, r *http.Request) {
	h.tester.Touch(r.PathValue("form_id"))
	w.WriteHeader(http.StatusNoContent)
}
