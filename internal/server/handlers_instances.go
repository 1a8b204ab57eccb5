package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
	"github.com/ashita-ai/kaiwa/internal/storage"
)

// instance resolves the {id} and {iid} path values.
func (h *Handlers) instance(w http.ResponseWriter, r *http.Request) (*sessions.Session, model.InstanceID, bool) {
	sess, ok := h.session(w, r)
	if !ok {
		return nil, 0, false
	}
	iid, ok := pathInt(w, r, "iid")
	if !ok {
		return nil, 0, false
	}
	return sess, model.InstanceID(iid), true
}

// writeInstance responds with the denormalized instance.
func writeInstance(w http.ResponseWriter, r *http.Request, sess *sessions.Session, id model.InstanceID, status int) {
	inst, err := sess.Store.Denormalized(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, status, inst)
}

// HandleCreateInstance handles POST /v1/sessions/{id}/instances. The
// instance is a copy of the first instance, a loaded prompt version, or a
// replayed LLM span.
func (h *Handlers) HandleCreateInstance(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CreateInstanceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	var (
		id       model.InstanceID
		warnings []string
		err      error
	)
	switch req.Source {
	case SourceBlank, "":
		id, err = sess.Store.AddInstance(playground.AddInstanceOptions{SharedTemplate: req.SharedTemplate})
	case SourcePrompt:
		if !h.requirePersistence(w, r, h.prompts != nil) {
			return
		}
		draft, lerr := h.loadPromptDraft(r, req.PromptName, req.PromptRef)
		if lerr != nil {
			h.writeStorageError(w, r, "load prompt version", lerr)
			return
		}
		id, err = sess.Store.AddDraft(draft, req.ReplaceInstanceID)
	case SourceSpan:
		draft, warns, serr := playground.InstanceFromSpanAttributes(req.SpanAttributes)
		if serr != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, serr.Error())
			return
		}
		warnings = warns
		id, err = sess.Store.AddDraft(draft, req.ReplaceInstanceID)
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"source must be blank, prompt or span")
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, CreateInstanceResponse{InstanceID: id, Warnings: warnings})
}

// loadPromptDraft fetches a prompt version and converts it into a draft.
// Concurrent loads of the same version share one query.
func (h *Handlers) loadPromptDraft(r *http.Request, name, ref string) (playground.InstanceDraft, error) {
	if err := model.ValidateName("prompt_name", name); err != nil {
		return playground.InstanceDraft{}, fmt.Errorf("%w: %w", storage.ErrInvalid, err)
	}
	if ref == "" {
		ref = storage.LatestVersion
	}
	// The shared load must not fail because the first caller went away.
	ctx := context.WithoutCancel(r.Context())
	v, err, _ := h.promptLoads.Do(name+"@"+ref, func() (any, error) {
		return h.prompts.GetPromptVersion(ctx, name, ref)
	})
	if err != nil {
		return playground.InstanceDraft{}, err
	}
	pv := v.(model.PromptVersion)

	link := model.PromptRef{ID: pv.PromptID, Name: name}
	if ref != storage.LatestVersion && ref != pv.ID.String() {
		tag := ref
		link.Tag = &tag
	}
	draft, err := playground.InstanceFromPromptVersion(pv, link)
	if err != nil {
		return playground.InstanceDraft{}, fmt.Errorf("%w: %w", storage.ErrInvalid, err)
	}
	return draft, nil
}

// HandleGetInstance handles GET /v1/sessions/{id}/instances/{iid}.
func (h *Handlers) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandlePatchInstance handles PATCH /v1/sessions/{id}/instances/{iid}.
func (h *Handlers) HandlePatchInstance(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var patch model.InstancePatch
	if err := decodeJSON(w, r, &patch, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.UpdateInstance(id, patch, playground.UpdateOptions{}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleDeleteInstance handles DELETE /v1/sessions/{id}/instances/{iid}.
func (h *Handlers) HandleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	removed, err := sess.Store.DeleteInstance(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if removed == nil {
		removed = []model.MessageID{}
	}
	writeJSON(w, r, http.StatusOK, DeleteInstanceResponse{RemovedMessageIDs: removed})
}

// HandleUpdateModel handles PUT /v1/sessions/{id}/instances/{iid}/model.
func (h *Handlers) HandleUpdateModel(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var cfg model.ModelConfig
	if err := decodeJSON(w, r, &cfg, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.UpdateModel(id, cfg); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleSetSupportedParameters handles
// PUT /v1/sessions/{id}/instances/{iid}/supported-parameters.
func (h *Handlers) HandleSetSupportedParameters(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var defs []model.InvocationParameterDefinition
	if err := decodeJSON(w, r, &defs, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetSupportedInvocationParameters(id, defs); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleUpsertParameter handles
// PUT /v1/sessions/{id}/instances/{iid}/parameters/{name}. The path name
// wins over any invocation name in the body.
func (h *Handlers) HandleUpsertParameter(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var in model.InvocationParameterInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	in.InvocationName = r.PathValue("name")
	if err := sess.Store.UpsertInvocationParameter(id, in); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleDeleteParameter handles
// DELETE /v1/sessions/{id}/instances/{iid}/parameters/{name}.
func (h *Handlers) HandleDeleteParameter(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	if err := sess.Store.DeleteInvocationParameter(id, r.PathValue("name")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleRenderInstance handles GET /v1/sessions/{id}/instances/{iid}/render:
// the instance with the session's variable values substituted.
func (h *Handlers) HandleRenderInstance(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	sess.FlushEdits()
	st := sess.Store.Snapshot()
	inst, ok := st.Instance(id)
	if !ok {
		writeStoreError(w, r, playground.ErrInstanceNotFound)
		return
	}
	d, err := playground.Denormalize(inst, st.Messages)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, playground.RenderInstance(d, st.TemplateFormat, st.Variables.Values))
}

// HandleSaveInstance handles POST /v1/sessions/{id}/instances/{iid}/save.
// The instance is stored as a new prompt version, linked to it and marked
// clean.
func (h *Handlers) HandleSaveInstance(w http.ResponseWriter, r *http.Request) {
	if !h.requirePersistence(w, r, h.prompts != nil) {
		return
	}
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var req SaveInstanceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateName("prompt_name", req.PromptName); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	// Text typed just before saving belongs in the saved version.
	sess.FlushEdits()
	st := sess.Store.Snapshot()
	inst, ok := st.Instance(id)
	if !ok {
		writeStoreError(w, r, playground.ErrInstanceNotFound)
		return
	}
	d, err := playground.Denormalize(inst, st.Messages)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	pv, err := playground.ToPromptVersionInput(d, st.TemplateFormat, req.Description)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	saved, err := h.prompts.CreatePromptVersion(r.Context(), req.PromptName, req.PromptDescription, pv)
	if err != nil {
		h.writeStorageError(w, r, "save prompt version", err)
		return
	}
	link := model.PromptRef{ID: saved.PromptID, Name: req.PromptName, VersionID: &saved.ID}
	if req.Tag != nil {
		if _, err := h.prompts.SetPromptVersionTag(r.Context(), req.PromptName, *req.Tag, saved.ID); err != nil {
			h.writeStorageError(w, r, "tag prompt version", err)
			return
		}
		saved.Tags = append(saved.Tags, *req.Tag)
		link.Tag = req.Tag
	}

	if err := sess.Store.UpdateInstance(id, model.InstancePatch{Prompt: &link},
		playground.UpdateOptions{SuppressDirty: true}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := sess.Store.MarkClean(id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.logger.Info("prompt version saved",
		"prompt", req.PromptName,
		"version_id", saved.ID,
		"session_id", sess.ID,
		"instance_id", id,
	)
	writeJSON(w, r, http.StatusCreated, saved)
}

// HandleAddMessages handles POST /v1/sessions/{id}/instances/{iid}/messages.
func (h *Handlers) HandleAddMessages(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var req AddMessagesRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "messages must not be empty")
		return
	}
	ids, err := sess.Store.AddMessages(id, req.Messages)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, AddMessagesResponse{MessageIDs: ids})
}

// HandlePatchMessage handles PATCH /v1/sessions/{id}/messages/{mid}. With
// ?debounce=true a content-only patch is queued and committed after the
// debounce interval; later edits to the same message replace it.
func (h *Handlers) HandlePatchMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	mid, ok := pathInt(w, r, "mid")
	if !ok {
		return
	}
	var patch model.MessagePatch
	if err := decodeJSON(w, r, &patch, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	id := model.MessageID(mid)

	if r.URL.Query().Get("debounce") == "true" {
		if patch.Content == nil || patch.Role != nil || patch.ClearText || patch.ToolCalls != nil || patch.ToolCallID != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				"debounced edits may only set content")
			return
		}
		if _, exists := sess.Store.Snapshot().Messages[id]; !exists {
			writeStoreError(w, r, playground.ErrMessageNotFound)
			return
		}
		if !sess.ScheduleContent(id, *patch.Content) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
			return
		}
		writeJSON(w, r, http.StatusAccepted, PatchMessageResponse{MessageID: id, Pending: true})
		return
	}

	// A direct content edit supersedes any text still waiting to commit.
	if patch.Content != nil || patch.ClearText {
		sess.CancelEdit(id)
	}
	if err := sess.Store.UpdateMessage(id, patch, playground.UpdateOptions{}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, PatchMessageResponse{MessageID: id})
}

// HandleDeleteMessage handles
// DELETE /v1/sessions/{id}/instances/{iid}/messages/{mid}.
func (h *Handlers) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	mid, ok := pathInt(w, r, "mid")
	if !ok {
		return
	}
	if err := sess.Store.DeleteMessage(id, model.MessageID(mid)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	// Shared messages survive in other instances and keep their queued edit.
	if _, kept := sess.Store.Snapshot().Messages[model.MessageID(mid)]; !kept {
		sess.CancelEdit(model.MessageID(mid))
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleMoveMessage handles
// POST /v1/sessions/{id}/instances/{iid}/messages/{mid}/move.
func (h *Handlers) HandleMoveMessage(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	mid, ok := pathInt(w, r, "mid")
	if !ok {
		return
	}
	var req MoveMessageRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.MoveMessage(id, model.MessageID(mid), req.Index); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleAddTool handles POST /v1/sessions/{id}/instances/{iid}/tools.
func (h *Handlers) HandleAddTool(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var req AddToolRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.EditorType == "" {
		req.EditorType = model.ToolEditorJSON
	}
	tid, err := sess.Store.AddTool(id, req.EditorType, req.Definition)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, AddToolResponse{ToolID: tid})
}

// HandleUpdateTool handles PUT /v1/sessions/{id}/instances/{iid}/tools/{tid}.
func (h *Handlers) HandleUpdateTool(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	tid, ok := pathInt(w, r, "tid")
	if !ok {
		return
	}
	var tool model.Tool
	if err := decodeJSON(w, r, &tool, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	tool.ID = model.ToolID(tid)
	if tool.EditorType == "" {
		tool.EditorType = model.ToolEditorJSON
	}
	if err := sess.Store.UpdateTool(id, tool); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleDeleteTool handles
// DELETE /v1/sessions/{id}/instances/{iid}/tools/{tid}.
func (h *Handlers) HandleDeleteTool(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	tid, ok := pathInt(w, r, "tid")
	if !ok {
		return
	}
	if err := sess.Store.DeleteTool(id, model.ToolID(tid)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleSetToolChoice handles PUT /v1/sessions/{id}/instances/{iid}/tool-choice.
func (h *Handlers) HandleSetToolChoice(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	var choice model.ToolChoice
	if err := decodeJSON(w, r, &choice, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetToolChoice(id, choice); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeInstance(w, r, sess, id, http.StatusOK)
}

// HandleToolEditor handles GET /v1/sessions/{id}/instances/{iid}/tool-editor:
// the provider's tool schema plus per-tool validation problems.
func (h *Handlers) HandleToolEditor(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := h.instance(w, r)
	if !ok {
		return
	}
	inst, err := sess.Store.Denormalized(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	view, err := playground.ToolEditor(inst)
	if err != nil {
		h.writeInternalError(w, r, "validate tools", err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}
