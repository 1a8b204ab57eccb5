package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
)

// HandleCreateSession handles POST /v1/sessions. The new session is seeded
// from saved preferences: the streaming toggle and the default model of the
// requested provider (OpenAI when none is given).
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil && !errors.Is(err, errEmptyBody) {
			handleDecodeError(w, r, err)
			return
		}
	}

	seed, err := h.seed(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	sess := h.sessions.Create(seed)
	writeJSON(w, r, http.StatusCreated, SessionResponse{Info: sess.Info(), State: sess.Store.Snapshot()})
}

func (h *Handlers) seed(ctx context.Context, req CreateSessionRequest) (playground.Seed, error) {
	var seed playground.Seed
	if req.TemplateFormat != nil {
		f, err := model.ParseTemplateFormat(string(*req.TemplateFormat))
		if err != nil {
			return seed, err
		}
		seed.TemplateFormat = f
	}
	p := model.ProviderOpenAI
	if req.Provider != nil {
		if !req.Provider.Valid() {
			return seed, errors.New("unknown provider " + strconv.Quote(string(*req.Provider)))
		}
		p = *req.Provider
	}
	seed.Model = model.ModelConfig{Provider: p}

	// Preferences are best-effort: a failing preference store must not
	// block opening a playground.
	if on, err := h.prefs.Streaming(ctx); err != nil {
		h.logger.Warn("preferences: read streaming", "error", err)
		seed.Streaming = true
	} else {
		seed.Streaming = on
	}
	if cfg, ok, err := h.prefs.DefaultModel(ctx, p); err != nil {
		h.logger.Warn("preferences: read default model", "provider", p, "error", err)
	} else if ok {
		seed.Model = cfg
	}
	return seed, nil
}

// HandleListSessions handles GET /v1/sessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.sessions.List())
}

// HandleGetSession handles GET /v1/sessions/{id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, SessionResponse{Info: sess.Info(), State: sess.Store.Snapshot()})
}

// HandleDeleteSession handles DELETE /v1/sessions/{id}. Pending edits are
// discarded and event subscribers are disconnected.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(sess.ID); err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
		return
	}
	h.broker.CloseSession(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleFlushSession handles POST /v1/sessions/{id}/flush: queued message
// edits are committed immediately.
func (h *Handlers) HandleFlushSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	n := sess.FlushEdits()
	writeJSON(w, r, http.StatusOK, map[string]any{
		"flushed": n,
		"version": sess.Store.Snapshot().Version,
	})
}

// HandleSessionEvents handles GET /v1/sessions/{id}/events (SSE). The
// current state is sent first, then one state event per commit.
func (h *Handlers) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	ch := h.broker.Subscribe(sess)
	defer h.broker.Unsubscribe(sess.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Disable the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	st := sess.Store.Snapshot()
	initial, err := encodeState(st)
	if err != nil {
		h.logger.Error("sse: encode initial state", "session_id", sess.ID, "error", err)
		return
	}
	if _, err := w.Write(formatSSE(eventState, st.Version, initial)); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleSetTemplateFormat handles PUT /v1/sessions/{id}/template-format.
func (h *Handlers) HandleSetTemplateFormat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetTemplateFormatRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetTemplateFormat(req.TemplateFormat); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Store.Snapshot().Variables)
}

// HandleSetVariable handles PUT /v1/sessions/{id}/variables/{name}.
func (h *Handlers) HandleSetVariable(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetVariableRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetVariableValue(r.PathValue("name"), req.Value); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Store.Snapshot().Variables)
}

// HandleGetVariables handles GET /v1/sessions/{id}/variables.
func (h *Handlers) HandleGetVariables(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Store.Snapshot().Variables)
}

// HandleSetJSONInput handles PUT /v1/sessions/{id}/json-input. Invalid JSON
// is stored as typed.
func (h *Handlers) HandleSetJSONInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetJSONInputRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetJSONInput(req.JSONInput); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Store.Snapshot().Variables)
}

// HandleSetSessionStreaming handles PUT /v1/sessions/{id}/streaming.
func (h *Handlers) HandleSetSessionStreaming(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetStreamingRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := sess.Store.SetStreaming(req.Streaming); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, SetStreamingRequest{Streaming: sess.Store.Snapshot().Streaming})
}

// HandleDiffInstances handles GET /v1/sessions/{id}/diff?a=&b=.
func (h *Handlers) HandleDiffInstances(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	a, errA := strconv.Atoi(r.URL.Query().Get("a"))
	b, errB := strconv.Atoi(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "query parameters a and b must be instance ids")
		return
	}
	left, err := sess.Store.Denormalized(model.InstanceID(a))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	right, err := sess.Store.Denormalized(model.InstanceID(b))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, playground.DiffInstances(left, right))
}
