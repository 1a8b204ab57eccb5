package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kaiwa/internal/auth"
	"github.com/ashita-ai/kaiwa/internal/credentials"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/provider"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
	"github.com/ashita-ai/kaiwa/internal/storage"
)

// ProviderStore persists custom providers. Implemented by *storage.DB.
type ProviderStore interface {
	CreateCustomProvider(ctx context.Context, in model.CustomProviderInput) (model.CustomProvider, error)
	GetCustomProvider(ctx context.Context, id uuid.UUID) (model.CustomProvider, error)
	ListCustomProviders(ctx context.Context) ([]model.CustomProvider, error)
	UpdateCustomProvider(ctx context.Context, id uuid.UUID, in model.CustomProviderInput) (model.CustomProvider, error)
	DeleteCustomProvider(ctx context.Context, id uuid.UUID) error
}

// PromptStore persists prompts and their versions. Implemented by *storage.DB.
type PromptStore interface {
	GetPrompt(ctx context.Context, name string) (model.Prompt, error)
	CreatePromptVersion(ctx context.Context, name string, promptDescription *string, pv model.PromptVersion) (model.PromptVersion, error)
	GetPromptVersion(ctx context.Context, name, ref string) (model.PromptVersion, error)
	ListPromptVersions(ctx context.Context, name string) ([]model.PromptVersion, error)
	SetPromptVersionTag(ctx context.Context, name, tag string, versionID uuid.UUID) (model.PromptVersionTag, error)
}

// PreferenceStore persists playground defaults. Implemented by *prefs.Store.
type PreferenceStore interface {
	Streaming(ctx context.Context) (bool, error)
	SetStreaming(ctx context.Context, on bool) error
	DefaultModel(ctx context.Context, p model.ModelProvider) (model.ModelConfig, bool, error)
	SetDefaultModel(ctx context.Context, cfg model.ModelConfig) error
	All(ctx context.Context) (model.Preferences, error)
	Ping(ctx context.Context) error
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	sessions            *sessions.Manager
	broker              *Broker
	prefs               PreferenceStore
	tester              *credentials.Tester
	jwtMgr              *auth.JWTManager
	keys                *auth.KeyVerifier
	providers           ProviderStore
	prompts             PromptStore
	db                  Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte

	// promptLoads collapses concurrent loads of the same prompt version.
	promptLoads singleflight.Group
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): JWTMgr, KeyVerifier, Providers, Prompts, Database,
// OpenAPISpec.
type HandlersDeps struct {
	Sessions            *sessions.Manager
	Broker              *Broker
	Preferences         PreferenceStore
	Tester              *credentials.Tester
	JWTMgr              *auth.JWTManager
	KeyVerifier         *auth.KeyVerifier
	Providers           ProviderStore
	Prompts             PromptStore
	Database            Pinger
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		sessions:            d.Sessions,
		broker:              d.Broker,
		prefs:               d.Preferences,
		tester:              d.Tester,
		jwtMgr:              d.JWTMgr,
		keys:                d.KeyVerifier,
		providers:           d.Providers,
		prompts:             d.Prompts,
		db:                  d.Database,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /auth/token. The bootstrap API key is
// exchanged for a token carrying the requested role (admin by default).
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.jwtMgr == nil || h.keys == nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "authentication is disabled")
		return
	}
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = model.AccessAdmin
	}
	if model.RoleRank(req.Role) == 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "role must be admin, editor or viewer")
		return
	}
	if req.APIKey == "" || !h.keys.Verify(req.APIKey) {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken("api-key", req.Role)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}
	h.logger.Info("token issued",
		"role", req.Role,
		"expires_at", expiresAt,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      req.Role,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	resp := model.HealthResponse{
		Version:     h.version,
		Preferences: "ok",
		Sessions:    h.sessions.Len(),
		Uptime:      int64(time.Since(h.startedAt).Seconds()),
	}
	if err := h.prefs.Ping(r.Context()); err != nil {
		resp.Preferences = "unavailable"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	if h.db != nil {
		resp.Postgres = "connected"
		if err := h.db.Ping(r.Context()); err != nil {
			resp.Postgres = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	}
	resp.Status = status
	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- Shared helpers ---

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeStoreError maps playground store errors onto responses. Anything not
// recognised is a rejected mutation, which leaves the store unchanged.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, playground.ErrInstanceNotFound),
		errors.Is(err, playground.ErrMessageNotFound),
		errors.Is(err, playground.ErrToolNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case errors.Is(err, playground.ErrLastInstance):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	}
}

// writeStorageError maps persistence errors onto responses.
func (h *Handlers) writeStorageError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, msg+": not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, msg+": already exists")
	case errors.Is(err, storage.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	default:
		h.writeInternalError(w, r, msg, err)
	}
}

// requirePersistence writes 503 and returns false when no database is
// configured.
func (h *Handlers) requirePersistence(w http.ResponseWriter, r *http.Request, configured bool) bool {
	if !configured {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable,
			"persistence is not configured (set DATABASE_URL)")
		return false
	}
	return true
}

// session resolves the {id} path value to a live session.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid session id")
		return nil, false
	}
	sess, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// pathInt parses a positive integer path value.
func pathInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(key))
	if err != nil || n <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid "+key)
		return 0, false
	}
	return n, true
}

func pathProvider(w http.ResponseWriter, r *http.Request) (model.ModelProvider, bool) {
	p, err := model.ParseModelProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return "", false
	}
	return p, true
}
