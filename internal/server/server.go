// Package server implements the kaiwa HTTP API: playground sessions, custom
// providers, prompts and preferences.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaiwa/internal/auth"
	"github.com/ashita-ai/kaiwa/internal/credentials"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/ratelimit"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// Server is the kaiwa HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): JWTMgr and KeyVerifier (nil disables auth),
// Providers and Prompts (nil when no database is configured), Limiter,
// MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Sessions    *sessions.Manager
	Broker      *Broker
	Preferences PreferenceStore
	Tester      *credentials.Tester
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	JWTMgr      *auth.JWTManager
	KeyVerifier *auth.KeyVerifier
	Providers   ProviderStore
	Prompts     PromptStore
	Database    Pinger
	Limiter     ratelimit.Limiter
	MCPServer   *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Broker == nil {
		cfg.Broker = NewBroker(cfg.Logger)
	}
	h := NewHandlers(HandlersDeps{
		Sessions:            cfg.Sessions,
		Broker:              cfg.Broker,
		Preferences:         cfg.Preferences,
		Tester:              cfg.Tester,
		JWTMgr:              cfg.JWTMgr,
		KeyVerifier:         cfg.KeyVerifier,
		Providers:           cfg.Providers,
		Prompts:             cfg.Prompts,
		Database:            cfg.Database,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)
	credTestRL := ratelimit.Middleware(cfg.Limiter, "credtest", subjectKeyFunc, reqIDFunc)

	viewer := requireRole(model.AccessViewer)
	editor := requireRole(model.AccessEditor)
	admin := requireRole(model.AccessAdmin)
	route := func(mux *http.ServeMux, pattern string, mw func(http.Handler) http.Handler, fn http.HandlerFunc) {
		mux.Handle(pattern, mw(fn))
	}

	mux := http.NewServeMux()

	// Auth (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Sessions.
	route(mux, "POST /v1/sessions", editor, h.HandleCreateSession)
	route(mux, "GET /v1/sessions", viewer, h.HandleListSessions)
	route(mux, "GET /v1/sessions/{id}", viewer, h.HandleGetSession)
	route(mux, "DELETE /v1/sessions/{id}", editor, h.HandleDeleteSession)
	route(mux, "GET /v1/sessions/{id}/events", viewer, h.HandleSessionEvents)
	route(mux, "POST /v1/sessions/{id}/flush", editor, h.HandleFlushSession)
	route(mux, "PUT /v1/sessions/{id}/template-format", editor, h.HandleSetTemplateFormat)
	route(mux, "PUT /v1/sessions/{id}/variables/{name}", editor, h.HandleSetVariable)
	route(mux, "GET /v1/sessions/{id}/variables", viewer, h.HandleGetVariables)
	route(mux, "PUT /v1/sessions/{id}/json-input", editor, h.HandleSetJSONInput)
	route(mux, "PUT /v1/sessions/{id}/streaming", editor, h.HandleSetSessionStreaming)
	route(mux, "GET /v1/sessions/{id}/diff", viewer, h.HandleDiffInstances)

	// Instances.
	route(mux, "POST /v1/sessions/{id}/instances", editor, h.HandleCreateInstance)
	route(mux, "GET /v1/sessions/{id}/instances/{iid}", viewer, h.HandleGetInstance)
	route(mux, "PATCH /v1/sessions/{id}/instances/{iid}", editor, h.HandlePatchInstance)
	route(mux, "DELETE /v1/sessions/{id}/instances/{iid}", editor, h.HandleDeleteInstance)
	route(mux, "PUT /v1/sessions/{id}/instances/{iid}/model", editor, h.HandleUpdateModel)
	route(mux, "PUT /v1/sessions/{id}/instances/{iid}/parameters/{name}", editor, h.HandleUpsertParameter)
	route(mux, "DELETE /v1/sessions/{id}/instances/{iid}/parameters/{name}", editor, h.HandleDeleteParameter)
	route(mux, "PUT /v1/sessions/{id}/instances/{iid}/supported-parameters", editor, h.HandleSetSupportedParameters)
	route(mux, "GET /v1/sessions/{id}/instances/{iid}/render", viewer, h.HandleRenderInstance)
	route(mux, "POST /v1/sessions/{id}/instances/{iid}/save", editor, h.HandleSaveInstance)

	// Messages.
	route(mux, "POST /v1/sessions/{id}/instances/{iid}/messages", editor, h.HandleAddMessages)
	route(mux, "PATCH /v1/sessions/{id}/messages/{mid}", editor, h.HandlePatchMessage)
	route(mux, "DELETE /v1/sessions/{id}/instances/{iid}/messages/{mid}", editor, h.HandleDeleteMessage)
	route(mux, "POST /v1/sessions/{id}/instances/{iid}/messages/{mid}/move", editor, h.HandleMoveMessage)

	// Tools.
	route(mux, "POST /v1/sessions/{id}/instances/{iid}/tools", editor, h.HandleAddTool)
	route(mux, "PUT /v1/sessions/{id}/instances/{iid}/tools/{tid}", editor, h.HandleUpdateTool)
	route(mux, "DELETE /v1/sessions/{id}/instances/{iid}/tools/{tid}", editor, h.HandleDeleteTool)
	route(mux, "PUT /v1/sessions/{id}/instances/{iid}/tool-choice", editor, h.HandleSetToolChoice)
	route(mux, "GET /v1/sessions/{id}/instances/{iid}/tool-editor", viewer, h.HandleToolEditor)

	// Providers.
	route(mux, "GET /v1/providers", viewer, h.HandleListProviders)
	route(mux, "GET /v1/providers/{provider}/schemas", viewer, h.HandleProviderSchemas)
	route(mux, "POST /v1/providers/{provider}/validate-tool", viewer, h.HandleValidateTool)

	// Custom providers hold credentials: reading is viewer+ (secrets are
	// redacted), writing is admin-only.
	route(mux, "GET /v1/custom-providers", viewer, h.HandleListCustomProviders)
	route(mux, "POST /v1/custom-providers", admin, h.HandleCreateCustomProvider)
	route(mux, "GET /v1/custom-providers/{id}", viewer, h.HandleGetCustomProvider)
	route(mux, "PUT /v1/custom-providers/{id}", admin, h.HandleUpdateCustomProvider)
	route(mux, "DELETE /v1/custom-providers/{id}", admin, h.HandleDeleteCustomProvider)
	route(mux, "GET /v1/custom-providers/{id}/form", admin, h.HandleCustomProviderForm)

	// Credential tests (editor+, rate limited per subject).
	mux.Handle("POST /v1/credential-tests", credTestRL(editor(http.HandlerFunc(h.HandleCredentialTest))))
	route(mux, "GET /v1/credential-tests/{form_id}", editor, h.HandleLatestCredentialTest)
	route(mux, "POST /v1/credential-tests/{form_id}/touch", editor, h.HandleTouchCredentialTest)

	// Prompts.
	route(mux, "GET /v1/prompts/{name}", viewer, h.HandleGetPrompt)
	route(mux, "GET /v1/prompts/{name}/versions/{ref}", viewer, h.HandleGetPromptVersion)
	route(mux, "PUT /v1/prompts/{name}/tags/{tag}", editor, h.HandleSetPromptTag)

	// Preferences.
	route(mux, "GET /v1/preferences", viewer, h.HandleGetPreferences)
	route(mux, "PUT /v1/preferences/streaming", editor, h.HandleSetStreamingPreference)
	route(mux, "PUT /v1/preferences/models/{provider}", editor, h.HandleSetDefaultModel)

	// MCP StreamableHTTP transport (auth required, viewer+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", viewer(mcpHTTP))
	}

	// OpenAPI spec and health (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → route → mux.
	var handler http.Handler = routeMiddleware(mux)
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// subjectKeyFunc keys rate limits by token subject. Admins are exempt.
func subjectKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ratelimit.IPKeyFunc(r)
	}
	if model.RoleAtLeast(claims.Role, model.AccessAdmin) && claims.Subject != anonymousSubject {
		return ""
	}
	if claims.Subject == anonymousSubject {
		return "ip:" + ratelimit.IPKeyFunc(r)
	}
	return claims.Subject
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
