// Package kaiwa is the public API for embedding the kaiwa playground state
// server.
//
//	app, err := kaiwa.New(ctx,
//	    kaiwa.WithVersion(version),
//	    kaiwa.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// internal/* never imports this package.
package kaiwa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kaiwa/api"
	"github.com/ashita-ai/kaiwa/internal/auth"
	"github.com/ashita-ai/kaiwa/internal/config"
	"github.com/ashita-ai/kaiwa/internal/credentials"
	"github.com/ashita-ai/kaiwa/internal/mcp"
	"github.com/ashita-ai/kaiwa/internal/prefs"
	"github.com/ashita-ai/kaiwa/internal/ratelimit"
	"github.com/ashita-ai/kaiwa/internal/secret"
	"github.com/ashita-ai/kaiwa/internal/server"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
	"github.com/ashita-ai/kaiwa/internal/storage"
	"github.com/ashita-ai/kaiwa/internal/telemetry"
	"github.com/ashita-ai/kaiwa/migrations"
)

// shutdownTimeout bounds each shutdown phase.
const shutdownTimeout = 10 * time.Second

// App is the kaiwa server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB // nil when DATABASE_URL is empty
	prefs        *prefs.Store
	sessions     *sessions.Manager
	broker       *server.Broker
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the stores and wires every subsystem. It
// starts no goroutines and accepts no connections; call Run.
func New(ctx context.Context, opts ...Option) (_ *App, err error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kaiwa starting", "version", version, "port", cfg.Port)

	// Resources opened so far are released if a later step fails.
	var cleanups []func()
	defer func() {
		if err != nil {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		}
	}()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = otelShutdown(context.Background()) })

	prefStore, err := prefs.Open(ctx, cfg.PrefsPath)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = prefStore.Close() })

	db, err := openDatabase(ctx, cfg, o, logger)
	if err != nil {
		return nil, err
	}
	if db != nil {
		cleanups = append(cleanups, db.Close)
	}

	// Auth is on only when a bootstrap key is configured.
	var (
		jwtMgr   *auth.JWTManager
		verifier *auth.KeyVerifier
	)
	if cfg.AuthEnabled() {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		verifier, err = auth.NewKeyVerifier(cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
	} else {
		logger.Warn("auth: disabled (no KAIWA_API_KEY), every request is treated as admin")
	}

	broker := server.NewBroker(logger)
	mgr := sessions.NewManager(sessions.Config{
		IdleTimeout:      cfg.SessionIdleTimeout,
		SweepSpec:        cfg.SessionSweepSpec,
		DebounceInterval: cfg.DebounceInterval,
		OnEvict: func(ids []uuid.UUID) {
			for _, id := range ids {
				broker.CloseSession(id)
			}
		},
	}, logger)

	checker := credentials.NewHTTPChecker(o.httpClient, cfg.CredentialTestTimeout)
	tester := credentials.NewTester(checker, cfg.CredentialTestTimeout, logger)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(mgr, logger, version)

	// Interface fields stay nil (not typed-nil) without a database so the
	// handlers report persistence as unavailable.
	scfg := server.ServerConfig{
		Sessions:            mgr,
		Broker:              broker,
		Preferences:         prefStore,
		Tester:              tester,
		Logger:              logger,
		JWTMgr:              jwtMgr,
		KeyVerifier:         verifier,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}
	if db != nil {
		scfg.Providers = db
		scfg.Prompts = db
		scfg.Database = db
	}

	return &App{
		cfg:          cfg,
		db:           db,
		prefs:        prefStore,
		sessions:     mgr,
		broker:       broker,
		limiter:      limiter,
		srv:          server.New(scfg),
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// openDatabase connects to Postgres and applies migrations. It returns nil
// when persistence is disabled.
func openDatabase(ctx context.Context, cfg config.Config, o resolvedOptions, logger *slog.Logger) (*storage.DB, error) {
	if !cfg.PersistenceEnabled() {
		logger.Info("storage: disabled (no DATABASE_URL), prompts and custom providers are unavailable")
		return nil, nil
	}

	box, err := secret.ParseKey(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	db, err := storage.New(ctx, cfg.DatabaseURL, box, logger)
	if err != nil {
		return nil, err
	}
	db.RegisterPoolMetrics()

	if cfg.SkipEmbeddedMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extra := range o.extraMigrations {
		if err := db.RunMigrations(ctx, extra); err != nil {
			db.Close()
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}
	return db, nil
}

// Handler returns the root HTTP handler, for tests and for mounting kaiwa
// inside another server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the session sweeper and the HTTP server, then blocks until ctx
// is cancelled or the server fails. Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.sessions.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown stops accepting requests, drains in-flight ones, then commits
// pending message edits and closes every store.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kaiwa shutting down")

	var errs []error
	httpCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	cancel()

	// Debounced edits are committed so a last keystroke is not lost.
	for _, info := range a.sessions.List() {
		if sess, err := a.sessions.Get(info.ID); err == nil {
			sess.FlushEdits()
		}
	}
	sessCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	a.sessions.Close(sessCtx)
	cancel()

	if err := a.limiter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("rate limiter: %w", err))
	}
	if err := a.prefs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("prefs: %w", err))
	}
	if a.db != nil {
		a.db.Close()
	}
	if err := a.otelShutdown(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	a.logger.Info("kaiwa stopped")
	return errors.Join(errs...)
}
