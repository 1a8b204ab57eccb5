package kaiwa

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/ashita-ai/kaiwa/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds option overrides. Unexported; callers use the With*
// functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	prefsPath       string
	apiKey          string
	logger          *slog.Logger
	version         string
	httpClient      *http.Client
	extraMigrations []fs.FS
}

// apply copies overrides onto configuration loaded from the environment.
func (o resolvedOptions) apply(cfg *config.Config) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.prefsPath != "" {
		cfg.PrefsPath = o.prefsPath
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
}

// WithPort overrides the TCP port from config (KAIWA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the Postgres connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithPrefsPath overrides the SQLite preferences file (KAIWA_PREFS_PATH).
func WithPrefsPath(path string) Option {
	return func(o *resolvedOptions) { o.prefsPath = path }
}

// WithAPIKey sets the bootstrap API key, enabling auth (KAIWA_API_KEY).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.apiKey = key }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithHTTPClient sets the client used to test custom provider credentials
// against upstream APIs, e.g. to route them through a proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}

// WithExtraMigrations adds a SQL migration filesystem applied after the
// embedded migrations. Filesystems are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
