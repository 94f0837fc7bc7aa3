package app

import (
	"context"

	"oauth-bridge/internal/auth"
	"oauth-bridge/internal/common/httpx"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/config"
	"oauth-bridge/internal/crypto"
	"oauth-bridge/internal/handlers"
	"oauth-bridge/internal/oauth"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/proxy"
	"oauth-bridge/internal/scheduler"
	"oauth-bridge/internal/store"
)

// App holds all the application dependencies.
type App struct {
	Config    *config.Config
	Store     store.Store
	Registry  *providers.Registry
	Manager   *oauth.Manager
	Forwarder *proxy.Forwarder
	Scheduler *scheduler.Scheduler
	Auth      *auth.Auth
	Handlers  *handlers.Handlers
	Logger    logging.Logger
}

// New creates an application instance with all dependencies wired. The
// cipher self-check runs here so a bad encryption key is fatal before
// the first request, not on the first token write.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	cipher := crypto.New(cfg.EncryptionKey)
	if err := cipher.SelfCheck(); err != nil {
		return nil, err
	}

	st, err := store.New(cfg, cipher)
	if err != nil {
		return nil, err
	}
	app.Store = st

	if err := st.Init(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	result, err := providers.Load(cfg.ProvidersFile)
	if err != nil {
		st.Close()
		return nil, err
	}
	for _, skipped := range result.Skipped {
		app.Logger.Warn("provider skipped",
			logging.Field{Key: "provider", Value: skipped.Slug},
			logging.Field{Key: "reason", Value: skipped.Reason},
		)
	}
	app.Registry = result.Registry
	app.Logger.Info("provider registry loaded",
		logging.Field{Key: "providers", Value: result.Registry.Len()},
		logging.Field{Key: "skipped", Value: len(result.Skipped)},
	)

	client := httpx.NewClient(cfg.UpstreamTimeout)
	app.Manager = oauth.NewManager(st, app.Registry, client, cfg.BaseURL, logging.GetGlobalLogger())
	app.Forwarder = proxy.New(app.Registry, app.Manager, client, logging.GetGlobalLogger())
	app.Scheduler = scheduler.New(st, app.Registry, app.Manager, logging.GetGlobalLogger())
	app.Auth = auth.New(cfg.ProxyAPIKey)
	app.Handlers = handlers.New(st, app.Registry, app.Manager, app.Forwarder, cfg, logging.GetGlobalLogger())

	return app, nil
}

// Shutdown stops the background scheduler and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
