package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/config"
	"oauth-bridge/internal/server"
)

// Run is the main entry point for the application.
func Run() error {
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ParseLevel(cfg.LogLevel)})
	if err != nil {
		return err
	}
	logging.SetGlobalLogger(logger)
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		logging.Error("configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("failed to initialize application", err)
		return err
	}

	if err := app.Scheduler.Start(); err != nil {
		logging.Error("failed to start refresh scheduler", err)
		app.Store.Close()
		return err
	}

	srv := server.New(NewRouter(app.Handlers, app.Auth), cfg.Port, cfg.TLSCert, cfg.TLSKey, cfg.UpstreamTimeout)
	serveErr := srv.Start()

	logging.Info("oauth bridge started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "base_url", Value: cfg.BaseURL},
		logging.Field{Key: "database", Value: cfg.DatabaseType},
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			_ = app.Shutdown(context.Background())
			return err
		}
	case sig := <-quit:
		logging.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("server forced to shutdown", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		logging.Warn("error during app shutdown", logging.Err(err))
	}

	logging.Info("server exited")
	return nil
}
