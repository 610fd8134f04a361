package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/CedrosPay/secheaders/internal/httpserver"
	"github.com/CedrosPay/secheaders/internal/logger"
	"github.com/CedrosPay/secheaders/pkg/secheaders"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config yaml")
	deactivate := flag.Bool("deactivate", false, "remove all header settings from the store and exit")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger config is not available yet
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("config.load_failed")
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "secheaders",
		Version:     version,
		Environment: cfg.Logging.Environment,
		FilePath:    cfg.Logging.FilePath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})

	if err := run(cfg, log, *deactivate); err != nil {
		log.Fatal().Err(err).Msg("server.failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger, deactivate bool) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	router := chi.NewRouter()
	app, err := secheaders.NewApp(startCtx, cfg,
		secheaders.WithRouter(router),
		secheaders.WithLogger(log),
		secheaders.WithActivation(!deactivate),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("server.close_failed")
		}
	}()

	if deactivate {
		return app.Deactivate(startCtx)
	}

	srv := httpserver.New(cfg, app.Handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("backend", cfg.Settings.Backend).
			Msg("server.started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("server.shutting_down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server.stopped")
	return nil
}
