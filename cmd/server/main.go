package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/httpserver"
	"github.com/parleyhq/parley/internal/retention"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/store/sqlstore"
	"github.com/parleyhq/parley/internal/ws"
)

// @title           Parley API
// @version         1.0
// @description     Real-time chat backend: direct, group and business conversations over REST and WebSocket.

// @contact.name    Parley Maintainers

// @license.name    MIT

// @host            localhost:8080
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = log.With().Str("service", "parley").Logger()
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	logger := log.Logger

	db, err := sqlstore.Open(cfg.DBDriver, cfg.DSN(), cfg.DBPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := sqlstore.Migrate(db, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := sqlstore.New(db, cfg.StoreTimeout, logger)
	verifier := security.NewJWTVerifier(cfg.VerifySecret, cfg.InternalSecret)
	dir := directory.New(cfg.ProfileDirectoryURL, cfg.ProfileTimeout, logger)
	registry := ws.NewRegistry(logger)

	router := httpserver.NewRouter(cfg, st, dir, registry, verifier, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.RetentionEnabled {
		go retention.NewWorker(st, cfg.RetentionInterval, logger).Run(workerCtx)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Str("driver", cfg.DBDriver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
