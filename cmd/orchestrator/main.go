// Command orchestrator runs the centralized rate-limit coordinator: it binds
// the HTTP surface (C6), wires it to the decision kernel (C2), the
// wait-and-retry loop (C3), the result reporter (C4), and the metrics
// registry (C5), and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/dmbo/internal/config"
	"github.com/tbourn/dmbo/internal/coordinator"
	"github.com/tbourn/dmbo/internal/guardrail"
	httpapi "github.com/tbourn/dmbo/internal/http"
	"github.com/tbourn/dmbo/internal/http/handlers"
	"github.com/tbourn/dmbo/internal/metrics"
	"github.com/tbourn/dmbo/internal/ratelimit"
	"github.com/tbourn/dmbo/internal/sysutil"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("fatal panic in main")
			os.Exit(1)
		}
	}()

	// Load a local .env file for developer convenience; DMBO_* vars set in
	// the real environment always win, and a missing file is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("bind", cfg.Bind).
		Int("global_rps", cfg.GlobalRPS).
		Int("route_rps", cfg.RouteRPS).
		Int("invalid_threshold", cfg.InvalidThreshold).
		Msg("starting orchestrator")

	coord, err := coordinator.New(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build coordinator")
	}
	defer coord.Close()

	reg := metrics.New()

	kernel := &ratelimit.Kernel{
		Coordinator: coord,
		Metrics:     reg,
		GlobalRPS:   cfg.GlobalRPS,
		RouteRPS:    cfg.RouteRPS,
		MinRetryMS:  cfg.MinRetryMS,
	}
	loop := &ratelimit.Loop{
		Kernel:     kernel,
		Metrics:    reg,
		MinRetryMS: int64(cfg.MinRetryMS),
	}
	reporter := &guardrail.Reporter{
		Coordinator:         coord,
		Metrics:             reg,
		InvalidThreshold:    cfg.InvalidThreshold,
		GuardrailCooldownMS: cfg.GuardrailCooldownMS,
	}
	h := &handlers.Handlers{
		Loop:                   loop,
		Reporter:               reporter,
		Coordinator:            coord,
		RedisRequiredForHealth: cfg.RedisRequiredForHealth,
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, h, reg)

	srv := &http.Server{
		Addr:              cfg.Bind,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := <-serveErr; err != nil {
		log.Error().Err(err).Msg("server error during shutdown")
	}

	log.Info().Msg("orchestrator stopped")
}
