package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/config"
	"github.com/dukerupert/packwise/internal/database"
	"github.com/dukerupert/packwise/internal/logging"
	"github.com/dukerupert/packwise/internal/packing"
	"github.com/dukerupert/packwise/internal/reconcile"
	"github.com/dukerupert/packwise/internal/server"
	"github.com/dukerupert/packwise/internal/store"
	ws "github.com/dukerupert/packwise/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("packwise exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.Dev {
		logger.Warn("development mode: using the built-in token secret unless PACKWISE_JWT_SECRET is set")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := reconcile.NewEngine(db, logger)
	svc := packing.NewService(db, engine, packing.Mode(cfg.ReconcileMode), logger)
	hub := ws.NewHub(logger.With("component", "websocket"))
	svc.SetNotifier(hub)

	if svc.Mode() == packing.ModeAsync {
		worker := reconcile.NewWorker(engine, store.NewReconcileJobStore(db), cfg.ReconcileInterval, cfg.ReconcileMaxAttempts, logger)
		worker.OnFinish(svc.JobFinished)
		worker.Start(ctx)
		defer worker.Stop()
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	srv := server.New(db, svc, tokens, hub, cfg.WSOrigins, logger)
	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("packwise listening", "addr", httpServer.Addr, "reconcile_mode", svc.Mode(), "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
