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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/server"
	"github.com/BioHazard786/watchparty/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoadServer()
	log := logging.Setup(cfg.Env)

	if cfg.Env == logging.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create the Hub and start its liveness sweep
	hub := signaling.NewHub(log, signaling.Options{
		SweepInterval:  cfg.SweepInterval,
		QueueSize:      cfg.SendQueueSize,
		MaxMessageSize: cfg.MaxMessageSize,
	})
	go hub.Run(ctx)

	// 2. Serve the websocket endpoint and diagnostics
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(hub, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting signaling server", slog.String("addr", cfg.Addr()), slog.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", logging.Err(err))
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logging.Err(err))
	}
	// Hijacked websocket connections are not closed by Shutdown.
	hub.CloseAll()

	log.Info("server stopped")
}
