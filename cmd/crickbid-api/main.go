package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crickbid/internal/api"
	"crickbid/internal/auction"
	"crickbid/internal/auth"
	"crickbid/internal/config"
	"crickbid/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	var verifier auth.Verifier
	if cfg.SupabaseURL != "" {
		verifier = auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	} else {
		logger.Warn("no token verifier configured, trusting X-User-ID")
	}
	svc := auction.NewService(pool, logger, auction.WithMinPlayerPrice(cfg.MinPlayerPrice))

	if cfg.EmbeddedTimer {
		daemon := auction.NewDaemon(svc, logger, cfg.TimerTick, svc.Clock())
		go func() {
			if err := daemon.Run(ctx); err != nil {
				logger.Error("embedded timer stopped", "err", err)
			}
		}()
	}

	server := api.New(cfg, logger, verifier, svc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("crickbid api listening", "addr", cfg.Addr, "embedded_timer", cfg.EmbeddedTimer)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
