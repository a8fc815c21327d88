package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"crickbid/internal/auction"
	"crickbid/internal/config"
	"crickbid/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := auction.NewService(pool, logger, auction.WithMinPlayerPrice(cfg.MinPlayerPrice))
	daemon := auction.NewDaemon(svc, logger, cfg.TimerTick, svc.Clock())

	if cfg.RunOnce {
		report, err := daemon.Tick(ctx, svc.Clock().Now().UTC())
		if err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "expired", report.Expired, "advanced", report.Advanced, "failed", report.Failed)
		return
	}

	if err := daemon.Run(ctx); err != nil {
		logger.Error("timer daemon failed", "err", err)
		os.Exit(1)
	}
	logger.Info("worker shutdown")
}
