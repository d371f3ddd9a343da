package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"branchpay/internal/app/server"
	"branchpay/internal/platform/config"
	"branchpay/internal/transport/http/middleware"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(middleware.NewLogger(os.Stdout, cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
