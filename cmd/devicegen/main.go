package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwzzzh/devicegen/internal/app"
	"github.com/mwzzzh/devicegen/internal/config"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeErrorLog, err := telemetry.NewLogger(cfg.DeviceErrorLog)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init error log", "error", err)
		os.Exit(1)
	}
	defer closeErrorLog()
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	// The first interrupt cancels ctx and asks components to drain and
	// stop; stop() then reverts to the OS default handler, so a second
	// interrupt kills the process immediately instead of waiting on a
	// drain that might be stuck.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown requested, press Ctrl+C again to force exit")
		stop()
	}()

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	slog.Info("devicegen starting", "gen_concurrency", cfg.GenConcurrency, "poll_mode", cfg.PollMode)
	if err := application.Run(ctx); err != nil {
		slog.Error("devicegen exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("devicegen stopped cleanly")
}
