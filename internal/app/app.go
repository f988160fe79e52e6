// Package app assembles the device-generation pipeline's components
// (config, telemetry, fabricator, signer, session pool, registrar,
// write pipeline, shard writer, proxy source, worker pool, fill-loop
// controller) into one runnable Application. Grounded on the teacher's
// app.Application facade: a single bootstrap sequence building
// components bottom-up and a Run that starts background loops and
// blocks on cancellation.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mwzzzh/devicegen/internal/adapters/filebackup"
	"github.com/mwzzzh/devicegen/internal/adapters/proxy"
	"github.com/mwzzzh/devicegen/internal/adapters/statusserver"
	"github.com/mwzzzh/devicegen/internal/adapters/storage"
	"github.com/mwzzzh/devicegen/internal/config"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/core/services/cpupool"
	"github.com/mwzzzh/devicegen/internal/core/services/devicegen"
	"github.com/mwzzzh/devicegen/internal/core/services/fillloop"
	"github.com/mwzzzh/devicegen/internal/core/services/httpsession"
	"github.com/mwzzzh/devicegen/internal/core/services/pipeline"
	"github.com/mwzzzh/devicegen/internal/core/services/registration"
	"github.com/mwzzzh/devicegen/internal/core/services/signing"
	"github.com/mwzzzh/devicegen/internal/core/services/workerpool"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

// Application is the facade wiring every component together.
type Application struct {
	Config *config.Config

	Writer       *storage.ShardWriter
	Pipeline     ports.Pipeline
	SessionPool  ports.SessionPool
	Proxies      ports.ProxySource
	Registrar    ports.Registrar
	Fabricator   ports.Fabricator
	WorkerPool   *workerpool.Pool
	FillLoop     *fillloop.Controller
	StatusServer *statusserver.Server
	CPUPool      *cpupool.Pool

	backup *filebackup.Writer
	log    *slog.Logger
}

// New builds and wires an Application from cfg.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg, log: slog.Default()}
	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	writer, err := storage.NewShardWriter(app.Config.DSN(), app.Config.DevicePoolShards)
	if err != nil {
		return fmt.Errorf("init shard writer: %w", err)
	}
	app.Writer = writer

	pipelineOpts := []pipeline.Option{}
	if app.Config.SaveToFile {
		backup, err := filebackup.New(app.Config.DeviceBackupDir, app.Config.DeviceFilePrefix, app.Config.DeviceFileShards, app.Config.FileFsync)
		if err != nil {
			return fmt.Errorf("init file backup: %w", err)
		}
		app.backup = backup
		pipelineOpts = append(pipelineOpts, pipeline.WithBackup(backup))
	}
	app.Pipeline = pipeline.New(writer, app.Config.GenConcurrency*2, app.log, pipelineOpts...)

	app.SessionPool = httpsession.NewPool(app.Config.SessionPoolSize, app.Config.SessionMaxRequests)

	proxies, err := proxy.LoadFile(app.Config.ProxyListPath)
	if err != nil {
		return fmt.Errorf("load proxy list: %w", err)
	}
	app.Proxies = proxies

	signer, err := signing.NewHeaderSigner(app.Config.SigningSecret)
	if err != nil {
		return fmt.Errorf("init header signer: %w", err)
	}
	app.CPUPool = cpupool.New(app.Config.GenThreadPoolSize)
	app.Registrar = registration.NewHandshake(registration.DefaultEndpoints(), signer, app.CPUPool)

	app.Fabricator = devicegen.New()

	app.WorkerPool = workerpool.New(app.Fabricator, app.SessionPool, app.Proxies, app.Registrar, app.Pipeline, app.Config.GenConcurrency, app.log)

	app.FillLoop = fillloop.New(fillloop.Config{
		Target:     int64(app.Config.DBMaxDevices),
		BatchMax:   app.Config.PollBatchMax,
		ShardCount: app.Config.DevicePoolShards,
		Interval:   time.Duration(app.Config.PollIntervalSec) * time.Second,
		HardCap:    int64(app.Config.PollMaxTotal),
		RunOnce:    app.Config.PollOnce,
	}, writer, app.launchBatch, app.log)

	app.StatusServer = statusserver.New(":9090", writer)

	return nil
}

// launchBatch adapts workerpool.Pool.Run to fillloop.Launcher: it runs n
// tasks starting at baseTaskID and returns the number that succeeded.
func (app *Application) launchBatch(ctx context.Context, baseTaskID, n int) int {
	results := app.WorkerPool.Run(ctx, baseTaskID, n)
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return succeeded
}

// Run starts the pipeline and status server, then drives the fill-loop
// (or a single batch, if poll mode is off) until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	app.Pipeline.Start(ctx)

	go func() {
		if err := app.StatusServer.Run(ctx); err != nil {
			app.log.Error("status server stopped", "error", err)
		}
	}()

	var runErr error
	if app.Config.PollMode {
		filled, err := app.FillLoop.Run(ctx)
		app.log.Info("fill-loop stopped", "filled_total", filled)
		runErr = err
	} else {
		n := app.Config.TasksPerBatch
		if app.Config.MaxGenerate > 0 && app.Config.MaxGenerate < n {
			n = app.Config.MaxGenerate
		}
		succeeded := app.launchBatch(ctx, 0, n)
		app.log.Info("one-shot batch complete", "succeeded", succeeded, "requested", n)
	}

	return app.cleanup(runErr)
}

func (app *Application) cleanup(runErr error) error {
	app.log.Info("shutting down, draining write pipeline")
	app.Pipeline.Stop()

	if err := app.SessionPool.Close(); err != nil {
		app.log.Warn("session pool close failed", "error", err)
	}
	if err := app.Writer.Close(); err != nil {
		app.log.Warn("shard writer close failed", "error", err)
	}
	app.CPUPool.Close()

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}
