// Package workerpool implements the bounded concurrent registration
// pool (C7): n tasks run under a semaphore of width max_concurrency,
// each picking a proxy, checking out a session, running the handshake,
// and handing a successful device to the pipeline. Grounded on the
// teacher's manager-style lifecycle (sniffer/manager.SnifferManager's
// Start/ctx-cancellation shape) generalized from a fan-in-of-sniffers
// loop to a fan-out-of-registration-attempts loop over an explicit
// semaphore, since the teacher's own coordinators have no bounded
// concurrency primitive to adapt directly.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

var tracer = otel.Tracer("devicegen/workerpool")

// Result is the per-task outcome, used only for the caller's summary
// counters.
type Result struct {
	TaskID  int
	Success bool
	Err     error
}

// Pool drives n registration attempts with bounded concurrency.
type Pool struct {
	fabricator     ports.Fabricator
	sessionPool    ports.SessionPool
	proxies        ports.ProxySource
	registrar      ports.Registrar
	pipeline       ports.Pipeline
	maxConcurrency int
	log            *slog.Logger
}

// New builds a Pool. maxConcurrency bounds in-flight registration
// attempts (GEN_CONCURRENCY).
func New(fabricator ports.Fabricator, sessionPool ports.SessionPool, proxies ports.ProxySource, registrar ports.Registrar, pipeline ports.Pipeline, maxConcurrency int, log *slog.Logger) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		fabricator:     fabricator,
		sessionPool:    sessionPool,
		proxies:        proxies,
		registrar:      registrar,
		pipeline:       pipeline,
		maxConcurrency: maxConcurrency,
		log:            log,
	}
}

// Run spawns n tasks (numbered baseTaskID..baseTaskID+n-1), each bound
// by the pool's semaphore, and blocks until every started task has
// finished; once ctx is cancelled no further tasks start and the rest
// are recorded as failed with ctx's error. Successful devices are submitted to the pipeline
// with shard_key = task_id. It returns per-task results in no
// particular order.
func (p *Pool) Run(ctx context.Context, baseTaskID, n int) []Result {
	sem := make(chan struct{}, p.maxConcurrency)
	results := make([]Result, n)
	var wg sync.WaitGroup
	var successCount atomic.Int64

	for i := 0; i < n; i++ {
		taskID := baseTaskID + i
		select {
		case <-ctx.Done():
			results[i] = Result{TaskID: taskID, Success: false, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx, taskID int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = p.runTask(ctx, taskID)
			if results[idx].Success {
				successCount.Add(1)
			}
		}(i, taskID)
	}

	wg.Wait()
	p.log.Info("worker pool batch complete", "tasks", n, "succeeded", successCount.Load())
	return results
}

func (p *Pool) runTask(ctx context.Context, taskID int) Result {
	ctx, span := tracer.Start(ctx, "workerpool.runTask")
	defer span.End()
	span.SetAttributes(attribute.Int("task_id", taskID))

	proxyURL := p.proxies.Next()
	span.SetAttributes(attribute.String("proxy", proxyURL))

	session, err := p.sessionPool.Acquire(ctx)
	if err != nil {
		return Result{TaskID: taskID, Err: err}
	}
	defer p.sessionPool.Release(session)

	device, err := p.fabricator.Fabricate()
	if err != nil {
		return Result{TaskID: taskID, Err: err}
	}

	provisioned, err := p.registrar.Register(ctx, session, device, taskID)
	if err != nil {
		p.log.Warn("registration attempt failed", "task_id", taskID, "error", err)
		telemetry.RegistrationAttemptsTotal.WithLabelValues("failure").Inc()
		var stageErr *domain.StageFailedError
		if errors.As(err, &stageErr) {
			telemetry.StageFailuresTotal.WithLabelValues(stageErr.Stage).Inc()
		}
		return Result{TaskID: taskID, Err: err}
	}

	p.pipeline.Submit(domain.WriteBatchItem{ShardKey: taskID, Device: provisioned})
	p.log.Info("registration attempt succeeded", "task_id", taskID, "device_id", provisioned.DeviceID)
	telemetry.RegistrationAttemptsTotal.WithLabelValues("success").Inc()
	return Result{TaskID: taskID, Success: true}
}
