// Package fillloop implements the fill-loop controller (C8): on each
// iteration it inspects every shard's current count, picks the
// most-deficient one ("smallest-first", ties broken by the lower
// index), and launches a bounded worker-pool batch to close the gap.
package fillloop

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

// Launcher runs one worker-pool batch of n tasks starting at baseTaskID
// and returns the number that succeeded. It abstracts workerpool.Pool
// so fillloop doesn't import it directly (keeps the dependency graph a
// DAG: workerpool depends on nothing in fillloop).
type Launcher func(ctx context.Context, baseTaskID, n int) (succeeded int)

// Config holds the fill-loop's tunable parameters (§4.8).
type Config struct {
	Target     int64         // T: per-shard target count
	BatchMax   int           // B: max tasks launched per iteration
	ShardCount int           // N
	Interval   time.Duration // I: sleep between iterations
	HardCap    int64         // M: 0 means unlimited
	RunOnce    bool
}

// Controller runs the fill-loop algorithm against writer, launching
// batches through launch.
type Controller struct {
	cfg        Config
	writer     ports.ShardWriter
	launch     Launcher
	log        *slog.Logger
	nextTaskID int
}

// New builds a Controller.
func New(cfg Config, writer ports.ShardWriter, launch Launcher, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = writer.ShardCount()
	}
	return &Controller{cfg: cfg, writer: writer, launch: launch, log: log}
}

// Run executes the fill-loop until one iteration has run (run-once), the
// hard cap is reached, a shard count fails, or ctx is cancelled. It
// returns the total number of successfully filled devices.
func (c *Controller) Run(ctx context.Context) (filledTotal int64, err error) {
	for {
		if ctx.Err() != nil {
			return filledTotal, ctx.Err()
		}

		curMin, idx, err := c.smallestShard(ctx)
		if err != nil {
			return filledTotal, err
		}
		telemetry.FillLoopIterationsTotal.Inc()

		if curMin >= c.cfg.Target {
			c.log.Info("fill-loop pool full", "shard_id", idx, "cur", curMin, "target", c.cfg.Target)
			if c.cfg.RunOnce {
				return filledTotal, nil
			}
			if c.sleepOrDone(ctx) {
				return filledTotal, ctx.Err()
			}
			continue
		}

		missing := c.cfg.Target - curMin
		fill := missing
		if int64(c.cfg.BatchMax) < fill {
			fill = int64(c.cfg.BatchMax)
		}
		if c.cfg.HardCap > 0 {
			remaining := c.cfg.HardCap - filledTotal
			if remaining <= 0 {
				c.log.Info("fill-loop hard cap reached", "filled_total", filledTotal, "hard_cap", c.cfg.HardCap)
				return filledTotal, nil
			}
			if fill > remaining {
				fill = remaining
			}
		}

		c.writer.SetForcedShard(idx)
		succeeded := c.launch(ctx, c.nextTaskID, int(fill))
		c.writer.ClearForcedShard()
		c.nextTaskID += int(fill)

		filledTotal += int64(succeeded)
		telemetry.FillLoopDevicesFilled.WithLabelValues(strconv.Itoa(idx)).Add(float64(succeeded))
		c.log.Info("fill-loop iteration complete",
			"shard_id", idx, "cur", curMin, "target", c.cfg.Target,
			"missing", missing, "filled_total", filledTotal)

		if c.cfg.RunOnce {
			return filledTotal, nil
		}
		if c.sleepOrDone(ctx) {
			return filledTotal, ctx.Err()
		}
	}
}

// smallestShard returns the (count, index) of the shard with the
// smallest current count, breaking ties toward the lower index by
// scanning in ascending order and only replacing on a strictly smaller
// count.
func (c *Controller) smallestShard(ctx context.Context) (int64, int, error) {
	var minCount int64 = -1
	minIdx := 0
	for i := 0; i < c.cfg.ShardCount; i++ {
		n, err := c.writer.Count(ctx, i)
		if err != nil {
			return 0, 0, err
		}
		if minCount == -1 || n < minCount {
			minCount = n
			minIdx = i
		}
	}
	return minCount, minIdx, nil
}

// sleepOrDone sleeps for the configured interval, returning true if ctx
// was cancelled first.
func (c *Controller) sleepOrDone(ctx context.Context) bool {
	if c.cfg.Interval <= 0 {
		return ctx.Err() != nil
	}
	select {
	case <-time.After(c.cfg.Interval):
		return false
	case <-ctx.Done():
		return true
	}
}
