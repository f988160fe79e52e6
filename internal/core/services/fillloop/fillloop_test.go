package fillloop

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter is an in-memory ports.ShardWriter keyed by shard index.
type fakeWriter struct {
	mu          sync.Mutex
	counts      []int64
	forcedShard int
	forced      bool
}

func newFakeWriter(counts []int64) *fakeWriter {
	cp := make([]int64, len(counts))
	copy(cp, counts)
	return &fakeWriter{counts: cp}
}

func (f *fakeWriter) Count(ctx context.Context, shardID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[shardID], nil
}

func (f *fakeWriter) Upsert(ctx context.Context, items []domain.WriteBatchItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		shard := it.ShardKey
		if f.forced {
			shard = f.forcedShard
		}
		f.counts[shard]++
	}
	return nil
}

func (f *fakeWriter) Evict(ctx context.Context, shardID int, n int) error { return nil }
func (f *fakeWriter) ShardCount() int                                     { return len(f.counts) }

func (f *fakeWriter) SetForcedShard(shardID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = true
	f.forcedShard = shardID
}

func (f *fakeWriter) ClearForcedShard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = false
}

func (f *fakeWriter) snapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]int64, len(f.counts))
	copy(cp, f.counts)
	return cp
}

// fakeLaunch simulates a worker-pool batch: every task always succeeds
// and lands one row on whatever shard the writer currently has forced.
func fakeLaunch(writer *fakeWriter) Launcher {
	return func(ctx context.Context, baseTaskID, n int) int {
		items := make([]domain.WriteBatchItem, n)
		for i := range items {
			items[i] = domain.WriteBatchItem{ShardKey: 0}
		}
		_ = writer.Upsert(ctx, items)
		return n
	}
}

func TestFillLoopFillsAllShardsToTarget(t *testing.T) {
	writer := newFakeWriter([]int64{0, 0, 0})
	cfg := Config{Target: 10, BatchMax: 4, ShardCount: 3, RunOnce: true}
	c := New(cfg, writer, fakeLaunch(writer), slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		allFull := true
		for _, n := range writer.snapshot() {
			if n < cfg.Target {
				allFull = false
			}
		}
		if allFull {
			break
		}
		require.NoError(t, ctx.Err(), "timed out before all shards reached target, counts=%v", writer.snapshot())
		_, err := c.Run(ctx)
		require.NoError(t, err)
	}

	for i, n := range writer.snapshot() {
		assert.Equal(t, cfg.Target, n, "shard %d", i)
	}
}

func TestFillLoopPicksLowerIndexOnTie(t *testing.T) {
	writer := newFakeWriter([]int64{5, 5, 5})
	cfg := Config{Target: 10, BatchMax: 100, ShardCount: 3, RunOnce: true}
	c := New(cfg, writer, fakeLaunch(writer), slog.Default())

	_, idx, err := c.smallestShard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, idx, "expected tie-break to favor shard 0")
}

func TestFillLoopRunOnceStopsAfterOneIteration(t *testing.T) {
	writer := newFakeWriter([]int64{0, 0})
	cfg := Config{Target: 100, BatchMax: 5, ShardCount: 2, RunOnce: true}
	c := New(cfg, writer, fakeLaunch(writer), slog.Default())

	filled, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), filled, "expected exactly one batch of 5")
}

func TestFillLoopRespectsHardCap(t *testing.T) {
	writer := newFakeWriter([]int64{0})
	cfg := Config{Target: 100, BatchMax: 10, ShardCount: 1, RunOnce: true, HardCap: 7}
	c := New(cfg, writer, fakeLaunch(writer), slog.Default())

	filled, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), filled, "expected hard cap to clamp fill to 7")
}

func TestFillLoopNoOpWhenAlreadyAtTarget(t *testing.T) {
	writer := newFakeWriter([]int64{10, 10})
	cfg := Config{Target: 10, BatchMax: 5, ShardCount: 2, RunOnce: true}
	c := New(cfg, writer, fakeLaunch(writer), slog.Default())

	filled, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), filled, "expected no fill when already at target")
}
