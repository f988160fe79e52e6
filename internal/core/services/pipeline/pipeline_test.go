package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/stretchr/testify/assert"
)

// fakeWriter is an in-memory ports.ShardWriter: Count/Upsert/Evict over
// a map keyed by device_id, with knobs to simulate transient failures.
type fakeWriter struct {
	mu         sync.Mutex
	rows       map[string]domain.WriteBatchItem
	shardCount int
	failTimes  int // Upsert fails this many times before succeeding
}

func newFakeWriter(shardCount int) *fakeWriter {
	return &fakeWriter{rows: make(map[string]domain.WriteBatchItem), shardCount: shardCount}
}

func (f *fakeWriter) Count(ctx context.Context, shardID int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows {
		if r.ShardKey == shardID {
			n++
		}
	}
	return n, nil
}

func (f *fakeWriter) Upsert(ctx context.Context, items []domain.WriteBatchItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("simulated transient db failure")
	}
	for _, it := range items {
		f.rows[it.Device.DeviceID] = it
	}
	return nil
}

func (f *fakeWriter) Evict(ctx context.Context, shardID int, n int) error { return nil }
func (f *fakeWriter) ShardCount() int                                     { return f.shardCount }
func (f *fakeWriter) SetForcedShard(shardID int)                          {}
func (f *fakeWriter) ClearForcedShard()                                   {}

func (f *fakeWriter) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

var _ ports.ShardWriter = (*fakeWriter)(nil)

func item(deviceID string, shard int) domain.WriteBatchItem {
	return domain.WriteBatchItem{
		ShardKey: shard,
		Device:   domain.ProvisionedDevice{Device: domain.Device{DeviceID: deviceID}},
	}
}

func TestPipelineFlushesOnBatchSize(t *testing.T) {
	writer := newFakeWriter(1)
	p := New(writer, 100, slog.Default(), WithBatchSize(3), WithFlushPeriod(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	for i := 0; i < 3; i++ {
		p.Submit(item(fmtID(i), 0))
	}
	deadline := time.Now().Add(time.Second)
	for writer.rowCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, writer.rowCount(), "expected 3 rows after batch flush")
	p.Stop()
}

func TestPipelineFlushesOnIdleTicker(t *testing.T) {
	writer := newFakeWriter(1)
	p := New(writer, 100, slog.Default(), WithBatchSize(100), WithFlushPeriod(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Submit(item("only-one", 0))
	deadline := time.Now().Add(time.Second)
	for writer.rowCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, writer.rowCount(), "expected 1 row after idle flush")
	p.Stop()
}

func TestPipelineRetriesUntilSuccess(t *testing.T) {
	writer := newFakeWriter(1)
	writer.failTimes = 2
	p := New(writer, 100, slog.Default(), WithBatchSize(1), WithFlushPeriod(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Submit(item("retried-device", 0))
	deadline := time.Now().Add(5 * time.Second)
	for writer.rowCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, writer.rowCount(), "expected eventual success after retries")
	p.Stop()
}

func TestPipelineStopDrainsQueue(t *testing.T) {
	writer := newFakeWriter(1)
	p := New(writer, 100, slog.Default(), WithBatchSize(50), WithFlushPeriod(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	for i := 0; i < 10; i++ {
		p.Submit(item(fmtID(i), 0))
	}
	p.Stop() // must block until the 10 buffered items are persisted

	assert.Equal(t, 10, writer.rowCount(), "expected 10 rows after Stop drained the queue")
}

func fmtID(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var b []byte
	for i > 0 {
		b = append([]byte{digits[i%10]}, b...)
		i /= 10
	}
	return string(b)
}
