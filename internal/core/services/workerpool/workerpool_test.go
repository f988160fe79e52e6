package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/stretchr/testify/assert"
)

type fakeFabricator struct{ counter atomic.Int64 }

func (f *fakeFabricator) Fabricate() (domain.Device, error) {
	n := f.counter.Add(1)
	return domain.Device{DeviceUID: fmt.Sprintf("device-%d", n)}, nil
}

// stubSessionHolder is a minimal ports.SessionHolder for tests that
// never touch the underlying *http.Client.
type stubSessionHolder struct{}

func (stubSessionHolder) Client() *http.Client { return &http.Client{} }
func (stubSessionHolder) Use()                 {}

type fakeSessionPool struct {
	mu          sync.Mutex
	outstanding int
	maxObserved int
}

func (p *fakeSessionPool) Acquire(ctx context.Context) (ports.SessionHolder, error) {
	p.mu.Lock()
	p.outstanding++
	if p.outstanding > p.maxObserved {
		p.maxObserved = p.outstanding
	}
	p.mu.Unlock()
	return stubSessionHolder{}, nil
}

func (p *fakeSessionPool) Release(h ports.SessionHolder) {
	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()
}

func (p *fakeSessionPool) Close() error { return nil }

type fakeProxySource struct{ n atomic.Int64 }

func (f *fakeProxySource) Next() string { return fmt.Sprintf("proxy-%d", f.n.Add(1)) }
func (f *fakeProxySource) Len() int     { return 3 }

type fakeRegistrar struct {
	failEvery int // fail every Nth call (0 = never fail)
	calls     atomic.Int64
}

func (f *fakeRegistrar) Register(ctx context.Context, session ports.SessionHolder, device domain.Device, taskID int) (domain.ProvisionedDevice, error) {
	n := f.calls.Add(1)
	if f.failEvery > 0 && n%int64(f.failEvery) == 0 {
		return domain.ProvisionedDevice{}, errors.New("simulated stage failure")
	}
	device.DeviceID = fmt.Sprintf("%d", 7000000000000000000+taskID)
	return domain.ProvisionedDevice{Device: device}, nil
}

type fakePipeline struct {
	mu    sync.Mutex
	items []domain.WriteBatchItem
}

func (p *fakePipeline) Submit(item domain.WriteBatchItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
}
func (p *fakePipeline) Start(ctx context.Context) {}
func (p *fakePipeline) Stop()                     {}

func (p *fakePipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

var _ ports.Fabricator = (*fakeFabricator)(nil)
var _ ports.SessionHolder = stubSessionHolder{}
var _ ports.SessionPool = (*fakeSessionPool)(nil)
var _ ports.ProxySource = (*fakeProxySource)(nil)
var _ ports.Registrar = (*fakeRegistrar)(nil)
var _ ports.Pipeline = (*fakePipeline)(nil)

func TestPoolRunAllSucceed(t *testing.T) {
	pipeline := &fakePipeline{}
	pool := New(&fakeFabricator{}, &fakeSessionPool{}, &fakeProxySource{}, &fakeRegistrar{}, pipeline, 4, slog.Default())

	results := pool.Run(context.Background(), 0, 10)
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	assert.Equal(t, 10, succeeded, "expected 10 successes")
	assert.Equal(t, 10, pipeline.count(), "expected 10 items submitted to pipeline")
}

func TestPoolRunRespectsConcurrencyBound(t *testing.T) {
	sp := &fakeSessionPool{}
	pool := New(&fakeFabricator{}, sp, &fakeProxySource{}, &fakeRegistrar{}, &fakePipeline{}, 3, slog.Default())
	pool.Run(context.Background(), 0, 30)
	assert.LessOrEqual(t, sp.maxObserved, 3)
}

func TestPoolRunSomeFail(t *testing.T) {
	registrar := &fakeRegistrar{failEvery: 3}
	pipeline := &fakePipeline{}
	pool := New(&fakeFabricator{}, &fakeSessionPool{}, &fakeProxySource{}, registrar, pipeline, 4, slog.Default())

	results := pool.Run(context.Background(), 0, 9)
	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}
	assert.Equal(t, 3, failures, "expected 3 failures (every 3rd call)")
	assert.Equal(t, 6, pipeline.count(), "expected 6 items submitted to pipeline")
}
