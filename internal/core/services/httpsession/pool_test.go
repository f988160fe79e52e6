package httpsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExclusivity(t *testing.T) {
	pool := NewPool(2, 100)
	ctx := context.Background()

	h1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	h2, err := pool.Acquire(ctx)
	require.NoError(t, err)

	// Pool is now exhausted; a third acquire must block until release.
	acquired := make(chan struct{})
	go func() {
		_, _ = pool.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked while pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(h1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire should unblock after release")
	}
	pool.Release(h2)
}

func TestPoolRecyclesAfterMaxRequests(t *testing.T) {
	pool := NewPool(1, 2)
	ctx := context.Background()

	h, err := pool.Acquire(ctx)
	require.NoError(t, err)
	holder := h.(*Holder)
	client1 := holder.Client()
	holder.Use()
	holder.Use()
	pool.Release(h)

	h2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	holder2 := h2.(*Holder)
	client2 := holder2.Client()
	assert.NotSame(t, client1, client2, "expected session to be recycled (new client) after max requests")
	pool.Release(h2)
}

func TestPoolConcurrentAcquireRelease(t *testing.T) {
	pool := NewPool(4, 0)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := pool.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			h.Use()
			time.Sleep(time.Millisecond)
			pool.Release(h)
		}()
	}
	wg.Wait()
}
