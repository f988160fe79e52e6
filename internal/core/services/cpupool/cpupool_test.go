package cpupool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobsConcurrently(t *testing.T) {
	p := New(4)
	defer p.Close()

	var n atomic.Int64
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			errs <- p.Do(func() error {
				n.Add(1)
				return nil
			})
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	require.EqualValues(t, 8, n.Load())
}

func TestPoolPropagatesError(t *testing.T) {
	p := New(4)
	defer p.Close()

	sentinel := errors.New("boom")
	err := p.Do(func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)
}

func TestNewClampsWorkerCount(t *testing.T) {
	p := New(1)
	defer p.Close()
	require.Zero(t, cap(p.jobs), "jobs channel should be unbuffered")

	// A pool built with n below the floor must still run at least
	// minWorkers concurrent jobs without deadlocking.
	done := make(chan struct{}, minWorkers)
	block := make(chan struct{})
	for i := 0; i < minWorkers; i++ {
		go func() {
			p.Do(func() error {
				done <- struct{}{}
				<-block
				return nil
			})
		}()
	}
	for i := 0; i < minWorkers; i++ {
		<-done
	}
	close(block)
}
