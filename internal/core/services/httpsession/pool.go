package httpsession

import (
	"context"
	"fmt"

	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

// Pool is a bounded container of Holders. Acquire blocks until one is
// available; Release re-enqueues it, recycling the underlying session
// first if it has served session_max_requests tasks. The channel itself
// is the exclusivity mechanism: a holder sits in the channel or is held
// by exactly one caller, never both.
type Pool struct {
	holders  chan *Holder
	size     int
	maxTasks int
}

// NewPool builds a pool of size holders, each recycled after maxTasks
// uses.
func NewPool(size, maxTasks int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		holders:  make(chan *Holder, size),
		size:     size,
		maxTasks: maxTasks,
	}
	for i := 0; i < size; i++ {
		p.holders <- newHolder(maxTasks)
	}
	return p
}

// Acquire blocks until a holder is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (ports.SessionHolder, error) {
	select {
	case h := <-p.holders:
		if err := h.ensure(); err != nil {
			// Session-creation errors propagate and fail the task; the
			// holder still goes back so the pool doesn't leak a slot.
			p.holders <- h
			return nil, fmt.Errorf("acquire session: %w", err)
		}
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns h to the pool, tearing its session down first if it
// has reached its use-count limit. A tear-down error is swallowed:
// recycling is best-effort.
func (p *Pool) Release(sh ports.SessionHolder) {
	h, ok := sh.(*Holder)
	if !ok {
		return
	}
	if h.maxTasks > 0 && h.usageCount() >= h.maxTasks {
		h.recycle()
		telemetry.SessionsRecycledTotal.Inc()
	}
	p.holders <- h
}

// Close tears down every currently-enqueued holder. Holders checked out
// at the time of Close are not torn down by it; Release re-enqueues them
// as usual. Close does not wait for outstanding checkouts.
func (p *Pool) Close() error {
	for {
		select {
		case h := <-p.holders:
			h.recycle()
		default:
			return nil
		}
	}
}

var _ ports.SessionPool = (*Pool)(nil)
