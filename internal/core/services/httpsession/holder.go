// Package httpsession implements the bounded keep-alive HTTP session
// pool (C3): a fixed-size reservoir of holders, each wrapping one
// cookie-carrying *http.Client, recycled by use count.
package httpsession

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mwzzzh/devicegen/internal/core/ports"
)

// Holder is a durable HTTP session plus a counter of tasks served. It is
// checked out by at most one task at a time -- exclusivity is enforced
// by the Pool's enqueue/dequeue discipline, not by locking inside Holder.
type Holder struct {
	mu         sync.Mutex
	client     *http.Client
	usedTasks  int
	maxTasks   int
}

// newHolder returns an empty holder; ensure() lazily constructs the
// underlying session on first use.
func newHolder(maxTasks int) *Holder {
	return &Holder{maxTasks: maxTasks}
}

// ensure lazily constructs the session with a fixed keep-alive transport
// profile and a fresh cookie jar. Cookies set by the server must be
// preserved across the three handshake stages, which is why the jar
// lives on the client for the holder's whole lifetime rather than being
// recreated per request.
func (h *Holder) ensure() error {
	if h.client != nil {
		return nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	transport := otelhttp.NewTransport(&http.Transport{
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	})
	h.client = &http.Client{
		Jar:       jar,
		Transport: transport,
		Timeout:   15 * time.Second,
	}
	return nil
}

// Client returns the holder's *http.Client, constructing it on first
// access.
func (h *Holder) Client() *http.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.ensure()
	return h.client
}

// Use records that the holder served one more task.
func (h *Holder) Use() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.usedTasks++
}

func (h *Holder) usageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usedTasks
}

// recycle tears the session down and clears the holder so the next
// ensure() call builds a fresh client and cookie jar.
func (h *Holder) recycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		h.client.Transport = nil // best-effort: drop references, let GC reclaim idle conns
	}
	h.client = nil
	h.usedTasks = 0
}

var _ ports.SessionHolder = (*Holder)(nil)
