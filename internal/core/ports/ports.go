// Package ports declares the interfaces the core registration engine
// depends on. Concrete adapters (HTTP, GORM/MySQL, filesystem) live
// under internal/adapters and internal/core/services; this segregation
// mirrors the hexagonal layout the teacher repository uses throughout
// internal/core/ports.
package ports

import (
	"context"
	"net/http"

	"github.com/mwzzzh/devicegen/internal/core/domain"
)

// Fabricator produces one synthetic Device Record per call. It is
// stateless and performs no I/O.
type Fabricator interface {
	Fabricate() (domain.Device, error)
}

// SignatureSigner computes the five request-integrity header values for
// one HTTP call. It is a pure function of its inputs: the same
// (deviceID, ts, signCount, queryString, bodyHex) tuple always yields
// the same five strings.
type SignatureSigner interface {
	Sign(deviceID string, ts, signCount int64, queryString, bodyHex string) (stub, khronos, argus, ladon, gorgon string)
}

// SessionHolder is one reusable, cookie-carrying HTTP client checked out
// of a Pool for the duration of a single registration handshake.
type SessionHolder interface {
	Client() *http.Client
	// Use records that the holder served one more task. The pool
	// consults it on Release to decide whether to recycle.
	Use()
}

// SessionPool is a bounded reservoir of SessionHolders.
type SessionPool interface {
	Acquire(ctx context.Context) (SessionHolder, error)
	Release(h SessionHolder)
	Close() error
}

// ShardWriter is the durable, sharded persistence layer for provisioned
// devices (C6). shardID is CRC32(deviceID) mod N unless the writer has a
// forced shard configured (fill-loop mode).
type ShardWriter interface {
	Count(ctx context.Context, shardID int) (int64, error)
	Upsert(ctx context.Context, items []domain.WriteBatchItem) error
	Evict(ctx context.Context, shardID int, n int) error
	ShardCount() int
	// SetForcedShard pins every subsequent Upsert's effective shard to
	// shardID, overriding each item's own CRC32(device_id) mod N. Used
	// by the fill-loop controller to steer a whole batch at one shard.
	SetForcedShard(shardID int)
	ClearForcedShard()
}

// ProxySource yields the next proxy URL in round-robin order. An empty
// source is a fatal start-up error, never a runtime one.
type ProxySource interface {
	Next() string
	Len() int
}

// Pipeline is the write pipeline's producer-facing surface (C5).
type Pipeline interface {
	Submit(item domain.WriteBatchItem)
	Start(ctx context.Context)
	// Stop stops accepting new items, drains the queue to completion
	// (retrying persistence forever), then returns.
	Stop()
}

// Registrar drives one device through the three-stage handshake (C4).
type Registrar interface {
	Register(ctx context.Context, session SessionHolder, device domain.Device, taskID int) (domain.ProvisionedDevice, error)
}
