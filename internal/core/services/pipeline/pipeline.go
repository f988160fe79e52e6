// Package pipeline implements the asynchronous batched write pipeline
// (C5): a single consumer drains a bounded channel of provisioned
// devices into batches, flushing each through the DB shard writer and,
// optionally, a file backup, retrying forever on failure. Grounded on
// the teacher's persistence.PersistenceManager (channel-fed buffer,
// ticker-driven idle flush, context-cancelled drain-on-stop) and
// generalized from its map-keyed dedup buffer to an ordered FIFO slice,
// since the write batch here must preserve enqueue order (§5 ordering
// guarantees).
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
	"github.com/mwzzzh/devicegen/internal/telemetry"
)

const (
	defaultBatchSize   = 20
	defaultFlushPeriod = 5 * time.Second
	backoffBase        = time.Second
	backoffCap         = 30 * time.Second
)

// Backup is the optional secondary file-backup writer (A-side of C5).
// It is a narrow seam so pipeline doesn't import the filesystem backup
// adapter directly.
type Backup interface {
	Write(items []domain.WriteBatchItem) error
	Close() error
}

// Pipeline implements ports.Pipeline.
type Pipeline struct {
	writer    ports.ShardWriter
	backup    Backup
	batchSize int
	period    time.Duration

	items chan domain.WriteBatchItem
	done  chan struct{}

	log *slog.Logger
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithBatchSize overrides the default flush batch size (20).
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushPeriod overrides the idle-flush ticker period.
func WithFlushPeriod(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.period = d
		}
	}
}

// WithBackup attaches a secondary file-backup writer.
func WithBackup(b Backup) Option {
	return func(p *Pipeline) { p.backup = b }
}

// New builds a Pipeline writing through writer, with a channel buffer
// sized queueCap.
func New(writer ports.ShardWriter, queueCap int, log *slog.Logger, opts ...Option) *Pipeline {
	if queueCap <= 0 {
		queueCap = defaultBatchSize * 4
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		writer:    writer,
		batchSize: defaultBatchSize,
		period:    defaultFlushPeriod,
		items:     make(chan domain.WriteBatchItem, queueCap),
		done:      make(chan struct{}),
		log:       log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ports.Pipeline = (*Pipeline)(nil)

// Submit enqueues item. It blocks once the channel is full --
// back-pressure on producers is the mechanism, not a silent drop.
func (p *Pipeline) Submit(item domain.WriteBatchItem) {
	p.items <- item
}

// Start launches the single writer goroutine. It returns immediately;
// Stop blocks until the writer has drained and exited.
func (p *Pipeline) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop closes the intake channel and waits for the writer goroutine to
// drain every already-enqueued item (retrying persistence forever) and
// exit.
func (p *Pipeline) Stop() {
	close(p.items)
	<-p.done
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	buffer := make([]domain.WriteBatchItem, 0, p.batchSize)

	// ctxDone is nilled out after it fires once so the select doesn't
	// spin: cancellation only needs to be observed, not re-observed every
	// loop iteration. Persistence (the p.items case) keeps draining
	// regardless -- a cancelled context never skips a flush.
	ctxDone := ctx.Done()

	for {
		select {
		case item, ok := <-p.items:
			if !ok {
				if len(buffer) > 0 {
					p.flush(context.Background(), buffer)
				}
				if p.backup != nil {
					if err := p.backup.Close(); err != nil {
						p.log.Error("pipeline backup close failed", "error", err)
					}
				}
				return
			}
			buffer = append(buffer, item)
			if len(buffer) >= p.batchSize {
				p.flush(context.Background(), buffer)
				buffer = buffer[:0]
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				p.flush(context.Background(), buffer)
				buffer = buffer[:0]
			}
		case <-ctxDone:
			p.log.Info("pipeline observed cancellation, draining remaining items")
			ctxDone = nil
		}
	}
}

// flush persists batch, retrying forever with exponential backoff on
// failure. Only after a successful call does the batch leave in-flight
// accounting -- the "drained" signal reflects actual persistence.
func (p *Pipeline) flush(ctx context.Context, batch []domain.WriteBatchItem) {
	items := make([]domain.WriteBatchItem, len(batch))
	copy(items, batch)

	backoff := backoffBase
	for attempt := 1; ; attempt++ {
		err := p.writer.Upsert(ctx, items)
		if err == nil {
			telemetry.PipelineFlushesTotal.WithLabelValues("success").Inc()
			telemetry.PipelineFlushBatchSize.Observe(float64(len(items)))
			break
		}
		telemetry.PipelineFlushesTotal.WithLabelValues("failure").Inc()
		p.log.Error("pipeline flush failed, retrying", "attempt", attempt, "batch_size", len(items), "backoff", backoff, "error", &domain.PipelineFlushError{Err: err})
		time.Sleep(backoff)
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}

	if p.backup != nil {
		if err := p.backup.Write(items); err != nil {
			// Sidecar backup failures are never fatal and never retried --
			// only the DB write is required to succeed.
			p.log.Warn("pipeline file backup failed", "error", err)
		}
	}
}
