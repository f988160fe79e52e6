// Package filebackup implements the optional secondary device backup
// (§4.5 "Backup file sharding"): one append-only, line-per-record file
// per file-shard bucket, opened once and flushed per batch. It exists
// purely so an operator can recover provisioned devices if the DB is
// unreachable; its failures are never fatal and never retried.
package filebackup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwzzzh/devicegen/internal/core/domain"
)

// Writer implements pipeline.Backup over a fixed number of append-only
// files named "<prefix>_<shard>.txt" under dir.
type Writer struct {
	mu      sync.Mutex
	dir     string
	prefix  string
	shards  int
	fsync   bool
	handles map[int]*os.File
}

// New opens (lazily, on first write) up to shards files under dir named
// "<prefix>_<n>.txt". fsync controls whether each batch is flushed to
// stable storage before returning.
func New(dir, prefix string, shards int, fsync bool) (*Writer, error) {
	if shards <= 0 {
		shards = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %s: %w", dir, err)
	}
	return &Writer{
		dir:     dir,
		prefix:  prefix,
		shards:  shards,
		fsync:   fsync,
		handles: make(map[int]*os.File),
	}, nil
}

// Write appends one JSON line per item to the file bucket
// task_id mod file_shards selects.
func (w *Writer) Write(items []domain.WriteBatchItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	touched := make(map[int]struct{})
	for _, it := range items {
		bucket := it.ShardKey % w.shards
		if bucket < 0 {
			bucket += w.shards
		}
		f, err := w.fileFor(bucket)
		if err != nil {
			return err
		}
		line, err := json.Marshal(it.Device)
		if err != nil {
			return fmt.Errorf("marshal backup record: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write backup bucket %d: %w", bucket, err)
		}
		touched[bucket] = struct{}{}
	}
	if w.fsync {
		for bucket := range touched {
			if f, ok := w.handles[bucket]; ok {
				_ = f.Sync()
			}
		}
	}
	return nil
}

func (w *Writer) fileFor(bucket int) (*os.File, error) {
	if f, ok := w.handles[bucket]; ok {
		return f, nil
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%d.txt", w.prefix, bucket))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backup file %s: %w", path, err)
	}
	w.handles[bucket] = f
	return f, nil
}

// Close flushes and closes every file handle opened so far.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for bucket, f := range w.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close backup bucket %d: %w", bucket, err)
		}
	}
	w.handles = make(map[int]*os.File)
	return firstErr
}
