// Package storage implements the sharded GORM/MySQL device pool (C6).
// Grounded on the teacher's internal/adapters/storage/sqlite.go: same
// GORM-model-plus-converter shape, same opentelemetry tracing plugin,
// same chunked CreateInBatches-with-OnConflict upsert pattern, now
// keyed on device_id instead of a WiFi MAC and partitioned across N
// shards instead of a single table.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sync/atomic"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/mwzzzh/devicegen/internal/core/domain"
	"github.com/mwzzzh/devicegen/internal/core/ports"
)

// DeviceModel is the GORM model backing device_pool_devices.
type DeviceModel struct {
	ShardID    int       `gorm:"column:shard_id;index:idx_shard_use_count,priority:1"`
	DeviceID   string    `gorm:"column:device_id;primaryKey"`
	DeviceJSON string    `gorm:"column:device_json;type:text"`
	UseCount   int64     `gorm:"column:use_count;default:0;index:idx_shard_use_count,priority:2"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (DeviceModel) TableName() string { return "device_pool_devices" }

// ShardWriter implements ports.ShardWriter against a single MySQL table
// partitioned logically by ShardID. shardCount is the configured N in
// shard(device_id) = CRC32(device_id) mod N.
type ShardWriter struct {
	db         *gorm.DB
	shardCount int
	// forcedShard is -1 when unset. While set, Upsert ignores each
	// item's CRC32(device_id) mod N shard and writes every row to this shard -- the
	// fill-loop controller's way of steering a whole batch at the
	// single shard it picked.
	forcedShard atomic.Int64
}

// NewShardWriter opens dsn, migrates device_pool_devices, and instruments
// the connection with the opentelemetry tracing plugin.
func NewShardWriter(dsn string, shardCount int) (*ShardWriter, error) {
	if shardCount <= 0 {
		shardCount = 1
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&DeviceModel{}); err != nil {
		return nil, fmt.Errorf("migrate device_pool_devices: %w", err)
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}
	w := &ShardWriter{db: db, shardCount: shardCount}
	w.forcedShard.Store(-1)
	return w, nil
}

// Shard computes CRC32(deviceID) mod N. Deterministic and idempotent:
// two calls with the same deviceID always agree.
func Shard(deviceID string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(deviceID)) % uint32(n))
}

func (w *ShardWriter) ShardCount() int { return w.shardCount }

// SetForcedShard pins every subsequent Upsert to shardID.
func (w *ShardWriter) SetForcedShard(shardID int) { w.forcedShard.Store(int64(shardID)) }

// ClearForcedShard reverts Upsert to CRC32(device_id) mod N per item.
func (w *ShardWriter) ClearForcedShard() { w.forcedShard.Store(-1) }

// Count returns the number of rows currently in shardID.
func (w *ShardWriter) Count(ctx context.Context, shardID int) (int64, error) {
	var n int64
	err := w.db.WithContext(ctx).Model(&DeviceModel{}).Where("shard_id = ?", shardID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count shard %d: %w", shardID, err)
	}
	return n, nil
}

// Upsert writes items in a single chunked, transactional batch. Each
// item's shard is Shard(device_id, N) unless a forced shard is set (see
// SetForcedShard), in which case every row in the batch lands there.
func (w *ShardWriter) Upsert(ctx context.Context, items []domain.WriteBatchItem) error {
	if len(items) == 0 {
		return nil
	}
	forced := w.forcedShard.Load()
	models := make([]DeviceModel, 0, len(items))
	for _, it := range items {
		blob, err := json.Marshal(it.Device)
		if err != nil {
			return fmt.Errorf("marshal provisioned device %s: %w", it.Device.DeviceID, err)
		}
		shardID := Shard(it.Device.DeviceID, w.shardCount)
		if forced >= 0 {
			shardID = int(forced)
		}
		models = append(models, DeviceModel{
			ShardID:    shardID,
			DeviceID:   it.Device.DeviceID,
			DeviceJSON: string(blob),
			UpdatedAt:  time.Now(),
		})
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_json", "updated_at"}),
		}).CreateInBatches(models, 100).Error
	})
}

// Evict deletes the top-n rows of shardID ordered by use_count DESC.
// Used only by bulk-import/evict tooling, never by the fill-loop.
func (w *ShardWriter) Evict(ctx context.Context, shardID int, n int) error {
	if n <= 0 {
		return nil
	}
	var victims []string
	err := w.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("shard_id = ?", shardID).
		Order("use_count DESC").
		Limit(n).
		Pluck("device_id", &victims).Error
	if err != nil {
		return fmt.Errorf("select evict candidates shard %d: %w", shardID, err)
	}
	if len(victims) == 0 {
		return nil
	}
	return w.db.WithContext(ctx).Where("device_id IN ?", victims).Delete(&DeviceModel{}).Error
}

// Close releases the underlying *sql.DB connection pool.
func (w *ShardWriter) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ports.ShardWriter = (*ShardWriter)(nil)
