// Package config loads process-wide configuration from flags and
// environment variables. Flags take precedence; every flag falls back
// to its matching env var, and every env var falls back to a default.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/mwzzzh/devicegen/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	// Worker pool / registration concurrency.
	GenConcurrency    int
	GenThreadPoolSize int

	// Batch sizing.
	TasksPerBatch int
	MaxGenerate   int

	// Fill-loop (C8).
	PollMode        bool
	PollOnce        bool
	PollIntervalSec int
	PollBatchMax    int
	PollMaxTotal    int

	// DB connectivity and sharding (C6).
	DBHost           string
	DBPort           int
	DBUser           string
	DBPassword       string
	DBName           string
	DevicePoolTable  string
	DevicePoolShards int
	DBMaxDevices     int
	DeviceIDField    string

	// Session-pool policy (C3).
	Keepalive          bool
	SessionPoolSize    int
	SessionMaxRequests int
	Impersonate        string

	// File-backup policy (A4).
	SaveToFile       bool
	DeviceBackupDir  string
	DeviceFilePrefix string
	PerFileMax       int
	DeviceFileShards int
	FileFsync        bool

	// Proxy list (A5).
	ProxyListPath string

	// Signing secret fed to the header-signer adapter.
	SigningSecret string

	// Structured error log (second slog destination, Error level only).
	DeviceErrorLog string
}

// Load parses command line flags and environment variables to populate
// Config. Flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	flag.IntVar(&cfg.GenConcurrency, "gen-concurrency", getEnvInt("GEN_CONCURRENCY", 200), "max in-flight registration tasks")
	flag.IntVar(&cfg.GenThreadPoolSize, "gen-thread-pool-size", getEnvInt("GEN_THREAD_POOL_SIZE", 0), "CPU-offload worker count (0 = auto)")

	flag.IntVar(&cfg.TasksPerBatch, "tasks", getEnvInt("MWZZZH_TASKS", 100), "tasks per batch")
	flag.IntVar(&cfg.MaxGenerate, "max-generate", getEnvInt("MAX_GENERATE", 0), "max devices generated per process (0 = unlimited)")

	flag.BoolVar(&cfg.PollMode, "poll-mode", getEnvBool("MWZZZH_POLL_MODE", true), "run as a fill-loop instead of a single batch")
	flag.BoolVar(&cfg.PollOnce, "poll-once", getEnvBool("MWZZZH_POLL_ONCE", false), "exit after one fill-loop iteration")
	flag.IntVar(&cfg.PollIntervalSec, "poll-interval-sec", getEnvInt("MWZZZH_POLL_INTERVAL_SEC", 5), "seconds between fill-loop iterations")
	flag.IntVar(&cfg.PollBatchMax, "poll-batch-max", getEnvInt("MWZZZH_POLL_BATCH_MAX", 50), "max tasks launched per fill-loop iteration")
	flag.IntVar(&cfg.PollMaxTotal, "poll-max-total", getEnvInt("MWZZZH_POLL_MAX_TOTAL", 0), "hard cap on total devices filled (0 = unlimited)")

	flag.StringVar(&cfg.DBHost, "db-host", getEnv("DB_HOST", "127.0.0.1"), "database host")
	flag.IntVar(&cfg.DBPort, "db-port", getEnvInt("DB_PORT", 3306), "database port")
	flag.StringVar(&cfg.DBUser, "db-user", getEnv("DB_USER", "root"), "database user")
	flag.StringVar(&cfg.DBPassword, "db-password", getEnv("DB_PASSWORD", ""), "database password")
	flag.StringVar(&cfg.DBName, "db-name", getEnv("DB_NAME", "devicegen"), "database name")
	flag.StringVar(&cfg.DevicePoolTable, "db-device-pool-table", getEnv("DB_DEVICE_POOL_TABLE", "device_pool_devices"), "device pool table name")
	flag.IntVar(&cfg.DevicePoolShards, "db-device-pool-shards", getEnvInt("DB_DEVICE_POOL_SHARDS", 16), "number of logical shards")
	flag.IntVar(&cfg.DBMaxDevices, "db-max-devices", getEnvInt("DB_MAX_DEVICES", 0), "per-shard target device count")
	flag.StringVar(&cfg.DeviceIDField, "device-id-field", getEnv("DEVICE_ID_FIELD", "device_id"), "column holding the device identifier")

	flag.BoolVar(&cfg.Keepalive, "keepalive", getEnvBool("MWZZZH_KEEPALIVE", true), "reuse HTTP connections across stages")
	flag.IntVar(&cfg.SessionPoolSize, "session-pool-size", getEnvInt("MWZZZH_SESSION_POOL_SIZE", 50), "number of pooled session holders")
	flag.IntVar(&cfg.SessionMaxRequests, "session-max-requests", getEnvInt("MWZZZH_SESSION_MAX_REQUESTS", 200), "requests served before a session is recycled")
	flag.StringVar(&cfg.Impersonate, "impersonate", getEnv("MWZZZH_IMPERSONATE", ""), "browser-impersonation profile for the transport")

	flag.BoolVar(&cfg.SaveToFile, "save-to-file", getEnvBool("SAVE_TO_FILE", true), "also back up provisioned devices to sharded files")
	flag.StringVar(&cfg.DeviceBackupDir, "device-backup-dir", getEnv("DEVICE_BACKUP_DIR", "./device_backups"), "directory for file backup")
	flag.StringVar(&cfg.DeviceFilePrefix, "device-file-prefix", getEnv("DEVICE_FILE_PREFIX", "devices"), "file backup filename prefix")
	flag.IntVar(&cfg.PerFileMax, "per-file-max", getEnvInt("PER_FILE_MAX", 0), "max records per backup file (0 = unlimited)")
	flag.IntVar(&cfg.DeviceFileShards, "device-file-shards", getEnvInt("DEVICE_FILE_SHARDS", 4), "number of backup file buckets")
	flag.BoolVar(&cfg.FileFsync, "file-fsync", getEnvBool("MWZZZH_FILE_FSYNC", false), "fsync the backup file after every write")

	flag.StringVar(&cfg.ProxyListPath, "proxy-list", getEnv("PROXY_LIST_PATH", "proxies.txt"), "path to the proxy list file")
	flag.StringVar(&cfg.SigningSecret, "signing-secret", getEnv("DEVICEGEN_SIGNING_SECRET", ""), "secret fed to the header-signer key derivation")

	flag.StringVar(&cfg.DeviceErrorLog, "device-error-log", getEnv("DEVICE_ERROR_LOG", "devicegen-errors.log"), "path to the structured error log file")

	flag.Parse()

	if cfg.DevicePoolShards <= 0 {
		return nil, &domain.ConfigError{Msg: "db-device-pool-shards must be positive"}
	}
	if cfg.DeviceFileShards <= 0 {
		return nil, &domain.ConfigError{Msg: "device-file-shards must be positive"}
	}
	if cfg.GenConcurrency <= 0 {
		return nil, &domain.ConfigError{Msg: "gen-concurrency must be positive"}
	}

	return cfg, nil
}

// DSN builds the GORM/MySQL data source name from the DB_* fields.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
