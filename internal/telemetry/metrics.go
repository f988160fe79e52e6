package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RegistrationAttemptsTotal counts handshake attempts by outcome.
	RegistrationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "registration_attempts_total",
			Help:      "Total number of registration handshake attempts",
		},
		[]string{"outcome"},
	)

	// StageFailuresTotal counts handshake failures by stage.
	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "stage_failures_total",
			Help:      "Total number of registration stage failures",
		},
		[]string{"stage"},
	)

	// PipelineFlushesTotal counts write-pipeline flush attempts by outcome.
	PipelineFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "pipeline_flushes_total",
			Help:      "Total number of write pipeline flush attempts",
		},
		[]string{"outcome"},
	)

	// PipelineFlushBatchSize observes the size of each flushed batch.
	PipelineFlushBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "devicegen",
			Name:      "pipeline_flush_batch_size",
			Help:      "Size of each write pipeline batch flush",
			Buckets:   prometheus.LinearBuckets(5, 10, 10),
		},
	)

	// FillLoopIterationsTotal counts fill-loop iterations.
	FillLoopIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "fillloop_iterations_total",
			Help:      "Total number of fill-loop iterations executed",
		},
	)

	// FillLoopDevicesFilled counts devices the fill-loop has filled, by shard.
	FillLoopDevicesFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "fillloop_devices_filled_total",
			Help:      "Total number of devices filled per shard",
		},
		[]string{"shard_id"},
	)

	// SessionsRecycledTotal counts session-pool recycle events.
	SessionsRecycledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devicegen",
			Name:      "sessions_recycled_total",
			Help:      "Total number of session holders recycled after exceeding session_max_requests",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(RegistrationAttemptsTotal)
		prometheus.DefaultRegisterer.Register(StageFailuresTotal)
		prometheus.DefaultRegisterer.Register(PipelineFlushesTotal)
		prometheus.DefaultRegisterer.Register(PipelineFlushBatchSize)
		prometheus.DefaultRegisterer.Register(FillLoopIterationsTotal)
		prometheus.DefaultRegisterer.Register(FillLoopDevicesFilled)
		prometheus.DefaultRegisterer.Register(SessionsRecycledTotal)
	})
}
