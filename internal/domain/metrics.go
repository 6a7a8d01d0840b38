package domain

import "time"

// Metric phases. Two samples bracket a change.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// PerformanceMetrics is a point-in-time resource sample. Network and
// disk counters are best-effort and zero when the platform does not
// expose them.
type PerformanceMetrics struct {
	ExecutionMs    float64   `json:"execution_ms"`
	MemoryBytes    int64     `json:"memory_bytes"`
	CPUPercent     float64   `json:"cpu_percent"`
	DiskReadBytes  int64     `json:"disk_read_bytes"`
	DiskWriteBytes int64     `json:"disk_write_bytes"`
	NetRxBytes     int64     `json:"net_rx_bytes"`
	NetTxBytes     int64     `json:"net_tx_bytes"`
	ResponseMs     float64   `json:"response_ms"`
	Throughput     float64   `json:"throughput"`
	ErrorRate      float64   `json:"error_rate"`
	BenchmarkScore float64   `json:"benchmark_score"`
	SampledAt      time.Time `json:"sampled_at"`
}

// Delta is one metric's before/after movement.
type Delta struct {
	Percent  float64 `json:"percent"`
	Absolute float64 `json:"absolute"`
}

// PerformanceImpact maps metric names to their deltas. Metrics with a
// zero baseline are omitted rather than divided.
type PerformanceImpact map[string]Delta
