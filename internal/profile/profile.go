// Package profile samples process-level resource usage to bracket a
// change with before/after metrics. Sampling is deliberately
// synchronous and bounded; determinism is preferred over zero latency.
package profile

import (
	"runtime"
	"time"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
)

// defaultWindow is the fixed sampling window used when no workload is
// supplied. Kept well under the one-second bound.
const defaultWindow = 200 * time.Millisecond

// Profiler produces point-in-time resource samples.
type Profiler struct {
	window time.Duration
	log    *logging.Logger
}

// New creates a profiler with the default sampling window.
func New() *Profiler {
	return &Profiler{
		window: defaultWindow,
		log:    logging.New("profile"),
	}
}

// NewWithWindow creates a profiler with an explicit window, capped at
// one second.
func NewWithWindow(window time.Duration) *Profiler {
	if window <= 0 || window > time.Second {
		window = defaultWindow
	}
	return &Profiler{
		window: window,
		log:    logging.New("profile"),
	}
}

// Measure samples CPU and memory across a short window. When workload
// is non-nil its runtime replaces the fixed window, so the sample
// brackets the work itself. Sampling failures are non-fatal: fields
// the platform cannot supply stay zero.
func (p *Profiler) Measure(workload func()) *domain.PerformanceMetrics {
	m := &domain.PerformanceMetrics{SampledAt: time.Now()}

	cpu0, cpuOK := cpuTicks()
	io0, ioOK := ioCounters()
	net0, netOK := netCounters()

	start := time.Now()
	if workload != nil {
		workload()
	} else {
		time.Sleep(p.window)
	}
	elapsed := time.Since(start)
	m.ExecutionMs = float64(elapsed.Microseconds()) / 1000.0
	m.ResponseMs = m.ExecutionMs

	if cpuOK {
		if cpu1, ok := cpuTicks(); ok && elapsed > 0 {
			usedSec := float64(cpu1-cpu0) / clockTicksPerSec
			m.CPUPercent = usedSec / elapsed.Seconds() * 100
		}
	} else {
		p.log.Debug("cpu_unavailable", nil)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.MemoryBytes = int64(ms.Alloc)

	if ioOK {
		if io1, ok := ioCounters(); ok {
			m.DiskReadBytes = io1.readBytes - io0.readBytes
			m.DiskWriteBytes = io1.writeBytes - io0.writeBytes
		}
	}
	if netOK {
		if net1, ok := netCounters(); ok {
			m.NetRxBytes = net1.rxBytes - net0.rxBytes
			m.NetTxBytes = net1.txBytes - net0.txBytes
		}
	}

	m.BenchmarkScore = Score(m.CPUPercent, m.MemoryBytes)
	return m
}

// Score is the composite benchmark score: a stateless, monotonic
// function of CPU and memory where lower resource use yields a higher
// score. The ceiling is 100.
func Score(cpuPercent float64, memoryBytes int64) float64 {
	if cpuPercent < 0 {
		cpuPercent = 0
	}
	if memoryBytes < 0 {
		memoryBytes = 0
	}
	memMB := float64(memoryBytes) / (1 << 20)
	cpuScore := 100 / (1 + cpuPercent/100)
	memScore := 100 / (1 + memMB/512)
	return cpuScore*0.5 + memScore*0.5
}

// Impact computes percentage and absolute deltas per metric between
// two samples. Pure function; metrics with a zero baseline are
// omitted rather than divided.
func Impact(before, after *domain.PerformanceMetrics) domain.PerformanceImpact {
	impact := make(domain.PerformanceImpact)
	if before == nil || after == nil {
		return impact
	}

	pairs := []struct {
		name          string
		base, current float64
	}{
		{"execution_ms", before.ExecutionMs, after.ExecutionMs},
		{"memory_bytes", float64(before.MemoryBytes), float64(after.MemoryBytes)},
		{"cpu_percent", before.CPUPercent, after.CPUPercent},
		{"disk_read_bytes", float64(before.DiskReadBytes), float64(after.DiskReadBytes)},
		{"disk_write_bytes", float64(before.DiskWriteBytes), float64(after.DiskWriteBytes)},
		{"net_rx_bytes", float64(before.NetRxBytes), float64(after.NetRxBytes)},
		{"net_tx_bytes", float64(before.NetTxBytes), float64(after.NetTxBytes)},
		{"response_ms", before.ResponseMs, after.ResponseMs},
		{"throughput", before.Throughput, after.Throughput},
		{"error_rate", before.ErrorRate, after.ErrorRate},
		{"benchmark_score", before.BenchmarkScore, after.BenchmarkScore},
	}

	for _, p := range pairs {
		if p.base == 0 {
			continue
		}
		delta := p.current - p.base
		impact[p.name] = domain.Delta{
			Absolute: delta,
			Percent:  delta / p.base * 100,
		}
	}
	return impact
}
