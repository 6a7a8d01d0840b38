// Package metrics keeps in-process operation counters for the running
// session. Counters are process-local and reset on restart; durable
// history lives in the store.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counters holds session counters for evotrail operations.
type Counters struct {
	ChangesStarted   atomic.Int64
	ChangesCompleted atomic.Int64
	SnapshotsTaken   atomic.Int64
	DiffsComputed    atomic.Int64
	QueriesRun       atomic.Int64
	ReportsWritten   atomic.Int64
	StoreErrors      atomic.Int64

	// Timing (last operation duration in ms)
	LastCompleteDurationMs atomic.Int64
	LastReportDurationMs   atomic.Int64

	startTime time.Time
}

var (
	global     *Counters
	globalOnce sync.Once
)

// Global returns the process-wide counter instance.
func Global() *Counters {
	globalOnce.Do(func() {
		global = &Counters{
			startTime: time.Now(),
		}
	})
	return global
}

// RecordStart records a change start attempt.
func (c *Counters) RecordStart(success bool) {
	c.ChangesStarted.Add(1)
	if !success {
		c.StoreErrors.Add(1)
	}
}

// RecordComplete records a change completion attempt.
func (c *Counters) RecordComplete(success bool, durationMs int64) {
	c.ChangesCompleted.Add(1)
	if !success {
		c.StoreErrors.Add(1)
	}
	c.LastCompleteDurationMs.Store(durationMs)
}

// RecordSnapshots records a batch of snapshots taken.
func (c *Counters) RecordSnapshots(n int) {
	c.SnapshotsTaken.Add(int64(n))
}

// RecordDiffs records diffs computed at completion.
func (c *Counters) RecordDiffs(n int) {
	c.DiffsComputed.Add(int64(n))
}

// RecordQuery records a query evaluation.
func (c *Counters) RecordQuery() {
	c.QueriesRun.Add(1)
}

// RecordReport records a report render attempt.
func (c *Counters) RecordReport(success bool, durationMs int64) {
	c.ReportsWritten.Add(1)
	if !success {
		c.StoreErrors.Add(1)
	}
	c.LastReportDurationMs.Store(durationMs)
}

// UptimeSeconds returns seconds since the counters were created.
func (c *Counters) UptimeSeconds() float64 {
	return time.Since(c.startTime).Seconds()
}

// Snapshot returns a point-in-time view keyed by counter name, in the
// shape the status renderer consumes.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"changes_started":   c.ChangesStarted.Load(),
		"changes_completed": c.ChangesCompleted.Load(),
		"snapshots_taken":   c.SnapshotsTaken.Load(),
		"diffs_computed":    c.DiffsComputed.Load(),
		"queries_run":       c.QueriesRun.Load(),
		"reports_written":   c.ReportsWritten.Load(),
		"store_errors":      c.StoreErrors.Load(),
	}
}
