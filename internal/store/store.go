// Package store provides durable persistence for change records,
// snapshots, diffs, and performance samples. It exposes record-level
// CRUD plus filtered scans; all business logic (diffing, profiling,
// aggregation) lives above it.
package store

import (
	"context"
	"time"

	"github.com/joss/evotrail/internal/domain"
)

// Store is the minimal interface the persistence layer must implement.
type Store interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// Filter defines query parameters for listing changes. All fields are
// independently optional and combined with logical AND. Results are
// ordered newest-first.
type Filter struct {
	Type           domain.ChangeType  // Exact change type
	Status         domain.Status      // Exact status
	AuthorContains string             // Author substring match
	Impact         domain.ImpactLevel // Exact impact level
	Tag            string             // Tag membership
	Since          time.Time          // created_at >= Since
	Until          time.Time          // created_at <= Until
	Limit          int                // Maximum results (0 = default, NoLimit = all)
}

// DefaultLimit bounds unfiltered scans.
const DefaultLimit = 100

// NoLimit disables the result cap for full-table aggregation scans.
const NoLimit = -1

// WithLimit returns a copy of the filter with a new limit.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// WithWindow returns a copy of the filter bounded to a time range.
func (f Filter) WithWindow(since, until time.Time) Filter {
	f.Since = since
	f.Until = until
	return f
}
