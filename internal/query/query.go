// Package query answers filtered listings, aggregate statistics, and
// daily timelines over the change store. Aggregation happens here, in
// one pass over a full scan, so the store stays a plain row mapper.
package query

import (
	"context"
	"sort"
	"time"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/store"
)

// topAuthorCount bounds the most-active-authors list.
const topAuthorCount = 5

// Engine evaluates queries over a store.
type Engine struct {
	store *store.SQLite
	log   *logging.Logger
}

// NewEngine wires a query engine to the given store.
func NewEngine(st *store.SQLite) *Engine {
	return &Engine{store: st, log: logging.New("query")}
}

// Query returns changes matching the filter, newest first. All filter
// fields combine with AND; the zero filter lists the newest page.
func (e *Engine) Query(ctx context.Context, f store.Filter) ([]*domain.ChangeRecord, error) {
	start := time.Now()
	records, err := e.store.ListChanges(ctx, f)
	if err != nil {
		return nil, err
	}
	e.log.TimedEvent("query", start, map[string]interface{}{
		"results": len(records),
	})
	return records, nil
}

// AuthorCount pairs an author with their change count.
type AuthorCount struct {
	Author string `json:"author"`
	Count  int    `json:"count"`
}

// Statistics are aggregate figures over every stored change.
type Statistics struct {
	TotalChanges     int     `json:"total_changes"`
	CompletedChanges int     `json:"completed_changes"`
	LinesAdded       int     `json:"lines_added"`
	LinesRemoved     int     `json:"lines_removed"`
	FilesAdded       int     `json:"files_added"`
	FilesRemoved     int     `json:"files_removed"`
	FilesModified    int     `json:"files_modified"`
	AvgDurationHours float64 `json:"avg_duration_hours"`

	ByType   map[domain.ChangeType]int  `json:"by_type"`
	ByStatus map[domain.Status]int      `json:"by_status"`
	ByImpact map[domain.ImpactLevel]int `json:"by_impact"`

	TopAuthors []AuthorCount `json:"top_authors"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Statistics computes aggregates over the full change history.
func (e *Engine) Statistics(ctx context.Context) (*Statistics, error) {
	records, err := e.store.ListChanges(ctx, store.Filter{Limit: store.NoLimit})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByType:      make(map[domain.ChangeType]int),
		ByStatus:    make(map[domain.Status]int),
		ByImpact:    make(map[domain.ImpactLevel]int),
		GeneratedAt: time.Now(),
	}

	authors := make(map[string]int)
	var durationSum float64
	var durationN int

	for _, rec := range records {
		stats.TotalChanges++
		if rec.Status.Completed() {
			stats.CompletedChanges++
		}
		stats.LinesAdded += rec.LinesAdded
		stats.LinesRemoved += rec.LinesRemoved
		stats.FilesAdded += rec.FilesAdded
		stats.FilesRemoved += rec.FilesRemoved
		stats.FilesModified += rec.FilesModified

		stats.ByType[rec.Type]++
		stats.ByStatus[rec.Status]++
		stats.ByImpact[rec.Impact]++

		if rec.Author != "" {
			authors[rec.Author]++
		}
		if rec.DurationHours > 0 {
			durationSum += rec.DurationHours
			durationN++
		}
	}

	if durationN > 0 {
		stats.AvgDurationHours = durationSum / float64(durationN)
	}
	stats.TopAuthors = rankAuthors(authors, topAuthorCount)
	return stats, nil
}

// TimelineBucket holds one calendar day of activity.
type TimelineBucket struct {
	Date         string                     `json:"date"`
	Total        int                        `json:"total"`
	LinesAdded   int                        `json:"lines_added"`
	LinesRemoved int                        `json:"lines_removed"`
	ByType       map[domain.ChangeType]int  `json:"by_type,omitempty"`
	ByImpact     map[domain.ImpactLevel]int `json:"by_impact,omitempty"`
}

// Timeline returns one bucket per calendar day for the last days days,
// oldest first and today inclusive. Days without activity appear as
// zero buckets rather than gaps.
func (e *Engine) Timeline(ctx context.Context, days int) ([]TimelineBucket, error) {
	if days < 1 {
		days = 1
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	since := today.AddDate(0, 0, -(days - 1))

	records, err := e.store.ListChanges(ctx, store.Filter{Since: since, Limit: store.NoLimit})
	if err != nil {
		return nil, err
	}

	buckets := make([]TimelineBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		buckets[i] = TimelineBucket{
			Date:     date,
			ByType:   make(map[domain.ChangeType]int),
			ByImpact: make(map[domain.ImpactLevel]int),
		}
		index[date] = i
	}

	for _, rec := range records {
		i, ok := index[rec.CreatedAt.In(now.Location()).Format("2006-01-02")]
		if !ok {
			continue
		}
		b := &buckets[i]
		b.Total++
		b.LinesAdded += rec.LinesAdded
		b.LinesRemoved += rec.LinesRemoved
		b.ByType[rec.Type]++
		b.ByImpact[rec.Impact]++
	}
	return buckets, nil
}

// rankAuthors orders authors by descending count, name ascending on
// ties, truncated to n.
func rankAuthors(counts map[string]int, n int) []AuthorCount {
	ranked := make([]AuthorCount, 0, len(counts))
	for author, count := range counts {
		ranked = append(ranked, AuthorCount{Author: author, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Author < ranked[j].Author
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
