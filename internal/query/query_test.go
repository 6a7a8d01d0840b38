package query

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/store"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testEngine(t *testing.T) (*Engine, *store.SQLite) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "evolution.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewEngine(st), st
}

var seedSeq int

// seed inserts a change directly so tests control every timestamp.
func seed(t *testing.T, st *store.SQLite, mutate func(*domain.ChangeRecord)) *domain.ChangeRecord {
	t.Helper()
	seedSeq++
	rec := &domain.ChangeRecord{
		ChangeID:  fmt.Sprintf("01SEED%020d", seedSeq),
		Type:      domain.TypeFeature,
		Impact:    domain.ImpactMedium,
		Status:    domain.StatusProposed,
		Title:     "seeded",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, st.SaveChange(context.Background(), rec))
	return rec
}

func TestQueryPassesFilterThrough(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()

	seed(t, st, func(r *domain.ChangeRecord) { r.Type = domain.TypeBugFix; r.Author = "alice" })
	seed(t, st, func(r *domain.ChangeRecord) { r.Type = domain.TypeBugFix; r.Author = "bob" })
	seed(t, st, func(r *domain.ChangeRecord) { r.Type = domain.TypeFeature; r.Author = "alice" })

	out, err := e.Query(ctx, store.Filter{Type: domain.TypeBugFix, AuthorContains: "ali"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alice", out[0].Author)

	out, err = e.Query(ctx, store.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestStatisticsAggregates(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()

	seed(t, st, func(r *domain.ChangeRecord) {
		r.Status = domain.StatusImplemented
		r.Author = "alice"
		r.LinesAdded, r.LinesRemoved = 10, 4
		r.FilesModified = 2
		r.DurationHours = 2
	})
	seed(t, st, func(r *domain.ChangeRecord) {
		r.Type = domain.TypeBugFix
		r.Impact = domain.ImpactHigh
		r.Status = domain.StatusDeployed
		r.Author = "alice"
		r.LinesAdded = 5
		r.FilesAdded = 1
		r.DurationHours = 4
	})
	seed(t, st, func(r *domain.ChangeRecord) {
		r.Author = "bob"
	})

	stats, err := e.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalChanges)
	assert.Equal(t, 2, stats.CompletedChanges)
	assert.Equal(t, 15, stats.LinesAdded)
	assert.Equal(t, 4, stats.LinesRemoved)
	assert.Equal(t, 1, stats.FilesAdded)
	assert.Equal(t, 2, stats.FilesModified)
	assert.InDelta(t, 3.0, stats.AvgDurationHours, 0.001, "only changes with recorded effort count")

	assert.Equal(t, 2, stats.ByType[domain.TypeFeature])
	assert.Equal(t, 1, stats.ByType[domain.TypeBugFix])
	assert.Equal(t, 1, stats.ByStatus[domain.StatusDeployed])
	assert.Equal(t, 1, stats.ByImpact[domain.ImpactHigh])

	require.Len(t, stats.TopAuthors, 2)
	assert.Equal(t, AuthorCount{Author: "alice", Count: 2}, stats.TopAuthors[0])
	assert.False(t, stats.GeneratedAt.IsZero())
}

func TestStatisticsEmptyStore(t *testing.T) {
	e, _ := testEngine(t)

	stats, err := e.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChanges)
	assert.Zero(t, stats.AvgDurationHours)
	assert.Empty(t, stats.TopAuthors)
	assert.NotNil(t, stats.ByType)
}

func TestTimelineZeroFilledBuckets(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()

	now := time.Now()
	// Activity on three of the last seven days: today, 2 days ago (twice),
	// and 6 days ago. One change 10 days ago falls outside the window.
	seed(t, st, func(r *domain.ChangeRecord) { r.LinesAdded = 3 })
	seed(t, st, func(r *domain.ChangeRecord) { r.CreatedAt = now.AddDate(0, 0, -2) })
	seed(t, st, func(r *domain.ChangeRecord) {
		r.CreatedAt = now.AddDate(0, 0, -2)
		r.Type = domain.TypeBugFix
		r.Impact = domain.ImpactHigh
		r.LinesRemoved = 7
	})
	seed(t, st, func(r *domain.ChangeRecord) { r.CreatedAt = now.AddDate(0, 0, -6) })
	seed(t, st, func(r *domain.ChangeRecord) { r.CreatedAt = now.AddDate(0, 0, -10) })

	buckets, err := e.Timeline(ctx, 7)
	require.NoError(t, err)
	require.Len(t, buckets, 7, "exactly one bucket per day")

	assert.Equal(t, now.AddDate(0, 0, -6).Format("2006-01-02"), buckets[0].Date, "oldest first")
	assert.Equal(t, now.Format("2006-01-02"), buckets[6].Date, "today inclusive")

	assert.Equal(t, 1, buckets[0].Total)
	assert.Equal(t, 2, buckets[4].Total)
	assert.Equal(t, 1, buckets[6].Total)
	assert.Equal(t, 0, buckets[1].Total+buckets[2].Total+buckets[3].Total+buckets[5].Total)

	assert.Equal(t, 1, buckets[4].ByType[domain.TypeBugFix])
	assert.Equal(t, 1, buckets[4].ByImpact[domain.ImpactHigh])
	assert.Equal(t, 7, buckets[4].LinesRemoved)
	assert.Equal(t, 3, buckets[6].LinesAdded)

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	assert.Equal(t, 4, total, "out-of-window change excluded")
}

func TestTimelineClampsDays(t *testing.T) {
	e, st := testEngine(t)
	seed(t, st, nil)

	buckets, err := e.Timeline(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Total)
}

func TestRankAuthors(t *testing.T) {
	ranked := rankAuthors(map[string]int{
		"carol": 3, "alice": 5, "bob": 3, "dan": 1, "eve": 1, "frank": 1,
	}, 5)

	require.Len(t, ranked, 5)
	assert.Equal(t, "alice", ranked[0].Author)
	assert.Equal(t, "bob", ranked[1].Author, "ties break on name")
	assert.Equal(t, "carol", ranked[2].Author)
}
