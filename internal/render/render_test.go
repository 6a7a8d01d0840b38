package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/query"
)

func capture() (*bytes.Buffer, *Changes) {
	var buf bytes.Buffer
	return &buf, NewChangesTo(NewWriter(&buf), false)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exactly10!", Truncate("exactly10!", 10))
	assert.Equal(t, "this is...", Truncate("this is too long", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestTruncateRuneBoundary(t *testing.T) {
	// é is two bytes; cuts that land mid-rune back off.
	assert.Equal(t, "éé...", Truncate("ééééé", 8))
	assert.Equal(t, "é", Truncate("éé", 3))
	assert.True(t, utf8.ValidString(Truncate("ééééé", 7)))
}

func TestStatusIcons(t *testing.T) {
	assert.Equal(t, "✓", StatusIcon(domain.StatusTested))
	assert.Equal(t, "✗", StatusIcon(domain.StatusFailed))
	assert.Equal(t, "•", StatusIcon(domain.Status("bogus")))
	assert.Equal(t, "◉", ImpactIcon(domain.ImpactCritical))
	assert.Equal(t, "✓", BoolIcon(true))
}

func TestListEmpty(t *testing.T) {
	buf, c := capture()
	c.List(nil)
	assert.Contains(t, buf.String(), "No changes found")
}

func TestListFormatsLines(t *testing.T) {
	buf, c := capture()
	c.List([]*domain.ChangeRecord{{
		ChangeID:    "01TESTCHANGE",
		Type:        domain.TypeBugFix,
		Impact:      domain.ImpactHigh,
		Status:      domain.StatusImplemented,
		Title:       "fix off-by-one",
		Author:      "alice",
		Description: "loop bound excluded the last element",
		CreatedAt:   time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
	}})
	out := buf.String()

	assert.Contains(t, out, "CHANGE LOG (1 changes)")
	assert.Contains(t, out, "[2026-08-01 09:30] 01TESTCHANGE fix off-by-one")
	assert.Contains(t, out, "(bug_fix/high)")
	assert.Contains(t, out, "by alice")
	assert.Contains(t, out, "└─ loop bound excluded")
}

func TestDetailSections(t *testing.T) {
	buf, c := capture()
	c.Detail(&domain.ChangeRecord{
		ChangeID:      "01DETAIL",
		Type:          domain.TypeRefactor,
		Impact:        domain.ImpactLow,
		Status:        domain.StatusTested,
		Title:         "extract helper",
		AffectedFiles: []string{"a.go", "b.go"},
		FilesModified: 2,
		LinesAdded:    10,
		LinesRemoved:  3,
		DependsOn:     []string{"01OTHER"},
		PerformanceImpact: domain.PerformanceImpact{
			"memory_bytes": {Percent: -4.2, Absolute: -1024},
		},
		TestResults: "all green",
		CreatedAt:   time.Now(),
		CompletedAt: time.Now(),
	})
	out := buf.String()

	assert.Contains(t, out, "CHANGE 01DETAIL")
	assert.Contains(t, out, "Refactor")
	assert.Contains(t, out, "FILES:")
	assert.Contains(t, out, "0 added, 0 removed, 2 modified (+10/-3 lines)")
	assert.Contains(t, out, "depends on 01OTHER")
	assert.Contains(t, out, "PERFORMANCE IMPACT:")
	assert.Contains(t, out, "memory_bytes")
	assert.Contains(t, out, "all green")
}

func TestStatsBreakdownsSorted(t *testing.T) {
	buf, c := capture()
	c.Stats(&query.Statistics{
		TotalChanges:     3,
		CompletedChanges: 2,
		LinesAdded:       15,
		ByType: map[domain.ChangeType]int{
			domain.TypeFeature: 2,
			domain.TypeBugFix:  1,
		},
		ByStatus: map[domain.Status]int{domain.StatusProposed: 3},
		TopAuthors: []query.AuthorCount{
			{Author: "alice", Count: 2},
		},
	})
	out := buf.String()

	assert.Contains(t, out, "Total changes:  3")
	assert.Less(t, strings.Index(out, "bug_fix"), strings.Index(out, "feature"),
		"type breakdown is alphabetical")
	assert.Contains(t, out, "TOP AUTHORS:")
}

func TestTimelineBars(t *testing.T) {
	buf, c := capture()
	c.Timeline([]query.TimelineBucket{
		{Date: "2026-08-27", Total: 0},
		{Date: "2026-08-28", Total: 2},
		{Date: "2026-08-29", Total: 4},
	})
	out := buf.String()

	assert.Contains(t, out, "TIMELINE (3 days)")
	assert.Contains(t, out, "2026-08-27   0")
	assert.Contains(t, out, "2026-08-29   4 ████████████████████")
	assert.NotContains(t, out, "2026-08-27   0 █")
}

func TestStatusOutput(t *testing.T) {
	buf, c := capture()
	c.Status(true, "/tmp/evolution.db", 7, map[string]int64{
		"changes_started": 2,
		"snapshots_taken": 5,
	})
	out := buf.String()

	assert.Contains(t, out, "Store:   connected")
	assert.Contains(t, out, "Changes: 7")
	assert.Contains(t, out, "SESSION COUNTERS:")
	assert.Contains(t, out, "changes_started")
}
