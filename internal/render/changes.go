package render

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/query"
)

// Changes renders change-domain output. In pretty mode it colors
// status and impact markers; otherwise output stays plain for piping.
type Changes struct {
	*Writer
	pretty bool
}

// NewChanges creates a Changes renderer writing to stdout.
func NewChanges(pretty bool) *Changes {
	return &Changes{Writer: Stdout(), pretty: pretty}
}

// NewChangesTo creates a Changes renderer on an arbitrary writer.
func NewChangesTo(w *Writer, pretty bool) *Changes {
	return &Changes{Writer: w, pretty: pretty}
}

// List renders a change listing, newest first.
func (c *Changes) List(records []*domain.ChangeRecord) {
	if len(records) == 0 {
		c.Empty("No changes found")
		return
	}

	c.Header("CHANGE LOG (%d changes)", len(records))

	for _, rec := range records {
		c.Println("%s", c.formatChangeLine(rec))
		if rec.Description != "" {
			c.Nested("%s", Truncate(rec.Description, 70))
		}
	}
}

// Detail renders one change in full.
func (c *Changes) Detail(rec *domain.ChangeRecord) {
	c.Header("CHANGE %s", rec.ChangeID)

	c.Item("Title:    %s", rec.Title)
	c.Item("Type:     %s", rec.Type.Label())
	c.Item("Impact:   %s %s", ImpactIcon(rec.Impact), rec.Impact)
	c.Item("Status:   %s %s", c.statusIcon(rec.Status), rec.Status)
	if rec.Author != "" {
		c.Item("Author:   %s", rec.Author)
	}
	c.Item("Created:  %s", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if !rec.CompletedAt.IsZero() {
		c.Item("Completed: %s", rec.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if rec.Description != "" {
		c.Item("Description: %s", rec.Description)
	}
	if rec.Rationale != "" {
		c.Item("Rationale: %s", rec.Rationale)
	}
	if rec.DurationHours > 0 {
		c.Item("Duration: %.1fh (estimate %.1fh)", rec.DurationHours, rec.EffortEstimateHours)
	}

	if len(rec.AffectedFiles) > 0 {
		c.Section("FILES")
		for _, path := range rec.AffectedFiles {
			c.Item("%s", path)
		}
		if rec.Status.Completed() {
			c.Item("%d added, %d removed, %d modified (+%d/-%d lines)",
				rec.FilesAdded, rec.FilesRemoved, rec.FilesModified,
				rec.LinesAdded, rec.LinesRemoved)
		}
	}

	if len(rec.DependsOn) > 0 || len(rec.RelatedChanges) > 0 {
		c.Section("RELATIONS")
		for _, id := range rec.DependsOn {
			c.Item("depends on %s", id)
		}
		for _, id := range rec.RelatedChanges {
			c.Item("related to %s", id)
		}
	}

	if len(rec.PerformanceImpact) > 0 {
		c.Section("PERFORMANCE IMPACT")
		names := make([]string, 0, len(rec.PerformanceImpact))
		for name := range rec.PerformanceImpact {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d := rec.PerformanceImpact[name]
			c.Item("%-18s %+.1f%% (%+.2f)", name+":", d.Percent, d.Absolute)
		}
	}

	if rec.TestResults != "" {
		c.Section("TESTS")
		c.Item("%s", rec.TestResults)
	}
	if rec.DeploymentNotes != "" {
		c.Section("DEPLOYMENT")
		c.Item("%s", rec.DeploymentNotes)
	}
}

// Diffs renders the stored diffs of a change.
func (c *Changes) Diffs(diffs []domain.Diff) {
	if len(diffs) == 0 {
		c.Empty("No diffs recorded")
		return
	}
	for _, d := range diffs {
		c.Println("%s (+%d/-%d)", d.Path, d.LinesAdded, d.LinesRemoved)
		c.Println("%s", d.Text)
	}
}

// Stats renders aggregate statistics.
func (c *Changes) Stats(stats *query.Statistics) {
	c.Header("EVOLUTION STATISTICS")

	c.Item("Total changes:  %d", stats.TotalChanges)
	c.Item("Completed:      %d", stats.CompletedChanges)
	c.Item("Lines:          +%d / -%d", stats.LinesAdded, stats.LinesRemoved)
	c.Item("Files:          %d added, %d removed, %d modified",
		stats.FilesAdded, stats.FilesRemoved, stats.FilesModified)
	if stats.AvgDurationHours > 0 {
		c.Item("Avg duration:   %.1fh", stats.AvgDurationHours)
	}

	if len(stats.ByType) > 0 {
		c.Section("BY TYPE")
		for _, name := range sortedKeys(stats.ByType) {
			c.Item("%-16s %d", name+":", stats.ByType[domain.ChangeType(name)])
		}
	}
	if len(stats.ByStatus) > 0 {
		c.Section("BY STATUS")
		for _, name := range sortedKeys(stats.ByStatus) {
			c.Item("%-16s %d", name+":", stats.ByStatus[domain.Status(name)])
		}
	}
	if len(stats.ByImpact) > 0 {
		c.Section("BY IMPACT")
		for _, name := range sortedKeys(stats.ByImpact) {
			c.Item("%-16s %d", name+":", stats.ByImpact[domain.ImpactLevel(name)])
		}
	}

	if len(stats.TopAuthors) > 0 {
		c.Section("TOP AUTHORS")
		for _, a := range stats.TopAuthors {
			c.Item("%-16s %d", a.Author+":", a.Count)
		}
	}
}

// Timeline renders daily activity buckets as a bar sketch.
func (c *Changes) Timeline(buckets []query.TimelineBucket) {
	c.Header("TIMELINE (%d days)", len(buckets))

	peak := 0
	for _, b := range buckets {
		if b.Total > peak {
			peak = b.Total
		}
	}

	for _, b := range buckets {
		bar := ""
		if peak > 0 {
			width := b.Total * 20 / peak
			for i := 0; i < width; i++ {
				bar += "█"
			}
		}
		c.Println("%s %3d %s", b.Date, b.Total, bar)
	}
}

// Status renders store health and in-process counter state.
func (c *Changes) Status(connected bool, path string, total int, counters map[string]int64) {
	c.Header("EVOTRAIL STATUS")

	state := "disconnected"
	if connected {
		state = "connected"
	}
	if c.pretty {
		if connected {
			state = color.GreenString(state)
		} else {
			state = color.RedString(state)
		}
	}
	c.Item("Store:   %s", state)
	c.Item("Path:    %s", path)
	c.Item("Changes: %d", total)

	if len(counters) > 0 {
		c.Section("SESSION COUNTERS")
		names := make([]string, 0, len(counters))
		for name := range counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.Item("%-20s %d", name+":", counters[name])
		}
	}
}

func (c *Changes) formatChangeLine(rec *domain.ChangeRecord) string {
	icon := c.statusIcon(rec.Status)
	line := fmt.Sprintf("%s [%s] %s %s",
		icon,
		rec.CreatedAt.Format("2006-01-02 15:04"),
		rec.ChangeID,
		Truncate(rec.Title, 50))
	line += fmt.Sprintf(" (%s/%s)", rec.Type, rec.Impact)
	if rec.Author != "" {
		author := rec.Author
		if c.pretty {
			author = color.HiBlackString(author)
		}
		line += " by " + author
	}
	return line
}

func (c *Changes) statusIcon(status domain.Status) string {
	icon := StatusIcon(status)
	if !c.pretty {
		return icon
	}
	switch status {
	case domain.StatusFailed, domain.StatusRolledBack:
		return color.RedString(icon)
	case domain.StatusDeployed, domain.StatusTested:
		return color.GreenString(icon)
	case domain.StatusInProgress:
		return color.YellowString(icon)
	default:
		return icon
	}
}

func sortedKeys[K ~string](m map[K]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
