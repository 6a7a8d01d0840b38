// Package report renders evolution reports in markdown, HTML, and
// JSON. A report is a point-in-time document: summary statistics, a
// daily timeline, and the most recent changes, all over a bounded
// window.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joss/evotrail/internal/config"
	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/query"
	"github.com/joss/evotrail/internal/store"
)

// Supported output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// ErrUnknownFormat is returned for formats outside the supported set.
var ErrUnknownFormat = errors.New("unknown report format")

// recentLimit bounds the recent-changes section.
const recentLimit = 20

// DefaultWindowDays is the reporting window when none is given.
const DefaultWindowDays = 30

// Generator assembles and renders report documents.
type Generator struct {
	query *query.Engine
	log   *logging.Logger
}

// NewGenerator wires a generator to a query engine.
func NewGenerator(q *query.Engine) *Generator {
	return &Generator{query: q, log: logging.New("report")}
}

// Metadata identifies one generated report.
type Metadata struct {
	ReportID    string    `json:"report_id"`
	Tool        string    `json:"tool"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowDays  int       `json:"window_days"`
}

// ChangeSummary is the compact per-change row in a report.
type ChangeSummary struct {
	ChangeID     string             `json:"change_id"`
	Type         domain.ChangeType  `json:"change_type"`
	Impact       domain.ImpactLevel `json:"impact_level"`
	Status       domain.Status      `json:"status"`
	Title        string             `json:"title"`
	Author       string             `json:"author,omitempty"`
	LinesAdded   int                `json:"lines_added"`
	LinesRemoved int                `json:"lines_removed"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Document is the complete report payload. The JSON rendering is this
// struct verbatim, so external tooling can parse any report back.
type Document struct {
	Metadata Metadata               `json:"metadata"`
	Summary  *query.Statistics      `json:"summary"`
	Timeline []query.TimelineBucket `json:"timeline"`
	Recent   []ChangeSummary        `json:"recent_changes"`
}

// Build gathers statistics, timeline, and recent changes into a
// document covering the last days days.
func (g *Generator) Build(ctx context.Context, days int) (*Document, error) {
	if days < 1 {
		days = DefaultWindowDays
	}

	summary, err := g.query.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	timeline, err := g.query.Timeline(ctx, days)
	if err != nil {
		return nil, err
	}
	recent, err := g.query.Query(ctx, store.Filter{Limit: recentLimit})
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Metadata: Metadata{
			ReportID:    uuid.NewString(),
			Tool:        "evotrail",
			GeneratedAt: time.Now(),
			WindowDays:  days,
		},
		Summary:  summary,
		Timeline: timeline,
		Recent:   make([]ChangeSummary, 0, len(recent)),
	}
	for _, rec := range recent {
		doc.Recent = append(doc.Recent, ChangeSummary{
			ChangeID:     rec.ChangeID,
			Type:         rec.Type,
			Impact:       rec.Impact,
			Status:       rec.Status,
			Title:        rec.Title,
			Author:       rec.Author,
			LinesAdded:   rec.LinesAdded,
			LinesRemoved: rec.LinesRemoved,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return doc, nil
}

// Render builds a document and writes it in the given format. An empty
// outputPath writes to the reports directory with a timestamped name.
// Returns the path written.
func (g *Generator) Render(ctx context.Context, format string, days int, outputPath string) (string, error) {
	doc, err := g.Build(ctx, days)
	if err != nil {
		return "", err
	}

	var data []byte
	switch format {
	case FormatMarkdown:
		data = []byte(renderMarkdown(doc))
	case FormatHTML:
		data, err = renderHTML(doc)
	case FormatJSON:
		data, err = renderJSON(doc)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return "", err
	}

	path := outputPath
	if path == "" {
		path = filepath.Join(config.GetPaths().Reports, defaultName(format, doc.Metadata.GeneratedAt))
	}
	if err := config.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	g.log.Info("report_written", map[string]interface{}{
		"format": format,
		"path":   path,
		"bytes":  len(data),
	})
	return path, nil
}

func defaultName(format string, at time.Time) string {
	ext := map[string]string{
		FormatMarkdown: "md",
		FormatHTML:     "html",
		FormatJSON:     "json",
	}[format]
	return fmt.Sprintf("evolution-report-%s.%s", at.Format("20060102-150405"), ext)
}
