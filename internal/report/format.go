package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
)

func renderJSON(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

func renderMarkdown(doc *Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Evolution Report\n\n")
	fmt.Fprintf(&b, "Generated %s | window %d days | report %s\n\n",
		doc.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"),
		doc.Metadata.WindowDays, doc.Metadata.ReportID)

	s := doc.Summary
	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Total changes: %d (%d completed)\n", s.TotalChanges, s.CompletedChanges)
	fmt.Fprintf(&b, "- Lines: +%d / -%d\n", s.LinesAdded, s.LinesRemoved)
	fmt.Fprintf(&b, "- Files: %d added, %d removed, %d modified\n",
		s.FilesAdded, s.FilesRemoved, s.FilesModified)
	if s.AvgDurationHours > 0 {
		fmt.Fprintf(&b, "- Average duration: %.1fh\n", s.AvgDurationHours)
	}
	b.WriteString("\n")

	writeBreakdown(&b, "By Type", toPairs(s.ByType))
	writeBreakdown(&b, "By Status", toPairs(s.ByStatus))
	writeBreakdown(&b, "By Impact", toPairs(s.ByImpact))

	if len(s.TopAuthors) > 0 {
		fmt.Fprintf(&b, "### Top Authors\n\n")
		for _, a := range s.TopAuthors {
			fmt.Fprintf(&b, "- %s: %d\n", a.Author, a.Count)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Timeline\n\n")
	fmt.Fprintf(&b, "| Date | Changes | Lines + | Lines - |\n")
	fmt.Fprintf(&b, "|------|---------|---------|---------|\n")
	for _, bucket := range doc.Timeline {
		fmt.Fprintf(&b, "| %s | %d | %d | %d |\n",
			bucket.Date, bucket.Total, bucket.LinesAdded, bucket.LinesRemoved)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Recent Changes\n\n")
	if len(doc.Recent) == 0 {
		b.WriteString("No changes recorded.\n")
		return b.String()
	}
	for _, c := range doc.Recent {
		fmt.Fprintf(&b, "- **%s** [%s/%s/%s] %s", c.Title, c.Type, c.Impact, c.Status, c.ChangeID)
		if c.Author != "" {
			fmt.Fprintf(&b, " by %s", c.Author)
		}
		if c.LinesAdded+c.LinesRemoved > 0 {
			fmt.Fprintf(&b, " (+%d/-%d)", c.LinesAdded, c.LinesRemoved)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type pair struct {
	Key   string
	Count int
}

func toPairs[K ~string](m map[K]int) []pair {
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{Key: string(k), Count: v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}

func writeBreakdown(b *strings.Builder, title string, pairs []pair) {
	if len(pairs) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, p := range pairs {
		fmt.Fprintf(b, "- %s: %d\n", p.Key, p.Count)
	}
	b.WriteString("\n")
}

// htmlPage carries the template inputs: pre-sorted breakdowns plus the
// raw JSON payload for the charting front end.
type htmlPage struct {
	Doc      *Document
	ByType   []pair
	ByStatus []pair
	ByImpact []pair
	Payload  template.JS
}

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Evolution Report {{.Doc.Metadata.GeneratedAt.Format "2006-01-02"}}</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
.meta { color: #777; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>Evolution Report</h1>
<p class="meta">Generated {{.Doc.Metadata.GeneratedAt.Format "2006-01-02 15:04:05"}} |
window {{.Doc.Metadata.WindowDays}} days | report {{.Doc.Metadata.ReportID}}</p>

<h2>Summary</h2>
<ul>
<li>Total changes: {{.Doc.Summary.TotalChanges}} ({{.Doc.Summary.CompletedChanges}} completed)</li>
<li>Lines: +{{.Doc.Summary.LinesAdded}} / -{{.Doc.Summary.LinesRemoved}}</li>
<li>Files: {{.Doc.Summary.FilesAdded}} added, {{.Doc.Summary.FilesRemoved}} removed, {{.Doc.Summary.FilesModified}} modified</li>
</ul>

{{if .ByType}}<h3>By Type</h3><ul>{{range .ByType}}<li>{{.Key}}: {{.Count}}</li>{{end}}</ul>{{end}}
{{if .ByStatus}}<h3>By Status</h3><ul>{{range .ByStatus}}<li>{{.Key}}: {{.Count}}</li>{{end}}</ul>{{end}}
{{if .ByImpact}}<h3>By Impact</h3><ul>{{range .ByImpact}}<li>{{.Key}}: {{.Count}}</li>{{end}}</ul>{{end}}

<h2>Timeline</h2>
<table>
<tr><th>Date</th><th>Changes</th><th>Lines +</th><th>Lines -</th></tr>
{{range .Doc.Timeline}}<tr><td>{{.Date}}</td><td>{{.Total}}</td><td>{{.LinesAdded}}</td><td>{{.LinesRemoved}}</td></tr>
{{end}}</table>

<h2>Recent Changes</h2>
{{if .Doc.Recent}}<table>
<tr><th>Title</th><th>Type</th><th>Impact</th><th>Status</th><th>Author</th><th>Lines</th></tr>
{{range .Doc.Recent}}<tr><td>{{.Title}}</td><td>{{.Type}}</td><td>{{.Impact}}</td><td>{{.Status}}</td><td>{{.Author}}</td><td>+{{.LinesAdded}}/-{{.LinesRemoved}}</td></tr>
{{end}}</table>{{else}}<p>No changes recorded.</p>{{end}}

<script type="application/json" id="evotrail-data">{{.Payload}}</script>
</body>
</html>
`))

func renderHTML(doc *Document) ([]byte, error) {
	// The encoder's HTML escaping keeps "</script>" sequences out of
	// the embedded payload.
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode report payload: %w", err)
	}

	page := htmlPage{
		Doc:      doc,
		ByType:   toPairs(doc.Summary.ByType),
		ByStatus: toPairs(doc.Summary.ByStatus),
		ByImpact: toPairs(doc.Summary.ByImpact),
		Payload:  template.JS(strings.TrimSpace(payload.String())),
	}
	var out bytes.Buffer
	if err := htmlTmpl.Execute(&out, page); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return out.Bytes(), nil
}
