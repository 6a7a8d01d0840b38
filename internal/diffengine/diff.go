// Package diffengine computes unified diffs between two snapshots of
// the same logical file. It uses github.com/pmezard/go-difflib to
// produce classic unified patches (---/+++ headers, @@ hunks, lines
// prefixed with ' ', '-', '+').
package diffengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
)

// defaultContext is the number of context lines in unified hunks.
const defaultContext = 3

// Engine computes diffs. Diff generation failure is non-fatal: any
// failure to read content degrades to a one-line placeholder so the
// enclosing change-completion operation never aborts.
type Engine struct {
	context int
	log     *logging.Logger
}

// New creates a diff engine.
func New() *Engine {
	return &Engine{
		context: defaultContext,
		log:     logging.New("diff"),
	}
}

// Unified produces the diff between two snapshots of one file.
// Identical hashes (including both-absent) return an empty diff with
// zero counts; downstream aggregation treats "no diff" as "no change".
func (e *Engine) Unified(before, after *domain.FileSnapshot) *domain.Diff {
	path := after.Path
	if path == "" {
		path = before.Path
	}
	d := &domain.Diff{Path: path}

	// Required fast path, not an optimization detail.
	if before.Same(after) {
		return d
	}

	oldContent, oldOK := contentFor(before)
	newContent, newOK := contentFor(after)

	if !oldOK && !newOK {
		d.Text = fmt.Sprintf("file changed: %s\n", path)
		e.log.Warn("content_unavailable", map[string]interface{}{"path": path}, nil)
		return d
	}

	fromFile := "a/" + path
	toFile := "b/" + path
	if before.Missing {
		fromFile = "/dev/null"
	}
	if after.Missing {
		toFile = "/dev/null"
	}

	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  e.context,
	}
	text, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		d.Text = fmt.Sprintf("file changed: %s\n", path)
		e.log.Warn("diff_failed", map[string]interface{}{"path": path}, err)
		return d
	}

	d.Text = text
	d.LinesAdded, d.LinesRemoved = countChangedLines(text)
	return d
}

// contentFor resolves a snapshot's full content: live file when its
// hash still matches, stored preview otherwise. An absent snapshot is
// empty content and reported usable.
func contentFor(snap *domain.FileSnapshot) (string, bool) {
	if snap == nil {
		return "", false
	}
	if snap.Missing {
		return "", true
	}

	if data, err := os.ReadFile(snap.Path); err == nil {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) == snap.Hash {
			return string(data), true
		}
	}

	// Live file gone or moved on; the preview is what we kept.
	if snap.Preview != "" {
		return snap.Preview, true
	}
	return "", false
}

// countChangedLines counts added/removed lines, excluding the ---/+++
// header lines from the count.
func countChangedLines(text string) (added, removed int) {
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// header
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
