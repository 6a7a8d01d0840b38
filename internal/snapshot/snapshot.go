// Package snapshot captures content-addressed fingerprints of files.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joss/evotrail/internal/config"
	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
)

// Engine captures file snapshots. A snapshot of unchanged content
// always yields an identical hash; the diff engine relies on this to
// short-circuit no-op diffs.
type Engine struct {
	previewBytes int
	log          *logging.Logger
}

// New creates a snapshot engine with the configured preview budget.
func New() *Engine {
	return &Engine{
		previewBytes: config.Env().PreviewBytes,
		log:          logging.New("snapshot"),
	}
}

// NewWithPreview creates an engine with an explicit preview budget.
func NewWithPreview(previewBytes int) *Engine {
	if previewBytes <= 0 {
		previewBytes = config.DefaultPreviewBytes
	}
	return &Engine{
		previewBytes: previewBytes,
		log:          logging.New("snapshot"),
	}
}

// Take fingerprints the file at path. A missing or unreadable file is
// not an error: the returned snapshot carries the absent sentinel and
// the failure message, since missing-before is a legitimate state for
// file-addition changes.
func (e *Engine) Take(path, kind string) *domain.FileSnapshot {
	snap := &domain.FileSnapshot{
		Path:       path,
		Kind:       kind,
		CapturedAt: time.Now(),
	}

	info, err := os.Stat(path)
	if err != nil {
		snap.Hash = domain.AbsentHash
		snap.Missing = true
		snap.Error = err.Error()
		e.log.Debug("absent", map[string]interface{}{"path": path, "kind": kind})
		return snap
	}

	snap.Size = info.Size()
	snap.Mode = uint32(info.Mode().Perm())
	snap.ModTime = info.ModTime()

	data, err := os.ReadFile(path)
	if err != nil {
		snap.Hash = domain.AbsentHash
		snap.Missing = true
		snap.Error = err.Error()
		e.log.Warn("unreadable", map[string]interface{}{"path": path}, err)
		return snap
	}

	sum := sha256.Sum256(data)
	snap.Hash = hex.EncodeToString(sum[:])
	snap.Preview = preview(data, e.previewBytes)
	snap.LineCount = countLines(data)

	return snap
}

// preview truncates content to the byte budget, best-effort as text.
// The cut backs off to a rune boundary so the stored preview never
// ends in a partial UTF-8 sequence.
func preview(data []byte, budget int) string {
	if len(data) <= budget {
		return string(data)
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}

// countLines counts content lines: a trailing fragment without a final
// newline still counts as a line.
func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	s := string(data)
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
