package domain

import "time"

// Snapshot kinds. A change owns before and after rows per file.
const (
	SnapshotBefore = "before"
	SnapshotAfter  = "after"
)

// AbsentHash is the sentinel content hash for a file that did not exist
// when the snapshot was taken. Missing-before is a legitimate state for
// file-addition changes, not an error.
const AbsentHash = "absent"

// FileSnapshot is a content-addressed fingerprint of one file at one
// instant. Owned exclusively by the change that captured it; once
// written it is never mutated.
type FileSnapshot struct {
	Path       string    `json:"path"`
	Kind       string    `json:"kind"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Mode       uint32    `json:"mode"`
	ModTime    time.Time `json:"mod_time,omitempty"`
	Preview    string    `json:"preview,omitempty"`
	LineCount  int       `json:"line_count"`
	Missing    bool      `json:"missing,omitempty"`
	Error      string    `json:"error,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Same reports whether two snapshots fingerprint identical content.
func (s *FileSnapshot) Same(other *FileSnapshot) bool {
	if s == nil || other == nil {
		return false
	}
	return s.Hash == other.Hash
}

// Diff holds the unified-diff text and line statistics for one file
// within one change. Derived from two snapshots but persisted for fast
// retrieval since full content is not always kept.
type Diff struct {
	Path         string    `json:"path"`
	Text         string    `json:"text,omitempty"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Empty reports whether the diff records no change.
func (d *Diff) Empty() bool {
	return d.Text == "" && d.LinesAdded == 0 && d.LinesRemoved == 0
}
