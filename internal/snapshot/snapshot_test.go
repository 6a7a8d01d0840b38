package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/evotrail/internal/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTakeDeterministicHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello\nworld\n")

	e := New()
	first := e.Take(path, domain.SnapshotBefore)
	second := e.Take(path, domain.SnapshotBefore)

	assert.Equal(t, first.Hash, second.Hash)
	assert.NotEqual(t, domain.AbsentHash, first.Hash)
	assert.Len(t, first.Hash, 64) // sha256 hex
}

func TestTakeRecordsFileFacts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "one\ntwo\nthree\n")

	snap := New().Take(path, domain.SnapshotBefore)

	assert.Equal(t, path, snap.Path)
	assert.Equal(t, domain.SnapshotBefore, snap.Kind)
	assert.Equal(t, int64(14), snap.Size)
	assert.Equal(t, 3, snap.LineCount)
	assert.Equal(t, "one\ntwo\nthree\n", snap.Preview)
	assert.False(t, snap.Missing)
	assert.False(t, snap.ModTime.IsZero())
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestTakeMissingFile(t *testing.T) {
	snap := New().Take(filepath.Join(t.TempDir(), "nope.txt"), domain.SnapshotBefore)

	assert.True(t, snap.Missing)
	assert.Equal(t, domain.AbsentHash, snap.Hash)
	assert.NotEmpty(t, snap.Error)
	assert.Zero(t, snap.Size)
	assert.Zero(t, snap.LineCount)
}

func TestTakePreviewTruncation(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", 2000)
	path := writeFile(t, dir, "big.txt", long)

	snap := NewWithPreview(500).Take(path, domain.SnapshotBefore)

	assert.Len(t, snap.Preview, 500)
	assert.Equal(t, int64(2000), snap.Size)
}

func TestTakePreviewKeepsRunesIntact(t *testing.T) {
	dir := t.TempDir()
	// "héllo" repeated: é is two bytes, so a budget of 2 lands mid-rune.
	path := writeFile(t, dir, "utf8.txt", strings.Repeat("héllo", 100))

	snap := NewWithPreview(2).Take(path, domain.SnapshotBefore)

	assert.Equal(t, "h", snap.Preview)
	assert.True(t, utf8.ValidString(snap.Preview))
}

func TestTakeContentChangesHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "v1\n")

	e := New()
	before := e.Take(path, domain.SnapshotBefore)

	require.NoError(t, os.WriteFile(path, []byte("v2\n"), 0644))
	after := e.Take(path, domain.SnapshotAfter)

	assert.NotEqual(t, before.Hash, after.Hash)
}

func TestCountLines(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"one", 1},
		{"one\n", 1},
		{"one\ntwo", 2},
		{"one\ntwo\n", 2},
	}

	for _, c := range cases {
		if got := countLines([]byte(c.content)); got != c.want {
			t.Errorf("countLines(%q) = %d, want %d", c.content, got, c.want)
		}
	}
}
