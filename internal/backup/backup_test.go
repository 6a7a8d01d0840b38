package backup

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

func testStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "evolution.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedHistory(t *testing.T, st *store.SQLite) []string {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("01BKP%021d", i)
		rec := &domain.ChangeRecord{
			ChangeID:  id,
			Type:      domain.TypeFeature,
			Impact:    domain.ImpactMedium,
			Status:    domain.StatusImplemented,
			Title:     fmt.Sprintf("change %d", i),
			Author:    "alice",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, st.SaveChange(ctx, rec))
		ids = append(ids, id)
	}

	require.NoError(t, st.SaveSnapshot(ctx, ids[0], &domain.FileSnapshot{
		Path: "main.go", Kind: domain.SnapshotBefore, Hash: "aaaa", Size: 10,
		CapturedAt: time.Now(),
	}))
	require.NoError(t, st.SaveSnapshot(ctx, ids[0], &domain.FileSnapshot{
		Path: "main.go", Kind: domain.SnapshotAfter, Hash: "bbbb", Size: 12,
		CapturedAt: time.Now(),
	}))
	require.NoError(t, st.SaveDiff(ctx, ids[0], &domain.Diff{
		Path: "main.go", Text: "--- a/main.go\n+++ b/main.go\n", LinesAdded: 2,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, st.SaveMetrics(ctx, ids[0], domain.PhaseBefore, &domain.PerformanceMetrics{
		MemoryBytes: 4096, SampledAt: time.Now(),
	}))
	return ids
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	ids := seedHistory(t, src)

	path := filepath.Join(t.TempDir(), "history.tar.gz")
	meta, err := NewManager(src).Export(ctx, path, "nightly")
	require.NoError(t, err)

	assert.Equal(t, archiveVersion, meta.Version)
	assert.Equal(t, "nightly", meta.Description)
	assert.Equal(t, 3, meta.Counts["changes"])
	assert.Equal(t, 2, meta.Counts["snapshots"])
	assert.Equal(t, 1, meta.Counts["diffs"])
	assert.Len(t, meta.Checksums, 4)

	dst := testStore(t)
	got, err := NewManager(dst).Import(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, meta.Counts, got.Counts)

	for _, id := range ids {
		rec, err := dst.GetChange(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "alice", rec.Author)
	}
	snap, err := dst.GetSnapshot(ctx, ids[0], "main.go", domain.SnapshotBefore)
	require.NoError(t, err)
	assert.Equal(t, "aaaa", snap.Hash)

	diffs, err := dst.DiffsFor(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, 2, diffs[0].LinesAdded)

	m, err := dst.MetricsFor(ctx, ids[0], domain.PhaseBefore)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), m.MemoryBytes)
}

func TestImportMergesOverExisting(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	ids := seedHistory(t, src)

	path := filepath.Join(t.TempDir(), "history.tar.gz")
	_, err := NewManager(src).Export(ctx, path, "")
	require.NoError(t, err)

	dst := testStore(t)
	// A record the archive doesn't know about survives the import.
	keep := &domain.ChangeRecord{
		ChangeID: "01KEEPME0000000000000000000", Type: domain.TypeBugFix,
		Impact: domain.ImpactLow, Status: domain.StatusProposed, Title: "local only",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, dst.SaveChange(ctx, keep))
	// An overlapping ID gets overwritten with archive contents.
	stale := &domain.ChangeRecord{
		ChangeID: ids[0], Type: domain.TypeBugFix, Impact: domain.ImpactLow,
		Status: domain.StatusProposed, Title: "stale local copy",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, dst.SaveChange(ctx, stale))

	_, err = NewManager(dst).Import(ctx, path)
	require.NoError(t, err)

	rec, err := dst.GetChange(ctx, keep.ChangeID)
	require.NoError(t, err)
	assert.Equal(t, "local only", rec.Title)

	rec, err = dst.GetChange(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "change 0", rec.Title)
}

func TestListReadsOnlyMetadata(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	seedHistory(t, src)

	path := filepath.Join(t.TempDir(), "history.tar.gz")
	_, err := NewManager(src).Export(ctx, path, "inspect me")
	require.NoError(t, err)

	meta, err := NewManager(testStore(t)).List(path)
	require.NoError(t, err)
	assert.Equal(t, "inspect me", meta.Description)
	assert.Equal(t, 3, meta.Counts["changes"])
}

func TestImportRejectsCorruptArchive(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	seedHistory(t, src)

	path := filepath.Join(t.TempDir(), "history.tar.gz")
	_, err := NewManager(src).Export(ctx, path, "")
	require.NoError(t, err)

	// Flip bytes in the middle of the gzip stream.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	corrupt := filepath.Join(t.TempDir(), "corrupt.tar.gz")
	require.NoError(t, os.WriteFile(corrupt, data, 0o644))

	_, err = NewManager(testStore(t)).Import(ctx, corrupt)
	assert.Error(t, err)

	_, err = NewManager(testStore(t)).Import(ctx, filepath.Join(t.TempDir(), "missing.tar.gz"))
	assert.Error(t, err)
}
