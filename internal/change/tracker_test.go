package change

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

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

func testTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "evolution.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTracker(st), dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStartChangeValidation(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	_, err := tr.StartChange(ctx, "not_a_type", "title", "", "alice", domain.ImpactLow)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = tr.StartChange(ctx, domain.TypeFeature, "", "", "alice", domain.ImpactLow)
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = tr.StartChange(ctx, domain.TypeFeature, "t", "", "alice", "enormous")
	assert.ErrorIs(t, err, ErrInvalidImpact)
}

func TestStartChangeDefaults(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	id, err := tr.StartChange(ctx, domain.TypeBugFix, "fix parser", "off by one", "bob", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, rec.Status)
	assert.Equal(t, domain.ImpactMedium, rec.Impact)
	assert.Equal(t, "bob", rec.Author)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.CompletedAt.IsZero())
}

func TestStartChangeRecordsBaselineMetrics(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	id, err := tr.StartChange(ctx, domain.TypeFeature, "add cache", "", "alice", domain.ImpactHigh)
	require.NoError(t, err)

	m, err := tr.store.MetricsFor(ctx, id, domain.PhaseBefore)
	require.NoError(t, err)
	assert.Positive(t, m.MemoryBytes)
}

func TestAttachFilesIdempotent(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "main.go", "package main\n")
	id, err := tr.StartChange(ctx, domain.TypeRefactor, "rename things", "", "alice", domain.ImpactLow)
	require.NoError(t, err)

	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))

	first, err := tr.store.GetSnapshot(ctx, id, path, domain.SnapshotBefore)
	require.NoError(t, err)

	// Mutate the file, then re-attach: the original snapshot must survive.
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))

	again, err := tr.store.GetSnapshot(ctx, id, path, domain.SnapshotBefore)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, again.Hash)

	rec, err := tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, rec.AffectedFiles)
}

func TestAttachFilesKeepsStatus(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "main.go", "package main\n")
	id, err := tr.StartChange(ctx, domain.TypeRefactor, "rename things", "", "alice", domain.ImpactLow)
	require.NoError(t, err)

	// Attaching files records snapshots only; status moves through
	// UpdateStatus, never as a side effect.
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))
	rec, err := tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, rec.Status)

	require.NoError(t, tr.UpdateStatus(ctx, id, domain.StatusInProgress))
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))
	rec, err = tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, rec.Status)
}

func TestAttachFilesErrors(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	err := tr.AttachFiles(ctx, "01UNKNOWNCHANGEIDXXXXXXXXX", []string{"x"})
	assert.True(t, store.IsNotFound(err))

	path := writeFile(t, dir, "a.txt", "a\n")
	id, err := tr.StartChange(ctx, domain.TypeFeature, "t", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))
	_, err = tr.CompleteChange(ctx, id, "", "", "")
	require.NoError(t, err)

	err = tr.AttachFiles(ctx, id, []string{path})
	assert.True(t, store.IsInvalidState(err))

	id2, err := tr.StartChange(ctx, domain.TypeFeature, "t2", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.AttachFiles(ctx, id2, nil), ErrNoFiles)
}

func TestCompleteChangeModifiedFile(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "handler.go", "package api\n\nfunc Handle() {}\n")
	id, err := tr.StartChange(ctx, domain.TypeBugFix, "guard nil request", "", "carol", domain.ImpactHigh)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))

	require.NoError(t, os.WriteFile(path, []byte("package api\n\nfunc Handle() {\n\tguard()\n}\n"), 0o644))

	rec, err := tr.CompleteChange(ctx, id, "nil deref in prod", "unit tests pass", "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusImplemented, rec.Status)
	assert.Equal(t, 1, rec.FilesModified)
	assert.Zero(t, rec.FilesAdded)
	assert.Zero(t, rec.FilesRemoved)
	assert.Positive(t, rec.LinesAdded)
	assert.Positive(t, rec.LinesRemoved)
	assert.Equal(t, "nil deref in prod", rec.Rationale)
	assert.Equal(t, "unit tests pass", rec.TestResults)
	assert.False(t, rec.CompletedAt.IsZero())
	require.Len(t, rec.Diffs, 1)
	assert.Contains(t, rec.Diffs[0].Text, "+\tguard()")

	// The persisted record must match what was returned.
	stored, err := tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.FilesModified, stored.FilesModified)
	assert.Equal(t, rec.LinesAdded, stored.LinesAdded)
}

func TestCompleteChangeAddedAndRemovedFiles(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	added := filepath.Join(dir, "new.go")
	removed := writeFile(t, dir, "old.go", "package gone\n")
	kept := writeFile(t, dir, "same.go", "package same\n")

	id, err := tr.StartChange(ctx, domain.TypeRefactor, "move package", "", "dave", domain.ImpactMedium)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{added, removed, kept}))

	require.NoError(t, os.WriteFile(added, []byte("package fresh\n"), 0o644))
	require.NoError(t, os.Remove(removed))

	rec, err := tr.CompleteChange(ctx, id, "", "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.FilesAdded)
	assert.Equal(t, 1, rec.FilesRemoved)
	assert.Zero(t, rec.FilesModified, "unchanged file must not count as modified")
	assert.Len(t, rec.BeforeSnapshots, 3)
	assert.Len(t, rec.AfterSnapshots, 3)
	assert.Len(t, rec.Diffs, 2, "unchanged file yields no diff")
}

func TestCompleteChangeNotIdempotent(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "a.txt", "one\n")
	id, err := tr.StartChange(ctx, domain.TypeFeature, "t", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))

	_, err = tr.CompleteChange(ctx, id, "", "", "")
	require.NoError(t, err)

	_, err = tr.CompleteChange(ctx, id, "", "", "")
	assert.True(t, store.IsInvalidState(err))

	_, err = tr.CompleteChange(ctx, "01MISSINGCHANGEIDXXXXXXXXX", "", "", "")
	assert.True(t, store.IsNotFound(err))
}

func TestCompleteChangeComputesPerformanceImpact(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "a.txt", "one\n")
	id, err := tr.StartChange(ctx, domain.TypePerformance, "tighten loop", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))

	rec, err := tr.CompleteChange(ctx, id, "", "", "")
	require.NoError(t, err)

	// Baseline memory and execution are always nonzero, so at least
	// those deltas must be present.
	assert.Contains(t, rec.PerformanceImpact, "memory_bytes")
	assert.Contains(t, rec.PerformanceImpact, "execution_ms")
}

func TestUpdateStatusProgression(t *testing.T) {
	tr, dir := testTracker(t)
	ctx := context.Background()

	path := writeFile(t, dir, "a.txt", "one\n")
	id, err := tr.StartChange(ctx, domain.TypeFeature, "t", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	require.NoError(t, tr.AttachFiles(ctx, id, []string{path}))
	_, err = tr.CompleteChange(ctx, id, "", "", "")
	require.NoError(t, err)

	require.NoError(t, tr.UpdateStatus(ctx, id, domain.StatusTested))
	require.NoError(t, tr.UpdateStatus(ctx, id, domain.StatusDeployed))

	// Backward movement is rejected.
	err = tr.UpdateStatus(ctx, id, domain.StatusTested)
	assert.True(t, store.IsInvalidState(err))

	// Terminal states are reachable from any non-terminal state.
	require.NoError(t, tr.UpdateStatus(ctx, id, domain.StatusRolledBack))
	err = tr.UpdateStatus(ctx, id, domain.StatusDeployed)
	assert.True(t, store.IsInvalidState(err), "terminal state admits no transitions")
}

func TestAddRelation(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	a, err := tr.StartChange(ctx, domain.TypeFeature, "a", "", "alice", domain.ImpactLow)
	require.NoError(t, err)
	b, err := tr.StartChange(ctx, domain.TypeFeature, "b", "", "alice", domain.ImpactLow)
	require.NoError(t, err)

	require.NoError(t, tr.AddRelation(ctx, b, []string{a}, nil))
	// Duplicate references collapse.
	require.NoError(t, tr.AddRelation(ctx, b, []string{a}, []string{a}))

	rec, err := tr.GetChange(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, rec.DependsOn)
	assert.Equal(t, []string{a}, rec.RelatedChanges)

	err = tr.AddRelation(ctx, b, []string{"01NOSUCHCHANGEXXXXXXXXXXXX"}, nil)
	assert.True(t, store.IsNotFound(err))
}

func TestSetEffort(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	id, err := tr.StartChange(ctx, domain.TypeFeature, "t", "", "alice", domain.ImpactLow)
	require.NoError(t, err)

	require.NoError(t, tr.SetEffort(ctx, id, 3.5, 2.0))
	rec, err := tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3.5, rec.DurationHours)
	assert.Equal(t, 2.0, rec.EffortEstimateHours)

	// Negative values leave the stored numbers untouched.
	require.NoError(t, tr.SetEffort(ctx, id, -1, 4.0))
	rec, err = tr.GetChange(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3.5, rec.DurationHours)
	assert.Equal(t, 4.0, rec.EffortEstimateHours)
}
