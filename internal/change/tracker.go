// Package change implements the lifecycle manager: starting a change,
// attaching files, completing with snapshots and diffs, and moving a
// change through its status progression.
package change

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/evotrail/internal/diffengine"
	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/profile"
	"github.com/joss/evotrail/internal/snapshot"
	"github.com/joss/evotrail/internal/store"
)

var (
	ErrInvalidType   = errors.New("unknown change type")
	ErrInvalidImpact = errors.New("unknown impact level")
	ErrEmptyTitle    = errors.New("title must not be empty")
	ErrNoFiles       = errors.New("no files given")
)

// Tracker drives the change lifecycle over a store.
type Tracker struct {
	store *store.SQLite
	snaps *snapshot.Engine
	diffs *diffengine.Engine
	prof  *profile.Profiler
	log   *logging.Logger
}

// NewTracker wires a tracker to the given store with default engines.
func NewTracker(st *store.SQLite) *Tracker {
	return &Tracker{
		store: st,
		snaps: snapshot.New(),
		diffs: diffengine.New(),
		prof:  profile.New(),
		log:   logging.New("change"),
	}
}

// StartChange registers a new change in Proposed status and samples a
// best-effort performance baseline. Returns the new change ID.
func (t *Tracker) StartChange(ctx context.Context, typ domain.ChangeType, title, description, author string, impact domain.ImpactLevel) (string, error) {
	if !typ.IsValid() {
		return "", ErrInvalidType
	}
	if title == "" {
		return "", ErrEmptyTitle
	}
	if impact == "" {
		impact = domain.ImpactMedium
	}
	if !impact.IsValid() {
		return "", ErrInvalidImpact
	}

	now := time.Now()
	rec := &domain.ChangeRecord{
		ChangeID:    ulid.Make().String(),
		Type:        typ,
		Impact:      impact,
		Status:      domain.StatusProposed,
		Title:       title,
		Description: description,
		Author:      author,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.SaveChange(ctx, rec); err != nil {
		return "", err
	}

	// Baseline sampling is best-effort: a change without a baseline is
	// still trackable, it just has no performance impact at completion.
	baseline := t.prof.Measure(nil)
	if err := t.store.SaveMetrics(ctx, rec.ChangeID, domain.PhaseBefore, baseline); err != nil {
		t.log.WithChange(rec.ChangeID).Warn("baseline_metrics_failed", nil, err)
	}

	t.log.WithChange(rec.ChangeID).Info("change_started", map[string]interface{}{
		"type":   string(typ),
		"impact": string(impact),
		"author": author,
	})
	return rec.ChangeID, nil
}

// AttachFiles records a before-snapshot for each path and adds it to
// the change's affected-file list. Re-attaching a path is a no-op: the
// first before-snapshot wins. Fails once the change is completed.
func (t *Tracker) AttachFiles(ctx context.Context, changeID string, paths []string) error {
	if len(paths) == 0 {
		return ErrNoFiles
	}
	rec, err := t.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if rec.Status.Completed() {
		return store.NewInvalidStateError("attach_files", changeID, string(rec.Status))
	}

	attached := 0
	for _, path := range paths {
		_, err := t.store.GetSnapshot(ctx, changeID, path, domain.SnapshotBefore)
		if err == nil {
			continue
		}
		if !store.IsNotFound(err) {
			return err
		}
		snap := t.snaps.Take(path, domain.SnapshotBefore)
		if err := t.store.SaveSnapshot(ctx, changeID, snap); err != nil {
			return err
		}
		if !rec.HasFile(path) {
			rec.AffectedFiles = append(rec.AffectedFiles, path)
		}
		attached++
	}

	rec.UpdatedAt = time.Now()
	if err := t.store.SaveChange(ctx, rec); err != nil {
		return err
	}

	t.log.WithChange(changeID).Info("files_attached", map[string]interface{}{
		"requested": len(paths),
		"new":       attached,
	})
	return nil
}

// CompleteChange takes after-snapshots of every attached file, computes
// diffs and aggregate statistics, samples after-metrics, and moves the
// change to Implemented. Not idempotent: completing twice is an
// invalid-state error.
func (t *Tracker) CompleteChange(ctx context.Context, changeID, rationale, testResults, deploymentNotes string) (*domain.ChangeRecord, error) {
	rec, err := t.store.GetChange(ctx, changeID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Completed() {
		return nil, store.NewInvalidStateError("complete_change", changeID, string(rec.Status))
	}

	befores, err := t.store.SnapshotsFor(ctx, changeID, domain.SnapshotBefore)
	if err != nil {
		return nil, err
	}

	rec.LinesAdded, rec.LinesRemoved = 0, 0
	rec.FilesAdded, rec.FilesRemoved, rec.FilesModified = 0, 0, 0
	rec.BeforeSnapshots = befores
	rec.AfterSnapshots = rec.AfterSnapshots[:0]
	rec.Diffs = rec.Diffs[:0]

	for i := range befores {
		before := &befores[i]
		after := t.snaps.Take(before.Path, domain.SnapshotAfter)
		if err := t.store.SaveSnapshot(ctx, changeID, after); err != nil {
			return nil, err
		}
		rec.AfterSnapshots = append(rec.AfterSnapshots, *after)

		switch {
		case before.Missing && !after.Missing:
			rec.FilesAdded++
		case !before.Missing && after.Missing:
			rec.FilesRemoved++
		case !before.Missing && !after.Missing && before.Hash != after.Hash:
			rec.FilesModified++
		}

		d := t.diffs.Unified(before, after)
		if d.Empty() {
			continue
		}
		if err := t.store.SaveDiff(ctx, changeID, d); err != nil {
			return nil, err
		}
		rec.Diffs = append(rec.Diffs, *d)
		rec.LinesAdded += d.LinesAdded
		rec.LinesRemoved += d.LinesRemoved
	}

	after := t.prof.Measure(nil)
	if err := t.store.SaveMetrics(ctx, changeID, domain.PhaseAfter, after); err != nil {
		t.log.WithChange(changeID).Warn("after_metrics_failed", nil, err)
	}
	if baseline, err := t.store.MetricsFor(ctx, changeID, domain.PhaseBefore); err == nil {
		rec.PerformanceImpact = profile.Impact(baseline, after)
	}

	now := time.Now()
	rec.Rationale = rationale
	rec.TestResults = testResults
	rec.DeploymentNotes = deploymentNotes
	rec.Status = domain.StatusImplemented
	rec.CompletedAt = now
	rec.UpdatedAt = now
	if err := t.store.SaveChange(ctx, rec); err != nil {
		return nil, err
	}

	t.log.WithChange(changeID).Info("change_completed", map[string]interface{}{
		"files_added":    rec.FilesAdded,
		"files_removed":  rec.FilesRemoved,
		"files_modified": rec.FilesModified,
		"lines_added":    rec.LinesAdded,
		"lines_removed":  rec.LinesRemoved,
	})
	return rec, nil
}

// GetChange loads a single change record by ID.
func (t *Tracker) GetChange(ctx context.Context, changeID string) (*domain.ChangeRecord, error) {
	return t.store.GetChange(ctx, changeID)
}

// UpdateStatus moves a change to the given status if the transition is
// allowed. Status only moves forward; rolled_back and failed are
// reachable from any non-terminal state.
func (t *Tracker) UpdateStatus(ctx context.Context, changeID string, next domain.Status) error {
	rec, err := t.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if !rec.Status.CanTransition(next) {
		return store.NewInvalidStateError("update_status", changeID, string(rec.Status))
	}
	rec.Status = next
	rec.UpdatedAt = time.Now()
	if next.Completed() && rec.CompletedAt.IsZero() {
		rec.CompletedAt = rec.UpdatedAt
	}
	if err := t.store.SaveChange(ctx, rec); err != nil {
		return err
	}
	t.log.WithChange(changeID).Info("status_updated", map[string]interface{}{
		"status": string(next),
	})
	return nil
}

// AddRelation records dependency and relatedness references to other
// changes. Every referenced ID must exist; the references stay
// informational and are never traversed.
func (t *Tracker) AddRelation(ctx context.Context, changeID string, dependsOn, related []string) error {
	rec, err := t.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	for _, ref := range append(append([]string{}, dependsOn...), related...) {
		ok, err := t.store.ChangeExists(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return store.NewNotFoundError("change", ref)
		}
	}
	rec.DependsOn = mergeRefs(rec.DependsOn, dependsOn)
	rec.RelatedChanges = mergeRefs(rec.RelatedChanges, related)
	rec.UpdatedAt = time.Now()
	return t.store.SaveChange(ctx, rec)
}

// SetEffort records expended and estimated effort in hours. These are
// always caller-supplied and never derived from timestamps.
func (t *Tracker) SetEffort(ctx context.Context, changeID string, durationHours, estimateHours float64) error {
	rec, err := t.store.GetChange(ctx, changeID)
	if err != nil {
		return err
	}
	if durationHours >= 0 {
		rec.DurationHours = durationHours
	}
	if estimateHours >= 0 {
		rec.EffortEstimateHours = estimateHours
	}
	rec.UpdatedAt = time.Now()
	return t.store.SaveChange(ctx, rec)
}

func mergeRefs(existing, incoming []string) []string {
	for _, ref := range incoming {
		dup := false
		for _, have := range existing {
			if have == ref {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, ref)
		}
	}
	return existing
}
