// Package backup provides export and restore of the full change
// history as a compressed archive. Retention policy stays with the
// operator; this is the maintenance hook, not a scheduler.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/store"
)

// archiveVersion is bumped when the entry layout changes.
const archiveVersion = "1.0"

// Archive entry names.
const (
	entryMetadata  = "metadata.json"
	entryChanges   = "changes.json"
	entrySnapshots = "snapshots.json"
	entryDiffs     = "diffs.json"
	entryMetrics   = "metrics.json"
)

// Metadata describes one backup archive.
type Metadata struct {
	Version     string            `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	Description string            `json:"description"`
	Counts      map[string]int    `json:"counts"`
	Checksums   map[string]string `json:"checksums"`
}

// Manager handles backup export and import against a store.
type Manager struct {
	store *store.SQLite
	log   *logging.Logger
}

// NewManager creates a backup manager.
func NewManager(st *store.SQLite) *Manager {
	return &Manager{store: st, log: logging.New("backup")}
}

// archive is the in-memory shape of the data entries.
type archive struct {
	changes   []*domain.ChangeRecord
	snapshots map[string][]domain.FileSnapshot
	diffs     map[string][]domain.Diff
	metrics   map[string]map[string]*domain.PerformanceMetrics
}

// Export writes the full store contents to a gzipped tar at
// outputPath and returns the archive metadata.
func (m *Manager) Export(ctx context.Context, outputPath, description string) (*Metadata, error) {
	data, err := m.collect(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating backup file: %w", err)
	}
	defer file.Close()

	gzw := gzip.NewWriter(file)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	meta := &Metadata{
		Version:     archiveVersion,
		CreatedAt:   time.Now(),
		Description: description,
		Counts: map[string]int{
			"changes":   len(data.changes),
			"snapshots": mapLen(data.snapshots),
			"diffs":     mapLen(data.diffs),
			"metrics":   len(data.metrics),
		},
		Checksums: make(map[string]string),
	}

	entries := []struct {
		name    string
		payload any
	}{
		{entryChanges, data.changes},
		{entrySnapshots, data.snapshots},
		{entryDiffs, data.diffs},
		{entryMetrics, data.metrics},
	}
	for _, e := range entries {
		raw, err := json.MarshalIndent(e.payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", e.name, err)
		}
		meta.Checksums[e.name] = checksum(raw)
		if err := addToTar(tw, e.name, raw); err != nil {
			return nil, fmt.Errorf("adding %s to tar: %w", e.name, err)
		}
	}

	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	if err := addToTar(tw, entryMetadata, metaJSON); err != nil {
		return nil, fmt.Errorf("adding metadata: %w", err)
	}

	m.log.Info("backup_exported", map[string]interface{}{
		"path":    outputPath,
		"changes": len(data.changes),
	})
	return meta, nil
}

// Import restores an archive into the store. Existing records with the
// same IDs are overwritten; records only present in the store are kept.
func (m *Manager) Import(ctx context.Context, inputPath string) (*Metadata, error) {
	meta, files, err := readArchive(inputPath)
	if err != nil {
		return nil, err
	}

	for name, want := range meta.Checksums {
		raw, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("backup missing entry %s", name)
		}
		if got := checksum(raw); got != want {
			return nil, fmt.Errorf("checksum mismatch for %s", name)
		}
	}

	var changes []*domain.ChangeRecord
	if err := json.Unmarshal(files[entryChanges], &changes); err != nil {
		return nil, fmt.Errorf("parsing changes: %w", err)
	}
	snapshots := make(map[string][]domain.FileSnapshot)
	if raw, ok := files[entrySnapshots]; ok {
		if err := json.Unmarshal(raw, &snapshots); err != nil {
			return nil, fmt.Errorf("parsing snapshots: %w", err)
		}
	}
	diffs := make(map[string][]domain.Diff)
	if raw, ok := files[entryDiffs]; ok {
		if err := json.Unmarshal(raw, &diffs); err != nil {
			return nil, fmt.Errorf("parsing diffs: %w", err)
		}
	}
	metricsByChange := make(map[string]map[string]*domain.PerformanceMetrics)
	if raw, ok := files[entryMetrics]; ok {
		if err := json.Unmarshal(raw, &metricsByChange); err != nil {
			return nil, fmt.Errorf("parsing metrics: %w", err)
		}
	}

	for _, rec := range changes {
		if err := m.store.SaveChange(ctx, rec); err != nil {
			return nil, fmt.Errorf("restoring change %s: %w", rec.ChangeID, err)
		}
	}
	for changeID, snaps := range snapshots {
		for i := range snaps {
			if err := m.store.SaveSnapshot(ctx, changeID, &snaps[i]); err != nil {
				return nil, fmt.Errorf("restoring snapshots for %s: %w", changeID, err)
			}
		}
	}
	for changeID, list := range diffs {
		for i := range list {
			if err := m.store.SaveDiff(ctx, changeID, &list[i]); err != nil {
				return nil, fmt.Errorf("restoring diffs for %s: %w", changeID, err)
			}
		}
	}
	for changeID, byPhase := range metricsByChange {
		for phase, sample := range byPhase {
			if err := m.store.SaveMetrics(ctx, changeID, phase, sample); err != nil {
				return nil, fmt.Errorf("restoring metrics for %s: %w", changeID, err)
			}
		}
	}

	m.log.Info("backup_imported", map[string]interface{}{
		"path":    inputPath,
		"changes": len(changes),
	})
	return meta, nil
}

// List reads only the metadata header of an archive.
func (m *Manager) List(inputPath string) (*Metadata, error) {
	meta, _, err := readArchive(inputPath)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// collect walks the full store into an in-memory archive.
func (m *Manager) collect(ctx context.Context) (*archive, error) {
	changes, err := m.store.ListChanges(ctx, store.Filter{Limit: store.NoLimit})
	if err != nil {
		return nil, err
	}

	data := &archive{
		changes:   changes,
		snapshots: make(map[string][]domain.FileSnapshot),
		diffs:     make(map[string][]domain.Diff),
		metrics:   make(map[string]map[string]*domain.PerformanceMetrics),
	}
	for _, rec := range changes {
		for _, kind := range []string{domain.SnapshotBefore, domain.SnapshotAfter} {
			snaps, err := m.store.SnapshotsFor(ctx, rec.ChangeID, kind)
			if err != nil {
				return nil, err
			}
			data.snapshots[rec.ChangeID] = append(data.snapshots[rec.ChangeID], snaps...)
		}
		list, err := m.store.DiffsFor(ctx, rec.ChangeID)
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			data.diffs[rec.ChangeID] = list
		}
		for _, phase := range []string{domain.PhaseBefore, domain.PhaseAfter} {
			sample, err := m.store.MetricsFor(ctx, rec.ChangeID, phase)
			if store.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if data.metrics[rec.ChangeID] == nil {
				data.metrics[rec.ChangeID] = make(map[string]*domain.PerformanceMetrics)
			}
			data.metrics[rec.ChangeID][phase] = sample
		}
	}
	return data, nil
}

func readArchive(inputPath string) (*Metadata, map[string][]byte, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening backup: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var meta *Metadata
	files := make(map[string][]byte)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading tar: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", header.Name, err)
		}
		if header.Name == entryMetadata {
			meta = &Metadata{}
			if err := json.Unmarshal(data, meta); err != nil {
				return nil, nil, fmt.Errorf("parsing metadata: %w", err)
			}
		} else {
			files[header.Name] = data
		}
	}

	if meta == nil {
		return nil, nil, fmt.Errorf("backup missing metadata")
	}
	return meta, files, nil
}

func addToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func mapLen[V any](m map[string][]V) int {
	n := 0
	for _, list := range m {
		n += len(list)
	}
	return n
}
