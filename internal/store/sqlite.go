package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/logging"
)

// SQLite is the embedded relational store backing the engine. One table
// per entity family; writes are upserts keyed by primary identifier.
// SQLite's own locking discipline serializes writes; the engine adds no
// second locking layer.
type SQLite struct {
	db   *sql.DB
	path string
	log  *logging.Logger
}

// Verify SQLite implements Store
var _ Store = (*SQLite)(nil)

// Open creates or opens the database at path.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, unavailable("open database", err)
	}

	s := &SQLite{db: db, path: path, log: logging.New("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, unavailable("migrate", err)
	}

	s.log.Debug("opened", map[string]interface{}{"path": path})
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS changes (
		change_id TEXT PRIMARY KEY,
		change_type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		author TEXT,
		rationale TEXT,
		impact_level TEXT,
		status TEXT NOT NULL,
		tags_json TEXT,
		references_json TEXT,
		depends_on_json TEXT,
		related_json TEXT,
		affected_files_json TEXT,
		metadata_json TEXT,
		impact_json TEXT,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_removed INTEGER NOT NULL DEFAULT 0,
		files_added INTEGER NOT NULL DEFAULT 0,
		files_removed INTEGER NOT NULL DEFAULT 0,
		files_modified INTEGER NOT NULL DEFAULT 0,
		duration_hours REAL NOT NULL DEFAULT 0,
		effort_estimate_hours REAL NOT NULL DEFAULT 0,
		test_results TEXT,
		deployment_notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_changes_created ON changes(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_changes_type ON changes(change_type);
	CREATE INDEX IF NOT EXISTS idx_changes_status ON changes(status);
	CREATE INDEX IF NOT EXISTS idx_changes_author ON changes(author);

	CREATE TABLE IF NOT EXISTS file_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		hash TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mode INTEGER NOT NULL DEFAULT 0,
		mod_time DATETIME,
		preview TEXT,
		line_count INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		captured_at DATETIME NOT NULL,
		UNIQUE(change_id, path, kind),
		FOREIGN KEY (change_id) REFERENCES changes(change_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_change ON file_snapshots(change_id);

	CREATE TABLE IF NOT EXISTS diffs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id TEXT NOT NULL,
		path TEXT NOT NULL,
		diff_text TEXT,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_removed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE(change_id, path),
		FOREIGN KEY (change_id) REFERENCES changes(change_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_diffs_change ON diffs(change_id);

	CREATE TABLE IF NOT EXISTS performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		execution_ms REAL NOT NULL DEFAULT 0,
		memory_bytes INTEGER NOT NULL DEFAULT 0,
		cpu_percent REAL NOT NULL DEFAULT 0,
		disk_read_bytes INTEGER NOT NULL DEFAULT 0,
		disk_write_bytes INTEGER NOT NULL DEFAULT 0,
		net_rx_bytes INTEGER NOT NULL DEFAULT 0,
		net_tx_bytes INTEGER NOT NULL DEFAULT 0,
		response_ms REAL NOT NULL DEFAULT 0,
		throughput REAL NOT NULL DEFAULT 0,
		error_rate REAL NOT NULL DEFAULT 0,
		benchmark_score REAL NOT NULL DEFAULT 0,
		sampled_at DATETIME NOT NULL,
		UNIQUE(change_id, phase),
		FOREIGN KEY (change_id) REFERENCES changes(change_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_change ON performance_metrics(change_id);

	-- Reserved for longer-term tracking; schema-compatible but not
	-- populated by the core.
	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		reached_at DATETIME,
		changes_json TEXT
	);

	CREATE TABLE IF NOT EXISTS system_snapshots (
		id TEXT PRIMARY KEY,
		captured_at DATETIME NOT NULL,
		summary_json TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Change operations

// SaveChange upserts a change record keyed by change_id.
func (s *SQLite) SaveChange(ctx context.Context, rec *domain.ChangeRecord) error {
	tagsJSON := marshalList(rec.Tags)
	refsJSON := marshalList(rec.References)
	depsJSON := marshalList(rec.DependsOn)
	relatedJSON := marshalList(rec.RelatedChanges)
	filesJSON := marshalList(rec.AffectedFiles)

	var metaJSON, impactJSON []byte
	if len(rec.Metadata) > 0 {
		metaJSON, _ = json.Marshal(rec.Metadata)
	}
	if len(rec.PerformanceImpact) > 0 {
		impactJSON, _ = json.Marshal(rec.PerformanceImpact)
	}

	var completedAt interface{}
	if !rec.CompletedAt.IsZero() {
		completedAt = rec.CompletedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changes (
			change_id, change_type, title, description, author, rationale,
			impact_level, status, tags_json, references_json, depends_on_json,
			related_json, affected_files_json, metadata_json, impact_json,
			lines_added, lines_removed, files_added, files_removed, files_modified,
			duration_hours, effort_estimate_hours, test_results, deployment_notes,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id) DO UPDATE SET
			change_type = excluded.change_type,
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			rationale = excluded.rationale,
			impact_level = excluded.impact_level,
			status = excluded.status,
			tags_json = excluded.tags_json,
			references_json = excluded.references_json,
			depends_on_json = excluded.depends_on_json,
			related_json = excluded.related_json,
			affected_files_json = excluded.affected_files_json,
			metadata_json = excluded.metadata_json,
			impact_json = excluded.impact_json,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			files_added = excluded.files_added,
			files_removed = excluded.files_removed,
			files_modified = excluded.files_modified,
			duration_hours = excluded.duration_hours,
			effort_estimate_hours = excluded.effort_estimate_hours,
			test_results = excluded.test_results,
			deployment_notes = excluded.deployment_notes,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`, rec.ChangeID, string(rec.Type), rec.Title, rec.Description, rec.Author,
		rec.Rationale, string(rec.Impact), string(rec.Status), tagsJSON, refsJSON,
		depsJSON, relatedJSON, filesJSON, nullable(metaJSON), nullable(impactJSON),
		rec.LinesAdded, rec.LinesRemoved, rec.FilesAdded, rec.FilesRemoved,
		rec.FilesModified, rec.DurationHours, rec.EffortEstimateHours,
		rec.TestResults, rec.DeploymentNotes, rec.CreatedAt, rec.UpdatedAt,
		completedAt)
	if err != nil {
		s.log.Error("save_change_failed", map[string]interface{}{"change_id": rec.ChangeID}, err)
		return unavailable("save change", err)
	}
	return nil
}

const changeColumns = `change_id, change_type, title, description, author, rationale,
	impact_level, status, tags_json, references_json, depends_on_json,
	related_json, affected_files_json, metadata_json, impact_json,
	lines_added, lines_removed, files_added, files_removed, files_modified,
	duration_hours, effort_estimate_hours, test_results, deployment_notes,
	created_at, updated_at, completed_at`

// GetChange retrieves one change row. Snapshots, diffs, and metrics are
// loaded separately via their own accessors.
func (s *SQLite) GetChange(ctx context.Context, id string) (*domain.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM changes WHERE change_id = ?`, id)

	rec, err := scanChange(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("change", id)
	}
	if err != nil {
		return nil, unavailable("get change", err)
	}
	return rec, nil
}

// ListChanges retrieves change rows matching the filter, newest-first.
func (s *SQLite) ListChanges(ctx context.Context, f Filter) ([]*domain.ChangeRecord, error) {
	where, params := buildWhere(f)

	// Limit 0 means the default page; NoLimit disables the clause for
	// full scans (aggregation).
	limit := f.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	clause := ""
	if limit > 0 {
		clause = " LIMIT ?"
		params = append(params, limit)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM changes %s ORDER BY created_at DESC, change_id DESC%s`,
		changeColumns, where, clause), params...)
	if err != nil {
		return nil, unavailable("list changes", err)
	}
	defer rows.Close()

	var records []*domain.ChangeRecord
	for rows.Next() {
		rec, err := scanChange(rows)
		if err != nil {
			return nil, unavailable("scan change", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list changes", err)
	}
	return records, nil
}

// CountChanges returns the number of changes matching the filter.
func (s *SQLite) CountChanges(ctx context.Context, f Filter) (int, error) {
	where, params := buildWhere(f)

	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM changes %s`, where), params...).Scan(&count)
	if err != nil {
		return 0, unavailable("count changes", err)
	}
	return count, nil
}

// ChangeExists reports whether a change row exists.
func (s *SQLite) ChangeExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM changes WHERE change_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("change exists", err)
	}
	return true, nil
}

// buildWhere assembles the AND-combined condition set for a filter.
func buildWhere(f Filter) (string, []any) {
	var conditions []string
	var params []any

	if f.Type != "" {
		conditions = append(conditions, "change_type = ?")
		params = append(params, string(f.Type))
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		params = append(params, string(f.Status))
	}
	if f.AuthorContains != "" {
		conditions = append(conditions, "author LIKE ?")
		params = append(params, "%"+f.AuthorContains+"%")
	}
	if f.Impact != "" {
		conditions = append(conditions, "impact_level = ?")
		params = append(params, string(f.Impact))
	}
	if f.Tag != "" {
		conditions = append(conditions, "tags_json LIKE ?")
		params = append(params, `%"`+f.Tag+`"%`)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		params = append(params, f.Since)
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		params = append(params, f.Until)
	}

	if len(conditions) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(conditions, " AND "), params
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChange(row scanner) (*domain.ChangeRecord, error) {
	var rec domain.ChangeRecord
	var changeType, impact, status string
	var description, author, rationale sql.NullString
	var tagsJSON, refsJSON, depsJSON, relatedJSON, filesJSON sql.NullString
	var metaJSON, impactJSON sql.NullString
	var testResults, deployNotes sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&rec.ChangeID, &changeType, &rec.Title, &description, &author,
		&rationale, &impact, &status, &tagsJSON, &refsJSON, &depsJSON,
		&relatedJSON, &filesJSON, &metaJSON, &impactJSON,
		&rec.LinesAdded, &rec.LinesRemoved, &rec.FilesAdded, &rec.FilesRemoved,
		&rec.FilesModified, &rec.DurationHours, &rec.EffortEstimateHours,
		&testResults, &deployNotes, &rec.CreatedAt, &rec.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	rec.Type = domain.ChangeType(changeType)
	rec.Impact = domain.ImpactLevel(impact)
	rec.Status = domain.Status(status)
	rec.Description = description.String
	rec.Author = author.String
	rec.Rationale = rationale.String
	rec.TestResults = testResults.String
	rec.DeploymentNotes = deployNotes.String
	rec.Tags = unmarshalList(tagsJSON)
	rec.References = unmarshalList(refsJSON)
	rec.DependsOn = unmarshalList(depsJSON)
	rec.RelatedChanges = unmarshalList(relatedJSON)
	rec.AffectedFiles = unmarshalList(filesJSON)
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &rec.Metadata)
	}
	if impactJSON.Valid && impactJSON.String != "" {
		json.Unmarshal([]byte(impactJSON.String), &rec.PerformanceImpact)
	}
	if completedAt.Valid {
		rec.CompletedAt = completedAt.Time
	}

	return &rec, nil
}

// Snapshot operations

// SaveSnapshot upserts a snapshot row keyed by (change, path, kind).
func (s *SQLite) SaveSnapshot(ctx context.Context, changeID string, snap *domain.FileSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_snapshots (
			change_id, path, kind, hash, size, mode, mod_time, preview,
			line_count, missing, error, captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id, path, kind) DO UPDATE SET
			hash = excluded.hash,
			size = excluded.size,
			mode = excluded.mode,
			mod_time = excluded.mod_time,
			preview = excluded.preview,
			line_count = excluded.line_count,
			missing = excluded.missing,
			error = excluded.error,
			captured_at = excluded.captured_at
	`, changeID, snap.Path, snap.Kind, snap.Hash, snap.Size, snap.Mode,
		snap.ModTime, snap.Preview, snap.LineCount, boolInt(snap.Missing),
		snap.Error, snap.CapturedAt)
	if err != nil {
		return unavailable("save snapshot", err)
	}
	return nil
}

// GetSnapshot retrieves one snapshot, or ErrNotFound.
func (s *SQLite) GetSnapshot(ctx context.Context, changeID, path, kind string) (*domain.FileSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, kind, hash, size, mode, mod_time, preview, line_count, missing, error, captured_at
		FROM file_snapshots WHERE change_id = ? AND path = ? AND kind = ?
	`, changeID, path, kind)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("snapshot", changeID+":"+path+":"+kind)
	}
	if err != nil {
		return nil, unavailable("get snapshot", err)
	}
	return snap, nil
}

// SnapshotsFor retrieves all snapshots of one kind for a change,
// ordered by path. Pass an empty kind for both.
func (s *SQLite) SnapshotsFor(ctx context.Context, changeID, kind string) ([]domain.FileSnapshot, error) {
	query := `
		SELECT path, kind, hash, size, mode, mod_time, preview, line_count, missing, error, captured_at
		FROM file_snapshots WHERE change_id = ?`
	params := []any{changeID}
	if kind != "" {
		query += ` AND kind = ?`
		params = append(params, kind)
	}
	query += ` ORDER BY path ASC, kind ASC`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, unavailable("list snapshots", err)
	}
	defer rows.Close()

	var snaps []domain.FileSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, unavailable("scan snapshot", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row scanner) (*domain.FileSnapshot, error) {
	var snap domain.FileSnapshot
	var modTime sql.NullTime
	var preview, errMsg sql.NullString
	var missing int

	err := row.Scan(&snap.Path, &snap.Kind, &snap.Hash, &snap.Size, &snap.Mode,
		&modTime, &preview, &snap.LineCount, &missing, &errMsg, &snap.CapturedAt)
	if err != nil {
		return nil, err
	}

	if modTime.Valid {
		snap.ModTime = modTime.Time
	}
	snap.Preview = preview.String
	snap.Error = errMsg.String
	snap.Missing = missing != 0
	return &snap, nil
}

// Diff operations

// SaveDiff upserts a diff row keyed by (change, path).
func (s *SQLite) SaveDiff(ctx context.Context, changeID string, d *domain.Diff) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diffs (change_id, path, diff_text, lines_added, lines_removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id, path) DO UPDATE SET
			diff_text = excluded.diff_text,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			created_at = excluded.created_at
	`, changeID, d.Path, d.Text, d.LinesAdded, d.LinesRemoved, createdAt)
	if err != nil {
		return unavailable("save diff", err)
	}
	return nil
}

// DiffsFor retrieves all diffs for a change, ordered by path.
func (s *SQLite) DiffsFor(ctx context.Context, changeID string) ([]domain.Diff, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, diff_text, lines_added, lines_removed, created_at
		FROM diffs WHERE change_id = ? ORDER BY path ASC
	`, changeID)
	if err != nil {
		return nil, unavailable("list diffs", err)
	}
	defer rows.Close()

	var diffs []domain.Diff
	for rows.Next() {
		var d domain.Diff
		var text sql.NullString
		if err := rows.Scan(&d.Path, &text, &d.LinesAdded, &d.LinesRemoved, &d.CreatedAt); err != nil {
			return nil, unavailable("scan diff", err)
		}
		d.Text = text.String
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

// Metrics operations

// SaveMetrics upserts a performance sample keyed by (change, phase).
func (s *SQLite) SaveMetrics(ctx context.Context, changeID, phase string, m *domain.PerformanceMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_metrics (
			change_id, phase, execution_ms, memory_bytes, cpu_percent,
			disk_read_bytes, disk_write_bytes, net_rx_bytes, net_tx_bytes,
			response_ms, throughput, error_rate, benchmark_score, sampled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(change_id, phase) DO UPDATE SET
			execution_ms = excluded.execution_ms,
			memory_bytes = excluded.memory_bytes,
			cpu_percent = excluded.cpu_percent,
			disk_read_bytes = excluded.disk_read_bytes,
			disk_write_bytes = excluded.disk_write_bytes,
			net_rx_bytes = excluded.net_rx_bytes,
			net_tx_bytes = excluded.net_tx_bytes,
			response_ms = excluded.response_ms,
			throughput = excluded.throughput,
			error_rate = excluded.error_rate,
			benchmark_score = excluded.benchmark_score,
			sampled_at = excluded.sampled_at
	`, changeID, phase, m.ExecutionMs, m.MemoryBytes, m.CPUPercent,
		m.DiskReadBytes, m.DiskWriteBytes, m.NetRxBytes, m.NetTxBytes,
		m.ResponseMs, m.Throughput, m.ErrorRate, m.BenchmarkScore, m.SampledAt)
	if err != nil {
		return unavailable("save metrics", err)
	}
	return nil
}

// MetricsFor retrieves one phase's sample for a change, or ErrNotFound.
func (s *SQLite) MetricsFor(ctx context.Context, changeID, phase string) (*domain.PerformanceMetrics, error) {
	var m domain.PerformanceMetrics
	err := s.db.QueryRowContext(ctx, `
		SELECT execution_ms, memory_bytes, cpu_percent, disk_read_bytes,
			disk_write_bytes, net_rx_bytes, net_tx_bytes, response_ms,
			throughput, error_rate, benchmark_score, sampled_at
		FROM performance_metrics WHERE change_id = ? AND phase = ?
	`, changeID, phase).Scan(&m.ExecutionMs, &m.MemoryBytes, &m.CPUPercent,
		&m.DiskReadBytes, &m.DiskWriteBytes, &m.NetRxBytes, &m.NetTxBytes,
		&m.ResponseMs, &m.Throughput, &m.ErrorRate, &m.BenchmarkScore, &m.SampledAt)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("metrics", changeID+":"+phase)
	}
	if err != nil {
		return nil, unavailable("get metrics", err)
	}
	return &m, nil
}

// Helpers

func marshalList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func unmarshalList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" || ns.String == "[]" {
		return nil
	}
	var list []string
	json.Unmarshal([]byte(ns.String), &list)
	return list
}

func nullable(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
