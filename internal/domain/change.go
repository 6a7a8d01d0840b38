// Package domain defines core entities for evotrail.
// These are pure data types shared by the store, the lifecycle tracker,
// and the query engine.
package domain

import "time"

// ChangeType classifies a tracked unit of work.
type ChangeType string

const (
	TypeFeature       ChangeType = "feature"
	TypeBugFix        ChangeType = "bug_fix"
	TypeRefactor      ChangeType = "refactor"
	TypePerformance   ChangeType = "performance"
	TypeSecurity      ChangeType = "security"
	TypeDocumentation ChangeType = "documentation"
	TypeTest          ChangeType = "test"
	TypeConfiguration ChangeType = "configuration"
	TypeDependency    ChangeType = "dependency"
	TypeArchitecture  ChangeType = "architecture"
	TypeMigration     ChangeType = "migration"
	TypeDeployment    ChangeType = "deployment"
	TypeFileAdded     ChangeType = "file_added"
	TypeFileRemoved   ChangeType = "file_removed"
	TypeFileRenamed   ChangeType = "file_renamed"
	TypeCodeUpdate    ChangeType = "code_update"
)

// typeMeta provides metadata for change types (extend via map, not switch).
var typeMeta = map[ChangeType]struct {
	Label string
}{
	TypeFeature:       {"Feature"},
	TypeBugFix:        {"Bug Fix"},
	TypeRefactor:      {"Refactor"},
	TypePerformance:   {"Performance"},
	TypeSecurity:      {"Security"},
	TypeDocumentation: {"Documentation"},
	TypeTest:          {"Test"},
	TypeConfiguration: {"Configuration"},
	TypeDependency:    {"Dependency"},
	TypeArchitecture:  {"Architecture"},
	TypeMigration:     {"Migration"},
	TypeDeployment:    {"Deployment"},
	TypeFileAdded:     {"File Added"},
	TypeFileRemoved:   {"File Removed"},
	TypeFileRenamed:   {"File Renamed"},
	TypeCodeUpdate:    {"Code Update"},
}

// IsValid reports whether t is a known change type.
func (t ChangeType) IsValid() bool {
	_, ok := typeMeta[t]
	return ok
}

// Label returns the display label for this change type.
func (t ChangeType) Label() string {
	if m, ok := typeMeta[t]; ok {
		return m.Label
	}
	return string(t)
}

// ChangeTypes returns all known change types.
func ChangeTypes() []ChangeType {
	types := make([]ChangeType, 0, len(typeMeta))
	for t := range typeMeta {
		types = append(types, t)
	}
	return types
}

// ImpactLevel is a coarse significance classification for a change.
type ImpactLevel string

const (
	ImpactCritical ImpactLevel = "critical"
	ImpactHigh     ImpactLevel = "high"
	ImpactMedium   ImpactLevel = "medium"
	ImpactLow      ImpactLevel = "low"
	ImpactNone     ImpactLevel = "none"
)

var impactRank = map[ImpactLevel]int{
	ImpactCritical: 4,
	ImpactHigh:     3,
	ImpactMedium:   2,
	ImpactLow:      1,
	ImpactNone:     0,
}

// IsValid reports whether l is a known impact level.
func (l ImpactLevel) IsValid() bool {
	_, ok := impactRank[l]
	return ok
}

// Rank returns a numeric severity for ordering (critical highest).
func (l ImpactLevel) Rank() int {
	return impactRank[l]
}

// Status represents a change's position in its lifecycle.
type Status string

const (
	StatusProposed    Status = "proposed"
	StatusInProgress  Status = "in_progress"
	StatusImplemented Status = "implemented"
	StatusTested      Status = "tested"
	StatusDeployed    Status = "deployed"
	StatusRolledBack  Status = "rolled_back"
	StatusFailed      Status = "failed"
)

// statusOrder encodes the forward progression of the lifecycle.
var statusOrder = map[Status]int{
	StatusProposed:    0,
	StatusInProgress:  1,
	StatusImplemented: 2,
	StatusTested:      3,
	StatusDeployed:    4,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	if _, ok := statusOrder[s]; ok {
		return true
	}
	return s == StatusRolledBack || s == StatusFailed
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusRolledBack || s == StatusFailed
}

// CanTransition reports whether a change may move from s to next.
// Status only moves forward, except rolled_back and failed which are
// reachable from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	return statusOrder[next] > cur
}

// Completed reports whether a change has passed its completion step.
func (s Status) Completed() bool {
	return s != StatusProposed && s != StatusInProgress
}

// ChangeRecord is the unit of tracked work.
type ChangeRecord struct {
	ChangeID string `json:"change_id"`

	// Classification
	Type   ChangeType  `json:"change_type"`
	Impact ImpactLevel `json:"impact_level"`
	Status Status      `json:"status"`

	// Descriptive fields
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	References  []string `json:"references,omitempty"`

	// File association
	AffectedFiles   []string       `json:"affected_files,omitempty"`
	BeforeSnapshots []FileSnapshot `json:"before_snapshots,omitempty"`
	AfterSnapshots  []FileSnapshot `json:"after_snapshots,omitempty"`
	Diffs           []Diff         `json:"diffs,omitempty"`

	// Derived statistics, computed at completion only.
	LinesAdded    int `json:"lines_added"`
	LinesRemoved  int `json:"lines_removed"`
	FilesAdded    int `json:"files_added"`
	FilesRemoved  int `json:"files_removed"`
	FilesModified int `json:"files_modified"`

	// Relationships (non-owning, informational).
	DependsOn      []string `json:"depends_on,omitempty"`
	RelatedChanges []string `json:"related_changes,omitempty"`

	// Settable but never derived by the engine.
	DurationHours       float64 `json:"duration_hours,omitempty"`
	EffortEstimateHours float64 `json:"effort_estimate_hours,omitempty"`

	// Completion annotations
	TestResults     string `json:"test_results,omitempty"`
	DeploymentNotes string `json:"deployment_notes,omitempty"`

	// Opaque free-form metadata.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Performance impact deltas, stored alongside the record.
	PerformanceImpact PerformanceImpact `json:"performance_impact,omitempty"`

	// Lifecycle timestamps
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// HasTag reports whether the record carries the given tag.
func (c *ChangeRecord) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasFile reports whether path is in the affected-file list.
func (c *ChangeRecord) HasFile(path string) bool {
	for _, f := range c.AffectedFiles {
		if f == path {
			return true
		}
	}
	return false
}
