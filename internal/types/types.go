// Package types defines the domain model shared by the storage,
// engine, service, and transport layers: boards, columns, tasks,
// notes, tags, dependency edges, backups, and API keys.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether the status ends a task's active life.
// Terminal predecessors no longer block their dependents.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusArchived
}

// Priority is the manually declared priority of a task. The named enum
// is the canonical internal representation; the 1..10 integer scale
// accepted at the API boundary is converted via PriorityFromInt.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Factor returns the manual-priority scoring factor in [0,1].
func (p Priority) Factor() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.25
	}
	return 0
}

// PriorityFromInt converts the 1..10 integer scale to the named enum.
func PriorityFromInt(n int) (Priority, error) {
	switch {
	case n >= 1 && n <= 2:
		return PriorityLow, nil
	case n >= 3 && n <= 5:
		return PriorityMedium, nil
	case n >= 6 && n <= 8:
		return PriorityHigh, nil
	case n >= 9 && n <= 10:
		return PriorityCritical, nil
	}
	return "", fmt.Errorf("priority out of range 1..10: %d", n)
}

// DepType classifies a dependency edge.
type DepType string

const (
	DepBlocks      DepType = "blocks"
	DepRelated     DepType = "related"
	DepParentChild DepType = "parent-child"
)

// Valid reports whether t is a known dependency type.
func (t DepType) Valid() bool {
	switch t {
	case DepBlocks, DepRelated, DepParentChild:
		return true
	}
	return false
}

// NoteCategory classifies a note.
type NoteCategory string

const (
	NoteGeneral        NoteCategory = "general"
	NoteImplementation NoteCategory = "implementation"
	NoteResearch       NoteCategory = "research"
	NoteBlocker        NoteCategory = "blocker"
	NoteIdea           NoteCategory = "idea"
)

// Valid reports whether c is a known note category.
func (c NoteCategory) Valid() bool {
	switch c {
	case NoteGeneral, NoteImplementation, NoteResearch, NoteBlocker, NoteIdea:
		return true
	}
	return false
}

// MaxSubtaskDepth is the maximum hierarchy depth. A top-level task has
// depth 0; creating a subtask under a parent at depth 3 is rejected.
const MaxSubtaskDepth = 3

// MaxTitleLength bounds task and board titles.
const MaxTitleLength = 500

// Board owns columns, tasks, and notes. Deleting a board cascades.
type Board struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Archived    bool      `json:"archived"`
}

// Validate checks board fields before a write.
func (b *Board) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("board name is required")
	}
	if len(b.Name) > MaxTitleLength {
		return fmt.Errorf("board name exceeds %d characters", MaxTitleLength)
	}
	return nil
}

// Column is an ordered lane within a board. Position is dense within
// the board: 0..n-1 with no gaps.
type Column struct {
	ID       int64  `json:"id"`
	BoardID  int64  `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    string `json:"color,omitempty"`
}

// Validate checks column fields before a write.
func (c *Column) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("column name is required")
	}
	if c.BoardID == 0 {
		return fmt.Errorf("column board_id is required")
	}
	return nil
}

// Task is the unit of work. ColumnID always references a column on the
// task's own board; ParentTaskID, when set, references a task on the
// same board at depth < MaxSubtaskDepth.
type Task struct {
	ID             int64      `json:"id"`
	BoardID        int64      `json:"board_id"`
	ColumnID       int64      `json:"column_id"`
	ParentTaskID   *int64     `json:"parent_task_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	PriorityScore  float64    `json:"priority_score"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Assignee       string     `json:"assignee,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	Position       int        `json:"position"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Archived       bool       `json:"archived"`
}

// Validate checks task fields before a write.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task title is required")
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("task title exceeds %d characters", MaxTitleLength)
	}
	if t.Status != "" && !t.Status.Valid() {
		return fmt.Errorf("invalid status: %q", t.Status)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("invalid priority: %q", t.Priority)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return fmt.Errorf("estimated_hours must be non-negative")
	}
	return nil
}

// Dependency is a typed edge: the task identified by TaskID depends on
// DependsOnTaskID. For type "blocks", the task cannot be done until
// the target is done.
type Dependency struct {
	TaskID          int64     `json:"task_id"`
	DependsOnTaskID int64     `json:"depends_on_task_id"`
	Type            DepType   `json:"type"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks edge fields before a write.
func (d *Dependency) Validate() error {
	if d.TaskID == 0 || d.DependsOnTaskID == 0 {
		return fmt.Errorf("dependency endpoints are required")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("invalid dependency type: %q", d.Type)
	}
	return nil
}

// Note is a free-form annotation attached to a task. Content is
// full-text searchable.
type Note struct {
	ID        int64        `json:"id"`
	TaskID    int64        `json:"task_id"`
	BoardID   int64        `json:"board_id"`
	Content   string       `json:"content"`
	Category  NoteCategory `json:"category"`
	Pinned    bool         `json:"pinned"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate checks note fields before a write.
func (n *Note) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("note content is required")
	}
	if n.Category != "" && !n.Category.Valid() {
		return fmt.Errorf("invalid note category: %q", n.Category)
	}
	return nil
}

// Tag is a hierarchical label. Path is the /-joined slugs from the
// root to this tag; reparenting rewrites the whole subtree's paths in
// one transaction.
type Tag struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Color      string `json:"color,omitempty"`
	ParentID   *int64 `json:"parent_id,omitempty"`
	Path       string `json:"path"`
	UsageCount int    `json:"usage_count"`
}

// Slugify derives a URL-safe slug from a tag name.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Validate checks tag fields before a write.
func (t *Tag) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tag name is required")
	}
	if t.Slug == "" {
		return fmt.Errorf("tag slug is required")
	}
	return nil
}

// PatternType classifies a repository mapping pattern.
type PatternType string

const (
	PatternURL        PatternType = "url"
	PatternName       PatternType = "name"
	PatternBranch     PatternType = "branch"
	PatternConfigFile PatternType = "config-file"
)

// Valid reports whether p is a known pattern type.
func (p PatternType) Valid() bool {
	switch p {
	case PatternURL, PatternName, PatternBranch, PatternConfigFile:
		return true
	}
	return false
}

// RepoMapping routes a repository (by URL, name, branch, or config
// file marker) to a board. Highest priority wins on match.
type RepoMapping struct {
	ID          int64       `json:"id"`
	Pattern     string      `json:"pattern"`
	PatternType PatternType `json:"pattern_type"`
	BoardID     int64       `json:"board_id"`
	Priority    int         `json:"priority"`
	DefaultTags []string    `json:"default_tags,omitempty"`
}

// Validate checks mapping fields before a write.
func (m *RepoMapping) Validate() error {
	if strings.TrimSpace(m.Pattern) == "" {
		return fmt.Errorf("mapping pattern is required")
	}
	if !m.PatternType.Valid() {
		return fmt.Errorf("invalid pattern type: %q", m.PatternType)
	}
	if m.BoardID == 0 {
		return fmt.Errorf("mapping board_id is required")
	}
	return nil
}

// BackupType classifies a backup.
type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
	BackupManual      BackupType = "manual"
)

// BackupStatus is the verification state of a backup.
type BackupStatus string

const (
	BackupPending  BackupStatus = "pending"
	BackupVerified BackupStatus = "verified"
	BackupCorrupt  BackupStatus = "corrupt"
)

// BackupMeta is the recorded metadata for one snapshot file.
type BackupMeta struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Type          BackupType   `json:"type"`
	CreatedAt     time.Time    `json:"created_at"`
	SizeBytes     int64        `json:"size_bytes"`
	Checksum      string       `json:"checksum"`
	Status        BackupStatus `json:"status"`
	RetentionDays int          `json:"retention_days"`
	Path          string       `json:"path"`
	BaseBackupID  string       `json:"base_backup_id,omitempty"`
	Compressed    bool         `json:"compressed"`
}

// APIKey is the stored record for one credential. The raw key is never
// persisted; KeyHash is HMAC-SHA256(secret, raw key) hex-encoded and
// compared in constant time.
type APIKey struct {
	ID         int64      `json:"id"`
	KeyHash    string     `json:"-"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the key is past its expiry at now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// TaskFilter narrows task list and search queries. Nil pointer fields
// are unconstrained.
type TaskFilter struct {
	BoardID     *int64
	ColumnID    *int64
	Status      *Status
	Assignee    *string
	Tag         string
	Search      string
	PriorityMin *float64
	PriorityMax *float64
	DueBefore   *time.Time
	ParentID    *int64
	Archived    *bool
	SortBy      string
	SortOrder   string
	Limit       int
	Offset      int
}

// NextTaskFilter narrows next-task recommendations.
type NextTaskFilter struct {
	BoardID        *int64
	Assignee       *string
	SkillTags      []string
	TimeAvailable  int // minutes; 0 means unconstrained
	ExcludeBlocked bool
}

// TaskProgress is the persisted rollup row for a task.
type TaskProgress struct {
	TaskID          int64   `json:"task_id"`
	PercentComplete float64 `json:"percent_complete"`
	ChildCount      int     `json:"child_count"`
	DoneCount       int     `json:"done_count"`
}
