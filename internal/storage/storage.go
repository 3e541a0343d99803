// Package storage defines the interface satisfied by the SQLite
// backend in the sqlite sub-package, plus the sentinel errors shared
// by all layers. Consumers depend on these interfaces rather than the
// concrete store so mocks and proxies can be substituted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on unique-constraint violations or when the
// current state precludes the operation.
var ErrConflict = errors.New("conflict")

// ErrUnavailable is returned for writes attempted while the store is
// in read-only mode (e.g. during a restore).
var ErrUnavailable = errors.New("store unavailable")

// ErrNoPredicate is returned by the query builder when a DELETE has no
// WHERE clause. Unscoped deletes fail closed.
var ErrNoPredicate = errors.New("delete without predicate")

// HealthStatus is the result of a storage health probe.
type HealthStatus struct {
	Connected  bool           `json:"connected"`
	Responsive bool           `json:"responsive"`
	Stats      map[string]any `json:"stats,omitempty"`
}

// Reader is the read-only query surface. Both the store and an open
// transaction satisfy it, so read helpers can run in either scope.
type Reader interface {
	// Boards and columns
	GetBoard(ctx context.Context, id int64) (*types.Board, error)
	GetBoardByName(ctx context.Context, name string) (*types.Board, error)
	ListBoards(ctx context.Context, includeArchived bool) ([]*types.Board, error)
	GetColumn(ctx context.Context, id int64) (*types.Column, error)
	ListColumns(ctx context.Context, boardID int64) ([]*types.Column, error)

	// Tasks
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	CountTasks(ctx context.Context, filter types.TaskFilter) (int, error)
	ListSubtasks(ctx context.Context, parentID int64) ([]*types.Task, error)
	ListBoardTasks(ctx context.Context, boardID int64, includeTerminal bool) ([]*types.Task, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*types.Task, error)
	ListBlockedTasks(ctx context.Context, boardID int64) ([]*types.Task, error)
	TaskDepth(ctx context.Context, id int64) (int, error)
	GetProgress(ctx context.Context, taskID int64) (*types.TaskProgress, error)

	// Dependencies
	ListDependencies(ctx context.Context, taskID int64) ([]*types.Dependency, error)
	ListDependents(ctx context.Context, taskID int64) ([]*types.Dependency, error)
	ListBoardDependencies(ctx context.Context, boardID int64) ([]*types.Dependency, error)

	// Notes
	GetNote(ctx context.Context, id int64) (*types.Note, error)
	ListNotes(ctx context.Context, taskID int64) ([]*types.Note, error)
	SearchNotes(ctx context.Context, query string, boardID *int64, limit int) ([]*types.Note, error)

	// Tags
	GetTag(ctx context.Context, id int64) (*types.Tag, error)
	GetTagBySlug(ctx context.Context, slug string) (*types.Tag, error)
	ListTags(ctx context.Context) ([]*types.Tag, error)
	ListTagsBelow(ctx context.Context, path string) ([]*types.Tag, error)
	ListTaskTags(ctx context.Context, taskID int64) ([]*types.Tag, error)
	ListTasksByTag(ctx context.Context, tagID int64) ([]*types.Task, error)

	// Repository mappings
	ListMappings(ctx context.Context) ([]*types.RepoMapping, error)

	// Backups
	GetBackup(ctx context.Context, id string) (*types.BackupMeta, error)
	GetBackupByName(ctx context.Context, name string) (*types.BackupMeta, error)
	ListBackups(ctx context.Context) ([]*types.BackupMeta, error)

	// API keys
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*types.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*types.APIKey, error)
}

// Writer is the mutation surface. It is only reachable through a
// transaction; repositories never commit on their own.
type Writer interface {
	CreateBoard(ctx context.Context, b *types.Board) error
	UpdateBoard(ctx context.Context, b *types.Board) error
	DeleteBoard(ctx context.Context, id int64) error

	CreateColumn(ctx context.Context, c *types.Column) error
	UpdateColumn(ctx context.Context, c *types.Column) error
	DeleteColumn(ctx context.Context, id int64) error

	CreateTask(ctx context.Context, t *types.Task) error
	UpdateTask(ctx context.Context, id int64, upd types.TaskUpdate) error
	DeleteTask(ctx context.Context, id int64) error
	UpsertProgress(ctx context.Context, p types.TaskProgress) error
	SetPriorityScores(ctx context.Context, scores map[int64]float64) error

	AddDependency(ctx context.Context, d *types.Dependency) error
	RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error

	CreateNote(ctx context.Context, n *types.Note) error
	UpdateNote(ctx context.Context, n *types.Note) error
	DeleteNote(ctx context.Context, id int64) error

	CreateTag(ctx context.Context, t *types.Tag) error
	UpdateTag(ctx context.Context, t *types.Tag) error
	DeleteTag(ctx context.Context, id int64) error
	AddTaskTag(ctx context.Context, taskID, tagID int64) error
	RemoveTaskTag(ctx context.Context, taskID, tagID int64) error

	CreateMapping(ctx context.Context, m *types.RepoMapping) error
	DeleteMapping(ctx context.Context, id int64) error

	RecordBackup(ctx context.Context, m *types.BackupMeta) error
	UpdateBackupStatus(ctx context.Context, id string, status types.BackupStatus, sizeBytes int64, checksum string) error
	DeleteBackup(ctx context.Context, id string) error

	CreateAPIKey(ctx context.Context, k *types.APIKey) error
	TouchAPIKey(ctx context.Context, id int64, at time.Time) error
	DeleteAPIKey(ctx context.Context, id int64) error
}

// Tx is the ambient transaction handle passed to RunInTransaction
// callbacks. Reads within the transaction see its own writes.
type Tx interface {
	Reader
	Writer
}

// Store is the interface satisfied by *sqlite.Store.
type Store interface {
	Reader

	// RunInTransaction executes fn atomically. Any error from fn rolls
	// the transaction back before the error is surfaced.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// HealthCheck probes connectivity; Responsive means SELECT 1
	// returned in under a second.
	HealthCheck(ctx context.Context) HealthStatus

	// Snapshot writes a consistent point-in-time copy of the database
	// to destPath using the online snapshot facility.
	Snapshot(ctx context.Context, destPath string) error

	// IntegrityCheck runs PRAGMA integrity_check and returns an error
	// unless the result is "ok".
	IntegrityCheck(ctx context.Context) error

	// DataVersion returns a counter that changes whenever the database
	// content changes. Used to skip no-op incremental backups.
	DataVersion(ctx context.Context) (int64, error)

	// SetReadOnly toggles restore mode: while set, transactions fail
	// with ErrUnavailable.
	SetReadOnly(readonly bool)

	// Path returns the absolute path of the database file.
	Path() string

	Close() error
}
