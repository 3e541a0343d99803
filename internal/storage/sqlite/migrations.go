package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
)

// Migration is a numbered schema change with forward and reverse SQL.
// The checksum of the SQL text is recorded when the migration is
// applied; on startup a checksum mismatch between the recorded row and
// the on-disk definition is reported as an error, never skipped.
type Migration struct {
	ID      int
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum returns the sha256 of the migration's SQL text.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL + "\n--down--\n" + m.DownSQL))
	return hex.EncodeToString(sum[:])
}

// migrations is the ordered registry. IDs must be unique and ascending.
var migrations = []Migration{
	{
		ID:   1,
		Name: "board_position_index",
		UpSQL: `CREATE INDEX IF NOT EXISTS idx_tasks_board_position
			ON tasks(board_id, column_id, position);`,
		DownSQL: `DROP INDEX IF EXISTS idx_tasks_board_position;`,
	},
	{
		ID:   2,
		Name: "notes_pinned_index",
		UpSQL: `CREATE INDEX IF NOT EXISTS idx_notes_pinned
			ON notes(task_id, pinned);`,
		DownSQL: `DROP INDEX IF EXISTS idx_notes_pinned;`,
	},
	{
		ID:   3,
		Name: "assignee_status_index",
		UpSQL: `CREATE INDEX IF NOT EXISTS idx_tasks_assignee_status
			ON tasks(assignee, status);`,
		DownSQL: `DROP INDEX IF EXISTS idx_tasks_assignee_status;`,
	},
}

type appliedMigration struct {
	id       int
	checksum string
}

func loadApplied(ctx context.Context, db *sql.DB) (map[int]appliedMigration, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, checksum FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var m appliedMigration
		if err := rows.Scan(&m.id, &m.checksum); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.id] = m
	}
	return applied, rows.Err()
}

// RunMigrations applies all pending migrations up to target (0 means
// all). Each migration runs inside its own transaction: failure rolls
// back and stops; success inserts the checksum row. Applied migrations
// whose recorded checksum differs from the registry are an error.
func RunMigrations(ctx context.Context, db *sql.DB, target int) error {
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, m := range sorted {
		if target > 0 && m.ID > target {
			break
		}
		if row, ok := applied[m.ID]; ok {
			if row.checksum != m.Checksum() {
				return fmt.Errorf("migration %03d_%s checksum mismatch: recorded %s, registry %s",
					m.ID, m.Name, row.checksum, m.Checksum())
			}
			continue
		}
		if err := applyMigration(ctx, db, m, true); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown reverses applied migrations from newest back to target
// exclusive (target 0 reverses everything).
func MigrateDown(ctx context.Context, db *sql.DB, target int) error {
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })

	for _, m := range sorted {
		if m.ID <= target {
			break
		}
		if _, ok := applied[m.ID]; !ok {
			continue
		}
		if err := applyMigration(ctx, db, m, false); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration, up bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if up {
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("migration %03d_%s failed: %w", m.ID, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (id, name, checksum) VALUES (?, ?, ?)`,
			m.ID, m.Name, m.Checksum()); err != nil {
			return fmt.Errorf("failed to record migration %03d_%s: %w", m.ID, m.Name, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("rollback of %03d_%s failed: %w", m.ID, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM schema_migrations WHERE id = ?`, m.ID); err != nil {
			return fmt.Errorf("failed to remove migration record %03d_%s: %w", m.ID, m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %03d_%s: %w", m.ID, m.Name, err)
	}
	return nil
}

// MigrateUp applies pending migrations on an open store.
func (s *Store) MigrateUp(ctx context.Context, target int) error {
	return RunMigrations(ctx, s.db, target)
}

// MigrateDown reverses migrations on an open store.
func (s *Store) MigrateDown(ctx context.Context, target int) error {
	return MigrateDown(ctx, s.db, target)
}
