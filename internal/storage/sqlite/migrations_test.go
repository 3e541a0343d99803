package sqlite

import (
	"context"
	"testing"
)

func TestMigrationsApplyOnOpen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rows, err := store.db.QueryContext(ctx,
		`SELECT id, checksum FROM schema_migrations ORDER BY id`)
	if err != nil {
		t.Fatalf("failed to read migrations: %v", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int]string{}
	for rows.Next() {
		var (
			id  int
			sum string
		)
		if err := rows.Scan(&id, &sum); err != nil {
			t.Fatal(err)
		}
		applied[id] = sum
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}

	if len(applied) != len(migrations) {
		t.Fatalf("applied %d migrations, want %d", len(applied), len(migrations))
	}
	for _, m := range migrations {
		if applied[m.ID] != m.Checksum() {
			t.Errorf("migration %d checksum mismatch", m.ID)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A second run must be a no-op, not a duplicate-apply error.
	if err := RunMigrations(ctx, store.db, 0); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}

func TestMigrateDownAndBackUp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	var remaining int
	if err := store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Fatalf("migrations remaining after down to 1 = %d, want 1", remaining)
	}

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != len(migrations) {
		t.Errorf("migrations after re-up = %d, want %d", remaining, len(migrations))
	}
}
