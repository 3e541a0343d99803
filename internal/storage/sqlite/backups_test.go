package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestBackupMetadataLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := &types.BackupMeta{
		ID:            "bk-20260824-120000",
		Name:          "daily",
		Type:          types.BackupFull,
		RetentionDays: 30,
		Path:          "/var/backups/daily.db",
	}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.RecordBackup(ctx, meta)
	})

	got, err := store.GetBackup(ctx, meta.ID)
	if err != nil {
		t.Fatalf("GetBackup failed: %v", err)
	}
	if got.Status != types.BackupPending {
		t.Errorf("initial status = %q, want pending", got.Status)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateBackupStatus(ctx, meta.ID, types.BackupVerified, 4096, "abc123")
	})
	got, err = store.GetBackup(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.BackupVerified || got.SizeBytes != 4096 || got.Checksum != "abc123" {
		t.Errorf("verified backup = %+v", got)
	}

	byName, err := store.GetBackupByName(ctx, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != meta.ID {
		t.Errorf("GetBackupByName = %v", byName)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteBackup(ctx, meta.ID)
	})
	if _, err := store.GetBackup(ctx, meta.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListBackupsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	mustWrite(t, store, func(tx storage.Tx) error {
		for i, id := range []string{"bk-old", "bk-mid", "bk-new"} {
			at := base.Add(time.Duration(i) * time.Minute)
			if err := tx.RecordBackup(ctx, &types.BackupMeta{
				ID: id, Name: id, Type: types.BackupFull, CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := store.ListBackups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "bk-new" || got[2].ID != "bk-old" {
		t.Errorf("backup order = %v", got)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := &types.APIKey{KeyHash: "deadbeef", Name: "ci"}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateAPIKey(ctx, key)
	})

	got, err := store.GetAPIKeyByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash failed: %v", err)
	}
	if got.Name != "ci" || got.LastUsedAt != nil {
		t.Errorf("fresh key = %+v", got)
	}

	used := time.Now().UTC().Truncate(time.Second)
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.TouchAPIKey(ctx, key.ID, used)
	})
	got, err = store.GetAPIKeyByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
		t.Errorf("last_used_at = %v, want %v", got.LastUsedAt, used)
	}

	// Duplicate hashes are rejected.
	err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.CreateAPIKey(ctx, &types.APIKey{KeyHash: "deadbeef", Name: "clone"})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate hash: expected ErrConflict, got %v", err)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteAPIKey(ctx, key.ID)
	})
	if _, err := store.GetAPIKeyByHash(ctx, "deadbeef"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}
}

func TestRepoMappingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, _ := mustBoard(t, store, "mapped", "Todo")

	mustWrite(t, store, func(tx storage.Tx) error {
		low := &types.RepoMapping{
			Pattern: "github.com/acme/*", PatternType: types.PatternURL,
			BoardID: board.ID, Priority: 1,
		}
		if err := tx.CreateMapping(ctx, low); err != nil {
			return err
		}
		high := &types.RepoMapping{
			Pattern: "github.com/acme/billing", PatternType: types.PatternURL,
			BoardID: board.ID, Priority: 10, DefaultTags: []string{"billing", "backend"},
		}
		return tx.CreateMapping(ctx, high)
	})

	got, err := store.ListMappings(ctx)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("mappings = %d, want 2", len(got))
	}
	// Highest priority first so resolution can take the first match.
	if got[0].Priority != 10 {
		t.Errorf("mapping order = %v", got)
	}
	if len(got[0].DefaultTags) != 2 || got[0].DefaultTags[0] != "billing" {
		t.Errorf("default tags = %v", got[0].DefaultTags)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteMapping(ctx, got[1].ID)
	})
	remaining, err := store.ListMappings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("mappings after delete = %d, want 1", len(remaining))
	}
}
