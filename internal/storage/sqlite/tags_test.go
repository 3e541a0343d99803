package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func mustTag(t *testing.T, store *Store, tag *types.Tag) *types.Tag {
	t.Helper()
	if tag.Slug == "" {
		tag.Slug = types.Slugify(tag.Name)
	}
	if tag.Path == "" {
		tag.Path = tag.Slug
	}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateTag(context.Background(), tag)
	})
	return tag
}

func TestTagHierarchy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	backend := mustTag(t, store, &types.Tag{Name: "Backend"})
	api := mustTag(t, store, &types.Tag{
		Name: "API", ParentID: &backend.ID, Path: backend.Path + "/api",
	})
	auth := mustTag(t, store, &types.Tag{
		Name: "Auth", ParentID: &api.ID, Path: api.Path + "/auth",
	})
	mustTag(t, store, &types.Tag{Name: "Frontend"})

	got, err := store.GetTagBySlug(ctx, "api")
	if err != nil {
		t.Fatalf("GetTagBySlug failed: %v", err)
	}
	if got.Path != "backend/api" {
		t.Errorf("path = %q, want backend/api", got.Path)
	}

	subtree, err := store.ListTagsBelow(ctx, backend.Path)
	if err != nil {
		t.Fatalf("ListTagsBelow failed: %v", err)
	}
	if len(subtree) != 3 {
		t.Fatalf("subtree size = %d, want 3", len(subtree))
	}
	// Path ordering groups the subtree root first.
	if subtree[0].ID != backend.ID {
		t.Errorf("subtree[0] = %v, want root", subtree[0])
	}
	_ = auth

	all, err := store.ListTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("ListTags = %d tags, want 4", len(all))
	}
}

func TestDeleteTagDetachesChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parent := mustTag(t, store, &types.Tag{Name: "infra"})
	child := mustTag(t, store, &types.Tag{
		Name: "network", ParentID: &parent.ID, Path: "infra/network",
	})

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteTag(ctx, parent.ID)
	})

	got, err := store.GetTag(ctx, child.ID)
	if err != nil {
		t.Fatalf("child disappeared with parent: %v", err)
	}
	if got.ParentID != nil {
		t.Errorf("child parent_id = %v, want nil after parent delete", *got.ParentID)
	}
}

func TestTaskTagUsageCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "tagged", "Todo")

	tag := mustTag(t, store, &types.Tag{Name: "urgent"})
	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})
	b := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "b"})

	mustWrite(t, store, func(tx storage.Tx) error {
		if err := tx.AddTaskTag(ctx, a.ID, tag.ID); err != nil {
			return err
		}
		// Second attach of the same pair is a no-op, not a double count.
		if err := tx.AddTaskTag(ctx, a.ID, tag.ID); err != nil {
			return err
		}
		return tx.AddTaskTag(ctx, b.ID, tag.ID)
	})

	got, err := store.GetTag(ctx, tag.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UsageCount != 2 {
		t.Errorf("usage_count = %d, want 2", got.UsageCount)
	}

	tasks, err := store.ListTasksByTag(ctx, tag.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Errorf("ListTasksByTag = %d tasks, want 2", len(tasks))
	}

	tags, err := store.ListTaskTags(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].ID != tag.ID {
		t.Errorf("ListTaskTags = %v", tags)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.RemoveTaskTag(ctx, a.ID, tag.ID)
	})
	got, err = store.GetTag(ctx, tag.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage_count after detach = %d, want 1", got.UsageCount)
	}
}

func TestSearchTasksByTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "tagsearch", "Todo")

	tag := mustTag(t, store, &types.Tag{Name: "backend"})
	tagged := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "tagged"})
	mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "plain"})
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.AddTaskTag(ctx, tagged.ID, tag.ID)
	})

	got, err := store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID, Tag: "backend"})
	if err != nil {
		t.Fatalf("tag search failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Errorf("tag search = %v, want only %d", got, tagged.ID)
	}
}

func TestDuplicateTagSlugConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustTag(t, store, &types.Tag{Name: "once"})

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.CreateTag(ctx, &types.Tag{Name: "once", Slug: "once", Path: "once"})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}
