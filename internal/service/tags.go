package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// CreateTagInput is the request shape for CreateTag.
type CreateTagInput struct {
	Name     string `json:"name" validate:"required"`
	Color    string `json:"color,omitempty"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// CreateTag creates a tag, deriving its slug from the name and its
// path from the parent chain. Emits tag:created.
func (s *Service) CreateTag(ctx context.Context, in CreateTagInput) (*types.Tag, error) {
	tag := &types.Tag{
		Name:     strings.TrimSpace(in.Name),
		Slug:     types.Slugify(in.Name),
		Color:    in.Color,
		ParentID: in.ParentID,
	}
	if err := tag.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}

	err := s.write(ctx, "tag", func(tx storage.Tx, ev *eventBuffer) error {
		tag.Path = tag.Slug
		if in.ParentID != nil {
			parent, err := tx.GetTag(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			tag.Path = parent.Path + "/" + tag.Slug
		}
		if err := tx.CreateTag(ctx, tag); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(CodeDuplicate, "tag already exists", map[string]any{"slug": tag.Slug})
			}
			return err
		}
		ev.emit(eventbus.TagCreated, eventbus.AllBoards, map[string]any{
			"tag_id": tag.ID, "path": tag.Path,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// UpdateTagInput is the request shape for UpdateTag. ClearParent moves
// the tag to the root; it is mutually exclusive with ParentID.
type UpdateTagInput struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	ClearParent bool    `json:"clear_parent,omitempty"`
}

// UpdateTag renames, recolors, or reparents a tag. A rename rewrites
// the slug; any path change rewrites the whole subtree's paths in the
// same transaction. Reparenting under the tag's own subtree is
// rejected. Emits tag:updated.
func (s *Service) UpdateTag(ctx context.Context, id int64, in UpdateTagInput) (*types.Tag, error) {
	if in.ParentID != nil && in.ClearParent {
		return nil, Validationf("parent_id and clear_parent are mutually exclusive")
	}
	var tag *types.Tag
	err := s.write(ctx, "tag", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		tag, err = tx.GetTag(ctx, id)
		if err != nil {
			return err
		}
		oldPath := tag.Path

		if in.Name != nil {
			tag.Name = strings.TrimSpace(*in.Name)
			tag.Slug = types.Slugify(*in.Name)
		}
		if in.Color != nil {
			tag.Color = *in.Color
		}
		if in.ClearParent {
			tag.ParentID = nil
		} else if in.ParentID != nil {
			if *in.ParentID == id {
				return Conflict(CodeCycle, "a tag cannot be its own parent", map[string]any{"tag_id": id})
			}
			parent, err := tx.GetTag(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.Path == oldPath || strings.HasPrefix(parent.Path, oldPath+"/") {
				return Conflict(CodeCycle, "cannot move a tag under its own subtree", map[string]any{
					"tag_id": id, "parent_id": *in.ParentID,
				})
			}
			tag.ParentID = in.ParentID
		}
		if err := tag.Validate(); err != nil {
			return Validationf("%v", err)
		}

		newPath := tag.Slug
		if tag.ParentID != nil {
			parent, err := tx.GetTag(ctx, *tag.ParentID)
			if err != nil {
				return err
			}
			newPath = parent.Path + "/" + tag.Slug
		}
		tag.Path = newPath

		if err := tx.UpdateTag(ctx, tag); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(CodeDuplicate, "tag slug already in use", map[string]any{"slug": tag.Slug})
			}
			return err
		}
		if newPath != oldPath {
			if err := rewriteSubtreePaths(ctx, tx, oldPath, newPath); err != nil {
				return err
			}
		}
		ev.emit(eventbus.TagUpdated, eventbus.AllBoards, map[string]any{
			"tag_id": id, "path": newPath,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// DeleteTag removes a tag. Its children detach and become roots of
// their own subtrees, with paths rewritten accordingly.
// Emits tag:deleted.
func (s *Service) DeleteTag(ctx context.Context, id int64) error {
	return s.write(ctx, "tag", func(tx storage.Tx, ev *eventBuffer) error {
		tag, err := tx.GetTag(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTag(ctx, id); err != nil {
			return err
		}
		// Orphaned descendants lose the deleted prefix.
		if err := rewriteSubtreePaths(ctx, tx, tag.Path+"/", ""); err != nil {
			return err
		}
		ev.emit(eventbus.TagDeleted, eventbus.AllBoards, map[string]any{
			"tag_id": id, "path": tag.Path,
		})
		return nil
	})
}

// ListTags returns every tag ordered by path.
func (s *Service) ListTags(ctx context.Context) ([]*types.Tag, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, wrapStorage(err, "tag")
	}
	return tags, nil
}

// TagTask attaches a tag to a task. Attaching twice is a no-op.
func (s *Service) TagTask(ctx context.Context, taskID, tagID int64) error {
	return s.write(ctx, "tag", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if _, err := tx.GetTag(ctx, tagID); err != nil {
			return err
		}
		if err := tx.AddTaskTag(ctx, taskID, tagID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskUpdated, task.BoardID, map[string]any{
			"task_id": taskID, "tag_id": tagID,
		})
		return nil
	})
}

// UntagTask detaches a tag from a task.
func (s *Service) UntagTask(ctx context.Context, taskID, tagID int64) error {
	return s.write(ctx, "tag", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := tx.RemoveTaskTag(ctx, taskID, tagID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskUpdated, task.BoardID, map[string]any{
			"task_id": taskID, "tag_id": tagID, "removed": true,
		})
		return nil
	})
}

// rewriteSubtreePaths replaces the oldPrefix of every tag path below it
// with newPrefix. Called with oldPrefix ending in "/" and an empty
// newPrefix when a subtree is promoted to the root.
func rewriteSubtreePaths(ctx context.Context, tx storage.Tx, oldPrefix, newPrefix string) error {
	below, err := tx.ListTagsBelow(ctx, strings.TrimSuffix(oldPrefix, "/"))
	if err != nil {
		return err
	}
	for _, t := range below {
		rewritten := newPrefix + strings.TrimPrefix(t.Path, oldPrefix)
		if rewritten == t.Path {
			continue
		}
		t.Path = rewritten
		if err := tx.UpdateTag(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// attachTagsBySlug attaches tags to a task by slug, creating missing
// tags at the root level.
func attachTagsBySlug(ctx context.Context, tx storage.Tx, taskID int64, slugs []string) error {
	for _, raw := range slugs {
		slug := types.Slugify(raw)
		if slug == "" {
			continue
		}
		tag, err := tx.GetTagBySlug(ctx, slug)
		if errors.Is(err, storage.ErrNotFound) {
			tag = &types.Tag{Name: strings.TrimSpace(raw), Slug: slug, Path: slug}
			if err := tx.CreateTag(ctx, tag); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if err := tx.AddTaskTag(ctx, taskID, tag.ID); err != nil {
			return err
		}
	}
	return nil
}
