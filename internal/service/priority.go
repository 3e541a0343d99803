package service

import (
	"context"

	"github.com/kanbanhq/kanban/internal/engine"
	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// GetNextTask recommends the best task to work on. With no board
// filter, every board is considered and the best candidate across
// boards wins; ties resolve deterministically.
func (s *Service) GetNextTask(ctx context.Context, filter types.NextTaskFilter) (*engine.Recommendation, error) {
	var boardIDs []int64
	if filter.BoardID != nil {
		if _, err := s.store.GetBoard(ctx, *filter.BoardID); err != nil {
			return nil, boardNotFound(err, *filter.BoardID)
		}
		boardIDs = []int64{*filter.BoardID}
	} else {
		boards, err := s.store.ListBoards(ctx, false)
		if err != nil {
			return nil, wrapStorage(err, "board")
		}
		for _, b := range boards {
			boardIDs = append(boardIDs, b.ID)
		}
	}

	var best *engine.Recommendation
	for _, boardID := range boardIDs {
		rec, err := s.nextOnBoard(ctx, boardID, filter)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if best == nil || betterRecommendation(rec, best) {
			best = rec
		}
	}
	return best, nil
}

func (s *Service) nextOnBoard(ctx context.Context, boardID int64, filter types.NextTaskFilter) (*engine.Recommendation, error) {
	g, tasks, err := boardGraph(ctx, s.store, boardID)
	if err != nil {
		return nil, wrapStorage(err, "board")
	}
	scores, factors := s.scorer().ScoreBoard(g)

	var taskTags map[int64][]string
	if len(filter.SkillTags) > 0 {
		taskTags = make(map[int64][]string)
		for _, t := range tasks {
			if t.Archived || t.Status.Terminal() {
				continue
			}
			tags, err := s.store.ListTaskTags(ctx, t.ID)
			if err != nil {
				return nil, wrapStorage(err, "tag")
			}
			for _, tag := range tags {
				taskTags[t.ID] = append(taskTags[t.ID], tag.Slug)
			}
		}
	}
	return engine.NextTask(g, scores, factors, s.weights(), filter, taskTags), nil
}

// betterRecommendation ranks cross-board candidates the same way the
// engine ranks within a board.
func betterRecommendation(a, b *engine.Recommendation) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ad, bd := a.Task.DueDate, b.Task.DueDate
	switch {
	case ad != nil && bd == nil:
		return true
	case ad == nil && bd != nil:
		return false
	case ad != nil && bd != nil && !ad.Equal(*bd):
		return ad.Before(*bd)
	}
	if !a.Task.UpdatedAt.Equal(b.Task.UpdatedAt) {
		return a.Task.UpdatedAt.Before(b.Task.UpdatedAt)
	}
	return a.Task.ID < b.Task.ID
}

// RecalculateBoard recomputes and persists priority scores for every
// active task on a board. Emits priority:changed.
func (s *Service) RecalculateBoard(ctx context.Context, boardID int64) (int, error) {
	var n int
	err := s.write(ctx, "board", func(tx storage.Tx, ev *eventBuffer) error {
		if _, err := tx.GetBoard(ctx, boardID); err != nil {
			return boardNotFound(err, boardID)
		}
		g, _, err := boardGraph(ctx, tx, boardID)
		if err != nil {
			return err
		}
		scores, _ := s.scorer().ScoreBoard(g)
		if err := tx.SetPriorityScores(ctx, scores); err != nil {
			return err
		}
		n = len(scores)
		ev.emit(eventbus.PriorityChanged, boardID, map[string]any{
			"board_id": boardID, "tasks": n,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecalculateAll recomputes scores for every non-archived board. The
// periodic recalc loop calls this on its configured interval.
func (s *Service) RecalculateAll(ctx context.Context) (int, error) {
	boards, err := s.store.ListBoards(ctx, false)
	if err != nil {
		return 0, wrapStorage(err, "board")
	}
	total := 0
	for _, b := range boards {
		n, err := s.RecalculateBoard(ctx, b.ID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// BoardContext is the agent-facing summary payload for one board.
type BoardContext struct {
	Board         *types.Board           `json:"board"`
	Columns       []*types.Column        `json:"columns"`
	StatusCounts  map[types.Status]int   `json:"status_counts"`
	TopPriorities []*types.Task          `json:"top_priorities"`
	Blocked       []*types.Task          `json:"blocked"`
	Overdue       []*types.Task          `json:"overdue"`
	Recommended   *engine.Recommendation `json:"recommended,omitempty"`
}

// GetBoardContext assembles the context payload served to agents: the
// board, live status counts, the highest-priority tasks, blockers, and
// the current recommendation.
func (s *Service) GetBoardContext(ctx context.Context, boardID int64) (*BoardContext, error) {
	board, cols, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := &BoardContext{Board: board, Columns: cols, StatusCounts: map[types.Status]int{}}

	tasks, err := s.store.ListBoardTasks(ctx, boardID, true)
	if err != nil {
		return nil, wrapStorage(err, "task")
	}
	for _, t := range tasks {
		if t.Archived {
			continue
		}
		out.StatusCounts[t.Status]++
	}

	sortBy := "priority_score"
	out.TopPriorities, err = s.store.SearchTasks(ctx, types.TaskFilter{
		BoardID: &boardID, SortBy: sortBy, SortOrder: "desc", Limit: 5,
	})
	if err != nil {
		return nil, wrapStorage(err, "task")
	}
	if out.Blocked, err = s.store.ListBlockedTasks(ctx, boardID); err != nil {
		return nil, wrapStorage(err, "task")
	}
	if out.Overdue, err = s.store.ListOverdue(ctx, s.now()); err != nil {
		return nil, wrapStorage(err, "task")
	}
	kept := out.Overdue[:0]
	for _, t := range out.Overdue {
		if t.BoardID == boardID {
			kept = append(kept, t)
		}
	}
	out.Overdue = kept

	out.Recommended, err = s.nextOnBoard(ctx, boardID, types.NextTaskFilter{ExcludeBlocked: true})
	if err != nil {
		return nil, err
	}
	return out, nil
}
