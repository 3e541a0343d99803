package engine

import (
	"sort"
	"strings"

	"github.com/kanbanhq/kanban/internal/types"
)

// skillTagBonus multiplies the score of a candidate whose tags
// intersect the requested skill tags. Bonus, never a filter.
const skillTagBonus = 1.2

// Reason is one factor's contribution to a recommendation.
type Reason struct {
	Factor       string  `json:"factor"`
	Contribution float64 `json:"contribution"`
}

// Recommendation is the result of next-task selection.
type Recommendation struct {
	Task      *types.Task `json:"task"`
	Score     float64     `json:"score"`
	Reasoning []Reason    `json:"reasoning"`
	Unblocks  []int64     `json:"unblocks,omitempty"`
}

// candidate pairs a task with its effective (bonus-adjusted) score.
type candidate struct {
	task  *types.Task
	score float64
}

// NextTask picks the best task to work on. Candidates are active tasks
// passing the filter; ranking is effective score desc, due date asc
// with nulls last, updated_at asc, then ID asc so fixed inputs always
// produce the same answer. When time is constrained, the best-ranked
// candidate that fits wins, falling back to the overall best when
// nothing fits.
//
// taskTags maps task ID to tag slugs; it feeds the skill-tag bonus.
func NextTask(g *Graph, scores map[int64]float64, factors map[int64]Factors, w Weights, filter types.NextTaskFilter, taskTags map[int64][]string) *Recommendation {
	var candidates []candidate
	for _, t := range g.Tasks() {
		if !activeForScoring(t) {
			continue
		}
		if filter.Assignee != nil && t.Assignee != *filter.Assignee {
			continue
		}
		if filter.ExcludeBlocked && (t.Status == types.StatusBlocked || g.Blocked(t.ID)) {
			continue
		}
		score := scores[t.ID]
		if len(filter.SkillTags) > 0 && tagsIntersect(taskTags[t.ID], filter.SkillTags) {
			score *= skillTagBonus
		}
		candidates = append(candidates, candidate{task: t, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidateLess(candidates[i], candidates[j])
	})

	chosen := candidates[0]
	if filter.TimeAvailable > 0 {
		for _, c := range candidates {
			if c.task.EstimatedHours == nil {
				continue
			}
			if *c.task.EstimatedHours*60 <= float64(filter.TimeAvailable) {
				chosen = c
				break
			}
		}
	}

	return &Recommendation{
		Task:      chosen.task,
		Score:     chosen.score,
		Reasoning: topReasons(factors[chosen.task.ID], w),
		Unblocks:  g.Unblocks(chosen.task.ID),
	}
}

func candidateLess(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	ad, bd := a.task.DueDate, b.task.DueDate
	switch {
	case ad != nil && bd == nil:
		return true
	case ad == nil && bd != nil:
		return false
	case ad != nil && bd != nil && !ad.Equal(*bd):
		return ad.Before(*bd)
	}
	if !a.task.UpdatedAt.Equal(b.task.UpdatedAt) {
		return a.task.UpdatedAt.Before(b.task.UpdatedAt)
	}
	return a.task.ID < b.task.ID
}

func tagsIntersect(have, want []string) bool {
	if len(have) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[strings.ToLower(t)] = true
	}
	for _, t := range want {
		if set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// topReasons renders the three largest weighted contributions as
// human-readable reasoning.
func topReasons(f Factors, w Weights) []Reason {
	total := w.Sum()
	if total <= 0 {
		return nil
	}
	all := []Reason{
		{Factor: "age", Contribution: 100 * f.Age * w.Age / total},
		{Factor: "dependency", Contribution: 100 * f.Dependency * w.Dependency / total},
		{Factor: "deadline", Contribution: 100 * f.Deadline * w.Deadline / total},
		{Factor: "manual_priority", Contribution: 100 * f.Manual * w.Manual / total},
		{Factor: "context", Contribution: 100 * f.Context * w.Context / total},
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Contribution > all[j].Contribution
	})
	return all[:3]
}
