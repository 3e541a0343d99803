package engine

import (
	"math"
	"testing"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
	if err := (Weights{}).Validate(); err == nil {
		t.Error("zero-sum weights accepted")
	}
	if err := (Weights{Age: -0.1, Manual: 1}).Validate(); err == nil {
		t.Error("negative weight accepted")
	}
}

func TestAgeFactorSaturates(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s := NewScorer(DefaultWeights(), now)

	fresh := task(1, types.StatusTodo)
	fresh.CreatedAt = now
	if got := s.ageFactor(fresh); got != 0 {
		t.Errorf("age factor at creation = %v, want 0", got)
	}

	half := task(2, types.StatusTodo)
	half.CreatedAt = now.Add(-DefaultStaleThreshold / 2)
	if got := s.ageFactor(half); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("age factor at half threshold = %v, want 0.5", got)
	}

	stale := task(3, types.StatusTodo)
	stale.CreatedAt = now.Add(-30 * 24 * time.Hour)
	if got := s.ageFactor(stale); got != 1 {
		t.Errorf("age factor past threshold = %v, want 1", got)
	}
}

func TestDeadlineFactorPiecewise(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s := NewScorer(DefaultWeights(), now)

	cases := []struct {
		name string
		due  time.Duration
		want float64
	}{
		{"overdue", -time.Hour, 1.0},
		{"within a day", 6 * time.Hour, 0.9},
		{"at four days", 4 * 24 * time.Hour, 0.6},
		{"at seven days", 7 * 24 * time.Hour, 0.3},
		{"beyond a week", 10 * 24 * time.Hour, 0},
	}
	for _, tc := range cases {
		tk := task(1, types.StatusTodo)
		due := now.Add(tc.due)
		tk.DueDate = &due
		if got := s.deadlineFactor(tk); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: deadline factor = %v, want %v", tc.name, got, tc.want)
		}
	}

	undated := task(2, types.StatusTodo)
	if got := s.deadlineFactor(undated); got != 0 {
		t.Errorf("deadline factor without due date = %v, want 0", got)
	}
}

func TestScoreBoardExcludesTerminalButCountsTheirEdges(t *testing.T) {
	now := time.Now().UTC()
	a := task(1, types.StatusTodo)
	doneBlocker := task(2, types.StatusDone)
	blockedTask := task(3, types.StatusTodo)
	for _, tk := range []*types.Task{a, doneBlocker, blockedTask} {
		tk.CreatedAt = now
	}

	g := NewGraph(
		[]*types.Task{a, doneBlocker, blockedTask},
		[]*types.Dependency{blocks(3, 2)},
	)
	scores, factors := NewScorer(DefaultWeights(), now).ScoreBoard(g)

	if _, ok := scores[2]; ok {
		t.Error("done task was scored")
	}
	if _, ok := scores[1]; !ok {
		t.Error("active task missing from scores")
	}
	if len(factors) != len(scores) {
		t.Errorf("factors/scores size mismatch: %d vs %d", len(factors), len(scores))
	}
}

func TestScoreBoardDependencyNormalization(t *testing.T) {
	now := time.Now().UTC()
	// hub blocks two chains; lone blocks nothing. Same age, priority,
	// no due dates, so only the dependency factor separates them.
	hub := task(1, types.StatusTodo)
	m1 := task(2, types.StatusTodo)
	m2 := task(3, types.StatusTodo)
	lone := task(4, types.StatusTodo)
	for _, tk := range []*types.Task{hub, m1, m2, lone} {
		tk.CreatedAt = now
	}

	g := NewGraph(
		[]*types.Task{hub, m1, m2, lone},
		[]*types.Dependency{blocks(2, 1), blocks(3, 1)},
	)
	scores, factors := NewScorer(DefaultWeights(), now).ScoreBoard(g)

	if factors[1].Dependency != 1 {
		t.Errorf("hub dependency factor = %v, want 1 (board max)", factors[1].Dependency)
	}
	if factors[4].Dependency != 0 {
		t.Errorf("lone dependency factor = %v, want 0", factors[4].Dependency)
	}
	if scores[1] <= scores[4] {
		t.Errorf("hub score %v not above lone score %v", scores[1], scores[4])
	}
}

func TestCombineBounds(t *testing.T) {
	s := NewScorer(DefaultWeights(), time.Now())
	if got := s.Combine(Factors{Age: 1, Dependency: 1, Deadline: 1, Manual: 1, Context: 1}); math.Abs(got-100) > 1e-9 {
		t.Errorf("all-max score = %v, want 100", got)
	}
	if got := s.Combine(Factors{}); got != 0 {
		t.Errorf("all-zero score = %v, want 0", got)
	}
}

func TestContextBoostFeedsScore(t *testing.T) {
	now := time.Now().UTC()
	plain := task(1, types.StatusTodo)
	boosted := task(2, types.StatusTodo)
	plain.CreatedAt, boosted.CreatedAt = now, now

	g := NewGraph([]*types.Task{plain, boosted}, nil)
	s := NewScorer(DefaultWeights(), now)
	s.ContextBoost = map[int64]float64{2: 1.0}

	scores, _ := s.ScoreBoard(g)
	if scores[2] <= scores[1] {
		t.Errorf("context boost did not raise score: %v vs %v", scores[2], scores[1])
	}
}
