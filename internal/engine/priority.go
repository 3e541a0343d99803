package engine

import (
	"fmt"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

// Weights configures the priority-score blend. Each weight must be
// non-negative and the sum must be positive.
type Weights struct {
	Age        float64 `json:"age" mapstructure:"age"`
	Dependency float64 `json:"dependency" mapstructure:"dependency"`
	Deadline   float64 `json:"deadline" mapstructure:"deadline"`
	Manual     float64 `json:"manual" mapstructure:"manual"`
	Context    float64 `json:"context" mapstructure:"context"`
}

// DefaultWeights returns the standard blend.
func DefaultWeights() Weights {
	return Weights{Age: 0.15, Dependency: 0.30, Deadline: 0.25, Manual: 0.20, Context: 0.10}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Age + w.Dependency + w.Deadline + w.Manual + w.Context
}

// Validate rejects negative weights and all-zero configurations.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"age": w.Age, "dependency": w.Dependency, "deadline": w.Deadline,
		"manual": w.Manual, "context": w.Context,
	} {
		if v < 0 {
			return fmt.Errorf("priority weight %q is negative: %v", name, v)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("priority weights sum to zero")
	}
	return nil
}

// Inner blend of the dependency factor's raw components. Direct blocks
// dominate; transitive reach and chain length refine.
const (
	depDirectWeight     = 1.0
	depTransitiveWeight = 0.5
	depPathWeight       = 0.25
)

// DefaultStaleThreshold is the age at which the age factor saturates.
const DefaultStaleThreshold = 7 * 24 * time.Hour

// Factors is the per-task factor breakdown, each in [0,1].
type Factors struct {
	Age        float64 `json:"age"`
	Dependency float64 `json:"dependency"`
	Deadline   float64 `json:"deadline"`
	Manual     float64 `json:"manual"`
	Context    float64 `json:"context"`
}

// Scorer computes priority scores for a board snapshot.
type Scorer struct {
	Weights        Weights
	StaleThreshold time.Duration
	Now            time.Time

	// ContextBoost carries per-task context-factor values supplied by
	// the caller (tag-match boosts and the like). Missing entries
	// default to 0.
	ContextBoost map[int64]float64
}

// NewScorer returns a scorer with the given weights and the clock set
// to now.
func NewScorer(w Weights, now time.Time) *Scorer {
	return &Scorer{Weights: w, StaleThreshold: DefaultStaleThreshold, Now: now}
}

// ScoreBoard computes scores for every active task on the board in a
// single pass over the topological order of the blocking graph. Done
// and archived tasks are excluded from the result but remain in the
// graph so the dependency factor sees what they block.
//
// The score is 100 times the weighted mean of the factors.
func (s *Scorer) ScoreBoard(g *Graph) (map[int64]float64, map[int64]Factors) {
	order := g.TopoOrder()

	// Dependency raw values first; the board maximum normalizes them.
	raw := make(map[int64]float64, len(order))
	var maxRaw float64
	for _, id := range order {
		t := g.Task(id)
		if !activeForScoring(t) {
			continue
		}
		r := float64(g.DirectBlocks(id))*depDirectWeight +
			float64(g.TransitiveBlocks(id))*depTransitiveWeight +
			float64(g.CriticalPathLength(id))*depPathWeight
		raw[id] = r
		if r > maxRaw {
			maxRaw = r
		}
	}

	scores := make(map[int64]float64, len(raw))
	factors := make(map[int64]Factors, len(raw))
	for _, id := range order {
		t := g.Task(id)
		if !activeForScoring(t) {
			continue
		}
		f := Factors{
			Age:      s.ageFactor(t),
			Deadline: s.deadlineFactor(t),
			Manual:   t.Priority.Factor(),
			Context:  s.ContextBoost[id],
		}
		if maxRaw > 0 {
			f.Dependency = raw[id] / maxRaw
		}
		factors[id] = f
		scores[id] = s.Combine(f)
	}
	return scores, factors
}

// Combine folds a factor breakdown into the final 0..100 score.
func (s *Scorer) Combine(f Factors) float64 {
	total := s.Weights.Sum()
	if total <= 0 {
		return 0
	}
	weighted := f.Age*s.Weights.Age +
		f.Dependency*s.Weights.Dependency +
		f.Deadline*s.Weights.Deadline +
		f.Manual*s.Weights.Manual +
		f.Context*s.Weights.Context
	return 100 * weighted / total
}

func activeForScoring(t *types.Task) bool {
	return t != nil && !t.Archived && !t.Status.Terminal()
}

// ageFactor grows linearly from 0 at creation to 1 at the stale
// threshold, then saturates.
func (s *Scorer) ageFactor(t *types.Task) float64 {
	threshold := s.StaleThreshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	age := s.Now.Sub(t.CreatedAt)
	if age <= 0 {
		return 0
	}
	if age >= threshold {
		return 1
	}
	return float64(age) / float64(threshold)
}

// deadlineFactor is piecewise linear: overdue 1.0, due within a day
// 0.9, falling to 0.3 at seven days out, 0 beyond.
func (s *Scorer) deadlineFactor(t *types.Task) float64 {
	if t.DueDate == nil {
		return 0
	}
	until := t.DueDate.Sub(s.Now)
	day := 24 * time.Hour
	switch {
	case until <= 0:
		return 1.0
	case until <= day:
		return 0.9
	case until <= 7*day:
		// 0.9 at +1d down to 0.3 at +7d.
		span := float64(until-day) / float64(6*day)
		return 0.9 - span*0.6
	default:
		return 0
	}
}
