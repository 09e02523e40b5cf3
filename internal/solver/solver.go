// Package solver assigns posting times to content items under hard
// constraints, maximizing aggregate timing score. The algorithm is a bounded
// heuristic: greedy best-candidate assignment followed by a limited number of
// pairwise-swap improvement passes. It does not search for a global optimum.
package solver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// Item is one unit of work for a solve call
type Item struct {
	ID          string
	Platform    scheduling.Platform
	ContentType string
	// Current is the item's existing scheduled time, if any. It seeds the
	// score-before bookkeeping and serves as the fallback for conflicts.
	Current *time.Time
	// Audience tunes scoring for this item's audience, optional.
	Audience *timing.AudienceProfile
}

// Assignment is the outcome for one item
type Assignment struct {
	ItemID   string
	Platform scheduling.Platform
	// Time is the assigned slot, or the best fallback when Conflict is set.
	// Nil means unassigned.
	Time  *time.Time
	Score float64
	// Conflict names why no feasible slot existed. Empty on success.
	Conflict string
}

// Result is a full solve outcome. Assignments preserve input item order.
type Result struct {
	Assignments []Assignment
	TotalScore  float64
}

// Config tunes the solver
type Config struct {
	// ImprovePasses bounds the local-improvement loop.
	ImprovePasses int
}

// DefaultConfig returns the default solver tuning
func DefaultConfig() Config {
	return Config{ImprovePasses: 3}
}

// Solver computes constraint-satisfying time assignments
type Solver struct {
	model  *timing.Model
	logger logging.Logger
	cfg    Config
}

// New creates a solver over the given timing model
func New(model *timing.Model, logger logging.Logger, cfg Config) *Solver {
	if cfg.ImprovePasses <= 0 {
		cfg = DefaultConfig()
	}
	return &Solver{model: model, logger: logger, cfg: cfg}
}

// violation tallies why candidates were rejected, for conflict reasons
type violation int

const (
	violationBounds violation = iota
	violationBlackout
	violationInterval
	violationDailyCap
	violationCount
)

var violationNames = [violationCount]string{
	"item_bounds", "blackout", "min_interval", "daily_cap",
}

// Solve assigns each item its highest-scoring feasible candidate time.
// Constraints are enforced only against items inside this call's working set.
// Items with no feasible slot are reported as conflicts and do not block
// their siblings. Identical inputs and an identical snapshot always produce
// an identical result; ties on score resolve to the earliest candidate time,
// then the smaller platform id.
//
// The context is checked between item assignments so cancellation takes
// effect at checkpoints, never mid-score.
func (s *Solver) Solve(ctx context.Context, items []Item, cons Constraints, snap timing.Snapshot) (Result, error) {
	if err := cons.Validate(); err != nil {
		return Result{}, err
	}

	order := assignmentOrder(items, cons.Priority)
	assigned := make(map[string]*Assignment, len(items))
	result := Result{Assignments: make([]Assignment, len(items))}

	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		item := items[idx]
		a, err := s.assignOne(item, cons, snap, assigned)
		if err != nil {
			return Result{}, err
		}
		assigned[item.ID] = a
	}

	s.improve(items, order, cons, snap, assigned)

	for i, item := range items {
		a := assigned[item.ID]
		result.Assignments[i] = *a
		if a.Conflict == "" {
			result.TotalScore += a.Score
		}
	}
	return result, nil
}

// assignOne finds the best feasible candidate for a single item
func (s *Solver) assignOne(item Item, cons Constraints, snap timing.Snapshot, assigned map[string]*Assignment) (*Assignment, error) {
	a := &Assignment{ItemID: item.ID, Platform: item.Platform}

	var (
		found      bool
		bestScore  float64
		bestTime   time.Time
		violations [violationCount]int
	)

	step := cons.step()
	for t := cons.Horizon.Start; t.Before(cons.Horizon.End); t = t.Add(step) {
		if !cons.allowsItem(item.ID, t) {
			violations[violationBounds]++
			continue
		}
		if cons.inBlackout(t) {
			violations[violationBlackout]++
			continue
		}
		if v, ok := s.feasibleAgainst(item, t, cons, assigned, ""); !ok {
			violations[v]++
			continue
		}

		scored, err := s.model.Score(item.Platform, t, item.ContentType, item.Audience, snap)
		if err != nil {
			return nil, err
		}

		// Candidates iterate in ascending time, so a strict comparison keeps
		// the earliest time on score ties.
		if !found || scored.Score > bestScore {
			found = true
			bestScore = scored.Score
			bestTime = t
		}
	}

	if !found {
		a.Conflict = conflictReason(violations)
		a.Time = item.Current
		return a, nil
	}

	a.Time = &bestTime
	a.Score = bestScore
	return a, nil
}

// feasibleAgainst checks cross-item constraints for candidate t, ignoring the
// assignment named by skip (used during swap evaluation).
func (s *Solver) feasibleAgainst(item Item, t time.Time, cons Constraints, assigned map[string]*Assignment, skip string) (violation, bool) {
	minInterval := cons.minIntervalFor(item.Platform)
	maxPerDay := cons.maxPerDayFor(item.Platform)
	day := t.UTC().Truncate(24 * time.Hour)

	sameDay := 0
	for id, other := range assigned {
		if id == skip || other.Time == nil || other.Conflict != "" {
			continue
		}
		if other.Platform != item.Platform {
			continue
		}
		if minInterval > 0 {
			gap := t.Sub(*other.Time)
			if gap < 0 {
				gap = -gap
			}
			if gap < minInterval {
				return violationInterval, false
			}
		}
		if other.Time.UTC().Truncate(24 * time.Hour).Equal(day) {
			sameDay++
		}
	}
	if maxPerDay > 0 && sameDay >= maxPerDay {
		return violationDailyCap, false
	}
	return 0, true
}

// improve runs bounded pairwise-swap passes over same-platform assignments,
// keeping a swap only when it raises the aggregate score without breaking
// any constraint.
func (s *Solver) improve(items []Item, order []int, cons Constraints, snap timing.Snapshot, assigned map[string]*Assignment) {
	itemByID := make(map[string]Item, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	for pass := 0; pass < s.cfg.ImprovePasses; pass++ {
		improved := false

		for i := 0; i < len(order); i++ {
			for j := i + 1; j < len(order); j++ {
				first := assigned[items[order[i]].ID]
				second := assigned[items[order[j]].ID]
				if first.Platform != second.Platform {
					continue
				}
				if first.Conflict != "" || second.Conflict != "" || first.Time == nil || second.Time == nil {
					continue
				}

				if s.trySwap(itemByID, first, second, cons, snap) {
					improved = true
				}
			}
		}

		if !improved {
			return
		}
	}
}

func (s *Solver) trySwap(itemByID map[string]Item, first, second *Assignment, cons Constraints, snap timing.Snapshot) bool {
	firstItem := itemByID[first.ItemID]
	secondItem := itemByID[second.ItemID]
	firstTime, secondTime := *first.Time, *second.Time

	// A same-platform swap leaves the platform's occupied slot set unchanged,
	// so spacing and daily caps survive automatically. Per-item bounds do
	// not, and must be rechecked for the exchanged times.
	if !cons.allowsItem(first.ItemID, secondTime) || !cons.allowsItem(second.ItemID, firstTime) {
		return false
	}

	firstScored, err := s.model.Score(firstItem.Platform, secondTime, firstItem.ContentType, firstItem.Audience, snap)
	if err != nil {
		return false
	}
	secondScored, err := s.model.Score(secondItem.Platform, firstTime, secondItem.ContentType, secondItem.Audience, snap)
	if err != nil {
		return false
	}

	const epsilon = 1e-9
	if firstScored.Score+secondScored.Score <= first.Score+second.Score+epsilon {
		return false
	}

	first.Time, second.Time = &secondTime, &firstTime
	first.Score, second.Score = firstScored.Score, secondScored.Score
	return true
}

// assignmentOrder sorts item indices by caller priority, falling back to
// stable insertion order.
func assignmentOrder(items []Item, priority map[string]int) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	if len(priority) == 0 {
		return order
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, oka := priority[items[order[a]].ID]
		pb, okb := priority[items[order[b]].ID]
		switch {
		case oka && okb:
			return pa < pb
		case oka:
			return true
		default:
			return false
		}
	})
	return order
}

func conflictReason(violations [violationCount]int) string {
	dominant := 0
	for v := 1; v < int(violationCount); v++ {
		if violations[v] > violations[dominant] {
			dominant = v
		}
	}
	if violations[dominant] == 0 {
		return "no_candidates_in_horizon"
	}
	return fmt.Sprintf("no_feasible_slot:%s", violationNames[dominant])
}
