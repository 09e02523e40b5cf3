// Package optimizer coordinates scoring and solving into the two user-facing
// operations: slot recommendations and optimization trials.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/schedules"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/solver"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/storage"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

const (
	// maxRecommendWindow bounds how far out a recommendation query may look
	maxRecommendWindow = 31 * 24 * time.Hour
	// defaultOptimizeHorizon is used when a solve request sets no horizon
	defaultOptimizeHorizon = 7 * 24 * time.Hour
	minStep                = 5 * time.Minute
)

// Orchestrator wires the timing model, profile store, and solver together
type Orchestrator struct {
	model    *timing.Model
	profiles *timing.Store
	registry *platforms.Registry
	solver   *solver.Solver
	store    storage.ScheduleRepository
	trials   storage.TrialRepository
	manager  *schedules.Manager
	logger   logging.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(model *timing.Model, profiles *timing.Store, registry *platforms.Registry, slv *solver.Solver, store storage.ScheduleRepository, trials storage.TrialRepository, manager *schedules.Manager, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		model:    model,
		profiles: profiles,
		registry: registry,
		solver:   slv,
		store:    store,
		trials:   trials,
		manager:  manager,
		logger:   logger,
		now:      time.Now,
	}
}

// RecommendRequest asks for scored posting slots inside a window
type RecommendRequest struct {
	Platforms   []scheduling.Platform   `json:"platforms,omitempty"`
	WindowStart time.Time               `json:"window_start"`
	WindowEnd   time.Time               `json:"window_end"`
	Step        time.Duration           `json:"step,omitempty"`
	ContentType string                  `json:"content_type,omitempty"`
	Audience    *timing.AudienceProfile `json:"audience,omitempty"`
}

type candidate struct {
	slot scheduling.RecommendationSlot
	// id orders candidates with equal scores: zero-padded window start
	// millis, then platform. Lexicographic order matches time-then-platform.
	id string
}

// Recommend scores the candidate grid for each requested platform and
// returns slots ordered best-first. The computation is deterministic for a
// fixed profile snapshot, so the opaque cursor can re-derive the page
// boundary on the next call.
func (o *Orchestrator) Recommend(ctx context.Context, req *RecommendRequest, page *pagination.Params) ([]scheduling.RecommendationSlot, string, error) {
	step := req.Step
	if step == 0 {
		step = 30 * time.Minute
	}
	if step < minStep {
		return nil, "", scheduling.NewValidationError("step must be at least %s", minStep)
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, "", scheduling.NewValidationError("window_end must be after window_start")
	}
	if req.WindowEnd.Sub(req.WindowStart) > maxRecommendWindow {
		return nil, "", scheduling.NewValidationError("window may not exceed %s", maxRecommendWindow)
	}
	if req.Audience != nil {
		if err := req.Audience.Validate(); err != nil {
			return nil, "", err
		}
	}

	targets := req.Platforms
	if len(targets) == 0 {
		targets = o.registry.Platforms()
	}
	for _, platform := range targets {
		if _, ok := o.registry.Get(platform); !ok {
			return nil, "", scheduling.NewValidationError("unknown platform %q", platform)
		}
	}

	snap := o.profiles.Snapshot()
	var candidates []candidate
	for _, platform := range targets {
		for t := req.WindowStart.UTC(); t.Before(req.WindowEnd); t = t.Add(step) {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
			result, err := o.model.Score(platform, t, req.ContentType, req.Audience, snap)
			if err != nil {
				return nil, "", err
			}
			candidates = append(candidates, candidate{
				slot: scheduling.RecommendationSlot{
					WindowStart: t,
					WindowEnd:   t.Add(step),
					Score:       result.Score,
					Confidence:  result.Confidence,
					Reasons:     result.Reasons,
					Platforms:   []scheduling.Platform{platform},
				},
				id: fmt.Sprintf("%013d:%s", t.UnixMilli(), platform),
			})
		}
	}

	// Best score first; equal scores order by window start, then platform,
	// which is exactly the lexicographic order of candidate ids.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].slot.Score != candidates[j].slot.Score {
			return candidates[i].slot.Score > candidates[j].slot.Score
		}
		return candidates[i].id < candidates[j].id
	})

	merged := mergeByWindow(candidates)

	start := 0
	if page != nil && page.Cursor != nil {
		start = len(merged)
		for i, c := range merged {
			if c.afterCursor(page.Cursor) {
				start = i
				break
			}
		}
	}

	limit := pagination.ClampLimit(0)
	if page != nil {
		limit = pagination.ClampLimit(page.Limit)
	}

	end := start + limit
	next := ""
	if end < len(merged) {
		last := merged[end-1]
		next = pagination.EncodeCursor(pagination.ScoreSortKey(last.slot.Score), last.id)
	} else {
		end = len(merged)
	}

	slots := make([]scheduling.RecommendationSlot, 0, end-start)
	for _, c := range merged[start:end] {
		slots = append(slots, c.slot)
	}
	return slots, next, nil
}

// afterCursor reports whether the candidate sorts strictly after the cursor
// position in (score desc, id asc) order.
func (c candidate) afterCursor(cursor *pagination.Cursor) bool {
	key := pagination.ScoreSortKey(c.slot.Score)
	if key != cursor.SortKey {
		return key < cursor.SortKey
	}
	return c.id > cursor.ID
}

// mergeByWindow collapses adjacent candidates that share a window and score
// into one slot listing every platform, so a caller sees "9:00 works for
// instagram and tiktok" rather than two rows.
func mergeByWindow(candidates []candidate) []candidate {
	var out []candidate
	for _, c := range candidates {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.slot.WindowStart.Equal(c.slot.WindowStart) && prev.slot.Score == c.slot.Score {
				prev.slot.Platforms = append(prev.slot.Platforms, c.slot.Platforms...)
				if c.slot.Confidence < prev.slot.Confidence {
					prev.slot.Confidence = c.slot.Confidence
				}
				prev.slot.Reasons = mergeReasons(prev.slot.Reasons, c.slot.Reasons)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func mergeReasons(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, reason := range append(append([]string{}, a...), b...) {
		if !seen[reason] {
			seen[reason] = true
			out = append(out, reason)
		}
	}
	sort.Strings(out)
	return out
}

// OptimizeRequest asks for a constraint-satisfying assignment of items
type OptimizeRequest struct {
	// ScheduleID scopes the solve to a stored schedule's open items.
	ScheduleID *string `json:"schedule_id,omitempty"`
	// ItemIDs selects ad-hoc targets instead; preview only.
	ItemIDs     []string                `json:"item_ids,omitempty"`
	Constraints solver.Constraints      `json:"constraints"`
	Audience    *timing.AudienceProfile `json:"audience,omitempty"`
	// Apply commits the assignments; false previews them.
	Apply bool `json:"apply"`
}

// Optimize runs one optimization trial. With Apply set the winning
// assignments are committed through the schedule manager; otherwise the
// trial records what would change and nothing is touched.
func (o *Orchestrator) Optimize(ctx context.Context, req *OptimizeRequest) (*scheduling.OptimizationTrial, error) {
	if req.ScheduleID == nil && len(req.ItemIDs) == 0 {
		return nil, scheduling.NewValidationError("schedule_id or item_ids is required")
	}
	if req.ScheduleID != nil && len(req.ItemIDs) > 0 {
		return nil, scheduling.NewValidationError("schedule_id and item_ids are mutually exclusive")
	}
	if req.Apply && req.ScheduleID == nil {
		return nil, scheduling.NewValidationError("apply requires schedule_id")
	}
	if req.Audience != nil {
		if err := req.Audience.Validate(); err != nil {
			return nil, err
		}
	}

	items, err := o.loadTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, scheduling.NewConflictError("no open items to optimize")
	}

	// Guard the schedule while an applying solve is in flight so concurrent
	// cancel/apply calls conflict instead of interleaving.
	var schedule *scheduling.Schedule
	if req.Apply {
		schedule, err = o.store.GetSchedule(ctx, *req.ScheduleID)
		if err != nil {
			return nil, err
		}
		if schedule.State == scheduling.SchedulePending {
			if schedule, err = o.manager.Transition(ctx, schedule.ID, scheduling.ScheduleRunning); err != nil {
				return nil, err
			}
		}
		if schedule, err = o.manager.Transition(ctx, schedule.ID, scheduling.ScheduleOptimizing); err != nil {
			return nil, err
		}
		defer func() {
			if _, backErr := o.manager.Transition(context.Background(), schedule.ID, scheduling.ScheduleRunning); backErr != nil {
				o.logger.WithError(backErr).WithField("schedule_id", schedule.ID).Error("Failed to leave optimizing state")
			}
		}()
	}

	cons := o.resolveConstraints(req.Constraints, items)
	solverItems := make([]solver.Item, 0, len(items))
	for _, item := range items {
		solverItems = append(solverItems, solver.Item{
			ID:          item.ID,
			Platform:    item.Platform,
			ContentType: item.Metadata["content_type"],
			Current:     item.ScheduledTime,
			Audience:    req.Audience,
		})
	}

	snap := o.profiles.Snapshot()
	result, err := o.solver.Solve(ctx, solverItems, cons, snap)
	if err != nil {
		return nil, err
	}

	trial := o.buildTrial(req, items, solverItems, result, snap)

	if req.Apply {
		if err := o.manager.ApplyAssignments(ctx, *req.ScheduleID, result.Assignments); err != nil {
			return nil, err
		}
		trial.Applied = true
	}

	if err := o.trials.SaveTrial(ctx, trial); err != nil {
		return nil, err
	}
	o.manager.NotifyOptimization(trial)

	o.logger.WithFields(logging.Fields{
		"trial_id":            trial.ID,
		"applied":             trial.Applied,
		"items_total":         trial.Metrics.ItemsTotal,
		"items_moved":         trial.Metrics.ItemsMoved,
		"items_unschedulable": trial.Metrics.ItemsUnschedulable,
	}).Info("Optimization trial finished")
	return trial, nil
}

// GetTrial returns a stored trial record
func (o *Orchestrator) GetTrial(ctx context.Context, id string) (*scheduling.OptimizationTrial, error) {
	return o.trials.GetTrial(ctx, id)
}

// loadTargets resolves the open items a solve operates on
func (o *Orchestrator) loadTargets(ctx context.Context, req *OptimizeRequest) ([]scheduling.ScheduleItem, error) {
	var items []scheduling.ScheduleItem
	var err error
	if req.ScheduleID != nil {
		items, err = o.store.AllScheduleItems(ctx, *req.ScheduleID)
	} else {
		items, err = o.store.GetItems(ctx, req.ItemIDs)
	}
	if err != nil {
		return nil, err
	}

	open := items[:0]
	for _, item := range items {
		if item.State == scheduling.ItemPending || item.State == scheduling.ItemScheduled {
			open = append(open, item)
		}
	}
	return open, nil
}

// resolveConstraints fills solver defaults: a horizon when none was given
// and per-platform spacing rules from the platform strategies.
func (o *Orchestrator) resolveConstraints(cons solver.Constraints, items []scheduling.ScheduleItem) solver.Constraints {
	if cons.Horizon.Start.IsZero() && cons.Horizon.End.IsZero() {
		now := o.now().UTC().Truncate(time.Minute)
		cons.Horizon = solver.Window{Start: now, End: now.Add(defaultOptimizeHorizon)}
	}

	if cons.MinInterval == nil {
		cons.MinInterval = make(map[scheduling.Platform]time.Duration)
	}
	if cons.MaxPerDay == nil {
		cons.MaxPerDay = make(map[scheduling.Platform]int)
	}
	for _, item := range items {
		strategy, ok := o.registry.Get(item.Platform)
		if !ok {
			continue
		}
		if _, set := cons.MinInterval[item.Platform]; !set {
			cons.MinInterval[item.Platform] = strategy.DefaultMinInterval()
		}
		if _, set := cons.MaxPerDay[item.Platform]; !set {
			cons.MaxPerDay[item.Platform] = strategy.DefaultMaxPerDay()
		}
	}
	return cons
}

// buildTrial turns a solve result into the immutable trial record
func (o *Orchestrator) buildTrial(req *OptimizeRequest, items []scheduling.ScheduleItem, solverItems []solver.Item, result solver.Result, snap timing.Snapshot) *scheduling.OptimizationTrial {
	itemByID := make(map[string]scheduling.ScheduleItem, len(items))
	for _, item := range items {
		itemByID[item.ID] = item
	}

	var metrics scheduling.TrialMetrics
	metrics.ItemsTotal = len(result.Assignments)
	metrics.ScoreAfter = result.TotalScore

	changes := make([]scheduling.ItemChange, 0, len(result.Assignments))
	for i, assignment := range result.Assignments {
		item := itemByID[assignment.ItemID]
		change := scheduling.ItemChange{
			ItemID:       assignment.ItemID,
			Platform:     assignment.Platform,
			PreviousTime: item.ScheduledTime,
			NewTime:      assignment.Time,
			ScoreAfter:   assignment.Score,
		}

		if item.ScheduledTime != nil {
			if before, err := o.model.Score(item.Platform, *item.ScheduledTime, solverItems[i].ContentType, req.Audience, snap); err == nil {
				change.ScoreBefore = before.Score
				metrics.ScoreBefore += before.Score
			}
		}

		switch {
		case assignment.Conflict != "":
			change.Unschedulable = true
			change.Reason = assignment.Conflict
			change.NewTime = item.ScheduledTime
			change.ScoreAfter = change.ScoreBefore
			metrics.ItemsUnschedulable++
		case item.ScheduledTime != nil && assignment.Time != nil && item.ScheduledTime.Equal(*assignment.Time):
			change.Reason = "unchanged"
			metrics.ItemsUnchanged++
		default:
			change.Reason = moveReason(item.ScheduledTime)
			metrics.ItemsMoved++
		}
		changes = append(changes, change)
	}

	return &scheduling.OptimizationTrial{
		ID:         uuid.New().String(),
		ScheduleID: req.ScheduleID,
		Applied:    false,
		Changes:    changes,
		Metrics:    metrics,
		CreatedAt:  o.now().UTC(),
	}
}

func moveReason(previous *time.Time) string {
	if previous == nil {
		return "assigned"
	}
	return "moved"
}
