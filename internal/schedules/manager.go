// Package schedules owns the schedule lifecycle: creation, guarded state
// transitions, assignment application, publish feedback, and the derived
// progress counters. Every durable mutation flows through the Manager so the
// stored counters and the emitted events stay consistent.
package schedules

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/notifier"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/solver"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/storage"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/kafka"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

// EventSink receives realtime events for connected subscribers
type EventSink interface {
	Publish(event notifier.Event)
}

// Config tunes manager behavior
type Config struct {
	// DefaultDeadline bounds processing when a request does not set one.
	DefaultDeadline time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		DefaultDeadline: 24 * time.Hour,
	}
}

// Manager coordinates schedule state changes against storage and fans the
// resulting events out to the websocket hub and the event bus.
type Manager struct {
	store    storage.ScheduleRepository
	registry *platforms.Registry
	events   EventSink
	producer kafka.ProducerInterface
	logger   logging.Logger
	cfg      Config
	now      func() time.Time
}

// NewManager creates a schedule manager. events and producer may be nil when
// the corresponding transport is not configured.
func NewManager(store storage.ScheduleRepository, registry *platforms.Registry, events EventSink, producer kafka.ProducerInterface, logger logging.Logger, cfg Config) *Manager {
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = DefaultConfig().DefaultDeadline
	}
	return &Manager{
		store:    store,
		registry: registry,
		events:   events,
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateItemRequest describes one item of a new schedule
type CreateItemRequest struct {
	ContentID     string              `json:"content_id"`
	Platform      scheduling.Platform `json:"platform"`
	ScheduledTime *time.Time          `json:"scheduled_time,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
}

// CreateScheduleRequest describes a new schedule
type CreateScheduleRequest struct {
	Title              string              `json:"title"`
	Timezone           string              `json:"timezone"`
	ProcessingDeadline *time.Time          `json:"processing_deadline,omitempty"`
	Items              []CreateItemRequest `json:"items"`
}

// Create validates the request and persists a new pending schedule with its
// items in one transaction.
func (m *Manager) Create(ctx context.Context, req *CreateScheduleRequest) (*scheduling.Schedule, []scheduling.ScheduleItem, error) {
	if req.Title == "" {
		return nil, nil, scheduling.NewValidationError("title is required")
	}
	if req.Timezone == "" {
		return nil, nil, scheduling.NewValidationError("timezone is required")
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, nil, scheduling.NewValidationError("unknown timezone %q", req.Timezone)
	}
	if len(req.Items) == 0 {
		return nil, nil, scheduling.NewValidationError("schedule must contain at least one item")
	}

	now := m.now().UTC()
	deadline := req.ProcessingDeadline
	if deadline == nil {
		d := now.Add(m.cfg.DefaultDeadline)
		deadline = &d
	} else if !deadline.After(now) {
		return nil, nil, scheduling.NewValidationError("processing_deadline must be in the future")
	}

	schedule := &scheduling.Schedule{
		ID:                 uuid.New().String(),
		Title:              req.Title,
		Timezone:           req.Timezone,
		State:              scheduling.SchedulePending,
		ItemsTotal:         len(req.Items),
		ProcessingDeadline: deadline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	items := make([]scheduling.ScheduleItem, 0, len(req.Items))
	for i, itemReq := range req.Items {
		if itemReq.ContentID == "" {
			return nil, nil, scheduling.NewValidationError("items[%d]: content_id is required", i)
		}
		if _, ok := m.registry.Get(itemReq.Platform); !ok {
			return nil, nil, scheduling.NewValidationError("items[%d]: unknown platform %q", i, itemReq.Platform)
		}
		state := scheduling.ItemPending
		if itemReq.ScheduledTime != nil {
			state = scheduling.ItemScheduled
		}
		items = append(items, scheduling.ScheduleItem{
			ID:            uuid.New().String(),
			ScheduleID:    schedule.ID,
			ContentID:     itemReq.ContentID,
			Platform:      itemReq.Platform,
			ScheduledTime: itemReq.ScheduledTime,
			State:         state,
			Metadata:      itemReq.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := m.store.CreateSchedule(ctx, schedule, items); err != nil {
		return nil, nil, err
	}

	m.logger.WithFields(logging.Fields{
		"schedule_id": schedule.ID,
		"items":       len(items),
		"timezone":    schedule.Timezone,
	}).Info("Schedule created")

	m.emitStateChange(schedule, "")
	return schedule, items, nil
}

// Get returns a schedule with one page of its items
func (m *Manager) Get(ctx context.Context, id string, params *pagination.Params) (*scheduling.Schedule, []scheduling.ScheduleItem, string, error) {
	schedule, err := m.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, nil, "", err
	}
	items, next, err := m.store.ListScheduleItems(ctx, id, params)
	if err != nil {
		return nil, nil, "", err
	}
	return schedule, items, next, nil
}

// GetItem returns one item
func (m *Manager) GetItem(ctx context.Context, id string) (*scheduling.ScheduleItem, error) {
	return m.store.GetItem(ctx, id)
}

// Transition moves a schedule to the target state, enforcing the lifecycle
// state machine. Illegal transitions return a conflict error and leave the
// schedule untouched.
func (m *Manager) Transition(ctx context.Context, id string, target scheduling.ScheduleState) (*scheduling.Schedule, error) {
	schedule, err := m.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.transition(ctx, schedule, target)
}

func (m *Manager) transition(ctx context.Context, schedule *scheduling.Schedule, target scheduling.ScheduleState) (*scheduling.Schedule, error) {
	if !schedule.State.CanTransitionTo(target) {
		return nil, scheduling.NewTransitionError("schedule", schedule.ID, string(schedule.State), string(target))
	}

	previous := schedule.State
	schedule.State = target
	schedule.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateSchedule(ctx, schedule); err != nil {
		schedule.State = previous
		return nil, err
	}

	m.logger.WithFields(logging.Fields{
		"schedule_id": schedule.ID,
		"from":        previous,
		"to":          target,
	}).Info("Schedule state changed")

	m.emitStateChange(schedule, previous)
	return schedule, nil
}

// Start moves a pending schedule into running
func (m *Manager) Start(ctx context.Context, id string) (*scheduling.Schedule, error) {
	return m.Transition(ctx, id, scheduling.ScheduleRunning)
}

// Cancel cooperatively cancels a schedule. Prospective items (pending or
// scheduled) are canceled; items already published, failed, or skipped keep
// their state. Canceling a schedule already in a terminal state is a
// conflict.
func (m *Manager) Cancel(ctx context.Context, id string) (*scheduling.Schedule, error) {
	schedule, err := m.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule, err = m.transition(ctx, schedule, scheduling.ScheduleCanceling)
	if err != nil {
		return nil, err
	}

	items, err := m.store.AllScheduleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range items {
		item := &items[i]
		if !item.State.CanTransitionTo(scheduling.ItemCanceled) {
			continue
		}
		if err := m.transitionItem(ctx, item, scheduling.ItemCanceled, nil); err != nil {
			return nil, err
		}
	}

	if err := m.recompute(ctx, schedule); err != nil {
		return nil, err
	}
	return m.transition(ctx, schedule, scheduling.ScheduleCanceled)
}

// ApplyAssignments commits solver output: each scheduled item gets its new
// time, pending items move to scheduled. Conflicted assignments are skipped
// here; the caller reports them through the trial record.
func (m *Manager) ApplyAssignments(ctx context.Context, scheduleID string, assignments []solver.Assignment) error {
	schedule, err := m.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.State.Terminal() || schedule.State == scheduling.ScheduleCanceling {
		return scheduling.NewConflictError("schedule %s is %s and cannot accept assignments", scheduleID, schedule.State)
	}

	for _, assignment := range assignments {
		if assignment.Conflict != "" || assignment.Time == nil {
			continue
		}
		item, err := m.store.GetItem(ctx, assignment.ItemID)
		if err != nil {
			return err
		}
		if item.State != scheduling.ItemPending && item.State != scheduling.ItemScheduled {
			// Item completed or canceled since the solve started; leave it.
			continue
		}

		when := *assignment.Time
		item.ScheduledTime = &when
		if item.State == scheduling.ItemPending {
			if err := m.transitionItem(ctx, item, scheduling.ItemScheduled, nil); err != nil {
				return err
			}
		} else {
			item.UpdatedAt = m.now().UTC()
			if err := m.store.UpdateItem(ctx, item); err != nil {
				return err
			}
			m.emitItemEvent(item)
		}
	}

	return m.recompute(ctx, schedule)
}

// ReportItemResult records the publish worker's outcome for one item and
// refreshes the schedule's progress. Outcome must be published, failed, or
// skipped.
func (m *Manager) ReportItemResult(ctx context.Context, itemID string, outcome scheduling.ItemState, itemErr *scheduling.ItemError) (*scheduling.ScheduleItem, error) {
	switch outcome {
	case scheduling.ItemPublished, scheduling.ItemFailed, scheduling.ItemSkipped:
	default:
		return nil, scheduling.NewValidationError("invalid item outcome %q", outcome)
	}

	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := m.transitionItem(ctx, item, outcome, itemErr); err != nil {
		return nil, err
	}

	schedule, err := m.store.GetSchedule(ctx, item.ScheduleID)
	if err != nil {
		return nil, err
	}
	if err := m.recompute(ctx, schedule); err != nil {
		return nil, err
	}
	if err := m.maybeComplete(ctx, schedule); err != nil {
		return nil, err
	}
	return item, nil
}

// FailPastDeadline marks an overdue schedule failed. Items already in a
// terminal state keep it; prospective items fail with a deadline error so
// every item ends in a well-defined state.
func (m *Manager) FailPastDeadline(ctx context.Context, scheduleID string) error {
	schedule, err := m.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !schedule.State.CanTransitionTo(scheduling.ScheduleFailed) {
		return nil
	}

	items, err := m.store.AllScheduleItems(ctx, scheduleID)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	for i := range items {
		item := &items[i]
		if !item.State.CanTransitionTo(scheduling.ItemFailed) {
			continue
		}
		deadlineErr := &scheduling.ItemError{
			Code:       string(scheduling.CodeDeadlineExceeded),
			Message:    "schedule processing deadline exceeded",
			OccurredAt: now,
		}
		if err := m.transitionItem(ctx, item, scheduling.ItemFailed, deadlineErr); err != nil {
			return err
		}
	}

	if err := m.recompute(ctx, schedule); err != nil {
		return err
	}
	_, err = m.transition(ctx, schedule, scheduling.ScheduleFailed)
	return err
}

func (m *Manager) transitionItem(ctx context.Context, item *scheduling.ScheduleItem, target scheduling.ItemState, itemErr *scheduling.ItemError) error {
	if !item.State.CanTransitionTo(target) {
		return scheduling.NewTransitionError("item", item.ID, string(item.State), string(target))
	}
	item.State = target
	if itemErr != nil {
		item.Errors = append(item.Errors, *itemErr)
	}
	item.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateItem(ctx, item); err != nil {
		return err
	}
	m.emitItemEvent(item)
	return nil
}

// recompute rebuilds the schedule's counters and percent complete from the
// authoritative item set and persists the result.
func (m *Manager) recompute(ctx context.Context, schedule *scheduling.Schedule) error {
	items, err := m.store.AllScheduleItems(ctx, schedule.ID)
	if err != nil {
		return err
	}

	var completed, failed, skipped, canceled int
	for _, item := range items {
		switch item.State {
		case scheduling.ItemPublished:
			completed++
		case scheduling.ItemFailed:
			failed++
		case scheduling.ItemSkipped:
			skipped++
		case scheduling.ItemCanceled:
			canceled++
		}
	}

	schedule.ItemsTotal = len(items)
	schedule.ItemsCompleted = completed
	schedule.ItemsFailed = failed
	schedule.ItemsSkipped = skipped
	schedule.ItemsCanceled = canceled
	if schedule.ItemsTotal > 0 {
		terminal := completed + failed + skipped + canceled
		schedule.PercentComplete = float64(terminal) / float64(schedule.ItemsTotal) * 100
	}
	schedule.UpdatedAt = m.now().UTC()

	if err := m.store.UpdateSchedule(ctx, schedule); err != nil {
		return err
	}

	m.emit(notifier.NewEvent(notifier.EventScheduleProgress, schedule.ID, map[string]interface{}{
		"percent_complete": schedule.PercentComplete,
		"items_total":      schedule.ItemsTotal,
		"items_completed":  schedule.ItemsCompleted,
		"items_failed":     schedule.ItemsFailed,
		"items_skipped":    schedule.ItemsSkipped,
		"items_canceled":   schedule.ItemsCanceled,
	}))
	return nil
}

// maybeComplete finishes a running schedule once every item is terminal
func (m *Manager) maybeComplete(ctx context.Context, schedule *scheduling.Schedule) error {
	if schedule.State != scheduling.ScheduleRunning && schedule.State != scheduling.ScheduleCompleting {
		return nil
	}
	items, err := m.store.AllScheduleItems(ctx, schedule.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if !item.State.Terminal() {
			return nil
		}
	}

	if schedule.State == scheduling.ScheduleRunning {
		if schedule, err = m.transition(ctx, schedule, scheduling.ScheduleCompleting); err != nil {
			return err
		}
	}
	_, err = m.transition(ctx, schedule, scheduling.ScheduleCompleted)
	return err
}

// NotifyOptimization publishes the outcome of an optimization trial
func (m *Manager) NotifyOptimization(trial *scheduling.OptimizationTrial) {
	scheduleID := ""
	if trial.ScheduleID != nil {
		scheduleID = *trial.ScheduleID
	}
	m.emit(notifier.NewEvent(notifier.EventOptimizationCompleted, scheduleID, map[string]interface{}{
		"trial_id":            trial.ID,
		"applied":             trial.Applied,
		"items_moved":         trial.Metrics.ItemsMoved,
		"items_unschedulable": trial.Metrics.ItemsUnschedulable,
		"score_before":        trial.Metrics.ScoreBefore,
		"score_after":         trial.Metrics.ScoreAfter,
	}))
}

func (m *Manager) emitStateChange(schedule *scheduling.Schedule, previous scheduling.ScheduleState) {
	m.emit(notifier.NewEvent(notifier.EventScheduleStateChanged, schedule.ID, map[string]interface{}{
		"state":          schedule.State,
		"previous_state": previous,
	}))
}

func (m *Manager) emitItemEvent(item *scheduling.ScheduleItem) {
	data := map[string]interface{}{
		"item_id":  item.ID,
		"platform": item.Platform,
		"state":    item.State,
	}
	if item.ScheduledTime != nil {
		data["scheduled_time"] = item.ScheduledTime.UTC().Format(time.RFC3339)
	}
	m.emit(notifier.NewEvent(notifier.ItemEventType(item.State), item.ScheduleID, data))
}

// emit fans an event out to websocket subscribers and to the event bus. Bus
// failures are logged, never surfaced; the durable state change already
// happened.
func (m *Manager) emit(event notifier.Event) {
	if m.events != nil {
		m.events.Publish(event)
	}
	if m.producer != nil {
		busEvent := kafka.Event{
			ID:         event.ID,
			Type:       event.Type,
			Source:     "almanac",
			ScheduleID: event.ScheduleID,
			Sequence:   event.Sequence,
			Data:       event.Data,
			Timestamp:  event.Timestamp,
		}
		if err := m.producer.PublishEvent(busEvent); err != nil {
			m.logger.WithError(err).WithFields(logging.Fields{
				"event_type":  event.Type,
				"schedule_id": event.ScheduleID,
			}).Warn("Failed to publish event to bus")
		}
	}
}
