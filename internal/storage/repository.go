// Package storage persists scheduling state. The core treats these
// interfaces as its repository contract; the Postgres implementation is one
// choice of backend.
package storage

import (
	"context"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

// ScheduleRepository stores schedules and their items
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *scheduling.Schedule, items []scheduling.ScheduleItem) error
	GetSchedule(ctx context.Context, id string) (*scheduling.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *scheduling.Schedule) error
	ListSchedulesPastDeadline(ctx context.Context, now time.Time) ([]scheduling.Schedule, error)

	GetItem(ctx context.Context, id string) (*scheduling.ScheduleItem, error)
	GetItems(ctx context.Context, ids []string) ([]scheduling.ScheduleItem, error)
	UpdateItem(ctx context.Context, item *scheduling.ScheduleItem) error
	// ListScheduleItems returns one page of a schedule's items in stable
	// (created_at, id) order, plus the cursor for the next page.
	ListScheduleItems(ctx context.Context, scheduleID string, params *pagination.Params) ([]scheduling.ScheduleItem, string, error)
	// AllScheduleItems returns the full item set, used to recompute counters.
	AllScheduleItems(ctx context.Context, scheduleID string) ([]scheduling.ScheduleItem, error)
}

// TrialRepository stores immutable optimization trial records
type TrialRepository interface {
	SaveTrial(ctx context.Context, trial *scheduling.OptimizationTrial) error
	GetTrial(ctx context.Context, id string) (*scheduling.OptimizationTrial, error)
}

// ProfileRepository stores timing profile versions and the consumed-event
// inbox. ConsumeBatch satisfies the learner's persistence contract.
type ProfileRepository interface {
	ConsumeBatch(ctx context.Context, platform scheduling.Platform, events []scheduling.PerformanceEvent, fold func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error)) error
	// LoadLatestProfiles returns the newest persisted version per platform.
	LoadLatestProfiles(ctx context.Context) ([]*timing.ProfileVersion, error)
}
