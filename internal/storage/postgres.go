package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/database"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

// PostgresStore implements the repository interfaces over Postgres
type PostgresStore struct {
	db     database.PostgresConn
	logger logging.Logger
}

// NewPostgresStore creates a store over an existing connection
func NewPostgresStore(db database.PostgresConn, logger logging.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

const scheduleColumns = `id, title, timezone, state, percent_complete, items_total,
	items_completed, items_failed, items_skipped, items_canceled,
	processing_deadline, created_at, updated_at`

func (s *PostgresStore) CreateSchedule(ctx context.Context, schedule *scheduling.Schedule, items []scheduling.ScheduleItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create schedule: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		schedule.ID, schedule.Title, schedule.Timezone, schedule.State,
		schedule.PercentComplete, schedule.ItemsTotal, schedule.ItemsCompleted,
		schedule.ItemsFailed, schedule.ItemsSkipped, schedule.ItemsCanceled,
		schedule.ProcessingDeadline, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	for i := range items {
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create schedule: %w", err)
	}
	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, item *scheduling.ScheduleItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal item metadata: %w", err)
	}
	itemErrors, err := json.Marshal(item.Errors)
	if err != nil {
		return fmt.Errorf("marshal item errors: %w", err)
	}
	if item.Metadata == nil {
		metadata = []byte("{}")
	}
	if item.Errors == nil {
		itemErrors = []byte("[]")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedule_items (id, schedule_id, content_id, platform,
			scheduled_time, state, metadata, errors, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.ScheduleID, item.ContentID, item.Platform,
		item.ScheduledTime, item.State, metadata, itemErrors,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule item %s: %w", item.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*scheduling.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, scheduling.NewNotFoundError("schedule %s not found", id).WithDetail("schedule_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return schedule, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*scheduling.Schedule, error) {
	var schedule scheduling.Schedule
	err := row.Scan(&schedule.ID, &schedule.Title, &schedule.Timezone,
		&schedule.State, &schedule.PercentComplete, &schedule.ItemsTotal,
		&schedule.ItemsCompleted, &schedule.ItemsFailed, &schedule.ItemsSkipped,
		&schedule.ItemsCanceled, &schedule.ProcessingDeadline,
		&schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *PostgresStore) UpdateSchedule(ctx context.Context, schedule *scheduling.Schedule) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET state = $2, percent_complete = $3, items_total = $4,
			items_completed = $5, items_failed = $6, items_skipped = $7,
			items_canceled = $8, processing_deadline = $9, updated_at = $10
		WHERE id = $1`,
		schedule.ID, schedule.State, schedule.PercentComplete,
		schedule.ItemsTotal, schedule.ItemsCompleted, schedule.ItemsFailed,
		schedule.ItemsSkipped, schedule.ItemsCanceled,
		schedule.ProcessingDeadline, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return scheduling.NewNotFoundError("schedule %s not found", schedule.ID)
	}
	return nil
}

func (s *PostgresStore) ListSchedulesPastDeadline(ctx context.Context, now time.Time) ([]scheduling.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE processing_deadline IS NOT NULL
		  AND processing_deadline < $1
		  AND state NOT IN ('completed', 'canceled', 'failed')
		ORDER BY processing_deadline ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list schedules past deadline: %w", err)
	}
	defer rows.Close()

	var schedules []scheduling.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

const itemColumns = `id, schedule_id, content_id, platform, scheduled_time,
	state, metadata, errors, created_at, updated_at`

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*scheduling.ScheduleItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM schedule_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, scheduling.NewNotFoundError("item %s not found", id).WithDetail("item_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetItems(ctx context.Context, ids []string) ([]scheduling.ScheduleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM schedule_items
		WHERE id = ANY($1)
		ORDER BY created_at ASC, id ASC`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func scanItem(row rowScanner) (*scheduling.ScheduleItem, error) {
	var (
		item      scheduling.ScheduleItem
		metadata  []byte
		itemErrs  []byte
		scheduled sql.NullTime
	)
	err := row.Scan(&item.ID, &item.ScheduleID, &item.ContentID, &item.Platform,
		&scheduled, &item.State, &metadata, &itemErrs,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduled.Valid {
		t := scheduled.Time
		item.ScheduledTime = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal item metadata: %w", err)
		}
	}
	if len(itemErrs) > 0 {
		if err := json.Unmarshal(itemErrs, &item.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal item errors: %w", err)
		}
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]scheduling.ScheduleItem, error) {
	var items []scheduling.ScheduleItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item *scheduling.ScheduleItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal item metadata: %w", err)
	}
	itemErrors, err := json.Marshal(item.Errors)
	if err != nil {
		return fmt.Errorf("marshal item errors: %w", err)
	}
	if item.Metadata == nil {
		metadata = []byte("{}")
	}
	if item.Errors == nil {
		itemErrors = []byte("[]")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE schedule_items SET scheduled_time = $2, state = $3,
			metadata = $4, errors = $5, updated_at = $6
		WHERE id = $1`,
		item.ID, item.ScheduledTime, item.State, metadata, itemErrors, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return scheduling.NewNotFoundError("item %s not found", item.ID)
	}
	return nil
}

func (s *PostgresStore) ListScheduleItems(ctx context.Context, scheduleID string, params *pagination.Params) ([]scheduling.ScheduleItem, string, error) {
	limit := pagination.ClampLimit(params.Limit)

	query := `SELECT ` + itemColumns + ` FROM schedule_items WHERE schedule_id = $1`
	args := []interface{}{scheduleID}
	if params.Cursor != nil {
		query += ` AND (created_at, id) > ($2, $3)`
		args = append(args, pagination.SortKeyTime(params.Cursor.SortKey), params.Cursor.ID)
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT %d", limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list schedule items: %w", err)
	}
	defer rows.Close()

	items, err := collectItems(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next = pagination.EncodeCursor(pagination.TimeSortKey(last.CreatedAt), last.ID)
	}
	return items, next, nil
}

func (s *PostgresStore) AllScheduleItems(ctx context.Context, scheduleID string) ([]scheduling.ScheduleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM schedule_items
		WHERE schedule_id = $1
		ORDER BY created_at ASC, id ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("all schedule items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *PostgresStore) SaveTrial(ctx context.Context, trial *scheduling.OptimizationTrial) error {
	changes, err := json.Marshal(trial.Changes)
	if err != nil {
		return fmt.Errorf("marshal trial changes: %w", err)
	}
	metrics, err := json.Marshal(trial.Metrics)
	if err != nil {
		return fmt.Errorf("marshal trial metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_trials (id, schedule_id, applied, changes, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		trial.ID, trial.ScheduleID, trial.Applied, changes, metrics, trial.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert optimization trial: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTrial(ctx context.Context, id string) (*scheduling.OptimizationTrial, error) {
	var (
		trial   scheduling.OptimizationTrial
		changes []byte
		metrics []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, applied, changes, metrics, created_at
		FROM optimization_trials WHERE id = $1`, id).
		Scan(&trial.ID, &trial.ScheduleID, &trial.Applied, &changes, &metrics, &trial.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, scheduling.NewNotFoundError("trial %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get trial: %w", err)
	}
	if err := json.Unmarshal(changes, &trial.Changes); err != nil {
		return nil, fmt.Errorf("unmarshal trial changes: %w", err)
	}
	if err := json.Unmarshal(metrics, &trial.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal trial metrics: %w", err)
	}
	return &trial, nil
}

// ConsumeBatch records event ids in the inbox and persists the folded profile
// version in one transaction, giving the learner exactly-once consumption.
// Events whose id already sits in the inbox are filtered out before folding.
func (s *PostgresStore) ConsumeBatch(ctx context.Context, platform scheduling.Platform, events []scheduling.PerformanceEvent, fold func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fresh []scheduling.PerformanceEvent
	for _, event := range events {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO performance_event_inbox
				(event_id, item_id, platform, observed_engagement, observed_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (event_id) DO NOTHING`,
			event.EventID, event.ItemID, event.Platform,
			event.ObservedEngagement, event.ObservedAt)
		if err != nil {
			return fmt.Errorf("insert inbox row %s: %w", event.EventID, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			fresh = append(fresh, event)
		}
	}

	version, err := fold(fresh)
	if err != nil {
		return err
	}
	if version != nil {
		corrections, err := json.Marshal(version.Corrections)
		if err != nil {
			return fmt.Errorf("marshal profile corrections: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO timing_profiles (platform, version, corrections, updated_at)
			VALUES ($1, $2, $3, $4)`,
			version.Platform, version.Version, corrections, version.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert profile version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consume batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadLatestProfiles(ctx context.Context) ([]*timing.ProfileVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (platform) platform, version, corrections, updated_at
		FROM timing_profiles
		ORDER BY platform, updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("load latest profiles: %w", err)
	}
	defer rows.Close()

	var versions []*timing.ProfileVersion
	for rows.Next() {
		var (
			version     timing.ProfileVersion
			corrections []byte
		)
		if err := rows.Scan(&version.Platform, &version.Version, &corrections, &version.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile version: %w", err)
		}
		if err := json.Unmarshal(corrections, &version.Corrections); err != nil {
			return nil, fmt.Errorf("unmarshal profile corrections: %w", err)
		}
		versions = append(versions, &version)
	}
	return versions, rows.Err()
}
