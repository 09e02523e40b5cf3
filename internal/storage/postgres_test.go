package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, logging.NewLogger()), mock
}

var scheduleCols = []string{
	"id", "title", "timezone", "state", "percent_complete", "items_total",
	"items_completed", "items_failed", "items_skipped", "items_canceled",
	"processing_deadline", "created_at", "updated_at",
}

func TestGetSchedule(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM schedules WHERE id").
		WithArgs("sched-1").
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow("sched-1", "spring launch", "UTC", "running", 50.0, 2, 1, 0, 0, 0, now.Add(time.Hour), now, now))

	schedule, err := store.GetSchedule(context.Background(), "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "sched-1", schedule.ID)
	assert.Equal(t, scheduling.ScheduleRunning, schedule.State)
	assert.Equal(t, 50.0, schedule.PercentComplete)
	require.NotNil(t, schedule.ProcessingDeadline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScheduleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM schedules WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(scheduleCols))

	_, err := store.GetSchedule(context.Background(), "ghost")
	var typed *scheduling.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, scheduling.CodeNotFound, typed.Code)
}

func TestUpdateScheduleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE schedules SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateSchedule(context.Background(), &scheduling.Schedule{ID: "ghost"})
	var typed *scheduling.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, scheduling.CodeNotFound, typed.Code)
}

func TestGetItemDecodesJSONColumns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	itemCols := []string{
		"id", "schedule_id", "content_id", "platform", "scheduled_time",
		"state", "metadata", "errors", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM schedule_items WHERE id").
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("item-1", "sched-1", "content-1", "youtube", nil, "failed",
				[]byte(`{"content_type":"short"}`),
				[]byte(`[{"code":"upload_failed","message":"rejected"}]`),
				now, now))

	item, err := store.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Nil(t, item.ScheduledTime)
	assert.Equal(t, "short", item.Metadata["content_type"])
	require.Len(t, item.Errors, 1)
	assert.Equal(t, "upload_failed", item.Errors[0].Code)
}

func TestListScheduleItemsPaginates(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	itemCols := []string{
		"id", "schedule_id", "content_id", "platform", "scheduled_time",
		"state", "metadata", "errors", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(itemCols)
	// One row past the limit signals another page
	for _, id := range []string{"item-1", "item-2", "item-3"} {
		rows.AddRow(id, "sched-1", "content", "youtube", nil, "pending",
			[]byte(`{}`), []byte(`[]`), now, now)
	}
	mock.ExpectQuery("FROM schedule_items WHERE schedule_id").
		WithArgs("sched-1").
		WillReturnRows(rows)

	items, next, err := store.ListScheduleItems(context.Background(), "sched-1", &pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotEmpty(t, next)

	cursor, err := pagination.DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, "item-2", cursor.ID)
	assert.Equal(t, pagination.TimeSortKey(now), cursor.SortKey)
}

func TestListScheduleItemsCursorKeepsMicroseconds(t *testing.T) {
	store, mock := newMockStore(t)
	// created_at carries sub-millisecond digits, matching what TIMESTAMPTZ
	// hands back. The next-page boundary has to equal it exactly or the
	// tuple comparison re-admits rows from the previous page.
	createdAt := time.Date(2026, time.March, 3, 9, 0, 0, 123456000, time.UTC)

	itemCols := []string{
		"id", "schedule_id", "content_id", "platform", "scheduled_time",
		"state", "metadata", "errors", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(itemCols)
	for _, id := range []string{"item-1", "item-2"} {
		rows.AddRow(id, "sched-1", "content", "youtube", nil, "pending",
			[]byte(`{}`), []byte(`[]`), createdAt, createdAt)
	}
	mock.ExpectQuery("FROM schedule_items WHERE schedule_id").
		WithArgs("sched-1").
		WillReturnRows(rows)

	_, next, err := store.ListScheduleItems(context.Background(), "sched-1", &pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, next)

	cursor, err := pagination.DecodeCursor(next)
	require.NoError(t, err)
	boundary := pagination.SortKeyTime(cursor.SortKey)
	assert.True(t, boundary.Equal(createdAt), "boundary %v != created_at %v", boundary, createdAt)

	mock.ExpectQuery("FROM schedule_items WHERE schedule_id").
		WithArgs("sched-1", boundary, cursor.ID).
		WillReturnRows(sqlmock.NewRows(itemCols))

	_, _, err = store.ListScheduleItems(context.Background(), "sched-1", &pagination.Params{Limit: 1, Cursor: cursor})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeBatchSkipsSeenEvents(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	events := []scheduling.PerformanceEvent{
		{EventID: "evt-1", ItemID: "item-1", Platform: scheduling.PlatformYouTube, ObservedEngagement: 1.2, ObservedAt: now},
		{EventID: "evt-2", ItemID: "item-2", Platform: scheduling.PlatformYouTube, ObservedEngagement: 0.4, ObservedAt: now},
	}

	mock.ExpectBegin()
	// evt-1 is new, evt-2 already sits in the inbox
	mock.ExpectExec("INSERT INTO performance_event_inbox").
		WithArgs("evt-1", "item-1", "youtube", 1.2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO performance_event_inbox").
		WithArgs("evt-2", "item-2", "youtube", 0.4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO timing_profiles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var folded []scheduling.PerformanceEvent
	err := store.ConsumeBatch(context.Background(), scheduling.PlatformYouTube, events,
		func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error) {
			folded = fresh
			return timing.NewProfileVersion(scheduling.PlatformYouTube), nil
		})
	require.NoError(t, err)
	require.Len(t, folded, 1)
	assert.Equal(t, "evt-1", folded[0].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeBatchRollsBackOnFoldError(t *testing.T) {
	store, mock := newMockStore(t)
	events := []scheduling.PerformanceEvent{
		{EventID: "evt-1", ItemID: "item-1", Platform: scheduling.PlatformYouTube, ObservedAt: time.Now().UTC()},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO performance_event_inbox").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	foldErr := errors.New("fold exploded")
	err := store.ConsumeBatch(context.Background(), scheduling.PlatformYouTube, events,
		func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error) {
			return nil, foldErr
		})
	require.ErrorIs(t, err, foldErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeBatchSkipsPersistWithoutVersion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.ConsumeBatch(context.Background(), scheduling.PlatformYouTube, nil,
		func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error) {
			require.Empty(t, fresh)
			return nil, nil
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrialNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM optimization_trials WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "applied", "changes", "metrics", "created_at"}))

	_, err := store.GetTrial(context.Background(), "ghost")
	var typed *scheduling.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, scheduling.CodeNotFound, typed.Code)
}
