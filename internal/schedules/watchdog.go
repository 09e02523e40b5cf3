package schedules

import (
	"context"
	"sync"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/storage"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// DeadlineWatchdog periodically sweeps for schedules whose processing
// deadline has passed and fails them. Items already committed keep their
// state; only prospective work is failed.
type DeadlineWatchdog struct {
	store    storage.ScheduleRepository
	manager  *Manager
	logger   logging.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewDeadlineWatchdog creates a watchdog. A zero interval defaults to one
// minute.
func NewDeadlineWatchdog(store storage.ScheduleRepository, manager *Manager, logger logging.Logger, interval time.Duration) *DeadlineWatchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DeadlineWatchdog{
		store:    store,
		manager:  manager,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the background sweep loop
func (w *DeadlineWatchdog) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("Deadline watchdog started")
}

// Stop gracefully stops the watchdog
func (w *DeadlineWatchdog) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("Deadline watchdog stopped")
}

func (w *DeadlineWatchdog) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(context.Background())
		case <-w.stopCh:
			return
		}
	}
}

// Sweep fails every non-terminal schedule past its deadline. Exported so the
// sweep can be driven directly in tests.
func (w *DeadlineWatchdog) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	overdue, err := w.store.ListSchedulesPastDeadline(ctx, w.now().UTC())
	if err != nil {
		w.logger.WithError(err).Error("Failed to query overdue schedules")
		return
	}

	for _, schedule := range overdue {
		if err := w.manager.FailPastDeadline(ctx, schedule.ID); err != nil {
			w.logger.WithError(err).WithField("schedule_id", schedule.ID).Error("Failed to fail overdue schedule")
			continue
		}
		w.logger.WithFields(logging.Fields{
			"schedule_id": schedule.ID,
			"deadline":    schedule.ProcessingDeadline,
		}).Warn("Schedule failed after missing processing deadline")
	}
}
