package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/database"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

const insertArchiveQuery = `INSERT INTO performance_events_archive
	(event_id, item_id, platform, observed_engagement, observed_at)`

// Archiver batches consumed performance events into the ClickHouse archive.
// Archival is best effort: the learner has already folded the events when
// they reach this buffer, so a dropped batch loses history, not corrections.
type Archiver struct {
	conn      database.ClickHouseNativeConn
	logger    logging.Logger
	batchSize int
	interval  time.Duration

	mu     sync.Mutex
	buffer []scheduling.PerformanceEvent

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArchiver creates an archiver flushing every interval or batchSize
// events, whichever comes first. Zero values pick defaults.
func NewArchiver(conn database.ClickHouseNativeConn, logger logging.Logger, batchSize int, interval time.Duration) *Archiver {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Archiver{
		conn:      conn,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background flush loop
func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.run()
	a.logger.Info("Performance event archiver started")
}

// Stop flushes the remaining buffer and stops the loop
func (a *Archiver) Stop() {
	close(a.stopCh)
	a.wg.Wait()
	a.Flush(context.Background())
	a.logger.Info("Performance event archiver stopped")
}

// Enqueue adds one event to the pending batch
func (a *Archiver) Enqueue(event scheduling.PerformanceEvent) {
	a.mu.Lock()
	a.buffer = append(a.buffer, event)
	full := len(a.buffer) >= a.batchSize
	a.mu.Unlock()

	if full {
		a.Flush(context.Background())
	}
}

func (a *Archiver) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush(context.Background())
		case <-a.stopCh:
			return
		}
	}
}

// Flush writes the pending batch. Failed batches are logged and dropped.
func (a *Archiver) Flush(ctx context.Context) {
	a.mu.Lock()
	pending := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch, err := a.conn.PrepareBatch(ctx, insertArchiveQuery)
	if err != nil {
		a.logger.WithError(err).WithField("events", len(pending)).Error("Failed to prepare archive batch")
		return
	}

	for _, event := range pending {
		if err := batch.Append(
			event.EventID,
			event.ItemID,
			string(event.Platform),
			event.ObservedEngagement,
			event.ObservedAt,
		); err != nil {
			a.logger.WithError(err).WithField("event_id", event.EventID).Warn("Failed to append event to archive batch")
		}
	}

	if err := batch.Send(); err != nil {
		a.logger.WithError(err).WithField("events", len(pending)).Error("Failed to send archive batch")
		return
	}

	a.logger.WithField("events", len(pending)).Debug("Archived performance events")
}
