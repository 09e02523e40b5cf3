// Package ingest consumes publish worker feedback from the event bus and
// feeds it into the adaptive learner. Delivery is at-least-once; the
// profile store's inbox deduplicates by event id, so redelivered reports are
// absorbed without double counting.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/kafka"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// LearnerSink absorbs validated performance events
type LearnerSink interface {
	Update(ctx context.Context, events []scheduling.PerformanceEvent) error
}

// Ingestor routes decoded performance reports into the learner and the
// optional long-term archive.
type Ingestor struct {
	learner  LearnerSink
	registry *platforms.Registry
	archiver *Archiver
	logger   logging.Logger
}

// NewIngestor creates a feedback ingestor. archiver may be nil.
func NewIngestor(learner LearnerSink, registry *platforms.Registry, archiver *Archiver, logger logging.Logger) *Ingestor {
	return &Ingestor{
		learner:  learner,
		registry: registry,
		archiver: archiver,
		logger:   logger,
	}
}

// Register attaches the ingestor to the consumer's performance topic
func (i *Ingestor) Register(consumer kafka.ConsumerInterface) {
	consumer.AddHandler(kafka.TopicPerformanceEvents, i.HandleMessage)
}

// HandleMessage processes one performance report. A returned error keeps the
// offset uncommitted so the report is redelivered; malformed payloads are
// logged and dropped instead, since redelivery cannot fix them.
func (i *Ingestor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var report kafka.PerformanceReport
	if err := json.Unmarshal(msg.Value, &report); err != nil {
		i.logger.WithError(err).WithFields(logging.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("Dropping undecodable performance report")
		return nil
	}

	event, err := i.validate(&report)
	if err != nil {
		i.logger.WithError(err).WithFields(logging.Fields{
			"event_id": report.EventID,
			"item_id":  report.ItemID,
		}).Warn("Dropping invalid performance report")
		return nil
	}

	if err := i.learner.Update(ctx, []scheduling.PerformanceEvent{*event}); err != nil {
		return err
	}

	if i.archiver != nil {
		i.archiver.Enqueue(*event)
	}
	return nil
}

func (i *Ingestor) validate(report *kafka.PerformanceReport) (*scheduling.PerformanceEvent, error) {
	if report.EventID == "" {
		return nil, scheduling.NewValidationError("event_id is required")
	}
	if report.ItemID == "" {
		return nil, scheduling.NewValidationError("item_id is required")
	}
	platform := scheduling.Platform(report.Platform)
	if _, ok := i.registry.Get(platform); !ok {
		return nil, scheduling.NewValidationError("unknown platform %q", report.Platform)
	}
	if report.ObservedEngagement < 0 {
		return nil, scheduling.NewValidationError("observed_engagement must be non-negative")
	}
	if report.ObservedAt.IsZero() {
		return nil, scheduling.NewValidationError("observed_at is required")
	}

	return &scheduling.PerformanceEvent{
		EventID:            report.EventID,
		ItemID:             report.ItemID,
		Platform:           platform,
		ObservedEngagement: report.ObservedEngagement,
		ObservedAt:         report.ObservedAt.UTC(),
	}, nil
}
