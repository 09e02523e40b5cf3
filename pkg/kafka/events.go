package kafka

import (
	"context"
	"time"
)

// Topics used by the scheduling service.
const (
	// TopicScheduleEvents carries schedule/item lifecycle events produced by
	// this service for the external publish worker and other consumers.
	TopicScheduleEvents = "schedule_events"
	// TopicPerformanceEvents carries observed engagement reported back by the
	// publish worker after a post goes live.
	TopicPerformanceEvents = "performance_events"
)

// Event represents a generic event envelope on the bus
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Source     string                 `json:"source"`
	ScheduleID string                 `json:"schedule_id,omitempty"`
	Sequence   uint64                 `json:"sequence,omitempty"`
	Data       map[string]interface{} `json:"data"`
	Timestamp  time.Time              `json:"timestamp"`
}

// PerformanceReport is the wire shape of a publish worker feedback message
// on TopicPerformanceEvents.
type PerformanceReport struct {
	EventID            string    `json:"event_id"`
	ItemID             string    `json:"item_id"`
	Platform           string    `json:"platform"`
	ObservedEngagement float64   `json:"observed_engagement"`
	ObservedAt         time.Time `json:"observed_at"`
	SchemaVersion      string    `json:"schema_version"`
}

// EventHandler processes decoded event envelopes
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// ConsumerInterface defines the interface for Kafka consumers
type ConsumerInterface interface {
	AddHandler(topic string, handler Handler)
	Start(ctx context.Context) error
	Close() error
	HealthCheck() error
}

// ProducerInterface defines the interface for Kafka producers
type ProducerInterface interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
	PublishEvent(event Event) error
	Close() error
	HealthCheck() error
}
