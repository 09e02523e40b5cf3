package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes events to Kafka
type Producer struct {
	client *kgo.Client
	logger *logrus.Logger
	source string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, clientID string, logger *logrus.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		source: clientID,
	}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// ProduceMessage sends a raw message to a topic
func (p *Producer) ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// PublishEvent publishes an event envelope to the schedule events topic.
// The schedule id keys the record so a schedule's events stay ordered on one
// partition.
func (p *Producer) PublishEvent(event Event) error {
	if event.Source == "" {
		event.Source = p.source
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"source":     event.Source,
		"event_type": event.Type,
	}

	key := []byte(event.ID)
	if event.ScheduleID != "" {
		key = []byte(event.ScheduleID)
	}

	return p.ProduceMessage(TopicScheduleEvents, key, value, headers)
}

// PublishEventBatch publishes a batch of event envelopes in one produce call
func (p *Producer) PublishEventBatch(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var records []*kgo.Record
	for _, event := range events {
		if event.Source == "" {
			event.Source = p.source
		}

		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
		}

		key := []byte(event.ID)
		if event.ScheduleID != "" {
			key = []byte(event.ScheduleID)
		}

		records = append(records, &kgo.Record{
			Topic: TopicScheduleEvents,
			Key:   key,
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "source", Value: []byte(event.Source)},
				{Key: "event_type", Value: []byte(event.Type)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := p.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce batch: %w", err)
	}

	return nil
}

// HealthCheck pings the broker
func (p *Producer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient returns the underlying kgo.Client for health checks
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}
