package notifier

import (
	"context"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/redis"
)

// ChannelScheduleEvents is the Redis channel used to fan events out across
// instances sharing the same Redis.
const ChannelScheduleEvents = "almanac:schedule_events"

// bridgeEnvelope wraps an event with the originating instance so receivers
// can skip their own publications.
type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge fans hub events out to sibling instances over Redis pub/sub so a
// subscriber connected anywhere sees every event for its schedules.
type Bridge struct {
	pubsub   *redis.TypedPubSub[bridgeEnvelope]
	hub      *Hub
	instance string
	logger   logging.Logger
}

// NewBridge wires a hub to a Redis-backed event fan-out
func NewBridge(client goredis.UniversalClient, hub *Hub, logger logging.Logger) *Bridge {
	bridge := &Bridge{
		pubsub:   redis.NewTypedPubSub[bridgeEnvelope](client),
		hub:      hub,
		instance: uuid.New().String(),
		logger:   logger,
	}
	hub.SetRemote(bridge)
	return bridge
}

// PublishRemote implements RemotePublisher
func (b *Bridge) PublishRemote(event Event) error {
	return b.pubsub.Publish(context.Background(), ChannelScheduleEvents, bridgeEnvelope{
		Origin: b.instance,
		Event:  event,
	})
}

// Run consumes events published by sibling instances until ctx is canceled
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.WithField("channel", ChannelScheduleEvents).Info("Starting event bridge")
	return b.pubsub.Subscribe(ctx, ChannelScheduleEvents, func(envelope bridgeEnvelope) {
		if envelope.Origin == b.instance {
			return
		}
		b.hub.DeliverRemote(envelope.Event)
	})
}
