package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

func redisClient(t *testing.T, addr string) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestBridgeFansOutToSiblingInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := logging.NewLogger()

	hubA := NewHub(logger)
	bridgeA := NewBridge(redisClient(t, mr.Addr()), hubA, logger)

	hubB := NewHub(logger)
	bridgeB := NewBridge(redisClient(t, mr.Addr()), hubB, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridgeA.Run(ctx) }()
	go func() { _ = bridgeB.Run(ctx) }()

	// Let both subscriptions attach before publishing
	time.Sleep(100 * time.Millisecond)

	sent := NewEvent(EventScheduleProgress, "sched-1", map[string]interface{}{"percent_complete": 50.0})
	sent.Sequence = 7
	if err := bridgeA.PublishRemote(sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-hubB.broadcast:
		if got.ID != sent.ID || got.ScheduleID != "sched-1" || got.Sequence != 7 {
			t.Fatalf("sibling received mangled event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sibling hub never received the event")
	}

	// The origin instance must not re-deliver its own publication
	select {
	case got := <-hubA.broadcast:
		t.Fatalf("origin hub echoed its own event: %+v", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestBridgeRunStopsOnContextCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := logging.NewLogger()

	hub := NewHub(logger)
	bridge := NewBridge(redisClient(t, mr.Addr()), hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on context cancel")
	}
}
