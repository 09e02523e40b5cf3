package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// Event types emitted by the scheduling core
const (
	EventScheduleStateChanged  = "schedule.state_changed"
	EventScheduleProgress      = "schedule.progress"
	EventOptimizationCompleted = "optimization.completed"
)

// ItemEventType names the event for an item state transition
func ItemEventType(state scheduling.ItemState) string {
	return "item." + string(state)
}

// Event is one realtime notification. ID is unique per emission so
// subscribers can deduplicate at-least-once delivery; Sequence increases
// monotonically within a schedule, never globally.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	ScheduleID string                 `json:"schedule_id,omitempty"`
	Sequence   uint64                 `json:"sequence,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewEvent builds an event with a fresh id
func NewEvent(eventType, scheduleID string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		ScheduleID: scheduleID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
}

// sequencer assigns per-schedule sequence numbers and keeps a bounded replay
// history so reconnecting subscribers can resume from a last-seen sequence.
type sequencer struct {
	mu          sync.Mutex
	next        map[string]uint64
	history     map[string][]Event
	historySize int
}

func newSequencer(historySize int) *sequencer {
	return &sequencer{
		next:        make(map[string]uint64),
		history:     make(map[string][]Event),
		historySize: historySize,
	}
}

// stamp assigns the next sequence number for the event's schedule and records
// the event in the replay history. Events without a schedule id pass through
// unstamped.
func (s *sequencer) stamp(event *Event) {
	if event.ScheduleID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.next[event.ScheduleID]++
	event.Sequence = s.next[event.ScheduleID]

	buf := append(s.history[event.ScheduleID], *event)
	if len(buf) > s.historySize {
		buf = buf[len(buf)-s.historySize:]
	}
	s.history[event.ScheduleID] = buf
}

// replay returns buffered events for a schedule with sequence > after. The
// second return is false when the history no longer reaches back to `after`,
// meaning the subscriber must refetch current state instead.
func (s *sequencer) replay(scheduleID string, after uint64) ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.history[scheduleID]
	if len(buf) == 0 {
		return nil, s.next[scheduleID] == after
	}
	if buf[0].Sequence > after+1 {
		return nil, false
	}

	var out []Event
	for _, event := range buf {
		if event.Sequence > after {
			out = append(out, event)
		}
	}
	return out, true
}
