package scheduling

// ScheduleState is the lifecycle state of a schedule
type ScheduleState string

const (
	SchedulePending    ScheduleState = "pending"
	ScheduleRunning    ScheduleState = "running"
	ScheduleOptimizing ScheduleState = "optimizing"
	ScheduleCompleting ScheduleState = "completing"
	ScheduleCompleted  ScheduleState = "completed"
	ScheduleCanceling  ScheduleState = "canceling"
	ScheduleCanceled   ScheduleState = "canceled"
	ScheduleFailed     ScheduleState = "failed"
)

// ItemState is the lifecycle state of a schedule item
type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemScheduled ItemState = "scheduled"
	ItemPublished ItemState = "published"
	ItemSkipped   ItemState = "skipped"
	ItemFailed    ItemState = "failed"
	ItemCanceled  ItemState = "canceled"
)

// scheduleTransitions lists the legal next states for each schedule state.
// Canceling and failure are reachable from every non-terminal state.
var scheduleTransitions = map[ScheduleState][]ScheduleState{
	SchedulePending:    {ScheduleRunning, ScheduleCanceling, ScheduleFailed},
	ScheduleRunning:    {ScheduleOptimizing, ScheduleCompleting, ScheduleCanceling, ScheduleFailed},
	ScheduleOptimizing: {ScheduleRunning, ScheduleCanceling, ScheduleFailed},
	ScheduleCompleting: {ScheduleCompleted, ScheduleCanceling, ScheduleFailed},
	ScheduleCanceling:  {ScheduleCanceled, ScheduleFailed},
	ScheduleCompleted:  {},
	ScheduleCanceled:   {},
	ScheduleFailed:     {},
}

var itemTransitions = map[ItemState][]ItemState{
	ItemPending:   {ItemScheduled, ItemSkipped, ItemFailed, ItemCanceled},
	ItemScheduled: {ItemPublished, ItemSkipped, ItemFailed, ItemCanceled},
	ItemPublished: {},
	ItemSkipped:   {},
	ItemFailed:    {},
	ItemCanceled:  {},
}

// Terminal reports whether no further transitions are possible
func (s ScheduleState) Terminal() bool {
	return len(scheduleTransitions[s]) == 0
}

// CanTransitionTo reports whether the transition s -> next is legal
func (s ScheduleState) CanTransitionTo(next ScheduleState) bool {
	for _, allowed := range scheduleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the state is a known schedule state
func (s ScheduleState) Valid() bool {
	_, ok := scheduleTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible
func (s ItemState) Terminal() bool {
	return len(itemTransitions[s]) == 0
}

// CanTransitionTo reports whether the transition s -> next is legal
func (s ItemState) CanTransitionTo(next ItemState) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether the state is a known item state
func (s ItemState) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}
