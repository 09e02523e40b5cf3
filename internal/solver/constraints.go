package solver

import (
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// Window is a half-open time interval [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the window is non-empty
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Constraints bound a solve call. Per-platform values not set here are
// resolved from platform strategy defaults before the solver runs.
type Constraints struct {
	// Horizon is the search window candidate times are drawn from.
	Horizon Window `json:"horizon"`
	// Step is the candidate grid granularity. Defaults to 30 minutes.
	Step time.Duration `json:"step,omitempty"`
	// PinnedWindows restricts an item to a fixed window.
	PinnedWindows map[string]Window `json:"pinned_windows,omitempty"`
	// NotBefore/NotAfter keep an item from moving outside its bounds.
	NotBefore map[string]time.Time `json:"not_before,omitempty"`
	NotAfter  map[string]time.Time `json:"not_after,omitempty"`
	// Blackouts are intervals in which nothing may be scheduled.
	Blackouts []Window `json:"blackouts,omitempty"`
	// MinInterval is the minimum gap between two items on one platform.
	MinInterval map[scheduling.Platform]time.Duration `json:"min_interval,omitempty"`
	// MaxPerDay caps items per platform per UTC day.
	MaxPerDay map[scheduling.Platform]int `json:"max_per_day,omitempty"`
	// Priority orders items before assignment; lower values assign first.
	// Items without a priority keep insertion order after prioritized ones.
	Priority map[string]int `json:"priority,omitempty"`
}

const defaultStep = 30 * time.Minute

// Validate rejects malformed constraint sets
func (c *Constraints) Validate() error {
	if !c.Horizon.Valid() {
		return scheduling.NewValidationError("solve horizon must be a non-empty window")
	}
	if c.Step < 0 {
		return scheduling.NewValidationError("candidate step must not be negative")
	}
	for id, w := range c.PinnedWindows {
		if !w.Valid() {
			return scheduling.NewValidationError("pinned window for item %s is empty", id)
		}
	}
	for _, w := range c.Blackouts {
		if !w.Valid() {
			return scheduling.NewValidationError("blackout window must be non-empty")
		}
	}
	for platform, interval := range c.MinInterval {
		if interval < 0 {
			return scheduling.NewValidationError("min interval for %s must not be negative", platform)
		}
	}
	for platform, limit := range c.MaxPerDay {
		if limit < 0 {
			return scheduling.NewValidationError("max per day for %s must not be negative", platform)
		}
	}
	return nil
}

func (c *Constraints) step() time.Duration {
	if c.Step == 0 {
		return defaultStep
	}
	return c.Step
}

func (c *Constraints) minIntervalFor(platform scheduling.Platform) time.Duration {
	return c.MinInterval[platform]
}

func (c *Constraints) maxPerDayFor(platform scheduling.Platform) int {
	return c.MaxPerDay[platform]
}

func (c *Constraints) inBlackout(t time.Time) bool {
	for _, w := range c.Blackouts {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// allowsItem checks an item's own bounds at candidate time t (pinned window,
// not-before/not-after). Cross-item constraints are checked separately.
func (c *Constraints) allowsItem(itemID string, t time.Time) bool {
	if w, ok := c.PinnedWindows[itemID]; ok && !w.Contains(t) {
		return false
	}
	if nb, ok := c.NotBefore[itemID]; ok && t.Before(nb) {
		return false
	}
	if na, ok := c.NotAfter[itemID]; ok && t.After(na) {
		return false
	}
	return true
}
