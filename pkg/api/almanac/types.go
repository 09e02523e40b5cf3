// Package almanac defines the wire types of the Almanac scheduling API.
package almanac

import (
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// ScheduleResponse returns a schedule with one page of its items
type ScheduleResponse struct {
	Schedule *scheduling.Schedule      `json:"schedule"`
	Items    []scheduling.ScheduleItem `json:"items"`
	// NextCursor pages through the remaining items; empty on the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// RecommendationsResponse returns scored posting slots, best first
type RecommendationsResponse struct {
	Slots []scheduling.RecommendationSlot `json:"slots"`
	// ProfileVersions names the timing profile versions the scores came
	// from, per platform, so identical requests can be correlated.
	ProfileVersions map[string]string `json:"profile_versions,omitempty"`
	NextCursor      string            `json:"next_cursor,omitempty"`
}

// TrialResponse returns one optimization trial
type TrialResponse struct {
	Trial *scheduling.OptimizationTrial `json:"trial"`
}

// ItemResponse returns one schedule item
type ItemResponse struct {
	Item *scheduling.ScheduleItem `json:"item"`
}

// ItemResultRequest reports a publish outcome for an item
type ItemResultRequest struct {
	// Outcome must be published, failed, or skipped.
	Outcome string             `json:"outcome"`
	Error   *ReportedItemError `json:"error,omitempty"`
}

// ReportedItemError carries failure detail alongside a failed outcome
type ReportedItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
