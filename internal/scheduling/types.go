package scheduling

import (
	"time"
)

// Platform identifies a publishing destination
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
)

// Schedule is an aggregate grouping of items sharing a lifecycle and timezone
type Schedule struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Timezone           string        `json:"timezone"`
	State              ScheduleState `json:"state"`
	PercentComplete    float64       `json:"percent_complete"`
	ItemsTotal         int           `json:"items_total"`
	ItemsCompleted     int           `json:"items_completed"`
	ItemsFailed        int           `json:"items_failed"`
	ItemsSkipped       int           `json:"items_skipped"`
	ItemsCanceled      int           `json:"items_canceled"`
	ProcessingDeadline *time.Time    `json:"processing_deadline,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// ItemError records one failure observed on an item
type ItemError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ScheduleItem is a single piece of content targeted at one platform
type ScheduleItem struct {
	ID            string            `json:"id"`
	ScheduleID    string            `json:"schedule_id"`
	ContentID     string            `json:"content_id"`
	Platform      Platform          `json:"platform"`
	ScheduledTime *time.Time        `json:"scheduled_time,omitempty"`
	State         ItemState         `json:"state"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Errors        []ItemError       `json:"errors,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RecommendationSlot is an ephemeral scored candidate posting window
type RecommendationSlot struct {
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Score       float64    `json:"score"`
	Confidence  float64    `json:"confidence"`
	Reasons     []string   `json:"reasons"`
	Platforms   []Platform `json:"platforms"`
}

// PerformanceEvent is observed real-world engagement for a published item.
// Engagement is normalized against the platform baseline by the reporter.
type PerformanceEvent struct {
	EventID            string    `json:"event_id"`
	ItemID             string    `json:"item_id"`
	Platform           Platform  `json:"platform"`
	ObservedEngagement float64   `json:"observed_engagement"`
	ObservedAt         time.Time `json:"observed_at"`
}

// ItemChange records one item's before/after inside an optimization trial
type ItemChange struct {
	ItemID        string     `json:"item_id"`
	Platform      Platform   `json:"platform"`
	PreviousTime  *time.Time `json:"previous_time,omitempty"`
	NewTime       *time.Time `json:"new_time,omitempty"`
	ScoreBefore   float64    `json:"score_before"`
	ScoreAfter    float64    `json:"score_after"`
	Reason        string     `json:"reason,omitempty"`
	Unschedulable bool       `json:"unschedulable,omitempty"`
}

// TrialMetrics aggregates an optimization trial's outcome
type TrialMetrics struct {
	ItemsTotal         int     `json:"items_total"`
	ItemsMoved         int     `json:"items_moved"`
	ItemsUnchanged     int     `json:"items_unchanged"`
	ItemsUnschedulable int     `json:"items_unschedulable"`
	ScoreBefore        float64 `json:"score_before"`
	ScoreAfter         float64 `json:"score_after"`
}

// OptimizationTrial is the immutable record of one optimize() invocation
type OptimizationTrial struct {
	ID         string       `json:"id"`
	ScheduleID *string      `json:"schedule_id,omitempty"`
	Applied    bool         `json:"applied"`
	Changes    []ItemChange `json:"changes"`
	Metrics    TrialMetrics `json:"metrics"`
	CreatedAt  time.Time    `json:"created_at"`
}
