// Package platforms defines per-platform posting strategies: static timing
// prior curves and default scheduling constraints. Strategies are resolved
// once into a Registry at startup, never by repeated string dispatch.
package platforms

import (
	"sort"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// Strategy exposes the capability set every platform implements
type Strategy interface {
	ID() scheduling.Platform
	// PriorWeight returns the static audience-activity prior for a UTC
	// day-of-week and hour-of-day, in [0,1].
	PriorWeight(day time.Weekday, hour int) float64
	// DeviceAffinity weights how strongly the platform's content lands on a
	// device class ("mobile", "desktop", "tablet"), in [0,1].
	DeviceAffinity(device string) float64
	// DefaultMinInterval is the platform's default minimum gap between two
	// posts from the same account.
	DefaultMinInterval() time.Duration
	// DefaultMaxPerDay is the platform's default cap on posts per day.
	DefaultMaxPerDay() int
}

// strategy is the shared implementation; each platform contributes its data.
type strategy struct {
	id             scheduling.Platform
	weekdayHours   [24]float64
	weekendHours   [24]float64
	deviceAffinity map[string]float64
	minInterval    time.Duration
	maxPerDay      int
}

func (s *strategy) ID() scheduling.Platform { return s.id }

func (s *strategy) PriorWeight(day time.Weekday, hour int) float64 {
	if hour < 0 || hour > 23 {
		return 0
	}
	if day == time.Saturday || day == time.Sunday {
		return s.weekendHours[hour]
	}
	return s.weekdayHours[hour]
}

func (s *strategy) DeviceAffinity(device string) float64 {
	if w, ok := s.deviceAffinity[device]; ok {
		return w
	}
	return 0.5
}

func (s *strategy) DefaultMinInterval() time.Duration { return s.minInterval }
func (s *strategy) DefaultMaxPerDay() int             { return s.maxPerDay }

// curve builds a 24-hour weight table from (start hour, end hour, weight)
// segments laid over a base weight. Later segments win on overlap.
func curve(base float64, segments ...[3]float64) [24]float64 {
	var hours [24]float64
	for i := range hours {
		hours[i] = base
	}
	for _, seg := range segments {
		for h := int(seg[0]); h < int(seg[1]); h++ {
			hours[h] = seg[2]
		}
	}
	return hours
}

// Registry resolves platform strategies by id
type Registry struct {
	byID map[scheduling.Platform]Strategy
}

// NewRegistry builds the registry with all built-in platform strategies
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[scheduling.Platform]Strategy)}
	for _, s := range builtins() {
		r.byID[s.ID()] = s
	}
	return r
}

// Get returns the strategy for a platform id
func (r *Registry) Get(id scheduling.Platform) (Strategy, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns every registered strategy sorted by platform id, so iteration
// order is fixed.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Platforms returns the registered platform ids sorted ascending
func (r *Registry) Platforms() []scheduling.Platform {
	all := r.All()
	ids := make([]scheduling.Platform, len(all))
	for i, s := range all {
		ids[i] = s.ID()
	}
	return ids
}

func builtins() []Strategy {
	return []Strategy{
		&strategy{
			id: scheduling.PlatformYouTube,
			// Viewing ramps through the afternoon and peaks in the evening.
			weekdayHours:   curve(0.25, [3]float64{12, 15, 0.55}, [3]float64{15, 18, 0.75}, [3]float64{18, 22, 0.95}, [3]float64{22, 24, 0.5}),
			weekendHours:   curve(0.35, [3]float64{9, 12, 0.7}, [3]float64{12, 17, 0.8}, [3]float64{17, 22, 0.9}),
			deviceAffinity: map[string]float64{"mobile": 0.7, "desktop": 0.8, "tablet": 0.6, "tv": 0.9},
			minInterval:    4 * time.Hour,
			maxPerDay:      3,
		},
		&strategy{
			id:             scheduling.PlatformTikTok,
			weekdayHours:   curve(0.3, [3]float64{6, 9, 0.6}, [3]float64{11, 14, 0.75}, [3]float64{18, 23, 0.95}),
			weekendHours:   curve(0.4, [3]float64{10, 14, 0.8}, [3]float64{18, 23, 0.9}),
			deviceAffinity: map[string]float64{"mobile": 0.95, "desktop": 0.25, "tablet": 0.5},
			minInterval:    2 * time.Hour,
			maxPerDay:      5,
		},
		&strategy{
			id:             scheduling.PlatformInstagram,
			weekdayHours:   curve(0.3, [3]float64{7, 9, 0.65}, [3]float64{11, 14, 0.85}, [3]float64{17, 21, 0.9}),
			weekendHours:   curve(0.35, [3]float64{10, 13, 0.75}, [3]float64{17, 21, 0.85}),
			deviceAffinity: map[string]float64{"mobile": 0.9, "desktop": 0.3, "tablet": 0.5},
			minInterval:    3 * time.Hour,
			maxPerDay:      4,
		},
		&strategy{
			id:             scheduling.PlatformTwitter,
			weekdayHours:   curve(0.35, [3]float64{8, 10, 0.9}, [3]float64{12, 14, 0.8}, [3]float64{17, 19, 0.7}),
			weekendHours:   curve(0.3, [3]float64{9, 12, 0.6}),
			deviceAffinity: map[string]float64{"mobile": 0.8, "desktop": 0.7, "tablet": 0.4},
			minInterval:    1 * time.Hour,
			maxPerDay:      8,
		},
		&strategy{
			id:             scheduling.PlatformLinkedIn,
			weekdayHours:   curve(0.2, [3]float64{7, 9, 0.85}, [3]float64{10, 12, 0.9}, [3]float64{12, 14, 0.7}, [3]float64{17, 18, 0.6}),
			weekendHours:   curve(0.15),
			deviceAffinity: map[string]float64{"mobile": 0.55, "desktop": 0.9, "tablet": 0.35},
			minInterval:    8 * time.Hour,
			maxPerDay:      2,
		},
		&strategy{
			id:             scheduling.PlatformFacebook,
			weekdayHours:   curve(0.3, [3]float64{9, 11, 0.7}, [3]float64{13, 16, 0.85}, [3]float64{19, 21, 0.75}),
			weekendHours:   curve(0.4, [3]float64{12, 16, 0.8}),
			deviceAffinity: map[string]float64{"mobile": 0.75, "desktop": 0.65, "tablet": 0.55},
			minInterval:    4 * time.Hour,
			maxPerDay:      3,
		},
	}
}
