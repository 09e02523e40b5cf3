package platforms

import (
	"sort"
	"testing"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

func TestRegistryResolvesBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, id := range []scheduling.Platform{
		scheduling.PlatformYouTube,
		scheduling.PlatformTikTok,
		scheduling.PlatformInstagram,
		scheduling.PlatformTwitter,
		scheduling.PlatformLinkedIn,
		scheduling.PlatformFacebook,
	} {
		s, ok := r.Get(id)
		if !ok {
			t.Fatalf("platform %s not registered", id)
		}
		if s.ID() != id {
			t.Fatalf("strategy id %s, want %s", s.ID(), id)
		}
	}
	if _, ok := r.Get("myspace"); ok {
		t.Fatal("unknown platform resolved")
	}
}

func TestRegistryOrderIsStable(t *testing.T) {
	r := NewRegistry()
	ids := r.Platforms()
	if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Fatalf("platform ids not sorted: %v", ids)
	}
	for i := 0; i < 5; i++ {
		again := r.Platforms()
		for j := range ids {
			if again[j] != ids[j] {
				t.Fatalf("iteration order changed: %v vs %v", again, ids)
			}
		}
	}
}

func TestPriorWeightsStayInRange(t *testing.T) {
	r := NewRegistry()
	days := []time.Weekday{time.Sunday, time.Monday, time.Wednesday, time.Saturday}
	for _, s := range r.All() {
		for _, day := range days {
			for hour := 0; hour < 24; hour++ {
				w := s.PriorWeight(day, hour)
				if w < 0 || w > 1 {
					t.Fatalf("%s weight %v at %s %02d:00 outside [0,1]", s.ID(), w, day, hour)
				}
			}
		}
		if s.PriorWeight(time.Monday, -1) != 0 || s.PriorWeight(time.Monday, 24) != 0 {
			t.Fatalf("%s out-of-range hour must weigh 0", s.ID())
		}
	}
}

func TestDeviceAffinityDefaults(t *testing.T) {
	r := NewRegistry()
	tiktok, _ := r.Get(scheduling.PlatformTikTok)
	if a := tiktok.DeviceAffinity("mobile"); a <= tiktok.DeviceAffinity("desktop") {
		t.Fatalf("tiktok should lean mobile: mobile=%v desktop=%v", a, tiktok.DeviceAffinity("desktop"))
	}
	if a := tiktok.DeviceAffinity("smartwatch"); a != 0.5 {
		t.Fatalf("unknown device affinity %v, want neutral 0.5", a)
	}
}

func TestDefaultConstraintsArePositive(t *testing.T) {
	r := NewRegistry()
	for _, s := range r.All() {
		if s.DefaultMinInterval() <= 0 {
			t.Errorf("%s min interval %v must be positive", s.ID(), s.DefaultMinInterval())
		}
		if s.DefaultMaxPerDay() <= 0 {
			t.Errorf("%s max per day %d must be positive", s.ID(), s.DefaultMaxPerDay())
		}
	}
}
