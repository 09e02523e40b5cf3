package timing

import (
	"reflect"
	"testing"
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

func TestBucketOf(t *testing.T) {
	tests := []struct {
		name string
		when time.Time
		want int
	}{
		{"sunday midnight", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), 0},
		{"sunday 23h", time.Date(2026, time.March, 1, 23, 59, 0, 0, time.UTC), 23},
		{"monday 5h", time.Date(2026, time.March, 2, 5, 30, 0, 0, time.UTC), 29},
		{"saturday 23h", time.Date(2026, time.March, 7, 23, 0, 0, 0, time.UTC), NumBuckets - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketOf(tt.when); got != tt.want {
				t.Fatalf("BucketOf(%v) = %d, want %d", tt.when, got, tt.want)
			}
		})
	}

	// A non-UTC location must land in the same bucket as its UTC instant
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, time.March, 1, 20, 0, 0, 0, est)
	if got, want := BucketOf(local), BucketOf(local.UTC()); got != want {
		t.Fatalf("BucketOf not timezone-stable: %d vs %d", got, want)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := NewStore()

	v1 := NewProfileVersion(scheduling.PlatformTikTok)
	v1.Corrections[10] = Correction{Mean: 1.2, SampleCount: 8}
	store.Publish(v1)

	snap := store.Snapshot()

	// Publishing a new version must not change what the old snapshot sees
	v2 := v1.Clone()
	v2.Corrections[10] = Correction{Mean: 0.4, SampleCount: 9}
	store.Publish(v2)

	got, ok := snap.For(scheduling.PlatformTikTok)
	if !ok {
		t.Fatal("snapshot lost its version")
	}
	if got.Version != v1.Version {
		t.Fatalf("snapshot sees version %s, want %s", got.Version, v1.Version)
	}
	if c, _ := got.Correction(10); c.Mean != 1.2 {
		t.Fatalf("snapshot correction changed: %v", c.Mean)
	}

	if store.Current(scheduling.PlatformTikTok).Version != v2.Version {
		t.Fatal("store did not publish the new version")
	}
}

func TestSnapshotReusedBetweenPublishes(t *testing.T) {
	store := NewStore()
	v1 := NewProfileVersion(scheduling.PlatformYouTube)
	store.Publish(v1)

	first := store.Snapshot()
	second := store.Snapshot()
	// Same generation must hand back the identical cached map, not a fresh copy
	if reflect.ValueOf(first.versions).Pointer() != reflect.ValueOf(second.versions).Pointer() {
		t.Fatal("snapshots between publishes should share one map")
	}

	store.Publish(v1.Clone())
	third := store.Snapshot()
	if third.Version(scheduling.PlatformYouTube) == first.Version(scheduling.PlatformYouTube) {
		t.Fatal("snapshot not refreshed after publish")
	}
}

func TestSnapshotConcurrentReaders(t *testing.T) {
	store := NewStore()
	v := NewProfileVersion(scheduling.PlatformInstagram)
	v.Corrections[40] = Correction{Mean: 1.3, SampleCount: 12}
	store.Publish(v)

	done := make(chan Snapshot, 16)
	for i := 0; i < 16; i++ {
		go func() { done <- store.Snapshot() }()
	}
	for i := 0; i < 16; i++ {
		snap := <-done
		if snap.Version(scheduling.PlatformInstagram) != v.Version {
			t.Fatalf("reader saw version %q", snap.Version(scheduling.PlatformInstagram))
		}
	}
}

func TestSeedInvalidatesSnapshot(t *testing.T) {
	store := NewStore()
	before := store.Snapshot()
	if _, ok := before.For(scheduling.PlatformFacebook); ok {
		t.Fatal("empty store should have no versions")
	}

	seeded := NewProfileVersion(scheduling.PlatformFacebook)
	store.Seed([]*ProfileVersion{seeded})

	after := store.Snapshot()
	if after.Version(scheduling.PlatformFacebook) != seeded.Version {
		t.Fatal("seeded version missing from fresh snapshot")
	}
	if _, ok := before.For(scheduling.PlatformFacebook); ok {
		t.Fatal("old snapshot must not see the seed")
	}
}

func TestCloneGetsFreshVersion(t *testing.T) {
	v := NewProfileVersion(scheduling.PlatformTwitter)
	v.Corrections[5] = Correction{Mean: 1.1, SampleCount: 3}

	clone := v.Clone()
	if clone.Version == v.Version {
		t.Fatal("clone kept the old version id")
	}

	clone.Corrections[5] = Correction{Mean: 2.0, SampleCount: 4}
	if v.Corrections[5].Mean != 1.1 {
		t.Fatal("mutating the clone leaked into the original")
	}
}

func TestCurrentUnknownPlatformIsEmpty(t *testing.T) {
	store := NewStore()
	v := store.Current(scheduling.PlatformLinkedIn)
	if len(v.Corrections) != 0 {
		t.Fatalf("expected empty profile, got %d corrections", len(v.Corrections))
	}
	if v.Platform != scheduling.PlatformLinkedIn {
		t.Fatalf("wrong platform: %s", v.Platform)
	}
}
