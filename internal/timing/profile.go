package timing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// NumBuckets is the timeslot bucket count: day-of-week x hour-of-day.
const NumBuckets = 7 * 24

// BucketOf maps a timestamp to its UTC timeslot bucket.
func BucketOf(t time.Time) int {
	utc := t.UTC()
	return int(utc.Weekday())*24 + utc.Hour()
}

// Correction is the learned multiplicative adjustment for one timeslot
// bucket. Mean is centered on 1.0 (neutral against the platform baseline).
// SampleCount is fractional because recency decay shrinks the weight of old
// samples.
type Correction struct {
	Mean        float64   `json:"mean"`
	Variance    float64   `json:"variance"`
	SampleCount float64   `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileVersion is one immutable version of a platform's timing profile.
// Mutation always goes through Clone; a published version is never edited.
type ProfileVersion struct {
	Platform    scheduling.Platform `json:"platform"`
	Version     string              `json:"version"`
	Corrections map[int]Correction  `json:"corrections"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewProfileVersion creates an empty profile version for a platform
func NewProfileVersion(platform scheduling.Platform) *ProfileVersion {
	return &ProfileVersion{
		Platform:    platform,
		Version:     uuid.New().String(),
		Corrections: make(map[int]Correction),
		UpdatedAt:   time.Now().UTC(),
	}
}

// Correction returns the learned correction for a bucket
func (v *ProfileVersion) Correction(bucket int) (Correction, bool) {
	c, ok := v.Corrections[bucket]
	return c, ok
}

// Clone returns a deep copy carrying a fresh version id
func (v *ProfileVersion) Clone() *ProfileVersion {
	next := &ProfileVersion{
		Platform:    v.Platform,
		Version:     uuid.New().String(),
		Corrections: make(map[int]Correction, len(v.Corrections)),
		UpdatedAt:   time.Now().UTC(),
	}
	for bucket, c := range v.Corrections {
		next.Corrections[bucket] = c
	}
	return next
}

// Snapshot is a consistent point-in-time view over every platform's current
// profile version. The contained versions are immutable, so a snapshot can be
// read without locking for as long as a caller holds it.
type Snapshot struct {
	versions map[scheduling.Platform]*ProfileVersion
}

// For returns the profile version for a platform, if one exists
func (s Snapshot) For(platform scheduling.Platform) (*ProfileVersion, bool) {
	v, ok := s.versions[platform]
	return v, ok
}

// Version returns the version id for a platform, or "" when absent
func (s Snapshot) Version(platform scheduling.Platform) string {
	if v, ok := s.versions[platform]; ok {
		return v.Version
	}
	return ""
}

// Store holds the current profile version per platform and publishes new
// versions atomically (copy-on-write). Readers take snapshots; the learner is
// the only writer. Snapshots are cached per publish generation so concurrent
// score/solve calls between publishes share one map copy instead of building
// one each.
type Store struct {
	mu      sync.RWMutex
	current map[scheduling.Platform]*ProfileVersion
	gen     uint64

	snapMu  sync.RWMutex
	snap    Snapshot
	snapGen uint64
	sf      singleflight.Group
}

// NewStore creates an empty profile store
func NewStore() *Store {
	return &Store{
		current: make(map[scheduling.Platform]*ProfileVersion),
		gen:     1,
	}
}

// Current returns the live version for a platform, or an empty version when
// the platform has no learned data yet.
func (s *Store) Current(platform scheduling.Platform) *ProfileVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.current[platform]; ok {
		return v
	}
	return NewProfileVersion(platform)
}

// Publish atomically replaces a platform's current version
func (s *Store) Publish(v *ProfileVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[v.Platform] = v
	s.gen++
}

// Snapshot returns a consistent view over all platforms. The map is copied
// once per publish generation; the versions themselves are immutable and
// shared, so the cached snapshot stays valid until the next Publish or Seed.
// Concurrent cache misses collapse into a single rebuild.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	s.snapMu.RLock()
	if s.snapGen == gen {
		snap := s.snap
		s.snapMu.RUnlock()
		return snap
	}
	s.snapMu.RUnlock()

	snap, _, _ := s.sf.Do("snapshot", func() (interface{}, error) {
		return s.rebuildSnapshot(), nil
	})
	return snap.(Snapshot)
}

func (s *Store) rebuildSnapshot() Snapshot {
	s.mu.RLock()
	gen := s.gen
	versions := make(map[scheduling.Platform]*ProfileVersion, len(s.current))
	for platform, v := range s.current {
		versions[platform] = v
	}
	s.mu.RUnlock()

	snap := Snapshot{versions: versions}
	s.snapMu.Lock()
	if gen > s.snapGen {
		s.snap = snap
		s.snapGen = gen
	}
	s.snapMu.Unlock()
	return snap
}

// Seed loads persisted versions into the store, typically at startup
func (s *Store) Seed(versions []*ProfileVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range versions {
		s.current[v.Platform] = v
	}
	s.gen++
}
