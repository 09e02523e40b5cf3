package learning

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/metrics"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// fakeRepo mimics the transactional inbox: it filters already-consumed event
// ids and persists whatever version the fold returns.
type fakeRepo struct {
	seen      map[string]bool
	persisted []*timing.ProfileVersion
	failures  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{seen: make(map[string]bool)}
}

func (r *fakeRepo) ConsumeBatch(ctx context.Context, platform scheduling.Platform, events []scheduling.PerformanceEvent, fold func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error)) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("storage unavailable")
	}

	var fresh []scheduling.PerformanceEvent
	for _, event := range events {
		if !r.seen[event.EventID] {
			fresh = append(fresh, event)
		}
	}

	version, err := fold(fresh)
	if err != nil {
		return err
	}

	for _, event := range fresh {
		r.seen[event.EventID] = true
	}
	if version != nil {
		r.persisted = append(r.persisted, version)
	}
	return nil
}

func eventAt(id string, platform scheduling.Platform, engagement float64, at time.Time) scheduling.PerformanceEvent {
	return scheduling.PerformanceEvent{
		EventID:            id,
		ItemID:             "item-" + id,
		Platform:           platform,
		ObservedEngagement: engagement,
		ObservedAt:         at,
	}
}

func TestFoldLearnsBucketContrast(t *testing.T) {
	cfg := DefaultConfig()
	strong := time.Date(2026, time.March, 3, 19, 0, 0, 0, time.UTC)
	weak := time.Date(2026, time.March, 3, 4, 0, 0, 0, time.UTC)

	var events []scheduling.PerformanceEvent
	for i := 0; i < 20; i++ {
		events = append(events,
			eventAt(fmt.Sprintf("s%d", i), scheduling.PlatformYouTube, 1.5, strong.Add(time.Duration(i)*time.Minute)),
			eventAt(fmt.Sprintf("w%d", i), scheduling.PlatformYouTube, 0.6, weak.Add(time.Duration(i)*time.Minute)),
		)
	}

	next := Fold(timing.NewProfileVersion(scheduling.PlatformYouTube), events, cfg)

	strongC, ok := next.Correction(timing.BucketOf(strong))
	if !ok {
		t.Fatal("strong bucket missing")
	}
	weakC, ok := next.Correction(timing.BucketOf(weak))
	if !ok {
		t.Fatal("weak bucket missing")
	}

	if strongC.Mean <= 1.0 || weakC.Mean >= 1.0 {
		t.Fatalf("means did not separate: strong %v, weak %v", strongC.Mean, weakC.Mean)
	}
	if strongC.Mean <= weakC.Mean {
		t.Fatalf("strong bucket %v should exceed weak bucket %v", strongC.Mean, weakC.Mean)
	}
	if strongC.SampleCount != 20 || weakC.SampleCount != 20 {
		t.Fatalf("sample counts wrong: %v / %v", strongC.SampleCount, weakC.SampleCount)
	}
}

func TestFoldFirstSampleJumpsToObservation(t *testing.T) {
	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	next := Fold(timing.NewProfileVersion(scheduling.PlatformTwitter),
		[]scheduling.PerformanceEvent{eventAt("e1", scheduling.PlatformTwitter, 1.4, at)},
		DefaultConfig())

	c, _ := next.Correction(timing.BucketOf(at))
	if c.Mean != 1.4 {
		t.Fatalf("first sample alpha should be 1: mean %v", c.Mean)
	}
	if c.SampleCount != 1 {
		t.Fatalf("sample count %v, want 1", c.SampleCount)
	}
}

func TestFoldAlphaFloor(t *testing.T) {
	cfg := DefaultConfig()
	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	bucket := timing.BucketOf(at)

	current := timing.NewProfileVersion(scheduling.PlatformTwitter)
	current.Corrections[bucket] = timing.Correction{Mean: 1.0, SampleCount: 500, UpdatedAt: at}

	next := Fold(current, []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformTwitter, 2.0, at.Add(time.Minute)),
	}, cfg)

	c, _ := next.Correction(bucket)
	// Without the floor alpha would be ~1/501; the floor keeps the profile
	// moving at least AlphaMin per observation.
	wantMin := 1.0 + cfg.AlphaMin*(2.0-1.0)
	if c.Mean < wantMin-1e-9 {
		t.Fatalf("alpha floor not applied: mean %v, want at least %v", c.Mean, wantMin)
	}
}

func TestFoldDecaysOldSamples(t *testing.T) {
	cfg := DefaultConfig()
	origin := time.Date(2026, time.January, 6, 9, 0, 0, 0, time.UTC)
	bucket := timing.BucketOf(origin)

	current := timing.NewProfileVersion(scheduling.PlatformInstagram)
	current.Corrections[bucket] = timing.Correction{Mean: 1.0, SampleCount: 8, UpdatedAt: origin}

	// Two half-lives later the effective count should be a quarter
	later := origin.Add(2 * cfg.DecayHalfLife)
	next := Fold(current, []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformInstagram, 1.0, later),
	}, cfg)

	c, _ := next.Correction(bucket)
	want := 8.0/4.0 + 1.0
	if diff := c.SampleCount - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("decayed sample count %v, want %v", c.SampleCount, want)
	}
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	bucket := timing.BucketOf(at)

	current := timing.NewProfileVersion(scheduling.PlatformTikTok)
	current.Corrections[bucket] = timing.Correction{Mean: 1.0, SampleCount: 3, UpdatedAt: at}

	Fold(current, []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformTikTok, 2.0, at.Add(time.Hour)),
	}, DefaultConfig())

	if c := current.Corrections[bucket]; c.Mean != 1.0 || c.SampleCount != 3 {
		t.Fatalf("input version mutated: %+v", c)
	}
}

func TestUpdatePublishesOnlyAfterPersist(t *testing.T) {
	store := timing.NewStore()
	repo := newFakeRepo()
	repo.failures = 10 // more than MaxRetries, every attempt fails

	learner := NewLearner(store, repo, logging.NewLogger(), DefaultConfig())

	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	err := learner.Update(context.Background(), []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformYouTube, 1.5, at),
	})
	if err == nil {
		t.Fatal("expected persistence error")
	}

	if len(store.Current(scheduling.PlatformYouTube).Corrections) != 0 {
		t.Fatal("store must stay unchanged when persistence fails")
	}
}

func TestUpdateDeduplicatesByEventID(t *testing.T) {
	store := timing.NewStore()
	repo := newFakeRepo()
	learner := NewLearner(store, repo, logging.NewLogger(), DefaultConfig())

	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	batch := []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformYouTube, 1.5, at),
	}

	if err := learner.Update(context.Background(), batch); err != nil {
		t.Fatalf("first update: %v", err)
	}
	first := store.Current(scheduling.PlatformYouTube)

	// Redelivery of the same event must be absorbed without a new version
	if err := learner.Update(context.Background(), batch); err != nil {
		t.Fatalf("second update: %v", err)
	}
	second := store.Current(scheduling.PlatformYouTube)

	if second.Version != first.Version {
		t.Fatal("duplicate events produced a new profile version")
	}
	if c, _ := second.Correction(timing.BucketOf(at)); c.SampleCount != 1 {
		t.Fatalf("duplicate events double counted: %v", c.SampleCount)
	}
	if len(repo.persisted) != 1 {
		t.Fatalf("persisted %d versions, want 1", len(repo.persisted))
	}
}

func TestUpdateRetriesTransientFailure(t *testing.T) {
	store := timing.NewStore()
	repo := newFakeRepo()
	repo.failures = 2 // recovers before retries run out

	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	learner := NewLearner(store, repo, logging.NewLogger(), cfg)

	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	if err := learner.Update(context.Background(), []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformYouTube, 1.5, at),
	}); err != nil {
		t.Fatalf("update should succeed after retries: %v", err)
	}

	if len(repo.persisted) != 1 {
		t.Fatalf("persisted %d versions, want 1", len(repo.persisted))
	}
	if c, _ := store.Current(scheduling.PlatformYouTube).Correction(timing.BucketOf(at)); c.SampleCount != 1 {
		t.Fatalf("sample count %v, want 1", c.SampleCount)
	}
}

func TestUpdateRecordsIngestMetrics(t *testing.T) {
	store := timing.NewStore()
	repo := newFakeRepo()
	m := &metrics.Metrics{
		EventsIngested:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_ingested_total"}, []string{"platform"}),
		ProfileVersions: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "profile_sample_count"}, []string{"platform"}),
	}
	learner := NewLearner(store, repo, logging.NewLogger(), DefaultConfig()).WithMetrics(m)

	at := time.Date(2026, time.March, 3, 19, 0, 0, 0, time.UTC)
	batch := []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformYouTube, 1.5, at),
		eventAt("e2", scheduling.PlatformYouTube, 1.2, at.Add(time.Minute)),
	}
	if err := learner.Update(context.Background(), batch); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := testutil.ToFloat64(m.EventsIngested.WithLabelValues("youtube")); got != 2 {
		t.Fatalf("ingested counter %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProfileVersions.WithLabelValues("youtube")); got != 2 {
		t.Fatalf("sample gauge %v, want 2", got)
	}

	// Redelivered events are deduplicated and must not inflate the counter
	if err := learner.Update(context.Background(), batch); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := testutil.ToFloat64(m.EventsIngested.WithLabelValues("youtube")); got != 2 {
		t.Fatalf("ingested counter %v after redelivery, want 2", got)
	}
}

func TestUpdateIsolatesPlatformFailures(t *testing.T) {
	store := timing.NewStore()
	repo := &platformFailRepo{inner: newFakeRepo(), failFor: scheduling.PlatformTikTok}
	learner := NewLearner(store, repo, logging.NewLogger(), DefaultConfig())

	at := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	err := learner.Update(context.Background(), []scheduling.PerformanceEvent{
		eventAt("e1", scheduling.PlatformTikTok, 1.5, at),
		eventAt("e2", scheduling.PlatformYouTube, 1.5, at),
	})
	if err == nil {
		t.Fatal("expected error from the failing platform")
	}

	// The healthy platform still published
	if len(store.Current(scheduling.PlatformYouTube).Corrections) != 1 {
		t.Fatal("healthy platform should have been updated")
	}
	if len(store.Current(scheduling.PlatformTikTok).Corrections) != 0 {
		t.Fatal("failing platform should stay unchanged")
	}
}

type platformFailRepo struct {
	inner   *fakeRepo
	failFor scheduling.Platform
}

func (r *platformFailRepo) ConsumeBatch(ctx context.Context, platform scheduling.Platform, events []scheduling.PerformanceEvent, fold func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error)) error {
	if platform == r.failFor {
		return errors.New("storage unavailable")
	}
	return r.inner.ConsumeBatch(ctx, platform, events, fold)
}
