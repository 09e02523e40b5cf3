// Package learning folds observed engagement back into the platform timing
// profiles. Updates are incremental Bayesian-style posterior refinements:
// each event nudges its timeslot bucket's mean with a learning rate that
// decays as the bucket accumulates samples.
package learning

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/metrics"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// ProfileRepository persists profile versions together with the consumed
// event ids, atomically. The fold callback receives only events not seen
// before; returning a nil version means nothing new to persist.
type ProfileRepository interface {
	ConsumeBatch(ctx context.Context, platform scheduling.Platform, events []scheduling.PerformanceEvent, fold func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error)) error
}

// Config tunes the learner
type Config struct {
	// AlphaMin floors the learning rate so long-learned buckets stay slowly
	// adaptive instead of freezing.
	AlphaMin float64
	// DecayHalfLife is the age at which a bucket's effective sample count
	// halves, so stale data loses influence.
	DecayHalfLife time.Duration
	// MaxRetries bounds the whole-batch retry on persistence failure.
	MaxRetries int
	// RetryBaseDelay/RetryMaxDelay shape the retry backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig returns the default learner tuning
func DefaultConfig() Config {
	return Config{
		AlphaMin:       0.02,
		DecayHalfLife:  30 * 24 * time.Hour,
		MaxRetries:     3,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
	}
}

// Learner is the sole writer of platform timing profiles
type Learner struct {
	store   *timing.Store
	repo    ProfileRepository
	logger  logging.Logger
	cfg     Config
	retry   retrypolicy.RetryPolicy[any]
	metrics *metrics.Metrics

	mu            sync.Mutex
	platformLocks map[scheduling.Platform]*sync.Mutex
}

// NewLearner creates a learner over the given store and repository
func NewLearner(store *timing.Store, repo ProfileRepository, logger logging.Logger, cfg Config) *Learner {
	if cfg.AlphaMin <= 0 {
		cfg = DefaultConfig()
	}
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		Build()
	return &Learner{
		store:         store,
		repo:          repo,
		logger:        logger,
		cfg:           cfg,
		retry:         retry,
		platformLocks: make(map[scheduling.Platform]*sync.Mutex),
	}
}

// WithMetrics attaches prometheus metrics. Safe to skip in tests.
func (l *Learner) WithMetrics(m *metrics.Metrics) *Learner {
	l.metrics = m
	return l
}

// Update folds a batch of performance events into new profile versions, one
// per platform. Each platform's batch is atomic: either every fresh event in
// it lands in a single new published version, or the whole platform batch is
// retried. Platforms update independently; a failure on one does not block
// the others.
func (l *Learner) Update(ctx context.Context, events []scheduling.PerformanceEvent) error {
	byPlatform := make(map[scheduling.Platform][]scheduling.PerformanceEvent)
	for _, event := range events {
		byPlatform[event.Platform] = append(byPlatform[event.Platform], event)
	}

	platforms := make([]scheduling.Platform, 0, len(byPlatform))
	for platform := range byPlatform {
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	var firstErr error
	for _, platform := range platforms {
		batch := byPlatform[platform]
		sort.Slice(batch, func(i, j int) bool {
			if !batch[i].ObservedAt.Equal(batch[j].ObservedAt) {
				return batch[i].ObservedAt.Before(batch[j].ObservedAt)
			}
			return batch[i].EventID < batch[j].EventID
		})

		if err := l.updatePlatform(ctx, platform, batch); err != nil {
			l.logger.WithError(err).WithField("platform", platform).Error("Profile update failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (l *Learner) updatePlatform(ctx context.Context, platform scheduling.Platform, batch []scheduling.PerformanceEvent) error {
	lock := l.lockFor(platform)
	lock.Lock()
	defer lock.Unlock()

	var (
		published *timing.ProfileVersion
		folded    int
	)
	_, err := failsafe.With(l.retry).Get(func() (any, error) {
		published, folded = nil, 0
		return nil, l.repo.ConsumeBatch(ctx, platform, batch, func(fresh []scheduling.PerformanceEvent) (*timing.ProfileVersion, error) {
			if len(fresh) == 0 {
				return nil, nil
			}
			next := Fold(l.store.Current(platform), fresh, l.cfg)
			published, folded = next, len(fresh)
			return next, nil
		})
	})
	if err != nil {
		return err
	}

	// Readers only ever see the new version after it is durably persisted.
	if published != nil {
		l.store.Publish(published)
		if l.metrics != nil {
			l.metrics.EventsIngested.WithLabelValues(string(platform)).Add(float64(folded))
			l.metrics.ProfileVersions.WithLabelValues(string(platform)).Set(totalSamples(published))
		}
		l.logger.WithFields(logging.Fields{
			"platform": platform,
			"version":  published.Version,
			"events":   len(batch),
		}).Debug("Published new timing profile version")
	}
	return nil
}

// totalSamples sums the decayed sample counts across a version's buckets
func totalSamples(v *timing.ProfileVersion) float64 {
	var total float64
	for _, c := range v.Corrections {
		total += c.SampleCount
	}
	return total
}

func (l *Learner) lockFor(platform scheduling.Platform) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.platformLocks[platform]
	if !ok {
		lock = &sync.Mutex{}
		l.platformLocks[platform] = lock
	}
	return lock
}

// Fold applies a batch of events to a profile version and returns the new
// version. The input version is not modified. Exposed for direct testing of
// the posterior update.
func Fold(current *timing.ProfileVersion, events []scheduling.PerformanceEvent, cfg Config) *timing.ProfileVersion {
	next := current.Clone()

	for _, event := range events {
		bucket := timing.BucketOf(event.ObservedAt)
		c, ok := next.Corrections[bucket]
		if !ok {
			// Fresh bucket starts neutral; the first sample's learning rate
			// is 1 so the mean jumps straight to the observation.
			c = timing.Correction{Mean: 1.0}
		}

		// Recency decay on the effective sample count, measured against the
		// event's own timestamp so folding stays deterministic.
		if c.SampleCount > 0 && !c.UpdatedAt.IsZero() {
			age := event.ObservedAt.Sub(c.UpdatedAt)
			if age > 0 {
				c.SampleCount *= math.Pow(0.5, age.Hours()/cfg.DecayHalfLife.Hours())
			}
		}

		alpha := 1.0 / (c.SampleCount + 1.0)
		if alpha < cfg.AlphaMin {
			alpha = cfg.AlphaMin
		}

		oldMean := c.Mean
		c.Mean = oldMean + alpha*(event.ObservedEngagement-oldMean)
		c.Variance = c.Variance + alpha*((event.ObservedEngagement-oldMean)*(event.ObservedEngagement-c.Mean)-c.Variance)
		c.SampleCount++
		c.UpdatedAt = event.ObservedAt

		next.Corrections[bucket] = c
	}

	return next
}
