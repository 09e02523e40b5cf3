// Package timing scores candidate posting times per platform. A score
// combines the platform's static prior curve, an audience adjustment, and a
// learned correction read from an immutable profile snapshot. Scoring is a
// pure function of its inputs: the same arguments and the same snapshot
// always produce the same result.
package timing

import (
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
)

// AudienceProfile describes where and how an audience watches. Weights are
// relative shares; they do not need to sum to 1.
type AudienceProfile struct {
	// TimezoneOffsets maps UTC offsets in hours to audience share.
	TimezoneOffsets map[int]float64 `json:"timezone_offsets,omitempty"`
	// DeviceMix maps device class ("mobile", "desktop", "tablet") to share.
	DeviceMix map[string]float64 `json:"device_mix,omitempty"`
}

// Validate rejects malformed audience profiles
func (a *AudienceProfile) Validate() error {
	if a == nil {
		return nil
	}
	for offset, weight := range a.TimezoneOffsets {
		if offset < -12 || offset > 14 {
			return scheduling.NewValidationError("timezone offset %d out of range [-12, 14]", offset)
		}
		if weight < 0 {
			return scheduling.NewValidationError("timezone offset %d has negative weight", offset)
		}
	}
	for device, weight := range a.DeviceMix {
		if weight < 0 {
			return scheduling.NewValidationError("device %q has negative weight", device)
		}
	}
	return nil
}

// ScoreResult is the outcome of scoring one candidate time
type ScoreResult struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Config tunes the scoring model
type Config struct {
	// MinSamples is the sample count below which a learned correction is
	// ignored and the prior stands alone.
	MinSamples float64
	// ConfidenceHalf is the sample count at which the learned part of
	// confidence reaches half its weight.
	ConfidenceHalf float64
	// CorrectionFloor/Ceil clamp the learned multiplicative correction.
	CorrectionFloor float64
	CorrectionCeil  float64
}

// DefaultConfig returns the default model tuning
func DefaultConfig() Config {
	return Config{
		MinSamples:      5,
		ConfidenceHalf:  20,
		CorrectionFloor: 0.5,
		CorrectionCeil:  1.5,
	}
}

// Model scores (platform, time) pairs
type Model struct {
	registry *platforms.Registry
	cfg      Config
}

// NewModel creates a scoring model over the given platform registry
func NewModel(registry *platforms.Registry, cfg Config) *Model {
	if cfg.MinSamples <= 0 {
		cfg = DefaultConfig()
	}
	return &Model{registry: registry, cfg: cfg}
}

// Score rates a candidate posting time for a platform. Sparse learned data
// never fails scoring; the model falls back to the prior alone.
func (m *Model) Score(platform scheduling.Platform, candidate time.Time, contentType string, audience *AudienceProfile, snap Snapshot) (ScoreResult, error) {
	strategy, ok := m.registry.Get(platform)
	if !ok {
		return ScoreResult{}, scheduling.NewValidationError("unknown platform %q", platform).
			WithDetail("platform", string(platform))
	}
	if err := audience.Validate(); err != nil {
		return ScoreResult{}, err
	}

	var reasons []string

	// (a) static prior, (b) reweighted into audience-local clock time
	utcPrior := strategy.PriorWeight(candidate.UTC().Weekday(), candidate.UTC().Hour())
	prior := utcPrior
	if audience != nil && len(audience.TimezoneOffsets) > 0 {
		prior = audienceLocalPrior(strategy, candidate, audience.TimezoneOffsets)
		if prior > utcPrior {
			reasons = append(reasons, "audience_aligned")
		}
	}
	if prior >= 0.75 {
		reasons = append(reasons, "peak_hour")
	} else if prior < 0.35 {
		reasons = append(reasons, "off_peak")
	}

	// device-mix multiplier around neutral 1.0
	deviceMult := 1.0
	if audience != nil && len(audience.DeviceMix) > 0 {
		deviceMult = 0.75 + 0.5*deviceAffinity(strategy, audience.DeviceMix)
	}

	// (c) learned correction from the snapshot, neutral when sparse
	correction := 1.0
	sampleCount := 0.0
	if version, ok := snap.For(platform); ok {
		if c, ok := version.Correction(BucketOf(candidate)); ok {
			sampleCount = c.SampleCount
			if c.SampleCount >= m.cfg.MinSamples {
				correction = clamp(c.Mean, m.cfg.CorrectionFloor, m.cfg.CorrectionCeil)
				if correction > 1.05 {
					reasons = append(reasons, "learned_boost")
				} else if correction < 0.95 {
					reasons = append(reasons, "learned_penalty")
				}
			}
		}
	}
	if sampleCount < m.cfg.MinSamples {
		reasons = append(reasons, "sparse_data")
	}

	score := clamp(prior*deviceMult*correction, 0, 1)

	// Confidence grows monotonically with the bucket's sample count.
	confidence := clamp(0.3+0.7*sampleCount/(sampleCount+m.cfg.ConfidenceHalf), 0, 1)

	return ScoreResult{Score: score, Confidence: confidence, Reasons: reasons}, nil
}

// audienceLocalPrior reweights the prior curve by shifting the candidate time
// into each audience timezone and averaging by share.
func audienceLocalPrior(strategy platforms.Strategy, candidate time.Time, offsets map[int]float64) float64 {
	var weighted, total float64
	for offset, share := range offsets {
		if share <= 0 {
			continue
		}
		local := candidate.UTC().Add(time.Duration(offset) * time.Hour)
		weighted += share * strategy.PriorWeight(local.Weekday(), local.Hour())
		total += share
	}
	if total == 0 {
		return strategy.PriorWeight(candidate.UTC().Weekday(), candidate.UTC().Hour())
	}
	return weighted / total
}

func deviceAffinity(strategy platforms.Strategy, mix map[string]float64) float64 {
	var weighted, total float64
	for device, share := range mix {
		if share <= 0 {
			continue
		}
		weighted += share * strategy.DeviceAffinity(device)
		total += share
	}
	if total == 0 {
		return 0.5
	}
	return weighted / total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
