// Package tuning implements the Confidence Tuner: an out-of-band batch job
// that correlates recorded scoring-weight signals against feedback-derived
// usefulness and proposes bounded, rate-limited deltas to per-project
// scoring weights.
package tuning

import (
	"context"
	"time"

	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/store"
)

// WeightKey names a candidate scoring weight the tuner can adjust.
type WeightKey string

const (
	WeightStaleness    WeightKey = "staleness_penalty"
	WeightOrphan       WeightKey = "orphan_penalty"
	WeightConnectivity WeightKey = "connectivity_bonus"
)

func usefulness(r store.FeedbackRating) (float64, bool) {
	switch r {
	case store.RatingUseful:
		return 1, true
	case store.RatingPartial:
		return 0.5, true
	case store.RatingNotUseful:
		return 0, true
	default:
		return 0, false
	}
}

// signalOf extracts the recorded weight-candidate signal a Query carries for
// key.
func signalOf(q store.Query, key WeightKey) float64 {
	switch key {
	case WeightStaleness:
		return q.StalenessScore
	case WeightOrphan:
		return q.OrphanScore
	case WeightConnectivity:
		return q.ConnectivityScore
	default:
		return 0
	}
}

var allWeights = []WeightKey{WeightStaleness, WeightOrphan, WeightConnectivity}

const (
	defaultWindow       = 7 * 24 * time.Hour
	defaultMinSamples   = 20
	defaultMaxStep      = 0.05
	defaultLearningRate = 0.1
	defaultBound        = 0.5
)

// Result is one tuning run's outcome.
type Result struct {
	Project     string
	Deltas      map[WeightKey]float64
	SampleCount int
	Abstained   bool
	DryRun      bool
}

// Tuner runs the Confidence Tuner batch job.
type Tuner struct {
	repo         store.Repository
	logger       logging.Logger
	window       time.Duration
	minSamples   int
	maxStep      float64
	learningRate float64
	bound        float64
}

// Option configures a Tuner.
type Option func(*Tuner)

func WithWindow(d time.Duration) Option     { return func(t *Tuner) { t.window = d } }
func WithMinSamples(n int) Option           { return func(t *Tuner) { t.minSamples = n } }
func WithMaxStep(v float64) Option          { return func(t *Tuner) { t.maxStep = v } }
func WithLearningRate(v float64) Option     { return func(t *Tuner) { t.learningRate = v } }
func WithBound(v float64) Option            { return func(t *Tuner) { t.bound = v } }

func New(repo store.Repository, logger logging.Logger, opts ...Option) *Tuner {
	if logger == nil {
		logger = logging.NoOp{}
	}
	t := &Tuner{
		repo:         repo,
		logger:       logger.WithComponent("tuning"),
		window:       defaultWindow,
		minSamples:   defaultMinSamples,
		maxStep:      defaultMaxStep,
		learningRate: defaultLearningRate,
		bound:        defaultBound,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run computes proposed deltas for project from feedback-attached queries in
// the configured window. When dryRun is false and the sample count meets
// minSamples, the deltas are applied additively to the persisted Tuning
// Configuration and clipped to the configured bound; below minSamples the
// tuner abstains and no mutation occurs, dry-run or not.
func (t *Tuner) Run(ctx context.Context, project string, dryRun bool) (Result, error) {
	queries, err := t.repo.QueryInWindow(ctx, project, time.Now().Add(-t.window))
	if err != nil {
		return Result{}, err
	}

	type sample struct {
		query store.Query
		y     float64
	}
	var samples []sample
	for _, q := range queries {
		fb, err := t.repo.GetFeedback(ctx, q.ID)
		if err != nil {
			continue
		}
		y, ok := usefulness(fb.Rating)
		if !ok {
			continue
		}
		samples = append(samples, sample{query: q, y: y})
	}

	result := Result{Project: project, SampleCount: len(samples), DryRun: dryRun}

	if len(samples) < t.minSamples {
		result.Abstained = true
		t.logger.InfoContext(ctx, "tuning run abstained: insufficient samples", map[string]interface{}{
			"project": project, "samples": len(samples), "min_samples": t.minSamples,
		})
		return result, nil
	}

	ys := make([]float64, len(samples))
	for i, s := range samples {
		ys[i] = s.y
	}

	deltas := make(map[WeightKey]float64, len(allWeights))
	for _, wk := range allWeights {
		xs := make([]float64, len(samples))
		for i, s := range samples {
			xs[i] = signalOf(s.query, wk)
		}
		corr := pearson(xs, ys)
		step := corr
		if step < 0 {
			step = -step
		}
		if step > t.maxStep {
			step = t.maxStep
		}
		sign := 1.0
		if corr < 0 {
			sign = -1.0
		}
		if corr == 0 {
			sign = 0
		}
		deltas[wk] = sign * step * t.learningRate
	}
	result.Deltas = deltas

	if dryRun {
		return result, nil
	}

	cfg, err := t.repo.GetTuningConfig(ctx, project)
	if err != nil {
		return Result{}, err
	}
	if cfg.Deltas == nil {
		cfg.Deltas = make(map[string]float64)
	}
	// Additive across runs per the recorded Open Question decision: each
	// tuning run contributes to, rather than replaces, the prior state.
	for wk, d := range deltas {
		cfg.Deltas[string(wk)] = clip(cfg.Deltas[string(wk)]+d, t.bound)
	}
	cfg.TuningCount++
	cfg.LastTuned = time.Now()

	if err := t.repo.SaveTuningConfig(ctx, cfg); err != nil {
		return Result{}, err
	}

	t.logger.InfoContext(ctx, "tuning run applied", map[string]interface{}{
		"project": project, "samples": len(samples), "tuning_count": cfg.TuningCount,
	})
	return result, nil
}
