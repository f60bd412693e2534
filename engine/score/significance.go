package score

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceConfig tunes the Gaussian-mixture thresholding filter.
type SignificanceConfig struct {
	// Components is the number of mixture components to fit.
	Components int
	// Percentile is the coverage of the highest-mean component, in percent.
	// The threshold is placed so that this share of the component's mass
	// lies at or above it.
	Percentile float64
	// HighScore is the uniform value assigned to significant scores.
	HighScore float64
	// MinSamples is the sample count below which the filter is an identity.
	MinSamples int
	// Seed fixes the mixture initialization for reproducibility.
	Seed int64
}

// DefaultSignificanceConfig returns the tuning used by the search service.
func DefaultSignificanceConfig() SignificanceConfig {
	return SignificanceConfig{
		Components: 3,
		Percentile: 95,
		HighScore:  1,
		MinSamples: 30,
		Seed:       42,
	}
}

// Filter separates a small set of genuinely strong matches from background
// noise, producing a sparse highlighted signal instead of a smooth gradient.
type Filter struct {
	cfg    SignificanceConfig
	logger *slog.Logger
}

// NewFilter creates a Filter. A nil logger falls back to slog.Default.
func NewFilter(cfg SignificanceConfig, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{cfg: cfg, logger: logger}
}

// Apply thresholds scores against the highest-mean mixture component. Scores
// at or above the threshold become HighScore, the rest become 0. Inputs
// shorter than MinSamples are returned unchanged, as are inputs the mixture
// fit cannot handle: filtering is an enhancement, never a requirement for
// producing a response.
func (f *Filter) Apply(scores []float64) []float64 {
	if len(scores) < f.cfg.MinSamples {
		return scores
	}
	// The standard-normal quantile is only defined on (0, 100) percent;
	// anything else would blow up inside the distribution code.
	if f.cfg.Percentile <= 0 || f.cfg.Percentile >= 100 {
		f.logger.Warn("score: significance percentile out of range, passing scores through",
			"percentile", f.cfg.Percentile)
		return scores
	}

	fit, err := fitGMM(scores, f.cfg.Components, f.cfg.Seed)
	if err != nil {
		f.logger.Warn("score: significance fit failed, passing scores through",
			"error", err, "samples", len(scores), "components", f.cfg.Components)
		return scores
	}

	mu := fit.Means[fit.Best]
	sigma := math.Sqrt(fit.Variances[fit.Best])
	z := distuv.UnitNormal.Quantile(1 - f.cfg.Percentile/100)
	threshold := mu + sigma*z

	out := make([]float64, len(scores))
	for i, s := range scores {
		if s >= threshold {
			out[i] = f.cfg.HighScore
		}
	}
	return out
}
