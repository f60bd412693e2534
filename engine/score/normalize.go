// Package score turns raw similarity scores into bounded heatmap
// distributions and optionally collapses them into a sparse significance
// signal. All functions here are pure over request-local data; no locking.
package score

import (
	"fmt"
	"math"

	"github.com/planit-ai/planit/engine/domain"
)

// Policy selects the normalization applied to a raw score sequence.
type Policy string

const (
	// PolicySoftmax produces a distribution summing to 1.
	PolicySoftmax Policy = "softmax"
	// PolicyMinMax rescales linearly into [0, multiplier].
	PolicyMinMax Policy = "minmax"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (Policy, bool) {
	switch Policy(s) {
	case PolicySoftmax, PolicyMinMax:
		return Policy(s), true
	}
	return "", false
}

// NormalizerConfig selects a policy and its parameters.
type NormalizerConfig struct {
	Policy      Policy
	Temperature float64
	// MaxMultiplier rescales the min-max output range for visualization
	// contrast. Ignored under softmax. Zero means 1.
	MaxMultiplier float64
}

// Normalize applies the configured policy to scores. An empty input returns
// an empty output, never an error.
func Normalize(scores []float64, cfg NormalizerConfig) ([]float64, error) {
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("score: %w: %v", domain.ErrInvalidTemperature, cfg.Temperature)
	}
	switch cfg.Policy {
	case PolicySoftmax, "":
		return Softmax(scores, cfg.Temperature), nil
	case PolicyMinMax:
		m := cfg.MaxMultiplier
		if m == 0 {
			m = 1
		}
		return MinMax(scores, cfg.Temperature, m), nil
	}
	return nil, fmt.Errorf("score: unknown policy %q", cfg.Policy)
}

// Softmax computes softmax(scores/T) with max-subtraction stabilization so
// large raw scores never overflow the exponential.
func Softmax(scores []float64, temperature float64) []float64 {
	if len(scores) == 0 {
		return []float64{}
	}

	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		e := math.Exp((s - max) / temperature)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// MinMax scales scores by 1/T and rescales linearly to [0, multiplier] using
// the batch's own extrema. A degenerate all-equal batch yields the uniform
// distribution 1/n instead of dividing by zero.
func MinMax(scores []float64, temperature, multiplier float64) []float64 {
	if len(scores) == 0 {
		return []float64{}
	}

	scaled := make([]float64, len(scores))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range scores {
		v := s / temperature
		scaled[i] = v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if lo == hi {
		n := float64(len(scores))
		for i := range scaled {
			scaled[i] = 1 / n
		}
		return scaled
	}

	span := hi - lo
	for i := range scaled {
		scaled[i] = (scaled[i] - lo) / span * multiplier
	}
	return scaled
}
