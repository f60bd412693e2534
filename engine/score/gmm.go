package score

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// GMMFitResult holds the fitted mixture parameters for one filter
// invocation. Transient: created per call and discarded after thresholding.
type GMMFitResult struct {
	Means     []float64
	Variances []float64
	Weights   []float64
	// Best is the index of the highest-mean component.
	Best int
}

const (
	gmmMaxIter       = 200
	gmmTolerance     = 1e-6
	gmmVarianceFloor = 1e-10
)

var errGMMDiverged = errors.New("score: mixture fit diverged")

// fitGMM fits a 1-D Gaussian mixture with k components to data using EM.
// Means are initialized on the data quantiles with a seeded perturbation so
// duplicate quantiles still yield distinct components; the same seed always
// produces the same fit.
func fitGMM(data []float64, k int, seed int64) (*GMMFitResult, error) {
	n := len(data)
	if k < 1 || n < k {
		return nil, fmt.Errorf("score: cannot fit %d components to %d samples", k, n)
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	_, variance := meanVar(data)
	if variance < gmmVarianceFloor {
		variance = gmmVarianceFloor
	}
	std := math.Sqrt(variance)

	rng := rand.New(rand.NewSource(seed))
	means := make([]float64, k)
	variances := make([]float64, k)
	weights := make([]float64, k)
	for j := 0; j < k; j++ {
		q := (float64(j) + 0.5) / float64(k)
		means[j] = sorted[int(q*float64(n))] + (rng.Float64()-0.5)*std*1e-3
		variances[j] = variance
		weights[j] = 1 / float64(k)
	}

	resp := make([]float64, k)
	prevLL := math.Inf(-1)
	for iter := 0; iter < gmmMaxIter; iter++ {
		// Accumulators for the M step.
		sumR := make([]float64, k)
		sumRX := make([]float64, k)
		sumRXX := make([]float64, k)
		var ll float64

		for _, x := range data {
			var total float64
			for j := 0; j < k; j++ {
				d := distuv.Normal{Mu: means[j], Sigma: math.Sqrt(variances[j])}
				resp[j] = weights[j] * d.Prob(x)
				total += resp[j]
			}
			if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
				return nil, errGMMDiverged
			}
			ll += math.Log(total)
			for j := 0; j < k; j++ {
				r := resp[j] / total
				sumR[j] += r
				sumRX[j] += r * x
				sumRXX[j] += r * x * x
			}
		}

		for j := 0; j < k; j++ {
			if sumR[j] <= 0 {
				return nil, errGMMDiverged
			}
			mu := sumRX[j] / sumR[j]
			v := sumRXX[j]/sumR[j] - mu*mu
			if v < gmmVarianceFloor {
				v = gmmVarianceFloor
			}
			means[j] = mu
			variances[j] = v
			weights[j] = sumR[j] / float64(n)
		}

		if math.IsNaN(ll) {
			return nil, errGMMDiverged
		}
		if math.Abs(ll-prevLL) < gmmTolerance {
			prevLL = ll
			break
		}
		prevLL = ll
	}

	best := 0
	for j := 1; j < k; j++ {
		if means[j] > means[best] {
			best = j
		}
	}
	return &GMMFitResult{Means: means, Variances: variances, Weights: weights, Best: best}, nil
}

func meanVar(data []float64) (mean, variance float64) {
	n := float64(len(data))
	for _, x := range data {
		mean += x
	}
	mean /= n
	for _, x := range data {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return mean, variance
}
