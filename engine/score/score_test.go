package score

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/planit-ai/planit/engine/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Softmax ---

func TestSoftmax_SumsToOne(t *testing.T) {
	cases := [][]float64{
		{0.9, 0.5, 0.1},
		{1},
		{-3, -2, -1},
		{100, 100.5, 99.8, 101},
		{0, 0, 0, 0, 0},
	}
	for _, scores := range cases {
		out := Softmax(scores, 1.0)
		if len(out) != len(scores) {
			t.Fatalf("length %d != %d", len(out), len(scores))
		}
		var sum float64
		for _, v := range out {
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("Softmax(%v) sums to %v", scores, sum)
		}
	}
}

func TestSoftmax_ShiftInvariant(t *testing.T) {
	a := Softmax([]float64{0.1, 0.5, 0.9}, 1.0)
	b := Softmax([]float64{100.1, 100.5, 100.9}, 1.0)
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			t.Errorf("element %d: %v != %v after shift", i, a[i], b[i])
		}
	}
}

func TestSoftmax_TemperatureSharpens(t *testing.T) {
	scores := []float64{0.1, 0.9}
	cold := Softmax(scores, 0.1)
	hot := Softmax(scores, 10)
	if cold[1] <= hot[1] {
		t.Errorf("low temperature should sharpen: cold=%v hot=%v", cold, hot)
	}
	if hot[1]-hot[0] > 0.1 {
		t.Errorf("high temperature should flatten: %v", hot)
	}
}

func TestSoftmax_Empty(t *testing.T) {
	out := Softmax(nil, 1.0)
	if len(out) != 0 {
		t.Fatalf("got %v", out)
	}
}

// --- MinMax ---

func TestMinMax_Range(t *testing.T) {
	out := MinMax([]float64{0.2, 0.8, 0.5, 0.3}, 1.0, 3.0)
	lo, hi := out[0], out[0]
	for _, v := range out {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo != 0 || hi != 3.0 {
		t.Errorf("range [%v, %v], want [0, 3]", lo, hi)
	}
}

func TestMinMax_DegenerateUniform(t *testing.T) {
	out := MinMax([]float64{0.5, 0.5, 0.5, 0.5}, 1.0, 2.0)
	for _, v := range out {
		if math.Abs(v-0.25) > 1e-12 {
			t.Errorf("degenerate input should give 1/n, got %v", out)
		}
	}
}

func TestMinMax_Empty(t *testing.T) {
	if out := MinMax(nil, 1.0, 1.0); len(out) != 0 {
		t.Fatalf("got %v", out)
	}
}

// --- Normalize dispatch ---

func TestNormalize_PolicySelection(t *testing.T) {
	scores := []float64{0.1, 0.9}

	soft, err := Normalize(scores, NormalizerConfig{Policy: PolicySoftmax, Temperature: 1})
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}
	if math.Abs(soft[0]+soft[1]-1) > 1e-9 {
		t.Errorf("softmax output %v", soft)
	}

	mm, err := Normalize(scores, NormalizerConfig{Policy: PolicyMinMax, Temperature: 1})
	if err != nil {
		t.Fatalf("minmax: %v", err)
	}
	if mm[0] != 0 || mm[1] != 1 {
		t.Errorf("minmax output %v", mm)
	}

	// Empty policy defaults to softmax.
	def, err := Normalize(scores, NormalizerConfig{Temperature: 1})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def[0] != soft[0] {
		t.Errorf("default policy should be softmax")
	}
}

func TestNormalize_BadInput(t *testing.T) {
	_, err := Normalize([]float64{1}, NormalizerConfig{Temperature: 0})
	if !errors.Is(err, domain.ErrInvalidTemperature) {
		t.Fatalf("expected ErrInvalidTemperature, got %v", err)
	}
	_, err = Normalize([]float64{1}, NormalizerConfig{Policy: "median", Temperature: 1})
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestParsePolicy(t *testing.T) {
	if _, ok := ParsePolicy("softmax"); !ok {
		t.Error("softmax should parse")
	}
	if _, ok := ParsePolicy("minmax"); !ok {
		t.Error("minmax should parse")
	}
	if _, ok := ParsePolicy("zscore"); ok {
		t.Error("zscore should not parse")
	}
}

// --- Significance filter ---

// bimodal builds a clearly separated two-cluster sample: 20 background
// scores spread over [0.05, 0.13) and 16 strong matches over [0.88, 0.95).
func bimodal() []float64 {
	data := make([]float64, 0, 36)
	for i := 0; i < 20; i++ {
		data = append(data, 0.05+0.004*float64(i))
	}
	for i := 0; i < 16; i++ {
		data = append(data, 0.88+0.004*float64(i))
	}
	return data
}

func TestFilter_IdentityBelowMinSamples(t *testing.T) {
	f := NewFilter(DefaultSignificanceConfig(), testLogger())
	in := []float64{0.9, 0.1, 0.5}
	out := f.Apply(in)
	if len(out) != len(in) {
		t.Fatalf("length changed")
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d modified: %v != %v", i, out[i], in[i])
		}
	}
}

func TestFilter_BimodalSeparation(t *testing.T) {
	cfg := SignificanceConfig{
		Components: 2,
		Percentile: 99,
		HighScore:  1,
		MinSamples: 30,
		Seed:       42,
	}
	f := NewFilter(cfg, testLogger())
	data := bimodal()
	out := f.Apply(data)

	for i, v := range out {
		if data[i] >= 0.88 && v != 1 {
			t.Errorf("strong match %v at %d mapped to %v, want 1", data[i], i, v)
		}
		if data[i] < 0.2 && v != 0 {
			t.Errorf("background %v at %d mapped to %v, want 0", data[i], i, v)
		}
	}
}

func TestFilter_SeedDeterminism(t *testing.T) {
	cfg := SignificanceConfig{Components: 3, Percentile: 95, HighScore: 1, MinSamples: 30, Seed: 7}
	a := NewFilter(cfg, testLogger()).Apply(bimodal())
	b := NewFilter(cfg, testLogger()).Apply(bimodal())
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different outputs at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestFilter_FitFailurePassesThrough(t *testing.T) {
	// Zero components cannot be fit; the filter must degrade to identity.
	cfg := SignificanceConfig{Components: 0, Percentile: 95, HighScore: 1, MinSamples: 2, Seed: 1}
	f := NewFilter(cfg, testLogger())
	in := []float64{0.1, 0.2, 0.3}
	out := f.Apply(in)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d modified on fit failure", i)
		}
	}
}

func TestFilter_PercentileOutOfRangePassesThrough(t *testing.T) {
	for _, pct := range []float64{150, 100, 0, -5} {
		cfg := SignificanceConfig{Components: 2, Percentile: pct, HighScore: 1, MinSamples: 10, Seed: 42}
		f := NewFilter(cfg, testLogger())
		in := bimodal()
		out := f.Apply(in)
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("percentile %v: element %d modified: %v != %v", pct, i, out[i], in[i])
			}
		}
	}
}

// --- Mixture fit ---

func TestFitGMM_FindsHighComponent(t *testing.T) {
	fit, err := fitGMM(bimodal(), 2, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	best := fit.Means[fit.Best]
	if best < 0.8 || best > 1.0 {
		t.Errorf("best mean = %v, want near 0.9 (means %v)", best, fit.Means)
	}
	for j, m := range fit.Means {
		if j != fit.Best && m > best {
			t.Errorf("Best does not index the highest mean: %v", fit.Means)
		}
	}
}

func TestFitGMM_TooFewSamples(t *testing.T) {
	if _, err := fitGMM([]float64{0.5}, 3, 1); err == nil {
		t.Fatal("expected error fitting 3 components to 1 sample")
	}
}
