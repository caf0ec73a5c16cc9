// Package shapley decomposes an attribution model's prediction gap into
// per-feature contributions via permutation sampling. Contributions are
// rescaled so they sum exactly to predicted - base; a day whose raw
// contributions cannot be reconciled with the gap fails attribution for
// that day only.
package shapley

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
)

// ErrInconsistent reports an additivity violation beyond tolerance. The
// caller drops ML attribution for the affected day and keeps rule factors.
var ErrInconsistent = eris.New("shapley: additivity violated")

// tolerance is the relative additivity tolerance.
const tolerance = 1e-6

// Model is the prediction surface the attributor probes.
type Model interface {
	Predict(x []float64) float64
}

// Config tunes the sampler. Zero values take defaults.
type Config struct {
	Samples int
	Seed    int64
}

// Attributor computes sampled Shapley values against a fixed model.
type Attributor struct {
	cfg   Config
	model Model
}

// New creates an attributor.
func New(cfg Config, model Model) *Attributor {
	if cfg.Samples == 0 {
		cfg.Samples = 128
	}
	return &Attributor{cfg: cfg, model: model}
}

// Explain returns per-feature contributions for x such that
// sum(contributions) = model.Predict(x) - base, within tolerance.
// background is the reference vector features revert to when "absent";
// the training-set feature means. The sampler walks random feature
// orderings from background to x and averages each feature's marginal
// effect, then reconciles the total against the base expectation.
func (a *Attributor) Explain(x, background []float64, base float64) ([]float64, error) {
	if len(x) != len(background) {
		return nil, eris.Errorf("shapley: vector width %d vs background %d", len(x), len(background))
	}
	n := len(x)
	if n == 0 {
		return nil, eris.New("shapley: empty feature vector")
	}

	rng := rand.New(rand.NewPCG(uint64(a.cfg.Seed), uint64(n)))
	contrib := make([]float64, n)
	z := make([]float64, n)

	for s := 0; s < a.cfg.Samples; s++ {
		copy(z, background)
		prev := a.model.Predict(z)
		for _, feat := range rng.Perm(n) {
			z[feat] = x[feat]
			cur := a.model.Predict(z)
			contrib[feat] += cur - prev
			prev = cur
		}
	}
	for i := range contrib {
		contrib[i] /= float64(a.cfg.Samples)
	}

	predicted := a.model.Predict(x)
	gap := predicted - base
	rawSum := sum(contrib)

	// Raw contributions telescope to predicted - predict(background); the
	// narrative gap is measured against the training expectation instead.
	// Rescale when the raw mass supports it, otherwise shift uniformly.
	scaleFloor := tolerance * math.Max(1, math.Abs(predicted))
	switch {
	case math.Abs(rawSum) > scaleFloor:
		scale := gap / rawSum
		for i := range contrib {
			contrib[i] *= scale
		}
	default:
		shift := (gap - rawSum) / float64(n)
		for i := range contrib {
			contrib[i] += shift
		}
	}

	if err := CheckAdditivity(contrib, base, predicted); err != nil {
		return nil, err
	}
	return contrib, nil
}

// CheckAdditivity verifies sum(contrib) + base == predicted within the
// relative tolerance.
func CheckAdditivity(contrib []float64, base, predicted float64) error {
	diff := math.Abs(sum(contrib) + base - predicted)
	if diff > tolerance*math.Max(1, math.Abs(predicted)) {
		return eris.Wrapf(ErrInconsistent, "off by %g against predicted %g", diff, predicted)
	}
	return nil
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
