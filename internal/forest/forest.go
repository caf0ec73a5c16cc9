// Package forest implements a deterministic random-forest regressor used as
// the attribution model. It is trained once per analysis call on the
// period's non-anomalous days and only ever queried for counterfactual
// predictions; it is not a forecasting model and is never persisted.
//
// Determinism is a hard requirement: identical training data and seed must
// produce identical predictions. Each tree draws its bootstrap sample and
// feature subsets from its own PCG stream keyed by (seed, tree index), so
// training trees in parallel cannot perturb results.
package forest

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// ErrTrainingData reports a training set the model cannot learn from:
// empty, shape-mismatched, or a degenerate feature matrix.
var ErrTrainingData = eris.New("forest: unusable training data")

// Config tunes the ensemble. Zero values take defaults.
type Config struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
}

func (c Config) withDefaults() Config {
	if c.Trees == 0 {
		c.Trees = 200
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 8
	}
	if c.MinLeaf == 0 {
		c.MinLeaf = 2
	}
	return c
}

// Forest is a trained ensemble.
type Forest struct {
	cfg   Config
	trees []*node
	base  float64
}

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	leaf      bool
	value     float64
}

// Train fits the ensemble on X (rows = days, columns = schema features)
// against y (fraud-adjusted daily sales).
func Train(cfg Config, X [][]float64, y []float64) (*Forest, error) {
	cfg = cfg.withDefaults()

	if len(X) == 0 || len(X) != len(y) {
		return nil, eris.Wrapf(ErrTrainingData, "%d rows, %d targets", len(X), len(y))
	}
	width := len(X[0])
	for _, row := range X {
		if len(row) != width {
			return nil, eris.Wrap(ErrTrainingData, "ragged feature matrix")
		}
	}
	if width == 0 || allColumnsConstant(X) {
		return nil, eris.Wrap(ErrTrainingData, "degenerate feature matrix")
	}

	f := &Forest{cfg: cfg, trees: make([]*node, cfg.Trees)}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < cfg.Trees; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(i)))
			sample := bootstrap(rng, len(X))
			f.trees[i] = grow(rng, X, y, sample, cfg, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sum float64
	for _, row := range X {
		sum += f.Predict(row)
	}
	f.base = sum / float64(len(X))

	return f, nil
}

// Predict returns the ensemble mean for one feature vector.
func (f *Forest) Predict(x []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.trees))
}

// Base returns the mean prediction over the training set, the expectation
// Shapley contributions are measured against.
func (f *Forest) Base() float64 { return f.base }

func (n *node) predict(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func bootstrap(rng *rand.Rand, n int) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.IntN(n)
	}
	return sample
}

// grow builds one CART regression tree on the sampled rows, choosing the
// variance-minimizing split over a random subset of features at each node.
func grow(rng *rand.Rand, X [][]float64, y []float64, sample []int, cfg Config, depth int) *node {
	if depth >= cfg.MaxDepth || len(sample) < 2*cfg.MinLeaf || constantTargets(y, sample) {
		return leafNode(y, sample)
	}

	feat, threshold, ok := bestSplit(rng, X, y, sample, cfg.MinLeaf)
	if !ok {
		return leafNode(y, sample)
	}

	var left, right []int
	for _, idx := range sample {
		if X[idx][feat] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	return &node{
		feature:   feat,
		threshold: threshold,
		left:      grow(rng, X, y, left, cfg, depth+1),
		right:     grow(rng, X, y, right, cfg, depth+1),
	}
}

func leafNode(y []float64, sample []int) *node {
	var sum float64
	for _, idx := range sample {
		sum += y[idx]
	}
	return &node{leaf: true, value: sum / float64(len(sample))}
}

// bestSplit evaluates sqrt-ish feature subsampling (n/3, min 1) and returns
// the split minimizing the weighted sum of squared errors.
func bestSplit(rng *rand.Rand, X [][]float64, y []float64, sample []int, minLeaf int) (int, float64, bool) {
	nFeatures := len(X[0])
	subset := max(1, nFeatures/3)

	perm := rng.Perm(nFeatures)[:subset]

	bestSSE := math.Inf(1)
	bestFeat, bestThreshold := -1, 0.0

	for _, feat := range perm {
		values := distinctValues(X, sample, feat)
		if len(values) < 2 {
			continue
		}
		for i := 0; i < len(values)-1; i++ {
			threshold := (values[i] + values[i+1]) / 2
			sse, ok := splitSSE(X, y, sample, feat, threshold, minLeaf)
			if ok && sse < bestSSE {
				bestSSE = sse
				bestFeat = feat
				bestThreshold = threshold
			}
		}
	}
	return bestFeat, bestThreshold, bestFeat >= 0
}

func splitSSE(X [][]float64, y []float64, sample []int, feat int, threshold float64, minLeaf int) (float64, bool) {
	var lSum, lSq, rSum, rSq float64
	var lN, rN int
	for _, idx := range sample {
		v := y[idx]
		if X[idx][feat] <= threshold {
			lSum += v
			lSq += v * v
			lN++
		} else {
			rSum += v
			rSq += v * v
			rN++
		}
	}
	if lN < minLeaf || rN < minLeaf {
		return 0, false
	}
	// SSE = sum(y²) - (sum(y))²/n per side.
	sse := (lSq - lSum*lSum/float64(lN)) + (rSq - rSum*rSum/float64(rN))
	return sse, true
}

func distinctValues(X [][]float64, sample []int, feat int) []float64 {
	seen := make(map[float64]struct{}, len(sample))
	var values []float64
	for _, idx := range sample {
		v := X[idx][feat]
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	sort.Float64s(values)
	return values
}

func constantTargets(y []float64, sample []int) bool {
	for _, idx := range sample[1:] {
		if y[idx] != y[sample[0]] {
			return false
		}
	}
	return true
}

func allColumnsConstant(X [][]float64) bool {
	for col := 0; col < len(X[0]); col++ {
		for _, row := range X[1:] {
			if row[col] != X[0][col] {
				return false
			}
		}
	}
	return true
}
