package forest

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticData generates rows where y depends strongly on feature 0 and
// weakly on feature 1, with feature 2 as noise.
func syntheticData(n int, seed uint64) ([][]float64, []float64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		f0 := rng.Float64() * 10
		f1 := rng.Float64() * 5
		f2 := rng.Float64()
		X[i] = []float64{f0, f1, f2}
		y[i] = 1000*f0 + 100*f1 + rng.Float64()*50
	}
	return X, y
}

func TestTrain_EmptyData(t *testing.T) {
	_, err := Train(Config{}, nil, nil)
	require.ErrorIs(t, err, ErrTrainingData)
}

func TestTrain_ShapeMismatch(t *testing.T) {
	_, err := Train(Config{}, [][]float64{{1, 2}}, []float64{1, 2})
	require.ErrorIs(t, err, ErrTrainingData)

	_, err = Train(Config{}, [][]float64{{1, 2}, {1}}, []float64{1, 2})
	require.ErrorIs(t, err, ErrTrainingData)
}

func TestTrain_DegenerateMatrix(t *testing.T) {
	X := [][]float64{{1, 2}, {1, 2}, {1, 2}, {1, 2}, {1, 2}}
	y := []float64{10, 20, 30, 40, 50}
	_, err := Train(Config{}, X, y)
	require.ErrorIs(t, err, ErrTrainingData)
	assert.Contains(t, err.Error(), "degenerate")
}

func TestPredict_LearnsSignal(t *testing.T) {
	X, y := syntheticData(80, 7)
	f, err := Train(Config{Trees: 100, Seed: 42}, X, y)
	require.NoError(t, err)

	// A high-f0 point must predict clearly above a low-f0 point.
	high := f.Predict([]float64{9, 2.5, 0.5})
	low := f.Predict([]float64{1, 2.5, 0.5})
	assert.Greater(t, high, low+3000)
}

func TestTrain_Deterministic(t *testing.T) {
	X, y := syntheticData(60, 11)

	a, err := Train(Config{Trees: 50, Seed: 42}, X, y)
	require.NoError(t, err)
	b, err := Train(Config{Trees: 50, Seed: 42}, X, y)
	require.NoError(t, err)

	probes := [][]float64{{5, 2, 0.1}, {0.3, 4.9, 0.8}, {9.7, 0.2, 0.5}}
	for _, p := range probes {
		assert.Equal(t, a.Predict(p), b.Predict(p))
	}
	assert.Equal(t, a.Base(), b.Base())
}

func TestTrain_SeedChangesModel(t *testing.T) {
	X, y := syntheticData(60, 11)

	a, err := Train(Config{Trees: 50, Seed: 42}, X, y)
	require.NoError(t, err)
	b, err := Train(Config{Trees: 50, Seed: 43}, X, y)
	require.NoError(t, err)

	assert.NotEqual(t, a.Predict([]float64{5, 2, 0.1}), b.Predict([]float64{5, 2, 0.1}))
}

func TestBase_NearTargetMean(t *testing.T) {
	X, y := syntheticData(80, 3)
	f, err := Train(Config{Trees: 100, Seed: 42}, X, y)
	require.NoError(t, err)

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	// In-sample mean prediction tracks the target mean closely.
	assert.InDelta(t, mean, f.Base(), mean*0.1)
}

func TestPredict_ConstantTargets(t *testing.T) {
	X := [][]float64{{1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}, {6, 0}}
	y := []float64{500, 500, 500, 500, 500, 500}

	f, err := Train(Config{Trees: 20, Seed: 42}, X, y)
	require.NoError(t, err)
	assert.Equal(t, 500.0, f.Predict([]float64{3.5, 0}))
}
