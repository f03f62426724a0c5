package trcf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/rcf/forest"
)

func newTestForest(t *testing.T, seed uint64) *forest.Forest {
	t.Helper()
	f, err := forest.New(forest.Config{
		Dimensions:               3,
		ShingleSize:              1,
		Capacity:                 64,
		NumberOfTrees:            20,
		RandomSeed:               seed,
		TimeDecay:                1.0 / 64,
		InitialAcceptFraction:    0.25,
		BoundingBoxCacheFraction: 1.0,
	})
	require.NoError(t, err)
	return f
}

func gaussianRows(n, dims int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n)
	for i := range data {
		row := make([]float64, dims)
		for d := range row {
			row[d] = rng.NormFloat64()
		}
		data[i] = row
	}
	return data
}

func TestBasicTRCFProcessGradesOutliers(t *testing.T) {
	trcf := NewBasicTRCF(newTestForest(t, 1), TransformNone, 0.02, 0, 0.02)

	for _, row := range gaussianRows(500, 3, 1) {
		_, err := trcf.Process(row)
		require.NoError(t, err)
	}

	outlierDesc, err := trcf.Process([]float64{40, 40, 40})
	require.NoError(t, err)
	assert.Greater(t, outlierDesc.RCFScore, 0.0)
}

func TestBasicTRCFProcessSequentially(t *testing.T) {
	trcf := NewBasicTRCF(newTestForest(t, 2), TransformNone, 0.02, 0, 0.02)
	rows := gaussianRows(100, 3, 2)
	descs, err := trcf.ProcessSequentially(rows)
	require.NoError(t, err)
	assert.Len(t, descs, len(rows))
}

func TestBasicTRCFDifferenceTransform(t *testing.T) {
	trcf := NewBasicTRCF(newTestForest(t, 3), TransformDifference, 0.02, 0, 0.02)
	for _, row := range gaussianRows(200, 3, 3) {
		_, err := trcf.Process(row)
		require.NoError(t, err)
	}
	assert.True(t, trcf.preprocessor.IsReady())
}

func TestMultiTRCFProcessAllArms(t *testing.T) {
	arms := []Arm{
		{ID: 1, TRCF: NewBasicTRCF(newTestForest(t, 10), TransformNone, 0.02, 0, 0.02)},
		{ID: 2, TRCF: NewBasicTRCF(newTestForest(t, 11), TransformNone, 0.02, 0, 0.02)},
	}
	bandit := NewMultiTRCF(arms...)

	for _, row := range gaussianRows(100, 3, 5) {
		descs, err := bandit.Process(row)
		require.NoError(t, err)
		assert.Len(t, descs, 2)
	}

	assert.GreaterOrEqual(t, bandit.Best(), 0)
	assert.Less(t, bandit.Best(), len(arms))
}

func TestMultiTRCFRequiresArms(t *testing.T) {
	bandit := NewMultiTRCF()
	_, err := bandit.Process([]float64{1, 2, 3})
	assert.Error(t, err)
}
