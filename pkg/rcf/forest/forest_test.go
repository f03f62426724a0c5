package forest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestForest(t *testing.T, parallel bool) *Forest {
	t.Helper()
	f, err := New(Config{
		Dimensions:               4,
		ShingleSize:              1,
		Capacity:                 64,
		NumberOfTrees:            20,
		RandomSeed:               7,
		ParallelEnabled:          parallel,
		TimeDecay:                1.0 / 64,
		InitialAcceptFraction:    0.25,
		BoundingBoxCacheFraction: 1.0,
	})
	require.NoError(t, err)
	return f
}

func gaussianData(n, dims int, seed int64) [][]float64 {
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

func TestForestNewValidation(t *testing.T) {
	_, err := New(Config{Dimensions: 0, Capacity: 10, NumberOfTrees: 1})
	assert.Error(t, err)

	_, err = New(Config{Dimensions: 4, ShingleSize: 3, Capacity: 10, NumberOfTrees: 1})
	assert.Error(t, err, "shingle size must divide dimensions")

	_, err = New(Config{Dimensions: 4, ShingleSize: 1, Capacity: 10, NumberOfTrees: 1, InternalRotation: true})
	assert.Error(t, err, "internal rotation requires internal shingling")
}

func TestForestUpdateAndScore(t *testing.T) {
	f := newTestForest(t, false)
	for _, row := range gaussianData(500, 4, 1) {
		ok, err := f.Update(row, 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.EqualValues(t, 500, f.EntriesSeen())

	inlier := []float64{0, 0, 0, 0}
	outlier := []float64{50, 50, 50, 50}

	inlierScore, err := f.Score(inlier)
	require.NoError(t, err)
	outlierScore, err := f.Score(outlier)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, inlierScore, 0.0)
	assert.Greater(t, outlierScore, inlierScore, "a far outlier should score higher than a central point")
}

func TestForestAttributionMatchesScore(t *testing.T) {
	f := newTestForest(t, false)
	for _, row := range gaussianData(300, 4, 2) {
		_, err := f.Update(row, 0)
		require.NoError(t, err)
	}

	point := []float64{1, -1, 2, -2}
	score, err := f.Score(point)
	require.NoError(t, err)
	attribution, err := f.Attribution(point)
	require.NoError(t, err)

	assert.InDelta(t, score, attribution.Total(), 1e-6, "attribution total must reconstruct the scalar score")
}

func TestForestDensityAndDisplacement(t *testing.T) {
	f := newTestForest(t, false)
	for _, row := range gaussianData(300, 4, 3) {
		_, err := f.Update(row, 0)
		require.NoError(t, err)
	}

	point := []float64{0, 0, 0, 0}
	density, err := f.Density(point)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, density, 0.0)

	displacement, err := f.DisplacementScore(point)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, displacement, 0.0)

	directional, err := f.DirectionalDensity(point)
	require.NoError(t, err)
	assert.Equal(t, 4, directional.Dimensions())
}

func TestForestImputeMissingValues(t *testing.T) {
	f := newTestForest(t, false)
	for i := 0; i < 300; i++ {
		row := []float64{float64(i % 10), float64(i % 10), float64(i % 10), float64(i % 10)}
		_, err := f.Update(row, 0)
		require.NoError(t, err)
	}

	query := []float64{5, 5, 0, 0}
	filled, err := f.ImputeMissingValues([]int{2, 3}, query)
	require.NoError(t, err)
	assert.Equal(t, 5.0, filled[0])
	assert.Equal(t, 5.0, filled[1])
}

func TestForestExtrapolateRequiresShingling(t *testing.T) {
	f := newTestForest(t, false)
	_, err := f.Extrapolate(3)
	assert.Error(t, err)
}

func TestForestExtrapolateWithShingling(t *testing.T) {
	f, err := New(Config{
		Dimensions:            4,
		ShingleSize:           4,
		Capacity:              64,
		NumberOfTrees:         20,
		RandomSeed:            11,
		TimeDecay:             1.0 / 64,
		InitialAcceptFraction: 0.25,
		InternalShingling:     true,
	})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		_, err := f.Update([]float64{float64(i % 5)}, 0)
		require.NoError(t, err)
	}

	out, err := f.Extrapolate(2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestForestParallelMatchesSequentialEntryCount(t *testing.T) {
	data := gaussianData(200, 4, 99)

	seq := newTestForest(t, false)
	par := newTestForest(t, true)
	for _, row := range data {
		_, err := seq.Update(row, 0)
		require.NoError(t, err)
		_, err = par.Update(row, 0)
		require.NoError(t, err)
	}

	assert.Equal(t, seq.EntriesSeen(), par.EntriesSeen())
	assert.Equal(t, seq.NumberOfTrees(), par.NumberOfTrees())
}

func TestForestValidatePointRejectsWrongDimension(t *testing.T) {
	f := newTestForest(t, false)
	_, err := f.Update([]float64{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestForestGenericScoreDefaultsMatchScore(t *testing.T) {
	f := newTestForest(t, false)
	for _, row := range gaussianData(200, 4, 5) {
		_, err := f.Update(row, 0)
		require.NoError(t, err)
	}
	point := []float64{2, 2, 2, 2}
	generic, err := f.GenericScore(point, nil)
	require.NoError(t, err)
	plain, err := f.Score(point)
	require.NoError(t, err)
	assert.Equal(t, plain, generic)
}
