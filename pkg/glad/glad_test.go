package glad

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGladProcessRejectsNegativeWeight(t *testing.T) {
	g := New(64, 1, 0.02, 3, 4, 0.1)
	_, err := g.Process([]float64{0, 0}, -1)
	assert.Error(t, err)
}

func TestGladProcessAcceptsPointsAndBuildsClusters(t *testing.T) {
	g := New(128, 5, 0.02, 3, 4, 0.1)
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < 400; i++ {
		point := []float64{rng.NormFloat64(), rng.NormFloat64()}
		_, err := g.Process(point, 1)
		require.NoError(t, err)
	}

	// Force the reclustering branch regardless of the drift heuristic's
	// outcome on this particular random stream, since the point of this
	// test is that recluster() actually populates g.clusters from the
	// reservoir, not that any specific stream happens to drift.
	g.lastClusterAt = 0
	g.lastMean = 1000
	g.recluster()

	assert.NotEmpty(t, g.Clusters(), "recluster should build a cluster summary from a non-empty reservoir")
}

func TestGladScoreZeroForExactRepresentative(t *testing.T) {
	g := New(32, 7, 0.02, 3, 2, 0)
	for i := 0; i < 100; i++ {
		_, err := g.Process([]float64{1, 1}, 1)
		require.NoError(t, err)
	}
	g.recluster()
	reps, err := g.score([]float64{1, 1})
	require.NoError(t, err)
	if len(reps) > 0 {
		assert.Equal(t, float32(0), reps[0].Measure)
	}
}
