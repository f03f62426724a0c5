package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclideanDistance(t *testing.T) {
	assert.Equal(t, 5.0, EuclideanDistance([]float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 0.0, EuclideanDistance([]float64{1, 1}, []float64{1, 1}))
}

func TestMultiCenterDistanceToPoint(t *testing.T) {
	m := &MultiCenter{
		Representatives: []Center{
			{Point: []float64{0, 0}, Weight: 1},
			{Point: []float64{10, 0}, Weight: 1},
		},
		Shrinkage: 0,
	}
	d, idx, err := m.DistanceToPoint([]float64{10, 1}, 0, EuclideanDistance)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.InDelta(t, 1.0, d, 1e-9)
}

func TestMultiCenterDistanceToPointEmpty(t *testing.T) {
	m := &MultiCenter{}
	_, _, err := m.DistanceToPoint([]float64{0, 0}, 0, EuclideanDistance)
	assert.Error(t, err)
}

func TestMultiCenterAverageRadius(t *testing.T) {
	m := &MultiCenter{}
	assert.Equal(t, 0.0, m.AverageRadius())

	m.Weight = 4
	m.SumOfRadii = 8
	assert.Equal(t, 2.0, m.AverageRadius())
}

func TestSummarizerSeedsAndMerges(t *testing.T) {
	s := NewSummarizer(3, 4, 2.0, 0)

	require.NoError(t, s.Add([]float64{0, 0}, 1))
	require.NoError(t, s.Add([]float64{0.5, 0.5}, 1))
	require.NoError(t, s.Add([]float64{50, 50}, 1))

	clusters := s.Clusters()
	assert.Len(t, clusters, 2, "the near-duplicate point should merge, the far point should seed a new cluster")
}

func TestSummarizerRespectsMaxClusters(t *testing.T) {
	s := NewSummarizer(1, 4, 0, 0)
	require.NoError(t, s.Add([]float64{0, 0}, 1))
	require.NoError(t, s.Add([]float64{1000, 1000}, 1))

	assert.Len(t, s.Clusters(), 1, "once MaxClusters is reached every point must join the nearest existing cluster")
}
