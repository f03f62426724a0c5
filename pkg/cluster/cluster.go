// Package cluster implements a CURE-style multi-representative summary of a
// weighted point set: each cluster keeps several representative points
// rather than a single centroid, so elongated or non-convex groups are
// approximated without collapsing to one mean.
package cluster

import (
	"math"
	"sort"

	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
)

// Distance computes the dissimilarity between two []float64 points.
type Distance func(a, b []float64) float64

// EuclideanDistance is the default Distance for []float64 points.
func EuclideanDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Center is one representative point of a MultiCenter, carrying the weight
// it was assigned when the cluster was built.
type Center struct {
	Point  []float64
	Weight float32
}

// MultiCenter is a cluster summarized by several representative points
// (rather than a single mean), a shrinkage factor that blends the nearest
// representative's distance with the cluster's primary representative's
// distance, and the running weight/sum-of-radii used to report density.
type MultiCenter struct {
	Representatives []Center
	Shrinkage       float32
	Weight          float64
	SumOfRadii      float64
}

// AverageRadius returns the cluster's mean representative-to-member
// distance, or 0 for a cluster with no accumulated weight.
func (m *MultiCenter) AverageRadius() float64 {
	if m.Weight == 0 {
		return 0
	}
	return m.SumOfRadii / m.Weight
}

// DistanceToPoint returns the shrinkage-blended distance from point to this
// cluster, along with the index of the nearest representative whose weight
// exceeds ignore. Representatives at or below the ignore weight (freshly
// added, not yet trusted) are skipped except as the fallback primary.
func (m *MultiCenter) DistanceToPoint(point []float64, ignore float32, distance Distance) (float64, int, error) {
	if len(m.Representatives) == 0 {
		return 0, -1, rcferrors.InvalidArgumentf("cluster: empty cluster has no representatives")
	}
	primary := distance(point, m.Representatives[0].Point)
	if primary < 0 {
		return 0, -1, rcferrors.InvalidArgumentf("cluster: distance must be non-negative")
	}
	closestDist, closestIdx := primary, 0
	for i := 1; i < len(m.Representatives); i++ {
		if m.Representatives[i].Weight <= ignore {
			continue
		}
		d := distance(point, m.Representatives[i].Point)
		if d < 0 {
			return 0, -1, rcferrors.InvalidArgumentf("cluster: distance must be non-negative")
		}
		if d < closestDist {
			closestDist, closestIdx = d, i
		}
	}
	blended := closestDist*(1-float64(m.Shrinkage)) + float64(m.Shrinkage)*primary
	return blended, closestIdx, nil
}

// Summarizer incrementally groups weighted points into up to MaxClusters
// MultiCenters using a greedy nearest-cluster assignment: a point joins its
// nearest existing cluster if within MergeRadius, otherwise it seeds a new
// cluster (up to MaxClusters), otherwise it joins the nearest cluster
// regardless of distance. This is a single-pass simplification of CURE's
// hierarchical-merge construction, sized for streaming use by glad and
// trcf rather than a batch corpus.
type Summarizer struct {
	MaxClusters           int
	NumberOfRepresentatives int
	MergeRadius           float64
	Shrinkage             float32
	Distance              Distance

	clusters []*MultiCenter
}

// NewSummarizer builds a Summarizer with the given cap on cluster count and
// representatives per cluster.
func NewSummarizer(maxClusters, numberOfRepresentatives int, mergeRadius float64, shrinkage float32) *Summarizer {
	return &Summarizer{
		MaxClusters:             maxClusters,
		NumberOfRepresentatives: numberOfRepresentatives,
		MergeRadius:             mergeRadius,
		Shrinkage:               shrinkage,
		Distance:                EuclideanDistance,
	}
}

// Clusters returns the current summary, most heavily weighted first.
func (s *Summarizer) Clusters() []*MultiCenter {
	out := make([]*MultiCenter, len(s.clusters))
	copy(out, s.clusters)
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// Add folds one weighted point into the summary, merging it into its
// nearest cluster or seeding a new one.
func (s *Summarizer) Add(point []float64, weight float32) error {
	if len(s.clusters) == 0 {
		s.clusters = append(s.clusters, s.seed(point, weight))
		return nil
	}

	bestIdx, bestDist := -1, math.Inf(1)
	for i, c := range s.clusters {
		d, _, err := c.DistanceToPoint(point, 0, s.Distance)
		if err != nil {
			return err
		}
		if d < bestDist {
			bestDist, bestIdx = d, i
		}
	}

	if bestDist > s.MergeRadius && len(s.clusters) < s.MaxClusters {
		s.clusters = append(s.clusters, s.seed(point, weight))
		return nil
	}

	c := s.clusters[bestIdx]
	c.Weight += float64(weight)
	c.SumOfRadii += bestDist * float64(weight)
	if len(c.Representatives) < s.NumberOfRepresentatives {
		c.Representatives = append(c.Representatives, Center{Point: append([]float64(nil), point...), Weight: weight})
	}
	return nil
}

func (s *Summarizer) seed(point []float64, weight float32) *MultiCenter {
	return &MultiCenter{
		Representatives: []Center{{Point: append([]float64(nil), point...), Weight: weight}},
		Shrinkage:       s.Shrinkage,
		Weight:          float64(weight),
	}
}
