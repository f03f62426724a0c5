// Package glad implements a global/local anomaly detector: a bounded,
// weighted reservoir of recently seen points is periodically re-clustered
// into a small set of cluster.MultiCenter summaries, and each new point is
// scored by its shrinkage-blended distance to the nearest summary,
// normalized by that summary's average radius and graded through a
// trcf.BasicThresholder. Where pkg/rcf answers "how unlike the ensemble of
// random cuts is this point," glad answers the complementary "how far is
// this point from the nearest dense region I've actually kept."
package glad

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/cluster"
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
	"github.com/hed1ad/rcforest/pkg/rcf/rngstream"
	"github.com/hed1ad/rcforest/pkg/trcf"
)

const (
	scoreMax                 = 10.0
	clusterComparisonFactor  = 10.0
	defaultMaxClusters       = 10
	defaultNumberOfRepresentatives = 5
	defaultMergeRadius       = 3.0
)

// Representative pairs a cluster's nearest member to the queried point with
// the normalized measure of that distance (an attribution weight once all
// representatives are combined, not a raw distance).
type Representative struct {
	Point   []float64
	Measure float32
}

// Descriptor is glad's Process result: the representatives nearest the
// queried point, the minimum distance measure among them (Score), the
// detector's current threshold, and the graded [0, 1] Grade.
type Descriptor struct {
	Representatives []Representative
	Score           float32
	Threshold       float32
	Grade           float32
}

// reservoirEntry is one kept sample: its point, ingest weight, and the
// random heap-ordering key it was sampled with.
type reservoirEntry struct {
	point      []float64
	weight     float32
	heapWeight float64
}

// GlobalLocalAnomalyDetector maintains the reservoir + cluster summary +
// thresholder described at the package level.
type GlobalLocalAnomalyDetector struct {
	capacity     int
	decay        float64
	shrinkage    float32
	numberOfReps int
	maxClusters  int
	mergeRadius  float64
	ignoreBelow  float32

	heap    []reservoirEntry // binary max-heap on heapWeight
	rng     *rngstream.Stream
	entriesSeen uint64
	sequenceNumber uint64
	lastClusterAt  uint64
	doNotReclusterWithin uint64
	lastMean       float32

	clusters []*cluster.MultiCenter
	thresholder *trcf.BasicThresholder
}

// New builds a detector bounded to capacity reservoir samples, reclustering
// into at most maxClusters summaries of numberOfRepresentatives points
// each, with the given recency decay for the reservoir's random weighting
// and thresholder's deviation trackers. mergeRadius bounds how far a point
// can be from a cluster's representatives and still join it rather than
// seed a new cluster; 0 selects a data-agnostic default.
func New(capacity int, randomSeed uint64, decay float64, numberOfRepresentatives, maxClusters int, shrinkage float32) *GlobalLocalAnomalyDetector {
	return NewWithMergeRadius(capacity, randomSeed, decay, numberOfRepresentatives, maxClusters, shrinkage, 0)
}

// NewWithMergeRadius is New with an explicit cluster merge radius.
func NewWithMergeRadius(capacity int, randomSeed uint64, decay float64, numberOfRepresentatives, maxClusters int, shrinkage float32, mergeRadius float64) *GlobalLocalAnomalyDetector {
	if maxClusters <= 0 {
		maxClusters = defaultMaxClusters
	}
	if numberOfRepresentatives <= 0 {
		numberOfRepresentatives = defaultNumberOfRepresentatives
	}
	if mergeRadius <= 0 {
		mergeRadius = defaultMergeRadius
	}
	return &GlobalLocalAnomalyDetector{
		capacity:             capacity,
		decay:                decay,
		shrinkage:            shrinkage,
		mergeRadius:          mergeRadius,
		numberOfReps:         numberOfRepresentatives,
		maxClusters:          maxClusters,
		ignoreBelow:          0,
		rng:                  rngstream.New(randomSeed),
		doNotReclusterWithin: uint64(capacity) / 4,
		thresholder:          trcf.NewBasicThresholder(decay, false),
	}
}

func (g *GlobalLocalAnomalyDetector) fillFraction() float64 {
	if g.capacity == 0 {
		return 1
	}
	return float64(len(g.heap)) / float64(g.capacity)
}

// initialAcceptProbability is the same three-branch warm-up curve the RCF
// sampler uses: points are accepted unconditionally until the reservoir is
// a quarter full, then the accept probability ramps linearly down to the
// steady-state reservoir-sampling rate.
func (g *GlobalLocalAnomalyDetector) initialAcceptProbability(fillFraction float64) float64 {
	switch {
	case fillFraction <= 0.25:
		return 1
	case fillFraction >= 1:
		return 0
	default:
		return 1 - (fillFraction-0.25)/0.75
	}
}

func (g *GlobalLocalAnomalyDetector) computeWeight(randomNumber float64, weight float32) float64 {
	if randomNumber <= 0 {
		randomNumber = 1e-300
	}
	return -math.Log(randomNumber) / math.Exp(float64(weight)*g.decay)
}

// sample folds one weighted point into the bounded reservoir, evicting the
// heaviest (least-favored) entry if the reservoir is full and the new
// point's heap weight is smaller (favored).
func (g *GlobalLocalAnomalyDetector) sample(point []float64, weight float32) bool {
	g.sequenceNumber++
	g.entriesSeen++

	randomNumber := g.rng.NextFloat64()
	heapWeight := g.computeWeight(randomNumber, weight)

	accept := false
	if len(g.heap) < g.capacity {
		accept = g.rng.NextFloat64() < g.initialAcceptProbability(g.fillFraction())
	}
	if !accept && len(g.heap) > 0 && heapWeight < g.heap[0].heapWeight {
		accept = true
	}
	if !accept {
		return false
	}

	entry := reservoirEntry{point: append([]float64(nil), point...), weight: weight, heapWeight: heapWeight}
	if len(g.heap) < g.capacity {
		g.heap = append(g.heap, entry)
		g.siftUp(len(g.heap) - 1)
	} else {
		g.heap[0] = entry
		g.siftDown(0)
	}
	return true
}

func (g *GlobalLocalAnomalyDetector) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if g.heap[parent].heapWeight < g.heap[i].heapWeight {
			g.heap[parent], g.heap[i] = g.heap[i], g.heap[parent]
			i = parent
		} else {
			break
		}
	}
}

func (g *GlobalLocalAnomalyDetector) siftDown(i int) {
	n := len(g.heap)
	for {
		largest := i
		l, r := 2*i+1, 2*i+2
		if l < n && g.heap[l].heapWeight > g.heap[largest].heapWeight {
			largest = l
		}
		if r < n && g.heap[r].heapWeight > g.heap[largest].heapWeight {
			largest = r
		}
		if largest == i {
			return
		}
		g.heap[i], g.heap[largest] = g.heap[largest], g.heap[i]
		i = largest
	}
}

// recluster rebuilds the cluster summary from the current reservoir
// whenever the thresholder's most recent score differs by more than 0.1
// from the one recorded at the last recluster (or exceeds 1.7), or
// reclustering hasn't happened in a long while, mirroring the Rust
// processor's drift-triggered recompute. No running mean of the scores is
// kept for this check.
func (g *GlobalLocalAnomalyDetector) recluster() {
	if g.sequenceNumber <= g.lastClusterAt+g.doNotReclusterWithin {
		return
	}
	currentMean := float32(g.thresholder.LastScore())
	driftEnough := float32(math.Abs(float64(currentMean-g.lastMean))) > 0.1 || currentMean > 1.7
	longOverdue := g.sequenceNumber > g.lastClusterAt+20*g.doNotReclusterWithin
	if !driftEnough && !longOverdue {
		return
	}
	g.lastClusterAt = g.sequenceNumber
	g.lastMean = currentMean

	s := cluster.NewSummarizer(g.maxClusters, g.numberOfReps, g.mergeRadius, g.shrinkage)
	for _, e := range g.heap {
		_ = s.Add(e.point, e.weight)
	}
	g.clusters = s.Clusters()
}

type candidate struct {
	clusterIdx int
	distance   float64
	point      []float64
	radius     float64
}

func (g *GlobalLocalAnomalyDetector) score(point []float64) ([]Representative, error) {
	if len(g.clusters) == 0 {
		return nil, nil
	}
	candidates := make([]candidate, 0, len(g.clusters))
	for j, c := range g.clusters {
		dist, idx, err := c.DistanceToPoint(point, g.ignoreBelow, cluster.EuclideanDistance)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{
			clusterIdx: j,
			distance:   dist,
			point:      c.Representatives[idx].Point,
			radius:     c.AverageRadius(),
		})
	}
	for i := 1; i < len(candidates); i++ {
		for k := i; k > 0 && candidates[k].distance < candidates[k-1].distance; k-- {
			candidates[k], candidates[k-1] = candidates[k-1], candidates[k]
		}
	}
	if candidates[0].distance == 0 {
		return []Representative{{Point: candidates[0].point, Measure: 0}}, nil
	}

	threshold := candidates[0].distance * clusterComparisonFactor
	reps := make([]Representative, 0, len(candidates))
	for _, c := range candidates {
		if c.distance >= threshold {
			continue
		}
		var measure float32
		if c.radius > 0 && c.distance < scoreMax*c.radius {
			measure = float32(c.distance / c.radius)
		} else {
			measure = scoreMax
		}
		reps = append(reps, Representative{Point: c.point, Measure: measure})
	}
	return reps, nil
}

// Process recomputes clusters if drift warrants it, scores point against
// the current summary, grades the result, folds point into the reservoir,
// and returns the Descriptor.
func (g *GlobalLocalAnomalyDetector) Process(point []float64, weight float32) (Descriptor, error) {
	if weight < 0 {
		return Descriptor{}, rcferrors.InvalidArgumentf("glad: weight cannot be negative")
	}
	g.recluster()

	reps, err := g.score(point)
	if err != nil {
		return Descriptor{}, err
	}

	threshold := g.thresholder.Threshold()
	var grade float32
	var score float32
	if len(reps) > 0 {
		score = reps[0].Measure
		for _, r := range reps[1:] {
			if r.Measure < score {
				score = r.Measure
			}
		}
		if score < scoreMax {
			sum := 0.0
			for _, r := range reps {
				if r.Measure == scoreMax {
					continue
				}
				sum += math.Exp(-float64(r.Measure) * float64(r.Measure))
			}
			for i := range reps {
				if reps[i].Measure == scoreMax || sum == 0 {
					reps[i].Measure = 0
					continue
				}
				reps[i].Measure = float32(math.Min(1, math.Exp(-float64(reps[i].Measure)*float64(reps[i].Measure))/sum))
			}
		} else {
			even := float32(1) / float32(len(reps))
			for i := range reps {
				reps[i].Measure = even
			}
		}
		grade = g.thresholder.AnomalyGrade(score, false)
		g.thresholder.Update(score)
	}

	g.sample(point, weight)

	return Descriptor{
		Representatives: reps,
		Score:           score,
		Threshold:       threshold,
		Grade:           grade,
	}, nil
}

// Clusters returns the detector's current cluster summary.
func (g *GlobalLocalAnomalyDetector) Clusters() []*cluster.MultiCenter {
	out := make([]*cluster.MultiCenter, len(g.clusters))
	copy(out, g.clusters)
	return out
}
