package visitor

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/nodestore"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
)

// imputeCandidate is one leaf completion proposal carried up the descent:
// its traversal score (in the AnomalyScore family), the leaf it resolves
// to, the L2 distance between the completed point and that leaf's point,
// a fresh uniform draw for the centrality blend, and whether the branch
// has already converged (query point lies strictly inside some ancestor's
// box, so no further probability updates change its score).
type imputeCandidate struct {
	score     float64
	leafRef   int
	distance  float64
	random    float64
	converged bool
}

// ImputeMissingValues runs one tree's impute descent: at every internal
// node whose cut dimension is among missing, both children are explored
// and the better completion kept; elsewhere the descent follows query as
// usual. It returns the point with missing positions filled from the
// chosen leaf, that leaf's PointRef, and the L2 distance to it.
func ImputeMissingValues(t *tree.Tree, missing []int, query []float64, centrality float64) ([]float64, int, float64, error) {
	missingSet := make(map[int]bool, len(missing))
	for _, d := range missing {
		missingSet[d] = true
	}
	ns := t.NodeStore()
	if ns.Root() == nodestore.NullIndex {
		return nil, -1, 0, nil
	}
	cand, err := imputeDescend(t, ns, ns.Root(), 0, missingSet, query, centrality)
	if err != nil {
		return nil, -1, 0, err
	}
	leafPoint, err := t.PointAt(cand.leafRef)
	if err != nil {
		return nil, -1, 0, err
	}
	filled := make([]float64, len(query))
	copy(filled, query)
	for _, d := range missing {
		filled[d] = leafPoint[d]
	}
	return filled, cand.leafRef, cand.distance, nil
}

func imputeDescend(t *tree.Tree, ns *nodestore.NodeStore, idx, depth int, missing map[int]bool, query []float64, centrality float64) (imputeCandidate, error) {
	if ns.IsLeaf(idx) {
		return imputeLeaf(t, ns, idx, depth, missing, query)
	}
	if missing[ns.CutDim(idx)] {
		left, err := imputeDescend(t, ns, ns.Left(idx), depth+1, missing, query, centrality)
		if err != nil {
			return imputeCandidate{}, err
		}
		right, err := imputeDescend(t, ns, ns.Right(idx), depth+1, missing, query, centrality)
		if err != nil {
			return imputeCandidate{}, err
		}
		return combineBranches(left, right, centrality, t.Mass()), nil
	}

	var child int
	if float32(query[ns.CutDim(idx)]) <= ns.CutValue(idx) {
		child = ns.Left(idx)
	} else {
		child = ns.Right(idx)
	}
	cand, err := imputeDescend(t, ns, child, depth+1, missing, query, centrality)
	if err != nil {
		return imputeCandidate{}, err
	}
	if cand.converged {
		return cand, nil
	}
	box, err := ns.BoundingBoxOf(t.PointAt, idx)
	if err != nil {
		return imputeCandidate{}, err
	}
	p := box.ProbabilityOfCut(query)
	if p == 0 {
		cand.converged = true
		return cand, nil
	}
	cand.score = p*ScoreUnseen(depth) + (1-p)*cand.score
	return cand, nil
}

func imputeLeaf(t *tree.Tree, ns *nodestore.NodeStore, idx, depth int, missing map[int]bool, query []float64) (imputeCandidate, error) {
	leafRef := ns.LeafPointRef(idx)
	leafPoint, err := t.PointAt(leafRef)
	if err != nil {
		return imputeCandidate{}, err
	}
	mass := ns.GetMass(idx)

	newPoint := make([]float64, len(query))
	copy(newPoint, query)
	for d := range missing {
		newPoint[d] = leafPoint[d]
	}
	equals := equalFilled(newPoint, leafPoint)

	var score float64
	var converged bool
	if equals {
		score = Damp(mass, t.Mass()) * ScoreSeen(depth, mass)
		converged = true
	} else {
		score = ScoreUnseen(depth)
	}

	return imputeCandidate{
		score:     score,
		leafRef:   leafRef,
		distance:  l2Distance(newPoint, leafPoint),
		random:    t.NewFactor(),
		converged: converged,
	}, nil
}

func combineBranches(a, b imputeCandidate, centrality float64, treeMass int) imputeCandidate {
	if adjustedScore(a, centrality, treeMass) < adjustedScore(b, centrality, treeMass) {
		a.converged = a.converged || b.converged
		return a
	}
	b.converged = a.converged || b.converged
	return b
}

func adjustedScore(c imputeCandidate, centrality float64, treeMass int) float64 {
	return centrality*Normalize(c.score, treeMass) + (1-centrality)*c.random
}

func equalFilled(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if float32(a[i]) != float32(b[i]) {
			return false
		}
	}
	return true
}

func l2Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
