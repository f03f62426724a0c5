package visitor

import (
	"github.com/hed1ad/rcforest/pkg/rcf/boundingbox"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
)

// Attribution accumulates a per-dimension high/low split of the anomaly
// score over one tree's traversal: at the leaf, the degenerate bounding box
// around the stored point, queried against the actual traversal point (not
// the leaf's own point), gives the probability-of-cut vector that seeds the
// direction split every ancestor step then damps and re-splits.
type Attribution struct {
	treeMass  int
	vec       *DiVector
	converged bool
}

// NewAttribution builds an attribution visitor for a tree of the given
// dimensionality and total mass.
func NewAttribution(dimensions, treeMass int) *Attribution {
	return &Attribution{treeMass: treeMass, vec: NewDiVector(dimensions)}
}

func (v *Attribution) AcceptLeaf(leaf tree.LeafView) {
	if leaf.Equals {
		v.converged = true
		damp := Damp(leaf.Mass, v.treeMass)
		seen := ScoreSeen(leaf.Depth, leaf.Mass)
		v.splitEqually(damp * seen)
		return
	}
	box := boundingbox.NewDegenerate(leaf.Point)
	probVec := box.ProbabilityOfCutVector(leaf.Query)
	v.apply(probVec, ScoreUnseen(leaf.Depth))
}

func (v *Attribution) Accept(node tree.NodeView) {
	if v.converged {
		return
	}
	p := node.ProbabilityOfCut
	if p <= 0 {
		v.converged = true
		return
	}
	unseen := ScoreUnseen(node.Depth)
	for d := 0; d < v.vec.Dimensions(); d++ {
		lo := float64(node.ProbabilityVector[2*d])
		hi := float64(node.ProbabilityVector[2*d+1])
		v.vec.Low[d] = lo*unseen + (1-p)*v.vec.Low[d]
		v.vec.High[d] = hi*unseen + (1-p)*v.vec.High[d]
	}
}

// apply seeds the vector from a probability-of-cut vector scaled by weight,
// used at the unseen-leaf step where there is no prior contribution to damp.
func (v *Attribution) apply(probVec []float32, weight float64) {
	for d := 0; d < v.vec.Dimensions(); d++ {
		v.vec.Low[d] = float64(probVec[2*d]) * weight
		v.vec.High[d] = float64(probVec[2*d+1]) * weight
	}
}

// splitEqually seeds the vector for the seen-leaf case, where there is no
// direction to assign: the contribution is split evenly across high and low
// for every dimension so the total still matches the scalar score.
func (v *Attribution) splitEqually(total float64) {
	n := v.vec.Dimensions()
	if n == 0 {
		return
	}
	share := total / float64(2*n)
	for d := 0; d < n; d++ {
		v.vec.Low[d] = share
		v.vec.High[d] = share
	}
}

func (v *Attribution) HasConverged() bool { return v.converged }

// Result returns the normalized DiVector, matching AnomalyScore's
// normalization so Result().Total() equals the scalar score.
func (v *Attribution) Result() *DiVector {
	out := &DiVector{High: make([]float64, len(v.vec.High)), Low: make([]float64, len(v.vec.Low))}
	copy(out.High, v.vec.High)
	copy(out.Low, v.vec.Low)
	out.ScaleMut(Normalize(1, v.treeMass))
	return out
}
