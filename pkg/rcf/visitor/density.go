package visitor

import "github.com/hed1ad/rcforest/pkg/rcf/tree"

// Density accumulates a single tree's contribution to the forest's local
// density estimate at a query point: the same damped-seen/probability-of-cut
// recursion as AnomalyScore, but additionally tracking per-dimension signed
// mass gaps so displacement and directional density can be read out of the
// same traversal.
type Density struct {
	treeMass     int
	dimensions   int
	score        float64
	displacement float64
	directional  *DiVector
	converged    bool
}

// NewDensity builds a density/displacement visitor for a tree of the given
// dimensionality and total mass.
func NewDensity(dimensions, treeMass int) *Density {
	return &Density{treeMass: treeMass, dimensions: dimensions, directional: NewDiVector(dimensions)}
}

func (v *Density) AcceptLeaf(leaf tree.LeafView) {
	if leaf.Equals {
		v.converged = true
		v.score = Damp(leaf.Mass, v.treeMass) * ScoreSeen(leaf.Depth, leaf.Mass)
		return
	}
	v.score = ScoreUnseen(leaf.Depth)
	v.displacement = float64(leaf.Mass)
}

func (v *Density) Accept(node tree.NodeView) {
	if v.converged {
		return
	}
	p := node.ProbabilityOfCut
	if p <= 0 {
		v.converged = true
		return
	}
	v.score = p*ScoreUnseen(node.Depth) + (1-p)*v.score

	gap := float64(node.Mass) - v.displacement
	v.displacement = p*gap + (1-p)*v.displacement

	for d := 0; d < v.dimensions; d++ {
		lo := float64(node.ProbabilityVector[2*d])
		hi := float64(node.ProbabilityVector[2*d+1])
		v.directional.Low[d] = lo*gap + (1-p)*v.directional.Low[d]
		v.directional.High[d] = hi*gap + (1-p)*v.directional.High[d]
	}
}

func (v *Density) HasConverged() bool { return v.converged }

// DensityResult returns the normalized density estimate, the same family of
// quantity as AnomalyScore but read as a measure of local crowding rather
// than anomalousness.
func (v *Density) DensityResult() float64 {
	return Normalize(v.score, v.treeMass)
}

// DisplacementResult returns how much total mass would be displaced were
// the query point inserted, normalized by tree mass.
func (v *Density) DisplacementResult() float64 {
	return v.displacement / float64(v.treeMass)
}

// DirectionalDensity returns the per-dimension high/low split of the mass
// gap accumulated across the traversal, normalized by tree mass: high[d]
// is the mass found on the query's low side of dimension d (the query lies
// above it), low[d] the mass on its high side (the query lies below it).
func (v *Density) DirectionalDensity() *DiVector {
	out := &DiVector{High: make([]float64, v.dimensions), Low: make([]float64, v.dimensions)}
	for d := 0; d < v.dimensions; d++ {
		out.High[d] = v.directional.High[d] / float64(v.treeMass)
		out.Low[d] = v.directional.Low[d] / float64(v.treeMass)
	}
	return out
}
