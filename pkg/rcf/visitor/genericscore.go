package visitor

import "github.com/hed1ad/rcforest/pkg/rcf/tree"

// GenericAnomalyScore is AnomalyScore parameterized by caller-supplied
// score_seen/score_unseen/damp/normalizer functions, matching the external
// generic_score contract. A nil field falls back to the standard function.
type GenericAnomalyScore struct {
	treeMass  int
	score     float64
	converged bool

	scoreSeen   func(depth, mass int) float64
	scoreUnseen func(depth int) float64
	damp        func(mass, treeMass int) float64
	normalize   func(x float64, mass int) float64
}

// GenericScoreBuildingBlocks names the four pluggable functions; nil fields
// fall back to the package's standard score_seen/score_unseen/damp/normalize.
type GenericScoreBuildingBlocks struct {
	ScoreSeen   func(depth, mass int) float64
	ScoreUnseen func(depth int) float64
	Damp        func(mass, treeMass int) float64
	Normalize   func(x float64, mass int) float64
}

// NewGenericAnomalyScore builds a GenericAnomalyScore for a tree of the
// given total mass, using blocks where non-nil and the package defaults
// otherwise. blocks may be nil to use the standard score entirely.
func NewGenericAnomalyScore(treeMass int, blocks *GenericScoreBuildingBlocks) *GenericAnomalyScore {
	v := &GenericAnomalyScore{
		treeMass:    treeMass,
		scoreSeen:   ScoreSeen,
		scoreUnseen: ScoreUnseen,
		damp:        Damp,
		normalize:   Normalize,
	}
	if blocks != nil {
		if blocks.ScoreSeen != nil {
			v.scoreSeen = blocks.ScoreSeen
		}
		if blocks.ScoreUnseen != nil {
			v.scoreUnseen = blocks.ScoreUnseen
		}
		if blocks.Damp != nil {
			v.damp = blocks.Damp
		}
		if blocks.Normalize != nil {
			v.normalize = blocks.Normalize
		}
	}
	return v
}

func (v *GenericAnomalyScore) AcceptLeaf(leaf tree.LeafView) {
	if leaf.Equals {
		v.converged = true
		v.score = v.damp(leaf.Mass, v.treeMass) * v.scoreSeen(leaf.Depth, leaf.Mass)
		return
	}
	v.score = v.scoreUnseen(leaf.Depth)
}

func (v *GenericAnomalyScore) Accept(node tree.NodeView) {
	if v.converged {
		return
	}
	p := node.ProbabilityOfCut
	if p <= 0 {
		v.converged = true
		return
	}
	v.score = p*v.scoreUnseen(node.Depth) + (1-p)*v.score
}

func (v *GenericAnomalyScore) HasConverged() bool { return v.converged }

// Result returns the score normalized by the tree's mass.
func (v *GenericAnomalyScore) Result() float64 {
	return v.normalize(v.score, v.treeMass)
}
