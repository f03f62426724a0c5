package visitor

import "github.com/hed1ad/rcforest/pkg/rcf/tree"

// AnomalyScore accumulates the standard RCF anomaly score over one tree's
// traversal: initialized at the leaf by whether the query matches an
// existing point, then updated at each ancestor by the probability a random
// cut would have separated the query from that ancestor's box.
type AnomalyScore struct {
	treeMass  int
	score     float64
	converged bool
}

// NewAnomalyScore builds a visitor for a tree whose total mass is treeMass.
func NewAnomalyScore(treeMass int) *AnomalyScore {
	return &AnomalyScore{treeMass: treeMass}
}

func (v *AnomalyScore) AcceptLeaf(leaf tree.LeafView) {
	if leaf.Equals {
		v.converged = true
		v.score = Damp(leaf.Mass, v.treeMass) * ScoreSeen(leaf.Depth, leaf.Mass)
		return
	}
	v.score = ScoreUnseen(leaf.Depth)
}

func (v *AnomalyScore) Accept(node tree.NodeView) {
	if v.converged {
		return
	}
	p := node.ProbabilityOfCut
	if p <= 0 {
		v.converged = true
		return
	}
	v.score = p*ScoreUnseen(node.Depth) + (1-p)*v.score
}

func (v *AnomalyScore) HasConverged() bool { return v.converged }

// Result returns the score normalized by the tree's mass.
func (v *AnomalyScore) Result() float64 {
	return Normalize(v.score, v.treeMass)
}
