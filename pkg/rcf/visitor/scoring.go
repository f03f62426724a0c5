// Package visitor implements the tree-traversal observers that turn a
// root-to-leaf-and-back walk into an anomaly score, an attribution vector, a
// density estimate, or an imputed value: the same traversal primitive in
// pkg/rcf/tree, specialized by what each visitor accumulates at every node.
package visitor

import "math"

// ScoreSeen is the anomaly-score contribution of a leaf whose point equals
// the query, at depth d with duplicate mass m.
func ScoreSeen(depth int, mass int) float64 {
	return 1 / (float64(depth) + math.Log2(1+float64(mass)))
}

// ScoreUnseen is the anomaly-score contribution of a node the query does not
// match, at depth d.
func ScoreUnseen(depth int) float64 {
	return 1 / (float64(depth) + 1)
}

// Normalize rescales a raw score by log2(1+m); it is the per-tree-mass
// normalization applied when the score is read out of a tree.
func Normalize(x float64, mass int) float64 {
	return x * math.Log2(1+float64(mass))
}

// Damp discounts the seen-leaf contribution by how much of the tree's total
// mass that single duplicate occupies.
func Damp(mass, treeMass int) float64 {
	return 1 - float64(mass)/(2*float64(treeMass))
}
