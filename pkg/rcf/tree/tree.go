// Package tree implements the randomized binary space-partitioning tree that
// sits over one sampler's worth of points: insertion and deletion maintain
// the mass and bounding-box invariants described in the node store, and the
// downward-then-upward traversal used by every visitor lives here.
package tree

import (
	"github.com/hed1ad/rcforest/pkg/rcf/boundingbox"
	"github.com/hed1ad/rcforest/pkg/rcf/nodestore"
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
	"github.com/hed1ad/rcforest/pkg/rcf/rngstream"
)

// PointAccessor returns the dense point for a PointRef, shared with the
// forest's point store.
type PointAccessor func(ref int) ([]float64, error)

// Tree is one randomized tree over a shared point store. Its random stream
// is owned exclusively by the tree: insert and cut-factor draws all come
// from it, advancing it by exactly one draw per probabilistic decision so
// the tree's process is independent of how many candidate points were
// rejected upstream by the sampler.
type Tree struct {
	nodes     *nodestore.NodeStore
	getPoint  PointAccessor
	rng       *rngstream.Stream
	mass      int
}

// New builds an empty tree backed by a fresh node store of the given
// capacity and dimensionality, seeded from seed.
func New(capacity, dimensions int, cacheFraction float64, seed uint64, getPoint PointAccessor) (*Tree, error) {
	ns, err := nodestore.New(capacity, dimensions, cacheFraction)
	if err != nil {
		return nil, err
	}
	return &Tree{nodes: ns, getPoint: getPoint, rng: rngstream.New(seed)}, nil
}

// Mass returns the tree's total mass (sum of leaf masses).
func (t *Tree) Mass() int { return t.mass }

// Size returns the number of resident internal-node slots.
func (t *Tree) Size() int { return t.nodes.Size() }

func nodesOf(steps []nodestore.PathStep) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Node
	}
	return out
}

func equalPoints(a, b []float64) bool {
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

// Insert adds ref (already stored in the shared point store) to the tree.
// If an equal point already occupies the leaf ref's descent would reach,
// its mass is incremented instead of creating a duplicate leaf.
func (t *Tree) Insert(ref int) error {
	point, err := t.getPoint(ref)
	if err != nil {
		return err
	}
	if t.nodes.Root() == nodestore.NullIndex {
		t.nodes.SetRoot(t.nodes.LeafIndex(ref))
		t.mass = 1
		return nil
	}

	path := t.nodes.Path(point)
	t.mass++
	leafStep := path[len(path)-1]
	leafRef := t.nodes.LeafPointRef(leafStep.Node)
	oldPoint, err := t.getPoint(leafRef)
	if err != nil {
		return err
	}

	if equalPoints(point, oldPoint) {
		t.nodes.IncreaseLeafMass(leafStep.Node)
		return t.nodes.ManageAncestorsAdd(t.getPoint, nodesOf(path[:len(path)-1]), point)
	}

	node := leafStep.Node
	idx := len(path) - 1
	var parent int
	if idx > 0 {
		parent = path[idx-1].Node
	} else {
		parent = nodestore.NullIndex
	}

	currentBox := boundingbox.NewDegenerate(oldPoint)
	savedBox := currentBox.Copy()
	savedNode := node
	savedParent := parent
	savedParentDepth := idx - 1
	var savedCut boundingbox.Cut

	for {
		factor := t.rng.NextFloat64()
		cut, separates, _ := currentBox.GetCutAndSeparation(factor, point)
		if separates {
			savedCut = cut
			savedParent = parent
			savedNode = node
			savedBox = currentBox.Copy()
			savedParentDepth = idx - 1
		}
		if parent == nodestore.NullIndex {
			break
		}
		if err := t.nodes.GrowBox(t.getPoint, currentBox, path[idx-1].Sibling); err != nil {
			return err
		}
		idx--
		node = path[idx].Node
		if idx == 0 {
			parent = nodestore.NullIndex
		} else {
			parent = path[idx-1].Node
		}
	}

	newLeaf := t.nodes.LeafIndex(ref)
	var left, right int
	if point[savedCut.Dimension] <= float64(savedCut.Value) {
		left, right = newLeaf, savedNode
	} else {
		left, right = savedNode, newLeaf
	}
	mergedBox := savedBox.Copy()
	mergedBox.AddPoint(point)
	mergedNode, err := t.nodes.AddNode(savedCut, left, right, mergedBox)
	if err != nil {
		return err
	}

	if savedParent == nodestore.NullIndex {
		t.nodes.SetRoot(mergedNode)
		return nil
	}
	t.nodes.ReplaceChild(savedParent, savedNode, mergedNode)
	return t.nodes.ManageAncestorsAdd(t.getPoint, nodesOf(path[:savedParentDepth+1]), point)
}

// Delete removes one occurrence of ref from the tree. If ref's leaf mass is
// still positive after the decrement, only ancestor bookkeeping runs;
// otherwise the leaf and its now-redundant parent are removed and the
// sibling subtree is spliced into the grandparent.
func (t *Tree) Delete(ref int) error {
	if t.nodes.Root() == nodestore.NullIndex {
		return rcferrors.InvalidStatef("tree: delete from an empty tree")
	}
	point, err := t.getPoint(ref)
	if err != nil {
		return err
	}
	path := t.nodes.Path(point)
	leafStep := path[len(path)-1]
	leafRef := t.nodes.LeafPointRef(leafStep.Node)
	if leafRef != ref {
		return rcferrors.InvalidArgumentf("tree.Delete: descent reached ref %d, expected %d", leafRef, ref)
	}

	t.mass--
	remaining := t.nodes.DecreaseLeafMass(leafStep.Node)
	if remaining > 0 {
		return t.nodes.ManageAncestorsDelete(t.getPoint, nodesOf(path[:len(path)-1]))
	}

	if len(path) == 1 {
		t.nodes.SetRoot(nodestore.NullIndex)
		return nil
	}

	parent := path[len(path)-2].Node
	siblingOfLeaf := path[len(path)-2].Sibling
	if len(path) == 2 {
		t.nodes.SetRoot(siblingOfLeaf)
	} else {
		grandParent := path[len(path)-3].Node
		t.nodes.ReplaceChild(grandParent, parent, siblingOfLeaf)
		if err := t.nodes.ManageAncestorsDelete(t.getPoint, nodesOf(path[:len(path)-2])); err != nil {
			return err
		}
	}
	t.nodes.DeleteInternalNode(parent)
	return nil
}

// LeafView describes the leaf reached by a query descent.
type LeafView struct {
	Depth    int
	Mass     int
	PointRef int
	Point    []float64
	Query    []float64
	Equals   bool
}

// NodeView describes an internal node visited during the upward walk,
// after its box has been grown to cover its full subtree.
type NodeView struct {
	Depth             int
	Mass              int
	ProbabilityOfCut  float64
	ProbabilityVector []float32
	Box               *boundingbox.BoundingBox
}

// Visitor observes a tree traversal: AcceptLeaf fires once at the leaf
// reached by the query, then Accept fires once per ancestor walking back up
// to the root, in that order, unless HasConverged short-circuits the walk.
type Visitor interface {
	AcceptLeaf(leaf LeafView)
	Accept(node NodeView)
	HasConverged() bool
}

// Traverse descends to the leaf nearest point under the tree's existing
// cuts, then walks back up invoking the visitor, short-circuiting once
// HasConverged reports true. A nil root is a silent no-op: callers average
// across trees and an empty tree contributes nothing.
func (t *Tree) Traverse(point []float64, v Visitor) error {
	if t.nodes.Root() == nodestore.NullIndex {
		return nil
	}
	path := t.nodes.Path(point)
	leafStep := path[len(path)-1]
	leafRef := t.nodes.LeafPointRef(leafStep.Node)
	leafPoint, err := t.getPoint(leafRef)
	if err != nil {
		return err
	}
	depth := len(path) - 1
	v.AcceptLeaf(LeafView{
		Depth:    depth,
		Mass:     t.nodes.GetMass(leafStep.Node),
		PointRef: leafRef,
		Point:    leafPoint,
		Query:    point,
		Equals:   equalPoints(point, leafPoint),
	})

	box := boundingbox.NewDegenerate(leafPoint)
	for i := len(path) - 2; i >= 0; i-- {
		if v.HasConverged() {
			return nil
		}
		step := path[i]
		if err := t.nodes.GrowBox(t.getPoint, box, step.Sibling); err != nil {
			return err
		}
		v.Accept(NodeView{
			Depth:             i,
			Mass:              t.nodes.GetMass(step.Node),
			ProbabilityOfCut:  box.ProbabilityOfCut(point),
			ProbabilityVector: box.ProbabilityOfCutVector(point),
			Box:               box,
		})
	}
	return nil
}

// NodeStore exposes the tree's node arena for traversal-adjacent code, such
// as the impute visitor's own multi-branch descent, that needs direct
// navigational primitives rather than the single-path Visitor contract.
func (t *Tree) NodeStore() *nodestore.NodeStore { return t.nodes }

// PointAt returns the dense point for ref via the tree's shared accessor.
func (t *Tree) PointAt(ref int) ([]float64, error) { return t.getPoint(ref) }

// NewFactor draws the next uniform [0,1) factor from the tree's own stream,
// used by multi-branch traversals (impute) that need independent draws per
// branch the same way insertion does.
func (t *Tree) NewFactor() float64 { return t.rng.NextFloat64() }
