// Package nodestore implements the arena-allocated internal-node arrays that
// back a single tree: parallel slices indexed by internal-node slot, an
// optional bounding-box cache over a leading fraction of the capacity, and a
// leaf-mass overflow map for duplicate points. Leaves are never allocated —
// a leaf index is encoded as capacity + PointRef.
package nodestore

import (
	"github.com/hed1ad/rcforest/pkg/rcf/boundingbox"
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
)

// NullIndex marks an absent node reference (no parent, no sibling).
const NullIndex = -1

// NodeStore is the arena of internal nodes for one tree.
type NodeStore struct {
	capacity  int
	dimensions int
	cacheLimit int // number of leading internal slots that carry a cached box

	left     []int
	right    []int
	parent   []int
	cutDim   []int
	cutValue []float32
	mass     []int // stored as mass-1 would save a byte in Rust; Go keeps it plain

	boxMin     [][]float32 // nil beyond cacheLimit
	boxMax     [][]float32
	rangeSum   []float64

	hashMassLeaves map[int]int // point ref -> mass, only for leaves with mass > 1

	free []int
	next int
	root int
}

// New builds a NodeStore sized for capacity internal slots (capacity-1
// internal nodes suffice for `capacity` leaves, but one extra slot is kept so
// a full tree can always install one more internal node during a transient
// insert before any compensating delete). cacheFraction in [0,1] controls how
// many leading slots carry a maintained bounding box; the rest reconstruct
// their box on demand.
func New(capacity, dimensions int, cacheFraction float64) (*NodeStore, error) {
	if capacity <= 0 || dimensions <= 0 {
		return nil, rcferrors.InvalidArgumentf("nodestore.New: capacity=%d dimensions=%d must be positive", capacity, dimensions)
	}
	if cacheFraction < 0 || cacheFraction > 1 {
		return nil, rcferrors.InvalidArgumentf("nodestore.New: cacheFraction %f out of [0,1]", cacheFraction)
	}
	n := &NodeStore{
		capacity:       capacity,
		dimensions:     dimensions,
		cacheLimit:     int(cacheFraction * float64(capacity)),
		left:           make([]int, capacity),
		right:          make([]int, capacity),
		parent:         make([]int, capacity),
		cutDim:         make([]int, capacity),
		cutValue:       make([]float32, capacity),
		mass:           make([]int, capacity),
		hashMassLeaves: make(map[int]int),
		root:           NullIndex,
	}
	n.boxMin = make([][]float32, n.cacheLimit)
	n.boxMax = make([][]float32, n.cacheLimit)
	n.rangeSum = make([]float64, n.cacheLimit)
	for i := range n.left {
		n.left[i] = NullIndex
		n.right[i] = NullIndex
		n.parent[i] = NullIndex
	}
	return n, nil
}

// IsLeaf reports whether idx encodes a leaf (a PointRef) rather than an
// internal node slot.
func (n *NodeStore) IsLeaf(idx int) bool { return idx >= n.capacity }

// LeafPointRef decodes a leaf index back into its PointRef.
func (n *NodeStore) LeafPointRef(idx int) int { return idx - n.capacity }

// LeafIndex encodes a PointRef as a leaf index.
func (n *NodeStore) LeafIndex(ref int) int { return n.capacity + ref }

// Root returns the current root index, or NullIndex if the tree is empty.
func (n *NodeStore) Root() int { return n.root }

// SetRoot sets the tree's root.
func (n *NodeStore) SetRoot(idx int) { n.root = idx }

func (n *NodeStore) cached(idx int) bool {
	return idx >= 0 && idx < n.cacheLimit && n.boxMin[idx] != nil
}

// GetMass returns the mass of idx, whether leaf or internal.
func (n *NodeStore) GetMass(idx int) int {
	if n.IsLeaf(idx) {
		ref := n.LeafPointRef(idx)
		if m, ok := n.hashMassLeaves[ref]; ok {
			return m
		}
		return 1
	}
	return n.mass[idx]
}

// IncreaseLeafMass increments the mass of a leaf, recording it in the
// overflow map once it exceeds the default of 1.
func (n *NodeStore) IncreaseLeafMass(idx int) {
	ref := n.LeafPointRef(idx)
	cur, ok := n.hashMassLeaves[ref]
	if !ok {
		cur = 1
	}
	n.hashMassLeaves[ref] = cur + 1
}

// DecreaseLeafMass decrements the mass of a leaf, returning the new mass.
func (n *NodeStore) DecreaseLeafMass(idx int) int {
	ref := n.LeafPointRef(idx)
	cur, ok := n.hashMassLeaves[ref]
	if !ok {
		cur = 1
	}
	cur--
	if cur <= 1 {
		delete(n.hashMassLeaves, ref)
		if cur == 1 {
			return 1
		}
	} else {
		n.hashMassLeaves[ref] = cur
	}
	return cur
}

// Sibling returns the other child of idx's parent.
func (n *NodeStore) Sibling(idx int) int {
	parent := n.parent[idx]
	if n.left[parent] == idx {
		return n.right[parent]
	}
	return n.left[parent]
}

// Path descends from root to the leaf reached by point, returning the
// sequence of (node, sibling) pairs visited, innermost last.
func (n *NodeStore) Path(point []float64) []PathStep {
	var steps []PathStep
	idx := n.root
	for !n.IsLeaf(idx) {
		var next, sib int
		if float32(point[n.cutDim[idx]]) <= n.cutValue[idx] {
			next, sib = n.left[idx], n.right[idx]
		} else {
			next, sib = n.right[idx], n.left[idx]
		}
		steps = append(steps, PathStep{Node: idx, Sibling: sib})
		idx = next
	}
	steps = append(steps, PathStep{Node: idx, Sibling: NullIndex})
	return steps
}

// PathStep is one step of a root-to-leaf descent: the node visited and the
// sibling subtree not taken (NullIndex at the terminal leaf step).
type PathStep struct {
	Node    int
	Sibling int
}

// BoundingBoxOf returns the bounding box for a leaf or internal node.
func (n *NodeStore) BoundingBoxOf(ref func(int) ([]float64, error), idx int) (*boundingbox.BoundingBox, error) {
	if n.IsLeaf(idx) {
		p, err := ref(n.LeafPointRef(idx))
		if err != nil {
			return nil, err
		}
		return boundingbox.NewDegenerate(p), nil
	}
	if n.cached(idx) {
		return n.boxFromCache(idx), nil
	}
	return n.reconstructBox(ref, idx)
}

func (n *NodeStore) boxFromCache(idx int) *boundingbox.BoundingBox {
	min := make([]float64, len(n.boxMin[idx]))
	max := make([]float64, len(n.boxMax[idx]))
	for d := range min {
		min[d] = float64(n.boxMin[idx][d])
		max[d] = float64(n.boxMax[idx][d])
	}
	b, _ := boundingbox.New(min, max)
	return b
}

// reconstructBox rebuilds an internal node's box as box(left) grown by
// right, recursing as needed.
func (n *NodeStore) reconstructBox(ref func(int) ([]float64, error), idx int) (*boundingbox.BoundingBox, error) {
	left, err := n.BoundingBoxOf(ref, n.left[idx])
	if err != nil {
		return nil, err
	}
	box := left.Copy()
	if err := n.GrowBox(ref, box, n.right[idx]); err != nil {
		return nil, err
	}
	return box, nil
}

// GrowBox expands box in place to cover the subtree rooted at idx, using the
// cache when present instead of descending.
func (n *NodeStore) GrowBox(ref func(int) ([]float64, error), box *boundingbox.BoundingBox, idx int) error {
	if n.IsLeaf(idx) {
		p, err := ref(n.LeafPointRef(idx))
		if err != nil {
			return err
		}
		box.AddPoint(p)
		return nil
	}
	if n.cached(idx) {
		box.AddBox(n.boxFromCache(idx))
		return nil
	}
	if err := n.GrowBox(ref, box, n.left[idx]); err != nil {
		return err
	}
	return n.GrowBox(ref, box, n.right[idx])
}

func (n *NodeStore) storeCache(idx int, box *boundingbox.BoundingBox) {
	if idx < 0 || idx >= n.cacheLimit {
		return
	}
	min := make([]float32, box.Dimensions())
	max := make([]float32, box.Dimensions())
	for d := 0; d < box.Dimensions(); d++ {
		min[d] = box.Min(d)
		max[d] = box.Max(d)
	}
	n.boxMin[idx] = min
	n.boxMax[idx] = max
	n.rangeSum[idx] = box.RangeSum()
}

// ProbabilityOfCut is the cache-fast probability-of-cut at idx: uses the
// cached box when present, otherwise reconstructs it.
func (n *NodeStore) ProbabilityOfCut(ref func(int) ([]float64, error), idx int, p []float64) (float64, error) {
	box, err := n.BoundingBoxOf(ref, idx)
	if err != nil {
		return 0, err
	}
	return box.ProbabilityOfCut(p), nil
}

// allocate pulls a slot from the free list, or grows the arena.
func (n *NodeStore) allocate() (int, error) {
	if len(n.free) > 0 {
		idx := n.free[len(n.free)-1]
		n.free = n.free[:len(n.free)-1]
		return idx, nil
	}
	if n.next >= n.capacity {
		return 0, rcferrors.OutOfCapacityf("nodestore: exhausted %d internal slots", n.capacity)
	}
	idx := n.next
	n.next++
	return idx, nil
}

// AddNode allocates a new internal node carrying cut, with left/right wired
// as the caller determines (left gets whichever of newLeaf/siblingSubtree
// falls on the cut's low side), and seeds the box cache from savedBox (the
// box covering both children, pre-computed by the caller) when non-nil.
func (n *NodeStore) AddNode(cut boundingbox.Cut, left, right int, savedBox *boundingbox.BoundingBox) (int, error) {
	idx, err := n.allocate()
	if err != nil {
		return 0, err
	}
	n.cutDim[idx] = cut.Dimension
	n.cutValue[idx] = cut.Value
	n.left[idx] = left
	n.right[idx] = right
	if !n.IsLeaf(left) {
		n.parent[left] = idx
	}
	if !n.IsLeaf(right) {
		n.parent[right] = idx
	}
	n.mass[idx] = n.GetMass(left) + n.GetMass(right)
	if savedBox != nil {
		n.storeCache(idx, savedBox)
	}
	return idx, nil
}

// ReplaceChild rewires parent's child pointer from oldChild to newChild, or
// installs newChild as the tree root when parent is NullIndex.
func (n *NodeStore) ReplaceChild(parent, oldChild, newChild int) {
	if parent == NullIndex {
		n.root = newChild
		if newChild != NullIndex && !n.IsLeaf(newChild) {
			n.parent[newChild] = NullIndex
		}
		return
	}
	if n.left[parent] == oldChild {
		n.left[parent] = newChild
	} else {
		n.right[parent] = newChild
	}
	if !n.IsLeaf(newChild) {
		n.parent[newChild] = parent
	}
}

// ManageAncestorsAdd walks the given path (outermost last, i.e. leaf-to-root
// order expected reversed by the caller) incrementing mass and growing any
// cached box to include point.
func (n *NodeStore) ManageAncestorsAdd(ref func(int) ([]float64, error), path []int, point []float64) error {
	for i := len(path) - 1; i >= 0; i-- {
		idx := path[i]
		if n.IsLeaf(idx) {
			continue
		}
		n.mass[idx]++
		if n.cached(idx) {
			box := n.boxFromCache(idx)
			box.AddPoint(point)
			n.storeCache(idx, box)
		}
	}
	return nil
}

// ManageAncestorsDelete walks path decrementing mass and, when the box is
// cached, reconstructing it (a deletion can shrink the box, so it cannot be
// updated incrementally).
func (n *NodeStore) ManageAncestorsDelete(ref func(int) ([]float64, error), path []int) error {
	for i := len(path) - 1; i >= 0; i-- {
		idx := path[i]
		if n.IsLeaf(idx) {
			continue
		}
		n.mass[idx]--
		if n.cached(idx) {
			box, err := n.reconstructBox(ref, idx)
			if err != nil {
				return err
			}
			n.storeCache(idx, box)
		}
	}
	return nil
}

// DeleteInternalNode frees idx's slot, invalidating its cache and wiring.
func (n *NodeStore) DeleteInternalNode(idx int) {
	if idx < n.cacheLimit {
		n.boxMin[idx] = nil
		n.boxMax[idx] = nil
		n.rangeSum[idx] = 0
	}
	n.left[idx] = NullIndex
	n.right[idx] = NullIndex
	n.parent[idx] = NullIndex
	n.mass[idx] = 0
	n.free = append(n.free, idx)
}

// Size returns the arena's resident slot count (allocated, not freed).
func (n *NodeStore) Size() int { return n.next - len(n.free) }

// Mass exposes the internal mass array entry directly for a known internal
// index (used by callers that have already excluded leaves).
func (n *NodeStore) Mass(idx int) int { return n.mass[idx] }

// CutDim and CutValue expose an internal node's stored cut.
func (n *NodeStore) CutDim(idx int) int        { return n.cutDim[idx] }
func (n *NodeStore) CutValue(idx int) float32  { return n.cutValue[idx] }
func (n *NodeStore) Left(idx int) int          { return n.left[idx] }
func (n *NodeStore) Right(idx int) int         { return n.right[idx] }
func (n *NodeStore) Parent(idx int) int        { return n.parent[idx] }
