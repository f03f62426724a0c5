// Package boundingbox implements the axis-aligned hyper-rectangles used by
// the tree to track the extent of every subtree, and the random-cut
// primitives that decide where a new point would split an existing box.
package boundingbox

import (
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
)

// BoundingBox is an axis-aligned hyper-rectangle with a maintained range-sum,
// the sum of per-dimension extents. Keeping range_sum incrementally avoids
// recomputing it from min/max on every probability-of-cut query.
type BoundingBox struct {
	min      []float32
	max      []float32
	rangeSum float64
}

// New builds a box from two points, taking the component-wise min and max.
func New(a, b []float64) (*BoundingBox, error) {
	if len(a) != len(b) {
		return nil, rcferrors.InvalidArgumentf("boundingbox.New: length mismatch %d != %d", len(a), len(b))
	}
	n := len(a)
	box := &BoundingBox{min: make([]float32, n), max: make([]float32, n)}
	var sum float32
	for d := 0; d < n; d++ {
		lo, hi := a[d], b[d]
		if lo > hi {
			lo, hi = hi, lo
		}
		box.min[d] = float32(lo)
		box.max[d] = float32(hi)
		sum += box.max[d] - box.min[d]
	}
	box.rangeSum = float64(sum)
	return box, nil
}

// NewDegenerate builds a zero-volume box from a single point.
func NewDegenerate(p []float64) *BoundingBox {
	n := len(p)
	box := &BoundingBox{min: make([]float32, n), max: make([]float32, n)}
	for d := 0; d < n; d++ {
		box.min[d] = float32(p[d])
		box.max[d] = float32(p[d])
	}
	return box
}

// Dimensions returns the number of coordinates the box tracks.
func (b *BoundingBox) Dimensions() int { return len(b.min) }

// RangeSum returns the sum of per-dimension extents, max_d - min_d.
func (b *BoundingBox) RangeSum() float64 { return b.rangeSum }

// Min returns dimension d's lower bound.
func (b *BoundingBox) Min(d int) float32 { return b.min[d] }

// Max returns dimension d's upper bound.
func (b *BoundingBox) Max(d int) float32 { return b.max[d] }

// Copy returns an independent copy of the box.
func (b *BoundingBox) Copy() *BoundingBox {
	out := &BoundingBox{
		min:      append([]float32(nil), b.min...),
		max:      append([]float32(nil), b.max...),
		rangeSum: b.rangeSum,
	}
	return out
}

// CopyFrom overwrites the receiver's contents with other's, without
// allocating, reusing the receiver's backing arrays when sized identically.
func (b *BoundingBox) CopyFrom(other *BoundingBox) {
	copy(b.min, other.min)
	copy(b.max, other.max)
	b.rangeSum = other.rangeSum
}

// AddPoint expands min/max to contain p, returning true iff range_sum was
// unchanged — i.e. p was already inside the box.
func (b *BoundingBox) AddPoint(p []float64) bool {
	unchanged := true
	var sum float32
	for d := range b.min {
		v := float32(p[d])
		if v < b.min[d] {
			b.min[d] = v
			unchanged = false
		} else if v > b.max[d] {
			b.max[d] = v
			unchanged = false
		}
		sum += b.max[d] - b.min[d]
	}
	if float64(sum) < b.rangeSum {
		panic("boundingbox: range_sum decreased after AddPoint")
	}
	b.rangeSum = float64(sum)
	return unchanged
}

// AddBox expands the receiver to contain other, returning true iff range_sum
// was unchanged — i.e. other was already absorbed.
func (b *BoundingBox) AddBox(other *BoundingBox) bool {
	unchanged := true
	var sum float32
	for d := range b.min {
		if other.min[d] < b.min[d] {
			b.min[d] = other.min[d]
			unchanged = false
		}
		if other.max[d] > b.max[d] {
			b.max[d] = other.max[d]
			unchanged = false
		}
		sum += b.max[d] - b.min[d]
	}
	if float64(sum) < b.rangeSum {
		panic("boundingbox: range_sum decreased after AddBox")
	}
	b.rangeSum = float64(sum)
	return unchanged
}

// Contains is a strict containment test: every coordinate of p must fall
// within [min_d, max_d].
func (b *BoundingBox) Contains(p []float64) bool {
	for d := range b.min {
		v := float32(p[d])
		if v < b.min[d] || v > b.max[d] {
			return false
		}
	}
	return true
}

// separationSum computes S = sum_d max(min_d - p_d, 0) + max(p_d - max_d, 0),
// accumulated in f32 to match the box's own arithmetic before being promoted
// to f64 for the probability ratio.
func (b *BoundingBox) separationSum(p []float64) float32 {
	var s float32
	for d := range b.min {
		v := float32(p[d])
		if b.min[d]-v > 0 {
			s += b.min[d] - v
		}
		if v-b.max[d] > 0 {
			s += v - b.max[d]
		}
	}
	return s
}

// ProbabilityOfCut returns S / (range_sum + S), the probability that a
// uniform random cut of the box extended to include p would separate p from
// the box. Returns 0 when p is already contained (S = 0), and 1 when the box
// has zero range_sum but p lies outside it.
func (b *BoundingBox) ProbabilityOfCut(p []float64) float64 {
	s := float64(b.separationSum(p))
	if s == 0 {
		return 0
	}
	if b.rangeSum == 0 {
		return 1
	}
	return s / (b.rangeSum + s)
}

// ProbabilityOfCutVector returns the per-dimension, per-side split of
// ProbabilityOfCut: for each dimension d, index 2d holds the low-side
// contribution (p below min_d) and 2d+1 the high-side contribution (p above
// max_d), each normalized by (range_sum + S) the same way the scalar
// probability is. This must use an explicit loop to mutate the result in
// place; the reference implementation's use of a side-effecting map without
// consuming it is a no-op bug, not an intended shortcut.
func (b *BoundingBox) ProbabilityOfCutVector(p []float64) []float32 {
	n := len(b.min)
	out := make([]float32, 2*n)
	s := b.separationSum(p)
	if s == 0 {
		return out
	}
	denom := float32(b.rangeSum) + s
	for d := 0; d < n; d++ {
		v := float32(p[d])
		var lo, hi float32
		if b.min[d]-v > 0 {
			lo = b.min[d] - v
		}
		if v-b.max[d] > 0 {
			hi = v - b.max[d]
		}
		out[2*d] = lo / denom
		out[2*d+1] = hi / denom
	}
	return out
}

// Cut is a (dimension, value) pair chosen by a random split of a bounding
// box.
type Cut struct {
	Dimension int
	Value     float32
}

// GetCutAndSeparation chooses the random cut that would be drawn if p were
// added to the box, without mutating the box. factor must be drawn uniformly
// from [0, 1). It returns the cut, whether the cut separates p from the
// box's original contents, and whether no cut is possible because the box
// has zero extent and p coincides with it (the returned Cut is then the zero
// value). A p inside a box of positive extent still gets a cut, with inside
// false.
func (b *BoundingBox) GetCutAndSeparation(factor float64, p []float64) (cut Cut, separates bool, inside bool) {
	n := len(b.min)
	extents := make([]float32, n)
	var total float64
	for d := 0; d < n; d++ {
		v := float32(p[d])
		g := b.max[d] - b.min[d]
		if b.min[d]-v > 0 {
			g += b.min[d] - v
		}
		if v-b.max[d] > 0 {
			g += v - b.max[d]
		}
		extents[d] = g
		total += float64(g)
	}
	if total == 0 {
		return Cut{}, false, true
	}
	r := float32(factor * total)
	for d := 0; d < n; d++ {
		if extents[d] > r {
			v := float32(p[d])
			minPrime := b.min[d]
			if v < minPrime {
				minPrime = v
			}
			maxPrime := b.max[d]
			if v > maxPrime {
				maxPrime = v
			}
			value := minPrime + r
			if value <= minPrime || value >= maxPrime {
				value = minPrime
			}
			minvalue, maxvalue := b.min[d], b.max[d]
			separates = (v <= value && value < minvalue) || (maxvalue <= value && value < v)
			return Cut{Dimension: d, Value: value}, separates, false
		}
		r -= extents[d]
	}
	// Floating point edge case: fall back to the last dimension.
	d := n - 1
	return Cut{Dimension: d, Value: b.min[d]}, true, false
}

func epsilon(v float32) float32 {
	if v == 0 {
		return 1e-6
	}
	e := v * 1e-6
	if e < 0 {
		e = -e
	}
	return e
}
