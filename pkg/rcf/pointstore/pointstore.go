// Package pointstore implements the shingle-aware, reference-counted point
// arena shared by every tree in a forest. A single logical point may be
// referenced by many trees; the store only frees storage once every tree has
// released its reference. A logical PointRef is stable across compaction —
// only the physical storage offset backing it moves.
package pointstore

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
)

// NoneRef is returned by Add while the sliding shingle window has not yet
// filled, and is never a valid PointRef.
const NoneRef = -1

const inlineCountCap = 255

// overflowLRUSize bounds the rarely-used overflow reference-count map so a
// pathological stream of saturating duplicates cannot grow it unboundedly.
const overflowLRUSize = 4096

type physicalSlot struct {
	data []float32
	ref  int // logical PointRef owning this physical slot, for Compact's fixup
}

type refEntry struct {
	loc   int
	count uint8
	live  bool
}

// PointStore is the shared, shingle-aware point arena.
type PointStore struct {
	dimensions      int
	shingleSize     int
	baseDimension   int
	internalShingle bool
	rotation        bool

	refs      []refEntry
	freeRefs  []int
	physical  []physicalSlot
	freeLocs  []int

	window    []float64 // sliding window of the most recent base-dim inputs, internal shingling only
	windowLen int        // number of base blocks currently in window
	rotateAt  int        // rotation offset into window, internal rotation only

	overflow *lru.Cache[int, int]
}

// Option configures a PointStore at construction.
type Option func(*PointStore)

// WithInternalShingling enables the sliding-window shingle accumulation; base
// points of baseDimension are fed to Add and assembled into dimensions-sized
// shingles.
func WithInternalShingling(baseDimension int) Option {
	return func(p *PointStore) {
		p.internalShingle = true
		p.baseDimension = baseDimension
	}
}

// WithInternalRotation enables the ring-buffer rotation mode, where the
// window is never shifted in place; valid only with internal shingling.
func WithInternalRotation() Option {
	return func(p *PointStore) { p.rotation = true }
}

// New builds a PointStore for the given full point dimensionality, shingle
// size, and capacity (max distinct logical points resident at once).
func New(dimensions, shingleSize, capacity int, opts ...Option) (*PointStore, error) {
	if dimensions <= 0 || shingleSize <= 0 || capacity <= 0 {
		return nil, rcferrors.InvalidArgumentf("pointstore.New: dimensions=%d shingleSize=%d capacity=%d must be positive", dimensions, shingleSize, capacity)
	}
	if dimensions%shingleSize != 0 {
		return nil, rcferrors.InvalidArgumentf("pointstore.New: shingleSize %d must divide dimensions %d", shingleSize, dimensions)
	}
	p := &PointStore{
		dimensions:    dimensions,
		shingleSize:   shingleSize,
		baseDimension: dimensions / shingleSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rotation && !p.internalShingle {
		return nil, rcferrors.InvalidArgumentf("pointstore.New: internal rotation requires internal shingling")
	}
	if p.internalShingle {
		p.window = make([]float64, dimensions)
	}
	p.refs = make([]refEntry, 0, capacity)
	p.physical = make([]physicalSlot, 0, capacity)
	cache, err := lru.New[int, int](overflowLRUSize)
	if err != nil {
		panic(err)
	}
	p.overflow = cache
	return p, nil
}

// Dimensions returns the full shingled point width.
func (p *PointStore) Dimensions() int { return p.dimensions }

// BaseDimension returns the width of a single shingle block.
func (p *PointStore) BaseDimension() int { return p.baseDimension }

// Add ingests a point and returns its PointRef. In non-shingled mode point
// must have length Dimensions(); in internal-shingling mode it must have
// length BaseDimension() and NoneRef is returned until the window has filled.
func (p *PointStore) Add(point []float64) (int, error) {
	var full []float64
	if p.internalShingle {
		if len(point) != p.baseDimension {
			return NoneRef, rcferrors.InvalidArgumentf("pointstore.Add: expected base dimension %d, got %d", p.baseDimension, len(point))
		}
		full = p.shingle(point)
		if full == nil {
			return NoneRef, nil
		}
	} else {
		if len(point) != p.dimensions {
			return NoneRef, rcferrors.InvalidArgumentf("pointstore.Add: expected dimension %d, got %d", p.dimensions, len(point))
		}
		full = point
	}
	for _, v := range full {
		if isNonFinite(v) {
			return NoneRef, rcferrors.InvalidArgumentf("pointstore.Add: non-finite coordinate")
		}
	}
	return p.store(full), nil
}

// shingle pushes a base block into the sliding window, returning the dense
// (possibly rotated) full point once the window has filled, or nil while
// still warming up.
func (p *PointStore) shingle(block []float64) []float64 {
	if p.rotation {
		offset := p.rotateAt * p.baseDimension
		copy(p.window[offset:offset+p.baseDimension], block)
		p.rotateAt = (p.rotateAt + 1) % p.shingleSize
		if p.windowLen < p.shingleSize {
			p.windowLen++
			if p.windowLen < p.shingleSize {
				return nil
			}
		}
		// Return the logically-ordered copy: oldest block first.
		out := make([]float64, p.dimensions)
		for i := 0; i < p.shingleSize; i++ {
			src := ((p.rotateAt + i) % p.shingleSize) * p.baseDimension
			copy(out[i*p.baseDimension:(i+1)*p.baseDimension], p.window[src:src+p.baseDimension])
		}
		return out
	}
	copy(p.window, p.window[p.baseDimension:])
	copy(p.window[p.dimensions-p.baseDimension:], block)
	if p.windowLen < p.shingleSize {
		p.windowLen++
		if p.windowLen < p.shingleSize {
			return nil
		}
	}
	return append([]float64(nil), p.window...)
}

// store installs full as a new logical point and returns its ref with an
// initial count of 1: a placeholder reference held by the caller (the
// forest distributing the point to its trees), released with a single Dec
// once every tree has taken (via Inc) whatever reference it actually wants
// to keep. A point no tree accepts is freed by that release, never leaked.
func (p *PointStore) store(full []float64) int {
	data := make([]float32, len(full))
	for i, v := range full {
		data[i] = float32(v)
	}

	var loc int
	if n := len(p.freeLocs); n > 0 {
		loc = p.freeLocs[n-1]
		p.freeLocs = p.freeLocs[:n-1]
	} else {
		p.physical = append(p.physical, physicalSlot{})
		loc = len(p.physical) - 1
	}

	var ref int
	if n := len(p.freeRefs); n > 0 {
		ref = p.freeRefs[n-1]
		p.freeRefs = p.freeRefs[:n-1]
		p.refs[ref] = refEntry{loc: loc, count: 1, live: true}
	} else {
		p.refs = append(p.refs, refEntry{loc: loc, count: 1, live: true})
		ref = len(p.refs) - 1
	}

	p.physical[loc] = physicalSlot{data: data, ref: ref}
	return ref
}

func (p *PointStore) checkLive(ref int) error {
	if ref < 0 || ref >= len(p.refs) || !p.refs[ref].live {
		return rcferrors.InvalidArgumentf("pointstore: ref %d is not live", ref)
	}
	return nil
}

// Inc increments ref's reference count, overflowing into a bounded LRU map
// once the inline byte counter saturates.
func (p *PointStore) Inc(ref int) error {
	if err := p.checkLive(ref); err != nil {
		return err
	}
	e := &p.refs[ref]
	if e.count < inlineCountCap {
		e.count++
		return nil
	}
	n, _ := p.overflow.Get(ref)
	p.overflow.Add(ref, n+1)
	return nil
}

// Dec decrements ref's reference count. Once it reaches zero the slot is
// freed and returned to the free list.
func (p *PointStore) Dec(ref int) error {
	if err := p.checkLive(ref); err != nil {
		return err
	}
	e := &p.refs[ref]
	if n, ok := p.overflow.Get(ref); ok && n > 0 {
		p.overflow.Add(ref, n-1)
		return nil
	}
	if e.count == 0 {
		return rcferrors.InvalidArgumentf("pointstore.Dec: ref %d already at zero", ref)
	}
	e.count--
	if e.count == 0 {
		p.physical[e.loc] = physicalSlot{}
		p.freeLocs = append(p.freeLocs, e.loc)
		p.overflow.Remove(ref)
		e.live = false
		p.freeRefs = append(p.freeRefs, ref)
	}
	return nil
}

// RefCount returns the total live reference count for ref (inline + overflow).
func (p *PointStore) RefCount(ref int) (int, error) {
	if err := p.checkLive(ref); err != nil {
		return 0, err
	}
	total := int(p.refs[ref].count)
	if n, ok := p.overflow.Get(ref); ok {
		total += n
	}
	return total, nil
}

// GetCopy returns a dense float64 copy of the logical point referenced by
// ref.
func (p *PointStore) GetCopy(ref int) ([]float64, error) {
	if err := p.checkLive(ref); err != nil {
		return nil, err
	}
	data := p.physical[p.refs[ref].loc].data
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out, nil
}

// IsEqual reports whether point is semantically equal to the logical point
// referenced by ref.
func (p *PointStore) IsEqual(point []float64, ref int) (bool, error) {
	if err := p.checkLive(ref); err != nil {
		return false, err
	}
	data := p.physical[p.refs[ref].loc].data
	if len(point) != len(data) {
		return false, nil
	}
	for i, v := range point {
		if float32(v) != data[i] {
			return false, nil
		}
	}
	return true, nil
}

// GetMissingIndices translates base-coordinate positions (indices into a
// single shingle block) into full-shingle indices, honoring the current
// rotation offset when internal rotation is enabled.
func (p *PointStore) GetMissingIndices(positions []int) []int {
	out := make([]int, 0, len(positions)*p.shingleSize)
	blockOffset := 0
	if p.rotation {
		blockOffset = p.rotateAt
	}
	for block := 0; block < p.shingleSize; block++ {
		b := block
		if p.rotation {
			b = (blockOffset + block) % p.shingleSize
		}
		for _, pos := range positions {
			out = append(out, b*p.baseDimension+pos)
		}
	}
	return out
}

// Compact rearranges the physical backing array so live points are
// contiguous. Every logical PointRef keeps its identity; only the physical
// offset it points to changes.
func (p *PointStore) Compact() {
	write := 0
	for read := 0; read < len(p.physical); read++ {
		s := p.physical[read]
		if s.data == nil {
			continue
		}
		p.physical[write] = s
		p.refs[s.ref].loc = write
		write++
	}
	p.physical = p.physical[:write]
	p.freeLocs = p.freeLocs[:0]
}

// Size returns the number of live logical points.
func (p *PointStore) Size() int {
	n := 0
	for _, e := range p.refs {
		if e.live {
			n++
		}
	}
	return n
}

func isNonFinite(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}
