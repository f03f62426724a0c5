// Package sampler implements the weighted reservoir with time decay bound to
// one tree: a bounded max-heap of (log_weight, point_ref) entries, warm-up
// acceptance while the reservoir is filling, and weight-based eviction once
// it's full.
package sampler

import (
	"container/heap"
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
	"github.com/hed1ad/rcforest/pkg/rcf/rngstream"
)

type entry struct {
	logWeight float64
	pointRef  int
}

// maxHeap pops the largest log_weight first: a larger log_weight is a
// "worse" sample, so the max is always the next eviction candidate.
type maxHeap []entry

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool   { return h[i].logWeight > h[j].logWeight }
func (h maxHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)          { *h = append(*h, x.(entry)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// AcceptState is returned by Sample for every candidate, describing what the
// sampler decided.
type AcceptState struct {
	Accepted        bool
	EvictionOccurred bool
	EvictedPointRef int
}

// Sampler is a capacity-bounded weighted reservoir with an explicit time-decay
// accumulator, so the decay rate can change over the forest's lifetime
// without needing to rescore history already in the reservoir.
type Sampler struct {
	capacity          int
	timeDecay         float64
	initialAcceptFrac float64

	entriesSeen        int
	anchorEntriesSeen  int
	accumulatedOffset  float64

	heap maxHeap
	rng  *rngstream.Stream
}

// New builds a sampler. timeDecay must be in [0,1]; initialAcceptFraction
// controls the warm-up curve and must be in (0,1].
func New(capacity int, timeDecay, initialAcceptFraction float64, seed uint64) (*Sampler, error) {
	if capacity <= 0 {
		return nil, rcferrors.InvalidArgumentf("sampler.New: capacity %d must be positive", capacity)
	}
	if timeDecay < 0 || timeDecay > 1 {
		return nil, rcferrors.InvalidArgumentf("sampler.New: timeDecay %f out of [0,1]", timeDecay)
	}
	if initialAcceptFraction <= 0 || initialAcceptFraction > 1 {
		return nil, rcferrors.InvalidArgumentf("sampler.New: initialAcceptFraction %f out of (0,1]", initialAcceptFraction)
	}
	return &Sampler{
		capacity:          capacity,
		timeDecay:         timeDecay,
		initialAcceptFrac: initialAcceptFraction,
		rng:               rngstream.New(seed),
	}, nil
}

// Size returns the current reservoir occupancy.
func (s *Sampler) Size() int { return len(s.heap) }

// Capacity returns the reservoir's maximum occupancy.
func (s *Sampler) Capacity() int { return s.capacity }

// SetTimeDecay reconfigures the decay rate. The accumulated offset is
// updated so weights already in the reservoir remain comparable to weights
// computed under the new rate.
func (s *Sampler) SetTimeDecay(rate float64) error {
	if rate < 0 || rate > 1 {
		return rcferrors.InvalidArgumentf("sampler.SetTimeDecay: rate %f out of [0,1]", rate)
	}
	s.accumulatedOffset -= float64(s.entriesSeen-s.anchorEntriesSeen) * s.timeDecay
	s.anchorEntriesSeen = s.entriesSeen
	s.timeDecay = rate
	return nil
}

func (s *Sampler) computeWeight(u float64) float64 {
	return math.Log(-math.Log(u)) - float64(s.entriesSeen-s.anchorEntriesSeen)*s.timeDecay + s.accumulatedOffset
}

// warmUpAcceptProbability implements the three-branch fill-fraction curve:
// always accept below initFrac, ramp linearly down to zero by full, and
// never accept once the reservoir is already full (callers only invoke this
// while size < capacity, so the "else 0" branch is unreachable here but kept
// for fidelity with the spec's closed-form definition).
func (s *Sampler) warmUpAcceptProbability() float64 {
	fill := float64(s.Size()) / float64(s.capacity)
	switch {
	case fill < s.initialAcceptFrac:
		return 1
	case fill < 1:
		return 1 - (fill-s.initialAcceptFrac)/(1-s.initialAcceptFrac)
	default:
		return 0
	}
}

// Sample offers pointRef to the reservoir, drawing all randomness from the
// sampler's own stream, and returns the resulting AcceptState.
func (s *Sampler) Sample(pointRef int) AcceptState {
	w := s.computeWeight(s.rng.NextFloat64())

	if s.Size() < s.capacity {
		accept := s.rng.NextFloat64() < s.warmUpAcceptProbability()
		s.entriesSeen++
		if !accept {
			return AcceptState{}
		}
		heap.Push(&s.heap, entry{logWeight: w, pointRef: pointRef})
		return AcceptState{Accepted: true}
	}

	s.entriesSeen++
	if w >= s.heap[0].logWeight {
		return AcceptState{}
	}
	evicted := heap.Pop(&s.heap).(entry)
	heap.Push(&s.heap, entry{logWeight: w, pointRef: pointRef})
	return AcceptState{Accepted: true, EvictionOccurred: true, EvictedPointRef: evicted.pointRef}
}
