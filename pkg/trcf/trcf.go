// Package trcf implements the thresholded RCF pipeline: a Preprocessor that
// shapes raw input into the vector a forest sees, the forest itself doing
// the anomaly scoring, and a BasicThresholder turning the raw score into a
// bounded anomaly grade. No expected (imputed) point is computed.
package trcf

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
	"github.com/hed1ad/rcforest/pkg/rcf/visitor"
)

// Descriptor summarizes one processed point: its raw RCF score, the
// thresholder's bounded anomaly grade, the per-dimension attribution of
// that score, and an ExpectedPoint field. Process does not fill in
// ExpectedPoint; it is always nil in the Descriptors it returns.
type Descriptor struct {
	RCFScore      float64
	AnomalyGrade  float32
	Attribution   *visitor.DiVector
	ExpectedPoint []float64
	Anomaly       bool
}

// BasicTRCF is a single thresholded RCF: one Preprocessor feeding one
// forest.Forest feeding one BasicThresholder.
type BasicTRCF struct {
	preprocessor *Preprocessor
	forest       *forest.Forest
	thresholder  *BasicThresholder
}

// NewBasicTRCF wires a Preprocessor and BasicThresholder around a
// caller-built forest. The caller owns the forest's Config (dimensions,
// shingle size, capacity, number of trees) since those choices are
// domain-specific; trcf only adds the scoring/grading ceremony around it.
func NewBasicTRCF(f *forest.Forest, method TransformMethod, transformDecay float64, startNormalization int, thresholderDiscount float64) *BasicTRCF {
	return &BasicTRCF{
		preprocessor: NewPreprocessor(f.Dimensions(), method, transformDecay, startNormalization),
		forest:       f,
		thresholder:  NewBasicThresholder(thresholderDiscount, false),
	}
}

// Process transforms one raw input, scores it and computes its attribution
// against the forest in its pre-update state, folds the transformed point
// into the forest, and returns a graded Descriptor. It does not impute.
func (b *BasicTRCF) Process(point []float64) (Descriptor, error) {
	transformed := b.preprocessor.Transform(point)

	var desc Descriptor
	if b.forest.EntriesSeen() > 0 {
		score, err := b.forest.Score(transformed)
		if err != nil {
			return Descriptor{}, err
		}
		attribution, err := b.forest.Attribution(transformed)
		if err != nil {
			return Descriptor{}, err
		}
		desc.RCFScore = score
		desc.Attribution = attribution
		desc.AnomalyGrade = b.thresholder.AnomalyGrade(float32(score), b.thresholder.InPotentialAnomaly())
		desc.Anomaly = desc.AnomalyGrade > 0
		b.thresholder.Update(float32(score))
	}

	if _, err := b.forest.Update(transformed, 0); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// ProcessSequentially runs Process over a batch of points in order,
// returning one Descriptor per point.
func (b *BasicTRCF) ProcessSequentially(points [][]float64) ([]Descriptor, error) {
	out := make([]Descriptor, len(points))
	for i, p := range points {
		d, err := b.Process(p)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// Extrapolate forwards to the underlying forest's Extrapolate.
func (b *BasicTRCF) Extrapolate(lookAhead int) ([]float64, error) {
	return b.forest.Extrapolate(lookAhead)
}

// Threshold returns the thresholder's current long-term anomaly threshold.
func (b *BasicTRCF) Threshold() float32 { return b.thresholder.Threshold() }

// Arm is one named model inside a MultiTRCF bandit.
type Arm struct {
	ID   uint64
	TRCF *BasicTRCF
}

// MultiTRCF fans a single input out across several independently-configured
// BasicTRCF arms concurrently (a bandit over alternative shingle sizes,
// capacities or transforms), returning every arm's Descriptor so the caller
// can pick a winner by whatever rule fits — the Rust bandit's random
// explore/exploit choice is left to the caller rather than baked in here.
type MultiTRCF struct {
	arms []Arm
}

// NewMultiTRCF builds a bandit over the given arms.
func NewMultiTRCF(arms ...Arm) *MultiTRCF {
	return &MultiTRCF{arms: arms}
}

// Arms returns the bandit's arms in construction order.
func (m *MultiTRCF) Arms() []Arm { return m.arms }

// Process runs the same point through every arm concurrently and returns
// each arm's Descriptor, index-aligned with Arms().
func (m *MultiTRCF) Process(point []float64) ([]Descriptor, error) {
	if len(m.arms) == 0 {
		return nil, rcferrors.InvalidArgumentf("multitrcf: no arms configured")
	}
	out := make([]Descriptor, len(m.arms))
	g, _ := errgroup.WithContext(context.Background())
	for i, arm := range m.arms {
		i, arm := i, arm
		g.Go(func() error {
			d, err := arm.TRCF.Process(point)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Best returns the index of the arm with the lowest current threshold
// (the most sensitive, and by the bandit's convention the currently
// favored, model), used as the default selection rule between Process
// calls.
func (m *MultiTRCF) Best() int {
	best := 0
	for i := 1; i < len(m.arms); i++ {
		if m.arms[i].TRCF.Threshold() < m.arms[best].TRCF.Threshold() {
			best = i
		}
	}
	return best
}
