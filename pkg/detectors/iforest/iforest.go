// Package iforest implements unsupervised anomaly detection via a Random
// Cut Forest: a bounded, time-decayed ensemble of randomized
// space-partitioning trees, in place of the classical isolation-forest
// split-at-uniform-value construction. Same Detector contract, same
// Option-based constructor, scores now computed by pkg/rcf/forest.
package iforest

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"sync"

	"github.com/hed1ad/rcforest/pkg/detectors"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
)

// IsolationForest is a Random Cut Forest wearing the isolation-forest
// Detector interface: Fit replays historical rows through Update, Predict
// reads Score back out, squashed into [0, 1] via 1 - e^(-score) since the
// RCF score is an unbounded non-negative quantity rather than isolation
// forest's native [0,1] path-length ratio.
type IsolationForest struct {
	mu sync.RWMutex

	numTrees      int
	capacity      int
	contamination float64
	threshold     float64
	randomSeed    uint64
	timeDecay     float64

	forest  *forest.Forest
	trained bool
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) Option {
	return func(f *IsolationForest) { f.numTrees = n }
}

// WithSampleSize sets each tree's reservoir capacity.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) { f.capacity = n }
}

// WithContamination sets the expected proportion of anomalies, used to
// calibrate the threshold after Fit.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) { f.contamination = c }
}

// WithSeed sets the root random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) { f.randomSeed = uint64(seed) }
}

// WithTimeDecay sets the reservoir's exponential recency weighting; 0
// disables decay (pure uniform reservoir sampling).
func WithTimeDecay(rate float64) Option {
	return func(f *IsolationForest) { f.timeDecay = rate }
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		numTrees:      100,
		capacity:      256,
		contamination: 0.1,
		threshold:     0.5,
		randomSeed:    42,
		timeDecay:     1.0 / 256,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fit trains the detector by replaying data through Update, one row at a
// time in call order, then calibrates the threshold from contamination.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}
	dims := len(data[0])

	rcf, err := forest.New(forest.Config{
		Dimensions:               dims,
		ShingleSize:              1,
		Capacity:                 f.capacity,
		NumberOfTrees:            f.numTrees,
		RandomSeed:               f.randomSeed,
		TimeDecay:                f.timeDecay,
		InitialAcceptFraction:    0.25,
		BoundingBoxCacheFraction: 1.0,
	})
	if err != nil {
		return err
	}
	for _, row := range data {
		if _, err := rcf.Update(row, 0); err != nil {
			return err
		}
	}
	f.forest = rcf
	f.trained = true

	if f.contamination > 0 {
		scores, err := f.predict(data)
		if err != nil {
			return err
		}
		f.threshold = percentile(scores, 100*(1-f.contamination))
	}
	return nil
}

// Predict returns anomaly scores for the given samples, normalized to
// [0, 1); it does not update the forest.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.trained {
		return nil, errors.New("model not trained")
	}
	return f.predict(data)
}

func (f *IsolationForest) predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))
	for i, sample := range data {
		s, err := f.predictOne(sample)
		if err != nil {
			return nil, err
		}
		scores[i] = s
	}
	return scores, nil
}

// PredictOne returns the normalized anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.trained {
		return 0, errors.New("model not trained")
	}
	return f.predictOne(sample)
}

func (f *IsolationForest) predictOne(sample []float64) (float64, error) {
	raw, err := f.forest.Score(sample)
	if err != nil {
		return 0, err
	}
	return 1 - math.Exp(-raw), nil
}

// PredictStream scores each incoming sample against the current forest and
// then folds it into the reservoir, so the model keeps adapting to the
// stream rather than staying frozen at its Fit-time state. output is closed
// when PredictStream returns.
func (f *IsolationForest) PredictStream(ctx context.Context, input <-chan []float64, output chan<- detectors.Score) error {
	defer close(output)
	f.mu.RLock()
	trained := f.trained
	f.mu.RUnlock()
	if !trained {
		return errors.New("model not trained")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}
			f.mu.Lock()
			score, err := f.predictOne(sample)
			if err == nil {
				_, err = f.forest.Update(sample, 0)
			}
			threshold := f.threshold
			f.mu.Unlock()
			if err != nil {
				continue
			}
			select {
			case output <- detectors.Score{
				Value:     score,
				IsAnomaly: score >= threshold,
				Features:  sample,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Save serializes the detector's configuration. Per this module's scope,
// the forest's learned state (sampled points, tree structure) is not
// persisted — only Fit's parameters are, so Load restores a detector ready
// to be retrained rather than a byte-identical resumed forest.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.trained {
		return nil, errors.New("model not trained")
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	cfg := savedConfig{
		NumTrees:      f.numTrees,
		Capacity:      f.capacity,
		Contamination: f.contamination,
		Threshold:     f.threshold,
		RandomSeed:    f.randomSeed,
		TimeDecay:     f.timeDecay,
	}
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load restores a detector's configuration from Save's output. The caller
// must call Fit again to populate the forest.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cfg savedConfig
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return err
	}
	f.numTrees = cfg.NumTrees
	f.capacity = cfg.Capacity
	f.contamination = cfg.Contamination
	f.threshold = cfg.Threshold
	f.randomSeed = cfg.RandomSeed
	f.timeDecay = cfg.TimeDecay
	f.trained = false
	f.forest = nil
	return nil
}

type savedConfig struct {
	NumTrees      int
	Capacity      int
	Contamination float64
	Threshold     float64
	RandomSeed    uint64
	TimeDecay     float64
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold updates the anomaly threshold.
func (f *IsolationForest) SetThreshold(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = t
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
