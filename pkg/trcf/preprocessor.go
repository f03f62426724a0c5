package trcf

// TransformMethod selects how Preprocessor maps a raw input vector to the
// vector actually handed to the forest.
type TransformMethod int

const (
	// TransformNone passes the raw input through unchanged.
	TransformNone TransformMethod = iota
	// TransformDifference feeds the forest the first difference against the
	// previous input, so the model sees rate-of-change rather than level.
	TransformDifference
	// TransformNormalize feeds the forest a per-dimension z-score using a
	// discounted running mean/deviation, so dimensions on very different
	// scales contribute comparably to cuts.
	TransformNormalize
)

// Preprocessor adapts a raw input stream into the shape the forest expects:
// optional differencing or normalization per dimension, deferred until
// enough history has accumulated to make the transform meaningful.
type Preprocessor struct {
	dimensions        int
	method            TransformMethod
	startNormalization int
	valuesSeen        int
	previous          []float64
	deviations        []*Deviation
	decay             float64
}

// NewPreprocessor builds a Preprocessor for vectors of the given dimension.
// startNormalization is the number of observations to accumulate before
// TransformNormalize begins dividing by its discovered scale (before that
// point it passes values through as-is, matching the Rust preprocessor's
// is_ready gate).
func NewPreprocessor(dimensions int, method TransformMethod, decay float64, startNormalization int) *Preprocessor {
	p := &Preprocessor{
		dimensions:         dimensions,
		method:             method,
		startNormalization: startNormalization,
		decay:              decay,
	}
	if method == TransformNormalize {
		p.deviations = make([]*Deviation, dimensions)
		for i := range p.deviations {
			p.deviations[i] = NewDeviation(decay)
		}
	}
	return p
}

// ValuesSeen returns how many inputs have been transformed so far.
func (p *Preprocessor) ValuesSeen() int { return p.valuesSeen }

// IsReady reports whether enough history has accumulated for the configured
// transform to be meaningful (always true for TransformNone).
func (p *Preprocessor) IsReady() bool {
	switch p.method {
	case TransformDifference:
		return p.valuesSeen >= 1
	case TransformNormalize:
		return p.valuesSeen >= p.startNormalization
	default:
		return true
	}
}

// Transform maps one raw input to the vector the forest should see, and
// folds the raw input into the preprocessor's running state.
func (p *Preprocessor) Transform(input []float64) []float64 {
	out := make([]float64, len(input))

	switch p.method {
	case TransformDifference:
		if p.previous == nil {
			copy(out, input)
		} else {
			for i := range input {
				out[i] = input[i] - p.previous[i]
			}
		}
	case TransformNormalize:
		for i, v := range input {
			p.deviations[i].Update(v)
			if p.valuesSeen < p.startNormalization {
				out[i] = v
				continue
			}
			sd := p.deviations[i].Deviation()
			if sd < 1e-10 {
				out[i] = 0
				continue
			}
			out[i] = (v - p.deviations[i].Mean()) / sd
		}
	default:
		copy(out, input)
	}

	if p.previous == nil {
		p.previous = make([]float64, len(input))
	}
	copy(p.previous, input)
	p.valuesSeen++
	return out
}
