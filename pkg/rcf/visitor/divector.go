package visitor

import "github.com/hed1ad/rcforest/pkg/rcf/rcferrors"

// DiVector carries a per-dimension split between high (query above the
// tree's mass on that axis) and low (query below) contributions. Summing
// every component recovers the scalar quantity the vector was derived from.
type DiVector struct {
	High []float64
	Low  []float64
}

// NewDiVector allocates a zeroed DiVector of the given dimensionality.
func NewDiVector(dimensions int) *DiVector {
	return &DiVector{High: make([]float64, dimensions), Low: make([]float64, dimensions)}
}

// Dimensions returns the vector's width.
func (d *DiVector) Dimensions() int { return len(d.High) }

// Total sums every high and low component.
func (d *DiVector) Total() float64 {
	var sum float64
	for i := range d.High {
		sum += d.High[i] + d.Low[i]
	}
	return sum
}

// ScaleMut scales every component in place.
func (d *DiVector) ScaleMut(factor float64) {
	for i := range d.High {
		d.High[i] *= factor
		d.Low[i] *= factor
	}
}

// RenormalizeMut rescales the vector so its Total equals target, a no-op
// when the current total is zero.
func (d *DiVector) RenormalizeMut(target float64) {
	total := d.Total()
	if total == 0 {
		return
	}
	d.ScaleMut(target / total)
}

// Add accumulates other into the receiver component-wise.
func (d *DiVector) Add(other *DiVector) error {
	if len(d.High) != len(other.High) {
		return rcferrors.InvalidArgumentf("divector.Add: dimension mismatch %d != %d", len(d.High), len(other.High))
	}
	for i := range d.High {
		d.High[i] += other.High[i]
		d.Low[i] += other.Low[i]
	}
	return nil
}
