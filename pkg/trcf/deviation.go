package trcf

import "math"

// Deviation is an exponentially-discounted running mean and standard
// deviation, the same discounted moment tracker the Rust thresholder layer
// builds BasicThresholder's primary/secondary/threshold estimators from.
type Deviation struct {
	discount float64
	count    int64
	mean     float64
	variance float64
}

// NewDeviation builds a Deviation with the given discount rate in (0, 1];
// a larger discount forgets history faster.
func NewDeviation(discount float64) *Deviation {
	return &Deviation{discount: discount}
}

// Update folds one new observation into the running mean/variance.
func (d *Deviation) Update(value float64) {
	d.count++
	if d.count == 1 {
		d.mean = value
		d.variance = 0
		return
	}
	delta := value - d.mean
	d.mean += d.discount * delta
	d.variance = (1 - d.discount) * (d.variance + d.discount*delta*delta)
}

// Mean returns the current discounted mean.
func (d *Deviation) Mean() float64 { return d.mean }

// Deviation returns the current discounted standard deviation.
func (d *Deviation) Deviation() float64 { return math.Sqrt(d.variance) }

// Count returns the number of observations folded in so far.
func (d *Deviation) Count() int64 { return d.count }

// Discount returns the discount rate this Deviation was built with.
func (d *Deviation) Discount() float64 { return d.discount }

// SetCount resets the observation counter without touching mean/variance,
// matching BasicThresholder's threshold_deviation reset-on-adjust.
func (d *Deviation) SetCount(count int64) { d.count = count }
