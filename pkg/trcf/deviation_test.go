package trcf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviationTracksMean(t *testing.T) {
	d := NewDeviation(0.1)
	for i := 0; i < 200; i++ {
		d.Update(5.0)
	}
	assert.InDelta(t, 5.0, d.Mean(), 1e-6)
	assert.InDelta(t, 0.0, d.Deviation(), 1e-6)
	assert.EqualValues(t, 200, d.Count())
}

func TestDeviationNonZeroSpread(t *testing.T) {
	d := NewDeviation(0.2)
	values := []float64{1, 5, 1, 5, 1, 5, 1, 5, 1, 5}
	for _, v := range values {
		d.Update(v)
	}
	assert.Greater(t, d.Deviation(), 0.0)
}

func TestDeviationSetCount(t *testing.T) {
	d := NewDeviation(0.1)
	d.Update(1)
	d.Update(2)
	d.SetCount(0)
	assert.EqualValues(t, 0, d.Count())
}
