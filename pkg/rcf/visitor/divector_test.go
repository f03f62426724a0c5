package visitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiVectorTotal(t *testing.T) {
	d := NewDiVector(3)
	d.High[0], d.Low[0] = 1, 2
	d.High[1], d.Low[1] = 0.5, 0.5
	assert.Equal(t, 4.0, d.Total())
}

func TestDiVectorScaleMut(t *testing.T) {
	d := NewDiVector(2)
	d.High[0], d.Low[1] = 2, 4
	d.ScaleMut(0.5)
	assert.Equal(t, 1.0, d.High[0])
	assert.Equal(t, 2.0, d.Low[1])
}

func TestDiVectorRenormalizeMut(t *testing.T) {
	d := NewDiVector(2)
	d.High[0], d.Low[1] = 1, 3
	d.RenormalizeMut(8)
	assert.InDelta(t, 8.0, d.Total(), 1e-9)

	zero := NewDiVector(2)
	zero.RenormalizeMut(10)
	assert.Equal(t, 0.0, zero.Total())
}

func TestDiVectorAdd(t *testing.T) {
	a := NewDiVector(2)
	a.High[0] = 1
	b := NewDiVector(2)
	b.Low[1] = 2
	require.NoError(t, a.Add(b))
	assert.Equal(t, 1.0, a.High[0])
	assert.Equal(t, 2.0, a.Low[1])

	mismatched := NewDiVector(3)
	assert.Error(t, a.Add(mismatched))
}

func TestDiVectorDimensions(t *testing.T) {
	d := NewDiVector(5)
	assert.Equal(t, 5, d.Dimensions())
}
