package trcf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicThresholderGradesLowScoresZero(t *testing.T) {
	b := NewBasicThresholder(0.02, false)
	for i := 0; i < 50; i++ {
		b.Update(1.0)
	}
	assert.Equal(t, float32(0), b.AnomalyGrade(0.5, false), "a score below the lower threshold always grades 0")
}

func TestBasicThresholderGradesHighScoresPositive(t *testing.T) {
	b := NewBasicThresholder(0.02, false)
	for i := 0; i < 50; i++ {
		b.Update(1.0)
	}
	grade := b.AnomalyGrade(10.0, false)
	assert.Greater(t, grade, float32(0))
}

func TestBasicThresholderThresholdNeverBelowLower(t *testing.T) {
	b := NewBasicThresholder(0.05, false)
	assert.GreaterOrEqual(t, b.Threshold(), float32(defaultLowerThreshold))
}

func TestBasicThresholderLastScore(t *testing.T) {
	b := NewBasicThresholder(0.05, false)
	b.Update(3.5)
	assert.Equal(t, float32(3.5), b.LastScore())
}
