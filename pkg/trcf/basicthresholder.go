package trcf

// Default constants mirror the Rust thresholder's tuned defaults.
const (
	defaultElasticity           = 0.01
	defaultHorizon              = 0.5
	defaultMinimumScores        = 10
	defaultAbsoluteThreshold    = 0.8
	defaultUpperThreshold       = 2.0
	defaultLowerThreshold       = 1.0
	defaultInitialThreshold     = 1.5
	defaultZFactor              = 2.0
	defaultUpperZFactor         = 5.0
	defaultThresholdStep        = 0.1
)

// BasicThresholder turns a raw, unbounded RCF anomaly score into a bounded
// [0, 1] anomaly grade using two discounted deviation trackers: a primary
// one over the raw score and a secondary one over the score's first
// difference, blended by Horizon. It is the last stage of BasicTRCF, the
// layer that answers "how anomalous" rather than merely "what score."
type BasicThresholder struct {
	elasticity         float32
	count              int
	horizon            float32
	lastScore          float32
	primaryDeviation   *Deviation
	secondaryDeviation *Deviation
	thresholdDeviation *Deviation
	autoThreshold      bool
	absoluteThreshold  float32
	upperThreshold     float32
	lowerThreshold     float32
	initialThreshold   float32
	zFactor            float32
	upperZFactor       float32
	inPotentialAnomaly bool
	minimumScores      int
}

// NewBasicThresholder builds a thresholder whose deviation trackers use the
// given discount rate; adjust enables automatic lower-threshold creep.
func NewBasicThresholder(discount float64, adjust bool) *BasicThresholder {
	return &BasicThresholder{
		elasticity:         defaultElasticity,
		horizon:            defaultHorizon,
		primaryDeviation:   NewDeviation(discount),
		secondaryDeviation: NewDeviation(discount),
		thresholdDeviation: NewDeviation(discount / 2),
		autoThreshold:      adjust,
		absoluteThreshold:  defaultAbsoluteThreshold,
		upperThreshold:     defaultUpperThreshold,
		lowerThreshold:     defaultLowerThreshold,
		initialThreshold:   defaultInitialThreshold,
		zFactor:            defaultZFactor,
		upperZFactor:       defaultUpperZFactor,
		minimumScores:      defaultMinimumScores,
	}
}

func (b *BasicThresholder) isDeviationReady() bool {
	if b.count < b.minimumScores {
		return false
	}
	switch b.horizon {
	case 0:
		return b.secondaryDeviation.Count() >= int64(b.minimumScores)
	case 1:
		return b.primaryDeviation.Count() >= int64(b.minimumScores)
	default:
		return b.secondaryDeviation.Count() >= int64(b.minimumScores) && b.primaryDeviation.Count() >= int64(b.minimumScores)
	}
}

func (b *BasicThresholder) intermediateFraction() float32 {
	if b.count < b.minimumScores {
		return 0
	}
	if b.count > 2*b.minimumScores {
		return 1
	}
	return float32(b.count-b.minimumScores) / float32(b.minimumScores)
}

func (b *BasicThresholder) longtermDeviation() float32 {
	return b.horizon*float32(b.primaryDeviation.Deviation()) + (1-b.horizon)*float32(b.secondaryDeviation.Deviation())
}

func (b *BasicThresholder) longtermThreshold(factor float32) float32 {
	t := float32(b.primaryDeviation.Mean()) + factor*b.longtermDeviation()
	if t > b.lowerThreshold {
		return t
	}
	return b.lowerThreshold
}

func (b *BasicThresholder) shortTermThreshold(factor, intermediateFraction float32) float32 {
	if !b.isDeviationReady() {
		if b.initialThreshold > b.lowerThreshold {
			return b.initialThreshold
		}
		return b.lowerThreshold
	}
	t := intermediateFraction*b.longtermThreshold(factor) + (1-intermediateFraction)*b.initialThreshold
	if t > b.lowerThreshold {
		return t
	}
	return b.lowerThreshold
}

// Threshold returns the current long-term anomaly threshold at the
// default z-factor.
func (b *BasicThresholder) Threshold() float32 {
	return b.longtermThreshold(b.zFactor)
}

// AnomalyGrade returns a [0, 1] grade for score: 0 below threshold, rising
// to 1 as score approaches the upper factor's threshold. previous marks
// whether the prior point was itself inside a potential-anomaly run, which
// tightens the effective threshold by Elasticity to avoid flapping.
func (b *BasicThresholder) AnomalyGrade(score float32, previous bool) float32 {
	return b.anomalyGradeWithFactor(score, previous, b.zFactor)
}

func (b *BasicThresholder) anomalyGradeWithFactor(score float32, previous bool, factor float32) float32 {
	elasticAddition := float32(0)
	if previous {
		elasticAddition = b.elasticity
	}
	intermediateFraction := b.intermediateFraction()
	if intermediateFraction == 1 {
		if score < b.longtermThreshold(factor)-elasticAddition {
			return 0
		}
		tFactor := b.upperZFactor
		longtermDeviation := b.longtermDeviation()
		if longtermDeviation > 0 {
			t := (score - float32(b.primaryDeviation.Mean())) / longtermDeviation
			if t < tFactor {
				tFactor = t
			}
		}
		return (tFactor - b.zFactor) / (b.upperZFactor - b.zFactor)
	}
	t := b.shortTermThreshold(factor, intermediateFraction)
	if score < t-elasticAddition {
		return 0
	}
	upper := 2 * t
	if b.upperThreshold > upper {
		upper = b.upperThreshold
	}
	quasiScore := score
	if quasiScore > upper {
		quasiScore = upper
	}
	return (quasiScore - t) / (upper - t)
}

func (b *BasicThresholder) updateThreshold(score float32) {
	gap := float32(0)
	if score > b.lowerThreshold {
		gap = 1
	}
	b.thresholdDeviation.Update(float64(gap))
	if b.autoThreshold && b.thresholdDeviation.Count() > int64(b.minimumScores) {
		if b.thresholdDeviation.Mean() > b.thresholdDeviation.Discount() {
			b.setLowerThreshold(b.lowerThreshold+defaultThresholdStep, b.autoThreshold)
			b.thresholdDeviation.SetCount(0)
		} else if b.thresholdDeviation.Mean() < b.thresholdDeviation.Discount()/4 {
			t := b.lowerThreshold - defaultThresholdStep
			if t > b.absoluteThreshold {
				b.setLowerThreshold(t, b.autoThreshold)
				b.thresholdDeviation.SetCount(0)
			}
		}
	}
}

func (b *BasicThresholder) setLowerThreshold(lower float32, adjust bool) {
	if lower < b.absoluteThreshold {
		lower = b.absoluteThreshold
	}
	b.lowerThreshold = lower
	b.autoThreshold = adjust
	if b.initialThreshold < lower {
		b.initialThreshold = lower
	}
	if b.upperThreshold < 2*lower {
		b.upperThreshold = 2 * lower
	}
}

// Update folds one new primary score (and its first difference against the
// previous score, as the secondary series) into both deviation trackers.
func (b *BasicThresholder) Update(score float32) {
	secondary := score - b.lastScore
	b.lastScore = score
	b.primaryDeviation.Update(float64(score))
	b.secondaryDeviation.Update(float64(secondary))
	b.updateThreshold(score)
	b.count++
}

// InPotentialAnomaly reports whether the most recently graded point fell
// inside a potential-anomaly run.
func (b *BasicThresholder) InPotentialAnomaly() bool { return b.inPotentialAnomaly }

// LastScore returns the most recently Update-d primary score.
func (b *BasicThresholder) LastScore() float32 { return b.lastScore }
