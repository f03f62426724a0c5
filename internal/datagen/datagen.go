// Package datagen generates synthetic multivariate streams for rcfdemo and
// for package tests: stationary Gaussian clusters, a seasonal sine wave,
// and both laced with occasional injected anomalies. Unlike the forest's
// own sampling, which must be bit-reproducible from a ChaCha20 stream, this
// is throwaway demo/test fixture data, so it uses math/rand directly like
// the teacher's own example generators did.
package datagen

import (
	"math"
	"math/rand"
)

// Point is one generated observation paired with whether it was deliberately
// injected as an anomaly, so tests and the demo CLI can check recall.
type Point struct {
	Values    []float64
	IsAnomaly bool
}

// GaussianClusters generates n points of the given dimension drawn from a
// stationary Gaussian around the origin with the given standard deviation,
// with anomalyRate of them replaced by points drawn several standard
// deviations further out.
func GaussianClusters(rng *rand.Rand, n, dimensions int, stdDev, anomalyRate float64) []Point {
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		anomaly := rng.Float64() < anomalyRate
		scale := stdDev
		if anomaly {
			scale *= 8
		}
		values := make([]float64, dimensions)
		for d := range values {
			values[d] = rng.NormFloat64() * scale
		}
		out[i] = Point{Values: values, IsAnomaly: anomaly}
	}
	return out
}

// SeasonalSeries generates a single-dimension sinusoid with additive noise
// over n steps, period steps long, with anomalyRate of points perturbed by
// a large one-off spike — the shape streaming forecasting demos (Extrapolate,
// trcf) exercise most naturally.
func SeasonalSeries(rng *rand.Rand, n int, period float64, noise, anomalyRate float64) []Point {
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		t := float64(i)
		value := math.Sin(t*2*math.Pi/period) + rng.NormFloat64()*noise
		anomaly := rng.Float64() < anomalyRate
		if anomaly {
			value += 5 * (1 + rng.Float64())
		}
		out[i] = Point{Values: []float64{value}, IsAnomaly: anomaly}
	}
	return out
}

// NetworkTraffic generates a 5-feature stream shaped like
// [packet_size, inter_arrival_time, protocol, src_port, dst_port], normal
// traffic mostly small HTTPS packets at a steady cadence, with anomalyRate
// of rows replaced by large bursty UDP packets to low privileged ports.
func NetworkTraffic(rng *rand.Rand, n int, anomalyRate float64) []Point {
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		if rng.Float64() < anomalyRate {
			out[i] = Point{
				Values: []float64{
					1400 + rng.Float64()*100,
					0.0001,
					17,
					float64(rng.Intn(1024)),
					float64(rng.Intn(1024)),
				},
				IsAnomaly: true,
			}
			continue
		}
		out[i] = Point{
			Values: []float64{
				64 + rng.Float64()*200,
				0.001 + rng.Float64()*0.1,
				6,
				float64(1024 + rng.Intn(64000)),
				443,
			},
		}
	}
	return out
}

