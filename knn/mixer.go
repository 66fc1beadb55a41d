package knn

import (
	"fmt"
	"math"

	"github.com/hupe1980/knnlm/internal/math32"
)

// Mixer interpolates retrieval and model log-probabilities with a fixed λ.
type Mixer struct {
	lambda       float64
	logLambda    float64
	logOneMinusL float64
}

// NewMixer creates a Mixer. λ must lie strictly between 0 and 1.
func NewMixer(lambda float64) (*Mixer, error) {
	if !(lambda > 0 && lambda < 1) {
		return nil, &ErrInvalidMixingWeight{Lambda: lambda}
	}
	return &Mixer{
		lambda:       lambda,
		logLambda:    math.Log(lambda),
		logOneMinusL: math.Log1p(-lambda),
	}, nil
}

// Lambda returns the retrieval weight.
func (m *Mixer) Lambda() float64 { return m.lambda }

// Interpolate returns log((1-λ)·exp(vocabP) + λ·exp(knnP)).
func (m *Mixer) Interpolate(knnP, vocabP float32) float32 {
	return float32(math32.LogSumExp2(float64(vocabP)+m.logOneMinusL, float64(knnP)+m.logLambda))
}

// InterpolateSlice applies Interpolate element-wise. dst may alias either input.
func (m *Mixer) InterpolateSlice(dst, knnP, vocabP []float32) error {
	if len(knnP) != len(vocabP) || len(dst) < len(knnP) {
		return fmt.Errorf("%w: knn %d, vocab %d, dst %d", ErrLengthMismatch, len(knnP), len(vocabP), len(dst))
	}
	for i := range knnP {
		dst[i] = m.Interpolate(knnP[i], vocabP[i])
	}
	return nil
}
