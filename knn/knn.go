package knn

import (
	"fmt"
	"math"

	"github.com/hupe1980/knnlm/internal/math32"
)

// MaskBias is added to the log-probability of a neighbor whose value does not
// match the target. It is finite so that a row without any match aggregates
// to a very small number instead of -Inf.
const MaskBias float32 = -1e4

// ValidateTemperature checks that temp is a positive, finite number.
func ValidateTemperature(temp float32) error {
	if !(temp > 0) || math.IsInf(float64(temp), 1) {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, temp)
	}
	return nil
}

// LogProbs converts rows of k distances into log-probabilities:
// log_softmax(-dists / temp) per row. dst and dists may alias.
func LogProbs(dst, dists []float32, k int, temp float32) error {
	if err := ValidateTemperature(temp); err != nil {
		return err
	}
	if err := checkRows(len(dists), k); err != nil {
		return err
	}
	if len(dst) < len(dists) {
		return fmt.Errorf("%w: dst holds %d values, need %d", ErrLengthMismatch, len(dst), len(dists))
	}

	for lo := 0; lo < len(dists); lo += k {
		row := dst[lo : lo+k]
		for j, d := range dists[lo : lo+k] {
			row[j] = -d / temp
		}
		math32.LogSoftmax(row, row)
	}
	return nil
}

// TargetMask writes 0 where values[i*k+j] == targets[i] and MaskBias elsewhere.
func TargetMask(dst []float32, values []int64, k int, targets []int64) error {
	if err := checkRows(len(values), k); err != nil {
		return err
	}
	if len(values)/k != len(targets) || len(dst) < len(values) {
		return fmt.Errorf("%w: %d rows of values, %d targets", ErrLengthMismatch, len(values)/k, len(targets))
	}
	for i, y := range targets {
		lo := i * k
		for j, v := range values[lo : lo+k] {
			if v == y {
				dst[lo+j] = 0
			} else {
				dst[lo+j] = MaskBias
			}
		}
	}
	return nil
}

// Aggregate writes logsumexp(logp + bias) of every row of k into dst.
// A row without any match yields roughly max(logp) + MaskBias.
func Aggregate(dst, logp, bias []float32, k int) error {
	if err := checkRows(len(logp), k); err != nil {
		return err
	}
	rows := len(logp) / k
	if len(bias) != len(logp) || len(dst) < rows {
		return fmt.Errorf("%w: logp %d, bias %d, dst %d", ErrLengthMismatch, len(logp), len(bias), len(dst))
	}

	buf := make([]float32, k)
	for i := 0; i < rows; i++ {
		lo := i * k
		math32.AddTo(buf, logp[lo:lo+k], bias[lo:lo+k])
		dst[i] = math32.LogSumExp(buf)
	}
	return nil
}

// Score runs LogProbs, TargetMask and Aggregate over rows of neighbors.
// dists and values are read-only; dst receives one value per row.
func Score(dst, dists []float32, values []int64, k int, targets []int64, temp float32) error {
	logp := make([]float32, len(dists))
	if err := LogProbs(logp, dists, k, temp); err != nil {
		return err
	}
	bias := make([]float32, len(values))
	if err := TargetMask(bias, values, k, targets); err != nil {
		return err
	}
	return Aggregate(dst, logp, bias, k)
}

func checkRows(n, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k=%d", ErrLengthMismatch, k)
	}
	if n%k != 0 {
		return fmt.Errorf("%w: %d values are not rows of %d", ErrLengthMismatch, n, k)
	}
	return nil
}
