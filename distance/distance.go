package distance

import (
	"fmt"
	"strings"

	"github.com/hupe1980/knnlm/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// NegativeDot returns -Dot(a, b), the inner product as an ascending distance.
func NegativeDot(a, b []float32) float32 {
	return -math32.Dot(a, b)
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric parses a metric name. "ip" and "inner_product" are accepted as
// aliases for dot; an empty name selects L2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "squared_l2":
		return MetricL2, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unsupported metric %q", s)
	}
}

// Func computes a distance where smaller values mean nearer vectors.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricDot:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
