package sweep

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/knnlm/knn"
)

// Config configures a sweep.
type Config struct {
	// Temperatures are processed in order.
	Temperatures []float64 `yaml:"-" json:"temperatures"`
	// BatchSize is the number of queries searched at once.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// K is the number of neighbors per query.
	K int `yaml:"k" json:"k"`
	// Name prefixes every output blob, usually the datastore base name.
	Name string `yaml:"name" json:"name"`
	// Compression applied to output arrays.
	Compression Compression `yaml:"compression" json:"compression"`
	// CompressionLevel is the zstd level (1-22). Zero selects the default.
	CompressionLevel int `yaml:"compression_level" json:"compression_level,omitempty"`
	// Resume skips temperatures already recorded in the commit log.
	Resume bool `yaml:"resume" json:"resume"`
	// HalfPrecisionQueries rounds queries through float16 before searching.
	HalfPrecisionQueries bool `yaml:"half_precision_queries" json:"half_precision_queries"`
	// ReuseNeighbors searches once and reuses the neighbors for every
	// temperature when the memory budget allows it.
	ReuseNeighbors bool `yaml:"reuse_neighbors" json:"reuse_neighbors"`
}

// DefaultConfig returns the configuration of the reference sweep:
// temperatures 2.0 to 15.0 in steps of 0.1, batches of 2000 queries, k=1024.
func DefaultConfig() Config {
	temps, _ := Range(2.0, 15.1, 0.1)
	return Config{
		Temperatures: temps,
		BatchSize:    2000,
		K:            1024,
		Compression:  CompressionNone,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Temperatures) == 0 {
		return fmt.Errorf("%w: no temperatures", ErrInvalidRange)
	}
	for _, t := range c.Temperatures {
		if err := knn.ValidateTemperature(float32(t)); err != nil {
			return err
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("sweep: batch size must be positive, got %d", c.BatchSize)
	}
	if c.K <= 0 {
		return fmt.Errorf("sweep: k must be positive, got %d", c.K)
	}
	if c.Name == "" {
		return errors.New("sweep: name is required")
	}
	if _, err := ParseCompression(string(c.Compression)); err != nil {
		return err
	}
	return nil
}

// Range returns start, start+step, ... below stop, computed as start + i*step
// so values carry the same rounding as a half-open arange.
func Range(start, stop, step float64) ([]float64, error) {
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidRange, step)
	}
	n := math.Ceil((stop - start) / step)
	if !(n > 0) {
		return nil, fmt.Errorf("%w: [%v, %v) step %v is empty", ErrInvalidRange, start, stop, step)
	}
	out := make([]float64, int(n))
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out, nil
}

// FormatTemperature prints t as the shortest decimal that round-trips,
// always with a fractional part or exponent (2 prints as "2.0").
func FormatTemperature(t float64) string {
	if a := math.Abs(t); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(t, 'e', -1, 64)
	}
	s := strconv.FormatFloat(t, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nI") {
		s += ".0"
	}
	return s
}
