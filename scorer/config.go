package scorer

import (
	"errors"
	"fmt"
)

// Config controls a Scorer.
type Config struct {
	// SoftmaxBatch caps the flat positions per slice. 0 means unlimited.
	SoftmaxBatch int `yaml:"softmax_batch"`
	// Lambda is the retrieval weight used for fusion.
	Lambda float64 `yaml:"lambda"`
	// K is the number of neighbors retrieved per position.
	K int `yaml:"k"`
	// Temperature scales retrieval distances.
	Temperature float32 `yaml:"temperature"`
	// KeyType names the decoder layer used as retrieval query.
	KeyType string `yaml:"key_type"`

	PadIdx int64 `yaml:"pad_idx"`
	EOSIdx int64 `yaml:"eos_idx"`

	ComputeAlignment bool `yaml:"compute_alignment"`
	SaveDstoreKeys   bool `yaml:"save_dstore_keys"`

	// ProjectionFloor clamps projected probabilities before the log.
	ProjectionFloor float32 `yaml:"projection_floor"`
}

// DefaultConfig returns the configuration used by the reference setup.
func DefaultConfig() Config {
	return Config{
		Lambda:          0.25,
		K:               1024,
		Temperature:     1,
		KeyType:         "last_ffn_input",
		PadIdx:          1,
		EOSIdx:          2,
		ProjectionFloor: 1e-9,
	}
}

// Validate checks the fields that do not depend on a datastore.
func (c Config) Validate() error {
	if c.SoftmaxBatch < 0 {
		return fmt.Errorf("scorer: invalid softmax batch %d", c.SoftmaxBatch)
	}
	if !(c.ProjectionFloor > 0) {
		return errors.New("scorer: projection floor must be positive")
	}
	return nil
}
