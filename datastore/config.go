package datastore

import (
	"fmt"

	"github.com/hupe1980/knnlm/distance"
)

// Config describes an on-disk datastore.
type Config struct {
	// Path is the base path; the files are <Path>_keys.npy and <Path>_vals.npy.
	Path string `yaml:"path"`
	// Size is the number of entries N.
	Size int `yaml:"size"`
	// Dimension is the key dimensionality D.
	Dimension int `yaml:"dimension"`
	// FP16 selects float16 keys; float32 otherwise.
	FP16 bool `yaml:"fp16"`
	// Metric is "l2" (default) or "dot".
	Metric string `yaml:"metric"`
	// LoadToMemory materializes the keys instead of scanning the mapping.
	LoadToMemory bool `yaml:"load_to_memory"`
}

// KeysPath returns the path of the keys file.
func (c Config) KeysPath() string { return KeysPath(c.Path) }

// ValuesPath returns the path of the values file.
func (c Config) ValuesPath() string { return ValuesPath(c.Path) }

// KeysPath returns the keys file for a base path.
func KeysPath(base string) string { return base + "_keys.npy" }

// ValuesPath returns the values file for a base path.
func ValuesPath(base string) string { return base + "_vals.npy" }

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("datastore: path is required")
	}
	if c.Size <= 0 {
		return fmt.Errorf("datastore: invalid size %d", c.Size)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("datastore: invalid dimension %d", c.Dimension)
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	return nil
}

func (c Config) keyElemSize() int {
	if c.FP16 {
		return 2
	}
	return 4
}
