// Package config loads the YAML configuration of the knnlm-sweep command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/sweep"
)

// Output kinds.
const (
	OutputLocal = "local"
	OutputS3    = "s3"
	OutputMinIO = "minio"
)

// Commit log kinds.
const (
	CommitLogBlob     = "blob"
	CommitLogDynamoDB = "dynamodb"
)

// Config holds all configuration for a sweep run.
type Config struct {
	Log         LogConfig        `yaml:"log"`
	Resource    resource.Config  `yaml:"resource"`
	Datastore   datastore.Config `yaml:"datastore"`
	Sweep       SweepConfig      `yaml:"sweep"`
	Output      OutputConfig     `yaml:"output"`
	CommitLog   CommitLogConfig  `yaml:"commit_log"`
	MetricsAddr string           `yaml:"metrics_addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TemperatureConfig is either an explicit list or a half-open range.
type TemperatureConfig struct {
	Start  float64   `yaml:"start"`
	Stop   float64   `yaml:"stop"`
	Step   float64   `yaml:"step"`
	Values []float64 `yaml:"values"`
}

// Resolve returns the temperatures in sweep order.
func (t TemperatureConfig) Resolve() ([]float64, error) {
	if len(t.Values) > 0 {
		return append([]float64(nil), t.Values...), nil
	}
	return sweep.Range(t.Start, t.Stop, t.Step)
}

// SweepConfig holds the sweep inputs and parameters.
type SweepConfig struct {
	Queries              string            `yaml:"queries"`
	Tokens               string            `yaml:"tokens"`
	Name                 string            `yaml:"name"`
	Temperatures         TemperatureConfig `yaml:"temperatures"`
	BatchSize            int               `yaml:"batch_size"`
	K                    int               `yaml:"k"`
	Compression          string            `yaml:"compression"`
	CompressionLevel     int               `yaml:"compression_level"`
	Resume               bool              `yaml:"resume"`
	HalfPrecisionQueries bool              `yaml:"half_precision_queries"`
	ReuseNeighbors       bool              `yaml:"reuse_neighbors"`
}

// OutputConfig selects where sweep artifacts are written.
type OutputConfig struct {
	Kind      string `yaml:"kind"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// CommitLogConfig selects the resume log.
type CommitLogConfig struct {
	Kind  string `yaml:"kind"`
	Table string `yaml:"table"`
}

// Load reads and parses the config file at path, resolves relative paths
// against the config directory and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.Datastore.Path = expandPath(cfg.Datastore.Path, dir)
	cfg.Sweep.Queries = expandPath(cfg.Sweep.Queries, dir)
	cfg.Sweep.Tokens = expandPath(cfg.Sweep.Tokens, dir)
	if cfg.Output.Kind == OutputLocal {
		cfg.Output.Dir = expandPath(cfg.Output.Dir, dir)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks fields that have no usable default.
func (c *Config) Validate() error {
	if c.Datastore.Path == "" {
		return errors.New("config: datastore.path is required")
	}
	if c.Datastore.Size <= 0 || c.Datastore.Dimension <= 0 {
		return fmt.Errorf("config: datastore size and dimension must be positive, got %d and %d",
			c.Datastore.Size, c.Datastore.Dimension)
	}
	if c.Sweep.Queries == "" || c.Sweep.Tokens == "" {
		return errors.New("config: sweep.queries and sweep.tokens are required")
	}
	if _, err := sweep.ParseCompression(c.Sweep.Compression); err != nil {
		return err
	}

	switch c.Output.Kind {
	case OutputLocal:
	case OutputS3, OutputMinIO:
		if c.Output.Bucket == "" {
			return fmt.Errorf("config: output.bucket is required for %s", c.Output.Kind)
		}
		if c.Output.Kind == OutputMinIO && c.Output.Endpoint == "" {
			return errors.New("config: output.endpoint is required for minio")
		}
	default:
		return fmt.Errorf("config: unknown output kind %q", c.Output.Kind)
	}

	switch c.CommitLog.Kind {
	case CommitLogBlob:
	case CommitLogDynamoDB:
		if c.CommitLog.Table == "" {
			return errors.New("config: commit_log.table is required for dynamodb")
		}
	default:
		return fmt.Errorf("config: unknown commit log kind %q", c.CommitLog.Kind)
	}

	return nil
}

// SweepConfig converts the sweep section to a sweep.Config.
func (c *Config) SweepConfig() (sweep.Config, error) {
	temps, err := c.Sweep.Temperatures.Resolve()
	if err != nil {
		return sweep.Config{}, err
	}

	comp, err := sweep.ParseCompression(c.Sweep.Compression)
	if err != nil {
		return sweep.Config{}, err
	}

	return sweep.Config{
		Temperatures:         temps,
		BatchSize:            c.Sweep.BatchSize,
		K:                    c.Sweep.K,
		Name:                 c.Sweep.Name,
		Compression:          comp,
		CompressionLevel:     c.Sweep.CompressionLevel,
		Resume:               c.Sweep.Resume,
		HalfPrecisionQueries: c.Sweep.HalfPrecisionQueries,
		ReuseNeighbors:       c.Sweep.ReuseNeighbors,
	}, nil
}

// expandPath makes a relative path relative to configDir.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
