package config

import (
	"path/filepath"

	"github.com/hupe1980/knnlm/sweep"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Datastore.Metric == "" {
		cfg.Datastore.Metric = "l2"
	}

	def := sweep.DefaultConfig()
	t := &cfg.Sweep.Temperatures
	if len(t.Values) == 0 && t.Start == 0 && t.Stop == 0 && t.Step == 0 {
		t.Start, t.Stop, t.Step = 2.0, 15.1, 0.1
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = def.BatchSize
	}
	if cfg.Sweep.K == 0 {
		cfg.Sweep.K = def.K
	}
	if cfg.Sweep.Compression == "" {
		cfg.Sweep.Compression = string(def.Compression)
	}
	if cfg.Sweep.Name == "" && cfg.Datastore.Path != "" {
		cfg.Sweep.Name = filepath.Base(cfg.Datastore.Path)
	}

	if cfg.Output.Kind == "" {
		cfg.Output.Kind = OutputLocal
	}
	if cfg.Output.Kind == OutputLocal && cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.CommitLog.Kind == "" {
		cfg.CommitLog.Kind = CommitLogBlob
	}
}
