package knnlm

import (
	"log/slog"

	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/scorer"
	"github.com/hupe1980/knnlm/vocab"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	resource         *resource.Controller
	scorerConfig     scorer.Config
	projector        vocab.Projector
	fusion           bool
}

// Option configures an LM.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &knnlm.BasicMetricsCollector{}
//	lm, _ := knnlm.New(store, knnlm.WithMetricsCollector(metrics))
//	// ... use lm ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
//	logger := knnlm.NewJSONLogger(slog.LevelInfo)
//	lm, _ := knnlm.New(store, knnlm.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController bounds memory, search workers and load throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithScorerConfig sets the sequence scoring configuration.
// Defaults to scorer.DefaultConfig().
func WithScorerConfig(cfg scorer.Config) Option {
	return func(o *options) {
		o.scorerConfig = cfg
	}
}

// WithProjector maps pseudo-vocabulary model outputs onto the vocabulary.
func WithProjector(p vocab.Projector) Option {
	return func(o *options) {
		o.projector = p
	}
}

// WithoutFusion scores with the model distribution only; the datastore is
// still available to Search and Sweep.
func WithoutFusion() Option {
	return func(o *options) {
		o.fusion = false
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		scorerConfig:     scorer.DefaultConfig(),
		fusion:           true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
