package datastore

import (
	"log/slog"

	"github.com/hupe1980/knnlm/resource"
)

type options struct {
	logger   *slog.Logger
	resource *resource.Controller
}

// Option configures a datastore.
type Option func(*options)

// WithLogger sets the logger used for load progress. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController bounds memory, search workers and load throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
