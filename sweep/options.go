package sweep

import (
	"log/slog"

	"github.com/hupe1980/knnlm/blobstore"
	"github.com/hupe1980/knnlm/resource"
)

type options struct {
	logger   *slog.Logger
	resource *resource.Controller
	commits  blobstore.CommitLog
	observer func(Point)
}

// Option configures a Controller or a loader.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithResourceController accounts loaded arrays and cached neighbors against
// a memory budget and throttles file reads.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithCommitLog records finished temperatures in log instead of the default
// marker blobs next to the outputs.
func WithCommitLog(log blobstore.CommitLog) Option {
	return func(o *options) {
		o.commits = log
	}
}

// WithObserver registers fn to be called after every persisted temperature.
func WithObserver(fn func(Point)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
