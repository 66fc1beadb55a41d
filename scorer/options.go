package scorer

import (
	"log/slog"

	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/vocab"
)

type options struct {
	store     datastore.Searcher
	projector vocab.Projector
	logger    *slog.Logger
}

// Option configures a Scorer.
type Option func(*options)

// WithDatastore enables retrieval fusion against store.
func WithDatastore(store datastore.Searcher) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithProjector maps pseudo-vocabulary outputs to the vocabulary before gathering.
func WithProjector(p vocab.Projector) Option {
	return func(o *options) {
		o.projector = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
