package knnlm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/knnlm/blobstore"
	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/scorer"
	"github.com/hupe1980/knnlm/sweep"
	"github.com/hupe1980/knnlm/tensor"
)

// LM is a kNN-augmented language-model scorer bound to one datastore.
// It is safe for concurrent use.
type LM struct {
	store   datastore.Searcher
	closer  func() error
	scorer  *scorer.Scorer
	opts    options
	metrics MetricsCollector
	logger  *Logger
	closed  atomic.Bool
}

// Open loads the datastore described by cfg and returns an LM over it.
// The datastore is released by Close.
func Open(ctx context.Context, cfg datastore.Config, optFns ...Option) (*LM, error) {
	o := applyOptions(optFns)

	begin := time.Now()
	store, err := datastore.Open(ctx, cfg,
		datastore.WithLogger(o.logger.Logger),
		datastore.WithResourceController(o.resource),
	)
	if err != nil {
		o.logger.LogLoad(ctx, cfg.Path, cfg.Size, time.Since(begin), err)
		return nil, translateError(err)
	}
	o.logger.LogLoad(ctx, cfg.Path, store.Size(), time.Since(begin), nil)

	lm, err := newLM(store, store.Close, o)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return lm, nil
}

// New returns an LM over an existing searcher. Close does not close store.
func New(store datastore.Searcher, optFns ...Option) (*LM, error) {
	return newLM(store, nil, applyOptions(optFns))
}

func newLM(store datastore.Searcher, closer func() error, o options) (*LM, error) {
	scorerOpts := []scorer.Option{scorer.WithLogger(o.logger.Logger)}
	if o.fusion && store != nil {
		scorerOpts = append(scorerOpts, scorer.WithDatastore(store))
	}
	if o.projector != nil {
		scorerOpts = append(scorerOpts, scorer.WithProjector(o.projector))
	}
	s, err := scorer.New(o.scorerConfig, scorerOpts...)
	if err != nil {
		return nil, translateError(err)
	}
	return &LM{
		store:   store,
		closer:  closer,
		scorer:  s,
		opts:    o,
		metrics: o.metricsCollector,
		logger:  o.logger,
	}, nil
}

// Datastore returns the underlying searcher.
func (lm *LM) Datastore() datastore.Searcher { return lm.store }

// ScorerConfig returns the scoring configuration in effect.
func (lm *LM) ScorerConfig() scorer.Config { return lm.scorer.Config() }

// Search returns the k nearest datastore entries of every query row.
func (lm *LM) Search(ctx context.Context, queries *tensor.Matrix, k int) (*datastore.Neighbors, error) {
	if lm.closed.Load() {
		return nil, ErrClosed
	}
	begin := time.Now()
	res, err := lm.store.Search(ctx, queries, k)
	lm.metrics.RecordSearch(queries.Rows, k, time.Since(begin), err)
	lm.logger.LogSearch(ctx, queries.Rows, k, err)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// Score scores every sequence of batch with the given model ensemble.
func (lm *LM) Score(ctx context.Context, models []scorer.Model, batch *scorer.Batch) ([]scorer.Hypothesis, error) {
	if lm.closed.Load() {
		return nil, ErrClosed
	}
	begin := time.Now()
	hypos, err := lm.scorer.Score(ctx, models, batch)

	tokens := 0
	for _, h := range hypos {
		tokens += len(h.Tokens)
	}
	sequences := len(hypos)
	if err != nil && batch != nil {
		sequences = len(batch.Target)
	}
	lm.metrics.RecordScore(sequences, tokens, time.Since(begin), err)
	lm.logger.LogScore(ctx, sequences, tokens, err)
	if err != nil {
		return nil, translateError(err)
	}
	return hypos, nil
}

// Sweep runs a temperature sweep over queries and writes the outputs to out.
// Logging, metrics and the resource controller of the LM are passed on;
// optFns may add a commit log or override them.
func (lm *LM) Sweep(ctx context.Context, out blobstore.BlobStore, cfg sweep.Config, queries *tensor.Matrix, tokens []int64, optFns ...sweep.Option) (*sweep.Report, error) {
	if lm.closed.Load() {
		return nil, ErrClosed
	}
	opts := []sweep.Option{
		sweep.WithLogger(lm.logger.Logger),
		sweep.WithResourceController(lm.opts.resource),
		sweep.WithObserver(func(p sweep.Point) {
			lm.metrics.RecordSweepPoint(p.Temperature, p.Queries, p.MeanLogProb, p.Elapsed)
			lm.logger.LogSweepPoint(ctx, p.Key, p.Queries, p.MeanLogProb)
		}),
	}
	ctrl, err := sweep.NewController(lm.store, out, cfg, append(opts, optFns...)...)
	if err != nil {
		return nil, translateError(err)
	}
	report, err := ctrl.Run(ctx, queries, tokens)
	if err != nil {
		return nil, translateError(err)
	}
	return report, nil
}

// Close releases the datastore when the LM opened it.
func (lm *LM) Close() error {
	if lm == nil || !lm.closed.CompareAndSwap(false, true) {
		return nil
	}
	if lm.closer != nil {
		return lm.closer()
	}
	return nil
}
