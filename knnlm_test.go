package knnlm

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnlm/blobstore"
	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/knn"
	"github.com/hupe1980/knnlm/scorer"
	"github.com/hupe1980/knnlm/sweep"
	"github.com/hupe1980/knnlm/tensor"
)

// uniformModel predicts a uniform distribution over vocab tokens and places
// every retrieval query at the origin.
type uniformModel struct {
	bsz, tsz, vocab, dim int
}

func (m uniformModel) Forward(context.Context, *scorer.NetInput) (scorer.DecoderOutput, error) {
	return m, nil
}

func (m uniformModel) Dims() (int, int) { return m.bsz, m.tsz }

func (m uniformModel) NormalizedProbs(start, end int, logProbs bool) (*tensor.Matrix, error) {
	out := tensor.New(end-start, m.vocab)
	v := float32(1) / float32(m.vocab)
	if logProbs {
		v = float32(-math.Log(float64(m.vocab)))
	}
	for i := range out.Data {
		out.Data[i] = v
	}
	return out, nil
}

func (m uniformModel) Attention() []*tensor.Matrix { return nil }

func (m uniformModel) Features(string) (*tensor.Matrix, error) {
	return tensor.New(m.bsz*m.tsz, m.dim), nil
}

type failingModel struct{}

func (failingModel) Forward(context.Context, *scorer.NetInput) (scorer.DecoderOutput, error) {
	return nil, errors.New("forward failed")
}

func fourEntryKeys(t *testing.T) (*tensor.Matrix, []int64) {
	t.Helper()
	keys, err := tensor.FromRows([][]float32{{1, 0}, {0, 1}, {0, 1.4142135}, {0, 1.7320508}})
	require.NoError(t, err)
	return keys, []int64{5, 5, 7, 9}
}

func fourEntryStore(t *testing.T) *datastore.Flat {
	t.Helper()
	keys, values := fourEntryKeys(t)
	f, err := datastore.NewFlat(keys, values)
	require.NoError(t, err)
	return f
}

func fusionConfig() scorer.Config {
	cfg := scorer.DefaultConfig()
	cfg.K = 4
	cfg.Lambda = 0.5
	return cfg
}

func TestLM_ScoreWithoutFusion(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	lm, err := New(fourEntryStore(t), WithoutFusion(), WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer lm.Close()

	batch := &scorer.Batch{Target: [][]int64{{5, 7, 3}}}
	hypos, err := lm.Score(context.Background(), []scorer.Model{uniformModel{1, 3, 8, 2}}, batch)
	require.NoError(t, err)
	require.Len(t, hypos, 1)
	assert.InDeltaSlice(t, []float32{-2.0794415, -2.0794415, -2.0794415}, hypos[0].PositionalScores, 1e-5)
	assert.Nil(t, hypos[0].KNNProbs)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ScoreCount)
	assert.Equal(t, int64(3), stats.ScoreTokens)
	assert.Zero(t, stats.ScoreErrors)
}

func TestLM_ScoreWithFusion(t *testing.T) {
	lm, err := New(fourEntryStore(t), WithScorerConfig(fusionConfig()))
	require.NoError(t, err)

	batch := &scorer.Batch{Target: [][]int64{{5, 3}}}
	hypos, err := lm.Score(context.Background(), []scorer.Model{uniformModel{1, 2, 8, 2}}, batch)
	require.NoError(t, err)
	h := hypos[0]

	want := make([]float32, 1)
	require.NoError(t, knn.Score(want, []float32{1, 1, 2, 3}, []int64{5, 5, 7, 9}, 4, []int64{5}, 1))
	assert.InDelta(t, want[0], h.KNNProbs[0], 1e-5)

	mixer, err := knn.NewMixer(0.5)
	require.NoError(t, err)
	vocabP := float32(-math.Log(8))
	assert.InDelta(t, mixer.Interpolate(want[0], vocabP), h.PositionalScores[0], 1e-5)
	assert.InDelta(t, mixer.Interpolate(h.KNNProbs[1], vocabP), h.PositionalScores[1], 1e-5)
	assert.Less(t, h.KNNProbs[1], float32(-100))
}

func TestLM_Errors(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	lm, err := New(fourEntryStore(t), WithScorerConfig(fusionConfig()), WithMetricsCollector(metrics))
	require.NoError(t, err)

	_, err = lm.Search(ctx, tensor.New(1, 2), 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = lm.Search(ctx, tensor.New(1, 2), 5)
	var capErr *ErrCapacityExceeded
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.K)
	assert.Equal(t, 4, capErr.Size)

	_, err = lm.Search(ctx, tensor.New(1, 3), 1)
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
	var inner *datastore.ErrDimensionMismatch
	assert.ErrorAs(t, err, &inner, "cause is kept")

	m := uniformModel{1, 2, 8, 2}
	batch := &scorer.Batch{Target: [][]int64{{5, 3}}}
	_, err = lm.Score(ctx, []scorer.Model{m, m}, batch)
	assert.ErrorIs(t, err, ErrEnsembleConfiguration)

	_, err = lm.Score(ctx, []scorer.Model{failingModel{}}, batch)
	assert.Error(t, err)

	cfg := fusionConfig()
	cfg.Lambda = 1.5
	_, err = New(fourEntryStore(t), WithScorerConfig(cfg))
	var mw *ErrInvalidMixingWeight
	require.ErrorAs(t, err, &mw)
	assert.Equal(t, 1.5, mw.Lambda)

	cfg = fusionConfig()
	cfg.Temperature = 0
	_, err = New(fourEntryStore(t), WithScorerConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidTemperature)

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.SearchCount)
	assert.Equal(t, int64(3), stats.SearchErrors)
	assert.Equal(t, int64(2), stats.ScoreErrors)
}

func TestLM_Sweep(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	lm, err := New(fourEntryStore(t), WithMetricsCollector(metrics))
	require.NoError(t, err)

	queries := tensor.New(3, 2)
	tokens := []int64{5, 7, 1}
	out := blobstore.NewMemoryStore()

	cfg := sweep.Config{Temperatures: []float64{1, 2}, BatchSize: 2, K: 4, Name: "four"}
	report, err := lm.Sweep(ctx, out, cfg, queries, tokens)
	require.NoError(t, err)
	require.Len(t, report.Points, 2)
	assert.InDelta(t, 2.0/3.0, report.Recall, 1e-12)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.SweepPoints)
	assert.Equal(t, int64(6), stats.SweepQueries)

	ok, err := blobstore.Exists(ctx, out, sweep.OutputNames("four", 2, sweep.CompressionNone).KNNs)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = lm.Sweep(ctx, out, cfg, queries, tokens[:2])
	assert.ErrorIs(t, err, ErrLengthMismatch)

	cfg.K = 10
	_, err = lm.Sweep(ctx, out, cfg, queries, tokens)
	var capErr *ErrCapacityExceeded
	assert.ErrorAs(t, err, &capErr)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	base := filepath.Join(t.TempDir(), "dstore")
	keys, values := fourEntryKeys(t)

	w, err := datastore.Create(base, 2, true)
	require.NoError(t, err)
	require.NoError(t, w.Add(keys, values))
	require.NoError(t, w.Close())

	cfg := datastore.Config{Path: base, Size: 4, Dimension: 2, FP16: true, Metric: "l2", LoadToMemory: true}
	lm, err := Open(ctx, cfg, WithScorerConfig(fusionConfig()), WithLogger(NoopLogger()))
	require.NoError(t, err)
	assert.Equal(t, 4, lm.Datastore().Size())

	res, err := lm.Search(ctx, tensor.New(1, 2), 2)
	require.NoError(t, err)
	_, _, vals := res.Row(0)
	assert.Equal(t, []int64{5, 5}, vals)

	require.NoError(t, lm.Close())
	require.NoError(t, lm.Close())
	_, err = lm.Search(ctx, tensor.New(1, 2), 2)
	assert.ErrorIs(t, err, ErrClosed)

	t.Run("Corrupt", func(t *testing.T) {
		bad := cfg
		bad.Size = 100
		_, err := Open(ctx, bad)
		assert.ErrorIs(t, err, ErrCorruptDatastore)
	})
}

func TestLogger(t *testing.T) {
	l := NoopLogger().WithK(4).WithDimension(2).WithCount(1)
	ctx := context.Background()
	l.LogSearch(ctx, 1, 4, nil)
	l.LogSearch(ctx, 1, 4, errors.New("boom"))
	l.LogScore(ctx, 1, 3, nil)
	l.LogSweepPoint(ctx, "2.0", 3, -1.5)
	l.LogLoad(ctx, "dstore", 4, 0, nil)
	assert.NotNil(t, NewLogger(nil))
	assert.NotNil(t, NewJSONLogger(0))
}
