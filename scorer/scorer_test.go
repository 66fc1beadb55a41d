package scorer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnlm/datastore"
	"github.com/hupe1980/knnlm/knn"
	"github.com/hupe1980/knnlm/tensor"
	"github.com/hupe1980/knnlm/testutil"
	"github.com/hupe1980/knnlm/vocab"
)

func exp(v float32) float64 { return math.Exp(float64(v)) }

func newFake(rng *testutil.RNG, bsz, tsz, v int) *fakeModel {
	logits := rng.GaussianMatrix(bsz*tsz, v)
	return &fakeModel{bsz: bsz, tsz: tsz, logits: logits}
}

func logSoftmaxAt(m *tensor.Matrix, row int, col int64) float64 {
	r := m.Row(row)
	var z float64
	for _, v := range r {
		z += exp(v)
	}
	return float64(r[col]) - math.Log(z)
}

func targets(rng *testutil.RNG, bsz, tsz, v int) [][]int64 {
	out := make([][]int64, bsz)
	for i := range out {
		out[i] = rng.Tokens(tsz, v)
		for j, tok := range out[i] {
			if tok == 1 { // keep pad out of random targets
				out[i][j] = 3
			}
		}
	}
	return out
}

func newScorer(t *testing.T, cfg Config, opts ...Option) *Scorer {
	t.Helper()
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}

func TestScore_SingleModel(t *testing.T) {
	rng := testutil.NewRNG(1)
	m := newFake(rng, 2, 4, 10)
	batch := &Batch{Target: targets(rng, 2, 4, 10)}

	hypos, err := newScorer(t, DefaultConfig()).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)
	require.Len(t, hypos, 2)

	for b, h := range hypos {
		assert.Equal(t, batch.Target[b], h.Tokens)
		var sum float64
		for tt, got := range h.PositionalScores {
			want := logSoftmaxAt(m.logits, b*4+tt, batch.Target[b][tt])
			assert.InDelta(t, want, got, 1e-5)
			sum += want
		}
		assert.InDelta(t, sum/4, h.Score, 1e-5)
	}
	assert.Equal(t, [][2]int{{0, 8}}, m.slices)
}

func TestScore_ChunkedMatchesSingleShot(t *testing.T) {
	rng := testutil.NewRNG(2)
	m := newFake(rng, 3, 5, 12)
	batch := &Batch{Target: targets(rng, 3, 5, 12)}
	ctx := context.Background()

	single, err := newScorer(t, DefaultConfig()).Score(ctx, []Model{m}, batch)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SoftmaxBatch = 4
	m.slices = nil
	chunked, err := newScorer(t, cfg).Score(ctx, []Model{m}, batch)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 12}, {12, 15}}, m.slices)
	for i := range single {
		assert.Equal(t, single[i].PositionalScores, chunked[i].PositionalScores)
		assert.Equal(t, single[i].Score, chunked[i].Score)
	}
}

func TestScore_EnsembleOfIdenticalModels(t *testing.T) {
	rng := testutil.NewRNG(3)
	m := newFake(rng, 2, 3, 8)
	batch := &Batch{Target: targets(rng, 2, 3, 8)}
	s := newScorer(t, DefaultConfig())
	ctx := context.Background()

	one, err := s.Score(ctx, []Model{m}, batch)
	require.NoError(t, err)
	two, err := s.Score(ctx, []Model{m, m}, batch)
	require.NoError(t, err)

	for i := range one {
		assert.InDeltaSlice(t, one[i].PositionalScores, two[i].PositionalScores, 1e-5)
	}
}

func TestScore_EnsembleAveragesProbabilities(t *testing.T) {
	a := &fakeModel{bsz: 1, tsz: 1, logits: &tensor.Matrix{Rows: 1, Cols: 2, Data: []float32{0, 0}}}
	b := &fakeModel{bsz: 1, tsz: 1, logits: &tensor.Matrix{Rows: 1, Cols: 2, Data: []float32{float32(math.Log(3)), 0}}}
	batch := &Batch{Target: [][]int64{{0}}}

	hypos, err := newScorer(t, DefaultConfig()).Score(context.Background(), []Model{a, b}, batch)
	require.NoError(t, err)
	// (0.5 + 0.75) / 2
	assert.InDelta(t, math.Log(0.625), hypos[0].Score, 1e-6)
}

func TestScore_LeftPadding(t *testing.T) {
	rng := testutil.NewRNG(4)
	m := newFake(rng, 1, 5, 6)
	batch := &Batch{Target: [][]int64{{1, 1, 4, 0, 5}}, StartIndices: []int{2}}

	hypos, err := newScorer(t, DefaultConfig()).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)

	h := hypos[0]
	assert.Equal(t, []int64{4, 0, 5}, h.Tokens)
	require.Len(t, h.PositionalScores, 3)
	var sum float64
	for i, tok := range h.Tokens {
		want := logSoftmaxAt(m.logits, 2+i, tok)
		assert.InDelta(t, want, h.PositionalScores[i], 1e-5)
		sum += want
	}
	assert.InDelta(t, sum/3, h.Score, 1e-5)
}

func TestScore_TrailingPadStripped(t *testing.T) {
	rng := testutil.NewRNG(5)
	m := newFake(rng, 2, 3, 6)
	batch := &Batch{Target: [][]int64{{4, 5, 1}, {1, 1, 1}}}

	hypos, err := newScorer(t, DefaultConfig()).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, hypos[0].Tokens)
	assert.Len(t, hypos[0].PositionalScores, 2)

	assert.Empty(t, hypos[1].Tokens)
	assert.Empty(t, hypos[1].PositionalScores)
	assert.Equal(t, float32(0), hypos[1].Score)
}

func TestScore_Projection(t *testing.T) {
	rng := testutil.NewRNG(6)
	m := newFake(rng, 1, 4, 6) // pseudo vocabulary of 3 words × 2 clusters
	batch := &Batch{Target: [][]int64{{0, 2, 0, 2}}}
	proj, err := vocab.OneHot(3, 2)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SoftmaxBatch = 2
	hypos, err := newScorer(t, cfg, WithProjector(proj)).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)

	for i, tok := range batch.Target[0] {
		p := math.Exp(logSoftmaxAt(m.logits, i, tok)) + math.Exp(logSoftmaxAt(m.logits, i, tok+3))
		assert.InDelta(t, math.Log(p), hypos[0].PositionalScores[i], 1e-5)
	}
}

func TestScore_ProjectionFloor(t *testing.T) {
	// word 2 receives no mass at all
	m := &fakeModel{bsz: 1, tsz: 2, logits: &tensor.Matrix{Rows: 2, Cols: 2, Data: []float32{0, 0, 0, 0}}}
	proj, err := vocab.NewSparse(2, 3, []vocab.Entry{{Pseudo: 0, Word: 0, Weight: 1}, {Pseudo: 1, Word: 0, Weight: 1}})
	require.NoError(t, err)

	hypos, err := newScorer(t, DefaultConfig(), WithProjector(proj)).
		Score(context.Background(), []Model{m}, &Batch{Target: [][]int64{{0, 2}}})
	require.NoError(t, err)
	assert.InDelta(t, 0, hypos[0].PositionalScores[0], 1e-6)
	assert.InDelta(t, math.Log(1e-9), hypos[0].PositionalScores[1], 1e-3)
}

func fusionStore(t *testing.T) *datastore.Flat {
	t.Helper()
	keys, err := tensor.FromRows([][]float32{{1, 0}, {0, 1}, {0, float32(math.Sqrt2)}, {0, float32(math.Sqrt(3))}})
	require.NoError(t, err)
	store, err := datastore.NewFlat(keys, []int64{5, 5, 7, 9})
	require.NoError(t, err)
	return store
}

func TestScore_RetrievalFusion(t *testing.T) {
	rng := testutil.NewRNG(7)
	m := newFake(rng, 1, 3, 10)
	m.features = tensor.New(3, 2) // every query at the origin
	batch := &Batch{Target: [][]int64{{5, 8, 1}}}

	cfg := DefaultConfig()
	cfg.K = 4
	cfg.Lambda = 0.25
	cfg.SaveDstoreKeys = true
	hypos, err := newScorer(t, cfg, WithDatastore(fusionStore(t))).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)

	h := hypos[0]
	require.Len(t, h.PositionalScores, 2)
	require.Len(t, h.KNNProbs, 2)
	assert.Equal(t, 2, h.Queries.Rows)
	assert.Equal(t, 3, h.DstoreKeys.Rows)

	logZ := math.Log(2*math.Exp(-1) + math.Exp(-2) + math.Exp(-3))
	knn5 := math.Log(2) - 1 - logZ
	assert.InDelta(t, knn5, h.KNNProbs[0], 1e-4)
	assert.Less(t, h.KNNProbs[1], float32(-100))

	mixer, err := knn.NewMixer(0.25)
	require.NoError(t, err)
	for i, tok := range []int64{5, 8} {
		vocabP := float32(logSoftmaxAt(m.logits, i, tok))
		assert.InDelta(t, mixer.Interpolate(h.KNNProbs[i], vocabP), h.PositionalScores[i], 1e-5)
	}
}

type countingSearcher struct {
	datastore.Searcher
	calls int
	rows  int
}

func (c *countingSearcher) Search(ctx context.Context, queries *tensor.Matrix, k int) (*datastore.Neighbors, error) {
	c.calls++
	c.rows += queries.Rows
	return c.Searcher.Search(ctx, queries, k)
}

func TestScore_FusionWithStartOffsetChunked(t *testing.T) {
	rng := testutil.NewRNG(10)
	m := newFake(rng, 1, 4, 10)
	m.features = tensor.New(4, 2)
	batch := &Batch{Target: [][]int64{{9, 5, 7, 1}}, StartIndices: []int{1}}
	store := &countingSearcher{Searcher: fusionStore(t)}

	cfg := DefaultConfig()
	cfg.K = 4
	cfg.Lambda = 0.25
	cfg.SoftmaxBatch = 2
	s := newScorer(t, cfg, WithDatastore(store))
	hypos, err := s.Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 2}, {2, 4}}, m.slices)
	// position 0 precedes the offset and position 3 is padding
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 2, store.rows)

	h := hypos[0]
	assert.Equal(t, []int64{5, 7}, h.Tokens)
	require.Len(t, h.PositionalScores, 2)
	require.Len(t, h.KNNProbs, 2)
	assert.Equal(t, 2, h.Queries.Rows)

	logZ := math.Log(2*math.Exp(-1) + math.Exp(-2) + math.Exp(-3))
	assert.InDelta(t, math.Log(2)-1-logZ, h.KNNProbs[0], 1e-4)
	assert.InDelta(t, -2-logZ, h.KNNProbs[1], 1e-4)

	mixer, err := knn.NewMixer(0.25)
	require.NoError(t, err)
	var sum float64
	for i, tok := range h.Tokens {
		vocabP := float32(logSoftmaxAt(m.logits, 1+i, tok))
		want := mixer.Interpolate(h.KNNProbs[i], vocabP)
		assert.InDelta(t, want, h.PositionalScores[i], 1e-5)
		sum += float64(want)
	}
	assert.InDelta(t, sum/2, h.Score, 1e-5)
}

func TestScore_FusionRejectsEnsemble(t *testing.T) {
	rng := testutil.NewRNG(8)
	m := newFake(rng, 1, 2, 10)
	m.features = tensor.New(2, 2)

	cfg := DefaultConfig()
	cfg.K = 2
	s := newScorer(t, cfg, WithDatastore(fusionStore(t)))

	_, err := s.Score(context.Background(), []Model{m, m}, &Batch{Target: [][]int64{{5, 5}}})
	assert.ErrorIs(t, err, ErrEnsembleConfiguration)
	assert.Zero(t, m.calls)

	_, err = s.Score(context.Background(), nil, &Batch{})
	assert.ErrorIs(t, err, ErrEnsembleConfiguration)
}

func TestNew_InvalidFusionConfig(t *testing.T) {
	store := fusionStore(t)

	cfg := DefaultConfig()
	cfg.K = 2
	for _, lambda := range []float64{0, 1, -0.5} {
		cfg.Lambda = lambda
		_, err := New(cfg, WithDatastore(store))
		var mw *knn.ErrInvalidMixingWeight
		assert.ErrorAs(t, err, &mw)
	}

	cfg.Lambda = 0.25
	cfg.K = 10
	_, err := New(cfg, WithDatastore(store))
	var ce *datastore.ErrCapacityExceeded
	assert.ErrorAs(t, err, &ce)

	cfg = DefaultConfig()
	cfg.SoftmaxBatch = -1
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestScore_Errors(t *testing.T) {
	rng := testutil.NewRNG(9)
	m := newFake(rng, 1, 2, 4)
	s := newScorer(t, DefaultConfig())
	ctx := context.Background()

	_, err := s.Score(ctx, []Model{m}, &Batch{Target: [][]int64{{0, 4}}})
	assert.ErrorIs(t, err, ErrTargetOutOfRange)

	_, err = s.Score(ctx, []Model{m}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Zero(t, m.calls)

	_, err = s.Score(ctx, []Model{m}, &Batch{Target: [][]int64{{0, 1, 2}}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = s.Score(ctx, []Model{m}, &Batch{Target: [][]int64{{0, 1}}, StartIndices: []int{3}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	boom := errors.New("boom")
	_, err = s.Score(ctx, []Model{failingModel{err: boom}}, &Batch{Target: [][]int64{{0}}})
	assert.ErrorIs(t, err, boom)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Score(canceled, []Model{m}, &Batch{Target: [][]int64{{0, 2}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScore_AttentionAndAlignment(t *testing.T) {
	rng := testutil.NewRNG(10)
	m := newFake(rng, 1, 3, 6)
	attn, err := tensor.FromRows([][]float32{
		{0.1, 0.7, 0.2},
		{0.8, 0.1, 0.1},
		{0.1, 0.1, 0.8},
	})
	require.NoError(t, err)
	m.attn = []*tensor.Matrix{attn}

	cfg := DefaultConfig()
	cfg.ComputeAlignment = true
	batch := &Batch{
		Input:  NetInput{SrcTokens: [][]int64{{4, 5, 2}}},
		Target: [][]int64{{3, 4, 2}},
	}

	one, err := newScorer(t, cfg).Score(context.Background(), []Model{m}, batch)
	require.NoError(t, err)
	assert.Equal(t, []AlignmentPair{{Source: 1, Target: 0}, {Source: 0, Target: 1}}, one[0].Alignment)
	assert.Equal(t, attn.Data, one[0].Attention.Data)

	two, err := newScorer(t, cfg).Score(context.Background(), []Model{m, m}, batch)
	require.NoError(t, err)
	assert.InDeltaSlice(t, attn.Data, two[0].Attention.Data, 1e-6)
	assert.Equal(t, []float32{0.1, 0.7, 0.2}, attn.Row(0))
}
