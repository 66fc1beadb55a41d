package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hupe1980/knnlm/internal/math32"
	"github.com/hupe1980/knnlm/knn"
	"github.com/hupe1980/knnlm/tensor"
	"github.com/hupe1980/knnlm/vocab"
)

// Scorer scores reference targets. It is safe for concurrent use; every
// call owns its buffers.
type Scorer struct {
	cfg       Config
	projector vocab.Projector
	retriever *knn.Retriever
	mixer     *knn.Mixer
	logger    *slog.Logger
}

// New creates a Scorer. With WithDatastore, λ, k and the temperature are
// validated here, before any batch is scored.
func New(cfg Config, optFns ...Option) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&o)
	}

	s := &Scorer{cfg: cfg, projector: o.projector, logger: o.logger}
	if o.store != nil {
		mixer, err := knn.NewMixer(cfg.Lambda)
		if err != nil {
			return nil, err
		}
		r, err := knn.NewRetriever(o.store, cfg.K, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		s.mixer, s.retriever = mixer, r
	}
	return s, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Fusion reports whether retrieval fusion is enabled.
func (s *Scorer) Fusion() bool { return s.retriever != nil }

// modelResult is the per-model state of one call.
type modelResult struct {
	probs   []float32 // bsz*tsz, log-probs for a single model, probs otherwise
	attn    []*tensor.Matrix
	out     DecoderOutput
	knn     *knn.Retrieval
	queries *tensor.Matrix
	mode    Mode
}

// Score runs every model on the batch and returns one hypothesis per
// sequence. A failed call returns no hypotheses.
func (s *Scorer) Score(ctx context.Context, models []Model, batch *Batch) ([]Hypothesis, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrEnsembleConfiguration)
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: nil batch", ErrShapeMismatch)
	}
	if s.retriever != nil && len(models) != 1 {
		return nil, fmt.Errorf("%w: retrieval fusion needs exactly one model, got %d", ErrEnsembleConfiguration, len(models))
	}
	if batch.StartIndices != nil && len(batch.StartIndices) != len(batch.Target) {
		return nil, fmt.Errorf("%w: %d start indices for %d sequences", ErrShapeMismatch, len(batch.StartIndices), len(batch.Target))
	}

	var (
		avg     []float32
		avgAttn []*tensor.Matrix
		last    *modelResult
	)
	for _, m := range models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.runModel(ctx, m, batch, len(models))
		if err != nil {
			return nil, err
		}
		if avg == nil {
			avg = res.probs
		} else {
			math32.AddTo(avg, avg, res.probs)
		}
		if avgAttn, err = addAttention(avgAttn, res.attn); err != nil {
			return nil, err
		}
		last = res
	}

	if n := len(models); n > 1 {
		inv := 1 / float32(n)
		for i, p := range avg {
			avg[i] = float32(math.Log(float64(p * inv)))
		}
		for _, a := range avgAttn {
			if a != nil {
				a.Scale(inv)
			}
		}
	}

	return s.assemble(batch, avg, avgAttn, last)
}

func (s *Scorer) runModel(ctx context.Context, m Model, batch *Batch, ensemble int) (*modelResult, error) {
	out, err := m.Forward(ctx, &batch.Input)
	if err != nil {
		return nil, err
	}
	bsz, tsz := out.Dims()
	if err := checkTargets(batch, bsz, tsz); err != nil {
		return nil, err
	}

	n := bsz * tsz
	res := &modelResult{
		probs: make([]float32, n),
		attn:  out.Attention(),
		out:   out,
		mode:  ModeFor(n, s.cfg.SoftmaxBatch),
	}

	single := ensemble == 1
	for start, end := range res.mode.Slices(n, s.cfg.SoftmaxBatch) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		probs, err := s.sliceProbs(out, start, end, single)
		if err != nil {
			return nil, err
		}
		if err := gather(res.probs, probs, batch, start, tsz); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("model scored", "bsz", bsz, "tsz", tsz, "mode", res.mode.String())

	if s.retriever != nil {
		if err := s.fuse(ctx, res, batch, tsz); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// sliceProbs returns the distributions of flat rows [start, end): log-probs
// for a single model, probabilities for an ensemble member.
func (s *Scorer) sliceProbs(out DecoderOutput, start, end int, single bool) (*tensor.Matrix, error) {
	if s.projector == nil {
		return out.NormalizedProbs(start, end, single)
	}

	pseudo, err := out.NormalizedProbs(start, end, false)
	if err != nil {
		return nil, err
	}
	probs, err := vocab.ProjectRows(s.projector, pseudo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	if single {
		math32.ClampLog(probs.Data, probs.Data, s.cfg.ProjectionFloor)
	} else {
		for i, v := range probs.Data {
			if !(v > s.cfg.ProjectionFloor) {
				probs.Data[i] = s.cfg.ProjectionFloor
			}
		}
	}
	return probs, nil
}

// gather copies the target column of every row of probs into dst at the
// row's absolute position. Positions before a sequence's start are skipped.
func gather(dst []float32, probs *tensor.Matrix, batch *Batch, start, tsz int) error {
	for r := 0; r < probs.Rows; r++ {
		pos := start + r
		b, t := pos/tsz, pos%tsz
		if t < batch.start(b) {
			continue
		}
		y := batch.Target[b][t]
		if y < 0 || y >= int64(probs.Cols) {
			return fmt.Errorf("%w: target %d at (%d, %d), vocabulary size %d", ErrTargetOutOfRange, y, b, t, probs.Cols)
		}
		dst[pos] = probs.At(r, int(y))
	}
	return nil
}

// fuse mixes the model log-probabilities with retrieval log-probabilities.
// Padding positions and positions before the start offset are not searched.
func (s *Scorer) fuse(ctx context.Context, res *modelResult, batch *Batch, tsz int) error {
	queries, err := res.out.Features(s.cfg.KeyType)
	if err != nil {
		return err
	}
	n := len(res.probs)
	if queries.Rows != n {
		return fmt.Errorf("%w: %d query rows for %d positions", ErrShapeMismatch, queries.Rows, n)
	}

	targets := make([]int64, n)
	valid := make([]bool, n)
	for pos := range n {
		b, t := pos/tsz, pos%tsz
		targets[pos] = batch.Target[b][t]
		valid[pos] = t >= batch.start(b) && targets[pos] != s.cfg.PadIdx
	}

	ret, err := s.retriever.Retrieve(ctx, queries, targets, valid)
	if err != nil {
		return err
	}
	res.knn, res.queries = ret, queries
	return s.mixer.InterpolateSlice(res.probs, ret.LogProbs, res.probs)
}

func (s *Scorer) assemble(batch *Batch, avg []float32, attn []*tensor.Matrix, last *modelResult) ([]Hypothesis, error) {
	_, tsz := last.out.Dims()

	var keys *tensor.Matrix
	if s.cfg.SaveDstoreKeys {
		var err error
		if keys, err = last.out.Features(s.cfg.KeyType); err != nil {
			return nil, err
		}
	}

	hypos := make([]Hypothesis, len(batch.Target))
	for i, target := range batch.Target {
		start := batch.start(i)
		ref := stripPad(target[start:], s.cfg.PadIdx)
		lo := i*tsz + start
		hi := lo + len(ref)

		h := Hypothesis{
			Tokens:           ref,
			PositionalScores: append([]float32(nil), avg[lo:hi]...),
		}
		if len(ref) > 0 {
			h.Score = float32(math32.Sum(h.PositionalScores) / float64(len(ref)))
		}
		if i < len(attn) && attn[i] != nil {
			h.Attention = attn[i]
			if s.cfg.ComputeAlignment && i < len(batch.Input.SrcTokens) {
				h.Alignment = HardAlignment(attn[i], batch.Input.SrcTokens[i], target, s.cfg.PadIdx, s.cfg.EOSIdx)
			}
		}
		if keys != nil {
			h.DstoreKeys = keys.Slice(i*tsz+start, (i+1)*tsz)
		}
		if last.knn != nil {
			h.KNNProbs = append([]float32(nil), last.knn.LogProbs[lo:hi]...)
			h.Queries = last.queries.Slice(lo, hi)
		}
		hypos[i] = h
	}
	return hypos, nil
}

func checkTargets(batch *Batch, bsz, tsz int) error {
	if len(batch.Target) != bsz {
		return fmt.Errorf("%w: model output has %d sequences, batch has %d", ErrShapeMismatch, bsz, len(batch.Target))
	}
	for i, t := range batch.Target {
		if len(t) != tsz {
			return fmt.Errorf("%w: target %d has %d positions, model output has %d", ErrShapeMismatch, i, len(t), tsz)
		}
		if st := batch.start(i); st < 0 || st > tsz {
			return fmt.Errorf("%w: start index %d outside [0, %d]", ErrShapeMismatch, st, tsz)
		}
	}
	return nil
}

func addAttention(acc, attn []*tensor.Matrix) ([]*tensor.Matrix, error) {
	if attn == nil {
		return acc, nil
	}
	if acc == nil {
		out := make([]*tensor.Matrix, len(attn))
		for i, a := range attn {
			if a != nil {
				out[i] = a.Clone()
			}
		}
		return out, nil
	}
	for i := range min(len(acc), len(attn)) {
		if acc[i] == nil || attn[i] == nil {
			continue
		}
		if err := acc[i].AddInPlace(attn[i]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
		}
	}
	return acc, nil
}

func stripPad(tokens []int64, pad int64) []int64 {
	out := make([]int64, 0, len(tokens))
	for _, t := range tokens {
		if t != pad {
			out = append(out, t)
		}
	}
	return out
}
