package scorer

import (
	"context"

	"github.com/hupe1980/knnlm/tensor"
)

// NetInput is the model input of a batch.
type NetInput struct {
	SrcTokens        [][]int64
	SrcLengths       []int
	PrevOutputTokens [][]int64
}

// Model is one member of an ensemble.
type Model interface {
	Forward(ctx context.Context, in *NetInput) (DecoderOutput, error)
}

// DecoderOutput is the result of one forward pass over a batch of bsz
// sequences of tsz positions. Position t of sequence b is flat row b*tsz+t.
type DecoderOutput interface {
	Dims() (bsz, tsz int)
	// NormalizedProbs returns the distributions of flat rows [start, end),
	// as log-probabilities when logProbs is set.
	NormalizedProbs(start, end int, logProbs bool) (*tensor.Matrix, error)
	// Attention returns one tsz×srcLen matrix per sequence, or nil.
	Attention() []*tensor.Matrix
	// Features returns the bsz*tsz×D representation of the named layer.
	Features(layer string) (*tensor.Matrix, error)
}

// Batch is one scoring request.
type Batch struct {
	Input  NetInput
	Target [][]int64
	// StartIndices holds a per-sequence left-padding offset. Nil means 0.
	StartIndices []int
}

func (b *Batch) start(i int) int {
	if b.StartIndices == nil {
		return 0
	}
	return b.StartIndices[i]
}

// AlignmentPair links a source position to a target position.
type AlignmentPair struct {
	Source int
	Target int
}

// Hypothesis is the scoring result of one sequence.
type Hypothesis struct {
	// Tokens is the reference from the start offset with padding removed.
	Tokens []int64
	// Score is the mean of PositionalScores, 0 for an empty reference.
	Score float32
	// PositionalScores holds one log-probability per token.
	PositionalScores []float32
	Attention        *tensor.Matrix
	Alignment        []AlignmentPair
	// DstoreKeys holds the key features from the start offset.
	DstoreKeys *tensor.Matrix
	// KNNProbs and Queries are set when retrieval fusion ran.
	KNNProbs []float32
	Queries  *tensor.Matrix
}
