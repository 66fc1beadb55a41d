// Package vocab maps probabilities over an expanded pseudo-vocabulary back to
// the base vocabulary.
//
// A pseudo-vocabulary gives a word several cluster slots. The projection sums
// the probability of every slot into its word:
//
//	p_word[v] = Σ_p p_pseudo[p] · coef[p][v]
//
// The built-in layouts are cluster-major: the first V pseudo entries are the
// base vocabulary, so pseudo index p of a OneHot projection belongs to word
// p mod V.
package vocab

import (
	"errors"
	"fmt"

	"github.com/hupe1980/knnlm/tensor"
)

// ErrInvalidProjection is returned for malformed projection matrices.
var ErrInvalidProjection = errors.New("invalid projection")

// Projector maps pseudo-vocabulary rows to vocabulary rows.
type Projector interface {
	// PseudoSize returns P, the length of an input row.
	PseudoSize() int
	// VocabSize returns V, the length of an output row.
	VocabSize() int
	// Project writes src·coef into dst. len(src) must be P and len(dst) V.
	Project(dst, src []float32) error
}

// ProjectRows projects every row of src into a new rows×V matrix.
func ProjectRows(p Projector, src *tensor.Matrix) (*tensor.Matrix, error) {
	if src.Cols != p.PseudoSize() {
		return nil, fmt.Errorf("%w: rows have %d columns, projector expects %d", ErrInvalidProjection, src.Cols, p.PseudoSize())
	}
	out := tensor.New(src.Rows, p.VocabSize())
	for i := 0; i < src.Rows; i++ {
		if err := p.Project(out.Row(i), src.Row(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkLens(p Projector, dst, src []float32) error {
	if len(src) != p.PseudoSize() || len(dst) != p.VocabSize() {
		return fmt.Errorf("%w: src %d (want %d), dst %d (want %d)",
			ErrInvalidProjection, len(src), p.PseudoSize(), len(dst), p.VocabSize())
	}
	return nil
}
