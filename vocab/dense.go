package vocab

import (
	"fmt"

	"github.com/hupe1980/knnlm/tensor"
)

var _ Projector = (*Dense)(nil)

// Dense is a projection backed by a full P×V matrix.
type Dense struct {
	coef *tensor.Matrix
}

// NewDense wraps coef (rows = pseudo entries, cols = words) without copying.
func NewDense(coef *tensor.Matrix) (*Dense, error) {
	if coef == nil || coef.Rows == 0 || coef.Cols == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrInvalidProjection)
	}
	return &Dense{coef: coef}, nil
}

// PseudoSize returns P.
func (d *Dense) PseudoSize() int { return d.coef.Rows }

// VocabSize returns V.
func (d *Dense) VocabSize() int { return d.coef.Cols }

// Project writes src·coef into dst.
func (d *Dense) Project(dst, src []float32) error {
	if err := checkLens(d, dst, src); err != nil {
		return err
	}
	clear(dst)
	for p, w := range src {
		if w == 0 {
			continue
		}
		for v, c := range d.coef.Row(p) {
			dst[v] += w * c
		}
	}
	return nil
}
