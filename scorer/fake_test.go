package scorer

import (
	"context"
	"fmt"

	"github.com/hupe1980/knnlm/internal/math32"
	"github.com/hupe1980/knnlm/tensor"
)

// fakeModel returns fixed logits, features and attention.
type fakeModel struct {
	bsz, tsz int
	logits   *tensor.Matrix // bsz*tsz × V
	features *tensor.Matrix
	attn     []*tensor.Matrix
	calls    int
	slices   [][2]int
}

func (m *fakeModel) Forward(_ context.Context, _ *NetInput) (DecoderOutput, error) {
	m.calls++
	return m, nil
}

func (m *fakeModel) Dims() (int, int) { return m.bsz, m.tsz }

func (m *fakeModel) NormalizedProbs(start, end int, logProbs bool) (*tensor.Matrix, error) {
	m.slices = append(m.slices, [2]int{start, end})
	out := m.logits.Slice(start, end).Clone()
	for i := 0; i < out.Rows; i++ {
		row := out.Row(i)
		math32.LogSoftmax(row, row)
		if !logProbs {
			for j, v := range row {
				row[j] = float32(exp(v))
			}
		}
	}
	return out, nil
}

func (m *fakeModel) Attention() []*tensor.Matrix { return m.attn }

func (m *fakeModel) Features(layer string) (*tensor.Matrix, error) {
	if m.features == nil || layer != "last_ffn_input" {
		return nil, fmt.Errorf("no features for layer %q", layer)
	}
	return m.features, nil
}

type failingModel struct{ err error }

func (m failingModel) Forward(context.Context, *NetInput) (DecoderOutput, error) { return nil, m.err }
