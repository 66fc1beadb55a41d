package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/knnlm/tensor"
)

func collect(m Mode, n, batch int) [][2]int {
	var out [][2]int
	for s, e := range m.Slices(n, batch) {
		out = append(out, [2]int{s, e})
	}
	return out
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, SingleShot, ModeFor(10, 0))
	assert.Equal(t, SingleShot, ModeFor(9, 10))
	assert.Equal(t, Chunked, ModeFor(10, 10))
	assert.Equal(t, "chunked", Chunked.String())
	assert.Equal(t, "single_shot", SingleShot.String())
}

func TestMode_Slices(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 7}}, collect(SingleShot, 7, 3))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, collect(Chunked, 7, 3))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}}, collect(Chunked, 6, 3))

	var seen int
	for range Chunked.Slices(10, 2) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestHardAlignment(t *testing.T) {
	attn, _ := tensor.FromRows([][]float32{
		{0.9, 0.05, 0.05},
		{0.2, 0.3, 0.5},
	})
	// source: pad, word, eos
	pairs := HardAlignment(attn, []int64{1, 7, 2}, []int64{4, 5}, 1, 2)
	assert.Equal(t, []AlignmentPair{{Source: 1, Target: 0}, {Source: 1, Target: 1}}, pairs)

	assert.Nil(t, HardAlignment(attn, []int64{1, 2, 2}, []int64{4, 5}, 1, 2))
	assert.Nil(t, HardAlignment(nil, []int64{7}, []int64{4}, 1, 2))
}
