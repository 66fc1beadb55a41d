package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnlm/distance"
	"github.com/hupe1980/knnlm/tensor"
)

func TestUniformMatrix(t *testing.T) {
	rng := NewRNG(42)
	m := rng.UniformMatrix(10, 5)
	assert.Equal(t, 10, m.Rows)
	assert.Equal(t, 5, m.Cols)
	for _, v := range m.Data {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
}

func TestDistributions(t *testing.T) {
	rng := NewRNG(1)
	m := rng.Distributions(4, 7)
	for i := 0; i < m.Rows; i++ {
		var sum float64
		for _, v := range m.Row(i) {
			assert.Greater(t, v, float32(0))
			sum += float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestTokens(t *testing.T) {
	rng := NewRNG(3)
	for _, tok := range rng.Tokens(100, 5) {
		assert.GreaterOrEqual(t, tok, int64(0))
		assert.Less(t, tok, int64(5))
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(123)
	a := rng.UniformMatrix(3, 3)
	rng.Reset()
	b := rng.UniformMatrix(3, 3)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, int64(123), rng.Seed())
}

func TestBruteForceSearch(t *testing.T) {
	keys, err := tensor.FromRows([][]float32{{3}, {1}, {1}, {0}})
	require.NoError(t, err)

	res := BruteForceSearch(keys, []float32{0}, 3, distance.SquaredL2)
	require.Len(t, res, 3)
	assert.Equal(t, []SearchResult{{ID: 3, Distance: 0}, {ID: 1, Distance: 1}, {ID: 2, Distance: 1}}, res)
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{ID: 1}, {ID: 2}}
	assert.Equal(t, 1.0, ComputeRecall(truth, []SearchResult{{ID: 2}, {ID: 1}}))
	assert.Equal(t, 0.5, ComputeRecall(truth, []SearchResult{{ID: 2}, {ID: 9}}))
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
}
