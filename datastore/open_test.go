package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnlm/resource"
	"github.com/hupe1980/knnlm/tensor"
	"github.com/hupe1980/knnlm/testutil"
)

func writeStore(t *testing.T, keys *tensor.Matrix, values []int64, fp16 bool) string {
	t.Helper()
	base := filepath.Join(t.TempDir(), "dstore")
	w, err := Create(base, keys.Cols, fp16)
	require.NoError(t, err)
	half := keys.Rows / 2
	require.NoError(t, w.Add(keys.Slice(0, half), values[:half]))
	require.NoError(t, w.Add(keys.Slice(half, keys.Rows), values[half:]))
	assert.Equal(t, keys.Rows, w.Count())
	require.NoError(t, w.Close())
	return base
}

func TestOpen_MappedAndMaterializedAgree(t *testing.T) {
	rng := testutil.NewRNG(11)
	keys := rng.UniformMatrix(300, 16)
	values := rng.Tokens(300, 1000)
	queries := rng.UniformMatrix(20, 16)
	ctx := context.Background()

	for _, fp16 := range []bool{true, false} {
		base := writeStore(t, keys, values, fp16)
		cfg := Config{Path: base, Size: 300, Dimension: 16, FP16: fp16}

		mapped, err := Open(ctx, cfg)
		require.NoError(t, err)

		cfg.LoadToMemory = true
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
		loaded, err := Open(ctx, cfg, WithResourceController(rc))
		require.NoError(t, err)
		assert.Positive(t, rc.MemoryUsage())

		a, err := mapped.Search(ctx, queries, 8)
		require.NoError(t, err)
		b, err := loaded.Search(ctx, queries, 8)
		require.NoError(t, err)
		assert.Equal(t, a.IDs, b.IDs)
		assert.Equal(t, a.Values, b.Values)
		assert.Equal(t, a.Distances, b.Distances)

		if !fp16 {
			mem, err := NewFlat(keys, values)
			require.NoError(t, err)
			c, err := mem.Search(ctx, queries, 8)
			require.NoError(t, err)
			assert.Equal(t, c.IDs, b.IDs)
		}

		require.NoError(t, mapped.Close())
		require.NoError(t, loaded.Close())
		assert.Zero(t, rc.MemoryUsage())
	}
}

func TestOpen_MemoryBudget(t *testing.T) {
	rng := testutil.NewRNG(2)
	keys := rng.UniformMatrix(64, 4)
	base := writeStore(t, keys, rng.Tokens(64, 10), true)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	_, err := Open(context.Background(),
		Config{Path: base, Size: 64, Dimension: 4, FP16: true, LoadToMemory: true},
		WithResourceController(rc))
	assert.ErrorIs(t, err, resource.ErrMemoryBudgetExceeded)
	assert.Zero(t, rc.MemoryUsage())
}

func TestOpen_Corrupt(t *testing.T) {
	rng := testutil.NewRNG(5)
	base := writeStore(t, rng.UniformMatrix(10, 4), rng.Tokens(10, 10), true)

	_, err := Open(context.Background(), Config{Path: base, Size: 11, Dimension: 4, FP16: true})
	assert.ErrorIs(t, err, ErrCorruptDatastore)

	require.NoError(t, os.Truncate(ValuesPath(base), 40))
	_, err = Open(context.Background(), Config{Path: base, Size: 10, Dimension: 4, FP16: true})
	assert.ErrorIs(t, err, ErrCorruptDatastore)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Path: "x", Size: 1}.Validate())
	assert.Error(t, Config{Path: "x", Size: 1, Dimension: 1, Metric: "cosine"}.Validate())
	assert.NoError(t, Config{Path: "x", Size: 1, Dimension: 1, Metric: "ip"}.Validate())
	assert.Equal(t, "x_keys.npy", Config{Path: "x"}.KeysPath())
	assert.Equal(t, "x_vals.npy", Config{Path: "x"}.ValuesPath())
}

func TestWriter_DimensionMismatch(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "d"), 4, false)
	require.NoError(t, err)
	defer w.Close()

	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, w.Add(tensor.New(1, 3), []int64{1}), &dm)
}
