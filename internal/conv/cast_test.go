//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToUint32(0)
		assert.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("valid positive", func(t *testing.T) {
		got, err := IntToUint32(123)
		assert.NoError(t, err)
		assert.Equal(t, uint32(123), got)
	})

	t.Run("invalid negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.Error(t, err)
	})

	t.Run("invalid too large", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestInt64ToInt(t *testing.T) {
	got, err := Int64ToInt(-7)
	require.NoError(t, err)
	assert.Equal(t, -7, got)
}

func TestMulInt(t *testing.T) {
	got, err := MulInt(7661274, 1024, 2)
	require.NoError(t, err)
	assert.Equal(t, 7661274*1024*2, got)

	got, err = MulInt()
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = MulInt(math.MaxInt, 2)
	assert.Error(t, err)

	_, err = MulInt(3, -1)
	assert.Error(t, err)
}
