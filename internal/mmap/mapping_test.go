package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestOpen(t *testing.T) {
	path := writeFile(t, []byte("hello, mmap"))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 11, m.Size())
	assert.Equal(t, []byte("hello, mmap"), m.Bytes())
	assert.Equal(t, path, m.Path())
	assert.NoError(t, m.Advise(AccessSequential))
	assert.NoError(t, m.Advise(AccessRandom))
}

func TestOpen_Empty(t *testing.T) {
	m, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Size())
	assert.Nil(t, m.Bytes())
	assert.NoError(t, m.Advise(AccessWillNeed))
	assert.NoError(t, m.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSlice(t *testing.T) {
	m, err := Open(writeFile(t, []byte("0123456789")))
	require.NoError(t, err)
	defer m.Close()

	b, err := m.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), b)

	_, err = m.Slice(8, 5)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = m.Slice(-1, 1)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestReadAt(t *testing.T) {
	m, err := Open(writeFile(t, []byte("abcdef")))
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, 4)
	n, err := m.ReadAt(buf, 4)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte("ef"), buf[:n])

	n, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestClose_Idempotent(t *testing.T) {
	m, err := Open(writeFile(t, []byte("x")))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())

	_, err = m.Slice(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Advise(AccessDefault), ErrClosed)
}
