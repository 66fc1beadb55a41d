package hash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32C(t *testing.T) {
	// Check value of the Castagnoli polynomial.
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))
	assert.Equal(t, "4waSgw==", Base64(0xE3069283))
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	_, err := w.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = w.Write([]byte("6789"))
	require.NoError(t, err)

	assert.Equal(t, "123456789", buf.String())
	assert.Equal(t, int64(9), w.Size())
	assert.Equal(t, CRC32C([]byte("123456789")), w.Sum32())
}
