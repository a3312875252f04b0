package ebmlio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_ElementHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterAt(&buf, 100)

	n, err := WriteElementHeader(w, 0x1F43B675, 300)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(106), w.Pos())
	assert.Equal(t, []byte{0x1F, 0x43, 0xB6, 0x75, 0x41, 0x2C}, buf.Bytes())
	assert.Equal(t, 6, ElementHeaderSize(0x1F43B675, 300))
}

func TestReader_ElementHeader(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xA3, 0x81, 0x00, 0x1F, 0x43, 0xB6, 0x75, 0xFF}))

	id, size, n, err := r.ReadElementHeader()
	require.NoError(t, err)
	assert.Equal(t, ID(0xA3), id)
	assert.Equal(t, uint64(1), size)
	assert.Equal(t, 2, n)

	require.NoError(t, r.Skip(1))

	id, size, n, err = r.ReadElementHeader()
	require.NoError(t, err)
	assert.Equal(t, ID(0x1F43B675), id)
	assert.Equal(t, UnknownSize, size)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(8), r.Pos())
}

func TestReader_Limit(t *testing.T) {
	parent := NewReader(bytes.NewBufferString("abcdefgh"))
	sub := parent.Limit(3)

	b := make([]byte, 5)
	n, err := sub.Read(b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(b[:n]))
	assert.Equal(t, int64(0), sub.Remaining())

	_, err = sub.Read(b)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(3), parent.Pos())

	sub = parent.Limit(2)
	assert.Equal(t, io.ErrUnexpectedEOF, sub.Skip(3))
	require.NoError(t, sub.Skip(2))
	assert.Equal(t, int64(5), parent.Pos())

	c, err := parent.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('f'), c)
}

func TestReader_SkipPastEnd(t *testing.T) {
	r := NewReader(bytes.NewBufferString("ab"))
	assert.Equal(t, io.ErrUnexpectedEOF, r.Skip(5))
}

func TestReader_ReadByteEOF(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x42}))
	c, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), c)

	_, err = r.ReadByte()
	assert.Equal(t, io.EOF, err)
	_, _, _, err = r.ReadElementHeader()
	assert.Equal(t, io.EOF, err)
}

func TestReader_ReadSignedVint(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xBE, 0xC1, 0x5F, 0xFF}))
	v, n, err := r.ReadSignedVint()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
	assert.Equal(t, 1, n)

	v, _, err = r.ReadSignedVint()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, n, err = r.ReadSignedVint()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, 2, n)
}
