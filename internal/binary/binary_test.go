package binary

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU8(0xAB)
	w.WriteI8(-2)
	w.WriteU16(0x1234)
	w.WriteU32(0xDEADBEEF)
	w.WriteU64(0x0102030405060708)
	w.WriteI64(-42)
	w.WriteF64(math.Pi)

	require.Equal(t, []byte{0xAB}, w.Bytes()[:1])

	r := NewReader(w.Bytes())

	u8, err := r.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xAB), u8)

	i8, err := r.ReadI8()
	require.NoError(t, err)
	require.Equal(t, int8(-2), i8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)

	i64, err := r.ReadI64()
	require.NoError(t, err)
	require.Equal(t, int64(-42), i64)

	f64, err := r.ReadF64()
	require.NoError(t, err)
	require.Equal(t, math.Pi, f64)

	require.Equal(t, 0, r.Remaining())
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_, err := r.ReadU32()
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestOverwriteU32(t *testing.T) {
	w := NewWriter()
	pos := w.Len()
	w.WriteU32(0)
	w.WriteU8(0xFF)
	w.OverwriteU32(pos, 0x11223344)

	r := NewReader(w.Bytes())
	v, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x11223344), v)
	tail, err := r.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xFF), tail)
}

func TestOverwriteU32OutOfRange(t *testing.T) {
	w := NewWriter()
	w.WriteU8(1)
	require.Panics(t, func() { w.OverwriteU32(0, 0) })
}
