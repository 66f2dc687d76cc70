package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripU32(t *testing.T) {
	b := NewBuffer()
	b.WriteU32(0xdeadbeef)
	r := NewReader(b.Bytes())
	v, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)
}

func TestRoundTripU64(t *testing.T) {
	b := NewBuffer()
	b.WriteU64(0x0102030405060708)
	r := NewReader(b.Bytes())
	v, err := r.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v)
}

func TestRoundTripString(t *testing.T) {
	b := NewBuffer()
	b.WriteString("hello, 世界")
	r := NewReader(b.Bytes())
	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello, 世界", s)
}

func TestRoundTripSequence(t *testing.T) {
	b := NewBuffer()
	b.WriteU32(1)
	b.WriteString("name")
	b.WriteU64(42)
	b.WriteI64(-7)

	r := NewReader(b.Bytes())
	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), u32)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "name", s)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), u64)

	i64, err := r.ReadI64()
	require.NoError(t, err)
	require.Equal(t, int64(-7), i64)

	require.Equal(t, 0, r.Remaining())
}

func TestShortReadFails(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_, err := r.ReadU32()
	require.Error(t, err)
}

func TestReadStringShortPayloadFails(t *testing.T) {
	b := NewBuffer()
	b.WriteU32(5) // claims 5 chars but no payload follows
	r := NewReader(b.Bytes())
	_, err := r.ReadString()
	require.Error(t, err)
}
