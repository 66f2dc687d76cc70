package variant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoneGetFails(t *testing.T) {
	v := New()
	_, err := v.GetString()
	require.Error(t, err)
}

func TestNumericStringRoundTrip(t *testing.T) {
	v := New()
	v.SetNumeric(-42)
	s, err := v.GetString()
	require.NoError(t, err)
	require.Equal(t, "-42", s)

	v2 := New()
	v2.SetString("-42")
	require.NoError(t, v2.ChangeType(TypeNumeric))
	n, err := v2.GetNumeric()
	require.NoError(t, err)
	require.Equal(t, int64(-42), n)
}

func TestVersionStringRoundTrip(t *testing.T) {
	v := New()
	v.SetVersion(0x0001000200030004)
	s, err := v.GetString()
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", s)

	ver, err := ParseVersion(s)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0001000200030004), ver)
}

func TestChangeTypeIdentityNoOp(t *testing.T) {
	v := New()
	v.SetString("hello")
	require.NoError(t, v.ChangeType(TypeString))
	s, err := v.GetString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestChangeTypeNumericToVersionLossless(t *testing.T) {
	v := New()
	v.SetNumeric(0x0001000200030004)
	require.NoError(t, v.ChangeType(TypeVersion))
	ver, err := v.GetVersion()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0001000200030004), ver)
}

func TestChangeTypeNumericToVersionFailsOnNegative(t *testing.T) {
	v := New()
	v.SetNumeric(-1)
	err := v.ChangeType(TypeVersion)
	require.Error(t, err)
	require.Equal(t, TypeNone, v.Type())
}

func TestHiddenStringRoundTrips(t *testing.T) {
	v := New()
	v.SetEncryption(true)
	v.SetString("s3cr3t")
	require.True(t, v.IsHidden())

	s, err := v.GetString()
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", s)
}

func TestHiddenDisableDecrypts(t *testing.T) {
	v := New()
	v.SetEncryption(true)
	v.SetString("plain-again")
	v.SetEncryption(false)
	require.False(t, v.IsHidden())
	s, err := v.GetString()
	require.NoError(t, err)
	require.Equal(t, "plain-again", s)
}

func TestCopyIsIndependent(t *testing.T) {
	v := New()
	v.SetString("orig")
	c := v.Copy()
	v.SetString("changed")
	s, err := c.GetString()
	require.NoError(t, err)
	require.Equal(t, "orig", s)
}

func TestRoundTripProperty(t *testing.T) {
	// Variant round-trip property from spec.md section 8 property 1:
	// change_type(change_type(v, B), A) == v whenever B losslessly
	// represents v in A.
	v := New()
	v.SetNumeric(1234)
	require.NoError(t, v.ChangeType(TypeString))
	require.NoError(t, v.ChangeType(TypeNumeric))
	n, err := v.GetNumeric()
	require.NoError(t, err)
	require.Equal(t, int64(1234), n)
}
