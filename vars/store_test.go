package vars

import (
	"testing"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/variant"
	"github.com/stretchr/testify/require"
)

func TestUnsetVariableIsNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetString("DoesNotExist")
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.NotFound))
}

func TestSetAndGetRoundTrip(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetString("MyVar", "hello", false, AnyNonBuiltin))
	got, err := s.GetString("MyVar")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestNameFoldingIsCaseInsensitive(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetString("MyVar", "v1", false, AnyNonBuiltin))
	got, err := s.GetString("MYVAR")
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	require.NoError(t, s.SetString("myvar", "v2", false, AnyNonBuiltin))
	got, err = s.GetString("MyVar")
	require.NoError(t, err)
	require.Equal(t, "v2", got)
}

func TestBuiltinRejectsOrdinaryWrite(t *testing.T) {
	s := NewStore()
	err := s.SetString("ComputerName", "attacker", false, AnyNonBuiltin)
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.BuiltinReadonly))
}

func TestOverrideBuiltinSucceeds(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.OverrideBuiltin("BundleAction", "Install"))
	got, err := s.GetString("BundleAction")
	require.NoError(t, err)
	require.Equal(t, "Install", got)
}

func TestIsHiddenDefaultsFalseForAbsent(t *testing.T) {
	s := NewStore()
	require.False(t, s.IsHidden("NeverSet"))
}

func TestSetHiddenStringRoundTrips(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetString("Secret", "topsecret", true, AnyNonBuiltin))
	require.True(t, s.IsHidden("Secret"))
	got, err := s.GetString("Secret")
	require.NoError(t, err)
	require.Equal(t, "topsecret", got)
}

func TestBuiltinLazyProviderInvokedOnce(t *testing.T) {
	s := NewStore()
	a, err := s.GetString("TempFolder")
	require.NoError(t, err)
	b, err := s.GetString("TempFolder")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Nil(t, s.vars[foldName("TempFolder")].Provider)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	src := NewStore()
	require.NoError(t, src.SetString("Plain", "value", false, AnyNonBuiltin))
	require.NoError(t, src.SetNumeric("Count", 7, AnyNonBuiltin))
	require.NoError(t, src.SetString("Hush", "shh", true, AnyNonBuiltin))

	blob := src.Serialize(false)

	dst := NewStore()
	require.NoError(t, dst.Deserialize(blob, false))

	got, err := dst.GetString("Plain")
	require.NoError(t, err)
	require.Equal(t, "value", got)

	n, err := dst.GetNumeric("Count")
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	hush, err := dst.GetString("Hush")
	require.NoError(t, err)
	require.Equal(t, "shh", hush)
	require.True(t, dst.IsHidden("Hush"))
}

func TestDeserializeRestoresPersistedBuiltin(t *testing.T) {
	src := NewStore()
	require.NoError(t, src.OverrideBuiltin("BundleAction", "Install"))
	src.mu.Lock()
	src.vars[foldName("BundleAction")].Persisted = true
	src.mu.Unlock()

	blob := src.Serialize(true)

	dst := NewStore()
	require.NoError(t, dst.Deserialize(blob, true))
	got, err := dst.GetString("BundleAction")
	require.NoError(t, err)
	require.Equal(t, "Install", got)
}

func TestSetLiteralVariantSkipsReexpansion(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SetString("Inner", "deep", false, AnyNonBuiltin))
	v := variant.New()
	v.SetString("[Inner]")
	require.NoError(t, s.SetLiteralVariant("Outer", v, false, AnyNonBuiltin))

	formatted, err := s.GetFormatted("Outer")
	require.NoError(t, err)
	require.Equal(t, "[Inner]", formatted)
}
