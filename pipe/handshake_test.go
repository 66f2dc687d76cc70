package pipe

import (
	"bytes"
	"testing"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/stretchr/testify/require"
)

func TestHandshakeSucceedsOnMatchingSecret(t *testing.T) {
	secret := NewSecret()
	var buf bytes.Buffer
	require.NoError(t, WriteSecret(&buf, secret))
	require.NoError(t, VerifySecret(&buf, secret))
}

func TestHandshakeFailsOnMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSecret(&buf, NewSecret()))
	err := VerifySecret(&buf, NewSecret())
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.AccessDenied))
}

func TestHandshakeFailsOnShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 2, 3})
	err := VerifySecret(&buf, NewSecret())
	require.Error(t, err)
	require.True(t, bferr.Is(err, bferr.AccessDenied))
}

func TestSecretsAreRandom(t *testing.T) {
	require.NotEqual(t, NewSecret(), NewSecret())
}
