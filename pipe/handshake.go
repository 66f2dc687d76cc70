package pipe

import (
	"io"

	"github.com/google/uuid"

	"github.com/pithecene-io/bundleforge/bferr"
)

// secretLen is the byte length of the per-session handshake secret. A
// uuid.UUID is a convenient fixed-size random value to reuse here, the
// same way quarry/runtime/fanout.go reaches for uuid.New() for run and
// session identity rather than hand-rolling a random-byte generator.
const secretLen = 16

// NewSecret generates a fresh per-session handshake secret.
func NewSecret() [secretLen]byte {
	return [secretLen]byte(uuid.New())
}

// WriteSecret is the child side of the handshake: write the secret the
// parent is expected to verify byte-for-byte before accepting any further
// message on this connection.
func WriteSecret(w io.Writer, secret [secretLen]byte) error {
	if _, err := w.Write(secret[:]); err != nil {
		return bferr.Wrap(bferr.IO, "pipe.WriteSecret", err)
	}
	return nil
}

// VerifySecret is the parent side: read secretLen bytes and compare them
// to want byte-for-byte, failing with access_denied on any mismatch
// (wrong secret, short read, or a peer that never authenticates).
func VerifySecret(r io.Reader, want [secretLen]byte) error {
	var got [secretLen]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return bferr.Wrap(bferr.AccessDenied, "pipe.VerifySecret", err)
	}
	if got != want {
		return bferr.New(bferr.AccessDenied, "pipe.VerifySecret")
	}
	return nil
}
