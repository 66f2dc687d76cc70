// Package variant implements the tagged value spec.md section 4.2 (C2)
// describes: {none, integer-64, version-64, string}, with a "hidden" flag
// that encrypts the string representation at rest.
//
// Hidden values use AES-GCM (crypto/aes, crypto/cipher) with a per-process
// random key. No repository in the example corpus imports a third-party
// AEAD library for this kind of in-memory secret protection — see
// DESIGN.md for why the standard library is the grounded choice here.
package variant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Type is the tag discriminating a Variant's payload.
type Type int

const (
	TypeNone Type = iota
	TypeNumeric
	TypeVersion
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeVersion:
		return "version"
	case TypeString:
		return "string"
	default:
		return "none"
	}
}

// processKey is generated once per process and used to encrypt hidden
// string values in memory. It is never persisted or logged.
var (
	processKeyOnce sync.Once
	processKey     [32]byte
)

func ensureProcessKey() {
	processKeyOnce.Do(func() {
		if _, err := rand.Read(processKey[:]); err != nil {
			// crypto/rand failing is fatal to the process; there is no
			// sensible degraded mode for a secret-hiding primitive.
			panic(fmt.Sprintf("variant: failed to seed process key: %v", err))
		}
	})
}

// Variant is a tagged value with optional at-rest encryption for its
// string form when Hidden is set.
type Variant struct {
	typ      Type
	numeric  int64
	version  uint64
	str      string // plaintext when !hidden
	cipher   []byte // encrypted bytes when hidden; str is empty
	nonce    []byte
	hidden   bool
}

// New returns a none-typed Variant.
func New() *Variant { return &Variant{typ: TypeNone} }

// Type returns the variant's current tag.
func (v *Variant) Type() Type { return v.typ }

// IsHidden reports whether encryption-at-rest is enabled for this variant.
func (v *Variant) IsHidden() bool { return v.hidden }

// SetNumeric sets the variant to a signed 64-bit integer.
func (v *Variant) SetNumeric(n int64) {
	v.reset()
	v.typ = TypeNumeric
	v.numeric = n
}

// SetVersion sets the variant to a packed four-field version.
func (v *Variant) SetVersion(ver uint64) {
	v.reset()
	v.typ = TypeVersion
	v.version = ver
}

// SetString sets the variant to a string value, encrypting it at rest if
// Hidden is enabled.
func (v *Variant) SetString(s string) {
	hidden := v.hidden
	v.reset()
	v.typ = TypeString
	v.hidden = hidden
	if hidden {
		v.encryptAndStore(s)
	} else {
		v.str = s
	}
}

// SetEncryption turns hidden-at-rest storage on or off. Turning it on
// immediately re-encrypts any current string value; turning it off
// decrypts and clears the ciphertext.
func (v *Variant) SetEncryption(on bool) {
	if v.hidden == on {
		return
	}
	if v.typ == TypeString {
		plain := v.plainString()
		v.hidden = on
		if on {
			v.encryptAndStore(plain)
		} else {
			v.str = plain
			v.cipher = nil
			v.nonce = nil
		}
	} else {
		v.hidden = on
	}
}

// SetValue copies other's value and hidden flag into v.
func (v *Variant) SetValue(other *Variant) {
	v.reset()
	v.typ = other.typ
	v.numeric = other.numeric
	v.version = other.version
	v.hidden = other.hidden
	if other.typ == TypeString {
		v.SetString(other.plainString())
	}
}

// Copy returns a deep, independent copy of v.
func (v *Variant) Copy() *Variant {
	out := New()
	out.SetValue(v)
	return out
}

// GetNumeric returns the variant's value as int64, failing with
// not_found if the variant is none.
func (v *Variant) GetNumeric() (int64, error) {
	switch v.typ {
	case TypeNumeric:
		return v.numeric, nil
	case TypeVersion:
		return int64(v.version), nil
	case TypeString:
		n, err := strconv.ParseInt(v.plainString(), 10, 64)
		if err != nil {
			return 0, bferr.Wrap(bferr.TypeMismatch, "variant.GetNumeric", err)
		}
		return n, nil
	case TypeNone:
		return 0, bferr.New(bferr.NotFound, "variant.GetNumeric")
	default:
		return 0, bferr.New(bferr.Unexpected, "variant.GetNumeric")
	}
}

// GetVersion returns the variant's value as a packed version u64, failing
// with not_found if the variant is none.
func (v *Variant) GetVersion() (uint64, error) {
	switch v.typ {
	case TypeVersion:
		return v.version, nil
	case TypeNumeric:
		if v.numeric < 0 {
			return 0, bferr.New(bferr.TypeMismatch, "variant.GetVersion")
		}
		return uint64(v.numeric), nil
	case TypeString:
		ver, err := ParseVersion(v.plainString())
		if err != nil {
			return 0, bferr.Wrap(bferr.TypeMismatch, "variant.GetVersion", err)
		}
		return ver, nil
	case TypeNone:
		return 0, bferr.New(bferr.NotFound, "variant.GetVersion")
	default:
		return 0, bferr.New(bferr.Unexpected, "variant.GetVersion")
	}
}

// GetString returns the variant's plaintext string representation,
// failing with not_found if the variant is none.
func (v *Variant) GetString() (string, error) {
	switch v.typ {
	case TypeNumeric:
		return strconv.FormatInt(v.numeric, 10), nil
	case TypeVersion:
		return FormatVersion(v.version), nil
	case TypeString:
		return v.plainString(), nil
	case TypeNone:
		return "", bferr.New(bferr.NotFound, "variant.GetString")
	default:
		return "", bferr.New(bferr.Unexpected, "variant.GetString")
	}
}

// ChangeType converts v in place to target's encoding, per the lossless
// rules in spec.md section 3. Identity conversions are no-ops. A failed
// conversion resets v to none.
func (v *Variant) ChangeType(target Type) error {
	if v.typ == target {
		return nil
	}
	if v.typ == TypeNone {
		return bferr.New(bferr.NotFound, "variant.ChangeType")
	}

	switch target {
	case TypeNumeric:
		n, err := v.GetNumeric()
		if err != nil {
			v.reset()
			return err
		}
		v.SetNumeric(n)
	case TypeVersion:
		ver, err := v.GetVersion()
		if err != nil {
			v.reset()
			return err
		}
		v.SetVersion(ver)
	case TypeString:
		s, err := v.GetString()
		if err != nil {
			v.reset()
			return err
		}
		v.SetString(s)
	case TypeNone:
		v.reset()
	default:
		v.reset()
		return bferr.New(bferr.Unexpected, "variant.ChangeType")
	}
	return nil
}

// Uninitialize zeroes plaintext memory on every exit path, per spec.md
// section 4.2.
func (v *Variant) Uninitialize() {
	v.reset()
}

func (v *Variant) reset() {
	v.typ = TypeNone
	v.numeric = 0
	v.version = 0
	zero(v.str)
	v.str = ""
	for i := range v.cipher {
		v.cipher[i] = 0
	}
	v.cipher = nil
	v.nonce = nil
}

// zero is a best-effort attempt to scrub a string's backing bytes. Go
// strings are immutable and may have been copied by the runtime, so this
// is defense in depth rather than a guarantee.
func zero(s string) {
	b := []byte(s)
	for i := range b {
		b[i] = 0
	}
}

func (v *Variant) plainString() string {
	if !v.hidden {
		return v.str
	}
	if v.cipher == nil {
		return ""
	}
	ensureProcessKey()
	block, err := aes.NewCipher(processKey[:])
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	plain, err := gcm.Open(nil, v.nonce, v.cipher, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

func (v *Variant) encryptAndStore(plain string) {
	ensureProcessKey()
	block, err := aes.NewCipher(processKey[:])
	if err != nil {
		v.cipher, v.nonce = nil, nil
		return
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		v.cipher, v.nonce = nil, nil
		return
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		v.cipher, v.nonce = nil, nil
		return
	}
	v.nonce = nonce
	v.cipher = gcm.Seal(nil, nonce, []byte(plain), nil)
	v.str = ""
}

// RedactedMask is the fixed mask hidden-variable logs substitute for the
// real plaintext, per spec.md section 4.3.
const RedactedMask = "*****"

// ParseVersion parses a dotted four-field "a.b.c.d" version string into a
// packed 64-bit integer (high to low), per spec.md section 3.
func ParseVersion(s string) (uint64, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("version %q: expected 4 dotted fields", s)
	}
	var packed uint64
	for _, p := range parts {
		field, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("version %q: field %q: %w", s, p, err)
		}
		packed = (packed << 16) | field
	}
	return packed, nil
}

// FormatVersion formats a packed 64-bit version as "a.b.c.d".
func FormatVersion(v uint64) string {
	a := (v >> 48) & 0xffff
	b := (v >> 32) & 0xffff
	c := (v >> 16) & 0xffff
	d := v & 0xffff
	return fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
}
