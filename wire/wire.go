// Package wire implements the length-prefixed binary codec spec.md section
// 4.1 (C1) describes: numbers, 64-bit numbers, and UTF-16LE strings written
// to and read from a growing byte buffer with an offset cursor.
//
// Encoding is canonical: little-endian, no alignment padding, strings are a
// u32 character count followed by that many UTF-16LE code units with no
// terminator. The framing discipline (explicit length prefixes, a cursor
// that never trusts the buffer to be long enough) is grounded on
// quarry/ipc/frame.go's FrameDecoder; here the "frame" is an individual
// field rather than a whole message, so the plain standard library
// encoding/binary primitives are a closer fit than the msgpack framing that
// package uses for opaque payloads — see DESIGN.md.
package wire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Buffer is a growable byte buffer with a read cursor, used both to build
// outgoing wire messages and to parse incoming ones.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer returns an empty write buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// NewReader wraps existing bytes for reading from offset 0.
func NewReader(data []byte) *Buffer { return &Buffer{data: data} }

// Bytes returns the buffer's contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes written or available to read.
func (b *Buffer) Len() int { return len(b.data) }

// Pos returns the current read cursor offset.
func (b *Buffer) Pos() int { return b.pos }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// WriteU32 appends a little-endian 32-bit unsigned integer.
func (b *Buffer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// WriteU64 appends a little-endian 64-bit unsigned integer.
func (b *Buffer) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// WriteI64 appends a little-endian 64-bit signed integer.
func (b *Buffer) WriteI64(v int64) { b.WriteU64(uint64(v)) }

// WriteBytes appends raw bytes verbatim (used for GUIDs and other
// fixed-size fields the section header needs without a length prefix).
func (b *Buffer) WriteBytes(v []byte) { b.data = append(b.data, v...) }

// WriteString appends a u32 character count followed by that many
// UTF-16LE code units. No terminator is written.
func (b *Buffer) WriteString(s string) {
	units := utf16.Encode([]rune(s))
	b.WriteU32(uint32(len(units)))
	for _, u := range units {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], u)
		b.data = append(b.data, tmp[:]...)
	}
}

// ReadU32 reads a little-endian 32-bit unsigned integer, advancing the cursor.
func (b *Buffer) ReadU32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, bferr.New(bferr.ShortRead, "wire.ReadU32")
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos : b.pos+4])
	b.pos += 4
	return v, nil
}

// ReadU64 reads a little-endian 64-bit unsigned integer, advancing the cursor.
func (b *Buffer) ReadU64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, bferr.New(bferr.ShortRead, "wire.ReadU64")
	}
	v := binary.LittleEndian.Uint64(b.data[b.pos : b.pos+8])
	b.pos += 8
	return v, nil
}

// ReadI64 reads a little-endian 64-bit signed integer, advancing the cursor.
func (b *Buffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// ReadBytes reads n raw bytes verbatim, advancing the cursor.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, bferr.New(bferr.ShortRead, "wire.ReadBytes")
	}
	v := b.data[b.pos : b.pos+n]
	b.pos += n
	return v, nil
}

// ReadString reads a u32 character count followed by that many UTF-16LE
// code units, advancing the cursor.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadU32()
	if err != nil {
		return "", bferr.Wrap(bferr.ShortRead, "wire.ReadString", err)
	}
	byteLen := int(n) * 2
	if b.Remaining() < byteLen {
		return "", bferr.New(bferr.ShortRead, "wire.ReadString")
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b.data[b.pos : b.pos+2])
		b.pos += 2
	}
	return string(utf16.Decode(units)), nil
}

// Skip advances the cursor by n bytes without reading, failing if that
// would move the cursor past the end of the buffer.
func (b *Buffer) Skip(n int) error {
	if b.Remaining() < n {
		return bferr.New(bferr.ShortRead, "wire.Skip")
	}
	b.pos += n
	return nil
}

// Reset rewinds the read cursor to the start without discarding data.
func (b *Buffer) Reset() { b.pos = 0 }

// ExpectU32 reads a u32 and fails with corrupt_format if it does not equal want.
func (b *Buffer) ExpectU32(want uint32, field string) error {
	got, err := b.ReadU32()
	if err != nil {
		return err
	}
	if got != want {
		return bferr.Wrap(bferr.CorruptFormat, "wire.ExpectU32",
			fmt.Errorf("%s: want %#x got %#x", field, want, got))
	}
	return nil
}
