// Package container implements the pull-stream reader over one attached
// container's byte range.
//
// The virtual-file-pointer requirement in the specification — seeks
// within a sub-range of a shared file handle must translate to absolute
// file positions before each real read — is exactly what io.SectionReader
// already does in the standard library: it holds a logical cursor,
// clamps it to [off, off+n), and issues a ReadAt at the translated
// absolute offset on every read. Reimplementing that arithmetic by hand
// would just be a worse io.SectionReader, so this package builds directly
// on it instead of tracking its own offset table.
//
// The buffered-reader-over-a-raw-handle layering mirrors
// quarry/ipc.NewFrameDecoder wrapping a raw io.Reader in a bufio.Reader to
// cut syscall overhead for many small reads; here that's many small
// stream headers rather than many small IPC frames.
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/pithecene-io/bundleforge/bferr"
)

type state int

const (
	stateIdle state = iota
	stateNextPending
	stateNameAvailable
	stateBodyPending
	stateClosed
)

// Reader is the pull-stream reader for one container's byte range. It is
// not safe for concurrent use by multiple goroutines: the specification's
// single-worker-thread state machine maps directly onto an unsynchronized
// Go value used from one goroutine at a time.
type Reader struct {
	section *io.SectionReader
	buf     *bufio.Reader
	state   state

	currentName string
	currentSize int64
	remaining   int64 // bytes of the current stream body not yet consumed
}

// Open initializes a reader over the container occupying [offset, offset+size)
// of the file at path.
func Open(path string, offset, size int64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "container.Open", err)
	}
	sec := io.NewSectionReader(f, offset, size)
	return &Reader{
		section: sec,
		buf:     bufio.NewReader(sec),
		state:   stateNextPending,
	}, nil
}

// OpenReaderAt is Open's variant for callers that already hold an open
// handle (e.g. the engine's own running-executable handle), avoiding a
// second os.Open of the same file.
func OpenReaderAt(ra io.ReaderAt, offset, size int64) *Reader {
	sec := io.NewSectionReader(ra, offset, size)
	return &Reader{
		section: sec,
		buf:     bufio.NewReader(sec),
		state:   stateNextPending,
	}
}

// ErrEnd is returned by NextStream when the container has no more payload
// streams.
var ErrEnd = errors.New("container: end of stream")

// readHeader reads this container format's per-entry header: a u32 UTF-8
// name length, the name bytes, and a u64 body length. The body follows
// immediately.
func (r *Reader) readHeader() (name string, bodyLen int64, err error) {
	var nameLen uint32
	if err := binary.Read(r.buf, binary.LittleEndian, &nameLen); err != nil {
		if errors.Is(err, io.EOF) {
			return "", 0, ErrEnd
		}
		return "", 0, bferr.Wrap(bferr.ShortRead, "container.readHeader", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r.buf, nameBytes); err != nil {
		return "", 0, bferr.Wrap(bferr.ShortRead, "container.readHeader", err)
	}
	var size uint64
	if err := binary.Read(r.buf, binary.LittleEndian, &size); err != nil {
		return "", 0, bferr.Wrap(bferr.ShortRead, "container.readHeader", err)
	}
	return string(nameBytes), int64(size), nil
}

// NextStream advances to the next logical payload stream and returns its
// name, or ErrEnd if the container is exhausted. The previous stream's
// body must already have been disposed of via StreamToFile,
// StreamToBuffer, or SkipStream.
func (r *Reader) NextStream() (string, error) {
	switch r.state {
	case stateClosed:
		return "", bferr.New(bferr.InvalidArgument, "container.NextStream")
	case stateBodyPending:
		return "", bferr.New(bferr.InvalidArgument, "container.NextStream")
	}

	name, size, err := r.readHeader()
	if err != nil {
		if errors.Is(err, ErrEnd) {
			r.state = stateClosed
			return "", ErrEnd
		}
		return "", err
	}

	r.currentName = name
	r.currentSize = size
	r.remaining = size
	r.state = stateBodyPending
	return name, nil
}

func (r *Reader) requireBodyPending(op string) error {
	if r.state != stateBodyPending {
		return bferr.New(bferr.InvalidArgument, op)
	}
	return nil
}

// StreamToFile writes the current stream's body to path, then transitions
// back to next_pending.
func (r *Reader) StreamToFile(path string) error {
	if err := r.requireBodyPending("container.StreamToFile"); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return bferr.Wrap(bferr.IO, "container.StreamToFile", err)
	}
	defer out.Close()

	if _, err := io.CopyN(out, r.buf, r.remaining); err != nil {
		return bferr.Wrap(bferr.IO, "container.StreamToFile", err)
	}
	r.remaining = 0
	r.state = stateNextPending
	return nil
}

// StreamToBuffer reads the current stream's body into memory, then
// transitions back to next_pending.
func (r *Reader) StreamToBuffer() ([]byte, error) {
	if err := r.requireBodyPending("container.StreamToBuffer"); err != nil {
		return nil, err
	}
	body := make([]byte, r.remaining)
	if _, err := io.ReadFull(r.buf, body); err != nil {
		return nil, bferr.Wrap(bferr.IO, "container.StreamToBuffer", err)
	}
	r.remaining = 0
	r.state = stateNextPending
	return body, nil
}

// SkipStream discards the current stream's body without materializing it.
func (r *Reader) SkipStream() error {
	if err := r.requireBodyPending("container.SkipStream"); err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, r.buf, r.remaining); err != nil {
		return bferr.Wrap(bferr.IO, "container.SkipStream", err)
	}
	r.remaining = 0
	r.state = stateNextPending
	return nil
}

// CurrentName returns the name yielded by the most recent NextStream call.
func (r *Reader) CurrentName() string { return r.currentName }

// CurrentSize returns the byte size of the current stream's body.
func (r *Reader) CurrentSize() int64 { return r.currentSize }

// Close releases the reader. A close from any state transitions to
// closed; it is always safe to call and idempotent.
func (r *Reader) Close() error {
	r.state = stateClosed
	if r.section == nil {
		return nil
	}
	outer, _, _ := r.section.Outer()
	r.section = nil
	if closer, ok := outer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
