// Package section locates the bundle engine's own embedded metadata
// section inside the running executable image and derives the byte
// ranges of its attached containers.
//
// This generalizes the extraction pattern in
// quarry/executor/embed.go: that file embeds a payload at build time via
// go:embed and extracts it once, checksummed, to a temp path. There is no
// build-time payload here — the "payload" is the running binary's own
// tail, appended after the engine itself by an external packaging step —
// so this package walks the binary's PE-style section table at startup
// instead of reading an embed.FS. Unlike embed.go, nothing is cached:
// Read parses the section afresh on every call and exposes the result
// through named accessors.
package section

import (
	"bytes"
	"debug/pe"
	"io"
	"os"

	"github.com/pithecene-io/bundleforge/bferr"
	"github.com/pithecene-io/bundleforge/wire"
)

// SectionName is the fixed 8-byte ASCII name the packaging tool gives the
// engine's metadata section.
const SectionName = ".wixburn"

const (
	magicValue  = uint32(0x00f14300)
	wantVersion = uint32(2)
)

// ContainerInfo describes one attached container's byte range within the
// bundle file.
type ContainerInfo struct {
	Offset  int64
	Size    int64
	Present bool
}

// Descriptor is the parsed contents of the .wixburn section plus the
// derived file-level offsets needed to locate attached containers.
type Descriptor struct {
	BundleGUID               [16]byte
	StubSize                 uint32
	OriginalChecksum         uint32
	OriginalSignatureOffset  uint32
	OriginalSignatureSize    uint32
	Format                   uint32
	ContainerSizes           []uint32
	EngineSize               int64
	BundleSize               int64
}

// Read parses path's (normally the running executable's) .wixburn
// section and returns its descriptor. It validates the magic and version
// constants and fails with tampered if the section's bundle_guid, when
// compared against inMemoryGUID, does not match — inMemoryGUID is the
// value the engine compiled with, supplied by the caller since this
// package has no notion of "the current process's own identity" on its
// own.
func Read(path string, inMemoryGUID [16]byte) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "section.Read", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "section.Read", err)
	}
	bundleSize := stat.Size()

	pf, err := pe.NewFile(f)
	if err != nil {
		return nil, bferr.Wrap(bferr.CorruptFormat, "section.Read", err)
	}
	defer pf.Close()

	sec := pf.Section(SectionName)
	if sec == nil {
		return nil, bferr.New(bferr.NotFound, "section.Read").WithBundle(SectionName)
	}

	raw, err := sec.Data()
	if err != nil {
		return nil, bferr.Wrap(bferr.IO, "section.Read", err)
	}

	desc, err := parseBody(raw)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(desc.BundleGUID[:], inMemoryGUID[:]) {
		return nil, bferr.New(bferr.Tampered, "section.Read")
	}

	desc.BundleSize = bundleSize
	desc.EngineSize = deriveEngineSize(pf, desc)

	return desc, nil
}

func parseBody(raw []byte) (*Descriptor, error) {
	buf := wire.NewReader(raw)

	if err := buf.ExpectU32(magicValue, "magic"); err != nil {
		return nil, err
	}
	if err := buf.ExpectU32(wantVersion, "version"); err != nil {
		return nil, err
	}
	guidBytes, err := buf.ReadBytes(16)
	if err != nil {
		return nil, bferr.Wrap(bferr.ShortRead, "section.parseBody", err)
	}
	stubSize, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	origChecksum, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	origSigOffset, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	origSigSize, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	format, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	count, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}

	sizes := make([]uint32, count)
	for i := range sizes {
		sizes[i], err = buf.ReadU32()
		if err != nil {
			return nil, bferr.Wrap(bferr.ShortRead, "section.parseBody", err)
		}
	}

	d := &Descriptor{
		StubSize:                stubSize,
		OriginalChecksum:        origChecksum,
		OriginalSignatureOffset: origSigOffset,
		OriginalSignatureSize:   origSigSize,
		Format:                  format,
		ContainerSizes:          sizes,
	}
	copy(d.BundleGUID[:], guidBytes)
	return d, nil
}

// deriveEngineSize implements the three-way fallback in the
// specification: prefer the signed-prefix end, then the binary's own
// certificate-table directory, then stub_size plus the first container's
// size.
func deriveEngineSize(pf *pe.File, d *Descriptor) int64 {
	if d.OriginalSignatureSize != 0 {
		return int64(d.OriginalSignatureOffset) + int64(d.OriginalSignatureSize)
	}
	if off, size, ok := certificateTableDirectory(pf); ok {
		return int64(off) + int64(size)
	}
	if len(d.ContainerSizes) > 0 {
		return int64(d.StubSize) + int64(d.ContainerSizes[0])
	}
	return int64(d.StubSize)
}

// certificateTableDirectory reads the PE optional header's certificate
// table data directory (index 4), handling both PE32 and PE32+ layouts.
func certificateTableDirectory(pf *pe.File) (offset, size uint32, ok bool) {
	if pf == nil {
		return 0, 0, false
	}
	const certTableIndex = 4
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if certTableIndex >= len(oh.DataDirectory) {
			return 0, 0, false
		}
		dd := oh.DataDirectory[certTableIndex]
		return dd.VirtualAddress, dd.Size, dd.VirtualAddress != 0
	case *pe.OptionalHeader64:
		if certTableIndex >= len(oh.DataDirectory) {
			return 0, 0, false
		}
		dd := oh.DataDirectory[certTableIndex]
		return dd.VirtualAddress, dd.Size, dd.VirtualAddress != 0
	default:
		return 0, 0, false
	}
}

// AttachedContainerInfo returns the byte range of the container at index
// within the bundle file, per the offset formula in the specification:
// container 0 begins at stub_size; container k>=1 begins at engine_size
// plus the sum of container_sizes[1..k-1].
func (d *Descriptor) AttachedContainerInfo(index int) (ContainerInfo, error) {
	if index < 0 || index >= len(d.ContainerSizes) {
		return ContainerInfo{}, bferr.New(bferr.InvalidArgument, "section.AttachedContainerInfo")
	}

	var offset int64
	if index == 0 {
		offset = int64(d.StubSize)
	} else {
		offset = d.EngineSize
		for j := 1; j < index; j++ {
			offset += int64(d.ContainerSizes[j])
		}
	}
	size := int64(d.ContainerSizes[index])
	present := offset+size <= d.BundleSize

	return ContainerInfo{Offset: offset, Size: size, Present: present}, nil
}

// ReadRange opens path and returns an io.SectionReader limited to info's
// byte range, ready to be handed to container.OpenReaderAt.
func ReadRange(path string, info ContainerInfo) (*io.SectionReader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, bferr.Wrap(bferr.IO, "section.ReadRange", err)
	}
	return io.NewSectionReader(f, info.Offset, info.Size), f, nil
}
