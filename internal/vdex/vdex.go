// Package vdex parses ART Vdex container files: the fixed or
// section-table header, the per-Dex location-checksum array, and the
// embedded Dex blobs, verifier-deps blob and quickening-info blob. Each
// format revision (006, 010, 019, 021, 027) gets its own Container
// implementation; Detect inspects the magic/version bytes and returns the
// matching one as a closed tagged variant, the Go shape of the upstream
// per-version dispatch table in vdex_api.c.
package vdex

import (
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// Version identifies one of the five Vdex container revisions this tool
// understands.
type Version string

const (
	Version006 Version = "006"
	Version010 Version = "010"
	Version019 Version = "019"
	Version021 Version = "021"
	Version027 Version = "027"
)

var vdexMagic = [4]byte{'v', 'd', 'e', 'x'}

// DexFile is one embedded Dex blob located inside a Vdex container, with
// the container-relative offsets the quickening/verifier-deps layers need
// to correlate it back to its per-Dex metadata.
type DexFile struct {
	Index    int
	Data     []byte // shares backing storage with the container buffer
	Offset   uint32 // offset of Data[0] within the container
	Checksum uint32
}

// DataSlice is an offset+size view into the container buffer, matching the
// vdex_data_array_t idiom the upstream backends pass around instead of a
// raw pointer.
type DataSlice struct {
	Data   []byte
	Offset uint32
	Size   uint32
}

// Container is the behavior every Vdex version exposes, regardless of its
// on-disk layout.
type Container interface {
	Version() Version
	NumberOfDexFiles() uint32
	HasDexSection() bool
	DexFiles() ([]DexFile, error)
	SetLocationChecksum(fileIdx int, value uint32)
	VerifierDeps() DataSlice
	QuickeningInfo() DataSlice
}

// QuickenTableOffsetter is implemented only by the 019/021 container type:
// its quickening-info blob is keyed per-Dex through a compact-offset table
// whose location is recorded just ahead of each Dex entry, rather than
// framed within the blob itself (as 006 and 010 are). Callers that need to
// build a per-Dex internal/quicken.HintReader for 019/021 type-assert to this
// interface instead of the version tag, keeping the concrete container
// type unexported.
type QuickenTableOffsetter interface {
	QuickenTableOffsetFor(d DexFile) uint32
}

// Detect inspects buf's magic and version bytes and returns the matching
// Container. It does not yet validate section sizes against len(buf); call
// SanityCheck-equivalent validation (performed by DexFiles) before trusting
// offsets derived from a hostile input.
func Detect(buf []byte) (Container, error) {
	if len(buf) < 8 {
		return nil, verrors.New(verrors.MalformedContainer, "buffer shorter than Vdex magic+version")
	}
	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != vdexMagic {
		return nil, verrors.New(verrors.UnsupportedContainer, "not a Vdex container (bad magic)")
	}

	version := string(trimNUL(buf[4:8]))
	switch Version(version) {
	case Version006:
		return newLegacyContainer(buf, Version006), nil
	case Version010:
		return newLegacyContainer(buf, Version010), nil
	case Version019:
		return newDepsContainer(buf, Version019), nil
	case Version021:
		return newDepsContainer(buf, Version021), nil
	case Version027:
		return newSectionedContainer(buf), nil
	default:
		return nil, verrors.New(verrors.UnsupportedContainer, "unrecognized Vdex version '"+version+"'")
	}
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
