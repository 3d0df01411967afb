// Package dex parses the Dex and CompactDex file formats embedded inside a
// Vdex container: the fixed header, the six index pools (string, type,
// proto, field, method, class-def), class-data streams, and code items.
// Bounds checks replace the upstream CHECK_LT() aborts with returned
// *verrors.VdexError values so a single malformed pool entry degrades one
// extraction instead of the whole run.
package dex

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

const (
	magicLen      = 4
	versionLen    = 4
	signatureSize = 20
	headerSize    = 0x70

	// Kind distinguishes a standard Dex file from a CompactDex file; both
	// share this header layout but diverge in the code-item encoding.
	KindNormalDex Kind = iota
	KindCompactDex
)

type Kind int

func (k Kind) String() string {
	if k == KindCompactDex {
		return "CompactDex"
	}
	return "Dex"
}

// Header mirrors dexHeader from the upstream C sources field for field.
type Header struct {
	Magic         [magicLen]byte
	Version       [versionLen]byte
	Checksum      uint32
	Signature     [signatureSize]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	LinkSize      uint32
	LinkOff       uint32
	MapOff        uint32
	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	FieldIDsSize  uint32
	FieldIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
	DataSize      uint32
	DataOff       uint32
}

var (
	dexMagic       = [magicLen]byte{'d', 'e', 'x', '\n'}
	compactDexMagic = [magicLen]byte{'c', 'd', 'e', 'x'}

	validDexVersions = [][versionLen]byte{
		{'0', '3', '5', 0},
		{'0', '3', '6', 0},
		{'0', '3', '7', 0},
		{'0', '3', '8', 0},
		{'0', '3', '9', 0},
	}
)

// ParseHeader reads and validates the leading 0x70 bytes of a Dex or
// CompactDex file. It reports the detected Kind alongside the decoded
// header so callers can dispatch to the matching code-item reader.
func ParseHeader(buf []byte) (*Header, Kind, error) {
	if len(buf) < headerSize {
		return nil, 0, verrors.New(verrors.MalformedDex, "buffer shorter than Dex header")
	}

	var magic [magicLen]byte
	copy(magic[:], buf[0:magicLen])

	var kind Kind
	switch magic {
	case dexMagic:
		kind = KindNormalDex
	case compactDexMagic:
		kind = KindCompactDex
	default:
		return nil, 0, verrors.New(verrors.MalformedDex, "unrecognized Dex magic")
	}

	h := &Header{}
	copy(h.Magic[:], magic[:])
	copy(h.Version[:], buf[4:8])

	if kind == KindNormalDex && !isKnownVersion(h.Version) {
		return nil, 0, verrors.New(verrors.MalformedDex, "unrecognized Dex version")
	}

	r := buf[8:]
	h.Checksum = binary.LittleEndian.Uint32(r[0:4])
	copy(h.Signature[:], r[4:4+signatureSize])
	o := r[4+signatureSize:]
	fields := []*uint32{
		&h.FileSize, &h.HeaderSize, &h.EndianTag, &h.LinkSize, &h.LinkOff, &h.MapOff,
		&h.StringIDsSize, &h.StringIDsOff, &h.TypeIDsSize, &h.TypeIDsOff,
		&h.ProtoIDsSize, &h.ProtoIDsOff, &h.FieldIDsSize, &h.FieldIDsOff,
		&h.MethodIDsSize, &h.MethodIDsOff, &h.ClassDefsSize, &h.ClassDefsOff,
		&h.DataSize, &h.DataOff,
	}
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(o[i*4 : i*4+4])
	}

	if int(h.FileSize) > len(buf) {
		return nil, 0, verrors.New(verrors.MalformedDex, "header fileSize exceeds buffer length")
	}
	return h, kind, nil
}

func isKnownVersion(v [versionLen]byte) bool {
	for _, known := range validDexVersions {
		if v == known {
			return true
		}
	}
	return false
}

// File is a parsed Dex/CompactDex buffer plus its header, the handle every
// pool accessor in this package hangs off of.
type File struct {
	Buf    []byte
	Header *Header
	Kind   Kind
}

// Parse validates and wraps buf as a File.
func Parse(buf []byte) (*File, error) {
	h, kind, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	return &File{Buf: buf, Header: h, Kind: kind}, nil
}
