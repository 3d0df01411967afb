// Package verifierdeps decodes the per-Dex VerifierDeps blob embedded in a
// Vdex container: compile-time record of which type assignability checks,
// field/method resolutions, and class verifications the ahead-of-time
// verifier already performed, so the runtime verifier can trust them
// instead of redoing the work.
package verifierdeps

import (
	"github.com/kestrelsec/vdextract/internal/dex"
	"github.com/kestrelsec/vdextract/internal/leb128"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// UnresolvedAccessFlags is the sentinel ClassRes.AccessFlags value meaning
// "the verifier could not resolve this class".
const UnresolvedAccessFlags = 0xFFFF

// TypeAssignability is one (destIdx, srcIdx) pair recorded in either the
// assignable- or unassignable-types set.
type TypeAssignability struct {
	DestIdx uint32
	SrcIdx  uint32
}

// ClassResolution is one entry of the classes set.
type ClassResolution struct {
	TypeIdx     uint32
	AccessFlags uint32
}

// FieldResolution is one entry of the fields set.
type FieldResolution struct {
	FieldIdx          uint32
	AccessFlags       uint32
	DeclaringClassIdx uint32
}

// MethodResolution is one entry of the methods set. The decoder reads a
// single merged methods array for every container version; the
// direct/virtual/interface sub-array split that older Vdex versions use is
// not decoded, and entries carry no record of which sub-array they came from.
type MethodResolution struct {
	MethodIdx         uint32
	AccessFlags       uint32
	DeclaringClassIdx uint32
}

// DexDeps is the fully decoded verifier-deps structure for one Dex file.
type DexDeps struct {
	ExtraStrings      []string
	AssignableTypes   []TypeAssignability
	UnassignableTypes []TypeAssignability
	Classes           []ClassResolution
	Fields            []FieldResolution
	Methods           []MethodResolution
	UnverifiedClasses []uint32
}

// Decoder walks the VerifierDeps blob's single shared ULEB128 cursor,
// decoding one Dex's nested structure per DecodeDex call — mirroring the
// upstream backend, which advances one cursor across every Dex in the
// container rather than resetting per Dex.
type Decoder struct {
	cur *leb128.Cursor
}

// NewDecoder wraps a container's VerifierDeps slice.
func NewDecoder(blob []byte) *Decoder {
	return &Decoder{cur: leb128.NewCursor(blob)}
}

// DecodeDex decodes the next Dex's verifier-deps structure: extra strings,
// assignable types, unassignable types, classes, fields, methods, then
// unverified classes, in that fixed order.
func (d *Decoder) DecodeDex() (*DexDeps, error) {
	deps := &DexDeps{}

	strings, err := d.decodeStrings()
	if err != nil {
		return nil, err
	}
	deps.ExtraStrings = strings

	if deps.AssignableTypes, err = d.decodeTypeSet(); err != nil {
		return nil, err
	}
	if deps.UnassignableTypes, err = d.decodeTypeSet(); err != nil {
		return nil, err
	}
	if deps.Classes, err = d.decodeClasses(); err != nil {
		return nil, err
	}
	if deps.Fields, err = d.decodeFields(); err != nil {
		return nil, err
	}
	if deps.Methods, err = d.decodeMethods(); err != nil {
		return nil, err
	}
	if deps.UnverifiedClasses, err = d.decodeUnverifiedClasses(); err != nil {
		return nil, err
	}
	return deps, nil
}

// Remaining reports how many unconsumed bytes are left in the blob, used
// to sanity-check that every Dex's deps were decoded and none were left
// dangling after the last one.
func (d *Decoder) Remaining() int { return d.cur.Remaining() }

func (d *Decoder) decodeStrings() ([]string, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.cur.ReadCString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (d *Decoder) decodeTypeSet() ([]TypeAssignability, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]TypeAssignability, n)
	for i := uint32(0); i < n; i++ {
		dst, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		src, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		out[i] = TypeAssignability{DestIdx: dst, SrcIdx: src}
	}
	return out, nil
}

func (d *Decoder) decodeClasses() ([]ClassResolution, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]ClassResolution, n)
	for i := uint32(0); i < n; i++ {
		typeIdx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessFlags, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		out[i] = ClassResolution{TypeIdx: typeIdx, AccessFlags: accessFlags}
	}
	return out, nil
}

func (d *Decoder) decodeFields() ([]FieldResolution, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]FieldResolution, n)
	for i := uint32(0); i < n; i++ {
		fieldIdx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessFlags, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		declClassIdx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		out[i] = FieldResolution{FieldIdx: fieldIdx, AccessFlags: accessFlags, DeclaringClassIdx: declClassIdx}
	}
	return out, nil
}

func (d *Decoder) decodeMethods() ([]MethodResolution, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]MethodResolution, n)
	for i := uint32(0); i < n; i++ {
		methodIdx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessFlags, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		declClassIdx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		out[i] = MethodResolution{MethodIdx: methodIdx, AccessFlags: accessFlags, DeclaringClassIdx: declClassIdx}
	}
	return out, nil
}

func (d *Decoder) decodeUnverifiedClasses() ([]uint32, error) {
	n, err := d.cur.ReadULEB128()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		idx, err := d.cur.ReadULEB128()
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// ResolveString resolves a verifier-deps string-pool index that spans both
// the Dex file's own string pool and this Dex's extraStrings: indices
// below the Dex pool's size resolve through f; indices at or above it
// subtract the pool size and resolve through deps.ExtraStrings.
func ResolveString(f *dex.File, deps *DexDeps, idx uint32) (string, error) {
	poolSize := f.Header.StringIDsSize
	if idx < poolSize {
		return f.StringDataByIdx(idx)
	}
	extraIdx := idx - poolSize
	if int(extraIdx) >= len(deps.ExtraStrings) {
		return "", verrors.New(verrors.VerifierDepsOverflow, "verifier-deps extraStrings index out of range")
	}
	return deps.ExtraStrings[extraIdx], nil
}
