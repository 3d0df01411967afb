package dex

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/leb128"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// ClassDataHeader is the ULEB128-encoded preamble of a class_data_item.
type ClassDataHeader struct {
	StaticFieldsSize   uint32
	InstanceFieldsSize uint32
	DirectMethodsSize  uint32
	VirtualMethodsSize uint32
}

// EncodedField is one entry of a class_data_item's field lists. FieldIdx is
// already delta-decoded back to an absolute field-pool index.
// AccessFlagsOff/AccessFlagsWidth locate the entry's ULEB128-encoded
// access_flags within the file, so RewriteAccessFlags can unhide it in
// place without disturbing any entry that follows.
type EncodedField struct {
	FieldIdx         uint32
	AccessFlags      uint32
	AccessFlagsOff   uint32
	AccessFlagsWidth uint8
}

// EncodedMethod is one entry of a class_data_item's method lists. MethodIdx
// is already delta-decoded back to an absolute method-pool index.
type EncodedMethod struct {
	MethodIdx        uint32
	AccessFlags      uint32
	CodeOff          uint32
	AccessFlagsOff   uint32
	AccessFlagsWidth uint8
}

// ClassData is a fully walked class_data_item: every field and method list,
// with indices delta-decoded to absolute pool positions.
type ClassData struct {
	Header          ClassDataHeader
	StaticFields    []EncodedField
	InstanceFields  []EncodedField
	DirectMethods   []EncodedMethod
	VirtualMethods  []EncodedMethod
}

// ClassDataAt walks the class_data_item at the given file offset. A zero
// offset means the class defines no fields or methods.
func (f *File) ClassDataAt(off uint32) (*ClassData, error) {
	if off == 0 {
		return &ClassData{}, nil
	}
	c := leb128.NewCursorAt(f.Buf, int(off))
	cd := &ClassData{}

	read := func() (uint32, error) { return c.ReadULEB128() }

	var err error
	if cd.Header.StaticFieldsSize, err = read(); err != nil {
		return nil, err
	}
	if cd.Header.InstanceFieldsSize, err = read(); err != nil {
		return nil, err
	}
	if cd.Header.DirectMethodsSize, err = read(); err != nil {
		return nil, err
	}
	if cd.Header.VirtualMethodsSize, err = read(); err != nil {
		return nil, err
	}

	cd.StaticFields, err = readFields(c, cd.Header.StaticFieldsSize)
	if err != nil {
		return nil, err
	}
	cd.InstanceFields, err = readFields(c, cd.Header.InstanceFieldsSize)
	if err != nil {
		return nil, err
	}
	cd.DirectMethods, err = readMethods(c, cd.Header.DirectMethodsSize)
	if err != nil {
		return nil, err
	}
	cd.VirtualMethods, err = readMethods(c, cd.Header.VirtualMethodsSize)
	if err != nil {
		return nil, err
	}
	return cd, nil
}

func readFields(c *leb128.Cursor, count uint32) ([]EncodedField, error) {
	out := make([]EncodedField, 0, count)
	var lastIdx uint32
	for i := uint32(0); i < count; i++ {
		delta, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessOff := c.Pos()
		accessFlags, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		lastIdx += delta
		out = append(out, EncodedField{
			FieldIdx:         lastIdx,
			AccessFlags:      accessFlags,
			AccessFlagsOff:   uint32(accessOff),
			AccessFlagsWidth: uint8(c.Pos() - accessOff),
		})
	}
	return out, nil
}

func readMethods(c *leb128.Cursor, count uint32) ([]EncodedMethod, error) {
	out := make([]EncodedMethod, 0, count)
	var lastIdx uint32
	for i := uint32(0); i < count; i++ {
		delta, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessOff := c.Pos()
		accessFlags, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		accessWidth := c.Pos() - accessOff
		codeOff, err := c.ReadULEB128()
		if err != nil {
			return nil, err
		}
		lastIdx += delta
		out = append(out, EncodedMethod{
			MethodIdx:        lastIdx,
			AccessFlags:      accessFlags,
			CodeOff:          codeOff,
			AccessFlagsOff:   uint32(accessOff),
			AccessFlagsWidth: uint8(accessWidth),
		})
	}
	return out, nil
}

// CodeItem is the common, post-decode shape of a method body regardless of
// whether it came from a fixed-layout NormalDex dexCode or a bit-packed
// CompactDex preheader: registers/ins/outs counts plus the raw code-unit
// array the instruction walker and unquickener operate on.
type CodeItem struct {
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	TriesSize     uint16
	DebugInfoOff  uint32
	InsnsSizeInCU uint32
	Insns         []uint16 // shares backing storage with File.Buf
	insnsOff      uint32
}

// InsnsOff returns the file offset of the first code unit, the base every
// instruction pc in this code item is relative to.
func (ci *CodeItem) InsnsOff() uint32 { return ci.insnsOff }

const normalCodeItemPreambleSize = 16 // registersSize..insns_size, before the insns array

// CodeItemAt reads a method body at the given file offset. NormalDex code
// items use a fixed 16-byte preamble; CompactDex code items use a
// differently bit-packed preheader that this tool does not attempt to
// expand back to NormalDex's fixed layout — it reads the fields through
// their CompactDex accessors instead.
func (f *File) CodeItemAt(off uint32, kind Kind) (*CodeItem, error) {
	if off == 0 {
		return nil, verrors.New(verrors.MalformedDex, "method has no code item")
	}
	if kind == KindCompactDex {
		return f.compactCodeItemAt(off)
	}
	return f.normalCodeItemAt(off)
}

func (f *File) normalCodeItemAt(off uint32) (*CodeItem, error) {
	if int(off)+normalCodeItemPreambleSize > len(f.Buf) {
		return nil, verrors.New(verrors.MalformedDex, "code item preamble out of range")
	}
	b := f.Buf[off : off+normalCodeItemPreambleSize]
	ci := &CodeItem{
		RegistersSize: binary.LittleEndian.Uint16(b[0:2]),
		InsSize:       binary.LittleEndian.Uint16(b[2:4]),
		OutsSize:      binary.LittleEndian.Uint16(b[4:6]),
		TriesSize:     binary.LittleEndian.Uint16(b[6:8]),
		DebugInfoOff:  binary.LittleEndian.Uint32(b[8:12]),
		InsnsSizeInCU: binary.LittleEndian.Uint32(b[12:16]),
	}
	insnsOff := off + normalCodeItemPreambleSize
	insnsBytes := 2 * ci.InsnsSizeInCU
	if int(insnsOff+insnsBytes) > len(f.Buf) {
		return nil, verrors.New(verrors.MalformedDex, "code item insns array out of range")
	}
	ci.insnsOff = insnsOff
	ci.Insns = bytesToU16(f.Buf[insnsOff : insnsOff+insnsBytes])
	return ci, nil
}

// compactCodeItemAt reads a CompactDex bit-packed preheader. CompactDex
// packs registersSize/insSize/outsSize/triesSize/insnsCount fields into a
// variable number of leading code units, selected by a 4-bit "flags"
// nibble per field (0xf meaning "read an extra code unit", matching the
// upstream dex_decompiler_021 callers' use of cdexCode fields).
func (f *File) compactCodeItemAt(off uint32) (*CodeItem, error) {
	if int(off)+2 > len(f.Buf) {
		return nil, verrors.New(verrors.MalformedDex, "compact code item preheader out of range")
	}
	cursor := off
	readField := func(nibble uint16) (uint32, error) {
		if nibble != 0xf {
			return uint32(nibble), nil
		}
		if int(cursor)+2 > len(f.Buf) {
			return 0, verrors.New(verrors.MalformedDex, "compact code item overflow field out of range")
		}
		v := binary.LittleEndian.Uint16(f.Buf[cursor : cursor+2])
		cursor += 2
		return uint32(v), nil
	}

	fields := binary.LittleEndian.Uint16(f.Buf[cursor : cursor+2])
	cursor += 2

	ci := &CodeItem{}
	var err error
	if v, e := readField(fields & 0xf); e != nil {
		return nil, e
	} else {
		ci.RegistersSize = uint16(v)
	}
	if v, e := readField((fields >> 4) & 0xf); e != nil {
		return nil, e
	} else {
		ci.InsSize = uint16(v)
	}
	if v, e := readField((fields >> 8) & 0xf); e != nil {
		return nil, e
	} else {
		ci.OutsSize = uint16(v)
	}
	if v, e := readField((fields >> 12) & 0xf); e != nil {
		return nil, e
	} else {
		ci.TriesSize = uint16(v)
	}

	insnsCount, err := readField(0xf)
	if err != nil {
		return nil, err
	}
	ci.InsnsSizeInCU = insnsCount

	if ci.TriesSize != 0 {
		// Debug-info and try-item offsets sit between the preheader and the
		// insns array; this tool only ever reads the insns array itself, so
		// the extra code unit is skipped rather than decoded.
		cursor += 2
	}

	insnsBytes := 2 * ci.InsnsSizeInCU
	if int(cursor+insnsBytes) > len(f.Buf) {
		return nil, verrors.New(verrors.MalformedDex, "compact code item insns array out of range")
	}
	ci.insnsOff = cursor
	ci.Insns = bytesToU16(f.Buf[cursor : cursor+insnsBytes])
	return ci, nil
}

func bytesToU16(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
	}
	return out
}

// PutInsns writes ci.Insns back into f.Buf at its original offset,
// propagating in-place instruction rewrites made by the unquickener.
func (f *File) PutInsns(ci *CodeItem) {
	for i, u := range ci.Insns {
		binary.LittleEndian.PutUint16(f.Buf[int(ci.insnsOff)+i*2:], u)
	}
}

// UnhideAccessFlags clears the hidden-API access-flag bit ART sets on a
// field or method so the emitted Dex round-trips through standard tooling.
// The bit's position depends on whether the member is a native method:
// kAccDexHiddenBitNative (0x200) for a native method, kAccDexHiddenBit
// (0x20) for a field or any non-native method. Called unconditionally for
// every field and method during class-data iteration.
func UnhideAccessFlags(flags uint32, isMethod bool) uint32 {
	const accNative = 0x100
	const kAccDexHiddenBit = 0x20
	const kAccDexHiddenBitNative = 0x200
	if isMethod && flags&accNative != 0 {
		return flags &^ kAccDexHiddenBitNative
	}
	return flags &^ kAccDexHiddenBit
}

// RewriteAccessFlags clears the hidden-API bits out of one class-data
// entry's access_flags and writes the result back into f.Buf at its
// original offset and byte width (via leb128.WriteULEB128Fixed), so the
// rewrite never shifts any entry that follows it in the stream.
func (f *File) RewriteAccessFlags(off uint32, width uint8, flags uint32, isMethod bool) uint32 {
	cleared := UnhideAccessFlags(flags, isMethod)
	leb128.WriteULEB128Fixed(f.Buf, int(off), cleared, int(width))
	return cleared
}
