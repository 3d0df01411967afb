package dex

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

const (
	stringIDSize = 4
	typeIDSize   = 4
	protoIDSize  = 12
	fieldIDSize  = 8
	methodIDSize = 8
	classDefSize = 32
)

// StringDataOff returns the StringId entry at idx: the file offset of its
// MUTF-8 payload.
func (f *File) StringDataOff(idx uint32) (uint32, error) {
	if idx >= f.Header.StringIDsSize {
		return 0, f.boundsErr("string", idx, f.Header.StringIDsSize)
	}
	off := f.Header.StringIDsOff + idx*stringIDSize
	return binary.LittleEndian.Uint32(f.Buf[off : off+4]), nil
}

// TypeDescriptorIdx returns the TypeId entry at idx: a string-pool index.
func (f *File) TypeDescriptorIdx(idx uint32) (uint32, error) {
	if idx >= f.Header.TypeIDsSize {
		return 0, f.boundsErr("type", idx, f.Header.TypeIDsSize)
	}
	off := f.Header.TypeIDsOff + idx*typeIDSize
	return binary.LittleEndian.Uint32(f.Buf[off : off+4]), nil
}

// ProtoID is the decoded contents of a dexProtoId pool entry.
type ProtoID struct {
	ShortyIdx     uint32
	ReturnTypeIdx uint32
	ParametersOff uint32
}

func (f *File) ProtoIDAt(idx uint32) (*ProtoID, error) {
	if idx >= f.Header.ProtoIDsSize {
		return nil, f.boundsErr("proto", idx, f.Header.ProtoIDsSize)
	}
	off := f.Header.ProtoIDsOff + idx*protoIDSize
	b := f.Buf[off : off+protoIDSize]
	return &ProtoID{
		ShortyIdx:     binary.LittleEndian.Uint32(b[0:4]),
		ReturnTypeIdx: binary.LittleEndian.Uint32(b[4:8]),
		ParametersOff: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// FieldID is the decoded contents of a dexFieldId pool entry.
type FieldID struct {
	ClassIdx uint16
	TypeIdx  uint16
	NameIdx  uint32
}

func (f *File) FieldIDAt(idx uint32) (*FieldID, error) {
	if idx >= f.Header.FieldIDsSize {
		return nil, f.boundsErr("field", idx, f.Header.FieldIDsSize)
	}
	off := f.Header.FieldIDsOff + idx*fieldIDSize
	b := f.Buf[off : off+fieldIDSize]
	return &FieldID{
		ClassIdx: binary.LittleEndian.Uint16(b[0:2]),
		TypeIdx:  binary.LittleEndian.Uint16(b[2:4]),
		NameIdx:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// MethodID is the decoded contents of a dexMethodId pool entry.
type MethodID struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

func (f *File) MethodIDAt(idx uint32) (*MethodID, error) {
	if idx >= f.Header.MethodIDsSize {
		return nil, f.boundsErr("method", idx, f.Header.MethodIDsSize)
	}
	off := f.Header.MethodIDsOff + idx*methodIDSize
	b := f.Buf[off : off+methodIDSize]
	return &MethodID{
		ClassIdx: binary.LittleEndian.Uint16(b[0:2]),
		ProtoIdx: binary.LittleEndian.Uint16(b[2:4]),
		NameIdx:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// ClassDef is the decoded contents of a dexClassDef pool entry.
type ClassDef struct {
	ClassIdx        uint32
	AccessFlags     uint32
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

func (f *File) ClassDefAt(idx uint32) (*ClassDef, error) {
	if idx >= f.Header.ClassDefsSize {
		return nil, f.boundsErr("classDef", idx, f.Header.ClassDefsSize)
	}
	off := f.Header.ClassDefsOff + idx*classDefSize
	b := f.Buf[off : off+classDefSize]
	read := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4 : i*4+4]) }
	return &ClassDef{
		ClassIdx:        read(0),
		AccessFlags:     read(1),
		SuperclassIdx:   read(2),
		InterfacesOff:   read(3),
		SourceFileIdx:   read(4),
		AnnotationsOff:  read(5),
		ClassDataOff:    read(6),
		StaticValuesOff: read(7),
	}, nil
}

// StringDataByIdx returns the decoded MUTF-8 string at string-pool index
// idx, interpreted as UTF-8 (the two diverge only for encodings this tool
// never needs to round-trip: embedded NUL and supplementary-plane pairs).
func (f *File) StringDataByIdx(idx uint32) (string, error) {
	off, err := f.StringDataOff(idx)
	if err != nil {
		return "", err
	}
	if int(off) >= len(f.Buf) {
		return "", verrors.New(verrors.MalformedDex, "string data offset out of range")
	}
	p := f.Buf[off:]
	utf16Len, n := decodeULEB128(p)
	_ = utf16Len
	p = p[n:]
	end := 0
	for end < len(p) && p[end] != 0 {
		end++
	}
	return string(p[:end]), nil
}

// TypeDescriptor resolves a type-pool index all the way to its descriptor
// string, e.g. "Ljava/lang/String;".
func (f *File) TypeDescriptor(idx uint32) (string, error) {
	sidx, err := f.TypeDescriptorIdx(idx)
	if err != nil {
		return "", err
	}
	return f.StringDataByIdx(sidx)
}

// TypeListAt decodes a dexTypeList at the given file offset; a zero offset
// means "no parameters" and returns a nil slice.
func (f *File) TypeListAt(off uint32) ([]uint16, error) {
	if off == 0 {
		return nil, nil
	}
	if int(off)+4 > len(f.Buf) {
		return nil, verrors.New(verrors.MalformedDex, "type list offset out of range")
	}
	size := binary.LittleEndian.Uint32(f.Buf[off : off+4])
	out := make([]uint16, size)
	base := off + 4
	for i := uint32(0); i < size; i++ {
		p := base + i*2
		if int(p)+2 > len(f.Buf) {
			return nil, verrors.New(verrors.MalformedDex, "type list entry out of range")
		}
		out[i] = binary.LittleEndian.Uint16(f.Buf[p : p+2])
	}
	return out, nil
}

// MethodSignature renders a method's parameter list the way the
// disassembler annotates method@ references, e.g. "(ILjava/lang/String;)";
// the return type is not included (see ProtoSignature).
func (f *File) MethodSignature(m *MethodID) (string, error) {
	proto, err := f.ProtoIDAt(uint32(m.ProtoIdx))
	if err != nil {
		return "", err
	}
	return f.ProtoSignature(proto)
}

// ProtoSignature renders a proto's parameter list, omitting the return type
// (callers append it separately, matching dex_getMethodSignature upstream).
func (f *File) ProtoSignature(p *ProtoID) (string, error) {
	params, err := f.TypeListAt(p.ParametersOff)
	if err != nil {
		return "", err
	}
	sig := "("
	for _, t := range params {
		desc, err := f.TypeDescriptor(uint32(t))
		if err != nil {
			desc = "<type?>"
		}
		sig += desc
	}
	return sig + ")", nil
}

func (f *File) boundsErr(pool string, idx, size uint32) error {
	return verrors.New(verrors.MalformedDex, fmt.Sprintf("%s index %d out of range (pool size %d)", pool, idx, size))
}

func decodeULEB128(p []byte) (uint32, int) {
	var result uint32
	var shift uint
	var n int
	for n < len(p) {
		b := p[n]
		n++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n
}
