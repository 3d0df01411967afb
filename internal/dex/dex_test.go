package dex

import (
	"encoding/binary"
	"hash/adler32"
	"testing"
)

func buildMinimalHeader(kind [4]byte, fileSize uint32) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], kind[:])
	copy(buf[4:8], []byte{'0', '3', '5', 0})
	binary.LittleEndian.PutUint32(buf[0x20:], fileSize) // fileSize
	binary.LittleEndian.PutUint32(buf[0x24:], headerSize) // headerSize
	return buf
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	if _, _, err := ParseHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("ParseHeader() on a short buffer: want error, got nil")
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	buf := buildMinimalHeader([4]byte{'x', 'x', 'x', 'x'}, headerSize)
	if _, _, err := ParseHeader(buf); err == nil {
		t.Fatal("ParseHeader() with bad magic: want error, got nil")
	}
}

func TestParseHeaderAcceptsNormalDex(t *testing.T) {
	buf := buildMinimalHeader(dexMagic, headerSize)
	h, kind, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if kind != KindNormalDex {
		t.Fatalf("Kind = %v, want KindNormalDex", kind)
	}
	if h.HeaderSize != headerSize {
		t.Fatalf("HeaderSize = %d, want %d", h.HeaderSize, headerSize)
	}
}

func TestParseHeaderAcceptsCompactDex(t *testing.T) {
	buf := buildMinimalHeader(compactDexMagic, headerSize)
	_, kind, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if kind != KindCompactDex {
		t.Fatalf("Kind = %v, want KindCompactDex", kind)
	}
}

func TestComputeCRCMatchesAdler32(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	want := adler32.Checksum(buf[nonSummedPrefix:])
	if got := ComputeCRC(buf, uint32(len(buf))); got != want {
		t.Fatalf("ComputeCRC() = %#x, want %#x", got, want)
	}
}

func TestRepairCRCWritesChecksumField(t *testing.T) {
	buf := make([]byte, 64)
	RepairCRC(buf, uint32(len(buf)))
	got := binary.LittleEndian.Uint32(buf[8:12])
	want := ComputeCRC(buf, uint32(len(buf)))
	if got != want {
		t.Fatalf("checksum field = %#x, want %#x", got, want)
	}
}

func TestUnhideAccessFlagsClearsHiddenBits(t *testing.T) {
	const hiddenFieldFlags = 0x0001 | 0x20
	got := UnhideAccessFlags(hiddenFieldFlags, false)
	if got&0x20 != 0 {
		t.Fatalf("UnhideAccessFlags() = %#x, hidden bit still set", got)
	}
	if got&0x0001 == 0 {
		t.Fatalf("UnhideAccessFlags() = %#x, cleared a public bit it shouldn't have", got)
	}

	const hiddenNativeMethodFlags = 0x0001 | 0x100 | 0x200
	got = UnhideAccessFlags(hiddenNativeMethodFlags, true)
	if got&0x200 != 0 {
		t.Fatalf("UnhideAccessFlags() = %#x, native hidden bit still set", got)
	}
	if got&0x100 == 0 {
		t.Fatalf("UnhideAccessFlags() = %#x, cleared ACC_NATIVE which isn't the hidden bit", got)
	}

	const hiddenNonNativeMethodFlags = 0x0001 | 0x20
	got = UnhideAccessFlags(hiddenNonNativeMethodFlags, true)
	if got&0x20 != 0 {
		t.Fatalf("UnhideAccessFlags() = %#x, non-native method hidden bit still set", got)
	}
}

func TestReadFieldsDeltaDecodesIndices(t *testing.T) {
	// class_data_item with 2 fields: first idx delta 3, second delta 5
	// (absolute indices 3 and 8), each with access flags 1. The item starts
	// at offset 1, since offset 0 means "no class data".
	data := []byte{
		0x00,                   // padding before the class_data_item
		0x02, 0x00, 0x00, 0x00, // header: staticFieldsSize=2, rest 0
		0x03, 0x01, // field 0: delta=3 flags=1
		0x05, 0x01, // field 1: delta=5 flags=1
	}
	f := &File{Buf: data}
	cd, err := f.ClassDataAt(1)
	if err != nil {
		t.Fatalf("ClassDataAt() error = %v", err)
	}
	if len(cd.StaticFields) != 2 {
		t.Fatalf("len(StaticFields) = %d, want 2", len(cd.StaticFields))
	}
	if cd.StaticFields[0].FieldIdx != 3 || cd.StaticFields[1].FieldIdx != 8 {
		t.Fatalf("StaticFields = %+v, want absolute idx 3 then 8", cd.StaticFields)
	}
}

func TestNormalCodeItemAtReadsInsns(t *testing.T) {
	buf := make([]byte, 16+4)
	binary.LittleEndian.PutUint16(buf[0:], 2) // registersSize
	binary.LittleEndian.PutUint16(buf[2:], 0) // insSize
	binary.LittleEndian.PutUint16(buf[4:], 0) // outsSize
	binary.LittleEndian.PutUint16(buf[6:], 0) // triesSize
	binary.LittleEndian.PutUint32(buf[8:], 0) // debugInfoOff
	binary.LittleEndian.PutUint32(buf[12:], 2) // insnsSizeInCU
	binary.LittleEndian.PutUint16(buf[16:], 0x000e) // return-void
	binary.LittleEndian.PutUint16(buf[18:], 0x0000)
	// Place the code item at offset 4, since offset 0 means "no code item".
	buf = append(make([]byte, 4), buf...)

	f := &File{Buf: buf}
	ci, err := f.CodeItemAt(4, KindNormalDex)
	if err != nil {
		t.Fatalf("CodeItemAt() error = %v", err)
	}
	if ci.RegistersSize != 2 {
		t.Fatalf("RegistersSize = %d, want 2", ci.RegistersSize)
	}
	if len(ci.Insns) != 2 || ci.Insns[0] != 0x000e {
		t.Fatalf("Insns = %v, want [0x000e 0x0000]", ci.Insns)
	}
}

func TestReadMethodsRecordsAccessFlagsOffsetAndWidth(t *testing.T) {
	// class_data_item with 1 direct method: idx delta 1, access flags
	// encoded in 4 non-minimal bytes so clearing a hidden bit can't shrink
	// the width, codeOff 0. The item starts at offset 1, since offset 0 means
	// "no class data".
	accessFlags := uint32(0x0001 | 0x20)
	data := []byte{
		0x00,                   // padding before the class_data_item
		0x00, 0x00, 0x01, 0x00, // header: directMethodsSize=1
		0x01, // idx delta=1
	}
	flagsOff := len(data)
	flagsBytes := make([]byte, 4)
	for i := range flagsBytes {
		flagsBytes[i] = byte(accessFlags>>(7*uint(i))) & 0x7f
		if i != 3 {
			flagsBytes[i] |= 0x80
		}
	}
	data = append(data, flagsBytes...)
	data = append(data, 0x00) // codeOff=0

	f := &File{Buf: data}
	cd, err := f.ClassDataAt(1)
	if err != nil {
		t.Fatalf("ClassDataAt() error = %v", err)
	}
	m := cd.DirectMethods[0]
	if m.AccessFlagsOff != uint32(flagsOff) || m.AccessFlagsWidth != 4 {
		t.Fatalf("AccessFlagsOff/Width = %d/%d, want %d/4", m.AccessFlagsOff, m.AccessFlagsWidth, flagsOff)
	}
	if m.AccessFlags != accessFlags {
		t.Fatalf("AccessFlags = %#x, want %#x", m.AccessFlags, accessFlags)
	}

	cleared := f.RewriteAccessFlags(m.AccessFlagsOff, m.AccessFlagsWidth, m.AccessFlags, true)
	if cleared&0x20 != 0 {
		t.Fatalf("RewriteAccessFlags() = %#x, hidden bit still set", cleared)
	}
	// Re-decode the rewritten entry to confirm the width didn't change and
	// the value round-trips.
	cd2, err := f.ClassDataAt(1)
	if err != nil {
		t.Fatalf("ClassDataAt() after rewrite error = %v", err)
	}
	if cd2.DirectMethods[0].AccessFlags != cleared || cd2.DirectMethods[0].AccessFlagsWidth != 4 {
		t.Fatalf("re-decoded method = %+v, want AccessFlags=%#x width=4", cd2.DirectMethods[0], cleared)
	}
}
