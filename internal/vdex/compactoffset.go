package vdex

import (
	"encoding/binary"
	"math/bits"

	"github.com/kestrelsec/vdextract/internal/leb128"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// kElementsPerIndex: each 16-bit bitmask block covers 16 consecutive code
// items' debug-info offsets.
const kElementsPerIndex = 16

// CompactOffsetTable decodes the 021 quickening-info-offset-table's
// bit-packed block encoding: a table of per-16-entry blocks, each a 2-byte
// big-endian presence bitmask followed by one cumulative ULEB128 delta
// (from a shared minOffset) per set bit. This is the subtlest piece of the
// 021 backend, grounded directly on initCompactOffset/getOffset in
// vdex_backend_021.c — it gets its own file and its own tests rather than
// living inline in the per-Dex processing loop.
type CompactOffsetTable struct {
	data        []byte
	minOffset   uint32
	tableOffset uint32
}

// NewCompactOffsetTable parses the 8-byte prelude (minOffset, tableOffset)
// of a quicken-info-offset-table slice and returns a reader over it.
func NewCompactOffsetTable(data []byte) (*CompactOffsetTable, error) {
	if len(data) < 8 {
		return nil, verrors.New(verrors.MalformedContainer, "compact offset table shorter than its 8-byte prelude")
	}
	minOffset := binary.LittleEndian.Uint32(data[0:4])
	tableOffset := binary.LittleEndian.Uint32(data[4:8])
	return &CompactOffsetTable{
		data:        data,
		minOffset:   minOffset,
		tableOffset: tableOffset,
	}, nil
}

// blockEntryOffset returns the byte offset (relative to data[8:], the start
// of the per-block data region) recorded in the table's u4 array for the
// block containing index.
func (t *CompactOffsetTable) blockEntryOffset(index uint32) (uint32, error) {
	blockIdx := index / kElementsPerIndex
	pos := 8 + t.tableOffset + blockIdx*4
	if int(pos)+4 > len(t.data) {
		return 0, verrors.New(verrors.MalformedContainer, "compact offset table block index out of range")
	}
	return binary.LittleEndian.Uint32(t.data[pos : pos+4]), nil
}

// GetOffset returns the debug-info/quickening-data offset recorded for
// code-item index, or 0 if that index has no recorded offset (the
// "quicken_info_number_of_indices == 0" case the decompiler treats as
// "nothing to unquicken for this method").
func (t *CompactOffsetTable) GetOffset(index uint32) (uint32, error) {
	blockOff, err := t.blockEntryOffset(index)
	if err != nil {
		return 0, err
	}
	bitIndex := index % kElementsPerIndex

	maskPos := 8 + blockOff
	if int(maskPos)+2 > len(t.data) {
		return 0, verrors.New(verrors.MalformedContainer, "compact offset table bitmask out of range")
	}
	bitmask := binary.BigEndian.Uint16(t.data[maskPos : maskPos+2])

	if bitmask&(1<<(kElementsPerIndex-1-bitIndex)) == 0 {
		return 0, nil
	}

	// Count set bits at-or-below bitIndex (bit (kElementsPerIndex-1) is the
	// first stored delta, bit 0 the last — big-endian, MSB-first block scan).
	shifted := bitmask >> (kElementsPerIndex - 1 - bitIndex)
	count := bits.OnesCount16(shifted)

	cursor := leb128.NewCursorAt(t.data, int(maskPos)+2)
	var sum uint32
	for i := 0; i < count; i++ {
		delta, err := cursor.ReadULEB128()
		if err != nil {
			return 0, err
		}
		sum += delta
	}
	return t.minOffset + sum, nil
}
