package quicken

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/leb128"
	"github.com/kestrelsec/vdextract/internal/vdex"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// compactHintReader implements the 021 schema: a compact-offset table
// (internal/vdex.CompactOffsetTable) keyed by a running count of distinct
// code items visited in the Dex, each non-zero offset locating a ULEB128
// element count followed by that many raw u2 hint indices inside the
// quickening-info blob.
type compactHintReader struct {
	tbl   *vdex.CompactOffsetTable
	info  []byte
	index uint32
	seen  map[uint32]struct{}
}

// NewCompactHintReader locates the 021 compact-offset table at
// quickenTableOff within the full Vdex buffer (the location
// vdex.DexFile.Offset-4 records for the paired Dex) and binds it to the
// container's quickening-info blob.
func NewCompactHintReader(vdexBuf []byte, quickenTableOff uint32, quickInfo []byte) (*compactHintReader, error) {
	if int(quickenTableOff) >= len(vdexBuf) {
		return nil, verrors.New(verrors.MalformedContainer, "021 quicken table offset out of range")
	}
	tbl, err := vdex.NewCompactOffsetTable(vdexBuf[quickenTableOff:])
	if err != nil {
		return nil, err
	}
	return &compactHintReader{tbl: tbl, info: quickInfo, seen: make(map[uint32]struct{})}, nil
}

func (r *compactHintReader) HintSliceFor(codeItemOffset uint32, methodIdx int) (HintSlice, bool, error) {
	if _, dup := r.seen[codeItemOffset]; dup {
		return nil, true, nil
	}
	r.seen[codeItemOffset] = struct{}{}

	idx := r.index
	r.index++

	off, err := r.tbl.GetOffset(idx)
	if err != nil {
		return nil, false, err
	}
	if off == 0 {
		return nil, false, nil
	}
	if int(off) >= len(r.info) {
		return nil, false, verrors.New(verrors.MalformedContainer, "021 hint payload offset out of range")
	}

	cur := leb128.NewCursorAt(r.info, int(off))
	count, err := cur.ReadULEB128()
	if err != nil {
		return nil, false, err
	}
	hints := make([]uint16, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := cur.ReadBytes(2)
		if err != nil {
			return nil, false, err
		}
		hints = append(hints, binary.LittleEndian.Uint16(b))
	}
	return &indexedHintSlice{hints: hints}, false, nil
}

// CheckResidue is a no-op for 021: the compact-offset table has no single
// linear cursor to exhaust, since every index is looked up independently
// by its position rather than consumed off a stream.
func (r *compactHintReader) CheckResidue() error { return nil }
