package quicken

import (
	"github.com/kestrelsec/vdextract/internal/leb128"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// flatHintReader implements the 006 schema: one flat ULEB128 stream shared
// by every Dex file in the container, consumed strictly in the order the
// driver visits methods. For each method with a code item, a u4 payload
// length is read, followed by that many bytes forming the method's own
// (dex_pc, index) pair stream.
type flatHintReader struct {
	cur *leb128.Cursor
}

// NewFlatHintReader wraps a 006 container's quickening-info blob. A single
// instance is meant to be reused across every Dex file in the container,
// since 006 has no per-Dex framing of its own.
func NewFlatHintReader(quickInfo []byte) *flatHintReader {
	return &flatHintReader{cur: leb128.NewCursor(quickInfo)}
}

func (r *flatHintReader) HintSliceFor(codeItemOffset uint32, methodIdx int) (HintSlice, bool, error) {
	n, err := r.cur.ReadU4()
	if err != nil {
		return nil, false, err
	}
	payload, err := r.cur.ReadBytes(int(n))
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &flatHintSlice{cur: leb128.NewCursor(payload)}, false, nil
}

func (r *flatHintReader) CheckResidue() error {
	if r.cur.Remaining() != 0 && r.cur.Pos() != 0 {
		return verrors.New(verrors.HintResidueError, "006 quickening-info stream has unconsumed bytes after walking all methods")
	}
	return nil
}

// flatHintSlice is one method's (dex_pc, index) pair stream.
type flatHintSlice struct {
	cur *leb128.Cursor
}

func (s *flatHintSlice) Next(pc int) (uint16, error) {
	dexPC, err := s.cur.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if int(dexPC) != pc {
		return 0, verrors.New(verrors.HintAlignmentError, "006 hint dex_pc does not match the current instruction offset").
			WithMethodOffset(uint32(pc))
	}
	idx, err := s.cur.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return uint16(idx), nil
}

func (s *flatHintSlice) PeekPCMatches(pc int) bool {
	peek := s.cur.Clone()
	dexPC, err := peek.ReadULEB128()
	if err != nil {
		return false
	}
	return int(dexPC) == pc
}

func (s *flatHintSlice) Done() bool { return s.cur.Remaining() == 0 }
