package quicken

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

// indexEntry010 is one (codeItemOffset, hintPayloadOffset) pair from a
// Dex's slice of the 010 index table.
type indexEntry010 struct {
	codeOff    uint32
	payloadOff uint32
}

// indexedReader010 implements the 010 schema: a per-Dex slice of the index
// table that lives in the last numberOfDexFiles*4 bytes of the
// quickening-info blob. Each tail entry gives the byte offset within the
// blob where that Dex's own (codeOff, payloadOff) pair array begins; the
// array runs until the next Dex's start (or the tail table itself, for the
// last Dex).
type indexedReader010 struct {
	blob    []byte
	entries []indexEntry010
	pos     int
}

// NewIndexedHintReader010 builds the reader for one Dex file's region of a
// 010 container's quickening-info blob.
func NewIndexedHintReader010(quickInfo []byte, numDexFiles, dexIndex int) (*indexedReader010, error) {
	tailSize := numDexFiles * 4
	if len(quickInfo) < tailSize {
		return nil, verrors.New(verrors.MalformedContainer, "010 quickening-info blob shorter than its per-Dex tail table")
	}
	tailStart := len(quickInfo) - tailSize
	tail := quickInfo[tailStart:]

	myStart := binary.LittleEndian.Uint32(tail[dexIndex*4 : dexIndex*4+4])
	var end uint32
	if dexIndex+1 < numDexFiles {
		end = binary.LittleEndian.Uint32(tail[(dexIndex+1)*4 : (dexIndex+1)*4+4])
	} else {
		end = uint32(tailStart)
	}
	if int(end) > tailStart || myStart > end {
		return nil, verrors.New(verrors.MalformedContainer, "010 quickening-info per-Dex table region out of range")
	}

	var entries []indexEntry010
	for off := myStart; off+8 <= end; off += 8 {
		entries = append(entries, indexEntry010{
			codeOff:    binary.LittleEndian.Uint32(quickInfo[off : off+4]),
			payloadOff: binary.LittleEndian.Uint32(quickInfo[off+4 : off+8]),
		})
	}
	return &indexedReader010{blob: quickInfo, entries: entries}, nil
}

func (r *indexedReader010) HintSliceFor(codeItemOffset uint32, methodIdx int) (HintSlice, bool, error) {
	if r.pos >= len(r.entries) || r.entries[r.pos].codeOff != codeItemOffset {
		return nil, false, nil
	}
	e := r.entries[r.pos]
	r.pos++

	if int(e.payloadOff)+4 > len(r.blob) {
		return nil, false, verrors.New(verrors.MalformedContainer, "010 hint payload length out of range")
	}
	length := binary.LittleEndian.Uint32(r.blob[e.payloadOff : e.payloadOff+4])
	start := e.payloadOff + 4
	if int(start+length) > len(r.blob) {
		return nil, false, verrors.New(verrors.MalformedContainer, "010 hint payload out of range")
	}
	raw := r.blob[start : start+length]
	hints := make([]uint16, length/2)
	for i := range hints {
		hints[i] = binary.LittleEndian.Uint16(raw[i*2 : i*2+2])
	}
	return &indexedHintSlice{hints: hints}, false, nil
}

func (r *indexedReader010) CheckResidue() error {
	if r.pos != 0 && r.pos != len(r.entries) {
		return verrors.New(verrors.HintResidueError, "010 per-Dex index table has unconsumed entries after walking all methods")
	}
	return nil
}
