// Package quicken implements the per-version quickening-hint readers and
// the shared unquickening algorithm: walking a method's instruction
// stream, correlating each quickened opcode with the next hint, and
// rewriting it back to its canonical form in place.
package quicken

import "github.com/kestrelsec/vdextract/internal/verrors"

// sentinelU16 marks a NOP that genuinely is a NOP — the hint stream still
// carries an entry for it, but the value tells the unquickener not to
// rewrite it to CHECK_CAST.
const sentinelU16 = 0xffff

// HintSlice is a per-method cursor over quickening hints, consumed
// identically by the unquickener regardless of which version produced it.
type HintSlice interface {
	// Next returns the next hint value for the instruction at code-unit
	// offset pc. Versions that tag each hint with its own dex_pc (006)
	// validate pc against that tag and fail with HintAlignmentError on
	// mismatch; other versions ignore pc.
	Next(pc int) (uint16, error)
	// PeekPCMatches reports whether the upcoming hint (if any remains) is
	// tagged for pc, without consuming it. Always true for versions with
	// no per-hint dex_pc tag.
	PeekPCMatches(pc int) bool
	// Done reports whether every hint in this slice has been consumed.
	Done() bool
}

// HintReader is implemented once per Vdex version and produces the
// HintSlice for a given method's code item, one of a closed set of schemas
// (flat stream, per-Dex index table, compact offset table, or no hints at
// all).
type HintReader interface {
	// HintSliceFor returns the hint cursor for the method whose code item
	// lives at codeItemOffset. skip reports that this exact code item was
	// already unquickened via an earlier method sharing it (021's
	// CompactDex dedup case) and must not be walked again at all.
	HintSliceFor(codeItemOffset uint32, methodIdx int) (slice HintSlice, skip bool, err error)
	// CheckResidue validates that after all methods in the Dex have been
	// visited, the hint cursor is either fully consumed or untouched (the
	// permissive "duplicate methods, no method matched" case). Any other
	// residual is HintResidueError.
	CheckResidue() error
}

// indexedHintSlice is the shared cursor shape for 010 and 021: a flat list
// of raw little-endian u2 hint values with no per-hint dex_pc tag.
type indexedHintSlice struct {
	hints []uint16
	pos   int
}

func (s *indexedHintSlice) Next(pc int) (uint16, error) {
	if s.pos >= len(s.hints) {
		return 0, verrors.New(verrors.HintExhausted, "hint cursor exhausted before instruction stream")
	}
	v := s.hints[s.pos]
	s.pos++
	return v, nil
}

func (s *indexedHintSlice) PeekPCMatches(pc int) bool { return true }

func (s *indexedHintSlice) Done() bool { return s.pos == len(s.hints) }
