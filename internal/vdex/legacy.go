package vdex

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

// legacyHeaderSize is sizeof(vdexHeader_006)==sizeof(vdexHeader_010): magic,
// version, numberOfDexFiles, dexSize, verifierDepsSize, quickeningInfoSize.
const legacyHeaderSize = 24

// legacyContainer implements the 006 and 010 layouts, which are byte-for-
// byte identical save for the version string and the shape of their
// quickening-info hint stream (handled by internal/quicken, not here):
// header, per-Dex checksum array, a contiguous Dex blob, verifier-deps
// blob, quickening-info blob.
type legacyContainer struct {
	buf     []byte
	version Version
}

func newLegacyContainer(buf []byte, v Version) *legacyContainer {
	return &legacyContainer{buf: buf, version: v}
}

func (c *legacyContainer) Version() Version { return c.version }

func (c *legacyContainer) NumberOfDexFiles() uint32 {
	return binary.LittleEndian.Uint32(c.buf[8:12])
}

func (c *legacyContainer) dexSize() uint32 {
	return binary.LittleEndian.Uint32(c.buf[12:16])
}

func (c *legacyContainer) verifierDepsSize() uint32 {
	return binary.LittleEndian.Uint32(c.buf[16:20])
}

func (c *legacyContainer) quickeningInfoSize() uint32 {
	return binary.LittleEndian.Uint32(c.buf[20:24])
}

func (c *legacyContainer) checksumsSize() uint32 {
	return 4 * c.NumberOfDexFiles()
}

func (c *legacyContainer) HasDexSection() bool { return c.dexSize() != 0 }

func (c *legacyContainer) dexBeginOffset() uint32 {
	return legacyHeaderSize + c.checksumsSize()
}

func (c *legacyContainer) dexEndOffset() uint32 {
	return c.dexBeginOffset() + c.dexSize()
}

func (c *legacyContainer) LocationChecksum(fileIdx int) uint32 {
	off := legacyHeaderSize + 4*fileIdx
	return binary.LittleEndian.Uint32(c.buf[off : off+4])
}

func (c *legacyContainer) SetLocationChecksum(fileIdx int, value uint32) {
	off := legacyHeaderSize + 4*fileIdx
	binary.LittleEndian.PutUint32(c.buf[off:off+4], value)
}

func (c *legacyContainer) DexFiles() ([]DexFile, error) {
	if !c.HasDexSection() {
		return nil, nil
	}
	n := int(c.NumberOfDexFiles())
	out := make([]DexFile, 0, n)
	cur := c.dexBeginOffset()
	end := c.dexEndOffset()
	for i := 0; i < n; i++ {
		if int(cur)+0x24 > len(c.buf) {
			return nil, verrors.New(verrors.MalformedContainer, "dex entry header out of range").WithDex(i)
		}
		fileSize := binary.LittleEndian.Uint32(c.buf[cur+0x20 : cur+0x24])
		if cur+fileSize > uint32(len(c.buf)) || cur+fileSize > end {
			return nil, verrors.New(verrors.MalformedContainer, "dex entry extends past dex section").WithDex(i)
		}
		out = append(out, DexFile{
			Index:    i,
			Data:     c.buf[cur : cur+fileSize],
			Offset:   cur,
			Checksum: c.LocationChecksum(i),
		})
		cur += fileSize
	}
	if cur != end {
		return nil, verrors.New(verrors.MalformedContainer, "dex section size mismatch after walking all entries")
	}
	return out, nil
}

func (c *legacyContainer) VerifierDeps() DataSlice {
	off := c.dexEndOffset()
	size := c.verifierDepsSize()
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}

func (c *legacyContainer) QuickeningInfo() DataSlice {
	deps := c.VerifierDeps()
	off := deps.Offset + deps.Size
	size := c.quickeningInfoSize()
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}

func sliceAt(buf []byte, off, size uint32) []byte {
	if size == 0 {
		return nil
	}
	if int(off+size) > len(buf) {
		return nil
	}
	return buf[off : off+size]
}
