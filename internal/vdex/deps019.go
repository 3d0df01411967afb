package vdex

import (
	"encoding/binary"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

// depsContainer implements the 019 and 021 layouts: a header carrying
// separate verifier-deps and Dex-section version tags, followed by the
// per-Dex checksum array, an optional Dex-section header + interleaved
// per-Dex quicken-table-offset/Dex pairs, the verifier-deps blob, and
// (021 only) the boot-classpath-checksums and class-loader-context blobs.
// 021 adds two header fields 019 doesn't carry; everything else is
// structurally identical, so one implementation serves both.
type depsContainer struct {
	buf          []byte
	version      Version
	headerSize   uint32 // 20 for 019, 28 for 021
	hasBootPaths bool   // true for 021
}

const dexSectHeaderSize = 12 // dexSize, dexSharedDataSize, quickeningInfoSize
const quickenTableOffsetSize = 4

var dexSectVersionEmpty = [4]byte{'0', '0', '0', 0}

func newDepsContainer(buf []byte, v Version) *depsContainer {
	if v == Version021 {
		return &depsContainer{buf: buf, version: v, headerSize: 28, hasBootPaths: true}
	}
	return &depsContainer{buf: buf, version: v, headerSize: 20, hasBootPaths: false}
}

func (c *depsContainer) Version() Version { return c.version }

func (c *depsContainer) NumberOfDexFiles() uint32 {
	return binary.LittleEndian.Uint32(c.buf[12:16])
}

func (c *depsContainer) verifierDepsSize() uint32 {
	return binary.LittleEndian.Uint32(c.buf[16:20])
}

func (c *depsContainer) bootclasspathChecksumsSize() uint32 {
	if !c.hasBootPaths {
		return 0
	}
	return binary.LittleEndian.Uint32(c.buf[20:24])
}

func (c *depsContainer) classLoaderContextSize() uint32 {
	if !c.hasBootPaths {
		return 0
	}
	return binary.LittleEndian.Uint32(c.buf[24:28])
}

func (c *depsContainer) checksumsSize() uint32 { return 4 * c.NumberOfDexFiles() }

func (c *depsContainer) dexSectionHeaderOffset() uint32 {
	return c.headerSize + c.checksumsSize()
}

// HasDexSection reports whether the dex-section-version tag is the non-empty
// marker ("002"); an all-zero tag means the container carries no Dex blobs
// (verifier-deps-only Vdex, e.g. produced for a secondary boot image).
func (c *depsContainer) HasDexSection() bool {
	var tag [4]byte
	copy(tag[:], c.buf[8:12])
	return tag != dexSectVersionEmpty
}

func (c *depsContainer) dexSectHeader() (dexSize, dexSharedDataSize, quickeningInfoSize uint32) {
	off := c.dexSectionHeaderOffset()
	b := c.buf[off : off+dexSectHeaderSize]
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint32(b[8:12])
}

func (c *depsContainer) dexBeginOffset() uint32 {
	return c.dexSectionHeaderOffset() + dexSectHeaderSize
}

func (c *depsContainer) LocationChecksum(fileIdx int) uint32 {
	off := c.headerSize + 4*uint32(fileIdx)
	return binary.LittleEndian.Uint32(c.buf[off : off+4])
}

func (c *depsContainer) SetLocationChecksum(fileIdx int, value uint32) {
	off := c.headerSize + 4*uint32(fileIdx)
	binary.LittleEndian.PutUint32(c.buf[off:off+4], value)
}

// QuickenTableOffsetFor returns the per-Dex quicken-table-offset value
// stored in the 4 bytes immediately preceding dex.Offset, the value
// vdex_021_GetQuickenInfoOffsetTable reads via ((u4*)dexBuf)[-1].
func (c *depsContainer) QuickenTableOffsetFor(d DexFile) uint32 {
	return binary.LittleEndian.Uint32(c.buf[d.Offset-4 : d.Offset])
}

func (c *depsContainer) DexFiles() ([]DexFile, error) {
	if !c.HasDexSection() {
		return nil, nil
	}
	n := int(c.NumberOfDexFiles())
	dexSize, _, _ := c.dexSectHeader()
	end := c.dexBeginOffset() + dexSize

	out := make([]DexFile, 0, n)
	cur := c.dexBeginOffset()
	for i := 0; i < n; i++ {
		if cur%4 != 0 {
			return nil, verrors.New(verrors.MalformedContainer, "dex entry is not 4-byte aligned").WithDex(i)
		}
		dexOff := cur + quickenTableOffsetSize
		if int(dexOff)+0x24 > len(c.buf) {
			return nil, verrors.New(verrors.MalformedContainer, "dex entry header out of range").WithDex(i)
		}
		fileSize := binary.LittleEndian.Uint32(c.buf[dexOff+0x20 : dexOff+0x24])
		if dexOff+fileSize > uint32(len(c.buf)) || dexOff+fileSize > end {
			return nil, verrors.New(verrors.MalformedContainer, "dex entry extends past dex section").WithDex(i)
		}
		out = append(out, DexFile{
			Index:    i,
			Data:     c.buf[dexOff : dexOff+fileSize],
			Offset:   dexOff,
			Checksum: c.LocationChecksum(i),
		})
		cur = dexOff + fileSize
	}
	if cur != end {
		return nil, verrors.New(verrors.MalformedContainer, "dex section size mismatch after walking all entries")
	}
	return out, nil
}

func (c *depsContainer) verifierDepsStartOffset() uint32 {
	if c.HasDexSection() {
		dexSize, dexSharedDataSize, _ := c.dexSectHeader()
		return c.dexSectionHeaderOffset() + dexSectHeaderSize + dexSize + dexSharedDataSize
	}
	return c.dexSectionHeaderOffset()
}

func (c *depsContainer) VerifierDeps() DataSlice {
	off := c.verifierDepsStartOffset()
	size := c.verifierDepsSize()
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}

func (c *depsContainer) QuickeningInfo() DataSlice {
	if !c.HasDexSection() {
		return DataSlice{}
	}
	deps := c.VerifierDeps()
	_, _, quickeningInfoSize := c.dexSectHeader()
	off := deps.Offset + deps.Size
	return DataSlice{Data: sliceAt(c.buf, off, quickeningInfoSize), Offset: off, Size: quickeningInfoSize}
}

// BootClasspathChecksums returns the 021-only boot-classpath checksum blob.
// 019 containers always report it empty.
func (c *depsContainer) BootClasspathChecksums() DataSlice {
	size := c.bootclasspathChecksumsSize()
	if size == 0 {
		return DataSlice{}
	}
	quick := c.QuickeningInfo()
	var off uint32
	if quick.Size > 0 {
		off = quick.Offset + quick.Size
	} else {
		deps := c.VerifierDeps()
		off = deps.Offset + deps.Size
	}
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}

// ClassLoaderContext returns the 021-only class-loader-context blob.
func (c *depsContainer) ClassLoaderContext() DataSlice {
	size := c.classLoaderContextSize()
	if size == 0 {
		return DataSlice{}
	}
	boot := c.BootClasspathChecksums()
	off := boot.Offset + boot.Size
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}
