package vdex

import (
	"encoding/binary"

	"golang.org/x/exp/slices"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

// Section kinds from the 027 section-descriptor table, in the fixed order
// ART writes them (checksums, dex, verifier-deps, type-lookup tables).
const (
	sectionChecksum = iota
	sectionDexFile
	sectionVerifierDeps
	sectionTypeLookupTable

	numberOfSections027 = 4
)

const (
	sectionedHeaderSize = 12 // magic, vdexVersion, numberOfSections
	sectionDescSize     = 12 // sectionKind, sectionOffset, sectionSize
)

// sectionedContainer implements the 027 layout: a short fixed header
// followed by a table of section descriptors, each an (offset, size) pair
// into the rest of the file. 027 carries no quickening-info section at
// all — ART stopped emitting quickened bytecode into Vdex files by this
// revision, so QuickeningInfo always reports empty here.
type sectionedContainer struct {
	buf []byte
}

func newSectionedContainer(buf []byte) *sectionedContainer {
	return &sectionedContainer{buf: buf}
}

func (c *sectionedContainer) Version() Version { return Version027 }

func (c *sectionedContainer) numberOfSections() uint32 {
	return binary.LittleEndian.Uint32(c.buf[8:12])
}

// sectionDesc is one decoded entry of the 027 section-descriptor table.
type sectionDesc struct {
	kind   uint32
	offset uint32
	size   uint32
}

// sectionDescs decodes every descriptor and returns them sorted by kind,
// so section can binary-search them. The table is decoded and sorted again
// on every section call (NumberOfDexFiles, HasDexSection, LocationChecksum,
// SetLocationChecksum, DexFiles, VerifierDeps and TypeLookupTable all go
// through section); nothing is cached.
func (c *sectionedContainer) sectionDescs() ([]sectionDesc, error) {
	n := c.numberOfSections()
	out := make([]sectionDesc, 0, n)
	for i := uint32(0); i < n; i++ {
		off := sectionedHeaderSize + i*sectionDescSize
		if int(off)+sectionDescSize > len(c.buf) {
			return nil, verrors.New(verrors.MalformedContainer, "section descriptor table out of range")
		}
		b := c.buf[off : off+sectionDescSize]
		out = append(out, sectionDesc{
			kind:   binary.LittleEndian.Uint32(b[0:4]),
			offset: binary.LittleEndian.Uint32(b[4:8]),
			size:   binary.LittleEndian.Uint32(b[8:12]),
		})
	}
	slices.SortFunc(out, func(a, b sectionDesc) int {
		switch {
		case a.kind < b.kind:
			return -1
		case a.kind > b.kind:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func (c *sectionedContainer) section(kind uint32) (offset, size uint32, err error) {
	descs, err := c.sectionDescs()
	if err != nil {
		return 0, 0, err
	}
	i, found := slices.BinarySearchFunc(descs, sectionDesc{kind: kind}, func(a, b sectionDesc) int {
		switch {
		case a.kind < b.kind:
			return -1
		case a.kind > b.kind:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return 0, 0, nil
	}
	return descs[i].offset, descs[i].size, nil
}

func (c *sectionedContainer) NumberOfDexFiles() uint32 {
	_, size, err := c.section(sectionChecksum)
	if err != nil || size == 0 {
		return 0
	}
	return size / 4
}

func (c *sectionedContainer) HasDexSection() bool {
	_, size, err := c.section(sectionDexFile)
	return err == nil && size != 0
}

func (c *sectionedContainer) LocationChecksum(fileIdx int) uint32 {
	off, _, err := c.section(sectionChecksum)
	if err != nil {
		return 0
	}
	entry := off + 4*uint32(fileIdx)
	return binary.LittleEndian.Uint32(c.buf[entry : entry+4])
}

func (c *sectionedContainer) SetLocationChecksum(fileIdx int, value uint32) {
	off, _, err := c.section(sectionChecksum)
	if err != nil {
		return
	}
	entry := off + 4*uint32(fileIdx)
	binary.LittleEndian.PutUint32(c.buf[entry:entry+4], value)
}

func (c *sectionedContainer) DexFiles() ([]DexFile, error) {
	if !c.HasDexSection() {
		return nil, nil
	}
	begin, size, err := c.section(sectionDexFile)
	if err != nil {
		return nil, err
	}
	end := begin + size
	n := int(c.NumberOfDexFiles())

	out := make([]DexFile, 0, n)
	cur := begin
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

func (c *sectionedContainer) VerifierDeps() DataSlice {
	off, size, err := c.section(sectionVerifierDeps)
	if err != nil || size == 0 {
		return DataSlice{}
	}
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}

// QuickeningInfo always returns an empty slice: 027 containers carry no
// quickening-info section, so there is nothing for internal/quicken to
// reverse ("no hints available" for every method in this version).
func (c *sectionedContainer) QuickeningInfo() DataSlice {
	return DataSlice{}
}

// TypeLookupTable returns the 027-only hashed type-lookup-table blob.
func (c *sectionedContainer) TypeLookupTable() DataSlice {
	off, size, err := c.section(sectionTypeLookupTable)
	if err != nil || size == 0 {
		return DataSlice{}
	}
	return DataSlice{Data: sliceAt(c.buf, off, size), Offset: off, Size: size}
}
