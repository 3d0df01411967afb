// Package mmapfile opens an input file read-only and maps it into memory
// for the duration of its processing unit, implementing the resource
// model: the mapping is scoped to one file and released at end of run, and
// every decoder in this module holds only immutable borrows into it.
package mmapfile

import "os"

// File is a read-only memory mapping of one input file. Data is valid
// until Close is called.
type File struct {
	f    *os.File
	Data []byte
	impl mapping
}

// mapping is the platform-specific handle Close releases; the unix and
// portable-fallback implementations populate it differently.
type mapping interface {
	unmap() error
}

// Open maps path read-only. On platforms without golang.org/x/sys/unix
// support this falls back to reading the whole file into memory, which
// behaves identically from the caller's point of view (Data is read-only
// and Close still releases it).
func Open(path string) (*File, error) {
	return openFile(path)
}

// Close releases the mapping (or, on the fallback path, simply closes the
// underlying file handle — the buffer is left to the garbage collector).
func (f *File) Close() error {
	var err error
	if f.impl != nil {
		err = f.impl.unmap()
	}
	if f.f != nil {
		if cerr := f.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
