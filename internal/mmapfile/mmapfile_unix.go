//go:build unix

package mmapfile

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixMapping struct {
	data []byte
}

func (m *unixMapping) unmap() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}

func openFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return &File{f: f, Data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, Data: data, impl: &unixMapping{data: data}}, nil
}
