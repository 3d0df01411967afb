//go:build !unix

package mmapfile

import "os"

func openFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, Data: data}, nil
}
