package mmapfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenReadsFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	want := []byte("vdex\x30\x30\x36\x00payload bytes here")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	if string(f.Data) != string(want) {
		t.Fatalf("Data = %q, want %q", f.Data, want)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	if len(f.Data) != 0 {
		t.Fatalf("Data = %v, want empty", f.Data)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "does-not-exist.bin")); err == nil {
		t.Fatal("Open() on missing file: want error, got nil")
	}
}
