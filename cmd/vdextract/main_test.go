package main

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelsec/vdextract/internal/dex"
	"github.com/kestrelsec/vdextract/internal/vdex"
)

// buildLegacyFixture assembles a 006/010-layout container (24-byte header,
// per-Dex checksum array, contiguous Dex blobs, no verifier-deps or
// quickening-info), mirroring internal/vdex's own legacy test fixtures.
func buildLegacyFixture(version string, dexBlobs [][]byte) []byte {
	const legacyHeaderSize = 24
	n := len(dexBlobs)
	dexSize := 0
	for _, b := range dexBlobs {
		dexSize += len(b)
	}
	checksumsSize := 4 * n
	buf := make([]byte, legacyHeaderSize+checksumsSize+dexSize)
	copy(buf[0:4], "vdex")
	copy(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(dexSize))

	cur := legacyHeaderSize + checksumsSize
	for i, b := range dexBlobs {
		binary.LittleEndian.PutUint32(buf[24+4*i:24+4*i+4], 0xdeadbeef)
		copy(buf[cur:], b)
		cur += len(b)
	}
	return buf
}

// minimalDexBlob builds a Dex header with no string/type/method/class-def
// pools, enough to satisfy dex.Parse and walkDex (which visits zero class
// defs) without exercising any pool accessor.
func minimalDexBlob(fileSize uint32) []byte {
	blob := make([]byte, fileSize)
	copy(blob[0:4], "dex\n")
	copy(blob[4:8], "035\x00")
	binary.LittleEndian.PutUint32(blob[0x20:], fileSize) // fileSize
	binary.LittleEndian.PutUint32(blob[0x24:], 0x70)      // headerSize
	return blob
}

// buildEmptySectionedFixture builds a 027 container with zero section
// descriptors, the "verifier-deps-only, no Dex blobs" shape.
func buildEmptySectionedFixture() []byte {
	buf := make([]byte, 12)
	copy(buf[0:4], "vdex")
	copy(buf[4:8], "027\x00")
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	return buf
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func TestCmdMainExtractsSingleDex006(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, "sample.vdex", buildLegacyFixture("006\x00", [][]byte{minimalDexBlob(0x70)}))

	code := cmdMain([]string{"--input=" + fixture, "--output=" + dir})
	if code != exitOK {
		t.Fatalf("cmdMain() = %d, want %d", code, exitOK)
	}

	out := filepath.Join(dir, "sample_classes.dex")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading %s: %v", out, err)
	}
	f, err := dex.Parse(data)
	if err != nil {
		t.Fatalf("parsing extracted dex: %v", err)
	}
	if got := dex.ComputeCRC(data, f.Header.FileSize); got != f.Header.Checksum {
		t.Fatalf("extracted dex checksum = %#x, want repaired value %#x", f.Header.Checksum, got)
	}
}

func TestCmdMainExtractsTwoDex010(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, "two.vdex", buildLegacyFixture("010\x00", [][]byte{
		minimalDexBlob(0x70),
		minimalDexBlob(0x78),
	}))

	code := cmdMain([]string{"--input=" + fixture, "--output=" + dir})
	if code != exitOK {
		t.Fatalf("cmdMain() = %d, want %d", code, exitOK)
	}
	for _, name := range []string{"two_classes.dex", "two_classes2.dex"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected output %s: %v", name, err)
		}
	}
}

func TestCmdMainNoDexSectionWritesNothing(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, "nodex.vdex", buildEmptySectionedFixture())

	code := cmdMain([]string{"--input=" + fixture, "--output=" + dir})
	if code != exitOK {
		t.Fatalf("cmdMain() = %d, want %d (no Dex data is not an error)", code, exitOK)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "nodex.vdex" {
			t.Fatalf("unexpected output file %s written for a container with no Dex section", e.Name())
		}
	}
}

func TestCmdMainGetAPILevel(t *testing.T) {
	cases := []struct {
		version string
		want    string
	}{
		{"006\x00", "API-26"},
		{"010\x00", "API-27"},
		{"019\x00", "API-28"},
		{"021\x00", "API-29"},
	}
	for _, c := range cases {
		dir := t.TempDir()
		fixture := writeFixture(t, dir, "v.vdex", []byte("vdex"+c.version))
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("os.Pipe() error = %v", err)
		}
		stdout := os.Stdout
		os.Stdout = w
		code := cmdMain([]string{"--input=" + fixture, "--get-api-level"})
		os.Stdout = stdout
		w.Close()
		out, _ := io.ReadAll(r)
		r.Close()
		if code != exitOK {
			t.Fatalf("version %q: cmdMain() = %d, want %d", c.version, code, exitOK)
		}
		if got := strings.TrimSpace(string(out)); got != c.want {
			t.Fatalf("version %q: printed %q, want %q", c.version, got, c.want)
		}
	}
}

func TestCmdMainGetAPILevelUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, "v.vdex", buildEmptySectionedFixture())
	code := cmdMain([]string{"--input=" + fixture, "--get-api-level"})
	if code != exitProcess {
		t.Fatalf("cmdMain() = %d, want %d (027 has no API-level mapping)", code, exitProcess)
	}
}

func TestCmdMainMissingInputIsArgumentError(t *testing.T) {
	if code := cmdMain([]string{}); code != exitArgument {
		t.Fatalf("cmdMain() with no --input = %d, want %d", code, exitArgument)
	}
}

func TestCmdMainRejectsUnknownFlag(t *testing.T) {
	if code := cmdMain([]string{"--input=x", "--bogus"}); code != exitArgument {
		t.Fatalf("cmdMain() with unknown flag = %d, want %d", code, exitArgument)
	}
}

func TestCmdMainMissingFileIsProcessError(t *testing.T) {
	if code := cmdMain([]string{"--input=/nonexistent/path/here.vdex"}); code != exitProcess {
		t.Fatalf("cmdMain() on missing input = %d, want %d", code, exitProcess)
	}
}

func TestParseArgsDebugRequiresValue(t *testing.T) {
	if _, err := parseArgs([]string{"--input=x", "--debug"}); err == nil {
		t.Fatal("parseArgs() with bare --debug: want error, got nil")
	}
}

func TestParseArgsDebugRejectsNonInteger(t *testing.T) {
	if _, err := parseArgs([]string{"--input=x", "--debug=high"}); err == nil {
		t.Fatal("parseArgs() with --debug=high: want error, got nil")
	}
}

func TestParseArgsAcceptsKnownFlags(t *testing.T) {
	cfg, err := parseArgs([]string{
		"--input=in.vdex", "--output=out", "--file-override", "--unquicken",
		"--dis", "--deps", "--ignore-crc-error", "--debug=3",
		"--manifest-dsn=sqlite:/tmp/x.db",
	})
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if cfg.input != "in.vdex" || cfg.output != "out" || !cfg.fileOverride || !cfg.unquicken ||
		!cfg.dis || !cfg.deps || !cfg.ignoreCRC || cfg.debug != 3 || cfg.manifestDSN != "sqlite:/tmp/x.db" {
		t.Fatalf("parseArgs() = %+v, fields not populated as expected", cfg)
	}
}

func TestApiLevelForUnknownVersion(t *testing.T) {
	if _, ok := apiLevelFor(vdex.Version027); ok {
		t.Fatal("apiLevelFor(Version027) ok = true, want false")
	}
}

func TestOutputDexPathNaming(t *testing.T) {
	cases := []struct {
		idx  int
		kind dex.Kind
		want string
	}{
		{0, dex.KindNormalDex, "base_classes.dex"},
		{1, dex.KindNormalDex, "base_classes2.dex"},
		{2, dex.KindCompactDex, "base_classes3.cdex"},
	}
	for _, c := range cases {
		got := outputDexPath("/out", "base", c.idx, c.kind)
		if filepath.Base(got) != c.want {
			t.Fatalf("outputDexPath(idx=%d, kind=%v) = %s, want basename %s", c.idx, c.kind, got, c.want)
		}
	}
}

func TestReadNewCRCsParsesHexAndDecimal(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "crcs.txt", []byte("0xDEADBEEF\n12345\n\n0x1\n"))
	got, err := readNewCRCs(path)
	if err != nil {
		t.Fatalf("readNewCRCs() error = %v", err)
	}
	want := []uint32{0xDEADBEEF, 12345, 1}
	if len(got) != len(want) {
		t.Fatalf("readNewCRCs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("readNewCRCs()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReadNewCRCsRejectsInvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "crcs.txt", []byte("not-a-number\n"))
	if _, err := readNewCRCs(path); err == nil {
		t.Fatal("readNewCRCs() on garbage line: want error, got nil")
	}
}

func TestCmdMainNewCRCWritesUpdatedCopy(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, "sample.vdex", buildLegacyFixture("006\x00", [][]byte{minimalDexBlob(0x70)}))
	crcFile := writeFixture(t, dir, "crcs.txt", []byte("0x1\n"))

	code := cmdMain([]string{"--input=" + fixture, "--output=" + dir, "--new-crc=" + crcFile})
	if code != exitOK {
		t.Fatalf("cmdMain() = %d, want %d", code, exitOK)
	}
	updated := filepath.Join(dir, "sample_updated.vdex")
	data, err := os.ReadFile(updated)
	if err != nil {
		t.Fatalf("reading %s: %v", updated, err)
	}
	container, err := vdex.Detect(data)
	if err != nil {
		t.Fatalf("Detect() on updated fixture: %v", err)
	}
	dexFiles, err := container.DexFiles()
	if err != nil {
		t.Fatalf("DexFiles() error = %v", err)
	}
	if len(dexFiles) != 1 || dexFiles[0].Checksum != 1 {
		t.Fatalf("DexFiles() = %+v, want one entry with checksum 1", dexFiles)
	}
}
