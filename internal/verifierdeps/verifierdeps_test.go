package verifierdeps

import (
	"testing"

	"github.com/kestrelsec/vdextract/internal/verrors"
)

// buildSingleDexBlob hand-encodes one Dex's worth of verifier-deps data:
// 1 extra string "Foo", 1 assignable-type pair, 0 unassignable types,
// 1 class (unresolved), 0 fields, 0 methods, 1 unverified class.
func buildSingleDexBlob() []byte {
	var b []byte
	// extraStrings: count=1, "Foo\0"
	b = append(b, 1)
	b = append(b, 'F', 'o', 'o', 0)
	// assignableTypes: count=1, (dst=2, src=3)
	b = append(b, 1, 2, 3)
	// unassignableTypes: count=0
	b = append(b, 0)
	// classes: count=1, (typeIdx=5, accessFlags=0xFFFF as ULEB128)
	b = append(b, 1, 5)
	b = append(b, uleb128(UnresolvedAccessFlags)...)
	// fields: count=0
	b = append(b, 0)
	// methods: count=0
	b = append(b, 0)
	// unverifiedClasses: count=1, typeIdx=7
	b = append(b, 1, 7)
	return b
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func TestDecodeDexSingle(t *testing.T) {
	blob := buildSingleDexBlob()
	d := NewDecoder(blob)

	deps, err := d.DecodeDex()
	if err != nil {
		t.Fatalf("DecodeDex() error = %v", err)
	}
	if len(deps.ExtraStrings) != 1 || deps.ExtraStrings[0] != "Foo" {
		t.Fatalf("ExtraStrings = %v, want [\"Foo\"]", deps.ExtraStrings)
	}
	if len(deps.AssignableTypes) != 1 || deps.AssignableTypes[0] != (TypeAssignability{DestIdx: 2, SrcIdx: 3}) {
		t.Fatalf("AssignableTypes = %v, want [{2 3}]", deps.AssignableTypes)
	}
	if len(deps.UnassignableTypes) != 0 {
		t.Fatalf("UnassignableTypes = %v, want empty", deps.UnassignableTypes)
	}
	if len(deps.Classes) != 1 || deps.Classes[0].TypeIdx != 5 || deps.Classes[0].AccessFlags != UnresolvedAccessFlags {
		t.Fatalf("Classes = %v, want [{5 0xFFFF}]", deps.Classes)
	}
	if len(deps.UnverifiedClasses) != 1 || deps.UnverifiedClasses[0] != 7 {
		t.Fatalf("UnverifiedClasses = %v, want [7]", deps.UnverifiedClasses)
	}
	if d.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", d.Remaining())
	}
}

func TestDecodeDexSequentialAcrossContainer(t *testing.T) {
	one := buildSingleDexBlob()
	blob := append(append([]byte{}, one...), one...)
	d := NewDecoder(blob)

	if _, err := d.DecodeDex(); err != nil {
		t.Fatalf("first DecodeDex() error = %v", err)
	}
	if d.Remaining() != len(one) {
		t.Fatalf("Remaining() after first Dex = %d, want %d", d.Remaining(), len(one))
	}
	if _, err := d.DecodeDex(); err != nil {
		t.Fatalf("second DecodeDex() error = %v", err)
	}
	if d.Remaining() != 0 {
		t.Fatalf("Remaining() after second Dex = %d, want 0", d.Remaining())
	}
}

func TestDecodeDexOverflow(t *testing.T) {
	blob := []byte{5} // claims 5 extra strings, but provides none
	d := NewDecoder(blob)

	_, err := d.DecodeDex()
	if err == nil {
		t.Fatal("DecodeDex() on truncated blob: want error, got nil")
	}
	if kind, ok := verrors.KindOf(err); !ok || kind != verrors.VerifierDepsOverflow {
		t.Fatalf("KindOf(err) = %v, %v; want VerifierDepsOverflow, true", kind, ok)
	}
}
