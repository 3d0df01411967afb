// Package pretty renders a deterministic textual dump of a parsed Dex file
// and its verifier-deps blocks, used for regression testing and for the
// --dis/--deps CLI output: header summary, class-def table, per-method
// disassembly in "address: raw-bytes | mnemonic operands" form, and
// verifier-deps blocks. Operand indices are resolved against the Dex pools
// on a best-effort basis: some signature-type indices can't be resolved
// reliably from the pools alone, so this falls back to an explicit
// <unresolved> marker rather than guessing.
package pretty

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/kestrelsec/vdextract/internal/dex"
	"github.com/kestrelsec/vdextract/internal/instr"
	"github.com/kestrelsec/vdextract/internal/verifierdeps"
)

// updatedTag marks an instruction whose opcode was rewritten by the
// unquickener.
const updatedTag = "[updated] --->"

// Dumper writes a deterministic dump to w, tagging rewritten instructions
// with ANSI color only when w is a terminal.
type Dumper struct {
	w     io.Writer
	color bool
}

// NewDumper wraps w. Color is enabled only when w is an *os.File attached
// to a terminal, so piping or redirecting output never embeds ANSI escapes
// in what's captured.
func NewDumper(w io.Writer) *Dumper {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Dumper{w: w, color: color}
}

func (d *Dumper) tag(s string) string {
	if !d.color {
		return s
	}
	return "\x1b[33m" + s + "\x1b[0m"
}

// DumpHeader prints the header summary for one Dex file: magic/version,
// kind, and human-readable section sizes.
func (d *Dumper) DumpHeader(name string, f *dex.File) {
	h := f.Header
	fmt.Fprintf(d.w, "=== %s (%s) ===\n", name, f.Kind)
	fmt.Fprintf(d.w, "version=%s checksum=0x%08x fileSize=%s headerSize=%s\n",
		strings.TrimRight(string(h.Version[:]), "\x00"), h.Checksum,
		humanize.Bytes(uint64(h.FileSize)), humanize.Bytes(uint64(h.HeaderSize)))
	fmt.Fprintf(d.w, "strings=%d types=%d protos=%d fields=%d methods=%d classDefs=%d\n",
		h.StringIDsSize, h.TypeIDsSize, h.ProtoIDsSize, h.FieldIDsSize, h.MethodIDsSize, h.ClassDefsSize)
}

// DumpClassDefs prints one line per class-def entry: its type descriptor,
// superclass descriptor, and access flags.
func (d *Dumper) DumpClassDefs(f *dex.File) {
	fmt.Fprintln(d.w, "--- class defs ---")
	for i := uint32(0); i < f.Header.ClassDefsSize; i++ {
		cd, err := f.ClassDefAt(i)
		if err != nil {
			fmt.Fprintf(d.w, "  [%d] <error: %v>\n", i, err)
			continue
		}
		class := d.resolveType(f, cd.ClassIdx)
		super := d.resolveType(f, cd.SuperclassIdx)
		fmt.Fprintf(d.w, "  [%d] %s extends %s accessFlags=0x%x\n", i, class, super, cd.AccessFlags)
	}
}

// DumpMethod disassembles one method's code item. original, when non-nil,
// is a pre-unquicken snapshot of ci.Insns used to detect and tag rewritten
// instructions; pass nil when --unquicken was not requested.
func (d *Dumper) DumpMethod(f *dex.File, m dex.EncodedMethod, ci *dex.CodeItem, original []uint16) {
	name, _ := d.methodLabel(f, m.MethodIdx)
	fmt.Fprintf(d.w, "  method %s registers=%d ins=%d outs=%d\n", name, ci.RegistersSize, ci.InsSize, ci.OutsSize)

	pc := 0
	for pc < int(ci.InsnsSizeInCU) {
		in := instr.At(ci.Insns, pc)
		size := in.SizeInCodeUnits()
		if pc+size > len(ci.Insns) {
			size = len(ci.Insns) - pc
		}

		rewritten := original != nil && pc < len(original) && (original[pc]&0xff) != (ci.Insns[pc]&0xff)

		rawBytes := hexCodeUnits(ci.Insns[pc:min(pc+size, len(ci.Insns))])
		mnemonic := in.Opcode().Name()
		if mnemonic == "" {
			mnemonic = fmt.Sprintf("unknown(0x%02x)", byte(in.Opcode()))
		}
		operands := d.operandsFor(f, in)

		line := fmt.Sprintf("    %04x: %-28s | %-26s %s", pc, rawBytes, mnemonic, operands)
		if rewritten {
			line += " " + d.tag(updatedTag)
		}
		fmt.Fprintln(d.w, strings.TrimRight(line, " "))

		if size <= 0 {
			break
		}
		pc += size
	}
}

// DumpVerifierDeps prints one Dex's decoded verifier-deps structure.
func (d *Dumper) DumpVerifierDeps(f *dex.File, deps *verifierdeps.DexDeps) {
	fmt.Fprintln(d.w, "--- verifier deps ---")
	fmt.Fprintf(d.w, "  extraStrings=%d\n", len(deps.ExtraStrings))
	for _, t := range deps.AssignableTypes {
		fmt.Fprintf(d.w, "  assignable: %s <- %s\n",
			d.resolveDepString(f, deps, t.DestIdx), d.resolveDepString(f, deps, t.SrcIdx))
	}
	for _, t := range deps.UnassignableTypes {
		fmt.Fprintf(d.w, "  unassignable: %s <- %s\n",
			d.resolveDepString(f, deps, t.DestIdx), d.resolveDepString(f, deps, t.SrcIdx))
	}
	for _, c := range deps.Classes {
		status := "resolved"
		if c.AccessFlags == verifierdeps.UnresolvedAccessFlags {
			status = "unresolved"
		}
		fmt.Fprintf(d.w, "  class: %s (%s)\n", d.resolveType(f, c.TypeIdx), status)
	}
	for _, uv := range deps.UnverifiedClasses {
		fmt.Fprintf(d.w, "  unverified: %s\n", d.resolveType(f, uv))
	}
}

func (d *Dumper) resolveDepString(f *dex.File, deps *verifierdeps.DexDeps, idx uint32) string {
	s, err := verifierdeps.ResolveString(f, deps, idx)
	if err != nil {
		return "<string?>"
	}
	return s
}

func (d *Dumper) resolveType(f *dex.File, typeIdx uint32) string {
	s, err := f.TypeDescriptor(typeIdx)
	if err != nil {
		return "<type?>"
	}
	return s
}

func (d *Dumper) methodLabel(f *dex.File, methodIdx uint32) (string, error) {
	m, err := f.MethodIDAt(methodIdx)
	if err != nil {
		return "<method?>", err
	}
	class := d.resolveType(f, uint32(m.ClassIdx))
	name, err := f.StringDataByIdx(m.NameIdx)
	if err != nil {
		name = "<method?>"
	}
	sig, err := f.MethodSignature(m)
	if err != nil {
		sig = "(<unresolved>)"
	}
	proto, err := f.ProtoIDAt(uint32(m.ProtoIdx))
	ret := "<type?>"
	if err == nil {
		ret = d.resolveType(f, proto.ReturnTypeIdx)
	}
	return fmt.Sprintf("%s->%s%s%s", class, name, sig, ret), nil
}

func (d *Dumper) fieldLabel(f *dex.File, fieldIdx uint32) string {
	fld, err := f.FieldIDAt(fieldIdx)
	if err != nil {
		return "<field?>"
	}
	class := d.resolveType(f, uint32(fld.ClassIdx))
	typ := d.resolveType(f, uint32(fld.TypeIdx))
	name, err := f.StringDataByIdx(fld.NameIdx)
	if err != nil {
		name = "<field?>"
	}
	return fmt.Sprintf("%s->%s:%s", class, name, typ)
}

// poolKindFor classifies an opcode mnemonic by which pool its index
// operand names, so operandsFor knows which resolver to call. Opcodes not
// covered here (const-method-handle, polymorphic/custom invokes, and
// anything unrecognized) fall through to a raw-hex rendering, consistent
// with a best-effort resolution policy: print what can be resolved,
// fall back to a marker otherwise.
func poolKindFor(mnemonic string) string {
	switch {
	case strings.HasPrefix(mnemonic, "const-string"):
		return "string"
	case mnemonic == "const-class", mnemonic == "check-cast", mnemonic == "new-instance",
		mnemonic == "instance-of", mnemonic == "new-array",
		mnemonic == "filled-new-array", mnemonic == "filled-new-array/range":
		return "type"
	case strings.HasPrefix(mnemonic, "iget"), strings.HasPrefix(mnemonic, "iput"),
		strings.HasPrefix(mnemonic, "sget"), strings.HasPrefix(mnemonic, "sput"):
		return "field"
	case strings.HasPrefix(mnemonic, "invoke-polymorphic"), strings.HasPrefix(mnemonic, "invoke-custom"):
		return ""
	case strings.HasPrefix(mnemonic, "invoke"):
		return "method"
	default:
		return ""
	}
}

// operandsFor renders an instruction's register/index operands. Pool-index
// operands route through poolKindFor's resolver; every other operand is
// printed as a bare register or immediate.
func (d *Dumper) operandsFor(f *dex.File, in *instr.Instruction) string {
	mnemonic := in.Opcode().Name()
	kind := poolKindFor(mnemonic)
	if kind == "" {
		return d.rawOperands(in)
	}

	idx, err := indexOperand(in)
	if err != nil {
		return "<unresolved>"
	}

	switch kind {
	case "string":
		s, err := f.StringDataByIdx(idx)
		if err != nil {
			return "<string?>"
		}
		return fmt.Sprintf("%q", s)
	case "type":
		return d.resolveType(f, idx)
	case "field":
		return d.fieldLabel(f, idx)
	case "method":
		s, _ := d.methodLabel(f, idx)
		return s
	default:
		return "<unresolved>"
	}
}

// indexOperand extracts the pool-index field from whichever format the
// instruction uses: vB for 21c/31c/35c/3rc, vC for 22c.
func indexOperand(in *instr.Instruction) (uint32, error) {
	switch in.Format() {
	case instr.Fmt22c:
		return in.VRegC()
	default:
		return in.VRegB()
	}
}

func (d *Dumper) rawOperands(in *instr.Instruction) string {
	var parts []string
	if a, err := in.VRegA(); err == nil {
		parts = append(parts, fmt.Sprintf("v%d", a))
	}
	if b, err := in.VRegB(); err == nil {
		parts = append(parts, fmt.Sprintf("0x%x", b))
	}
	return strings.Join(parts, ", ")
}

func hexCodeUnits(cu []uint16) string {
	var sb strings.Builder
	for i, u := range cu {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%04x", u)
	}
	return sb.String()
}
