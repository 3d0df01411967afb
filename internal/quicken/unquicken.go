package quicken

import (
	"github.com/kestrelsec/vdextract/internal/dex"
	"github.com/kestrelsec/vdextract/internal/instr"
	"github.com/kestrelsec/vdextract/internal/verrors"
)

// quickToPlain maps each IGET*/IPUT*_QUICK opcode to the canonical opcode
// it rewrites to. Both sides share format k22c, so the rewrite never
// changes the instruction's size.
var quickToPlain = map[instr.Opcode]instr.Opcode{
	instr.IGET_QUICK:         instr.IGET,
	instr.IGET_WIDE_QUICK:    instr.IGET_WIDE,
	instr.IGET_OBJECT_QUICK:  instr.IGET_OBJECT,
	instr.IGET_BOOLEAN_QUICK: instr.IGET_BOOLEAN,
	instr.IGET_BYTE_QUICK:    instr.IGET_BYTE,
	instr.IGET_CHAR_QUICK:    instr.IGET_CHAR,
	instr.IGET_SHORT_QUICK:   instr.IGET_SHORT,
	instr.IPUT_QUICK:         instr.IPUT,
	instr.IPUT_WIDE_QUICK:    instr.IPUT_WIDE,
	instr.IPUT_OBJECT_QUICK:  instr.IPUT_OBJECT,
	instr.IPUT_BOOLEAN_QUICK: instr.IPUT_BOOLEAN,
	instr.IPUT_BYTE_QUICK:    instr.IPUT_BYTE,
	instr.IPUT_CHAR_QUICK:    instr.IPUT_CHAR,
	instr.IPUT_SHORT_QUICK:   instr.IPUT_SHORT,
}

// UnquickenMethod walks a single method's code item, rewriting every
// quickened opcode back to its canonical form by consuming hints from the
// given slice. hints may be nil, meaning the method carries no quickening
// hints at all (still applies the unconditional RETURN_VOID_NO_BARRIER
// rewrite, which consumes no hint).
func UnquickenMethod(ci *dex.CodeItem, hints HintSlice) error {
	pc := 0
	for pc < int(ci.InsnsSizeInCU) {
		in := instr.At(ci.Insns, pc)
		op := in.Opcode()

		switch {
		case op == instr.RETURN_VOID_NO_BARRIER:
			in.SetOpcode(instr.RETURN_VOID)

		case op == instr.NOP:
			if hints != nil && !hints.Done() && hints.PeekPCMatches(pc) {
				idx1, err := hints.Next(pc)
				if err != nil {
					return err
				}
				if idx1 != sentinelU16 {
					idx2, err := hints.Next(pc)
					if err != nil {
						return err
					}
					in.SetOpcode(instr.CHECK_CAST)
					if err := in.SetVRegA21c(uint8(idx1)); err != nil {
						return err
					}
					if err := in.SetVRegB21c(idx2); err != nil {
						return err
					}
				}
			}

		case op == instr.INVOKE_VIRTUAL_QUICK:
			if hints == nil {
				return verrors.New(verrors.HintExhausted, "quickened invoke-virtual with no hint stream available").WithMethodOffset(uint32(pc))
			}
			idx, err := hints.Next(pc)
			if err != nil {
				return err
			}
			in.SetOpcode(instr.INVOKE_VIRTUAL)
			if err := in.SetVRegB35c(idx); err != nil {
				return err
			}

		case op == instr.INVOKE_VIRTUAL_RANGE_QUICK:
			if hints == nil {
				return verrors.New(verrors.HintExhausted, "quickened invoke-virtual/range with no hint stream available").WithMethodOffset(uint32(pc))
			}
			idx, err := hints.Next(pc)
			if err != nil {
				return err
			}
			in.SetOpcode(instr.INVOKE_VIRTUAL_RANGE)
			if err := in.SetVRegB3rc(idx); err != nil {
				return err
			}

		default:
			if plain, ok := quickToPlain[op]; ok {
				if hints == nil {
					return verrors.New(verrors.HintExhausted, "quickened field accessor with no hint stream available").WithMethodOffset(uint32(pc))
				}
				idx, err := hints.Next(pc)
				if err != nil {
					return err
				}
				in.SetOpcode(plain)
				if err := in.SetVRegC22c(idx); err != nil {
					return err
				}
			}
		}

		pc += in.SizeInCodeUnits()
	}
	return nil
}

// WalkDex visits every method with a code item across every class def in
// f, in class-def order then direct-methods-then-virtual-methods order,
// and unquickens each one against reader. Mutations are written back to
// f.Buf through dex.File.PutInsns as each code item is finished.
func WalkDex(f *dex.File, reader HintReader) error {
	for classIdx := uint32(0); classIdx < f.Header.ClassDefsSize; classIdx++ {
		cd, err := f.ClassDefAt(classIdx)
		if err != nil {
			return err
		}
		if cd.ClassDataOff == 0 {
			continue
		}
		classData, err := f.ClassDataAt(cd.ClassDataOff)
		if err != nil {
			return err
		}
		if err := walkMethods(f, reader, classData.DirectMethods); err != nil {
			return err
		}
		if err := walkMethods(f, reader, classData.VirtualMethods); err != nil {
			return err
		}
	}
	return reader.CheckResidue()
}

func walkMethods(f *dex.File, reader HintReader, methods []dex.EncodedMethod) error {
	for _, m := range methods {
		if m.CodeOff == 0 {
			continue
		}
		slice, skip, err := reader.HintSliceFor(m.CodeOff, int(m.MethodIdx))
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		ci, err := f.CodeItemAt(m.CodeOff, f.Kind)
		if err != nil {
			return err
		}
		if err := UnquickenMethod(ci, slice); err != nil {
			return err
		}
		f.PutInsns(ci)
	}
	return nil
}
