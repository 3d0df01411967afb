// Package instr models a single Dex instruction sitting inside a code
// item's code-unit array: decoding its opcode and format, computing its
// size, and reading or rewriting the operand fields the unquickener needs.
// Every accessor is format-tagged and returns verrors.FormatMismatch when
// called against an instruction of the wrong shape, the way the upstream
// decompiler's CHECK() macros would abort on a format assumption violation,
// except here it is a recoverable error instead of a process abort.
package instr

import "github.com/kestrelsec/vdextract/internal/verrors"

// Instruction is a cursor over one opcode within a code-unit array. It does
// not copy the array; mutator methods write through to the backing code
// item, which is how the unquickener rewrites instructions in place.
type Instruction struct {
	code []uint16
	pc   int
}

// At returns an Instruction positioned at code unit pc within code.
func At(code []uint16, pc int) *Instruction {
	return &Instruction{code: code, pc: pc}
}

// PC returns the instruction's starting code-unit offset.
func (in *Instruction) PC() int { return in.pc }

// Opcode returns the low byte of the instruction's first code unit.
func (in *Instruction) Opcode() Opcode {
	return Opcode(in.code[in.pc] & 0xff)
}

// SetOpcode rewrites the low byte of the first code unit, leaving the
// upper byte (vA for 11n/11x/12x, the arg count for 35c, and so on)
// untouched.
func (in *Instruction) SetOpcode(op Opcode) {
	in.code[in.pc] = (in.code[in.pc] &^ 0xff) | uint16(op)
}

// Format returns the operand layout for the instruction's current opcode.
func (in *Instruction) Format() Format {
	return opcodeTable[in.Opcode()].format
}

// SizeInCodeUnits returns how many 16-bit code units this instruction
// occupies. NOP is special: its own code unit doubles as a packed-switch,
// sparse-switch or fill-array-data payload signature, in which case it spans
// the whole payload rather than a single unit.
func (in *Instruction) SizeInCodeUnits() int {
	op := in.Opcode()
	if op == NOP {
		switch in.code[in.pc] {
		case 0x0100: // packed-switch-payload
			if in.pc+1 < len(in.code) {
				size := int(in.code[in.pc+1])
				return 4 + size*2
			}
		case 0x0200: // sparse-switch-payload
			if in.pc+1 < len(in.code) {
				size := int(in.code[in.pc+1])
				return 2 + size*4
			}
		case 0x0300: // fill-array-data-payload
			if in.pc+3 < len(in.code) {
				elemWidth := uint32(in.code[in.pc+1])
				elemCount := uint32(in.code[in.pc+2]) | uint32(in.code[in.pc+3])<<16
				return 4 + int((elemWidth*elemCount+1)/2)
			}
		}
		return 1
	}
	if size, ok := sizeInCodeUnits[opcodeTable[op].format]; ok {
		return size
	}
	return 1
}

func (in *Instruction) mismatch(want string) error {
	return verrors.New(verrors.FormatMismatch, "instruction format does not support "+want).
		WithMethodOffset(uint32(in.pc))
}

// VRegA returns the vA / vAA register or literal field, for every format
// that defines one.
func (in *Instruction) VRegA() (uint32, error) {
	switch in.Format() {
	case Fmt11n, Fmt12x:
		return uint32(in.code[in.pc]>>8) & 0xf, nil
	case Fmt11x, Fmt21s, Fmt21h, Fmt21c, Fmt21t, Fmt22x, Fmt23x, Fmt22b,
		Fmt31t, Fmt31i, Fmt31c, Fmt51l, Fmt35c, Fmt3rc, Fmt45cc, Fmt4rcc:
		return uint32(in.code[in.pc] >> 8), nil
	case Fmt22t, Fmt22s, Fmt22c:
		return uint32(in.code[in.pc]>>8) & 0xf, nil
	case Fmt32x:
		return uint32(in.code[in.pc+1]), nil
	default:
		return 0, in.mismatch("vA")
	}
}

// VRegB returns the vB / vBB / vBBBB register, literal, or pool-index
// field, for every format that defines one.
func (in *Instruction) VRegB() (uint32, error) {
	switch in.Format() {
	case Fmt11n:
		nibble := uint32(in.code[in.pc]>>12) & 0xf
		return uint32(int32(nibble<<28) >> 28), nil
	case Fmt12x, Fmt22t, Fmt22s, Fmt22c:
		return uint32(in.code[in.pc]>>12) & 0xf, nil
	case Fmt21s, Fmt21h, Fmt21c, Fmt21t, Fmt22x:
		return uint32(in.code[in.pc+1]), nil
	case Fmt23x, Fmt22b:
		return uint32(in.code[in.pc+1]) & 0xff, nil
	case Fmt32x:
		return uint32(in.code[in.pc+2]), nil
	case Fmt31t, Fmt31i, Fmt31c:
		return uint32(in.code[in.pc+1]) | uint32(in.code[in.pc+2])<<16, nil
	case Fmt35c, Fmt3rc, Fmt45cc, Fmt4rcc:
		return uint32(in.code[in.pc+1]), nil
	default:
		return 0, in.mismatch("vB")
	}
}

// VRegC returns the vC / vCC / vCCCC register or pool-index field, for the
// formats that define a third operand.
func (in *Instruction) VRegC() (uint32, error) {
	switch in.Format() {
	case Fmt22b:
		return uint32(in.code[in.pc+1]) >> 8, nil
	case Fmt22t, Fmt22s, Fmt22c:
		return uint32(in.code[in.pc+1]), nil
	case Fmt23x:
		return uint32(in.code[in.pc+1]) >> 8, nil
	case Fmt35c, Fmt45cc:
		return uint32(in.code[in.pc]>>8) & 0xf, nil
	case Fmt3rc, Fmt4rcc:
		return uint32(in.code[in.pc+2]), nil
	default:
		return 0, in.mismatch("vC")
	}
}

// WideVRegB returns the 64-bit literal carried by a 51l instruction
// (const-wide), spanning code units pc+1 through pc+4.
func (in *Instruction) WideVRegB() (uint64, error) {
	if in.Format() != Fmt51l {
		return 0, in.mismatch("wide vB")
	}
	return uint64(in.code[in.pc+1]) |
		uint64(in.code[in.pc+2])<<16 |
		uint64(in.code[in.pc+3])<<32 |
		uint64(in.code[in.pc+4])<<48, nil
}

// GetVarArgs returns the (count, registers) pair for the inline argument
// list of a 35c/45cc invoke, in vG,vA,vF,vE,vD,vC source order flattened to
// vC,vD,vE,vF,vG the way ART's own decoder exposes it.
func (in *Instruction) GetVarArgs() (count int, regs [5]uint16, err error) {
	switch in.Format() {
	case Fmt35c, Fmt45cc:
	default:
		return 0, regs, in.mismatch("var-args")
	}
	count = int(in.code[in.pc]>>12) & 0xf
	regList := in.code[in.pc+2]
	regs[0] = uint16(in.code[in.pc]>>8) & 0xf // vC
	regs[1] = regList & 0xf                   // vD
	regs[2] = (regList >> 4) & 0xf            // vE
	regs[3] = (regList >> 8) & 0xf            // vF
	regs[4] = (regList >> 12) & 0xf           // vG
	return count, regs, nil
}

// SetVRegA10x overwrites the upper byte of a 10x instruction's single code
// unit, used when a quickened NOP needs a sentinel value in the byte that a
// plain NOP leaves zero.
func (in *Instruction) SetVRegA10x(value uint8) error {
	if in.Format() != Fmt10x {
		return in.mismatch("vA (10x)")
	}
	in.code[in.pc] = (in.code[in.pc] & 0xff) | uint16(value)<<8
	return nil
}

// SetVRegA21c overwrites the vAA register of a 21c instruction.
func (in *Instruction) SetVRegA21c(value uint8) error {
	if in.Format() != Fmt21c {
		return in.mismatch("vA (21c)")
	}
	in.code[in.pc] = (in.code[in.pc] & 0xff) | uint16(value)<<8
	return nil
}

// SetVRegB21c overwrites the BBBB pool-index field of a 21c instruction.
func (in *Instruction) SetVRegB21c(value uint16) error {
	if in.Format() != Fmt21c {
		return in.mismatch("vB (21c)")
	}
	in.code[in.pc+1] = value
	return nil
}

// SetVRegB35c overwrites the BBBB method/field index of a 35c instruction,
// the field the unquickener restores from the hint stream when reversing
// invoke-virtual-quick back to invoke-virtual.
func (in *Instruction) SetVRegB35c(value uint16) error {
	if in.Format() != Fmt35c {
		return in.mismatch("vB (35c)")
	}
	in.code[in.pc+1] = value
	return nil
}

// SetVRegB3rc overwrites the BBBB method index of a 3rc instruction.
func (in *Instruction) SetVRegB3rc(value uint16) error {
	if in.Format() != Fmt3rc {
		return in.mismatch("vB (3rc)")
	}
	in.code[in.pc+1] = value
	return nil
}

// SetVRegC22c overwrites the CCCC field/type-pool index of a 22c
// instruction, the field the unquickener restores when reversing an
// iget-quick/iput-quick back to its public iget/iput form.
func (in *Instruction) SetVRegC22c(value uint16) error {
	if in.Format() != Fmt22c {
		return in.mismatch("vC (22c)")
	}
	in.code[in.pc+1] = value
	return nil
}
