package instr

// Format tags the operand layout of a Dex instruction, following the naming
// used throughout the Dex/ART toolchain: a digit count of code units
// followed by a letter code for the operand shape.
type Format int

const (
	FormatUnknown Format = iota
	Fmt10x               // op
	Fmt12x               // op vA(4), vB(4)
	Fmt11n               // op vA(4), #+B(4)
	Fmt11x               // op vAA
	Fmt10t               // op +AA
	Fmt20t               // op, +AAAA
	Fmt22x               // op vAA, vBBBB
	Fmt21t               // op vAA, +BBBB
	Fmt21s               // op vAA, #+BBBB
	Fmt21h               // op vAA, #+BBBB0000[00000000]
	Fmt21c               // op vAA, thing@BBBB
	Fmt23x               // op vAA, vBB, vCC
	Fmt22b               // op vAA, vBB, #+CC
	Fmt22t               // op vA, vB, +CCCC
	Fmt22s               // op vA, vB, #+CCCC
	Fmt22c               // op vA, vB, thing@CCCC
	Fmt32x               // op, vAAAA, vBBBB
	Fmt30t               // op, +AAAAAAAA
	Fmt31t               // op vAA, +BBBBBBBB
	Fmt31i               // op vAA, #+BBBBBBBB
	Fmt31c               // op vAA, string@BBBBBBBB
	Fmt35c               // op {vC,vD,vE,vF,vG}, thing@BBBB
	Fmt3rc               // op {vCCCC .. v(CCCC+AA-1)}, thing@BBBB
	Fmt45cc              // op {vC..vG}, method@BBBB, proto@HHHH
	Fmt4rcc              // op {vCCCC..}, method@BBBB, proto@HHHH
	Fmt51l               // op vAA, #+BBBBBBBBBBBBBBBB
)

// sizeInCodeUnits is the fixed size, in 16-bit code units, that every
// instruction of a given format occupies — the payload pseudo-opcodes
// (packed-switch, sparse-switch, fill-array-data) are the sole exception,
// handled separately in SizeInCodeUnits since their size depends on the
// element count encoded in the payload itself, not on the format tag.
var sizeInCodeUnits = map[Format]int{
	Fmt10x: 1, Fmt12x: 1, Fmt11n: 1, Fmt11x: 1, Fmt10t: 1,
	Fmt20t: 2, Fmt22x: 2, Fmt21t: 2, Fmt21s: 2, Fmt21h: 2, Fmt21c: 2,
	Fmt23x: 2, Fmt22b: 2, Fmt22t: 2, Fmt22s: 2, Fmt22c: 2,
	Fmt32x: 3, Fmt30t: 3, Fmt31t: 3, Fmt31i: 3, Fmt31c: 3, Fmt35c: 3, Fmt3rc: 3,
	Fmt45cc: 4, Fmt4rcc: 4,
	Fmt51l: 5,
}
