package instr

import "testing"

func TestSizeInCodeUnitsFixedFormats(t *testing.T) {
	tests := []struct {
		name string
		code []uint16
		want int
	}{
		{"nop", []uint16{0x0000}, 1},
		{"move", []uint16{0x0001}, 1},
		{"const/4", []uint16{0x1012}, 1},
		{"const/16", []uint16{0x0013, 0x0005}, 2},
		{"iget", []uint16{0x0052, 0x0001}, 2},
		{"const-wide", []uint16{0x0018, 0, 0, 0, 0}, 5},
		{"invoke-virtual", []uint16{0x106e, 0x0003, 0x0010}, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := At(tc.code, 0)
			if got := in.SizeInCodeUnits(); got != tc.want {
				t.Errorf("SizeInCodeUnits() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSizeInCodeUnitsPackedSwitchPayload(t *testing.T) {
	// packed-switch-payload signature (the instruction's own code unit), 3 entries -> 4 + 3*2 = 10.
	code := []uint16{0x0100, 0x0003, 0, 0, 0, 0, 0, 0, 0, 0}
	in := At(code, 0)
	if got, want := in.SizeInCodeUnits(), 10; got != want {
		t.Errorf("SizeInCodeUnits() = %d, want %d", got, want)
	}
}

func TestSizeInCodeUnitsSparseSwitchPayload(t *testing.T) {
	// sparse-switch-payload signature, 2 entries -> 2 + 2*4 = 10.
	code := []uint16{0x0200, 0x0002, 0, 0, 0, 0, 0, 0, 0, 0}
	in := At(code, 0)
	if got, want := in.SizeInCodeUnits(), 10; got != want {
		t.Errorf("SizeInCodeUnits() = %d, want %d", got, want)
	}
}

func TestSizeInCodeUnitsFillArrayDataPayload(t *testing.T) {
	// fill-array-data-payload, element width 4, 3 elements:
	// 4 + (4*3+1)/2 = 4 + 6 = 10.
	code := []uint16{0x0300, 0x0004, 0x0003, 0x0000, 0, 0, 0, 0, 0, 0}
	in := At(code, 0)
	if got, want := in.SizeInCodeUnits(), 10; got != want {
		t.Errorf("SizeInCodeUnits() = %d, want %d", got, want)
	}
}

func TestOpcodeRoundTrip(t *testing.T) {
	code := []uint16{0x0052} // iget v0, v0
	in := At(code, 0)
	if in.Opcode() != IGET {
		t.Fatalf("Opcode() = %#x, want IGET", in.Opcode())
	}
	in.SetOpcode(IGET_QUICK)
	if in.Opcode() != IGET_QUICK {
		t.Fatalf("Opcode() after SetOpcode = %#x, want IGET_QUICK", in.Opcode())
	}
	if in.code[0]>>8 != 0 {
		t.Fatalf("SetOpcode clobbered upper byte: %#x", in.code[0])
	}
}

func TestIsQuickened(t *testing.T) {
	quick := []Opcode{
		IGET_QUICK, IGET_WIDE_QUICK, IGET_OBJECT_QUICK, IGET_BOOLEAN_QUICK,
		IGET_BYTE_QUICK, IGET_CHAR_QUICK, IGET_SHORT_QUICK,
		IPUT_QUICK, IPUT_WIDE_QUICK, IPUT_OBJECT_QUICK, IPUT_BOOLEAN_QUICK,
		IPUT_BYTE_QUICK, IPUT_CHAR_QUICK, IPUT_SHORT_QUICK,
		INVOKE_VIRTUAL_QUICK, INVOKE_VIRTUAL_RANGE_QUICK, RETURN_VOID_NO_BARRIER,
	}
	for _, op := range quick {
		if !op.IsQuickened() {
			t.Errorf("%s: IsQuickened() = false, want true", op.Name())
		}
	}
	notQuick := []Opcode{NOP, IGET, IPUT, INVOKE_VIRTUAL, RETURN_VOID, CHECK_CAST}
	for _, op := range notQuick {
		if op.IsQuickened() {
			t.Errorf("%s: IsQuickened() = true, want false", op.Name())
		}
	}
}

func TestVRegC22cQuick(t *testing.T) {
	// iget-quick vA=1, vB=2, offset 8 encoded at [pc+1].
	code := []uint16{uint16(IGET_QUICK) | 1<<8 | 2<<12, 8}
	in := At(code, 0)
	a, err := in.VRegA()
	if err != nil || a != 1 {
		t.Fatalf("VRegA() = %v, %v, want 1, nil", a, err)
	}
	b, err := in.VRegB()
	if err != nil || b != 2 {
		t.Fatalf("VRegB() = %v, %v, want 2, nil", b, err)
	}
	c, err := in.VRegC()
	if err != nil || c != 8 {
		t.Fatalf("VRegC() = %v, %v, want 8, nil", c, err)
	}
}

func TestSetVRegC22cRestoresFieldIndex(t *testing.T) {
	code := []uint16{uint16(IGET_QUICK) | 1<<8 | 2<<12, 8}
	in := At(code, 0)
	in.SetOpcode(IGET)
	if err := in.SetVRegC22c(0x1234); err != nil {
		t.Fatalf("SetVRegC22c() error = %v", err)
	}
	c, err := in.VRegC()
	if err != nil || c != 0x1234 {
		t.Fatalf("VRegC() after restore = %v, %v, want 0x1234, nil", c, err)
	}
}

func TestFormatMismatchOnWrongAccessor(t *testing.T) {
	code := []uint16{uint16(RETURN_VOID)}
	in := At(code, 0)
	if _, err := in.VRegC(); err == nil {
		t.Fatal("VRegC() on a 10x instruction: want FormatMismatch, got nil")
	}
}

func TestGetVarArgs35c(t *testing.T) {
	// invoke-virtual {v1, v2}, count=2, method idx 0x10, regs packed E=0,F=0,G=0,D=2,C=1.
	code := []uint16{uint16(INVOKE_VIRTUAL) | 2<<12 | 1<<8, 0x10, 2}
	in := At(code, 0)
	count, regs, err := in.GetVarArgs()
	if err != nil {
		t.Fatalf("GetVarArgs() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if regs[0] != 1 || regs[1] != 2 {
		t.Fatalf("regs = %v, want vC=1 vD=2", regs)
	}
}
