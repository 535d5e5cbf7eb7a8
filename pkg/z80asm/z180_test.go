package z80asm

import "testing"

func TestZ180Instructions(t *testing.T) {
	asm := NewAssembler()
	asm.Config.CPU = CPUZ180

	source := `
		ORG $8000
		MLT BC
		IN0 A, ($10)
		OUT0 ($11), B
		TST C
		TST (HL)
		TST $FF
		TSTIO $20
		SLP
	`

	result, err := asm.AssembleString(source)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("assembly errors: %v", result.Errors)
	}

	expected := []byte{
		0xED, 0x4C, // MLT BC
		0xED, 0x38, 0x10, // IN0 A,($10)
		0xED, 0x01, 0x11, // OUT0 ($11),B
		0xED, 0x0C, // TST C
		0xED, 0x34, // TST (HL)
		0xED, 0x64, 0xFF, // TST $FF
		0xED, 0x74, 0x20, // TSTIO $20
		0xED, 0x76, // SLP
	}
	if string(result.Binary) != string(expected) {
		t.Errorf("binary = % X, want % X", result.Binary, expected)
	}
}

func TestIXCBR2SecondaryRegisterResult(t *testing.T) {
	asm := NewAssembler()
	asm.Config.IXCBR2Enabled = true

	result, err := asm.AssembleString(`
		ORG $8000
		RLC (IX+2), B
		SET 3, (IY-1), C
	`)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("assembly errors: %v", result.Errors)
	}

	expected := []byte{
		0xDD, 0xCB, 0x02, 0x00, // RLC (IX+2),B
		0xFD, 0xCB, 0xFF, 0xD9, // SET 3,(IY-1),C
	}
	if string(result.Binary) != string(expected) {
		t.Errorf("binary = % X, want % X", result.Binary, expected)
	}
}

func TestIXCBR2RejectedWhenDisabled(t *testing.T) {
	asm := NewAssembler()
	asm.Config.IXCBR2Enabled = false

	result, err := asm.AssembleString(`
		ORG $8000
		RLC (IX+2), B
	`)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected secondary-register-result form to be rejected when IXCBR2Enabled is false")
	}
}

func TestZ180InstructionsRejectedOnZ80(t *testing.T) {
	asm := NewAssembler()
	asm.Config.CPU = CPUZ80

	result, err := asm.AssembleString(`
		ORG $8000
		MLT BC
	`)
	if err != nil {
		t.Fatalf("AssembleString: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected MLT to be rejected in plain Z80 mode")
	}
}
