package interp

import (
	"testing"

	"github.com/jpenner/zasm/pkg/segment"
	"github.com/jpenner/zasm/pkg/value"
)

func TestLoadAndRunSimpleAddition(t *testing.T) {
	z := New()
	// LD A,2 / LD B,3 / ADD A,B / RET
	z.LoadBytes(0x8000, []byte{0x3E, 0x02, 0x06, 0x03, 0x80, 0xC9})
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})

	reason, err := z.Run(1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != TimeOut {
		t.Errorf("Run stopped with %v, want TimeOut (no breakpoint set)", reason)
	}

	a := byte(z.Registers().AF >> 8)
	if a != 5 {
		t.Errorf("A = %d, want 5", a)
	}
}

func TestBreakpointStopsRun(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0x00, 0x00, 0x00, 0xC9}) // NOP NOP NOP RET
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.SetBreakpoint(0x8002)

	reason, err := z.Run(10000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != BreakPoint {
		t.Errorf("reason = %v, want BreakPoint", reason)
	}
	if z.Registers().PC != 0x8002 {
		t.Errorf("PC = %#x, want 0x8002", z.Registers().PC)
	}
}

func TestClearBreakpointRunsToCompletion(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0x00, 0x00, 0x00})
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.SetBreakpoint(0x8001)
	z.ClearBreakpoint()

	reason, err := z.Run(30)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != TimeOut {
		t.Errorf("reason = %v, want TimeOut", reason)
	}
}

func TestStepExecutesOneOpcode(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0x3E, 0x42}) // LD A,$42
	z.SetRegisters(Registers{PC: 0x8000})

	used := z.Step()
	if used <= 0 {
		t.Errorf("Step returned %d cycles, want > 0", used)
	}
	a := byte(z.Registers().AF >> 8)
	if a != 0x42 {
		t.Errorf("A = %#x, want 0x42", a)
	}
	if z.Registers().PC != 0x8002 {
		t.Errorf("PC = %#x, want 0x8002", z.Registers().PC)
	}
}

func TestRunUntilPC(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0x00, 0x00, 0x00, 0x00})
	z.SetRegisters(Registers{PC: 0x8000})
	z.RunUntilPC(0x8003, 1000)
	if z.Registers().PC != 0x8003 {
		t.Errorf("PC = %#x, want 0x8003", z.Registers().PC)
	}
}

func TestPeekPokeByteAndWord(t *testing.T) {
	z := New()
	z.PokeByte(0x9000, 0xAB)
	if got := z.PeekByte(0x9000); got != 0xAB {
		t.Errorf("PeekByte = %#x, want 0xAB", got)
	}
	z.PokeByte(0x9010, 0x34)
	z.PokeByte(0x9011, 0x12)
	if got := z.PeekWord(0x9010); got != 0x1234 {
		t.Errorf("PeekWord = %#x, want 0x1234", got)
	}
}

func TestOutputHookCapturesPortWrites(t *testing.T) {
	z := New()
	var gotPort uint16
	var gotByte byte
	z.Output = func(cc int, port uint16, b byte) {
		gotPort, gotByte = port, b
	}
	// LD A,$55 / LD BC,$1234 / OUT (C),A / RET
	z.LoadBytes(0x8000, []byte{0x3E, 0x55, 0x01, 0x34, 0x12, 0xED, 0x79, 0xC9})
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.Run(1000)
	if gotPort != 0x1234 {
		t.Errorf("port = %#x, want 0x1234", gotPort)
	}
	if gotByte != 0x55 {
		t.Errorf("byte = %#x, want 0x55", gotByte)
	}
}

func TestInputHookFeedsInPort(t *testing.T) {
	z := New()
	z.Input = func(cc int, port uint16) byte { return 0x77 }
	// LD BC,$1234 / IN A,(C) / RET
	z.LoadBytes(0x8000, []byte{0x01, 0x34, 0x12, 0xED, 0x78, 0xC9})
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.Run(1000)
	a := byte(z.Registers().AF >> 8)
	if a != 0x77 {
		t.Errorf("A = %#x, want 0x77", a)
	}
}

func TestRunTestcodeChecksExpectations(t *testing.T) {
	seg := segment.NewTest("check", value.Of(0x8000), 1000)
	seg.Bytes = []byte{0x3E, 0x09, 0xC9} // LD A,9 / RET
	seg.Expectations = []segment.Expectation{{Register: "A", Want: 9}}

	z := New()
	if err := RunTestcode(z, seg); err != nil {
		t.Errorf("RunTestcode: %v", err)
	}
}

func TestRunTestcodeReportsMismatch(t *testing.T) {
	seg := segment.NewTest("check", value.Of(0x8000), 1000)
	seg.Bytes = []byte{0x3E, 0x09, 0xC9}
	seg.Expectations = []segment.Expectation{{Register: "A", Want: 10}}

	z := New()
	if err := RunTestcode(z, seg); err == nil {
		t.Fatal("expected a mismatch error")
	}
}

func TestRunTestcodePreambleSeedsRegisters(t *testing.T) {
	seg := segment.NewTest("check", value.Of(0x8000), 1000)
	seg.Bytes = []byte{0x80, 0xC9} // ADD A,B / RET
	seg.Preamble = []segment.RegisterSeed{{Register: "A", Value: 3}, {Register: "B", Value: 4}}
	seg.Expectations = []segment.Expectation{{Register: "A", Want: 7}}

	z := New()
	if err := RunTestcode(z, seg); err != nil {
		t.Errorf("RunTestcode: %v", err)
	}
}

func TestRunTestcodeMemoryExpectation(t *testing.T) {
	seg := segment.NewTest("check", value.Of(0x8000), 1000)
	seg.Bytes = []byte{0x3E, 0x42, 0x32, 0x00, 0x90, 0xC9} // LD A,$42 / LD ($9000),A / RET
	seg.Expectations = []segment.Expectation{{Address: 0x9000, Want: 0x42}}

	z := New()
	if err := RunTestcode(z, seg); err != nil {
		t.Errorf("RunTestcode: %v", err)
	}
}

func TestRunTestcodeRejectsNonTestSegment(t *testing.T) {
	seg := segment.NewData("main", value.Of(0x8000))
	z := New()
	if err := RunTestcode(z, seg); err == nil {
		t.Fatal("expected an error for a non-test segment")
	}
}

func TestIllegalInstructionWhenDisallowed(t *testing.T) {
	z := New()
	z.AllowIllegal = false
	z.LoadBytes(0x8000, []byte{0xCB, 0x30}) // SLL B (undocumented)
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})

	reason, err := z.Run(1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != IllegalInstruction {
		t.Errorf("reason = %v, want IllegalInstruction", reason)
	}
}

func TestIllegalInstructionIndexedSLLWhenDisallowed(t *testing.T) {
	z := New()
	z.AllowIllegal = false
	z.LoadBytes(0x8000, []byte{0xDD, 0xCB, 0x00, 0x30}) // SLL (IX+0),B (undocumented)
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})

	reason, err := z.Run(1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != IllegalInstruction {
		t.Errorf("reason = %v, want IllegalInstruction", reason)
	}
}

func TestSLLAllowedByDefault(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0xCB, 0x30}) // SLL B
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})

	reason, err := z.Run(1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != TimeOut {
		t.Errorf("reason = %v, want TimeOut (SLL allowed by default)", reason)
	}
}

func TestUnsupportedIntAckByteStopsRun(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0xFB, 0x00, 0x00}) // EI / NOP / NOP
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.IntAck = func(cc int) (byte, bool) { return 0, false }
	z.RequestInterrupt()

	reason, err := z.Run(1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != UnsupportedIntAckByte {
		t.Errorf("reason = %v, want UnsupportedIntAckByte", reason)
	}
}

func TestInterruptVectorsToHandler(t *testing.T) {
	z := New()
	z.LoadBytes(0x8000, []byte{0xFB, 0x00, 0x00, 0x00}) // EI / NOP NOP NOP
	z.LoadBytes(0x0000, []byte{0x34, 0x12})             // vector table at I:ack = handler @ 0x1234
	z.LoadBytes(0x1234, []byte{0xC9})                   // RET
	z.SetRegisters(Registers{PC: 0x8000, SP: 0xFFFE})
	z.IntAck = func(cc int) (byte, bool) { return 0x00, true }
	z.SetBreakpoint(0x1234)

	z.Step() // EI enables IFF1
	z.RequestInterrupt()
	reason, err := z.Run(z.Cycles() + 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != BreakPoint {
		t.Errorf("reason = %v, want BreakPoint", reason)
	}
	if z.Registers().PC != 0x1234 {
		t.Errorf("PC = %#x, want 0x1234 (vectored to I:ack handler)", z.Registers().PC)
	}
	if z.Registers().SP != 0xFFFC {
		t.Errorf("SP = %#x, want 0xFFFC (return address pushed)", z.Registers().SP)
	}
	if z.PeekWord(0xFFFC) != 0x8001 {
		t.Errorf("pushed return address = %#x, want 0x8001", z.PeekWord(0xFFFC))
	}
}
