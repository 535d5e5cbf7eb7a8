// Package testing provides a fluent Given/When/Then harness over
// pkg/interp, plus RunSegment for driving a #test segment produced by
// pkg/z80asm through the same interpreter the driver itself uses.
package testing

import (
	"strings"
	"testing"

	"github.com/jpenner/zasm/pkg/interp"
	"github.com/jpenner/zasm/pkg/segment"
	"github.com/jpenner/zasm/pkg/z80asm"
)

// TestContext represents a Z80 test environment wrapping one
// interpreter instance and its captured port traffic.
type TestContext struct {
	z80 *interp.Z80
	out map[uint16][]byte
	in  map[uint16]byte
	t   *testing.T
}

// NewTest creates a new test context backed by a fresh interpreter.
func NewTest(t *testing.T) *TestContext {
	z := interp.New()
	tc := &TestContext{z80: z, out: make(map[uint16][]byte), in: make(map[uint16]byte), t: t}
	z.Output = func(cc int, port uint16, b byte) {
		tc.out[port] = append(tc.out[port], b)
	}
	z.Input = func(cc int, port uint16) byte {
		return tc.in[port]
	}
	return tc
}

func (tc *TestContext) Given() *GivenContext { return &GivenContext{tc: tc} }
func (tc *TestContext) When() *WhenContext   { return &WhenContext{tc: tc} }
func (tc *TestContext) Then() *ThenContext   { return &ThenContext{tc: tc} }

// GivenContext seeds interpreter state ahead of a run.
type GivenContext struct {
	tc   *TestContext
	regs interp.Registers
}

func (g *GivenContext) Register(reg string, value uint16) *GivenContext {
	switch strings.ToUpper(reg) {
	case "A":
		g.regs.AF = uint16(value)<<8 | uint16(byte(g.regs.AF))
	case "F":
		g.regs.AF = g.regs.AF&0xFF00 | uint16(byte(value))
	case "B":
		g.regs.BC = uint16(value)<<8 | uint16(byte(g.regs.BC))
	case "C":
		g.regs.BC = g.regs.BC&0xFF00 | uint16(byte(value))
	case "HL":
		g.regs.HL = value
	case "BC":
		g.regs.BC = value
	case "DE":
		g.regs.DE = value
	case "IX":
		g.regs.IX = value
	case "IY":
		g.regs.IY = value
	case "SP":
		g.regs.SP = value
	case "PC":
		g.regs.PC = value
	}
	g.tc.z80.SetRegisters(g.regs)
	return g
}

func (g *GivenContext) Memory(address uint16, values ...byte) *GivenContext {
	g.tc.z80.LoadBytes(address, values)
	return g
}

func (g *GivenContext) Code(address uint16, opcodes ...byte) *GivenContext {
	g.Memory(address, opcodes...)
	return g.Register("PC", address)
}

func (g *GivenContext) Stack(values ...uint16) *GivenContext {
	sp := uint16(0xFFFE)
	for _, v := range values {
		sp -= 2
		g.tc.z80.PokeByte(sp, byte(v))
		g.tc.z80.PokeByte(sp+1, byte(v>>8))
	}
	return g.Register("SP", sp)
}

func (g *GivenContext) Port(port uint16, value byte) *GivenContext {
	g.tc.in[port] = value
	return g
}

// WhenContext drives the interpreter forward.
type WhenContext struct {
	tc *TestContext
}

func (w *WhenContext) Execute(cycles int) *WhenContext {
	w.tc.z80.Run(w.tc.z80.Cycles() + cycles)
	return w
}

// Call starts execution at address and runs until the first unconditional
// RET (0xC9) executes or the cycle ceiling below is hit, whichever comes
// first. Call depth is not tracked: a RET in a nested subroutine also
// ends the run.
func (w *WhenContext) Call(address uint16) *WhenContext {
	w.tc.z80.SetRegisters(mergeRegister(w.tc.z80.Registers(), "PC", address))
	limit := w.tc.z80.Cycles() + 100000
	for w.tc.z80.Cycles() < limit {
		pc := w.tc.z80.Registers().PC
		opcode := w.tc.z80.PeekByte(pc)
		w.tc.z80.Step()
		if opcode == 0xC9 { // RET
			break
		}
	}
	return w
}

func (w *WhenContext) ExecuteUntil(address uint16) *WhenContext {
	w.tc.z80.RunUntilPC(address, w.tc.z80.Cycles()+100000)
	return w
}

func mergeRegister(r interp.Registers, name string, v uint16) interp.Registers {
	switch name {
	case "PC":
		r.PC = v
	case "SP":
		r.SP = v
	}
	return r
}

// ThenContext asserts on post-run interpreter state.
type ThenContext struct {
	tc *TestContext
}

func (th *ThenContext) Register(reg string, expected uint16) *ThenContext {
	actual := th.getRegister(reg)
	if actual != expected {
		th.tc.t.Errorf("register %s: expected %04X, got %04X", reg, expected, actual)
	}
	return th
}

func (th *ThenContext) Memory(address uint16, expected ...byte) *ThenContext {
	for i, exp := range expected {
		actual := th.tc.z80.PeekByte(address + uint16(i))
		if actual != exp {
			th.tc.t.Errorf("memory[%04X]: expected %02X, got %02X", address+uint16(i), exp, actual)
		}
	}
	return th
}

func (th *ThenContext) Flag(flag string, expected bool) *ThenContext {
	f := byte(th.tc.z80.Registers().AF)
	var actual bool
	switch strings.ToUpper(flag) {
	case "Z", "ZERO":
		actual = f&0x40 != 0
	case "C", "CARRY":
		actual = f&0x01 != 0
	case "S", "SIGN":
		actual = f&0x80 != 0
	case "P", "PARITY":
		actual = f&0x04 != 0
	}
	if actual != expected {
		th.tc.t.Errorf("flag %s: expected %v, got %v", flag, expected, actual)
	}
	return th
}

func (th *ThenContext) Port(port uint16, expected ...byte) *ThenContext {
	actual := th.tc.out[port]
	if len(actual) != len(expected) {
		th.tc.t.Errorf("port %04X: expected %d writes, got %d", port, len(expected), len(actual))
		return th
	}
	for i, exp := range expected {
		if actual[i] != exp {
			th.tc.t.Errorf("port %04X write %d: expected %02X, got %02X", port, i, exp, actual[i])
		}
	}
	return th
}

func (th *ThenContext) Cycles(min, max int) *ThenContext {
	actual := th.tc.z80.Cycles()
	if actual < min || actual > max {
		th.tc.t.Errorf("cycles: expected %d-%d, got %d", min, max, actual)
	}
	return th
}

func (th *ThenContext) getRegister(reg string) uint16 {
	r := th.tc.z80.Registers()
	switch strings.ToUpper(reg) {
	case "A":
		return uint16(byte(r.AF >> 8))
	case "F":
		return uint16(byte(r.AF))
	case "B":
		return uint16(byte(r.BC >> 8))
	case "C":
		return uint16(byte(r.BC))
	case "HL":
		return r.HL
	case "BC":
		return r.BC
	case "DE":
		return r.DE
	case "IX":
		return r.IX
	case "IY":
		return r.IY
	case "SP":
		return r.SP
	case "PC":
		return r.PC
	default:
		return 0
	}
}

// RunSegment assembles source, locates the named #test segment, and
// drives it through the interpreter via interp.RunTestcode — the path
// an end-to-end test exercises instead of hand-building a GivenContext.
func RunSegment(t *testing.T, source, segmentName string) {
	t.Helper()
	asm := z80asm.NewAssembler()
	result, err := asm.AssembleString(source)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("assembly errors: %v", result.Errors)
	}
	var seg *segment.Segment
	for _, s := range result.Segments {
		if s.Kind == segment.Test && s.Name == segmentName {
			seg = s
			break
		}
	}
	if seg == nil {
		t.Fatalf("no #test segment named %q in assembled output", segmentName)
	}
	z := interp.New()
	if err := interp.RunTestcode(z, seg); err != nil {
		t.Error(err)
	}
}
