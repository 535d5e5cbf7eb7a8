// Package interp wraps github.com/remogatto/z80 into the embedded Z80
// interpreter: a 64 KiB core with IO hooks, four stop conditions, and a
// runTestcode entry point that drives a #test segment to completion and
// checks its expectations.
package interp

import (
	"fmt"

	"github.com/remogatto/z80"

	"github.com/jpenner/zasm/pkg/segment"
)

// StopReason names why Run returned control to the caller.
type StopReason int

const (
	TimeOut StopReason = iota
	BreakPoint
	IllegalInstruction
	UnsupportedIntAckByte
)

func (r StopReason) String() string {
	switch r {
	case TimeOut:
		return "TimeOut"
	case BreakPoint:
		return "BreakPoint"
	case IllegalInstruction:
		return "IllegalInstruction"
	case UnsupportedIntAckByte:
		return "UnsupportedIntAckByte"
	default:
		return "Unknown"
	}
}

// Registers exposes the 16-bit pairs and their halves, derived via
// shifts rather than union aliasing so the representation is portable
// across host endianness.
type Registers struct {
	AF, BC, DE, HL   uint16
	AF_, BC_, DE_, HL_ uint16
	IX, IY, SP, PC   uint16
	I, R             byte
	IFF1, IFF2       bool
}

func hi(v uint16) byte { return byte(v >> 8) }
func lo(v uint16) byte { return byte(v) }

// core implements z80.MemoryAccessor and z80.PortAccessor over a flat
// 64 KiB byte array plus input/output port hooks.
type core struct {
	mem [65536]byte

	input  func(cc int, port uint16) byte
	output func(cc int, port uint16, b byte)
	cc     func() int
}

func (c *core) ReadByte(addr uint16) byte          { return c.mem[addr] }
func (c *core) WriteByte(addr uint16, v byte)      { c.mem[addr] = v }
func (c *core) ReadByteInternal(addr uint16) byte  { return c.mem[addr] }
func (c *core) WriteByteInternal(addr uint16, v byte) { c.mem[addr] = v }
func (c *core) ContendRead(addr uint16, t int)            {}
func (c *core) ContendReadNoMreq(addr uint16, t int)      {}
func (c *core) ContendReadNoMreq_loop(addr uint16, t int, n uint) {}
func (c *core) ContendWriteNoMreq(addr uint16, t int)     {}
func (c *core) ContendWriteNoMreq_loop(addr uint16, t int, n uint) {}
func (c *core) Read(addr uint16) byte                     { return c.mem[addr] }
func (c *core) Write(addr uint16, v byte, protect bool)   { c.mem[addr] = v }
func (c *core) Data() []byte                              { return c.mem[:] }

func (c *core) ReadPort(port uint16) byte {
	if c.input != nil {
		return c.input(c.cc(), port)
	}
	return 0xFF
}
func (c *core) WritePort(port uint16, b byte) {
	if c.output != nil {
		c.output(c.cc(), port, b)
	}
}
func (c *core) ReadPortInternal(port uint16, contend bool) byte  { return c.ReadPort(port) }
func (c *core) WritePortInternal(port uint16, b byte, contend bool) { c.WritePort(port, b) }
func (c *core) ContendPortPreio(port uint16)  {}
func (c *core) ContendPortPostio(port uint16) {}

// Z80 is the non-reentrant, single-threaded interpreter instance that
// borrows exclusive access to its core for the duration of Run.
type Z80 struct {
	cpu  *z80.Z80
	core *core
	cc   int

	breakpoint    uint16
	hasBreakpoint bool

	// AllowIllegal gates the undocumented-but-functional opcode forms
	// (SLL / SL1, bare or IX/IY-indexed) the same way the assembler's
	// AllowUndocumented gates encoding them; false makes Run stop with
	// IllegalInstruction instead of executing one.
	AllowIllegal bool

	pendingInt bool

	// IntAck, when set, is consulted when a requested interrupt is
	// accepted (IFF1 enabled): it returns the bus byte an IM2 system
	// would place during the acknowledge cycle, or ok=false if the
	// caller has no byte to offer, which stops Run with
	// UnsupportedIntAckByte instead of vectoring.
	IntAck func(cc int) (b byte, ok bool)

	Input  func(cc int, port uint16) byte
	Output func(cc int, port uint16, b byte)
}

// New builds an interpreter instance with a zeroed 64 KiB core.
func New() *Z80 {
	z := &Z80{core: &core{}, AllowIllegal: true}
	z.core.cc = func() int { return z.cc }
	z.core.input = func(cc int, port uint16) byte {
		if z.Input != nil {
			return z.Input(cc, port)
		}
		return 0xFF
	}
	z.core.output = func(cc int, port uint16, b byte) {
		if z.Output != nil {
			z.Output(cc, port, b)
		}
	}
	z.cpu = z80.NewZ80(z.core, z.core)
	return z
}

// LoadBytes copies data into core memory starting at addr.
func (z *Z80) LoadBytes(addr uint16, data []byte) {
	for i, b := range data {
		z.core.mem[(int(addr)+i)&0xFFFF] = b
	}
}

// SetBreakpoint arms a PC-match stop condition; Clear removes it.
func (z *Z80) SetBreakpoint(addr uint16) { z.breakpoint = addr; z.hasBreakpoint = true }
func (z *Z80) ClearBreakpoint()          { z.hasBreakpoint = false }

// RequestInterrupt arms a maskable interrupt for the next instruction
// boundary in Run. It is taken only if IFF1 is enabled at that point.
func (z *Z80) RequestInterrupt() { z.pendingInt = true }

func (z *Z80) SetRegisters(r Registers) {
	z.cpu.A = hi(r.AF)
	z.cpu.F = lo(r.AF)
	z.cpu.SetBC(r.BC)
	z.cpu.SetDE(r.DE)
	z.cpu.SetHL(r.HL)
	z.cpu.SetIX(r.IX)
	z.cpu.SetIY(r.IY)
	z.cpu.SetSP(r.SP)
	z.cpu.SetPC(r.PC)
}

func (z *Z80) Registers() Registers {
	return Registers{
		AF: uint16(z.cpu.A)<<8 | uint16(z.cpu.F),
		BC: z.cpu.BC(), DE: z.cpu.DE(), HL: z.cpu.HL(),
		IX: z.cpu.IX(), IY: z.cpu.IY(), SP: z.cpu.SP, PC: z.cpu.PC,
		I: z.cpu.I, R: z.cpu.R,
		IFF1: z.cpu.IFF1 != 0, IFF2: z.cpu.IFF2 != 0,
	}
}

func (z *Z80) PokeByte(addr uint16, b byte)  { z.core.mem[addr] = b }
func (z *Z80) PeekByte(addr uint16) byte     { return z.core.mem[addr] }
func (z *Z80) PeekWord(addr uint16) uint16   { return uint16(z.core.mem[addr]) | uint16(z.core.mem[addr+1])<<8 }
func (z *Z80) Cycles() int                   { return z.cc }

// Run executes opcodes until cc reaches cc_exit or one of the other
// three stop conditions fires. It mutates z in place and cannot be
// preempted.
func (z *Z80) Run(ccExit int) (StopReason, error) {
	for z.cc < ccExit {
		if z.hasBreakpoint && z.cpu.PC == z.breakpoint {
			return BreakPoint, nil
		}
		if z.pendingInt && z.cpu.IFF1 != 0 {
			z.pendingInt = false
			var ack byte
			if z.IntAck != nil {
				var ok bool
				ack, ok = z.IntAck(z.cc)
				if !ok {
					return UnsupportedIntAckByte, nil
				}
			}
			z.acceptInterrupt(ack)
			continue
		}
		if !z.isDefinedOpcode(z.cpu.PC) {
			return IllegalInstruction, nil
		}
		before := z.cpu.Tstates
		z.cpu.DoOpcode()
		z.cc += int(z.cpu.Tstates - before)
		if z.cpu.Halted {
			// HALT stalls by advancing cc to the interrupt boundary;
			// here that boundary is simply cc_exit, since this
			// interpreter drives no interrupt source of its own.
			z.cc = ccExit
		}
	}
	return TimeOut, nil
}

// acceptInterrupt runs the IM2 vectoring sequence by hand: push PC,
// disable further maskable interrupts, and jump to the 16-bit address
// stored at I:ack.
func (z *Z80) acceptInterrupt(ack byte) {
	z.cpu.IFF1, z.cpu.IFF2 = 0, 0
	sp := z.cpu.SP - 2
	z.cpu.SetSP(sp)
	z.core.mem[sp] = lo(z.cpu.PC)
	z.core.mem[sp+1] = hi(z.cpu.PC)
	vector := uint16(z.cpu.I)<<8 | uint16(ack)
	target := uint16(z.core.mem[vector]) | uint16(z.core.mem[vector+1])<<8
	z.cpu.SetPC(target)
	z.cc += 13
}

// Step executes exactly one opcode, returning the cycles it consumed.
// Used by test harnesses that want instruction-granular control rather
// than Run's cycle-budget loop.
func (z *Z80) Step() int {
	before := z.cpu.Tstates
	z.cpu.DoOpcode()
	used := int(z.cpu.Tstates - before)
	z.cc += used
	return used
}

// RunUntilPC single-steps until PC reaches target or cyclesLimit is
// exhausted, for harnesses asserting on control flow rather than a
// fixed cycle count.
func (z *Z80) RunUntilPC(target uint16, cyclesLimit int) {
	for z.cpu.PC != target && z.cc < cyclesLimit && !z.cpu.Halted {
		z.Step()
	}
}

// isDefinedOpcode reports whether the instruction at addr is one
// Zilog documented. With AllowIllegal set (the default) every opcode
// remogatto/z80 can execute is accepted; cleared, it rejects the
// undocumented SLL/SL1 forms, bare or IX/IY-indexed, the same way the
// assembler's AllowUndocumented gates encoding them.
func (z *Z80) isDefinedOpcode(addr uint16) bool {
	if z.AllowIllegal {
		return true
	}
	switch z.core.mem[addr] {
	case 0xCB:
		return !isSLLSubop(z.core.mem[addr+1])
	case 0xDD, 0xFD:
		if z.core.mem[addr+1] == 0xCB {
			return !isSLLSubop(z.core.mem[addr+3])
		}
	}
	return true
}

// isSLLSubop reports whether a CB-prefixed sub-opcode byte is SLL/SL1,
// the shift-left-and-set-bit-0 form Zilog never assigned a mnemonic.
func isSLLSubop(sub byte) bool { return sub&0xF8 == 0x30 }

// runTestcode loads seg's bytes and preamble registers, runs to
// seg.CyclesBudget, and checks every recorded Expectation, returning a
// RuntimeError naming the first mismatch.
func RunTestcode(z *Z80, seg *segment.Segment) error {
	if seg.Kind != segment.Test {
		return fmt.Errorf("runTestcode: %q is not a test segment", seg.Name)
	}
	z.LoadBytes(seg.Address.Uint16(), seg.Bytes)

	var regs Registers
	regs.PC = seg.Address.Uint16()
	regs.SP = 0xFFFE
	for _, seed := range seg.Preamble {
		setRegisterField(&regs, seed.Register, seed.Value)
	}
	z.SetRegisters(regs)

	reason, err := z.Run(seg.CyclesBudget)
	if err != nil {
		return err
	}
	if reason == IllegalInstruction || reason == UnsupportedIntAckByte {
		return fmt.Errorf("test %q stopped on %s", seg.Name, reason)
	}

	final := z.Registers()
	for _, exp := range seg.Expectations {
		var got uint16
		if exp.Register != "" {
			got = registerField(&final, exp.Register)
		} else {
			got = uint16(z.PeekByte(exp.Address))
		}
		if got != exp.Want {
			target := exp.Register
			if target == "" {
				target = fmt.Sprintf("(%04Xh)", exp.Address)
			}
			return fmt.Errorf("test %q: %s = %d, want %d", seg.Name, target, got, exp.Want)
		}
	}
	return nil
}

func setRegisterField(r *Registers, name string, v uint16) {
	switch name {
	case "A":
		r.AF = uint16(v)<<8 | uint16(lo(r.AF))
	case "F":
		r.AF = uint16(hi(r.AF))<<8 | uint16(byte(v))
	case "AF":
		r.AF = v
	case "B":
		r.BC = uint16(v)<<8 | uint16(lo(r.BC))
	case "C":
		r.BC = uint16(hi(r.BC))<<8 | uint16(byte(v))
	case "BC":
		r.BC = v
	case "D":
		r.DE = uint16(v)<<8 | uint16(lo(r.DE))
	case "E":
		r.DE = uint16(hi(r.DE))<<8 | uint16(byte(v))
	case "DE":
		r.DE = v
	case "H":
		r.HL = uint16(v)<<8 | uint16(lo(r.HL))
	case "L":
		r.HL = uint16(hi(r.HL))<<8 | uint16(byte(v))
	case "HL":
		r.HL = v
	case "IX":
		r.IX = v
	case "IY":
		r.IY = v
	case "SP":
		r.SP = v
	case "PC":
		r.PC = v
	}
}

func registerField(r *Registers, name string) uint16 {
	switch name {
	case "A":
		return uint16(hi(r.AF))
	case "F":
		return uint16(lo(r.AF))
	case "B":
		return uint16(hi(r.BC))
	case "C":
		return uint16(lo(r.BC))
	case "D":
		return uint16(hi(r.DE))
	case "E":
		return uint16(lo(r.DE))
	case "H":
		return uint16(hi(r.HL))
	case "L":
		return uint16(lo(r.HL))
	case "AF":
		return r.AF
	case "BC":
		return r.BC
	case "DE":
		return r.DE
	case "HL":
		return r.HL
	case "IX":
		return r.IX
	case "IY":
		return r.IY
	case "SP":
		return r.SP
	case "PC":
		return r.PC
	}
	return 0
}
