package testing

import (
	"testing"
)

func TestAddition(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("A", 5).
		Register("B", 3).
		Code(0x8000,
			0x80, // ADD A, B
			0xC9, // RET
		)

	test.When().Execute(14)

	test.Then().
		Register("A", 8).
		Flag("Z", false).
		Flag("C", false).
		Cycles(4, 14) // ADD A,B = 4 cycles, RET = 10 cycles
}

func TestAdd16(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("HL", 0x1234).
		Register("BC", 0x5678).
		Code(0x8000,
			0x09, // ADD HL, BC
			0xC9, // RET
		)

	test.When().Execute(20)

	test.Then().
		Register("HL", 0x68AC).
		Flag("C", false)
}

func TestMemoryCopy(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("HL", 0x4000). // Source
		Register("DE", 0x5000). // Destination
		Register("BC", 0x0003). // Count
		Memory(0x4000, 0x11, 0x22, 0x33).
		Code(0x8000,
			0xED, 0xB0, // LDIR
			0xC9, // RET
		)

	test.When().Execute(150) // enough for LDIR x3 plus RET

	test.Then().
		Memory(0x5000, 0x11, 0x22, 0x33).
		Register("BC", 0x0000).
		Register("HL", 0x4003).
		Register("DE", 0x5003)
}

func TestPortOutput(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("A", 0x42).
		Register("BC", 0x00FE). // Port address in BC
		Code(0x8000,
			0xED, 0x79, // OUT (C), A
			0xC9, // RET
		)

	test.When().Execute(30)

	test.Then().
		Port(0x00FE, 0x42)
}

func TestSubroutineCall(t *testing.T) {
	test := NewTest(t)

	// Subroutine that doubles A
	test.Given().
		Register("A", 7).
		Register("SP", 0xFFFE).
		Code(0x8000,
			0xCD, 0x00, 0x90, // CALL 0x9000
			0xC9, // RET
		).
		Code(0x9000,
			0x87, // ADD A, A (double A)
			0xC9, // RET
		)

	test.When().ExecuteUntil(0x8003) // Execute until after CALL returns

	test.Then().
		Register("A", 14).
		Register("PC", 0x8003) // After the 3-byte CALL
}

func TestConditionalJump(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("A", 0).
		Code(0x8000,
			0x3C,       // INC A
			0xFE, 0x05, // CP 5
			0x20, 0xFB, // JR NZ, -5 (loop back to INC A)
			0xC9, // RET
		)

	test.When().Execute(200) // enough for 5 iterations plus RET

	test.Then().
		Register("A", 5).
		Flag("Z", true) // A == 5, so Z flag is set
}

// Calling-convention style test: first argument in HL, second in DE,
// result in HL — the common register-passing convention for small Z80
// routines.
func TestRegisterPassingConvention(t *testing.T) {
	test := NewTest(t)

	test.Given().
		Register("HL", 0x1000). // First argument
		Register("DE", 0x0234). // Second argument
		Code(0x8000,
			0x19, // ADD HL, DE
			0xC9, // RET
		)

	test.When().Call(0x8000)

	test.Then().
		Register("HL", 0x1234) // Result
}

func TestComplexRoutine(t *testing.T) {
	test := NewTest(t)

	// Sum array pointed by HL, length in B, result in A
	test.Given().
		Register("HL", 0x4000). // Array start
		Register("B", 3).       // Array length
		Memory(0x4000, 1, 2, 3).
		Code(0x8000,
			0xAF,       // XOR A (clear A)
			0x86,       // ADD A, (HL) - label: loop
			0x23,       // INC HL
			0x10, 0xFC, // DJNZ loop (B--, jump if not zero)
			0xC9, // RET
		)

	test.When().Execute(300)

	test.Then().
		Register("A", 6). // 1 + 2 + 3
		Register("B", 0). // Loop counter exhausted
		Register("HL", 0x4003)
}

// End-to-end: a #test segment assembled from source, executed through
// the same interpreter path the driver itself calls.
func TestAssembledTestSegment(t *testing.T) {
	RunSegment(t, `
#test "double", 1000, A=21
  ADD A, A
#assert A == 42
`, "double")
}
