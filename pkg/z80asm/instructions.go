package z80asm

import (
	"fmt"
	"strings"
)

// InstructionDef defines an instruction and its encoding
type InstructionDef struct {
	Mnemonic    string
	Operands    []OperandType
	Encoder     EncoderFunc
	Cycles      int
	Size        int
	Undocumented bool
	RequiresZ180 bool // MLT, IN0, OUT0, TST, TSTIO, SLP: rejected on plain Z80
	RequiresIXCBR2 bool // DDCB/FDCB secondary-register-result variants, gated by Config.IXCBR2Enabled
	RequiresIXCBXH bool // IXH/IXL/IYH/IYL halves, gated by Config.IXCBXHEnabled
}

// OperandType defines what kind of operand is expected
type OperandType int

const (
	OpNone OperandType = iota
	OpReg8             // 8-bit register (A, B, C, etc.)
	OpReg16            // 16-bit register (BC, DE, HL, etc.)
	OpRegIndirect      // (HL), (BC), etc.
	OpImm8             // 8-bit immediate
	OpImm16            // 16-bit immediate
	OpAddr16           // 16-bit address
	OpRelative         // Relative jump offset
	OpCondition        // Jump condition (Z, NZ, C, NC, etc.)
	OpBit              // Bit number (0-7)
	OpIXOffset         // (IX+d)
	OpIYOffset         // (IY+d)
	OpRegOrImm8        // Register or immediate
	OpAny              // Any operand (for special cases)
)

// EncoderFunc encodes an instruction
type EncoderFunc func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error)

// Old instruction table - will be populated in init()
var oldInstructionTable map[string][]*InstructionDef

// Opcode prefix bytes
const (
	PrefixCB   = 0xCB
	PrefixDD   = 0xDD
	PrefixED   = 0xED
	PrefixFD   = 0xFD
	PrefixDDCB = 0xDDCB
	PrefixFDCB = 0xFDCB
)

func init() {
	// Initialize old instruction table
	oldInstructionTable = make(map[string][]*InstructionDef)
	
	// Register all instructions
	registerLoadInstructions()
	registerArithmeticInstructions()
	registerLogicalInstructions()
	registerBitInstructions()
	registerJumpInstructions()
	registerStackInstructions()
	registerIOInstructions()
	registerControlInstructions()
	registerUndocumentedInstructions()
	registerZ180Instructions()
}

// registerLoadInstructions registers all load instructions
func registerLoadInstructions() {
	// LD r, r' - 8-bit register to register
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpReg8},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD r, n - 8-bit immediate to register
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpImm8},
		Size:     2,
		Encoder:  encodeLD,
	})
	
	// LD r, (HL) - load from (HL)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpRegIndirect},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD (HL), r - store to (HL)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpRegIndirect, OpReg8},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD (HL), n - immediate to (HL)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpRegIndirect, OpImm8},
		Size:     2,
		Encoder:  encodeLD,
	})
	
	// LD rr, nn - 16-bit immediate loads
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg16, OpImm16},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	// LD A, (BC) and LD A, (DE)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpRegIndirect},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD (BC), A and LD (DE), A
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpRegIndirect, OpReg8},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD A, (nn) and LD (nn), A
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpAddr16},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpAddr16, OpReg8},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	// LD HL, (nn) and LD (nn), HL
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg16, OpAddr16},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpAddr16, OpReg16},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	// LD SP, HL
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg16, OpReg16},
		Size:     1,
		Encoder:  encodeLD,
	})
	
	// LD (IX+d), r and LD r, (IX+d)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpIXOffset, OpReg8},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpIXOffset},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	// LD (IY+d), r and LD r, (IY+d)
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpIYOffset, OpReg8},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	addInstruction("LD", &InstructionDef{
		Mnemonic: "LD",
		Operands: []OperandType{OpReg8, OpIYOffset},
		Size:     3,
		Encoder:  encodeLD,
	})
	
	// EX DE, HL
	addInstruction("EX", &InstructionDef{
		Mnemonic: "EX",
		Operands: []OperandType{OpReg16, OpReg16},
		Size:     1,
		Encoder:  encodeEX,
	})
	
	// EX AF, AF'
	addInstruction("EX", &InstructionDef{
		Mnemonic: "EX",
		Operands: []OperandType{OpReg16, OpReg16},
		Size:     1,
		Encoder:  encodeEX,
	})
	
	// EX (SP), HL/IX/IY
	addInstruction("EX", &InstructionDef{
		Mnemonic: "EX",
		Operands: []OperandType{OpRegIndirect, OpReg16},
		Size:     1,
		Encoder:  encodeEX,
	})
	
	// EXX
	addInstruction("EXX", &InstructionDef{
		Mnemonic: "EXX",
		Operands: []OperandType{},
		Size:     1,
		Encoder:  encodeImplied(0xD9),
	})
	
	// LDI, LDIR, LDD, LDDR
	addInstruction("LDI", &InstructionDef{
		Mnemonic: "LDI",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xA0),
	})
	
	addInstruction("LDIR", &InstructionDef{
		Mnemonic: "LDIR",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xB0),
	})
	
	addInstruction("LDD", &InstructionDef{
		Mnemonic: "LDD",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xA8),
	})
	
	addInstruction("LDDR", &InstructionDef{
		Mnemonic: "LDDR",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xB8),
	})
}

// registerArithmeticInstructions registers arithmetic instructions
func registerArithmeticInstructions() {
	// ADD A, r / ADD A, n / ADD A, (HL) etc.
	arithmeticOps := []struct {
		mnemonic string
		base8    byte
		baseImm  byte
	}{
		{"ADD", 0x80, 0xC6},
		{"ADC", 0x88, 0xCE},
		{"SUB", 0x90, 0xD6},
		{"SBC", 0x98, 0xDE},
	}
	
	for _, op := range arithmeticOps {
		// Register/memory forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg8, OpReg8},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, true),
		})
		
		// Implied A forms (SUB B == SUB A, B)
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg8},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, false),
		})
		
		// Immediate forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg8, OpImm8},
			Size:     2,
			Encoder:  makeImmediateEncoder(op.baseImm),
		})
		
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpImm8},
			Size:     2,
			Encoder:  makeImmediateEncoder(op.baseImm),
		})
		
		// (HL) forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg8, OpRegIndirect},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, true),
		})
		
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpRegIndirect},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, false),
		})
	}
	
	// INC/DEC 8-bit
	// INC r
	for r := 0; r < 8; r++ {
		opcode := byte(0x04 + r*8)
		if r == 6 { // (HL)
			opcode = 0x34
		}
		
		addInstruction("INC", &InstructionDef{
			Mnemonic: "INC",
			Operands: []OperandType{OpReg8},
			Size:     1,
			Encoder:  makeIncDecEncoder(opcode, true),
		})
	}
	
	// DEC r
	for r := 0; r < 8; r++ {
		opcode := byte(0x05 + r*8)
		if r == 6 { // (HL)
			opcode = 0x35
		}
		
		addInstruction("DEC", &InstructionDef{
			Mnemonic: "DEC",
			Operands: []OperandType{OpReg8},
			Size:     1,
			Encoder:  makeIncDecEncoder(opcode, false),
		})
	}
	
	// INC/DEC 16-bit
	reg16Pairs := []struct {
		reg    string
		incOp  byte
		decOp  byte
	}{
		{"BC", 0x03, 0x0B},
		{"DE", 0x13, 0x1B},
		{"HL", 0x23, 0x2B},
		{"SP", 0x33, 0x3B},
	}
	
	for _, pair := range reg16Pairs {
		addInstruction("INC", &InstructionDef{
			Mnemonic: "INC",
			Operands: []OperandType{OpReg16},
			Size:     1,
			Encoder:  encodeImplied(pair.incOp),
		})
		
		addInstruction("DEC", &InstructionDef{
			Mnemonic: "DEC",
			Operands: []OperandType{OpReg16},
			Size:     1,
			Encoder:  encodeImplied(pair.decOp),
		})
	}
	
	// ADD HL, rr
	addHLPairs := []struct {
		reg   string
		opcode byte
	}{
		{"BC", 0x09},
		{"DE", 0x19},
		{"HL", 0x29},
		{"SP", 0x39},
	}
	
	for _, pair := range addHLPairs {
		addInstruction("ADD", &InstructionDef{
			Mnemonic: "ADD",
			Operands: []OperandType{OpReg16, OpReg16},
			Size:     1,
			Encoder:  make16BitAddEncoder(pair.opcode),
		})
	}
	
	// ADC HL, rr and SBC HL, rr (ED prefix)
	edArithPairs := []struct {
		mnemonic string
		bc       byte
		de       byte
		hl       byte
		sp       byte
	}{
		{"ADC", 0x4A, 0x5A, 0x6A, 0x7A},
		{"SBC", 0x42, 0x52, 0x62, 0x72},
	}
	
	for _, op := range edArithPairs {
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg16, OpReg16},
			Size:     2,
			Encoder:  makeED16BitEncoder(op.bc, op.de, op.hl, op.sp),
		})
	}
	
	// NEG
	addInstruction("NEG", &InstructionDef{
		Mnemonic: "NEG",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0x44),
	})
	
	// CPL
	addInstruction("CPL", &InstructionDef{
		Mnemonic: "CPL",
		Operands: []OperandType{},
		Size:     1,
		Encoder:  encodeImplied(0x2F),
	})
	
	// DAA
	addInstruction("DAA", &InstructionDef{
		Mnemonic: "DAA",
		Operands: []OperandType{},
		Size:     1,
		Encoder:  encodeImplied(0x27),
	})
}

// registerLogicalInstructions registers logical instructions
func registerLogicalInstructions() {
	// AND, XOR, OR, CP
	logicalOps := []struct {
		mnemonic string
		base8    byte
		baseImm  byte
	}{
		{"AND", 0xA0, 0xE6},
		{"XOR", 0xA8, 0xEE},
		{"OR", 0xB0, 0xF6},
		{"CP", 0xB8, 0xFE},
	}
	
	for _, op := range logicalOps {
		// Register forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpReg8},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, false),
		})
		
		// Immediate forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpImm8},
			Size:     2,
			Encoder:  makeImmediateEncoder(op.baseImm),
		})
		
		// (HL) forms
		addInstruction(op.mnemonic, &InstructionDef{
			Mnemonic: op.mnemonic,
			Operands: []OperandType{OpRegIndirect},
			Size:     1,
			Encoder:  makeArithmeticEncoder(op.base8, false),
		})
	}
	
	// CPI, CPIR, CPD, CPDR
	addInstruction("CPI", &InstructionDef{
		Mnemonic: "CPI",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xA1),
	})
	
	addInstruction("CPIR", &InstructionDef{
		Mnemonic: "CPIR",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xB1),
	})
	
	addInstruction("CPD", &InstructionDef{
		Mnemonic: "CPD",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xA9),
	})
	
	addInstruction("CPDR", &InstructionDef{
		Mnemonic: "CPDR",
		Operands: []OperandType{},
		Size:     2,
		Encoder:  encodeEDPrefix(0xB9),
	})
}

// registerBitInstructions, registerJumpInstructions,
// registerStackInstructions, registerIOInstructions and
// registerControlInstructions are in instruction_sets.go.

// Helper encoder makers

func makeArithmeticEncoder(baseOpcode byte, hasDestOperand bool) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		var srcReg Register
		
		if hasDestOperand && len(line.Operands) == 2 {
			srcReg, _ = parseRegister(line.Operands[1])
		} else if len(line.Operands) == 1 {
			if isIndirect(line.Operands[0]) && line.Operands[0] == "(HL)" {
				return []byte{baseOpcode | 0x06}, nil
			}
			srcReg, _ = parseRegister(line.Operands[0])
		}
		
		srcCode, err := encodeReg8(srcReg)
		if err != nil {
			return nil, err
		}
		
		return []byte{baseOpcode | srcCode}, nil
	}
}

func makeImmediateEncoder(opcode byte) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		var immStr string
		if len(line.Operands) == 2 {
			immStr = line.Operands[1]
		} else {
			immStr = line.Operands[0]
		}
		
		value, err := a.resolveValue(immStr)
		if err != nil {
			return nil, err
		}
		
		return []byte{opcode, byte(value)}, nil
	}
}

func makeIncDecEncoder(opcode byte, isInc bool) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		// Handle special cases for specific registers
		if isIndirect(line.Operands[0]) && line.Operands[0] == "(HL)" {
			if isInc {
				return []byte{0x34}, nil
			} else {
				return []byte{0x35}, nil
			}
		}
		
		reg, _ := parseRegister(line.Operands[0])
		
		// Calculate opcode based on register
		var finalOpcode byte
		switch reg {
		case RegB:
			finalOpcode = 0x04
		case RegC:
			finalOpcode = 0x0C
		case RegD:
			finalOpcode = 0x14
		case RegE:
			finalOpcode = 0x1C
		case RegH:
			finalOpcode = 0x24
		case RegL:
			finalOpcode = 0x2C
		case RegA:
			finalOpcode = 0x3C
		default:
			return nil, fmt.Errorf("invalid register for INC/DEC")
		}
		
		if !isInc {
			finalOpcode |= 0x01
		}
		
		return []byte{finalOpcode}, nil
	}
}

func make16BitAddEncoder(opcode byte) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		// ADD HL, rr form
		if len(line.Operands) == 2 {
			destReg, _ := parseRegister(line.Operands[0])
			srcReg, _ := parseRegister(line.Operands[1])
			
			if destReg == RegHL {
				switch srcReg {
				case RegBC:
					return []byte{0x09}, nil
				case RegDE:
					return []byte{0x19}, nil
				case RegHL:
					return []byte{0x29}, nil
				case RegSP:
					return []byte{0x39}, nil
				}
			}
			
			// ADD IX/IY, rr
			if destReg == RegIX {
				switch srcReg {
				case RegBC:
					return []byte{0xDD, 0x09}, nil
				case RegDE:
					return []byte{0xDD, 0x19}, nil
				case RegIX:
					return []byte{0xDD, 0x29}, nil
				case RegSP:
					return []byte{0xDD, 0x39}, nil
				}
			}
			
			if destReg == RegIY {
				switch srcReg {
				case RegBC:
					return []byte{0xFD, 0x09}, nil
				case RegDE:
					return []byte{0xFD, 0x19}, nil
				case RegIY:
					return []byte{0xFD, 0x29}, nil
				case RegSP:
					return []byte{0xFD, 0x39}, nil
				}
			}
		}
		
		return nil, fmt.Errorf("invalid ADD instruction")
	}
}

func makeED16BitEncoder(bcOp, deOp, hlOp, spOp byte) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		if len(line.Operands) != 2 {
			return nil, fmt.Errorf("instruction requires 2 operands")
		}
		
		destReg, _ := parseRegister(line.Operands[0])
		srcReg, _ := parseRegister(line.Operands[1])
		
		if destReg != RegHL {
			return nil, fmt.Errorf("destination must be HL")
		}
		
		var opcode byte
		switch srcReg {
		case RegBC:
			opcode = bcOp
		case RegDE:
			opcode = deOp
		case RegHL:
			opcode = hlOp
		case RegSP:
			opcode = spOp
		default:
			return nil, fmt.Errorf("invalid source register")
		}
		
		return []byte{0xED, opcode}, nil
	}
}

// encodeEX handles EX instructions
func encodeEX(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	if len(line.Operands) != 2 {
		return nil, fmt.Errorf("EX requires 2 operands")
	}
	
	op1 := line.Operands[0]
	op2 := line.Operands[1]
	
	// EX DE, HL
	if op1 == "DE" && op2 == "HL" {
		return []byte{0xEB}, nil
	}
	
	// EX AF, AF'
	if op1 == "AF" && (op2 == "AF'" || op2 == "AF") {
		return []byte{0x08}, nil
	}
	
	// EX (SP), HL/IX/IY
	if op1 == "(SP)" {
		reg, _ := parseRegister(op2)
		switch reg {
		case RegHL:
			return []byte{0xE3}, nil
		case RegIX:
			return []byte{0xDD, 0xE3}, nil
		case RegIY:
			return []byte{0xFD, 0xE3}, nil
		}
	}
	
	return nil, fmt.Errorf("invalid EX instruction")
}

// processInstructionOld assembles an instruction using the old approach
func (a *Assembler) processInstructionOld(line *Line) error {
	mnemonic := strings.ToUpper(line.Mnemonic)
	
	// Look up instruction definitions
	defs, exists := oldInstructionTable[mnemonic]
	if !exists {
		return fmt.Errorf("unknown instruction: %s", mnemonic)
	}
	
	// Try each definition to find a match. Several defs can share the same
	// OperandType signature (e.g. one per destination register, matched
	// loosely by OpReg8) while only one actually encodes the operand the
	// line names, so a def whose Encoder rejects the operands is not a
	// dispatch failure: keep trying the remaining candidates.
	sawZ180Only := false
	var lastErr error
	for _, def := range defs {
		if !a.AllowUndocumented && def.Undocumented {
			continue
		}
		if def.RequiresZ180 && a.Config.CPU != CPUZ180 {
			sawZ180Only = true
			continue
		}
		if def.RequiresIXCBXH && !a.Config.IXCBXHEnabled {
			continue
		}
		if def.RequiresIXCBR2 && !a.Config.IXCBR2Enabled {
			continue
		}

		if matchesOperands(line, def) {
			bytes, err := def.Encoder(a, line, def)
			if err != nil {
				lastErr = err
				continue
			}

			a.emitBytes(line, bytes)
			return nil
		}
	}

	// No matching instruction found
	if lastErr != nil {
		return lastErr
	}
	if sawZ180Only {
		return fmt.Errorf("%s requires Z180 mode (cpu: Z180)", mnemonic)
	}
	return fmt.Errorf("invalid operands for %s", mnemonic)
}

// matchesOperands checks if operands match the instruction definition
func matchesOperands(line *Line, def *InstructionDef) bool {
	if len(line.Operands) != len(def.Operands) {
		return false
	}
	
	for i, operand := range line.Operands {
		if !matchesOperandType(operand, def.Operands[i]) {
			return false
		}
	}
	
	return true
}

// matchesOperandType checks if an operand matches the expected type
func matchesOperandType(operand string, opType OperandType) bool {
	operand = strings.TrimSpace(operand)
	
	switch opType {
	case OpNone:
		return operand == ""
		
	case OpReg8:
		reg, ok := parseRegister(operand)
		return ok && isReg8(reg)
		
	case OpReg16:
		reg, ok := parseRegister(operand)
		return ok && isReg16(reg)
		
	case OpRegIndirect:
		if !isIndirect(operand) {
			return false
		}
		inner := stripIndirect(operand)
		reg, ok := parseRegister(inner)
		return ok && (reg == RegHL || reg == RegBC || reg == RegDE || reg == RegSP)
		
	case OpImm8, OpImm16, OpAddr16:
		_, err := parseOperandValue(operand)
		return err == nil && !isRegister(operand)
		
	case OpRelative:
		// Relative addresses are handled like immediates
		_, err := parseOperandValue(operand)
		return err == nil
		
	case OpCondition:
		_, ok := parseCondition(operand)
		return ok
		
	case OpBit:
		val, err := parseOperandValue(operand)
		return err == nil && val <= 7
		
	case OpIXOffset:
		return isIndexedOperand(operand, "IX")
		
	case OpIYOffset:
		return isIndexedOperand(operand, "IY")
		
	case OpRegOrImm8:
		// Can be either register or immediate
		if reg, ok := parseRegister(operand); ok && isReg8(reg) {
			return true
		}
		_, err := parseOperandValue(operand)
		return err == nil
		
	case OpAny:
		return true
	}
	
	return false
}

// Helper functions for operand parsing

func isReg8(reg Register) bool {
	switch reg {
	case RegA, RegB, RegC, RegD, RegE, RegH, RegL, RegI, RegR:
		return true
	// Undocumented IX/IY halves
	case RegIXH, RegIXL, RegIYH, RegIYL:
		return true
	default:
		return false
	}
}

func isReg16(reg Register) bool {
	switch reg {
	case RegBC, RegDE, RegHL, RegAF, RegSP, RegIX, RegIY:
		return true
	default:
		return false
	}
}

func isRegister(operand string) bool {
	_, ok := parseRegister(operand)
	return ok
}

func isIndexedOperand(operand string, indexReg string) bool {
	if !isIndirect(operand) {
		return false
	}
	inner := stripIndirect(operand)
	// Check for IX+d or IY+d format
	return strings.HasPrefix(strings.ToUpper(inner), indexReg+"+") ||
	       strings.HasPrefix(strings.ToUpper(inner), indexReg+"-")
}

// parseOperandValue parses an operand as a numeric value
func parseOperandValue(operand string) (uint16, error) {
	operand = strings.TrimSpace(operand)
	
	// Check if it's a symbol
	if isSymbol(operand) {
		// During pass 1, return 0 for forward references
		// During pass 2, this will resolve the symbol
		return 0, nil
	}
	
	// Parse as number
	return parseNumber(operand)
}

func isSymbol(s string) bool {
	if s == "" {
		return false
	}
	// Symbol starts with letter or underscore
	ch := s[0]
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || ch == '_'
}

// encodeReg8 encodes an 8-bit register into 3 bits
func encodeReg8(reg Register) (byte, error) {
	switch reg {
	case RegB:
		return 0x00, nil
	case RegC:
		return 0x01, nil
	case RegD:
		return 0x02, nil
	case RegE:
		return 0x03, nil
	case RegH:
		return 0x04, nil
	case RegL:
		return 0x05, nil
	case RegA:
		return 0x07, nil
	default:
		return 0, fmt.Errorf("invalid 8-bit register encoding: %v", reg)
	}
}

// encodeReg16 encodes a 16-bit register pair for various instructions
func encodeReg16(reg Register) (byte, error) {
	switch reg {
	case RegBC:
		return 0x00, nil
	case RegDE:
		return 0x10, nil
	case RegHL:
		return 0x20, nil
	case RegSP:
		return 0x30, nil
	default:
		return 0, fmt.Errorf("invalid 16-bit register encoding: %v", reg)
	}
}

// encodeCondition encodes a jump condition
func encodeCondition(cond Condition) (byte, error) {
	switch cond {
	case CondNZ:
		return 0x00, nil
	case CondZ:
		return 0x08, nil
	case CondNC:
		return 0x10, nil
	case CondC:
		return 0x18, nil
	case CondPO:
		return 0x20, nil
	case CondPE:
		return 0x28, nil
	case CondP:
		return 0x30, nil
	case CondM:
		return 0x38, nil
	default:
		return 0, fmt.Errorf("invalid condition: %v", cond)
	}
}

// getIndexOffset extracts the offset from (IX+d) or (IY+d)
func getIndexOffset(operand string) (int8, error) {
	inner := stripIndirect(operand)
	upper := strings.ToUpper(inner)
	
	var offsetStr string
	if strings.HasPrefix(upper, "IX+") {
		offsetStr = inner[3:]
	} else if strings.HasPrefix(upper, "IX-") {
		offsetStr = inner[2:] // Keep the minus sign
	} else if strings.HasPrefix(upper, "IY+") {
		offsetStr = inner[3:]
	} else if strings.HasPrefix(upper, "IY-") {
		offsetStr = inner[2:] // Keep the minus sign
	} else {
		return 0, fmt.Errorf("invalid index format: %s", operand)
	}
	
	neg := strings.HasPrefix(offsetStr, "-")
	val, err := parseNumber(strings.TrimPrefix(offsetStr, "-"))
	if err != nil {
		return 0, err
	}
	if neg {
		val = -val
	}
	
	// Check range
	if val > 127 && val < 0xFF80 {
		return 0, fmt.Errorf("offset out of range: %d", val)
	}
	
	return int8(val), nil
}