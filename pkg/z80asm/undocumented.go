package z80asm

import (
	"fmt"
)

// registerUndocumentedInstructions adds all undocumented Z80 instructions
func registerUndocumentedInstructions() {
	// SLL (Shift Left Logical) - undocumented
	registerSLL()
	
	// IX/IY half register operations
	registerIXHalfOps()
	registerIYHalfOps()
	
	// Undocumented ED instructions
	registerUndocumentedED()
	
	// Undocumented bit operations with IX/IY
	registerUndocumentedIXBit()
	registerUndocumentedIYBit()
	
	// Other undocumented instructions
	registerMiscUndocumented()
}

// registerSLL registers the undocumented SLL instruction
func registerSLL() {
	// SLL r - Shift Left Logical (undocumented)
	registers := []struct {
		name string
		reg  Register
		code byte
	}{
		{"B", RegB, 0x30},
		{"C", RegC, 0x31},
		{"D", RegD, 0x32},
		{"E", RegE, 0x33},
		{"H", RegH, 0x34},
		{"L", RegL, 0x35},
		{"(HL)", RegHL, 0x36},
		{"A", RegA, 0x37},
	}
	
	for _, r := range registers {
		def := &InstructionDef{
			Mnemonic:     "SLL",
			Operands:     []OperandType{OpReg8},
			Undocumented: true,
			Size:         2,
			Encoder: func(want Register, code byte) EncoderFunc {
				return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
					if got, _ := parseRegister(stripIndirect(line.Operands[0])); got != want {
						return nil, fmt.Errorf("SLL operand does not match this opcode variant")
					}
					return []byte{PrefixCB, code}, nil
				}
			}(r.reg, r.code),
		}
		
		// Special handling for (HL)
		if r.name == "(HL)" {
			def.Operands = []OperandType{OpRegIndirect}
		}
		
		addInstruction("SLL", def)
	}
	
	// SLL (IX+d)
	addInstruction("SLL", &InstructionDef{
		Mnemonic:     "SLL",
		Operands:     []OperandType{OpIXOffset},
		Undocumented: true,
		Size:         4,
		Encoder:      encodeSLLIndex,
	})
	
	// SLL (IY+d)
	addInstruction("SLL", &InstructionDef{
		Mnemonic:     "SLL",
		Operands:     []OperandType{OpIYOffset},
		Undocumented: true,
		Size:         4,
		Encoder:      encodeSLLIndex,
	})
}

// encodeSLLIndex encodes SLL (IX/IY+d)
func encodeSLLIndex(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	operand := line.Operands[0]
	
	if isIndexedOperand(operand, "IX") {
		offset, err := getIndexOffset(operand)
		if err != nil {
			return nil, err
		}
		return []byte{0xDD, 0xCB, byte(offset), 0x36}, nil
	}
	
	if isIndexedOperand(operand, "IY") {
		offset, err := getIndexOffset(operand)
		if err != nil {
			return nil, err
		}
		return []byte{0xFD, 0xCB, byte(offset), 0x36}, nil
	}
	
	return nil, fmt.Errorf("invalid indexed operand for SLL")
}

// registerIXHalfOps registers operations on IXH and IXL
func registerIXHalfOps() {
	// INC/DEC IXH/IXL
	addInstruction("INC", &InstructionDef{
		Mnemonic:     "INC",
		Operands:     []OperandType{OpReg8},
		Undocumented: true,
			RequiresIXCBXH: true,
		Size:         2,
		Encoder:      encodeIXHalfInc,
	})
	
	addInstruction("DEC", &InstructionDef{
		Mnemonic:     "DEC",
		Operands:     []OperandType{OpReg8},
		Undocumented: true,
			RequiresIXCBXH: true,
		Size:         2,
		Encoder:      encodeIXHalfDec,
	})
	
	// Arithmetic with IXH/IXL
	arithmeticOps := []string{"ADD", "ADC", "SUB", "SBC", "AND", "XOR", "OR", "CP"}
	for _, op := range arithmeticOps {
		addInstruction(op, &InstructionDef{
			Mnemonic:     op,
			Operands:     []OperandType{OpReg8},
			Undocumented: true,
			RequiresIXCBXH: true,
			Size:         2,
			Encoder:      makeIXHalfArithEncoder(op),
		})
		
		// Also register A, IXH/IXL forms
		addInstruction(op, &InstructionDef{
			Mnemonic:     op,
			Operands:     []OperandType{OpReg8, OpReg8},
			Undocumented: true,
			RequiresIXCBXH: true,
			Size:         2,
			Encoder:      makeIXHalfArithEncoder(op),
		})
	}
}

// registerIYHalfOps registers operations on IYH and IYL
func registerIYHalfOps() {
	// INC/DEC IYH/IYL
	addInstruction("INC", &InstructionDef{
		Mnemonic:     "INC",
		Operands:     []OperandType{OpReg8},
		Undocumented: true,
			RequiresIXCBXH: true,
		Size:         2,
		Encoder:      encodeIYHalfInc,
	})
	
	addInstruction("DEC", &InstructionDef{
		Mnemonic:     "DEC",
		Operands:     []OperandType{OpReg8},
		Undocumented: true,
			RequiresIXCBXH: true,
		Size:         2,
		Encoder:      encodeIYHalfDec,
	})
	
	// Arithmetic with IYH/IYL
	arithmeticOps := []string{"ADD", "ADC", "SUB", "SBC", "AND", "XOR", "OR", "CP"}
	for _, op := range arithmeticOps {
		addInstruction(op, &InstructionDef{
			Mnemonic:     op,
			Operands:     []OperandType{OpReg8},
			Undocumented: true,
			RequiresIXCBXH: true,
			Size:         2,
			Encoder:      makeIYHalfArithEncoder(op),
		})
		
		// Also register A, IYH/IYL forms
		addInstruction(op, &InstructionDef{
			Mnemonic:     op,
			Operands:     []OperandType{OpReg8, OpReg8},
			Undocumented: true,
			RequiresIXCBXH: true,
			Size:         2,
			Encoder:      makeIYHalfArithEncoder(op),
		})
	}
}

// Encoder functions for IX/IY half registers

func encodeIXHalfInc(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	reg, _ := parseRegister(line.Operands[0])
	
	switch reg {
	case RegIXH:
		return []byte{0xDD, 0x24}, nil // INC IXH
	case RegIXL:
		return []byte{0xDD, 0x2C}, nil // INC IXL
	}
	
	return nil, fmt.Errorf("not an IX half register")
}

func encodeIXHalfDec(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	reg, _ := parseRegister(line.Operands[0])
	
	switch reg {
	case RegIXH:
		return []byte{0xDD, 0x25}, nil // DEC IXH
	case RegIXL:
		return []byte{0xDD, 0x2D}, nil // DEC IXL
	}
	
	return nil, fmt.Errorf("not an IX half register")
}

func encodeIYHalfInc(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	reg, _ := parseRegister(line.Operands[0])
	
	switch reg {
	case RegIYH:
		return []byte{0xFD, 0x24}, nil // INC IYH
	case RegIYL:
		return []byte{0xFD, 0x2C}, nil // INC IYL
	}
	
	return nil, fmt.Errorf("not an IY half register")
}

func encodeIYHalfDec(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
	reg, _ := parseRegister(line.Operands[0])
	
	switch reg {
	case RegIYH:
		return []byte{0xFD, 0x25}, nil // DEC IYH
	case RegIYL:
		return []byte{0xFD, 0x2D}, nil // DEC IYL
	}
	
	return nil, fmt.Errorf("not an IY half register")
}

// makeIXHalfArithEncoder creates arithmetic encoders for IX half registers
func makeIXHalfArithEncoder(op string) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		var srcReg Register
		
		// Handle both "ADD IXH" and "ADD A, IXH" forms
		if len(line.Operands) == 1 {
			srcReg, _ = parseRegister(line.Operands[0])
		} else if len(line.Operands) == 2 {
			srcReg, _ = parseRegister(line.Operands[1])
		}
		
		// Check if it's an IX half register
		var regCode byte
		switch srcReg {
		case RegIXH:
			regCode = 0x04 // H position
		case RegIXL:
			regCode = 0x05 // L position
		default:
			return nil, fmt.Errorf("not an IX half register")
		}
		
		// Get base opcode for operation
		var baseOp byte
		switch op {
		case "ADD":
			baseOp = 0x80
		case "ADC":
			baseOp = 0x88
		case "SUB":
			baseOp = 0x90
		case "SBC":
			baseOp = 0x98
		case "AND":
			baseOp = 0xA0
		case "XOR":
			baseOp = 0xA8
		case "OR":
			baseOp = 0xB0
		case "CP":
			baseOp = 0xB8
		}
		
		return []byte{0xDD, baseOp | regCode}, nil
	}
}

// makeIYHalfArithEncoder creates arithmetic encoders for IY half registers
func makeIYHalfArithEncoder(op string) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		var srcReg Register
		
		// Handle both "ADD IYH" and "ADD A, IYH" forms
		if len(line.Operands) == 1 {
			srcReg, _ = parseRegister(line.Operands[0])
		} else if len(line.Operands) == 2 {
			srcReg, _ = parseRegister(line.Operands[1])
		}
		
		// Check if it's an IY half register
		var regCode byte
		switch srcReg {
		case RegIYH:
			regCode = 0x04 // H position
		case RegIYL:
			regCode = 0x05 // L position
		default:
			return nil, fmt.Errorf("not an IY half register")
		}
		
		// Get base opcode for operation
		var baseOp byte
		switch op {
		case "ADD":
			baseOp = 0x80
		case "ADC":
			baseOp = 0x88
		case "SUB":
			baseOp = 0x90
		case "SBC":
			baseOp = 0x98
		case "AND":
			baseOp = 0xA0
		case "XOR":
			baseOp = 0xA8
		case "OR":
			baseOp = 0xB0
		case "CP":
			baseOp = 0xB8
		}
		
		return []byte{0xFD, baseOp | regCode}, nil
	}
}

// registerUndocumentedED registers undocumented ED prefix instructions
func registerUndocumentedED() {
	// OUT (C), 0 - outputs zero to port C
	addInstruction("OUT", &InstructionDef{
		Mnemonic:     "OUT",
		Operands:     []OperandType{OpAny, OpImm8}, // (C) is not an OpRegIndirect operand; the encoder checks it
		Undocumented: true,
		Size:         2,
		Encoder: func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
			// Check for OUT (C), 0
			if line.Operands[0] == "(C)" && line.Operands[1] == "0" {
				return []byte{0xED, 0x71}, nil
			}
			return nil, fmt.Errorf("not OUT (C), 0")
		},
	})
	
	// Duplicate NEG instructions at various positions
	negOpcodes := []byte{0x44, 0x4C, 0x54, 0x5C, 0x64, 0x6C, 0x74, 0x7C}
	for _, opcode := range negOpcodes[1:] { // Skip first one (documented)
		addInstruction("NEG", &InstructionDef{
			Mnemonic:     "NEG",
			Operands:     []OperandType{},
			Undocumented: true,
			Size:         2,
			Encoder:      encodeEDPrefix(opcode),
		})
	}
}

// ixcbr2ShiftOps are the DDCB/FDCB rotate/shift opcodes (0x00-0x3F block)
// that, besides storing to (IX+d)/(IY+d), also copy their result into a
// plain 8-bit register when the low 3 bits select it instead of 0x06.
var ixcbr2ShiftOps = []struct {
	mnemonic string
	base     byte
}{
	{"RLC", 0x00}, {"RRC", 0x08}, {"RL", 0x10}, {"RR", 0x18},
	{"SLA", 0x20}, {"SRA", 0x28}, {"SLL", 0x30}, {"SRL", 0x38},
}

// registerUndocumentedIXBit registers the DDCB secondary-register-result
// variants: SET/RES b,(IX+d),r and <shift> (IX+d),r, which write their
// result to (IX+d) and copy it into r in the same instruction.
func registerUndocumentedIXBit() {
	registerIXCBR2(true)
}

// registerUndocumentedIYBit is the FDCB counterpart of registerUndocumentedIXBit.
func registerUndocumentedIYBit() {
	registerIXCBR2(false)
}

func registerIXCBR2(isIX bool) {
	for _, op := range ixcbr2ShiftOps {
		for r := byte(0); r < 8; r++ {
			if r == 0x06 {
				continue // documented (IX+d)-only form, no register copy
			}
			operandType := OpIXOffset
			if !isIX {
				operandType = OpIYOffset
			}
			addInstruction(op.mnemonic, &InstructionDef{
				Mnemonic:       op.mnemonic,
				Operands:       []OperandType{operandType, OpReg8},
				Undocumented:   true,
				RequiresIXCBR2: true,
				Size:           4,
				Encoder:        makeIXCBR2ShiftEncoder(op.base|r, isIX),
			})
		}
	}

	bitOps := []struct {
		mnemonic string
		base     byte
	}{
		{"RES", 0x80}, {"SET", 0xC0},
	}
	for _, op := range bitOps {
		for r := byte(0); r < 8; r++ {
			if r == 0x06 {
				continue
			}
			operandType := OpIXOffset
			if !isIX {
				operandType = OpIYOffset
			}
			addInstruction(op.mnemonic, &InstructionDef{
				Mnemonic:       op.mnemonic,
				Operands:       []OperandType{OpBit, operandType, OpReg8},
				Undocumented:   true,
				RequiresIXCBR2: true,
				Size:           4,
				Encoder:        makeIXCBR2BitEncoder(op.base, r, isIX),
			})
		}
	}
}

// makeIXCBR2ShiftEncoder encodes e.g. `RLC (IX+d), B`: the low 3 bits of
// opcode already select the destination register r.
func makeIXCBR2ShiftEncoder(opcode byte, isIX bool) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		if len(line.Operands) != 2 {
			return nil, fmt.Errorf("instruction requires 2 operands")
		}
		reg, ok := parseRegister(line.Operands[1])
		if !ok {
			return nil, fmt.Errorf("invalid destination register: %s", line.Operands[1])
		}
		regCode, err := encodeReg8(reg)
		if err != nil {
			return nil, err
		}
		if regCode != opcode&0x07 {
			return nil, fmt.Errorf("destination register does not match this opcode variant")
		}
		offset, err := getIndexOffset(line.Operands[0])
		if err != nil {
			return nil, err
		}
		prefix := byte(0xDD)
		if !isIX {
			prefix = 0xFD
		}
		return []byte{prefix, 0xCB, byte(offset), opcode}, nil
	}
}

// makeIXCBR2BitEncoder encodes e.g. `SET 3, (IX+d), B`.
func makeIXCBR2BitEncoder(base byte, regCode byte, isIX bool) EncoderFunc {
	return func(a *Assembler, line *Line, def *InstructionDef) ([]byte, error) {
		if len(line.Operands) != 3 {
			return nil, fmt.Errorf("instruction requires 3 operands")
		}
		bitNum, err := parseOperandValue(line.Operands[0])
		if err != nil {
			return nil, err
		}
		if bitNum > 7 {
			return nil, fmt.Errorf("bit number must be 0-7")
		}
		reg, ok := parseRegister(line.Operands[2])
		if !ok {
			return nil, fmt.Errorf("invalid destination register: %s", line.Operands[2])
		}
		destCode, err := encodeReg8(reg)
		if err != nil {
			return nil, err
		}
		if destCode != regCode {
			return nil, fmt.Errorf("destination register does not match this opcode variant")
		}
		offset, err := getIndexOffset(line.Operands[1])
		if err != nil {
			return nil, err
		}
		prefix := byte(0xDD)
		if !isIX {
			prefix = 0xFD
		}
		opcode := base | (byte(bitNum) << 3) | regCode
		return []byte{prefix, 0xCB, byte(offset), opcode}, nil
	}
}

// registerMiscUndocumented registers other miscellaneous undocumented instructions
func registerMiscUndocumented() {
	// Some undocumented NOPs in ED space
	undocNops := []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
		// ... many more in ED space act as NOPs
	}
	
	for _, opcode := range undocNops {
		addInstruction("NOP", &InstructionDef{
			Mnemonic:     "NOP",
			Operands:     []OperandType{},
			Undocumented: true,
			Size:         2,
			Encoder:      encodeEDPrefix(opcode),
		})
	}
}

// addInstruction is a helper to add instruction definitions to the old
// (non-table-driven) instruction set, keyed by mnemonic.
func addInstruction(mnemonic string, def *InstructionDef) {
	if oldInstructionTable[mnemonic] == nil {
		oldInstructionTable[mnemonic] = make([]*InstructionDef, 0)
	}
	oldInstructionTable[mnemonic] = append(oldInstructionTable[mnemonic], def)
}