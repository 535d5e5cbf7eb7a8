package z80asm

import (
	"fmt"
	"strings"

	"github.com/jpenner/zasm/pkg/segment"
	"github.com/jpenner/zasm/pkg/value"
)

// processDirective dispatches both the `#`-prefixed directives and the
// mnemonic-like pseudo-ops (equ, defb, org, macro, ...).
func (a *Assembler) processDirective(line *Line) error {
	directive := strings.ToUpper(line.Directive)

	switch directive {
	case "ORG":
		return a.handleORG(line)
	case "DB", "DEFB":
		return a.handleDB(line)
	case "DW", "DEFW":
		return a.handleDW(line)
	case "DEFM":
		return a.handleDB(line) // defm is defb restricted to string literals
	case "DS", "DEFS":
		return a.handleDS(line)
	case "EQU":
		return a.handleEQU(line)
	case "ALIGN":
		return a.handleALIGN(line)
	case "PHASE":
		return a.handlePHASE(line)
	case "DEPHASE":
		return a.handleDEPHASE(line)
	case "END":
		return a.handleEND(line)
	case "INCLUDE":
		return a.handleINCLUDE(line)
	case "MACRO":
		return a.handleMACRO(line)
	case "ENDM":
		return a.handleENDM(line)
	case "REPT":
		return a.handleREPT(line)
	case ".LOCAL":
		a.scopes.Push()
		return nil
	case ".ENDLOCAL":
		a.scopes.Pop()
		return nil
	case "TARGET":
		return a.handleTARGET(line)
	case "MODEL":
		return a.handleMODEL(line)

	case "#TARGET":
		return a.handleTARGET(line)
	case "#INCLUDE":
		// Already spliced by pkg/source ahead of ParseSource; a lingering
		// directive at this layer (e.g. AssembleString called directly on
		// a string, bypassing the preprocessor) is a no-op rather than an
		// error.
		return nil
	case "#INSERT":
		return a.handleInsert(line)
	case "#IF":
		return a.handleIfDirective(line)
	case "#IFDEF":
		return a.handleIfdefDirective(line, true)
	case "#IFNDEF":
		return a.handleIfdefDirective(line, false)
	case "#ELIF":
		return a.handleElifDirective(line)
	case "#ELSE":
		return a.cond.Else()
	case "#ENDIF":
		return a.cond.Endif()
	case "#CODE":
		return a.handleCodeSegment(line)
	case "#DATA":
		return a.handleDataSegment(line)
	case "#TEST":
		return a.handleTestSegment(line)
	case "#ASSERT":
		return a.handleAssert(line)
	case "#CHARSET":
		// Character-set conversion tables are an external collaborator;
		// recorded but not interpreted here.
		return nil
	case "#DEFINE":
		return a.handleDefine(line)
	case "#COMPRESS":
		if a.curSegment != nil {
			a.curSegment.Compressed = true
		}
		return nil
	case "#CFLAGS":
		// Hint variable for the external C-compiler driver; out of core
		// scope, recorded as a warning so it is visible in -v output.
		a.warnings = append(a.warnings, "#cflags "+strings.Join(line.Operands, " "))
		return nil

	default:
		if a.Strict {
			return fmt.Errorf("unknown directive: %s", directive)
		}
		return nil
	}
}

// emitBytes appends bytes to both the flat legacy output and the current
// segment, advancing currentAddr and recording a listing entry. Called
// unconditionally every pass; only the final (converged) pass's result
// is surfaced to the caller.
func (a *Assembler) emitBytes(line *Line, bytes []byte) {
	addr := a.currentAddr
	for _, b := range bytes {
		a.EmitByte(b)
	}
	a.currentAddr += uint16(len(bytes))
	a.instructions = append(a.instructions, &AssembledInstruction{Address: addr, Line: line, Bytes: bytes})
}

func (a *Assembler) handleORG(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("ORG requires exactly one operand")
	}
	addr, err := a.resolveValue(line.Operands[0])
	if err != nil {
		return fmt.Errorf("invalid ORG address: %w", err)
	}
	a.currentAddr = addr
	a.curSegment.Address = value.Of(int32(addr))
	if a.pass == 1 && a.origin == 0x8000 {
		a.origin = addr
	}
	return nil
}

func (a *Assembler) handlePHASE(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("PHASE requires exactly one operand")
	}
	addr, err := a.resolveValue(line.Operands[0])
	if err != nil {
		return fmt.Errorf("invalid PHASE address: %w", err)
	}
	a.curSegment.Phased = value.Of(int32(addr))
	return nil
}

func (a *Assembler) handleDEPHASE(line *Line) error {
	a.curSegment.Phased = value.Inv()
	return nil
}

func (a *Assembler) handleDB(line *Line) error {
	if len(line.Operands) == 0 {
		return fmt.Errorf("DB requires at least one operand")
	}
	var bytes []byte
	for _, operand := range line.Operands {
		if isString(operand) {
			bytes = append(bytes, []byte(parseString(operand))...)
			continue
		}
		val, err := a.resolveValue(operand)
		if err != nil {
			return fmt.Errorf("invalid DB operand '%s': %w", operand, err)
		}
		if val > 255 {
			return fmt.Errorf("DB value out of range: %d", val)
		}
		bytes = append(bytes, byte(val))
	}
	a.emitBytes(line, bytes)
	return nil
}

func (a *Assembler) handleDW(line *Line) error {
	if len(line.Operands) == 0 {
		return fmt.Errorf("DW requires at least one operand")
	}
	var bytes []byte
	for _, operand := range line.Operands {
		val, err := a.resolveValue(operand)
		if err != nil {
			return fmt.Errorf("invalid DW operand '%s': %w", operand, err)
		}
		bytes = append(bytes, byte(val), byte(val>>8))
	}
	a.emitBytes(line, bytes)
	return nil
}

func (a *Assembler) handleDS(line *Line) error {
	if len(line.Operands) == 0 {
		return fmt.Errorf("DS requires at least one operand")
	}
	size, err := a.resolveValue(line.Operands[0])
	if err != nil {
		return fmt.Errorf("invalid DS size: %w", err)
	}
	fillValue := byte(0)
	if len(line.Operands) > 1 {
		val, err := a.resolveValue(line.Operands[1])
		if err != nil {
			return fmt.Errorf("invalid DS fill value: %w", err)
		}
		if val > 255 {
			return fmt.Errorf("DS fill value out of range: %d", val)
		}
		fillValue = byte(val)
	}
	bytes := make([]byte, size)
	for i := range bytes {
		bytes[i] = fillValue
	}
	a.emitBytes(line, bytes)
	return nil
}

// handleEQU defines a constant via the tri-state label lifecycle so the
// Pratt expression parser (which resolves identifiers through
// a.scopes) sees it on later lines, including forward uses that won't
// resolve until a subsequent pass.
func (a *Assembler) handleEQU(line *Line) error {
	if line.Label == "" {
		return fmt.Errorf("EQU requires a label")
	}
	if len(line.Operands) != 1 {
		return fmt.Errorf("EQU requires exactly one operand")
	}
	v, err := a.EvaluateExpression(line.Operands[0])
	if err != nil {
		return fmt.Errorf("invalid EQU value: %w", err)
	}

	label := line.Label
	if !a.CaseSensitive {
		label = strings.ToUpper(label)
	}
	_, changed, err := a.scopes.Define(label, v, "", line.Number)
	if err != nil {
		return err
	}
	if changed {
		a.labelsChanged++
	}
	if !v.IsValid() {
		a.anyUnresolved = true
	}

	sym, exists := a.symbols[label]
	if !exists {
		sym = &Symbol{Name: label}
		a.symbols[label] = sym
	}
	sym.Value = v.Uint16()
	sym.Defined = v.IsValid() || v.IsPreliminary()
	return nil
}

func (a *Assembler) handleALIGN(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("ALIGN requires exactly one operand")
	}
	alignment, err := a.resolveValue(line.Operands[0])
	if err != nil {
		return fmt.Errorf("invalid ALIGN value: %w", err)
	}
	if alignment == 0 || (alignment&(alignment-1)) != 0 {
		return fmt.Errorf("ALIGN value must be a power of 2")
	}
	remainder := a.currentAddr % alignment
	if remainder != 0 {
		padding := alignment - remainder
		a.emitBytes(line, make([]byte, padding))
	}
	return nil
}

func (a *Assembler) handleEND(line *Line) error { return nil }

func (a *Assembler) handleINCLUDE(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("INCLUDE requires exactly one operand")
	}
	return fmt.Errorf("INCLUDE directive must be resolved by pkg/source before parsing reaches the driver")
}

// handleInsert emits the binary payload pkg/source read for the
// #insert at this source position. Running AssembleString directly on
// a string (bypassing AssembleFile's preprocessor pass) leaves
// a.inserts empty, so the directive is silently skipped rather than
// erroring: the common case there is a unit test exercising some other
// directive that has no file on disk to #insert from.
func (a *Assembler) handleInsert(line *Line) error {
	for _, ins := range a.inserts {
		if ins.Line == line.Number-1 {
			a.emitBytes(line, ins.Data)
			return nil
		}
	}
	return nil
}

func (a *Assembler) handleMACRO(line *Line) error {
	if len(line.Operands) < 1 {
		return fmt.Errorf("MACRO requires a name")
	}
	macroName := line.Operands[0]
	var params []string
	if len(line.Operands) > 1 {
		params = line.Operands[1:]
	}
	a.macroDefinitionState = &macroDefState{name: macroName, params: params}
	return nil
}

func (a *Assembler) handleENDM(line *Line) error {
	if a.macroDefinitionState == nil {
		return fmt.Errorf("ENDM without matching MACRO/REPT")
	}
	st := a.macroDefinitionState
	a.macroDefinitionState = nil
	if st.isRept {
		return a.expandRept(st)
	}
	if a.pass == 1 {
		return a.macroProcessor.DefineMacro(st.name, st.params, st.body)
	}
	return nil
}

// handleREPT begins collection of a `rept COUNT ... endm` anonymous
// macro body; it is expanded COUNT times once ENDM closes it. If COUNT
// is not yet Valid on this pass, the block is simply skipped and
// retried whole on the next pass.
func (a *Assembler) handleREPT(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("REPT requires a count")
	}
	a.macroDefinitionState = &macroDefState{isRept: true, countExpr: line.Operands[0], line: line}
	return nil
}

func (a *Assembler) expandRept(st *macroDefState) error {
	v, err := a.EvaluateExpression(st.countExpr)
	if err != nil {
		return fmt.Errorf("invalid REPT count: %w", err)
	}
	if !v.IsValid() {
		a.anyUnresolved = true
		return nil
	}
	count := int(v.N)
	if count < 0 {
		return fmt.Errorf("REPT count must be non-negative")
	}
	for i := 0; i < count; i++ {
		for _, bodyLine := range st.body {
			parsed, err := ParseLine(bodyLine, st.line.Number)
			if err != nil {
				return err
			}
			if err := a.processLine(parsed); err != nil {
				return err
			}
		}
	}
	return nil
}

func isString(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"")) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) != 3)
}

func parseString(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	s = s[1 : len(s)-1]
	var result []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				result = append(result, '\n')
				i++
			case 'r':
				result = append(result, '\r')
				i++
			case 't':
				result = append(result, '\t')
				i++
			case '\\':
				result = append(result, '\\')
				i++
			case '"':
				result = append(result, '"')
				i++
			case '\'':
				result = append(result, '\'')
				i++
			case '0':
				result = append(result, 0)
				i++
			default:
				result = append(result, s[i])
			}
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}

// handleTARGET/handleMODEL now live in targets.go, backed by pkg/target.

// --- conditional-assembly `#`-directives ---

func (a *Assembler) handleIfDirective(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("#if requires an expression")
	}
	v, err := a.EvaluateExpression(line.Operands[0])
	if err != nil {
		return err
	}
	return a.cond.If(v.IsValid(), v.N != 0, a.pass == 1)
}

func (a *Assembler) handleIfdefDirective(line *Line, wantDefined bool) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("#ifdef/#ifndef requires a name")
	}
	_, ok := a.scopes.Lookup(line.Operands[0])
	truth := ok == wantDefined
	return a.cond.If(true, truth, a.pass == 1)
}

func (a *Assembler) handleElifDirective(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("#elif requires an expression")
	}
	v, err := a.EvaluateExpression(line.Operands[0])
	if err != nil {
		return err
	}
	return a.cond.Elif(v.IsValid(), v.N != 0, a.pass == 1)
}

// handleCodeSegment/#code opens (or switches to) a named code segment.
func (a *Assembler) handleCodeSegment(line *Line) error {
	name := "CODE"
	addr := value.Of(int32(a.currentAddr))
	if len(line.Operands) >= 1 && line.Operands[0] != "" {
		name = strings.Trim(line.Operands[0], "\"'")
	}
	if len(line.Operands) >= 2 {
		v, err := a.EvaluateExpression(line.Operands[1])
		if err != nil {
			return fmt.Errorf("invalid #code address: %w", err)
		}
		addr = v
	}
	seg := a.findOrCreateSegment(name, segment.Data, addr)
	a.curSegment = seg
	a.currentAddr = addr.Uint16()
	return nil
}

func (a *Assembler) handleDataSegment(line *Line) error {
	name := "DATA"
	addr := value.Of(int32(a.currentAddr))
	if len(line.Operands) >= 1 && line.Operands[0] != "" {
		name = strings.Trim(line.Operands[0], "\"'")
	}
	if len(line.Operands) >= 2 {
		v, err := a.EvaluateExpression(line.Operands[1])
		if err != nil {
			return fmt.Errorf("invalid #data address: %w", err)
		}
		addr = v
	}
	seg := a.findOrCreateSegment(name, segment.Data, addr)
	a.curSegment = seg
	a.currentAddr = addr.Uint16()
	return nil
}

// handleTestSegment opens a #test segment, recording the cycle budget
// for the embedded interpreter. The body is ordinary instructions;
// #assert lines within it register Expectations consumed by
// runTestcode. Beyond name and cycle budget, later operands of the
// form `REG=expr` seed the interpreter's registers before runTestcode
// executes the segment's bytes — this uses the same `LHS=RHS` pair
// syntax #assert uses for its comparisons, rather than a separate block.
func (a *Assembler) handleTestSegment(line *Line) error {
	name := fmt.Sprintf("TEST_%d", line.Number)
	addr := value.Of(int32(a.currentAddr))
	cycles := 1000
	var preamble []segment.RegisterSeed
	for i, operand := range line.Operands {
		switch {
		case i == 0 && operand != "":
			name = strings.Trim(operand, "\"'")
		case i == 1 && operand != "":
			v, err := a.EvaluateExpression(operand)
			if err == nil && v.IsValid() {
				cycles = int(v.N)
			}
		case strings.Contains(operand, "="):
			parts := strings.SplitN(operand, "=", 2)
			reg := strings.ToUpper(strings.TrimSpace(parts[0]))
			val, err := a.resolveValue(strings.TrimSpace(parts[1]))
			if err != nil {
				return fmt.Errorf("invalid #test preamble %q: %w", operand, err)
			}
			preamble = append(preamble, segment.RegisterSeed{Register: reg, Value: val})
		}
	}
	seg := segment.NewTest(name, addr, cycles)
	seg.Preamble = preamble
	a.segments = append(a.segments, seg)
	a.curSegment = seg
	a.currentAddr = addr.Uint16()
	return nil
}

// handleAssert records a post-execution expectation on the current
// TestSegment: `#assert A == 42` or `#assert (4000h) == 10`.
func (a *Assembler) handleAssert(line *Line) error {
	if a.curSegment == nil || a.curSegment.Kind != segment.Test {
		return fmt.Errorf("#assert used outside a #test segment")
	}
	if len(line.Operands) != 1 {
		return fmt.Errorf("#assert requires one expression of the form LHS == RHS")
	}
	parts := strings.SplitN(line.Operands[0], "==", 2)
	if len(parts) != 2 {
		return fmt.Errorf("#assert expression must contain '=='")
	}
	lhs := strings.TrimSpace(parts[0])
	rhsVal, err := a.resolveValue(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("invalid #assert right-hand side: %w", err)
	}

	exp := segment.Expectation{Want: rhsVal}
	if isIndirect(lhs) {
		addrVal, err := a.resolveValue(stripIndirect(lhs))
		if err != nil {
			return fmt.Errorf("invalid #assert address: %w", err)
		}
		exp.Address = addrVal
	} else {
		exp.Register = strings.ToUpper(lhs)
	}
	a.curSegment.Expectations = append(a.curSegment.Expectations, exp)
	return nil
}

// handleDefine implements `#define NAME value` as an EQU alias: the two
// are treated as synonyms for simple constants.
func (a *Assembler) handleDefine(line *Line) error {
	if len(line.Operands) < 1 {
		return fmt.Errorf("#define requires a name")
	}
	name := line.Operands[0]
	expr := "1"
	if len(line.Operands) > 1 {
		expr = strings.Join(line.Operands[1:], " ")
	}
	fake := &Line{Number: line.Number, Label: name, Directive: "EQU", Operands: []string{expr}}
	return a.handleEQU(fake)
}

func (a *Assembler) findOrCreateSegment(name string, kind segment.Kind, addr value.Value) *segment.Segment {
	for _, s := range a.segments {
		if s.Name == name {
			return s
		}
	}
	var seg *segment.Segment
	if kind == segment.Test {
		seg = segment.NewTest(name, addr, 1000)
	} else {
		seg = segment.NewData(name, addr)
	}
	a.segments = append(a.segments, seg)
	return seg
}
