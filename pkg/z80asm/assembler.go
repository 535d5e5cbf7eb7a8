// Package z80asm implements the multi-pass assembly driver: the per-line
// dispatcher, expression parser, conditional-assembly stack, macro
// expander, and the CPU-specific instruction encoders.
package z80asm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jpenner/zasm/internal/diag"
	"github.com/jpenner/zasm/pkg/segment"
	"github.com/jpenner/zasm/pkg/source"
	"github.com/jpenner/zasm/pkg/symtab"
	"github.com/jpenner/zasm/pkg/value"
)

// MaxPasses is the conventional ceiling for this class of assembler
// before declaring non-convergence.
const MaxPasses = 10

// CPU selects the instruction set family assembled against.
type CPU int

const (
	CPUZ80 CPU = iota
	CPUZ180
	CPU8080
)

// Config mirrors the configuration knobs an embedding front end sets.
type Config struct {
	Verbose        int
	MaxErrors      uint
	CPU            CPU
	DefaultTarget  string
	IXCBR2Enabled  bool
	IXCBXHEnabled  bool
	Syntax8080     bool
	Convert8080    bool
	AllowDotNames  bool
	RequireColon   bool
	CaseFold       bool
	FlatOperators  bool
	CGIMode        bool
	CompareToOld   string
	CCompiler      string
	CIncludes      string
	StdlibDir      string
}

func DefaultConfig() Config {
	return Config{MaxErrors: 200, CPU: CPUZ80, IXCBR2Enabled: true, IXCBXHEnabled: true}
}

// Assembler is the main Z80/Z180/8080 assembler. Legacy fields
// (symbols/output/instructions) remain so the table-driven and
// ad-hoc-cascade encoders (instruction_table.go, instructions.go,
// encoder.go, multiarg.go, undocumented.go) keep working against a
// single flat view of "the current pass's resolved numbers" while the
// driver underneath tracks real per-label validity for convergence.
type Assembler struct {
	Config

	AllowUndocumented bool
	Strict            bool
	CaseSensitive     bool

	pass        int
	currentAddr uint16
	origin      uint16
	symbols     map[string]*Symbol
	lines       []*Line
	output      []byte
	instructions []*AssembledInstruction
	errors      []AssemblerError
	warnings    []string

	// Multi-pass architecture: labels, scopes, macros, and segments.
	arena         *symtab.Arena
	scopes        *symtab.Scopes
	macroProcessor *MacroProcessor
	segments      []*segment.Segment
	curSegment    *segment.Segment
	cond          *conditionalStack
	diagnostics   *diag.Collector

	labelsChanged  int
	labelsResolved int
	anyUnresolved  bool

	target *TargetConfig

	macroDefinitionState *macroDefState

	// inserts holds #insert binary payloads recorded by pkg/source,
	// keyed by the (0-based) position of the #insert line in the
	// flattened source, matching Line.Number-1 after AssembleString
	// re-numbers the joined text sequentially.
	inserts []source.Insert
}

// AssemblerError represents an assembly error (kept for cmd/zasm compatibility).
type AssemblerError struct {
	Line    int
	Column  int
	Message string
}

func (e AssemblerError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Result contains the assembled output.
type Result struct {
	Binary      []byte
	Origin      uint16
	Size        uint16
	Symbols     map[string]uint16
	Listing     []ListingLine
	Errors      []AssemblerError
	Diagnostics []diag.Diagnostic
	Warnings    []string
	Segments    []*segment.Segment
	Passes      int
}

// ListingLine represents a line in the assembly listing.
type ListingLine struct {
	Address    uint16
	Bytes      []byte
	LineNumber int
	SourceLine string
	Label      string
	Cycles     int
}

// AssembledInstruction represents a fully assembled instruction.
type AssembledInstruction struct {
	Address uint16
	Line    *Line
	Bytes   []byte
	Fixups  []Fixup
	Cycles  int
}

// Fixup represents a forward reference that needs fixing.
type Fixup struct {
	Offset     int
	Symbol     string
	Type       FixupType
	Expression string
}

type FixupType int

const (
	FixupByte FixupType = iota
	FixupWord
	FixupRelative
)

// NewAssembler creates a new assembler instance with its default segment.
func NewAssembler() *Assembler {
	a := &Assembler{
		Config:            DefaultConfig(),
		AllowUndocumented: true,
		Strict:            false,
		CaseSensitive:     false,
		symbols:           make(map[string]*Symbol),
		origin:            0x8000,
	}
	a.macroProcessor = NewMacroProcessor()
	a.macroProcessor.DefineStandardMacros()
	return a
}

// AssembleFile assembles a source file, running the #include/#insert
// preprocessor ahead of parsing.
func (a *Assembler) AssembleFile(filename string) (*Result, error) {
	pp := source.NewPreprocessor(filename)
	pp.CGIMode = a.Config.CGIMode
	if err := pp.Process(filename); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	a.inserts = pp.Inserts

	lines := make([]string, len(pp.Lines))
	for i, l := range pp.Lines {
		lines[i] = l.Trimmed
	}
	return a.AssembleString(strings.Join(lines, "\n"))
}

// AssembleString runs the multi-pass loop over in-memory source text,
// re-running until labels converge or MaxPasses is reached.
func (a *Assembler) AssembleString(source string) (*Result, error) {
	lines, err := ParseSource(source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	a.lines = expandMultiArgInstructions(expandFakeInstructions(lines))
	a.reset()

	converged := false
	for p := 1; p <= MaxPasses; p++ {
		a.beginPass(p)
		if err := a.performPass(); err != nil && a.Strict {
			return nil, fmt.Errorf("pass %d error: %w", p, err)
		}
		if a.labelsChanged == 0 && !a.anyUnresolved {
			converged = true
			a.pass = p
			break
		}
	}
	if !converged {
		msg := "assembly did not converge within MaxPasses"
		a.errors = append(a.errors, AssemblerError{Message: msg})
		a.diagnostics.Add(diag.New(diag.Convergence, "", 0, 0, "%s", msg))
	}

	// Final validating pass: same as the last converged pass but with
	// LabelError promoted for anything still unresolved.
	a.finalizeUndefinedLabels()

	result := &Result{
		Binary:      a.output,
		Origin:      a.origin,
		Size:        uint16(len(a.output)),
		Symbols:     make(map[string]uint16),
		Listing:     make([]ListingLine, 0, len(a.instructions)),
		Errors:      a.errors,
		Diagnostics: a.diagnostics.Items(),
		Warnings:    a.warnings,
		Segments:    a.segments,
		Passes:      a.pass,
	}
	for name, sym := range a.symbols {
		if sym.Defined {
			result.Symbols[name] = sym.Value
		}
	}
	for _, inst := range a.instructions {
		result.Listing = append(result.Listing, ListingLine{
			Address:    inst.Address,
			Bytes:      inst.Bytes,
			LineNumber: inst.Line.Number,
			SourceLine: formatSourceLine(inst.Line),
			Label:      inst.Line.Label,
			Cycles:     inst.Cycles,
		})
	}
	return result, nil
}

// reset clears assembler state ahead of the first pass.
func (a *Assembler) reset() {
	a.pass = 0
	a.currentAddr = a.origin
	a.symbols = make(map[string]*Symbol)
	a.output = nil
	a.instructions = nil
	a.errors = nil
	a.warnings = nil

	a.arena = symtab.NewArena()
	a.scopes = symtab.NewScopes(a.arena)
	a.cond = newConditionalStack()
	a.diagnostics = diag.NewCollector(int(a.MaxErrors))

	def := segment.NewData("CODE", value.Of(int32(a.origin)))
	a.segments = []*segment.Segment{def}
	a.curSegment = def
}

// beginPass resets per-pass segment write state. Diagnostics are reset
// here too: an early pass can record a transient error (e.g. a forward
// relative jump computed against a not-yet-resolved placeholder address)
// that a later, converged pass never repeats, and only the last pass's
// errors should reach the final Result.
func (a *Assembler) beginPass(p int) {
	a.pass = p
	a.currentAddr = a.origin
	a.output = a.output[:0]
	a.instructions = a.instructions[:0]
	a.errors = nil
	a.diagnostics.Reset()
	a.labelsChanged = 0
	a.labelsResolved = 0
	a.anyUnresolved = false
	a.cond.beginPass()
	for _, seg := range a.segments {
		seg.ResetPass()
	}
	a.curSegment = a.segments[0]
}

// performPass executes one linear scan of the source.
func (a *Assembler) performPass() error {
	a.currentAddr = a.origin
	for _, line := range a.lines {
		if a.cond.suppressing() && !isConditionalDirective(line) {
			continue
		}
		if err := a.processLine(line); err != nil {
			a.errors = append(a.errors, AssemblerError{Line: line.Number, Message: err.Error()})
			if a.Strict {
				return err
			}
			if a.diagnostics.Add(diag.New(classifyError(err), "", line.Number, 0, "%v", err)) {
				break
			}
		}
	}
	return nil
}

// classifyError sorts a processLine failure into the diagnostic
// taxonomy by its concrete type rather than guessing from its message:
// a value.DomainError is a ValueErr, a symtab.RedefinedError or
// segment.IsOverflow match their own kinds, and everything else
// (unknown directive, malformed operand, wrong operand count) is a
// plain Syntax error.
func classifyError(err error) diag.Kind {
	var valueErr value.DomainError
	var labelErr symtab.RedefinedError
	switch {
	case errors.As(err, &valueErr):
		return diag.ValueErr
	case errors.As(err, &labelErr):
		return diag.LabelErr
	case segment.IsOverflow(err):
		return diag.SegmentErr
	default:
		return diag.Syntax
	}
}

func (a *Assembler) processLine(line *Line) error {
	if line.IsBlank {
		return nil
	}
	if a.macroDefinitionState != nil && line.Directive != "ENDM" {
		a.macroDefinitionState.body = append(a.macroDefinitionState.body, line.Raw)
		return nil
	}
	if strings.Contains(line.Raw, "${") {
		expanded, err := a.expandCurlyExpr(line.Raw)
		if err != nil {
			return err
		}
		reparsed, err := ParseLine(expanded, line.Number)
		if err != nil {
			return err
		}
		line = reparsed
	}
	if line.Label != "" {
		if err := a.defineLabel(line.Label); err != nil {
			return err
		}
	}
	if line.Directive != "" {
		return a.processDirective(line)
	}
	if line.Mnemonic != "" {
		if _, isMacro := a.macroProcessor.GetMacro(line.Mnemonic); isMacro {
			return a.expandMacroCall(line)
		}
		return a.processInstruction(line)
	}
	return nil
}

// expandCurlyExpr resolves every `${ expr }` marker pkg/source left in a
// raw line (see its expandCurlyBraces) by evaluating expr through the
// same Pratt parser operands use, substituting its decimal value. An
// expr that is only Preliminary/Invalid this pass substitutes as 0 and
// marks anyUnresolved, so the line still parses and is retried whole on
// the next pass once the dependency resolves.
func (a *Assembler) expandCurlyExpr(raw string) (string, error) {
	for {
		open := strings.Index(raw, "${")
		if open < 0 {
			return raw, nil
		}
		close := strings.IndexByte(raw[open:], '}')
		if close < 0 {
			return "", fmt.Errorf("unterminated ${ } substitution")
		}
		close += open
		expr := raw[open+2 : close]
		v, err := a.EvaluateExpression(expr)
		if err != nil {
			return "", fmt.Errorf("invalid { } expression %q: %w", expr, err)
		}
		n := v.N
		if !v.IsValid() {
			a.anyUnresolved = true
		}
		raw = raw[:open] + fmt.Sprintf("%d", n) + raw[close+1:]
	}
}

// expandMacroCall expands a `NAME val1, val2` invocation and replays the
// resulting lines through the ordinary per-line dispatcher, so nested
// labels/directives/mnemonics inside the body are handled uniformly.
func (a *Assembler) expandMacroCall(line *Line) error {
	expanded, err := a.macroProcessor.ExpandMacro(line.Mnemonic, line.Operands)
	if err != nil {
		return err
	}
	for _, bodyLine := range expanded {
		parsed, err := ParseLine(bodyLine, line.Number)
		if err != nil {
			return err
		}
		if err := a.processLine(parsed); err != nil {
			return err
		}
	}
	return nil
}

// defineLabel applies the convergence policy: labels can be reassigned
// freely until Valid, then redefinition to a new value fails.
func (a *Assembler) defineLabel(label string) error {
	key := label
	if !a.CaseSensitive {
		key = strings.ToUpper(label)
	}

	addr := a.curSegment.Here()
	_, changed, err := a.scopes.Define(key, addr, "", 0)
	if err != nil {
		return err
	}
	if changed {
		a.labelsChanged++
	}

	sym, exists := a.symbols[key]
	if !exists {
		sym = &Symbol{Name: key}
		a.symbols[key] = sym
	}
	sym.Value = addr.Uint16()
	sym.Defined = true
	if !addr.IsValid() {
		a.anyUnresolved = true
	}
	return nil
}

// resolveSymbol resolves a symbol to its value; unresolved symbols are
// tracked as Preliminary/Invalid (anyUnresolved) rather than erroring,
// so the encoder layer can keep emitting placeholder bytes per pass.
func (a *Assembler) resolveSymbol(name string) (uint16, error) {
	key := name
	if !a.CaseSensitive {
		key = strings.ToUpper(name)
	}

	if sym, exists := a.symbols[key]; exists && sym.Defined {
		return sym.Value, nil
	}
	if val, err := parseNumber(key); err == nil {
		return val, nil
	}

	a.anyUnresolved = true
	if _, exists := a.symbols[key]; !exists {
		a.symbols[key] = &Symbol{Name: key, Defined: false}
	}
	if a.pass == MaxPasses {
		return 0, fmt.Errorf("undefined symbol: %s", name)
	}
	return 0, nil
}

func formatSourceLine(line *Line) string {
	var parts []string
	if line.Label != "" {
		parts = append(parts, line.Label+":")
	}
	if line.Directive != "" {
		parts = append(parts, line.Directive)
		if len(line.Operands) > 0 {
			parts = append(parts, strings.Join(line.Operands, ", "))
		}
	} else if line.Mnemonic != "" {
		parts = append(parts, line.Mnemonic)
		if len(line.Operands) > 0 {
			parts = append(parts, strings.Join(line.Operands, ", "))
		}
	}
	result := strings.Join(parts, " ")
	if line.Comment != "" {
		result += " ; " + line.Comment
	}
	return result
}

func ReadFile(filename string) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %v", filename, err)
	}
	return string(content), nil
}

// EmitByte emits a byte into the current segment on every pass; the
// segment's own ResetPass keeps the accounting correct across passes.
func (a *Assembler) EmitByte(b byte) {
	a.curSegment.EmitByte(b)
	a.output = append(a.output, b)
}

func (a *Assembler) EmitWord(w uint16) {
	a.EmitByte(byte(w))
	a.EmitByte(byte(w >> 8))
}

// finalizeUndefinedLabels promotes any symbol still undefined after the
// pass loop to a LabelError.
func (a *Assembler) finalizeUndefinedLabels() {
	for name, sym := range a.symbols {
		if !sym.Defined {
			msg := fmt.Sprintf("undefined label: %s", name)
			a.errors = append(a.errors, AssemblerError{Message: msg})
			a.diagnostics.Add(diag.New(diag.LabelErr, "", 0, 0, "%s", msg))
		}
	}
}
