package z80asm

import (
	"fmt"
	"strings"

	"github.com/jpenner/zasm/pkg/target"
)

// TargetConfig is kept as a thin alias so callers and the driver's
// struct field name read naturally; the actual registry and format
// generators live in pkg/target so cmd/zasm can select an output format
// independently of assembling (see pkg/target.Config/OutputFormat).
type TargetConfig = target.Config

// SetTarget configures the assembler for a specific platform, adopting
// its default origin and seeding its ROM-routine/system-variable
// symbol table.
func (a *Assembler) SetTarget(platform target.Platform) error {
	cfg := target.Get(platform)
	if cfg == nil {
		return fmt.Errorf("unknown target: %s", platform)
	}
	a.target = cfg
	a.origin = cfg.Layout.DefaultOrigin

	for symbol, addr := range cfg.CommonSymbols {
		name := symbol
		if !a.CaseSensitive {
			name = strings.ToUpper(symbol)
		}
		a.symbols[name] = &Symbol{Name: name, Value: addr, Defined: true}
	}
	return nil
}

// ValidateMemoryLayout checks the assembled program against the
// selected platform's RAM window, recording any warnings the platform
// raises (e.g. ZX Spectrum code overlapping BASIC/system space).
func (a *Assembler) ValidateMemoryLayout() error {
	warnings, err := target.ValidateMemoryLayout(a.target, a.origin, len(a.output))
	if err != nil {
		return err
	}
	a.warnings = append(a.warnings, warnings...)
	return nil
}

// WriteOutput renders the assembled Result through the named output
// format of the currently selected target, defaulting to generic/bin
// when no target was ever set.
func (a *Assembler) WriteOutput(result *Result, formatName string) ([]byte, error) {
	cfg := a.target
	if cfg == nil {
		cfg = target.Get(target.Generic)
	}
	format, ok := cfg.Formats[strings.ToLower(formatName)]
	if !ok {
		return nil, fmt.Errorf("target %s has no %q output format", cfg.Name, formatName)
	}
	return format.Generator(target.Result{Binary: result.Binary, Origin: result.Origin})
}

// handleTARGET implements the `target NAME` pseudo-op.
func (a *Assembler) handleTARGET(line *Line) error {
	if len(line.Operands) != 1 {
		return fmt.Errorf("TARGET requires exactly one operand")
	}
	platform, err := target.ParsePlatform(strings.Trim(line.Operands[0], "\"'"))
	if err != nil {
		return err
	}
	return a.SetTarget(platform)
}

// handleMODEL is a historical synonym some dialects use for TARGET.
func (a *Assembler) handleMODEL(line *Line) error {
	return a.handleTARGET(line)
}
