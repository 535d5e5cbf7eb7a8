// Package driver implements the top-level assembleFile entry point: the
// single call an embedding front end (or cmd/zasm) makes to turn one
// source file into a destination binary, an optional listing, and an
// optional symbol/temp file, with a liststyle/deststyle bit-flag surface.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jpenner/zasm/internal/diag"
	"github.com/jpenner/zasm/pkg/target"
	"github.com/jpenner/zasm/pkg/z80asm"
)

// ListStyle is a bit-flag set controlling what a generated listing file
// includes.
type ListStyle int

const (
	ListPlain      ListStyle = 1 << 0
	ListOpcodes    ListStyle = 1 << 1
	ListSymbols    ListStyle = 1 << 2
	ListCycles     ListStyle = 1 << 3
)

// DestStyle names the destination container format.
type DestStyle byte

const (
	DestNone   DestStyle = 0
	DestBinary DestStyle = 'b'
	DestHex    DestStyle = 'x'
	DestS19    DestStyle = 's'
)

// Options bundles the assembleFile call's parameters.
type Options struct {
	SourcePath string
	DestPath   string // "" derives <source base>.<ext> from DestStyle
	ListPath   string // "" suppresses listing generation
	TempPath   string // "" suppresses symbol/temp file generation
	ListStyle  ListStyle
	DestStyle  DestStyle
	Clean      bool // when true, suppress warnings in the returned report

	AllowUndocumented bool
	CaseSensitive     bool
	Strict            bool

	Config z80asm.Config
}

// Report summarizes one assembleFile run for the caller (CLI or a test).
type Report struct {
	Origin   uint16
	Size     uint16
	Passes   int
	Warnings []string
	Symbols  map[string]uint16
}

// AssembleFile drives one source file through the assembler, then
// renders whichever of destpath/listpath/temppath were requested. It
// never runs more than one assembly: the assembler itself already
// iterates passes internally until convergence or MaxPasses.
func AssembleFile(opts Options) (*Report, error) {
	asm := z80asm.NewAssembler()
	asm.Config = opts.Config
	asm.AllowUndocumented = opts.AllowUndocumented
	asm.CaseSensitive = opts.CaseSensitive
	asm.Strict = opts.Strict

	if opts.Config.DefaultTarget != "" {
		platform, err := target.ParsePlatform(opts.Config.DefaultTarget)
		if err != nil {
			return nil, err
		}
		if err := asm.SetTarget(platform); err != nil {
			return nil, err
		}
	}

	result, err := asm.AssembleFile(opts.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", opts.SourcePath, err)
	}
	if len(result.Errors) > 0 {
		diag.Fprint(os.Stderr, result.Diagnostics)
		var b strings.Builder
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "%s: %v\n", opts.SourcePath, e)
		}
		return nil, fmt.Errorf("%d assembly error(s):\n%s", len(result.Errors), b.String())
	}

	destStyle := opts.DestStyle

	destPath := opts.DestPath
	if destPath == "" && destStyle != DestNone {
		destPath = deriveDestPath(opts.SourcePath, destStyle)
	}

	var compareWarnings []string
	if destStyle != DestNone && destPath != "" {
		formatName := destFormatName(destStyle)
		out, err := asm.WriteOutput(result, formatName)
		if err != nil {
			return nil, fmt.Errorf("render %s output: %w", formatName, err)
		}
		if opts.Config.CompareToOld != "" {
			compareWarnings = compareToOld(opts.Config.CompareToOld, out)
		}
		if err := os.WriteFile(destPath, out, 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", destPath, err)
		}
	}

	if opts.ListPath != "" {
		if err := writeListing(opts.ListPath, result, opts.ListStyle); err != nil {
			return nil, fmt.Errorf("write listing %s: %w", opts.ListPath, err)
		}
	}

	if opts.TempPath != "" {
		if err := writeSymbols(opts.TempPath, result); err != nil {
			return nil, fmt.Errorf("write symbol file %s: %w", opts.TempPath, err)
		}
	}

	warnings := result.Warnings
	warnings = append(warnings, compareWarnings...)
	if opts.Clean {
		warnings = nil
	}
	return &Report{
		Origin:   result.Origin,
		Size:     result.Size,
		Passes:   result.Passes,
		Warnings: warnings,
		Symbols:  result.Symbols,
	}, nil
}

func destFormatName(d DestStyle) string {
	switch d {
	case DestHex:
		return "hex"
	case DestS19:
		return "s19"
	default:
		return "bin"
	}
}

func deriveDestPath(sourcePath string, d DestStyle) string {
	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(sourcePath, ext)
	switch d {
	case DestHex:
		return base + ".hex"
	case DestS19:
		return base + ".s19"
	default:
		return base + ".bin"
	}
}

// writeListing renders the assembled listing. Every line carries its
// address and source text whatever the ListStyle; ListOpcodes adds the
// opcode bytes, ListCycles per-instruction cycle counts and ListSymbols a
// trailing symbol table. ListPlain is not consulted.
func writeListing(path string, result *z80asm.Result, style ListStyle) error {
	var b strings.Builder
	for _, line := range result.Listing {
		switch {
		case len(line.Bytes) > 0 && style&ListOpcodes != 0:
			var hex strings.Builder
			for i, by := range line.Bytes {
				if i > 0 {
					hex.WriteByte(' ')
				}
				fmt.Fprintf(&hex, "%02X", by)
			}
			fmt.Fprintf(&b, "%04X  %-12s", line.Address, hex.String())
		case len(line.Bytes) > 0:
			fmt.Fprintf(&b, "%04X              ", line.Address)
		default:
			b.WriteString("                  ")
		}
		if style&ListCycles != 0 && line.Cycles > 0 {
			fmt.Fprintf(&b, " [%2d]", line.Cycles)
		}
		fmt.Fprintf(&b, " %s\n", line.SourceLine)
	}

	if style&ListSymbols != 0 {
		b.WriteString("\nSymbol table:\n")
		for name, addr := range result.Symbols {
			fmt.Fprintf(&b, "  %-24s $%04X\n", name, addr)
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}

// compareToOld implements the compare_to_old post-assembly check: the
// new output is diffed byte-for-byte against a reference file, and any
// mismatch is reported as a warning rather than failing the assembly.
func compareToOld(refPath string, newOutput []byte) []string {
	ref, err := os.ReadFile(refPath)
	if err != nil {
		return []string{fmt.Sprintf("compare_to_old: %v", err)}
	}
	if len(ref) != len(newOutput) {
		return []string{fmt.Sprintf("compare_to_old: size differs (old %d bytes, new %d bytes)", len(ref), len(newOutput))}
	}
	for i := range ref {
		if ref[i] != newOutput[i] {
			return []string{fmt.Sprintf("compare_to_old: byte mismatch at offset %d (old $%02X, new $%02X)", i, ref[i], newOutput[i])}
		}
	}
	return nil
}

func writeSymbols(path string, result *z80asm.Result) error {
	var b strings.Builder
	for name, addr := range result.Symbols {
		fmt.Fprintf(&b, "%-24s equ $%04X\n", name, addr)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
