// Command zasm is the cobra-based front end over pkg/driver's
// assembleFile surface: a root "assemble" command plus "targets" and
// "version" subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpenner/zasm/pkg/driver"
	"github.com/jpenner/zasm/pkg/target"
	"github.com/jpenner/zasm/pkg/version"
	"github.com/jpenner/zasm/pkg/z80asm"
)

var (
	destPath   string
	listPath   string
	tempPath   string
	listStyle  int
	destStyle  string
	clean      bool
	verbose    int
	maxErrors  uint
	targetName string
	z180       bool
	i8080      bool
	undoc      bool
	caseSens   bool
	flatOps    bool
	compareOld string
)

var rootCmd = &cobra.Command{
	Use:   "zasm [source file]",
	Short: "Multi-pass Z80/Z180/8080 cross-assembler",
	Long: `zasm - a multi-pass Z80/Z180/8080 cross-assembler with an embedded
Z80 interpreter for #test blocks.

Targets: generic, zxspectrum, zx80, zx81, ace.

Examples:
  zasm game.asm                       # assemble to game.bin
  zasm -o game.bin -t zxspectrum game.asm  # ZX Spectrum target, raw binary
  zasm -d x -o game.hex game.asm      # Intel HEX output
  zasm -l game.lst --liststyle 15 game.asm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssemble(args[0])
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List available target platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range target.List() {
			cfg := target.Get(target.Platform(name))
			fmt.Printf("%-12s %s\n", name, cfg.Name)
			for fmtName, f := range cfg.Formats {
				fmt.Printf("    %-8s %s (%s)\n", fmtName, f.Description, f.Extension)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the zasm version",
	Run: func(cmd *cobra.Command, args []string) {
		if full, _ := cmd.Flags().GetBool("full"); full {
			fmt.Println(version.GetFullVersion())
			return
		}
		fmt.Println(version.GetVersion())
	},
}

func init() {
	versionCmd.Flags().Bool("full", false, "show detailed build information")
}

func init() {
	rootCmd.Flags().StringVarP(&destPath, "output", "o", "", "destination file (default: <source>.<ext>)")
	rootCmd.Flags().StringVarP(&listPath, "listing", "l", "", "generate a listing file")
	rootCmd.Flags().StringVarP(&tempPath, "symbols", "s", "", "generate a symbol/equ file")
	rootCmd.Flags().IntVar(&listStyle, "liststyle", 1, "listing bit flags: 1=plain,2=opcodes,4=symbols,8=cycles")
	rootCmd.Flags().StringVarP(&destStyle, "deststyle", "d", "b", "destination style: b=binary, x=Intel HEX, s=S19, n=none")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "suppress warnings in the summary")
	rootCmd.Flags().CountVarP(&verbose, "verbose", "v", "increase verbosity (repeatable)")
	rootCmd.Flags().UintVar(&maxErrors, "max-errors", 200, "stop after this many errors")
	rootCmd.Flags().StringVarP(&targetName, "target", "t", "generic", "target platform (generic, zxspectrum, zx80, zx81, ace)")
	rootCmd.Flags().BoolVar(&z180, "z180", false, "assemble Z180 instructions")
	rootCmd.Flags().BoolVar(&i8080, "8080", false, "assemble 8080-syntax source")
	rootCmd.Flags().BoolVar(&undoc, "undocumented", true, "allow undocumented Z80 instructions")
	rootCmd.Flags().BoolVar(&caseSens, "case-sensitive", false, "case-sensitive labels")
	rootCmd.Flags().BoolVar(&flatOps, "flat-operators", false, "use flat (non-C-precedence) operator grouping")
	rootCmd.Flags().StringVar(&compareOld, "compare-to-old", "", "diff the assembled output against a reference binary")

	rootCmd.AddCommand(targetsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zasm:", err)
		os.Exit(1)
	}
}

func runAssemble(sourcePath string) error {
	cfg := z80asm.DefaultConfig()
	cfg.Verbose = verbose
	cfg.MaxErrors = maxErrors
	cfg.DefaultTarget = targetName
	cfg.FlatOperators = flatOps
	cfg.Syntax8080 = i8080
	cfg.CompareToOld = compareOld
	switch {
	case z180:
		cfg.CPU = z80asm.CPUZ180
	case i8080:
		cfg.CPU = z80asm.CPU8080
	default:
		cfg.CPU = z80asm.CPUZ80
	}

	var ds driver.DestStyle
	switch destStyle {
	case "b":
		ds = driver.DestBinary
	case "x":
		ds = driver.DestHex
	case "s":
		ds = driver.DestS19
	case "n", "":
		ds = driver.DestNone
	default:
		return fmt.Errorf("unknown deststyle %q (want b, x, s, or n)", destStyle)
	}

	report, err := driver.AssembleFile(driver.Options{
		SourcePath:        sourcePath,
		DestPath:          destPath,
		ListPath:          listPath,
		TempPath:          tempPath,
		ListStyle:         driver.ListStyle(listStyle),
		DestStyle:         ds,
		Clean:             clean,
		AllowUndocumented: undoc,
		CaseSensitive:     caseSens,
		Config:            cfg,
	})
	if err != nil {
		return err
	}

	if verbose > 0 {
		fmt.Printf("origin $%04X, size %d bytes, %d pass(es)\n", report.Origin, report.Size, report.Passes)
	}
	for _, w := range report.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}
