// Package source implements the preprocessor: it turns a root file into
// a flat sequence of SourceLines with #include expansion, #insert
// recording, curly-brace value substitution, shebang stripping, and
// source-directory rooting.
package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Line is one line of the expanded source, carrying its file/line
// attribution so errors can point back at the right place even after
// #include has spliced files together.
type Line struct {
	File    string
	Number  int
	Text    string // original text, unmodified
	Trimmed string // Text after {...} substitution; whitespace is kept
	Cursor  int    // column the directive/mnemonic parser has consumed up to
}

// Insert is a raw-binary #insert request: the bytes are emitted during
// assembly at the point the directive appears, not substituted textually
// like #include.
type Insert struct {
	Line int
	Path string
	Data []byte
}

// Preprocessor expands a root file into Lines, tracking #insert requests
// separately since their payload is binary, not textual.
type Preprocessor struct {
	RootDir string // all nested paths resolve relative to this
	CGIMode bool   // reject any path that escapes RootDir

	Lines   []Line
	Inserts []Insert

	fileIDs map[string]int
	nextID  int
	depth   int
}

const maxIncludeDepth = 64

func NewPreprocessor(rootFile string) *Preprocessor {
	return &Preprocessor{
		RootDir: filepath.Dir(rootFile),
		fileIDs: make(map[string]int),
	}
}

// Process reads rootFile and every file it transitively #includes,
// producing the flat Lines/Inserts result.
func (p *Preprocessor) Process(rootFile string) error {
	return p.include(rootFile, true)
}

func (p *Preprocessor) resolve(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(p.RootDir, path)
	}
	if p.CGIMode {
		rel, err := filepath.Rel(p.RootDir, full)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("cgi_mode: path %q escapes source directory", path)
		}
	}
	return full, nil
}

func (p *Preprocessor) include(path string, isRoot bool) error {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxIncludeDepth {
		return fmt.Errorf("#include nesting exceeds %d levels (cyclic include?)", maxIncludeDepth)
	}

	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("include %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		text := scanner.Text()
		if isRoot && lineNum == 1 && strings.HasPrefix(text, "#!") {
			continue // shebang stripped, consumes no SourceLine
		}

		trimmed, err := p.expandCurlyBraces(text)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", full, lineNum, err)
		}

		switch directive, arg, ok := parseIncludeLike(trimmed); {
		case ok && directive == "#include":
			if err := p.include(unquote(arg), false); err != nil {
				return err
			}
			continue
		case ok && directive == "#insert":
			data, rerr := p.readInsert(arg)
			if rerr != nil {
				return fmt.Errorf("%s:%d: %w", full, lineNum, rerr)
			}
			p.Inserts = append(p.Inserts, Insert{Line: len(p.Lines), Path: arg, Data: data})
			p.Lines = append(p.Lines, Line{File: full, Number: lineNum, Text: text, Trimmed: trimmed})
			continue
		}

		p.Lines = append(p.Lines, Line{File: full, Number: lineNum, Text: text, Trimmed: trimmed})
	}
	return scanner.Err()
}

func (p *Preprocessor) readInsert(arg string) ([]byte, error) {
	full, err := p.resolve(unquote(arg))
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func parseIncludeLike(line string) (directive, arg string, ok bool) {
	t := strings.TrimSpace(line)
	for _, d := range []string{"#include", "#insert"} {
		if strings.HasPrefix(t, d) {
			rest := strings.TrimSpace(t[len(d):])
			return d, rest, true
		}
	}
	return "", "", false
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '<' && s[len(s)-1] == '>') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// expandCurlyBraces rewrites a single `{ expr }` pair into a marker the
// expression evaluator substitutes later; at the preprocessor stage the
// braces are normalized to a canonical `${...}` token so downstream
// parsing does not need to special-case whitespace inside the braces.
func (p *Preprocessor) expandCurlyBraces(text string) (string, error) {
	open := strings.IndexByte(text, '{')
	if open < 0 {
		return text, nil
	}
	close := strings.IndexByte(text[open:], '}')
	if close < 0 {
		return "", fmt.Errorf("unterminated { } substitution")
	}
	close += open
	if strings.IndexByte(text[open+1:close], '{') >= 0 {
		return "", fmt.Errorf("nested { } substitution not supported")
	}
	expr := strings.TrimSpace(text[open+1 : close])
	return text[:open] + "${" + expr + "}" + text[close+1:], nil
}
