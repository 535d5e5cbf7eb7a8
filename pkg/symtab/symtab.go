// Package symtab implements the nested label scopes: a stack of mappings
// from name to label handle, where the handle is an index into a flat
// arena so labels can reference each other (via expressions) without
// any ownership cycle in the Go type graph.
package symtab

import (
	"fmt"

	"github.com/jpenner/zasm/pkg/value"
)

// RedefinedError reports a Valid label redefined to a different value,
// distinct from a plain syntax error so callers can classify it.
type RedefinedError struct {
	Name     string
	Was, Now int32
}

func (e RedefinedError) Error() string {
	return fmt.Sprintf("label %q redefined (was %d, now %d)", e.Name, e.Was, e.Now)
}

// Kind is a label's scope classification.
type Kind int

const (
	Global Kind = iota
	FileLocal
	BlockLocal
	Reusable
)

// Handle indexes into an Arena. The zero Handle is never valid;
// arena index 0 is reserved.
type Handle int

// Label is the full attribute set from the data model: name, scope kind,
// current value, defined/used/export flags, and definition site.
type Label struct {
	Name      string
	Kind      Kind
	Value     value.Value
	Defined   bool
	Used      bool
	Exported  bool
	Imported  bool
	DefFile   string
	DefLine   int
}

// Arena owns every Label ever created across the whole assembly run.
type Arena struct {
	labels []*Label
}

func NewArena() *Arena {
	return &Arena{labels: []*Label{nil}} // index 0 reserved/invalid
}

func (a *Arena) alloc(l *Label) Handle {
	a.labels = append(a.labels, l)
	return Handle(len(a.labels) - 1)
}

func (a *Arena) Get(h Handle) *Label {
	if h <= 0 || int(h) >= len(a.labels) {
		return nil
	}
	return a.labels[h]
}

// table is one scope level: a plain name->handle map.
type table map[string]Handle

// Scopes is the ordered stack of symbol tables; index 0 is always the
// global scope and is never popped.
type Scopes struct {
	arena    *Arena
	stack    []table
	lastNonReusable string // name of the last defined non-reusable label, for qualifying '.'-prefixed reusable labels
}

func NewScopes(arena *Arena) *Scopes {
	return &Scopes{arena: arena, stack: []table{make(table)}}
}

// Push opens a new nested scope (.local, or a fresh file via #include).
func (s *Scopes) Push() { s.stack = append(s.stack, make(table)) }

// Pop closes the innermost scope (.endlocal, or EOF of an included file).
// Popping the global scope is a programming error and is a no-op here;
// callers must never issue more pops than pushes.
func (s *Scopes) Pop() {
	if len(s.stack) > 1 {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func (s *Scopes) Depth() int { return len(s.stack) }

// qualify turns a reusable label's bare name into one unique to the
// enclosing non-reusable label, per the "Reusable label" glossary entry.
func (s *Scopes) qualify(name string) (string, Kind) {
	if len(name) > 0 && name[0] == '.' {
		return s.lastNonReusable + name, Reusable
	}
	return name, 0 // caller fills in Global/FileLocal/BlockLocal based on depth
}

// Lookup walks the scope stack top-down, returning the nearest binding.
func (s *Scopes) Lookup(name string) (Handle, bool) {
	qualified, _ := s.qualify(name)
	for i := len(s.stack) - 1; i >= 0; i-- {
		if h, ok := s.stack[i][qualified]; ok {
			return h, true
		}
		if h, ok := s.stack[i][name]; ok {
			return h, true
		}
	}
	return 0, false
}

// Resolve looks a name up and returns its current Value, or an Invalid
// Value (not an error) when the name has never been defined —
// an unresolved identifier, not a syntax error.
func (s *Scopes) Resolve(name string) value.Value {
	h, ok := s.Lookup(name)
	if !ok {
		return value.Inv()
	}
	l := s.arena.Get(h)
	l.Used = true
	return l.Value
}

// Define creates the label in the innermost scope with value v on its
// first definition, or updates an existing one, applying the convergence
// policy: a Valid label may never be redefined to a different value.
func (s *Scopes) Define(name string, v value.Value, file string, line int) (_ Handle, changed bool, err error) {
	qualified, kind := s.qualify(name)
	if kind != Reusable {
		if len(s.stack) > 1 {
			kind = BlockLocal
		} else {
			kind = Global
		}
		s.lastNonReusable = name
	}

	top := s.stack[len(s.stack)-1]
	if h, ok := top[qualified]; ok {
		l := s.arena.Get(h)
		if l.Defined && l.Value.IsValid() && v.N != l.Value.N {
			return h, false, RedefinedError{Name: name, Was: l.Value.N, Now: v.N}
		}
		changed = l.Value.N != v.N || l.Value.V != v.V
		l.Value = v
		l.Defined = true
		return h, changed, nil
	}

	l := &Label{Name: qualified, Kind: kind, Value: v, Defined: true, DefFile: file, DefLine: line}
	h := s.arena.alloc(l)
	top[qualified] = h
	return h, true, nil
}

