package symtab

import (
	"testing"

	"github.com/jpenner/zasm/pkg/value"
)

func newScopes() *Scopes {
	return NewScopes(NewArena())
}

func TestDefineAndResolve(t *testing.T) {
	s := newScopes()
	if _, _, err := s.Define("FOO", value.Of(42), "a.asm", 1); err != nil {
		t.Fatalf("Define: %v", err)
	}
	got := s.Resolve("FOO")
	if !got.IsValid() || got.N != 42 {
		t.Errorf("Resolve(FOO) = %+v, want Valid(42)", got)
	}
}

func TestResolveUndefinedReturnsInvalidNotError(t *testing.T) {
	s := newScopes()
	got := s.Resolve("NOPE")
	if !got.IsInvalid() {
		t.Errorf("Resolve(undefined) = %+v, want Invalid", got)
	}
}

func TestRedefineSameValueIsNotAnError(t *testing.T) {
	s := newScopes()
	s.Define("FOO", value.Of(1), "a.asm", 1)
	_, changed, err := s.Define("FOO", value.Of(1), "a.asm", 2)
	if err != nil {
		t.Fatalf("redefining to the same value should not error: %v", err)
	}
	if changed {
		t.Error("redefining to the same value should report changed=false")
	}
}

func TestRedefineDifferentValueIsAnError(t *testing.T) {
	s := newScopes()
	s.Define("FOO", value.Of(1), "a.asm", 1)
	_, _, err := s.Define("FOO", value.Of(2), "a.asm", 2)
	if err == nil {
		t.Fatal("redefining a Valid label to a different value should error")
	}
}

func TestPreliminaryCanConvergeToValidWithoutError(t *testing.T) {
	s := newScopes()
	s.Define("FOO", value.Prelim(5), "a.asm", 1)
	_, changed, err := s.Define("FOO", value.Of(7), "a.asm", 1)
	if err != nil {
		t.Fatalf("unexpected error converging preliminary label: %v", err)
	}
	if !changed {
		t.Error("convergence from Preliminary(5) to Valid(7) should report changed=true")
	}
}

func TestBlockScopeShadowsGlobal(t *testing.T) {
	s := newScopes()
	s.Define("X", value.Of(1), "a.asm", 1)
	s.Push()
	s.Define("X", value.Of(2), "a.asm", 2)
	if got := s.Resolve("X"); got.N != 2 {
		t.Errorf("inner scope should shadow outer: got %d, want 2", got.N)
	}
	s.Pop()
	if got := s.Resolve("X"); got.N != 1 {
		t.Errorf("after Pop, outer value should be visible: got %d, want 1", got.N)
	}
}

func TestPopGlobalScopeIsNoOp(t *testing.T) {
	s := newScopes()
	s.Pop()
	if s.Depth() != 1 {
		t.Errorf("Depth = %d, want 1 (popping the global scope must be a no-op)", s.Depth())
	}
}

func TestReusableLabelQualifiedByLastNonReusable(t *testing.T) {
	s := newScopes()
	s.Define("LOOP", value.Of(0x8000), "a.asm", 1)
	s.Define(".next", value.Of(0x8010), "a.asm", 2)

	s.Define("OTHER", value.Of(0x9000), "a.asm", 3)
	s.Define(".next", value.Of(0x9010), "a.asm", 4)

	got := s.Resolve(".next")
	if got.N != 0x9010 {
		t.Errorf("Resolve(.next) after OTHER = %#x, want 0x9010 (most recent qualifier)", got.N)
	}
}

func TestDepthTracksPushPop(t *testing.T) {
	s := newScopes()
	if s.Depth() != 1 {
		t.Fatalf("initial Depth = %d, want 1", s.Depth())
	}
	s.Push()
	s.Push()
	if s.Depth() != 3 {
		t.Errorf("Depth after two Push = %d, want 3", s.Depth())
	}
	s.Pop()
	if s.Depth() != 2 {
		t.Errorf("Depth after one Pop = %d, want 2", s.Depth())
	}
}

func TestResolveMarksLabelUsed(t *testing.T) {
	s := newScopes()
	h, _, _ := s.Define("FOO", value.Of(1), "a.asm", 1)
	l := s.arena.Get(h)
	if l.Used {
		t.Fatal("label should not be marked Used before first Resolve")
	}
	s.Resolve("FOO")
	if !l.Used {
		t.Error("Resolve should mark the label Used")
	}
}

func TestArenaGetInvalidHandle(t *testing.T) {
	a := NewArena()
	if a.Get(0) != nil {
		t.Error("Get(0) should be nil: index 0 is reserved")
	}
	if a.Get(99) != nil {
		t.Error("Get(out-of-range) should be nil")
	}
}
