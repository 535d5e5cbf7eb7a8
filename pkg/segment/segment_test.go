package segment

import (
	"testing"

	"github.com/jpenner/zasm/pkg/value"
)

func TestNewDataDefaults(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	if s.Kind != Data {
		t.Errorf("Kind = %v, want Data", s.Kind)
	}
	if s.Dpos() != 0 {
		t.Errorf("Dpos = %d, want 0", s.Dpos())
	}
	if got := s.Here(); got.N != 0x8000 {
		t.Errorf("Here = %#x, want 0x8000", got.N)
	}
}

func TestEmitByteAdvancesHereAndBase(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	s.EmitByte(0x00)
	s.EmitByte(0x01)
	if s.Dpos() != 2 {
		t.Errorf("Dpos = %d, want 2", s.Dpos())
	}
	if got := s.Here(); got.N != 0x8002 {
		t.Errorf("Here = %#x, want 0x8002", got.N)
	}
	if got := s.Base(); got.N != 0x8002 {
		t.Errorf("Base = %#x, want 0x8002 (lpos tracks dpos when no .skip used)", got.N)
	}
}

func TestSkipDivergesHereFromBase(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	s.Skip(4)
	if got := s.Here(); got.N != 0x8000 {
		t.Errorf("Here = %#x, want 0x8000 (dpos unaffected by Skip)", got.N)
	}
	if got := s.Base(); got.N != 0x8004 {
		t.Errorf("Base = %#x, want 0x8004 (lpos advances with Skip)", got.N)
	}
}

func TestEmitWordLittleEndian(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	s.EmitWord(0x1234)
	if len(s.Bytes) != 2 || s.Bytes[0] != 0x34 || s.Bytes[1] != 0x12 {
		t.Errorf("Bytes = % X, want [34 12]", s.Bytes)
	}
}

func TestSizeLimitOverflow(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	s.SizeLimit = 2
	if err := s.EmitByte(1); err != nil {
		t.Fatalf("unexpected error on first byte: %v", err)
	}
	if err := s.EmitByte(2); err != nil {
		t.Fatalf("unexpected error on second byte: %v", err)
	}
	if err := s.EmitByte(3); err == nil {
		t.Fatal("expected overflow error on third byte past SizeLimit=2")
	}
}

func TestResetPassClearsBytesKeepsMetadata(t *testing.T) {
	s := NewTest("check", value.Of(0x8000), 1000)
	s.EmitByte(0xC9)
	s.Expectations = append(s.Expectations, Expectation{Register: "A", Want: 5})

	s.ResetPass()

	if s.Dpos() != 0 {
		t.Errorf("Dpos after ResetPass = %d, want 0", s.Dpos())
	}
	if s.Lpos != 0 {
		t.Errorf("Lpos after ResetPass = %d, want 0", s.Lpos)
	}
	if s.CyclesBudget != 1000 {
		t.Errorf("CyclesBudget after ResetPass = %d, want 1000 (preserved)", s.CyclesBudget)
	}
	if len(s.Expectations) != 1 {
		t.Errorf("Expectations after ResetPass = %d, want 1 (preserved)", len(s.Expectations))
	}
}

func TestPhasedOverridesHereNotBase(t *testing.T) {
	s := NewData("main", value.Of(0x8000))
	s.EmitByte(0x00)
	s.Phased = value.Of(0x9000)
	if got := s.Here(); got.N != 0x9001 {
		t.Errorf("Here with Phased = %#x, want 0x9001", got.N)
	}
	if got := s.Base(); got.N != 0x8001 {
		t.Errorf("Base should ignore Phased = %#x, want 0x8001", got.N)
	}
}

func TestNewTestSegmentKind(t *testing.T) {
	s := NewTest("check", value.Of(0xC000), 500)
	if s.Kind != Test {
		t.Errorf("Kind = %v, want Test", s.Kind)
	}
	if s.CyclesBudget != 500 {
		t.Errorf("CyclesBudget = %d, want 500", s.CyclesBudget)
	}
}
