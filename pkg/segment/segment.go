// Package segment implements the ordered code/data segments the driver
// emits into. Code/data/test segments are modeled as one tagged struct
// sharing a write-position/byte-buffer representation instead of
// separate runtime types needing downcasting.
package segment

import (
	"errors"

	"github.com/jpenner/zasm/pkg/value"
)

type Kind int

const (
	Data Kind = iota
	Test
)

// Expectation is one post-execution check a TestSegment records for the
// embedded interpreter: either a register or a memory-cell comparison.
type Expectation struct {
	Register string // e.g. "A", "HL"; empty when this is a memory check
	Address  uint16 // used when Register == ""
	Want     uint16
}

// Segment is a tagged variant: a DataSegment always, with
// TestSegment-only fields populated and meaningful only when Kind==Test.
type Segment struct {
	Kind Kind
	Name string

	Address     value.Value // base address, may be Preliminary
	Bytes       []byte      // dpos == len(Bytes)
	Lpos        int         // logical position; may exceed dpos (.skip/.ds)
	SizeLimit   int         // 0 = unlimited
	Phased      value.Value // .phase override of $, Invalid when not phased
	Compressed  bool        // #compress requested; recorded only, no codec applied

	// TestSegment-only:
	CyclesBudget int
	Expectations []Expectation
	Preamble     []RegisterSeed
}

type RegisterSeed struct {
	Register string
	Value    uint16
}

func NewData(name string, addr value.Value) *Segment {
	return &Segment{Kind: Data, Name: name, Address: addr}
}

func NewTest(name string, addr value.Value, cycles int) *Segment {
	return &Segment{Kind: Test, Name: name, Address: addr, CyclesBudget: cycles}
}

// ResetPass clears per-pass write state while keeping the byte buffer's
// capacity and all TestSegment metadata, run at the top of every pass.
func (s *Segment) ResetPass() {
	s.Bytes = s.Bytes[:0]
	s.Lpos = 0
}

// Dpos is the physical write position: the count of bytes actually
// emitted so far in the current pass.
func (s *Segment) Dpos() int { return len(s.Bytes) }

// Here returns `$`: address + dpos.
func (s *Segment) Here() value.Value {
	if s.Phased.IsValid() || s.Phased.IsPreliminary() {
		return s.Phased.Add(value.Of(int32(s.Dpos())))
	}
	return s.Address.Add(value.Of(int32(s.Dpos())))
}

// Base returns `$$`: address + lpos.
func (s *Segment) Base() value.Value {
	return s.Address.Add(value.Of(int32(s.Lpos)))
}

func (s *Segment) EmitByte(b byte) error {
	if s.SizeLimit > 0 && s.Dpos()+1 > s.SizeLimit {
		return overflowErr(s.Name)
	}
	s.Bytes = append(s.Bytes, b)
	s.Lpos++
	return nil
}

func (s *Segment) EmitWord(w uint16) error {
	if err := s.EmitByte(byte(w)); err != nil {
		return err
	}
	return s.EmitByte(byte(w >> 8))
}

// Skip reserves lpos space without emitting bytes (.ds/.skip on a
// DataSegment that still needs dpos accounting for $ vs $$ to diverge).
func (s *Segment) Skip(n int) { s.Lpos += n }

type segmentError struct{ name string }

func (e segmentError) Error() string { return "segment " + e.name + " overflow" }
func overflowErr(name string) error  { return segmentError{name} }

// IsOverflow reports whether err is a segment size-limit overflow, for
// callers classifying errors without depending on segmentError's type.
func IsOverflow(err error) bool {
	var e segmentError
	return errors.As(err, &e)
}
