package value

import (
	"math"
	"testing"
)

func TestValidityCombine(t *testing.T) {
	cases := []struct {
		a, b Value
		want Validity
	}{
		{Of(1), Of(2), Valid},
		{Of(1), Prelim(2), Preliminary},
		{Prelim(1), Inv(), Invalid},
		{Of(1), Inv(), Invalid},
	}
	for _, c := range cases {
		got := c.a.Add(c.b)
		if got.V != c.want {
			t.Errorf("Add(%v, %v).V = %v, want %v", c.a, c.b, got.V, c.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a, b := Of(10), Of(3)
	if got := a.Add(b); got.N != 13 {
		t.Errorf("Add = %d, want 13", got.N)
	}
	if got := a.Sub(b); got.N != 7 {
		t.Errorf("Sub = %d, want 7", got.N)
	}
	if got := a.Mul(b); got.N != 30 {
		t.Errorf("Mul = %d, want 30", got.N)
	}
	if got, err := a.Div(b); err != nil || got.N != 3 {
		t.Errorf("Div = %d, %v, want 3, nil", got.N, err)
	}
	if got, err := a.Mod(b); err != nil || got.N != 1 {
		t.Errorf("Mod = %d, %v, want 1, nil", got.N, err)
	}
}

func TestDivByValidZero(t *testing.T) {
	_, err := Of(10).Div(Of(0))
	if err == nil {
		t.Fatal("expected division-by-zero error")
	}
}

func TestDivByPreliminaryZero(t *testing.T) {
	got, err := Of(10).Div(Prelim(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N != math.MaxInt32 {
		t.Errorf("N = %d, want MaxInt32 sentinel", got.N)
	}
	if got.V != Preliminary {
		t.Errorf("V = %v, want Preliminary", got.V)
	}

	got, err = Of(-10).Div(Prelim(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N != math.MinInt32 {
		t.Errorf("N = %d, want MinInt32 sentinel", got.N)
	}
}

func TestModByValidZero(t *testing.T) {
	if _, err := Of(10).Mod(Of(0)); err == nil {
		t.Fatal("expected division-by-zero error")
	}
}

func TestShiftNegativeCount(t *testing.T) {
	if _, err := Of(1).Shl(Of(-1)); err == nil {
		t.Error("Shl by negative count should error")
	}
	if _, err := Of(1).Shr(Of(-1)); err == nil {
		t.Error("Shr by negative count should error")
	}
}

func TestShiftResults(t *testing.T) {
	if got, _ := Of(1).Shl(Of(4)); got.N != 16 {
		t.Errorf("Shl = %d, want 16", got.N)
	}
	if got, _ := Of(0x8000).Shr(Of(8)); got.N != 0x80 {
		t.Errorf("Shr = %d, want 0x80", got.N)
	}
}

func TestComparisons(t *testing.T) {
	a, b := Of(5), Of(7)
	if a.Lt(b).N != 1 {
		t.Error("5 < 7 should be true")
	}
	if a.Gt(b).N != 0 {
		t.Error("5 > 7 should be false")
	}
	if a.Eq(a).N != 1 {
		t.Error("5 == 5 should be true")
	}
	if a.Ne(b).N != 1 {
		t.Error("5 != 7 should be true")
	}
}

func TestLogicalAndShortCircuit(t *testing.T) {
	called := false
	result := LogicalAnd(Of(0), func() Value { called = true; return Of(1) })
	if called {
		t.Error("LogicalAnd should short-circuit when lhs is Valid and false")
	}
	if result.N != 0 || result.V != Valid {
		t.Errorf("result = %+v, want {0 Valid}", result)
	}
}

func TestLogicalAndForcesPreliminaryWhenLHSUnresolved(t *testing.T) {
	result := LogicalAnd(Prelim(1), func() Value { return Of(1) })
	if result.V != Preliminary {
		t.Errorf("V = %v, want Preliminary", result.V)
	}
}

func TestLogicalOrShortCircuit(t *testing.T) {
	called := false
	result := LogicalOr(Of(1), func() Value { called = true; return Of(0) })
	if called {
		t.Error("LogicalOr should short-circuit when lhs is Valid and true")
	}
	if result.N != 1 || result.V != Valid {
		t.Errorf("result = %+v, want {1 Valid}", result)
	}
}

func TestLoHi(t *testing.T) {
	v := Of(0x1234)
	if got := v.Lo().N; got != 0x34 {
		t.Errorf("Lo = %#x, want 0x34", got)
	}
	if got := v.Hi().N; got != 0x12 {
		t.Errorf("Hi = %#x, want 0x12", got)
	}
}

func TestAbs(t *testing.T) {
	if Of(-5).Abs().N != 5 {
		t.Error("Abs(-5) should be 5")
	}
	if Of(5).Abs().N != 5 {
		t.Error("Abs(5) should be 5")
	}
}

func TestMinMax(t *testing.T) {
	if Min(Of(3), Of(7)).N != 3 {
		t.Error("Min(3,7) should be 3")
	}
	if Max(Of(3), Of(7)).N != 7 {
		t.Error("Max(3,7) should be 7")
	}
}

func TestUint16Truncation(t *testing.T) {
	v := Of(0x1FFFF)
	if v.Uint16() != 0xFFFF {
		t.Errorf("Uint16 = %#x, want 0xFFFF", v.Uint16())
	}
	if v.Byte() != 0xFF {
		t.Errorf("Byte = %#x, want 0xFF", v.Byte())
	}
}

func TestZeroValueIsInvalid(t *testing.T) {
	var v Value
	if !v.IsInvalid() {
		t.Error("zero Value should be Invalid")
	}
}
