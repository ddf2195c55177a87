package value

import (
	"math"
	"testing"
)

func TestEqualityCoercesNumeric(t *testing.T) {
	if !Equal(Int(3), FloatExact(3, 0)) {
		t.Fatalf("expected int 3 to equal float 3.0")
	}
}

func TestEqualityNullOnlyEqualsNull(t *testing.T) {
	if !Equal(Null(), Null()) {
		t.Fatalf("null should equal null")
	}
	if Equal(Null(), Int(0)) {
		t.Fatalf("null should not equal zero")
	}
}

func TestFloatExactEqualityAvoidsEpsilon(t *testing.T) {
	a := FloatExact(150, 1) // 15.0
	b := FloatExact(15, 0)  // 15.0
	if !Equal(a, b) {
		t.Fatalf("expected normalized float equality")
	}
}

func TestWagonTransparentToArithmetic(t *testing.T) {
	w := Wagonize(Int(2), "stopA", nil)
	got := Plus(w, Int(3))
	if got.AsInt() != 5 {
		t.Fatalf("expected wagon unwrap under +, got %v", got)
	}
}

func TestPlusTextConcatenatesCoercedRight(t *testing.T) {
	got := Plus(Text("a"), Int(1))
	if got.AsText() != "a1" {
		t.Fatalf("expected text concat, got %q", got.AsText())
	}
}

func TestPlusArrayPushes(t *testing.T) {
	got := Plus(Array(Int(1), Int(2)), Int(3))
	if len(got.AsArray()) != 3 {
		t.Fatalf("expected array push, got %v", got.AsArray())
	}
}

func TestPlusDictMergesRightOverwrites(t *testing.T) {
	a := NewDict()
	a.Set("x", Int(1))
	b := NewDict()
	b.Set("x", Int(2))
	b.Set("y", Int(3))
	got := Plus(DictVal(a), DictVal(b))
	xv, _ := got.AsDict().Get("x")
	yv, _ := got.AsDict().Get("y")
	if xv.AsInt() != 2 || yv.AsInt() != 3 {
		t.Fatalf("expected right overwrite merge, got x=%v y=%v", xv, yv)
	}
}

func TestPlusDictCombinesPrimarySlot(t *testing.T) {
	a := NewDict()
	a.Set("$", Int(1))
	b := NewDict()
	b.Set("$", Int(2))
	got := Plus(DictVal(a), DictVal(b))
	prim, _ := got.AsDict().Get("$")
	if prim.Kind() != KindArray || len(prim.AsArray()) != 2 {
		t.Fatalf("expected combined $ slot array, got %v", prim)
	}
}

func TestMulTextRepeats(t *testing.T) {
	got := Mul(Text("ab"), Int(3))
	if got.AsText() != "ababab" {
		t.Fatalf("expected repeated text, got %q", got.AsText())
	}
}

func TestDivAlwaysReturnsFloat(t *testing.T) {
	got := Div(Int(7), Int(2))
	if got.Kind() != KindFloat {
		t.Fatalf("expected float result from division, got %v", got.Kind())
	}
}

func TestDivByZeroYieldsInf(t *testing.T) {
	got := Div(Int(1), Int(0))
	if !math.IsInf(got.AsFloat().Float64(), 1) {
		t.Fatalf("expected +Inf, got %v", got.AsFloat().Float64())
	}
}

func TestCompareTotalOrderAcrossVariants(t *testing.T) {
	if Compare(Null(), Int(1)) >= 0 {
		t.Fatalf("expected Null to order before Int")
	}
	if Compare(Int(1), Text("a")) >= 0 {
		t.Fatalf("expected numeric to order before text")
	}
}

func TestHashDeterministicForEqualValues(t *testing.T) {
	a := NewDict()
	a.Set("k", Int(1))
	b := NewDict()
	b.Set("k", Int(1))
	if Hash(DictVal(a)) != Hash(DictVal(b)) {
		t.Fatalf("expected equal dicts to hash identically")
	}
}

func TestTextRoundTripsScalars(t *testing.T) {
	v := Int(42)
	if v.Text() != "42" {
		t.Fatalf("expected round-trippable text, got %q", v.Text())
	}
}
