package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard/flow/internal/value"
)

func TestParseScalars(t *testing.T) {
	l, err := Parse("i")
	if err != nil || l.Type != Integer {
		t.Fatalf("expected Integer, got %v err=%v", l, err)
	}
}

func TestParseArrayWithLength(t *testing.T) {
	l, err := Parse("[i:3]")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if l.Type != ArrayT || l.Length == nil || *l.Length != 3 {
		t.Fatalf("expected array length 3, got %+v", l)
	}
}

func TestParseDict(t *testing.T) {
	l, err := Parse("{age:i,name:t}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if l.Type != DictT || len(l.Fields) != 2 {
		t.Fatalf("expected 2 dict fields, got %+v", l)
	}
}

func TestParseNullableOptionalSuffixes(t *testing.T) {
	l, err := Parse("i?'")
	if err != nil || !l.Nullable || !l.Optional {
		t.Fatalf("expected nullable optional integer, got %+v err=%v", l, err)
	}
}

func TestAnyAcceptsEverything(t *testing.T) {
	any := AnyLayout()
	other, _ := Parse("{x:i}")
	if err := any.Accepts(other); err != nil {
		t.Fatalf("Any should accept anything, got %v", err)
	}
}

func TestAcceptsRejectsTypeMismatch(t *testing.T) {
	l, _ := Parse("i")
	other, _ := Parse("t")
	if err := l.Accepts(other); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestAcceptsDictStructuralSubtyping(t *testing.T) {
	want, _ := Parse("{x:i}")
	have, _ := Parse("{x:i,y:t}")
	if err := want.Accepts(have); err != nil {
		t.Fatalf("expected structural acceptance, got %v", err)
	}
}

func TestMergeAnyIsIdentity(t *testing.T) {
	x, _ := Parse("i")
	if got := Merge(AnyLayout(), x); got.Type != Integer {
		t.Fatalf("expected Any merge Integer = Integer, got %v", got)
	}
}

func TestMergeTextAbsorbs(t *testing.T) {
	a, _ := Parse("t")
	b, _ := Parse("i")
	if got := Merge(a, b); got.Type != Text {
		t.Fatalf("expected text to absorb, got %v", got)
	}
}

func TestMergeIntegerFloatNarrowsToInteger(t *testing.T) {
	a, _ := Parse("i")
	b, _ := Parse("f")
	if got := Merge(a, b); got.Type != Integer {
		t.Fatalf("expected narrowing to Integer, got %v", got)
	}
}

func TestMergeArrayTakesMinLength(t *testing.T) {
	a, _ := Parse("[i:5]")
	b, _ := Parse("[i:2]")
	got := Merge(a, b)
	if got.Length == nil || *got.Length != 2 {
		t.Fatalf("expected min length 2, got %+v", got)
	}
}

func TestMergeDictFieldsUnionLaterDoesNotOverwrite(t *testing.T) {
	a, _ := Parse("{x:i}")
	b, _ := Parse("{x:t,y:t}")
	got := Merge(a, b)
	xf := got.fieldByName("x")
	if xf.Type != Integer {
		t.Fatalf("expected left field to win on union, got %v", xf.Type)
	}
	if got.fieldByName("y") == nil {
		t.Fatalf("expected union to include right-only field y")
	}
}

func TestFitsChecksDeclaredShape(t *testing.T) {
	l, _ := Parse("{age:i}")
	d := value.NewDict()
	d.Set("age", value.Int(25))
	if !l.Fits(value.DictVal(d)) {
		t.Fatalf("expected value to fit layout")
	}
}

// TestMergeIsCommutativeUpToFieldOrder checks the universal invariant
// from spec.md §8: A.merge(B) == B.merge(A) up to dict field reordering.
func TestMergeIsCommutativeUpToFieldOrder(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"scalar narrowing", "i", "f"},
		{"text absorbs scalar", "t", "i"},
		{"any yields other", "*", "{x:i}"},
		{"array min length", "[i:5]", "[i:2]"},
		{"dict field union", "{x:i}", "{x:t,y:t}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Parse(tc.a)
			require.NoError(t, err)
			b, err := Parse(tc.b)
			require.NoError(t, err)

			ab := Merge(a, b)
			ba := Merge(b, a)
			require.NotNil(t, ab)
			require.NotNil(t, ba)
			assert.Equal(t, ab.Type, ba.Type, "merge should be commutative on the resulting type")
			assert.ElementsMatch(t, fieldNames(ab), fieldNames(ba), "dict field sets should match regardless of order")
		})
	}
}

func fieldNames(l *Layout) []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.Fields))
	for _, f := range l.Fields {
		names = append(names, f.Name)
	}
	return names
}
