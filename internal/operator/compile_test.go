package operator

import (
	"testing"

	"github.com/switchyard/flow/internal/value"
)

func dictOf(pairs ...interface{}) value.Value {
	d := value.NewDict()
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return value.DictVal(d)
}

func TestCompileInputIdentity(t *testing.T) {
	h, err := Compile(NewInput())
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if got := h(value.Int(7)); got.AsInt() != 7 {
		t.Fatalf("expected identity, got %v", got)
	}
}

func TestCompileNameExtractsField(t *testing.T) {
	h, err := Compile(NewName("age"))
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	got := h(dictOf("age", value.Int(25)))
	if got.AsInt() != 25 {
		t.Fatalf("expected 25, got %v", got)
	}
}

func TestCompileNameOnNonDictReturnsNull(t *testing.T) {
	h, _ := Compile(NewName("age"))
	got := h(value.Int(1))
	if !got.IsNull() {
		t.Fatalf("expected Null on non-dict input, got %v", got)
	}
}

func TestCompileIndexArray(t *testing.T) {
	h, _ := Compile(NewIndex(1))
	got := h(value.Array(value.Int(10), value.Int(20)))
	if got.AsInt() != 20 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestCompileIndexUnwrapsWagon(t *testing.T) {
	h, _ := Compile(NewIndex(0))
	w := value.Wagonize(value.Array(value.Int(5)), "stopA", nil)
	got := h(w)
	if got.AsInt() != 5 {
		t.Fatalf("expected wagon-unwrapped index, got %v", got)
	}
}

func TestCompileContextFiltersByOrigin(t *testing.T) {
	h, _ := Compile(NewContext("left"))
	arr := value.Array(
		value.Wagonize(value.Int(1), "left", nil),
		value.Wagonize(value.Int(2), "right", nil),
	)
	got := h(arr)
	if got.AsInt() != 1 {
		t.Fatalf("expected left-origin wagon, got %v", got)
	}
}

func TestCompilePlusDelegatesToValue(t *testing.T) {
	h, _ := Compile(NewPlus(NewLiteral(value.Int(2)), NewLiteral(value.Int(3))))
	if h(value.Null()).AsInt() != 5 {
		t.Fatalf("expected 5")
	}
}

func TestCompileCombinePacksArray(t *testing.T) {
	h, _ := Compile(NewCombine(NewLiteral(value.Int(1)), NewLiteral(value.Int(2))))
	got := h(value.Null())
	if len(got.AsArray()) != 2 {
		t.Fatalf("expected array of 2, got %v", got)
	}
}

func TestCompileDocPacksNamedFields(t *testing.T) {
	key := "x"
	h, _ := Compile(NewDoc(NewKeyValue(&key, NewLiteral(value.Int(9)))))
	got := h(value.Null())
	xv, ok := got.AsDict().Get("x")
	if !ok || xv.AsInt() != 9 {
		t.Fatalf("expected doc field x=9, got %v", got)
	}
}

func TestCompileSplitSplitsOnPattern(t *testing.T) {
	h, err := Compile(NewSplit(",", NewInput()))
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	got := h(value.Text("a,b,c"))
	if len(got.AsArray()) != 3 {
		t.Fatalf("expected 3 parts, got %v", got)
	}
}

func TestCompileSplitRejectsBadPattern(t *testing.T) {
	if _, err := Compile(NewSplit("(", NewInput())); err == nil {
		t.Fatalf("expected error for malformed regex")
	}
}

func TestCompileCastTextToInt(t *testing.T) {
	h, _ := Compile(NewCast("i", NewInput()))
	got := h(value.Text("42"))
	if got.AsInt() != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestCompileLiteralPassesThrough(t *testing.T) {
	h, _ := Compile(NewLiteral(value.Text("fixed")))
	if h(value.Int(99)).AsText() != "fixed" {
		t.Fatalf("expected literal passthrough")
	}
}
