package value

import (
	"fmt"
	"sort"
	"strings"
)

// Equal implements the coercive equality described in spec.md §4.1:
// numeric kinds compare by float conversion, text compares structurally,
// arrays/dicts compare element-wise, wagons are transparent, and Null
// equals only Null.
func Equal(a, b Value) bool {
	a, b = a.Unwrap(), b.Unwrap()
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == KindNull && b.kind == KindNull
	}
	if a.kind == KindFloat && b.kind == KindFloat {
		return floatExactEqual(a.f, b.f)
	}
	if isNumeric(a.kind) && isNumeric(b.kind) {
		return toFloat64(a) == toFloat64(b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindText:
		return a.s == b.s
	case KindTime:
		return a.t.Ms == b.t.Ms && a.t.Ns == b.t.Ns
	case KindDate:
		return a.date.Days == b.date.Days
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		ok := true
		a.dict.Range(func(k string, av Value) {
			bv, present := b.dict.Get(k)
			if !present || !Equal(av, bv) {
				ok = false
			}
		})
		return ok
	default:
		return false
	}
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

// floatExactEqual compares two exact decimal floats by normalizing to a
// common shift and comparing mantissas, avoiding the float64 epsilon
// hazards the (mantissa, shift) representation exists to sidestep.
// Reserved sentinel shifts (NaN/Inf) compare by IEEE-754 rules.
func floatExactEqual(a, b Float) bool {
	if a.Shift >= 254 || b.Shift >= 254 {
		return a.Float64() == b.Float64()
	}
	shift := a.Shift
	if b.Shift > shift {
		shift = b.Shift
	}
	am := a.Mantissa * pow10(shift-a.Shift)
	bm := b.Mantissa * pow10(shift-b.Shift)
	return am == bm
}

func toFloat64(v Value) float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f.Float64()
	default:
		return 0
	}
}

// rank orders variants for total comparison: Null < Bool < Int/Float <
// Text < Time < Date < Array < Dict < Wagon-unwrapped-first.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindText:
		return 3
	case KindTime:
		return 4
	case KindDate:
		return 5
	case KindArray:
		return 6
	case KindDict:
		return 7
	default:
		return 8
	}
}

// Compare defines a total order across all variants, used as a key in
// ordered maps and by the aggregate/join hash machinery's tie-breaking.
func Compare(a, b Value) int {
	a, b = a.Unwrap(), b.Unwrap()
	ra, rb := rank(a.kind), rank(b.kind)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		return boolCompare(a.b, b.b)
	case KindInt, KindFloat:
		fa, fb := toFloat64(a), toFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case KindText:
		return strings.Compare(a.s, b.s)
	case KindTime:
		if a.t.Ms != b.t.Ms {
			return intCompare(a.t.Ms, b.t.Ms)
		}
		return intCompare(int64(a.t.Ns), int64(b.t.Ns))
	case KindDate:
		return intCompare(a.date.Days, b.date.Days)
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return intCompare(int64(len(a.arr)), int64(len(b.arr)))
	case KindDict:
		ak, bk := a.dict.Keys(), b.dict.Keys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			av, _ := a.dict.Get(ak[i])
			bv, _ := b.dict.Get(bk[i])
			if c := Compare(av, bv); c != 0 {
				return c
			}
		}
		return intCompare(int64(len(ak)), int64(len(bk)))
	default:
		return 0
	}
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func intCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Hash returns a deterministic hash usable as a map key (via the string
// it produces) for group-by and join keying. It walks the same shape as
// Compare so that equal Values always hash identically.
func Hash(v Value) string {
	v = v.Unwrap()
	var b strings.Builder
	hashInto(&b, v)
	return b.String()
}

func hashInto(b *strings.Builder, v Value) {
	v = v.Unwrap()
	switch v.kind {
	case KindNull:
		b.WriteString("n:")
	case KindBool:
		if v.b {
			b.WriteString("b:1")
		} else {
			b.WriteString("b:0")
		}
	case KindInt, KindFloat:
		fmt.Fprintf(b, "f:%g", toFloat64(v))
	case KindText:
		fmt.Fprintf(b, "s:%s", v.s)
	case KindTime:
		fmt.Fprintf(b, "t:%d.%d", v.t.Ms, v.t.Ns)
	case KindDate:
		fmt.Fprintf(b, "d:%d", v.date.Days)
	case KindArray:
		b.WriteString("a[")
		for _, e := range v.arr {
			hashInto(b, e)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case KindDict:
		b.WriteString("o{")
		keys := v.dict.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			dv, _ := v.dict.Get(k)
			fmt.Fprintf(b, "%s=", k)
			hashInto(b, dv)
			b.WriteByte(',')
		}
		b.WriteByte('}')
	}
}

// arithPanic reports structurally incompatible arithmetic. The caller
// (the query compiler) is responsible for checking layouts first —
// reaching this at runtime means that contract was violated.
func arithPanic(op string, a, b Value) {
	panic(fmt.Sprintf("value: %s on incompatible kinds %s and %s", op, a.kind, b.kind))
}

// Plus implements +. Numeric adds numerically, text concatenates (right
// side coerced via Text()), arrays push, dicts merge with right keys
// overwriting left and a combined "$" primary slot when both sides carry
// one.
func Plus(a, b Value) Value {
	au, bu := a.Unwrap(), b.Unwrap()
	switch {
	case isNumeric(au.kind) && isNumeric(bu.kind):
		return addNumeric(au, bu)
	case au.kind == KindText:
		return Text(au.s + bu.Text())
	case au.kind == KindArray:
		return Array(append(append([]Value{}, au.arr...), bu)...)
	case au.kind == KindDict && bu.kind == KindDict:
		return plusDict(au, bu)
	default:
		arithPanic("+", au, bu)
		return Null()
	}
}

func addNumeric(a, b Value) Value {
	if a.kind == KindInt && b.kind == KindInt {
		return Int(a.i + b.i)
	}
	shift := a.f.Shift
	if b.kind == KindFloat && b.f.Shift > shift {
		shift = b.f.Shift
	}
	return FloatFrom64(toFloat64(a)+toFloat64(b), maxu8(shift, 6))
}

func maxu8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func plusDict(a, b Value) Value {
	out := a.dict.Clone()
	aHas, aPrim := a.dict.Get("$")
	bHas, bPrim := b.dict.Get("$")
	b.dict.Range(func(k string, v Value) { out.Set(k, v) })
	if aPrim && bPrim {
		out.Set("$", Array(aHas, bHas))
	}
	return DictVal(out)
}

// Minus implements -: numeric subtraction only.
func Minus(a, b Value) Value {
	au, bu := a.Unwrap(), b.Unwrap()
	if !isNumeric(au.kind) || !isNumeric(bu.kind) {
		arithPanic("-", au, bu)
	}
	if au.kind == KindInt && bu.kind == KindInt {
		return Int(au.i - bu.i)
	}
	return FloatFrom64(toFloat64(au)-toFloat64(bu), 6)
}

// Mul implements *: numeric multiplication, or text*int repetition.
func Mul(a, b Value) Value {
	au, bu := a.Unwrap(), b.Unwrap()
	switch {
	case isNumeric(au.kind) && isNumeric(bu.kind):
		if au.kind == KindInt && bu.kind == KindInt {
			return Int(au.i * bu.i)
		}
		return FloatFrom64(toFloat64(au)*toFloat64(bu), 6)
	case au.kind == KindText && bu.kind == KindInt:
		if bu.i <= 0 {
			return Text("")
		}
		return Text(strings.Repeat(au.s, int(bu.i)))
	default:
		arithPanic("*", au, bu)
		return Null()
	}
}

// Div implements /: always returns a float, including on division by
// zero (yielding +Inf/-Inf/NaN via ordinary float64 semantics).
func Div(a, b Value) Value {
	au, bu := a.Unwrap(), b.Unwrap()
	if !isNumeric(au.kind) || !isNumeric(bu.kind) {
		arithPanic("/", au, bu)
	}
	r := toFloat64(au) / toFloat64(bu)
	return FloatExactFromF64Raw(r)
}

// FloatExactFromF64Raw stores a raw float64 at a fixed 6-digit shift.
// NaN becomes the Shift 255 sentinel; values above 1e18 or below -1e18
// (including +Inf/-Inf) become the Shift 254 sentinel, with Mantissa's
// sign giving the sign of the infinity.
func FloatExactFromF64Raw(f float64) Value {
	if f != f { // NaN
		return Value{kind: KindFloat, f: Float{Mantissa: 0, Shift: 255}}
	}
	if f > 1e18 {
		return Value{kind: KindFloat, f: Float{Mantissa: 1, Shift: 254}}
	}
	if f < -1e18 {
		return Value{kind: KindFloat, f: Float{Mantissa: -1, Shift: 254}}
	}
	return FloatFrom64(f, 6)
}

// And implements logical AND, coercing operands to Bool.
func And(a, b Value) Value { return Bool(truthy(a) && truthy(b)) }

// Or implements logical OR, coercing operands to Bool.
func Or(a, b Value) Value { return Bool(truthy(a) || truthy(b)) }

// Not implements logical NOT.
func Not(a Value) Value { return Bool(!truthy(a)) }

// Truthy exposes the engine's Bool-coercion rule for callers outside this
// package (e.g. the Filter iterator deciding whether to yield a row).
func Truthy(v Value) bool { return truthy(v) }

func truthy(v Value) bool {
	u := v.Unwrap()
	switch u.kind {
	case KindBool:
		return u.b
	case KindNull:
		return false
	case KindInt:
		return u.i != 0
	case KindFloat:
		return u.f.Mantissa != 0
	case KindText:
		return u.s != ""
	default:
		return true
	}
}
