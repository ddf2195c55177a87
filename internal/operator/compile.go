package operator

import (
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/switchyard/flow/internal/value"
)

// Handler is a compiled Value -> Value closure tree.
type Handler func(value.Value) value.Value

var log = zerolog.Nop()

// SetLogger configures the logger used for RuntimeWarn-class tolerance
// (e.g. Name against a non-dict). Runtime type mismatches are logged,
// not propagated as errors — this is the engine's deliberate
// tolerance-over-strictness trade-off for streaming resilience.
func SetLogger(l zerolog.Logger) { log = l }

// Compile walks op bottom-up, producing a Handler. Compilation itself can
// fail (e.g. a malformed Split regex); runtime type mismatches inside the
// returned Handler do not error, they warn-and-Null or panic per
// spec.md §7's RuntimeWarn/RuntimePanic distinction.
func Compile(op *Operator) (Handler, error) {
	switch op.Op {
	case Input:
		return func(v value.Value) value.Value { return v }, nil

	case Literal:
		lit := op.Lit
		return func(value.Value) value.Value { return lit }, nil

	case Name:
		field := op.Name
		return func(v value.Value) value.Value {
			u := v.Unwrap()
			if u.Kind() != value.KindDict {
				log.Warn().Str("field", field).Str("kind", u.Kind().String()).
					Msg("operator: Name against non-dict input, returning Null")
				return value.Null()
			}
			if fv, ok := u.AsDict().Get(field); ok {
				return fv
			}
			return value.Null()
		}, nil

	case Index:
		idx := op.Index
		return func(v value.Value) value.Value { return indexInto(v, idx) }, nil

	case Context:
		origin := op.Name
		return func(v value.Value) value.Value { return contextOf(v, origin) }, nil

	case Cast:
		inner, err := Compile(op.Operands[0])
		if err != nil {
			return nil, err
		}
		target := op.Name
		return func(v value.Value) value.Value { return castTo(inner(v), target) }, nil

	case Plus, Minus, Mul, Div, And, Or, Equal:
		lh, err := Compile(op.Operands[0])
		if err != nil {
			return nil, err
		}
		rh, err := Compile(op.Operands[1])
		if err != nil {
			return nil, err
		}
		fn := binaryFn(op.Op)
		return func(v value.Value) value.Value { return fn(lh(v), rh(v)) }, nil

	case Not:
		inner, err := Compile(op.Operands[0])
		if err != nil {
			return nil, err
		}
		return func(v value.Value) value.Value { return value.Not(inner(v)) }, nil

	case Combine:
		handlers, err := compileAll(op.Operands)
		if err != nil {
			return nil, err
		}
		return func(v value.Value) value.Value {
			out := make([]value.Value, len(handlers))
			for i, h := range handlers {
				out[i] = h(v)
			}
			return value.Array(out...)
		}, nil

	case Doc:
		handlers, err := compileAll(op.Operands)
		if err != nil {
			return nil, err
		}
		keys := make([]*string, len(op.Operands))
		for i, o := range op.Operands {
			if o.Op == KeyValue {
				keys[i] = o.Key
			}
		}
		return func(v value.Value) value.Value {
			d := value.NewDict()
			for i, h := range handlers {
				res := h(v)
				key := fmt.Sprintf("$%d", i)
				if keys[i] != nil {
					key = *keys[i]
				}
				d.Set(key, res)
			}
			return value.DictVal(d)
		}, nil

	case KeyValue:
		return Compile(op.Operands[0])

	case Split:
		re, err := regexp.Compile(op.Pattern)
		if err != nil {
			return nil, fmt.Errorf("operator: bad Split pattern %q: %w", op.Pattern, err)
		}
		inner, err := Compile(op.Operands[0])
		if err != nil {
			return nil, err
		}
		return func(v value.Value) value.Value {
			text := inner(v).Text()
			parts := re.Split(text, -1)
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.Text(p)
			}
			return value.Array(out...)
		}, nil

	case Unwind:
		// Unwind is a Collection op evaluated by the iterator layer
		// (it fans one Value into many); as a scalar Handler it is the
		// identity so composition elsewhere can still reference it.
		return Compile(op.Operands[0])

	default:
		return nil, fmt.Errorf("operator: %d is not a scalar operator (aggregate ops compile via CompileLoader)", op.Op)
	}
}

func compileAll(ops []*Operator) ([]Handler, error) {
	out := make([]Handler, len(ops))
	for i, o := range ops {
		h, err := Compile(o)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func binaryFn(k Kind) func(a, b value.Value) value.Value {
	switch k {
	case Plus:
		return value.Plus
	case Minus:
		return value.Minus
	case Mul:
		return value.Mul
	case Div:
		return value.Div
	case And:
		return value.And
	case Or:
		return value.Or
	case Equal:
		return func(a, b value.Value) value.Value { return value.Bool(value.Equal(a, b)) }
	}
	panic("operator: unreachable binary kind")
}

// indexInto extracts array element i, dict key "$i", or unwraps a wagon
// recursively before retrying.
func indexInto(v value.Value, i int) value.Value {
	if origin, ok := v.WagonOrigin(); ok {
		_ = origin
		return indexInto(v.Unwrap(), i)
	}
	switch v.Kind() {
	case value.KindArray:
		arr := v.AsArray()
		if i < 0 || i >= len(arr) {
			return value.Null()
		}
		return arr[i]
	case value.KindDict:
		if fv, ok := v.AsDict().Get(fmt.Sprintf("$%d", i)); ok {
			return fv
		}
		return value.Null()
	default:
		return value.Null()
	}
}

// contextOf pulls wagons whose origin equals the given name out of an
// array or dict, unwrapping them. Used to disambiguate fields after a
// join merges two wagonized sides.
func contextOf(v value.Value, origin string) value.Value {
	if o, ok := v.WagonOrigin(); ok {
		if o == origin {
			return v.Unwrap()
		}
		return value.Null()
	}
	switch v.Kind() {
	case value.KindArray:
		for _, e := range v.AsArray() {
			if o, ok := e.WagonOrigin(); ok && o == origin {
				return e.Unwrap()
			}
		}
		return value.Null()
	case value.KindDict:
		var found value.Value
		ok := false
		v.AsDict().Range(func(_ string, dv value.Value) {
			if ok {
				return
			}
			if o, match := dv.WagonOrigin(); match && o == origin {
				found = dv.Unwrap()
				ok = true
			}
		})
		if ok {
			return found
		}
		return value.Null()
	default:
		return value.Null()
	}
}

func castTo(v value.Value, target string) value.Value {
	u := v.Unwrap()
	switch target {
	case "t":
		return value.Text(u.Text())
	case "i":
		switch u.Kind() {
		case value.KindInt:
			return u
		case value.KindFloat:
			return value.Int(int64(u.AsFloat().Float64()))
		case value.KindText:
			var i int64
			fmt.Sscanf(u.AsText(), "%d", &i)
			return value.Int(i)
		default:
			return value.Null()
		}
	case "f":
		switch u.Kind() {
		case value.KindFloat:
			return u
		case value.KindInt:
			return value.FloatFrom64(float64(u.AsInt()), 6)
		case value.KindText:
			var f float64
			fmt.Sscanf(u.AsText(), "%g", &f)
			return value.FloatFrom64(f, 6)
		default:
			return value.Null()
		}
	case "b":
		return value.Bool(u.Kind() == value.KindBool && u.AsBool())
	default:
		return u
	}
}
