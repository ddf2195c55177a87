package iter

import "github.com/switchyard/flow/internal/value"

// Transform bundles a compiled sub-pipeline iterator with the reservoirs
// that feed its leaves, so a VariableIter can push values pulled from its
// own inputs into the referenced transform before pulling a result back
// out of it.
type Transform struct {
	Iter       Iterator
	Reservoirs []*ValueReservoir
}

// BareVariableScanIter is what a VariableScan node compiles to before
// Enrich runs: the referenced Transform may still be compiled lazily
// (e.g. from a query string resolved at plan-link time), so Next panics
// until a real iterator replaces this one.
type BareVariableScanIter struct {
	Name   string
	Inputs []Iterator
}

func NewBareVariableScan(name string, inputs []Iterator) *BareVariableScanIter {
	return &BareVariableScanIter{Name: name, Inputs: inputs}
}

func (b *BareVariableScanIter) Next() (value.Value, bool) {
	panic("iter: variable scan " + b.Name + " used before Enrich")
}

// Enrich replaces the bare placeholder with a real VariableScanIter bound
// to the named transform.
func (b *BareVariableScanIter) Enrich(transforms map[string]Transform) Iterator {
	t, ok := transforms[b.Name]
	if !ok {
		panic("iter: no transform registered for variable " + b.Name)
	}
	return NewVariableScan(b.Name, b.Inputs, t)
}

// VariableScanIter pulls one value from each declared input, feeds them
// into the referenced transform's reservoirs, pulls the transform's
// result, and wagonizes it with the variable's name as origin so
// downstream Context(name) lookups can find it again.
type VariableScanIter struct {
	name      string
	inputs    []Iterator
	transform Transform
}

func NewVariableScan(name string, inputs []Iterator, transform Transform) *VariableScanIter {
	return &VariableScanIter{name: name, inputs: inputs, transform: transform}
}

func (v *VariableScanIter) Next() (value.Value, bool) {
	if val, ok := v.transform.Iter.Next(); ok {
		return value.Wagonize(val, v.name, nil), true
	}
	if len(v.inputs) == 0 {
		return value.Null(), false
	}
	vals := make([]value.Value, len(v.inputs))
	for i, in := range v.inputs {
		val, ok := in.Next()
		if !ok {
			return value.Null(), false
		}
		vals[i] = val
	}
	for i, r := range v.transform.Reservoirs {
		if i < len(vals) {
			r.Push(vals[i])
		}
	}
	val, ok := v.transform.Iter.Next()
	if !ok {
		return value.Null(), false
	}
	return value.Wagonize(val, v.name, nil), true
}
