package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
)

// VariableScan is a named reference to an external Transform subtree
// (another compiled pipeline, possibly built lazily from a query
// string). Inputs are the declared producer ids feeding the transform.
type VariableScan struct {
	Id     ID
	Name   string
	Inputs []ID
}

func NewVariableScan(name string, inputs []ID) *VariableScan {
	return &VariableScan{Name: name, Inputs: inputs}
}

func (v *VariableScan) ID() ID { return v.Id }
func (v *VariableScan) ReplaceID(old, new ID) {
	if v.Id == old {
		v.Id = new
	}
	for i, in := range v.Inputs {
		if in == old {
			v.Inputs[i] = new
		}
	}
}

func (v *VariableScan) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	return layout.AnyLayout()
}

func (v *VariableScan) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	return layout.AnyLayout()
}

// DeriveIterator produces the bare, not-yet-enriched placeholder; a
// caller holding the set of named Transforms must call Enrich on the
// returned *iter.BareVariableScanIter (via a type assertion) before
// driving it.
func (v *VariableScan) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	inputs := make([]iter.Iterator, 0, len(v.Inputs))
	for _, id := range v.Inputs {
		n, ok := root.Get(id)
		if !ok {
			return nil, fmt.Errorf("algebra: variable scan %q missing input %d", v.Name, id)
		}
		it, err := n.DeriveIterator(root)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, it)
	}
	return iter.NewBareVariableScan(v.Name, inputs), nil
}
