package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
	"github.com/switchyard/flow/internal/operator"
)

// Filter wraps a child with a boolean condition; rows whose compiled
// condition coerces truthy pass through unchanged.
type Filter struct {
	Id    ID
	Child ID
	Cond  *operator.Operator
}

func NewFilter(child ID, cond *operator.Operator) *Filter {
	return &Filter{Child: child, Cond: cond}
}

func (f *Filter) ID() ID                { return f.Id }
func (f *Filter) ReplaceID(old, new ID) {
	if f.Id == old {
		f.Id = new
	}
	if f.Child == old {
		f.Child = new
	}
}

func (f *Filter) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	if child, ok := root.Get(f.Child); ok {
		return child.DeriveInputLayout(root)
	}
	return layout.AnyLayout()
}

func (f *Filter) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	if child, ok := root.Get(f.Child); ok {
		return child.DeriveOutputLayout(root, inputs)
	}
	return layout.AnyLayout()
}

func (f *Filter) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	child, ok := root.Get(f.Child)
	if !ok {
		return nil, fmt.Errorf("algebra: filter %d has no child", f.Id)
	}
	childIter, err := child.DeriveIterator(root)
	if err != nil {
		return nil, err
	}
	cond, err := operator.Compile(f.Cond)
	if err != nil {
		return nil, fmt.Errorf("algebra: filter %d condition: %w", f.Id, err)
	}
	return iter.NewFilter(childIter, cond), nil
}

// Project wraps a child with a 1:1 projection.
type Project struct {
	Id    ID
	Child ID
	Proj  *operator.Operator
}

func NewProject(child ID, proj *operator.Operator) *Project {
	return &Project{Child: child, Proj: proj}
}

func (p *Project) ID() ID                { return p.Id }
func (p *Project) ReplaceID(old, new ID) {
	if p.Id == old {
		p.Id = new
	}
	if p.Child == old {
		p.Child = new
	}
}

func (p *Project) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	if child, ok := root.Get(p.Child); ok {
		return child.DeriveInputLayout(root)
	}
	return layout.AnyLayout()
}

func (p *Project) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	return layout.AnyLayout()
}

func (p *Project) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	child, ok := root.Get(p.Child)
	if !ok {
		return nil, fmt.Errorf("algebra: project %d has no child", p.Id)
	}
	childIter, err := child.DeriveIterator(root)
	if err != nil {
		return nil, err
	}
	// A top-level Unwind is a collection operator, not a scalar one: the
	// projection underneath it runs 1:1 and the result fans out through
	// an UnwindIter (arrays to elements, dicts to values, scalars as a
	// single element).
	projOp := p.Proj
	unwind := false
	if projOp.Op == operator.Unwind {
		unwind = true
		projOp = projOp.Operands[0]
	}
	proj, err := operator.Compile(projOp)
	if err != nil {
		return nil, fmt.Errorf("algebra: project %d projection: %w", p.Id, err)
	}
	if unwind {
		return iter.NewUnwind(iter.NewProject(childIter, proj)), nil
	}
	return iter.NewProject(childIter, proj), nil
}
