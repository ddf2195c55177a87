package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

func boolTrue() value.Value { return value.Bool(true) }

// Aggregate computes Count/Sum/Avg expressions embedded anywhere in Func,
// grouped by Group (defaulting to a single implicit group when nil).
type Aggregate struct {
	Id    ID
	Child ID
	Func  *operator.Operator
	Group *operator.Operator
}

func NewAggregate(child ID, fn *operator.Operator, group *operator.Operator) *Aggregate {
	return &Aggregate{Child: child, Func: fn, Group: group}
}

func (a *Aggregate) ID() ID { return a.Id }
func (a *Aggregate) ReplaceID(old, new ID) {
	if a.Id == old {
		a.Id = new
	}
	if a.Child == old {
		a.Child = new
	}
}

func (a *Aggregate) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	if child, ok := root.Get(a.Child); ok {
		return child.DeriveInputLayout(root)
	}
	return layout.AnyLayout()
}

func (a *Aggregate) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	return layout.AnyLayout()
}

type aggExpr struct {
	op      operator.Kind
	operand *operator.Operator
}

// extractAggs walks op, replacing every Count/Sum/Avg subtree with a
// reference to the eventual output-tuple slot it will occupy, and every
// bare Input with Index(0) (the group's sample row). This mirrors the
// original engine's extract_aggs: the projection the caller wrote
// (e.g. "sum(x) / count()") still works once the aggregate iterator
// assembles [sample, agg1.get(), agg2.get(), ...] and runs this rewritten
// expression against it.
func extractAggs(op *operator.Operator, aggs *[]aggExpr) *operator.Operator {
	switch op.Op {
	case operator.Count, operator.Sum, operator.Avg:
		var operand *operator.Operator
		switch len(op.Operands) {
		case 0:
			operand = operator.NewCombine()
		case 1:
			operand = op.Operands[0]
		default:
			operand = operator.NewCombine(op.Operands...)
		}
		idx := len(*aggs) + 1
		*aggs = append(*aggs, aggExpr{op: op.Op, operand: operand})
		return operator.NewIndex(idx)
	case operator.Input:
		return operator.NewIndex(0)
	default:
		newOperands := make([]*operator.Operator, len(op.Operands))
		for i, child := range op.Operands {
			newOperands[i] = extractAggs(child, aggs)
		}
		return &operator.Operator{
			Op: op.Op, Operands: newOperands, Name: op.Name,
			Index: op.Index, Lit: op.Lit, Pattern: op.Pattern, Key: op.Key,
		}
	}
}

func (a *Aggregate) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	child, ok := root.Get(a.Child)
	if !ok {
		return nil, fmt.Errorf("algebra: aggregate %d has no child", a.Id)
	}
	childIter, err := child.DeriveIterator(root)
	if err != nil {
		return nil, err
	}

	var aggs []aggExpr
	outputFuncOp := extractAggs(a.Func, &aggs)
	outputFunc, err := operator.Compile(outputFuncOp)
	if err != nil {
		return nil, fmt.Errorf("algebra: aggregate %d output func: %w", a.Id, err)
	}

	group := a.Group
	if group == nil {
		group = operator.NewLiteral(boolTrue())
	}
	hasher, err := operator.Compile(group)
	if err != nil {
		return nil, fmt.Errorf("algebra: aggregate %d group: %w", a.Id, err)
	}

	specs := make([]iter.AggSpec, len(aggs))
	for i, ax := range aggs {
		factory, proj, err := operator.CompileLoader(&operator.Operator{Op: ax.op, Operands: []*operator.Operator{ax.operand}})
		if err != nil {
			return nil, fmt.Errorf("algebra: aggregate %d expr %d: %w", a.Id, i, err)
		}
		specs[i] = iter.AggSpec{Factory: factory, Proj: proj}
	}

	return iter.NewAggregate(childIter, hasher, specs, outputFunc), nil
}
