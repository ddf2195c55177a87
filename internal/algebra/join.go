package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

// Join is a nested-loop join over Left/Right children, keyed by two
// compiled hash expressions, combined by Out. A nil Out defaults to
// packing the matched pair into a 2-element Array.
type Join struct {
	Id               ID
	Left, Right      ID
	LeftHash         *operator.Operator
	RightHash        *operator.Operator
	Out              func(left, right value.Value) value.Value
}

func NewJoin(left, right ID, leftHash, rightHash *operator.Operator) *Join {
	return &Join{Left: left, Right: right, LeftHash: leftHash, RightHash: rightHash}
}

func (j *Join) ID() ID { return j.Id }
func (j *Join) ReplaceID(old, new ID) {
	if j.Id == old {
		j.Id = new
	}
	if j.Left == old {
		j.Left = new
	}
	if j.Right == old {
		j.Right = new
	}
}

func (j *Join) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	left, lok := root.Get(j.Left)
	right, rok := root.Get(j.Right)
	if !lok || !rok {
		return layout.AnyLayout()
	}
	return layout.Merge(left.DeriveInputLayout(root), right.DeriveInputLayout(root))
}

func (j *Join) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	two := 2
	return &layout.Layout{Type: layout.ArrayT, Element: layout.AnyLayout(), Length: &two}
}

func (j *Join) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	left, lok := root.Get(j.Left)
	right, rok := root.Get(j.Right)
	if !lok || !rok {
		return nil, fmt.Errorf("algebra: join %d missing child", j.Id)
	}
	leftIter, err := left.DeriveIterator(root)
	if err != nil {
		return nil, err
	}
	rightIter, err := right.DeriveIterator(root)
	if err != nil {
		return nil, err
	}
	leftHash, err := operator.Compile(j.LeftHash)
	if err != nil {
		return nil, fmt.Errorf("algebra: join %d left hash: %w", j.Id, err)
	}
	rightHash, err := operator.Compile(j.RightHash)
	if err != nil {
		return nil, fmt.Errorf("algebra: join %d right hash: %w", j.Id, err)
	}
	out := j.Out
	if out == nil {
		out = func(l, r value.Value) value.Value { return value.Array(l, r) }
	}
	return iter.NewJoin(leftIter, rightIter, leftHash, rightHash, out), nil
}

// Union drains each child in order, optionally deduplicating.
type Union struct {
	Id       ID
	Children []ID
	Dedup    bool
}

func NewUnion(children []ID, dedup bool) *Union { return &Union{Children: children, Dedup: dedup} }

func (u *Union) ID() ID { return u.Id }
func (u *Union) ReplaceID(old, new ID) {
	if u.Id == old {
		u.Id = new
	}
	for i, c := range u.Children {
		if c == old {
			u.Children[i] = new
		}
	}
}

func (u *Union) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	var l *layout.Layout
	for _, c := range u.Children {
		if n, ok := root.Get(c); ok {
			l = layout.Merge(l, n.DeriveInputLayout(root))
		}
	}
	if l == nil {
		return layout.AnyLayout()
	}
	return l
}

func (u *Union) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	return u.DeriveInputLayout(root)
}

func (u *Union) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	children := make([]iter.Iterator, 0, len(u.Children))
	for _, c := range u.Children {
		n, ok := root.Get(c)
		if !ok {
			return nil, fmt.Errorf("algebra: union %d missing child %d", u.Id, c)
		}
		ci, err := n.DeriveIterator(root)
		if err != nil {
			return nil, err
		}
		children = append(children, ci)
	}
	return iter.NewUnion(children, u.Dedup), nil
}
