package station

import (
	"fmt"

	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/value"
)

// Transform wraps a compiled algebra plan (already optimized: the
// cheapest alternative of every Set has been selected) so a Platform can
// drive it fresh over each fired batch. Algebra nodes are cloned to
// produce iterators per spec.md §3's lifecycle note — here that means
// discarding the AlgebraRoot's reservoir cache before every firing so
// DeriveIterator builds a fresh IndexScan/ValueReservoir pair rather
// than reusing one already drained and closed by the previous firing.
type Transform struct {
	Root   *algebra.AlgebraRoot
	Top    algebra.ID
	Inputs []int
}

// NewTransform builds a Transform over the given optimized algebra root,
// reading from the given storage indices (the order a multi-input
// station's Join/Union expects them in).
func NewTransform(root *algebra.AlgebraRoot, top algebra.ID, inputs []int) *Transform {
	return &Transform{Root: root, Top: top, Inputs: inputs}
}

// Apply drains batch (keyed by storage index — index 0 for a
// single-input station, 0/1 for a two-sided Join) through a freshly
// derived iterator and returns every output Value produced.
func (tr *Transform) Apply(batch map[int][]value.Value) ([]value.Value, error) {
	tr.Root.Reservoirs = make(map[int]*iter.ValueReservoir, len(tr.Inputs))
	for _, idx := range tr.Inputs {
		tr.Root.Reservoir(idx, len(batch[idx])+1)
	}
	node, ok := tr.Root.Get(tr.Top)
	if !ok {
		return nil, fmt.Errorf("station: transform top node %d not found", tr.Top)
	}
	it, err := node.DeriveIterator(tr.Root)
	if err != nil {
		return nil, fmt.Errorf("station: derive iterator: %w", err)
	}

	for _, idx := range tr.Inputs {
		vals := batch[idx]
		// Buffer the whole batch: an iterator is free to never drain one
		// of its inputs (a pruned side of a plan), and the filler must
		// still terminate.
		res := tr.Root.Reservoir(idx, len(vals)+1)
		go func(vals []value.Value, res *iter.ValueReservoir) {
			for _, v := range vals {
				res.Push(v)
			}
			res.Close()
		}(vals, res)
	}

	var out []value.Value
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}
