// Package iter implements the pull-based physical iterators the engine
// compiles an algebra tree down to: each Iterator consumes nothing but
// exposes Next() (Value, bool) — one Value at a time, false once
// exhausted — so stations drive them row-by-row without materializing
// an upstream batch.
package iter

import (
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

// Iterator is the physical plan's execution unit.
type Iterator interface {
	Next() (value.Value, bool)
}

// ValueReservoir is the external storage slot a scheduler pushes Trains'
// Values into, and an IndexScan iterator drains from. It is channel-based
// so a station's producer goroutine and its iterator's consumer goroutine
// can run independently; Close signals end-of-input.
type ValueReservoir struct {
	ch chan value.Value
}

// NewValueReservoir creates a reservoir with the given buffer depth.
func NewValueReservoir(buffer int) *ValueReservoir {
	return &ValueReservoir{ch: make(chan value.Value, buffer)}
}

// Push enqueues a Value. Blocks if the reservoir's buffer is full —
// this is the engine's backpressure mechanism at the storage boundary.
func (r *ValueReservoir) Push(v value.Value) { r.ch <- v }

// Close signals that no further Values will be pushed.
func (r *ValueReservoir) Close() { close(r.ch) }

// Next drains one Value, blocking until one is available or the
// reservoir is closed and drained.
func (r *ValueReservoir) Next() (value.Value, bool) {
	v, ok := <-r.ch
	return v, ok
}

// IndexScanIter exposes reservoir i as an Iterator. get_storages-style
// callers collect the Reservoir directly for construction.
type IndexScanIter struct {
	Index     int
	Reservoir *ValueReservoir
}

func NewIndexScan(index int, r *ValueReservoir) *IndexScanIter {
	return &IndexScanIter{Index: index, Reservoir: r}
}

func (s *IndexScanIter) Next() (value.Value, bool) { return s.Reservoir.Next() }

// DualIter yields Int(1) exactly once — the left leaf of a sourceless
// aggregate such as `count()` with no explicit FROM.
type DualIter struct{ done bool }

func NewDual() *DualIter { return &DualIter{} }

func (d *DualIter) Next() (value.Value, bool) {
	if d.done {
		return value.Null(), false
	}
	d.done = true
	return value.Int(1), true
}

// FilterIter wraps a child and a compiled condition, yielding only rows
// whose condition coerces truthy.
type FilterIter struct {
	Child Iterator
	Cond  operator.Handler
}

func NewFilter(child Iterator, cond operator.Handler) *FilterIter {
	return &FilterIter{Child: child, Cond: cond}
}

func (f *FilterIter) Next() (value.Value, bool) {
	for {
		v, ok := f.Child.Next()
		if !ok {
			return value.Null(), false
		}
		if value.Truthy(f.Cond(v)) {
			return v, true
		}
	}
}

// ProjectIter wraps a child and a compiled projection: a straight 1:1 map.
type ProjectIter struct {
	Child Iterator
	Proj  operator.Handler
}

func NewProject(child Iterator, proj operator.Handler) *ProjectIter {
	return &ProjectIter{Child: child, Proj: proj}
}

func (p *ProjectIter) Next() (value.Value, bool) {
	v, ok := p.Child.Next()
	if !ok {
		return value.Null(), false
	}
	return p.Proj(v), true
}

// UnionIter drains each child iterator to exhaustion before advancing to
// the next, preserving child order, with an optional dedup set keyed by
// value.Hash.
type UnionIter struct {
	children []Iterator
	cursor   int
	dedup    bool
	seen     map[string]bool
}

func NewUnion(children []Iterator, dedup bool) *UnionIter {
	u := &UnionIter{children: children, dedup: dedup}
	if dedup {
		u.seen = make(map[string]bool)
	}
	return u
}

func (u *UnionIter) Next() (value.Value, bool) {
	for u.cursor < len(u.children) {
		v, ok := u.children[u.cursor].Next()
		if !ok {
			u.cursor++
			continue
		}
		if u.dedup {
			h := value.Hash(v)
			if u.seen[h] {
				continue
			}
			u.seen[h] = true
		}
		return v, true
	}
	return value.Null(), false
}

// UnwindIter flattens one incoming Value per step into zero or more
// outgoing Values: arrays yield elements, dicts yield values in key
// order, wagons unwrap and recurse, scalars yield themselves.
type UnwindIter struct {
	Child Iterator
	queue []value.Value
}

func NewUnwind(child Iterator) *UnwindIter { return &UnwindIter{Child: child} }

func (u *UnwindIter) Next() (value.Value, bool) {
	for len(u.queue) == 0 {
		v, ok := u.Child.Next()
		if !ok {
			return value.Null(), false
		}
		u.queue = expand(v)
	}
	v := u.queue[0]
	u.queue = u.queue[1:]
	return v, true
}

func expand(v value.Value) []value.Value {
	if origin, ok := v.WagonOrigin(); ok {
		_ = origin
		return expand(v.Unwrap())
	}
	switch v.Kind() {
	case value.KindArray:
		return append([]value.Value{}, v.AsArray()...)
	case value.KindDict:
		var out []value.Value
		v.AsDict().Range(func(_ string, dv value.Value) { out = append(out, dv) })
		return out
	default:
		return []value.Value{v}
	}
}
