// Package algebra implements the logical query plan (C4 in spec.md
// §2/§3): Scan/IndexScan/VariableScan/Dual/Filter/Project/Aggregate/
// Join/Union/Set nodes held in an AlgebraRoot DAG keyed by integer id.
package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
)

// ID identifies a node within an AlgebraRoot.
type ID int64

// Node is implemented by every algebra variant. Each node derives its
// input layout (what it demands from its child), its output layout
// (what it produces given its inputs' layouts), and its physical
// iterator.
type Node interface {
	ID() ID
	ReplaceID(old, new ID)
	DeriveInputLayout(root *AlgebraRoot) *layout.Layout
	DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout
	DeriveIterator(root *AlgebraRoot) (iter.Iterator, error)
}

// AlgebraRoot owns every node of a plan by id, the ends frontier (the
// node ids that have no parent — the plan's terminal outputs), and the
// parent→children connections map used instead of Rc<RefCell> cycles.
type AlgebraRoot struct {
	Nodes       map[ID]Node
	Ends        []ID
	Connections map[ID]map[ID]bool

	// NameIndex resolves a Scan(name) to the storage index a plan linker
	// assigned it; IndexScan nodes address storage directly.
	NameIndex map[string]int
	// Reservoirs holds the ValueReservoir backing each storage index,
	// created lazily so every IndexScan referencing the same index
	// shares one reservoir.
	Reservoirs map[int]*iter.ValueReservoir

	nextID ID
}

// NewAlgebraRoot creates an empty DAG owner.
func NewAlgebraRoot() *AlgebraRoot {
	return &AlgebraRoot{
		Nodes:       make(map[ID]Node),
		Connections: make(map[ID]map[ID]bool),
		NameIndex:   make(map[string]int),
		Reservoirs:  make(map[int]*iter.ValueReservoir),
	}
}

// AddNode registers n under a freshly allocated id and returns it.
func (r *AlgebraRoot) AddNode(n Node) ID {
	r.nextID++
	id := r.nextID
	setNodeID(n, id)
	r.Nodes[id] = n
	return id
}

// Connect records that child is a child of parent in the DAG.
func (r *AlgebraRoot) Connect(parent, child ID) {
	if r.Connections[parent] == nil {
		r.Connections[parent] = make(map[ID]bool)
	}
	r.Connections[parent][child] = true
}

// Children returns the ids directly connected under parent, in no
// particular order (callers needing an order store it on the node
// itself, e.g. Union.Children).
func (r *AlgebraRoot) Children(parent ID) []ID {
	out := make([]ID, 0, len(r.Connections[parent]))
	for id := range r.Connections[parent] {
		out = append(out, id)
	}
	return out
}

// GetChild returns the sole child of a single-input node (Filter,
// Project, Aggregate), or false if the node has no children registered
// in Connections — most single-input nodes instead carry their child id
// directly and don't need this, but it mirrors the original source's
// `root.get_child(id)` convenience.
func (r *AlgebraRoot) GetChild(parent ID) (Node, bool) {
	for id := range r.Connections[parent] {
		if n, ok := r.Nodes[id]; ok {
			return n, true
		}
	}
	return nil, false
}

// Get returns the node with the given id.
func (r *AlgebraRoot) Get(id ID) (Node, bool) {
	n, ok := r.Nodes[id]
	return n, ok
}

// Reservoir returns (creating if necessary) the shared ValueReservoir for
// a storage index, with the given buffer depth used only on first
// creation.
func (r *AlgebraRoot) Reservoir(index int, buffer int) *iter.ValueReservoir {
	if res, ok := r.Reservoirs[index]; ok {
		return res
	}
	res := iter.NewValueReservoir(buffer)
	r.Reservoirs[index] = res
	return res
}

// ReplaceID renumbers a node (used by the optimizer when splicing
// rewritten alternatives into the DAG) and fixes up the Connections map
// and Ends frontier to match.
func (r *AlgebraRoot) ReplaceID(old, new ID) {
	if n, ok := r.Nodes[old]; ok {
		n.ReplaceID(old, new)
		delete(r.Nodes, old)
		r.Nodes[new] = n
	}
	if kids, ok := r.Connections[old]; ok {
		delete(r.Connections, old)
		r.Connections[new] = kids
	}
	for _, kids := range r.Connections {
		if kids[old] {
			delete(kids, old)
			kids[new] = true
		}
	}
	for i, e := range r.Ends {
		if e == old {
			r.Ends[i] = new
		}
	}
}

func setNodeID(n Node, id ID) {
	switch t := n.(type) {
	case *Scan:
		t.Id = id
	case *IndexScan:
		t.Id = id
	case *VariableScan:
		t.Id = id
	case *Dual:
		t.Id = id
	case *Filter:
		t.Id = id
	case *Project:
		t.Id = id
	case *Aggregate:
		t.Id = id
	case *Join:
		t.Id = id
	case *Union:
		t.Id = id
	case *Set:
		t.Id = id
	default:
		panic(fmt.Sprintf("algebra: unknown node type %T", n))
	}
}

// Scan is a logical named scan, resolved to a storage index via
// root.NameIndex at iterator-derivation time (unlike IndexScan, which
// already knows its index).
type Scan struct {
	Id   ID
	Name string
}

func NewScan(name string) *Scan { return &Scan{Name: name} }

func (s *Scan) ID() ID                  { return s.Id }
func (s *Scan) ReplaceID(old, new ID)   { if s.Id == old { s.Id = new } }
func (s *Scan) DeriveInputLayout(*AlgebraRoot) *layout.Layout { return layout.AnyLayout() }
func (s *Scan) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	if l, ok := inputs[s.Name]; ok {
		return l
	}
	return layout.AnyLayout()
}
func (s *Scan) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	idx, ok := root.NameIndex[s.Name]
	if !ok {
		return nil, fmt.Errorf("algebra: scan %q has no resolved storage index", s.Name)
	}
	return iter.NewIndexScan(idx, root.Reservoir(idx, 64)), nil
}

// IndexScan addresses a storage slot directly by index.
type IndexScan struct {
	Id    ID
	Index int
}

func NewIndexScan(index int) *IndexScan { return &IndexScan{Index: index} }

func (s *IndexScan) ID() ID                { return s.Id }
func (s *IndexScan) ReplaceID(old, new ID) { if s.Id == old { s.Id = new } }
func (s *IndexScan) DeriveInputLayout(*AlgebraRoot) *layout.Layout { return layout.AnyLayout() }
func (s *IndexScan) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	return layout.AnyLayout()
}
func (s *IndexScan) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	return iter.NewIndexScan(s.Index, root.Reservoir(s.Index, 64)), nil
}

// Dual produces Int(1) once; the left leaf of a sourceless aggregate.
type Dual struct{ Id ID }

func NewDual() *Dual { return &Dual{} }

func (d *Dual) ID() ID                { return d.Id }
func (d *Dual) ReplaceID(old, new ID) { if d.Id == old { d.Id = new } }
func (d *Dual) DeriveInputLayout(*AlgebraRoot) *layout.Layout  { return layout.AnyLayout() }
func (d *Dual) DeriveOutputLayout(*AlgebraRoot, map[string]*layout.Layout) *layout.Layout {
	l, _ := layout.Parse("i")
	return l
}
func (d *Dual) DeriveIterator(*AlgebraRoot) (iter.Iterator, error) { return iter.NewDual(), nil }
