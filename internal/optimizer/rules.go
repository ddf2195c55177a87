package optimizer

import (
	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/operator"
)

// Rule is (can_apply, apply) per spec.md §4.5: CanApply decides whether
// the node at id is a candidate, Apply produces one new alternative node
// (not yet registered with an id) that computes the same logical result.
type Rule interface {
	Name() string
	CanApply(root *algebra.AlgebraRoot, id algebra.ID) bool
	Apply(root *algebra.AlgebraRoot, id algebra.ID) (algebra.Node, bool)
}

// findMatch looks at id itself, and — if id is a Set — at each of its
// alternatives, returning the first node satisfying match. This lets a
// rule see through a Set the way "a Filter's input is a Set that
// contains another Filter" implies.
func findMatch(root *algebra.AlgebraRoot, id algebra.ID, match func(algebra.Node) bool) (algebra.Node, bool) {
	n, ok := root.Get(id)
	if !ok {
		return nil, false
	}
	if match(n) {
		return n, true
	}
	if set, ok := n.(*algebra.Set); ok {
		for _, alt := range set.Alternatives {
			if an, ok2 := root.Get(alt); ok2 && match(an) {
				return an, true
			}
		}
	}
	return nil, false
}

func isFilter(n algebra.Node) bool  { _, ok := n.(*algebra.Filter); return ok }
func isProject(n algebra.Node) bool { _, ok := n.(*algebra.Project); return ok }

// FilterMergeRule: a Filter whose input contains another Filter merges
// into a single Filter with an And'd condition, skipping the
// intermediate node.
type FilterMergeRule struct{}

func (FilterMergeRule) Name() string { return "FilterMerge" }

func (FilterMergeRule) CanApply(root *algebra.AlgebraRoot, id algebra.ID) bool {
	n, ok := root.Get(id)
	if !ok {
		return false
	}
	outer, ok := n.(*algebra.Filter)
	if !ok {
		return false
	}
	_, found := findMatch(root, outer.Child, isFilter)
	return found
}

func (FilterMergeRule) Apply(root *algebra.AlgebraRoot, id algebra.ID) (algebra.Node, bool) {
	outer := root.Nodes[id].(*algebra.Filter)
	inner, found := findMatch(root, outer.Child, isFilter)
	if !found {
		return nil, false
	}
	innerFilter := inner.(*algebra.Filter)
	merged := operator.NewAnd(outer.Cond, innerFilter.Cond)
	return algebra.NewFilter(innerFilter.Child, merged), true
}

// ProjectMergeRule: a Project whose input contains another Project
// composes the two projections via the OperatorMerger substitution in
// merger.go, skipping the intermediate node.
type ProjectMergeRule struct{}

func (ProjectMergeRule) Name() string { return "ProjectMerge" }

func (ProjectMergeRule) CanApply(root *algebra.AlgebraRoot, id algebra.ID) bool {
	n, ok := root.Get(id)
	if !ok {
		return false
	}
	outer, ok := n.(*algebra.Project)
	if !ok {
		return false
	}
	inner, found := findMatch(root, outer.Child, isProject)
	if !found {
		return false
	}
	_, mergeable := tryMerge(outer.Proj, inner.(*algebra.Project).Proj)
	return mergeable
}

func (ProjectMergeRule) Apply(root *algebra.AlgebraRoot, id algebra.ID) (algebra.Node, bool) {
	outer := root.Nodes[id].(*algebra.Project)
	inner, found := findMatch(root, outer.Child, isProject)
	if !found {
		return nil, false
	}
	innerProject := inner.(*algebra.Project)
	merged, ok := tryMerge(outer.Proj, innerProject.Proj)
	if !ok {
		return nil, false
	}
	return algebra.NewProject(innerProject.Child, merged), true
}

// DefaultRules is the core rule set run by Optimize.
func DefaultRules() []Rule { return []Rule{FilterMergeRule{}, ProjectMergeRule{}} }

func childrenOf(n algebra.Node) []algebra.ID {
	switch t := n.(type) {
	case *algebra.Filter:
		return []algebra.ID{t.Child}
	case *algebra.Project:
		return []algebra.ID{t.Child}
	case *algebra.Aggregate:
		return []algebra.ID{t.Child}
	case *algebra.Join:
		return []algebra.ID{t.Left, t.Right}
	case *algebra.Union:
		return append([]algebra.ID{}, t.Children...)
	case *algebra.VariableScan:
		return append([]algebra.ID{}, t.Inputs...)
	case *algebra.Set:
		return append([]algebra.ID{}, t.Alternatives...)
	default:
		return nil
	}
}

// Optimize walks the subtree rooted at id bottom-up, rewiring children
// that were themselves rewritten (via Node.ReplaceID, which already
// knows how to update each concrete type's child-id fields), then tries
// every rule against the node at id. Each rule that applies contributes
// a new alternative to a Set wrapping the original node — never
// replacing it — so later cost-based selection (AlgebraRoot.CalcCost)
// picks the cheapest at derive_iterator time. Returns the id the caller
// should now treat as this subtree's root (either id itself, or a new
// Set id if any rule fired).
func Optimize(root *algebra.AlgebraRoot, id algebra.ID, rules []Rule) algebra.ID {
	n, ok := root.Get(id)
	if !ok {
		return id
	}
	for _, c := range childrenOf(n) {
		newC := Optimize(root, c, rules)
		if newC != c {
			n.ReplaceID(c, newC)
		}
	}

	resultID := id
	for _, rule := range rules {
		if !rule.CanApply(root, resultID) {
			continue
		}
		newNode, ok := rule.Apply(root, resultID)
		if !ok {
			continue
		}
		newID := root.AddNode(newNode)
		if set, isSet := root.Nodes[resultID].(*algebra.Set); isSet {
			set.Add(newID)
			continue
		}
		setNode := algebra.NewSet(resultID, newID)
		resultID = root.AddNode(setNode)
	}
	return resultID
}
