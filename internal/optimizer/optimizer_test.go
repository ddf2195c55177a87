package optimizer

import (
	"sort"
	"testing"

	"github.com/switchyard/flow/internal/algebra"
	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

func TestFilterMergeComposesConditionsWithAnd(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))

	inner := operator.NewEqual(operator.NewInput(), operator.NewInput())
	innerFilterID := root.AddNode(algebra.NewFilter(scanID, inner))

	outer := operator.NewNot(operator.NewInput())
	outerFilterID := root.AddNode(algebra.NewFilter(innerFilterID, outer))

	rule := FilterMergeRule{}
	if !rule.CanApply(root, outerFilterID) {
		t.Fatalf("expected FilterMerge to apply to a Filter-over-Filter chain")
	}
	newNode, ok := rule.Apply(root, outerFilterID)
	if !ok {
		t.Fatalf("expected Apply to succeed")
	}
	merged, ok := newNode.(*algebra.Filter)
	if !ok {
		t.Fatalf("expected a Filter, got %T", newNode)
	}
	if merged.Child != scanID {
		t.Fatalf("expected merged filter to skip straight to the scan, got child %d", merged.Child)
	}
	if merged.Cond.Op != operator.And {
		t.Fatalf("expected the merged condition to be an And, got %v", merged.Cond.Op)
	}
}

func TestFilterMergeSeesThroughSet(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	innerFilterID := root.AddNode(algebra.NewFilter(scanID, operator.NewEqual(operator.NewInput(), operator.NewInput())))
	altID := root.AddNode(algebra.NewProject(scanID, operator.NewInput()))
	setID := root.AddNode(algebra.NewSet(innerFilterID, altID))

	outerFilterID := root.AddNode(algebra.NewFilter(setID, operator.NewNot(operator.NewInput())))

	rule := FilterMergeRule{}
	if !rule.CanApply(root, outerFilterID) {
		t.Fatalf("expected FilterMerge to see the Filter alternative inside the Set")
	}
}

func TestProjectMergeComposesProjections(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))

	// inner: wraps each row as {a: $0, b: $0*2}
	inner := operator.NewDoc(
		operator.NewKeyValue(strPtr("a"), operator.NewInput()),
		operator.NewKeyValue(strPtr("b"), operator.NewMul(operator.NewInput(), operator.NewLiteral(value.Int(2)))),
	)
	innerProjID := root.AddNode(algebra.NewProject(scanID, inner))

	// outer: picks field "b" back out
	outer := operator.NewName("b")
	outerProjID := root.AddNode(algebra.NewProject(innerProjID, outer))

	rule := ProjectMergeRule{}
	if !rule.CanApply(root, outerProjID) {
		t.Fatalf("expected ProjectMerge to apply")
	}
	newNode, ok := rule.Apply(root, outerProjID)
	if !ok {
		t.Fatalf("expected Apply to succeed")
	}
	merged, ok := newNode.(*algebra.Project)
	if !ok {
		t.Fatalf("expected a Project, got %T", newNode)
	}
	if merged.Child != scanID {
		t.Fatalf("expected merged project to skip straight to the scan, got child %d", merged.Child)
	}
	if merged.Proj.Op != operator.Mul {
		t.Fatalf("expected the substituted expression to be the Mul, got %v", merged.Proj.Op)
	}
}

func TestProjectMergeDeclinesOnStructuralMismatch(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))

	// inner produces a bare scalar, not a Doc/Combine/Literal collection,
	// so an outer Name("b") reference cannot be resolved structurally.
	inner := operator.NewPlus(operator.NewInput(), operator.NewLiteral(value.Int(1)))
	innerProjID := root.AddNode(algebra.NewProject(scanID, inner))

	outer := operator.NewName("b")
	outerProjID := root.AddNode(algebra.NewProject(innerProjID, outer))

	rule := ProjectMergeRule{}
	if rule.CanApply(root, outerProjID) {
		t.Fatalf("expected ProjectMerge to decline when the inner shape can't supply a Name lookup")
	}
}

func TestOptimizeWrapsFiredRuleInASet(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	innerFilterID := root.AddNode(algebra.NewFilter(scanID, operator.NewEqual(operator.NewInput(), operator.NewInput())))
	outerFilterID := root.AddNode(algebra.NewFilter(innerFilterID, operator.NewNot(operator.NewInput())))

	resultID := Optimize(root, outerFilterID, DefaultRules())
	n, ok := root.Get(resultID)
	if !ok {
		t.Fatalf("expected the result id to resolve")
	}
	set, ok := n.(*algebra.Set)
	if !ok {
		t.Fatalf("expected Optimize to wrap the rewritten node in a Set, got %T", n)
	}
	found := false
	for _, alt := range set.Alternatives {
		if alt == outerFilterID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the Set to retain the original node as an alternative, got %v", set.Alternatives)
	}
	if len(set.Alternatives) < 2 {
		t.Fatalf("expected at least one rewritten alternative alongside the original, got %v", set.Alternatives)
	}
}

func TestOptimizeIsNoOpWhenNoRuleApplies(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	projID := root.AddNode(algebra.NewProject(scanID, operator.NewInput()))

	resultID := Optimize(root, projID, DefaultRules())
	if resultID != projID {
		t.Fatalf("expected no rewrite when no rule matches, got new id %d", resultID)
	}
}

// TestOptimizePreservesFilterSemantics checks the universal invariant:
// executing the optimized plan yields the same multiset as the original.
func TestOptimizePreservesFilterSemantics(t *testing.T) {
	root := algebra.NewAlgebraRoot()
	scanID := root.AddNode(algebra.NewIndexScan(0))
	innerFilterID := root.AddNode(algebra.NewFilter(scanID,
		operator.NewNot(operator.NewEqual(operator.NewInput(), operator.NewLiteral(value.Int(2))))))
	outerFilterID := root.AddNode(algebra.NewFilter(innerFilterID,
		operator.NewNot(operator.NewEqual(operator.NewInput(), operator.NewLiteral(value.Int(4))))))

	optimizedID := Optimize(root, outerFilterID, DefaultRules())

	input := []int64{1, 2, 3, 4, 5}
	original := execute(t, root, outerFilterID, input)
	optimized := execute(t, root, optimizedID, input)

	sort.Slice(original, func(i, j int) bool { return original[i] < original[j] })
	sort.Slice(optimized, func(i, j int) bool { return optimized[i] < optimized[j] })
	if len(original) != len(optimized) {
		t.Fatalf("multiset mismatch: original %v, optimized %v", original, optimized)
	}
	for i := range original {
		if original[i] != optimized[i] {
			t.Fatalf("multiset mismatch: original %v, optimized %v", original, optimized)
		}
	}
	want := []int64{1, 3, 5}
	if len(original) != len(want) {
		t.Fatalf("expected %v, got %v", want, original)
	}
}

// execute refills storage slot 0 with input and drains the iterator
// derived from id.
func execute(t *testing.T, root *algebra.AlgebraRoot, id algebra.ID, input []int64) []int64 {
	t.Helper()
	root.Reservoirs = map[int]*iter.ValueReservoir{}
	res := root.Reservoir(0, len(input)+1)
	for _, n := range input {
		res.Push(value.Int(n))
	}
	res.Close()

	n, ok := root.Get(id)
	if !ok {
		t.Fatalf("node %d not found", id)
	}
	it, err := n.DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	var out []int64
	for {
		v, more := it.Next()
		if !more {
			return out
		}
		out = append(out, v.AsInt())
	}
}

func strPtr(s string) *string { return &s }
