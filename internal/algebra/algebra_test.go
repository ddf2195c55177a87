package algebra

import (
	"testing"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

func TestIndexScanDerivesIteratorFromReservoir(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	res := root.Reservoir(0, 4)
	res.Push(value.Int(42))
	res.Close()

	it, err := mustGet(root, scanID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	v, ok := it.Next()
	if !ok || v.AsInt() != 42 {
		t.Fatalf("expected 42, got %v ok=%v", v, ok)
	}
}

func TestScanResolvesByName(t *testing.T) {
	root := NewAlgebraRoot()
	root.NameIndex["events"] = 0
	scanID := root.AddNode(NewScan("events"))
	res := root.Reservoir(0, 4)
	res.Push(value.Int(7))
	res.Close()

	it, err := mustGet(root, scanID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	v, _ := it.Next()
	if v.AsInt() != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestFilterAndProjectCompose(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	res := root.Reservoir(0, 8)
	for _, n := range []int64{1, 2, 3, 4} {
		res.Push(value.Int(n))
	}
	res.Close()

	cond := operator.NewEqual(operator.NewInput(), operator.NewInput())
	filterID := root.AddNode(NewFilter(scanID, cond))
	root.Connect(filterID, scanID)

	proj := operator.NewMul(operator.NewInput(), operator.NewLiteral(value.Int(10)))
	projID := root.AddNode(NewProject(filterID, proj))
	root.Connect(projID, filterID)

	it, err := mustGet(root, projID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	var got []int64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 4 || got[0] != 10 {
		t.Fatalf("expected 4 rows scaled by 10, got %v", got)
	}
}

func TestJoinNodeDerivesMatchingIterator(t *testing.T) {
	root := NewAlgebraRoot()
	leftID := root.AddNode(NewIndexScan(0))
	rightID := root.AddNode(NewIndexScan(1))
	lres := root.Reservoir(0, 4)
	rres := root.Reservoir(1, 4)
	lres.Push(value.Int(1))
	lres.Push(value.Int(2))
	lres.Close()
	rres.Push(value.Int(2))
	rres.Push(value.Int(3))
	rres.Close()

	identity := operator.NewInput()
	joinID := root.AddNode(NewJoin(leftID, rightID, identity, identity))
	root.Connect(joinID, leftID)
	root.Connect(joinID, rightID)

	it, err := mustGet(root, joinID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	v, ok := it.Next()
	if !ok {
		t.Fatalf("expected a match")
	}
	pair := v.AsArray()
	if pair[0].AsInt() != 2 || pair[1].AsInt() != 2 {
		t.Fatalf("expected (2,2), got %v", pair)
	}
}

func TestAggregateSumsOverSingleGroup(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	res := root.Reservoir(0, 8)
	for _, n := range []int64{1, 2, 3} {
		res.Push(value.Int(n))
	}
	res.Close()

	sumExpr := operator.NewSum(operator.NewInput())
	aggID := root.AddNode(NewAggregate(scanID, sumExpr, nil))
	root.Connect(aggID, scanID)

	it, err := mustGet(root, aggID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	v, ok := it.Next()
	if !ok {
		t.Fatalf("expected one group result")
	}
	if v.AsInt() != 6 {
		t.Fatalf("expected sum 6, got %v", v)
	}
}

// TestAggregateGroupAndCount covers the "SELECT $0, COUNT(*) FROM $0
// GROUP BY $0" scenario: ["Hey","Hey","Hi"] becomes the multiset
// {["Hey",2], ["Hi",1]}, order unspecified.
func TestAggregateGroupAndCount(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	res := root.Reservoir(0, 8)
	for _, s := range []string{"Hey", "Hey", "Hi"} {
		res.Push(value.Text(s))
	}
	res.Close()

	fn := operator.NewCombine(operator.NewInput(), operator.NewCount())
	aggID := root.AddNode(NewAggregate(scanID, fn, operator.NewInput()))
	root.Connect(aggID, scanID)

	it, err := mustGet(root, aggID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	counts := map[string]int64{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		row := v.AsArray()
		if len(row) != 2 {
			t.Fatalf("expected [group, count] rows, got %v", row)
		}
		counts[row[0].AsText()] = row[1].AsInt()
	}
	if counts["Hey"] != 2 || counts["Hi"] != 1 {
		t.Fatalf("expected {Hey:2, Hi:1}, got %v", counts)
	}
}

// TestProjectUnwindsSplitResults covers the "SELECT * FROM UNWIND(SELECT
// SPLIT($0,'\s+') FROM $0)" scenario: two sentences become one word per
// row.
func TestProjectUnwindsSplitResults(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	res := root.Reservoir(0, 4)
	res.Push(value.Text("Hey there"))
	res.Push(value.Text("how are you"))
	res.Close()

	proj := operator.NewUnwind(operator.NewSplit(`\s+`, operator.NewInput()))
	projID := root.AddNode(NewProject(scanID, proj))
	root.Connect(projID, scanID)

	it, err := mustGet(root, projID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	var words []string
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		words = append(words, v.AsText())
	}
	want := []string{"Hey", "there", "how", "are", "you"}
	if len(words) != len(want) {
		t.Fatalf("expected %v, got %v", want, words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, words)
		}
	}
}

func TestUnionDrainsChildrenInOrder(t *testing.T) {
	root := NewAlgebraRoot()
	leftID := root.AddNode(NewIndexScan(0))
	rightID := root.AddNode(NewIndexScan(1))
	lres := root.Reservoir(0, 2)
	rres := root.Reservoir(1, 2)
	lres.Push(value.Int(1))
	lres.Close()
	rres.Push(value.Int(2))
	rres.Close()

	unionID := root.AddNode(NewUnion([]ID{leftID, rightID}, false))
	it, err := mustGet(root, unionID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	var got []int64
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestSetPicksCheapestAlternative(t *testing.T) {
	root := NewAlgebraRoot()
	scanID := root.AddNode(NewIndexScan(0))
	cheapID := root.AddNode(NewProject(scanID, operator.NewInput()))
	expensiveID := root.AddNode(NewJoin(scanID, scanID, operator.NewInput(), operator.NewInput()))

	setID := root.AddNode(NewSet(cheapID, expensiveID))
	set := mustGet(root, setID).(*Set)
	best, err := set.cheapest(root)
	if err != nil {
		t.Fatalf("cheapest error: %v", err)
	}
	if best != cheapID {
		t.Fatalf("expected the plain project to be cheaper, got %d want %d", best, cheapID)
	}
}

func TestVariableScanEnrichesThroughIter(t *testing.T) {
	root := NewAlgebraRoot()
	inputScanID := root.AddNode(NewIndexScan(0))
	inRes := root.Reservoir(0, 2)
	inRes.Push(value.Int(9))
	inRes.Close()

	varID := root.AddNode(NewVariableScan("v", []ID{inputScanID}))
	it, err := mustGet(root, varID).DeriveIterator(root)
	if err != nil {
		t.Fatalf("derive error: %v", err)
	}
	bare, ok := it.(*iter.BareVariableScanIter)
	if !ok {
		t.Fatalf("expected a bare variable scan iterator, got %T", it)
	}

	transformRes := iter.NewValueReservoir(1)
	transformRes.Push(value.Int(99))
	transformRes.Close()
	transformIter := iter.NewIndexScan(0, transformRes)

	enriched := bare.Enrich(map[string]iter.Transform{
		"v": {Iter: transformIter, Reservoirs: []*iter.ValueReservoir{transformRes}},
	})
	v, ok := enriched.Next()
	if !ok {
		t.Fatalf("expected a value")
	}
	origin, isWagon := v.WagonOrigin()
	if !isWagon || origin != "v" {
		t.Fatalf("expected wagon tagged 'v', got %v", v)
	}
}

func mustGet(root *AlgebraRoot, id ID) Node {
	n, ok := root.Get(id)
	if !ok {
		panic("test: node not found")
	}
	return n
}
