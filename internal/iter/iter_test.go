package iter

import (
	"testing"

	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

func sliceIter(vs ...value.Value) *sliceIterT { return &sliceIterT{vs: vs} }

type sliceIterT struct {
	vs  []value.Value
	pos int
}

func (s *sliceIterT) Next() (value.Value, bool) {
	if s.pos >= len(s.vs) {
		return value.Null(), false
	}
	v := s.vs[s.pos]
	s.pos++
	return v, true
}

func TestValueReservoirPushAndDrain(t *testing.T) {
	r := NewValueReservoir(2)
	r.Push(value.Int(1))
	r.Push(value.Int(2))
	r.Close()
	scan := NewIndexScan(0, r)
	var got []int64
	for {
		v, ok := scan.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestDualYieldsOnce(t *testing.T) {
	d := NewDual()
	v, ok := d.Next()
	if !ok || v.AsInt() != 1 {
		t.Fatalf("expected (1, true), got (%v, %v)", v, ok)
	}
	if _, ok := d.Next(); ok {
		t.Fatalf("expected exhaustion after one value")
	}
}

func TestFilterYieldsOnlyTruthy(t *testing.T) {
	child := sliceIter(value.Int(1), value.Int(2), value.Int(3))
	cond := func(v value.Value) value.Value { return value.Bool(v.AsInt()%2 == 0) }
	f := NewFilter(child, cond)
	v, ok := f.Next()
	if !ok || v.AsInt() != 2 {
		t.Fatalf("expected 2, got %v ok=%v", v, ok)
	}
	if _, ok := f.Next(); ok {
		t.Fatalf("expected exhaustion")
	}
}

func TestProjectMapsOneToOne(t *testing.T) {
	child := sliceIter(value.Int(1), value.Int(2))
	p := NewProject(child, func(v value.Value) value.Value { return value.Int(v.AsInt() * 10) })
	v, _ := p.Next()
	if v.AsInt() != 10 {
		t.Fatalf("expected 10, got %v", v)
	}
}

func TestUnionPreservesChildOrder(t *testing.T) {
	u := NewUnion([]Iterator{sliceIter(value.Int(1)), sliceIter(value.Int(2), value.Int(3))}, false)
	var got []int64
	for {
		v, ok := u.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
}

func TestUnionDedupSkipsRepeats(t *testing.T) {
	u := NewUnion([]Iterator{sliceIter(value.Int(1), value.Int(1)), sliceIter(value.Int(1))}, true)
	var got []int64
	for {
		v, ok := u.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 deduped value, got %v", got)
	}
}

func TestUnwindFlattensArray(t *testing.T) {
	child := sliceIter(value.Array(value.Int(1), value.Int(2)))
	u := NewUnwind(child)
	var got []int64
	for {
		v, ok := u.Next()
		if !ok {
			break
		}
		got = append(got, v.AsInt())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestJoinYieldsMatchingPairs(t *testing.T) {
	left := sliceIter(value.Int(1), value.Int(2))
	right := sliceIter(value.Int(2), value.Int(3))
	identity := func(v value.Value) value.Value { return v }
	out := func(l, r value.Value) value.Value { return value.Array(l, r) }
	j := NewJoin(left, right, identity, identity, out)
	v, ok := j.Next()
	if !ok {
		t.Fatalf("expected a match")
	}
	pair := v.AsArray()
	if pair[0].AsInt() != 2 || pair[1].AsInt() != 2 {
		t.Fatalf("expected matching pair (2,2), got %v", pair)
	}
	if _, ok := j.Next(); ok {
		t.Fatalf("expected exhaustion after single match")
	}
}

func TestJoinMultiMatchYieldsAllCombinations(t *testing.T) {
	left := sliceIter(value.Int(5))
	right := sliceIter(value.Int(5), value.Int(5))
	identity := func(v value.Value) value.Value { return v }
	out := func(l, r value.Value) value.Value { return value.Array(l, r) }
	j := NewJoin(left, right, identity, identity, out)
	count := 0
	for {
		if _, ok := j.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 combinations, got %d", count)
	}
}

func TestAggregateGroupsAndSums(t *testing.T) {
	rows := []value.Value{
		groupRow("a", 1), groupRow("a", 2), groupRow("b", 3),
	}
	child := sliceIter(rows...)
	hasher := func(v value.Value) value.Value {
		k, _ := v.AsDict().Get("k")
		return k
	}
	factory, proj, _ := operator.CompileLoader(operator.NewSum(operator.NewInput()))
	sumProj := func(v value.Value) value.Value {
		n, _ := v.AsDict().Get("n")
		return proj(n)
	}
	out := func(v value.Value) value.Value { return v.AsArray()[1] }
	agg := NewAggregate(child, hasher, []AggSpec{{Factory: factory, Proj: sumProj}}, out)
	var sums []int64
	for {
		v, ok := agg.Next()
		if !ok {
			break
		}
		sums = append(sums, v.AsInt())
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 groups, got %v", sums)
	}
}

func TestAggregateEmptyInputYieldsNullAndZero(t *testing.T) {
	factory, proj, _ := operator.CompileLoader(operator.NewCount())
	hasher := func(v value.Value) value.Value { return value.Bool(true) }
	out := func(v value.Value) value.Value { return v }
	agg := NewAggregate(sliceIter(), hasher, []AggSpec{{Factory: factory, Proj: proj}}, out)
	v, ok := agg.Next()
	if !ok {
		t.Fatalf("expected a single row over empty input")
	}
	row := v.AsArray()
	if !row[0].IsNull() || row[1].AsInt() != 0 {
		t.Fatalf("expected [Null, 0], got %v", row)
	}
	if _, ok := agg.Next(); ok {
		t.Fatalf("expected exhaustion after the synthesized row")
	}
}

func groupRow(k string, n int64) value.Value {
	d := value.NewDict()
	d.Set("k", value.Text(k))
	d.Set("n", value.Int(n))
	return value.DictVal(d)
}

func TestVariableScanPanicsBeforeEnrich(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic before enrich")
		}
	}()
	b := NewBareVariableScan("x", nil)
	b.Next()
}

func TestVariableScanEnrichWagonizesOutput(t *testing.T) {
	res := NewValueReservoir(1)
	res.Push(value.Int(1))
	res.Close()
	transformIter := NewIndexScan(0, res)
	b := NewBareVariableScan("myvar", []Iterator{sliceIter(value.Int(1))})
	enriched := b.Enrich(map[string]Transform{
		"myvar": {Iter: transformIter, Reservoirs: []*ValueReservoir{res}},
	})
	v, ok := enriched.Next()
	if !ok {
		t.Fatalf("expected a value")
	}
	origin, isWagon := v.WagonOrigin()
	if !isWagon || origin != "myvar" {
		t.Fatalf("expected wagon tagged with variable name, got %v", v)
	}
}
