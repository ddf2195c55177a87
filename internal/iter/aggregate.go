package iter

import (
	"github.com/switchyard/flow/internal/operator"
	"github.com/switchyard/flow/internal/value"
)

// AggSpec pairs a fresh-loader factory with the projection Handler that
// feeds it — one per aggregate expression (Count/Sum/Avg) in the
// output projection.
type AggSpec struct {
	Factory operator.LoaderFactory
	Proj    operator.Handler
}

// AggIter is the two-phase blocking aggregate: it must drain its entire
// child before yielding anything, since a group's final value isn't known
// until every row that could belong to it has been seen.
type AggIter struct {
	child      Iterator
	hasher     operator.Handler
	outputFunc operator.Handler
	aggSpecs   []AggSpec

	groups   map[string][]value.Value
	order    []string
	values   []value.Value
	cursor   int
	reloaded bool
}

func NewAggregate(child Iterator, hasher operator.Handler, aggs []AggSpec, outputFunc operator.Handler) *AggIter {
	return &AggIter{child: child, hasher: hasher, aggSpecs: aggs, outputFunc: outputFunc}
}

func (a *AggIter) Next() (value.Value, bool) {
	for {
		if a.cursor < len(a.values) {
			v := a.values[a.cursor]
			a.cursor++
			return v, true
		}
		if !a.reloaded {
			a.reload()
			continue
		}
		return value.Null(), false
	}
}

// reload drains the child iterator once, buckets rows by group-key hash,
// runs a fresh set of loaders per bucket, and assembles one output row
// per group: [group_key_sample, agg1.get(), agg2.get(), ...] where
// group_key_sample is the bucket's first raw row (values[0]) rather than
// the computed group key, so a projection referencing $0 sees the whole
// original row, not just the grouping expression's result.
func (a *AggIter) reload() {
	a.groups = map[string][]value.Value{}
	a.order = nil
	hashOf := map[string]value.Value{}

	for {
		v, ok := a.child.Next()
		if !ok {
			break
		}
		k := a.hasher(v)
		h := value.Hash(k)
		if _, seen := hashOf[h]; !seen {
			hashOf[h] = k
			a.order = append(a.order, h)
		}
		a.groups[h] = append(a.groups[h], v)
	}

	if len(a.order) == 0 {
		// Empty input still yields one row: a Null group-key slot plus
		// each aggregate's zero state (COUNT 0, SUM 0.0).
		endValues := make([]value.Value, 0, len(a.aggSpecs)+1)
		endValues = append(endValues, value.Null())
		for _, spec := range a.aggSpecs {
			endValues = append(endValues, spec.Factory().Get())
		}
		a.values = append(a.values, a.outputFunc(value.Array(endValues...)))
		a.reloaded = true
		return
	}

	for _, h := range a.order {
		bucket := a.groups[h]
		loaders := make([]operator.ValueLoader, len(a.aggSpecs))
		for i, spec := range a.aggSpecs {
			loaders[i] = spec.Factory()
		}
		for _, v := range bucket {
			for i, spec := range a.aggSpecs {
				loaders[i].Load(spec.Proj(v))
			}
		}

		endValues := make([]value.Value, 0, len(a.aggSpecs)+1)
		if len(bucket) > 0 {
			endValues = append(endValues, bucket[0])
		} else {
			endValues = append(endValues, value.Null())
		}
		for _, l := range loaders {
			endValues = append(endValues, l.Get())
		}
		a.values = append(a.values, a.outputFunc(value.Array(endValues...)))
	}

	a.reloaded = true
}
