package operator

import (
	"fmt"

	"github.com/switchyard/flow/internal/value"
)

// ValueLoader accumulates a stream of Values into a single aggregate
// result. It is not a deep-copyable snapshot: Fresh returns a new loader
// of the same kind with its accumulator reset, the way a group-by
// station starts a clean accumulator per key rather than cloning the
// previous group's state.
type ValueLoader interface {
	Load(v value.Value)
	Get() value.Value
	Fresh() ValueLoader
}

// LoaderFactory builds a fresh ValueLoader. The Handler that extracts
// the value fed into it from each incoming row is returned separately
// by CompileLoader.
type LoaderFactory func() ValueLoader

// CompileLoader compiles an aggregate Operator (Count/Sum/Avg) into a
// LoaderFactory plus the Handler used to project each input row down to
// the scalar the loader accumulates.
func CompileLoader(op *Operator) (LoaderFactory, Handler, error) {
	switch op.Op {
	case Count:
		return func() ValueLoader { return &CountLoader{} }, func(value.Value) value.Value { return value.Null() }, nil
	case Sum:
		inner, err := Compile(op.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		return func() ValueLoader { return &SumLoader{} }, inner, nil
	case Avg:
		inner, err := Compile(op.Operands[0])
		if err != nil {
			return nil, nil, err
		}
		return func() ValueLoader { return &AvgLoader{} }, inner, nil
	default:
		return nil, nil, fmt.Errorf("operator: %d is not an aggregate operator", op.Op)
	}
}

// CountLoader counts the number of Loaded values regardless of content.
type CountLoader struct{ n int64 }

func (c *CountLoader) Load(value.Value) { c.n++ }
func (c *CountLoader) Get() value.Value { return value.Int(c.n) }
func (c *CountLoader) Fresh() ValueLoader { return &CountLoader{} }

// SumLoader accumulates a running sum via Value.Plus, so int/float mixing
// follows the same numeric-tower rules as scalar arithmetic.
type SumLoader struct {
	sum   value.Value
	empty bool
}

func (s *SumLoader) Load(v value.Value) {
	if s.sum.IsNull() && !s.empty {
		s.sum = v
		s.empty = true
		return
	}
	s.sum = value.Plus(s.sum, v)
}
func (s *SumLoader) Get() value.Value {
	if !s.empty {
		return value.FloatFrom64(0, 6)
	}
	return s.sum
}
func (s *SumLoader) Fresh() ValueLoader { return &SumLoader{} }

// AvgLoader tracks a running sum and count, dividing lazily in Get so
// intermediate Load calls never pay the division cost.
type AvgLoader struct {
	sum   value.Value
	count int64
}

func (a *AvgLoader) Load(v value.Value) {
	if a.count == 0 {
		a.sum = v
	} else {
		a.sum = value.Plus(a.sum, v)
	}
	a.count++
}
func (a *AvgLoader) Get() value.Value {
	if a.count == 0 {
		return value.FloatFrom64(0, 6)
	}
	return value.Div(a.sum, value.Int(a.count))
}
func (a *AvgLoader) Fresh() ValueLoader { return &AvgLoader{} }
