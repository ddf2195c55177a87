package algebra

import "math"

// CalcCost implements the cost model from spec.md §4.5: Scan = 1,
// Filter = k · child, Project = 0.5 · child, Join = |L| · |R|,
// Aggregate = |child| · log|child|, approximated here by substituting
// each operand's own computed cost for its unknown cardinality (the
// engine has no statistics catalogue, so cost is a structural proxy, not
// a row-count estimate). Set nodes take the minimum over alternatives.
func (r *AlgebraRoot) CalcCost(id ID) float64 {
	n, ok := r.Nodes[id]
	if !ok {
		return math.Inf(1)
	}
	switch t := n.(type) {
	case *Scan, *IndexScan, *Dual:
		return 1
	case *Filter:
		// k > 1: evaluating a condition over the child's rows costs more
		// than producing them, so a chain of filters costs more than one
		// merged filter and FilterMerge alternatives can actually win.
		const k = 2.0
		return k * r.CalcCost(t.Child)
	case *Project:
		return 0.5 * r.CalcCost(t.Child)
	case *Join:
		return r.CalcCost(t.Left) * r.CalcCost(t.Right)
	case *Aggregate:
		c := r.CalcCost(t.Child)
		if c < 2 {
			return c
		}
		return c * math.Log2(c)
	case *Union:
		var sum float64
		for _, c := range t.Children {
			sum += r.CalcCost(c)
		}
		return sum
	case *VariableScan:
		sum := 1.0
		for _, in := range t.Inputs {
			sum += r.CalcCost(in)
		}
		return sum
	case *Set:
		best := math.Inf(1)
		for _, alt := range t.Alternatives {
			if c := r.CalcCost(alt); c < best {
				best = c
			}
		}
		return best
	default:
		return 1
	}
}
