package algebra

import (
	"fmt"

	"github.com/switchyard/flow/internal/iter"
	"github.com/switchyard/flow/internal/layout"
)

// Set holds a collection of algebra alternatives that compute the same
// logical result at potentially different cost. The optimizer appends to
// Alternatives (never replaces); AlgebraRoot.CalcCost picks the cheapest
// at derive_iterator time.
type Set struct {
	Id           ID
	Alternatives []ID
	cachedCost   *float64
}

func NewSet(alternatives ...ID) *Set { return &Set{Alternatives: alternatives} }

func (s *Set) ID() ID { return s.Id }
func (s *Set) ReplaceID(old, new ID) {
	if s.Id == old {
		s.Id = new
	}
	for i, a := range s.Alternatives {
		if a == old {
			s.Alternatives[i] = new
		}
	}
}

// Add appends a new alternative if it isn't already present (by id),
// invalidating the cached cost.
func (s *Set) Add(alt ID) {
	for _, a := range s.Alternatives {
		if a == alt {
			return
		}
	}
	s.Alternatives = append(s.Alternatives, alt)
	s.cachedCost = nil
}

func (s *Set) cheapest(root *AlgebraRoot) (ID, error) {
	if len(s.Alternatives) == 0 {
		return 0, fmt.Errorf("algebra: set %d has no alternatives", s.Id)
	}
	best := s.Alternatives[0]
	bestCost := root.CalcCost(best)
	for _, alt := range s.Alternatives[1:] {
		c := root.CalcCost(alt)
		if c < bestCost {
			best, bestCost = alt, c
		}
	}
	return best, nil
}

func (s *Set) DeriveInputLayout(root *AlgebraRoot) *layout.Layout {
	best, err := s.cheapest(root)
	if err != nil {
		return layout.AnyLayout()
	}
	if n, ok := root.Get(best); ok {
		return n.DeriveInputLayout(root)
	}
	return layout.AnyLayout()
}

func (s *Set) DeriveOutputLayout(root *AlgebraRoot, inputs map[string]*layout.Layout) *layout.Layout {
	best, err := s.cheapest(root)
	if err != nil {
		return layout.AnyLayout()
	}
	if n, ok := root.Get(best); ok {
		return n.DeriveOutputLayout(root, inputs)
	}
	return layout.AnyLayout()
}

func (s *Set) DeriveIterator(root *AlgebraRoot) (iter.Iterator, error) {
	best, err := s.cheapest(root)
	if err != nil {
		return nil, err
	}
	n, ok := root.Get(best)
	if !ok {
		return nil, fmt.Errorf("algebra: set %d alternative %d missing", s.Id, best)
	}
	return n.DeriveIterator(root)
}
