package indicator

import "sort"

// Set is a set of indicator values. The zero value is not usable; use NewSet.
type Set struct {
	m map[string]Algorithm
}

// NewSet returns a set holding inds.
func NewSet(inds ...Indicator) *Set {
	s := &Set{m: make(map[string]Algorithm, len(inds))}
	for _, ind := range inds {
		s.Add(ind)
	}
	return s
}

// Add inserts ind and reports whether it was new.
func (s *Set) Add(ind Indicator) bool {
	if _, ok := s.m[ind.Value]; ok {
		return false
	}
	s.m[ind.Value] = ind.Algorithm
	return true
}

// Contains reports whether value is in the set.
func (s *Set) Contains(value string) bool {
	_, ok := s.m[value]
	return ok
}

// Len returns the number of indicators.
func (s *Set) Len() int { return len(s.m) }

// Sorted returns the values of algorithm a in ascending order. An empty a returns every value.
func (s *Set) Sorted(a Algorithm) []string {
	out := make([]string, 0, len(s.m))
	for v, algo := range s.m {
		if a == "" || algo == a {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns how many indicators of algorithm a the set holds.
func (s *Set) Count(a Algorithm) int {
	n := 0
	for _, algo := range s.m {
		if algo == a {
			n++
		}
	}
	return n
}
