package sync

import "slices"

// IDSet is a set of fissure ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids. Duplicate ids collapse.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]

	return ok
}

// Len returns the number of ids. A nil set has length zero.
func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

// Detect reports whether incoming differs meaningfully from known: the
// sizes differ, or some incoming id is not in known. Removals are only
// seen through the size check; a set that swaps one id for another of the
// same size is caught by the membership check, not by tracking removals.
func Detect(known, incoming IDSet) bool {
	if known.Len() != incoming.Len() {
		return true
	}

	for id := range incoming {
		if !known.Has(id) {
			return true
		}
	}

	return false
}
