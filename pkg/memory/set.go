package memory

import "encoding/json"

// OrderedSet is an insertion-ordered set of strings. Adding an item that is
// already present is a no-op: the item keeps its original position.
//
// The zero value is an empty set ready to use.
type OrderedSet struct {
	items []string
	index map[string]struct{}
}

// NewOrderedSet returns a set holding items in first-occurrence order.
func NewOrderedSet(items ...string) OrderedSet {
	var s OrderedSet
	s.Add(items...)
	return s
}

// Add appends each item that is not already in the set and reports how many
// were added.
func (s *OrderedSet) Add(items ...string) int {
	if s.index == nil {
		s.index = make(map[string]struct{}, len(items))
	}
	added := 0
	for _, item := range items {
		if _, ok := s.index[item]; ok {
			continue
		}
		s.index[item] = struct{}{}
		s.items = append(s.items, item)
		added++
	}
	return added
}

// Has reports whether item is in the set.
func (s OrderedSet) Has(item string) bool {
	_, ok := s.index[item]
	return ok
}

// Len returns the number of distinct items.
func (s OrderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the items in insertion order. It never returns nil.
func (s OrderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Clone returns an independent copy of the set.
func (s OrderedSet) Clone() OrderedSet {
	return NewOrderedSet(s.items...)
}

func (s OrderedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

func (s *OrderedSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewOrderedSet(items...)
	return nil
}
