package registry

// orderedSet keeps insertion order and ignores duplicate additions.
type orderedSet[T comparable] struct {
	items []T
	index map[T]int
}

func newOrderedSet[T comparable]() *orderedSet[T] {
	return &orderedSet[T]{index: make(map[T]int)}
}

func (s *orderedSet[T]) add(item T) bool {
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = len(s.items)
	s.items = append(s.items, item)
	return true
}

func (s *orderedSet[T]) remove(item T) bool {
	pos, ok := s.index[item]
	if !ok {
		return false
	}

	delete(s.index, item)
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
	return true
}

func (s *orderedSet[T]) snapshot() []T {
	if len(s.items) == 0 {
		return nil
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *orderedSet[T]) len() int {
	return len(s.items)
}
