package call

import "slices"

// dedupSet is a bounded, insertion-ordered set. When full, the oldest key is evicted.
type dedupSet[K comparable] struct {
	limit int
	keys  map[K]struct{}
	order []K
}

func newDedupSet[K comparable](limit int) *dedupSet[K] {
	return &dedupSet[K]{limit: limit, keys: make(map[K]struct{}, limit)}
}

// add inserts k and reports whether it was new.
func (s *dedupSet[K]) add(k K) bool {
	if _, ok := s.keys[k]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.keys[k] = struct{}{}
	s.order = append(s.order, k)
	return true
}

func (s *dedupSet[K]) has(k K) bool {
	_, ok := s.keys[k]
	return ok
}

// remove deletes k, if present.
func (s *dedupSet[K]) remove(k K) {
	if _, ok := s.keys[k]; !ok {
		return
	}
	delete(s.keys, k)
	s.order = slices.DeleteFunc(s.order, func(o K) bool { return o == k })
}

func (s *dedupSet[K]) len() int { return len(s.order) }

func (s *dedupSet[K]) reset() {
	clear(s.keys)
	s.order = s.order[:0]
}
