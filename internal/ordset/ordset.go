// Package ordset wraps github.com/tidwall/btree's generic ordered
// containers so the rest of entremets gets deterministic, allocation-cheap
// iteration order for free instead of hand-sorting slices at every call
// site. This is the one dependency the teacher repo (mukeshjc/mvcc-isolation)
// already carries (see mvcc/database.go's btree.Map[uint64, Transaction]
// and btree.Set[uint64] usage); entremets needs the same shape in more
// places — the engine's tables and transactions, a table's cells keyed
// by RowID — so it is centralized here instead of re-importing
// tidwall/btree ad hoc in every package.
package ordset

import "github.com/tidwall/btree"

// Ordered mirrors the unexported type-set constraint that
// github.com/tidwall/btree's generic containers require of their key
// type, since btree does not export it for callers to reference.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 | ~string
}

// Set is an ordered set of comparable, orderable keys. Backed by a
// btree.Map[K, struct{}] rather than btree.Set[K] so Contains/Remove
// have the same Get/Delete semantics as Map, matching the access
// pattern every caller in this module needs (membership test, not
// just insert-then-iterate).
type Set[K Ordered] struct {
	tree btree.Map[K, struct{}]
}

func NewSet[K Ordered](items ...K) *Set[K] {
	s := &Set[K]{}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

func (s *Set[K]) Add(k K) { s.tree.Set(k, struct{}{}) }

func (s *Set[K]) Remove(k K) { s.tree.Delete(k) }

func (s *Set[K]) Contains(k K) bool {
	_, ok := s.tree.Get(k)
	return ok
}

func (s *Set[K]) Len() int { return s.tree.Len() }

// Slice returns the set's members in ascending order.
func (s *Set[K]) Slice() []K {
	out := make([]K, 0, s.tree.Len())
	iter := s.tree.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		out = append(out, iter.Key())
	}
	return out
}

func (s *Set[K]) ForEach(fn func(K)) {
	iter := s.tree.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		fn(iter.Key())
	}
}

func (s *Set[K]) Clone() *Set[K] {
	out := NewSet[K]()
	s.ForEach(func(k K) { out.Add(k) })
	return out
}

// Map is an ordered map with deterministic iteration order, used
// anywhere entremets would otherwise range over a Go map and need the
// result to be stable across runs (fingerprinting, trace rendering).
type Map[K Ordered, V any] struct {
	tree btree.Map[K, V]
}

func NewMap[K Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

func (m *Map[K, V]) Set(k K, v V) { m.tree.Set(k, v) }

func (m *Map[K, V]) Get(k K) (V, bool) { return m.tree.Get(k) }

func (m *Map[K, V]) Delete(k K) { m.tree.Delete(k) }

func (m *Map[K, V]) Len() int { return m.tree.Len() }

func (m *Map[K, V]) Keys() []K {
	out := make([]K, 0, m.tree.Len())
	iter := m.tree.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		out = append(out, iter.Key())
	}
	return out
}

func (m *Map[K, V]) ForEach(fn func(K, V)) {
	iter := m.tree.Iter()
	for ok := iter.First(); ok; ok = iter.Next() {
		fn(iter.Key(), iter.Value())
	}
}
