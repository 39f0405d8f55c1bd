package ecs

// Storage holds one component type, indexed by entity slot. Iteration is
// always in ascending slot order.
type Storage[T any] struct {
	store   *Store
	data    []T
	present []bool
	count   int
}

// NewStorage registers a storage with s so entity deletion clears it.
func NewStorage[T any](s *Store) *Storage[T] {
	st := &Storage[T]{store: s}
	s.storages = append(s.storages, st)
	return st
}

func (st *Storage[T]) Insert(e Entity, v T) bool {
	if !st.store.Alive(e) {
		return false
	}
	for int(e.Index) >= len(st.data) {
		var zero T
		st.data = append(st.data, zero)
		st.present = append(st.present, false)
	}
	if !st.present[e.Index] {
		st.count++
	}
	st.data[e.Index] = v
	st.present[e.Index] = true
	return true
}

func (st *Storage[T]) Has(e Entity) bool {
	return st.store.Alive(e) && int(e.Index) < len(st.present) && st.present[e.Index]
}

func (st *Storage[T]) Get(e Entity) (T, bool) {
	if !st.Has(e) {
		var zero T
		return zero, false
	}
	return st.data[e.Index], true
}

// Ptr returns a pointer into the storage, valid until the next Insert.
func (st *Storage[T]) Ptr(e Entity) *T {
	if !st.Has(e) {
		return nil
	}
	return &st.data[e.Index]
}

func (st *Storage[T]) Remove(e Entity) bool {
	if !st.Has(e) {
		return false
	}
	st.remove(e.Index)
	return true
}

func (st *Storage[T]) remove(index uint32) {
	if int(index) >= len(st.present) || !st.present[index] {
		return
	}
	var zero T
	st.data[index] = zero
	st.present[index] = false
	st.count--
}

// Each calls fn for every entity holding the component. fn must not insert
// into or remove from this storage.
func (st *Storage[T]) Each(fn func(e Entity, v *T)) {
	for i, ok := range st.present {
		if ok {
			fn(st.store.handle(uint32(i)), &st.data[i])
		}
	}
}

func (st *Storage[T]) Len() int { return st.count }
