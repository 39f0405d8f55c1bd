// Package ecs is a small generational entity store with typed component
// storages. It is not safe for concurrent use; a world owns exactly one.
package ecs

import "fmt"

// Entity is a generational handle. A handle whose generation no longer
// matches its slot is stale and never resolves.
type Entity struct {
	Index      uint32
	Generation uint32
}

func (e Entity) String() string { return fmt.Sprintf("%d#%d", e.Index, e.Generation) }

type remover interface {
	remove(index uint32)
}

type Store struct {
	generations []uint32
	alive       []bool
	free        []uint32
	count       int
	storages    []remover
}

func NewStore() *Store { return &Store{} }

func (s *Store) Create() Entity {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.alive[idx] = true
		s.count++
		return Entity{Index: idx, Generation: s.generations[idx]}
	}
	idx := uint32(len(s.generations))
	s.generations = append(s.generations, 1)
	s.alive = append(s.alive, true)
	s.count++
	return Entity{Index: idx, Generation: 1}
}

// Delete removes e and all of its components. Deleting a stale handle is a no-op.
func (s *Store) Delete(e Entity) bool {
	if !s.Alive(e) {
		return false
	}
	for _, st := range s.storages {
		st.remove(e.Index)
	}
	s.alive[e.Index] = false
	s.generations[e.Index]++
	s.free = append(s.free, e.Index)
	s.count--
	return true
}

func (s *Store) Alive(e Entity) bool {
	return int(e.Index) < len(s.generations) && s.alive[e.Index] && s.generations[e.Index] == e.Generation
}

// Entities returns live handles in index order.
func (s *Store) Entities() []Entity {
	out := make([]Entity, 0, s.count)
	for i, ok := range s.alive {
		if ok {
			out = append(out, Entity{Index: uint32(i), Generation: s.generations[i]})
		}
	}
	return out
}

func (s *Store) Len() int { return s.count }

func (s *Store) handle(index uint32) Entity {
	return Entity{Index: index, Generation: s.generations[index]}
}
