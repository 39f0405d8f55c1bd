package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float64 }

func TestCreateDeleteReusesSlotWithNewGeneration(t *testing.T) {
	s := NewStore()
	a := s.Create()
	b := s.Create()
	require.Equal(t, 2, s.Len())

	require.True(t, s.Delete(a))
	assert.False(t, s.Alive(a))
	assert.False(t, s.Delete(a))

	c := s.Create()
	assert.Equal(t, a.Index, c.Index)
	assert.NotEqual(t, a.Generation, c.Generation)
	assert.True(t, s.Alive(c))
	assert.False(t, s.Alive(a))
	assert.Equal(t, []Entity{c, b}, s.Entities())
}

func TestDeleteClearsEveryStorage(t *testing.T) {
	s := NewStore()
	pos := NewStorage[position](s)
	names := NewStorage[string](s)

	e := s.Create()
	require.True(t, pos.Insert(e, position{1, 2}))
	require.True(t, names.Insert(e, "zombie"))
	require.Equal(t, 1, pos.Len())

	s.Delete(e)
	assert.Zero(t, pos.Len())
	assert.Zero(t, names.Len())

	reused := s.Create()
	assert.False(t, pos.Has(reused))
	_, ok := names.Get(reused)
	assert.False(t, ok)
}

func TestStaleHandleNeverResolves(t *testing.T) {
	s := NewStore()
	pos := NewStorage[position](s)

	old := s.Create()
	pos.Insert(old, position{1, 1})
	s.Delete(old)
	fresh := s.Create()
	pos.Insert(fresh, position{5, 5})

	assert.False(t, pos.Has(old))
	assert.Nil(t, pos.Ptr(old))
	assert.False(t, pos.Insert(old, position{9, 9}))
	v, ok := pos.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, position{5, 5}, v)
}

func TestEachVisitsInSlotOrderAndMutatesInPlace(t *testing.T) {
	s := NewStore()
	pos := NewStorage[position](s)
	var es []Entity
	for i := 0; i < 4; i++ {
		e := s.Create()
		es = append(es, e)
		if i != 2 {
			pos.Insert(e, position{X: float64(i)})
		}
	}

	var seen []Entity
	pos.Each(func(e Entity, p *position) {
		seen = append(seen, e)
		p.Y = 7
	})
	assert.Equal(t, []Entity{es[0], es[1], es[3]}, seen)
	p, _ := pos.Get(es[3])
	assert.Equal(t, position{3, 7}, p)

	require.True(t, pos.Remove(es[1]))
	assert.Equal(t, 2, pos.Len())
	assert.False(t, pos.Remove(es[1]))
}
