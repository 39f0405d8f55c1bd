// Package kdtree is a static 3D kd-tree rebuilt from scratch every tick.
package kdtree

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"voxelforge.io/internal/sim/ecs"
)

type Item struct {
	Pos    mgl64.Vec3
	Entity ecs.Entity
	Player bool
}

// Filter restricts candidates during a query. A nil filter accepts everything.
type Filter func(Item) bool

func Players(it Item) bool  { return it.Player }
func Entities(it Item) bool { return !it.Player }

type node struct {
	item        Item
	axis        int
	left, right int
}

type Tree struct {
	items []Item
	nodes []node
	root  int
	built bool
}

func New() *Tree { return &Tree{root: -1} }

// Reset drops every item and keeps the backing slices.
func (t *Tree) Reset() {
	t.items = t.items[:0]
	t.nodes = t.nodes[:0]
	t.root = -1
	t.built = false
}

func (t *Tree) Insert(it Item) {
	t.items = append(t.items, it)
	t.built = false
}

func (t *Tree) Len() int { return len(t.items) }

// Build balances the tree. Queries build lazily if Insert was called since.
func (t *Tree) Build() {
	t.nodes = t.nodes[:0]
	scratch := make([]Item, len(t.items))
	copy(scratch, t.items)
	t.root = t.build(scratch, 0)
	t.built = true
}

func (t *Tree) build(items []Item, depth int) int {
	if len(items) == 0 {
		return -1
	}
	axis := depth % 3
	sort.SliceStable(items, func(i, j int) bool { return items[i].Pos[axis] < items[j].Pos[axis] })
	mid := len(items) / 2
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{item: items[mid], axis: axis})
	left := t.build(items[:mid], depth+1)
	right := t.build(items[mid+1:], depth+1)
	t.nodes[idx].left, t.nodes[idx].right = left, right
	return idx
}

func (t *Tree) ensureBuilt() {
	if !t.built {
		t.Build()
	}
}

// Nearest returns the closest accepted item within maxDist. maxDist <= 0 means unbounded.
func (t *Tree) Nearest(pos mgl64.Vec3, maxDist float64, filter Filter) (Item, bool) {
	t.ensureBuilt()
	best := math.Inf(1)
	if maxDist > 0 {
		best = maxDist * maxDist
	}
	var found Item
	var ok bool
	var visit func(i int)
	visit = func(i int) {
		if i < 0 {
			return
		}
		n := t.nodes[i]
		if filter == nil || filter(n.item) {
			if d := n.item.Pos.Sub(pos).LenSqr(); d <= best {
				best, found, ok = d, n.item, true
			}
		}
		diff := pos[n.axis] - n.item.Pos[n.axis]
		near, far := n.left, n.right
		if diff > 0 {
			near, far = far, near
		}
		visit(near)
		if diff*diff <= best {
			visit(far)
		}
	}
	visit(t.root)
	return found, ok
}

// Within returns accepted items within radius, closest first.
func (t *Tree) Within(pos mgl64.Vec3, radius float64, filter Filter) []Item {
	t.ensureBuilt()
	r2 := radius * radius
	var out []Item
	var visit func(i int)
	visit = func(i int) {
		if i < 0 {
			return
		}
		n := t.nodes[i]
		if (filter == nil || filter(n.item)) && n.item.Pos.Sub(pos).LenSqr() <= r2 {
			out = append(out, n.item)
		}
		diff := pos[n.axis] - n.item.Pos[n.axis]
		if diff <= radius {
			visit(n.left)
		}
		if diff >= -radius {
			visit(n.right)
		}
	}
	visit(t.root)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pos.Sub(pos).LenSqr() < out[j].Pos.Sub(pos).LenSqr()
	})
	return out
}
