package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelforge.io/internal/sim/ecs"
	"voxelforge.io/internal/sim/kdtree"
	"voxelforge.io/internal/sim/mathx"
	"voxelforge.io/internal/sim/physics"
)

// IDComp marks player-backed entities.
type IDComp struct{ ID string }

type NameComp struct{ Name string }

type RotationComp struct{ Quat mgl64.Quat }

type RigidBodyComp struct{ Body *physics.RigidBody }

// PhysComp opts a body into integration. Player bodies follow their client instead.
type PhysComp struct{}

// CurrChunkComp.Changed is one-shot: set by chunking, cleared by generation.
type CurrChunkComp struct {
	Val     mathx.Coords2
	Valid   bool
	Changed bool
}

type ViewRadiusComp struct{ Radius int }

type ETypeComp struct{ Type string }

type WalkTowardsComp struct {
	Pos    mgl64.Vec3
	Active bool
}

type BrainComp struct{ Brain Brain }

type AccessKind int

const (
	AccessAll AccessKind = iota
	AccessPlayer
	AccessEntity
)

func (k AccessKind) String() string {
	switch k {
	case AccessPlayer:
		return "PLAYER"
	case AccessEntity:
		return "ENTITY"
	default:
		return "ALL"
	}
}

type Selection struct {
	Pos    mgl64.Vec3
	Entity ecs.Entity
}

// Access is a tagged selection. The kind restricts which candidates search may
// pick; replacing the selection never changes the kind.
type Access struct {
	Kind      AccessKind
	Selection *Selection
}

func (a *Access) Select(s *Selection) { a.Selection = s }

func (a Access) filter(self ecs.Entity) kdtree.Filter {
	return func(it kdtree.Item) bool {
		if it.Entity == self {
			return false
		}
		switch a.Kind {
		case AccessPlayer:
			return it.Player
		case AccessEntity:
			return !it.Player
		}
		return true
	}
}

type TargetComp struct{ Access }

type LookAtComp struct{ Access }

type components struct {
	ids        *ecs.Storage[IDComp]
	names      *ecs.Storage[NameComp]
	rotations  *ecs.Storage[RotationComp]
	bodies     *ecs.Storage[RigidBodyComp]
	phys       *ecs.Storage[PhysComp]
	currChunks *ecs.Storage[CurrChunkComp]
	viewRadii  *ecs.Storage[ViewRadiusComp]
	etypes     *ecs.Storage[ETypeComp]
	walks      *ecs.Storage[WalkTowardsComp]
	brains     *ecs.Storage[BrainComp]
	targets    *ecs.Storage[TargetComp]
	lookAts    *ecs.Storage[LookAtComp]
}

func newComponents(s *ecs.Store) components {
	return components{
		ids:        ecs.NewStorage[IDComp](s),
		names:      ecs.NewStorage[NameComp](s),
		rotations:  ecs.NewStorage[RotationComp](s),
		bodies:     ecs.NewStorage[RigidBodyComp](s),
		phys:       ecs.NewStorage[PhysComp](s),
		currChunks: ecs.NewStorage[CurrChunkComp](s),
		viewRadii:  ecs.NewStorage[ViewRadiusComp](s),
		etypes:     ecs.NewStorage[ETypeComp](s),
		walks:      ecs.NewStorage[WalkTowardsComp](s),
		brains:     ecs.NewStorage[BrainComp](s),
		targets:    ecs.NewStorage[TargetComp](s),
		lookAts:    ecs.NewStorage[LookAtComp](s),
	}
}

// yawTowards rotates around +Y so that -Z faces from -> to.
func yawTowards(from, to mgl64.Vec3) mgl64.Quat {
	d := to.Sub(from)
	if d[0] == 0 && d[2] == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(math.Atan2(-d[0], -d[2]), mgl64.Vec3{0, 1, 0})
}

func quatArray(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}
