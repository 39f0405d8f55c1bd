package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 1.0 / 60

func flatFloor(vx, vy, vz int) bool { return vy < 64 }

func noFluid(int, int, int) bool { return false }

func newPlayerBody(center mgl64.Vec3) *RigidBody {
	return NewRigidBody(NewAABB(center, 0.8, 1.8, 0.8), 1, 0, 0, 1, false)
}

func TestAABBBasics(t *testing.T) {
	a := NewAABB(mgl64.Vec3{0, 0, 0}, 2, 4, 2)
	assert.Equal(t, mgl64.Vec3{-1, -2, -1}, a.Min)
	assert.Equal(t, mgl64.Vec3{1, 2, 1}, a.Max)
	assert.InDelta(t, 16.0, a.Volume(), 1e-9)

	b := a.Translate(mgl64.Vec3{1, 0, 0})
	assert.True(t, a.Intersects(b))
	assert.InDelta(t, 8.0, a.IntersectionVolume(b), 1e-9)

	c := a.SetCenter(mgl64.Vec3{10, 10, 10})
	assert.False(t, a.Intersects(c))
	assert.Equal(t, mgl64.Vec3{10, 10, 10}, c.Center())
}

func TestBodySettlesOnFloor(t *testing.T) {
	e := NewEngine(-24, 0.5, 0.1, 0.4, 2)
	b := newPlayerBody(mgl64.Vec3{0.5, 100, 0.5})

	for i := 0; i < 600; i++ {
		e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	}

	assert.InDelta(t, 64.9, b.Position().Y(), 1e-6)
	assert.Equal(t, -1, b.Resting[1])
	assert.Zero(t, b.Velocity.Y())
	assert.True(t, b.Asleep())

	y := b.Position().Y()
	e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	assert.Equal(t, y, b.Position().Y())
}

func TestRestingBodyHasNoVerticalDrift(t *testing.T) {
	e := NewEngine(-24, 0.5, 0.1, 0.4, 2)
	b := newPlayerBody(mgl64.Vec3{0.5, 64.9, 0.5})

	for i := 0; i < 5; i++ {
		e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
		assert.Equal(t, -1, b.Resting[1])
		assert.Zero(t, b.Velocity.Y())
		assert.InDelta(t, 64.9, b.Position().Y(), 1e-9)
	}
}

func TestImpulseWakesSleepingBody(t *testing.T) {
	e := NewEngine(-24, 0.5, 0.1, 0.4, 2)
	b := newPlayerBody(mgl64.Vec3{0.5, 64.9, 0.5})
	for i := 0; i < MaxSleepFrames+2; i++ {
		e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	}
	require.True(t, b.Asleep())

	b.ApplyImpulse(mgl64.Vec3{0, 8, 0})
	assert.Equal(t, MaxSleepFrames, b.SleepFrameCount)

	e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	assert.Greater(t, b.Position().Y(), 64.9)
	assert.Zero(t, b.Resting[1])
}

func TestWallStopsHorizontalMotion(t *testing.T) {
	wall := func(vx, vy, vz int) bool { return vy < 64 || vx >= 3 }
	e := NewEngine(-24, 0.5, 0, 0, 2)
	b := newPlayerBody(mgl64.Vec3{0.5, 64.9, 0.5})

	var collisions int
	hooks := Hooks{OnCollide: func(*RigidBody, mgl64.Vec3) { collisions++ }}
	for i := 0; i < 120; i++ {
		b.Velocity[0] = 4
		e.Iterate(b, dt, wall, noFluid, hooks)
	}

	assert.InDelta(t, 3.0, b.AABB.Max.X(), 1e-9)
	assert.Equal(t, 1, b.Resting[0])
	assert.Positive(t, collisions)
}

func TestAutoStepClimbsOneBlock(t *testing.T) {
	step := func(vx, vy, vz int) bool { return vy < 64 || (vx >= 2 && vy == 64) }
	e := NewEngine(-24, 0.5, 0, 0, 2)
	b := NewRigidBody(NewAABB(mgl64.Vec3{0.5, 64.9, 0.5}, 0.8, 1.8, 0.8), 1, 0, 0, 1, true)

	var stepped bool
	hooks := Hooks{OnStep: func(_ *RigidBody, newY float64) {
		stepped = true
		assert.InDelta(t, 65.0, newY, 1e-9)
	}}
	for i := 0; i < 90; i++ {
		b.Velocity[0] = 2
		e.Iterate(b, dt, step, noFluid, hooks)
	}

	assert.True(t, stepped)
	assert.InDelta(t, 65.0, b.AABB.Min.Y(), 1e-9)
	assert.Greater(t, b.AABB.Max.X(), 2.0)
}

func TestAutoStepBlockedByTallWall(t *testing.T) {
	wall := func(vx, vy, vz int) bool { return vy < 64 || (vx >= 2 && vy < 70) }
	e := NewEngine(-24, 0.5, 0, 0, 2)
	b := NewRigidBody(NewAABB(mgl64.Vec3{0.5, 64.9, 0.5}, 0.8, 1.8, 0.8), 1, 0, 0, 1, true)

	for i := 0; i < 90; i++ {
		b.Velocity[0] = 2
		e.Iterate(b, dt, wall, noFluid, Hooks{})
	}
	assert.InDelta(t, 64.0, b.AABB.Min.Y(), 1e-9)
	assert.InDelta(t, 2.0, b.AABB.Max.X(), 1e-9)
}

func TestFluidRatioAndBuoyancy(t *testing.T) {
	water := func(vx, vy, vz int) bool { return vy < 70 }
	none := func(int, int, int) bool { return false }
	e := NewEngine(-24, 0.5, 0.1, 0.4, 2)

	full := newPlayerBody(mgl64.Vec3{0.5, 65, 0.5})
	e.Iterate(full, dt, none, water, Hooks{})
	assert.True(t, full.InFluid)
	assert.InDelta(t, 1.0, full.RatioInFluid, 1e-9)
	assert.Positive(t, full.Velocity.Y())

	half := newPlayerBody(mgl64.Vec3{0.5, 70, 0.5})
	e.Iterate(half, dt, none, water, Hooks{})
	assert.True(t, half.InFluid)
	assert.InDelta(t, 0.5, half.RatioInFluid, 1e-9)

	dry := newPlayerBody(mgl64.Vec3{0.5, 80, 0.5})
	e.Iterate(dry, dt, none, water, Hooks{})
	assert.False(t, dry.InFluid)
	assert.Zero(t, dry.RatioInFluid)
}

func TestBounceReflectsVelocity(t *testing.T) {
	e := NewEngine(-24, 0.5, 0, 0, 2)
	b := NewRigidBody(NewAABB(mgl64.Vec3{0.5, 65, 0.5}, 0.8, 1.8, 0.8), 1, 0, 0.5, 1, false)
	b.Velocity = mgl64.Vec3{0, -20, 0}

	e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	assert.Positive(t, b.Velocity.Y())
	assert.Zero(t, b.Resting[1])
}

func TestStaticBodyDoesNotMove(t *testing.T) {
	e := NewEngine(-24, 0.5, 0.1, 0.4, 2)
	b := NewRigidBody(NewAABB(mgl64.Vec3{0.5, 100, 0.5}, 1, 1, 1), 0, 0, 0, 1, false)
	b.ApplyForce(mgl64.Vec3{10, 0, 0})

	e.Iterate(b, dt, flatFloor, noFluid, Hooks{})
	assert.Equal(t, mgl64.Vec3{0.5, 100, 0.5}, b.Position())
	assert.Equal(t, mgl64.Vec3{}, b.Velocity)
	assert.Equal(t, mgl64.Vec3{}, b.Forces)
}
