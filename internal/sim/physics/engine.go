package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const eps = 1e-8

// VoxelTest answers a registry question for the voxel at (vx, vy, vz).
type VoxelTest func(vx, vy, vz int) bool

// Hooks are invoked synchronously from Iterate.
type Hooks struct {
	OnCollide func(b *RigidBody, impacts mgl64.Vec3)
	OnStep    func(b *RigidBody, newY float64)
}

type Engine struct {
	Gravity          mgl64.Vec3
	MinBounceImpulse float64
	AirDrag          float64
	FluidDrag        float64
	FluidDensity     float64
}

func NewEngine(gravity, minBounceImpulse, airDrag, fluidDrag, fluidDensity float64) *Engine {
	return &Engine{
		Gravity:          mgl64.Vec3{0, gravity, 0},
		MinBounceImpulse: minBounceImpulse,
		AirDrag:          airDrag,
		FluidDrag:        fluidDrag,
		FluidDensity:     fluidDensity,
	}
}

// Iterate advances b by dt seconds against the voxel grid described by isSolid and
// isFluid. It touches nothing but b.
func (e *Engine) Iterate(b *RigidBody, dt float64, isSolid, isFluid VoxelTest, hooks Hooks) {
	if b.Asleep() {
		return
	}
	if b.Mass <= 0 {
		b.Velocity, b.Forces, b.Impulses = mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{}
		return
	}
	wasOnGround := b.OnGround()

	e.updateFluid(b, isFluid)

	gravity := e.Gravity.Mul(b.GravityMultiplier)
	accel := b.Forces.Mul(1 / b.Mass).Add(gravity)
	if b.InFluid && e.FluidDensity > 0 {
		buoyancy := gravity.Mul(-e.FluidDensity * b.RatioInFluid * b.AABB.Volume() / b.Mass)
		accel = accel.Add(buoyancy)
	}
	b.Velocity = b.Velocity.Add(accel.Mul(dt)).Add(b.Impulses.Mul(1 / b.Mass))
	b.Forces, b.Impulses = mgl64.Vec3{}, mgl64.Vec3{}

	if wasOnGround && b.Friction > 0 {
		k := math.Max(1-b.Friction*dt, 0)
		b.Velocity[0] *= k
		b.Velocity[2] *= k
	}

	drag := e.AirDrag
	if b.AirDrag >= 0 {
		drag = b.AirDrag
	}
	if b.InFluid {
		drag = e.FluidDrag
		if b.FluidDrag >= 0 {
			drag = b.FluidDrag
		}
		drag *= b.RatioInFluid
	}
	b.Velocity = b.Velocity.Mul(math.Max(1-drag*dt/b.Mass, 0))

	start := b.AABB
	dx := b.Velocity.Mul(dt)
	box := b.AABB
	b.Resting = [3]int{}
	var impacts, blocked mgl64.Vec3
	for _, axis := range [3]int{1, 0, 2} {
		d := dx[axis]
		moved, hit := sweepAxis(box, axis, d, isSolid)
		box = box.translateAxis(axis, moved)
		if !hit {
			continue
		}
		if d < 0 {
			b.Resting[axis] = -1
		} else {
			b.Resting[axis] = 1
		}
		impacts[axis] = -b.Velocity[axis]
		blocked[axis] = d - moved
		b.Velocity[axis] = 0
	}

	if b.AutoStep && b.Resting[1] == -1 && (b.Resting[0] != 0 || b.Resting[2] != 0) {
		if stepped, ok := tryAutoStep(box, blocked, isSolid); ok {
			box = stepped
			for _, axis := range [2]int{0, 2} {
				if b.Resting[axis] != 0 {
					b.Velocity[axis] = -impacts[axis]
					impacts[axis] = 0
					b.Resting[axis] = 0
				}
			}
			if hooks.OnStep != nil {
				hooks.OnStep(b, box.Min[1])
			}
		}
	}
	b.AABB = box

	if impacts != (mgl64.Vec3{}) {
		if hooks.OnCollide != nil {
			hooks.OnCollide(b, impacts)
		}
		if b.Restitution > 0 && impacts.Len() > e.MinBounceImpulse {
			b.Velocity = b.Velocity.Add(impacts.Mul(b.Restitution))
			for i := range b.Resting {
				if impacts[i] != 0 {
					b.Resting[i] = 0
				}
			}
		}
	}

	if box.Min.Sub(start.Min).LenSqr() < eps*eps && b.Velocity.LenSqr() < 1e-6 {
		b.SleepFrameCount--
	} else {
		b.SleepFrameCount = MaxSleepFrames
	}
}

// sweepAxis moves box along one axis by at most d, stopping at the first solid
// voxel layer. It returns the distance actually travelled and whether it was blocked.
func sweepAxis(box AABB, axis int, d float64, isSolid VoxelTest) (float64, bool) {
	if d == 0 {
		return 0, false
	}
	u, v := (axis+1)%3, (axis+2)%3
	uLo, uHi := int(math.Floor(box.Min[u]+eps)), int(math.Floor(box.Max[u]-eps))
	vLo, vHi := int(math.Floor(box.Min[v]+eps)), int(math.Floor(box.Max[v]-eps))

	layerSolid := func(layer int) bool {
		for i := uLo; i <= uHi; i++ {
			for j := vLo; j <= vHi; j++ {
				var c [3]int
				c[axis], c[u], c[v] = layer, i, j
				if isSolid(c[0], c[1], c[2]) {
					return true
				}
			}
		}
		return false
	}

	if d > 0 {
		first := int(math.Floor(box.Max[axis]-eps)) + 1
		last := int(math.Floor(box.Max[axis] + d - eps))
		for layer := first; layer <= last; layer++ {
			if layerSolid(layer) {
				return math.Min(float64(layer)-box.Max[axis], d), true
			}
		}
		return d, false
	}
	first := int(math.Floor(box.Min[axis]+eps)) - 1
	last := int(math.Floor(box.Min[axis] + d + eps))
	for layer := first; layer >= last; layer-- {
		if layerSolid(layer) {
			return math.Max(float64(layer+1)-box.Min[axis], d), true
		}
	}
	return d, false
}

// tryAutoStep lifts box by one voxel, replays the blocked horizontal motion and
// settles it back down. It fails when the lift or the replay is obstructed.
func tryAutoStep(box AABB, blocked mgl64.Vec3, isSolid VoxelTest) (AABB, bool) {
	up, hit := sweepAxis(box, 1, 1, isSolid)
	if hit {
		return box, false
	}
	lifted := box.translateAxis(1, up)
	for _, axis := range [2]int{0, 2} {
		if blocked[axis] == 0 {
			continue
		}
		moved, hit := sweepAxis(lifted, axis, blocked[axis], isSolid)
		if hit {
			return box, false
		}
		lifted = lifted.translateAxis(axis, moved)
	}
	down, _ := sweepAxis(lifted, 1, -1, isSolid)
	return lifted.translateAxis(1, down), true
}

func (e *Engine) updateFluid(b *RigidBody, isFluid VoxelTest) {
	b.InFluid, b.RatioInFluid = false, 0
	if isFluid == nil {
		return
	}
	vol := b.AABB.Volume()
	if vol <= 0 {
		return
	}
	lo, hi := b.AABB.Min, b.AABB.Max
	var submerged float64
	for x := int(math.Floor(lo[0])); x <= int(math.Floor(hi[0]-eps)); x++ {
		for y := int(math.Floor(lo[1])); y <= int(math.Floor(hi[1]-eps)); y++ {
			for z := int(math.Floor(lo[2])); z <= int(math.Floor(hi[2]-eps)); z++ {
				if !isFluid(x, y, z) {
					continue
				}
				cell := AABB{Min: mgl64.Vec3{float64(x), float64(y), float64(z)}, Max: mgl64.Vec3{float64(x + 1), float64(y + 1), float64(z + 1)}}
				submerged += b.AABB.IntersectionVolume(cell)
			}
		}
	}
	if submerged > 0 {
		b.InFluid = true
		b.RatioInFluid = math.Min(submerged/vol, 1)
	}
}
