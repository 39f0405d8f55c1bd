package physics

import "github.com/go-gl/mathgl/mgl64"

// MaxSleepFrames is how many quiet frames a body survives before it freezes.
const MaxSleepFrames = 10

// RigidBody is plain data. Callbacks are passed to Engine.Iterate, never stored here.
type RigidBody struct {
	AABB              AABB
	Mass              float64
	Friction          float64
	Restitution       float64
	GravityMultiplier float64
	AutoStep          bool
	// AirDrag and FluidDrag override the engine values when non-negative.
	AirDrag   float64
	FluidDrag float64

	Velocity mgl64.Vec3
	Forces   mgl64.Vec3
	Impulses mgl64.Vec3

	Resting         [3]int
	InFluid         bool
	RatioInFluid    float64
	SleepFrameCount int
}

func NewRigidBody(aabb AABB, mass, friction, restitution, gravityMultiplier float64, autoStep bool) *RigidBody {
	return &RigidBody{
		AABB:              aabb,
		Mass:              mass,
		Friction:          friction,
		Restitution:       restitution,
		GravityMultiplier: gravityMultiplier,
		AutoStep:          autoStep,
		AirDrag:           -1,
		FluidDrag:         -1,
		SleepFrameCount:   MaxSleepFrames,
	}
}

// Position is the centre of the body's box.
func (b *RigidBody) Position() mgl64.Vec3 { return b.AABB.Center() }

func (b *RigidBody) SetPosition(p mgl64.Vec3) {
	b.AABB = b.AABB.SetCenter(p)
	b.wake()
}

func (b *RigidBody) SetVelocity(v mgl64.Vec3) {
	b.Velocity = v
	b.wake()
}

func (b *RigidBody) ApplyForce(f mgl64.Vec3) {
	b.Forces = b.Forces.Add(f)
	b.wake()
}

func (b *RigidBody) ApplyImpulse(i mgl64.Vec3) {
	b.Impulses = b.Impulses.Add(i)
	b.wake()
}

func (b *RigidBody) Asleep() bool { return b.SleepFrameCount <= 0 }

func (b *RigidBody) OnGround() bool { return b.Resting[1] == -1 }

func (b *RigidBody) wake() { b.SleepFrameCount = MaxSleepFrames }
