package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"voxelforge.io/internal/sim/physics"
)

// Brain drives one NPC. Brains only touch their own body, so the jumping
// system may run them concurrently.
type Brain interface {
	Jump()
	Operate(target *Selection, body *physics.RigidBody, dt float64)
}

// HopBrain hops toward its target.
type HopBrain struct {
	JumpImpulse float64
	WalkImpulse float64

	wantJump bool
}

func NewHopBrain() *HopBrain { return &HopBrain{JumpImpulse: 8, WalkImpulse: 2} }

func (b *HopBrain) Jump() { b.wantJump = true }

func (b *HopBrain) Operate(target *Selection, body *physics.RigidBody, dt float64) {
	if b.wantJump && body.OnGround() {
		body.ApplyImpulse(mgl64.Vec3{0, b.JumpImpulse * body.Mass, 0})
		b.wantJump = false
	}
	if target == nil {
		return
	}
	d := target.Pos.Sub(body.Position())
	d[1] = 0
	if d.Len() < 1 {
		return
	}
	body.ApplyImpulse(d.Normalize().Mul(b.WalkImpulse * body.Mass))
}
