package physics

import (
	"math"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

const (
	Gravity          = 9.81 // м/с²
	TerminalVelocity = 50.0
	WalkSpeed        = 4.5 // скорость при полном намерении движения
	WalkAcceleration = 10.0
	GroundFriction   = 8.0
	AirDrag          = 0.5
)

// step состояние одного подшага
type step struct {
	tx      *ecs.WriteTx
	terrain *terrainCache
	dt      float64
	// сущности над неизвестным рельефом в этом подшаге не двигаются
	held map[ecs.EntityID]struct{}
}

type body struct {
	id       ecs.EntityID
	pos, vel vec.Vec3Float
	v        ecs.View
}

func (s *step) bodies(components ...ecs.ComponentID) []body {
	var out []body
	s.tx.ForEach(func(id ecs.EntityID, v ecs.View) bool {
		pos, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CPosition)
		vel, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CVelocity)
		out = append(out, body{id: id, pos: pos, vel: vel, v: v})
		return false
	}, append([]ecs.ComponentID{ecs.CPosition, ecs.CVelocity}, components...)...)
	return out
}

func (s *step) setVelocity(id ecs.EntityID, vel vec.Vec3Float) {
	_ = s.tx.Set(id, ecs.CVelocity, vel)
}

func gravity(s *step) {
	for _, b := range s.bodies() {
		below := vec.Vec3Float{X: b.pos.X, Y: b.pos.Y, Z: b.pos.Z - 1}.Block()
		if !s.terrain.known(b.pos.Block()) || !s.terrain.known(below) {
			s.held[b.id] = struct{}{}
			if b.vel != (vec.Vec3Float{}) {
				s.setVelocity(b.id, vec.Vec3Float{})
			}
			continue
		}
		b.vel.Z = math.Max(b.vel.Z-Gravity*s.dt, -TerminalVelocity)
		s.setVelocity(b.id, b.vel)
	}
}

// walk подтягивает горизонтальную скорость к намерению движения
func walk(s *step) {
	k := math.Min(1, WalkAcceleration*s.dt)
	for _, b := range s.bodies(ecs.CWalk) {
		if _, ok := s.held[b.id]; ok {
			continue
		}
		intent, _ := ecs.ViewGet[vec.Vec3Float](b.v, ecs.CWalk)
		if isZero(intent) {
			continue
		}
		b.vel.X += (intent.X*WalkSpeed - b.vel.X) * k
		b.vel.Y += (intent.Y*WalkSpeed - b.vel.Y) * k
		s.setVelocity(b.id, b.vel)
	}
}

func motion(s *step) {
	for _, b := range s.bodies() {
		if _, ok := s.held[b.id]; ok || isZero(b.vel) {
			continue
		}
		_ = s.tx.Set(b.id, ecs.CPosition, b.pos.Add(b.vel.Mul(s.dt)))
	}
}

// friction тормозит сущности без намерения движения
func friction(s *step) {
	for _, b := range s.bodies(ecs.CBoundingBox) {
		if intent, ok := ecs.ViewGet[vec.Vec3Float](b.v, ecs.CWalk); ok && !isZero(intent) {
			continue
		}
		if b.vel.X == 0 && b.vel.Y == 0 {
			continue
		}
		half, _ := ecs.ViewGet[vec.Vec3Float](b.v, ecs.CBoundingBox)
		rate := AirDrag
		if onGround(s.terrain, b.pos, half) {
			rate = GroundFriction
		}
		f := math.Max(0, 1-rate*s.dt)
		b.vel.X *= f
		b.vel.Y *= f
		if math.Abs(b.vel.X) < 1e-3 && math.Abs(b.vel.Y) < 1e-3 {
			b.vel.X, b.vel.Y = 0, 0
		}
		s.setVelocity(b.id, b.vel)
	}
}

func isZero(v vec.Vec3Float) bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}
