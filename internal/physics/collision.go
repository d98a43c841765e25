package physics

import (
	"math"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

// TerrainOracle запросы к рельефу, которые нужны столкновениям
type TerrainOracle interface {
	SurfaceAt(c vec.ChunkCoord) (world.Surface, bool)
	IsAirChunk(c vec.ChunkCoord) bool
}

// WorldOracle отвечает по открытому доступу к миру
type WorldOracle struct {
	R *world.ReadAccess
}

func (o WorldOracle) SurfaceAt(c vec.ChunkCoord) (world.Surface, bool) { return o.R.GetSurface(c) }
func (o WorldOracle) IsAirChunk(c vec.ChunkCoord) bool                { return o.R.IsAirChunk(c) }

// terrainCache кэширует твердые блоки чанков на время одного пакета шагов
type terrainCache struct {
	oracle TerrainOracle
	chunks map[vec.ChunkCoord]chunkSolids
}

type chunkSolids struct {
	known  bool
	solids map[vec.LocalIndex]struct{}
}

func newTerrain(o TerrainOracle) *terrainCache {
	return &terrainCache{oracle: o, chunks: make(map[vec.ChunkCoord]chunkSolids)}
}

func (t *terrainCache) chunk(c vec.ChunkCoord) chunkSolids {
	if cs, ok := t.chunks[c]; ok {
		return cs
	}
	var cs chunkSolids
	switch {
	case t.oracle.IsAirChunk(c):
		cs.known = true
	default:
		if s, ok := t.oracle.SurfaceAt(c); ok {
			cs.known = true
			cs.solids = make(map[vec.LocalIndex]struct{}, len(s))
			for _, f := range s {
				cs.solids[f.Pos] = struct{}{}
			}
		}
	}
	t.chunks[c] = cs
	return cs
}

// known сообщает, известен ли рельеф в чанке блока
func (t *terrainCache) known(b vec.Vec3) bool {
	return t.chunk(b.Chunk()).known
}

// solid блоки видимой поверхности; неизвестный рельеф считается пустым,
// удержание над ним делает gravity
func (t *terrainCache) solid(b vec.Vec3) bool {
	cs := t.chunk(b.Chunk())
	_, ok := cs.solids[b.Local()]
	return ok
}

// box ограничивающий параллелепипед сущности: позиция стоит в центре нижней грани
type box struct {
	min, max vec.Vec3Float
}

func entityBox(pos, half vec.Vec3Float) box {
	return box{
		min: vec.Vec3Float{X: pos.X - half.X, Y: pos.Y - half.Y, Z: pos.Z},
		max: vec.Vec3Float{X: pos.X + half.X, Y: pos.Y + half.Y, Z: pos.Z + half.Z},
	}
}

const (
	collisionPasses = 4
	epsilon         = 1e-9
)

// terrainCollision выталкивает сущности из твердых блоков по оси
// наименьшего проникновения и гасит скорость вдоль этой оси
func terrainCollision(tx *ecs.WriteTx, t *terrainCache) {
	type item struct {
		id       ecs.EntityID
		pos, vel vec.Vec3Float
		half     vec.Vec3Float
	}
	var items []item
	tx.ForEach(func(id ecs.EntityID, v ecs.View) bool {
		pos, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CPosition)
		vel, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CVelocity)
		half, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CBoundingBox)
		items = append(items, item{id, pos, vel, half})
		return false
	}, ecs.CPosition, ecs.CVelocity, ecs.CBoundingBox)

	for _, it := range items {
		pos, vel := it.pos, it.vel
		moved := false
		for pass := 0; pass < collisionPasses; pass++ {
			if !resolveOnce(t, &pos, &vel, it.half) {
				break
			}
			moved = true
		}
		if moved {
			_ = tx.Set(it.id, ecs.CPosition, pos)
			_ = tx.Set(it.id, ecs.CVelocity, vel)
		}
	}
}

// resolveOnce устраняет самое глубокое пересечение; false если пересечений нет
func resolveOnce(t *terrainCache, pos, vel *vec.Vec3Float, half vec.Vec3Float) bool {
	b := entityBox(*pos, half)
	lo := b.min.Block()
	hi := vec.Vec3Float{X: b.max.X - epsilon, Y: b.max.Y - epsilon, Z: b.max.Z - epsilon}.Block()

	var (
		best float64
		axis = -1
		sign float64
	)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for z := lo.Z; z <= hi.Z; z++ {
				if !t.solid(vec.Vec3{X: x, Y: y, Z: z}) {
					continue
				}
				block := box{
					min: vec.Vec3Float{X: float64(x), Y: float64(y), Z: float64(z)},
					max: vec.Vec3Float{X: float64(x + 1), Y: float64(y + 1), Z: float64(z + 1)},
				}
				a, depth, s := penetration(b, block)
				if depth <= epsilon {
					continue
				}
				if axis < 0 || depth > best {
					best, axis, sign = depth, a, s
				}
			}
		}
	}
	if axis < 0 {
		return false
	}

	switch axis {
	case 0:
		pos.X += sign * best
		if vel.X*sign < 0 {
			vel.X = 0
		}
	case 1:
		pos.Y += sign * best
		if vel.Y*sign < 0 {
			vel.Y = 0
		}
	case 2:
		pos.Z += sign * best
		if vel.Z*sign < 0 {
			vel.Z = 0
		}
	}
	return true
}

// penetration ось наименьшего перекрытия, его глубина и направление выталкивания
func penetration(e, b box) (axis int, depth, sign float64) {
	overlap := func(emin, emax, bmin, bmax float64) (float64, float64) {
		d := math.Min(emax, bmax) - math.Max(emin, bmin)
		if (emin+emax)/2 < (bmin+bmax)/2 {
			return d, -1
		}
		return d, 1
	}
	ox, sx := overlap(e.min.X, e.max.X, b.min.X, b.max.X)
	oy, sy := overlap(e.min.Y, e.max.Y, b.min.Y, b.max.Y)
	oz, sz := overlap(e.min.Z, e.max.Z, b.min.Z, b.max.Z)
	if ox <= 0 || oy <= 0 || oz <= 0 {
		return -1, 0, 0
	}
	axis, depth, sign = 2, oz, sz
	if ox < depth {
		axis, depth, sign = 0, ox, sx
	}
	if oy < depth {
		axis, depth, sign = 1, oy, sy
	}
	return axis, depth, sign
}

// onGround стоит ли сущность на твердом блоке
func onGround(t *terrainCache, pos, half vec.Vec3Float) bool {
	z := int(math.Floor(pos.Z - 0.01))
	b := entityBox(pos, half)
	for x := int(math.Floor(b.min.X)); x <= int(math.Floor(b.max.X-epsilon)); x++ {
		for y := int(math.Floor(b.min.Y)); y <= int(math.Floor(b.max.Y-epsilon)); y++ {
			if t.solid(vec.Vec3{X: x, Y: y, Z: z}) {
				return true
			}
		}
	}
	return false
}
