package world

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

// DirMask набор видимых граней блока
type DirMask uint8

// Направления граней в порядке их перечисления
const (
	DirPosX DirMask = 1 << iota
	DirNegX
	DirPosY
	DirNegY
	DirPosZ
	DirNegZ
)

var directions = [6]struct {
	mask       DirMask
	dx, dy, dz int
}{
	{DirPosX, 1, 0, 0},
	{DirNegX, -1, 0, 0},
	{DirPosY, 0, 1, 0},
	{DirNegY, 0, -1, 0},
	{DirPosZ, 0, 0, 1},
	{DirNegZ, 0, 0, -1},
}

// Count количество видимых граней
func (d DirMask) Count() int {
	n := 0
	for ; d != 0; d &= d - 1 {
		n++
	}
	return n
}

// Face блок с хотя бы одной видимой гранью
type Face struct {
	Pos      vec.LocalIndex
	Material uint16
	Dirs     DirMask
}

// Surface видимая геометрия чанка
type Surface []Face

// FaceCount общее число видимых граней, равно длине Lightmap
func (s Surface) FaceCount() int {
	n := 0
	for _, f := range s {
		n += f.Dirs.Count()
	}
	return n
}

// Light освещенность одной грани
type Light struct {
	Sunlight uint8
	Ambient  uint8
}

// Lightmap освещенность граней в порядке перечисления поверхности
type Lightmap []Light

// blockLookup возвращает материал блока по мировым координатам
type blockLookup func(pos vec.Vec3) uint16

// extractSurface находит блоки, у которых сосед хотя бы по одной оси не закрывает грань
func extractSurface(c vec.ChunkCoord, blocks *Chunk, lookup blockLookup, reg *registry.Registry) Surface {
	var surface Surface
	origin := c.Origin()

	for z := 0; z < vec.ChunkSize; z++ {
		for y := 0; y < vec.ChunkSize; y++ {
			for x := 0; x < vec.ChunkSize; x++ {
				l := vec.LocalIndex{X: uint8(x), Y: uint8(y), Z: uint8(z)}
				m := blocks.Get(l)
				if m == registry.Air {
					continue
				}

				var dirs DirMask
				for _, d := range directions {
					nx, ny, nz := x+d.dx, y+d.dy, z+d.dz
					var neighbour uint16
					if inside(nx) && inside(ny) && inside(nz) {
						neighbour = blocks.Get(vec.LocalIndex{X: uint8(nx), Y: uint8(ny), Z: uint8(nz)})
					} else {
						neighbour = lookup(vec.Vec3{X: origin.X + nx, Y: origin.Y + ny, Z: origin.Z + nz})
					}
					if !reg.IsVisuallySolid(neighbour) {
						dirs |= d.mask
					}
				}
				if dirs != 0 {
					surface = append(surface, Face{Pos: l, Material: m, Dirs: dirs})
				}
			}
		}
	}
	return surface
}

func inside(v int) bool {
	return v >= 0 && v < vec.ChunkSize
}

// sunProbe на сколько блоков вверх ищется препятствие для солнечного света
const sunProbe = 2 * vec.ChunkSize

// computeLightmap считает освещенность каждой видимой грани.
// Солнечный свет полный, если над клеткой перед гранью нет непрозрачных блоков
// в пределах sunProbe; фоновый пропорционален числу открытых соседей этой клетки.
func computeLightmap(c vec.ChunkCoord, surface Surface, lookup blockLookup, reg *registry.Registry) Lightmap {
	lm := make(Lightmap, 0, surface.FaceCount())
	for _, f := range surface {
		pos := c.Block(f.Pos)
		emission := uint8(0)
		if m, ok := reg.Material(f.Material); ok {
			emission = m.LightEmission
		}
		for _, d := range directions {
			if f.Dirs&d.mask == 0 {
				continue
			}
			front := vec.Vec3{X: pos.X + d.dx, Y: pos.Y + d.dy, Z: pos.Z + d.dz}

			sun := uint8(255)
			for dz := 1; dz <= sunProbe; dz++ {
				if reg.IsVisuallySolid(lookup(vec.Vec3{X: front.X, Y: front.Y, Z: front.Z + dz})) {
					sun = 32
					break
				}
			}
			if d.mask == DirNegZ {
				sun /= 2
			}

			open := 0
			for _, n := range directions {
				if !reg.IsVisuallySolid(lookup(vec.Vec3{X: front.X + n.dx, Y: front.Y + n.dy, Z: front.Z + n.dz})) {
					open++
				}
			}
			ambient := 40*open + int(emission)
			if ambient > 255 {
				ambient = 255
			}
			lm = append(lm, Light{Sunlight: sun, Ambient: uint8(ambient)})
		}
	}
	return lm
}

// encode упаковывает поверхность: на каждый блок позиция (x|y<<4|z<<8), материал и маска граней
func (s Surface) encode() []byte {
	b := protowire.AppendVarint(nil, uint64(len(s)))
	for _, f := range s {
		packed := uint64(f.Pos.X) | uint64(f.Pos.Y)<<4 | uint64(f.Pos.Z)<<8
		b = protowire.AppendVarint(b, packed)
		b = protowire.AppendVarint(b, uint64(f.Material))
		b = append(b, byte(f.Dirs))
	}
	return b
}

func (l Lightmap) encode() []byte {
	b := make([]byte, 0, len(l)*2)
	for _, v := range l {
		b = append(b, v.Sunlight, v.Ambient)
	}
	return b
}

// DecodeSurface разбирает распакованную поверхность
func DecodeSurface(data []byte) (Surface, bool) {
	count, n := protowire.ConsumeVarint(data)
	if n < 0 || count > uint64(len(data)) {
		return nil, false
	}
	data = data[n:]
	s := make(Surface, 0, count)
	for i := uint64(0); i < count; i++ {
		packed, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, false
		}
		data = data[n:]
		m, n := protowire.ConsumeVarint(data)
		if n < 0 || len(data) <= n {
			return nil, false
		}
		dirs := data[n]
		data = data[n+1:]
		s = append(s, Face{
			Pos:      vec.LocalIndex{X: uint8(packed & 15), Y: uint8(packed >> 4 & 15), Z: uint8(packed >> 8 & 15)},
			Material: uint16(m),
			Dirs:     DirMask(dirs),
		})
	}
	return s, true
}
