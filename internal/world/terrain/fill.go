package terrain

import (
	"fmt"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

// surfaceDepth толщина верхнего слоя
const surfaceDepth = 3

// HeightmapTerrain заполняет блоки ниже карты высот: верхние surfaceDepth блоков
// материалом поверхности, остальное материалом заполнения
type HeightmapTerrain struct {
	Surface uint16
	Fill    uint16
}

// Generate заполняет чанк по карте высот его колонки
func (t HeightmapTerrain) Generate(c vec.ChunkCoord, chunk *world.Chunk, areas world.AreaLookup) error {
	id := areas.FindAreaGenerator(world.HeightmapGenerator)
	if id < 0 {
		return fmt.Errorf("нет генератора %q", world.HeightmapGenerator)
	}
	heights, ok := areas.GetAreaData(c.Map(), id)
	if !ok {
		return fmt.Errorf("нет карты высот для колонки %s", c.Map())
	}

	baseZ := int(c.Z) * vec.ChunkSize
	for y := 0; y < vec.ChunkSize; y++ {
		for x := 0; x < vec.ChunkSize; x++ {
			top := int(heights.At(x, y))
			for z := 0; z < vec.ChunkSize; z++ {
				wz := baseZ + z
				if wz >= top {
					break
				}
				m := t.Fill
				if wz >= top-surfaceDepth {
					m = t.Surface
				}
				chunk.Set(vec.LocalIndex{X: uint8(x), Y: uint8(y), Z: uint8(z)}, m)
			}
		}
	}
	return nil
}

// FromSetup собирает генераторы по описанию игры
func FromSetup(setup registry.TerrainSetup, reg *registry.Registry) ([]world.AreaGenerator, world.TerrainGenerator, error) {
	var area world.AreaGenerator
	switch setup.Generator {
	case "", "heightmap":
		scale := setup.Scale
		if scale == 0 {
			scale = 0.01
		}
		amplitude := setup.Amplitude
		if amplitude == 0 {
			amplitude = 40
		}
		area = NewHeightmap(setup.Seed, scale, amplitude, setup.Base)
	case "flat":
		area = Flat{Height: int16(setup.Base)}
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("неизвестный генератор ландшафта %q", setup.Generator)
	}

	fill := reg.FindMaterial(setup.FillMaterial, registry.Air)
	surface := reg.FindMaterial(setup.SurfaceMaterial, fill)
	if fill == registry.Air {
		// Без материала заполнения генерируется только карта высот
		return []world.AreaGenerator{area}, nil, nil
	}
	return []world.AreaGenerator{area}, HeightmapTerrain{Surface: surface, Fill: fill}, nil
}
