package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

type areas struct {
	gen world.AreaGenerator
}

func (a areas) FindAreaGenerator(name string) int {
	if a.gen.Name() == name {
		return 0
	}
	return -1
}

func (a areas) GetAreaData(mc vec.MapCoord, id int) (world.AreaData, bool) {
	if id != 0 {
		return world.AreaData{}, false
	}
	return a.gen.Generate(mc), true
}

func TestHeightmap_Deterministic(t *testing.T) {
	a := NewHeightmap(42, 0.01, 30, 50)
	b := NewHeightmap(42, 0.01, 30, 50)
	mc := vec.MapCoord{X: 3, Y: -7}
	assert.Equal(t, a.Generate(mc), b.Generate(mc), "один сид дает одну карту")

	data := a.Generate(mc)
	for _, h := range data {
		assert.InDelta(t, 50, float64(h), 60)
	}
}

func TestHeightmapTerrain_FillsBelowHeight(t *testing.T) {
	gen := HeightmapTerrain{Surface: 2, Fill: 1}
	lookup := areas{gen: Flat{Height: 20}}

	var chunk world.Chunk
	require.NoError(t, gen.Generate(vec.ChunkCoord{Z: 1}, &chunk, lookup))

	// Чанк z=1 покрывает блоки 16..31; рельеф до 19 включительно
	assert.Equal(t, uint16(1), chunk.Get(vec.LocalIndex{Z: 0}))
	assert.Equal(t, uint16(2), chunk.Get(vec.LocalIndex{Z: 3}))
	assert.Equal(t, registry.Air, chunk.Get(vec.LocalIndex{Z: 4}))

	var above world.Chunk
	require.NoError(t, gen.Generate(vec.ChunkCoord{Z: 2}, &above, lookup))
	assert.True(t, above.IsAir())
}

func TestFromSetup(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterMaterial(1, registry.Material{Name: "stone", Solid: true}))
	require.NoError(t, reg.RegisterMaterial(2, registry.Material{Name: "grass", Solid: true}))

	gens, terr, err := FromSetup(registry.TerrainSetup{
		Generator:       "flat",
		Base:            8,
		SurfaceMaterial: "grass",
		FillMaterial:    "stone",
	}, reg)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, HeightmapTerrain{Surface: 2, Fill: 1}, terr)

	_, _, err = FromSetup(registry.TerrainSetup{Generator: "caves"}, reg)
	assert.Error(t, err)
}
