// Package terrain содержит эталонные генераторы ландшафта.
package terrain

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

// Heightmap генератор карты высот на шуме Перлина
type Heightmap struct {
	noise     *perlin.Perlin
	scale     float64
	amplitude float64
	base      int
}

// NewHeightmap создает генератор карты высот.
// Высота точки = base + amplitude * шум(x*scale, y*scale).
func NewHeightmap(seed int64, scale, amplitude float64, base int) *Heightmap {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Heightmap{
		noise:     perlin.NewPerlin(alpha, beta, n, seed),
		scale:     scale,
		amplitude: amplitude,
		base:      base,
	}
}

func (h *Heightmap) Name() string { return world.HeightmapGenerator }

// Generate считает высоты для колонки 16x16
func (h *Heightmap) Generate(mc vec.MapCoord) world.AreaData {
	var data world.AreaData
	originX := int(mc.X) * vec.ChunkSize
	originY := int(mc.Y) * vec.ChunkSize
	for y := 0; y < vec.ChunkSize; y++ {
		for x := 0; x < vec.ChunkSize; x++ {
			// Noise2D возвращает значение примерно в [-1, 1]
			noise := h.noise.Noise2D(float64(originX+x)*h.scale, float64(originY+y)*h.scale)
			height := float64(h.base) + noise*h.amplitude
			data[x+y*vec.ChunkSize] = clampHeight(math.Round(height))
		}
	}
	return data
}

func clampHeight(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Flat карта высот с одинаковой высотой во всех точках
type Flat struct {
	Height int16
}

func (f Flat) Name() string { return world.HeightmapGenerator }

func (f Flat) Generate(vec.MapCoord) world.AreaData {
	var data world.AreaData
	for i := range data {
		data[i] = f.Height
	}
	return data
}
