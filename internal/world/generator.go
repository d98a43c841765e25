package world

import "github.com/annel0/voxel-server/internal/vec"

// AreaData двумерные данные колонки 16x16, индекс x + y*16
type AreaData [vec.ChunkSize * vec.ChunkSize]int16

// At значение в локальной точке колонки
func (a *AreaData) At(x, y int) int16 {
	return a[x+y*vec.ChunkSize]
}

// Max наибольшее значение в колонке
func (a *AreaData) Max() int16 {
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// AreaGenerator источник именованных двумерных данных (например, карты высот)
type AreaGenerator interface {
	Name() string
	Generate(mc vec.MapCoord) AreaData
}

// TerrainGenerator заполняет блоки нового чанка.
// Может обращаться к данным областей через lookup.
type TerrainGenerator interface {
	Generate(c vec.ChunkCoord, chunk *Chunk, areas AreaLookup) error
}

// AreaLookup доступ генератора ландшафта к данным областей
type AreaLookup interface {
	FindAreaGenerator(name string) int
	GetAreaData(mc vec.MapCoord, id int) (AreaData, bool)
}

// ChunkPersistence часть постоянного хранилища, нужная миру
type ChunkPersistence interface {
	GetChunk(c vec.ChunkCoord) ([]byte, bool, error)
	PutChunk(c vec.ChunkCoord, data []byte) error
	GetHeight(mc vec.MapCoord) (int32, bool, error)
	PutHeight(mc vec.MapCoord, height int32) error
}

// HeightmapGenerator имя генератора, по которому вычисляется грубая высота
const HeightmapGenerator = "heightmap"
