package world

import (
	"encoding/binary"
	"fmt"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

// ChunkVolume количество блоков в чанке
const ChunkVolume = vec.ChunkSize * vec.ChunkSize * vec.ChunkSize

// Chunk блоки одного чанка, индекс x + y*16 + z*256
type Chunk struct {
	Blocks [ChunkVolume]uint16
}

func index(l vec.LocalIndex) int {
	return int(l.X) + int(l.Y)*vec.ChunkSize + int(l.Z)*vec.ChunkSize*vec.ChunkSize
}

// Get возвращает материал блока
func (c *Chunk) Get(l vec.LocalIndex) uint16 {
	return c.Blocks[index(l)]
}

// Set записывает материал блока
func (c *Chunk) Set(l vec.LocalIndex, material uint16) {
	c.Blocks[index(l)] = material
}

// IsAir сообщает, что в чанке нет ни одного блока
func (c *Chunk) IsAir() bool {
	for _, b := range c.Blocks {
		if b != registry.Air {
			return false
		}
	}
	return true
}

// Clone возвращает независимую копию
func (c *Chunk) Clone() *Chunk {
	cp := *c
	return &cp
}

// marshal упаковывает блоки в little-endian; сжатие делает Store
func (c *Chunk) marshal() []byte {
	out := make([]byte, 0, ChunkVolume*2)
	for _, b := range c.Blocks {
		out = binary.LittleEndian.AppendUint16(out, b)
	}
	return out
}

func unmarshalChunk(data []byte) (*Chunk, error) {
	if len(data) != ChunkVolume*2 {
		return nil, fmt.Errorf("неверный размер данных чанка: %d", len(data))
	}
	c := &Chunk{}
	for i := range c.Blocks {
		c.Blocks[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return c, nil
}
