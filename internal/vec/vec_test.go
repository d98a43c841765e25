package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3_ChunkAndLocal(t *testing.T) {
	// Положительные координаты
	p := Vec3{X: 17, Y: 3, Z: 31}
	assert.Equal(t, ChunkCoord{X: 1, Y: 0, Z: 1}, p.Chunk())
	assert.Equal(t, LocalIndex{X: 1, Y: 3, Z: 15}, p.Local())

	// Отрицательные координаты округляются вниз
	n := Vec3{X: -1, Y: -16, Z: -17}
	assert.Equal(t, ChunkCoord{X: -1, Y: -1, Z: -2}, n.Chunk())
	assert.Equal(t, LocalIndex{X: 15, Y: 0, Z: 15}, n.Local())

	// Обратное преобразование
	c := n.Chunk()
	assert.Equal(t, n, c.Block(n.Local()))
}

func TestManhattanDistance(t *testing.T) {
	a := ChunkCoord{X: 0, Y: 0, Z: 0}
	b := ChunkCoord{X: -3, Y: 4, Z: 10}
	assert.Equal(t, int64(17), ManhattanDistance(a, b))
	assert.Equal(t, ManhattanDistance(a, b), ManhattanDistance(b, a))
}

func TestVec3Float_Block(t *testing.T) {
	p := Vec3Float{X: -0.5, Y: 1.99, Z: 16.0}
	assert.Equal(t, Vec3{X: -1, Y: 1, Z: 16}, p.Block())
	assert.Equal(t, ChunkCoord{X: -1, Y: 0, Z: 1}, p.Chunk())
}
