package vec

import "fmt"

// MapCoord адресует колонку чанков (проекция ChunkCoord на плоскость XY)
type MapCoord struct {
	X, Y int32
}

// Add сдвигает координату колонки
func (m MapCoord) Add(dx, dy int32) MapCoord {
	return MapCoord{X: m.X + dx, Y: m.Y + dy}
}

// WithZ возвращает чанк колонки на указанной высоте
func (m MapCoord) WithZ(z int32) ChunkCoord {
	return ChunkCoord{X: m.X, Y: m.Y, Z: z}
}

func (m MapCoord) String() string {
	return fmt.Sprintf("(%d,%d)", m.X, m.Y)
}
