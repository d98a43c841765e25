package vec

import "fmt"

// ChunkSize размер чанка в блоках по каждой оси
const ChunkSize = 16

// Vec3 представляет трехмерный вектор с целочисленными координатами (координаты блока)
type Vec3 struct {
	X int
	Y int
	Z int
}

// ChunkCoord адресует чанк в мире
type ChunkCoord struct {
	X, Y, Z int32
}

// LocalIndex позиция блока внутри чанка, каждая ось в диапазоне [0, ChunkSize)
type LocalIndex struct {
	X, Y, Z uint8
}

// DivFloor целочисленное деление с округлением вниз для отрицательных чисел
func DivFloor(x, d int) int {
	if x < 0 {
		return (x - d + 1) / d
	}
	return x / d
}

// ModFloor остаток, всегда неотрицательный
func ModFloor(x, d int) int {
	m := x % d
	if m < 0 {
		m += d
	}
	return m
}

// Chunk возвращает координаты чанка, содержащего блок
func (v Vec3) Chunk() ChunkCoord {
	return ChunkCoord{
		X: int32(DivFloor(v.X, ChunkSize)),
		Y: int32(DivFloor(v.Y, ChunkSize)),
		Z: int32(DivFloor(v.Z, ChunkSize)),
	}
}

// Local возвращает позицию блока внутри его чанка
func (v Vec3) Local() LocalIndex {
	return LocalIndex{
		X: uint8(ModFloor(v.X, ChunkSize)),
		Y: uint8(ModFloor(v.Y, ChunkSize)),
		Z: uint8(ModFloor(v.Z, ChunkSize)),
	}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// ToFloat переводит координаты блока в координаты его угла
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// Map возвращает колонку, в которой лежит чанк
func (c ChunkCoord) Map() MapCoord {
	return MapCoord{X: c.X, Y: c.Y}
}

// Add сдвигает координаты чанка
func (c ChunkCoord) Add(dx, dy, dz int32) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

// Origin возвращает мировые координаты блока (0,0,0) чанка
func (c ChunkCoord) Origin() Vec3 {
	return Vec3{
		X: int(c.X) * ChunkSize,
		Y: int(c.Y) * ChunkSize,
		Z: int(c.Z) * ChunkSize,
	}
}

// Block возвращает мировые координаты блока по локальному индексу
func (c ChunkCoord) Block(l LocalIndex) Vec3 {
	o := c.Origin()
	return Vec3{X: o.X + int(l.X), Y: o.Y + int(l.Y), Z: o.Z + int(l.Z)}
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// ManhattanDistance расстояние городских кварталов между двумя чанками
func ManhattanDistance(a, b ChunkCoord) int64 {
	return abs64(int64(a.X)-int64(b.X)) + abs64(int64(a.Y)-int64(b.Y)) + abs64(int64(a.Z)-int64(b.Z))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
