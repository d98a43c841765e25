package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// encoder дописывает поля в формате protobuf
type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	e.uint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) float32(num protowire.Number, v float32) {
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
	e.b = protowire.AppendFixed32(e.b, math.Float32bits(v))
}

func (e *encoder) float64(num protowire.Number, v float64) {
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, math.Float64bits(v))
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// message вложенное сообщение
func (e *encoder) message(num protowire.Number, fn func(inner *encoder)) {
	var inner encoder
	fn(&inner)
	e.bytes(num, inner.b)
}

func (e *encoder) vec3f(num protowire.Number, v vec.Vec3Float) {
	e.message(num, func(in *encoder) {
		in.float64(1, v.X)
		in.float64(2, v.Y)
		in.float64(3, v.Z)
	})
}

func (e *encoder) chunk(num protowire.Number, c vec.ChunkCoord) {
	e.message(num, func(in *encoder) {
		in.sint(1, int64(c.X))
		in.sint(2, int64(c.Y))
		in.sint(3, int64(c.Z))
	})
}

func (e *encoder) column(num protowire.Number, mc vec.MapCoord) {
	e.message(num, func(in *encoder) {
		in.sint(1, int64(mc.X))
		in.sint(2, int64(mc.Y))
	})
}

func (e *encoder) yawPitch(num protowire.Number, yp ecs.YawPitch) {
	e.message(num, func(in *encoder) {
		in.float32(1, yp.Yaw)
		in.float32(2, yp.Pitch)
	})
}

// field одно разобранное поле
type field struct {
	num   protowire.Number
	typ   protowire.Type
	v     uint64
	bytes []byte
}

func (f field) sint() int64 { return protowire.DecodeZigZag(f.v) }
func (f field) float32() float32 { return math.Float32frombits(uint32(f.v)) }
func (f field) float64() float64 { return math.Float64frombits(f.v) }
func (f field) str() string { return string(f.bytes) }
func (f field) copyBytes() []byte { return append([]byte(nil), f.bytes...) }
func (f field) isBytes() bool { return f.typ == protowire.BytesType }

// parseFields обходит поля сообщения; неизвестные поля пропускаются вызывающим
func parseFields(data []byte, fn func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(data)
			f.v = uint64(v)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("поле %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func parseVec3f(data []byte) (vec.Vec3Float, error) {
	var v vec.Vec3Float
	err := parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			v.X = f.float64()
		case 2:
			v.Y = f.float64()
		case 3:
			v.Z = f.float64()
		}
		return nil
	})
	return v, err
}

func parseChunk(data []byte) (vec.ChunkCoord, error) {
	var c vec.ChunkCoord
	err := parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			c.X = int32(f.sint())
		case 2:
			c.Y = int32(f.sint())
		case 3:
			c.Z = int32(f.sint())
		}
		return nil
	})
	return c, err
}

func parseColumn(data []byte) (vec.MapCoord, error) {
	var mc vec.MapCoord
	err := parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			mc.X = int32(f.sint())
		case 2:
			mc.Y = int32(f.sint())
		}
		return nil
	})
	return mc, err
}

func parseYawPitch(data []byte) (ecs.YawPitch, error) {
	var yp ecs.YawPitch
	err := parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			yp.Yaw = f.float32()
		case 2:
			yp.Pitch = f.float32()
		}
		return nil
	})
	return yp, err
}
