package ecs

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxel-server/internal/vec"
)

var (
	ErrUnknownComponent = errors.New("неизвестный компонент")
	ErrWrongType        = errors.New("неверный тип значения компонента")
	ErrTruncated        = errors.New("значение компонента обрезано")
)

// EncodeComponent сериализует значение компонента для сети и хранилища
func EncodeComponent(c ComponentID, v any) ([]byte, error) {
	if err := checkType(c, v); err != nil {
		return nil, err
	}

	var b []byte
	switch val := v.(type) {
	case vec.Vec3Float:
		b = protowire.AppendFixed64(b, math.Float64bits(val.X))
		b = protowire.AppendFixed64(b, math.Float64bits(val.Y))
		b = protowire.AppendFixed64(b, math.Float64bits(val.Z))
	case YawPitch:
		b = protowire.AppendFixed32(b, math.Float32bits(val.Yaw))
		b = protowire.AppendFixed32(b, math.Float32bits(val.Pitch))
	case Hotbar:
		b = protowire.AppendVarint(b, uint64(len(val)))
		for _, slot := range val {
			b = protowire.AppendVarint(b, uint64(slot.Type))
			b = protowire.AppendString(b, slot.Name)
		}
	case string:
		b = protowire.AppendString(b, val)
	}
	return b, nil
}

// DecodeComponent восстанавливает значение компонента
func DecodeComponent(c ComponentID, data []byte) (any, error) {
	switch c {
	case CPosition, CVelocity, CWalk, CBoundingBox:
		var f [3]float64
		for i := range f {
			u, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
			}
			f[i] = math.Float64frombits(u)
			data = data[n:]
		}
		return vec.Vec3Float{X: f[0], Y: f[1], Z: f[2]}, nil

	case CLookAt:
		var f [2]float32
		for i := range f {
			u, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
			}
			f[i] = math.Float32frombits(u)
			data = data[n:]
		}
		return YawPitch{Yaw: f[0], Pitch: f[1]}, nil

	case CHotbar:
		count, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
		}
		data = data[n:]
		// Каждая ячейка занимает минимум два байта
		if count > uint64(len(data)) {
			return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
		}
		hb := make(Hotbar, 0, count)
		for i := uint64(0); i < count; i++ {
			typ, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
			}
			data = data[n:]
			name, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
			}
			data = data[n:]
			hb = append(hb, HotbarSlot{Type: uint8(typ), Name: name})
		}
		return hb, nil

	case CName, CIPAddr, CPlayerUID, CAccount:
		s, n := protowire.ConsumeString(data)
		if n < 0 {
			return nil, fmt.Errorf("%s: %w", c, ErrTruncated)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownComponent, uint16(c))
}
