package ecs

import (
	"fmt"

	"github.com/annel0/voxel-server/internal/vec"
)

// EntityID уникальный идентификатор сущности
type EntityID uint32

// ComponentID идентификатор типа компонента
type ComponentID uint16

// Компоненты сущностей. Порядок фиксирован: номера передаются по сети.
const (
	CPosition    ComponentID = iota // vec.Vec3Float
	CVelocity                       // vec.Vec3Float
	CWalk                           // vec.Vec3Float, намерение движения от клиента
	CLookAt                         // YawPitch
	CBoundingBox                    // vec.Vec3Float, полуразмеры по X/Y и рост по Z
	CHotbar                         // Hotbar
	CName                           // string
	CIPAddr                         // string
	CPlayerUID                      // string (uuid)
	CAccount                        // string, имя учетной записи

	componentCount
)

var componentNames = [...]string{
	CPosition:    "position",
	CVelocity:    "velocity",
	CWalk:        "walk",
	CLookAt:      "lookat",
	CBoundingBox: "boundingbox",
	CHotbar:      "hotbar",
	CName:        "name",
	CIPAddr:      "ip_addr",
	CPlayerUID:   "player_uid",
	CAccount:     "account",
}

func (c ComponentID) String() string {
	if int(c) < len(componentNames) {
		return componentNames[c]
	}
	return fmt.Sprintf("component(%d)", uint16(c))
}

// Valid сообщает, известен ли серверу такой компонент
func (c ComponentID) Valid() bool {
	return c < componentCount
}

// IsMovement компоненты, которые рассылаются отдельным потоком физики
func (c ComponentID) IsMovement() bool {
	return c == CPosition || c == CVelocity
}

// YawPitch направление взгляда в радианах
type YawPitch struct {
	Yaw   float32
	Pitch float32
}

// HotbarSlot ячейка панели быстрого доступа
type HotbarSlot struct {
	Type uint8  // 0 пусто, 1 материал, 2 предмет
	Name string // имя материала или предмета
}

// Hotbar панель быстрого доступа игрока
type Hotbar []HotbarSlot

// DefaultBoundingBox размер игрока
var DefaultBoundingBox = vec.Vec3Float{X: 0.4, Y: 0.4, Z: 1.73}

// checkType проверяет, что значение подходит компоненту
func checkType(c ComponentID, v any) error {
	ok := false
	switch c {
	case CPosition, CVelocity, CWalk, CBoundingBox:
		_, ok = v.(vec.Vec3Float)
	case CLookAt:
		_, ok = v.(YawPitch)
	case CHotbar:
		_, ok = v.(Hotbar)
	case CName, CIPAddr, CPlayerUID, CAccount:
		_, ok = v.(string)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownComponent, uint16(c))
	}
	if !ok {
		return fmt.Errorf("%w: %s не принимает %T", ErrWrongType, c, v)
	}
	return nil
}
