package protocol

import (
	"fmt"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// Handshake первое сообщение после подключения
type Handshake struct {
	reliable
	ServerName string
	PublicKey  []byte
}

func (*Handshake) ID() MsgID { return MsgHandshake }

func (m *Handshake) marshal(e *encoder) {
	e.string(1, m.ServerName)
	e.bytes(2, m.PublicKey)
}

func (m *Handshake) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.ServerName = f.str()
		case 2:
			m.PublicKey = f.copyBytes()
		}
		return nil
	})
}

// DefineResources каталоги имен текстур и моделей
type DefineResources struct {
	reliable
	Textures []string
	Models   []string
}

func (*DefineResources) ID() MsgID { return MsgDefineResources }

func (m *DefineResources) marshal(e *encoder) {
	for _, t := range m.Textures {
		e.string(1, t)
	}
	for _, name := range m.Models {
		e.string(2, name)
	}
}

func (m *DefineResources) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.Textures = append(m.Textures, f.str())
		case 2:
			m.Models = append(m.Models, f.str())
		}
		return nil
	})
}

// BoxPart часть модели блока
type BoxPart struct {
	Min, Max [3]uint8
	Textures [6]uint16
}

// MaterialDef описание материала для клиента
type MaterialDef struct {
	ID            uint16
	Name          string
	Textures      [6]uint16
	Transparency  uint8
	LightEmission uint8
	Model         []BoxPart
}

// DefineMaterials каталог материалов
type DefineMaterials struct {
	reliable
	Materials []MaterialDef
}

func (*DefineMaterials) ID() MsgID { return MsgDefineMaterials }

func (m *DefineMaterials) marshal(e *encoder) {
	for _, mat := range m.Materials {
		e.message(1, func(in *encoder) {
			in.uint(1, uint64(mat.ID))
			in.string(2, mat.Name)
			for _, t := range mat.Textures {
				in.uint(3, uint64(t))
			}
			in.uint(4, uint64(mat.Transparency))
			in.uint(5, uint64(mat.LightEmission))
			for _, part := range mat.Model {
				in.message(6, func(p *encoder) {
					p.bytes(1, part.Min[:])
					p.bytes(2, part.Max[:])
					for _, t := range part.Textures {
						p.uint(3, uint64(t))
					}
				})
			}
		})
	}
}

func (m *DefineMaterials) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num != 1 || !f.isBytes() {
			return nil
		}
		var mat MaterialDef
		tex := 0
		err := parseFields(f.bytes, func(f field) error {
			switch f.num {
			case 1:
				mat.ID = uint16(f.v)
			case 2:
				mat.Name = f.str()
			case 3:
				if tex < len(mat.Textures) {
					mat.Textures[tex] = uint16(f.v)
					tex++
				}
			case 4:
				mat.Transparency = uint8(f.v)
			case 5:
				mat.LightEmission = uint8(f.v)
			case 6:
				part, err := parseBoxPart(f.bytes)
				if err != nil {
					return err
				}
				mat.Model = append(mat.Model, part)
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.Materials = append(m.Materials, mat)
		return nil
	})
}

func parseBoxPart(data []byte) (BoxPart, error) {
	var part BoxPart
	tex := 0
	err := parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			copy(part.Min[:], f.bytes)
		case 2:
			copy(part.Max[:], f.bytes)
		case 3:
			if tex < len(part.Textures) {
				part.Textures[tex] = uint16(f.v)
				tex++
			}
		}
		return nil
	})
	return part, err
}

// Greeting ответ на успешный вход
type Greeting struct {
	reliable
	Position   vec.Vec3Float
	EntityID   uint32
	ClientTime uint32 // миллисекунды на часах клиента
	MOTD       string
	Token      string // токен для повторного входа
}

func (*Greeting) ID() MsgID { return MsgGreeting }

func (m *Greeting) marshal(e *encoder) {
	e.vec3f(1, m.Position)
	e.uint(2, uint64(m.EntityID))
	e.uint(3, uint64(m.ClientTime))
	e.string(4, m.MOTD)
	e.string(5, m.Token)
}

func (m *Greeting) unmarshal(data []byte) error {
	return parseFields(data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Position, err = parseVec3f(f.bytes)
		case 2:
			m.EntityID = uint32(f.v)
		case 3:
			m.ClientTime = uint32(f.v)
		case 4:
			m.MOTD = f.str()
		case 5:
			m.Token = f.str()
		}
		return err
	})
}

// ColumnHeight грубая высота одной колонки
type ColumnHeight struct {
	Pos    vec.MapCoord
	Height int32
}

// HeightmapUpdate пакет грубых высот
type HeightmapUpdate struct {
	reliable
	Heights []ColumnHeight
}

func (*HeightmapUpdate) ID() MsgID { return MsgHeightmapUpdate }

func (m *HeightmapUpdate) marshal(e *encoder) {
	for _, h := range m.Heights {
		e.message(1, func(in *encoder) {
			in.column(1, h.Pos)
			in.sint(2, int64(h.Height))
		})
	}
}

func (m *HeightmapUpdate) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num != 1 || !f.isBytes() {
			return nil
		}
		var h ColumnHeight
		err := parseFields(f.bytes, func(f field) (err error) {
			switch f.num {
			case 1:
				h.Pos, err = parseColumn(f.bytes)
			case 2:
				h.Height = int32(f.sint())
			}
			return err
		})
		if err != nil {
			return err
		}
		m.Heights = append(m.Heights, h)
		return nil
	})
}

// SurfaceUpdate сжатые поверхность и освещение чанка.
// Пустая Surface означает обновление только освещения.
type SurfaceUpdate struct {
	reliable
	Pos      vec.ChunkCoord
	Surface  []byte
	Lightmap []byte
}

func (*SurfaceUpdate) ID() MsgID { return MsgSurfaceUpdate }

func (m *SurfaceUpdate) marshal(e *encoder) {
	e.chunk(1, m.Pos)
	if len(m.Surface) > 0 {
		e.bytes(2, m.Surface)
	}
	e.bytes(3, m.Lightmap)
}

func (m *SurfaceUpdate) unmarshal(data []byte) error {
	return parseFields(data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Pos, err = parseChunk(f.bytes)
		case 2:
			m.Surface = f.copyBytes()
		case 3:
			m.Lightmap = f.copyBytes()
		}
		return err
	})
}

// ComponentValue закодированное значение одного компонента
type ComponentValue struct {
	Component ecs.ComponentID
	Data      []byte
}

// EntityState компоненты одной сущности
type EntityState struct {
	Entity     ecs.EntityID
	Components []ComponentValue
}

// EntityUpdate изменения компонентов сущностей
type EntityUpdate struct {
	reliable
	Entities []EntityState
}

// Triple значение компонента сущности
type Triple struct {
	Entity    ecs.EntityID
	Component ecs.ComponentID
	Value     any
}

func (*EntityUpdate) ID() MsgID { return MsgEntityUpdate }

// Add кодирует значение компонента и добавляет его к сущности
func (m *EntityUpdate) Add(id ecs.EntityID, c ecs.ComponentID, v any) error {
	data, err := ecs.EncodeComponent(c, v)
	if err != nil {
		return err
	}
	cv := ComponentValue{Component: c, Data: data}
	for i := range m.Entities {
		if m.Entities[i].Entity == id {
			m.Entities[i].Components = append(m.Entities[i].Components, cv)
			return nil
		}
	}
	m.Entities = append(m.Entities, EntityState{Entity: id, Components: []ComponentValue{cv}})
	return nil
}

// Empty нет ни одного значения
func (m *EntityUpdate) Empty() bool {
	return len(m.Entities) == 0
}

// Values декодирует все значения
func (m *EntityUpdate) Values() ([]Triple, error) {
	var out []Triple
	for _, es := range m.Entities {
		for _, cv := range es.Components {
			v, err := ecs.DecodeComponent(cv.Component, cv.Data)
			if err != nil {
				return nil, fmt.Errorf("сущность %d: %w", es.Entity, err)
			}
			out = append(out, Triple{Entity: es.Entity, Component: cv.Component, Value: v})
		}
	}
	return out, nil
}

func (m *EntityUpdate) marshal(e *encoder) {
	for _, es := range m.Entities {
		e.message(1, func(in *encoder) {
			in.uint(1, uint64(es.Entity))
			for _, cv := range es.Components {
				in.message(2, func(c *encoder) {
					c.uint(1, uint64(cv.Component))
					c.bytes(2, cv.Data)
				})
			}
		})
	}
}

func (m *EntityUpdate) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num != 1 || !f.isBytes() {
			return nil
		}
		var es EntityState
		err := parseFields(f.bytes, func(f field) error {
			switch f.num {
			case 1:
				es.Entity = ecs.EntityID(f.v)
			case 2:
				var cv ComponentValue
				err := parseFields(f.bytes, func(f field) error {
					switch f.num {
					case 1:
						cv.Component = ecs.ComponentID(f.v)
					case 2:
						cv.Data = f.copyBytes()
					}
					return nil
				})
				if err != nil {
					return err
				}
				es.Components = append(es.Components, cv)
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.Entities = append(m.Entities, es)
		return nil
	})
}

// EntityUpdatePhysics частые обновления позиции и скорости, доставка без гарантий
type EntityUpdatePhysics struct {
	EntityUpdate
}

func (*EntityUpdatePhysics) ID() MsgID { return MsgEntityUpdatePhysics }
func (*EntityUpdatePhysics) Reliability() Reliability { return Unreliable }

// Kick сервер разрывает соединение
type Kick struct {
	reliable
	Reason string
}

func (*Kick) ID() MsgID { return MsgKick }

func (m *Kick) marshal(e *encoder) { e.string(1, m.Reason) }

func (m *Kick) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Reason = f.str()
		}
		return nil
	})
}

// TimeSyncResponse ответ на синхронизацию часов
type TimeSyncResponse struct {
	reliable
	RequestTime uint32
	ServerTime  uint32 // время клиента по оценке сервера
}

func (*TimeSyncResponse) ID() MsgID { return MsgTimeSyncResponse }

func (m *TimeSyncResponse) marshal(e *encoder) {
	e.uint(1, uint64(m.RequestTime))
	e.uint(2, uint64(m.ServerTime))
}

func (m *TimeSyncResponse) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		switch f.num {
		case 1:
			m.RequestTime = uint32(f.v)
		case 2:
			m.ServerTime = uint32(f.v)
		}
		return nil
	})
}

// PrintMessage текст в консоль клиента
type PrintMessage struct {
	reliable
	Text string
}

func (*PrintMessage) ID() MsgID { return MsgPrintMessage }

func (m *PrintMessage) marshal(e *encoder) { e.string(1, m.Text) }

func (m *PrintMessage) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Text = f.str()
		}
		return nil
	})
}
