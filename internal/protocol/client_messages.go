package protocol

import (
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// Login вход; Credentials содержит JSON с методом и данными входа
type Login struct {
	reliable
	Credentials string
}

func (*Login) ID() MsgID { return MsgLogin }

func (m *Login) marshal(e *encoder) { e.string(1, m.Credentials) }

func (m *Login) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Credentials = f.str()
		}
		return nil
	})
}

// Logout выход
type Logout struct {
	reliable
}

func (*Logout) ID() MsgID { return MsgLogout }

func (*Logout) marshal(*encoder) {}

func (*Logout) unmarshal(data []byte) error {
	return parseFields(data, func(field) error { return nil })
}

// TimeSyncRequest запрос синхронизации часов
type TimeSyncRequest struct {
	reliable
	ClientTime uint32
}

func (*TimeSyncRequest) ID() MsgID { return MsgTimeSyncRequest }

func (m *TimeSyncRequest) marshal(e *encoder) { e.uint(1, uint64(m.ClientTime)) }

func (m *TimeSyncRequest) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.ClientTime = uint32(f.v)
		}
		return nil
	})
}

// RequestHeights запрос грубых высот колонок
type RequestHeights struct {
	reliable
	Columns []vec.MapCoord
}

func (*RequestHeights) ID() MsgID { return MsgRequestHeights }

func (m *RequestHeights) marshal(e *encoder) {
	for _, mc := range m.Columns {
		e.column(1, mc)
	}
}

func (m *RequestHeights) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		mc, err := parseColumn(f.bytes)
		if err != nil {
			return err
		}
		m.Columns = append(m.Columns, mc)
		return nil
	})
}

// RequestChunks запрос поверхностей чанков
type RequestChunks struct {
	reliable
	Chunks []vec.ChunkCoord
}

func (*RequestChunks) ID() MsgID { return MsgRequestChunks }

func (m *RequestChunks) marshal(e *encoder) {
	for _, c := range m.Chunks {
		e.chunk(1, c)
	}
}

func (m *RequestChunks) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		c, err := parseChunk(f.bytes)
		if err != nil {
			return err
		}
		m.Chunks = append(m.Chunks, c)
		return nil
	})
}

// LookAt направление взгляда игрока
type LookAt struct {
	reliable
	Look ecs.YawPitch
}

func (*LookAt) ID() MsgID { return MsgLookAt }

func (m *LookAt) marshal(e *encoder) { e.yawPitch(1, m.Look) }

func (m *LookAt) unmarshal(data []byte) error {
	return parseFields(data, func(f field) (err error) {
		if f.num == 1 {
			m.Look, err = parseYawPitch(f.bytes)
		}
		return err
	})
}

// Motion намерение движения. MoveDir: угол в 1/256 оборота,
// MoveSpeed: доля максимальной скорости в 1/255.
type Motion struct {
	reliable
	MoveDir   uint8
	MoveSpeed uint8
	Position  vec.Vec3Float
}

func (*Motion) ID() MsgID { return MsgMotion }

func (m *Motion) marshal(e *encoder) {
	e.uint(1, uint64(m.MoveDir))
	e.uint(2, uint64(m.MoveSpeed))
	e.vec3f(3, m.Position)
}

func (m *Motion) unmarshal(data []byte) error {
	return parseFields(data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.MoveDir = uint8(f.v)
		case 2:
			m.MoveSpeed = uint8(f.v)
		case 3:
			m.Position, err = parseVec3f(f.bytes)
		}
		return err
	})
}

// ButtonPress нажатие кнопки действия
type ButtonPress struct {
	reliable
	Button   uint8
	Slot     uint8
	Look     ecs.YawPitch
	Position vec.Vec3Float
}

func (*ButtonPress) ID() MsgID { return MsgButtonPress }

func (m *ButtonPress) marshal(e *encoder) {
	e.uint(1, uint64(m.Button))
	e.uint(2, uint64(m.Slot))
	e.yawPitch(3, m.Look)
	e.vec3f(4, m.Position)
}

func (m *ButtonPress) unmarshal(data []byte) error {
	return parseFields(data, func(f field) (err error) {
		switch f.num {
		case 1:
			m.Button = uint8(f.v)
		case 2:
			m.Slot = uint8(f.v)
		case 3:
			m.Look, err = parseYawPitch(f.bytes)
		case 4:
			m.Position, err = parseVec3f(f.bytes)
		}
		return err
	})
}

// ButtonRelease отпускание кнопки действия
type ButtonRelease struct {
	reliable
	Button uint8
}

func (*ButtonRelease) ID() MsgID { return MsgButtonRelease }

func (m *ButtonRelease) marshal(e *encoder) { e.uint(1, uint64(m.Button)) }

func (m *ButtonRelease) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Button = uint8(f.v)
		}
		return nil
	})
}

// Console строка, введенная в консоль клиента
type Console struct {
	reliable
	Text string
}

func (*Console) ID() MsgID { return MsgConsole }

func (m *Console) marshal(e *encoder) { e.string(1, m.Text) }

func (m *Console) unmarshal(data []byte) error {
	return parseFields(data, func(f field) error {
		if f.num == 1 {
			m.Text = f.str()
		}
		return nil
	})
}
