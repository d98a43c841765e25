// Package protocol описывает сообщения между клиентом и сервером.
//
// Кадр состоит из одного байта идентификатора сообщения и полезной нагрузки
// в формате protobuf. Каждое сообщение само объявляет, нужна ли ему надежная доставка.
package protocol

import (
	"errors"
	"fmt"
)

// MsgID идентификатор типа сообщения
type MsgID uint8

// Сообщения сервера
const (
	MsgHandshake MsgID = iota
	MsgDefineResources
	MsgDefineMaterials
	MsgGreeting
	MsgHeightmapUpdate
	MsgSurfaceUpdate
	MsgEntityUpdate
	MsgEntityUpdatePhysics
	MsgKick
	MsgTimeSyncResponse
	MsgPrintMessage
)

// Сообщения клиента
const (
	MsgLogin MsgID = 64 + iota
	MsgLogout
	MsgTimeSyncRequest
	MsgRequestHeights
	MsgRequestChunks
	MsgLookAt
	MsgMotion
	MsgButtonPress
	MsgButtonRelease
	MsgConsole
)

var msgNames = map[MsgID]string{
	MsgHandshake:           "handshake",
	MsgDefineResources:     "define_resources",
	MsgDefineMaterials:     "define_materials",
	MsgGreeting:            "greeting",
	MsgHeightmapUpdate:     "heightmap_update",
	MsgSurfaceUpdate:       "surface_update",
	MsgEntityUpdate:        "entity_update",
	MsgEntityUpdatePhysics: "entity_update_physics",
	MsgKick:                "kick",
	MsgTimeSyncResponse:    "time_sync_response",
	MsgPrintMessage:        "print_message",
	MsgLogin:               "login",
	MsgLogout:              "logout",
	MsgTimeSyncRequest:     "time_sync_request",
	MsgRequestHeights:      "request_heights",
	MsgRequestChunks:       "request_chunks",
	MsgLookAt:              "look_at",
	MsgMotion:              "motion",
	MsgButtonPress:         "button_press",
	MsgButtonRelease:       "button_release",
	MsgConsole:             "console",
}

func (id MsgID) String() string {
	if name, ok := msgNames[id]; ok {
		return name
	}
	return fmt.Sprintf("msg(%d)", uint8(id))
}

// Reliability способ доставки сообщения
type Reliability uint8

const (
	Reliable Reliability = iota
	Unreliable
)

func (r Reliability) String() string {
	if r == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Message сообщение протокола
type Message interface {
	ID() MsgID
	Reliability() Reliability
	marshal(e *encoder)
	unmarshal(data []byte) error
}

var (
	ErrEmptyFrame     = errors.New("пустой кадр")
	ErrUnknownMessage = errors.New("неизвестный тип сообщения")
)

var constructors = map[MsgID]func() Message{
	MsgHandshake:           func() Message { return &Handshake{} },
	MsgDefineResources:     func() Message { return &DefineResources{} },
	MsgDefineMaterials:     func() Message { return &DefineMaterials{} },
	MsgGreeting:            func() Message { return &Greeting{} },
	MsgHeightmapUpdate:     func() Message { return &HeightmapUpdate{} },
	MsgSurfaceUpdate:       func() Message { return &SurfaceUpdate{} },
	MsgEntityUpdate:        func() Message { return &EntityUpdate{} },
	MsgEntityUpdatePhysics: func() Message { return &EntityUpdatePhysics{} },
	MsgKick:                func() Message { return &Kick{} },
	MsgTimeSyncResponse:    func() Message { return &TimeSyncResponse{} },
	MsgPrintMessage:        func() Message { return &PrintMessage{} },
	MsgLogin:               func() Message { return &Login{} },
	MsgLogout:              func() Message { return &Logout{} },
	MsgTimeSyncRequest:     func() Message { return &TimeSyncRequest{} },
	MsgRequestHeights:      func() Message { return &RequestHeights{} },
	MsgRequestChunks:       func() Message { return &RequestChunks{} },
	MsgLookAt:              func() Message { return &LookAt{} },
	MsgMotion:              func() Message { return &Motion{} },
	MsgButtonPress:         func() Message { return &ButtonPress{} },
	MsgButtonRelease:       func() Message { return &ButtonRelease{} },
	MsgConsole:             func() Message { return &Console{} },
}

// Encode сериализует сообщение в кадр
func Encode(m Message) []byte {
	e := encoder{b: []byte{byte(m.ID())}}
	m.marshal(&e)
	return e.b
}

// PeekID возвращает идентификатор сообщения без разбора нагрузки
func PeekID(frame []byte) (MsgID, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	return MsgID(frame[0]), nil
}

// Decode разбирает кадр. Для неизвестного типа возвращает ErrUnknownMessage.
func Decode(frame []byte) (Message, error) {
	id, err := PeekID(frame)
	if err != nil {
		return nil, err
	}
	newMsg, ok := constructors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, uint8(id))
	}
	m := newMsg()
	if err := m.unmarshal(frame[1:]); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", id, err)
	}
	return m, nil
}

// reliable встраивается в сообщения с надежной доставкой
type reliable struct{}

func (reliable) Reliability() Reliability { return Reliable }
