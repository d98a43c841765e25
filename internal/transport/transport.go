// Package transport доставляет кадры протокола между сервером и клиентами.
package transport

import (
	"errors"
	"time"

	"github.com/annel0/voxel-server/internal/protocol"
)

// PeerID идентификатор подключения, 0 не используется
type PeerID uint32

// EventKind тип события транспорта
type EventKind uint8

const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventReceive
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	}
	return "unknown"
}

// Event событие от транспорта
type Event struct {
	Kind EventKind
	Peer PeerID
	Addr string
	Data []byte
}

// ErrUnknownPeer подключение уже закрыто или не существовало
var ErrUnknownPeer = errors.New("неизвестное подключение")

// ErrClosed транспорт закрыт
var ErrClosed = errors.New("транспорт закрыт")

// Host серверная сторона транспорта. Poll вызывается только из сетевого цикла;
// Send и Disconnect тоже, чтобы в подключение писал один поток.
type Host interface {
	// Poll ждет следующее событие не дольше timeout
	Poll(timeout time.Duration) (Event, bool)
	Send(peer PeerID, frame []byte, rel protocol.Reliability) error
	Disconnect(peer PeerID)
	Close() error
}
