package transport

import (
	"sync"
	"time"

	"github.com/annel0/voxel-server/internal/protocol"
)

// Loopback транспорт в памяти для тестов сетевого цикла
type Loopback struct {
	events chan Event

	mu     sync.Mutex
	peers  map[PeerID]*LoopbackPeer
	nextID PeerID
	closed bool
}

// Sent кадр, отправленный сервером клиенту
type Sent struct {
	Frame       []byte
	Reliability protocol.Reliability
}

// LoopbackPeer клиентская сторона подключения к Loopback
type LoopbackPeer struct {
	ID   PeerID
	host *Loopback

	mu        sync.Mutex
	inbox     []Sent
	connected bool
}

// NewLoopback создает транспорт в памяти
func NewLoopback() *Loopback {
	return &Loopback{
		events: make(chan Event, 1024),
		peers:  make(map[PeerID]*LoopbackPeer),
	}
}

// Connect подключает нового клиента
func (l *Loopback) Connect(addr string) *LoopbackPeer {
	l.mu.Lock()
	l.nextID++
	p := &LoopbackPeer{ID: l.nextID, host: l, connected: true}
	l.peers[p.ID] = p
	l.mu.Unlock()

	l.events <- Event{Kind: EventConnect, Peer: p.ID, Addr: addr}
	return p
}

// Poll ждет событие не дольше timeout
func (l *Loopback) Poll(timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		select {
		case ev := <-l.events:
			return ev, true
		default:
			return Event{}, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-l.events:
		return ev, true
	case <-timer.C:
		return Event{}, false
	}
}

// Send кладет кадр во входящие клиента
func (l *Loopback) Send(id PeerID, frame []byte, rel protocol.Reliability) error {
	l.mu.Lock()
	p, ok := l.peers[id]
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return ErrUnknownPeer
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrUnknownPeer
	}
	p.inbox = append(p.inbox, Sent{Frame: append([]byte(nil), frame...), Reliability: rel})
	return nil
}

// Disconnect разрывает подключение со стороны сервера
func (l *Loopback) Disconnect(id PeerID) {
	l.mu.Lock()
	p, ok := l.peers[id]
	delete(l.peers, id)
	l.mu.Unlock()
	if ok {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		l.events <- Event{Kind: EventDisconnect, Peer: id}
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Send отправляет сообщение серверу
func (p *LoopbackPeer) Send(m protocol.Message) {
	p.host.events <- Event{Kind: EventReceive, Peer: p.ID, Data: protocol.Encode(m)}
}

// SendRaw отправляет произвольный кадр
func (p *LoopbackPeer) SendRaw(frame []byte) {
	p.host.events <- Event{Kind: EventReceive, Peer: p.ID, Data: frame}
}

// Close отключает клиента
func (p *LoopbackPeer) Close() {
	p.host.Disconnect(p.ID)
}

// Connected подключение еще открыто
func (p *LoopbackPeer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Take забирает все полученные кадры
func (p *LoopbackPeer) Take() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.inbox
	p.inbox = nil
	return out
}

// Messages забирает и декодирует все полученные сообщения
func (p *LoopbackPeer) Messages() ([]protocol.Message, error) {
	var out []protocol.Message
	for _, s := range p.Take() {
		m, err := protocol.Decode(s.Frame)
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}
