package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/protocol"
)

// MaxFrameSize ограничение на размер одного кадра
const MaxFrameSize = 1 << 20

const (
	eventBuffer   = 4096
	acceptBackoff = 50 * time.Millisecond
	maxBackoff    = 2 * time.Second
)

type kcpPeer struct {
	id        PeerID
	sess      *kcp.UDPSession
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// KCPHost транспорт поверх KCP. Кадры передаются с 4-байтовым префиксом длины.
// Подключение, от которого ничего не приходило дольше liveness, считается потерянным.
type KCPHost struct {
	listener *kcp.Listener
	events   chan Event
	liveness time.Duration

	mu     sync.RWMutex
	peers  map[PeerID]*kcpPeer
	nextID atomic.Uint32

	// отключения, начатые самим сервером; Poll отдает их после канала
	deferredMu sync.Mutex
	deferred   []Event

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *logging.Logger
}

// ListenKCP начинает принимать подключения на addr
func ListenKCP(addr string, liveness time.Duration) (*KCPHost, error) {
	return listenKCP(addr, liveness, eventBuffer)
}

func listenKCP(addr string, liveness time.Duration, buffer int) (*KCPHost, error) {
	listener, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to listen KCP on %s: %w", addr, err)
	}
	if liveness <= 0 {
		liveness = 30 * time.Second
	}

	h := &KCPHost{
		listener: listener,
		events:   make(chan Event, buffer),
		liveness: liveness,
		peers:    make(map[PeerID]*kcpPeer),
		closed:   make(chan struct{}),
		logger:   logging.GetNetworkLogger(),
	}

	h.wg.Add(1)
	go h.acceptLoop()
	h.logger.Info("🌐 KCP транспорт слушает %s", listener.Addr())
	return h, nil
}

// Addr локальный адрес
func (h *KCPHost) Addr() net.Addr {
	return h.listener.Addr()
}

func (h *KCPHost) acceptLoop() {
	defer h.wg.Done()
	backoff := acceptBackoff
	for {
		sess, err := h.listener.AcceptKCP()
		if err != nil {
			select {
			case <-h.closed:
				return
			default:
			}
			h.logger.Error("❌ Ошибка приема KCP подключения: %v, повтор через %v", err, backoff)
			select {
			case <-h.closed:
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = acceptBackoff

		// Настраиваем KCP параметры для игрового трафика
		sess.SetStreamMode(true)
		sess.SetWriteDelay(false)
		sess.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
		sess.SetWindowSize(512, 512)
		sess.SetMtu(1400)

		peer := &kcpPeer{id: PeerID(h.nextID.Add(1)), sess: sess}
		h.mu.Lock()
		h.peers[peer.id] = peer
		h.mu.Unlock()

		h.push(Event{Kind: EventConnect, Peer: peer.id, Addr: sess.RemoteAddr().String()})

		h.wg.Add(1)
		go h.readLoop(peer)
	}
}

// nextBackoff удваивает паузу между повторами приема, но не выше maxBackoff
func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxBackoff)
}

func (h *KCPHost) push(ev Event) {
	select {
	case h.events <- ev:
	case <-h.closed:
	}
}

// pushDeferred не блокирует: вызывается из сетевого цикла, который сам читает events
func (h *KCPHost) pushDeferred(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.deferredMu.Lock()
		h.deferred = append(h.deferred, ev)
		h.deferredMu.Unlock()
	}
}

func (h *KCPHost) popDeferred() (Event, bool) {
	h.deferredMu.Lock()
	defer h.deferredMu.Unlock()
	if len(h.deferred) == 0 {
		return Event{}, false
	}
	ev := h.deferred[0]
	h.deferred = h.deferred[1:]
	return ev, true
}

func (h *KCPHost) readLoop(peer *kcpPeer) {
	defer h.wg.Done()

	header := make([]byte, 4)
	for {
		peer.sess.SetReadDeadline(time.Now().Add(h.liveness))

		if _, err := io.ReadFull(peer.sess, header); err != nil {
			h.lost(peer, err)
			return
		}
		length := binary.LittleEndian.Uint32(header)
		if length == 0 || length > MaxFrameSize {
			h.lost(peer, fmt.Errorf("недопустимый размер кадра %d", length))
			return
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(peer.sess, frame); err != nil {
			h.lost(peer, err)
			return
		}
		h.push(Event{Kind: EventReceive, Peer: peer.id, Data: frame})
	}
}

// lost отключение со стороны клиента или по таймауту
func (h *KCPHost) lost(peer *kcpPeer, cause error) {
	if h.dropPeer(peer, cause) {
		h.push(Event{Kind: EventDisconnect, Peer: peer.id})
	}
}

// dropPeer закрывает сессию; true только у первого вызова для подключения
func (h *KCPHost) dropPeer(peer *kcpPeer, cause error) bool {
	dropped := false
	peer.closeOnce.Do(func() {
		dropped = true
		h.mu.Lock()
		delete(h.peers, peer.id)
		h.mu.Unlock()
		peer.sess.Close()

		var netErr net.Error
		switch {
		case errors.As(cause, &netErr) && netErr.Timeout():
			h.logger.Info("⌛ Подключение %d не отвечает, отключаем", peer.id)
		case errors.Is(cause, io.EOF), cause == nil:
		default:
			h.logger.Debug("Подключение %d закрыто: %v", peer.id, cause)
		}
	})
	return dropped
}

// Poll ждет событие не дольше timeout
func (h *KCPHost) Poll(timeout time.Duration) (Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	default:
	}
	if ev, ok := h.popDeferred(); ok {
		return ev, true
	}
	if timeout <= 0 {
		select {
		case ev := <-h.events:
			return ev, true
		default:
			return Event{}, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-h.events:
		return ev, true
	case <-timer.C:
		return Event{}, false
	case <-h.closed:
		return Event{}, false
	}
}

// Send записывает кадр. KCP доставляет все надежно, поэтому rel здесь
// не меняет способ доставки.
func (h *KCPHost) Send(id PeerID, frame []byte, rel protocol.Reliability) error {
	h.mu.RLock()
	peer, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}

	buf := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)

	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()
	if _, err := peer.sess.Write(buf); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// Disconnect закрывает подключение; событие отключения придет через Poll.
// Не блокируется, даже если очередь событий заполнена.
func (h *KCPHost) Disconnect(id PeerID) {
	h.mu.RLock()
	peer, ok := h.peers[id]
	h.mu.RUnlock()
	if ok && h.dropPeer(peer, nil) {
		h.pushDeferred(Event{Kind: EventDisconnect, Peer: id})
	}
}

// Close останавливает прием и закрывает все подключения
func (h *KCPHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.closed)
		err = h.listener.Close()

		h.mu.RLock()
		peers := make([]*kcpPeer, 0, len(h.peers))
		for _, p := range h.peers {
			peers = append(peers, p)
		}
		h.mu.RUnlock()
		for _, p := range peers {
			h.dropPeer(p, nil)
		}
		h.wg.Wait()
	})
	return err
}

// DialKCP клиентское подключение, используется утилитами и тестами
func DialKCP(addr string) (*Client, error) {
	sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to dial KCP %s: %w", addr, err)
	}
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1)
	sess.SetWindowSize(512, 512)
	sess.SetMtu(1400)
	return &Client{sess: sess}, nil
}

// Client клиентская сторона KCP транспорта
type Client struct {
	sess *kcp.UDPSession
}

// Send отправляет сообщение серверу
func (c *Client) Send(m protocol.Message) error {
	frame := protocol.Encode(m)
	buf := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	_, err := c.sess.Write(buf)
	return err
}

// Receive читает следующее сообщение, ожидая не дольше timeout
func (c *Client) Receive(timeout time.Duration) (protocol.Message, error) {
	c.sess.SetReadDeadline(time.Now().Add(timeout))
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.sess, header); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("недопустимый размер кадра %d", length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(c.sess, frame); err != nil {
		return nil, err
	}
	return protocol.Decode(frame)
}

// Close закрывает подключение
func (c *Client) Close() error {
	return c.sess.Close()
}
