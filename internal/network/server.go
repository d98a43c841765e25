// Package network обслуживает игроков: разбирает входящие сообщения,
// отправляет чанки и состояние сущностей, разбирает очередь заданий.
//
// Всё общение с транспортом идет из одного сетевого цикла (Run). Воркеры
// и наблюдатели мира влияют на вывод только через очередь заданий.
package network

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/scripting"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/vec"
)

// сколько событий транспорта разбирается за одну итерацию цикла
const maxEventsPerIteration = 256

// Options зависимости сервера
type Options struct {
	Config *config.Config
	State  *gamestate.State
	Host   transport.Host
	Queue  *jobs.Queue
	Pool   *jobs.Pool
	Engine scripting.Engine // nil: scripting.Nop
	Auth   *auth.Authenticator
}

type connection struct {
	peer     transport.PeerID
	addr     string
	since    time.Time // точка отсчета часов клиента
	entity   ecs.EntityID
	loggedIn bool
	// чанки, ожидающие генерации по запросу этого игрока
	pending map[vec.ChunkCoord]struct{}
}

// clientTime время на часах клиента в миллисекундах
func (c *connection) clientTime() uint32 {
	return uint32(time.Since(c.since).Milliseconds())
}

// PlayerInfo сведения об игроке для административного API
type PlayerInfo struct {
	Entity   uint32        `json:"entity"`
	Name     string        `json:"name"`
	Addr     string        `json:"addr"`
	Since    time.Time     `json:"since"`
	Position vec.Vec3Float `json:"position"`
}

// Server сетевой сервер
type Server struct {
	cfg    *config.Config
	state  *gamestate.State
	host   transport.Host
	queue  *jobs.Queue
	pool   *jobs.Pool
	engine scripting.Engine
	auth   *auth.Authenticator

	// принадлежат сетевому циклу
	conns    map[transport.PeerID]*connection
	byEntity map[ecs.EntityID]transport.PeerID

	heightMu      sync.Mutex
	heightChanges map[vec.MapCoord]int32

	sessMu   sync.RWMutex
	sessions map[transport.PeerID]PlayerInfo

	cleanupBusy atomic.Bool
	started     atomic.Bool
	done        chan struct{}
	logger      *logging.Logger
}

// NewServer создает сервер и подписывается на изменения мира
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil || opts.State == nil || opts.Host == nil ||
		opts.Queue == nil || opts.Pool == nil || opts.Auth == nil {
		return nil, errors.New("network: не заданы обязательные зависимости")
	}
	engine := opts.Engine
	if engine == nil {
		engine = scripting.Nop{}
	}

	s := &Server{
		cfg:           opts.Config,
		state:         opts.State,
		host:          opts.Host,
		queue:         opts.Queue,
		pool:          opts.Pool,
		engine:        engine,
		auth:          opts.Auth,
		conns:         make(map[transport.PeerID]*connection),
		byEntity:      make(map[ecs.EntityID]transport.PeerID),
		heightChanges: make(map[vec.MapCoord]int32),
		sessions:      make(map[transport.PeerID]PlayerInfo),
		done:          make(chan struct{}),
		logger:        logging.GetNetworkLogger(),
	}

	s.state.World.OnSurfaceChanged(func(c vec.ChunkCoord) {
		s.queue.Push(jobs.Job{Kind: jobs.SurfaceAndLightmap, Pos: c})
	})
	s.state.World.OnCoarseHeightChanged(func(mc vec.MapCoord, h int32) {
		s.heightMu.Lock()
		s.heightChanges[mc] = h
		s.heightMu.Unlock()
	})
	return s, nil
}

// Run сетевой цикл. Возвращается после задания Quit или отмены ctx.
func (s *Server) Run(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.done)

	ticks, defaults := s.cfg.Ticks, config.Default().Ticks
	physics := time.NewTicker(orDefault(ticks.PhysicsBroadcast, defaults.PhysicsBroadcast))
	defer physics.Stop()
	dirty := time.NewTicker(orDefault(ticks.DirtyBroadcast, defaults.DirtyBroadcast))
	defer dirty.Stop()
	cleanup := time.NewTicker(orDefault(ticks.Cleanup, defaults.Cleanup))
	defer cleanup.Stop()

	s.logger.Info("🎮 Сетевой цикл запущен")
	for {
		if ctx.Err() != nil {
			s.logger.Info("🛑 Сетевой цикл остановлен по контексту")
			return nil
		}

		s.pollEvents(ticks.PollTimeout)

		select {
		case <-physics.C:
			s.broadcastPhysics()
		default:
		}
		select {
		case <-dirty.C:
			s.broadcastDirty()
		default:
		}
		select {
		case <-cleanup.C:
			s.scheduleCleanup()
		default:
		}

		s.flushHeights()
		if s.drainJobs() {
			s.logger.Info("🛑 Сетевой цикл получил задание quit")
			return nil
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Stop ставит задание quit и ждет выхода из цикла
func (s *Server) Stop() {
	if !s.started.Load() {
		return
	}
	s.queue.Push(jobs.Job{Kind: jobs.Quit})
	<-s.done
}

func (s *Server) pollEvents(timeout time.Duration) {
	ev, ok := s.host.Poll(timeout)
	for n := 0; ok && n < maxEventsPerIteration; n++ {
		s.handleEvent(ev)
		ev, ok = s.host.Poll(0)
	}
	if ok {
		s.handleEvent(ev)
	}
}

func (s *Server) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnect:
		s.onConnect(ev.Peer, ev.Addr)
	case transport.EventDisconnect:
		s.onDisconnect(ev.Peer)
	case transport.EventReceive:
		s.onReceive(ev.Peer, ev.Data)
	}
}

// send кодирует и отправляет одно сообщение
func (s *Server) send(c *connection, m protocol.Message) {
	s.sendFrame(c, m.ID(), protocol.Encode(m), m.Reliability())
}

func (s *Server) sendFrame(c *connection, id protocol.MsgID, frame []byte, rel protocol.Reliability) {
	if err := s.host.Send(c.peer, frame, rel); err != nil {
		s.logger.Warn("⚠️ Не удалось отправить %s соединению %d: %v", id, c.peer, err)
		return
	}
	packetsSent.WithLabelValues(id.String()).Inc()
}

// broadcast отправляет сообщение всем вошедшим игрокам, кроме except
func (s *Server) broadcast(m protocol.Message, except transport.PeerID) {
	frame := protocol.Encode(m)
	for _, c := range s.loggedIn() {
		if c.peer != except {
			s.sendFrame(c, m.ID(), frame, m.Reliability())
		}
	}
}

// loggedIn вошедшие соединения в порядке идентификаторов
func (s *Server) loggedIn() []*connection {
	out := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		if c.loggedIn {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peer < out[j].peer })
	return out
}

func (s *Server) updateSession(c *connection, name string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if c.loggedIn {
		s.sessions[c.peer] = PlayerInfo{Entity: uint32(c.entity), Name: name, Addr: c.addr, Since: c.since}
	} else {
		delete(s.sessions, c.peer)
	}
	playersOnline.Set(float64(len(s.sessions)))
}

// Players список вошедших игроков с текущими позициями.
// Безопасно вызывать из любой горутины.
func (s *Server) Players() []PlayerInfo {
	s.sessMu.RLock()
	out := make([]PlayerInfo, 0, len(s.sessions))
	for _, p := range s.sessions {
		out = append(out, p)
	}
	s.sessMu.RUnlock()

	tx := s.state.Entities.Read()
	defer tx.Release()
	for i := range out {
		if p, ok := ecs.Get[vec.Vec3Float](tx, ecs.EntityID(out[i].Entity), ecs.CPosition); ok {
			out[i].Position = p
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
