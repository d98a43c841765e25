package network

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

// размер заглушки открытого ключа в рукопожатии
const publicKeySize = 33

var errNotLoggedIn = errors.New("not logged in")

type handler func(s *Server, c *connection, m protocol.Message) error

// handlers таблица обработчиков клиентских сообщений
var handlers = map[protocol.MsgID]handler{
	protocol.MsgLogin:           (*Server).handleLogin,
	protocol.MsgLogout:          (*Server).handleLogout,
	protocol.MsgTimeSyncRequest: (*Server).handleTimeSync,
	protocol.MsgRequestHeights:  (*Server).handleRequestHeights,
	protocol.MsgRequestChunks:   (*Server).handleRequestChunks,
	protocol.MsgLookAt:          (*Server).handleLookAt,
	protocol.MsgMotion:          (*Server).handleMotion,
	protocol.MsgButtonPress:     (*Server).handleButtonPress,
	protocol.MsgButtonRelease:   (*Server).handleButtonRelease,
	protocol.MsgConsole:         (*Server).handleConsole,
}

// сообщения, допустимые до входа
var beforeLogin = map[protocol.MsgID]bool{
	protocol.MsgLogin:           true,
	protocol.MsgTimeSyncRequest: true,
}

func (s *Server) onConnect(peer transport.PeerID, addr string) {
	if _, exists := s.conns[peer]; exists {
		s.logger.Warn("⚠️ Повторное подключение %d", peer)
		return
	}
	c := &connection{
		peer:    peer,
		addr:    addr,
		since:   time.Now(),
		pending: make(map[vec.ChunkCoord]struct{}),
	}

	if limit := s.cfg.Server.MaxPlayers; limit > 0 && len(s.conns) >= limit {
		s.logger.Warn("🚫 Сервер заполнен, отклоняем %s", addr)
		s.send(c, &protocol.Kick{Reason: "Server is full"})
		s.host.Disconnect(peer)
		return
	}
	s.conns[peer] = c
	connectionsActive.Set(float64(len(s.conns)))
	s.logger.Info("🔗 Новое подключение %d (%s)", peer, addr)

	s.send(c, &protocol.Handshake{
		ServerName: s.cfg.Server.Name,
		PublicKey:  make([]byte, publicKeySize),
	})

	reg := s.state.World.Registry()
	s.send(c, &protocol.DefineResources{Textures: reg.Textures(), Models: reg.Models()})

	materials := &protocol.DefineMaterials{}
	for _, m := range reg.Materials() {
		def := protocol.MaterialDef{
			ID:            m.ID,
			Name:          m.Name,
			Textures:      m.Textures,
			Transparency:  m.Transparency,
			LightEmission: m.LightEmission,
		}
		for _, part := range m.Model {
			def.Model = append(def.Model, protocol.BoxPart{Min: part.Min, Max: part.Max, Textures: part.Textures})
		}
		materials.Materials = append(materials.Materials, def)
	}
	s.send(c, materials)
}

func (s *Server) onDisconnect(peer transport.PeerID) {
	c, ok := s.conns[peer]
	if !ok {
		s.logger.Debug("👋 Отключение неизвестного соединения %d", peer)
		return
	}
	delete(s.conns, peer)
	connectionsActive.Set(float64(len(s.conns)))

	if c.loggedIn {
		s.logger.Info("👋 Игрок %d отключился", c.entity)
		delete(s.byEntity, c.entity)
		c.loggedIn = false
		s.updateSession(c, "")
		return
	}
	s.logger.Info("👋 Соединение %d закрыто до входа", peer)
}

// onReceive граница обработки: ошибки и паники обработчиков
// логируются с типом сообщения и не выходят за пределы запроса
func (s *Server) onReceive(peer transport.PeerID, frame []byte) {
	c, ok := s.conns[peer]
	if !ok {
		s.logger.Warn("⚠️ Сообщение от неизвестного соединения %d", peer)
		return
	}
	id, err := protocol.PeekID(frame)
	if err != nil {
		s.logger.LogProtocolError(c.addr, -1, err, frame)
		return
	}
	packetsReceived.WithLabelValues(id.String()).Inc()

	defer func() {
		if r := recover(); r != nil {
			protocolErrors.WithLabelValues(id.String()).Inc()
			s.logger.Error("💥 Паника при обработке %s от %s: %v", id, c.addr, r)
		}
	}()

	h, known := handlers[id]
	m, err := protocol.Decode(frame)
	if errors.Is(err, protocol.ErrUnknownMessage) || (err == nil && !known) {
		s.unknown(c, id)
		return
	}
	if err != nil {
		protocolErrors.WithLabelValues(id.String()).Inc()
		s.logger.LogProtocolError(c.addr, int(id), err, frame)
		return
	}
	if !c.loggedIn && !beforeLogin[id] {
		err = errNotLoggedIn
	} else {
		err = h(s, c, m)
	}
	if err != nil {
		protocolErrors.WithLabelValues(id.String()).Inc()
		s.logger.Error("❌ Ошибка обработки %s от %s: %v", id, c.addr, err)
	}
}

func (s *Server) unknown(c *connection, id protocol.MsgID) {
	protocolErrors.WithLabelValues("unknown").Inc()
	s.logger.Warn("❓ Неизвестный тип сообщения %d от %s", uint8(id), c.addr)
}

func (s *Server) handleLogout(c *connection, _ protocol.Message) error {
	s.logger.Info("🚪 Игрок %d вышел", c.entity)
	delete(s.byEntity, c.entity)
	c.loggedIn = false
	s.updateSession(c, "")
	return nil
}

func (s *Server) handleTimeSync(c *connection, m protocol.Message) error {
	msg := m.(*protocol.TimeSyncRequest)
	s.send(c, &protocol.TimeSyncResponse{RequestTime: msg.ClientTime, ServerTime: c.clientTime()})
	return nil
}

func (s *Server) handleRequestHeights(c *connection, m protocol.Message) error {
	msg := m.(*protocol.RequestHeights)
	answer := &protocol.HeightmapUpdate{}

	r := s.state.World.ReadAccess()
	for _, mc := range msg.Columns {
		if h := r.CoarseHeight(mc); h != world.UndefinedHeight {
			answer.Heights = append(answer.Heights, protocol.ColumnHeight{Pos: mc, Height: h})
		}
	}
	r.Release()

	s.send(c, answer)
	return nil
}

// handleRequestChunks: пустая колонка получает только высоту, готовый чанк
// отправляется сразу, остальные ставятся в генерацию
func (s *Server) handleRequestChunks(c *connection, m protocol.Message) error {
	msg := m.(*protocol.RequestChunks)
	for _, pos := range msg.Chunks {
		r := s.state.World.ReadAccess()
		air := r.IsAirChunk(pos)
		height := r.CoarseHeight(pos.Map())
		ready := r.IsChunkAvailable(pos) && r.IsLightmapAvailable(pos)
		r.Release()

		switch {
		case air:
			s.logger.Trace("🌫️ Чанк %s пустой, отправляем высоту", pos)
			s.sendHeight(c, pos.Map(), height)
		case ready:
			s.sendSurface(c, pos)
		default:
			s.requestSurface(c, pos)
		}
	}
	return nil
}

func (s *Server) handleLookAt(c *connection, m protocol.Message) error {
	msg := m.(*protocol.LookAt)
	tx := s.state.Entities.Write()
	defer tx.Release()
	return tx.Set(c.entity, ecs.CLookAt, msg.Look)
}

// handleMotion сохраняет намерение движения и позицию клиента
func (s *Server) handleMotion(c *connection, m protocol.Message) error {
	msg := m.(*protocol.Motion)
	walk := walkVector(msg.MoveDir, msg.MoveSpeed)

	tx := s.state.Entities.Write()
	defer tx.Release()
	if err := tx.Set(c.entity, ecs.CWalk, walk); err != nil {
		return err
	}
	return tx.Set(c.entity, ecs.CPosition, msg.Position)
}

// walkVector направление 0..255 соответствует полному обороту, скорость 0..255 доле силы шага
func walkVector(dir, speed uint8) vec.Vec3Float {
	const walkForce = 1.0
	angle := float64(dir) / 256 * 2 * math.Pi
	magnitude := walkForce * float64(speed) / 255
	return vec.Vec3Float{X: math.Cos(angle) * magnitude, Y: math.Sin(angle) * magnitude}
}

func (s *Server) handleButtonPress(c *connection, m protocol.Message) error {
	msg := m.(*protocol.ButtonPress)
	if err := s.engine.StartAction(c.entity, msg.Button, msg.Slot, msg.Look, msg.Position); err != nil {
		return fmt.Errorf("start_action: %w", err)
	}
	return nil
}

func (s *Server) handleButtonRelease(c *connection, m protocol.Message) error {
	msg := m.(*protocol.ButtonRelease)
	if err := s.engine.StopAction(c.entity, msg.Button); err != nil {
		return fmt.Errorf("stop_action: %w", err)
	}
	return nil
}

func (s *Server) handleConsole(c *connection, m protocol.Message) error {
	msg := m.(*protocol.Console)
	s.logger.Debug("💬 Консоль %d: %s", c.entity, msg.Text)
	reply, err := s.engine.Console(c.entity, msg.Text)
	if reply != "" {
		s.send(c, &protocol.PrintMessage{Text: reply})
	}
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

// peerOf получатель задания для соединения
func peerOf(c *connection) jobs.PeerID {
	return jobs.PeerID(c.peer)
}
