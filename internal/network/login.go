package network

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

const (
	// сущность игрока в одиночном режиме
	singleplayerEntity ecs.EntityID = 0

	heightmapRadius = 12

	spawnSearchLimit   = 100
	spawnMinHeight     = 10
	spawnMaxHeight     = 200
	spawnClearance     = 4
	spawnDrop          = 26
	defaultSpawnHeight = 40
)

var errAlreadyLoggedIn = errors.New("entity already logged in")

// handleLogin проверяет учетные данные, привязывает сущность к соединению
// и отправляет стартовое состояние. Генерация первого чанка идет в фоне.
func (s *Server) handleLogin(c *connection, m protocol.Message) error {
	msg := m.(*protocol.Login)
	if c.loggedIn {
		return errAlreadyLoggedIn
	}

	creds, err := auth.ParseCredentials(msg.Credentials)
	if err != nil {
		s.send(c, &protocol.Kick{Reason: "Malformed credentials"})
		return err
	}
	identity, err := s.auth.Authenticate(creds)
	if err != nil {
		reason := "Login failed"
		if errors.Is(err, auth.ErrMethodNotAllowed) {
			reason = "Server is not running in singleplayer mode"
		}
		s.send(c, &protocol.Kick{Reason: reason})
		return fmt.Errorf("вход %q: %w", creds.Name, err)
	}

	var (
		ent     ecs.EntityID
		pos     vec.Vec3Float
		heights []protocol.ColumnHeight
		first   vec.ChunkCoord
	)
	err = s.state.ReadWorldWriteEntities(func(w *world.ReadAccess, tx *ecs.WriteTx) error {
		ent = s.resolveEntity(tx, identity)
		if other, taken := s.byEntity[ent]; taken && other != c.peer {
			return errAlreadyLoggedIn
		}
		if err := s.bindComponents(tx, ent, identity, c.addr); err != nil {
			return err
		}

		if p, ok := ecs.Get[vec.Vec3Float](tx, ent, ecs.CPosition); ok {
			pos = p
		} else {
			pos = spawnPosition(w)
			s.logger.Info("🐣 Новый игрок %d появится в %.1f %.1f %.1f", ent, pos.X, pos.Y, pos.Z)
			if err := spawn(tx, ent, pos); err != nil {
				return err
			}
		}
		heights = heightsAround(w, pos.Chunk(), heightmapRadius)
		first = firstChunk(w, pos.Chunk())
		return nil
	})
	if err != nil {
		s.send(c, &protocol.Kick{Reason: "Login failed"})
		return err
	}

	c.entity = ent
	c.loggedIn = true
	s.byEntity[ent] = c.peer
	s.updateSession(c, identity.Name)
	s.logger.Info("👤 Игрок %d (%s) вошел", ent, identity.Name)

	greeting := &protocol.Greeting{
		Position:   pos,
		EntityID:   uint32(ent),
		ClientTime: c.clientTime(),
		MOTD:       s.cfg.Server.MOTD,
	}
	if identity.Account != "" {
		token, err := s.auth.Tokens().Issue(identity.Account, uint32(ent))
		if err != nil {
			s.logger.Warn("⚠️ Ошибка выпуска токена для %s: %v", identity.Account, err)
		}
		greeting.Token = token
	}
	s.send(c, greeting)
	s.send(c, &protocol.HeightmapUpdate{Heights: heights})

	s.requestSurface(c, first)

	// остальные узнают о новом игроке через задания, новый игрок получает всех сразу
	for _, other := range s.loggedIn() {
		if other.peer != c.peer {
			s.queue.Push(jobs.Job{Kind: jobs.EntityInfo, Entity: uint32(ent), Dest: peerOf(other)})
		}
	}
	if update, err := s.knownEntities(ent); err != nil {
		s.logger.Error("❌ Ошибка сборки списка сущностей: %v", err)
	} else if !update.Empty() {
		s.send(c, update)
	}

	tx := s.state.Entities.Write()
	err = s.engine.PlayerLoggedIn(tx, ent)
	tx.Release()
	if err != nil {
		s.logger.Error("❌ Ошибка скрипта при входе игрока %d: %v", ent, err)
	}
	return nil
}

// resolveEntity находит сущность учетной записи или создает новую
func (s *Server) resolveEntity(tx *ecs.WriteTx, id auth.Identity) ecs.EntityID {
	if id.Singleplayer {
		return singleplayerEntity
	}
	if id.Entity != 0 {
		if acc, ok := ecs.Get[string](tx, ecs.EntityID(id.Entity), ecs.CAccount); ok && acc == id.Account {
			return ecs.EntityID(id.Entity)
		}
	}
	var (
		found ecs.EntityID
		ok    bool
	)
	tx.ForEach(func(e ecs.EntityID, v ecs.View) bool {
		if acc, _ := ecs.ViewGet[string](v, ecs.CAccount); acc == id.Account {
			found, ok = e, true
			return true
		}
		return false
	}, ecs.CAccount)
	if ok {
		return found
	}
	return tx.NewEntity()
}

func (s *Server) bindComponents(tx *ecs.WriteTx, ent ecs.EntityID, id auth.Identity, addr string) error {
	if err := tx.Set(ent, ecs.CName, id.Name); err != nil {
		return err
	}
	if err := tx.Set(ent, ecs.CIPAddr, addr); err != nil {
		return err
	}
	if id.Account != "" {
		if err := tx.Set(ent, ecs.CAccount, id.Account); err != nil {
			return err
		}
	}
	if !tx.Has(ent, ecs.CPlayerUID) {
		return tx.Set(ent, ecs.CPlayerUID, uuid.NewString())
	}
	return nil
}

func spawn(tx *ecs.WriteTx, ent ecs.EntityID, pos vec.Vec3Float) error {
	if err := tx.Set(ent, ecs.CPosition, pos); err != nil {
		return err
	}
	if err := tx.Set(ent, ecs.CVelocity, vec.Vec3Float{}); err != nil {
		return err
	}
	if err := tx.Set(ent, ecs.CBoundingBox, ecs.DefaultBoundingBox); err != nil {
		return err
	}
	return tx.Set(ent, ecs.CLookAt, ecs.YawPitch{})
}

// spawnPosition ищет колонку с высотой рельефа в допустимой полосе,
// сдвигаясь на чанк по X. Без генератора высот берет грубую высоту.
func spawnPosition(w *world.ReadAccess) vec.Vec3Float {
	var start vec.Vec3
	if hm := w.FindAreaGenerator(world.HeightmapGenerator); hm >= 0 {
		for count := 1; ; count++ {
			var h int16
			if data, ok := w.GetAreaData(start.Chunk().Map(), hm); ok {
				h = data.At(vec.ChunkSize/2, vec.ChunkSize/2)
			}
			if count > spawnSearchLimit || (h > spawnMinHeight && h < spawnMaxHeight) {
				start.Z = int(h) + spawnClearance
				break
			}
			start.X += vec.ChunkSize
		}
	} else if ch := w.CoarseHeight(start.Chunk().Map()); ch != world.UndefinedHeight {
		start.Z = int(ch) * vec.ChunkSize
	} else {
		start.Z = defaultSpawnHeight
	}
	start.Z += spawnDrop
	return start.ToFloat().Add(vec.Vec3Float{X: 0.5, Y: 0.5, Z: 0.5})
}

func heightsAround(w *world.ReadAccess, center vec.ChunkCoord, radius int32) []protocol.ColumnHeight {
	var out []protocol.ColumnHeight
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			mc := vec.MapCoord{X: x, Y: y}
			if h := w.CoarseHeight(mc); h != world.UndefinedHeight {
				out = append(out, protocol.ColumnHeight{Pos: mc, Height: h})
			}
		}
	}
	return out
}

// firstChunk если игрок появился в воздухе, первым отправляется верхний чанк рельефа под ним
func firstChunk(w *world.ReadAccess, c vec.ChunkCoord) vec.ChunkCoord {
	if w.IsAirChunk(c) {
		c.Z = w.CoarseHeight(c.Map()) - 1
	}
	return c
}

// knownEntities состояние всех сущностей с позицией для нового игрока
func (s *Server) knownEntities(except ecs.EntityID) (*protocol.EntityUpdate, error) {
	update := &protocol.EntityUpdate{}
	tx := s.state.Entities.Read()
	defer tx.Release()

	var err error
	tx.ForEach(func(id ecs.EntityID, v ecs.View) bool {
		if id == except {
			return false
		}
		err = addEntityState(update, id, v)
		return err != nil
	}, ecs.CPosition)
	return update, err
}

// addEntityState добавляет видимые другим игрокам компоненты сущности
func addEntityState(update *protocol.EntityUpdate, id ecs.EntityID, v ecs.View) error {
	bbox, ok := ecs.ViewGet[vec.Vec3Float](v, ecs.CBoundingBox)
	if !ok {
		bbox = ecs.DefaultBoundingBox
	}
	pos, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CPosition)
	vel, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CVelocity)
	look, _ := ecs.ViewGet[ecs.YawPitch](v, ecs.CLookAt)

	if err := update.Add(id, ecs.CPosition, pos); err != nil {
		return err
	}
	if err := update.Add(id, ecs.CBoundingBox, bbox); err != nil {
		return err
	}
	if err := update.Add(id, ecs.CLookAt, look); err != nil {
		return err
	}
	if err := update.Add(id, ecs.CVelocity, vel); err != nil {
		return err
	}
	if name, ok := ecs.ViewGet[string](v, ecs.CName); ok {
		return update.Add(id, ecs.CName, name)
	}
	return nil
}
