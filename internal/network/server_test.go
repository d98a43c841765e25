package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/scripting"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/terrain"
)

const (
	stone   uint16 = 1
	waiting        = 3 * time.Second
	tick           = 5 * time.Millisecond
)

type harness struct {
	host   *transport.Loopback
	server *Server
	state  *gamestate.State
	queue  *jobs.Queue
	errc   chan error
}

type harnessOptions struct {
	terrainHeight int16
	configure     func(cfg *config.Config)
	engine        *fakeEngine
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Mode = config.ModeSingleplayer
	cfg.Ticks.PollTimeout = time.Millisecond
	cfg.Ticks.PhysicsBroadcast = time.Hour
	cfg.Ticks.DirtyBroadcast = time.Hour
	cfg.Ticks.Cleanup = time.Hour
	if opts.configure != nil {
		opts.configure(cfg)
	}

	reg := registry.New()
	require.NoError(t, reg.RegisterMaterial(stone, registry.Material{Name: "stone", Solid: true}))
	ws, err := world.NewStore(world.Options{
		Registry:       reg,
		AreaGenerators: []world.AreaGenerator{terrain.Flat{Height: opts.terrainHeight}},
		Terrain:        terrain.HeightmapTerrain{Surface: stone, Fill: stone},
		MemoryUsage:    func() (float64, error) { return 0, nil },
	})
	require.NoError(t, err)
	state := gamestate.New(ws, ecs.NewStore())

	tokens, err := auth.NewTokens("", time.Hour)
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(storage.NewMemoryStorage(), tokens,
		cfg.Server.Mode == config.ModeSingleplayer)

	ctx, cancel := context.WithCancel(context.Background())
	pool := jobs.NewPool(ctx, 2)
	queue := jobs.NewQueue()
	host := transport.NewLoopback()

	var engine scripting.Engine
	if opts.engine != nil {
		engine = opts.engine
	}
	server, err := NewServer(Options{
		Config: cfg,
		State:  state,
		Host:   host,
		Queue:  queue,
		Pool:   pool,
		Engine: engine,
		Auth:   authenticator,
	})
	require.NoError(t, err)

	h := &harness{host: host, server: server, state: state, queue: queue, errc: make(chan error, 1)}
	go func() { h.errc <- server.Run(ctx) }()

	t.Cleanup(func() {
		server.Stop()
		cancel()
		_ = pool.Stop()
		ws.Close()
	})
	return h
}

// client накапливает полученные сообщения
type client struct {
	peer *transport.LoopbackPeer
	mu   sync.Mutex
	got  []protocol.Message
}

func (h *harness) connect() *client {
	return &client{peer: h.host.Connect("127.0.0.1:1")}
}

func (c *client) poll() {
	msgs, _ := c.peer.Messages()
	c.mu.Lock()
	c.got = append(c.got, msgs...)
	c.mu.Unlock()
}

func (c *client) messages() []protocol.Message {
	c.poll()
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.got...)
}

func (c *client) clear() {
	c.poll()
	c.mu.Lock()
	c.got = nil
	c.mu.Unlock()
}

func (c *client) find(pred func(protocol.Message) bool) (protocol.Message, bool) {
	for _, m := range c.messages() {
		if pred(m) {
			return m, true
		}
	}
	return nil, false
}

func (c *client) waitFor(t *testing.T, what string, pred func(protocol.Message) bool) protocol.Message {
	t.Helper()
	var found protocol.Message
	require.Eventually(t, func() bool {
		m, ok := c.find(pred)
		found = m
		return ok
	}, waiting, tick, "не дождались: %s", what)
	return found
}

// barrier отправляет time_sync и ждет ответа: всё, что сервер отправил
// в ответ на предыдущие сообщения, к этому моменту уже получено
func (c *client) barrier(t *testing.T) {
	t.Helper()
	c.peer.Send(&protocol.TimeSyncRequest{ClientTime: 777})
	c.waitFor(t, "time_sync_response", func(m protocol.Message) bool {
		r, ok := m.(*protocol.TimeSyncResponse)
		return ok && r.RequestTime == 777
	})
}

func isType[T protocol.Message](m protocol.Message) bool {
	_, ok := m.(T)
	return ok
}

func surfaceAt(pos vec.ChunkCoord) func(protocol.Message) bool {
	return func(m protocol.Message) bool {
		s, ok := m.(*protocol.SurfaceUpdate)
		return ok && s.Pos == pos && len(s.Surface) > 0
	}
}

func count(msgs []protocol.Message, pred func(protocol.Message) bool) int {
	n := 0
	for _, m := range msgs {
		if pred(m) {
			n++
		}
	}
	return n
}

func (c *client) login(t *testing.T, credentials string) *protocol.Greeting {
	t.Helper()
	c.peer.Send(&protocol.Login{Credentials: credentials})
	return c.waitFor(t, "greeting", isType[*protocol.Greeting]).(*protocol.Greeting)
}

// loginAndSettle входит и ждет первый чанк под игроком
func (c *client) loginAndSettle(t *testing.T, credentials string) *protocol.Greeting {
	t.Helper()
	g := c.login(t, credentials)
	c.waitFor(t, "первый чанк", isType[*protocol.SurfaceUpdate])
	c.clear()
	return g
}

func (h *harness) teleport(t *testing.T, id uint32, p vec.Vec3Float) {
	t.Helper()
	tx := h.state.Entities.Write()
	defer tx.Release()
	require.NoError(t, tx.Set(ecs.EntityID(id), ecs.CPosition, p))
}

type fakeEngine struct {
	mu       sync.Mutex
	logins   []ecs.EntityID
	presses  []uint8
	releases []uint8
	console  []string
}

func (f *fakeEngine) PlayerLoggedIn(tx *ecs.WriteTx, id ecs.EntityID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, id)
	return tx.Set(id, ecs.CHotbar, ecs.Hotbar{{Type: 1, Name: "stone"}})
}

func (f *fakeEngine) StartAction(id ecs.EntityID, button, slot uint8, look ecs.YawPitch, pos vec.Vec3Float) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presses = append(f.presses, button)
	if button == 9 {
		panic("сломанный скрипт")
	}
	return nil
}

func (f *fakeEngine) StopAction(id ecs.EntityID, button uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, button)
	return errors.New("скрипт упал")
}

func (f *fakeEngine) Console(id ecs.EntityID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.console = append(f.console, text)
	return "echo: " + text, nil
}

func TestConnect_SendsHandshakeAndCatalogs(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: 8})
	c := h.connect()

	var msgs []protocol.Message
	require.Eventually(t, func() bool {
		msgs = c.messages()
		return len(msgs) >= 3
	}, waiting, tick)

	hs, ok := msgs[0].(*protocol.Handshake)
	require.True(t, ok, "первым идет рукопожатие")
	assert.Len(t, hs.PublicKey, publicKeySize)
	assert.Equal(t, config.Default().Server.Name, hs.ServerName)

	_, ok = msgs[1].(*protocol.DefineResources)
	assert.True(t, ok)

	mats, ok := msgs[2].(*protocol.DefineMaterials)
	require.True(t, ok)
	require.Len(t, mats.Materials, 1, "воздух не передается")
	assert.Equal(t, "stone", mats.Materials[0].Name)
	assert.Equal(t, stone, mats.Materials[0].ID)
}

func TestConnect_MaxPlayersKicks(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Server.MaxPlayers = 1 },
	})
	first := h.connect()
	first.waitFor(t, "рукопожатие", isType[*protocol.Handshake])

	second := h.connect()
	kick := second.waitFor(t, "kick", isType[*protocol.Kick]).(*protocol.Kick)
	assert.Equal(t, "Server is full", kick.Reason)
	assert.False(t, second.peer.Connected())
	assert.True(t, first.peer.Connected())
}

func TestLogin_SingleplayerRejectedInMultiplayerMode(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Server.Mode = config.ModeMultiplayer },
	})
	c := h.connect()
	c.peer.Send(&protocol.Login{Credentials: `{"method":"singleplayer"}`})

	kick := c.waitFor(t, "kick", isType[*protocol.Kick]).(*protocol.Kick)
	assert.Equal(t, "Server is not running in singleplayer mode", kick.Reason)
	_, greeted := c.find(isType[*protocol.Greeting])
	assert.False(t, greeted)
}

func TestLogin_Singleplayer(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, harnessOptions{terrainHeight: 8, engine: engine})
	c := h.connect()

	g := c.login(t, `{"method":"singleplayer","name":"Solo"}`)
	assert.Equal(t, uint32(0), g.EntityID)
	assert.Equal(t, config.Default().Server.MOTD, g.MOTD)
	assert.Empty(t, g.Token, "одиночному игроку токен не нужен")

	// рельеф ниже полосы поиска: точка появления сдвинута на предельное число колонок
	assert.Equal(t, vec.Vec3Float{X: 1600.5, Y: 0.5, Z: 8 + 4 + 26 + 0.5}, g.Position)

	hm := c.waitFor(t, "heightmap", isType[*protocol.HeightmapUpdate]).(*protocol.HeightmapUpdate)
	assert.Len(t, hm.Heights, 25*25, "квадрат радиуса 12 вокруг игрока")

	// игрок в воздухе: первым идет верхний чанк рельефа под ним
	c.waitFor(t, "первый чанк", surfaceAt(vec.ChunkCoord{X: 100, Y: 0, Z: 0}))

	players := h.server.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "Solo", players[0].Name)
	assert.Equal(t, g.Position, players[0].Position)

	engine.mu.Lock()
	assert.Equal(t, []ecs.EntityID{0}, engine.logins)
	engine.mu.Unlock()
}

// пустая колонка отвечает только грубой высотой
func TestRequestChunks_AirColumnSendsOnlyHeight(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: -20})
	c := h.connect()
	c.loginAndSettle(t, `{"method":"singleplayer"}`)

	c.peer.Send(&protocol.RequestChunks{Chunks: []vec.ChunkCoord{{X: 0, Y: 0, Z: 0}}})
	c.barrier(t)

	msgs := c.messages()
	assert.Zero(t, count(msgs, isType[*protocol.SurfaceUpdate]), "поверхность пустого чанка не отправляется")
	require.Equal(t, 1, count(msgs, isType[*protocol.HeightmapUpdate]))
	hm, _ := c.find(isType[*protocol.HeightmapUpdate])
	assert.Equal(t, []protocol.ColumnHeight{{Pos: vec.MapCoord{}, Height: -1}}, hm.(*protocol.HeightmapUpdate).Heights)

	r := h.state.World.ReadAccess()
	defer r.Release()
	assert.False(t, r.IsChunkAvailable(vec.ChunkCoord{}), "пустой чанк не генерировался")
}

// запрос несгенерированного чанка дает ровно одну поверхность
func TestRequestChunks_GeneratesOnceAndSendsOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: 8})
	c := h.connect()
	c.loginAndSettle(t, `{"method":"singleplayer"}`)

	target := vec.ChunkCoord{X: 5, Y: 5, Z: 0}
	r := h.state.World.ReadAccess()
	require.False(t, r.IsChunkAvailable(target))
	r.Release()

	c.peer.Send(&protocol.RequestChunks{Chunks: []vec.ChunkCoord{target, target}})
	update := c.waitFor(t, "surface_update", surfaceAt(target)).(*protocol.SurfaceUpdate)

	raw, err := h.state.World.Decompress(update.Surface)
	require.NoError(t, err)
	surface, ok := world.DecodeSurface(raw)
	require.True(t, ok)
	assert.NotEmpty(t, surface)
	assert.NotEmpty(t, update.Lightmap)

	time.Sleep(50 * time.Millisecond)
	c.barrier(t)
	assert.Equal(t, 1, count(c.messages(), surfaceAt(target)), "ровно одна поверхность на запрос")

	// готовый чанк отправляется сразу
	c.clear()
	c.peer.Send(&protocol.RequestChunks{Chunks: []vec.ChunkCoord{target}})
	c.barrier(t)
	assert.Equal(t, 1, count(c.messages(), surfaceAt(target)))
}

// правка доходит ровно один раз до близких игроков и не доходит до дальних
func TestChangePropagation_RespectsCutoff(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Server.Mode = config.ModeMultiplayer },
	})

	near1, near2, far := h.connect(), h.connect(), h.connect()
	g1 := near1.loginAndSettle(t, `{"method":"password","name":"near1","password":"pw"}`)
	g2 := near2.loginAndSettle(t, `{"method":"password","name":"near2","password":"pw"}`)
	g3 := far.loginAndSettle(t, `{"method":"password","name":"far","password":"pw"}`)

	h.teleport(t, g1.EntityID, vec.Vec3Float{X: 20, Y: 5, Z: 10})          // чанк (1,0,0)
	h.teleport(t, g2.EntityID, vec.Vec3Float{X: 30*16 + 1, Y: 30*16 + 1, Z: 1}) // расстояние 60
	h.teleport(t, g3.EntityID, vec.Vec3Float{X: 40*16 + 1, Y: 30*16 + 1, Z: 1}) // расстояние 70
	for _, c := range []*client{near1, near2, far} {
		c.clear()
	}

	target := vec.ChunkCoord{}
	w := h.state.World.WriteAccess()
	require.NoError(t, w.ChangeBlock(vec.Vec3{X: 8, Y: 8, Z: 7}, registry.Air))
	w.Release()

	near1.waitFor(t, "правка у первого", surfaceAt(target))
	near2.waitFor(t, "правка у второго", surfaceAt(target))
	far.barrier(t)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, count(near1.messages(), surfaceAt(target)))
	assert.Equal(t, 1, count(near2.messages(), surfaceAt(target)))
	assert.Zero(t, count(far.messages(), surfaceAt(target)), "дальний игрок не получает правку")
}

func TestQuitJob_ObservedWithinIteration(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: 8})

	for i := 0; i < 1000; i++ {
		h.queue.Push(jobs.Job{Kind: jobs.SurfaceAndLightmap, Pos: vec.ChunkCoord{X: int32(i)}})
	}
	h.queue.Push(jobs.Job{Kind: jobs.Quit})

	select {
	case err := <-h.errc:
		assert.NoError(t, err)
	case <-time.After(waiting):
		t.Fatal("сетевой цикл не остановился по заданию quit")
	}
	assert.Empty(t, h.queue.Drain(), "весь пакет заданий разобран в той же итерации")
}

func TestStop_ReturnsAfterLoopExit(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: 8})
	done := make(chan struct{})
	go func() {
		h.server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waiting):
		t.Fatal("Stop не вернулся")
	}
}

func TestDirtyBroadcast_SendsChangeOnceToOwner(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure: func(cfg *config.Config) {
			cfg.Server.Mode = config.ModeMultiplayer
			cfg.Ticks.DirtyBroadcast = 10 * time.Millisecond
		},
	})
	owner, other := h.connect(), h.connect()
	g := owner.loginAndSettle(t, `{"method":"password","name":"owner","password":"pw"}`)
	other.loginAndSettle(t, `{"method":"password","name":"other","password":"pw"}`)

	time.Sleep(50 * time.Millisecond)
	owner.clear()
	other.clear()

	hasHotbar := func(m protocol.Message) bool {
		u, ok := m.(*protocol.EntityUpdate)
		if !ok {
			return false
		}
		values, err := u.Values()
		if err != nil {
			return false
		}
		for _, v := range values {
			if v.Entity == ecs.EntityID(g.EntityID) && v.Component == ecs.CHotbar {
				return true
			}
		}
		return false
	}

	tx := h.state.Entities.Write()
	require.NoError(t, tx.Set(ecs.EntityID(g.EntityID), ecs.CHotbar, ecs.Hotbar{{Type: 1, Name: "stone"}}))
	tx.Release()

	owner.waitFor(t, "хотбар", hasHotbar)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, count(owner.messages(), hasHotbar), "неизмененное значение не рассылается повторно")
	assert.Zero(t, count(other.messages(), hasHotbar), "хотбар получает только владелец")

	r := h.state.Entities.Read()
	defer r.Release()
	assert.Nil(t, r.TakeChanged(ecs.EntityID(g.EntityID)), "рассылка забрала все изменения")
}

func TestPhysicsBroadcast_Unreliable(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Ticks.PhysicsBroadcast = 10 * time.Millisecond },
	})
	c := h.connect()
	c.login(t, `{"method":"singleplayer"}`)

	require.Eventually(t, func() bool {
		for _, sent := range c.peer.Take() {
			m, err := protocol.Decode(sent.Frame)
			if err != nil {
				continue
			}
			if _, ok := m.(*protocol.EntityUpdatePhysics); ok {
				return sent.Reliability == protocol.Unreliable
			}
		}
		return false
	}, waiting, tick, "физика рассылается без гарантии доставки")
}

func TestDispatch_UnknownAndFailingMessagesDoNotBreakConnection(t *testing.T) {
	engine := &fakeEngine{}
	h := newHarness(t, harnessOptions{terrainHeight: 8, engine: engine})
	c := h.connect()

	// до входа игровые сообщения отклоняются
	c.peer.Send(&protocol.LookAt{})
	c.loginAndSettle(t, `{"method":"singleplayer"}`)

	c.peer.SendRaw([]byte{200, 1, 2, 3})
	c.peer.SendRaw([]byte{byte(protocol.MsgKick)})
	c.peer.SendRaw([]byte{byte(protocol.MsgMotion), 0xff})
	c.peer.SendRaw(nil)
	c.peer.Send(&protocol.ButtonPress{Button: 9})
	c.peer.Send(&protocol.ButtonRelease{Button: 1})
	c.peer.Send(&protocol.Console{Text: "/ping"})

	reply := c.waitFor(t, "print_message", isType[*protocol.PrintMessage]).(*protocol.PrintMessage)
	assert.Equal(t, "echo: /ping", reply.Text)
	c.barrier(t)
	assert.True(t, c.peer.Connected())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, []uint8{9}, engine.presses)
	assert.Equal(t, []uint8{1}, engine.releases)
}

func TestMotionAndLookAt_UpdateEntity(t *testing.T) {
	h := newHarness(t, harnessOptions{terrainHeight: 8})
	c := h.connect()
	c.loginAndSettle(t, `{"method":"singleplayer"}`)

	c.peer.Send(&protocol.Motion{MoveDir: 64, MoveSpeed: 255, Position: vec.Vec3Float{X: 1, Y: 2, Z: 3}})
	c.peer.Send(&protocol.LookAt{Look: ecs.YawPitch{Yaw: 1.5, Pitch: -0.5}})
	c.barrier(t)

	tx := h.state.Entities.Read()
	defer tx.Release()
	walk, ok := ecs.Get[vec.Vec3Float](tx, 0, ecs.CWalk)
	require.True(t, ok)
	assert.InDelta(t, 0, walk.X, 1e-9)
	assert.InDelta(t, 1, walk.Y, 1e-9, "направление 64 из 256 это четверть оборота")

	pos, _ := ecs.Get[vec.Vec3Float](tx, 0, ecs.CPosition)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 2, Z: 3}, pos)
	look, _ := ecs.Get[ecs.YawPitch](tx, 0, ecs.CLookAt)
	assert.Equal(t, ecs.YawPitch{Yaw: 1.5, Pitch: -0.5}, look)
}

func TestLogin_PasswordThenTokenKeepsEntity(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Server.Mode = config.ModeMultiplayer },
	})
	first := h.connect()
	g := first.loginAndSettle(t, `{"method":"password","name":"Alice","password":"pw"}`)
	require.NotEmpty(t, g.Token)
	require.NotEqual(t, uint32(0), g.EntityID)
	first.peer.Close()

	require.Eventually(t, func() bool { return len(h.server.Players()) == 0 }, waiting, tick)

	second := h.connect()
	g2 := second.login(t, `{"method":"token","token":"`+g.Token+`"}`)
	assert.Equal(t, g.EntityID, g2.EntityID, "токен возвращает ту же сущность")
	assert.Equal(t, g.Position, g2.Position, "позиция сохраняется между входами")

	third := h.connect()
	third.peer.Send(&protocol.Login{Credentials: `{"method":"password","name":"alice","password":"bad"}`})
	kick := third.waitFor(t, "kick", isType[*protocol.Kick]).(*protocol.Kick)
	assert.Equal(t, "Login failed", kick.Reason)
}

func TestLogin_OthersLearnAboutNewPlayer(t *testing.T) {
	h := newHarness(t, harnessOptions{
		terrainHeight: 8,
		configure:     func(cfg *config.Config) { cfg.Server.Mode = config.ModeMultiplayer },
	})
	a, b := h.connect(), h.connect()
	ga := a.loginAndSettle(t, `{"method":"password","name":"a","password":"pw"}`)
	gb := b.login(t, `{"method":"password","name":"b","password":"pw"}`)

	mentions := func(id uint32) func(protocol.Message) bool {
		return func(m protocol.Message) bool {
			u, ok := m.(*protocol.EntityUpdate)
			if !ok {
				return false
			}
			for _, e := range u.Entities {
				if uint32(e.Entity) == id {
					return true
				}
			}
			return false
		}
	}
	a.waitFor(t, "a узнает о b", mentions(gb.EntityID))
	b.waitFor(t, "b узнает об a", mentions(ga.EntityID))

	b.barrier(t)
	_, self := b.find(mentions(gb.EntityID))
	assert.False(t, self, "новый игрок не получает собственную сущность в списке остальных")
}
