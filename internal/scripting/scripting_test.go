package scripting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/terrain"
)

const (
	stone uint16 = 1
	glass uint16 = 2
)

func newTestBuiltin(t *testing.T) (*Builtin, *gamestate.State) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterMaterial(stone, registry.Material{Name: "stone", Solid: true}))
	require.NoError(t, reg.RegisterMaterial(glass, registry.Material{Name: "glass", Solid: true, Transparency: 200}))

	ws, err := world.NewStore(world.Options{
		Registry:       reg,
		AreaGenerators: []world.AreaGenerator{terrain.Flat{Height: 8}},
		Terrain:        terrain.HeightmapTerrain{Surface: stone, Fill: stone},
		MemoryUsage:    func() (float64, error) { return 0, nil },
	})
	require.NoError(t, err)
	t.Cleanup(ws.Close)
	require.NoError(t, ws.PrepareForPlayer(vec.ChunkCoord{}))

	state := gamestate.New(ws, ecs.NewStore())
	return NewBuiltin(state), state
}

func blockAt(t *testing.T, s *gamestate.State, p vec.Vec3) uint16 {
	t.Helper()
	r := s.World.ReadAccess()
	defer r.Release()
	m, ok := r.GetBlock(p)
	require.True(t, ok)
	return m
}

var lookDown = ecs.YawPitch{Pitch: -math.Pi / 2}

func TestPlayerLoggedIn_GivesHotbarOnce(t *testing.T) {
	b, s := newTestBuiltin(t)

	tx := s.Entities.Write()
	require.NoError(t, b.PlayerLoggedIn(tx, 1))
	hb, ok := ecs.Get[ecs.Hotbar](tx, 1, ecs.CHotbar)
	require.True(t, ok)
	assert.Equal(t, ecs.Hotbar{{Type: SlotMaterial, Name: "stone"}, {Type: SlotMaterial, Name: "glass"}}, hb)

	require.NoError(t, tx.Set(1, ecs.CHotbar, ecs.Hotbar{{Type: SlotMaterial, Name: "glass"}}))
	require.NoError(t, b.PlayerLoggedIn(tx, 1))
	hb, _ = ecs.Get[ecs.Hotbar](tx, 1, ecs.CHotbar)
	assert.Len(t, hb, 1, "существующий хотбар не перезаписывается")
	tx.Release()
}

func TestStartAction_DigAndPlace(t *testing.T) {
	b, s := newTestBuiltin(t)
	eye := vec.Vec3Float{X: 5.5, Y: 5.5, Z: 10.5}
	top := vec.Vec3{X: 5, Y: 5, Z: 7}

	require.Equal(t, stone, blockAt(t, s, top))
	require.NoError(t, b.StartAction(1, ButtonDig, 0, lookDown, eye))
	assert.Equal(t, registry.Air, blockAt(t, s, top), "верхний блок сломан")

	tx := s.Entities.Write()
	require.NoError(t, tx.Set(1, ecs.CHotbar, ecs.Hotbar{{Type: SlotMaterial, Name: "glass"}}))
	tx.Release()

	require.NoError(t, b.StartAction(1, ButtonPlace, 0, lookDown, eye))
	assert.Equal(t, glass, blockAt(t, s, top), "стекло поставлено на место сломанного блока")

	err := b.StartAction(1, ButtonPlace, 5, lookDown, eye)
	assert.ErrorIs(t, err, ErrEmptySlot)

	err = b.StartAction(1, ButtonDig, 0, ecs.YawPitch{Pitch: math.Pi / 2}, eye)
	assert.ErrorIs(t, err, ErrNothingTarget, "вверху только воздух")

	rtx := s.Entities.Read()
	look, ok := ecs.Get[ecs.YawPitch](rtx, 1, ecs.CLookAt)
	rtx.Release()
	assert.True(t, ok, "направление взгляда сохраняется")
	assert.Equal(t, float32(math.Pi/2), look.Pitch)
}

func TestConsole_Commands(t *testing.T) {
	b, s := newTestBuiltin(t)

	out, err := b.Console(1, "/help")
	require.NoError(t, err)
	assert.Contains(t, out, "/tp x y z")
	assert.Contains(t, out, "/give slot material")

	out, err = b.Console(1, "/tp 1 2 3.5")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	tx := s.Entities.Read()
	p, ok := ecs.Get[vec.Vec3Float](tx, 1, ecs.CPosition)
	tx.Release()
	require.True(t, ok)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 2, Z: 3.5}, p)

	out, err = b.Console(1, "/pos")
	require.NoError(t, err)
	assert.Contains(t, out, "1.00 2.00 3.50")

	_, err = b.Console(1, "/give 2 glass")
	require.NoError(t, err)
	tx = s.Entities.Read()
	hb, _ := ecs.Get[ecs.Hotbar](tx, 1, ecs.CHotbar)
	dirty := tx.TakeChanged(1)
	tx.Release()
	require.Len(t, hb, 3)
	assert.Equal(t, "glass", hb[2].Name)
	assert.Contains(t, dirty, ecs.CHotbar, "хотбар помечен для рассылки")

	out, err = b.Console(1, "/tp 1 2")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Equal(t, "usage: /tp x y z", out)

	_, err = b.Console(1, "/give 0 unobtainium")
	assert.Error(t, err)

	_, err = b.Console(1, "/fly")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	out, err = b.Console(1, "hello")
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestDirection(t *testing.T) {
	d := Direction(ecs.YawPitch{})
	assert.InDelta(t, 1, d.X, 1e-9)
	d = Direction(lookDown)
	assert.InDelta(t, -1, d.Z, 1e-6)
}
