package scripting

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

const (
	ButtonDig   uint8 = 0
	ButtonPlace uint8 = 1

	// SlotMaterial слот хотбара с материалом
	SlotMaterial uint8 = 1

	HotbarSize = 9

	reach   = 8.0
	rayStep = 0.05
)

var (
	ErrEmptySlot     = errors.New("empty hotbar slot")
	ErrNothingTarget = errors.New("no block in reach")
)

// Builtin встроенный движок
type Builtin struct {
	state    *gamestate.State
	reg      *registry.Registry
	commands map[string]command
	logger   *logging.Logger
}

// NewBuiltin создает встроенный движок поверх состояния сервера
func NewBuiltin(state *gamestate.State) *Builtin {
	b := &Builtin{
		state:  state,
		reg:    state.World.Registry(),
		logger: logging.GetScriptingLogger(),
	}
	b.commands = builtinCommands()
	return b
}

// PlayerLoggedIn выдает новому игроку хотбар из первых материалов
func (b *Builtin) PlayerLoggedIn(tx *ecs.WriteTx, id ecs.EntityID) error {
	if tx.Has(id, ecs.CHotbar) {
		return nil
	}
	var hb ecs.Hotbar
	for _, m := range b.reg.Materials() {
		if len(hb) == HotbarSize {
			break
		}
		hb = append(hb, ecs.HotbarSlot{Type: SlotMaterial, Name: m.Name})
	}
	b.logger.Debug("🎒 Игрок %d получил хотбар из %d слотов", id, len(hb))
	return tx.Set(id, ecs.CHotbar, hb)
}

// StartAction кнопка 0 ломает блок под прицелом, кнопка 1 ставит материал из слота
func (b *Builtin) StartAction(id ecs.EntityID, button, slot uint8, look ecs.YawPitch, pos vec.Vec3Float) error {
	return b.state.WriteWorldWriteEntities(func(w *world.WriteAccess, tx *ecs.WriteTx) error {
		if err := tx.Set(id, ecs.CLookAt, look); err != nil {
			return err
		}
		hit, before, ok := b.raycast(&w.ReadAccess, pos, look)
		if !ok {
			return ErrNothingTarget
		}

		switch button {
		case ButtonDig:
			b.logger.Debug("⛏️ Игрок %d ломает блок %s", id, hit)
			return w.ChangeBlock(hit, registry.Air)

		case ButtonPlace:
			hb, _ := ecs.Get[ecs.Hotbar](tx, id, ecs.CHotbar)
			if int(slot) >= len(hb) || hb[slot].Type != SlotMaterial {
				return fmt.Errorf("%w: %d", ErrEmptySlot, slot)
			}
			material := b.reg.FindMaterial(hb[slot].Name, registry.Air)
			if material == registry.Air {
				return fmt.Errorf("%w: %q", world.ErrUnknownMaterial, hb[slot].Name)
			}
			if before == hit {
				return ErrNothingTarget
			}
			b.logger.Debug("🧱 Игрок %d ставит %s в %s", id, hb[slot].Name, before)
			return w.ChangeBlock(before, material)
		}
		return nil
	})
}

// StopAction встроенный движок не держит длительных действий
func (b *Builtin) StopAction(ecs.EntityID, uint8) error {
	return nil
}

// raycast идет от глаз по направлению взгляда до первого непустого блока.
// Возвращает найденный блок и последний пустой перед ним.
func (b *Builtin) raycast(r *world.ReadAccess, from vec.Vec3Float, look ecs.YawPitch) (hit, before vec.Vec3, ok bool) {
	dir := Direction(look)
	before = from.Block()
	for t := 0.0; t <= reach; t += rayStep {
		p := from.Add(dir.Mul(t)).Block()
		if p == before && t > 0 {
			continue
		}
		m, loaded := r.GetBlock(p)
		if !loaded {
			return vec.Vec3{}, vec.Vec3{}, false
		}
		if m != registry.Air {
			return p, before, true
		}
		before = p
	}
	return vec.Vec3{}, vec.Vec3{}, false
}

// Direction единичный вектор взгляда. Yaw отсчитывается от оси X к оси Y,
// pitch от горизонта вверх.
func Direction(look ecs.YawPitch) vec.Vec3Float {
	yaw, pitch := float64(look.Yaw), float64(look.Pitch)
	return vec.Vec3Float{
		X: math.Cos(pitch) * math.Cos(yaw),
		Y: math.Cos(pitch) * math.Sin(yaw),
		Z: math.Sin(pitch),
	}
}
