package scripting

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("wrong arguments")
)

type command struct {
	usage       string
	description string
	run         func(b *Builtin, id ecs.EntityID, args []string) (string, error)
}

func builtinCommands() map[string]command {
	return map[string]command{
		"help": {
			usage:       "/help",
			description: "список команд",
			run:         (*Builtin).help,
		},
		"pos": {
			usage:       "/pos",
			description: "текущая позиция",
			run:         (*Builtin).pos,
		},
		"tp": {
			usage:       "/tp x y z",
			description: "телепорт",
			run:         (*Builtin).teleport,
		},
		"give": {
			usage:       "/give slot material",
			description: "положить материал в слот хотбара",
			run:         (*Builtin).give,
		},
	}
}

// Console разбирает строку консоли. Текст без «/» игнорируется.
func (b *Builtin) Console(id ecs.EntityID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		b.logger.Info("💬 Игрок %d: %s", id, text)
		return "", nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", ErrUnknownCommand
	}
	cmd, ok := b.commands[strings.ToLower(fields[0])]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	out, err := cmd.run(b, id, fields[1:])
	if errors.Is(err, ErrUsage) {
		return "usage: " + cmd.usage, err
	}
	return out, err
}

func (b *Builtin) help(ecs.EntityID, []string) (string, error) {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte('\n')
		}
		c := b.commands[name]
		fmt.Fprintf(&sb, "%s - %s", c.usage, c.description)
	}
	return sb.String(), nil
}

func (b *Builtin) pos(id ecs.EntityID, _ []string) (string, error) {
	tx := b.state.Entities.Read()
	defer tx.Release()
	p, ok := ecs.Get[vec.Vec3Float](tx, id, ecs.CPosition)
	if !ok {
		return "", fmt.Errorf("у сущности %d нет позиции", id)
	}
	return fmt.Sprintf("%.2f %.2f %.2f (chunk %s)", p.X, p.Y, p.Z, p.Chunk()), nil
}

func (b *Builtin) teleport(id ecs.EntityID, args []string) (string, error) {
	if len(args) != 3 {
		return "", ErrUsage
	}
	var coords [3]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUsage, err)
		}
		coords[i] = v
	}
	p := vec.Vec3Float{X: coords[0], Y: coords[1], Z: coords[2]}

	tx := b.state.Entities.Write()
	defer tx.Release()
	if err := tx.Set(id, ecs.CPosition, p); err != nil {
		return "", err
	}
	if err := tx.Set(id, ecs.CVelocity, vec.Vec3Float{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("teleported to %.1f %.1f %.1f", p.X, p.Y, p.Z), nil
}

func (b *Builtin) give(id ecs.EntityID, args []string) (string, error) {
	if len(args) != 2 {
		return "", ErrUsage
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 0 || slot >= HotbarSize {
		return "", ErrUsage
	}
	name := args[1]
	if b.reg.FindMaterial(name, registry.Air) == registry.Air {
		return "", fmt.Errorf("неизвестный материал %q", name)
	}

	tx := b.state.Entities.Write()
	defer tx.Release()
	hb, _ := ecs.Get[ecs.Hotbar](tx, id, ecs.CHotbar)
	hb = append(ecs.Hotbar(nil), hb...)
	for len(hb) <= slot {
		hb = append(hb, ecs.HotbarSlot{})
	}
	hb[slot] = ecs.HotbarSlot{Type: SlotMaterial, Name: name}
	if err := tx.Set(id, ecs.CHotbar, hb); err != nil {
		return "", err
	}
	return fmt.Sprintf("slot %d: %s", slot, name), nil
}
