// Package scripting описывает обратные вызовы игровой логики и
// встроенную реализацию: копание, установка блоков и консольные команды.
package scripting

import (
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// Engine игровая логика, вызываемая сетевым циклом.
// Ошибка означает, что запрос не выполнен; соединение остается открытым.
type Engine interface {
	// PlayerLoggedIn вызывается под блокировкой записи сущностей
	PlayerLoggedIn(tx *ecs.WriteTx, id ecs.EntityID) error
	StartAction(id ecs.EntityID, button, slot uint8, look ecs.YawPitch, pos vec.Vec3Float) error
	StopAction(id ecs.EntityID, button uint8) error
	// Console выполняет команду; непустой ответ отправляется игроку
	Console(id ecs.EntityID, text string) (string, error)
}

// Nop движок без логики
type Nop struct{}

func (Nop) PlayerLoggedIn(*ecs.WriteTx, ecs.EntityID) error { return nil }

func (Nop) StartAction(ecs.EntityID, uint8, uint8, ecs.YawPitch, vec.Vec3Float) error {
	return nil
}

func (Nop) StopAction(ecs.EntityID, uint8) error { return nil }

func (Nop) Console(ecs.EntityID, string) (string, error) { return "", nil }
