// Package gamestate объединяет мир и сущности под одним правилом блокировок:
// сначала мир, потом сущности. Код, которому нужны оба хранилища сразу,
// обязан идти через этот пакет.
package gamestate

import (
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/world"
)

// State мир и хранилище сущностей сервера
type State struct {
	World    *world.Store
	Entities *ecs.Store
}

// New создает объединенный доступ
func New(w *world.Store, e *ecs.Store) *State {
	return &State{World: w, Entities: e}
}

// ReadWorldWriteEntities держит чтение мира и запись сущностей на время fn
func (s *State) ReadWorldWriteEntities(fn func(w *world.ReadAccess, tx *ecs.WriteTx) error) error {
	w := s.World.ReadAccess()
	defer w.Release()
	tx := s.Entities.Write()
	defer tx.Release()
	return fn(w, tx)
}

// ReadWorldReadEntities держит чтение мира и чтение сущностей на время fn
func (s *State) ReadWorldReadEntities(fn func(w *world.ReadAccess, tx *ecs.ReadTx) error) error {
	w := s.World.ReadAccess()
	defer w.Release()
	tx := s.Entities.Read()
	defer tx.Release()
	return fn(w, tx)
}

// WriteWorldWriteEntities эксклюзивный доступ к обоим хранилищам.
// Наблюдатели мира уведомляются после снятия обеих блокировок.
func (s *State) WriteWorldWriteEntities(fn func(w *world.WriteAccess, tx *ecs.WriteTx) error) error {
	w := s.World.WriteAccess()
	defer w.Release()
	tx := s.Entities.Write()
	defer tx.Release()
	return fn(w, tx)
}
