package network

import (
	"context"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/vec"
)

// ownerComponents изменения, которые получает только владелец сущности
var ownerComponents = map[ecs.ComponentID]bool{
	ecs.CHotbar: true,
	ecs.CName:   true,
}

// broadcastPhysics рассылает позиции и скорости всех движущихся сущностей
func (s *Server) broadcastPhysics() {
	targets := s.loggedIn()
	if len(targets) == 0 {
		return
	}
	update := &protocol.EntityUpdatePhysics{}
	tx := s.state.Entities.Read()
	var err error
	tx.ForEach(func(id ecs.EntityID, v ecs.View) bool {
		pos, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CPosition)
		vel, _ := ecs.ViewGet[vec.Vec3Float](v, ecs.CVelocity)
		if err = update.Add(id, ecs.CPosition, pos); err != nil {
			return true
		}
		err = update.Add(id, ecs.CVelocity, vel)
		return err != nil
	}, ecs.CPosition, ecs.CVelocity)
	tx.Release()

	if err != nil {
		s.logger.Error("❌ Ошибка кодирования физики: %v", err)
		return
	}
	if !update.Empty() {
		s.broadcast(update, 0)
	}
}

// broadcastDirty забирает флаги изменений и отправляет измененные
// компоненты владельцу сущности. Неизмененное значение повторно не уходит.
func (s *Server) broadcastDirty() {
	updates := make(map[transport.PeerID]*protocol.EntityUpdate)
	var err error

	tx := s.state.Entities.Read()
	tx.ForEach(func(id ecs.EntityID, v ecs.View) bool {
		changed := tx.TakeChanged(id)
		peer, bound := s.byEntity[id]
		if !bound {
			return false
		}
		for _, comp := range changed {
			if !ownerComponents[comp] {
				continue
			}
			value, ok := v.Get(comp)
			if !ok {
				continue
			}
			update := updates[peer]
			if update == nil {
				update = &protocol.EntityUpdate{}
				updates[peer] = update
			}
			if err = update.Add(id, comp, value); err != nil {
				return true
			}
		}
		return false
	})
	tx.Release()

	if err != nil {
		s.logger.Error("❌ Ошибка кодирования изменений: %v", err)
	}
	for peer, update := range updates {
		if c, ok := s.conns[peer]; ok {
			s.send(c, update)
		}
	}
}

// scheduleCleanup отправляет очистку кэша мира в пул, чтобы не держать
// блокировку записи мира в сетевом цикле
func (s *Server) scheduleCleanup() {
	if !s.cleanupBusy.CompareAndSwap(false, true) {
		return
	}
	store := s.state.World
	accepted := s.pool.Enqueue(func(ctx context.Context) error {
		defer s.cleanupBusy.Store(false)
		stats, err := store.Cleanup()
		s.logger.Debug("🧹 Очистка мира: сброшено %d, выгружено %d, в кэше %d",
			stats.Flushed, stats.Evicted, stats.Cached)
		return err
	})
	if !accepted {
		s.cleanupBusy.Store(false)
	}
}
