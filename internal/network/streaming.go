package network

import (
	"context"
	"fmt"
	"sort"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

// surfaceCutoff изменения поверхности получают игроки ближе этого
// манхэттенского расстояния в чанках
const surfaceCutoff = 64

// drainJobs разбирает очередь; true если встретилось задание Quit
func (s *Server) drainJobs() (quit bool) {
	batch := s.queue.Drain()
	if len(batch) == 0 {
		return false
	}
	seen := make(map[jobs.Job]struct{}, len(batch))
	for _, job := range batch {
		jobsProcessed.WithLabelValues(job.Kind.String()).Inc()
		if job.Kind == jobs.Quit {
			quit = true
			continue
		}
		if _, dup := seen[job]; dup {
			continue
		}
		seen[job] = struct{}{}

		switch job.Kind {
		case jobs.SurfaceAndLightmap:
			if job.Dest == 0 {
				s.broadcastSurface(job.Pos)
			} else if c, ok := s.conns[transport.PeerID(job.Dest)]; ok {
				s.deliverRequested(c, job.Pos)
			}
		case jobs.Lightmap:
			if c, ok := s.conns[transport.PeerID(job.Dest)]; ok {
				s.sendLightmap(c, job.Pos)
			}
		case jobs.EntityInfo:
			if c, ok := s.conns[transport.PeerID(job.Dest)]; ok && c.loggedIn {
				s.sendEntityInfo(c, ecs.EntityID(job.Entity))
			}
		}
	}
	return quit
}

// requestSurface ставит генерацию чанка в пул; по готовности воркер
// кладет в очередь задание на отправку
func (s *Server) requestSurface(c *connection, pos vec.ChunkCoord) {
	if _, busy := c.pending[pos]; busy {
		return
	}
	c.pending[pos] = struct{}{}

	dest := peerOf(c)
	store := s.state.World
	queue := s.queue
	accepted := s.pool.Enqueue(func(ctx context.Context) error {
		if err := store.PrepareForPlayer(pos); err != nil {
			return fmt.Errorf("генерация чанка %s: %w", pos, err)
		}
		queue.Push(jobs.Job{Kind: jobs.SurfaceAndLightmap, Pos: pos, Dest: dest})
		return nil
	})
	if !accepted {
		delete(c.pending, pos)
		s.logger.Warn("⚠️ Пул остановлен, чанк %s не будет сгенерирован", pos)
	}
}

// deliverRequested отправляет сгенерированный чанк, если его еще
// не доставила рассылка изменений
func (s *Server) deliverRequested(c *connection, pos vec.ChunkCoord) {
	if _, waiting := c.pending[pos]; !waiting {
		return
	}
	delete(c.pending, pos)
	s.sendSurface(c, pos)
}

func (s *Server) surfaceUpdate(r *world.ReadAccess, pos vec.ChunkCoord) (*protocol.SurfaceUpdate, bool) {
	surface, ok := r.GetCompressedSurface(pos)
	if !ok {
		return nil, false
	}
	light, _ := r.GetCompressedLightmap(pos)
	return &protocol.SurfaceUpdate{Pos: pos, Surface: surface, Lightmap: light}, true
}

func (s *Server) sendSurface(c *connection, pos vec.ChunkCoord) {
	r := s.state.World.ReadAccess()
	update, ok := s.surfaceUpdate(r, pos)
	r.Release()
	if !ok {
		s.logger.Debug("🌫️ Поверхность %s недоступна, пропускаем", pos)
		return
	}
	s.send(c, update)
	surfacesSent.Inc()
}

// broadcastSurface рассылает поверхность всем игрокам в пределах surfaceCutoff
func (s *Server) broadcastSurface(pos vec.ChunkCoord) {
	targets := s.loggedIn()
	if len(targets) == 0 {
		return
	}
	var (
		update *protocol.SurfaceUpdate
		near   []*connection
	)
	err := s.state.ReadWorldReadEntities(func(w *world.ReadAccess, tx *ecs.ReadTx) error {
		var ok bool
		if update, ok = s.surfaceUpdate(w, pos); !ok {
			return nil
		}
		for _, c := range targets {
			p, ok := ecs.Get[vec.Vec3Float](tx, c.entity, ecs.CPosition)
			if ok && vec.ManhattanDistance(pos, p.Chunk()) < surfaceCutoff {
				near = append(near, c)
			}
		}
		return nil
	})
	if err != nil || update == nil {
		return
	}

	frame := protocol.Encode(update)
	for _, c := range near {
		delete(c.pending, pos)
		s.sendFrame(c, update.ID(), frame, update.Reliability())
		surfacesSent.Inc()
	}
}

// sendLightmap отправляет только освещение уже известной клиенту поверхности
func (s *Server) sendLightmap(c *connection, pos vec.ChunkCoord) {
	r := s.state.World.ReadAccess()
	light, ok := r.GetCompressedLightmap(pos)
	r.Release()
	if ok {
		s.send(c, &protocol.SurfaceUpdate{Pos: pos, Lightmap: light})
	}
}

func (s *Server) sendHeight(c *connection, mc vec.MapCoord, h int32) {
	if h == world.UndefinedHeight {
		return
	}
	s.send(c, &protocol.HeightmapUpdate{Heights: []protocol.ColumnHeight{{Pos: mc, Height: h}}})
}

func (s *Server) sendEntityInfo(c *connection, id ecs.EntityID) {
	update := &protocol.EntityUpdate{}
	tx := s.state.Entities.Read()
	var err error
	tx.ForEach(func(e ecs.EntityID, v ecs.View) bool {
		if e == id {
			err = addEntityState(update, e, v)
			return true
		}
		return false
	}, ecs.CPosition)
	tx.Release()

	if err != nil {
		s.logger.Error("❌ Ошибка кодирования сущности %d: %v", id, err)
		return
	}
	if !update.Empty() {
		s.send(c, update)
	}
}

// flushHeights рассылает накопленные изменения грубых высот
func (s *Server) flushHeights() {
	s.heightMu.Lock()
	if len(s.heightChanges) == 0 {
		s.heightMu.Unlock()
		return
	}
	changes := s.heightChanges
	s.heightChanges = make(map[vec.MapCoord]int32)
	s.heightMu.Unlock()

	update := &protocol.HeightmapUpdate{Heights: make([]protocol.ColumnHeight, 0, len(changes))}
	for mc, h := range changes {
		update.Heights = append(update.Heights, protocol.ColumnHeight{Pos: mc, Height: h})
	}
	sort.Slice(update.Heights, func(i, j int) bool {
		a, b := update.Heights[i].Pos, update.Heights[j].Pos
		return a.Y < b.Y || (a.Y == b.Y && a.X < b.X)
	})
	s.broadcast(update, 0)
}
