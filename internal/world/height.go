package world

import (
	"github.com/annel0/voxel-server/internal/vec"
)

func (s *Store) findAreaGenerator(name string) int {
	for i, g := range s.areaGens {
		if g.Name() == name {
			return i
		}
	}
	return -1
}

func (s *Store) areaData(mc vec.MapCoord, id int) (AreaData, bool) {
	if id < 0 || id >= len(s.areaGens) {
		return AreaData{}, false
	}
	key := areaKey{mc: mc, id: id}

	s.areaMu.Lock()
	defer s.areaMu.Unlock()
	if data, ok := s.areas[key]; ok {
		return data, true
	}
	data := s.areaGens[id].Generate(mc)
	s.areas[key] = data
	return data, true
}

func (s *Store) isAirChunk(c vec.ChunkCoord) bool {
	h := s.coarseHeight(c.Map())
	return h != UndefinedHeight && c.Z >= h
}

// generatedHeight высота колонки по карте высот: первый чанк, начиная с которого
// все блоки выше рельефа
func (s *Store) generatedHeight(mc vec.MapCoord) int32 {
	id := s.findAreaGenerator(HeightmapGenerator)
	if id < 0 {
		return UndefinedHeight
	}
	data, _ := s.areaData(mc, id)
	return int32(vec.DivFloor(int(data.Max())-1, vec.ChunkSize)) + 1
}

func (s *Store) coarseHeight(mc vec.MapCoord) int32 {
	s.heightMu.Lock()
	h, ok := s.heights[mc]
	s.heightMu.Unlock()
	if ok {
		return h
	}

	h = s.generatedHeight(mc)
	if h != UndefinedHeight {
		if r := s.raisedHeight(mc); r > h {
			h = r
		}
	}

	s.heightMu.Lock()
	s.heights[mc] = h
	s.heightMu.Unlock()
	return h
}

func (s *Store) raisedHeight(mc vec.MapCoord) int32 {
	s.heightMu.Lock()
	r, ok := s.raised[mc]
	s.heightMu.Unlock()
	if ok {
		return r
	}

	r = UndefinedHeight
	if s.persist != nil {
		h, found, err := s.persist.GetHeight(mc)
		if err != nil {
			s.logger.Warn("⚠️ Не удалось прочитать высоту колонки %s: %v", mc, err)
		} else if found {
			r = h
		}
	}

	s.heightMu.Lock()
	s.raised[mc] = r
	s.heightMu.Unlock()
	return r
}

func (s *Store) setRaised(mc vec.MapCoord, h int32) {
	s.heightMu.Lock()
	s.raised[mc] = h
	s.heights[mc] = h
	s.heightMu.Unlock()

	if s.persist != nil {
		if err := s.persist.PutHeight(mc, h); err != nil {
			s.logger.Error("❌ Ошибка сохранения высоты колонки %s: %v", mc, err)
		}
	}
}

// raiseHeight блок поставлен в чанк c: колонка не может быть ниже c.Z+1
func (w *WriteAccess) raiseHeight(c vec.ChunkCoord) {
	mc := c.Map()
	h := w.s.coarseHeight(mc)
	if h == UndefinedHeight || c.Z < h {
		return
	}
	w.s.setRaised(mc, c.Z+1)
	w.heightChanged(mc, c.Z+1)
}

// lowerHeight блок убран из верхнего чанка колонки: опускаем высоту
// через проверенные пустые чанки, но не ниже карты высот
func (w *WriteAccess) lowerHeight(c vec.ChunkCoord, rec *record) {
	mc := c.Map()
	h := w.s.coarseHeight(mc)
	if h == UndefinedHeight || c.Z != h-1 || !rec.blocks.IsAir() {
		return
	}

	gen := w.s.generatedHeight(mc)
	newH := c.Z
	for newH > gen {
		below := w.s.chunks[mc.WithZ(newH-1)]
		if below == nil || below.blocks == nil || !below.blocks.IsAir() {
			break
		}
		newH--
	}
	if newH < gen {
		newH = gen
	}
	if newH == h {
		return
	}
	w.s.setRaised(mc, newH)
	w.heightChanged(mc, newH)
}
