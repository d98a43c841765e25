package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/annel0/voxel-server/internal/vec"
)

// CleanupStats итог одной очистки
type CleanupStats struct {
	Flushed  int
	Evicted  int
	Cached   int
	Budget   int
	Pressure bool
}

func hostMemoryUsage() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Cleanup записывает измененные чанки и выгружает давно не использованные
// сверх бюджета. При нехватке памяти хоста бюджет уменьшается вдвое.
func (s *Store) Cleanup() (CleanupStats, error) {
	w := s.WriteAccess()
	defer w.Release()

	var stats CleanupStats
	flushed, flushErr := s.flushLocked()
	stats.Flushed = flushed

	stats.Budget = s.budget
	if s.memPressure > 0 {
		used, err := s.memUsage()
		if err != nil {
			s.logger.Warn("⚠️ Не удалось получить загрузку памяти: %v", err)
		} else if used >= s.memPressure {
			stats.Pressure = true
			stats.Budget /= 2
		}
	}

	if stats.Budget > 0 && len(s.chunks) > stats.Budget {
		stats.Evicted = s.evictLocked(len(s.chunks) - stats.Budget)
	}

	// Кэш областей дешево пересчитать, ограничиваем его тем же бюджетом
	s.areaMu.Lock()
	if stats.Budget > 0 && len(s.areas) > stats.Budget {
		s.areas = make(map[areaKey]AreaData)
	}
	s.areaMu.Unlock()

	stats.Cached = len(s.chunks)
	if stats.Evicted > 0 || stats.Flushed > 0 {
		s.logger.Info("🧹 Очистка мира: записано %d, выгружено %d, в памяти %d (бюджет %d)",
			stats.Flushed, stats.Evicted, stats.Cached, stats.Budget)
	}
	return stats, flushErr
}

// Flush записывает все измененные чанки. Вызывается при остановке.
func (s *Store) Flush() error {
	w := s.WriteAccess()
	defer w.Release()
	_, err := s.flushLocked()
	return err
}

func (s *Store) flushLocked() (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	var errs []error
	flushed := 0
	for c, rec := range s.chunks {
		if !rec.dirty || rec.blocks == nil {
			continue
		}
		data := s.compress(rec.blocks.marshal())
		if err := s.persist.PutChunk(c, data); err != nil {
			errs = append(errs, fmt.Errorf("чанк %s: %w", c, err))
			continue
		}
		rec.dirty = false
		flushed++
	}
	chunksFlushed.Add(float64(flushed))
	return flushed, errors.Join(errs...)
}

// evictLocked выгружает до n чистых чанков в порядке давности использования
func (s *Store) evictLocked(n int) int {
	type candidate struct {
		c    vec.ChunkCoord
		used int64
	}
	candidates := make([]candidate, 0, len(s.chunks))
	for c, rec := range s.chunks {
		// Без хранилища правки можно держать только в памяти
		if rec.dirty {
			continue
		}
		candidates = append(candidates, candidate{c: c, used: rec.lastUsed.Load()})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].used < candidates[j].used })

	if n > len(candidates) {
		n = len(candidates)
	}
	for _, cand := range candidates[:n] {
		delete(s.chunks, cand.c)
	}
	chunksEvicted.Add(float64(n))
	return n
}

// Stats состояние кэша мира
type Stats struct {
	Chunks   int `json:"chunks"`
	Surfaces int `json:"surfaces"`
	Dirty    int `json:"dirty"`
	Columns  int `json:"columns"` // колонки с известной грубой высотой
	Budget   int `json:"budget"`
}

// Stats снимает счетчики под чтением мира
func (s *Store) Stats() Stats {
	r := s.ReadAccess()
	defer r.Release()

	st := Stats{Chunks: len(s.chunks), Budget: s.budget}
	for _, rec := range s.chunks {
		if rec.hasSurface {
			st.Surfaces++
		}
		if rec.dirty {
			st.Dirty++
		}
	}
	s.heightMu.Lock()
	st.Columns = len(s.heights)
	s.heightMu.Unlock()
	return st
}
