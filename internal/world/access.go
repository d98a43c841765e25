package world

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

// ReadAccess область чтения мира. Пока она открыта, запись не может завершиться,
// поэтому все чтения внутри видят один и тот же снимок.
type ReadAccess struct {
	s        *Store
	released bool
}

// Release снимает блокировку. Повторный вызов ничего не делает.
func (r *ReadAccess) Release() {
	if r.released {
		return
	}
	r.released = true
	r.s.mu.RUnlock()
}

func (r *ReadAccess) record(c vec.ChunkCoord) *record {
	rec := r.s.chunks[c]
	if rec != nil {
		r.s.touch(rec)
	}
	return rec
}

// GetSurface возвращает поверхность чанка. Возвращенный срез не изменяется.
func (r *ReadAccess) GetSurface(c vec.ChunkCoord) (Surface, bool) {
	rec := r.record(c)
	if rec == nil || !rec.hasSurface {
		return nil, false
	}
	return rec.surface, true
}

// GetLightmap возвращает карту освещения чанка
func (r *ReadAccess) GetLightmap(c vec.ChunkCoord) (Lightmap, bool) {
	rec := r.record(c)
	if rec == nil || !rec.hasLightmap {
		return nil, false
	}
	return rec.lightmap, true
}

// GetCompressedSurface сжатая поверхность для отправки клиенту
func (r *ReadAccess) GetCompressedSurface(c vec.ChunkCoord) ([]byte, bool) {
	rec := r.record(c)
	if rec == nil || !rec.hasSurface {
		return nil, false
	}
	return rec.compSurface, true
}

// GetCompressedLightmap сжатая карта освещения для отправки клиенту
func (r *ReadAccess) GetCompressedLightmap(c vec.ChunkCoord) ([]byte, bool) {
	rec := r.record(c)
	if rec == nil || !rec.hasLightmap {
		return nil, false
	}
	return rec.compLight, true
}

// IsChunkAvailable поверхность уже построена; генерацию не запускает
func (r *ReadAccess) IsChunkAvailable(c vec.ChunkCoord) bool {
	rec := r.s.chunks[c]
	return rec != nil && rec.hasSurface
}

// IsLightmapAvailable карта освещения уже посчитана
func (r *ReadAccess) IsLightmapAvailable(c vec.ChunkCoord) bool {
	rec := r.s.chunks[c]
	return rec != nil && rec.hasLightmap
}

// IsAirChunk чанк лежит выше грубой высоты своей колонки
func (r *ReadAccess) IsAirChunk(c vec.ChunkCoord) bool {
	return r.s.isAirChunk(c)
}

// CoarseHeight грубая высота колонки в чанках или UndefinedHeight
func (r *ReadAccess) CoarseHeight(mc vec.MapCoord) int32 {
	return r.s.coarseHeight(mc)
}

// FindAreaGenerator индекс генератора областей по имени или -1
func (r *ReadAccess) FindAreaGenerator(name string) int {
	return r.s.findAreaGenerator(name)
}

// GetAreaData данные области колонки от генератора id
func (r *ReadAccess) GetAreaData(mc vec.MapCoord, id int) (AreaData, bool) {
	return r.s.areaData(mc, id)
}

// GetBlock материал блока, если его чанк уже в памяти. Чанки выше
// грубой высоты считаются пустыми.
func (r *ReadAccess) GetBlock(pos vec.Vec3) (uint16, bool) {
	c := pos.Chunk()
	rec := r.s.chunks[c]
	if rec == nil || rec.blocks == nil {
		if r.s.isAirChunk(c) {
			return registry.Air, true
		}
		return 0, false
	}
	return rec.blocks.Get(pos.Local()), true
}

// WriteAccess область записи мира
type WriteAccess struct {
	ReadAccess
	changedSurfaces []vec.ChunkCoord
	changedHeights  map[vec.MapCoord]int32
}

// Release снимает блокировку и уведомляет наблюдателей об изменениях
func (w *WriteAccess) Release() {
	if w.released {
		return
	}
	w.released = true
	chunksCached.Set(float64(len(w.s.chunks)))
	w.s.mu.Unlock()

	if len(w.changedSurfaces) == 0 && len(w.changedHeights) == 0 {
		return
	}
	w.s.obsMu.RLock()
	surfaceObs := w.s.surfaceObservers
	heightObs := w.s.heightObservers
	w.s.obsMu.RUnlock()

	for _, c := range w.changedSurfaces {
		for _, fn := range surfaceObs {
			fn(c)
		}
	}
	for mc, h := range w.changedHeights {
		for _, fn := range heightObs {
			fn(mc, h)
		}
	}
}

func (w *WriteAccess) surfaceChanged(c vec.ChunkCoord) {
	for _, seen := range w.changedSurfaces {
		if seen == c {
			return
		}
	}
	w.changedSurfaces = append(w.changedSurfaces, c)
}

func (w *WriteAccess) heightChanged(mc vec.MapCoord, h int32) {
	if w.changedHeights == nil {
		w.changedHeights = make(map[vec.MapCoord]int32)
	}
	w.changedHeights[mc] = h
}

// Prepare строит блоки, поверхность и освещение чанка.
// Для пустых колонок ничего не генерирует.
func (w *WriteAccess) Prepare(c vec.ChunkCoord) error {
	if w.s.isAirChunk(c) {
		return nil
	}
	rec, err := w.s.ensureBlocks(c)
	if err != nil {
		return err
	}
	w.s.touch(rec)
	if rec.hasSurface && rec.hasLightmap {
		return nil
	}
	if err := w.s.rebuild(c, rec); err != nil {
		return err
	}
	w.surfaceChanged(c)
	return nil
}

// Relight пересчитывает освещение уже построенной поверхности
func (w *WriteAccess) Relight(c vec.ChunkCoord) error {
	rec := w.s.chunks[c]
	if rec == nil || !rec.hasSurface {
		return w.Prepare(c)
	}
	var lookupErr error
	lookup := w.s.lookup(c, rec, &lookupErr)
	lm := computeLightmap(c, rec.surface, lookup, w.s.reg)
	if lookupErr != nil {
		return lookupErr
	}
	rec.lightmap = lm
	rec.compLight = w.s.compress(lm.encode())
	rec.hasLightmap = true
	return nil
}

// CommitBlocks заменяет все блоки чанка и перестраивает его поверхность
func (w *WriteAccess) CommitBlocks(c vec.ChunkCoord, blocks *Chunk) error {
	rec := w.s.chunks[c]
	if rec == nil {
		rec = &record{}
		w.s.chunks[c] = rec
	}
	rec.blocks = blocks.Clone()
	rec.dirty = true
	w.s.touch(rec)

	if !blocks.IsAir() {
		w.raiseHeight(c)
	}
	if err := w.s.rebuild(c, rec); err != nil {
		return err
	}
	w.surfaceChanged(c)
	return w.rebuildNeighbours(c, nil)
}

// ChangeBlock меняет один блок. Перестраивает поверхность чанка и соседей
// на границе, обновляет грубую высоту колонки.
func (w *WriteAccess) ChangeBlock(pos vec.Vec3, material uint16) error {
	if material != registry.Air {
		if _, ok := w.s.reg.Material(material); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownMaterial, material)
		}
	}

	c := pos.Chunk()
	l := pos.Local()

	var rec *record
	if w.s.isAirChunk(c) {
		rec = w.s.chunks[c]
		if rec == nil {
			rec = &record{}
			w.s.chunks[c] = rec
		}
		if rec.blocks == nil {
			rec.blocks = &Chunk{}
		}
	} else {
		var err error
		if rec, err = w.s.ensureBlocks(c); err != nil {
			return err
		}
	}
	w.s.touch(rec)

	if rec.blocks.Get(l) == material {
		return nil
	}
	rec.blocks.Set(l, material)
	rec.dirty = true

	if material != registry.Air {
		w.raiseHeight(c)
	} else {
		w.lowerHeight(c, rec)
	}

	if err := w.s.rebuild(c, rec); err != nil {
		return err
	}
	w.surfaceChanged(c)
	return w.rebuildNeighbours(c, &l)
}

// rebuildNeighbours перестраивает уже построенные соседние поверхности.
// Если l задан, затрагиваются только соседи по граням, которых касается блок.
func (w *WriteAccess) rebuildNeighbours(c vec.ChunkCoord, l *vec.LocalIndex) error {
	last := uint8(vec.ChunkSize - 1)
	for _, d := range directions {
		if l != nil {
			touches := (d.dx == 1 && l.X == last) || (d.dx == -1 && l.X == 0) ||
				(d.dy == 1 && l.Y == last) || (d.dy == -1 && l.Y == 0) ||
				(d.dz == 1 && l.Z == last) || (d.dz == -1 && l.Z == 0)
			if !touches {
				continue
			}
		}
		n := c.Add(int32(d.dx), int32(d.dy), int32(d.dz))
		rec := w.s.chunks[n]
		if rec == nil || !rec.hasSurface {
			continue
		}
		if err := w.s.rebuild(n, rec); err != nil {
			return err
		}
		w.surfaceChanged(n)
	}
	return nil
}

// ErrUnknownMaterial материал не зарегистрирован
var ErrUnknownMaterial = errors.New("неизвестный материал")
