package world

import (
	"fmt"

	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

// areaAccess дает генератору ландшафта доступ к данным областей без блокировки мира
type areaAccess struct {
	s *Store
}

func (a areaAccess) FindAreaGenerator(name string) int {
	return a.s.findAreaGenerator(name)
}

func (a areaAccess) GetAreaData(mc vec.MapCoord, id int) (AreaData, bool) {
	return a.s.areaData(mc, id)
}

// ensureBlocks загружает или генерирует блоки чанка. Требует блокировку записи.
func (s *Store) ensureBlocks(c vec.ChunkCoord) (*record, error) {
	rec := s.chunks[c]
	if rec != nil && rec.blocks != nil {
		return rec, nil
	}

	blocks, err := s.loadBlocks(c)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &record{}
		s.chunks[c] = rec
	}
	rec.blocks = blocks
	s.touch(rec)
	return rec, nil
}

func (s *Store) loadBlocks(c vec.ChunkCoord) (*Chunk, error) {
	if s.persist != nil {
		data, ok, err := s.persist.GetChunk(c)
		if err != nil {
			return nil, fmt.Errorf("ошибка загрузки чанка %s: %w", c, err)
		}
		if ok {
			raw, err := s.decoder.DecodeAll(data, nil)
			if err != nil {
				return nil, fmt.Errorf("ошибка распаковки чанка %s: %w", c, err)
			}
			return unmarshalChunk(raw)
		}
	}

	chunk := &Chunk{}
	if s.terrain != nil {
		if err := s.terrain.Generate(c, chunk, areaAccess{s}); err != nil {
			return nil, fmt.Errorf("ошибка генерации чанка %s: %w", c, err)
		}
	}
	return chunk, nil
}

// lookup возвращает функцию чтения блоков вокруг чанка c. Недостающие соседи
// генерируются; первая ошибка сохраняется в errOut.
func (s *Store) lookup(c vec.ChunkCoord, rec *record, errOut *error) blockLookup {
	return func(pos vec.Vec3) uint16 {
		n := pos.Chunk()
		if n == c {
			return rec.blocks.Get(pos.Local())
		}
		if other := s.chunks[n]; other != nil && other.blocks != nil {
			return other.blocks.Get(pos.Local())
		}
		if s.isAirChunk(n) {
			return registry.Air
		}
		other, err := s.ensureBlocks(n)
		if err != nil {
			if *errOut == nil {
				*errOut = err
			}
			return registry.Air
		}
		return other.blocks.Get(pos.Local())
	}
}

// rebuild пересчитывает поверхность, освещение и их сжатые копии одним шагом
func (s *Store) rebuild(c vec.ChunkCoord, rec *record) error {
	var lookupErr error
	lookup := s.lookup(c, rec, &lookupErr)

	surface := extractSurface(c, rec.blocks, lookup, s.reg)
	lightmap := computeLightmap(c, surface, lookup, s.reg)
	if lookupErr != nil {
		return lookupErr
	}

	rec.surface = surface
	rec.lightmap = lightmap
	rec.compSurface = s.compress(surface.encode())
	rec.compLight = s.compress(lightmap.encode())
	rec.hasSurface = true
	rec.hasLightmap = true
	chunksGenerated.Inc()
	return nil
}
