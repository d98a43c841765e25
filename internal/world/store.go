// Package world хранит чанки мира: блоки, поверхности, карты освещения
// и их сжатые копии для отправки клиентам.
//
// Весь мир защищен одной блокировкой читателей/писателя: генерация поверхности
// смотрит в соседние чанки и должна видеть согласованное состояние.
package world

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/vec"
)

// UndefinedHeight грубая высота колонки неизвестна
const UndefinedHeight int32 = math.MinInt32

type record struct {
	blocks      *Chunk
	surface     Surface
	lightmap    Lightmap
	hasSurface  bool
	hasLightmap bool
	compSurface []byte
	compLight   []byte
	dirty       bool
	lastUsed    atomic.Int64
}

type areaKey struct {
	mc vec.MapCoord
	id int
}

// Options параметры хранилища мира
type Options struct {
	Registry       *registry.Registry
	Persistence    ChunkPersistence // nil: мир живет только в памяти
	Terrain        TerrainGenerator // nil: все чанки пустые
	AreaGenerators []AreaGenerator
	CacheChunks    int     // 0: без ограничения
	MemoryPressure float64 // % памяти хоста, после которого бюджет кэша уменьшается вдвое
	// MemoryUsage возвращает занятую память хоста в процентах; nil: gopsutil
	MemoryUsage func() (float64, error)
}

// Store хранилище чанков
type Store struct {
	mu      sync.RWMutex
	chunks  map[vec.ChunkCoord]*record
	clock   atomic.Int64
	reg     *registry.Registry
	persist ChunkPersistence
	terrain TerrainGenerator

	areaGens []AreaGenerator
	areaMu   sync.Mutex
	areas    map[areaKey]AreaData

	heightMu sync.Mutex
	heights  map[vec.MapCoord]int32
	raised   map[vec.MapCoord]int32 // высоты, поднятые правками игроков

	budget      int
	memPressure float64
	memUsage    func() (float64, error)

	obsMu            sync.RWMutex
	surfaceObservers []func(vec.ChunkCoord)
	heightObservers  []func(vec.MapCoord, int32)

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *logging.Logger
}

// NewStore создает хранилище мира
func NewStore(opts Options) (*Store, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	memUsage := opts.MemoryUsage
	if memUsage == nil {
		memUsage = hostMemoryUsage
	}

	return &Store{
		chunks:      make(map[vec.ChunkCoord]*record),
		reg:         reg,
		persist:     opts.Persistence,
		terrain:     opts.Terrain,
		areaGens:    opts.AreaGenerators,
		areas:       make(map[areaKey]AreaData),
		heights:     make(map[vec.MapCoord]int32),
		raised:      make(map[vec.MapCoord]int32),
		budget:      opts.CacheChunks,
		memPressure: opts.MemoryPressure,
		memUsage:    memUsage,
		encoder:     encoder,
		decoder:     decoder,
		logger:      logging.GetWorldLogger(),
	}, nil
}

// Registry реестр материалов мира
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// ReadAccess открывает область чтения. Обязателен вызов Release.
func (s *Store) ReadAccess() *ReadAccess {
	s.mu.RLock()
	return &ReadAccess{s: s}
}

// WriteAccess открывает область записи. Наблюдатели вызываются после Release.
func (s *Store) WriteAccess() *WriteAccess {
	s.mu.Lock()
	return &WriteAccess{ReadAccess: ReadAccess{s: s}}
}

// OnSurfaceChanged регистрирует наблюдателя за изменением поверхностей.
// Вызывается вне блокировки мира.
func (s *Store) OnSurfaceChanged(fn func(c vec.ChunkCoord)) {
	s.obsMu.Lock()
	s.surfaceObservers = append(s.surfaceObservers, fn)
	s.obsMu.Unlock()
}

// OnCoarseHeightChanged регистрирует наблюдателя за изменением грубой высоты
func (s *Store) OnCoarseHeightChanged(fn func(mc vec.MapCoord, height int32)) {
	s.obsMu.Lock()
	s.heightObservers = append(s.heightObservers, fn)
	s.obsMu.Unlock()
}

func (s *Store) touch(r *record) {
	r.lastUsed.Store(s.clock.Add(1))
}

func (s *Store) compress(data []byte) []byte {
	return s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress распаковывает сжатую поверхность или карту освещения
func (s *Store) Decompress(data []byte) ([]byte, error) {
	return s.decoder.DecodeAll(data, nil)
}

// PrepareForPlayer генерирует чанк под эксклюзивной блокировкой.
// Не вызывать из сетевого цикла.
func (s *Store) PrepareForPlayer(c vec.ChunkCoord) error {
	w := s.WriteAccess()
	defer w.Release()
	return w.Prepare(c)
}

// Close освобождает ресурсы кодеков
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
