package storage

import (
	"fmt"
	"sync"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// MemoryStorage реализует Persistence в памяти.
// Используется в тестах и для временных миров.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStorage struct {
	mu       sync.RWMutex
	chunks   map[vec.ChunkCoord][]byte
	heights  map[vec.MapCoord]int32
	entities ecs.Snapshot
	accounts map[string][]byte
}

// NewMemoryStorage создает пустое хранилище в памяти
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chunks:   make(map[vec.ChunkCoord][]byte),
		heights:  make(map[vec.MapCoord]int32),
		entities: make(ecs.Snapshot),
		accounts: make(map[string][]byte),
	}
}

func (m *MemoryStorage) GetChunk(c vec.ChunkCoord) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.chunks[c]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStorage) PutChunk(c vec.ChunkCoord, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c] = append([]byte(nil), data...)
	return nil
}

// ChunkCount количество сохраненных чанков
func (m *MemoryStorage) ChunkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryStorage) GetHeight(mc vec.MapCoord) (int32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.heights[mc]
	return h, ok, nil
}

func (m *MemoryStorage) PutHeight(mc vec.MapCoord, height int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heights[mc] = height
	return nil
}

func (m *MemoryStorage) GetAccount(name string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.accounts[name]
	return hash, ok, nil
}

func (m *MemoryStorage) PutAccount(name string, hash []byte) error {
	if name == "" {
		return fmt.Errorf("пустое имя учетной записи")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[name] = append([]byte(nil), hash...)
	return nil
}

func (m *MemoryStorage) StoreEntities(store *ecs.Store) error {
	snap, err := store.Snapshot()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = snap
	return nil
}

func (m *MemoryStorage) RetrieveEntities(store *ecs.Store) error {
	m.mu.RLock()
	snap := m.entities
	m.mu.RUnlock()
	return store.Restore(snap)
}

func (m *MemoryStorage) Close() error { return nil }
