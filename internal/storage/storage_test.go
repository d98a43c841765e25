package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

func setupTestStorage(t *testing.T) *BadgerStorage {
	tempDir, err := os.MkdirTemp("", "voxel-storage-test")
	require.NoError(t, err, "Не удалось создать временную директорию")

	s, err := NewBadgerStorage(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(tempDir)
	})
	return s
}

func backends(t *testing.T) map[string]Persistence {
	return map[string]Persistence{
		"badger": setupTestStorage(t),
		"memory": NewMemoryStorage(),
	}
}

func TestChunkRoundTrip(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := vec.ChunkCoord{X: -3, Y: 7, Z: 1}

			_, ok, err := p.GetChunk(c)
			require.NoError(t, err)
			assert.False(t, ok, "отсутствующий чанк не ошибка")

			require.NoError(t, p.PutChunk(c, []byte{1, 2, 3}))
			data, ok, err := p.GetChunk(c)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte{1, 2, 3}, data)
		})
	}
}

func TestHeights(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mc := vec.MapCoord{X: 2, Y: -5}
			_, ok, err := p.GetHeight(mc)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.PutHeight(mc, -3))
			h, ok, err := p.GetHeight(mc)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int32(-3), h)
		})
	}
}

func TestAccounts(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := p.GetAccount("alice")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.PutAccount("alice", []byte("hash")))
			hash, ok, err := p.GetAccount("alice")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("hash"), hash)
		})
	}
}

func TestEntitiesRoundTrip(t *testing.T) {
	for name, p := range backends(t) {
		t.Run(name, func(t *testing.T) {
			src := ecs.NewStore()
			w := src.Write()
			require.NoError(t, w.Set(0, ecs.CName, "Player"))
			require.NoError(t, w.Set(0, ecs.CPosition, vec.Vec3Float{X: 8, Y: 8, Z: 40}))
			require.NoError(t, w.Set(12, ecs.CHotbar, ecs.Hotbar{{Type: 1, Name: "stone"}}))
			w.Release()

			require.NoError(t, p.StoreEntities(src))

			// Повторное сохранение заменяет прежний набор
			w = src.Write()
			w.Delete(12)
			w.Release()
			require.NoError(t, p.StoreEntities(src))

			dst := ecs.NewStore()
			require.NoError(t, p.RetrieveEntities(dst))

			r := dst.Read()
			defer r.Release()
			name, ok := ecs.Get[string](r, 0, ecs.CName)
			assert.True(t, ok)
			assert.Equal(t, "Player", name)
			pos, _ := ecs.Get[vec.Vec3Float](r, 0, ecs.CPosition)
			assert.Equal(t, 40.0, pos.Z)
			assert.False(t, r.Exists(12), "удаленная сущность не должна вернуться")
		})
	}
}

func TestClosedStorage(t *testing.T) {
	s := setupTestStorage(t)
	require.NoError(t, s.Close())
	_, _, err := s.GetChunk(vec.ChunkCoord{})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NoError(t, s.Close(), "повторное закрытие безопасно")
}

func TestEntityCodecSkipsForeignFields(t *testing.T) {
	comps := map[ecs.ComponentID][]byte{ecs.CName: {1, 'a'}, ecs.CPosition: make([]byte, 24)}
	decoded, err := decodeEntity(encodeEntity(comps))
	require.NoError(t, err)
	assert.Equal(t, comps, decoded)
}
