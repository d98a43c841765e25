// Package storage граница постоянного хранения: чанки, сущности и учетные записи.
package storage

import (
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
)

// ErrNotReady хранилище уже закрыто
var ErrNotReady = errors.New("хранилище не готово")

// Persistence определяет интерфейс постоянного хранилища мира.
// Отсутствие записи не является ошибкой: Get* возвращают (nil, false, nil).
type Persistence interface {
	// RetrieveEntities загружает все сохраненные сущности в хранилище
	RetrieveEntities(store *ecs.Store) error
	// StoreEntities полностью перезаписывает сохраненные сущности
	StoreEntities(store *ecs.Store) error

	GetChunk(c vec.ChunkCoord) ([]byte, bool, error)
	PutChunk(c vec.ChunkCoord, data []byte) error

	// GetHeight/PutHeight грубая высота колонки, поднятая правками игроков
	GetHeight(mc vec.MapCoord) (int32, bool, error)
	PutHeight(mc vec.MapCoord, height int32) error

	// GetAccount возвращает хеш пароля учетной записи
	GetAccount(name string) ([]byte, bool, error)
	PutAccount(name string, hash []byte) error

	Close() error
}

func chunkKey(c vec.ChunkCoord) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d", c.X, c.Y, c.Z))
}

func heightKey(mc vec.MapCoord) []byte {
	return []byte(fmt.Sprintf("height:%d:%d", mc.X, mc.Y))
}

func encodeHeight(h int32) []byte {
	return protowire.AppendVarint(nil, protowire.EncodeZigZag(int64(h)))
}

func decodeHeight(data []byte) (int32, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return int32(protowire.DecodeZigZag(v)), nil
}

func entityKey(id ecs.EntityID) []byte {
	return []byte(fmt.Sprintf("entity:%d", id))
}

func accountKey(name string) []byte {
	return []byte("account:" + name)
}

// encodeEntity упаковывает компоненты сущности: номер поля = id компонента + 1
func encodeEntity(comps map[ecs.ComponentID][]byte) []byte {
	ids := make([]ecs.ComponentID, 0, len(comps))
	for c := range comps {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b []byte
	for _, c := range ids {
		b = protowire.AppendTag(b, protowire.Number(c)+1, protowire.BytesType)
		b = protowire.AppendBytes(b, comps[c])
	}
	return b
}

func decodeEntity(data []byte) (map[ecs.ComponentID][]byte, error) {
	comps := make(map[ecs.ComponentID][]byte)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}
		val, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		comps[ecs.ComponentID(num-1)] = append([]byte(nil), val...)
	}
	return comps, nil
}
