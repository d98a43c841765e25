package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/vec"
)

const entityPrefix = "entity:"

// BadgerStorage хранилище мира на BadgerDB
type BadgerStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// NewBadgerStorage открывает (или создает) базу в каталоге dbPath
func NewBadgerStorage(dbPath string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		logger:  logging.GetStorageLogger(),
	}, nil
}

// Close закрывает базу
func (bs *BadgerStorage) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}
	bs.isReady = false
	return bs.db.Close()
}

func (bs *BadgerStorage) get(key []byte) ([]byte, bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, false, ErrNotReady
	}

	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения %s из BadgerDB: %w", key, err)
	}
	return data, true, nil
}

func (bs *BadgerStorage) put(key, value []byte) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrNotReady
	}

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения %s в BadgerDB: %w", key, err)
	}
	return nil
}

// GetChunk возвращает сохраненные блоки чанка
func (bs *BadgerStorage) GetChunk(c vec.ChunkCoord) ([]byte, bool, error) {
	return bs.get(chunkKey(c))
}

// PutChunk сохраняет блоки чанка
func (bs *BadgerStorage) PutChunk(c vec.ChunkCoord, data []byte) error {
	return bs.put(chunkKey(c), data)
}

func (bs *BadgerStorage) GetHeight(mc vec.MapCoord) (int32, bool, error) {
	data, ok, err := bs.get(heightKey(mc))
	if err != nil || !ok {
		return 0, false, err
	}
	h, err := decodeHeight(data)
	if err != nil {
		return 0, false, fmt.Errorf("высота колонки %s: %w", mc, err)
	}
	return h, true, nil
}

func (bs *BadgerStorage) PutHeight(mc vec.MapCoord, height int32) error {
	return bs.put(heightKey(mc), encodeHeight(height))
}

func (bs *BadgerStorage) GetAccount(name string) ([]byte, bool, error) {
	return bs.get(accountKey(name))
}

func (bs *BadgerStorage) PutAccount(name string, hash []byte) error {
	return bs.put(accountKey(name), hash)
}

// StoreEntities заменяет все сохраненные сущности снимком хранилища
func (bs *BadgerStorage) StoreEntities(store *ecs.Store) error {
	snap, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("ошибка снимка сущностей: %w", err)
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotReady
	}

	if err := bs.db.DropPrefix([]byte(entityPrefix)); err != nil {
		return fmt.Errorf("ошибка очистки сущностей: %w", err)
	}

	wb := bs.db.NewWriteBatch()
	defer wb.Cancel()
	for id, comps := range snap {
		if err := wb.Set(entityKey(id), encodeEntity(comps)); err != nil {
			return fmt.Errorf("ошибка записи сущности %d: %w", id, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения сущностей: %w", err)
	}

	bs.logger.Info("💾 Сохранено сущностей: %d", len(snap))
	return nil
}

// RetrieveEntities загружает все сохраненные сущности
func (bs *BadgerStorage) RetrieveEntities(store *ecs.Store) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	if !bs.isReady {
		return ErrNotReady
	}

	snap := make(ecs.Snapshot)
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entityPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			id, err := strconv.ParseUint(strings.TrimPrefix(key, entityPrefix), 10, 32)
			if err != nil {
				bs.logger.Warn("⚠️ Пропущен ключ %q: %v", key, err)
				continue
			}
			err = item.Value(func(val []byte) error {
				comps, err := decodeEntity(val)
				if err != nil {
					return fmt.Errorf("сущность %d: %w", id, err)
				}
				snap[ecs.EntityID(id)] = comps
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка загрузки сущностей: %w", err)
	}

	if err := store.Restore(snap); err != nil {
		return err
	}
	bs.logger.Info("📂 Загружено сущностей: %d", len(snap))
	return nil
}
