// Package ecs реализует хранилище сущностей с компонентами.
//
// Доступ к хранилищу идет только через транзакции: ReadTx берет общую
// блокировку, WriteTx эксклюзивную. ReadTx не содержит методов записи,
// поэтому повысить чтение до записи внутри одной области нельзя.
package ecs

import (
	"sort"
	"sync"
	"sync/atomic"
)

type entity struct {
	components map[ComponentID]any
	// dirty битовая маска измененных компонентов
	dirty atomic.Uint32
}

// Store хранилище сущностей
type Store struct {
	mu       sync.RWMutex
	entities map[EntityID]*entity
	nextID   EntityID
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{
		entities: make(map[EntityID]*entity),
		nextID:   1,
	}
}

// Read открывает область чтения. Вызывающий обязан вызвать Release.
func (s *Store) Read() *ReadTx {
	s.mu.RLock()
	return &ReadTx{s: s}
}

// Write открывает область записи. Вызывающий обязан вызвать Release.
func (s *Store) Write() *WriteTx {
	s.mu.Lock()
	return &WriteTx{ReadTx: ReadTx{s: s}}
}

// Reader общий интерфейс для чтения из обеих транзакций
type Reader interface {
	Get(id EntityID, c ComponentID) (any, bool)
	Has(id EntityID, c ComponentID) bool
	Exists(id EntityID) bool
	ForEach(fn func(id EntityID, v View) bool, components ...ComponentID)
}

// Get типизированное чтение компонента
func Get[T any](r Reader, id EntityID, c ComponentID) (T, bool) {
	var zero T
	v, ok := r.Get(id, c)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// View доступ к компонентам одной сущности во время обхода
type View struct {
	e *entity
}

// Get возвращает значение компонента
func (v View) Get(c ComponentID) (any, bool) {
	val, ok := v.e.components[c]
	return val, ok
}

// Has проверяет наличие компонента
func (v View) Has(c ComponentID) bool {
	_, ok := v.e.components[c]
	return ok
}

// ViewGet типизированное чтение из View
func ViewGet[T any](v View, c ComponentID) (T, bool) {
	var zero T
	val, ok := v.e.components[c]
	if !ok {
		return zero, false
	}
	typed, ok := val.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ReadTx область чтения хранилища сущностей
type ReadTx struct {
	s        *Store
	released bool
}

// Release снимает блокировку. Повторный вызов ничего не делает.
func (tx *ReadTx) Release() {
	if tx.released {
		return
	}
	tx.released = true
	tx.s.mu.RUnlock()
}

func (tx *ReadTx) Get(id EntityID, c ComponentID) (any, bool) {
	e, ok := tx.s.entities[id]
	if !ok {
		return nil, false
	}
	v, ok := e.components[c]
	return v, ok
}

func (tx *ReadTx) Has(id EntityID, c ComponentID) bool {
	_, ok := tx.Get(id, c)
	return ok
}

func (tx *ReadTx) Exists(id EntityID) bool {
	_, ok := tx.s.entities[id]
	return ok
}

// Len количество сущностей
func (tx *ReadTx) Len() int {
	return len(tx.s.entities)
}

// ForEach обходит сущности, у которых есть все перечисленные компоненты,
// в порядке возрастания идентификатора. fn возвращает true, чтобы остановить обход.
func (tx *ReadTx) ForEach(fn func(id EntityID, v View) bool, components ...ComponentID) {
	forEach(tx.s, fn, components)
}

// TakeChanged атомарно забирает список компонентов, измененных с прошлого вызова,
// и сбрасывает флаг изменения. Флаг атомарный, поэтому сбрасывать его можно
// под блокировкой чтения.
func (tx *ReadTx) TakeChanged(id EntityID) []ComponentID {
	e, ok := tx.s.entities[id]
	if !ok {
		return nil
	}
	mask := e.dirty.Swap(0)
	if mask == 0 {
		return nil
	}
	var out []ComponentID
	for c := ComponentID(0); c < componentCount; c++ {
		if mask&(1<<c) != 0 {
			out = append(out, c)
		}
	}
	return out
}

func forEach(s *Store, fn func(id EntityID, v View) bool, components []ComponentID) {
	ids := make([]EntityID, 0, len(s.entities))
	for id, e := range s.entities {
		if hasAll(e, components) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if fn(id, View{e: s.entities[id]}) {
			return
		}
	}
}

func hasAll(e *entity, components []ComponentID) bool {
	for _, c := range components {
		if _, ok := e.components[c]; !ok {
			return false
		}
	}
	return true
}

// WriteTx область записи хранилища сущностей
type WriteTx struct {
	ReadTx
}

// Release снимает эксклюзивную блокировку
func (tx *WriteTx) Release() {
	if tx.released {
		return
	}
	tx.released = true
	tx.s.mu.Unlock()
}

// NewEntity выделяет идентификатор новой сущности
func (tx *WriteTx) NewEntity() EntityID {
	for {
		id := tx.s.nextID
		tx.s.nextID++
		if _, taken := tx.s.entities[id]; !taken {
			tx.s.entities[id] = &entity{components: make(map[ComponentID]any)}
			return id
		}
	}
}

// Set записывает компонент. Сущность создается при первой записи и помечается измененной.
func (tx *WriteTx) Set(id EntityID, c ComponentID, v any) error {
	if err := checkType(c, v); err != nil {
		return err
	}
	e := tx.s.entities[id]
	if e == nil {
		e = &entity{components: make(map[ComponentID]any)}
		tx.s.entities[id] = e
		if id >= tx.s.nextID {
			tx.s.nextID = id + 1
		}
	}
	e.components[c] = v
	e.dirty.Or(1 << c)
	return nil
}

// Remove удаляет компонент у сущности
func (tx *WriteTx) Remove(id EntityID, c ComponentID) {
	if e, ok := tx.s.entities[id]; ok {
		delete(e.components, c)
		e.dirty.Or(1 << c)
	}
}

// Delete удаляет сущность целиком
func (tx *WriteTx) Delete(id EntityID) {
	delete(tx.s.entities, id)
}
