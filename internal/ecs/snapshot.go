package ecs

import "fmt"

// Snapshot закодированное состояние всех сущностей
type Snapshot map[EntityID]map[ComponentID][]byte

// Snapshot кодирует все сущности. Берет блокировку чтения.
func (s *Store) Snapshot() (Snapshot, error) {
	tx := s.Read()
	defer tx.Release()

	out := make(Snapshot, len(s.entities))
	for id, e := range s.entities {
		comps := make(map[ComponentID][]byte, len(e.components))
		for c, v := range e.components {
			data, err := EncodeComponent(c, v)
			if err != nil {
				return nil, fmt.Errorf("сущность %d: %w", id, err)
			}
			comps[c] = data
		}
		out[id] = comps
	}
	return out, nil
}

// Restore загружает сущности из снимка. Восстановленные сущности не помечаются измененными.
// Неизвестные компоненты пропускаются.
func (s *Store) Restore(snap Snapshot) error {
	tx := s.Write()
	defer tx.Release()

	for id, comps := range snap {
		e := s.entities[id]
		if e == nil {
			e = &entity{components: make(map[ComponentID]any, len(comps))}
			s.entities[id] = e
		}
		for c, data := range comps {
			if !c.Valid() {
				continue
			}
			v, err := DecodeComponent(c, data)
			if err != nil {
				return fmt.Errorf("сущность %d: %w", id, err)
			}
			e.components[c] = v
		}
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return nil
}
