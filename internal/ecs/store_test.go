package ecs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/vec"
)

func TestSetMarksDirty_TakeChangedClearsOnce(t *testing.T) {
	s := NewStore()

	w := s.Write()
	require.NoError(t, w.Set(7, CHotbar, Hotbar{{Type: 1, Name: "stone"}}))
	w.Release()

	r := s.Read()
	defer r.Release()
	assert.Equal(t, []ComponentID{CHotbar}, r.TakeChanged(7), "после записи компонент должен быть помечен")
	assert.Nil(t, r.TakeChanged(7), "повторный сбор не должен видеть флаг")
}

func TestTakeChanged_ReportsOnlyWrittenComponents(t *testing.T) {
	s := NewStore()

	w := s.Write()
	require.NoError(t, w.Set(4, CPosition, vec.Vec3Float{X: 1}))
	require.NoError(t, w.Set(4, CHotbar, Hotbar{}))
	require.NoError(t, w.Set(4, CPosition, vec.Vec3Float{X: 2}))
	w.Release()

	r := s.Read()
	assert.Equal(t, []ComponentID{CPosition, CHotbar}, r.TakeChanged(4))
	assert.Nil(t, r.TakeChanged(4), "изменения забираются один раз")
	assert.Nil(t, r.TakeChanged(99))
	r.Release()
}

func TestSet_WrongTypeRejected(t *testing.T) {
	s := NewStore()
	w := s.Write()
	defer w.Release()

	err := w.Set(1, CPosition, "не вектор")
	assert.ErrorIs(t, err, ErrWrongType)
	assert.False(t, w.Exists(1))

	err = w.Set(1, ComponentID(999), "x")
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestForEach_FiltersAndOrders(t *testing.T) {
	s := NewStore()
	w := s.Write()
	require.NoError(t, w.Set(3, CPosition, vec.Vec3Float{X: 3}))
	require.NoError(t, w.Set(3, CVelocity, vec.Vec3Float{}))
	require.NoError(t, w.Set(1, CPosition, vec.Vec3Float{X: 1}))
	require.NoError(t, w.Set(1, CVelocity, vec.Vec3Float{}))
	require.NoError(t, w.Set(2, CPosition, vec.Vec3Float{X: 2}))
	w.Release()

	r := s.Read()
	defer r.Release()

	var seen []EntityID
	r.ForEach(func(id EntityID, v View) bool {
		pos, ok := ViewGet[vec.Vec3Float](v, CPosition)
		require.True(t, ok)
		assert.Equal(t, float64(id), pos.X)
		seen = append(seen, id)
		return false
	}, CPosition, CVelocity)
	assert.Equal(t, []EntityID{1, 3}, seen)

	seen = nil
	r.ForEach(func(id EntityID, _ View) bool {
		seen = append(seen, id)
		return true
	})
	assert.Equal(t, []EntityID{1}, seen, "обход должен остановиться")
}

func TestGetTyped(t *testing.T) {
	s := NewStore()
	w := s.Write()
	require.NoError(t, w.Set(5, CName, "bob"))
	w.Release()

	r := s.Read()
	defer r.Release()
	name, ok := Get[string](r, 5, CName)
	assert.True(t, ok)
	assert.Equal(t, "bob", name)

	_, ok = Get[vec.Vec3Float](r, 5, CName)
	assert.False(t, ok, "несовпадающий тип не должен читаться")
	_, ok = Get[string](r, 6, CName)
	assert.False(t, ok)
}

func TestNewEntity_SkipsTakenIDs(t *testing.T) {
	s := NewStore()
	w := s.Write()
	defer w.Release()

	require.NoError(t, w.Set(1, CName, "a"))
	id := w.NewEntity()
	assert.Equal(t, EntityID(2), id)
	assert.True(t, w.Exists(id))
}

func TestWriteWaitsForReaders(t *testing.T) {
	s := NewStore()
	r := s.Read()

	var wg sync.WaitGroup
	committed := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := s.Write()
		_ = w.Set(1, CName, "writer")
		w.Release()
		close(committed)
	}()

	select {
	case <-committed:
		t.Fatal("запись не должна завершиться, пока открыта область чтения")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, r.Exists(1), "чтение не должно видеть незавершенную запись")
	r.Release()
	wg.Wait()

	r = s.Read()
	defer r.Release()
	assert.True(t, r.Exists(1))
}

func TestComponentCodec(t *testing.T) {
	cases := []struct {
		c ComponentID
		v any
	}{
		{CPosition, vec.Vec3Float{X: 1.5, Y: -2, Z: 100.25}},
		{CLookAt, YawPitch{Yaw: 1.25, Pitch: -0.5}},
		{CHotbar, Hotbar{{Type: 1, Name: "stone"}, {}, {Type: 2, Name: "pick"}}},
		{CName, "Player"},
	}
	for _, tc := range cases {
		t.Run(tc.c.String(), func(t *testing.T) {
			data, err := EncodeComponent(tc.c, tc.v)
			require.NoError(t, err)
			got, err := DecodeComponent(tc.c, data)
			require.NoError(t, err)
			assert.Equal(t, tc.v, got)
		})
	}

	_, err := DecodeComponent(CPosition, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore()
	w := s.Write()
	require.NoError(t, w.Set(0, CName, "single"))
	require.NoError(t, w.Set(4, CPosition, vec.Vec3Float{X: 1, Y: 2, Z: 3}))
	w.Release()

	snap, err := s.Snapshot()
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.Restore(snap))

	r := restored.Read()
	defer r.Release()
	name, _ := Get[string](r, 0, CName)
	assert.Equal(t, "single", name)
	pos, _ := Get[vec.Vec3Float](r, 4, CPosition)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 2, Z: 3}, pos)
	assert.Nil(t, r.TakeChanged(4), "восстановленные сущности не помечаются")
	r.Release()

	w = restored.Write()
	assert.Equal(t, EntityID(5), w.NewEntity())
	w.Release()
}
