package gamestate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/vec"
	"github.com/annel0/voxel-server/internal/world"
)

func newState(t *testing.T) *State {
	w, err := world.NewStore(world.Options{})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return New(w, ecs.NewStore())
}

func TestCombinedAccess_ReleasesBoth(t *testing.T) {
	s := newState(t)

	err := s.ReadWorldWriteEntities(func(w *world.ReadAccess, tx *ecs.WriteTx) error {
		return tx.Set(1, ecs.CPosition, vec.Vec3Float{Z: 5})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.ReadWorldReadEntities(func(w *world.ReadAccess, tx *ecs.ReadTx) error {
		assert.True(t, tx.Exists(1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Обе блокировки должны быть сняты, иначе запись повиснет
	done := make(chan struct{})
	go func() {
		_ = s.WriteWorldWriteEntities(func(*world.WriteAccess, *ecs.WriteTx) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("блокировки не сняты")
	}
}

func TestConcurrentCombinedAccess_NoDeadlock(t *testing.T) {
	s := newState(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					_ = s.ReadWorldWriteEntities(func(_ *world.ReadAccess, tx *ecs.WriteTx) error {
						return tx.Set(ecs.EntityID(i), ecs.CName, "x")
					})
				} else {
					_ = s.WriteWorldWriteEntities(func(w *world.WriteAccess, _ *ecs.WriteTx) error {
						return w.ChangeBlock(vec.Vec3{X: i, Y: j}, 0)
					})
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("взаимная блокировка")
	}
}
