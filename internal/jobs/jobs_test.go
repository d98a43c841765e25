package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-server/internal/vec"
)

func TestQueue_DrainReturnsInOrder(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Drain(), "пустая очередь не блокирует")

	q.Push(Job{Kind: SurfaceAndLightmap, Pos: vec.ChunkCoord{X: 1}, Dest: 3})
	q.Push(Job{Kind: Quit})

	jobs := q.Drain()
	require.Len(t, jobs, 2)
	assert.Equal(t, SurfaceAndLightmap, jobs[0].Kind)
	assert.Equal(t, Quit, jobs[1].Kind)
	assert.Empty(t, q.Drain())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(Job{Kind: Lightmap})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 1000)
}

func TestPool_CompletionPushesFollowUp(t *testing.T) {
	q := NewQueue()
	p := NewPool(context.Background(), 2)

	pos := vec.ChunkCoord{X: 4, Y: 5, Z: 6}
	require.True(t, p.Enqueue(func(ctx context.Context) error {
		q.Push(Job{Kind: SurfaceAndLightmap, Pos: pos, Dest: 9})
		return nil
	}))

	var jobs []Job
	require.Eventually(t, func() bool {
		jobs = append(jobs, q.Drain()...)
		return len(jobs) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Job{Kind: SurfaceAndLightmap, Pos: pos, Dest: 9}, jobs[0])
	require.NoError(t, p.Stop())
}

func TestPool_StopDrainsAcceptedTasks(t *testing.T) {
	p := NewPool(context.Background(), 1)
	var done atomic.Int32
	for i := 0; i < 20; i++ {
		p.Enqueue(func(context.Context) error {
			done.Add(1)
			return nil
		})
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, int32(20), done.Load())
	assert.False(t, p.Enqueue(func(context.Context) error { return nil }), "после остановки задачи не принимаются")
}

func TestPool_SurvivesFailingTasks(t *testing.T) {
	p := NewPool(context.Background(), 1)
	var ran atomic.Bool
	p.Enqueue(func(context.Context) error { panic("сбой") })
	p.Enqueue(func(context.Context) error { return errors.New("ошибка") })
	p.Enqueue(func(context.Context) error { ran.Store(true); return nil })
	require.NoError(t, p.Stop())
	assert.True(t, ran.Load())
}
