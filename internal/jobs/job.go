// Package jobs связывает сетевой цикл с пулом фоновых задач.
//
// Очередь Queue принимает задания от любого числа производителей и
// разбирается одним потребителем (сетевым циклом) без блокировки.
package jobs

import (
	"fmt"
	"sync"

	"github.com/annel0/voxel-server/internal/vec"
)

// Kind тип задания
type Kind uint8

const (
	Quit Kind = iota
	Lightmap
	SurfaceAndLightmap
	EntityInfo
)

func (k Kind) String() string {
	switch k {
	case Quit:
		return "quit"
	case Lightmap:
		return "lightmap"
	case SurfaceAndLightmap:
		return "surface_and_lightmap"
	case EntityInfo:
		return "entity_info"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// PeerID получатель задания; 0 означает рассылку всем подходящим игрокам
type PeerID uint32

// Job задание для сетевого цикла
type Job struct {
	Kind Kind
	Pos  vec.ChunkCoord
	Dest PeerID
	// Entity используется заданиями EntityInfo
	Entity uint32
}

// Queue очередь заданий с неблокирующей вставкой и выборкой
type Queue struct {
	mu      sync.Mutex
	pending []Job
}

// NewQueue создает пустую очередь
func NewQueue() *Queue {
	return &Queue{}
}

// Push добавляет задание. Никогда не блокируется.
func (q *Queue) Push(job Job) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
}

// Drain забирает все накопленные задания в порядке поступления
func (q *Queue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}
