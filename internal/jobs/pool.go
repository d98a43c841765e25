package jobs

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-server/internal/logging"
)

var (
	tasksStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobs",
		Name:      "tasks_started_total",
		Help:      "Задачи, взятые воркерами в работу.",
	})
	tasksFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobs",
		Name:      "tasks_failed_total",
		Help:      "Задачи, завершившиеся ошибкой или паникой.",
	})
	tasksPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jobs",
		Name:      "tasks_pending",
		Help:      "Задачи, ожидающие свободного воркера.",
	})
)

func init() {
	prometheus.MustRegister(tasksStarted, tasksFailed, tasksPending)
}

// Task фоновая задача. Результат возвращается в сетевой цикл через Queue.
type Task func(ctx context.Context) error

// Pool пул воркеров для долгой генерации
type Pool struct {
	mu       sync.Mutex
	pending  []Task
	stopping bool

	wake   chan struct{}
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	logger *logging.Logger
}

// NewPool запускает workers воркеров; workers <= 0 означает по числу ядер
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		wake:   make(chan struct{}, workers),
		quit:   make(chan struct{}),
		ctx:    gctx,
		cancel: cancel,
		g:      g,
		logger: logging.GetComponentLogger("jobs"),
	}
	for i := 0; i < workers; i++ {
		g.Go(p.worker)
	}
	p.logger.Info("⚙️ Запущен пул воркеров: %d", workers)
	return p
}

// Enqueue ставит задачу в очередь пула. Не блокируется.
// После Stop задачи не принимаются.
func (p *Pool) Enqueue(task Task) bool {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return false
	}
	p.pending = append(p.pending, task)
	tasksPending.Set(float64(len(p.pending)))
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, false
	}
	task := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	tasksPending.Set(float64(len(p.pending)))
	return task, true
}

func (p *Pool) worker() error {
	for {
		if task, ok := p.next(); ok {
			p.run(task)
			continue
		}
		select {
		case <-p.wake:
		case <-p.quit:
			// Дорабатываем то, что успели поставить до остановки
			for {
				task, ok := p.next()
				if !ok {
					return nil
				}
				p.run(task)
			}
		case <-p.ctx.Done():
			return nil
		}
	}
}

func (p *Pool) run(task Task) {
	tasksStarted.Inc()
	defer func() {
		if r := recover(); r != nil {
			tasksFailed.Inc()
			p.logger.Error("❌ Паника в фоновой задаче: %v", r)
		}
	}()
	if err := task(p.ctx); err != nil {
		tasksFailed.Inc()
		p.logger.Error("❌ Ошибка фоновой задачи: %v", err)
	}
}

// Stop перестает принимать задачи, дожидается выполнения принятых и воркеров
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.mu.Unlock()

	close(p.quit)
	err := p.g.Wait()
	p.cancel()
	if err != nil {
		return fmt.Errorf("ошибка остановки пула: %w", err)
	}
	p.logger.Info("🛑 Пул воркеров остановлен")
	return nil
}
