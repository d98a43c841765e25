// Package physics двигает сущности с фиксированным периодом, читая мир
// и записывая сущности в порядке, общем для всего сервера.
package physics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/world"
)

const (
	DefaultPeriod = 50 * time.Millisecond
	// MaxStep предельная длина подшага в секундах
	MaxStep = 0.05
	// MinStep остаток короче отбрасывается
	MinStep = 0.001
)

var stepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "physics",
	Name:      "batch_duration_seconds",
	Help:      "Время одного пакета подшагов физики.",
	Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
})

func init() {
	prometheus.MustRegister(stepDuration)
}

// Loop цикл физики
type Loop struct {
	state  *gamestate.State
	period time.Duration
	logger *logging.Logger
}

// NewLoop создает цикл; period <= 0 означает DefaultPeriod
func NewLoop(state *gamestate.State, period time.Duration) *Loop {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Loop{state: state, period: period, logger: logging.GetPhysicsLogger()}
}

// Run крутит физику до отмены контекста
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("⚙️ Физика запущена с периодом %v", l.period)
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("🛑 Физика остановлена")
			return nil
		case now := <-ticker.C:
			delta := now.Sub(last).Seconds()
			last = now
			if err := l.Tick(delta); err != nil {
				l.logger.Error("❌ Ошибка шага физики: %v", err)
			}
		}
	}
}

// Tick проводит delta секунд через все системы под чтением мира и записью сущностей
func (l *Loop) Tick(delta float64) error {
	start := time.Now()
	defer func() { stepDuration.Observe(time.Since(start).Seconds()) }()

	return l.state.ReadWorldWriteEntities(func(w *world.ReadAccess, tx *ecs.WriteTx) error {
		n := Simulate(tx, WorldOracle{R: w}, delta)
		l.logger.Trace("шаг %.4f с, подшагов %d", delta, n)
		return nil
	})
}

// Simulate делит delta на подшаги не длиннее MaxStep и возвращает их число
func Simulate(tx *ecs.WriteTx, oracle TerrainOracle, delta float64) int {
	t := newTerrain(oracle)
	n := 0
	for delta > 0 {
		var dt float64
		switch {
		case delta > MaxStep:
			dt = MaxStep
			delta -= MaxStep
		case delta < MinStep:
			return n
		default:
			dt = delta
			delta = 0
		}
		s := &step{tx: tx, terrain: t, dt: dt, held: make(map[ecs.EntityID]struct{})}
		gravity(s)
		walk(s)
		motion(s)
		terrainCollision(tx, t)
		friction(s)
		n++
	}
	return n
}
