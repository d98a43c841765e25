package world

import "github.com/prometheus/client_golang/prometheus"

var (
	chunksCached = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "world",
		Name:      "chunks_cached",
		Help:      "Количество чанков в памяти.",
	})
	chunksGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "world",
		Name:      "surfaces_generated_total",
		Help:      "Сколько раз строилась поверхность чанка.",
	})
	chunksEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "world",
		Name:      "chunks_evicted_total",
		Help:      "Чанки, выгруженные из памяти при очистке.",
	})
	chunksFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "world",
		Name:      "chunks_flushed_total",
		Help:      "Измененные чанки, записанные в хранилище.",
	})
)

func init() {
	prometheus.MustRegister(chunksCached, chunksGenerated, chunksEvicted, chunksFlushed)
}
