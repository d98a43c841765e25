package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "network",
		Name:      "connections_active",
		Help:      "Открытые соединения.",
	})
	playersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "network",
		Name:      "players_online",
		Help:      "Соединения, прошедшие вход.",
	})
	packetsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "packets_received_total",
		Help:      "Принятые сообщения по типам.",
	}, []string{"type"})
	packetsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "packets_sent_total",
		Help:      "Отправленные сообщения по типам.",
	}, []string{"type"})
	protocolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "protocol_errors_total",
		Help:      "Ошибки обработки сообщений по типам.",
	}, []string{"type"})
	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "jobs_processed_total",
		Help:      "Задания, разобранные сетевым циклом.",
	}, []string{"kind"})
	surfacesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "network",
		Name:      "surfaces_sent_total",
		Help:      "Отправленные поверхности чанков.",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsActive,
		playersOnline,
		packetsReceived,
		packetsSent,
		protocolErrors,
		jobsProcessed,
		surfacesSent,
	)
}
