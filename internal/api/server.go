// Package api админский HTTP-интерфейс: здоровье, метрики Prometheus,
// список игроков и состояние кэша мира.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/middleware"
	"github.com/annel0/voxel-server/internal/network"
	"github.com/annel0/voxel-server/internal/world"
)

// PlayerSource список подключенных игроков
type PlayerSource interface {
	Players() []network.PlayerInfo
}

// WorldSource счетчики кэша мира
type WorldSource interface {
	Stats() world.Stats
}

// Config содержит конфигурацию админского сервера
type Config struct {
	Addr       string
	ServerName string
	Players    PlayerSource
	World      WorldSource
	Registry   *prometheus.Registry // nil: регистр по умолчанию
}

// GenericResponse общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AdminServer HTTP-сервер администрирования
type AdminServer struct {
	cfg     Config
	router  *gin.Engine
	srv     *http.Server
	metrics *ServerMetrics
	logger  *logging.Logger
}

// NewAdminServer собирает маршруты; сервер слушает только после Start
func NewAdminServer(cfg Config) (*AdminServer, error) {
	if cfg.Players == nil || cfg.World == nil {
		return nil, errors.New("api: нужны источники игроков и мира")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("admin_api", cfg.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	s := &AdminServer{
		cfg:     cfg,
		router:  router,
		metrics: NewServerMetrics(),
		logger:  logging.GetComponentLogger("http"),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s, nil
}

func (s *AdminServer) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/players", s.handlePlayers)
	api.GET("/world", s.handleWorld)
	api.GET("/stats", s.handleStats)
}

// Handler маршрутизатор без сетевого слушателя
func (s *AdminServer) Handler() http.Handler { return s.router }

// Start слушает до Stop; штатная остановка не считается ошибкой
func (s *AdminServer) Start() error {
	s.logger.Info("🌐 Админский API слушает %s", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop дожидается завершения текущих запросов
func (s *AdminServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *AdminServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"name":   s.cfg.ServerName,
		"time":   time.Now().Unix(),
	})
}

func (s *AdminServer) handlePlayers(c *gin.Context) {
	players := s.cfg.Players.Players()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Игроки на сервере",
		Data:    players,
	})
}

func (s *AdminServer) handleWorld(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние мира",
		Data:    s.cfg.World.Stats(),
	})
}

// handleStats возвращает нагрузку процесса
func (s *AdminServer) handleStats(c *gin.Context) {
	memoryMB := s.metrics.MemoryUsageMB()
	cpuPercent, err := s.metrics.CPUUsage()
	if err != nil {
		s.logger.Debug("CPU процесса недоступен: %v", err)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"uptime":      s.metrics.Uptime(),
			"memory_mb":   memoryMB,
			"cpu_percent": cpuPercent,
			"players":     len(s.cfg.Players.Players()),
			"memory":      s.metrics.MemoryDetails(),
			"server_time": time.Now().Unix(),
		},
	})
}
