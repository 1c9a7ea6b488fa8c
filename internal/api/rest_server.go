package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/middleware"
	"github.com/annel0/voxphys/internal/simulation"
)

// RestServer представляет REST API сервер симуляции
type RestServer struct {
	router    *gin.Engine
	server    *http.Server
	simulator *simulation.Simulator
	metrics   *ServerMetrics
	logger    *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      int                   // порт для запуска сервера
	Simulator *simulation.Simulator // симулятор, которым управляет API
	Registry  *prometheus.Registry  // реестр метрик, nil - собственный
	GinMode   string                // debug | release | test
	Service   string                // имя сервиса для трассировки
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Simulator == nil {
		return nil, errors.New("REST серверу нужен симулятор")
	}
	if config.Port <= 0 {
		config.Port = 8088
	}
	if config.GinMode == "" {
		config.GinMode = gin.ReleaseMode
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Service == "" {
		config.Service = "voxphys"
	}

	gin.SetMode(config.GinMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	logger := logging.GetServerLogger()
	router.Use(middleware.NewRequestLogger(logger).Handler())
	router.Use(otelgin.Middleware(config.Service))

	promMw := middleware.NewPrometheusMiddleware("rest_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Registry)

	router.Use(corsMiddleware())
	router.Use(bodyLimitMiddleware())

	rs := &RestServer{
		router:    router,
		simulator: config.Simulator,
		metrics:   NewServerMetrics(),
		logger:    logger,
	}
	rs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/server", rs.handleServerInfo)

		api.GET("/entities", rs.handleListEntities)
		api.POST("/entities", rs.handleSpawnEntity)
		api.GET("/entities/:id", rs.handleGetEntity)
		api.DELETE("/entities/:id", rs.handleDespawnEntity)
		api.POST("/entities/:id/input", rs.handleEntityInput)

		api.GET("/tiles/:x/:y/:z", rs.handleGetTile)
		api.PUT("/tiles/:x/:y/:z", rs.handleSetTile)
		api.GET("/raycast", rs.handleRaycast)
	}
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo возвращает информацию о сервере и симуляции
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := map[string]interface{}{
		"name":      "voxphys",
		"status":    "running",
		"uptime":    rs.metrics.GetUptime(),
		"memory_mb": fmt.Sprintf("%.1f", rs.metrics.GetMemoryUsage()),
		"memory":    rs.metrics.GetDetailedMemoryStats(),
		"entities":  rs.simulator.EntityCount(),
		"tick":      rs.simulator.TickCount(),
	}
	if cpuPercent, err := rs.metrics.GetCPUUsage(); err == nil {
		info["cpu_percent"] = fmt.Sprintf("%.1f", cpuPercent)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// Start запускает REST сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop плавно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
