// Package api админский REST API: вход по JWT, статистика процесса и
// снимок мира, опубликованный тиковым циклом.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/annel0/lerocia/internal/auth"
	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// WorldView источник снимков мира
type WorldView interface {
	Snapshot() *game.Snapshot
}

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	users   auth.UserRepository
	issuer  *auth.Issuer
	world   WorldView
	metrics *ServerMetrics
	log     *logging.Logger

	addr     string
	srv      *http.Server
	listener net.Listener
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr     string // адрес для запуска сервера
	Users    auth.UserRepository
	Issuer   *auth.Issuer
	World    WorldView
	Registry *prometheus.Registry // метрики для /metrics
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.Issuer == nil || cfg.Users == nil || cfg.World == nil {
		return nil, errors.New("api: Issuer, Users и World обязательны")
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New() // без стандартного logger
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("lerocia_api"))
	router.Use(middleware.NewRequestLogger(logging.GetAPILogger()).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("lerocia_api", cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("метрики API: %w", err)
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:  router,
		users:   cfg.Users,
		issuer:  cfg.Issuer,
		world:   cfg.World,
		metrics: NewServerMetrics(),
		log:     logging.GetAPILogger(),
		addr:    cfg.Addr,
	}
	rs.setupRoutes()
	return rs, nil
}

// Handler возвращает http.Handler с маршрутами API
func (rs *RestServer) Handler() http.Handler { return rs.router }

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/characters", rs.handleCharacters)
		protected.GET("/world-items", rs.handleWorldItems)
	}
}

// Start начинает слушать адрес и обслуживать запросы в фоне
func (rs *RestServer) Start() error {
	ln, err := net.Listen("tcp", rs.addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", rs.addr, err)
	}
	rs.listener = ln
	rs.srv = &http.Server{
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := rs.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Error("REST сервер остановлен: %v", err)
		}
	}()
	rs.log.Info("REST API слушает %s", ln.Addr())
	return nil
}

// Addr фактический адрес после Start
func (rs *RestServer) Addr() net.Addr {
	if rs.listener == nil {
		return nil
	}
	return rs.listener.Addr()
}

// Stop дожидается завершения текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.srv == nil {
		return nil
	}
	return rs.srv.Shutdown(ctx)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatsResponse данные /api/stats
type StatsResponse struct {
	Uptime             string                `json:"uptime"`
	CPUPercent         float64               `json:"cpu_percent"`
	RSSMB              float64               `json:"rss_mb"`
	Memory             MemoryStats           `json:"memory"`
	Clock              string                `json:"clock"`
	SnapshotAt         time.Time             `json:"snapshot_at"`
	Players            int                   `json:"players"`
	NPCs               int                   `json:"npcs"`
	Bodies             int                   `json:"bodies"`
	WorldItems         int                   `json:"world_items"`
	Connections        game.ConnectionCounts `json:"connections"`
	PendingPersistence int                   `json:"pending_persistence"`
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok"})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	user, err := auth.ValidateCredentials(rs.users, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		rs.log.Warn("Неудачный вход %q с %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}
	if err != nil {
		rs.log.Error("Вход %q: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	token, err := rs.issuer.Issue(user)
	if err != nil {
		rs.log.Error("Выпуск токена для %q: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}
	_ = rs.users.TouchLogin(user.ID)

	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
	})
}

// handleStats возвращает статистику процесса и мира
func (rs *RestServer) handleStats(c *gin.Context) {
	snap := rs.world.Snapshot()
	cpu, _ := rs.metrics.GetCPUUsage()
	rss, _ := rs.metrics.GetRSS()

	stats := StatsResponse{
		Uptime:             rs.metrics.GetUptime(),
		CPUPercent:         cpu,
		RSSMB:              rss,
		Memory:             rs.metrics.GetDetailedMemoryStats(),
		Clock:              snap.Clock.String(),
		SnapshotAt:         snap.TakenAt,
		WorldItems:         len(snap.WorldItems),
		Connections:        snap.Connections,
		PendingPersistence: snap.PendingPersistence,
	}
	for _, ch := range snap.Characters {
		switch ch.Kind {
		case "player":
			stats.Players++
		case "npc":
			stats.NPCs++
		case "body":
			stats.Bodies++
		}
	}

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Статистика получена", Data: stats})
}

// handleCharacters список персонажей, ?kind=player|npc|body фильтрует
func (rs *RestServer) handleCharacters(c *gin.Context) {
	kind := c.Query("kind")
	out := make([]game.CharacterView, 0)
	for _, ch := range rs.world.Snapshot().Characters {
		if kind == "" || ch.Kind == kind {
			out = append(out, ch)
		}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Персонажи", Data: out})
}

func (rs *RestServer) handleWorldItems(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Предметы в мире", Data: rs.world.Snapshot().WorldItems})
}
