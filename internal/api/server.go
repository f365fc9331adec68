package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"schwab-invest-bot/internal/auth"
	"schwab-invest-bot/internal/database"
	"schwab-invest-bot/internal/events"
	"schwab-invest-bot/internal/logging"
	"schwab-invest-bot/internal/schwab"
	"schwab-invest-bot/internal/strategy"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
	AuditLogPath   string   `json:"-"`
}

// Strategies bundles the engines the API can trigger.
type Strategies struct {
	DCA           *strategy.DCA
	DRIP          *strategy.DRIP
	Rebalance     *strategy.Rebalance
	Opportunistic *strategy.Opportunistic
	Options       *strategy.Options
}

// Server exposes the dashboard REST and WebSocket API.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	client      schwab.Client
	repo        *database.Repository
	bus         *events.Bus
	strategies  Strategies
	authService *auth.Service
	hub         *WSHub
	logger      *logging.Logger
}

// NewServer creates a new API server. repo and authService may be nil when
// the database or auth are disabled.
func NewServer(
	config ServerConfig,
	client schwab.Client,
	repo *database.Repository,
	bus *events.Bus,
	strategies Strategies,
	authService *auth.Service,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("api")

	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		client:      client,
		repo:        repo,
		bus:         bus,
		strategies:  strategies,
		authService: authService,
		hub:         NewWSHub(logger),
		logger:      logger,
	}

	server.setupRoutes()

	if bus != nil {
		bus.SubscribeAll(server.hub.BroadcastEvent)
	}

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authService != nil})
	})
	if s.authService != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	if s.authService != nil {
		api.Use(auth.Middleware(s.authService.JWTManager()))
	}

	{
		// Account endpoints
		api.GET("/account/balances", s.handleGetBalances)
		api.GET("/account/positions", s.handleGetPositions)
		api.GET("/quotes", s.handleGetQuotes)

		// Strategy triggers
		api.POST("/strategies/dca/run", s.handleRunDCA)
		api.POST("/strategies/drip/run", s.handleRunDRIP)
		api.POST("/strategies/rebalance/run", s.handleRunRebalance)
		api.POST("/strategies/rebalance/preview", s.handlePreviewRebalance)
		api.POST("/strategies/opportunistic/run", s.handleRunOpportunistic)
		api.POST("/strategies/options/covered-calls", s.handleSellCoveredCalls)
		api.POST("/strategies/options/protective-puts", s.handleBuyProtectivePuts)

		// History endpoints
		api.GET("/orders", s.handleGetOrders)
		api.GET("/strategy-runs", s.handleGetStrategyRuns)

		// Audit endpoints
		api.GET("/audit", s.handleGetAuditTail)
		api.GET("/audit/verify", s.handleVerifyAudit)

		// WebSocket event stream
		api.GET("/ws", s.handleWebSocket)
	}
}

// Start runs the hub and the HTTP server. Blocks until the server exits.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" {
			return
		}
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
