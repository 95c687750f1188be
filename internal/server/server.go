package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/enricher"
	"github.com/orgoj/crogger/internal/handler"
	"github.com/orgoj/crogger/internal/intake"
	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/validation"
)

// Dependencies holds the dependencies needed by the server.
type Dependencies struct {
	Config    *config.Config
	Forwarder handler.Forwarder
	AppLogger *logger.AppLogger
}

// Server represents the relay HTTP server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	appLogger  *logger.AppLogger
	httpServer *http.Server
}

// NewServer creates a new server instance with its dependencies.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: Config dependency cannot be nil")
	}
	if deps.Forwarder == nil {
		return nil, errors.New("server: Forwarder dependency cannot be nil")
	}
	if deps.AppLogger == nil {
		deps.AppLogger = logger.GetAppLogger()
	}

	enr, err := enricher.New(deps.Config)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	// Tests pin gin to TestMode
	if gin.Mode() != gin.TestMode {
		if deps.Config.Server.Mode == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Config.Server.Mode == "debug" {
		router.Use(gin.Logger())
	}
	// Client IPs are resolved by the enricher from server.trusted_proxies
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		router:    router,
		config:    deps.Config,
		appLogger: deps.AppLogger,
	}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes(handler.LogHandlerDependencies{
		Forwarder:   deps.Forwarder,
		Enricher:    enr,
		Decoder:     &intake.Decoder{},
		Limits:      validation.DefaultLimits(),
		MaxBodySize: deps.Config.Server.MaxBodySize,
		TokenSecret: deps.Config.Server.Token.Secret,
		Dataset:     deps.Config.Ingest.Dataset,
		AppLogger:   deps.AppLogger,
	})
	return s, nil
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(logDeps handler.LogHandlerDependencies) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	s.router.GET("/version", handler.VersionHandler)

	logGroup := s.router.Group("/log")
	{
		logGroup.POST("", handler.NewLogHandler(logDeps))
		logGroup.POST("/bulk", handler.NewBulkHandler(logDeps))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.appLogger.Info("Starting relay on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
