package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/config"
	"github.com/syndicatehq/syndicate/internal/queue"
	"github.com/syndicatehq/syndicate/internal/service"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
	"github.com/syndicatehq/syndicate/internal/service/publisher/webhook"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Registry     *publisher.Registry
	Orchestrator *service.Orchestrator
	Articles     *service.ArticleStore
	Integrations *service.IntegrationStore
	Publications *service.PublicationStore
	Events       *service.EventBus
	Monitoring   *service.MonitoringService
	Worker       *queue.Worker
	Janitor      *service.Janitor
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize stores
	publications := service.NewPublicationStore(db, logger)
	integrations := service.NewIntegrationStore(db, logger, publications)
	articles := service.NewArticleStore(db, logger)

	// Initialize publisher registry
	registry := publisher.NewRegistry(logger)
	if err := registerPublishers(cfg, logger, registry); err != nil {
		return nil, fmt.Errorf("failed to register publishers: %w", err)
	}

	// Initialize orchestration core
	events := service.NewEventBus(logger)
	monitoring := service.NewMonitoringService(db, logger)
	jobQueue := queue.NewGormQueue(db, logger, cfg.Worker.MaxAttempts)
	orchestrator := service.NewOrchestrator(logger, registry, publications, integrations, articles, jobQueue, events, monitoring)

	// Downstream consumers subscribe to terminal transitions; by default
	// they are only logged
	events.Subscribe(func(event service.Event) {
		logger.Info("Publication event",
			zap.String("kind", string(event.Kind)),
			zap.String("content_id", event.ContentID),
			zap.String("reason", event.Reason))
	})

	// Initialize async delivery worker
	pollInterval, err := time.ParseDuration(cfg.Worker.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid worker poll interval: %w", err)
	}
	workerConfig := queue.DefaultWorkerConfig()
	workerConfig.Concurrency = cfg.Worker.Concurrency
	workerConfig.PollInterval = pollInterval
	worker := queue.NewWorker(db, logger, orchestrator, workerConfig)

	// Initialize janitor
	sweepInterval, err := time.ParseDuration(cfg.Janitor.SweepInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor sweep interval: %w", err)
	}
	stuckThreshold, err := time.ParseDuration(cfg.Janitor.StuckThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor stuck threshold: %w", err)
	}
	janitor := service.NewJanitor(db, logger, orchestrator, monitoring, sweepInterval, stuckThreshold, cfg.Janitor.RetentionDays)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       router,
		Logger:       logger,
		Registry:     registry,
		Orchestrator: orchestrator,
		Articles:     articles,
		Integrations: integrations,
		Publications: publications,
		Events:       events,
		Monitoring:   monitoring,
		Worker:       worker,
		Janitor:      janitor,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func registerPublishers(cfg *config.Config, logger *zap.Logger, registry *publisher.Registry) error {
	requestTimeout, err := time.ParseDuration(cfg.Publisher.RequestTimeout)
	if err != nil {
		return fmt.Errorf("invalid publisher request timeout: %w", err)
	}

	if cfg.Publisher.Webhook.Enabled {
		err := registry.Register("webhook", func() publisher.Publisher {
			return webhook.NewWebhookPublisher(logger,
				webhook.WithTimeout(requestTimeout),
				webhook.WithUserAgent(cfg.Publisher.Webhook.UserAgent))
		})
		if err != nil {
			return err
		}
		logger.Info("Webhook publisher registered and configured")
	}

	return nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		api.POST("/publish", s.handlePublish)
		api.POST("/publish-all", s.handlePublishToAll)

		publications := api.Group("/publications")
		{
			publications.POST("/:id/retry", s.handleRetryPublication)
		}

		contents := api.Group("/contents")
		{
			contents.GET("/:id/publications", s.handlePublicationStatus)
		}

		integrations := api.Group("/integrations")
		{
			integrations.POST("", s.handleCreateIntegration)
			integrations.GET("", s.handleListIntegrations)
			integrations.DELETE("/:id", s.handleRemoveIntegration)
			integrations.POST("/:id/test", s.handleTestIntegration)
		}

		articles := api.Group("/articles")
		{
			articles.POST("", s.handleCreateArticle)
			articles.GET("", s.handleListArticles)
			articles.GET("/:id", s.handleGetArticle)
		}

		api.GET("/publisher/types", s.handlePublisherTypes)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start background services
	if s.Config.Worker.Enabled {
		s.Worker.Start(ctx)
	}
	if s.Config.Janitor.Enabled {
		s.Janitor.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background services first
	if s.Config.Janitor.Enabled {
		s.Janitor.Stop()
	}
	if s.Config.Worker.Enabled {
		s.Worker.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
