package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloudvault/rategate/internal/circuitbreaker"
	"github.com/cloudvault/rategate/internal/config"
	"github.com/cloudvault/rategate/internal/handler"
	"github.com/cloudvault/rategate/internal/middleware"
	"github.com/cloudvault/rategate/internal/ratelimit"
	"github.com/cloudvault/rategate/internal/repository"
	"github.com/cloudvault/rategate/internal/service"
	"github.com/cloudvault/rategate/internal/storage"
)

type Server struct {
	router           *gin.Engine
	config           *config.Config
	logger           *logrus.Logger
	redis            *storage.RedisClient
	postgres         *storage.Postgres
	limiter          *ratelimit.RateLimiter
	registry         *ratelimit.PolicyRegistry
	rateLimitHandler *handler.RateLimitHandler
	systemHandler    *handler.SystemHandler
	analyticsHandler *handler.AnalyticsHandler
	httpServer       *http.Server
}

func New(cfg *config.Config, log *logrus.Logger, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	registry, err := ratelimit.NewPolicyRegistry(cfg.RateLimit.Policies, cfg.RateLimit.Routes, cfg.RateLimit.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	store := ratelimit.NewStore(cfg.RateLimit.Backend, redis)
	limiter := ratelimit.NewRateLimiter(store, log, ratelimit.Options{
		GuardLimit: cfg.RateLimit.GuardLimit,
		GuardTTL:   time.Duration(cfg.RateLimit.GuardTTLSeconds) * time.Second,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.RateLimit.BreakerThreshold,
			RecoveryTime:     time.Duration(cfg.RateLimit.BreakerRecoveryS) * time.Second,
		},
	})

	decisionRepo := repository.NewDecisionLogRepository(postgres)
	analyticsService := service.NewAnalyticsService(decisionRepo)

	middleware.InitDecisionLogger(decisionRepo, log, cfg.RateLimit.LogBufferSize)

	if cfg.RateLimit.RetentionDays > 0 {
		startRetentionWorker(analyticsService, log, cfg.RateLimit.RetentionDays)
	}

	s := &Server{
		router:           router,
		config:           cfg,
		logger:           log,
		redis:            redis,
		postgres:         postgres,
		limiter:          limiter,
		registry:         registry,
		rateLimitHandler: handler.NewRateLimitHandler(limiter, registry),
		systemHandler:    handler.NewSystemHandler(limiter),
		analyticsHandler: handler.NewAnalyticsHandler(analyticsService),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Prunes decision logs past the retention period once an hour
func startRetentionWorker(svc *service.AnalyticsService, log *logrus.Logger, retentionDays int) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			deleted, err := svc.CleanupOldLogs(ctx, retentionDays)
			cancel()

			if err != nil {
				log.WithError(err).Warn("decision log cleanup failed")
			} else if deleted > 0 {
				log.WithField("deleted", deleted).Info("Pruned expired decision logs")
			}
		}
	}()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Identifier(s.config.Server.JWTSecret))
	// DecisionLogger wraps RateLimit so denials are recorded too
	s.router.Use(middleware.DecisionLogger(s.logger))
	s.router.Use(middleware.RateLimit(s.limiter, s.registry))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	// Gated demo route so the limiter can be exercised without a backend
	s.router.Any("/api/*path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ok",
			"path":    c.Param("path"),
		})
	})

	admin := s.router.Group("/admin")
	{
		admin.GET("/ratelimit/metrics/:id", s.rateLimitHandler.GetMetrics)
		admin.DELETE("/ratelimit/metrics/:id", s.rateLimitHandler.ResetMetrics)
		admin.GET("/ratelimit/policies", s.rateLimitHandler.ListPolicies)
		admin.GET("/circuit-breaker", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/circuit-breaker/reset", s.systemHandler.ResetCircuitBreaker)
		admin.GET("/analytics", s.analyticsHandler.GetSummary)
		admin.GET("/analytics/timeseries", s.analyticsHandler.GetTimeSeries)
		admin.GET("/analytics/identifiers/:id", s.analyticsHandler.GetIdentifierStats)
		admin.GET("/logs", s.analyticsHandler.GetLogs)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true

	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			redisHealthy = false
			s.logger.WithError(err).Warn("redis health check failed")
		}
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		s.logger.WithError(err).Warn("database health check failed")
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "rategate",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.logger.Infof("Starting rate limit gateway on %s", addr)
	s.logger.Infof("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
