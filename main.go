package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/rage/secret-project-331-sub001/internal/config"
	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/exerciseservice"
	"github.com/rage/secret-project-331-sub001/internal/handlers"
	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/pkg"
	"github.com/rage/secret-project-331-sub001/internal/repositories/postgres"
	"github.com/rage/secret-project-331-sub001/internal/services"
	"github.com/rage/secret-project-331-sub001/internal/validator"
	"github.com/rage/secret-project-331-sub001/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, logCloser := pkg.NewLogger(cfg.Log)
	defer logCloser.Close()

	metrics.Init()

	// Initialize database
	db, err := pkg.InitDatabase(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Failed to initialize Redis, continuing without cache", "error", err)
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	publisher, err := events.NewEventPublisher(cfg.Kafka, logger)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	grader := exerciseservice.NewClient(cfg.Grading, logger)

	// Initialize services
	serviceConfig := services.DefaultServiceManagerConfig()
	serviceConfig.ReservationTTL = cfg.PeerReview.ReservationTTL
	serviceManager := services.NewServiceManager(repoManager.GetRepository(), grader, publisher, logger, validator.New(), serviceConfig)
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if cfg.Regrading.Enabled {
		regradingWorker := worker.NewRegradingWorker(serviceManager.Regrading(), cfg.Regrading.TickInterval, logger)
		go func() {
			defer close(workerDone)
			regradingWorker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlers.NewHandlerManager(serviceManager, logger).SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	stopWorkers()
	select {
	case <-workerDone:
	case <-ctx.Done():
		logger.Warn("Regrading worker did not stop in time")
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	// Closes the database and Redis connections
	if err := repoManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to close repositories", "error", err)
	}

	logger.Info("Server exited")
}
