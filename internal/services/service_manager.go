package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// ReservationTTL is how long an answer offered to a reviewer stays reserved for them.
	ReservationTTL time.Duration
}

// DefaultServiceManagerConfig matches the configuration defaults.
func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{ReservationTTL: time.Hour}
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	grader    GraderClient
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	stateUpdater          *UserExerciseStateUpdater
	submissionService     SubmissionService
	peerReviewService     PeerReviewService
	regradingService      RegradingService
	progressionService    ProgressionService
	teacherGradingService TeacherGradingService
	exportService         ExportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, grader GraderClient, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		grader:    grader,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	// The state updater grants module completions through the progression engine,
	// every state-changing service shares the one updater.
	sm.progressionService = NewProgressionService(sm.repo, sm.publisher, sm.logger)
	sm.stateUpdater = NewUserExerciseStateUpdater(sm.logger, sm.progressionService)

	sm.submissionService = NewSubmissionService(sm.repo, sm.grader, sm.stateUpdater, sm.publisher, sm.logger, sm.validator)
	sm.logger.Info("Submission service initialized")

	sm.peerReviewService = NewPeerReviewService(sm.repo, sm.stateUpdater, sm.publisher, sm.logger, sm.validator, sm.config.ReservationTTL)
	sm.logger.Info("Peer review service initialized")

	sm.regradingService = NewRegradingService(sm.repo, sm.grader, sm.submissionService, sm.publisher, sm.logger, sm.validator)
	sm.logger.Info("Regrading service initialized")

	sm.teacherGradingService = NewTeacherGradingService(sm.repo, sm.stateUpdater, sm.publisher, sm.logger, sm.validator)
	sm.exportService = NewExportService(sm.repo, sm.logger)

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Service getters
func (sm *serviceManager) Submission() SubmissionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.submissionService
}

func (sm *serviceManager) PeerReview() PeerReviewService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.peerReviewService
}

func (sm *serviceManager) Regrading() RegradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.regradingService
}

func (sm *serviceManager) Progression() ProgressionService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.progressionService
}

func (sm *serviceManager) TeacherGrading() TeacherGradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.teacherGradingService
}

func (sm *serviceManager) Export() ExportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.exportService
}

func (sm *serviceManager) StateUpdater() *UserExerciseStateUpdater {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.stateUpdater
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}
