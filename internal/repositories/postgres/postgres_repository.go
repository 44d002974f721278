package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/cache"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	exercise               repositories.ExerciseRepository
	exerciseService        repositories.ExerciseServiceRepository
	submission             repositories.SubmissionRepository
	grading                repositories.GradingRepository
	userExerciseState      repositories.UserExerciseStateRepository
	teacherGradingDecision repositories.TeacherGradingDecisionRepository
	peerReview             repositories.PeerReviewRepository
	peerReviewQueue        repositories.PeerReviewQueueRepository
	regrading              repositories.RegradingRepository
	course                 repositories.CourseRepository
	chapterLocking         repositories.ChapterLockingRepository
	courseModuleCompletion repositories.CourseModuleCompletionRepository
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

// NewPostgreSQLRepository creates a new repository with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	repo := &PostgreSQLRepository{
		db:           config.DB,
		redisClient:  config.RedisClient,
		cacheManager: cache.NewCacheManager(config.RedisClient),
	}
	repo.exerciseService = NewExerciseServicePostgreSQL(config.DB, repo.cacheManager)
	repo.bind(config.DB)
	return repo
}

// bind builds every database-bound sub-repository on db.
func (r *PostgreSQLRepository) bind(db *gorm.DB) {
	r.exercise = NewExercisePostgreSQL(db)
	r.submission = NewSubmissionPostgreSQL(db)
	r.grading = NewGradingPostgreSQL(db)
	r.userExerciseState = NewUserExerciseStatePostgreSQL(db)
	r.teacherGradingDecision = NewTeacherGradingDecisionPostgreSQL(db)
	r.peerReview = NewPeerReviewPostgreSQL(db)
	r.peerReviewQueue = NewPeerReviewQueuePostgreSQL(db)
	r.regrading = NewRegradingPostgreSQL(db)
	r.course = NewCoursePostgreSQL(db)
	r.chapterLocking = NewChapterLockingPostgreSQL(db)
	r.courseModuleCompletion = NewCourseModuleCompletionPostgreSQL(db)
}

func (r *PostgreSQLRepository) Exercise() repositories.ExerciseRepository {
	return r.exercise
}

func (r *PostgreSQLRepository) ExerciseService() repositories.ExerciseServiceRepository {
	return r.exerciseService
}

func (r *PostgreSQLRepository) Submission() repositories.SubmissionRepository {
	return r.submission
}

func (r *PostgreSQLRepository) Grading() repositories.GradingRepository {
	return r.grading
}

func (r *PostgreSQLRepository) UserExerciseState() repositories.UserExerciseStateRepository {
	return r.userExerciseState
}

func (r *PostgreSQLRepository) TeacherGradingDecision() repositories.TeacherGradingDecisionRepository {
	return r.teacherGradingDecision
}

func (r *PostgreSQLRepository) PeerReview() repositories.PeerReviewRepository {
	return r.peerReview
}

func (r *PostgreSQLRepository) PeerReviewQueue() repositories.PeerReviewQueueRepository {
	return r.peerReviewQueue
}

func (r *PostgreSQLRepository) Regrading() repositories.RegradingRepository {
	return r.regrading
}

func (r *PostgreSQLRepository) Course() repositories.CourseRepository {
	return r.course
}

func (r *PostgreSQLRepository) ChapterLocking() repositories.ChapterLockingRepository {
	return r.chapterLocking
}

func (r *PostgreSQLRepository) CourseModuleCompletion() repositories.CourseModuleCompletionRepository {
	return r.courseModuleCompletion
}

// WithTransaction executes a function within a database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &PostgreSQLRepository{
			db:           tx,
			redisClient:  r.redisClient,
			cacheManager: r.cacheManager,
			// the service registry is read-only and cached, it stays outside the transaction
			exerciseService: r.exerciseService,
		}
		txRepo.bind(tx)
		return fn(txRepo)
	})
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// RepositoryManager implements the RepositoryManager interface
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &RepositoryManager{
		config: config,
	}
}

// Initialize initializes all repositories and connections
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.RedisClient != nil {
		if _, err := rm.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)

	return nil
}

// GetRepository returns the repository instance
func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

// HealthCheck checks the health of all repository connections
func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	return rm.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}

	return rm.repo.Close()
}
