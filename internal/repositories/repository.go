package repositories

import "context"

// Repository aggregates every repository of the grading engine.
type Repository interface {
	// Exercise content
	Exercise() ExerciseRepository
	ExerciseService() ExerciseServiceRepository

	// Submissions and gradings
	Submission() SubmissionRepository
	Grading() GradingRepository

	// Derived state
	UserExerciseState() UserExerciseStateRepository
	TeacherGradingDecision() TeacherGradingDecisionRepository

	// Peer review
	PeerReview() PeerReviewRepository
	PeerReviewQueue() PeerReviewQueueRepository

	// Regrading
	Regrading() RegradingRepository

	// Course structure and progression
	Course() CourseRepository
	ChapterLocking() ChapterLockingRepository
	CourseModuleCompletion() CourseModuleCompletionRepository

	// Transaction support. The repositories handed to fn share one transaction;
	// returning an error rolls it back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
