package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

// PreloadedStateData lets callers hand in inputs they already hold. Nil fields are loaded.
type PreloadedStateData struct {
	Exercise              *models.Exercise
	PeerReviewInformation *PeerReviewInformation
}

// StateUpdateResult is the outcome of one read-derive-write cycle.
type StateUpdateResult struct {
	State           *models.UserExerciseState
	Changed         bool
	CompletedModule *models.CourseModuleCompletion
}

// ModuleCompletionChecker grants automatic course module completions after a state changes.
type ModuleCompletionChecker interface {
	CheckAndCompleteModule(ctx context.Context, repo repositories.Repository, userID, courseInstanceID uuid.UUID, exercise *models.Exercise) (*models.CourseModuleCompletion, error)
}

// UserExerciseStateUpdater is the only writer of derived user exercise states.
type UserExerciseStateUpdater struct {
	logger  *slog.Logger
	modules ModuleCompletionChecker
}

func NewUserExerciseStateUpdater(logger *slog.Logger, modules ModuleCompletionChecker) *UserExerciseStateUpdater {
	return &UserExerciseStateUpdater{logger: logger, modules: modules}
}

// Update locks the state row, loads the bundle, derives and writes the new state.
// repo must be bound to a transaction so the row lock covers the whole cycle.
func (u *UserExerciseStateUpdater) Update(ctx context.Context, repo repositories.Repository, stateID uuid.UUID, preloaded *PreloadedStateData) (*StateUpdateResult, error) {
	state, err := repo.UserExerciseState().GetByIDForUpdate(ctx, stateID)
	if err != nil {
		return nil, notFound(err, "user exercise state")
	}

	bundle, err := u.loadBundle(ctx, repo, state, preloaded)
	if err != nil {
		return nil, err
	}

	update := DeriveUserExerciseState(bundle, u.logger)
	result := &StateUpdateResult{State: state}
	if state.Matches(update) {
		metrics.StateUpdates.WithLabelValues("false").Inc()
		return result, nil
	}

	state.Apply(update)
	if err := repo.UserExerciseState().Update(ctx, state); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("user exercise state %s disappeared during update: %w", stateID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to update user exercise state: %w", err)
	}
	result.Changed = true
	metrics.StateUpdates.WithLabelValues("true").Inc()

	u.logger.Debug("User exercise state updated",
		"user_exercise_state_id", state.ID,
		"reviewing_stage", state.ReviewingStage,
		"grading_progress", state.GradingProgress)

	if u.modules != nil && state.CourseInstanceID != nil {
		completion, err := u.modules.CheckAndCompleteModule(ctx, repo, state.UserID, *state.CourseInstanceID, bundle.Exercise)
		if err != nil {
			return nil, fmt.Errorf("failed to check course module completion: %w", err)
		}
		result.CompletedModule = completion
	}

	return result, nil
}

func (u *UserExerciseStateUpdater) loadBundle(ctx context.Context, repo repositories.Repository, state *models.UserExerciseState, preloaded *PreloadedStateData) (*ExerciseStateUpdateBundle, error) {
	if preloaded == nil {
		preloaded = &PreloadedStateData{}
	}

	exercise := preloaded.Exercise
	if exercise == nil {
		var err error
		exercise, err = repo.Exercise().GetByID(ctx, state.ExerciseID)
		if err != nil {
			return nil, notFound(err, "exercise")
		}
	}

	summary, err := u.loadSlideGradingSummary(ctx, repo, state)
	if err != nil {
		return nil, err
	}

	decision, err := repo.TeacherGradingDecision().GetLatestByStateID(ctx, state.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher grading decision: %w", err)
	}

	bundle := &ExerciseStateUpdateBundle{
		Exercise:               exercise,
		CurrentState:           state,
		TeacherGradingDecision: decision,
		SlideGradingSummary:    summary,
	}

	if exercise.NeedsPeerReview {
		info := preloaded.PeerReviewInformation
		if info == nil {
			info, err = LoadPeerReviewInformation(ctx, repo, exercise, state)
			if err != nil {
				return nil, err
			}
		}
		bundle.PeerReviewInformation = info
	}

	return bundle, nil
}

func (u *UserExerciseStateUpdater) loadSlideGradingSummary(ctx context.Context, repo repositories.Repository, state *models.UserExerciseState) (models.UserExerciseSlideStateGradingSummary, error) {
	summary := models.UserExerciseSlideStateGradingSummary{GradingProgress: models.GradingProgressNotReady}
	if state.SelectedExerciseSlideID == nil {
		return summary, nil
	}

	slideState, err := repo.UserExerciseState().GetSlideState(ctx, state.ID, *state.SelectedExerciseSlideID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return summary, nil
		}
		return summary, fmt.Errorf("failed to get user exercise slide state: %w", err)
	}
	summary.ScoreGiven = slideState.ScoreGiven
	summary.GradingProgress = slideState.GradingProgress
	return summary, nil
}

// LoadPeerReviewInformation assembles the peer review part of the bundle. A missing config is not an
// error: the returned information carries a nil Config and the deriver falls back to the current stage.
func LoadPeerReviewInformation(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, state *models.UserExerciseState) (*PeerReviewInformation, error) {
	info := &PeerReviewInformation{}
	if state.CourseInstanceID == nil {
		return info, nil
	}

	cfg, err := repo.PeerReview().GetConfigForExercise(ctx, exercise)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return info, nil
		}
		return nil, fmt.Errorf("failed to get peer review config: %w", err)
	}
	info.Config = cfg

	if info.Questions, err = repo.PeerReview().GetQuestionsByConfigID(ctx, cfg.ID); err != nil {
		return nil, fmt.Errorf("failed to get peer review questions: %w", err)
	}

	info.GivenPeerReviewSubmissions, err = repo.PeerReview().GetGivenByUser(ctx, state.UserID, exercise.ID, *state.CourseInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get given peer reviews: %w", err)
	}

	latest, err := repo.Submission().GetLatestSlideSubmission(ctx, state.UserID, exercise.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return info, nil
		}
		return nil, fmt.Errorf("failed to get latest slide submission: %w", err)
	}

	if info.ReceivedQuestionSubmissions, err = repo.PeerReview().GetReceivedQuestionSubmissions(ctx, latest.ID); err != nil {
		return nil, fmt.Errorf("failed to get received peer reviews: %w", err)
	}

	entry, err := repo.PeerReviewQueue().GetBySlideSubmissionID(ctx, latest.ID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get peer review queue entry: %w", err)
	}
	// A deleted entry counts as no entry; the lock guard keeps an already locked score.
	if entry != nil && !entry.DeletedAt.Valid {
		info.QueueEntry = entry
	}

	return info, nil
}
