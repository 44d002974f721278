package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

type teacherGradingService struct {
	repo      repositories.Repository
	updater   *UserExerciseStateUpdater
	logger    *slog.Logger
	validator *validator.Validator
	events    eventEmitter
}

func NewTeacherGradingService(repo repositories.Repository, updater *UserExerciseStateUpdater, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) TeacherGradingService {
	return &teacherGradingService{
		repo:      repo,
		updater:   updater,
		logger:    logger,
		validator: validator,
		events:    eventEmitter{publisher: publisher, logger: logger},
	}
}

// CreateDecision stores a manual grading and re-derives the state, which then follows the decision.
func (s *teacherGradingService) CreateDecision(ctx context.Context, req *TeacherGradingDecisionRequest) (*models.UserExerciseState, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	state, err := s.repo.UserExerciseState().GetByID(ctx, req.UserExerciseStateID)
	if err != nil {
		return nil, notFound(err, "user exercise state")
	}
	if state.ExerciseID != req.ExerciseID {
		return nil, NewValidationError("exercise_id", "does not match the user exercise state", req.ExerciseID)
	}
	exercise, err := s.repo.Exercise().GetByID(ctx, state.ExerciseID)
	if err != nil {
		return nil, notFound(err, "exercise")
	}

	score, err := s.decisionScore(ctx, req, exercise, state)
	if err != nil {
		return nil, err
	}

	decision := &models.TeacherGradingDecision{
		UserExerciseStateID: state.ID,
		TeacherDecision:     req.Action,
		ScoreGiven:          score,
		TeacherUserID:       req.TeacherUserID,
		JustificationText:   req.JustificationText,
	}

	var updated *StateUpdateResult
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if _, err := tx.UserExerciseState().GetByIDForUpdate(ctx, state.ID); err != nil {
			return notFound(err, "user exercise state")
		}
		if err := tx.TeacherGradingDecision().Create(ctx, decision); err != nil {
			return fmt.Errorf("failed to create teacher grading decision: %w", err)
		}
		updated, err = s.updater.Update(ctx, tx, state.ID, &PreloadedStateData{Exercise: exercise})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.stateUpdated(ctx, updated)
	s.logger.Info("Teacher grading decision created",
		"user_exercise_state_id", state.ID,
		"teacher_decision", decision.TeacherDecision,
		"score_given", decision.ScoreGiven,
		"teacher_user_id", decision.TeacherUserID)
	return updated.State, nil
}

func (s *teacherGradingService) decisionScore(ctx context.Context, req *TeacherGradingDecisionRequest, exercise *models.Exercise, state *models.UserExerciseState) (float64, error) {
	switch req.Action {
	case models.TeacherDecisionFullPoints:
		return float64(exercise.ScoreMaximum), nil
	case models.TeacherDecisionZeroPoints:
		return 0, nil
	case models.TeacherDecisionCustomPoints:
		if errs := s.validator.GetBusinessValidator().ValidateCustomPoints(req.ManualPoints, exercise.ScoreMaximum); len(errs) > 0 {
			return 0, errs
		}
		return RoundToTwoDecimals(*req.ManualPoints), nil
	case models.TeacherDecisionSuggestedPointsByPeers:
		return s.suggestedByPeers(ctx, exercise, state)
	}
	return 0, NewValidationError("action", "unknown teacher decision", req.Action)
}

// suggestedByPeers scores the answer from the peer reviews it received.
func (s *teacherGradingService) suggestedByPeers(ctx context.Context, exercise *models.Exercise, state *models.UserExerciseState) (float64, error) {
	info, err := LoadPeerReviewInformation(ctx, s.repo, exercise, state)
	if err != nil {
		return 0, err
	}
	if info.Config == nil {
		return 0, NewBusinessRuleError(ErrPreconditionFailed, "peer_review_config_required",
			"exercise has no peer review config to suggest points from", nil)
	}

	if !info.Config.PointsAreAllOrNothing {
		weighted := CalculateWeightedPeerReviewScore(exercise.ScoreMaximum, info.ReceivedQuestionSubmissions, info.Questions, s.logger)
		return RoundToTwoDecimals(clampScore(weighted, exercise.ScoreMaximum)), nil
	}
	average := CalculateAverageReceivedPeerReviewScore(info.ReceivedQuestionSubmissions, s.logger)
	if average >= info.Config.AcceptingThreshold {
		return float64(exercise.ScoreMaximum), nil
	}
	return 0, nil
}
