package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/models"
)

// answeredState submits one answer worth 1 of 3 points and returns the resulting state.
func answeredState(t *testing.T) (*fixture, *models.Exercise, *models.UserExerciseState) {
	f := newFixture(t)
	exercise := f.addExercise(nil, func(e *models.Exercise) { e.ScoreMaximum = 3 })
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")
	user := uuid.New()
	f.mustSubmit(user, exercise, slide, gradingResult(1, 3))
	return f, exercise, f.state(user, exercise)
}

func decisionRequest(exercise *models.Exercise, state *models.UserExerciseState, action models.TeacherDecisionType) *TeacherGradingDecisionRequest {
	return &TeacherGradingDecisionRequest{
		UserExerciseStateID: state.ID,
		ExerciseID:          exercise.ID,
		Action:              action,
		TeacherUserID:       uuid.New(),
	}
}

func TestTeacherGradingService_CreateDecision(t *testing.T) {
	custom := 1.234

	tests := []struct {
		name         string
		action       models.TeacherDecisionType
		manualPoints *float64
		want         float64
	}{
		{name: "full points", action: models.TeacherDecisionFullPoints, want: 3},
		{name: "zero points", action: models.TeacherDecisionZeroPoints, want: 0},
		{name: "custom points are rounded", action: models.TeacherDecisionCustomPoints, manualPoints: &custom, want: 1.23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, exercise, state := answeredState(t)
			req := decisionRequest(exercise, state, tt.action)
			req.ManualPoints = tt.manualPoints
			before := len(f.publisher.EventsOfType(events.UserExerciseStateUpdated))

			updated, err := f.manager.TeacherGrading().CreateDecision(f.ctx, req)
			require.NoError(t, err)

			require.NotNil(t, updated.ScoreGiven)
			assert.Equal(t, tt.want, *updated.ScoreGiven)
			assert.Equal(t, models.ReviewingStageReviewedAndLocked, updated.ReviewingStage)
			assert.Equal(t, updated.ScoreGiven, f.state(state.UserID, exercise).ScoreGiven)
			assert.Len(t, f.publisher.EventsOfType(events.UserExerciseStateUpdated), before+1)
		})
	}
}

func TestTeacherGradingService_CreateDecision_OverridesLockedScore(t *testing.T) {
	f, exercise, state := answeredState(t)

	_, err := f.manager.TeacherGrading().CreateDecision(f.ctx, decisionRequest(exercise, state, models.TeacherDecisionFullPoints))
	require.NoError(t, err)

	updated, err := f.manager.TeacherGrading().CreateDecision(f.ctx, decisionRequest(exercise, state, models.TeacherDecisionZeroPoints))
	require.NoError(t, err)
	assert.Equal(t, 0.0, *updated.ScoreGiven, "the latest decision wins even on a locked state")
}

func TestTeacherGradingService_CreateDecision_Rejections(t *testing.T) {
	tooMany := 4.0

	tests := []struct {
		name    string
		mutate  func(req *TeacherGradingDecisionRequest)
		wantErr error
	}{
		{
			name:    "custom points without points",
			mutate:  func(req *TeacherGradingDecisionRequest) { req.Action = models.TeacherDecisionCustomPoints },
			wantErr: ErrInvalidInput,
		},
		{
			name: "custom points above the maximum",
			mutate: func(req *TeacherGradingDecisionRequest) {
				req.Action = models.TeacherDecisionCustomPoints
				req.ManualPoints = &tooMany
			},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown action",
			mutate:  func(req *TeacherGradingDecisionRequest) { req.Action = "half_points" },
			wantErr: ErrInvalidInput,
		},
		{
			name:    "exercise does not match the state",
			mutate:  func(req *TeacherGradingDecisionRequest) { req.ExerciseID = uuid.New() },
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown state",
			mutate:  func(req *TeacherGradingDecisionRequest) { req.UserExerciseStateID = uuid.New() },
			wantErr: ErrNotFound,
		},
		{
			name:    "suggested points without peer review config",
			mutate:  func(req *TeacherGradingDecisionRequest) { req.Action = models.TeacherDecisionSuggestedPointsByPeers },
			wantErr: ErrPreconditionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, exercise, state := answeredState(t)
			req := decisionRequest(exercise, state, models.TeacherDecisionFullPoints)
			tt.mutate(req)

			_, err := f.manager.TeacherGrading().CreateDecision(f.ctx, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, 1.0, *f.state(state.UserID, exercise).ScoreGiven)
		})
	}
}

func TestTeacherGradingService_CreateDecision_SuggestedByPeers(t *testing.T) {
	f := newFixture(t)
	exercise := f.addExercise(nil, func(e *models.Exercise) {
		e.NeedsPeerReview = true
		e.ScoreMaximum = 4
	})
	cfg := f.addPeerReviewConfig(exercise, func(c *models.PeerReviewConfig) {
		c.PointsAreAllOrNothing = false
		c.ProcessingStrategy = models.ManualReviewEverything
	})
	question := f.addQuestion(cfg, models.PeerReviewQuestionScale, 1)
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")

	author := uuid.New()
	res := f.mustSubmit(author, exercise, slide, gradingResult(1, 1))
	authorState := f.state(author, exercise)

	// A received review of 4 out of 5 on the only question.
	answer := scaleAnswer(question, 4)
	require.NoError(t, f.repo.PeerReview().CreateSubmission(f.ctx, &models.PeerReviewSubmission{
		UserID:                    uuid.New(),
		ExerciseID:                exercise.ID,
		CourseInstanceID:          f.instanceID,
		PeerReviewConfigID:        cfg.ID,
		ExerciseSlideSubmissionID: res.ExerciseSlideSubmission.ID,
		QuestionSubmissions: []models.PeerReviewQuestionSubmission{
			{PeerReviewQuestionID: question.ID, NumberData: answer.NumberData},
		},
	}))

	updated, err := f.manager.TeacherGrading().CreateDecision(f.ctx, decisionRequest(exercise, authorState, models.TeacherDecisionSuggestedPointsByPeers))
	require.NoError(t, err)
	require.NotNil(t, updated.ScoreGiven)
	assert.Equal(t, 3.2, *updated.ScoreGiven)
	assert.Equal(t, models.ReviewingStageReviewedAndLocked, updated.ReviewingStage)
}
