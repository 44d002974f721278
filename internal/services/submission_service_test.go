package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/models"
)

func TestSubmissionService_SubmitSlide_GradedByService(t *testing.T) {
	f := newFixture(t)
	exercise := f.addExercise(nil, func(e *models.Exercise) { e.ScoreMaximum = 10 })
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")
	f.addService("quizzes", 1)
	f.grader.results["quizzes"] = gradingResult(7, 10)
	user := uuid.New()

	res, err := f.manager.Submission().SubmitSlide(f.ctx, f.slideRequest(user, exercise, slide))
	require.NoError(t, err)

	require.Len(t, res.ExerciseTaskSubmissionResults, 1)
	task := res.ExerciseTaskSubmissionResults[0]
	assert.Equal(t, "quizzes", task.ExerciseTaskExerciseServiceSlug)
	require.NotNil(t, task.Grading.ScoreGiven)
	assert.Equal(t, 7.0, *task.Grading.ScoreGiven)
	assert.Equal(t, models.GradingProgressFullyGraded, task.Grading.GradingProgress)
	assert.Nil(t, task.ModelSolutionSpec, "model solution stays hidden while tries remain")

	state := f.state(user, exercise)
	require.NotNil(t, state.ScoreGiven)
	assert.Equal(t, 7.0, *state.ScoreGiven)
	assert.Equal(t, models.ActivityProgressCompleted, state.ActivityProgress)
	assert.Equal(t, models.ReviewingStageNotStarted, state.ReviewingStage)
	assert.Equal(t, models.GradingProgressFullyGraded, state.GradingProgress)
	assert.Equal(t, slide.ID, *state.SelectedExerciseSlideID)

	assert.Len(t, f.publisher.EventsOfType(events.UserExerciseStateUpdated), 1)
	assert.Equal(t, 1, f.grader.callCount("quizzes"))
}

func TestSubmissionService_SubmitSlide_ScalesTaskScores(t *testing.T) {
	f := newFixture(t)
	exercise := f.addExercise(nil, func(e *models.Exercise) { e.ScoreMaximum = 4 })
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")
	f.addTask(slide, "programming")
	f.addService("quizzes", 1)
	f.addService("programming", 1)
	f.grader.results["quizzes"] = gradingResult(1, 1)
	f.grader.results["programming"] = gradingResult(5, 10)

	res, err := f.manager.Submission().SubmitSlide(f.ctx, f.slideRequest(uuid.New(), exercise, slide))
	require.NoError(t, err)

	require.NotNil(t, res.SlideGradingSummary.ScoreGiven)
	assert.Equal(t, 3.0, *res.SlideGradingSummary.ScoreGiven)
	assert.Equal(t, models.GradingProgressFullyGraded, res.SlideGradingSummary.GradingProgress)
}

func TestSubmissionService_SubmitSlide_GraderFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(f *fixture)
		calls     int
	}{
		{
			name: "grader unavailable",
			configure: func(f *fixture) {
				f.addService("quizzes", 1)
				f.grader.errs["quizzes"] = ErrGraderUnavailable
			},
			calls: 1,
		},
		{
			name:      "no exercise service registered",
			configure: func(f *fixture) {},
			calls:     0,
		},
		{
			name: "invalid grading result",
			configure: func(f *fixture) {
				f.addService("quizzes", 1)
				f.grader.results["quizzes"] = &models.ExerciseTaskGradingResult{GradingProgress: "graded-ish", ScoreMaximum: 1}
			},
			calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			exercise := f.addExercise(nil, nil)
			slide := f.addSlide(exercise)
			f.addTask(slide, "quizzes")
			tt.configure(f)
			user := uuid.New()

			res, err := f.manager.Submission().SubmitSlide(f.ctx, f.slideRequest(user, exercise, slide))
			require.NoError(t, err, "grader problems never fail the submission")

			assert.Equal(t, models.GradingProgressNotReady, res.ExerciseTaskSubmissionResults[0].Grading.GradingProgress)
			assert.Nil(t, res.ExerciseTaskSubmissionResults[0].Grading.ScoreGiven)

			state := f.state(user, exercise)
			assert.Equal(t, models.GradingProgressNotReady, state.GradingProgress)
			assert.Nil(t, state.ScoreGiven)
			assert.Equal(t, tt.calls, f.grader.callCount("quizzes"))

			taskSubmission := f.repo.m.taskSubs[0]
			require.NotNil(t, taskSubmission.ExerciseTaskGradingID, "grading is linked for a later regrading")
		})
	}
}

func TestSubmissionService_SubmitSlide_TryLimit(t *testing.T) {
	f := newFixture(t)
	exercise := f.addExercise(nil, func(e *models.Exercise) {
		e.LimitNumberOfTries = true
		e.MaxTriesPerSlide = new(int)
		*e.MaxTriesPerSlide = 1
	})
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")
	user := uuid.New()

	res := f.mustSubmit(user, exercise, slide, gradingResult(0, 1))
	assert.NotEmpty(t, res.ExerciseTaskSubmissionResults[0].ModelSolutionSpec, "model solution is shown once tries run out")

	_, err := f.submit(user, exercise, slide, gradingResult(1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTryLimitExceeded))

	var ruleErr *BusinessRuleError
	require.True(t, errors.As(err, &ruleErr))
	assert.Equal(t, "max_tries_per_slide", ruleErr.Rule)
}

func TestSubmissionService_SubmitSlide_PointsUpdateStrategy(t *testing.T) {
	t.Run("course exercises keep the best score", func(t *testing.T) {
		f := newFixture(t)
		exercise := f.addExercise(nil, nil)
		slide := f.addSlide(exercise)
		f.addTask(slide, "quizzes")
		user := uuid.New()

		f.mustSubmit(user, exercise, slide, gradingResult(1, 1))
		res := f.mustSubmit(user, exercise, slide, gradingResult(0, 1))

		assert.Equal(t, models.CanAddPointsButCannotRemovePoints, res.ExerciseSlideSubmission.UserPointsUpdateStrategy)
		assert.Equal(t, 1.0, *f.state(user, exercise).ScoreGiven)
	})

	t.Run("exam exercises take the latest score", func(t *testing.T) {
		f := newFixture(t)
		exercise := f.addExamExercise(f.addExam())
		slide := f.addSlide(exercise)
		f.addTask(slide, "quizzes")
		user := uuid.New()

		f.mustSubmit(user, exercise, slide, gradingResult(1, 1))
		res := f.mustSubmit(user, exercise, slide, gradingResult(0, 1))

		assert.Equal(t, models.CanAddPointsAndCanRemovePoints, res.ExerciseSlideSubmission.UserPointsUpdateStrategy)
		state := f.state(user, exercise)
		assert.Equal(t, 0.0, *state.ScoreGiven)
		assert.Nil(t, state.CourseInstanceID)
		assert.Equal(t, exercise.ExamID, state.ExamID)
	})
}

func TestSubmissionService_SubmitSlide_Rejections(t *testing.T) {
	f := newFixture(t)
	exercise := f.addExercise(nil, nil)
	slide := f.addSlide(exercise)
	f.addTask(slide, "quizzes")
	otherSlide := f.addSlide(exercise)
	f.addTask(otherSlide, "quizzes")
	user := uuid.New()
	f.mustSubmit(user, exercise, slide, gradingResult(1, 1))

	t.Run("another slide of the same exercise", func(t *testing.T) {
		_, err := f.submit(user, exercise, otherSlide, gradingResult(1, 1))
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("task from another slide", func(t *testing.T) {
		req := f.slideRequest(uuid.New(), exercise, slide)
		req.Submission.ExerciseTaskSubmissions[0].ExerciseTaskID = f.repo.m.tasks[1].ID
		_, err := f.manager.Submission().SubmitSlide(f.ctx, req)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("missing course instance", func(t *testing.T) {
		req := f.slideRequest(uuid.New(), exercise, slide)
		req.CourseInstanceID = nil
		_, err := f.manager.Submission().SubmitSlide(f.ctx, req)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("empty submission", func(t *testing.T) {
		req := f.slideRequest(uuid.New(), exercise, slide)
		req.Submission.ExerciseTaskSubmissions = nil
		_, err := f.manager.Submission().SubmitSlide(f.ctx, req)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("unknown exercise", func(t *testing.T) {
		req := f.slideRequest(uuid.New(), exercise, slide)
		req.ExerciseID = uuid.New()
		_, err := f.manager.Submission().SubmitSlide(f.ctx, req)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("deadline passed", func(t *testing.T) {
		late := f.addExercise(nil, func(e *models.Exercise) {
			deadline := f.now.Add(-time.Hour)
			e.Deadline = &deadline
		})
		lateSlide := f.addSlide(late)
		f.addTask(lateSlide, "quizzes")
		_, err := f.submit(uuid.New(), late, lateSlide, gradingResult(1, 1))
		assert.True(t, errors.Is(err, ErrDeadlinePassed))
		assert.True(t, errors.Is(err, ErrPreconditionFailed))
	})

	t.Run("closed exam", func(t *testing.T) {
		exam := f.addExam()
		ended := f.now.Add(-time.Minute)
		exam.EndsAt = &ended
		examExercise := f.addExamExercise(exam)
		examSlide := f.addSlide(examExercise)
		f.addTask(examSlide, "quizzes")
		_, err := f.submit(uuid.New(), examExercise, examSlide, gradingResult(1, 1))
		assert.True(t, errors.Is(err, ErrPreconditionFailed))
	})
}
