package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

type submissionService struct {
	repo      repositories.Repository
	grader    GraderClient
	updater   *UserExerciseStateUpdater
	logger    *slog.Logger
	validator *validator.Validator
	events    eventEmitter
	now       func() time.Time
}

func NewSubmissionService(repo repositories.Repository, grader GraderClient, updater *UserExerciseStateUpdater, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) SubmissionService {
	return &submissionService{
		repo:      repo,
		grader:    grader,
		updater:   updater,
		logger:    logger,
		validator: validator,
		events:    eventEmitter{publisher: publisher, logger: logger},
		now:       time.Now,
	}
}

// gradedTask is one task submission of a slide submission together with its grading.
type gradedTask struct {
	task       *models.ExerciseTask
	submission *models.ExerciseTaskSubmission
	grading    *models.ExerciseTaskGrading
	slug       string
}

// ===== SLIDE SUBMISSION =====

func (s *submissionService) SubmitSlide(ctx context.Context, req *SubmitSlideRequest) (*models.StudentExerciseSlideSubmissionResult, error) {
	s.logger.Info("Submitting exercise slide",
		"exercise_id", req.ExerciseID,
		"user_id", req.UserID,
		"exercise_slide_id", req.Submission.ExerciseSlideID)

	result, err := s.submitSlide(ctx, req)
	switch {
	case err == nil:
		metrics.SlideSubmissions.WithLabelValues("accepted").Inc()
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPreconditionFailed), errors.Is(err, ErrTryLimitExceeded), errors.Is(err, ErrNotFound):
		metrics.SlideSubmissions.WithLabelValues("rejected").Inc()
	default:
		metrics.SlideSubmissions.WithLabelValues("error").Inc()
	}
	return result, err
}

func (s *submissionService) submitSlide(ctx context.Context, req *SubmitSlideRequest) (*models.StudentExerciseSlideSubmissionResult, error) {
	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exercise, err := s.repo.Exercise().GetByID(ctx, req.ExerciseID)
	if err != nil {
		return nil, notFound(err, "exercise")
	}
	if !exercise.HasValidContext() {
		return nil, fmt.Errorf("%w: exercise %s belongs to neither a course nor an exam", ErrInternal, exercise.ID)
	}

	stateCtx, err := s.submissionContext(ctx, exercise, req)
	if err != nil {
		return nil, err
	}

	slide, err := s.repo.Exercise().GetSlideByID(ctx, req.Submission.ExerciseSlideID)
	if err != nil {
		return nil, notFound(err, "exercise slide")
	}
	if slide.ExerciseID != exercise.ID {
		return nil, NewValidationError("submission.exercise_slide_id", "slide does not belong to the exercise", slide.ID)
	}

	tasks, err := s.repo.Exercise().GetTasksBySlideID(ctx, slide.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slide tasks: %w", err)
	}
	if errs := s.validator.GetBusinessValidator().ValidateSlideSubmissionTasks(&req.Submission, tasks); len(errs) > 0 {
		return nil, errs
	}

	now := s.now()
	if exercise.DeadlinePassed(now) {
		return nil, ErrDeadlinePassed
	}

	strategy := models.CanAddPointsButCannotRemovePoints
	if exercise.IsExamExercise() {
		strategy = models.CanAddPointsAndCanRemovePoints
	}

	var (
		response *models.StudentExerciseSlideSubmissionResult
		updated  *StateUpdateResult
	)
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		state, err := tx.UserExerciseState().GetOrCreate(ctx, req.UserID, exercise.ID, stateCtx)
		if err != nil {
			return fmt.Errorf("failed to get user exercise state: %w", err)
		}
		// Concurrent submissions for the same state serialize here.
		state, err = tx.UserExerciseState().GetByIDForUpdate(ctx, state.ID)
		if err != nil {
			return notFound(err, "user exercise state")
		}

		if !state.ReviewingStage.AcceptsAnswers() {
			return NewBusinessRuleError(ErrReviewAlreadyStarted, "reviewing_stage",
				"answers are not accepted once reviewing has started",
				map[string]interface{}{"reviewing_stage": state.ReviewingStage})
		}
		if state.SelectedExerciseSlideID != nil && *state.SelectedExerciseSlideID != slide.ID {
			return NewValidationError("submission.exercise_slide_id", "user is bound to another slide of the exercise", slide.ID)
		}

		if err := s.checkTryLimit(ctx, tx, exercise, req.UserID, slide.ID); err != nil {
			return err
		}

		if state.SelectedExerciseSlideID == nil {
			state.SelectedExerciseSlideID = &slide.ID
			if err := tx.UserExerciseState().Update(ctx, state); err != nil {
				return fmt.Errorf("failed to select exercise slide: %w", err)
			}
		}

		slideSubmission := &models.ExerciseSlideSubmission{
			ExerciseSlideID:          slide.ID,
			ExerciseID:               exercise.ID,
			UserID:                   req.UserID,
			CourseID:                 exercise.CourseID,
			CourseInstanceID:         stateCtx.CourseInstanceID,
			ExamID:                   stateCtx.ExamID,
			UserPointsUpdateStrategy: strategy,
		}
		if err := tx.Submission().CreateSlideSubmission(ctx, slideSubmission); err != nil {
			return fmt.Errorf("failed to create slide submission: %w", err)
		}

		slideState, err := tx.UserExerciseState().GetOrCreateSlideState(ctx, state.ID, slide.ID)
		if err != nil {
			return fmt.Errorf("failed to get user exercise slide state: %w", err)
		}

		graded, err := s.gradeTasks(ctx, tx, exercise, slideSubmission, slideState, tasks, req)
		if err != nil {
			return err
		}

		summary, err := updateSlideSummary(ctx, tx, slideState, strategy)
		if err != nil {
			return err
		}

		updated, err = s.updater.Update(ctx, tx, state.ID, &PreloadedStateData{Exercise: exercise})
		if err != nil {
			return fmt.Errorf("failed to update user exercise state: %w", err)
		}

		response = buildSubmissionResult(slideSubmission, graded, summary, updated.State, s.triesExhausted(ctx, tx, exercise, req.UserID, slide.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.stateUpdated(ctx, updated)

	s.logger.Info("Exercise slide submitted",
		"exercise_id", exercise.ID,
		"user_id", req.UserID,
		"exercise_slide_submission_id", response.ExerciseSlideSubmission.ID,
		"grading_progress", response.SlideGradingSummary.GradingProgress)

	return response, nil
}

// submissionContext resolves where the state lives and checks the context accepts answers.
func (s *submissionService) submissionContext(ctx context.Context, exercise *models.Exercise, req *SubmitSlideRequest) (models.ExerciseStateContext, error) {
	if exercise.IsExamExercise() {
		exam, err := s.repo.Course().GetExamByID(ctx, *exercise.ExamID)
		if err != nil {
			return models.ExerciseStateContext{}, notFound(err, "exam")
		}
		if !exam.AcceptsSubmissions(s.now()) {
			return models.ExerciseStateContext{}, fmt.Errorf("%w: exam %s does not accept submissions", ErrPreconditionFailed, exam.ID)
		}
		return models.ExerciseStateContext{ExamID: exercise.ExamID}, nil
	}

	if req.CourseInstanceID == nil {
		return models.ExerciseStateContext{}, NewValidationError("course_instance_id", "is required for course exercises", nil)
	}
	instance, err := s.repo.Course().GetCourseInstanceByID(ctx, *req.CourseInstanceID)
	if err != nil {
		return models.ExerciseStateContext{}, notFound(err, "course instance")
	}
	if instance.CourseID != *exercise.CourseID {
		return models.ExerciseStateContext{}, fmt.Errorf("%w: course instance %s is not an instance of the exercise course", ErrPreconditionFailed, instance.ID)
	}
	return models.ExerciseStateContext{CourseInstanceID: &instance.ID}, nil
}

func (s *submissionService) checkTryLimit(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, userID, slideID uuid.UUID) error {
	if !exercise.LimitNumberOfTries || exercise.MaxTriesPerSlide == nil {
		return nil
	}
	count, err := repo.Submission().CountSlideSubmissionsByUser(ctx, userID, slideID)
	if err != nil {
		return fmt.Errorf("failed to count slide submissions: %w", err)
	}
	if count >= int64(*exercise.MaxTriesPerSlide) {
		return NewBusinessRuleError(ErrTryLimitExceeded, "max_tries_per_slide",
			fmt.Sprintf("at most %d tries are allowed", *exercise.MaxTriesPerSlide),
			map[string]interface{}{"tries": count})
	}
	return nil
}

func (s *submissionService) triesExhausted(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, userID, slideID uuid.UUID) bool {
	return s.checkTryLimit(ctx, repo, exercise, userID, slideID) != nil
}

// gradeTasks stores every task submission and its grading. Grader failures leave the grading NotReady.
func (s *submissionService) gradeTasks(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, slideSubmission *models.ExerciseSlideSubmission,
	slideState *models.UserExerciseSlideState, tasks []*models.ExerciseTask, req *SubmitSlideRequest) ([]gradedTask, error) {
	byID := make(map[uuid.UUID]*models.ExerciseTask, len(tasks))
	slugs := make([]string, 0, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
		slugs = append(slugs, task.ExerciseType)
	}

	var descriptors map[string]*models.ExerciseServiceDescriptor
	if req.FixedGrading == nil {
		var err error
		descriptors, err = repo.ExerciseService().GetDescriptorsBySlugs(ctx, slugs)
		if err != nil {
			return nil, fmt.Errorf("failed to get exercise services: %w", err)
		}
	}

	graded := make([]gradedTask, 0, len(req.Submission.ExerciseTaskSubmissions))
	for _, answer := range req.Submission.ExerciseTaskSubmissions {
		task := byID[answer.ExerciseTaskID]
		taskSubmission := &models.ExerciseTaskSubmission{
			ExerciseSlideSubmissionID: slideSubmission.ID,
			ExerciseSlideID:           slideSubmission.ExerciseSlideID,
			ExerciseTaskID:            task.ID,
			DataJSON:                  datatypes.JSON(answer.DataJSON),
		}
		if err := repo.Submission().CreateTaskSubmission(ctx, taskSubmission); err != nil {
			return nil, fmt.Errorf("failed to create task submission: %w", err)
		}

		grading := newNotReadyGrading(exercise, taskSubmission, s.now())
		if err := repo.Grading().Create(ctx, grading); err != nil {
			return nil, fmt.Errorf("failed to create grading: %w", err)
		}

		result := req.FixedGrading
		if result == nil {
			result = s.callGrader(ctx, descriptors[task.ExerciseType], task, taskSubmission)
		}

		if err := recordTaskGrading(ctx, repo, exercise, grading, result, len(tasks), slideState.ID, s.now()); err != nil {
			return nil, err
		}
		graded = append(graded, gradedTask{task: task, submission: taskSubmission, grading: grading, slug: task.ExerciseType})
	}
	return graded, nil
}

// callGrader returns nil when the grader could not produce a result.
func (s *submissionService) callGrader(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, task *models.ExerciseTask, submission *models.ExerciseTaskSubmission) *models.ExerciseTaskGradingResult {
	if descriptor == nil {
		s.logger.Warn("No exercise service registered for task, leaving grading not ready",
			"exercise_task_id", task.ID,
			"exercise_type", task.ExerciseType)
		return nil
	}
	result, err := s.grader.Grade(ctx, descriptor, task, submission)
	if err != nil {
		s.logger.Warn("Grader unavailable, leaving grading not ready",
			"exercise_task_id", task.ID,
			"exercise_type", task.ExerciseType,
			"error", err)
		return nil
	}
	if err := s.validator.Validate(result); err != nil {
		s.logger.Warn("Grader returned an invalid result, leaving grading not ready",
			"exercise_task_id", task.ID,
			"error", err)
		return nil
	}
	return result
}

// ===== GRADING PROPAGATION =====

func (s *submissionService) PropagateGradingResult(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, grading *models.ExerciseTaskGrading,
	result *models.ExerciseTaskGradingResult, slideState *models.UserExerciseSlideState, strategy models.UserPointsUpdateStrategy) (*StateUpdateResult, error) {
	tasks, err := repo.Exercise().GetTasksBySlideID(ctx, slideState.ExerciseSlideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get slide tasks: %w", err)
	}
	if err := recordTaskGrading(ctx, repo, exercise, grading, result, len(tasks), slideState.ID, s.now()); err != nil {
		return nil, err
	}
	if _, err := updateSlideSummary(ctx, repo, slideState, strategy); err != nil {
		return nil, err
	}
	return s.updater.Update(ctx, repo, slideState.UserExerciseStateID, &PreloadedStateData{Exercise: exercise})
}

func newNotReadyGrading(exercise *models.Exercise, submission *models.ExerciseTaskSubmission, now time.Time) *models.ExerciseTaskGrading {
	started := now.UTC()
	return &models.ExerciseTaskGrading{
		ExerciseTaskSubmissionID: submission.ID,
		CourseID:                 exercise.CourseID,
		ExamID:                   exercise.ExamID,
		ExerciseID:               exercise.ID,
		ExerciseTaskID:           submission.ExerciseTaskID,
		GradingProgress:          models.GradingProgressNotReady,
		GradingStartedAt:         &started,
	}
}

// recordTaskGrading applies a grader result to the grading, links it to its task submission and
// refreshes the task state. A nil result keeps the grading NotReady.
func recordTaskGrading(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, grading *models.ExerciseTaskGrading,
	result *models.ExerciseTaskGradingResult, taskCount int, slideStateID uuid.UUID, now time.Time) error {
	if result != nil {
		applyGradingResult(grading, result, exercise.ScoreMaximum, taskCount, now)
		if err := repo.Grading().Update(ctx, grading); err != nil {
			return fmt.Errorf("failed to update grading: %w", err)
		}
	}

	if err := repo.Submission().SetTaskSubmissionGradingID(ctx, grading.ExerciseTaskSubmissionID, grading.ID); err != nil {
		return fmt.Errorf("failed to link grading to task submission: %w", err)
	}
	if _, err := repo.UserExerciseState().UpsertTaskStateWithGrading(ctx, slideStateID, grading); err != nil {
		return err
	}
	return nil
}

// applyGradingResult scales the grader score to the task's share of the exercise maximum.
func applyGradingResult(grading *models.ExerciseTaskGrading, result *models.ExerciseTaskGradingResult, scoreMaximum, taskCount int, now time.Time) {
	if taskCount < 1 {
		taskCount = 1
	}
	share := float64(scoreMaximum) / float64(taskCount)

	var coefficient float64
	if result.ScoreMaximum > 0 {
		coefficient = result.ScoreGiven / float64(result.ScoreMaximum)
	}
	scaled := RoundToTwoDecimals(clampScoreToShare(share*coefficient, share))

	unscaled := result.ScoreGiven
	unscaledMax := result.ScoreMaximum
	completed := now.UTC()

	grading.ScoreGiven = &scaled
	grading.UnscaledScoreGiven = &unscaled
	grading.UnscaledScoreMaximum = &unscaledMax
	grading.GradingProgress = result.GradingProgress
	grading.FeedbackText = result.FeedbackText
	grading.FeedbackJSON = datatypes.JSON(result.FeedbackJSON)
	if result.GradingProgress.IsComplete() {
		grading.GradingCompletedAt = &completed
	}
}

func clampScoreToShare(score, share float64) float64 {
	if score < 0 {
		return 0
	}
	if score > share {
		return share
	}
	return score
}

// updateSlideSummary aggregates the slide's task states and applies the points update strategy.
func updateSlideSummary(ctx context.Context, repo repositories.Repository, slideState *models.UserExerciseSlideState, strategy models.UserPointsUpdateStrategy) (models.UserExerciseSlideStateGradingSummary, error) {
	taskStates, err := repo.UserExerciseState().GetTaskStatesBySlideStateID(ctx, slideState.ID)
	if err != nil {
		return models.UserExerciseSlideStateGradingSummary{}, err
	}

	summary := summarizeTaskStates(taskStates)
	summary.ScoreGiven = FigureOutNewScoreGiven(slideState.ScoreGiven, summary.ScoreGiven, strategy)
	if summary.ScoreGiven != nil {
		summary.ScoreGiven = float64Ptr(RoundToTwoDecimals(*summary.ScoreGiven))
	}

	if err := repo.UserExerciseState().UpdateSlideState(ctx, slideState.ID, summary.ScoreGiven, summary.GradingProgress); err != nil {
		return summary, err
	}
	slideState.ScoreGiven = summary.ScoreGiven
	slideState.GradingProgress = summary.GradingProgress
	return summary, nil
}

// summarizeTaskStates takes the least advanced progress, and the score sum only when every task has a score.
func summarizeTaskStates(taskStates []*models.UserExerciseTaskState) models.UserExerciseSlideStateGradingSummary {
	progresses := make([]models.GradingProgress, 0, len(taskStates))
	var sum float64
	complete := len(taskStates) > 0
	for _, ts := range taskStates {
		progresses = append(progresses, ts.GradingProgress)
		if ts.ScoreGiven == nil {
			complete = false
			continue
		}
		sum += *ts.ScoreGiven
	}

	summary := models.UserExerciseSlideStateGradingSummary{GradingProgress: models.MinGradingProgress(progresses...)}
	if complete {
		summary.ScoreGiven = &sum
	}
	return summary
}

func buildSubmissionResult(slideSubmission *models.ExerciseSlideSubmission, graded []gradedTask, summary models.UserExerciseSlideStateGradingSummary,
	state *models.UserExerciseState, triesExhausted bool) *models.StudentExerciseSlideSubmissionResult {
	showModelSolution := triesExhausted || state.ReviewingStage == models.ReviewingStageReviewedAndLocked

	results := make([]models.StudentExerciseTaskSubmissionResult, 0, len(graded))
	for _, g := range graded {
		r := models.StudentExerciseTaskSubmissionResult{
			Submission:                      *g.submission,
			Grading:                         g.grading,
			ExerciseTaskExerciseServiceSlug: g.slug,
		}
		if showModelSolution {
			r.ModelSolutionSpec = g.task.ModelSolutionSpec
		}
		results = append(results, r)
	}

	return &models.StudentExerciseSlideSubmissionResult{
		ExerciseSlideSubmission:       *slideSubmission,
		ExerciseTaskSubmissionResults: results,
		SlideGradingSummary:           summary,
		UserExerciseState:             state,
	}
}
