package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

type regradingService struct {
	repo        repositories.Repository
	grader      GraderClient
	submissions SubmissionService
	logger      *slog.Logger
	validator   *validator.Validator
	events      eventEmitter
	now         func() time.Time
}

func NewRegradingService(repo repositories.Repository, grader GraderClient, submissions SubmissionService, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) RegradingService {
	return &regradingService{
		repo:        repo,
		grader:      grader,
		submissions: submissions,
		logger:      logger,
		validator:   validator,
		events:      eventEmitter{publisher: publisher, logger: logger},
		now:         time.Now,
	}
}

// ===== CREATION AND STATUS =====

func (s *regradingService) CreateRegrading(ctx context.Context, req *CreateRegradingRequest) (*models.Regrading, error) {
	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var taskSubmissions []*models.ExerciseTaskSubmission
	if len(req.ExerciseTaskSubmissionIDs) > 0 {
		for _, id := range req.ExerciseTaskSubmissionIDs {
			ts, err := s.repo.Submission().GetTaskSubmissionByID(ctx, id)
			if err != nil {
				return nil, notFound(err, "task submission")
			}
			taskSubmissions = append(taskSubmissions, ts)
		}
	} else {
		var err error
		taskSubmissions, err = s.repo.Submission().GetTaskSubmissionsByExerciseID(ctx, *req.ExerciseID)
		if err != nil {
			return nil, err
		}
	}

	regrading := &models.Regrading{
		TotalGradingProgress:     models.GradingProgressNotReady,
		UserPointsUpdateStrategy: req.UserPointsUpdateStrategy,
		InitiatorUserID:          req.InitiatorUserID,
	}
	linked := 0
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Regrading().Create(ctx, regrading); err != nil {
			return err
		}
		for _, ts := range taskSubmissions {
			if ts.ExerciseTaskGradingID == nil {
				s.logger.Warn("Task submission was never graded, leaving it out of the regrading",
					"exercise_task_submission_id", ts.ID)
				continue
			}
			if err := tx.Regrading().AddSubmission(ctx, &models.ExerciseTaskRegradingSubmission{
				RegradingID:              regrading.ID,
				ExerciseTaskSubmissionID: ts.ID,
				GradingBeforeRegrading:   *ts.ExerciseTaskGradingID,
			}); err != nil {
				return err
			}
			linked++
		}
		if linked == 0 {
			return NewValidationError("exercise_task_submission_ids", "no graded task submissions to regrade", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Regrading created",
		"regrading_id", regrading.ID,
		"submissions", linked,
		"user_points_update_strategy", regrading.UserPointsUpdateStrategy)
	return regrading, nil
}

func (s *regradingService) GetRegradingInfo(ctx context.Context, id uuid.UUID) (*RegradingInfo, error) {
	regrading, err := s.repo.Regrading().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "regrading")
	}
	submissions, err := s.repo.Regrading().GetSubmissions(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &RegradingInfo{Regrading: regrading, Submissions: make([]RegradingSubmissionInfo, 0, len(submissions))}
	for _, sub := range submissions {
		item := RegradingSubmissionInfo{
			ExerciseTaskSubmissionID: sub.ExerciseTaskSubmissionID,
			GradingBeforeRegrading:   sub.GradingBeforeRegrading,
			GradingAfterRegrading:    sub.GradingAfterRegrading,
		}
		if sub.GradingAfterRegrading != nil {
			grading, err := s.repo.Grading().GetByID(ctx, *sub.GradingAfterRegrading)
			if err != nil && !repositories.IsNotFoundError(err) {
				return nil, err
			}
			if grading != nil {
				item.GradingProgress = &grading.GradingProgress
			}
		}
		info.Submissions = append(info.Submissions, item)
	}
	return info, nil
}

// ===== TICK =====

// regradingRun tracks one regrading during a tick.
type regradingRun struct {
	regrading    *models.Regrading
	incomplete   bool
	missingTypes map[string]bool
	scheduled    int
	// nonFinal counts grader results that were neither fully graded nor failed.
	nonFinal int
}

// regradingJob is one grading request to send during a tick.
type regradingJob struct {
	run        *regradingRun
	exercise   *models.Exercise
	task       *models.ExerciseTask
	submission *models.ExerciseTaskSubmission
	grading    *models.ExerciseTaskGrading
	descriptor *models.ExerciseServiceDescriptor
}

// tickScheduler carries lookups and the per-service in-flight counts shared by every regrading of a tick.
type tickScheduler struct {
	exercises   map[uuid.UUID]*models.Exercise
	descriptors map[string]*models.ExerciseServiceDescriptor
	inFlight    map[string]int
}

func (s *regradingService) RegradeAll(ctx context.Context) (bool, error) {
	regradings, err := s.repo.Regrading().GetUncompletedAndMarkAsStarted(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get uncompleted regradings: %w", err)
	}
	if len(regradings) == 0 {
		return false, nil
	}

	sched := &tickScheduler{
		exercises:   make(map[uuid.UUID]*models.Exercise),
		descriptors: make(map[string]*models.ExerciseServiceDescriptor),
		inFlight:    make(map[string]int),
	}

	runs := make([]*regradingRun, 0, len(regradings))
	var jobs []regradingJob
	for _, regrading := range regradings {
		run := &regradingRun{regrading: regrading, missingTypes: make(map[string]bool)}
		runs = append(runs, run)

		scheduled, err := s.schedule(ctx, sched, run)
		if err != nil {
			return true, fmt.Errorf("failed to schedule regrading %s: %w", regrading.ID, err)
		}
		jobs = append(jobs, scheduled...)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, job := range jobs {
		g.Go(func() error {
			nonFinal, err := s.runJob(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("Regrading a task submission failed, will retry",
					"regrading_id", job.run.regrading.ID,
					"exercise_task_submission_id", job.submission.ID,
					"error", err)
				job.run.incomplete = true
			}
			if nonFinal {
				job.run.nonFinal++
			}
			return nil
		})
	}
	_ = g.Wait()

	anyIncomplete := false
	for _, run := range runs {
		done, err := s.finish(ctx, run)
		if err != nil {
			return true, err
		}
		anyIncomplete = anyIncomplete || !done
	}
	return anyIncomplete, nil
}

// schedule creates the gradings of a regrading and returns the requests that fit this tick.
func (s *regradingService) schedule(ctx context.Context, sched *tickScheduler, run *regradingRun) ([]regradingJob, error) {
	submissions, err := s.repo.Regrading().GetSubmissions(ctx, run.regrading.ID)
	if err != nil {
		return nil, err
	}

	var jobs []regradingJob
	for _, sub := range submissions {
		if sub.GradingAfterRegrading != nil {
			previous, err := s.repo.Grading().GetByID(ctx, *sub.GradingAfterRegrading)
			if err != nil && !repositories.IsNotFoundError(err) {
				return nil, err
			}
			if previous != nil && previous.GradingProgress == models.GradingProgressFullyGraded {
				continue
			}
		}

		taskSubmission, err := s.repo.Submission().GetTaskSubmissionByID(ctx, sub.ExerciseTaskSubmissionID)
		if err != nil {
			return nil, notFound(err, "task submission")
		}
		task, err := s.repo.Exercise().GetTaskByID(ctx, taskSubmission.ExerciseTaskID)
		if err != nil {
			return nil, notFound(err, "exercise task")
		}

		descriptor, err := s.descriptor(ctx, sched, task.ExerciseType)
		if err != nil {
			return nil, err
		}
		if descriptor == nil {
			run.missingTypes[task.ExerciseType] = true
			run.incomplete = true
			continue
		}

		capacity := descriptor.Service.MaxReprocessingSubmissionsAtOnce
		if capacity < 0 {
			s.logger.Error("Invalid max_reprocessing_submissions_at_once, not limiting",
				"exercise_type", task.ExerciseType,
				"max_reprocessing_submissions_at_once", capacity)
			capacity = math.MaxInt
		}
		if sched.inFlight[task.ExerciseType] >= capacity {
			s.logger.Info("Exercise service is full, regrading continues next tick",
				"regrading_id", run.regrading.ID,
				"exercise_type", task.ExerciseType)
			metrics.RegradingGradings.WithLabelValues("exercise_services_full").Inc()
			run.incomplete = true
			continue
		}

		exercise, err := s.exercise(ctx, sched, task)
		if err != nil {
			return nil, err
		}

		grading := newNotReadyGrading(exercise, taskSubmission, s.now())
		grading.GradingProgress = models.GradingProgressPending
		if err := s.repo.Grading().Create(ctx, grading); err != nil {
			return nil, err
		}
		if err := s.repo.Regrading().SetGradingAfterRegrading(ctx, sub.ID, grading.ID); err != nil {
			return nil, err
		}

		sched.inFlight[task.ExerciseType]++
		run.scheduled++
		jobs = append(jobs, regradingJob{
			run:        run,
			exercise:   exercise,
			task:       task,
			submission: taskSubmission,
			grading:    grading,
			descriptor: descriptor,
		})
	}
	return jobs, nil
}

func (s *regradingService) descriptor(ctx context.Context, sched *tickScheduler, slug string) (*models.ExerciseServiceDescriptor, error) {
	if d, ok := sched.descriptors[slug]; ok {
		return d, nil
	}
	d, err := s.repo.ExerciseService().GetDescriptorBySlug(ctx, slug)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, err
		}
		d = nil
	}
	sched.descriptors[slug] = d
	return d, nil
}

// RefreshExerciseServices is called after a grader is redeployed so the next tick sees its new URL and capacity.
func (s *regradingService) RefreshExerciseServices(ctx context.Context) ([]*models.ExerciseService, error) {
	registered, err := s.repo.ExerciseService().List(ctx)
	if err != nil {
		return nil, err
	}
	// An empty slug drops removed services too.
	if err := s.repo.ExerciseService().InvalidateCache(ctx, ""); err != nil {
		return nil, err
	}
	s.logger.Info("Exercise service registry refreshed", "services", len(registered))
	return registered, nil
}

func (s *regradingService) exercise(ctx context.Context, sched *tickScheduler, task *models.ExerciseTask) (*models.Exercise, error) {
	slide, err := s.repo.Exercise().GetSlideByID(ctx, task.ExerciseSlideID)
	if err != nil {
		return nil, notFound(err, "exercise slide")
	}
	if e, ok := sched.exercises[slide.ExerciseID]; ok {
		return e, nil
	}
	e, err := s.repo.Exercise().GetByID(ctx, slide.ExerciseID)
	if err != nil {
		return nil, notFound(err, "exercise")
	}
	sched.exercises[e.ID] = e
	return e, nil
}

// runJob sends one grading request. A grader failure fails only this grading; storage errors are returned.
// A completed regrading only holds fully graded or failed gradings, so a result that is still pending is
// stored as failed and reported as nonFinal.
func (s *regradingService) runJob(ctx context.Context, job regradingJob) (nonFinal bool, err error) {
	result, err := s.grader.Grade(ctx, job.descriptor, job.task, job.submission)
	if err == nil {
		err = s.validator.Validate(result)
	}
	if err != nil {
		s.logger.Warn("Regrading request failed, marking grading as failed",
			"exercise_task_grading_id", job.grading.ID,
			"exercise_type", job.task.ExerciseType,
			"error", err)
		metrics.RegradingGradings.WithLabelValues("failed").Inc()
		return false, s.repo.Grading().SetGradingProgress(ctx, job.grading.ID, models.GradingProgressFailed)
	}
	if !result.GradingProgress.IsComplete() {
		s.logger.Warn("Grader returned a non-final result during regrading, marking grading as failed",
			"exercise_task_grading_id", job.grading.ID,
			"exercise_type", job.task.ExerciseType,
			"grading_progress", result.GradingProgress)
		metrics.RegradingGradings.WithLabelValues("non_final").Inc()
		return true, s.repo.Grading().SetGradingProgress(ctx, job.grading.ID, models.GradingProgressFailed)
	}

	var updated *StateUpdateResult
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		slideSubmission, err := tx.Submission().GetSlideSubmissionByID(ctx, job.submission.ExerciseSlideSubmissionID)
		if err != nil {
			return notFound(err, "slide submission")
		}
		state, err := tx.UserExerciseState().GetOrCreate(ctx, slideSubmission.UserID, job.exercise.ID, models.ExerciseStateContext{
			CourseInstanceID: slideSubmission.CourseInstanceID,
			ExamID:           slideSubmission.ExamID,
		})
		if err != nil {
			return err
		}
		// Lock before touching the slide state so a concurrent submission cannot interleave.
		if _, err := tx.UserExerciseState().GetByIDForUpdate(ctx, state.ID); err != nil {
			return notFound(err, "user exercise state")
		}
		slideState, err := tx.UserExerciseState().GetOrCreateSlideState(ctx, state.ID, slideSubmission.ExerciseSlideID)
		if err != nil {
			return err
		}
		updated, err = s.submissions.PropagateGradingResult(ctx, tx, job.exercise, job.grading, result, slideState, job.run.regrading.UserPointsUpdateStrategy)
		return err
	})
	if err != nil {
		return false, err
	}

	metrics.RegradingGradings.WithLabelValues("graded").Inc()
	s.events.stateUpdated(ctx, updated)
	return false, nil
}

// finish completes a regrading that nothing marked incomplete. It reports whether the regrading is done.
func (s *regradingService) finish(ctx context.Context, run *regradingRun) (bool, error) {
	id := run.regrading.ID

	if len(run.missingTypes) > 0 {
		types := make([]string, 0, len(run.missingTypes))
		for t := range run.missingTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		message := "Could not find exercise services for exercise types: " + strings.Join(types, ", ")
		if err := s.repo.Regrading().SetErrorMessage(ctx, id, message); err != nil {
			return false, err
		}
		if err := s.repo.Regrading().SetTotalGradingProgress(ctx, id, models.GradingProgressFailed); err != nil {
			return false, err
		}
		s.logger.Error("Regrading is missing exercise services", "regrading_id", id, "exercise_types", types)
		return false, nil
	}

	if run.incomplete {
		s.logger.Info("Regrading not finished this tick", "regrading_id", id, "scheduled", run.scheduled)
		return false, nil
	}

	if run.nonFinal > 0 {
		message := fmt.Sprintf("%d regraded submissions got a non-final grading result and were marked as failed", run.nonFinal)
		if err := s.repo.Regrading().SetErrorMessage(ctx, id, message); err != nil {
			return false, err
		}
	}

	if err := s.repo.Regrading().Complete(ctx, id); err != nil {
		return false, err
	}
	s.events.publish(ctx, events.RegradingCompleted, events.RegradingCompletedEvent{
		RegradingID:     id,
		SubmissionCount: run.scheduled,
	})
	s.logger.Info("Regrading completed", "regrading_id", id, "regraded", run.scheduled)
	return true, nil
}
