package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

const (
	MaxPeerReviewCandidates    = 10
	maxCandidateSelectionTries = 10

	// A reviewer may give at most this many times the required amount of reviews.
	peerReviewGiveLimitMultiplier = 15
	rateLimitStep                 = 30 * time.Second
	maxRateLimitCoefficient       = 10
)

type peerReviewService struct {
	repo           repositories.Repository
	updater        *UserExerciseStateUpdater
	logger         *slog.Logger
	validator      *validator.Validator
	events         eventEmitter
	reservationTTL time.Duration
	now            func() time.Time
	shuffle        func(n int, swap func(i, j int))
}

func NewPeerReviewService(repo repositories.Repository, updater *UserExerciseStateUpdater, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, reservationTTL time.Duration) PeerReviewService {
	return &peerReviewService{
		repo:           repo,
		updater:        updater,
		logger:         logger,
		validator:      validator,
		events:         eventEmitter{publisher: publisher, logger: logger},
		reservationTTL: reservationTTL,
		now:            time.Now,
		shuffle:        rand.Shuffle,
	}
}

// ===== STARTING A REVIEW =====

// StartPeerOrSelfReview only moves the stage. The deriver takes over once the first review is submitted.
func (s *peerReviewService) StartPeerOrSelfReview(ctx context.Context, stateID uuid.UUID) (*models.UserExerciseState, error) {
	var started *models.UserExerciseState
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		state, err := tx.UserExerciseState().GetByIDForUpdate(ctx, stateID)
		if err != nil {
			return notFound(err, "user exercise state")
		}
		exercise, err := tx.Exercise().GetByID(ctx, state.ExerciseID)
		if err != nil {
			return notFound(err, "exercise")
		}

		if state.ReviewingStage != models.ReviewingStageNotStarted {
			return NewBusinessRuleError(ErrReviewAlreadyStarted, "reviewing_stage",
				"reviewing can only be started once",
				map[string]interface{}{"reviewing_stage": state.ReviewingStage})
		}
		if state.SelectedExerciseSlideID == nil {
			return fmt.Errorf("%w: an answer must be submitted before reviewing starts", ErrPreconditionFailed)
		}

		switch {
		case exercise.NeedsPeerReview:
			state.ReviewingStage = models.ReviewingStagePeerReview
		case exercise.NeedsSelfReview:
			state.ReviewingStage = models.ReviewingStageSelfReview
		default:
			return fmt.Errorf("%w: exercise %s does not use peer or self review", ErrPreconditionFailed, exercise.ID)
		}
		state.ActivityProgress = models.ActivityProgressInProgress
		if err := tx.UserExerciseState().Update(ctx, state); err != nil {
			return fmt.Errorf("failed to start reviewing: %w", err)
		}
		started = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.stateUpdated(ctx, &StateUpdateResult{State: started, Changed: true})

	s.logger.Info("Reviewing started",
		"user_exercise_state_id", stateID,
		"reviewing_stage", started.ReviewingStage)
	return started, nil
}

// ===== CANDIDATE SELECTION =====

// candidate is a submission offered for review; entry is set when it came from the queue.
type candidate struct {
	submissionID uuid.UUID
	entry        *models.PeerReviewQueueEntry
}

func (s *peerReviewService) SelectAnswerToReview(ctx context.Context, exerciseID, reviewerStateID uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	state, err := s.repo.UserExerciseState().GetByID(ctx, reviewerStateID)
	if err != nil {
		return nil, notFound(err, "user exercise state")
	}
	if state.ExerciseID != exerciseID {
		return nil, NewValidationError("user_exercise_state_id", "state belongs to another exercise", reviewerStateID)
	}
	if state.CourseInstanceID == nil {
		return nil, fmt.Errorf("%w: peer review needs a course instance", ErrPreconditionFailed)
	}
	reviewerID := state.UserID
	now := s.now()

	// A reserved answer stays the same while the reviewer reloads the page.
	reservation, err := s.repo.PeerReviewQueue().GetReservation(ctx, exerciseID, reviewerID, now.Add(-s.reservationTTL))
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get peer review reservation: %w", err)
	}
	if reservation != nil {
		submission, err := s.repo.Submission().GetSlideSubmissionByID(ctx, reservation.ExerciseSlideSubmissionID)
		if err == nil {
			return submission, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get reserved submission: %w", err)
		}
	}

	excluded, err := s.exclusions(ctx, reviewerID, exerciseID)
	if err != nil {
		return nil, err
	}

	var fallback *models.ExerciseSlideSubmission
	for try := 0; try < maxCandidateSelectionTries; try++ {
		c, err := s.nextCandidate(ctx, exerciseID, reviewerID, excluded)
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}

		submission, valid, err := s.validateCandidate(ctx, c)
		if err != nil {
			return nil, err
		}
		if valid {
			if err := s.repo.PeerReviewQueue().SaveReservation(ctx, &models.OfferedAnswerToPeerReview{
				ExerciseID:                exerciseID,
				ReviewerUserID:            reviewerID,
				ExerciseSlideSubmissionID: submission.ID,
				CourseInstanceID:          *submission.CourseInstanceID,
			}); err != nil {
				return nil, err
			}
			return submission, nil
		}

		if submission == nil && c.entry != nil {
			// The queue still points at a deleted submission.
			if err := s.repo.PeerReviewQueue().DeleteBySlideSubmissionID(ctx, c.submissionID); err != nil {
				s.logger.Warn("Failed to drop stale peer review queue entry",
					"exercise_slide_submission_id", c.submissionID,
					"error", err)
			}
		}
		s.logger.Warn("Peer review candidate failed validation, trying another one",
			"exercise_id", exerciseID,
			"exercise_slide_submission_id", c.submissionID,
			"try", try+1)
		if submission != nil {
			fallback = submission
		}
		excluded = append(excluded, c.submissionID)
	}

	return fallback, nil
}

func (s *peerReviewService) exclusions(ctx context.Context, reviewerID, exerciseID uuid.UUID) ([]uuid.UUID, error) {
	reviewed, err := s.repo.PeerReview().GetReviewedSubmissionIDs(ctx, reviewerID, exerciseID)
	if err != nil {
		return nil, err
	}
	flagged, err := s.repo.PeerReview().GetFlaggedSubmissionIDs(ctx, reviewerID, exerciseID)
	if err != nil {
		return nil, err
	}
	return append(reviewed, flagged...), nil
}

// nextCandidate prefers queue entries still needing reviews, then any queue entry, then any submission.
func (s *peerReviewService) nextCandidate(ctx context.Context, exerciseID, reviewerID uuid.UUID, excluded []uuid.UUID) (*candidate, error) {
	for _, onlyNeeding := range []bool{true, false} {
		entries, err := s.repo.PeerReviewQueue().GetCandidates(ctx, repositories.PeerReviewCandidateFilter{
			ExerciseID:            exerciseID,
			ExcludedUserID:        reviewerID,
			ExcludedSubmissionIDs: excluded,
			OnlyNeedingReviews:    onlyNeeding,
			Limit:                 MaxPeerReviewCandidates,
		})
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			s.shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
			return &candidate{submissionID: entries[0].ReceivingPeerReviewsExerciseSlideSubmissionID, entry: entries[0]}, nil
		}
	}

	submission, err := s.repo.Submission().GetRandomSlideSubmissionForPeerReview(ctx, exerciseID, reviewerID, excluded)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get random submission: %w", err)
	}
	return &candidate{submissionID: submission.ID}, nil
}

// validateCandidate returns the submission when it is still alive, and whether it may be reviewed.
func (s *peerReviewService) validateCandidate(ctx context.Context, c *candidate) (*models.ExerciseSlideSubmission, bool, error) {
	submission, err := s.repo.Submission().GetSlideSubmissionByID(ctx, c.submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get candidate submission: %w", err)
	}
	if !submission.HasCourseContext() {
		return submission, false, nil
	}
	if c.entry != nil && (c.entry.DeletedAt.Valid || c.entry.RemovedFromQueueForUnusualReason) {
		return submission, false, nil
	}
	return submission, true, nil
}

// ===== REVIEW DATA =====

func (s *peerReviewService) GetSelfReviewAnswer(ctx context.Context, stateID uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	state, err := s.repo.UserExerciseState().GetByID(ctx, stateID)
	if err != nil {
		return nil, notFound(err, "user exercise state")
	}
	exercise, err := s.repo.Exercise().GetByID(ctx, state.ExerciseID)
	if err != nil {
		return nil, notFound(err, "exercise")
	}
	if !exercise.NeedsSelfReview || state.ReviewingStage != models.ReviewingStageSelfReview {
		return nil, fmt.Errorf("%w: self review is not open for this answer", ErrPreconditionFailed)
	}

	submission, err := s.repo.Submission().GetLatestSlideSubmission(ctx, state.UserID, exercise.ID)
	if err != nil {
		return nil, notFound(err, "latest slide submission")
	}
	if state.SelectedExerciseSlideID != nil && submission.ExerciseSlideID != *state.SelectedExerciseSlideID {
		return nil, fmt.Errorf("%w: latest submission is not for the selected slide", ErrInternal)
	}
	return submission, nil
}

func (s *peerReviewService) GetPeerReviewData(ctx context.Context, exerciseID, reviewerStateID uuid.UUID) (*PeerReviewData, error) {
	exercise, err := s.repo.Exercise().GetByID(ctx, exerciseID)
	if err != nil {
		return nil, notFound(err, "exercise")
	}
	state, err := s.repo.UserExerciseState().GetByID(ctx, reviewerStateID)
	if err != nil {
		return nil, notFound(err, "user exercise state")
	}

	cfg, err := s.repo.PeerReview().GetConfigForExercise(ctx, exercise)
	if err != nil {
		return nil, notFound(err, "peer review config")
	}
	questions, err := s.repo.PeerReview().GetQuestionsByConfigID(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	answer, err := s.SelectAnswerToReview(ctx, exerciseID, reviewerStateID)
	if err != nil {
		return nil, err
	}

	data := &PeerReviewData{
		AnswerToReview: answer,
		Config:         cfg,
		Questions:      questions,
	}
	if answer != nil {
		if data.Tasks, err = s.repo.Exercise().GetTasksBySlideID(ctx, answer.ExerciseSlideID); err != nil {
			return nil, err
		}
	}
	if data.NumPeerReviewsGiven, err = s.repo.PeerReview().CountGivenByUser(ctx, state.UserID, exerciseID, *state.CourseInstanceID); err != nil {
		return nil, err
	}
	return data, nil
}

// ===== SUBMITTING A REVIEW =====

func (s *peerReviewService) SubmitPeerReview(ctx context.Context, req *SubmitPeerReviewRequest) (*models.UserExerciseState, error) {
	state, isSelfReview, err := s.submitPeerReview(ctx, req)
	kind := "peer"
	if isSelfReview {
		kind = "self"
	}
	switch {
	case err == nil:
		metrics.PeerReviewSubmissions.WithLabelValues(kind, "accepted").Inc()
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTooMany):
		metrics.PeerReviewSubmissions.WithLabelValues(kind, "rate_limited").Inc()
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPreconditionFailed), errors.Is(err, ErrNotFound):
		metrics.PeerReviewSubmissions.WithLabelValues(kind, "rejected").Inc()
	default:
		metrics.PeerReviewSubmissions.WithLabelValues(kind, "error").Inc()
	}
	return state, err
}

func (s *peerReviewService) submitPeerReview(ctx context.Context, req *SubmitPeerReviewRequest) (*models.UserExerciseState, bool, error) {
	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, false, err
	}

	exercise, err := s.repo.Exercise().GetByID(ctx, req.ExerciseID)
	if err != nil {
		return nil, false, notFound(err, "exercise")
	}
	reviewed, err := s.repo.Submission().GetSlideSubmissionByID(ctx, req.ExerciseSlideSubmissionID)
	if err != nil {
		return nil, false, notFound(err, "reviewed slide submission")
	}
	if reviewed.ExerciseID != exercise.ID || !reviewed.HasCourseContext() {
		return nil, false, NewValidationError("exercise_slide_submission_id", "submission cannot be reviewed for this exercise", reviewed.ID)
	}
	isSelfReview := reviewed.UserID == req.ReviewerUserID

	cfg, err := s.repo.PeerReview().GetConfigForExercise(ctx, exercise)
	if err != nil {
		return nil, isSelfReview, notFound(err, "peer review config")
	}
	questions, err := s.repo.PeerReview().GetQuestionsByConfigID(ctx, cfg.ID)
	if err != nil {
		return nil, isSelfReview, err
	}
	answers, errs := s.validator.GetBusinessValidator().ValidatePeerReviewAnswers(req.Answers, questions)
	if len(errs) > 0 {
		return nil, isSelfReview, errs
	}

	var (
		submission    *models.PeerReviewSubmission
		giverUpdate   *StateUpdateResult
		receiverState *StateUpdateResult
	)
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		giver, err := tx.UserExerciseState().Get(ctx, req.ReviewerUserID, exercise.ID, models.ExerciseStateContext{CourseInstanceID: &req.CourseInstanceID})
		if err != nil {
			return notFound(err, "reviewer exercise state")
		}
		giver, err = tx.UserExerciseState().GetByIDForUpdate(ctx, giver.ID)
		if err != nil {
			return notFound(err, "reviewer exercise state")
		}

		if err := checkReviewAllowed(exercise, giver, isSelfReview); err != nil {
			return err
		}

		var given int64
		if !isSelfReview {
			if given, err = s.checkRateLimit(ctx, tx, req, cfg); err != nil {
				return err
			}
		}

		submission = newPeerReviewSubmission(req, cfg, isSelfReview, answers)
		if err := tx.PeerReview().CreateSubmission(ctx, submission); err != nil {
			return err
		}

		if !isSelfReview && given >= int64(cfg.PeerReviewsToGive) {
			if err := s.enqueueGiver(ctx, tx, req, cfg, given); err != nil {
				return err
			}
		}

		giverUpdate, err = s.updater.Update(ctx, tx, giver.ID, &PreloadedStateData{Exercise: exercise})
		if err != nil {
			return fmt.Errorf("failed to update reviewer state: %w", err)
		}

		if !isSelfReview {
			if receiverState, err = s.propagateToReceiver(ctx, tx, exercise, cfg, reviewed, req.ReviewerUserID); err != nil {
				return err
			}
		}

		return tx.PeerReviewQueue().DeleteReservation(ctx, exercise.ID, req.ReviewerUserID)
	})
	if err != nil {
		return nil, isSelfReview, err
	}

	s.events.publish(ctx, events.PeerReviewSubmitted, events.PeerReviewSubmittedEvent{
		PeerReviewSubmissionID:    submission.ID,
		ReviewerUserID:            req.ReviewerUserID,
		ExerciseID:                exercise.ID,
		ExerciseSlideSubmissionID: reviewed.ID,
		IsSelfReview:              isSelfReview,
	})
	s.events.stateUpdated(ctx, giverUpdate)
	s.events.stateUpdated(ctx, receiverState)

	s.logger.Info("Peer review submitted",
		"peer_review_submission_id", submission.ID,
		"exercise_id", exercise.ID,
		"reviewer_user_id", req.ReviewerUserID,
		"is_self_review", isSelfReview)

	return giverUpdate.State, isSelfReview, nil
}

func checkReviewAllowed(exercise *models.Exercise, giver *models.UserExerciseState, isSelfReview bool) error {
	if isSelfReview {
		if !exercise.NeedsSelfReview {
			return fmt.Errorf("%w: exercise does not use self review", ErrPreconditionFailed)
		}
		if giver.ReviewingStage != models.ReviewingStageSelfReview {
			return NewBusinessRuleError(ErrPreconditionFailed, "reviewing_stage",
				"self review is only accepted in the self review stage",
				map[string]interface{}{"reviewing_stage": giver.ReviewingStage})
		}
		return nil
	}

	if !exercise.NeedsPeerReview {
		return fmt.Errorf("%w: exercise does not use peer review", ErrPreconditionFailed)
	}
	if giver.ReviewingStage == models.ReviewingStageNotStarted {
		return NewBusinessRuleError(ErrPreconditionFailed, "reviewing_stage",
			"peer review has not been started",
			map[string]interface{}{"reviewing_stage": giver.ReviewingStage})
	}
	return nil
}

// checkRateLimit returns the number of peer reviews given including this one.
func (s *peerReviewService) checkRateLimit(ctx context.Context, repo repositories.Repository, req *SubmitPeerReviewRequest, cfg *models.PeerReviewConfig) (int64, error) {
	count, err := repo.PeerReview().CountGivenByUser(ctx, req.ReviewerUserID, req.ExerciseID, req.CourseInstanceID)
	if err != nil {
		return 0, err
	}
	given := count + 1

	last, err := repo.PeerReview().GetLastGivenAt(ctx, req.ReviewerUserID, req.ExerciseID)
	if err != nil {
		return 0, err
	}
	if err := CheckPeerReviewRateLimit(given, cfg.PeerReviewsToGive, last, s.now()); err != nil {
		s.logger.Warn("Peer review rejected by rate limit",
			"reviewer_user_id", req.ReviewerUserID,
			"exercise_id", req.ExerciseID,
			"given", given,
			"error", err)
		return 0, err
	}
	return given, nil
}

// CheckPeerReviewRateLimit rejects reviewers who give far more reviews than required, or who give
// them suspiciously fast. given counts the review being submitted.
func CheckPeerReviewRateLimit(given int64, toGive int, lastGivenAt *time.Time, now time.Time) error {
	required := int64(max(toGive, 1))
	if given > required*peerReviewGiveLimitMultiplier {
		return NewBusinessRuleError(ErrTooMany, "peer_reviews_given",
			"too many peer reviews given for this exercise",
			map[string]interface{}{"given": given})
	}

	suspicious := max(required*2, 4)
	if given <= suspicious || lastGivenAt == nil {
		return nil
	}
	coefficient := min(max(given-suspicious, 1), maxRateLimitCoefficient)
	wait := time.Duration(coefficient) * rateLimitStep
	if now.Sub(*lastGivenAt) < wait {
		return NewBusinessRuleError(ErrRateLimited, "peer_review_rate",
			"peer reviews are being given too fast",
			map[string]interface{}{"retry_after_seconds": int((wait - now.Sub(*lastGivenAt)).Seconds())})
	}
	return nil
}

func newPeerReviewSubmission(req *SubmitPeerReviewRequest, cfg *models.PeerReviewConfig, isSelfReview bool, answers []models.PeerReviewAnswer) *models.PeerReviewSubmission {
	submission := &models.PeerReviewSubmission{
		Base:                      models.Base{ID: uuid.New()},
		UserID:                    req.ReviewerUserID,
		ExerciseID:                req.ExerciseID,
		CourseInstanceID:          req.CourseInstanceID,
		PeerReviewConfigID:        cfg.ID,
		ExerciseSlideSubmissionID: req.ExerciseSlideSubmissionID,
		IsSelfReview:              isSelfReview,
	}
	for _, a := range answers {
		submission.QuestionSubmissions = append(submission.QuestionSubmissions, models.PeerReviewQuestionSubmission{
			PeerReviewQuestionID:   a.PeerReviewQuestionID,
			PeerReviewSubmissionID: submission.ID,
			TextData:               a.TextData,
			NumberData:             a.NumberData,
		})
	}
	return submission
}

// enqueueGiver puts the reviewer's latest answer in the queue once they have given enough reviews.
func (s *peerReviewService) enqueueGiver(ctx context.Context, repo repositories.Repository, req *SubmitPeerReviewRequest, cfg *models.PeerReviewConfig, given int64) error {
	latest, err := repo.Submission().GetLatestSlideSubmission(ctx, req.ReviewerUserID, req.ExerciseID)
	if err != nil {
		return notFound(err, "reviewer latest slide submission")
	}
	received, err := repo.PeerReview().CountReceivedBySlideSubmissionID(ctx, latest.ID)
	if err != nil {
		return err
	}
	_, err = repo.PeerReviewQueue().Upsert(ctx, &models.PeerReviewQueueEntry{
		UserID:           req.ReviewerUserID,
		ExerciseID:       req.ExerciseID,
		CourseInstanceID: req.CourseInstanceID,
		ReceivingPeerReviewsExerciseSlideSubmissionID: latest.ID,
		ReceivedEnoughPeerReviews:                     received >= int64(cfg.PeerReviewsToReceive),
		PeerReviewPriority:                            int(given),
	})
	return err
}

// propagateToReceiver marks the reviewed answer as having received enough reviews and re-derives its owner.
func (s *peerReviewService) propagateToReceiver(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, cfg *models.PeerReviewConfig,
	reviewed *models.ExerciseSlideSubmission, reviewerID uuid.UUID) (*StateUpdateResult, error) {
	entry, err := repo.PeerReviewQueue().GetBySlideSubmissionID(ctx, reviewed.ID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if entry.UserID == reviewerID || entry.DeletedAt.Valid {
		return nil, nil
	}
	return s.refreshQueueEntry(ctx, repo, exercise, cfg, entry)
}

// refreshQueueEntry sets the received flag when enough reviews arrived. The flag is never cleared.
func (s *peerReviewService) refreshQueueEntry(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, cfg *models.PeerReviewConfig,
	entry *models.PeerReviewQueueEntry) (*StateUpdateResult, error) {
	received, err := repo.PeerReview().CountReceivedBySlideSubmissionID(ctx, entry.ReceivingPeerReviewsExerciseSlideSubmissionID)
	if err != nil {
		return nil, err
	}
	if received < int64(cfg.PeerReviewsToReceive) {
		return nil, nil
	}
	if !entry.ReceivedEnoughPeerReviews {
		if err := repo.PeerReviewQueue().MarkReceivedEnough(ctx, entry.ID); err != nil {
			return nil, err
		}
	}

	state, err := repo.UserExerciseState().Get(ctx, entry.UserID, exercise.ID, models.ExerciseStateContext{CourseInstanceID: &entry.CourseInstanceID})
	if err != nil {
		return nil, notFound(err, "reviewee exercise state")
	}
	result, err := s.updater.Update(ctx, repo, state.ID, &PreloadedStateData{Exercise: exercise})
	if err != nil {
		return nil, fmt.Errorf("failed to update reviewee state: %w", err)
	}
	return result, nil
}

// ===== BATCH =====

func (s *peerReviewService) UpdatePeerReviewQueueReviewsReceived(ctx context.Context, courseID uuid.UUID) (int, error) {
	exercises, err := s.repo.Exercise().GetByCourseID(ctx, courseID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, exercise := range exercises {
		if !exercise.NeedsPeerReview {
			continue
		}
		cfg, err := s.repo.PeerReview().GetConfigForExercise(ctx, exercise)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				s.logger.Warn("Peer reviewed exercise has no config, skipping", "exercise_id", exercise.ID)
				continue
			}
			return updated, err
		}

		entries, err := s.repo.PeerReviewQueue().GetAllNeedingReviews(ctx, exercise.ID)
		if err != nil {
			return updated, err
		}
		for _, entry := range entries {
			var result *StateUpdateResult
			err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
				var err error
				result, err = s.refreshQueueEntry(ctx, tx, exercise, cfg, entry)
				return err
			})
			if err != nil {
				return updated, fmt.Errorf("failed to refresh queue entry %s: %w", entry.ID, err)
			}
			if result != nil {
				updated++
				s.events.stateUpdated(ctx, result)
			}
		}
	}

	s.logger.Info("Peer review queue refreshed", "course_id", courseID, "entries_updated", updated)
	return updated, nil
}
