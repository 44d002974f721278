package services

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

// PeerReviewInformation is loaded only for exercises that need peer review.
// Config is nil when no peer review config could be found for the exercise.
type PeerReviewInformation struct {
	Config                      *models.PeerReviewConfig
	Questions                   []*models.PeerReviewQuestion
	GivenPeerReviewSubmissions  []*models.PeerReviewSubmission
	ReceivedQuestionSubmissions []*models.PeerReviewQuestionSubmission
	QueueEntry                  *models.PeerReviewQueueEntry
}

// ExerciseStateUpdateBundle is every input of DeriveUserExerciseState.
type ExerciseStateUpdateBundle struct {
	Exercise               *models.Exercise
	CurrentState           *models.UserExerciseState
	TeacherGradingDecision *models.TeacherGradingDecision
	SlideGradingSummary    models.UserExerciseSlideStateGradingSummary
	PeerReviewInformation  *PeerReviewInformation
}

// peerReviewOpinion is what the peer reviews suggest the state should become.
type peerReviewOpinion struct {
	scoreGiven     *float64
	reviewingStage models.ReviewingStage
}

// DeriveUserExerciseState computes the next state from the bundle. It does no I/O and never fails:
// inconsistent inputs are logged and replaced with conservative defaults.
func DeriveUserExerciseState(bundle *ExerciseStateUpdateBundle, logger *slog.Logger) models.UserExerciseStateUpdate {
	if logger == nil {
		logger = slog.Default()
	}
	current := bundle.CurrentState
	log := logger.With("user_exercise_state_id", current.ID, "exercise_id", bundle.Exercise.ID)

	opinion := peerReviewOpinionFor(bundle, log)
	stage := deriveReviewingStage(bundle, opinion, log)
	score := deriveScoreGiven(bundle, stage, opinion)
	if score != nil {
		rounded := clampScore(RoundToTwoDecimals(*score), bundle.Exercise.ScoreMaximum)
		score = &rounded
	}

	update := models.UserExerciseStateUpdate{
		ScoreGiven:       score,
		ActivityProgress: deriveActivityProgress(bundle, stage),
		ReviewingStage:   stage,
		GradingProgress:  bundle.SlideGradingSummary.GradingProgress,
	}

	if current.ReviewingStage != update.ReviewingStage {
		log.Info("Reviewing stage changed", "from", current.ReviewingStage, "to", update.ReviewingStage)
	}
	if !floatPtrEqual(current.ScoreGiven, update.ScoreGiven) {
		log.Info("Score given changed", "from", floatPtrValue(current.ScoreGiven), "to", floatPtrValue(update.ScoreGiven))
	}

	return update
}

func deriveReviewingStage(bundle *ExerciseStateUpdateBundle, opinion *peerReviewOpinion, log *slog.Logger) models.ReviewingStage {
	if bundle.TeacherGradingDecision != nil {
		return models.ReviewingStageReviewedAndLocked
	}

	current := bundle.CurrentState.ReviewingStage
	if bundle.Exercise.NeedsPeerReview {
		if opinion != nil {
			return opinion.reviewingStage
		}
		return current
	}

	// Exercises without peer review only use NotStarted and ReviewedAndLocked.
	if current == models.ReviewingStageNotStarted || current == models.ReviewingStageReviewedAndLocked {
		return current
	}
	log.Warn("Reviewing stage is invalid for an exercise without peer review, resetting to not started",
		"reviewing_stage", current)
	return models.ReviewingStageNotStarted
}

func deriveScoreGiven(bundle *ExerciseStateUpdateBundle, newStage models.ReviewingStage, opinion *peerReviewOpinion) *float64 {
	if decision := bundle.TeacherGradingDecision; decision != nil {
		score := decision.ScoreGiven
		return &score
	}

	// A locked outcome is not changed by reviews arriving later.
	current := bundle.CurrentState
	if current.ReviewingStage == models.ReviewingStageReviewedAndLocked &&
		newStage == models.ReviewingStageReviewedAndLocked &&
		current.ScoreGiven != nil {
		score := *current.ScoreGiven
		return &score
	}

	if opinion != nil && bundle.Exercise.NeedsPeerReview {
		return opinion.scoreGiven
	}

	// The points update strategy was already applied to the slide summary.
	return bundle.SlideGradingSummary.ScoreGiven
}

func deriveActivityProgress(bundle *ExerciseStateUpdateBundle, newStage models.ReviewingStage) models.ActivityProgress {
	notSubmitted := bundle.SlideGradingSummary.GradingProgress == models.GradingProgressNotReady

	if !bundle.Exercise.NeedsPeerReview {
		if notSubmitted {
			return models.ActivityProgressInitialized
		}
		return models.ActivityProgressCompleted
	}

	switch newStage {
	case models.ReviewingStageNotStarted:
		if notSubmitted {
			return models.ActivityProgressInitialized
		}
		return models.ActivityProgressInProgress
	case models.ReviewingStagePeerReview, models.ReviewingStageSelfReview:
		return models.ActivityProgressInProgress
	default:
		return models.ActivityProgressCompleted
	}
}

func peerReviewOpinionFor(bundle *ExerciseStateUpdateBundle, log *slog.Logger) *peerReviewOpinion {
	exercise := bundle.Exercise
	if !exercise.NeedsPeerReview {
		return nil
	}

	info := bundle.PeerReviewInformation
	if info == nil || info.Config == nil {
		log.Warn("Exercise needs peer review but no peer review config was loaded")
		return nil
	}
	cfg := info.Config
	current := bundle.CurrentState.ReviewingStage

	givenEnough := len(info.GivenPeerReviewSubmissions) >= cfg.PeerReviewsToGive
	receivedEnough := info.QueueEntry != nil && info.QueueEntry.ReceivedEnoughPeerReviews

	if !givenEnough {
		return &peerReviewOpinion{reviewingStage: current}
	}

	if !receivedEnough {
		if current == models.ReviewingStageWaitingForManualGrading {
			return &peerReviewOpinion{reviewingStage: current}
		}
		return &peerReviewOpinion{reviewingStage: models.ReviewingStageWaitingForPeerReviews}
	}

	switch cfg.ProcessingStrategy {
	case models.AutomaticallyGradeByAverage:
		average := CalculateAverageReceivedPeerReviewScore(info.ReceivedQuestionSubmissions, log)
		return lockedPeerReviewOpinion(exercise, info, average, log)
	case models.AutomaticallyGradeOrManualReviewByAverage:
		average := CalculateAverageReceivedPeerReviewScore(info.ReceivedQuestionSubmissions, log)
		if average < cfg.AcceptingThreshold {
			return &peerReviewOpinion{reviewingStage: models.ReviewingStageWaitingForManualGrading}
		}
		return lockedPeerReviewOpinion(exercise, info, average, log)
	case models.ManualReviewEverything:
		return &peerReviewOpinion{reviewingStage: models.ReviewingStageWaitingForManualGrading}
	default:
		log.Warn("Unknown peer review processing strategy, sending to manual review",
			"processing_strategy", cfg.ProcessingStrategy)
		return &peerReviewOpinion{reviewingStage: models.ReviewingStageWaitingForManualGrading}
	}
}

func lockedPeerReviewOpinion(exercise *models.Exercise, info *PeerReviewInformation, average float64, log *slog.Logger) *peerReviewOpinion {
	cfg := info.Config
	var score float64
	switch {
	case !cfg.PointsAreAllOrNothing:
		score = CalculateWeightedPeerReviewScore(exercise.ScoreMaximum, info.ReceivedQuestionSubmissions, info.Questions, log)
	case average < cfg.AcceptingThreshold:
		score = 0
	default:
		score = float64(exercise.ScoreMaximum)
	}
	return &peerReviewOpinion{scoreGiven: &score, reviewingStage: models.ReviewingStageReviewedAndLocked}
}

// CalculateAverageReceivedPeerReviewScore averages every numeric answer, skipping deleted and textual ones.
func CalculateAverageReceivedPeerReviewScore(submissions []*models.PeerReviewQuestionSubmission, logger *slog.Logger) float64 {
	var sum float64
	var count int
	for _, s := range submissions {
		if s.DeletedAt.Valid || s.NumberData == nil {
			continue
		}
		sum += *s.NumberData
		count++
	}
	if count == 0 {
		if logger != nil {
			logger.Warn("No numeric peer review answers to average, defaulting to zero")
		}
		return 0
	}
	return sum / float64(count)
}

// CalculateWeightedPeerReviewScore scales the mean of the per-review weighted sums of scale answers
// (nominally 1..5) to the exercise maximum. Essay questions never contribute.
func CalculateWeightedPeerReviewScore(scoreMaximum int, submissions []*models.PeerReviewQuestionSubmission, questions []*models.PeerReviewQuestion, logger *slog.Logger) float64 {
	scale := make(map[uuid.UUID]float64, len(questions))
	for _, q := range questions {
		if q.QuestionType == models.PeerReviewQuestionScale {
			scale[q.ID] = q.Weight
		}
	}

	var order []uuid.UUID
	sums := make(map[uuid.UUID]float64)
	for _, s := range submissions {
		if s.DeletedAt.Valid {
			continue
		}
		weight, ok := scale[s.PeerReviewQuestionID]
		if !ok {
			continue
		}
		if _, seen := sums[s.PeerReviewSubmissionID]; !seen {
			order = append(order, s.PeerReviewSubmissionID)
		}
		var value float64
		if s.NumberData != nil {
			value = *s.NumberData
		}
		sums[s.PeerReviewSubmissionID] += weight * value
	}

	if len(order) == 0 {
		if logger != nil {
			logger.Warn("No scale answers in received peer reviews, weighted score is zero")
		}
		return 0
	}

	var total float64
	for _, id := range order {
		total += sums[id]
	}
	average := total / float64(len(order))
	return average / 5 * float64(scoreMaximum)
}

// FigureOutNewScoreGiven applies the points update strategy to a slide level score.
func FigureOutNewScoreGiven(current, next *float64, strategy models.UserPointsUpdateStrategy) *float64 {
	if current == nil {
		return next
	}
	if next == nil {
		return current
	}
	if strategy == models.CanAddPointsAndCanRemovePoints {
		return next
	}
	best := math.Max(*current, *next)
	return &best
}

func RoundToTwoDecimals(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampScore(score float64, scoreMaximum int) float64 {
	return math.Max(0, math.Min(score, float64(scoreMaximum)))
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func floatPtrValue(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func float64Ptr(v float64) *float64 {
	return &v
}
