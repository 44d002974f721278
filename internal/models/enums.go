package models

// GradingProgress is totally ordered: Failed < NotReady < PendingManual < Pending < FullyGraded.
type GradingProgress string

const (
	GradingProgressFailed        GradingProgress = "failed"
	GradingProgressNotReady      GradingProgress = "not_ready"
	GradingProgressPendingManual GradingProgress = "pending_manual"
	GradingProgressPending       GradingProgress = "pending"
	GradingProgressFullyGraded   GradingProgress = "fully_graded"
)

func (g GradingProgress) rank() int {
	switch g {
	case GradingProgressFailed:
		return 0
	case GradingProgressNotReady:
		return 1
	case GradingProgressPendingManual:
		return 2
	case GradingProgressPending:
		return 3
	case GradingProgressFullyGraded:
		return 4
	default:
		return -1
	}
}

// Less reports whether g comes before other in the grading order.
func (g GradingProgress) Less(other GradingProgress) bool {
	return g.rank() < other.rank()
}

// IsComplete is true for terminal grading states.
func (g GradingProgress) IsComplete() bool {
	return g == GradingProgressFullyGraded || g == GradingProgressFailed
}

func (g GradingProgress) Valid() bool {
	return g.rank() >= 0
}

// MinGradingProgress returns the least advanced progress, or NotReady for an empty list.
func MinGradingProgress(progresses ...GradingProgress) GradingProgress {
	if len(progresses) == 0 {
		return GradingProgressNotReady
	}
	least := progresses[0]
	for _, p := range progresses[1:] {
		if p.Less(least) {
			least = p
		}
	}
	return least
}

type ActivityProgress string

const (
	ActivityProgressInitialized ActivityProgress = "initialized"
	ActivityProgressStarted     ActivityProgress = "started"
	ActivityProgressInProgress  ActivityProgress = "in_progress"
	ActivityProgressSubmitted   ActivityProgress = "submitted"
	ActivityProgressCompleted   ActivityProgress = "completed"
)

// ReviewingStage is the position of a user exercise state in the review workflow.
// Transitions are owned by the state deriver and the peer review engine.
type ReviewingStage string

const (
	ReviewingStageNotStarted              ReviewingStage = "not_started"
	ReviewingStagePeerReview              ReviewingStage = "peer_review"
	ReviewingStageSelfReview              ReviewingStage = "self_review"
	ReviewingStageWaitingForPeerReviews   ReviewingStage = "waiting_for_peer_reviews"
	ReviewingStageWaitingForManualGrading ReviewingStage = "waiting_for_manual_grading"
	ReviewingStageReviewedAndLocked       ReviewingStage = "reviewed_and_locked"
)

func (r ReviewingStage) Valid() bool {
	switch r {
	case ReviewingStageNotStarted, ReviewingStagePeerReview, ReviewingStageSelfReview,
		ReviewingStageWaitingForPeerReviews, ReviewingStageWaitingForManualGrading, ReviewingStageReviewedAndLocked:
		return true
	}
	return false
}

// AcceptsAnswers is true only before any review has begun.
func (r ReviewingStage) AcceptsAnswers() bool {
	return r == ReviewingStageNotStarted
}

type UserPointsUpdateStrategy string

const (
	CanAddPointsButCannotRemovePoints UserPointsUpdateStrategy = "can_add_points_but_cannot_remove_points"
	CanAddPointsAndCanRemovePoints    UserPointsUpdateStrategy = "can_add_points_and_can_remove_points"
)

func (s UserPointsUpdateStrategy) Valid() bool {
	return s == CanAddPointsButCannotRemovePoints || s == CanAddPointsAndCanRemovePoints
}

type PeerReviewProcessingStrategy string

const (
	AutomaticallyGradeByAverage               PeerReviewProcessingStrategy = "automatically_grade_by_average"
	AutomaticallyGradeOrManualReviewByAverage PeerReviewProcessingStrategy = "automatically_grade_or_manual_review_by_average"
	ManualReviewEverything                    PeerReviewProcessingStrategy = "manual_review_everything"
)

type PeerReviewQuestionType string

const (
	PeerReviewQuestionEssay PeerReviewQuestionType = "essay"
	PeerReviewQuestionScale PeerReviewQuestionType = "scale"
)

type TeacherDecisionType string

const (
	TeacherDecisionFullPoints             TeacherDecisionType = "full_points"
	TeacherDecisionZeroPoints             TeacherDecisionType = "zero_points"
	TeacherDecisionCustomPoints           TeacherDecisionType = "custom_points"
	TeacherDecisionSuggestedPointsByPeers TeacherDecisionType = "suggested_points_by_peers"
)

func (t TeacherDecisionType) Valid() bool {
	switch t {
	case TeacherDecisionFullPoints, TeacherDecisionZeroPoints, TeacherDecisionCustomPoints, TeacherDecisionSuggestedPointsByPeers:
		return true
	}
	return false
}

type ChapterLockingStatus string

const (
	ChapterUnlocked           ChapterLockingStatus = "unlocked"
	ChapterCompletedAndLocked ChapterLockingStatus = "completed_and_locked"
	ChapterNotUnlockedYet     ChapterLockingStatus = "not_unlocked_yet"
)
