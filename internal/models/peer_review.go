package models

import (
	"github.com/google/uuid"
)

// PeerReviewConfig applies either to one exercise or, with ExerciseID nil, as the course default.
type PeerReviewConfig struct {
	Base
	CourseID                 uuid.UUID                    `json:"course_id" gorm:"type:uuid;not null;index"`
	ExerciseID               *uuid.UUID                   `json:"exercise_id" gorm:"type:uuid;index"`
	PeerReviewsToGive        int                          `json:"peer_reviews_to_give" gorm:"not null"`
	PeerReviewsToReceive     int                          `json:"peer_reviews_to_receive" gorm:"not null"`
	AcceptingThreshold       float64                      `json:"accepting_threshold" gorm:"not null"`
	ProcessingStrategy       PeerReviewProcessingStrategy `json:"processing_strategy" gorm:"not null"`
	PointsAreAllOrNothing    bool                         `json:"points_are_all_or_nothing" gorm:"not null;default:true"`
	ManualReviewCutoffInDays int                          `json:"manual_review_cutoff_in_days" gorm:"not null;default:21"`
}

func (PeerReviewConfig) TableName() string { return "peer_review_configs" }

type PeerReviewQuestion struct {
	Base
	PeerReviewConfigID uuid.UUID              `json:"peer_review_config_id" gorm:"type:uuid;not null;index"`
	OrderNumber        int                    `json:"order_number"`
	Question           string                 `json:"question"`
	QuestionType       PeerReviewQuestionType `json:"question_type" gorm:"not null"`
	AnswerRequired     bool                   `json:"answer_required"`
	Weight             float64                `json:"weight"`
}

func (PeerReviewQuestion) TableName() string { return "peer_review_questions" }

// PeerReviewSubmission is one complete review of one slide submission.
type PeerReviewSubmission struct {
	Base
	UserID                    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	ExerciseID                uuid.UUID `json:"exercise_id" gorm:"type:uuid;not null;index"`
	CourseInstanceID          uuid.UUID `json:"course_instance_id" gorm:"type:uuid;not null"`
	PeerReviewConfigID        uuid.UUID `json:"peer_review_config_id" gorm:"type:uuid;not null"`
	ExerciseSlideSubmissionID uuid.UUID `json:"exercise_slide_submission_id" gorm:"type:uuid;not null;index"`
	IsSelfReview              bool      `json:"is_self_review"`

	QuestionSubmissions []PeerReviewQuestionSubmission `json:"question_submissions,omitempty" gorm:"foreignKey:PeerReviewSubmissionID"`
}

func (PeerReviewSubmission) TableName() string { return "peer_review_submissions" }

type PeerReviewQuestionSubmission struct {
	Base
	PeerReviewQuestionID   uuid.UUID `json:"peer_review_question_id" gorm:"type:uuid;not null;index"`
	PeerReviewSubmissionID uuid.UUID `json:"peer_review_submission_id" gorm:"type:uuid;not null;index"`
	TextData               *string   `json:"text_data"`
	NumberData             *float64  `json:"number_data"`
}

func (PeerReviewQuestionSubmission) TableName() string { return "peer_review_question_submissions" }

// PeerReviewQueueEntry tracks a student's candidacy for receiving peer reviews.
// ReceivingPeerReviewsExerciseSlideSubmissionID never changes after the first insert
// and ReceivedEnoughPeerReviews only ever goes from false to true.
type PeerReviewQueueEntry struct {
	Base
	UserID                                        uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_prqe_user_exercise_instance"`
	ExerciseID                                    uuid.UUID `json:"exercise_id" gorm:"type:uuid;not null;uniqueIndex:idx_prqe_user_exercise_instance"`
	CourseInstanceID                              uuid.UUID `json:"course_instance_id" gorm:"type:uuid;not null;uniqueIndex:idx_prqe_user_exercise_instance"`
	ReceivingPeerReviewsExerciseSlideSubmissionID uuid.UUID `json:"receiving_peer_reviews_exercise_slide_submission_id" gorm:"type:uuid;not null;index"`
	ReceivedEnoughPeerReviews                     bool      `json:"received_enough_peer_reviews" gorm:"not null;default:false"`
	PeerReviewPriority                            int       `json:"peer_review_priority" gorm:"not null;default:0"`
	RemovedFromQueueForUnusualReason              bool      `json:"removed_from_queue_for_unusual_reason" gorm:"not null;default:false"`
}

func (PeerReviewQueueEntry) TableName() string { return "peer_review_queue_entries" }

// OfferedAnswerToPeerReview is the advisory reservation of an answer for a reviewer.
type OfferedAnswerToPeerReview struct {
	Base
	ExerciseID                uuid.UUID `json:"exercise_id" gorm:"type:uuid;not null;uniqueIndex:idx_offered_exercise_reviewer"`
	ReviewerUserID            uuid.UUID `json:"reviewer_user_id" gorm:"type:uuid;not null;uniqueIndex:idx_offered_exercise_reviewer"`
	ExerciseSlideSubmissionID uuid.UUID `json:"exercise_slide_submission_id" gorm:"type:uuid;not null"`
	CourseInstanceID          uuid.UUID `json:"course_instance_id" gorm:"type:uuid;not null"`
}

func (OfferedAnswerToPeerReview) TableName() string { return "offered_answers_to_peer_review" }

// FlaggedAnswer is a report by a reviewer; flagged answers are never offered to the same reviewer again.
type FlaggedAnswer struct {
	Base
	ExerciseSlideSubmissionID uuid.UUID `json:"exercise_slide_submission_id" gorm:"type:uuid;not null;index"`
	ExerciseID                uuid.UUID `json:"exercise_id" gorm:"type:uuid;not null;index"`
	FlaggedUserID             uuid.UUID `json:"flagged_user_id" gorm:"type:uuid;not null"`
	FlaggedByUserID           uuid.UUID `json:"flagged_by_user_id" gorm:"type:uuid;not null;index"`
	Reason                    string    `json:"reason"`
}

func (FlaggedAnswer) TableName() string { return "flagged_answers" }
