package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

const (
	EventSource  = "grading-engine"
	EventVersion = "1.0"
)

// Event types, also used as topic names after the configured prefix.
const (
	UserExerciseStateUpdated = "user_exercise_state.updated"
	PeerReviewSubmitted      = "peer_review.submitted"
	RegradingCompleted       = "regrading.completed"
	ChapterUnlocked          = "chapter.unlocked"
	CourseModuleCompleted    = "course_module.completed"
)

// Event is the envelope every domain event is published in.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes domain events. Publishing is best effort for callers:
// a failed publish never rolls back the state change that caused it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

type UserExerciseStateUpdatedEvent struct {
	UserExerciseStateID uuid.UUID               `json:"user_exercise_state_id"`
	UserID              uuid.UUID               `json:"user_id"`
	ExerciseID          uuid.UUID               `json:"exercise_id"`
	CourseInstanceID    *uuid.UUID              `json:"course_instance_id,omitempty"`
	ExamID              *uuid.UUID              `json:"exam_id,omitempty"`
	ScoreGiven          *float64                `json:"score_given"`
	ActivityProgress    models.ActivityProgress `json:"activity_progress"`
	ReviewingStage      models.ReviewingStage   `json:"reviewing_stage"`
	GradingProgress     models.GradingProgress  `json:"grading_progress"`
}

func NewUserExerciseStateUpdatedEvent(state *models.UserExerciseState) UserExerciseStateUpdatedEvent {
	return UserExerciseStateUpdatedEvent{
		UserExerciseStateID: state.ID,
		UserID:              state.UserID,
		ExerciseID:          state.ExerciseID,
		CourseInstanceID:    state.CourseInstanceID,
		ExamID:              state.ExamID,
		ScoreGiven:          state.ScoreGiven,
		ActivityProgress:    state.ActivityProgress,
		ReviewingStage:      state.ReviewingStage,
		GradingProgress:     state.GradingProgress,
	}
}

type PeerReviewSubmittedEvent struct {
	PeerReviewSubmissionID    uuid.UUID `json:"peer_review_submission_id"`
	ReviewerUserID            uuid.UUID `json:"reviewer_user_id"`
	ExerciseID                uuid.UUID `json:"exercise_id"`
	ExerciseSlideSubmissionID uuid.UUID `json:"exercise_slide_submission_id"`
	IsSelfReview              bool      `json:"is_self_review"`
}

type RegradingCompletedEvent struct {
	RegradingID     uuid.UUID `json:"regrading_id"`
	SubmissionCount int       `json:"submission_count"`
}

type ChapterUnlockedEvent struct {
	UserID     uuid.UUID   `json:"user_id"`
	CourseID   uuid.UUID   `json:"course_id"`
	ChapterIDs []uuid.UUID `json:"chapter_ids"`
}

type CourseModuleCompletedEvent struct {
	CourseModuleID   uuid.UUID `json:"course_module_id"`
	CourseInstanceID uuid.UUID `json:"course_instance_id"`
	UserID           uuid.UUID `json:"user_id"`
}
