package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the identifier and bookkeeping columns shared by every table.
// DeletedAt makes gorm filter soft-deleted rows unless Unscoped is used.
type Base struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns an id on the client so callers can link rows before insert.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Exercise belongs either to a course chapter or to an exam, never both.
type Exercise struct {
	Base
	Name         string     `json:"name" gorm:"not null"`
	CourseID     *uuid.UUID `json:"course_id" gorm:"type:uuid;index"`
	ChapterID    *uuid.UUID `json:"chapter_id" gorm:"type:uuid;index"`
	ExamID       *uuid.UUID `json:"exam_id" gorm:"type:uuid;index"`
	ScoreMaximum int        `json:"score_maximum" gorm:"not null"`
	OrderNumber  int        `json:"order_number"`
	Deadline     *time.Time `json:"deadline"`

	NeedsPeerReview                  bool `json:"needs_peer_review"`
	NeedsSelfReview                  bool `json:"needs_self_review"`
	UseCourseDefaultPeerReviewConfig bool `json:"use_course_default_peer_review_config"`

	LimitNumberOfTries               bool `json:"limit_number_of_tries"`
	MaxTriesPerSlide                 *int `json:"max_tries_per_slide"`
	TeacherReviewsAnswerAfterLocking bool `json:"teacher_reviews_answer_after_locking"`
}

func (Exercise) TableName() string { return "exercises" }

// HasValidContext checks that exactly one of (course + chapter) or exam is set.
func (e *Exercise) HasValidContext() bool {
	courseSide := e.CourseID != nil && e.ChapterID != nil
	examSide := e.ExamID != nil
	return courseSide != examSide && (e.CourseID == nil) == (e.ChapterID == nil)
}

func (e *Exercise) IsExamExercise() bool {
	return e.ExamID != nil
}

func (e *Exercise) DeadlinePassed(now time.Time) bool {
	return e.Deadline != nil && !now.Before(*e.Deadline)
}

// NeedsAnyReview is true when peer or self review is part of the workflow.
func (e *Exercise) NeedsAnyReview() bool {
	return e.NeedsPeerReview || e.NeedsSelfReview
}

type ExerciseSlide struct {
	Base
	ExerciseID  uuid.UUID `json:"exercise_id" gorm:"type:uuid;not null;index"`
	OrderNumber int       `json:"order_number"`
}

func (ExerciseSlide) TableName() string { return "exercise_slides" }

// ExerciseTask is the gradable unit; ExerciseType names the exercise service slug.
type ExerciseTask struct {
	Base
	ExerciseSlideID   uuid.UUID      `json:"exercise_slide_id" gorm:"type:uuid;not null;index"`
	ExerciseType      string         `json:"exercise_type" gorm:"not null;size:255"`
	OrderNumber       int            `json:"order_number"`
	PrivateSpec       datatypes.JSON `json:"private_spec" gorm:"type:jsonb"`
	PublicSpec        datatypes.JSON `json:"public_spec" gorm:"type:jsonb"`
	ModelSolutionSpec datatypes.JSON `json:"model_solution_spec" gorm:"type:jsonb"`
}

func (ExerciseTask) TableName() string { return "exercise_tasks" }

// ExerciseService describes an external grader registered under a slug.
type ExerciseService struct {
	Base
	Name                             string  `json:"name" gorm:"not null"`
	Slug                             string  `json:"slug" gorm:"not null;uniqueIndex"`
	PublicURL                        string  `json:"public_url" gorm:"not null"`
	InternalURL                      *string `json:"internal_url"`
	MaxReprocessingSubmissionsAtOnce int     `json:"max_reprocessing_submissions_at_once" gorm:"not null;default:1"`
}

func (ExerciseService) TableName() string { return "exercise_services" }

// BaseURL prefers the cluster-internal url when one is configured.
func (s *ExerciseService) BaseURL() string {
	if s.InternalURL != nil && *s.InternalURL != "" {
		return *s.InternalURL
	}
	return s.PublicURL
}

// ExerciseServiceInfo holds the endpoint paths a service advertises.
type ExerciseServiceInfo struct {
	ExerciseServiceID             uuid.UUID `json:"exercise_service_id" gorm:"type:uuid;primaryKey"`
	CreatedAt                     time.Time `json:"created_at"`
	UpdatedAt                     time.Time `json:"updated_at"`
	UserInterfaceIframePath       string    `json:"user_interface_iframe_path"`
	GradeEndpointPath             string    `json:"grade_endpoint_path"`
	PublicSpecEndpointPath        string    `json:"public_spec_endpoint_path"`
	ModelSolutionSpecEndpointPath string    `json:"model_solution_spec_endpoint_path"`
}

func (ExerciseServiceInfo) TableName() string { return "exercise_service_info" }

// ExerciseServiceDescriptor is a service together with its endpoint paths.
type ExerciseServiceDescriptor struct {
	Service ExerciseService     `json:"service"`
	Info    ExerciseServiceInfo `json:"info"`
}
