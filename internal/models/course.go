package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	Base
	Name string `json:"name" gorm:"not null"`
	Slug string `json:"slug" gorm:"not null;uniqueIndex"`
}

func (Course) TableName() string { return "courses" }

type CourseInstance struct {
	Base
	CourseID uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index"`
	Name     *string   `json:"name"`
}

func (CourseInstance) TableName() string { return "course_instances" }

type Exam struct {
	Base
	Name        string     `json:"name" gorm:"not null"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	TimeMinutes int        `json:"time_minutes"`
}

func (Exam) TableName() string { return "exams" }

// AcceptsSubmissions reports whether the exam window is open at now.
func (e *Exam) AcceptsSubmissions(now time.Time) bool {
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && !now.Before(*e.EndsAt) {
		return false
	}
	return true
}

// CourseModule groups chapters. The module with order number 0 is the base module.
type CourseModule struct {
	Base
	CourseID    uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index"`
	Name        *string   `json:"name"`
	OrderNumber int       `json:"order_number" gorm:"not null"`

	AutomaticCompletion                                   bool `json:"automatic_completion"`
	AutomaticCompletionNumberOfExercisesAttemptedTreshold *int `json:"automatic_completion_number_of_exercises_attempted_treshold"`
	AutomaticCompletionNumberOfPointsTreshold             *int `json:"automatic_completion_number_of_points_treshold"`
}

func (CourseModule) TableName() string { return "course_modules" }

func (m *CourseModule) IsBaseModule() bool {
	return m.OrderNumber == 0
}

type Chapter struct {
	Base
	CourseID       uuid.UUID  `json:"course_id" gorm:"type:uuid;not null;index"`
	Name           string     `json:"name"`
	ChapterNumber  int        `json:"chapter_number" gorm:"not null"`
	OpensAt        *time.Time `json:"opens_at"`
	Deadline       *time.Time `json:"deadline"`
	CourseModuleID *uuid.UUID `json:"course_module_id" gorm:"type:uuid;index"`
}

func (Chapter) TableName() string { return "chapters" }

// HasOpened treats a chapter without an opening time as open.
func (c *Chapter) HasOpened(now time.Time) bool {
	return c.OpensAt == nil || !c.OpensAt.After(now)
}

type UserChapterLockingStatus struct {
	Base
	UserID    uuid.UUID            `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_ucls_user_chapter"`
	ChapterID uuid.UUID            `json:"chapter_id" gorm:"type:uuid;not null;uniqueIndex:idx_ucls_user_chapter"`
	CourseID  uuid.UUID            `json:"course_id" gorm:"type:uuid;not null;index"`
	Status    ChapterLockingStatus `json:"status" gorm:"not null"`
}

func (UserChapterLockingStatus) TableName() string { return "user_chapter_locking_statuses" }

// CourseModuleCompletion is granted once per user, module and course instance.
type CourseModuleCompletion struct {
	Base
	CourseModuleID   uuid.UUID `json:"course_module_id" gorm:"type:uuid;not null;uniqueIndex:idx_cmc_module_instance_user"`
	CourseID         uuid.UUID `json:"course_id" gorm:"type:uuid;not null"`
	CourseInstanceID uuid.UUID `json:"course_instance_id" gorm:"type:uuid;not null;uniqueIndex:idx_cmc_module_instance_user"`
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_cmc_module_instance_user"`
	CompletionDate   time.Time `json:"completion_date"`
	Passed           bool      `json:"passed"`
	Grade            *int      `json:"grade"`
}

func (CourseModuleCompletion) TableName() string { return "course_module_completions" }
