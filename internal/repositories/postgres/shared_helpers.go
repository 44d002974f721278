package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

// notFoundOr wraps err with a message, keeping gorm.ErrRecordNotFound matchable.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s not found: %w", what, err)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// excludeIDs adds a NOT IN filter only when the list is non-empty.
func excludeIDs(column string, ids []uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(ids) == 0 {
			return db
		}
		return db.Where(column+" NOT IN ?", ids)
	}
}

// stateContext scopes a query to a course instance or an exam.
func stateContext(stateCtx models.ExerciseStateContext) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if stateCtx.CourseInstanceID != nil {
			db = db.Where("course_instance_id = ?", *stateCtx.CourseInstanceID)
		} else {
			db = db.Where("course_instance_id IS NULL")
		}
		if stateCtx.ExamID != nil {
			db = db.Where("exam_id = ?", *stateCtx.ExamID)
		} else {
			db = db.Where("exam_id IS NULL")
		}
		return db
	}
}
