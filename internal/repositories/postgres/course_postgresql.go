package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (c *CoursePostgreSQL) GetCourseInstanceByID(ctx context.Context, id uuid.UUID) (*models.CourseInstance, error) {
	var instance models.CourseInstance
	if err := c.db.WithContext(ctx).First(&instance, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "course instance")
	}
	return &instance, nil
}

func (c *CoursePostgreSQL) GetExamByID(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	var exam models.Exam
	if err := c.db.WithContext(ctx).First(&exam, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exam")
	}
	return &exam, nil
}

func (c *CoursePostgreSQL) GetChapterByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := c.db.WithContext(ctx).First(&chapter, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "chapter")
	}
	return &chapter, nil
}

func (c *CoursePostgreSQL) GetChaptersByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	if err := c.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("chapter_number ASC").
		Find(&chapters).Error; err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	return chapters, nil
}

func (c *CoursePostgreSQL) GetModulesByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.CourseModule, error) {
	var modules []*models.CourseModule
	if err := c.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("order_number ASC").
		Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("failed to get course modules: %w", err)
	}
	return modules, nil
}

// ChapterLockingPostgreSQL stores per-user chapter locking statuses.
type ChapterLockingPostgreSQL struct {
	db *gorm.DB
}

func NewChapterLockingPostgreSQL(db *gorm.DB) repositories.ChapterLockingRepository {
	return &ChapterLockingPostgreSQL{db: db}
}

func (l *ChapterLockingPostgreSQL) GetStatusesByCourse(ctx context.Context, userID, courseID uuid.UUID) ([]*models.UserChapterLockingStatus, error) {
	var statuses []*models.UserChapterLockingStatus
	if err := l.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to get chapter locking statuses: %w", err)
	}
	return statuses, nil
}

func (l *ChapterLockingPostgreSQL) Unlock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error) {
	return l.upsert(ctx, userID, chapterID, courseID, models.ChapterUnlocked,
		gorm.Expr("CASE WHEN user_chapter_locking_statuses.status = ? THEN user_chapter_locking_statuses.status ELSE ? END",
			models.ChapterCompletedAndLocked, models.ChapterUnlocked))
}

func (l *ChapterLockingPostgreSQL) CompleteAndLock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error) {
	return l.upsert(ctx, userID, chapterID, courseID, models.ChapterCompletedAndLocked, models.ChapterCompletedAndLocked)
}

func (l *ChapterLockingPostgreSQL) upsert(ctx context.Context, userID, chapterID, courseID uuid.UUID, status models.ChapterLockingStatus, onConflict interface{}) (*models.UserChapterLockingStatus, error) {
	row := &models.UserChapterLockingStatus{
		UserID:    userID,
		ChapterID: chapterID,
		CourseID:  courseID,
		Status:    status,
	}
	if err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "chapter_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     onConflict,
			"deleted_at": nil,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to save chapter locking status: %w", err)
	}

	var stored models.UserChapterLockingStatus
	if err := l.db.WithContext(ctx).
		Where("user_id = ? AND chapter_id = ?", userID, chapterID).
		First(&stored).Error; err != nil {
		return nil, notFoundOr(err, "chapter locking status")
	}
	return &stored, nil
}

type CourseModuleCompletionPostgreSQL struct {
	db *gorm.DB
}

func NewCourseModuleCompletionPostgreSQL(db *gorm.DB) repositories.CourseModuleCompletionRepository {
	return &CourseModuleCompletionPostgreSQL{db: db}
}

func (m *CourseModuleCompletionPostgreSQL) Get(ctx context.Context, moduleID, courseInstanceID, userID uuid.UUID) (*models.CourseModuleCompletion, error) {
	var completion models.CourseModuleCompletion
	err := m.db.WithContext(ctx).
		Where("course_module_id = ? AND course_instance_id = ? AND user_id = ?", moduleID, courseInstanceID, userID).
		First(&completion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course module completion: %w", err)
	}
	return &completion, nil
}

// Create is a no-op when the completion already exists.
func (m *CourseModuleCompletionPostgreSQL) Create(ctx context.Context, completion *models.CourseModuleCompletion) error {
	if err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(completion).Error; err != nil {
		return fmt.Errorf("failed to create course module completion: %w", err)
	}
	return nil
}
