package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/events"
	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type progressionService struct {
	repo   repositories.Repository
	logger *slog.Logger
	events eventEmitter
	now    func() time.Time
}

func NewProgressionService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger) ProgressionService {
	return &progressionService{
		repo:   repo,
		logger: logger,
		events: eventEmitter{publisher: publisher, logger: logger},
		now:    time.Now,
	}
}

func (s *progressionService) ChapterHasOpened(chapter *models.Chapter, now time.Time) bool {
	return chapter.HasOpened(now)
}

// ===== UNLOCKING =====

func (s *progressionService) UnlockFirstChaptersForUser(ctx context.Context, userID, courseID uuid.UUID) ([]uuid.UUID, error) {
	layout, err := s.loadCourseLayout(ctx, courseID)
	if err != nil {
		return nil, err
	}

	prefix, err := s.exercisePrefix(ctx, layout.chaptersOf(layout.base))
	if err != nil {
		return nil, err
	}
	return s.unlock(ctx, userID, courseID, prefix)
}

func (s *progressionService) UnlockChaptersAfterCompletion(ctx context.Context, userID, completedChapterID uuid.UUID) ([]uuid.UUID, error) {
	completed, err := s.repo.Course().GetChapterByID(ctx, completedChapterID)
	if err != nil {
		return nil, notFound(err, "chapter")
	}
	layout, err := s.loadCourseLayout(ctx, completed.CourseID)
	if err != nil {
		return nil, err
	}
	module := layout.moduleOf(completed)

	if module != nil && module.IsBaseModule() {
		done, err := s.allCompleted(ctx, userID, completed.CourseID, layout.chaptersOf(module))
		if err != nil {
			return nil, err
		}
		if done {
			var toUnlock []*models.Chapter
			for _, m := range layout.modules {
				if m.IsBaseModule() {
					continue
				}
				prefix, err := s.exercisePrefix(ctx, layout.chaptersOf(m))
				if err != nil {
					return nil, err
				}
				toUnlock = append(toUnlock, prefix...)
			}
			return s.unlock(ctx, userID, completed.CourseID, toUnlock)
		}
	}

	var following []*models.Chapter
	seen := false
	for _, c := range layout.chaptersOf(module) {
		if seen {
			following = append(following, c)
		}
		if c.ID == completed.ID {
			seen = true
		}
	}
	prefix, err := s.exercisePrefix(ctx, following)
	if err != nil {
		return nil, err
	}
	return s.unlock(ctx, userID, completed.CourseID, prefix)
}

// exercisePrefix returns chapters up to and including the first one that has exercises.
// Without any exercise chapter the whole list is returned.
func (s *progressionService) exercisePrefix(ctx context.Context, chapters []*models.Chapter) ([]*models.Chapter, error) {
	if len(chapters) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(chapters))
	for i, c := range chapters {
		ids[i] = c.ID
	}
	counts, err := s.repo.Exercise().CountByChapterIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count chapter exercises: %w", err)
	}
	for i, c := range chapters {
		if counts[c.ID] > 0 {
			return chapters[:i+1], nil
		}
	}
	return chapters, nil
}

func (s *progressionService) allCompleted(ctx context.Context, userID, courseID uuid.UUID, chapters []*models.Chapter) (bool, error) {
	statuses, err := s.repo.ChapterLocking().GetStatusesByCourse(ctx, userID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to get chapter locking statuses: %w", err)
	}
	byChapter := make(map[uuid.UUID]models.ChapterLockingStatus, len(statuses))
	for _, st := range statuses {
		byChapter[st.ChapterID] = st.Status
	}
	for _, c := range chapters {
		if byChapter[c.ID] != models.ChapterCompletedAndLocked {
			return false, nil
		}
	}
	return true, nil
}

func (s *progressionService) unlock(ctx context.Context, userID, courseID uuid.UUID, chapters []*models.Chapter) ([]uuid.UUID, error) {
	unlocked := make([]uuid.UUID, 0, len(chapters))
	for _, c := range chapters {
		if _, err := s.repo.ChapterLocking().Unlock(ctx, userID, c.ID, courseID); err != nil {
			return nil, fmt.Errorf("failed to unlock chapter %s: %w", c.ID, err)
		}
		unlocked = append(unlocked, c.ID)
	}
	if len(unlocked) > 0 {
		s.events.publish(ctx, events.ChapterUnlocked, events.ChapterUnlockedEvent{
			UserID:     userID,
			CourseID:   courseID,
			ChapterIDs: unlocked,
		})
		s.logger.Info("Chapters unlocked", "user_id", userID, "course_id", courseID, "chapters", len(unlocked))
	}
	return unlocked, nil
}

// ===== CHAPTER COMPLETION =====

func (s *progressionService) CompleteChapter(ctx context.Context, userID, chapterID, courseInstanceID uuid.UUID) ([]uuid.UUID, error) {
	chapter, err := s.repo.Course().GetChapterByID(ctx, chapterID)
	if err != nil {
		return nil, notFound(err, "chapter")
	}
	if _, err := s.repo.ChapterLocking().CompleteAndLock(ctx, userID, chapter.ID, chapter.CourseID); err != nil {
		return nil, fmt.Errorf("failed to complete chapter: %w", err)
	}
	if err := s.MoveChapterExercisesToManualReview(ctx, userID, chapter.ID, courseInstanceID); err != nil {
		return nil, err
	}
	return s.UnlockChaptersAfterCompletion(ctx, userID, chapter.ID)
}

func (s *progressionService) MoveChapterExercisesToManualReview(ctx context.Context, userID, chapterID, courseInstanceID uuid.UUID) error {
	exercises, err := s.repo.Exercise().GetByChapterID(ctx, chapterID)
	if err != nil {
		return fmt.Errorf("failed to get chapter exercises: %w", err)
	}

	stateCtx := models.ExerciseStateContext{CourseInstanceID: &courseInstanceID}
	for _, exercise := range exercises {
		state, err := s.repo.UserExerciseState().Get(ctx, userID, exercise.ID, stateCtx)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				continue
			}
			return fmt.Errorf("failed to get user exercise state: %w", err)
		}

		var moved *models.UserExerciseState
		err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			locked, err := tx.UserExerciseState().GetByIDForUpdate(ctx, state.ID)
			if err != nil {
				return notFound(err, "user exercise state")
			}
			next, ok := manualReviewStage(exercise, locked)
			if !ok {
				return nil
			}
			locked.ReviewingStage = next
			if err := tx.UserExerciseState().Update(ctx, locked); err != nil {
				return fmt.Errorf("failed to update user exercise state: %w", err)
			}
			moved = locked
			return nil
		})
		if err != nil {
			return err
		}
		if moved != nil {
			s.events.stateUpdated(ctx, &StateUpdateResult{State: moved, Changed: true})
			s.logger.Info("Moved exercise to review after chapter closed",
				"user_exercise_state_id", moved.ID,
				"reviewing_stage", moved.ReviewingStage)
		}
	}
	return nil
}

// manualReviewStage is the stage a state moves to when its chapter closes. ok is false when it stays put.
func manualReviewStage(exercise *models.Exercise, state *models.UserExerciseState) (models.ReviewingStage, bool) {
	if state.SelectedExerciseSlideID == nil {
		return "", false
	}
	switch state.ReviewingStage {
	case models.ReviewingStageWaitingForManualGrading, models.ReviewingStageReviewedAndLocked:
		return "", false
	}
	if !exercise.NeedsAnyReview() && !exercise.TeacherReviewsAnswerAfterLocking &&
		state.GradingProgress == models.GradingProgressFullyGraded {
		return models.ReviewingStageReviewedAndLocked, true
	}
	return models.ReviewingStageWaitingForManualGrading, true
}

// ===== MODULE COMPLETION =====

// CheckAndCompleteModule grants the automatic completion of the exercise's module once every defined
// threshold is met. It returns nil when nothing was granted.
func (s *progressionService) CheckAndCompleteModule(ctx context.Context, repo repositories.Repository, userID, courseInstanceID uuid.UUID, exercise *models.Exercise) (*models.CourseModuleCompletion, error) {
	if exercise.ChapterID == nil || exercise.CourseID == nil {
		return nil, nil
	}
	chapter, err := repo.Course().GetChapterByID(ctx, *exercise.ChapterID)
	if err != nil {
		return nil, notFound(err, "chapter")
	}

	courseID := *exercise.CourseID
	chapters, err := repo.Course().GetChaptersByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	modules, err := repo.Course().GetModulesByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course modules: %w", err)
	}
	layout := newCourseLayout(modules, chapters)
	module := layout.moduleOf(chapter)
	if module == nil || !module.AutomaticCompletion {
		return nil, nil
	}
	attemptedThreshold := module.AutomaticCompletionNumberOfExercisesAttemptedTreshold
	pointsThreshold := module.AutomaticCompletionNumberOfPointsTreshold
	if attemptedThreshold == nil && pointsThreshold == nil {
		return nil, nil
	}

	existing, err := repo.CourseModuleCompletion().Get(ctx, module.ID, courseInstanceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course module completion: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	inModule := make(map[uuid.UUID]bool)
	for _, c := range layout.chaptersOf(module) {
		exercises, err := repo.Exercise().GetByChapterID(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get chapter exercises: %w", err)
		}
		for _, e := range exercises {
			inModule[e.ID] = true
		}
	}

	states, err := repo.UserExerciseState().ListByUserAndCourseInstance(ctx, userID, courseInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user exercise states: %w", err)
	}
	attempted := 0
	var points float64
	for _, st := range states {
		if !inModule[st.ExerciseID] {
			continue
		}
		if st.ActivityProgress != models.ActivityProgressInitialized || st.ScoreGiven != nil {
			attempted++
		}
		if st.ScoreGiven != nil {
			points += *st.ScoreGiven
		}
	}

	if attemptedThreshold != nil && attempted < *attemptedThreshold {
		return nil, nil
	}
	if pointsThreshold != nil && points < float64(*pointsThreshold) {
		return nil, nil
	}

	completion := &models.CourseModuleCompletion{
		CourseModuleID:   module.ID,
		CourseID:         courseID,
		CourseInstanceID: courseInstanceID,
		UserID:           userID,
		CompletionDate:   s.now(),
		Passed:           true,
	}
	if err := repo.CourseModuleCompletion().Create(ctx, completion); err != nil {
		return nil, fmt.Errorf("failed to create course module completion: %w", err)
	}
	s.logger.Info("Course module completed automatically",
		"course_module_id", module.ID,
		"user_id", userID,
		"exercises_attempted", attempted,
		"points", RoundToTwoDecimals(points))
	return completion, nil
}

// ===== COURSE LAYOUT =====

// courseLayout is the module and chapter structure of a course. Chapters come ordered by number.
type courseLayout struct {
	modules  []*models.CourseModule
	chapters []*models.Chapter
	base     *models.CourseModule
}

func newCourseLayout(modules []*models.CourseModule, chapters []*models.Chapter) *courseLayout {
	l := &courseLayout{modules: modules, chapters: chapters}
	for _, m := range modules {
		if m.IsBaseModule() {
			l.base = m
			break
		}
	}
	return l
}

func (s *progressionService) loadCourseLayout(ctx context.Context, courseID uuid.UUID) (*courseLayout, error) {
	chapters, err := s.repo.Course().GetChaptersByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chapters: %w", err)
	}
	modules, err := s.repo.Course().GetModulesByCourseID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course modules: %w", err)
	}
	return newCourseLayout(modules, chapters), nil
}

// moduleOf resolves a chapter's module; chapters without one belong to the base module.
func (l *courseLayout) moduleOf(chapter *models.Chapter) *models.CourseModule {
	if chapter.CourseModuleID == nil {
		return l.base
	}
	for _, m := range l.modules {
		if m.ID == *chapter.CourseModuleID {
			return m
		}
	}
	return nil
}

func (l *courseLayout) chaptersOf(module *models.CourseModule) []*models.Chapter {
	var out []*models.Chapter
	for _, c := range l.chapters {
		m := l.moduleOf(c)
		if (module == nil && m == nil) || (module != nil && m != nil && m.ID == module.ID) {
			out = append(out, c)
		}
	}
	return out
}
