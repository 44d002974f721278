package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

// memStore is an in-memory stand-in for the database. Rows are copied in and out so callers
// cannot mutate stored state without going through a repository method.
type memStore struct {
	mu    sync.Mutex
	clock time.Time

	exercises     []*models.Exercise
	slides        []*models.ExerciseSlide
	tasks         []*models.ExerciseTask
	services      []*models.ExerciseServiceDescriptor
	slideSubs     []*models.ExerciseSlideSubmission
	taskSubs      []*models.ExerciseTaskSubmission
	gradings      []*models.ExerciseTaskGrading
	states        []*models.UserExerciseState
	slideStates   []*models.UserExerciseSlideState
	taskStates    []*models.UserExerciseTaskState
	decisions     []*models.TeacherGradingDecision
	configs       []*models.PeerReviewConfig
	questions     []*models.PeerReviewQuestion
	reviews       []*models.PeerReviewSubmission
	reviewAnswers []*models.PeerReviewQuestionSubmission
	flagged       []*models.FlaggedAnswer
	queue         []*models.PeerReviewQueueEntry
	reservations  []*models.OfferedAnswerToPeerReview
	regradings    []*models.Regrading
	regradingSubs []*models.ExerciseTaskRegradingSubmission
	instances     []*models.CourseInstance
	exams         []*models.Exam
	chapters      []*models.Chapter
	modules       []*models.CourseModule
	lockStatuses  []*models.UserChapterLockingStatus
	completions   []*models.CourseModuleCompletion

	transactions     int
	invalidatedSlugs []string
	// staleCandidates makes GetCandidates return entries removed after the read, as a concurrent removal would.
	staleCandidates bool
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// stamp fills the bookkeeping columns of a new row. Every row gets a distinct creation time.
func (m *memStore) stamp(b *models.Base) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.clock = m.clock.Add(time.Millisecond)
	b.CreatedAt = m.clock
	b.UpdatedAt = m.clock
}

// setClock moves the time rows are stamped with.
func (m *memStore) setClock(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = t
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func cloneAll[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		out = append(out, clone(v))
	}
	return out
}

func missing(what string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", what, id, gorm.ErrRecordNotFound)
}

// fakeRepo implements repositories.Repository on top of a memStore.
type fakeRepo struct {
	m *memStore
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{m: newMemStore()}
}

func (r *fakeRepo) Exercise() repositories.ExerciseRepository { return fakeExercises{r.m} }
func (r *fakeRepo) ExerciseService() repositories.ExerciseServiceRepository {
	return fakeExerciseServices{r.m}
}
func (r *fakeRepo) Submission() repositories.SubmissionRepository { return fakeSubmissions{r.m} }
func (r *fakeRepo) Grading() repositories.GradingRepository       { return fakeGradings{r.m} }
func (r *fakeRepo) UserExerciseState() repositories.UserExerciseStateRepository {
	return fakeStates{r.m}
}
func (r *fakeRepo) TeacherGradingDecision() repositories.TeacherGradingDecisionRepository {
	return fakeDecisions{r.m}
}
func (r *fakeRepo) PeerReview() repositories.PeerReviewRepository           { return fakePeerReviews{r.m} }
func (r *fakeRepo) PeerReviewQueue() repositories.PeerReviewQueueRepository { return fakeQueue{r.m} }
func (r *fakeRepo) Regrading() repositories.RegradingRepository             { return fakeRegradings{r.m} }
func (r *fakeRepo) Course() repositories.CourseRepository                   { return fakeCourses{r.m} }
func (r *fakeRepo) ChapterLocking() repositories.ChapterLockingRepository {
	return fakeChapterLocking{r.m}
}
func (r *fakeRepo) CourseModuleCompletion() repositories.CourseModuleCompletionRepository {
	return fakeCompletions{r.m}
}

// WithTransaction does not roll back; tests only inspect state after successful operations.
func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	r.m.mu.Lock()
	r.m.transactions++
	r.m.mu.Unlock()
	return fn(r)
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// ===== EXERCISES =====

type fakeExercises struct{ m *memStore }

func (f fakeExercises) GetByID(ctx context.Context, id uuid.UUID) (*models.Exercise, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.exercises {
		if e.ID == id && !e.DeletedAt.Valid {
			return clone(e), nil
		}
	}
	return nil, missing("exercise", id)
}

func (f fakeExercises) GetByChapterID(ctx context.Context, chapterID uuid.UUID) ([]*models.Exercise, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.Exercise
	for _, e := range f.m.exercises {
		if e.ChapterID != nil && *e.ChapterID == chapterID && !e.DeletedAt.Valid {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (f fakeExercises) GetByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Exercise, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.Exercise
	for _, e := range f.m.exercises {
		if e.CourseID != nil && *e.CourseID == courseID && !e.DeletedAt.Valid {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (f fakeExercises) CountByChapterIDs(ctx context.Context, chapterIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, id := range chapterIDs {
		for _, e := range f.m.exercises {
			if e.ChapterID != nil && *e.ChapterID == id && !e.DeletedAt.Valid {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (f fakeExercises) GetSlideByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlide, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slides {
		if s.ID == id {
			return clone(s), nil
		}
	}
	return nil, missing("exercise slide", id)
}

func (f fakeExercises) GetTaskByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTask, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, t := range f.m.tasks {
		if t.ID == id {
			return clone(t), nil
		}
	}
	return nil, missing("exercise task", id)
}

func (f fakeExercises) GetTasksBySlideID(ctx context.Context, slideID uuid.UUID) ([]*models.ExerciseTask, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.ExerciseTask
	for _, t := range f.m.tasks {
		if t.ExerciseSlideID == slideID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

type fakeExerciseServices struct{ m *memStore }

func (f fakeExerciseServices) List(ctx context.Context) ([]*models.ExerciseService, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	out := make([]*models.ExerciseService, 0, len(f.m.services))
	for _, d := range f.m.services {
		s := d.Service
		out = append(out, &s)
	}
	return out, nil
}

func (f fakeExerciseServices) GetDescriptorBySlug(ctx context.Context, slug string) (*models.ExerciseServiceDescriptor, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, d := range f.m.services {
		if d.Service.Slug == slug {
			return clone(d), nil
		}
	}
	return nil, missing("exercise service", slug)
}

func (f fakeExerciseServices) GetDescriptorsBySlugs(ctx context.Context, slugs []string) (map[string]*models.ExerciseServiceDescriptor, error) {
	out := make(map[string]*models.ExerciseServiceDescriptor)
	for _, slug := range slugs {
		d, err := f.GetDescriptorBySlug(ctx, slug)
		if err == nil {
			out[slug] = d
		}
	}
	return out, nil
}

func (f fakeExerciseServices) InvalidateCache(ctx context.Context, slug string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.invalidatedSlugs = append(f.m.invalidatedSlugs, slug)
	return nil
}

// ===== SUBMISSIONS =====

type fakeSubmissions struct{ m *memStore }

func (f fakeSubmissions) CreateSlideSubmission(ctx context.Context, submission *models.ExerciseSlideSubmission) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&submission.Base)
	f.m.slideSubs = append(f.m.slideSubs, clone(submission))
	return nil
}

func (f fakeSubmissions) GetSlideSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slideSubs {
		if s.ID == id && !s.DeletedAt.Valid {
			return clone(s), nil
		}
	}
	return nil, missing("slide submission", id)
}

func (f fakeSubmissions) CountSlideSubmissionsByUser(ctx context.Context, userID, slideID uuid.UUID) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var n int64
	for _, s := range f.m.slideSubs {
		if s.UserID == userID && s.ExerciseSlideID == slideID && !s.DeletedAt.Valid {
			n++
		}
	}
	return n, nil
}

func (f fakeSubmissions) GetLatestSlideSubmission(ctx context.Context, userID, exerciseID uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var latest *models.ExerciseSlideSubmission
	for _, s := range f.m.slideSubs {
		if s.UserID != userID || s.ExerciseID != exerciseID || s.DeletedAt.Valid {
			continue
		}
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, missing("latest slide submission", userID)
	}
	return clone(latest), nil
}

func (f fakeSubmissions) GetRandomSlideSubmissionForPeerReview(ctx context.Context, exerciseID, excludedUserID uuid.UUID, excludedSubmissionIDs []uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slideSubs {
		if s.ExerciseID != exerciseID || s.UserID == excludedUserID || s.DeletedAt.Valid {
			continue
		}
		if containsID(excludedSubmissionIDs, s.ID) {
			continue
		}
		return clone(s), nil
	}
	return nil, missing("random slide submission", exerciseID)
}

func (f fakeSubmissions) CreateTaskSubmission(ctx context.Context, submission *models.ExerciseTaskSubmission) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&submission.Base)
	f.m.taskSubs = append(f.m.taskSubs, clone(submission))
	return nil
}

func (f fakeSubmissions) GetTaskSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.taskSubs {
		if s.ID == id {
			return clone(s), nil
		}
	}
	return nil, missing("task submission", id)
}

func (f fakeSubmissions) GetTaskSubmissionsByExerciseID(ctx context.Context, exerciseID uuid.UUID) ([]*models.ExerciseTaskSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.ExerciseTaskSubmission
	for _, ts := range f.m.taskSubs {
		for _, ss := range f.m.slideSubs {
			if ss.ID == ts.ExerciseSlideSubmissionID && ss.ExerciseID == exerciseID {
				out = append(out, clone(ts))
			}
		}
	}
	return out, nil
}

func (f fakeSubmissions) SetTaskSubmissionGradingID(ctx context.Context, taskSubmissionID, gradingID uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.taskSubs {
		if s.ID == taskSubmissionID {
			id := gradingID
			s.ExerciseTaskGradingID = &id
			return nil
		}
	}
	return missing("task submission", taskSubmissionID)
}

type fakeGradings struct{ m *memStore }

func (f fakeGradings) Create(ctx context.Context, grading *models.ExerciseTaskGrading) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&grading.Base)
	f.m.gradings = append(f.m.gradings, clone(grading))
	return nil
}

func (f fakeGradings) GetByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskGrading, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, g := range f.m.gradings {
		if g.ID == id {
			return clone(g), nil
		}
	}
	return nil, missing("grading", id)
}

func (f fakeGradings) Update(ctx context.Context, grading *models.ExerciseTaskGrading) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for i, g := range f.m.gradings {
		if g.ID == grading.ID {
			f.m.gradings[i] = clone(grading)
			return nil
		}
	}
	return missing("grading", grading.ID)
}

func (f fakeGradings) SetGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, g := range f.m.gradings {
		if g.ID == id {
			g.GradingProgress = progress
			return nil
		}
	}
	return missing("grading", id)
}

// ===== STATES =====

type fakeStates struct{ m *memStore }

func sameContext(s *models.UserExerciseState, c models.ExerciseStateContext) bool {
	return uuidPtrEqual(s.CourseInstanceID, c.CourseInstanceID) && uuidPtrEqual(s.ExamID, c.ExamID)
}

func (f fakeStates) GetOrCreate(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.states {
		if s.UserID == userID && s.ExerciseID == exerciseID && sameContext(s, stateCtx) && !s.DeletedAt.Valid {
			return clone(s), nil
		}
	}
	s := &models.UserExerciseState{
		UserID:           userID,
		ExerciseID:       exerciseID,
		CourseInstanceID: stateCtx.CourseInstanceID,
		ExamID:           stateCtx.ExamID,
		GradingProgress:  models.GradingProgressNotReady,
		ActivityProgress: models.ActivityProgressInitialized,
		ReviewingStage:   models.ReviewingStageNotStarted,
	}
	f.m.stamp(&s.Base)
	f.m.states = append(f.m.states, s)
	return clone(s), nil
}

func (f fakeStates) Get(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.states {
		if s.UserID == userID && s.ExerciseID == exerciseID && sameContext(s, stateCtx) && !s.DeletedAt.Valid {
			return clone(s), nil
		}
	}
	return nil, missing("user exercise state", userID)
}

func (f fakeStates) GetByID(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.states {
		if s.ID == id && !s.DeletedAt.Valid {
			return clone(s), nil
		}
	}
	return nil, missing("user exercise state", id)
}

func (f fakeStates) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error) {
	return f.GetByID(ctx, id)
}

func (f fakeStates) Update(ctx context.Context, state *models.UserExerciseState) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for i, s := range f.m.states {
		if s.ID == state.ID && !s.DeletedAt.Valid {
			f.m.states[i] = clone(state)
			return nil
		}
	}
	return missing("user exercise state", state.ID)
}

func (f fakeStates) ListByCourseInstanceID(ctx context.Context, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.UserExerciseState
	for _, s := range f.m.states {
		if s.CourseInstanceID != nil && *s.CourseInstanceID == courseInstanceID && !s.DeletedAt.Valid {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (f fakeStates) ListByUserAndCourseInstance(ctx context.Context, userID, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error) {
	all, _ := f.ListByCourseInstanceID(ctx, courseInstanceID)
	var out []*models.UserExerciseState
	for _, s := range all {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fakeStates) GetOrCreateSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slideStates {
		if s.UserExerciseStateID == stateID && s.ExerciseSlideID == slideID {
			return clone(s), nil
		}
	}
	s := &models.UserExerciseSlideState{
		UserExerciseStateID: stateID,
		ExerciseSlideID:     slideID,
		GradingProgress:     models.GradingProgressNotReady,
	}
	f.m.stamp(&s.Base)
	f.m.slideStates = append(f.m.slideStates, s)
	return clone(s), nil
}

func (f fakeStates) GetSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slideStates {
		if s.UserExerciseStateID == stateID && s.ExerciseSlideID == slideID {
			return clone(s), nil
		}
	}
	return nil, missing("slide state", stateID)
}

func (f fakeStates) UpdateSlideState(ctx context.Context, id uuid.UUID, scoreGiven *float64, progress models.GradingProgress) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.slideStates {
		if s.ID == id {
			s.ScoreGiven = scoreGiven
			s.GradingProgress = progress
			return nil
		}
	}
	return missing("slide state", id)
}

func (f fakeStates) UpsertTaskStateWithGrading(ctx context.Context, slideStateID uuid.UUID, grading *models.ExerciseTaskGrading) (*models.UserExerciseTaskState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	gradingID := grading.ID
	for _, t := range f.m.taskStates {
		if t.UserExerciseSlideStateID == slideStateID && t.ExerciseTaskID == grading.ExerciseTaskID {
			t.ExerciseTaskGradingID = &gradingID
			t.ScoreGiven = grading.ScoreGiven
			t.GradingProgress = grading.GradingProgress
			return clone(t), nil
		}
	}
	t := &models.UserExerciseTaskState{
		UserExerciseSlideStateID: slideStateID,
		ExerciseTaskID:           grading.ExerciseTaskID,
		ExerciseTaskGradingID:    &gradingID,
		ScoreGiven:               grading.ScoreGiven,
		GradingProgress:          grading.GradingProgress,
	}
	f.m.stamp(&t.Base)
	f.m.taskStates = append(f.m.taskStates, t)
	return clone(t), nil
}

func (f fakeStates) GetTaskStatesBySlideStateID(ctx context.Context, slideStateID uuid.UUID) ([]*models.UserExerciseTaskState, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.UserExerciseTaskState
	for _, t := range f.m.taskStates {
		if t.UserExerciseSlideStateID == slideStateID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

type fakeDecisions struct{ m *memStore }

func (f fakeDecisions) Create(ctx context.Context, decision *models.TeacherGradingDecision) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&decision.Base)
	f.m.decisions = append(f.m.decisions, clone(decision))
	return nil
}

func (f fakeDecisions) GetLatestByStateID(ctx context.Context, stateID uuid.UUID) (*models.TeacherGradingDecision, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var latest *models.TeacherGradingDecision
	for _, d := range f.m.decisions {
		if d.UserExerciseStateID == stateID {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	return clone(latest), nil
}

// ===== PEER REVIEW =====

type fakePeerReviews struct{ m *memStore }

func (f fakePeerReviews) GetConfigForExercise(ctx context.Context, exercise *models.Exercise) (*models.PeerReviewConfig, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if exercise.CourseID == nil {
		return nil, missing("peer review config", exercise.ID)
	}
	if !exercise.UseCourseDefaultPeerReviewConfig {
		for _, c := range f.m.configs {
			if c.ExerciseID != nil && *c.ExerciseID == exercise.ID {
				return clone(c), nil
			}
		}
	}
	for _, c := range f.m.configs {
		if c.ExerciseID == nil && c.CourseID == *exercise.CourseID {
			return clone(c), nil
		}
	}
	return nil, missing("peer review config", exercise.ID)
}

func (f fakePeerReviews) GetQuestionsByConfigID(ctx context.Context, configID uuid.UUID) ([]*models.PeerReviewQuestion, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.PeerReviewQuestion
	for _, q := range f.m.questions {
		if q.PeerReviewConfigID == configID {
			out = append(out, clone(q))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func (f fakePeerReviews) CreateSubmission(ctx context.Context, submission *models.PeerReviewSubmission) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&submission.Base)
	for i := range submission.QuestionSubmissions {
		qs := &submission.QuestionSubmissions[i]
		qs.PeerReviewSubmissionID = submission.ID
		f.m.stamp(&qs.Base)
		f.m.reviewAnswers = append(f.m.reviewAnswers, clone(qs))
	}
	stored := clone(submission)
	stored.QuestionSubmissions = nil
	f.m.reviews = append(f.m.reviews, stored)
	return nil
}

func (f fakePeerReviews) given(userID, exerciseID uuid.UUID) []*models.PeerReviewSubmission {
	var out []*models.PeerReviewSubmission
	for _, r := range f.m.reviews {
		if r.UserID == userID && r.ExerciseID == exerciseID && !r.IsSelfReview && !r.DeletedAt.Valid {
			out = append(out, r)
		}
	}
	return out
}

func (f fakePeerReviews) CountGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var n int64
	for _, r := range f.given(userID, exerciseID) {
		if r.CourseInstanceID == courseInstanceID {
			n++
		}
	}
	return n, nil
}

func (f fakePeerReviews) GetLastGivenAt(ctx context.Context, userID, exerciseID uuid.UUID) (*time.Time, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var last *time.Time
	for _, r := range f.given(userID, exerciseID) {
		if last == nil || r.CreatedAt.After(*last) {
			t := r.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (f fakePeerReviews) GetGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) ([]*models.PeerReviewSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.PeerReviewSubmission
	for _, r := range f.given(userID, exerciseID) {
		if r.CourseInstanceID == courseInstanceID {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (f fakePeerReviews) GetReviewedSubmissionIDs(ctx context.Context, reviewerID, exerciseID uuid.UUID) ([]uuid.UUID, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []uuid.UUID
	for _, r := range f.m.reviews {
		if r.UserID == reviewerID && r.ExerciseID == exerciseID && !r.DeletedAt.Valid {
			out = append(out, r.ExerciseSlideSubmissionID)
		}
	}
	return out, nil
}

func (f fakePeerReviews) CountReceivedBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var n int64
	for _, r := range f.m.reviews {
		if r.ExerciseSlideSubmissionID == slideSubmissionID && !r.IsSelfReview && !r.DeletedAt.Valid {
			n++
		}
	}
	return n, nil
}

func (f fakePeerReviews) GetReceivedQuestionSubmissions(ctx context.Context, slideSubmissionID uuid.UUID) ([]*models.PeerReviewQuestionSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.PeerReviewQuestionSubmission
	for _, r := range f.m.reviews {
		if r.ExerciseSlideSubmissionID != slideSubmissionID || r.IsSelfReview || r.DeletedAt.Valid {
			continue
		}
		for _, a := range f.m.reviewAnswers {
			if a.PeerReviewSubmissionID == r.ID {
				out = append(out, clone(a))
			}
		}
	}
	return out, nil
}

func (f fakePeerReviews) GetFlaggedSubmissionIDs(ctx context.Context, flaggedByUserID, exerciseID uuid.UUID) ([]uuid.UUID, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []uuid.UUID
	for _, a := range f.m.flagged {
		if a.FlaggedByUserID == flaggedByUserID && a.ExerciseID == exerciseID {
			out = append(out, a.ExerciseSlideSubmissionID)
		}
	}
	return out, nil
}

type fakeQueue struct{ m *memStore }

func (f fakeQueue) Get(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (*models.PeerReviewQueueEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.queue {
		if e.UserID == userID && e.ExerciseID == exerciseID && e.CourseInstanceID == courseInstanceID && !e.DeletedAt.Valid {
			return clone(e), nil
		}
	}
	return nil, missing("peer review queue entry", userID)
}

func (f fakeQueue) GetBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (*models.PeerReviewQueueEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.queue {
		if e.ReceivingPeerReviewsExerciseSlideSubmissionID == slideSubmissionID {
			return clone(e), nil
		}
	}
	return nil, missing("peer review queue entry", slideSubmissionID)
}

func (f fakeQueue) Upsert(ctx context.Context, entry *models.PeerReviewQueueEntry) (*models.PeerReviewQueueEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.queue {
		if e.UserID == entry.UserID && e.ExerciseID == entry.ExerciseID && e.CourseInstanceID == entry.CourseInstanceID {
			e.ReceivedEnoughPeerReviews = e.ReceivedEnoughPeerReviews || entry.ReceivedEnoughPeerReviews
			e.PeerReviewPriority = entry.PeerReviewPriority
			return clone(e), nil
		}
	}
	stored := clone(entry)
	f.m.stamp(&stored.Base)
	f.m.queue = append(f.m.queue, stored)
	return clone(stored), nil
}

func (f fakeQueue) MarkReceivedEnough(ctx context.Context, id uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.queue {
		if e.ID == id {
			e.ReceivedEnoughPeerReviews = true
			return nil
		}
	}
	return missing("peer review queue entry", id)
}

func (f fakeQueue) GetCandidates(ctx context.Context, filter repositories.PeerReviewCandidateFilter) ([]*models.PeerReviewQueueEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.PeerReviewQueueEntry
	for _, e := range f.m.queue {
		if e.ExerciseID != filter.ExerciseID || e.UserID == filter.ExcludedUserID {
			continue
		}
		if !f.m.staleCandidates && (e.DeletedAt.Valid || e.RemovedFromQueueForUnusualReason) {
			continue
		}
		if filter.OnlyNeedingReviews && e.ReceivedEnoughPeerReviews {
			continue
		}
		if containsID(filter.ExcludedSubmissionIDs, e.ReceivingPeerReviewsExerciseSlideSubmissionID) {
			continue
		}
		out = append(out, clone(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeerReviewPriority > out[j].PeerReviewPriority })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f fakeQueue) GetAllNeedingReviews(ctx context.Context, exerciseID uuid.UUID) ([]*models.PeerReviewQueueEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.PeerReviewQueueEntry
	for _, e := range f.m.queue {
		if e.ExerciseID == exerciseID && !e.ReceivedEnoughPeerReviews && !e.DeletedAt.Valid {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (f fakeQueue) DeleteBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.queue {
		if e.ReceivingPeerReviewsExerciseSlideSubmissionID == slideSubmissionID {
			e.DeletedAt = gorm.DeletedAt{Time: f.m.clock, Valid: true}
		}
	}
	return nil
}

func (f fakeQueue) GetReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID, notBefore time.Time) (*models.OfferedAnswerToPeerReview, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, r := range f.m.reservations {
		if r.ExerciseID == exerciseID && r.ReviewerUserID == reviewerID && !r.UpdatedAt.Before(notBefore) {
			return clone(r), nil
		}
	}
	return nil, missing("peer review reservation", reviewerID)
}

func (f fakeQueue) SaveReservation(ctx context.Context, reservation *models.OfferedAnswerToPeerReview) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for i, r := range f.m.reservations {
		if r.ExerciseID == reservation.ExerciseID && r.ReviewerUserID == reservation.ReviewerUserID {
			stored := clone(reservation)
			stored.Base = r.Base
			f.m.clock = f.m.clock.Add(time.Millisecond)
			stored.UpdatedAt = f.m.clock
			f.m.reservations[i] = stored
			return nil
		}
	}
	stored := clone(reservation)
	f.m.stamp(&stored.Base)
	f.m.reservations = append(f.m.reservations, stored)
	return nil
}

func (f fakeQueue) DeleteReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	kept := f.m.reservations[:0]
	for _, r := range f.m.reservations {
		if r.ExerciseID == exerciseID && r.ReviewerUserID == reviewerID {
			continue
		}
		kept = append(kept, r)
	}
	f.m.reservations = kept
	return nil
}

// ===== REGRADING =====

type fakeRegradings struct{ m *memStore }

func (f fakeRegradings) Create(ctx context.Context, regrading *models.Regrading) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&regrading.Base)
	f.m.regradings = append(f.m.regradings, clone(regrading))
	return nil
}

func (f fakeRegradings) AddSubmission(ctx context.Context, submission *models.ExerciseTaskRegradingSubmission) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&submission.Base)
	f.m.regradingSubs = append(f.m.regradingSubs, clone(submission))
	return nil
}

func (f fakeRegradings) find(id uuid.UUID) *models.Regrading {
	for _, r := range f.m.regradings {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f fakeRegradings) GetByID(ctx context.Context, id uuid.UUID) (*models.Regrading, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if r := f.find(id); r != nil {
		return clone(r), nil
	}
	return nil, missing("regrading", id)
}

func (f fakeRegradings) GetUncompletedAndMarkAsStarted(ctx context.Context) ([]*models.Regrading, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.Regrading
	for _, r := range f.m.regradings {
		if r.RegradingCompletedAt != nil {
			continue
		}
		if r.RegradingStartedAt == nil {
			started := f.m.clock
			r.RegradingStartedAt = &started
		}
		r.TotalGradingProgress = models.GradingProgressPending
		out = append(out, clone(r))
	}
	return out, nil
}

func (f fakeRegradings) GetSubmissions(ctx context.Context, regradingID uuid.UUID) ([]*models.ExerciseTaskRegradingSubmission, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.ExerciseTaskRegradingSubmission
	for _, s := range f.m.regradingSubs {
		if s.RegradingID == regradingID {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (f fakeRegradings) SetGradingAfterRegrading(ctx context.Context, regradingSubmissionID, gradingID uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, s := range f.m.regradingSubs {
		if s.ID == regradingSubmissionID {
			id := gradingID
			s.GradingAfterRegrading = &id
			return nil
		}
	}
	return missing("regrading submission", regradingSubmissionID)
}

func (f fakeRegradings) SetErrorMessage(ctx context.Context, id uuid.UUID, message string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if r := f.find(id); r != nil {
		r.ErrorMessage = &message
		return nil
	}
	return missing("regrading", id)
}

func (f fakeRegradings) SetTotalGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if r := f.find(id); r != nil {
		r.TotalGradingProgress = progress
		return nil
	}
	return missing("regrading", id)
}

func (f fakeRegradings) Complete(ctx context.Context, id uuid.UUID) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if r := f.find(id); r != nil {
		completed := f.m.clock
		r.RegradingCompletedAt = &completed
		r.TotalGradingProgress = models.GradingProgressFullyGraded
		return nil
	}
	return missing("regrading", id)
}

// ===== COURSE STRUCTURE =====

type fakeCourses struct{ m *memStore }

func (f fakeCourses) GetCourseInstanceByID(ctx context.Context, id uuid.UUID) (*models.CourseInstance, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, i := range f.m.instances {
		if i.ID == id {
			return clone(i), nil
		}
	}
	return nil, missing("course instance", id)
}

func (f fakeCourses) GetExamByID(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, e := range f.m.exams {
		if e.ID == id {
			return clone(e), nil
		}
	}
	return nil, missing("exam", id)
}

func (f fakeCourses) GetChapterByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, c := range f.m.chapters {
		if c.ID == id {
			return clone(c), nil
		}
	}
	return nil, missing("chapter", id)
}

func (f fakeCourses) GetChaptersByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Chapter, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.Chapter
	for _, c := range f.m.chapters {
		if c.CourseID == courseID {
			out = append(out, clone(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (f fakeCourses) GetModulesByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.CourseModule, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.CourseModule
	for _, m := range f.m.modules {
		if m.CourseID == courseID {
			out = append(out, clone(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

type fakeChapterLocking struct{ m *memStore }

func (f fakeChapterLocking) GetStatusesByCourse(ctx context.Context, userID, courseID uuid.UUID) ([]*models.UserChapterLockingStatus, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var out []*models.UserChapterLockingStatus
	for _, s := range f.m.lockStatuses {
		if s.UserID == userID && s.CourseID == courseID {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (f fakeChapterLocking) set(userID, chapterID, courseID uuid.UUID, status models.ChapterLockingStatus, downgrade bool) *models.UserChapterLockingStatus {
	for _, s := range f.m.lockStatuses {
		if s.UserID == userID && s.ChapterID == chapterID {
			if downgrade || s.Status != models.ChapterCompletedAndLocked {
				s.Status = status
			}
			return clone(s)
		}
	}
	s := &models.UserChapterLockingStatus{UserID: userID, ChapterID: chapterID, CourseID: courseID, Status: status}
	f.m.stamp(&s.Base)
	f.m.lockStatuses = append(f.m.lockStatuses, s)
	return clone(s)
}

func (f fakeChapterLocking) Unlock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	return f.set(userID, chapterID, courseID, models.ChapterUnlocked, false), nil
}

func (f fakeChapterLocking) CompleteAndLock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	return f.set(userID, chapterID, courseID, models.ChapterCompletedAndLocked, true), nil
}

type fakeCompletions struct{ m *memStore }

func (f fakeCompletions) Get(ctx context.Context, moduleID, courseInstanceID, userID uuid.UUID) (*models.CourseModuleCompletion, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, c := range f.m.completions {
		if c.CourseModuleID == moduleID && c.CourseInstanceID == courseInstanceID && c.UserID == userID {
			return clone(c), nil
		}
	}
	return nil, nil
}

func (f fakeCompletions) Create(ctx context.Context, completion *models.CourseModuleCompletion) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.stamp(&completion.Base)
	f.m.completions = append(f.m.completions, clone(completion))
	return nil
}

// ===== HELPERS =====

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGrader answers grading requests per exercise type.
type fakeGrader struct {
	mu      sync.Mutex
	results map[string]*models.ExerciseTaskGradingResult
	errs    map[string]error
	calls   map[string]int
}

func newFakeGrader() *fakeGrader {
	return &fakeGrader{
		results: make(map[string]*models.ExerciseTaskGradingResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (g *fakeGrader) Grade(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, task *models.ExerciseTask, submission *models.ExerciseTaskSubmission) (*models.ExerciseTaskGradingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[task.ExerciseType]++
	if err := g.errs[task.ExerciseType]; err != nil {
		return nil, err
	}
	if r, ok := g.results[task.ExerciseType]; ok {
		c := *r
		return &c, nil
	}
	return nil, fmt.Errorf("no result for %s", task.ExerciseType)
}

func (g *fakeGrader) callCount(exerciseType string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[exerciseType]
}
